package handlers

import (
	"bytes"
	"net/http/httptest"
	"testing"

	dbpkg "github.com/councilhq/councilapi/internal/db"
	"github.com/councilhq/councilapi/internal/models"
	"github.com/councilhq/councilapi/internal/security"
	"github.com/gin-gonic/gin"
	"gorm.io/gorm"
)

func openTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	conn, errOpen := dbpkg.Open(":memory:")
	if errOpen != nil {
		t.Fatalf("open db: %v", errOpen)
	}
	if errMigrate := dbpkg.Migrate(conn); errMigrate != nil {
		t.Fatalf("migrate db: %v", errMigrate)
	}
	return conn
}

func createTestUser(t *testing.T, conn *gorm.DB, username, password string) models.User {
	t.Helper()
	hash, errHash := security.HashPassword(password)
	if errHash != nil {
		t.Fatalf("hash password: %v", errHash)
	}
	user := models.User{
		Username: username,
		Email:    username + "@example.com",
		Password: hash,
		Status:   models.AccountStatusActive,
	}
	if errCreate := conn.Create(&user).Error; errCreate != nil {
		t.Fatalf("create user: %v", errCreate)
	}
	return user
}

func jsonContext(t *testing.T, method, target, body string, userID uint64) (*gin.Context, *httptest.ResponseRecorder) {
	t.Helper()
	gin.SetMode(gin.TestMode)
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	var reader *bytes.Buffer
	if body != "" {
		reader = bytes.NewBufferString(body)
	} else {
		reader = &bytes.Buffer{}
	}
	c.Request = httptest.NewRequest(method, target, reader)
	c.Request.Header.Set("Content-Type", "application/json")
	if userID != 0 {
		c.Set("userID", userID)
	}
	return c, w
}

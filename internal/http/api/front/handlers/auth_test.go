package handlers

import (
	"encoding/json"
	"net/http"
	"testing"
	"time"

	"github.com/councilhq/councilapi/internal/config"
	"github.com/councilhq/councilapi/internal/security"
)

func testJWTConfig() config.JWTConfig {
	return config.JWTConfig{Secret: "test-secret", Expiry: time.Hour}
}

func TestRegisterAndLogin(t *testing.T) {
	conn := openTestDB(t)
	h := NewAuthHandler(conn, testJWTConfig())

	c, w := jsonContext(t, http.MethodPost, "/v1/auth/register", `{"username":"alice","email":"alice@example.com","password":"hunter2"}`, 0)
	h.Register(c)
	if w.Code != http.StatusCreated {
		t.Fatalf("register: expected 201, got %d body=%s", w.Code, w.Body.String())
	}

	c, w = jsonContext(t, http.MethodPost, "/v1/auth/login", `{"username":"alice","password":"hunter2"}`, 0)
	h.Login(c)
	if w.Code != http.StatusOK {
		t.Fatalf("login: expected 200, got %d body=%s", w.Code, w.Body.String())
	}

	var resp struct {
		Token string `json:"token"`
		User  struct {
			Username string `json:"username"`
		} `json:"user"`
	}
	if errDecode := json.Unmarshal(w.Body.Bytes(), &resp); errDecode != nil {
		t.Fatalf("decode response: %v", errDecode)
	}
	if resp.User.Username != "alice" {
		t.Fatalf("expected alice, got %q", resp.User.Username)
	}
	claims, errParse := security.ParseToken("test-secret", resp.Token)
	if errParse != nil {
		t.Fatalf("parse issued token: %v", errParse)
	}
	if claims.Username != "alice" {
		t.Fatalf("unexpected token claims: %+v", claims)
	}
}

func TestRegisterRejectsDuplicateUsername(t *testing.T) {
	conn := openTestDB(t)
	createTestUser(t, conn, "alice", "hunter2")
	h := NewAuthHandler(conn, testJWTConfig())

	c, w := jsonContext(t, http.MethodPost, "/v1/auth/register", `{"username":"alice","password":"other"}`, 0)
	h.Register(c)
	if w.Code != http.StatusConflict {
		t.Fatalf("expected 409, got %d", w.Code)
	}
}

func TestLoginRejectsWrongPassword(t *testing.T) {
	conn := openTestDB(t)
	createTestUser(t, conn, "alice", "hunter2")
	h := NewAuthHandler(conn, testJWTConfig())

	c, w := jsonContext(t, http.MethodPost, "/v1/auth/login", `{"username":"alice","password":"nope"}`, 0)
	h.Login(c)
	if w.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", w.Code)
	}
}

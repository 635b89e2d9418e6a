package pricing

import (
	"context"
	"testing"
	"time"

	dbpkg "github.com/councilhq/councilapi/internal/db"
	"github.com/councilhq/councilapi/internal/models"
	"github.com/shopspring/decimal"
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

func TestRefreshLoadsPricesFromDatabase(t *testing.T) {
	conn := openTestDB(t)
	row := models.ModelPrice{
		ModelID:             "model-a",
		InputPricePerToken:  decimal.RequireFromString("0.000003"),
		OutputPricePerToken: decimal.RequireFromString("0.000015"),
		LastUpdated:         time.Now().UTC(),
	}
	if errCreate := conn.Create(&row).Error; errCreate != nil {
		t.Fatalf("create price: %v", errCreate)
	}

	table := NewTable(conn, nil, Price{})
	if errRefresh := table.Refresh(context.Background()); errRefresh != nil {
		t.Fatalf("refresh: %v", errRefresh)
	}

	price, found := table.Lookup("model-a")
	if !found {
		t.Fatalf("expected explicit price for model-a")
	}
	if !price.InputPerToken.Equal(decimal.RequireFromString("0.000003")) {
		t.Fatalf("unexpected input price %s", price.InputPerToken)
	}
}

func TestLookupFallsBackToDefault(t *testing.T) {
	conn := openTestDB(t)
	fallback := Price{
		InputPerToken:  decimal.RequireFromString("0.000001"),
		OutputPerToken: decimal.RequireFromString("0.000002"),
	}
	table := NewTable(conn, nil, fallback)
	if errRefresh := table.Refresh(context.Background()); errRefresh != nil {
		t.Fatalf("refresh: %v", errRefresh)
	}

	price, found := table.Lookup("unknown-model")
	if found {
		t.Fatalf("expected default fallback, got explicit row")
	}
	if !price.OutputPerToken.Equal(fallback.OutputPerToken) {
		t.Fatalf("unexpected fallback price %s", price.OutputPerToken)
	}
}

func TestRefreshReplacesStalePrices(t *testing.T) {
	conn := openTestDB(t)
	row := models.ModelPrice{
		ModelID:             "model-a",
		InputPricePerToken:  decimal.RequireFromString("0.000003"),
		OutputPricePerToken: decimal.RequireFromString("0.000015"),
		LastUpdated:         time.Now().UTC(),
	}
	if errCreate := conn.Create(&row).Error; errCreate != nil {
		t.Fatalf("create price: %v", errCreate)
	}
	table := NewTable(conn, nil, Price{})
	if errRefresh := table.Refresh(context.Background()); errRefresh != nil {
		t.Fatalf("refresh: %v", errRefresh)
	}

	if errUpdate := conn.Model(&models.ModelPrice{}).
		Where("model_id = ?", "model-a").
		Update("input_price_per_token", decimal.RequireFromString("0.000006")).Error; errUpdate != nil {
		t.Fatalf("update price: %v", errUpdate)
	}
	if errRefresh := table.Refresh(context.Background()); errRefresh != nil {
		t.Fatalf("second refresh: %v", errRefresh)
	}

	price, _ := table.Lookup("model-a")
	if !price.InputPerToken.Equal(decimal.RequireFromString("0.000006")) {
		t.Fatalf("expected refreshed price, got %s", price.InputPerToken)
	}
}

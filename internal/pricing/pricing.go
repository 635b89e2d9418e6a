// Package pricing maintains an in-memory snapshot of per-model unit prices,
// refreshed out-of-band from the model_prices table.
package pricing

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/councilhq/councilapi/internal/models"
	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
	log "github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

const (
	defaultRefreshInterval = 5 * time.Minute
	redisSnapshotKey       = "pricing:snapshot"
	redisSnapshotTTL       = 10 * time.Minute
)

// Price holds the per-token unit prices for one model.
type Price struct {
	InputPerToken  decimal.Decimal `json:"input_per_token"`
	OutputPerToken decimal.Decimal `json:"output_per_token"`
}

// Table is a concurrency-safe price lookup backed by periodic refreshes.
type Table struct {
	db    *gorm.DB
	redis *redis.Client

	mu     sync.RWMutex
	prices map[string]Price

	interval     time.Duration
	defaultPrice Price
}

// NewTable constructs a Table. redisClient may be nil; the table then refreshes
// from the database only. defaultPrice applies to models without a price row.
func NewTable(db *gorm.DB, redisClient *redis.Client, defaultPrice Price) *Table {
	return &Table{
		db:           db,
		redis:        redisClient,
		prices:       make(map[string]Price),
		interval:     defaultRefreshInterval,
		defaultPrice: defaultPrice,
	}
}

// Lookup returns the price for a model. The second return reports whether an
// explicit price row existed; otherwise the configured default is returned.
func (t *Table) Lookup(modelID string) (Price, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	if price, ok := t.prices[modelID]; ok {
		return price, true
	}
	return t.defaultPrice, false
}

// Refresh reloads the snapshot immediately. A shared redis snapshot is used
// when available so replicas do not all hit the prices table.
func (t *Table) Refresh(ctx context.Context) error {
	if t.redis != nil {
		if cached, errGet := t.redis.Get(ctx, redisSnapshotKey).Bytes(); errGet == nil {
			var snapshot map[string]Price
			if errUnmarshal := json.Unmarshal(cached, &snapshot); errUnmarshal == nil && len(snapshot) > 0 {
				t.store(snapshot)
				return nil
			}
		}
	}

	var rows []models.ModelPrice
	if errFind := t.db.WithContext(ctx).Find(&rows).Error; errFind != nil {
		return errFind
	}
	snapshot := make(map[string]Price, len(rows))
	for _, row := range rows {
		snapshot[row.ModelID] = Price{
			InputPerToken:  row.InputPricePerToken,
			OutputPerToken: row.OutputPricePerToken,
		}
	}
	t.store(snapshot)

	if t.redis != nil && len(snapshot) > 0 {
		if payload, errMarshal := json.Marshal(snapshot); errMarshal == nil {
			if errSet := t.redis.Set(ctx, redisSnapshotKey, payload, redisSnapshotTTL).Err(); errSet != nil {
				log.WithError(errSet).Debug("pricing: redis snapshot write failed")
			}
		}
	}
	return nil
}

func (t *Table) store(snapshot map[string]Price) {
	t.mu.Lock()
	t.prices = snapshot
	t.mu.Unlock()
}

// Start launches the refresh loop in a background goroutine.
func (t *Table) Start(ctx context.Context) {
	if t == nil {
		return
	}
	if ctx == nil {
		ctx = context.Background()
	}
	go t.run(ctx)
	log.Infof("pricing refresher started (interval=%s)", t.interval)
}

func (t *Table) run(ctx context.Context) {
	for {
		if ctx.Err() != nil {
			return
		}
		if errRefresh := t.Refresh(ctx); errRefresh != nil {
			log.WithError(errRefresh).Warn("pricing: refresh failed")
		}
		timer := time.NewTimer(t.interval)
		select {
		case <-ctx.Done():
			if !timer.Stop() {
				<-timer.C
			}
			return
		case <-timer.C:
		}
	}
}

package sink

import (
	"context"
	"sync"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"matchcore/internal/common"
)

// MemoryWriter is an in-process Writer for tests and single-node
// deployments without a durable store configured. Safe for concurrent
// use; Write is idempotent on trade ID like every Writer must be.
type MemoryWriter struct {
	mu     sync.Mutex
	trades map[string]common.Trade
}

// NewMemoryWriter constructs an empty MemoryWriter.
func NewMemoryWriter() *MemoryWriter {
	return &MemoryWriter{trades: make(map[string]common.Trade)}
}

func (w *MemoryWriter) Write(_ context.Context, trade common.Trade) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.trades[trade.ID.String()] = trade
	return nil
}

// Trades returns every trade recorded so far, for assertions in tests.
func (w *MemoryWriter) Trades() []common.Trade {
	w.mu.Lock()
	defer w.mu.Unlock()
	out := make([]common.Trade, 0, len(w.trades))
	for _, t := range w.trades {
		out = append(out, t)
	}
	return out
}

// tradeRow is the persisted shape of a trade, keyed by its own ID so a
// re-delivered trade (the sink's at-least-once guarantee) upserts in
// place instead of duplicating a row.
type tradeRow struct {
	ID            string `gorm:"primaryKey"`
	AssetType     int
	Price         string
	Quantity      string
	BuyerOrderID  string
	SellerOrderID string
	Timestamp     int64
}

func (tradeRow) TableName() string { return "trades" }

// GormWriter persists trades to a relational store through gorm, upserting
// on primary-key conflict so repeated delivery of the same trade ID is a
// no-op rather than a duplicate insert.
type GormWriter struct {
	db *gorm.DB
}

// NewGormWriter wraps an already-connected gorm.DB and ensures the trades
// table exists.
func NewGormWriter(db *gorm.DB) (*GormWriter, error) {
	if err := db.AutoMigrate(&tradeRow{}); err != nil {
		return nil, err
	}
	return &GormWriter{db: db}, nil
}

func (w *GormWriter) Write(ctx context.Context, trade common.Trade) error {
	row := tradeRow{
		ID:            trade.ID.String(),
		AssetType:     int(trade.AssetType),
		Price:         trade.Price.String(),
		Quantity:      trade.Quantity.String(),
		BuyerOrderID:  trade.BuyerOrderID.String(),
		SellerOrderID: trade.SellerOrderID.String(),
		Timestamp:     trade.Timestamp.UnixNano(),
	}
	return w.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "id"}},
		DoNothing: true,
	}).Create(&row).Error
}

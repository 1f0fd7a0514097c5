package ports

import (
	"time"

	"github.com/shopspring/decimal"
)

// PortfolioSnapshot is one account's end-of-day state, as persisted by
// the daily portfolio series.
type PortfolioSnapshot struct {
	TradingDate time.Time
	AccountType string
	Cash        decimal.Decimal
	TotalValue  decimal.Decimal
	PnL         decimal.Decimal
}

// TradeRecord is one fill, as persisted to the trade ledger.
type TradeRecord struct {
	ExecID       string
	OrderID      string
	InstrumentID string
	AccountType  string
	Side         string
	Price        decimal.Decimal
	Amount       int64
	Commission   decimal.Decimal
	Tax          decimal.Decimal
	TradingDate  time.Time
}

// Storage persists the results a completed (or in-progress) run
// produces: the daily portfolio series and the trade ledger. A run can
// be resumed by reading back whatever a prior run already wrote.
type Storage interface {
	SaveSnapshot(snapshot PortfolioSnapshot) error
	SaveTrade(record TradeRecord) error
	Snapshots(accountType string) ([]PortfolioSnapshot, error)
	Trades(accountType string) ([]TradeRecord, error)

	// SaveState persists the opaque capture blob a Broker or Account
	// Capture() produced, keyed by "broker" or an AccountType string.
	// A later SaveState under the same key overwrites it.
	SaveState(key string, data []byte) error
	// State returns the most recently saved blob for key, and false if
	// nothing has been saved under it yet.
	State(key string) (data []byte, ok bool, err error)

	Close() error
}

// Package storage is the SQLite-backed persistence adapter for a
// run's daily portfolio series and trade ledger.
package storage

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	_ "modernc.org/sqlite"

	"github.com/alejandrodnm/backtrader/internal/ports"
)

const schema = `
CREATE TABLE IF NOT EXISTS portfolio_snapshots (
    trading_date TEXT    NOT NULL,
    account_type TEXT    NOT NULL,
    cash         TEXT    NOT NULL,
    total_value  TEXT    NOT NULL,
    pnl          TEXT    NOT NULL,
    PRIMARY KEY (trading_date, account_type)
);

CREATE TABLE IF NOT EXISTS trades (
    exec_id       TEXT PRIMARY KEY,
    order_id      TEXT    NOT NULL,
    instrument_id TEXT    NOT NULL,
    side          TEXT    NOT NULL,
    price         TEXT    NOT NULL,
    amount        INTEGER NOT NULL,
    commission    TEXT    NOT NULL,
    tax           TEXT    NOT NULL,
    trading_date  TEXT    NOT NULL,
    account_type  TEXT    NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_snapshots_account ON portfolio_snapshots(account_type, trading_date);
CREATE INDEX IF NOT EXISTS idx_trades_account     ON trades(account_type, trading_date);

CREATE TABLE IF NOT EXISTS state_blobs (
    key        TEXT PRIMARY KEY, -- "broker" or an AccountType string
    data       BLOB NOT NULL,
    updated_at TEXT NOT NULL
);
`

// SQLiteStorage implements ports.Storage on a pure-Go SQLite file (or
// ":memory:"), matching the single-writer connection discipline a
// SQLite-backed store needs.
type SQLiteStorage struct {
	db *sql.DB
}

// Open creates (or attaches to) the database at path and applies the schema.
func Open(path string) (*SQLiteStorage, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("storage.Open: open %q: %w", path, err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("storage.Open: apply schema: %w", err)
	}
	return &SQLiteStorage{db: db}, nil
}

// SaveSnapshot upserts one account's end-of-day state.
func (s *SQLiteStorage) SaveSnapshot(snapshot ports.PortfolioSnapshot) error {
	_, err := s.db.Exec(`
		INSERT INTO portfolio_snapshots (trading_date, account_type, cash, total_value, pnl)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(trading_date, account_type) DO UPDATE SET
			cash        = excluded.cash,
			total_value = excluded.total_value,
			pnl         = excluded.pnl
	`,
		snapshot.TradingDate.UTC().Format(time.RFC3339),
		snapshot.AccountType,
		snapshot.Cash.String(),
		snapshot.TotalValue.String(),
		snapshot.PnL.String(),
	)
	if err != nil {
		return fmt.Errorf("storage.SaveSnapshot: %w", err)
	}
	return nil
}

// SaveTrade inserts one fill into the ledger. A trade's ExecID is
// unique per fill, so a retried insert is naturally idempotent.
func (s *SQLiteStorage) SaveTrade(record ports.TradeRecord) error {
	_, err := s.db.Exec(`
		INSERT INTO trades (exec_id, order_id, instrument_id, side, price, amount, commission, tax, trading_date, account_type)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(exec_id) DO NOTHING
	`,
		record.ExecID,
		record.OrderID,
		record.InstrumentID,
		record.Side,
		record.Price.String(),
		record.Amount,
		record.Commission.String(),
		record.Tax.String(),
		record.TradingDate.UTC().Format(time.RFC3339),
		record.AccountType,
	)
	if err != nil {
		return fmt.Errorf("storage.SaveTrade: %w", err)
	}
	return nil
}

// Snapshots returns every persisted daily snapshot for accountType,
// ordered by trading date.
func (s *SQLiteStorage) Snapshots(accountType string) ([]ports.PortfolioSnapshot, error) {
	rows, err := s.db.Query(`
		SELECT trading_date, account_type, cash, total_value, pnl
		FROM portfolio_snapshots
		WHERE account_type = ?
		ORDER BY trading_date ASC
	`, accountType)
	if err != nil {
		return nil, fmt.Errorf("storage.Snapshots: query: %w", err)
	}
	defer rows.Close()

	var out []ports.PortfolioSnapshot
	for rows.Next() {
		var snapshot ports.PortfolioSnapshot
		var tradingDate, cash, totalValue, pnl string
		if err := rows.Scan(&tradingDate, &snapshot.AccountType, &cash, &totalValue, &pnl); err != nil {
			return nil, fmt.Errorf("storage.Snapshots: scan: %w", err)
		}
		snapshot.TradingDate, err = time.Parse(time.RFC3339, tradingDate)
		if err != nil {
			return nil, fmt.Errorf("storage.Snapshots: parse date: %w", err)
		}
		snapshot.Cash, err = decimal.NewFromString(cash)
		if err != nil {
			return nil, fmt.Errorf("storage.Snapshots: parse cash: %w", err)
		}
		snapshot.TotalValue, err = decimal.NewFromString(totalValue)
		if err != nil {
			return nil, fmt.Errorf("storage.Snapshots: parse total value: %w", err)
		}
		snapshot.PnL, err = decimal.NewFromString(pnl)
		if err != nil {
			return nil, fmt.Errorf("storage.Snapshots: parse pnl: %w", err)
		}
		out = append(out, snapshot)
	}
	return out, rows.Err()
}

// Trades returns every persisted trade for accountType, ordered by
// trading date.
func (s *SQLiteStorage) Trades(accountType string) ([]ports.TradeRecord, error) {
	rows, err := s.db.Query(`
		SELECT exec_id, order_id, instrument_id, side, price, amount, commission, tax, trading_date
		FROM trades
		WHERE account_type = ?
		ORDER BY trading_date ASC
	`, accountType)
	if err != nil {
		return nil, fmt.Errorf("storage.Trades: query: %w", err)
	}
	defer rows.Close()

	var out []ports.TradeRecord
	for rows.Next() {
		var record ports.TradeRecord
		var price, commission, tax, tradingDate string
		if err := rows.Scan(&record.ExecID, &record.OrderID, &record.InstrumentID, &record.Side,
			&price, &record.Amount, &commission, &tax, &tradingDate); err != nil {
			return nil, fmt.Errorf("storage.Trades: scan: %w", err)
		}
		record.Price, err = decimal.NewFromString(price)
		if err != nil {
			return nil, fmt.Errorf("storage.Trades: parse price: %w", err)
		}
		record.Commission, err = decimal.NewFromString(commission)
		if err != nil {
			return nil, fmt.Errorf("storage.Trades: parse commission: %w", err)
		}
		record.Tax, err = decimal.NewFromString(tax)
		if err != nil {
			return nil, fmt.Errorf("storage.Trades: parse tax: %w", err)
		}
		record.TradingDate, err = time.Parse(time.RFC3339, tradingDate)
		if err != nil {
			return nil, fmt.Errorf("storage.Trades: parse date: %w", err)
		}
		out = append(out, record)
	}
	return out, rows.Err()
}

// SaveState upserts the capture blob for key (either "broker" or an
// account type), overwriting whatever was previously saved under it.
func (s *SQLiteStorage) SaveState(key string, data []byte) error {
	_, err := s.db.Exec(`
		INSERT INTO state_blobs (key, data, updated_at)
		VALUES (?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET
			data       = excluded.data,
			updated_at = excluded.updated_at
	`, key, data, time.Now().UTC().Format(time.RFC3339))
	if err != nil {
		return fmt.Errorf("storage.SaveState: %w", err)
	}
	return nil
}

// State returns the most recently saved blob for key.
func (s *SQLiteStorage) State(key string) ([]byte, bool, error) {
	var data []byte
	err := s.db.QueryRow(`SELECT data FROM state_blobs WHERE key = ?`, key).Scan(&data)
	if err == sql.ErrNoRows {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("storage.State: %w", err)
	}
	return data, true, nil
}

// Close closes the underlying database connection.
func (s *SQLiteStorage) Close() error {
	return s.db.Close()
}

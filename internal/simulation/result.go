package simulation

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/alejandrodnm/backtrader/internal/domain"
)

// DailyPortfolio is one account's end-of-day snapshot, the unit the
// persisted daily portfolio series is built from.
type DailyPortfolio struct {
	TradingDate time.Time
	AccountType domain.AccountType
	Cash        decimal.Decimal
	TotalValue  decimal.Decimal
	PnL         decimal.Decimal
}

// TradeLedgerEntry is one fill, the unit the persisted trade ledger is
// built from.
type TradeLedgerEntry struct {
	AccountType domain.AccountType
	Order       *domain.Order
	Trade       domain.Trade
}

// Result is everything a run produces: the daily portfolio series for
// every configured account, and the full trade ledger.
type Result struct {
	DailyPortfolios []DailyPortfolio
	Trades          []TradeLedgerEntry
	Warnings        []string
}

func (r *Result) recordDay(day time.Time, accounts map[domain.AccountType]domain.Account) {
	for accountType, account := range accounts {
		portfolio := account.Portfolio()
		value := portfolio.Value()
		pnl := value.Sub(account.Portfolio().YesterdayPortfolioValue)
		r.DailyPortfolios = append(r.DailyPortfolios, DailyPortfolio{
			TradingDate: day,
			AccountType: accountType,
			Cash:        portfolio.Cash,
			TotalValue:  value,
			PnL:         pnl,
		})
	}
}

func (r *Result) recordTrade(accountType domain.AccountType, order *domain.Order, trade domain.Trade) {
	r.Trades = append(r.Trades, TradeLedgerEntry{AccountType: accountType, Order: order, Trade: trade})
}

func (r *Result) recordWarning(msg string) {
	r.Warnings = append(r.Warnings, msg)
}

package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// Trade is an immutable fill record produced by the matching engine.
type Trade struct {
	ExecID           string
	OrderRef         *Order
	Price            decimal.Decimal // post-slippage execution price
	Amount           int64
	Commission       decimal.Decimal
	Tax              decimal.Decimal
	CalendarDt       time.Time
	TradingDt        time.Time
	CloseTodayAmount int64 // futures day-trade offset
}

// Value is the gross notional of the trade, before commission and tax.
func (t Trade) Value() decimal.Decimal {
	return t.Price.Mul(decimal.NewFromInt(t.Amount))
}

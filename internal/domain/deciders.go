package domain

import "github.com/shopspring/decimal"

// SlippageDecider adjusts a deal price into a fill price.
type SlippageDecider interface {
	GetTradePrice(order *Order, dealPrice decimal.Decimal) decimal.Decimal
}

// CommissionDecider computes the commission owed on a trade.
type CommissionDecider interface {
	GetCommission(trade Trade) decimal.Decimal
}

// TaxDecider computes the tax owed on a trade.
type TaxDecider interface {
	GetTax(trade Trade) decimal.Decimal
}

// NoSlippage fills exactly at the deal price.
type NoSlippage struct{}

func (NoSlippage) GetTradePrice(_ *Order, dealPrice decimal.Decimal) decimal.Decimal {
	return dealPrice
}

// PercentSlippage nudges the deal price against the order's side by a
// fixed percentage, modeling the cost of crossing the spread.
type PercentSlippage struct {
	Rate decimal.Decimal
}

func (s PercentSlippage) GetTradePrice(order *Order, dealPrice decimal.Decimal) decimal.Decimal {
	adj := dealPrice.Mul(s.Rate)
	if order.Side == SideBuy {
		return dealPrice.Add(adj)
	}
	return dealPrice.Sub(adj)
}

// RateCommission charges rate*notional, floored at Min.
type RateCommission struct {
	Rate decimal.Decimal
	Min  decimal.Decimal
}

func (c RateCommission) GetCommission(trade Trade) decimal.Decimal {
	commission := trade.Value().Mul(c.Rate)
	if commission.LessThan(c.Min) {
		return c.Min
	}
	return commission
}

// SellSideTax charges rate*notional on sells only (e.g. a stamp duty).
type SellSideTax struct {
	Rate decimal.Decimal
}

func (t SellSideTax) GetTax(trade Trade) decimal.Decimal {
	if trade.OrderRef == nil || trade.OrderRef.Side != SideSell {
		return decimal.Zero
	}
	return trade.Value().Mul(t.Rate)
}

// NoTax charges nothing, used by accounts without a transfer tax (e.g. futures, benchmark).
type NoTax struct{}

func (NoTax) GetTax(_ Trade) decimal.Decimal { return decimal.Zero }

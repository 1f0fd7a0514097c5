package domain

import "github.com/shopspring/decimal"

// Position is the per-(account, instrument) holding and its running
// order/trade bookkeeping.
//
// Invariants: Quantity = BuyTradeQuantity - SellTradeQuantity;
// BuyTodayHoldingQuantity <= BuyTradeQuantity on the day it accrues.
type Position struct {
	InstrumentID string

	Quantity  int64
	AvgPrice  decimal.Decimal
	LastPrice decimal.Decimal

	BuyTradeQuantity  int64
	SellTradeQuantity int64
	BuyTradeValue     decimal.Decimal
	SellTradeValue    decimal.Decimal

	// BuyTodayHoldingQuantity tracks same-day buys for the T+1 discipline;
	// it is reset to zero every AfterTrading.
	BuyTodayHoldingQuantity int64

	BuyOrderQuantity  int64
	SellOrderQuantity int64
	BuyOrderValue     decimal.Decimal
	SellOrderValue    decimal.Decimal

	TotalCommission decimal.Decimal
	TransactionCost decimal.Decimal

	TotalOrders int
	TotalTrades int

	// Margin and OpenTodayAmount are used by FutureAccount only: Margin
	// is the cash currently pledged against this position's open
	// contracts, OpenTodayAmount is the lots opened today (it drives
	// close-today-first offsetting and is reset every AfterTrading).
	Margin          decimal.Decimal
	OpenTodayAmount int64
}

// MarketValue is the position's mark-to-market value at LastPrice.
func (p *Position) MarketValue() decimal.Decimal {
	return decimal.NewFromInt(p.Quantity).Mul(p.LastPrice)
}

// SellableQuantity is the quantity that can be sold right now. For
// equities under T+1, shares bought today are locked until the next
// trading day.
func (p *Position) SellableQuantity() int64 {
	sellable := p.Quantity - p.BuyTodayHoldingQuantity
	if sellable < 0 {
		return 0
	}
	return sellable
}

// ApplySplit scales the quantity-bearing counters by splitTo/splitFrom.
// AvgPrice, LastPrice and BuyTodayHoldingQuantity are left unchanged,
// and StockAccount.applySplits, its caller, does not rescale them either.
func (p *Position) ApplySplit(splitFrom, splitTo int64) {
	if splitFrom <= 0 || splitTo <= 0 || splitFrom == splitTo {
		return
	}
	ratio := decimal.NewFromInt(splitTo).Div(decimal.NewFromInt(splitFrom))
	p.BuyOrderQuantity = scaleQuantity(p.BuyOrderQuantity, ratio)
	p.SellOrderQuantity = scaleQuantity(p.SellOrderQuantity, ratio)
	p.BuyTradeQuantity = scaleQuantity(p.BuyTradeQuantity, ratio)
	p.SellTradeQuantity = scaleQuantity(p.SellTradeQuantity, ratio)
	p.Quantity = p.BuyTradeQuantity - p.SellTradeQuantity
}

func scaleQuantity(qty int64, ratio decimal.Decimal) int64 {
	return decimal.NewFromInt(qty).Mul(ratio).Round(0).IntPart()
}

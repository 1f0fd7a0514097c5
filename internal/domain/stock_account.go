package domain

import (
	"fmt"
	"log/slog"

	"github.com/shopspring/decimal"
)

// DefaultT1ExemptInstruments are the cross-border ETFs the original
// system hard-codes as exempt from the T+1 holding rule. Kept as a
// default rather than a frozen literal — see SPEC_FULL.md open
// questions.
var DefaultT1ExemptInstruments = []string{
	"510900.XSHG", "513030.XSHG", "513100.XSHG", "513500.XSHG",
}

// StockAccountConfig configures a StockAccount's policy knobs.
type StockAccountConfig struct {
	HandleSplit         bool
	CashReturnOnDelist  bool
	T1ExemptInstruments []string
	Slippage            SlippageDecider
	Commission          CommissionDecider
	Tax                 TaxDecider
}

// StockAccount implements the equity asset-class policy: T+1 holding,
// cash dividends, splits, and delisting sweeps.
type StockAccount struct {
	portfolio *Portfolio
	cfg       StockAccountConfig
	t1Exempt  map[string]bool
}

// NewStockAccount creates a stock account with the given starting cash.
func NewStockAccount(startingCash decimal.Decimal, cfg StockAccountConfig) *StockAccount {
	if cfg.Slippage == nil {
		cfg.Slippage = NoSlippage{}
	}
	if cfg.Commission == nil {
		cfg.Commission = RateCommission{Rate: decimal.NewFromFloat(0.0003), Min: decimal.NewFromInt(5)}
	}
	if cfg.Tax == nil {
		cfg.Tax = SellSideTax{Rate: decimal.NewFromFloat(0.001)}
	}
	exempt := cfg.T1ExemptInstruments
	if exempt == nil {
		exempt = DefaultT1ExemptInstruments
	}
	t1 := make(map[string]bool, len(exempt))
	for _, id := range exempt {
		t1[id] = true
	}
	return &StockAccount{
		portfolio: NewPortfolio(startingCash),
		cfg:       cfg,
		t1Exempt:  t1,
	}
}

func (a *StockAccount) Type() AccountType                    { return AccountStock }
func (a *StockAccount) Portfolio() *Portfolio                { return a.portfolio }
func (a *StockAccount) SlippageDecider() SlippageDecider     { return a.cfg.Slippage }
func (a *StockAccount) CommissionDecider() CommissionDecider { return a.cfg.Commission }
func (a *StockAccount) TaxDecider() TaxDecider               { return a.cfg.Tax }

// CloseTodayAmount is always zero for equities: there is no
// close-today/open-today margin distinction outside futures.
func (a *StockAccount) CloseTodayAmount(_ string, _ int64, _ OrderSide) int64 { return 0 }

// OnOrderPendingNew reserves cash for a buy, and enforces the T+1
// sellable-quantity rule for a sell by rejecting the order outright
// when the position does not have enough unlocked shares.
func (a *StockAccount) OnOrderPendingNew(account Account, order *Order) {
	if !sameAccount(a, account) || order.IsFinal() {
		return
	}
	position := a.portfolio.Position(order.InstrumentID)
	position.TotalOrders++

	if order.Side == SideSell {
		if order.Quantity > position.SellableQuantity() {
			order.Reject(fmt.Sprintf(
				"sell rejected: %s sellable quantity %d is less than order quantity %d (T+1 holding)",
				order.InstrumentID, position.SellableQuantity(), order.Quantity))
			position.TotalOrders--
			return
		}
		position.SellOrderQuantity += order.Quantity
		position.SellOrderValue = position.SellOrderValue.Add(order.FrozenPrice.Mul(decimal.NewFromInt(order.Quantity)))
		return
	}

	value := order.FrozenPrice.Mul(decimal.NewFromInt(order.Quantity))
	position.BuyOrderQuantity += order.Quantity
	position.BuyOrderValue = position.BuyOrderValue.Add(value)
	a.portfolio.FreezeCash(value)
}

// OnOrderCreationReject unwinds the order-pending-new bookkeeping when
// a downstream validator rejects the order before it becomes active.
func (a *StockAccount) OnOrderCreationReject(account Account, order *Order) {
	a.unwindOrder(account, order)
}

// OnOrderCancellationPass and OnOrderUnsolicitedUpdate both unwind the
// same bookkeeping a rejection would.
func (a *StockAccount) OnOrderCancellationPass(account Account, order *Order) {
	a.unwindOrder(account, order)
}

func (a *StockAccount) OnOrderUnsolicitedUpdate(account Account, order *Order) {
	a.unwindOrder(account, order)
}

func (a *StockAccount) unwindOrder(account Account, order *Order) {
	if !sameAccount(a, account) {
		return
	}
	position := a.portfolio.Position(order.InstrumentID)
	position.TotalOrders--
	rejectedQty := order.UnfilledQuantity()
	rejectedValue := order.FrozenPrice.Mul(decimal.NewFromInt(rejectedQty))

	if order.Side == SideBuy {
		position.BuyOrderQuantity -= rejectedQty
		position.BuyOrderValue = position.BuyOrderValue.Sub(rejectedValue)
		a.portfolio.FreezeCash(rejectedValue.Neg())
	} else {
		position.SellOrderQuantity -= rejectedQty
		position.SellOrderValue = position.SellOrderValue.Sub(rejectedValue)
	}
}

// OnTrade updates position/portfolio cash, average price, and T+1
// holding counters for a fill.
func (a *StockAccount) OnTrade(ctx TradingContext, account Account, order *Order, trade Trade) {
	if !sameAccount(a, account) {
		return
	}
	portfolio := a.portfolio
	position := portfolio.Position(order.InstrumentID)

	tradeQty := trade.Amount
	tradeValue := trade.Price.Mul(decimal.NewFromInt(tradeQty))
	frozenValue := order.FrozenPrice.Mul(decimal.NewFromInt(tradeQty))

	if order.Side == SideBuy {
		newQty := position.Quantity + tradeQty
		if newQty > 0 {
			position.AvgPrice = position.AvgPrice.Mul(decimal.NewFromInt(position.Quantity)).
				Add(decimal.NewFromInt(tradeQty).Mul(trade.Price)).
				Div(decimal.NewFromInt(newQty))
		}
		position.BuyOrderQuantity -= tradeQty
		position.BuyOrderValue = position.BuyOrderValue.Sub(frozenValue)
		position.BuyTradeQuantity += tradeQty
		position.BuyTradeValue = position.BuyTradeValue.Add(tradeValue)
		if !a.t1Exempt[order.InstrumentID] {
			position.BuyTodayHoldingQuantity += tradeQty
		}
	} else {
		position.SellOrderQuantity -= tradeQty
		position.SellOrderValue = position.SellOrderValue.Sub(frozenValue)
		position.SellTradeQuantity += tradeQty
		position.SellTradeValue = position.SellTradeValue.Add(tradeValue)
	}

	a.portfolio.FreezeCash(frozenValue.Neg())
	position.TransactionCost = position.TransactionCost.Add(trade.Commission).Add(trade.Tax)
	position.TotalCommission = position.TotalCommission.Add(trade.Commission)
	position.TotalTrades++

	portfolio.TotalTax = portfolio.TotalTax.Add(trade.Tax)
	portfolio.TotalCommission = portfolio.TotalCommission.Add(trade.Commission)
	portfolio.Cash = portfolio.Cash.Sub(trade.Tax).Sub(trade.Commission)
	if order.Side == SideBuy {
		portfolio.Cash = portfolio.Cash.Sub(tradeValue)
	} else {
		portfolio.Cash = portfolio.Cash.Add(tradeValue)
	}

	position.Quantity = position.BuyTradeQuantity - position.SellTradeQuantity
	if bar, ok := ctx.BarDict[order.InstrumentID]; ok && !bar.IsNaN {
		position.LastPrice = bar.Close
	} else {
		position.LastPrice = trade.Price
	}
}

// OnBar marks every held position to the bar's close.
func (a *StockAccount) OnBar(ctx TradingContext) {
	for id, position := range a.portfolio.Positions {
		bar, ok := ctx.BarDict[id]
		if !ok || bar.IsNaN {
			continue
		}
		position.LastPrice = bar.Close
	}
}

// BeforeTrading prunes flat positions and pays any dividend due today,
// then applies pending splits when configured to.
func (a *StockAccount) BeforeTrading(ctx TradingContext) {
	a.portfolio.PrunePositions()
	PayDividends(a.portfolio, ctx.TradingDt)
	if a.cfg.HandleSplit {
		a.applySplits(ctx)
	}
}

// AfterTrading resets the T+1 counter and sweeps any delisted position.
func (a *StockAccount) AfterTrading(ctx TradingContext) {
	for id, position := range a.portfolio.Positions {
		position.BuyTodayHoldingQuantity = 0

		inst, ok := ctx.DataProxy.Instrument(id)
		if !ok || !inst.IsDelisted(ctx.TradingDt) {
			continue
		}
		if a.cfg.CashReturnOnDelist {
			a.portfolio.Cash = a.portfolio.Cash.Add(position.MarketValue())
		}
		if position.Quantity != 0 {
			slog.Warn("position delisted, closing by system", "instrument", id, "quantity", position.Quantity)
		}
		delete(a.portfolio.Positions, id)
	}
}

// Settlement persists nothing by itself (the caller captures the daily
// value); it rolls yesterday's value forward and records any dividend
// that went ex today.
func (a *StockAccount) Settlement(ctx TradingContext) {
	a.portfolio.YesterdayPortfolioValue = a.portfolio.Value()
	a.recordExDividends(ctx)
}

func (a *StockAccount) applySplits(ctx TradingContext) {
	for id, position := range a.portfolio.Positions {
		from, to, ok := ctx.DataProxy.SplitByDate(id, ctx.TradingDt)
		if !ok {
			continue
		}
		position.ApplySplit(from, to)
	}
}

// Capture serializes the account's portfolio state.
func (a *StockAccount) Capture() ([]byte, error) { return a.portfolio.Capture() }

// Restore replaces the account's portfolio state.
func (a *StockAccount) Restore(data []byte) error { return a.portfolio.Restore(data) }

func (a *StockAccount) recordExDividends(ctx TradingContext) {
	for id, position := range a.portfolio.Positions {
		series, ok := ctx.DataProxy.DividendByBookDate(id, ctx.TradingDt)
		if !ok {
			continue
		}
		RecordExDividend(a.portfolio, id, position.Quantity, series)
	}
}

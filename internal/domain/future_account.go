package domain

import (
	"github.com/shopspring/decimal"
)

// FutureAccountConfig configures a FutureAccount's policy knobs.
//
// original_source has no equivalent of this file — futures support is
// not part of the system being distilled from. This implementation
// fills that gap with the contract FutureAccount is documented to
// have: margin debit on entry, mark-to-market against the bar close as
// settlement price, and close-today-first offsetting for the
// same-day open/close commission split.
type FutureAccountConfig struct {
	MarginRate decimal.Decimal
	Slippage   SlippageDecider
	Commission CommissionDecider
}

// FutureAccount implements the futures asset-class policy: margin
// accounting on a signed net position (positive quantity is long,
// negative is short) instead of the cash-settled, always-nonnegative
// holding StockAccount tracks.
type FutureAccount struct {
	portfolio   *Portfolio
	proxy       DataProxy
	cfg         FutureAccountConfig
	multipliers map[string]int64 // instrument ID -> contract multiplier, cached from the data proxy
}

// NewFutureAccount creates a future account with the given starting cash.
// proxy resolves each instrument's contract multiplier; it is consulted
// directly (not through a TradingContext) so margin can be computed
// correctly as soon as an order is submitted, before any trade exists.
func NewFutureAccount(startingCash decimal.Decimal, proxy DataProxy, cfg FutureAccountConfig) *FutureAccount {
	if cfg.MarginRate.IsZero() {
		cfg.MarginRate = decimal.NewFromFloat(0.1)
	}
	if cfg.Slippage == nil {
		cfg.Slippage = NoSlippage{}
	}
	if cfg.Commission == nil {
		cfg.Commission = RateCommission{Rate: decimal.NewFromFloat(0.0001), Min: decimal.NewFromInt(1)}
	}
	return &FutureAccount{
		portfolio:   NewPortfolio(startingCash),
		proxy:       proxy,
		cfg:         cfg,
		multipliers: make(map[string]int64),
	}
}

func (a *FutureAccount) Type() AccountType                    { return AccountFuture }
func (a *FutureAccount) Portfolio() *Portfolio                { return a.portfolio }
func (a *FutureAccount) SlippageDecider() SlippageDecider     { return a.cfg.Slippage }
func (a *FutureAccount) CommissionDecider() CommissionDecider { return a.cfg.Commission }
func (a *FutureAccount) TaxDecider() TaxDecider               { return NoTax{} }

// CloseTodayAmount reports how much of a prospective fill would close
// a position opened earlier in the same trading day, since exchanges
// commonly charge a different commission for same-day round trips.
// Only the portion of the fill that actually offsets the existing net
// position counts, capped at the lots opened today; a fill that only
// opens reports 0, and the part of a fill that flips past zero is not
// counted.
func (a *FutureAccount) CloseTodayAmount(instrumentID string, fill int64, side OrderSide) int64 {
	position, ok := a.portfolio.Positions[instrumentID]
	if !ok {
		return 0
	}
	opposing := (side == SideSell && position.Quantity > 0) || (side == SideBuy && position.Quantity < 0)
	if !opposing {
		return 0
	}
	closing := fill
	if avail := abs64(position.Quantity); closing > avail {
		closing = avail
	}
	if closing > position.OpenTodayAmount {
		return position.OpenTodayAmount
	}
	return closing
}

// OnOrderPendingNew reserves margin for the order at its frozen price,
// using the incremental-margin approximation: the full notional*rate
// is frozen regardless of whether the order will end up netting
// against an existing opposite-side position.
func (a *FutureAccount) OnOrderPendingNew(account Account, order *Order) {
	if !sameAccount(a, account) || order.IsFinal() {
		return
	}
	position := a.portfolio.Position(order.InstrumentID)
	position.TotalOrders++

	a.multiplier(order.InstrumentID)
	margin := a.marginRequirement(order.FrozenPrice, order.Quantity, order.InstrumentID)
	if order.Side == SideBuy {
		position.BuyOrderQuantity += order.Quantity
		position.BuyOrderValue = position.BuyOrderValue.Add(margin)
	} else {
		position.SellOrderQuantity += order.Quantity
		position.SellOrderValue = position.SellOrderValue.Add(margin)
	}
	a.portfolio.FreezeCash(margin)
}

func (a *FutureAccount) OnOrderCreationReject(account Account, order *Order) {
	a.unwindOrder(account, order)
}

func (a *FutureAccount) OnOrderCancellationPass(account Account, order *Order) {
	a.unwindOrder(account, order)
}

func (a *FutureAccount) OnOrderUnsolicitedUpdate(account Account, order *Order) {
	a.unwindOrder(account, order)
}

func (a *FutureAccount) unwindOrder(account Account, order *Order) {
	if !sameAccount(a, account) {
		return
	}
	position := a.portfolio.Position(order.InstrumentID)
	position.TotalOrders--
	rejectedQty := order.UnfilledQuantity()
	a.multiplier(order.InstrumentID)
	rejectedMargin := a.marginRequirement(order.FrozenPrice, rejectedQty, order.InstrumentID)

	if order.Side == SideBuy {
		position.BuyOrderQuantity -= rejectedQty
		position.BuyOrderValue = position.BuyOrderValue.Sub(rejectedMargin)
	} else {
		position.SellOrderQuantity -= rejectedQty
		position.SellOrderValue = position.SellOrderValue.Sub(rejectedMargin)
	}
	a.portfolio.FreezeCash(rejectedMargin.Neg())
}

// OnTrade nets the fill against the signed position, realizing P&L on
// the closing portion and re-basing the average price on the opening
// (or direction-flipping) portion, then re-marks the margin held
// against the resulting position to its current average price.
func (a *FutureAccount) OnTrade(ctx TradingContext, account Account, order *Order, trade Trade) {
	if !sameAccount(a, account) {
		return
	}
	portfolio := a.portfolio
	position := portfolio.Position(order.InstrumentID)
	multiplier := a.multiplier(order.InstrumentID)

	orderMargin := a.marginRequirement(order.FrozenPrice, trade.Amount, order.InstrumentID)
	portfolio.FreezeCash(orderMargin.Neg())
	if order.Side == SideBuy {
		position.BuyOrderQuantity -= trade.Amount
		position.BuyOrderValue = position.BuyOrderValue.Sub(orderMargin)
	} else {
		position.SellOrderQuantity -= trade.Amount
		position.SellOrderValue = position.SellOrderValue.Sub(orderMargin)
	}

	realizedPnL := applyFuturesFill(position, order.Side, trade.Price, trade.Amount)

	requiredMargin := decimal.NewFromInt(abs64(position.Quantity)).Mul(position.AvgPrice).
		Mul(decimal.NewFromInt(multiplier)).Mul(a.cfg.MarginRate)
	portfolio.Cash = portfolio.Cash.Sub(requiredMargin.Sub(position.Margin))
	position.Margin = requiredMargin

	position.TransactionCost = position.TransactionCost.Add(trade.Commission).Add(trade.Tax)
	position.TotalCommission = position.TotalCommission.Add(trade.Commission)
	position.TotalTrades++

	portfolio.TotalCommission = portfolio.TotalCommission.Add(trade.Commission)
	portfolio.Cash = portfolio.Cash.Add(realizedPnL.Mul(decimal.NewFromInt(multiplier))).Sub(trade.Commission)

	if bar, ok := ctx.BarDict[order.InstrumentID]; ok && !bar.IsNaN {
		position.LastPrice = bar.Close
	} else {
		position.LastPrice = trade.Price
	}
}

// OnBar marks every position to the bar's close, which doubles as the
// daily settlement price for the margin re-mark in Settlement.
func (a *FutureAccount) OnBar(ctx TradingContext) {
	for id, position := range a.portfolio.Positions {
		bar, ok := ctx.BarDict[id]
		if !ok || bar.IsNaN {
			continue
		}
		position.LastPrice = bar.Close
	}
}

func (a *FutureAccount) BeforeTrading(ctx TradingContext) {
	a.portfolio.YesterdayPortfolioValue = a.portfolio.Value()
}

// AfterTrading resets the same-day-open counter and sweeps any
// position left open past its instrument's delisting date.
func (a *FutureAccount) AfterTrading(ctx TradingContext) {
	for id, position := range a.portfolio.Positions {
		position.OpenTodayAmount = 0
		inst, ok := ctx.DataProxy.Instrument(id)
		if !ok || !inst.IsDelisted(ctx.TradingDt) {
			continue
		}
		if position.Quantity != 0 {
			a.portfolio.Cash = a.portfolio.Cash.Add(position.Margin)
		}
		delete(a.portfolio.Positions, id)
	}
}

// Settlement marks every position to its end-of-day settlement price
// (the bar close carried in LastPrice) by re-basing AvgPrice to it and
// re-computing the required margin, realizing the day's mark-to-market
// P&L in cash — the daily-settlement convention futures exchanges use
// in place of StockAccount's simple unrealized mark-to-market.
func (a *FutureAccount) Settlement(ctx TradingContext) {
	for id, position := range a.portfolio.Positions {
		if position.Quantity == 0 || position.LastPrice.IsZero() {
			continue
		}
		multiplier := a.multiplier(id)
		direction := decimal.NewFromInt(1)
		if position.Quantity < 0 {
			direction = decimal.NewFromInt(-1)
		}
		pnl := position.LastPrice.Sub(position.AvgPrice).Mul(direction).
			Mul(decimal.NewFromInt(abs64(position.Quantity))).Mul(decimal.NewFromInt(multiplier))
		a.portfolio.Cash = a.portfolio.Cash.Add(pnl)
		position.AvgPrice = position.LastPrice

		requiredMargin := decimal.NewFromInt(abs64(position.Quantity)).Mul(position.AvgPrice).
			Mul(decimal.NewFromInt(multiplier)).Mul(a.cfg.MarginRate)
		a.portfolio.Cash = a.portfolio.Cash.Sub(requiredMargin.Sub(position.Margin))
		position.Margin = requiredMargin
	}
	a.portfolio.YesterdayPortfolioValue = a.portfolio.Value()
}

// Capture serializes the account's portfolio state. The multiplier
// cache is not part of it — it's re-derived from the data proxy on
// demand and carries no state of its own.
func (a *FutureAccount) Capture() ([]byte, error) { return a.portfolio.Capture() }

// Restore replaces the account's portfolio state.
func (a *FutureAccount) Restore(data []byte) error { return a.portfolio.Restore(data) }

func (a *FutureAccount) multiplier(instrumentID string) int64 {
	if m, ok := a.multipliers[instrumentID]; ok {
		return m
	}
	m := int64(1)
	if a.proxy != nil {
		if inst, ok := a.proxy.Instrument(instrumentID); ok && inst.ContractMultiplier > 0 {
			m = inst.ContractMultiplier
		}
	}
	a.multipliers[instrumentID] = m
	return m
}

func (a *FutureAccount) marginRequirement(price decimal.Decimal, quantity int64, instrumentID string) decimal.Decimal {
	m, ok := a.multipliers[instrumentID]
	if !ok {
		m = 1
	}
	return price.Mul(decimal.NewFromInt(quantity)).Mul(decimal.NewFromInt(m)).Mul(a.cfg.MarginRate)
}

// applyFuturesFill nets a fill of the given side/price/amount against
// position's signed quantity, realizing P&L on the portion that closes
// existing exposure and re-basing AvgPrice on any portion that opens
// new exposure (including a direction flip past zero).
func applyFuturesFill(position *Position, side OrderSide, price decimal.Decimal, amount int64) decimal.Decimal {
	delta := amount
	if side == SideSell {
		delta = -amount
	}
	current := position.Quantity

	if current == 0 || sameSign(current, delta) {
		position.AvgPrice = weightedAvg(position.AvgPrice, abs64(current), price, amount)
		position.Quantity = current + delta
		position.OpenTodayAmount += amount
		if side == SideBuy {
			position.BuyTradeQuantity += amount
			position.BuyTradeValue = position.BuyTradeValue.Add(price.Mul(decimal.NewFromInt(amount)))
		} else {
			position.SellTradeQuantity += amount
			position.SellTradeValue = position.SellTradeValue.Add(price.Mul(decimal.NewFromInt(amount)))
		}
		return decimal.Zero
	}

	closingQty := amount
	if avail := abs64(current); closingQty > avail {
		closingQty = avail
	}
	direction := decimal.NewFromInt(1)
	if current < 0 {
		direction = decimal.NewFromInt(-1)
	}
	realizedPnL := price.Sub(position.AvgPrice).Mul(direction).Mul(decimal.NewFromInt(closingQty))

	todayClosed := closingQty
	if todayClosed > position.OpenTodayAmount {
		todayClosed = position.OpenTodayAmount
	}
	position.OpenTodayAmount -= todayClosed

	remaining := amount - closingQty
	if remaining > 0 {
		position.AvgPrice = price
		position.Quantity = sign64(delta) * remaining
		position.OpenTodayAmount += remaining
	} else {
		position.Quantity = current + sign64(delta)*closingQty
	}

	if side == SideBuy {
		position.BuyTradeQuantity += amount
		position.BuyTradeValue = position.BuyTradeValue.Add(price.Mul(decimal.NewFromInt(amount)))
	} else {
		position.SellTradeQuantity += amount
		position.SellTradeValue = position.SellTradeValue.Add(price.Mul(decimal.NewFromInt(amount)))
	}

	return realizedPnL
}

func weightedAvg(avgPrice decimal.Decimal, existingQty int64, price decimal.Decimal, addedQty int64) decimal.Decimal {
	if existingQty == 0 {
		return price
	}
	totalQty := existingQty + addedQty
	totalCost := avgPrice.Mul(decimal.NewFromInt(existingQty)).Add(price.Mul(decimal.NewFromInt(addedQty)))
	return totalCost.Div(decimal.NewFromInt(totalQty))
}

func abs64(n int64) int64 {
	if n < 0 {
		return -n
	}
	return n
}

func sign64(n int64) int64 {
	if n < 0 {
		return -1
	}
	return 1
}

func sameSign(a, b int64) bool {
	return (a >= 0) == (b >= 0)
}

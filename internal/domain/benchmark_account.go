package domain

import "github.com/shopspring/decimal"

const benchmarkCommissionRate = 0.0008

// BenchmarkAccount is a passive buy-and-hold account on a single
// instrument, used to compare a strategy's returns against the market.
type BenchmarkAccount struct {
	portfolio    *Portfolio
	instrumentID string
}

// NewBenchmarkAccount creates a benchmark account that will seed its
// single position on the first bar it observes.
func NewBenchmarkAccount(startingCash decimal.Decimal, instrumentID string) *BenchmarkAccount {
	return &BenchmarkAccount{
		portfolio:    NewPortfolio(startingCash),
		instrumentID: instrumentID,
	}
}

func (a *BenchmarkAccount) Type() AccountType                               { return AccountBenchmark }
func (a *BenchmarkAccount) Portfolio() *Portfolio                           { return a.portfolio }
func (a *BenchmarkAccount) SlippageDecider() SlippageDecider                { return NoSlippage{} }
func (a *BenchmarkAccount) CommissionDecider() CommissionDecider           { return RateCommission{} }
func (a *BenchmarkAccount) TaxDecider() TaxDecider                          { return NoTax{} }
func (a *BenchmarkAccount) CloseTodayAmount(string, int64, OrderSide) int64 { return 0 }

// A benchmark account never receives orders, so these event handlers
// are no-ops; it exists purely to revalue a buy-and-hold position.
func (a *BenchmarkAccount) OnOrderPendingNew(Account, *Order)              {}
func (a *BenchmarkAccount) OnOrderCreationReject(Account, *Order)          {}
func (a *BenchmarkAccount) OnOrderCancellationPass(Account, *Order)        {}
func (a *BenchmarkAccount) OnOrderUnsolicitedUpdate(Account, *Order)       {}
func (a *BenchmarkAccount) OnTrade(TradingContext, Account, *Order, Trade) {}

// OnBar seeds the position with the whole starting cash on the first
// bar with zero market value, then marks it to market every bar after.
func (a *BenchmarkAccount) OnBar(ctx TradingContext) {
	bar, ok := ctx.BarDict[a.instrumentID]
	if !ok || bar.IsNaN {
		return
	}
	position := a.portfolio.Position(a.instrumentID)

	if a.portfolio.MarketValue().IsZero() {
		quantity := a.portfolio.Cash.Div(bar.Close).Truncate(0).IntPart()
		if quantity <= 0 {
			return
		}
		notional := decimal.NewFromInt(quantity).Mul(bar.Close)
		commission := notional.Mul(decimal.NewFromFloat(benchmarkCommissionRate))

		position.TotalCommission = commission
		position.BuyTradeQuantity = quantity
		position.BuyTradeValue = notional
		position.Quantity = quantity
		position.LastPrice = bar.Close

		a.portfolio.Cash = a.portfolio.Cash.Sub(notional).Sub(commission)
		a.portfolio.TotalCommission = a.portfolio.TotalCommission.Add(commission)
	} else {
		position.LastPrice = bar.Close
	}
}

// BeforeTrading rolls yesterday's value forward and pays any dividend
// due today, the same two-phase pattern StockAccount follows.
func (a *BenchmarkAccount) BeforeTrading(ctx TradingContext) {
	a.portfolio.YesterdayPortfolioValue = a.portfolio.Value()
	PayDividends(a.portfolio, ctx.TradingDt)
}

// AfterTrading records any dividend that went ex today.
func (a *BenchmarkAccount) AfterTrading(ctx TradingContext) {
	position, ok := a.portfolio.Positions[a.instrumentID]
	if !ok {
		return
	}
	series, ok := ctx.DataProxy.DividendByBookDate(a.instrumentID, ctx.TradingDt)
	if !ok {
		return
	}
	RecordExDividend(a.portfolio, a.instrumentID, position.Quantity, series)
}

func (a *BenchmarkAccount) Settlement(TradingContext) {}

// Capture serializes the account's portfolio state.
func (a *BenchmarkAccount) Capture() ([]byte, error) { return a.portfolio.Capture() }

// Restore replaces the account's portfolio state.
func (a *BenchmarkAccount) Restore(data []byte) error { return a.portfolio.Restore(data) }

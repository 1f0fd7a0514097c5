package domain

import "time"

// AccountType is the closed set of account variants.
type AccountType string

const (
	AccountStock     AccountType = "STOCK"
	AccountFuture    AccountType = "FUTURE"
	AccountBenchmark AccountType = "BENCHMARK"
)

// DataProxy is the market/reference-data collaborator an account
// consults for corporate actions. Implemented by an adapter outside
// this core; a strategy's DataProxy is out of scope here (spec §6).
type DataProxy interface {
	Instrument(instrumentID string) (Instrument, bool)
	DividendByBookDate(instrumentID string, tradingDate time.Time) (DividendSeries, bool)
	SplitByDate(instrumentID string, tradingDate time.Time) (splitFrom, splitTo int64, ok bool)
}

// TradingContext is the explicit handle passed into every account
// lifecycle callback, replacing the source's ambient
// Environment/ExecutionContext singleton (see design notes: cyclic
// references redesign).
type TradingContext struct {
	TradingDt  time.Time
	CalendarDt time.Time
	BarDict    map[string]Bar
	DataProxy  DataProxy
}

// Account owns one Portfolio and implements the asset-class policy for
// its variant (stock, future, benchmark). Every method is a listener
// callback on the event bus; implementations must filter to their own
// account identity since the bus broadcasts to every registered
// listener regardless of which account an event's payload names.
type Account interface {
	Type() AccountType
	Portfolio() *Portfolio

	SlippageDecider() SlippageDecider
	CommissionDecider() CommissionDecider
	TaxDecider() TaxDecider

	// CloseTodayAmount tells the matcher how much of a fill should be
	// booked as closing a same-day position (futures only; always 0
	// for stock/benchmark).
	CloseTodayAmount(instrumentID string, fill int64, side OrderSide) int64

	OnOrderPendingNew(account Account, order *Order)
	OnOrderCreationReject(account Account, order *Order)
	OnOrderCancellationPass(account Account, order *Order)
	OnOrderUnsolicitedUpdate(account Account, order *Order)
	OnTrade(ctx TradingContext, account Account, order *Order, trade Trade)

	OnBar(ctx TradingContext)
	BeforeTrading(ctx TradingContext)
	AfterTrading(ctx TradingContext)
	Settlement(ctx TradingContext)

	// Capture serializes the account's full state (portfolio, positions,
	// pending dividends) to an opaque byte string. Restore replaces the
	// account's current state with what a prior Capture produced; the
	// pair round-trips losslessly.
	Capture() ([]byte, error)
	Restore(data []byte) error
}

// sameAccount is the pointer-identity filter every handler applies,
// since the bus delivers order/trade events to every registered
// account listener rather than only the owning one.
func sameAccount(a, b Account) bool {
	return a == b
}

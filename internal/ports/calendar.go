package ports

import "time"

// Calendar is the trading-day source the driver iterates over. An
// adapter outside this core is expected to back it with an exchange's
// real holiday schedule; the simulation itself only needs the ordered
// sequence of days to run.
type Calendar interface {
	// TradingDates returns every trading day in [from, to], inclusive,
	// in ascending order.
	TradingDates(from, to time.Time) []time.Time
}

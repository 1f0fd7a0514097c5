// Package simulation is the event-driven backtest core: the matching
// engine, the broker that owns order queues, and the driver that walks
// the calendar and fans bars out to both.
package simulation

import (
	"time"

	"github.com/alejandrodnm/backtrader/internal/domain"
	"github.com/alejandrodnm/backtrader/internal/eventbus"
)

// Context is the explicit handle shared by the broker, matcher, and
// driver for the trading day currently in progress. It replaces the
// ambient Environment singleton the core was originally built around:
// every collaborator that needs "what day is it, what's the current
// bar, who do I publish to" takes one of these instead of reaching for
// global state.
type Context struct {
	Bus       *eventbus.Bus
	DataProxy domain.DataProxy

	CalendarDt time.Time
	TradingDt  time.Time
	BarDict    map[string]domain.Bar
}

// TradingContext narrows Context down to the view an Account callback
// expects.
func (c Context) TradingContext() domain.TradingContext {
	return domain.TradingContext{
		TradingDt:  c.TradingDt,
		CalendarDt: c.CalendarDt,
		BarDict:    c.BarDict,
		DataProxy:  c.DataProxy,
	}
}

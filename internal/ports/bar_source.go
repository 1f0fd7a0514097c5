package ports

import (
	"time"

	"github.com/alejandrodnm/backtrader/internal/domain"
)

// BarTick is one bar (or tick) timestamp's snapshot across every
// instrument trading that moment.
type BarTick struct {
	CalendarDt time.Time
	BarDict    map[string]domain.Bar
}

// BarSource feeds the driver the ordered bar/tick timestamps for a
// trading day. A daily-frequency run returns exactly one BarTick per
// day; intraday frequencies return one per bar interval.
type BarSource interface {
	BarsForDay(tradingDate time.Time) ([]BarTick, error)
}

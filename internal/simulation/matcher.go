package simulation

import (
	"fmt"
	"sync"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"

	"github.com/alejandrodnm/backtrader/internal/domain"
	"github.com/alejandrodnm/backtrader/internal/eventbus"
)

// DealPriceDecider picks the price a bar settles matching at — the
// current bar's close for same-day matching, or the next bar's open
// for next-bar matching.
type DealPriceDecider func(domain.Bar) decimal.Decimal

// OpenOrder pairs an order with the account that owns it, as carried
// in the broker's open/delayed queues.
type OpenOrder struct {
	Account domain.Account
	Order   *domain.Order
}

// Matcher turns a bar and a set of open orders into trades, one
// instrument at a time. It holds no account or portfolio state itself
// — every side effect of a fill happens in the account's OnTrade
// handler, invoked through the bus.
type Matcher struct {
	dealPrice     DealPriceDecider
	barLimit      bool
	volumePercent decimal.Decimal
	turnover      map[string]int64
	mu            sync.Mutex // guards turnover across Match's per-instrument goroutines
}

const defaultVolumePercent = "0.25"

// NewMatcher builds a matcher. volumePercent is the share of a bar's
// volume any one instrument may fill across all orders that bar; zero
// defaults to 0.25, matching the historical default.
func NewMatcher(dealPrice DealPriceDecider, barLimit bool, volumePercent decimal.Decimal) *Matcher {
	if volumePercent.IsZero() {
		volumePercent, _ = decimal.NewFromString(defaultVolumePercent)
	}
	return &Matcher{
		dealPrice:     dealPrice,
		barLimit:      barLimit,
		volumePercent: volumePercent,
		turnover:      make(map[string]int64),
	}
}

// Reset clears the per-bar turnover ledger; Broker.Bar calls this once
// per bar before Match.
func (m *Matcher) Reset() {
	m.turnover = make(map[string]int64)
}

// pendingTrade is a fill computed for an order, staged for commit once
// every instrument's group has finished matching.
type pendingTrade struct {
	account domain.Account
	order   *domain.Order
	trade   domain.Trade
}

// Match walks every open order against the bar data in ctx.BarDict,
// grouped by instrument so that each instrument's orders are matched
// against the same, monotonically-updated turnover counter, and
// different instruments' groups run concurrently — matching one
// instrument never waits on another's bar lookup or slippage/
// commission computation.
//
// Trades are computed inside the concurrent phase but published after
// every group has finished, grouped by instrument (instruments in the
// order they first appear in the queue, each group's trades in queue
// order), so that account
// mutation (via OnTrade) stays single-threaded regardless of how many
// instrument groups ran in parallel.
func (m *Matcher) Match(ctx Context, openOrders []OpenOrder) {
	groups := make(map[string][]OpenOrder)
	var order []string
	for _, oo := range openOrders {
		id := oo.Order.InstrumentID
		if _, ok := groups[id]; !ok {
			order = append(order, id)
		}
		groups[id] = append(groups[id], oo)
	}

	results := make([][]pendingTrade, len(order))

	var g errgroup.Group
	for i, instrumentID := range order {
		i, instrumentID := i, instrumentID
		g.Go(func() error {
			results[i] = m.matchInstrument(ctx, instrumentID, groups[instrumentID])
			return nil
		})
	}
	_ = g.Wait() // matchInstrument never returns an error; rejections are order-state transitions, not failures

	tc := ctx.TradingContext()
	for _, group := range results {
		for _, pt := range group {
			ctx.Bus.Publish(eventbus.EventTrade, pt.account, pt.order, pt.trade, tc)
		}
	}
}

// matchInstrument matches every order queued against one instrument's
// bar, sequentially, since each fill consumes volume the next order in
// the same bar must respect.
func (m *Matcher) matchInstrument(ctx Context, instrumentID string, openOrders []OpenOrder) []pendingTrade {
	bar, haveBar := ctx.BarDict[instrumentID]
	var pending []pendingTrade

	m.mu.Lock()
	turnover := m.turnover[instrumentID]
	m.mu.Unlock()
	defer func() {
		m.mu.Lock()
		m.turnover[instrumentID] = turnover
		m.mu.Unlock()
	}()

	for _, oo := range openOrders {
		account, order := oo.Account, oo.Order

		if !haveBar || bar.Status == domain.BarError {
			order.Reject(rejectMissingBar(order, bar, haveBar))
			continue
		}

		dealPrice := m.dealPrice(bar)

		if order.Type == domain.OrderLimit {
			if order.Price.GreaterThan(bar.LimitUp) {
				order.Reject(fmt.Sprintf("limit order price %s is higher than limit up %s", order.Price, bar.LimitUp))
				continue
			}
			if order.Price.LessThan(bar.LimitDown) {
				order.Reject(fmt.Sprintf("limit order price %s is lower than limit down %s", order.Price, bar.LimitDown))
				continue
			}
			if order.Side == domain.SideBuy && order.Price.LessThan(dealPrice) {
				continue
			}
			if order.Side == domain.SideSell && order.Price.GreaterThan(dealPrice) {
				continue
			}
		} else {
			if m.barLimit && order.Side == domain.SideBuy && bar.Status == domain.BarLimitUp {
				order.Reject(fmt.Sprintf("market order %s cannot be filled: reached limit up", instrumentID))
				continue
			}
			if m.barLimit && order.Side == domain.SideSell && bar.Status == domain.BarLimitDown {
				order.Reject(fmt.Sprintf("market order %s cannot be filled: reached limit down", instrumentID))
				continue
			}
		}

		if m.barLimit {
			if order.Side == domain.SideBuy && bar.Status == domain.BarLimitUp {
				continue
			}
			if order.Side == domain.SideSell && bar.Status == domain.BarLimitDown {
				continue
			}
		}

		roundLot := bar.Instrument.RoundLot
		if roundLot <= 0 {
			roundLot = 1
		}
		volumeLimit := decimal.NewFromInt(bar.Volume).Mul(m.volumePercent).Round(0).IntPart() - turnover
		volumeLimit = (volumeLimit / roundLot) * roundLot
		if volumeLimit <= 0 {
			if order.Type == domain.OrderMarket {
				order.Cancel(fmt.Sprintf("market order %s cancelled: volume limit exhausted for this bar", instrumentID))
			}
			continue
		}

		unfilled := order.UnfilledQuantity()
		fill := unfilled
		if volumeLimit < fill {
			fill = volumeLimit
		}

		closeTodayAmount := account.CloseTodayAmount(instrumentID, fill, order.Side)
		price := account.SlippageDecider().GetTradePrice(order, dealPrice)

		trade := domain.Trade{
			ExecID:           uuid.NewString(),
			OrderRef:         order,
			Price:            price,
			Amount:           fill,
			CalendarDt:       ctx.CalendarDt,
			TradingDt:        ctx.TradingDt,
			CloseTodayAmount: closeTodayAmount,
		}
		trade.Commission = account.CommissionDecider().GetCommission(trade)
		trade.Tax = account.TaxDecider().GetTax(trade)

		order.Fill(fill)
		turnover += fill

		pending = append(pending, pendingTrade{account: account, order: order, trade: trade})

		if order.Type == domain.OrderMarket && order.UnfilledQuantity() != 0 {
			order.Cancel(fmt.Sprintf(
				"market order %s quantity %d exceeds %s of bar volume, filled %d",
				instrumentID, order.Quantity, m.volumePercent, order.FilledQuantity,
			))
		}
	}

	return pending
}

func rejectMissingBar(order *domain.Order, bar domain.Bar, haveBar bool) string {
	if haveBar && bar.Instrument.ListedToday(order.CreationTime) {
		return fmt.Sprintf("order rejected: %s cannot be traded on its listing date", order.InstrumentID)
	}
	return fmt.Sprintf("order rejected: bar data missing for %s", order.InstrumentID)
}

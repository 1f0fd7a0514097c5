package simulation

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/alejandrodnm/backtrader/internal/domain"
	"github.com/alejandrodnm/backtrader/internal/eventbus"
)

func testBroker(bus *eventbus.Bus, account domain.Account, matchImmediately, dailyFrequency bool) *Broker {
	matcher := NewMatcher(domain.CurrentBarClose, false, d("0.25"))
	resolve := func(string) (domain.Account, error) { return account, nil }
	return NewBroker(bus, matcher, resolve, matchImmediately, dailyFrequency)
}

func TestBroker_SubmitOrder_DailyFrequencyDefersToNextBar(t *testing.T) {
	bus := eventbus.New()
	account := domain.NewStockAccount(d("100000"), domain.StockAccountConfig{})
	broker := testBroker(bus, account, false, true)

	order := domain.NewOrder("o1", "000001.XSHE", domain.SideBuy, domain.OrderLimit, d("10"), 100, time.Now())
	err := broker.SubmitOrder(testContext(nil), order)

	assert.NoError(t, err)
	assert.Len(t, broker.DelayedOrders(), 1)
	assert.Len(t, broker.OpenOrders(), 0)
	assert.Equal(t, domain.OrderPendingNew, order.Status) // not yet activated
}

func TestBroker_SubmitOrder_MatchImmediatelyFillsSameBar(t *testing.T) {
	bus := eventbus.New()
	account := domain.NewStockAccount(d("100000"), domain.StockAccountConfig{})
	bus.Subscribe(eventbus.EventOrderPendingNew, func(args ...any) {
		account.OnOrderPendingNew(args[0].(domain.Account), args[1].(*domain.Order))
	})
	bus.Subscribe(eventbus.EventTrade, func(args ...any) {
		account.OnTrade(domain.TradingContext{}, args[0].(domain.Account), args[1].(*domain.Order), args[2].(domain.Trade))
	})
	broker := testBroker(bus, account, true, false)

	bar := testBar("000001.XSHE")
	ctx := Context{Bus: bus, TradingDt: time.Now(), CalendarDt: time.Now(), BarDict: map[string]domain.Bar{"000001.XSHE": bar}}
	order := domain.NewOrder("o1", "000001.XSHE", domain.SideBuy, domain.OrderLimit, d("10"), 100, time.Now())

	err := broker.SubmitOrder(ctx, order)

	assert.NoError(t, err)
	assert.Equal(t, domain.OrderFilled, order.Status)
	assert.Len(t, broker.OpenOrders(), 0)
}

func TestBroker_CancelOrder_RemovesFromOpenQueue(t *testing.T) {
	bus := eventbus.New()
	account := domain.NewStockAccount(d("100000"), domain.StockAccountConfig{})
	broker := testBroker(bus, account, false, false)

	order := domain.NewOrder("o1", "000001.XSHE", domain.SideBuy, domain.OrderLimit, d("10"), 100, time.Now())
	assert.NoError(t, broker.SubmitOrder(testContext(nil), order))
	assert.Len(t, broker.OpenOrders(), 1)

	assert.NoError(t, broker.CancelOrder("o1"))

	assert.Len(t, broker.OpenOrders(), 0)
	assert.Equal(t, domain.OrderCancelled, order.Status)
}

func TestBroker_CancelOrder_UnknownIDReturnsError(t *testing.T) {
	bus := eventbus.New()
	account := domain.NewStockAccount(d("100000"), domain.StockAccountConfig{})
	broker := testBroker(bus, account, false, false)

	assert.Error(t, broker.CancelOrder("no-such-order"))
}

// A daily-frequency order submitted today sits in the delayed queue
// until the close rolls it into tomorrow's open queue, where the next
// BEFORE_TRADING activates it for matching.
func TestBroker_BeforeTrading_ActivatesOrdersRolledOverFromYesterday(t *testing.T) {
	bus := eventbus.New()
	account := domain.NewStockAccount(d("100000"), domain.StockAccountConfig{})
	broker := testBroker(bus, account, false, true)

	order := domain.NewOrder("o1", "000001.XSHE", domain.SideBuy, domain.OrderLimit, d("10"), 100, time.Now())
	assert.NoError(t, broker.SubmitOrder(testContext(nil), order))
	assert.Len(t, broker.DelayedOrders(), 1)

	bus.Publish(eventbus.EventAfterTrading) // rolls delayed -> open for tomorrow
	assert.Len(t, broker.OpenOrders(), 1)

	bus.Publish(eventbus.EventBeforeTrading)

	assert.Equal(t, domain.OrderActive, order.Status)
}

func TestBroker_AfterTrading_RejectsUnfilledOpenOrders(t *testing.T) {
	bus := eventbus.New()
	account := domain.NewStockAccount(d("100000"), domain.StockAccountConfig{})
	broker := testBroker(bus, account, false, false)

	order := domain.NewOrder("o1", "000001.XSHE", domain.SideBuy, domain.OrderLimit, d("5"), 100, time.Now())
	assert.NoError(t, broker.SubmitOrder(testContext(nil), order))
	assert.Len(t, broker.OpenOrders(), 1)

	bus.Publish(eventbus.EventAfterTrading)

	assert.Equal(t, domain.OrderRejected, order.Status)
	assert.Len(t, broker.OpenOrders(), 0)
}

func TestBroker_Bar_RollsFinalOrdersOutOfOpenQueue(t *testing.T) {
	bus := eventbus.New()
	account := domain.NewStockAccount(d("100000"), domain.StockAccountConfig{})
	broker := testBroker(bus, account, false, false)

	order := domain.NewOrder("o1", "000001.XSHE", domain.SideBuy, domain.OrderLimit, d("10"), 100, time.Now())
	assert.NoError(t, broker.SubmitOrder(testContext(nil), order))

	bar := testBar("000001.XSHE")
	ctx := Context{Bus: bus, TradingDt: time.Now(), CalendarDt: time.Now(), BarDict: map[string]domain.Bar{"000001.XSHE": bar}}
	broker.Bar(ctx)

	assert.Equal(t, domain.OrderFilled, order.Status)
	assert.Len(t, broker.OpenOrders(), 0)
}

func TestBroker_CaptureRestore_RoundTripsDelayedOrderSet(t *testing.T) {
	bus := eventbus.New()
	account := domain.NewStockAccount(d("100000"), domain.StockAccountConfig{})
	broker := testBroker(bus, account, false, true) // daily frequency defers to delayedOrders

	delayed := domain.NewOrder("o1", "000001.XSHE", domain.SideBuy, domain.OrderLimit, d("10"), 100, time.Now())
	assert.NoError(t, broker.SubmitOrder(testContext(nil), delayed))
	assert.Len(t, broker.DelayedOrders(), 1)

	data, err := broker.Capture()
	assert.NoError(t, err)

	restored := testBroker(bus, account, false, true)
	candidates := []OpenOrder{{Account: account, Order: delayed}}
	assert.NoError(t, restored.Restore(data, candidates))

	assert.Len(t, restored.DelayedOrders(), 1)
	assert.Len(t, restored.OpenOrders(), 0)
	assert.Equal(t, "o1", restored.DelayedOrders()[0].Order.ID)

	again, err := restored.Capture()
	assert.NoError(t, err)
	assert.Equal(t, data, again)
}

func TestBroker_Restore_PartitionsNonDelayedCandidatesIntoOpenQueue(t *testing.T) {
	bus := eventbus.New()
	account := domain.NewStockAccount(d("100000"), domain.StockAccountConfig{})
	broker := testBroker(bus, account, false, false)

	open := domain.NewOrder("o1", "000001.XSHE", domain.SideBuy, domain.OrderLimit, d("10"), 100, time.Now())
	open.Activate()
	final := domain.NewOrder("o2", "000001.XSHE", domain.SideBuy, domain.OrderLimit, d("10"), 100, time.Now())
	final.Fill(100) // terminal: must be dropped from the restored queues

	data, err := broker.Capture() // nothing delayed
	assert.NoError(t, err)

	candidates := []OpenOrder{{Account: account, Order: open}, {Account: account, Order: final}}
	assert.NoError(t, broker.Restore(data, candidates))

	assert.Len(t, broker.OpenOrders(), 1)
	assert.Equal(t, "o1", broker.OpenOrders()[0].Order.ID)
	assert.Len(t, broker.DelayedOrders(), 0)
}

package simulation

import (
	"encoding/json"
	"fmt"

	"github.com/alejandrodnm/backtrader/internal/domain"
	"github.com/alejandrodnm/backtrader/internal/eventbus"
)

// AccountResolver maps an order's instrument to the account that owns
// it. The driver builds one from whatever account set a run was
// configured with (stock, future, benchmark never trades directly).
type AccountResolver func(instrumentID string) (domain.Account, error)

// Broker owns the open and delayed order queues and drives them
// through the matcher on each bar. It subscribes itself to the bus for
// the day boundaries at construction; the driver calls Bar directly for
// each bar, and a strategy's only contact with it is through the
// OrderSubmitter interface submit_order/cancel_order expose.
type Broker struct {
	bus              *eventbus.Bus
	matcher          *Matcher
	resolveAccount   AccountResolver
	matchImmediately bool
	dailyFrequency   bool

	openOrders    []OpenOrder
	delayedOrders []OpenOrder
}

// NewBroker builds a broker subscribed to BEFORE_TRADING and
// AFTER_TRADING, wired to matcher for fills and resolveAccount to
// route incoming orders. It does not subscribe to BAR or TICK.
func NewBroker(bus *eventbus.Bus, matcher *Matcher, resolveAccount AccountResolver, matchImmediately, dailyFrequency bool) *Broker {
	b := &Broker{
		bus:              bus,
		matcher:          matcher,
		resolveAccount:   resolveAccount,
		matchImmediately: matchImmediately,
		dailyFrequency:   dailyFrequency,
	}
	bus.Subscribe(eventbus.EventBeforeTrading, func(args ...any) { b.beforeTrading() })
	bus.Subscribe(eventbus.EventAfterTrading, func(args ...any) { b.afterTrading() })
	return b
}

// SubmitOrder routes order to its account, freezes the cash/margin it
// needs via ORDER_PENDING_NEW, and either activates it for matching
// this bar or defers it to the next one.
func (b *Broker) SubmitOrder(ctx Context, order *domain.Order) error {
	account, err := b.resolveAccount(order.InstrumentID)
	if err != nil {
		return err
	}

	b.bus.Publish(eventbus.EventOrderPendingNew, account, order)
	if order.IsFinal() {
		return nil
	}

	if b.dailyFrequency && !b.matchImmediately {
		b.delayedOrders = append(b.delayedOrders, OpenOrder{Account: account, Order: order})
		return nil
	}

	b.openOrders = append(b.openOrders, OpenOrder{Account: account, Order: order})
	order.Activate()
	b.bus.Publish(eventbus.EventOrderCreationPass, account, order)
	if b.matchImmediately {
		b.match(ctx)
	}
	return nil
}

// CancelOrder moves order to the terminal cancelled state and drops
// it from whichever queue currently holds it.
func (b *Broker) CancelOrder(orderID string) error {
	idx, queue := b.findOrder(orderID)
	if queue == nil {
		return fmt.Errorf("simulation: order %s not found in any open queue", orderID)
	}
	oo := (*queue)[idx]

	b.bus.Publish(eventbus.EventOrderPendingCancel, oo.Account, oo.Order)
	oo.Order.Cancel(fmt.Sprintf("%s order has been cancelled by user", orderID))
	b.bus.Publish(eventbus.EventOrderCancellationPass, oo.Account, oo.Order)

	*queue = append((*queue)[:idx], (*queue)[idx+1:]...)
	return nil
}

func (b *Broker) findOrder(orderID string) (int, *[]OpenOrder) {
	for i, oo := range b.openOrders {
		if oo.Order.ID == orderID {
			return i, &b.openOrders
		}
	}
	for i, oo := range b.delayedOrders {
		if oo.Order.ID == orderID {
			return i, &b.delayedOrders
		}
	}
	return 0, nil
}

// beforeTrading activates every order that was deferred yesterday (a
// daily-frequency, next-bar-open run's freshly submitted orders) so
// they become matchable on today's first bar.
func (b *Broker) beforeTrading() {
	for _, oo := range b.openOrders {
		oo.Order.Activate()
		b.bus.Publish(eventbus.EventOrderCreationPass, oo.Account, oo.Order)
	}
}

// afterTrading rejects every order still open at the close — the
// market closed before it could fill — then rolls the delayed queue
// into tomorrow's open queue.
func (b *Broker) afterTrading() {
	for _, oo := range b.openOrders {
		oo.Order.Reject(fmt.Sprintf("order rejected: %s did not match before the market closed", oo.Order.InstrumentID))
		b.bus.Publish(eventbus.EventOrderUnsolicitedUpdate, oo.Account, oo.Order)
	}
	b.openOrders = b.delayedOrders
	b.delayedOrders = nil
}

// Bar refreshes the matcher's per-bar state and runs a matching pass
// over the current open queue. The driver calls this once per bar,
// after publishing BAR so strategy handlers have already had a chance
// to submit orders against it.
func (b *Broker) Bar(ctx Context) {
	b.matcher.Reset()
	b.match(ctx)
}

func (b *Broker) match(ctx Context) {
	b.matcher.Match(ctx, b.openOrders)

	var final []OpenOrder
	var remaining []OpenOrder
	for _, oo := range b.openOrders {
		if oo.Order.IsFinal() {
			final = append(final, oo)
		} else {
			remaining = append(remaining, oo)
		}
	}
	b.openOrders = remaining

	for _, oo := range final {
		if oo.Order.Status == domain.OrderRejected || oo.Order.Status == domain.OrderCancelled {
			b.bus.Publish(eventbus.EventOrderUnsolicitedUpdate, oo.Account, oo.Order)
		}
	}
}

// OpenOrders returns the broker's currently-open queue, primarily for
// persistence (capturing in-flight state across a resumed run).
func (b *Broker) OpenOrders() []OpenOrder { return b.openOrders }

// DelayedOrders returns the broker's deferred-to-next-bar queue.
func (b *Broker) DelayedOrders() []OpenOrder { return b.delayedOrders }

// Capture serializes the broker's full persisted state: the set of
// order ids currently deferred to the next bar. The open queue is not
// part of the payload — it is reconstructed on Restore from whatever
// non-terminal orders the caller already has on hand.
func (b *Broker) Capture() ([]byte, error) {
	ids := make([]string, 0, len(b.delayedOrders))
	for _, oo := range b.delayedOrders {
		ids = append(ids, oo.Order.ID)
	}
	data, err := json.Marshal(ids)
	if err != nil {
		return nil, fmt.Errorf("simulation: capture broker: %w", err)
	}
	return data, nil
}

// Restore reconstructs the open and delayed queues from candidates —
// every non-terminal order a prior run left outstanding, already
// paired with the account that owns it — by partitioning them on
// whether their id was in the captured delayed-order set.
func (b *Broker) Restore(data []byte, candidates []OpenOrder) error {
	var delayedIDs []string
	if err := json.Unmarshal(data, &delayedIDs); err != nil {
		return fmt.Errorf("simulation: restore broker: %w", err)
	}
	delayed := make(map[string]bool, len(delayedIDs))
	for _, id := range delayedIDs {
		delayed[id] = true
	}

	b.openOrders = nil
	b.delayedOrders = nil
	for _, oo := range candidates {
		if oo.Order.IsFinal() {
			continue
		}
		if delayed[oo.Order.ID] {
			b.delayedOrders = append(b.delayedOrders, oo)
		} else {
			b.openOrders = append(b.openOrders, oo)
		}
	}
	return nil
}

// Package eventbus is the synchronous publish/subscribe dispatcher that
// wires the simulation driver, broker, and accounts together without
// those packages importing one another directly.
package eventbus

import "sync"

// Event is the closed set of lifecycle events the simulation core
// publishes. Handlers are invoked in the order they were registered,
// and a publish re-entered from within a handler (an account reacting
// to TRADE by submitting a new order) is dispatched inline before
// control returns to the original publish call.
type Event string

const (
	EventBeforeTrading           Event = "BEFORE_TRADING"
	EventBar                     Event = "BAR"
	EventTick                    Event = "TICK"
	EventAfterTrading            Event = "AFTER_TRADING"
	EventSettlement              Event = "SETTLEMENT"
	EventOrderPendingNew         Event = "ORDER_PENDING_NEW"
	EventOrderCreationPass       Event = "ORDER_CREATION_PASS"
	EventOrderCreationReject     Event = "ORDER_CREATION_REJECT"
	EventOrderPendingCancel      Event = "ORDER_PENDING_CANCEL"
	EventOrderCancellationPass   Event = "ORDER_CANCELLATION_PASS"
	EventOrderCancellationReject Event = "ORDER_CANCELLATION_REJECT"
	EventOrderUnsolicitedUpdate  Event = "ORDER_UNSOLICITED_UPDATE"
	EventTrade                   Event = "TRADE"
)

// Handler receives whatever payload the publisher passed for this
// event; handlers type-assert the arguments they expect.
type Handler func(args ...any)

// Bus is a registration-order, synchronous event dispatcher. The mutex
// guards only the handler registry; handlers run without it held, so
// the bus does not serialize publishes made from different goroutines.
// TRADE events stay serialized because the matcher publishes them from
// the calling goroutine after its per-instrument fan-out has finished.
type Bus struct {
	mu       sync.Mutex
	handlers map[Event][]Handler
}

// New creates an empty bus.
func New() *Bus {
	return &Bus{handlers: make(map[Event][]Handler)}
}

// Subscribe registers handler to run, in order, whenever event is published.
func (b *Bus) Subscribe(event Event, handler Handler) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.handlers[event] = append(b.handlers[event], handler)
}

// Publish invokes every handler registered for event, in registration
// order, passing args through unchanged. The handler slice is copied
// out under the lock and then run with the lock released, so a
// handler calling Publish itself (an account reacting to a fill by
// submitting a new order) re-enters safely instead of deadlocking.
func (b *Bus) Publish(event Event, args ...any) {
	b.mu.Lock()
	handlers := append([]Handler(nil), b.handlers[event]...)
	b.mu.Unlock()

	for _, h := range handlers {
		h(args...)
	}
}

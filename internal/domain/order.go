package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// OrderSide is buy or sell.
type OrderSide string

const (
	SideBuy  OrderSide = "BUY"
	SideSell OrderSide = "SELL"
)

// OrderType is market or limit.
type OrderType string

const (
	OrderMarket OrderType = "MARKET"
	OrderLimit  OrderType = "LIMIT"
)

// OrderStatus is the order's position in its lifecycle.
// pending-new -> active -> (partial-filled)* -> {filled | cancelled | rejected}
type OrderStatus string

const (
	OrderPendingNew    OrderStatus = "PENDING_NEW"
	OrderActive        OrderStatus = "ACTIVE"
	OrderPartialFilled OrderStatus = "PARTIAL_FILLED"
	OrderFilled        OrderStatus = "FILLED"
	OrderCancelled     OrderStatus = "CANCELLED"
	OrderRejected      OrderStatus = "REJECTED"
)

// Order tracks one placement through its full lifecycle. Terminal states
// (filled, cancelled, rejected) are sticky: once reached they never change.
type Order struct {
	ID              string
	InstrumentID    string
	Side            OrderSide
	Type            OrderType
	Price           decimal.Decimal // limit price, or the frozen reference price for market orders
	FrozenPrice     decimal.Decimal // price used to reserve cash at submission time
	Quantity        int64
	FilledQuantity  int64
	Status          OrderStatus
	CreationTime    time.Time
	RejectionReason string
}

// NewOrder builds an order in pending-new state.
func NewOrder(id, instrumentID string, side OrderSide, typ OrderType, price decimal.Decimal, quantity int64, at time.Time) *Order {
	return &Order{
		ID:           id,
		InstrumentID: instrumentID,
		Side:         side,
		Type:         typ,
		Price:        price,
		FrozenPrice:  price,
		Quantity:     quantity,
		Status:       OrderPendingNew,
		CreationTime: at,
	}
}

// IsFinal reports whether the order has reached a terminal state.
func (o *Order) IsFinal() bool {
	switch o.Status {
	case OrderFilled, OrderCancelled, OrderRejected:
		return true
	default:
		return false
	}
}

// UnfilledQuantity is the quantity still eligible for matching.
func (o *Order) UnfilledQuantity() int64 {
	return o.Quantity - o.FilledQuantity
}

// Activate moves a pending-new order into the active, matchable state.
// A no-op if the order is already final.
func (o *Order) Activate() {
	if o.IsFinal() {
		return
	}
	o.Status = OrderActive
}

// Reject moves the order into the terminal rejected state. A no-op if
// the order is already final — terminal states are sticky.
func (o *Order) Reject(reason string) {
	if o.IsFinal() {
		return
	}
	o.Status = OrderRejected
	o.RejectionReason = reason
}

// Cancel moves the order into the terminal cancelled state. A no-op if
// the order is already final.
func (o *Order) Cancel(reason string) {
	if o.IsFinal() {
		return
	}
	o.Status = OrderCancelled
	o.RejectionReason = reason
}

// Fill applies a fill of the given quantity, transitioning to filled
// once the full quantity has been matched.
func (o *Order) Fill(quantity int64) {
	if o.IsFinal() {
		return
	}
	o.FilledQuantity += quantity
	if o.FilledQuantity >= o.Quantity {
		o.Status = OrderFilled
	} else {
		o.Status = OrderPartialFilled
	}
}

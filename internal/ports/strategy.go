package ports

import (
	"github.com/alejandrodnm/backtrader/internal/domain"
)

// OrderSubmitter is the broker surface a strategy is allowed to call.
// Keeping it separate from the broker's own implementation lets a
// strategy depend only on the two verbs it actually needs.
type OrderSubmitter interface {
	SubmitOrder(ctx domain.TradingContext, order *domain.Order) error
	CancelOrder(ctx domain.TradingContext, orderID string) error
}

// Strategy is user trading logic wired into the driver's lifecycle
// callbacks. A strategy receives an OrderSubmitter once at Init time
// and is expected to hold onto it for the rest of the run.
type Strategy interface {
	Init(submitter OrderSubmitter) error
	BeforeTrading(ctx domain.TradingContext) error
	HandleBar(ctx domain.TradingContext) error
	AfterTrading(ctx domain.TradingContext) error
}

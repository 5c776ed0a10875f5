package bus

import (
	"github.com/dshills/msgbus/internal/bus/listener"
	"github.com/dshills/msgbus/internal/bus/report"
)

// SubscriptionContext is everything a factory gets to build a Subscription.
type SubscriptionContext struct {
	// Handler is the valid descriptor the subscription serves.
	Handler listener.Handler

	// Seq is the registration sequence number assigned by the registry.
	Seq uint64

	// Reporter receives invocation failures.
	Reporter *report.Reporter
}

// SubscriptionFactory decides how a descriptor becomes a Subscription.
type SubscriptionFactory interface {
	CreateSubscription(sc SubscriptionContext) Subscription
}

// SubscriptionFactoryFunc is a function adapter for SubscriptionFactory.
type SubscriptionFactoryFunc func(sc SubscriptionContext) Subscription

// CreateSubscription implements SubscriptionFactory.
func (f SubscriptionFactoryFunc) CreateSubscription(sc SubscriptionContext) Subscription {
	return f(sc)
}

// DefaultSubscriptionFactory builds a FilteredSubscription for descriptors
// with filters or RejectSubtypes, and a BaseSubscription otherwise.
var DefaultSubscriptionFactory SubscriptionFactory = SubscriptionFactoryFunc(func(sc SubscriptionContext) Subscription {
	if sc.Handler.Filtered() {
		return NewFilteredSubscription(sc)
	}
	return NewBaseSubscription(sc)
})

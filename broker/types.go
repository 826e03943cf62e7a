package broker

import (
	"context"

	"github.com/casualjim/loom/events"
)

type Broker interface {
	Topic(context.Context, string) Topic
	// Release forgets a topic. Releasing an unknown topic is a no-op.
	Release(id string)
}

// Topic is an events.Publisher that subscribers can attach to.
type Topic interface {
	events.Publisher
	Subscribe(context.Context, events.Hook) (Subscription, error)
}

type Subscription interface {
	ID() string
	Unsubscribe()
}

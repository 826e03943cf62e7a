package broker

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/alphadose/haxmap"
	"github.com/casualjim/loom/events"
	"github.com/casualjim/loom/pkg/slogx"
	"github.com/casualjim/loom/pkg/uuidx"
	"github.com/nats-io/nats.go"
)

// SubjectPrefix namespaces the NATS subjects of every topic.
const SubjectPrefix = "loom.sessions."

type NATSBroker struct {
	client *nats.Conn
	topics *haxmap.Map[string, *natsTopic]
}

var _ Broker = (*NATSBroker)(nil)

func NATS(client *nats.Conn) *NATSBroker {
	return &NATSBroker{
		client: client,
		topics: haxmap.New[string, *natsTopic](),
	}
}

func (b *NATSBroker) Topic(_ context.Context, id string) Topic {
	top, _ := b.topics.GetOrCompute(id, func() *natsTopic {
		return &natsTopic{
			subject: SubjectPrefix + id,
			client:  b.client,
		}
	})
	return top
}

// Release forgets the cached topic. Subscriptions stay with their owners.
func (b *NATSBroker) Release(id string) {
	b.topics.Del(id)
}

type natsTopic struct {
	client  *nats.Conn
	subject string
}

func (t *natsTopic) Publish(_ context.Context, event events.Event) error {
	eb, err := events.ToJSON(event)
	if err != nil {
		return err
	}
	return t.client.Publish(t.subject, eb)
}

func (t *natsTopic) Subscribe(ctx context.Context, hook events.Hook) (Subscription, error) {
	if hook == nil {
		return nil, ErrHookRequired
	}

	ch := make(chan events.Event, subscriptionBuffer)
	nsub, err := t.client.Subscribe(t.subject, func(msg *nats.Msg) {
		event, err := events.FromJSON(msg.Data)
		if err != nil {
			slog.Error("failed to unmarshal event", slogx.Error(err), slog.String("subject", msg.Subject), slogx.ByteString("payload", msg.Data))
			return
		}

		select {
		case ch <- event:
		case <-ctx.Done():
		}
	})
	if err != nil {
		return nil, fmt.Errorf("subscribe %s: %w", t.subject, err)
	}
	nsub.SetClosedHandler(func(string) { close(ch) })

	sub := &natsSubscription{
		id:  uuidx.NewString(),
		sub: nsub,
	}
	go forwardToHook(ctx, ch, hook, sub)
	return sub, nil
}

func forwardToHook(ctx context.Context, ch <-chan events.Event, hook events.Hook, sub Subscription) {
	for {
		select {
		case event, ok := <-ch:
			if !ok {
				return
			}
			events.Dispatch(ctx, hook, event)
		case <-ctx.Done():
			sub.Unsubscribe()
			return
		}
	}
}

type natsSubscription struct {
	id  string
	sub *nats.Subscription
}

func (n *natsSubscription) ID() string {
	return n.id
}

func (n *natsSubscription) Unsubscribe() {
	if !n.sub.IsValid() {
		return
	}
	if err := n.sub.Unsubscribe(); err != nil {
		slog.Error("failed to unsubscribe", slogx.Error(err), slog.String("subscription", n.id))
	}
}

// Package broker distributes session events to subscribers over named topics.
// A session publishes to the topic named by its id.
//
// Design decisions:
//   - Context-first: subscriptions end when their context is cancelled
//   - Topic-based: every session gets an isolated stream
//   - Hook integration: subscribers implement events.Hook
//   - Slow subscribers are dropped instead of stalling the run
//
// Interface hierarchy:
//   - Broker: Top-level interface for accessing topics
//     └── Topic: Interface for publishing/subscribing to events
//     └── Subscription: Interface for managing subscriptions
//
// Two implementations exist: Local fans out in process, NATS crosses process
// boundaries using the JSON encoding of the events package.
//
// Example usage:
//
//	b := broker.Local()
//	topic := b.Topic(ctx, sessionID.String())
//	sub, err := topic.Subscribe(ctx, events.LoggingHook())
//	if err != nil {
//	    return err
//	}
//	defer sub.Unsubscribe()
package broker

package events

import (
	"context"
	"log/slog"

	"github.com/casualjim/loom/pkg/slogx"
)

// Publisher receives events as they happen. Implementations must not block the run
// for long and must be safe for concurrent use.
type Publisher interface {
	Publish(context.Context, Event) error
}

// Hook receives events by kind.
type Hook interface {
	OnThreadCreated(context.Context, ThreadCreated)
	OnNodeStarted(context.Context, NodeStarted)
	OnToolInvoked(context.Context, ToolInvoked)
	OnNodeFinished(context.Context, NodeFinished)
	OnOutputMerged(context.Context, OutputMerged)
	OnRunFinished(context.Context, RunFinished)
}

// Dispatch calls the hook method matching the event.
func Dispatch(ctx context.Context, hook Hook, e Event) {
	switch e := e.(type) {
	case ThreadCreated:
		hook.OnThreadCreated(ctx, e)
	case NodeStarted:
		hook.OnNodeStarted(ctx, e)
	case ToolInvoked:
		hook.OnToolInvoked(ctx, e)
	case NodeFinished:
		hook.OnNodeFinished(ctx, e)
	case OutputMerged:
		hook.OnOutputMerged(ctx, e)
	case RunFinished:
		hook.OnRunFinished(ctx, e)
	}
}

type hookPublisher struct {
	hook Hook
}

// FromHook adapts a hook into a publisher that dispatches synchronously.
func FromHook(hook Hook) Publisher {
	return hookPublisher{hook: hook}
}

func (h hookPublisher) Publish(ctx context.Context, e Event) error {
	Dispatch(ctx, h.hook, e)
	return nil
}

// Nop discards every event.
var Nop Publisher = nopPublisher{}

type nopPublisher struct{}

func (nopPublisher) Publish(context.Context, Event) error { return nil }

type multi []Publisher

// Multi fans an event out to every publisher and reports the first error.
func Multi(publishers ...Publisher) Publisher {
	return multi(publishers)
}

func (m multi) Publish(ctx context.Context, e Event) error {
	var first error
	for _, p := range m {
		if p == nil {
			continue
		}
		if err := p.Publish(ctx, e); err != nil && first == nil {
			first = err
		}
	}
	return first
}

// LoggingHook writes every event to the default slog logger.
func LoggingHook() Hook {
	return loggingHook{}
}

type loggingHook struct{}

func (loggingHook) OnThreadCreated(ctx context.Context, e ThreadCreated) {
	slog.InfoContext(ctx, "thread created",
		slogx.Stringer("session", e.SessionID),
		slog.String("node", e.NodeID),
		slog.String("thread", e.ThreadID),
		slog.String("source", e.Source),
		slog.Int("injected", e.Injected),
	)
}

func (loggingHook) OnNodeStarted(ctx context.Context, e NodeStarted) {
	slog.InfoContext(ctx, "node started",
		slogx.Stringer("session", e.SessionID),
		slog.String("node", e.NodeID),
		slog.String("name", e.NodeName),
		slog.String("thread", e.ThreadID),
	)
}

func (loggingHook) OnToolInvoked(ctx context.Context, e ToolInvoked) {
	level := slog.LevelDebug
	if e.Error != "" {
		level = slog.LevelWarn
	}
	slog.Log(ctx, level, "tool invoked",
		slogx.Stringer("session", e.SessionID),
		slog.String("node", e.NodeID),
		slog.String("tool", e.Tool),
		slog.String("call_id", e.CallID),
		slog.String("error", e.Error),
	)
}

func (loggingHook) OnNodeFinished(ctx context.Context, e NodeFinished) {
	level := slog.LevelInfo
	if e.Error != "" {
		level = slog.LevelError
	}
	slog.Log(ctx, level, "node finished",
		slogx.Stringer("session", e.SessionID),
		slog.String("node", e.NodeID),
		slog.String("status", e.Status),
		slog.String("error", e.Error),
	)
}

func (loggingHook) OnOutputMerged(ctx context.Context, e OutputMerged) {
	slog.DebugContext(ctx, "output merged",
		slogx.Stringer("session", e.SessionID),
		slog.String("node", e.NodeID),
		slog.String("thread", e.ThreadID),
		slog.String("destination", e.Destination),
	)
}

func (loggingHook) OnRunFinished(ctx context.Context, e RunFinished) {
	slog.InfoContext(ctx, "run finished",
		slogx.Stringer("session", e.SessionID),
		slog.String("status", e.Status),
		slog.String("error", e.Error),
	)
}

// Package threadstore keeps the message history of every thread in a session
// together with the latest output each thread produced.
//
// Threads are created once. The node that creates a thread decides its seed:
// a slice of the source thread's messages at that moment. Later nodes bound to
// the same thread append to it and cannot reseed it. Histories only grow.
package threadstore

import (
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sync"

	"github.com/casualjim/loom/pkg/messages"
	"github.com/casualjim/loom/plan"
	orderedmap "github.com/wk8/go-ordered-map/v2"
)

var ErrThreadNotFound = errors.New("thread not found")

// Output is the most recent DataOut value recorded for a thread.
type Output struct {
	Label   string
	Content string
	NodeID  string
}

// Message renders the output as the assistant message that is merged into a destination thread.
func (o Output) Message() messages.Assistant {
	return messages.NewAssistant(o.Label + o.Content)
}

// Thread is a read-only copy of a thread.
type Thread struct {
	ID        string
	Source    string
	CreatedBy string
	Messages  messages.List
}

type thread struct {
	name      string
	source    string
	createdBy string
	messages  messages.List
}

// Store holds the threads and outputs of one session. Mutations come from a single
// execution path; reads may come from any goroutine.
type Store struct {
	mu      sync.RWMutex
	threads *orderedmap.OrderedMap[string, *thread]
	outputs map[string]Output
	logger  *slog.Logger
}

// New creates a store with the main thread seeded by the given messages.
func New(seed ...messages.Message) *Store {
	s := &Store{
		threads: orderedmap.New[string, *thread](),
		outputs: make(map[string]Output),
		logger:  slog.Default().With(slog.String("component", "threadstore")),
	}
	s.threads.Set(plan.MainThread, &thread{
		name:     plan.MainThread,
		messages: slices.Clone(messages.List(seed)),
	})
	return s
}

// Ensure creates the thread for a node unless it already exists. A new thread is
// seeded from the node's data_in_thread, or parent when that is empty, using the
// node's data_in_slice. It reports whether the thread was created and how many
// messages were injected. A missing source yields an empty seed.
func (s *Store) Ensure(node plan.Node, parent string) (created bool, injected int) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.threads.Get(node.ThreadID); exists {
		return false, 0
	}

	source := node.DataInThread
	if source == "" {
		source = parent
	}

	var seed messages.List
	if src, ok := s.threads.Get(source); ok {
		seed = plan.Apply(node.DataInSlice, src.messages)
	} else {
		s.logger.Warn("source thread does not exist, seeding empty thread",
			slog.String("thread", node.ThreadID),
			slog.String("source", source),
			slog.String("node", node.ID),
		)
		seed = messages.List{}
	}

	s.threads.Set(node.ThreadID, &thread{
		name:      node.ThreadID,
		source:    source,
		createdBy: node.ID,
		messages:  seed,
	})
	return true, len(seed)
}

// Has reports whether the thread exists.
func (s *Store) Has(threadID string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.threads.Get(threadID)
	return ok
}

// Append adds a message to the end of a thread.
func (s *Store) Append(threadID string, msgs ...messages.Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	t, ok := s.threads.Get(threadID)
	if !ok {
		return fmt.Errorf("%w: %s", ErrThreadNotFound, threadID)
	}
	t.messages = append(t.messages, msgs...)
	return nil
}

// Messages returns a copy of a thread's history.
func (s *Store) Messages(threadID string) (messages.List, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	t, ok := s.threads.Get(threadID)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrThreadNotFound, threadID)
	}
	return slices.Clone(t.messages), nil
}

// Len returns the number of messages in a thread, 0 when it does not exist.
func (s *Store) Len(threadID string) int {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if t, ok := s.threads.Get(threadID); ok {
		return len(t.messages)
	}
	return 0
}

// Slice returns a copy of the half-open range [start, end) of a thread.
// Out of range indices are clamped, negative ones count from the end.
func (s *Store) Slice(threadID string, start, end *int) (messages.List, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	t, ok := s.threads.Get(threadID)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrThreadNotFound, threadID)
	}
	return plan.Apply(plan.Range(start, end), t.messages), nil
}

// Thread returns a copy of a thread with its provenance.
func (s *Store) Thread(threadID string) (Thread, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	t, ok := s.threads.Get(threadID)
	if !ok {
		return Thread{}, fmt.Errorf("%w: %s", ErrThreadNotFound, threadID)
	}
	return Thread{
		ID:        t.name,
		Source:    t.source,
		CreatedBy: t.createdBy,
		Messages:  slices.Clone(t.messages),
	}, nil
}

// Threads lists thread ids in creation order.
func (s *Store) Threads() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ids := make([]string, 0, s.threads.Len())
	for pair := s.threads.Oldest(); pair != nil; pair = pair.Next() {
		ids = append(ids, pair.Key)
	}
	return ids
}

// SetOutput records the latest output of a thread, replacing any previous one.
func (s *Store) SetOutput(threadID string, out Output) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.outputs[threadID] = out
}

// Output returns the latest output recorded for a thread.
func (s *Store) Output(threadID string) (Output, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out, ok := s.outputs[threadID]
	return out, ok
}

// Merge appends the current output of threadID to the destination thread as a single
// assistant message. It returns false without touching anything when no output was recorded.
func (s *Store) Merge(threadID, destination string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	out, ok := s.outputs[threadID]
	if !ok {
		return false, nil
	}
	dst, ok := s.threads.Get(destination)
	if !ok {
		return false, fmt.Errorf("merge %s: %w: %s", threadID, ErrThreadNotFound, destination)
	}
	dst.messages = append(dst.messages, out.Message())
	return true, nil
}

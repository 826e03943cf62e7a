package controller

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/casualjim/loom/events"
	"github.com/casualjim/loom/internal/executor"
	"github.com/casualjim/loom/internal/threadstore"
	"github.com/casualjim/loom/internal/tracker"
	"github.com/casualjim/loom/pkg/messages"
	"github.com/casualjim/loom/plan"
	"github.com/casualjim/loom/provider"
	"github.com/casualjim/loom/tool"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type scriptedModel struct {
	mu      sync.Mutex
	replies []string
	calls   []provider.CompletionParams
	// gate, when set, blocks every call until it receives a value.
	gate    chan struct{}
	entered chan struct{}
}

func (m *scriptedModel) Name() string { return "scripted" }

func (m *scriptedModel) Complete(ctx context.Context, params provider.CompletionParams) (provider.Completion, error) {
	if m.entered != nil {
		m.entered <- struct{}{}
	}
	if m.gate != nil {
		select {
		case <-m.gate:
		case <-ctx.Done():
			return provider.Completion{}, ctx.Err()
		}
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = append(m.calls, params)
	reply := "ok"
	if len(m.replies) > 0 {
		reply, m.replies = m.replies[0], m.replies[1:]
	}
	return provider.Completion{Content: reply, Usage: provider.Usage{TotalTokens: 10}}, nil
}

func (m *scriptedModel) callCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.calls)
}

type capture struct {
	mu     sync.Mutex
	events []events.Event
}

func (c *capture) Publish(_ context.Context, e events.Event) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.events = append(c.events, e)
	return nil
}

func (c *capture) kinds() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]string, len(c.events))
	for i, e := range c.events {
		out[i] = e.Kind()
	}
	return out
}

type fixture struct {
	ctrl    *Controller
	store   *threadstore.Store
	tracker *tracker.Tracker
	events  *capture
}

func newFixture(t *testing.T, planJSON string, model provider.Model) fixture {
	t.Helper()
	p, err := plan.Load([]byte(planJSON))
	require.NoError(t, err)

	sessionID := uuid.New()
	store := threadstore.New(messages.NewUser("What is loom?"))
	tr := tracker.New(p)
	pub := &capture{}
	tools := tool.NewTable(
		tool.Must(func(a, b int) int { return a + b }, tool.Name("add"), tool.Parameters("a", "b")),
	)

	ex, err := executor.New(executor.Command{
		SessionID: sessionID,
		Store:     store,
		Tools:     tools,
		Model:     model,
		Publisher: pub,
	})
	require.NoError(t, err)

	ctrl, err := New(Command{
		SessionID: sessionID,
		Plan:      p,
		Store:     store,
		Tracker:   tr,
		Executor:  ex,
		Publisher: pub,
	})
	require.NoError(t, err)
	return fixture{ctrl: ctrl, store: store, tracker: tr, events: pub}
}

const examplePlan = `{"nodes": [
	{"id": "n0", "name": "relay", "type": "llm-first", "thread_id": "main", "task_prompt": ""},
	{"id": "n1", "name": "question", "type": "llm-first", "thread_id": "q1", "data_in_slice": [0, 1],
	 "task_prompt": "Answer the question", "data_out": true, "data_out_description": "Q1: "},
	{"id": "n2", "name": "summary", "type": "llm-first", "thread_id": "main", "data_in_thread": "q1",
	 "task_prompt": "Summarize"}
]}`

func TestNewValidation(t *testing.T) {
	_, err := New(Command{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "plan is required")
	assert.Contains(t, err.Error(), "executor is required")
}

func TestRunAllExamplePlan(t *testing.T) {
	model := &scriptedModel{replies: []string{"loom interprets plans", "summary"}}
	f := newFixture(t, examplePlan, model)

	require.NoError(t, f.ctrl.RunAll(context.Background()))

	n0, ok := f.ctrl.Record("n0")
	require.True(t, ok)
	assert.Equal(t, "What is loom?", n0.ModelOutput)
	require.Len(t, n0.InputMessages, 1)

	n1, ok := f.ctrl.Record("n1")
	require.True(t, ok)
	require.Len(t, n1.InputMessages, 1)
	assert.Equal(t, "What is loom?", n1.InputMessages[0].Text())
	assert.Equal(t, "loom interprets plans", n1.DataOutContent)

	main, err := f.store.Messages(plan.MainThread)
	require.NoError(t, err)
	require.Len(t, main, 4)
	assert.Equal(t, "Q1: loom interprets plans", main[1].Text())
	assert.Equal(t, messages.RoleAssistant, main[1].Role())
	assert.Equal(t, "Summarize", main[2].Text())
	assert.Equal(t, "summary", main[3].Text())

	n2, ok := f.ctrl.Record("n2")
	require.True(t, ok)
	require.Len(t, n2.InputMessages, 2)
	assert.Equal(t, "Q1: loom interprets plans", n2.InputMessages[1].Text())

	require.Equal(t, 2, model.callCount())

	snap := f.tracker.Snapshot()
	assert.Equal(t, tracker.Completed, snap.Status)
	assert.Equal(t, 100.0, snap.Progress.Percent)
	assert.Equal(t, int64(20), snap.Usage.TotalTokens)

	assert.Equal(t, []string{
		"node_started", "node_finished",
		"thread_created", "node_started", "output_merged", "node_finished",
		"node_started", "node_finished",
		"run_finished",
	}, f.events.kinds())

	_, done, err := f.ctrl.Step(context.Background(), "")
	require.NoError(t, err)
	assert.True(t, done)
}

func TestDataInIgnoredForExistingThread(t *testing.T) {
	const variant = `{"nodes": [
		{"id": "n0", "name": "relay", "type": "llm-first", "thread_id": "main"},
		{"id": "n1", "name": "question", "type": "llm-first", "thread_id": "q1", "data_in_slice": [0, 1],
		 "task_prompt": "Answer the question", "data_out": true, "data_out_description": "Q1: "},
		{"id": "n2", "name": "summary", "type": "llm-first", "thread_id": "main", "data_in_thread": "ghost",
		 "data_in_slice": "none", "task_prompt": "Summarize"}
	]}`

	run := func(planJSON string) messages.List {
		f := newFixture(t, planJSON, &scriptedModel{replies: []string{"a", "b"}})
		require.NoError(t, f.ctrl.RunAll(context.Background()))
		msgs, err := f.store.Messages(plan.MainThread)
		require.NoError(t, err)
		return msgs
	}

	texts := func(l messages.List) []string {
		out := make([]string, len(l))
		for i, m := range l {
			out[i] = m.Text()
		}
		return out
	}
	assert.Equal(t, texts(run(examplePlan)), texts(run(variant)))
}

func TestRunAllHaltsOnFailure(t *testing.T) {
	model := &scriptedModel{}
	f := newFixture(t, `{"nodes": [
		{"id": "a", "name": "a", "type": "llm-first", "thread_id": "main", "task_prompt": "one"},
		{"id": "b", "name": "b", "type": "llm-first", "thread_id": "main", "task_prompt": "two", "tools": ["missing"]},
		{"id": "c", "name": "c", "type": "llm-first", "thread_id": "main", "task_prompt": "three"}
	]}`, model)

	err := f.ctrl.RunAll(context.Background())
	require.ErrorIs(t, err, tool.ErrToolNotFound)
	assert.Contains(t, err.Error(), "node b")

	snap := f.tracker.Snapshot()
	assert.Equal(t, tracker.Failed, snap.Status)
	assert.Equal(t, executor.StatusCompleted, snap.Nodes[0].Status)
	assert.Equal(t, executor.StatusFailed, snap.Nodes[1].Status)
	assert.Equal(t, executor.StatusPending, snap.Nodes[2].Status)
	assert.Equal(t, 1, model.callCount())

	rec, ok := f.ctrl.Record("b")
	require.True(t, ok)
	assert.Equal(t, executor.StatusFailed, rec.Status)
	assert.NotEmpty(t, rec.Error)
}

func TestToolFirstLimitBeforeModel(t *testing.T) {
	model := &scriptedModel{}
	f := newFixture(t, `{"nodes": [
		{"id": "t", "name": "tool", "type": "tool-first", "thread_id": "main", "task_prompt": "explain",
		 "initial_tool_name": "add", "initial_tool_args": {"a": 1, "b": 2}, "tools_limit": {"add": 0}}
	]}`, model)

	err := f.ctrl.RunAll(context.Background())
	require.ErrorIs(t, err, executor.ErrToolLimitExceeded)
	assert.Zero(t, model.callCount())
}

func TestStep(t *testing.T) {
	model := &scriptedModel{}
	f := newFixture(t, `{"nodes": [
		{"id": "a", "name": "a", "type": "llm-first", "thread_id": "main", "task_prompt": "one"},
		{"id": "b", "name": "b", "type": "llm-first", "thread_id": "side", "task_prompt": "two"},
		{"id": "c", "name": "c", "type": "llm-first", "thread_id": "main", "task_prompt": "three"}
	]}`, model)
	ctx := context.Background()

	_, _, err := f.ctrl.Step(ctx, "zzz")
	require.ErrorIs(t, err, ErrNodeNotFound)
	_, _, err = f.ctrl.Step(ctx, "c")
	require.ErrorIs(t, err, ErrNotEligible)

	rec, done, err := f.ctrl.Step(ctx, "")
	require.NoError(t, err)
	assert.False(t, done)
	assert.Equal(t, "a", rec.NodeID)
	assert.Equal(t, 1, f.tracker.Snapshot().Progress.Completed)

	_, _, err = f.ctrl.Step(ctx, "a")
	require.ErrorIs(t, err, ErrNotEligible)

	rec, done, err = f.ctrl.Step(ctx, "b")
	require.NoError(t, err)
	assert.False(t, done)
	assert.Equal(t, "b", rec.NodeID)
	assert.True(t, f.store.Has("side"))

	rec, done, err = f.ctrl.Step(ctx, "")
	require.NoError(t, err)
	assert.True(t, done)
	assert.Equal(t, "c", rec.NodeID)
	assert.Equal(t, tracker.Completed, f.tracker.Snapshot().Status)

	rec, done, err = f.ctrl.Step(ctx, "")
	require.NoError(t, err)
	assert.True(t, done)
	assert.Nil(t, rec)
}

func TestStepFailureThenContinue(t *testing.T) {
	f := newFixture(t, `{"nodes": [
		{"id": "a", "name": "a", "type": "planning", "thread_id": "main"},
		{"id": "b", "name": "b", "type": "llm-first", "thread_id": "main", "task_prompt": "two"}
	]}`, &scriptedModel{})
	ctx := context.Background()

	rec, done, err := f.ctrl.Step(ctx, "")
	require.ErrorIs(t, err, executor.ErrUnimplemented)
	assert.False(t, done)
	assert.Equal(t, executor.StatusFailed, rec.Status)

	_, done, err = f.ctrl.Step(ctx, "b")
	require.NoError(t, err)
	assert.True(t, done)
	assert.Equal(t, tracker.Failed, f.tracker.Snapshot().Status)
}

func TestStartStopWait(t *testing.T) {
	model := &scriptedModel{gate: make(chan struct{}), entered: make(chan struct{}, 1)}
	f := newFixture(t, `{"nodes": [
		{"id": "a", "name": "a", "type": "llm-first", "thread_id": "main", "task_prompt": "one"},
		{"id": "b", "name": "b", "type": "llm-first", "thread_id": "main", "task_prompt": "two"}
	]}`, model)
	ctx := context.Background()

	require.NoError(t, f.ctrl.Start(ctx))
	select {
	case <-model.entered:
	case <-time.After(2 * time.Second):
		t.Fatal("model was never called")
	}

	assert.True(t, f.ctrl.Running())
	assert.ErrorIs(t, f.ctrl.Start(ctx), ErrAlreadyRunning)
	assert.ErrorIs(t, f.ctrl.RunAll(ctx), ErrAlreadyRunning)
	_, _, err := f.ctrl.Step(ctx, "")
	assert.ErrorIs(t, err, ErrAlreadyRunning)

	f.ctrl.Stop()
	model.gate <- struct{}{}

	require.ErrorIs(t, f.ctrl.Wait(), ErrStopped)
	assert.False(t, f.ctrl.Running())

	snap := f.tracker.Snapshot()
	assert.Equal(t, tracker.Stopped, snap.Status)
	assert.Equal(t, executor.StatusCompleted, snap.Nodes[0].Status)
	assert.Equal(t, executor.StatusPending, snap.Nodes[1].Status)

	close(model.gate)
	require.NoError(t, f.ctrl.Start(ctx))
	<-model.entered
	require.NoError(t, f.ctrl.Wait())
	assert.Equal(t, tracker.Completed, f.tracker.Snapshot().Status)
}

func TestStopRightAfterStart(t *testing.T) {
	const twoNodes = `{"nodes": [
		{"id": "a", "name": "a", "type": "llm-first", "thread_id": "main", "task_prompt": "one"},
		{"id": "b", "name": "b", "type": "llm-first", "thread_id": "main", "task_prompt": "two"}
	]}`

	for i := 0; i < 50; i++ {
		f := newFixture(t, twoNodes, &scriptedModel{})
		require.NoError(t, f.ctrl.Start(context.Background()))
		f.ctrl.Stop()

		require.ErrorIs(t, f.ctrl.Wait(), ErrStopped, "run %d", i)
		snap := f.tracker.Snapshot()
		assert.Equal(t, tracker.Stopped, snap.Status, "run %d", i)
		assert.Equal(t, executor.StatusPending, snap.Nodes[1].Status, "run %d", i)
	}
}

func TestWaitWithoutStart(t *testing.T) {
	f := newFixture(t, examplePlan, &scriptedModel{})
	assert.NoError(t, f.ctrl.Wait())
}

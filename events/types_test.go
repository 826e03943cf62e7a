package events

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tidwall/gjson"
)

func TestToJSON(t *testing.T) {
	sessionID := uuid.New()
	data, err := ToJSON(ToolInvoked{
		SessionID: sessionID,
		NodeID:    "n1",
		CallID:    "initial_tool",
		Tool:      "add",
		Arguments: `{"a":1}`,
		Result:    "3",
	})
	require.NoError(t, err)

	result := gjson.ParseBytes(data)
	assert.Equal(t, "tool_invoked", result.Get("type").String())
	assert.Equal(t, sessionID.String(), result.Get("session_id").String())
	assert.Equal(t, "add", result.Get("tool").String())
	assert.False(t, result.Get("error").Exists())

	_, err = ToJSON(nil)
	assert.Error(t, err)
}

func TestFromJSON(t *testing.T) {
	sessionID := uuid.New()

	t.Run("decodes concrete type", func(t *testing.T) {
		data, err := ToJSON(NodeFinished{SessionID: sessionID, NodeID: "n2", Status: "FAILED", Error: "boom"})
		require.NoError(t, err)

		e, err := FromJSON(data)
		require.NoError(t, err)
		nf, ok := e.(NodeFinished)
		require.True(t, ok)
		assert.Equal(t, sessionID, nf.Session())
		assert.Equal(t, "n2", nf.NodeID)
		assert.Equal(t, "boom", nf.Error)
	})

	tests := []struct {
		name  string
		input string
	}{
		{name: "invalid json", input: "{"},
		{name: "missing type", input: `{"node_id":"n1"}`},
		{name: "unknown type", input: `{"type":"other"}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := FromJSON([]byte(tt.input))
			assert.Error(t, err)
		})
	}

	_, err := FromJSON([]byte(`{"type":"other"}`))
	assert.ErrorIs(t, err, ErrUnknownEvent)
}

type recordingHook struct {
	kinds []string
}

func (r *recordingHook) OnThreadCreated(context.Context, ThreadCreated) {
	r.kinds = append(r.kinds, kindThreadCreated)
}
func (r *recordingHook) OnNodeStarted(context.Context, NodeStarted) {
	r.kinds = append(r.kinds, kindNodeStarted)
}
func (r *recordingHook) OnToolInvoked(context.Context, ToolInvoked) {
	r.kinds = append(r.kinds, kindToolInvoked)
}
func (r *recordingHook) OnNodeFinished(context.Context, NodeFinished) {
	r.kinds = append(r.kinds, kindNodeFinished)
}
func (r *recordingHook) OnOutputMerged(context.Context, OutputMerged) {
	r.kinds = append(r.kinds, kindOutputMerged)
}
func (r *recordingHook) OnRunFinished(context.Context, RunFinished) {
	r.kinds = append(r.kinds, kindRunFinished)
}

type failingPublisher struct{ err error }

func (f failingPublisher) Publish(context.Context, Event) error { return f.err }

func TestFromHook(t *testing.T) {
	hook := &recordingHook{}
	pub := FromHook(hook)
	ctx := context.Background()

	for _, e := range []Event{
		ThreadCreated{}, NodeStarted{}, ToolInvoked{}, NodeFinished{}, OutputMerged{}, RunFinished{},
	} {
		require.NoError(t, pub.Publish(ctx, e))
	}
	assert.Equal(t, []string{
		kindThreadCreated, kindNodeStarted, kindToolInvoked, kindNodeFinished, kindOutputMerged, kindRunFinished,
	}, hook.kinds)
}

func TestMulti(t *testing.T) {
	hook := &recordingHook{}
	boom := errors.New("boom")
	pub := Multi(failingPublisher{err: boom}, nil, FromHook(hook))

	err := pub.Publish(context.Background(), NodeStarted{NodeID: "n0"})
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, []string{kindNodeStarted}, hook.kinds)
}

func TestLoggingHook(t *testing.T) {
	pub := FromHook(LoggingHook())
	require.NotPanics(t, func() {
		_ = pub.Publish(context.Background(), ToolInvoked{Tool: "add", Error: "failed"})
		_ = pub.Publish(context.Background(), NodeFinished{NodeID: "n0", Status: "COMPLETED"})
		_ = pub.Publish(context.Background(), RunFinished{Status: "completed"})
	})
}

package executor

import (
	"slices"

	"github.com/casualjim/loom/pkg/messages"
	"github.com/casualjim/loom/plan"
	"github.com/casualjim/loom/provider"
	"github.com/go-openapi/strfmt"
)

// Status is the lifecycle state of a node: PENDING -> RUNNING -> COMPLETED | FAILED.
type Status string

const (
	StatusPending   Status = "PENDING"
	StatusRunning   Status = "RUNNING"
	StatusCompleted Status = "COMPLETED"
	StatusFailed    Status = "FAILED"
)

// Terminal reports whether no further transition can happen.
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

func (s Status) String() string { return string(s) }

// ToolCallRecord is one tool invocation made while executing a node.
type ToolCallRecord struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	Arguments string `json:"arguments"`
	Result    string `json:"result,omitempty"`
	Error     string `json:"error,omitempty"`
}

// Record captures everything observable about one node execution.
type Record struct {
	NodeID   string    `json:"node_id"`
	NodeName string    `json:"node_name"`
	NodeType plan.Type `json:"node_type"`
	ThreadID string    `json:"thread_id"`
	Status   Status    `json:"status"`
	Error    string    `json:"error,omitempty"`

	// InputMessages is the thread as the node found it.
	InputMessages messages.List `json:"input_messages"`
	// ModelInput is the full context of the first model call, instructions included.
	ModelInput  messages.List    `json:"model_input,omitempty"`
	ModelOutput string           `json:"model_output"`
	ToolCalls   []ToolCallRecord `json:"tool_calls,omitempty"`
	// MessagesAfter is the thread when the node finished, before any merge.
	MessagesAfter messages.List `json:"messages_after"`
	// DataOutContent is the output recorded for the thread when data_out is set.
	DataOutContent string `json:"data_out_content,omitempty"`

	Usage      provider.Usage  `json:"usage"`
	StartedAt  strfmt.DateTime `json:"started_at"`
	FinishedAt strfmt.DateTime `json:"finished_at"`
}

// Clone returns a copy that shares no slices with r.
func (r *Record) Clone() *Record {
	if r == nil {
		return nil
	}
	c := *r
	c.InputMessages = slices.Clone(r.InputMessages)
	c.ModelInput = slices.Clone(r.ModelInput)
	c.ToolCalls = slices.Clone(r.ToolCalls)
	c.MessagesAfter = slices.Clone(r.MessagesAfter)
	return &c
}

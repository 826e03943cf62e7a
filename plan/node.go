package plan

import (
	"slices"

	"github.com/tidwall/gjson"
)

// MainThread is the thread every session starts with. It holds the user message.
const MainThread = "main"

// Type is the execution strategy of a node.
type Type string

const (
	LLMFirst  Type = "llm-first"
	ToolFirst Type = "tool-first"
	// Planning is reserved. Plans may declare it but executing it fails.
	Planning Type = "planning"
)

func (t Type) Valid() bool {
	switch t {
	case LLMFirst, ToolFirst, Planning:
		return true
	}
	return false
}

func (t Type) String() string { return string(t) }

// Node is one unit of work in a plan. A loaded node is immutable: callers
// must not modify the slices and maps it exposes.
type Node struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	Type     Type   `json:"type"`
	ThreadID string `json:"thread_id"`

	// DataInThread is the source of a new thread's seed. Empty means the parent thread.
	DataInThread string `json:"data_in_thread,omitempty"`
	DataInSlice  Slice  `json:"data_in_slice"`

	DataOut            bool   `json:"data_out"`
	DataOutThread      string `json:"data_out_thread,omitempty"`
	DataOutDescription string `json:"data_out_description,omitempty"`

	TaskPrompt string   `json:"task_prompt,omitempty"`
	Tools      []string `json:"tools,omitempty"`

	InitialToolName string `json:"initial_tool_name,omitempty"`
	// InitialToolArgs is a JSON object.
	InitialToolArgs string `json:"initial_tool_args,omitempty"`

	EnableToolLoop bool           `json:"enable_tool_loop"`
	ToolsLimit     map[string]int `json:"tools_limit,omitempty"`
}

// OutputThread is the merge destination of the node's output.
func (n Node) OutputThread() string {
	if n.DataOutThread == "" {
		return MainThread
	}
	return n.DataOutThread
}

// PassThrough reports whether an llm-first node copies its input instead of calling the model.
func (n Node) PassThrough() bool {
	return n.Type == LLMFirst && n.TaskPrompt == ""
}

// Limit returns the explicit invocation limit for a tool, if the node sets one.
func (n Node) Limit(tool string) (int, bool) {
	v, ok := n.ToolsLimit[tool]
	return v, ok
}

// RequiredTools lists every tool the node may invoke, initial tool first.
func (n Node) RequiredTools() []string {
	if n.InitialToolName == "" || slices.Contains(n.Tools, n.InitialToolName) {
		return n.Tools
	}
	return append([]string{n.InitialToolName}, n.Tools...)
}

// Args returns the initial tool arguments, defaulting to an empty object.
func (n Node) Args() string {
	if n.InitialToolArgs == "" || !gjson.Valid(n.InitialToolArgs) {
		return "{}"
	}
	return n.InitialToolArgs
}

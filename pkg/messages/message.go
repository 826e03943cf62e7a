// Package messages defines the closed set of messages a thread can hold.
package messages

import (
	"time"

	"github.com/go-openapi/strfmt"
)

// Role tags the author of a message.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleTool      Role = "tool"
)

func (r Role) String() string { return string(r) }

// Message is one entry of a thread history. The set of implementations is closed.
type Message interface {
	Role() Role
	// Text returns the textual content of the message.
	Text() string
	message()
}

type System struct {
	Content   string          `json:"content"`
	Timestamp strfmt.DateTime `json:"timestamp"`
}

func (System) message()       {}
func (System) Role() Role     { return RoleSystem }
func (s System) Text() string { return s.Content }

type User struct {
	Content   string          `json:"content"`
	Sender    string          `json:"sender,omitempty"`
	Timestamp strfmt.DateTime `json:"timestamp"`
}

func (User) message()       {}
func (User) Role() Role     { return RoleUser }
func (u User) Text() string { return u.Content }

// ToolCall is a single function invocation requested by the model.
type ToolCall struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	Arguments string `json:"arguments"`
}

type Assistant struct {
	Content   string          `json:"content"`
	ToolCalls []ToolCall      `json:"tool_calls,omitempty"`
	Sender    string          `json:"sender,omitempty"`
	Timestamp strfmt.DateTime `json:"timestamp"`
}

func (Assistant) message()       {}
func (Assistant) Role() Role     { return RoleAssistant }
func (a Assistant) Text() string { return a.Content }

// HasToolCalls reports whether the model asked for at least one tool invocation.
func (a Assistant) HasToolCalls() bool { return len(a.ToolCalls) > 0 }

type ToolResult struct {
	ToolCallID string          `json:"tool_call_id"`
	ToolName   string          `json:"tool_name"`
	Content    string          `json:"content"`
	Timestamp  strfmt.DateTime `json:"timestamp"`
}

func (ToolResult) message()       {}
func (ToolResult) Role() Role     { return RoleTool }
func (t ToolResult) Text() string { return t.Content }

func now() strfmt.DateTime { return strfmt.DateTime(time.Now()) }

// NewSystem creates a system message stamped with the current time.
func NewSystem(content string) System {
	return System{Content: content, Timestamp: now()}
}

// NewUser creates a user message stamped with the current time.
func NewUser(content string) User {
	return User{Content: content, Timestamp: now()}
}

// NewAssistant creates an assistant message stamped with the current time.
func NewAssistant(content string, calls ...ToolCall) Assistant {
	return Assistant{Content: content, ToolCalls: calls, Timestamp: now()}
}

// NewToolResult creates a tool result message stamped with the current time.
func NewToolResult(callID, toolName, content string) ToolResult {
	return ToolResult{ToolCallID: callID, ToolName: toolName, Content: content, Timestamp: now()}
}

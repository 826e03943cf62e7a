package provider

import (
	"context"
	"errors"

	"github.com/casualjim/loom/pkg/messages"
	"github.com/casualjim/loom/tool"
)

var ErrModelInvocation = errors.New("model invocation failed")

// Model produces a single completion for a message context.
type Model interface {
	Name() string
	Complete(context.Context, CompletionParams) (Completion, error)
}

// Settings are the sampling parameters of a completion.
type Settings struct {
	Temperature *float64
	TopP        *float64
}

// CompletionParams is one request to a model.
type CompletionParams struct {
	// Instructions is sent as the system prompt when not empty.
	Instructions string

	Messages messages.List

	// Tools the model may call. Empty means a plain completion.
	Tools []tool.Spec

	Settings Settings

	// Prevents unkeyed literals
	_ struct{}
}

// Completion is the reply of a model.
type Completion struct {
	Content   string
	ToolCalls []messages.ToolCall
	Usage     Usage
}

// Message converts the completion into the assistant message appended to a thread.
func (c Completion) Message() messages.Assistant {
	return messages.NewAssistant(c.Content, c.ToolCalls...)
}

// Usage counts the tokens a completion consumed.
type Usage struct {
	PromptTokens     int64 `json:"prompt_tokens"`
	CompletionTokens int64 `json:"completion_tokens"`
	TotalTokens      int64 `json:"total_tokens"`
}

// AddUsage accumulates other into u.
func (u *Usage) AddUsage(other *Usage) {
	if other == nil {
		return
	}
	u.PromptTokens += other.PromptTokens
	u.CompletionTokens += other.CompletionTokens
	u.TotalTokens += other.TotalTokens
}

// Config describes how to build a Model for a session.
type Config struct {
	Provider    string   `toml:"provider" json:"provider"`
	Model       string   `toml:"model" json:"model"`
	APIKey      string   `toml:"api_key" json:"-"`
	APIKeyEnv   string   `toml:"api_key_env" json:"api_key_env,omitempty"`
	BaseURL     string   `toml:"base_url" json:"base_url,omitempty"`
	Temperature *float64 `toml:"temperature" json:"temperature,omitempty"`
	TopP        *float64 `toml:"top_p" json:"top_p,omitempty"`
}

// Settings returns the sampling parameters configured for the model.
func (c Config) Settings() Settings {
	return Settings{Temperature: c.Temperature, TopP: c.TopP}
}

// Factory builds a Model from its configuration.
type Factory func(Config) (Model, error)

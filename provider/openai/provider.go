package openai

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/casualjim/loom/pkg/jsonx"
	"github.com/casualjim/loom/pkg/messages"
	"github.com/casualjim/loom/provider"
	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/openai/openai-go/shared"
)

// DefaultModel is used when a configuration does not name a model.
const DefaultModel = openai.ChatModelGPT4oMini

// Model is a provider.Model backed by an OpenAI compatible endpoint.
type Model struct {
	name   string
	client *openai.Client
}

var _ provider.Model = (*Model)(nil)

// New creates a model client for the named model.
func New(name string, options ...option.RequestOption) *Model {
	if name == "" {
		name = DefaultModel
	}
	return &Model{
		name:   name,
		client: openai.NewClient(options...),
	}
}

// Factory builds a Model from a configuration. The API key is read from the
// configuration, then from the environment variable it names, then OPENAI_API_KEY.
func Factory(cfg provider.Config) (provider.Model, error) {
	if cfg.Provider != "" && cfg.Provider != "openai" {
		return nil, fmt.Errorf("unsupported provider %q", cfg.Provider)
	}

	key := cfg.APIKey
	if key == "" && cfg.APIKeyEnv != "" {
		key = os.Getenv(cfg.APIKeyEnv)
	}
	if key == "" {
		key = os.Getenv("OPENAI_API_KEY")
	}
	if key == "" {
		return nil, errors.New("no API key configured for the openai provider")
	}

	options := []option.RequestOption{option.WithAPIKey(key)}
	if cfg.BaseURL != "" {
		options = append(options, option.WithBaseURL(cfg.BaseURL))
	}
	return New(cfg.Model, options...), nil
}

func (m *Model) Name() string {
	return m.name
}

func (m *Model) Complete(ctx context.Context, params provider.CompletionParams) (provider.Completion, error) {
	req, err := m.buildRequest(params)
	if err != nil {
		return provider.Completion{}, fmt.Errorf("%w: failed to build request: %w", provider.ErrModelInvocation, err)
	}

	chat, err := m.client.Chat.Completions.New(ctx, req)
	if err != nil {
		return provider.Completion{}, fmt.Errorf("%w: %w", provider.ErrModelInvocation, err)
	}
	if len(chat.Choices) == 0 {
		return provider.Completion{}, fmt.Errorf("%w: response has no choices", provider.ErrModelInvocation)
	}

	choice := chat.Choices[0].Message
	result := provider.Completion{
		Content: choice.Content,
		Usage: provider.Usage{
			PromptTokens:     chat.Usage.PromptTokens,
			CompletionTokens: chat.Usage.CompletionTokens,
			TotalTokens:      chat.Usage.TotalTokens,
		},
	}
	for _, tc := range choice.ToolCalls {
		result.ToolCalls = append(result.ToolCalls, messages.ToolCall{
			ID:        tc.ID,
			Name:      tc.Function.Name,
			Arguments: tc.Function.Arguments,
		})
	}
	return result, nil
}

func (m *Model) buildRequest(params provider.CompletionParams) (openai.ChatCompletionNewParams, error) {
	tools := make([]openai.ChatCompletionToolParam, len(params.Tools))
	for i, spec := range params.Tools {
		if spec.Parameters == nil {
			return openai.ChatCompletionNewParams{}, fmt.Errorf("tool %s has no parameter schema", spec.Name)
		}

		jv, err := jsonx.ToDynamicJSON(spec.Parameters)
		if err != nil {
			return openai.ChatCompletionNewParams{}, fmt.Errorf("failed to convert schema of tool %s: %w", spec.Name, err)
		}

		def := openai.FunctionDefinitionParam{
			Name:       openai.String(spec.Name),
			Parameters: openai.F(shared.FunctionParameters(jv)),
		}
		if strings.TrimSpace(spec.Description) != "" {
			def.Description = openai.String(spec.Description)
		}

		tools[i] = openai.ChatCompletionToolParam{
			Type:     openai.F(openai.ChatCompletionToolTypeFunction),
			Function: openai.F(def),
		}
	}

	req := openai.ChatCompletionNewParams{
		Messages: openai.F(messagesToOpenAI(params.Instructions, params.Messages)),
		Model:    openai.F(m.name),
		N:        openai.Int(1),
	}
	if t := params.Settings.Temperature; t != nil {
		req.Temperature = openai.Float(*t)
	}
	if p := params.Settings.TopP; p != nil {
		req.TopP = openai.Float(*p)
	}
	if len(tools) > 0 {
		req.Tools = openai.F(tools)
	}
	return req, nil
}

func messagesToOpenAI(instructions string, msgs messages.List) []openai.ChatCompletionMessageParamUnion {
	var result []openai.ChatCompletionMessageParamUnion
	if strings.TrimSpace(instructions) != "" {
		result = append(result, openai.SystemMessage(instructions))
	}

	for _, message := range msgs {
		switch msg := message.(type) {
		case messages.System:
			result = append(result, openai.SystemMessage(msg.Content))
		case messages.User:
			result = append(result, openai.UserMessageParts(openai.TextPart(msg.Content)))
		case messages.ToolResult:
			result = append(result, openai.ToolMessage(msg.ToolCallID, msg.Content))
		case messages.Assistant:
			if msg.HasToolCalls() {
				tcd := make([]openai.ChatCompletionMessageToolCallParam, len(msg.ToolCalls))
				for i, tc := range msg.ToolCalls {
					tcd[i] = openai.ChatCompletionMessageToolCallParam{
						ID:   openai.String(tc.ID),
						Type: openai.F(openai.ChatCompletionMessageToolCallTypeFunction),
						Function: openai.F(openai.ChatCompletionMessageToolCallFunctionParam{
							Name:      openai.String(tc.Name),
							Arguments: openai.String(tc.Arguments),
						}),
					}
				}
				am := openai.ChatCompletionMessageParam{
					Role:      openai.F(openai.ChatCompletionMessageParamRoleAssistant),
					ToolCalls: openai.F[any](tcd),
				}
				if msg.Content != "" {
					am.Content = openai.F[any](msg.Content)
				}
				result = append(result, am)
				continue
			}

			am := openai.ChatCompletionAssistantMessageParam{
				Role: openai.F(openai.ChatCompletionAssistantMessageParamRoleAssistant),
			}
			am.Content.Value = append(am.Content.Value, openai.TextPart(msg.Content))
			result = append(result, am)
		}
	}
	return result
}

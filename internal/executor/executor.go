package executor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/casualjim/loom/events"
	"github.com/casualjim/loom/internal/threadstore"
	"github.com/casualjim/loom/pkg/messages"
	"github.com/casualjim/loom/pkg/slogx"
	"github.com/casualjim/loom/plan"
	"github.com/casualjim/loom/provider"
	"github.com/casualjim/loom/tool"
	"github.com/go-openapi/strfmt"
	"github.com/google/uuid"
)

var (
	ErrUnimplemented     = errors.New("node type is not implemented")
	ErrToolLimitExceeded = errors.New("tool limit exceeded")
	ErrToolInvocation    = errors.New("tool invocation failed")
	ErrMaxRounds         = errors.New("too many tool rounds")
)

// InitialToolCallID identifies the call made for a tool-first node's initial tool.
const InitialToolCallID = "initial_tool"

const (
	DefaultToolLimit = 1
	DefaultMaxRounds = 16
)

// Config tunes node execution for a session.
type Config struct {
	// DefaultToolLimit applies to tools without a tools_limit entry. Zero means
	// DefaultToolLimit, negative means unlimited.
	DefaultToolLimit int
	// MaxRounds caps model calls in a tool loop. Zero means DefaultMaxRounds.
	MaxRounds int
	// Instructions is sent as the system prompt of every model call.
	Instructions string
}

func (c Config) defaultLimit() int {
	if c.DefaultToolLimit == 0 {
		return DefaultToolLimit
	}
	return c.DefaultToolLimit
}

func (c Config) maxRounds() int {
	if c.MaxRounds <= 0 {
		return DefaultMaxRounds
	}
	return c.MaxRounds
}

// Command holds the collaborators an Executor works with.
type Command struct {
	SessionID uuid.UUID
	Store     *threadstore.Store
	Tools     tool.Registry
	Model     provider.Model
	Settings  provider.Settings
	Publisher events.Publisher
	Config    Config
}

func (c Command) Validate() error {
	var err error
	if c.Store == nil {
		err = errors.Join(err, errors.New("thread store is required"))
	}
	if c.Tools == nil {
		err = errors.Join(err, errors.New("tool registry is required"))
	}
	if c.Model == nil {
		err = errors.Join(err, errors.New("model is required"))
	}
	return err
}

// Executor runs nodes one at a time. It is not safe for concurrent use.
type Executor struct {
	cmd    Command
	logger *slog.Logger
}

func New(cmd Command) (*Executor, error) {
	if err := cmd.Validate(); err != nil {
		return nil, err
	}
	if cmd.Publisher == nil {
		cmd.Publisher = events.Nop
	}
	return &Executor{
		cmd:    cmd,
		logger: slog.Default().With(slogx.LoggerName("executor"), slogx.Stringer("session", cmd.SessionID)),
	}, nil
}

// Execute runs a node against its thread, which must already exist. The returned
// record is complete whether or not the node failed; a failure is also returned as
// the error.
func (e *Executor) Execute(ctx context.Context, node plan.Node) (*Record, error) {
	input, err := e.cmd.Store.Messages(node.ThreadID)
	if err != nil {
		return nil, err
	}

	run := &nodeRun{
		Executor: e,
		node:     node,
		counts:   make(map[string]int),
		logger:   e.logger.With(slog.String("node", node.ID), slog.String("thread", node.ThreadID)),
		record: &Record{
			NodeID:        node.ID,
			NodeName:      node.Name,
			NodeType:      node.Type,
			ThreadID:      node.ThreadID,
			Status:        StatusRunning,
			InputMessages: input,
			StartedAt:     strfmt.DateTime(time.Now()),
		},
	}

	output, err := run.execute(ctx)
	rec := run.record
	rec.FinishedAt = strfmt.DateTime(time.Now())
	if after, merr := e.cmd.Store.Messages(node.ThreadID); merr == nil {
		rec.MessagesAfter = after
	}
	if err != nil {
		rec.Status = StatusFailed
		rec.Error = err.Error()
		run.logger.Error("node failed", slogx.Error(err))
		return rec, err
	}
	rec.Status = StatusCompleted
	rec.ModelOutput = output
	if node.DataOut {
		rec.DataOutContent = output
	}
	return rec, nil
}

type nodeRun struct {
	*Executor
	node   plan.Node
	record *Record
	counts map[string]int
	logger *slog.Logger
}

func (r *nodeRun) execute(ctx context.Context) (string, error) {
	switch r.node.Type {
	case plan.LLMFirst, plan.ToolFirst:
	default:
		return "", fmt.Errorf("%w: %s", ErrUnimplemented, r.node.Type)
	}

	if r.node.PassThrough() {
		last, ok := r.record.InputMessages.Last()
		if !ok {
			return "", nil
		}
		r.logger.Debug("relaying last input message")
		return last.Text(), nil
	}

	for _, name := range r.node.RequiredTools() {
		if !r.cmd.Tools.Has(name) {
			return "", fmt.Errorf("%w: %s", tool.ErrToolNotFound, name)
		}
	}

	if r.node.Type == plan.ToolFirst {
		result, err := r.initialTool(ctx)
		if err != nil {
			return "", err
		}
		if r.node.TaskPrompt == "" {
			return result, nil
		}
	}
	return r.modelPhase(ctx)
}

func (r *nodeRun) initialTool(ctx context.Context) (string, error) {
	call := messages.ToolCall{
		ID:        InitialToolCallID,
		Name:      r.node.InitialToolName,
		Arguments: r.node.Args(),
	}
	if err := r.consume(call.Name); err != nil {
		return "", err
	}
	result, err := r.invoke(ctx, call)
	if err != nil {
		return "", err
	}
	if err := r.cmd.Store.Append(r.node.ThreadID,
		messages.NewAssistant("", call),
		messages.NewToolResult(call.ID, call.Name, result),
	); err != nil {
		return "", err
	}
	return result, nil
}

func (r *nodeRun) modelPhase(ctx context.Context) (string, error) {
	specs := make([]tool.Spec, 0, len(r.node.Tools))
	for _, name := range r.node.Tools {
		spec, ok := r.cmd.Tools.Spec(name)
		if !ok {
			return "", fmt.Errorf("%w: %s", tool.ErrToolNotFound, name)
		}
		specs = append(specs, spec)
	}

	if err := r.cmd.Store.Append(r.node.ThreadID, messages.NewUser(r.taskPrompt())); err != nil {
		return "", err
	}

	for round := 1; ; round++ {
		if round > r.cmd.Config.maxRounds() {
			return "", fmt.Errorf("%w: %d", ErrMaxRounds, r.cmd.Config.maxRounds())
		}

		completion, err := r.complete(ctx, specs)
		if err != nil {
			return "", err
		}
		if err := r.cmd.Store.Append(r.node.ThreadID, completion.Message()); err != nil {
			return "", err
		}
		if len(completion.ToolCalls) == 0 {
			return completion.Content, nil
		}

		r.logger.Debug("model requested tools", slog.Int("round", round), slog.Int("calls", len(completion.ToolCalls)))
		for _, call := range completion.ToolCalls {
			result, err := r.modelToolCall(ctx, call)
			if err != nil {
				return "", err
			}
			if err := r.cmd.Store.Append(r.node.ThreadID, messages.NewToolResult(call.ID, call.Name, result)); err != nil {
				return "", err
			}
		}

		if !r.node.EnableToolLoop {
			return completion.Content, nil
		}
	}
}

func (r *nodeRun) complete(ctx context.Context, specs []tool.Spec) (provider.Completion, error) {
	msgs, err := r.cmd.Store.Messages(r.node.ThreadID)
	if err != nil {
		return provider.Completion{}, err
	}
	if r.record.ModelInput == nil {
		if r.cmd.Config.Instructions != "" {
			r.record.ModelInput = append(r.record.ModelInput, messages.NewSystem(r.cmd.Config.Instructions))
		}
		r.record.ModelInput = append(r.record.ModelInput, msgs...)
	}

	completion, err := r.cmd.Model.Complete(ctx, provider.CompletionParams{
		Instructions: r.cmd.Config.Instructions,
		Messages:     msgs,
		Tools:        specs,
		Settings:     r.cmd.Settings,
	})
	if err != nil {
		if !errors.Is(err, provider.ErrModelInvocation) {
			err = fmt.Errorf("%w: %w", provider.ErrModelInvocation, err)
		}
		return provider.Completion{}, err
	}
	r.record.Usage.AddUsage(&completion.Usage)
	return completion, nil
}

func (r *nodeRun) modelToolCall(ctx context.Context, call messages.ToolCall) (string, error) {
	if !slices.Contains(r.node.Tools, call.Name) || !r.cmd.Tools.Has(call.Name) {
		return "", fmt.Errorf("%w: %s", tool.ErrToolNotFound, call.Name)
	}
	if err := r.consume(call.Name); err != nil {
		return "", err
	}
	return r.invoke(ctx, call)
}

// limit returns the effective invocation limit of a tool, negative meaning unlimited.
func (r *nodeRun) limit(name string) int {
	if v, ok := r.node.Limit(name); ok {
		return v
	}
	return r.cmd.Config.defaultLimit()
}

func (r *nodeRun) remaining(name string) int {
	lim := r.limit(name)
	if lim < 0 {
		return -1
	}
	return max(lim-r.counts[name], 0)
}

func (r *nodeRun) consume(name string) error {
	if lim := r.limit(name); lim >= 0 && r.counts[name] >= lim {
		return fmt.Errorf("%w: %s (limit %d)", ErrToolLimitExceeded, name, lim)
	}
	r.counts[name]++
	return nil
}

func (r *nodeRun) invoke(ctx context.Context, call messages.ToolCall) (string, error) {
	rec := ToolCallRecord{ID: call.ID, Name: call.Name, Arguments: call.Arguments}
	result, err := r.cmd.Tools.Invoke(ctx, call.Name, call.Arguments)
	if err != nil {
		rec.Error = err.Error()
	} else {
		rec.Result = result
	}
	r.record.ToolCalls = append(r.record.ToolCalls, rec)

	if perr := r.cmd.Publisher.Publish(ctx, events.ToolInvoked{
		SessionID: r.cmd.SessionID,
		NodeID:    r.node.ID,
		CallID:    call.ID,
		Tool:      call.Name,
		Arguments: call.Arguments,
		Result:    rec.Result,
		Error:     rec.Error,
		Timestamp: strfmt.DateTime(time.Now()),
	}); perr != nil {
		r.logger.Warn("failed to publish tool event", slogx.Error(perr))
	}

	if err != nil {
		if errors.Is(err, tool.ErrToolNotFound) {
			return "", err
		}
		return "", fmt.Errorf("%w: %s: %w", ErrToolInvocation, call.Name, err)
	}
	return result, nil
}

// taskPrompt prefixes the node's task with the remaining budget of each tool it may call.
func (r *nodeRun) taskPrompt() string {
	if len(r.node.Tools) == 0 {
		return r.node.TaskPrompt
	}

	var b strings.Builder
	b.WriteString("Tool call limits, plan your tool calls accordingly:\n")
	for _, name := range r.node.Tools {
		b.WriteString("- ")
		b.WriteString(name)
		b.WriteString(": ")
		if n := r.remaining(name); n < 0 {
			b.WriteString("unlimited")
		} else {
			b.WriteString(strconv.Itoa(n))
			b.WriteString(" calls remaining")
		}
		b.WriteString("\n")
	}
	b.WriteString("\nComplete the following task:\n")
	b.WriteString(r.node.TaskPrompt)
	return b.String()
}

package loom

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/casualjim/loom/broker"
	"github.com/casualjim/loom/events"
	"github.com/casualjim/loom/internal/controller"
	"github.com/casualjim/loom/internal/executor"
	"github.com/casualjim/loom/internal/registry"
	"github.com/casualjim/loom/internal/threadstore"
	"github.com/casualjim/loom/internal/tracker"
	"github.com/casualjim/loom/pkg/messages"
	"github.com/casualjim/loom/pkg/slogx"
	"github.com/casualjim/loom/pkg/uuidx"
	"github.com/casualjim/loom/plan"
	"github.com/casualjim/loom/provider"
	"github.com/casualjim/loom/tool"
	"github.com/fogfish/opts"
	"github.com/google/uuid"
)

var (
	ErrNotFound = errors.New("not found")
	// ErrNoModel is returned by Init when neither a model nor a model factory is configured.
	ErrNoModel = errors.New("no model configured")
	// ErrToolsNotOwned is returned by RegisterTool for sessions using a caller-owned registry.
	ErrToolsNotOwned = errors.New("session tools are owned by the caller")
)

// Re-exported so callers do not need the internal packages.
type (
	NodeContext   = executor.Record
	NodeStatus    = executor.Status
	Status        = tracker.Snapshot
	OverallStatus = tracker.OverallStatus
)

// Manager owns a set of independent sessions. It is safe for concurrent use.
type Manager struct {
	sessions registry.Registry[*session]
	logger   *slog.Logger

	tools        []tool.Definition
	factory      provider.Factory
	model        provider.Config
	broker       broker.Broker
	hooks        []events.Hook
	instructions string
	maxRounds    int
	toolLimit    int
}

type session struct {
	id      uuid.UUID
	plan    *plan.Plan
	store   *threadstore.Store
	tracker *tracker.Tracker
	ctrl    *controller.Controller
	tools   tool.Registry
	ctx     context.Context
	cancel  context.CancelFunc
}

func NewManager(options ...ManagerOption) (*Manager, error) {
	m := &Manager{
		sessions: registry.New[*session](),
		logger:   slog.Default().With(slogx.LoggerName("loom")),
	}
	if err := opts.Apply(m, options); err != nil {
		return nil, err
	}
	return m, nil
}

// Init creates a session for a loaded plan. The main thread starts with the user message.
func (m *Manager) Init(ctx context.Context, p *plan.Plan, userMessage string, options ...InitOption) (uuid.UUID, error) {
	if p == nil {
		return uuid.Nil, errors.New("plan is required")
	}
	var o initOptions
	if err := opts.Apply(&o, options); err != nil {
		return uuid.Nil, err
	}

	model, settings, err := m.resolveModel(o)
	if err != nil {
		return uuid.Nil, err
	}

	tools := o.registry
	if tools == nil {
		tools = tool.NewTable(m.tools...)
	}

	limit := m.toolLimit
	if o.toolLimit != nil {
		limit = *o.toolLimit
	}

	id := uuidx.New()
	publisher := m.publisher(ctx, id, append(m.hooks[:len(m.hooks):len(m.hooks)], o.hooks...))

	store := threadstore.New(messages.NewUser(userMessage))
	tr := tracker.New(p)
	ex, err := executor.New(executor.Command{
		SessionID: id,
		Store:     store,
		Tools:     tools,
		Model:     model,
		Settings:  settings,
		Publisher: publisher,
		Config: executor.Config{
			DefaultToolLimit: limit,
			MaxRounds:        m.maxRounds,
			Instructions:     m.instructions,
		},
	})
	if err != nil {
		return uuid.Nil, err
	}
	ctrl, err := controller.New(controller.Command{
		SessionID: id,
		Plan:      p,
		Store:     store,
		Tracker:   tr,
		Executor:  ex,
		Publisher: publisher,
	})
	if err != nil {
		return uuid.Nil, err
	}

	sctx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	m.sessions.Add(id.String(), &session{
		id:      id,
		plan:    p,
		store:   store,
		tracker: tr,
		ctrl:    ctrl,
		tools:   tools,
		ctx:     sctx,
		cancel:  cancel,
	})
	m.logger.Info("session initialized", slogx.Stringer("session", id), slog.Int("nodes", p.Len()), slog.String("model", model.Name()))
	return id, nil
}

func (m *Manager) resolveModel(o initOptions) (provider.Model, provider.Settings, error) {
	cfg := m.model
	if o.modelConfig != nil {
		cfg = *o.modelConfig
	}
	if o.model != nil {
		return o.model, cfg.Settings(), nil
	}
	if m.factory == nil {
		return nil, provider.Settings{}, ErrNoModel
	}
	model, err := m.factory(cfg)
	if err != nil {
		return nil, provider.Settings{}, fmt.Errorf("%w: %w", ErrNoModel, err)
	}
	return model, cfg.Settings(), nil
}

func (m *Manager) publisher(ctx context.Context, id uuid.UUID, hooks []events.Hook) events.Publisher {
	var pubs []events.Publisher
	if m.broker != nil {
		pubs = append(pubs, m.broker.Topic(ctx, id.String()))
	}
	for _, h := range hooks {
		pubs = append(pubs, events.FromHook(h))
	}
	if len(pubs) == 0 {
		return events.Nop
	}
	return events.Multi(pubs...)
}

func (m *Manager) session(id uuid.UUID) (*session, error) {
	s, ok := m.sessions.Get(id.String())
	if !ok {
		return nil, fmt.Errorf("%w: session %s", ErrNotFound, id)
	}
	return s, nil
}

// Run executes the session in the background. The run outlives ctx's cancellation
// but not its session: Terminate cancels it.
func (m *Manager) Run(id uuid.UUID) error {
	s, err := m.session(id)
	if err != nil {
		return err
	}
	return s.ctrl.Start(s.ctx)
}

// Wait blocks until the background run of a session finishes.
func (m *Manager) Wait(id uuid.UUID) error {
	s, err := m.session(id)
	if err != nil {
		return err
	}
	return s.ctrl.Wait()
}

// RunSync executes every pending node and returns when the run ends.
func (m *Manager) RunSync(ctx context.Context, id uuid.UUID) error {
	s, err := m.session(id)
	if err != nil {
		return err
	}
	return s.ctrl.RunAll(ctx)
}

// Step executes a single node, the first eligible one when nodeID is empty. done
// reports whether every node of the plan has finished.
func (m *Manager) Step(ctx context.Context, id uuid.UUID, nodeID string) (nc *NodeContext, done bool, err error) {
	s, err := m.session(id)
	if err != nil {
		return nil, false, err
	}
	nc, done, err = s.ctrl.Step(ctx, nodeID)
	if errors.Is(err, controller.ErrNodeNotFound) {
		err = fmt.Errorf("%w: %w", ErrNotFound, err)
	}
	return nc, done, err
}

// Status returns a snapshot of the session. It never blocks on a running node.
func (m *Manager) Status(id uuid.UUID) (*Status, error) {
	s, err := m.session(id)
	if err != nil {
		return nil, err
	}
	return s.tracker.Snapshot(), nil
}

// NodeContext returns what a node saw and produced. A node that has not run yet
// yields a context with its current status only.
func (m *Manager) NodeContext(id uuid.UUID, nodeID string) (*NodeContext, error) {
	s, err := m.session(id)
	if err != nil {
		return nil, err
	}
	node, ok := s.plan.Lookup(nodeID)
	if !ok {
		return nil, fmt.Errorf("%w: node %s", ErrNotFound, nodeID)
	}
	if rec, ok := s.ctrl.Record(nodeID); ok {
		return rec, nil
	}
	status, _ := s.tracker.Status(nodeID)
	return &NodeContext{
		NodeID:   node.ID,
		NodeName: node.Name,
		NodeType: node.Type,
		ThreadID: node.ThreadID,
		Status:   status,
	}, nil
}

// Messages returns a copy of a thread's history.
func (m *Manager) Messages(id uuid.UUID, threadID string) (messages.List, error) {
	s, err := m.session(id)
	if err != nil {
		return nil, err
	}
	msgs, err := s.store.Messages(threadID)
	if errors.Is(err, threadstore.ErrThreadNotFound) {
		return nil, fmt.Errorf("%w: thread %s", ErrNotFound, threadID)
	}
	return msgs, err
}

// Threads lists the threads created so far, in creation order.
func (m *Manager) Threads(id uuid.UUID) ([]string, error) {
	s, err := m.session(id)
	if err != nil {
		return nil, err
	}
	return s.store.Threads(), nil
}

// Plan returns the plan a session interprets.
func (m *Manager) Plan(id uuid.UUID) (*plan.Plan, error) {
	s, err := m.session(id)
	if err != nil {
		return nil, err
	}
	return s.plan, nil
}

// RegisterTool adds tools to a session's own tool table.
func (m *Manager) RegisterTool(id uuid.UUID, defs ...tool.Definition) error {
	s, err := m.session(id)
	if err != nil {
		return err
	}
	table, ok := s.tools.(*tool.Table)
	if !ok {
		return ErrToolsNotOwned
	}
	table.Register(defs...)
	return nil
}

// Subscribe attaches a hook to the session's broker topic.
func (m *Manager) Subscribe(ctx context.Context, id uuid.UUID, hook events.Hook) (broker.Subscription, error) {
	if _, err := m.session(id); err != nil {
		return nil, err
	}
	if m.broker == nil {
		return nil, errors.New("no broker configured")
	}
	return m.broker.Topic(ctx, id.String()).Subscribe(ctx, hook)
}

// Stop asks the session's active run to halt at the next node boundary.
func (m *Manager) Stop(id uuid.UUID) error {
	s, err := m.session(id)
	if err != nil {
		return err
	}
	s.ctrl.Stop()
	return nil
}

// Terminate stops the session and releases it. A node that is executing is
// cancelled through its context; Terminate does not wait for it.
func (m *Manager) Terminate(id uuid.UUID) error {
	s, err := m.session(id)
	if err != nil {
		return err
	}
	s.ctrl.Stop()
	s.cancel()
	if m.broker != nil {
		m.broker.Release(id.String())
	}
	m.sessions.Del(id.String())
	m.logger.Info("session terminated", slogx.Stringer("session", id))
	return nil
}

// Sessions lists the ids of the live sessions.
func (m *Manager) Sessions() []uuid.UUID {
	names := m.sessions.Names()
	ids := make([]uuid.UUID, 0, len(names))
	for _, name := range names {
		if id, err := uuid.Parse(name); err == nil {
			ids = append(ids, id)
		}
	}
	return ids
}

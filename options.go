package loom

import (
	"github.com/casualjim/loom/broker"
	"github.com/casualjim/loom/events"
	"github.com/casualjim/loom/provider"
	"github.com/casualjim/loom/tool"
	"github.com/fogfish/opts"
)

// ManagerOption configures a Manager.
type ManagerOption = opts.Option[Manager]

// WithTools adds tools that every new session starts with.
func WithTools(defs ...tool.Definition) ManagerOption {
	return opts.Type[Manager](func(m *Manager) error {
		m.tools = append(m.tools, defs...)
		return nil
	})
}

// WithModelFactory sets how sessions build their model from a provider.Config.
var WithModelFactory = opts.ForName[Manager, provider.Factory]("factory")

// WithModelConfig sets the model configuration used when Init does not override it.
var WithModelConfig = opts.ForName[Manager, provider.Config]("model")

// WithBroker publishes the events of every session to the topic named by its id.
var WithBroker = opts.ForName[Manager, broker.Broker]("broker")

// WithInstructions sets the system prompt of every model call.
var WithInstructions = opts.ForName[Manager, string]("instructions")

// WithMaxRounds caps the model calls of a node's tool loop.
var WithMaxRounds = opts.ForName[Manager, int]("maxRounds")

// WithDefaultToolLimit sets the tool limit used when Init does not override it.
var WithDefaultToolLimit = opts.ForName[Manager, int]("toolLimit")

// WithHooks attaches hooks to every session.
func WithHooks(hooks ...events.Hook) ManagerOption {
	return opts.Type[Manager](func(m *Manager) error {
		m.hooks = append(m.hooks, hooks...)
		return nil
	})
}

type initOptions struct {
	toolLimit   *int
	modelConfig *provider.Config
	model       provider.Model
	registry    tool.Registry
	hooks       []events.Hook
}

// InitOption configures a single session.
type InitOption = opts.Option[initOptions]

// WithToolLimit sets the session default tool limit. Zero means 1, negative means unlimited.
func WithToolLimit(n int) InitOption {
	return opts.Type[initOptions](func(o *initOptions) error {
		o.toolLimit = &n
		return nil
	})
}

// WithModel uses the given model instead of building one from configuration.
var WithModel = opts.ForName[initOptions, provider.Model]("model")

// WithSessionModelConfig builds the session model from cfg instead of the Manager's configuration.
func WithSessionModelConfig(cfg provider.Config) InitOption {
	return opts.Type[initOptions](func(o *initOptions) error {
		o.modelConfig = &cfg
		return nil
	})
}

// WithRegistry replaces the session tool table with a caller-owned registry.
var WithRegistry = opts.ForName[initOptions, tool.Registry]("registry")

// WithSessionHooks attaches hooks to this session only.
func WithSessionHooks(hooks ...events.Hook) InitOption {
	return opts.Type[initOptions](func(o *initOptions) error {
		o.hooks = append(o.hooks, hooks...)
		return nil
	})
}

package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/casualjim/loom"
	"github.com/casualjim/loom/broker"
	"github.com/casualjim/loom/events"
	"github.com/casualjim/loom/internal/config"
	"github.com/casualjim/loom/pkg/natsx"
	"github.com/casualjim/loom/pkg/slogx"
	"github.com/casualjim/loom/plan"
	"github.com/casualjim/loom/provider/openai"
	"github.com/casualjim/loom/tool"
	"github.com/fatih/color"
)

// app carries what every command needs once flags and configuration are resolved.
type app struct {
	cfg    *config.Config
	out    io.Writer
	status io.Writer
}

type session struct {
	*loom.Manager
	plan  *plan.Plan
	close func()
}

// open loads a plan and builds a manager for it from the configuration.
func (a *app) open(planFile string, extra ...loom.ManagerOption) (*session, error) {
	p, err := plan.LoadFile(planFile)
	if err != nil {
		return nil, err
	}

	options := []loom.ManagerOption{
		loom.WithTools(builtinTools()...),
		loom.WithModelFactory(openai.Factory),
		loom.WithModelConfig(a.cfg.Model),
		loom.WithDefaultToolLimit(a.cfg.Session.DefaultToolLimit),
		loom.WithMaxRounds(a.cfg.Session.MaxRounds),
		loom.WithInstructions(a.cfg.Session.Instructions),
		loom.WithHooks(events.LoggingHook()),
	}

	closer := func() {}
	switch a.cfg.Events.Broker {
	case "local":
		options = append(options, loom.WithBroker(broker.Broker(broker.Local())))
	case "nats":
		conn, err := natsx.NewClient(a.cfg.Events.NATSURL)
		if err != nil {
			return nil, fmt.Errorf("failed to connect to nats: %w", err)
		}
		options = append(options, loom.WithBroker(broker.Broker(broker.NATS(conn))))
		closer = func() {
			if err := conn.Drain(); err != nil {
				slog.Warn("failed to drain nats connection", slogx.Error(err))
			}
		}
	}

	m, err := loom.NewManager(append(options, extra...)...)
	if err != nil {
		closer()
		return nil, err
	}
	return &session{Manager: m, plan: p, close: closer}, nil
}

func initOptions(limit int) []loom.InitOption {
	if limit == 0 {
		return nil
	}
	return []loom.InitOption{loom.WithToolLimit(limit)}
}

func (r *RunCmd) Run(ctx context.Context, a *app) error {
	var extra []loom.ManagerOption
	if r.Events {
		extra = append(extra, loom.WithHooks(newProgressHook(a.status)))
	}
	s, err := a.open(r.Plan, extra...)
	if err != nil {
		return err
	}
	defer s.close()

	id, err := s.Init(ctx, s.plan, r.Message, initOptions(r.ToolLimit)...)
	if err != nil {
		return err
	}
	defer func() { _ = s.Terminate(id) }()

	if err := s.Manager.Run(id); err != nil {
		return err
	}
	stopped := make(chan struct{})
	defer close(stopped)
	go func() {
		select {
		case <-ctx.Done():
			fmt.Fprintln(a.status, color.YellowString("stopping after the current node..."))
			_ = s.Stop(id)
		case <-stopped:
		}
	}()
	runErr := s.Wait(id)

	if r.Inspect {
		for _, node := range s.plan.Nodes() {
			nc, err := s.NodeContext(id, node.ID)
			if err != nil {
				return err
			}
			dumpNodeContext(a.out, nc)
		}
	}

	status, err := s.Status(id)
	if err != nil {
		return err
	}
	printSummary(a.status, status)

	if runErr != nil {
		return runErr
	}
	msgs, err := s.Messages(id, r.Thread)
	if err != nil {
		return err
	}
	if last, ok := msgs.Last(); ok {
		fmt.Fprintln(a.out, renderMarkdown(last.Text()))
	}
	return nil
}

func (r *StepCmd) Run(ctx context.Context, a *app) error {
	s, err := a.open(r.Plan)
	if err != nil {
		return err
	}
	defer s.close()

	id, err := s.Init(ctx, s.plan, r.Message, initOptions(r.ToolLimit)...)
	if err != nil {
		return err
	}
	defer func() { _ = s.Terminate(id) }()

	step := func(nodeID string) (bool, error) {
		nc, done, err := s.Step(ctx, id, nodeID)
		if nc != nil {
			dumpNodeContext(a.out, nc)
		}
		return done, err
	}

	if len(r.Nodes) > 0 {
		for _, nodeID := range r.Nodes {
			if _, err := step(nodeID); err != nil {
				return err
			}
		}
	} else {
		for done := false; !done; {
			if err := ctx.Err(); err != nil {
				return err
			}
			if done, err = step(""); err != nil {
				return err
			}
		}
	}

	status, err := s.Status(id)
	if err != nil {
		return err
	}
	printSummary(a.status, status)
	return nil
}

func (v *ValidateCmd) Run(a *app) error {
	p, err := plan.LoadFile(v.Plan)
	if err != nil {
		return err
	}
	if v.Tools {
		table := tool.NewTable(builtinTools()...)
		var missing []error
		for _, node := range p.Nodes() {
			for _, name := range node.RequiredTools() {
				if !table.Has(name) {
					missing = append(missing, fmt.Errorf("node %s: %w: %s", node.ID, tool.ErrToolNotFound, name))
				}
			}
		}
		if err := errors.Join(missing...); err != nil {
			return err
		}
	}
	fmt.Fprintf(a.out, "%s %d nodes, threads: %s\n",
		color.GreenString("plan is valid:"), p.Len(), strings.Join(p.Threads(), ", "))
	return nil
}

func (ToolsCmd) Run(a *app) error {
	for _, def := range builtinTools() {
		fmt.Fprintf(a.out, "%s\t%s\n", color.YellowString(def.Name), def.Description)
	}
	return nil
}

func (VersionCmd) Run(a *app) error {
	fmt.Fprintf(a.out, "loom %s (%s)\n", version, commit)
	return nil
}

// Package controller drives the nodes of a session in plan order.
//
// Both entry points share one per-node procedure: ensure the node's thread,
// mark it RUNNING, execute it, merge its output when data_out is set and record
// the terminal state. RunAll executes every pending node and halts at the first
// failure; Step executes exactly one eligible node. A node is eligible when it is
// PENDING and every node before it in plan order is terminal, which keeps the
// creation and seeding of threads deterministic.
package controller

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/casualjim/loom/events"
	"github.com/casualjim/loom/internal/executor"
	"github.com/casualjim/loom/internal/threadstore"
	"github.com/casualjim/loom/internal/tracker"
	"github.com/casualjim/loom/pkg/slogx"
	"github.com/casualjim/loom/plan"
	"github.com/go-openapi/strfmt"
	"github.com/google/uuid"
)

var (
	ErrAlreadyRunning = errors.New("session is already running")
	ErrNotEligible    = errors.New("node is not eligible")
	ErrNodeNotFound   = errors.New("node not found")
	ErrStopped        = errors.New("run stopped")
)

type Command struct {
	SessionID uuid.UUID
	Plan      *plan.Plan
	Store     *threadstore.Store
	Tracker   *tracker.Tracker
	Executor  *executor.Executor
	Publisher events.Publisher
}

func (c Command) Validate() error {
	var err error
	if c.Plan == nil {
		err = errors.Join(err, errors.New("plan is required"))
	}
	if c.Store == nil {
		err = errors.Join(err, errors.New("thread store is required"))
	}
	if c.Tracker == nil {
		err = errors.Join(err, errors.New("tracker is required"))
	}
	if c.Executor == nil {
		err = errors.Join(err, errors.New("executor is required"))
	}
	return err
}

type Controller struct {
	cmd    Command
	logger *slog.Logger

	// busy is held by whichever run or step is executing nodes.
	busy atomic.Bool
	stop atomic.Bool

	mu      sync.RWMutex
	records map[string]*executor.Record
	done    chan struct{}
	err     error
}

func New(cmd Command) (*Controller, error) {
	if err := cmd.Validate(); err != nil {
		return nil, err
	}
	if cmd.Publisher == nil {
		cmd.Publisher = events.Nop
	}
	return &Controller{
		cmd:     cmd,
		records: make(map[string]*executor.Record, cmd.Plan.Len()),
		logger:  slog.Default().With(slogx.LoggerName("controller"), slogx.Stringer("session", cmd.SessionID)),
	}, nil
}

// RunAll executes every pending node in plan order and blocks until the run ends.
func (c *Controller) RunAll(ctx context.Context) error {
	if !c.busy.CompareAndSwap(false, true) {
		return ErrAlreadyRunning
	}
	defer c.busy.Store(false)
	c.stop.Store(false)
	return c.runAll(ctx)
}

// Start executes every pending node in the background. Use Wait to collect the result.
func (c *Controller) Start(ctx context.Context) error {
	if !c.busy.CompareAndSwap(false, true) {
		return ErrAlreadyRunning
	}
	c.stop.Store(false)

	done := make(chan struct{})
	c.mu.Lock()
	c.done = done
	c.err = nil
	c.mu.Unlock()

	go func() {
		err := c.runAll(ctx)
		c.mu.Lock()
		c.err = err
		c.mu.Unlock()
		c.busy.Store(false)
		close(done)
	}()
	return nil
}

// Wait blocks until the background run started by Start finishes and returns its error.
// It returns immediately when no background run was started.
func (c *Controller) Wait() error {
	c.mu.RLock()
	done := c.done
	c.mu.RUnlock()
	if done == nil {
		return nil
	}
	<-done

	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.err
}

// Running reports whether a run or step is executing.
func (c *Controller) Running() bool {
	return c.busy.Load()
}

// Stop asks an active run to halt before its next node. The running node is not interrupted.
func (c *Controller) Stop() {
	c.stop.Store(true)
}

// Step executes one node: the named one, or the first eligible node when nodeID is
// empty. done reports whether every node has reached a terminal state.
func (c *Controller) Step(ctx context.Context, nodeID string) (rec *executor.Record, done bool, err error) {
	if !c.busy.CompareAndSwap(false, true) {
		return nil, false, ErrAlreadyRunning
	}
	defer c.busy.Store(false)

	var idx int
	if nodeID == "" {
		var ok bool
		if idx, ok = c.nextEligible(); !ok {
			return nil, true, nil
		}
	} else {
		var ok bool
		if idx, ok = c.cmd.Plan.Index(nodeID); !ok {
			return nil, false, fmt.Errorf("%w: %s", ErrNodeNotFound, nodeID)
		}
		if !c.eligible(idx) {
			status, _ := c.cmd.Tracker.Status(nodeID)
			return nil, false, fmt.Errorf("%w: %s is %s", ErrNotEligible, nodeID, status)
		}
	}

	rec, err = c.runNode(ctx, idx)
	done = c.finished()
	switch {
	case err != nil:
		c.cmd.Tracker.SetStatus(tracker.Failed, err)
	case done:
		c.finish(ctx, nil)
	}
	return rec, done, err
}

// Record returns a copy of the execution record of a node that has run.
func (c *Controller) Record(nodeID string) (*executor.Record, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	rec, ok := c.records[nodeID]
	if !ok {
		return nil, false
	}
	return rec.Clone(), true
}

func (c *Controller) runAll(ctx context.Context) error {
	c.cmd.Tracker.SetStatus(tracker.Running, nil)
	c.logger.Info("run started", slog.Int("nodes", c.cmd.Plan.Len()))

	for i, node := range c.cmd.Plan.Nodes() {
		if status, _ := c.cmd.Tracker.Status(node.ID); status.Terminal() {
			continue
		}

		if c.stop.Load() {
			return c.halt(ctx, ErrStopped)
		}
		if err := ctx.Err(); err != nil {
			return c.halt(ctx, fmt.Errorf("%w: %w", ErrStopped, err))
		}

		if _, err := c.runNode(ctx, i); err != nil {
			c.finish(ctx, err)
			return err
		}
	}

	return c.finish(ctx, nil)
}

func (c *Controller) halt(ctx context.Context, err error) error {
	c.logger.Info("run stopped")
	c.cmd.Tracker.SetStatus(tracker.Stopped, nil)
	c.publish(ctx, events.RunFinished{
		SessionID: c.cmd.SessionID,
		Status:    tracker.Stopped.String(),
		Timestamp: strfmt.DateTime(time.Now()),
	})
	return err
}

// finish records the overall outcome. A run that ends without error but left failed
// nodes behind from earlier steps is still failed.
func (c *Controller) finish(ctx context.Context, err error) error {
	status := tracker.Completed
	if err != nil || c.cmd.Tracker.Snapshot().Progress.Failed > 0 {
		status = tracker.Failed
	}
	c.cmd.Tracker.SetStatus(status, err)

	ev := events.RunFinished{
		SessionID: c.cmd.SessionID,
		Status:    status.String(),
		Timestamp: strfmt.DateTime(time.Now()),
	}
	if err != nil {
		ev.Error = err.Error()
	}
	c.publish(ctx, ev)
	c.logger.Info("run finished", slogx.Stringer("status", status))
	return err
}

func (c *Controller) runNode(ctx context.Context, idx int) (*executor.Record, error) {
	node := c.cmd.Plan.Node(idx)
	logger := c.logger.With(slog.String("node", node.ID), slog.String("thread", node.ThreadID))

	if created, injected := c.cmd.Store.Ensure(node, c.cmd.Plan.ParentThread(idx)); created {
		logger.Debug("thread created", slog.Int("injected", injected))
		c.publish(ctx, events.ThreadCreated{
			SessionID: c.cmd.SessionID,
			NodeID:    node.ID,
			ThreadID:  node.ThreadID,
			Source:    c.cmd.Plan.SourceThread(idx),
			Injected:  injected,
			Timestamp: strfmt.DateTime(time.Now()),
		})
	}

	if err := c.cmd.Tracker.Start(node.ID); err != nil {
		return nil, err
	}
	c.publish(ctx, events.NodeStarted{
		SessionID: c.cmd.SessionID,
		NodeID:    node.ID,
		NodeName:  node.Name,
		ThreadID:  node.ThreadID,
		Timestamp: strfmt.DateTime(time.Now()),
	})

	rec, err := c.cmd.Executor.Execute(ctx, node)
	if rec == nil {
		rec = &executor.Record{
			NodeID:     node.ID,
			NodeName:   node.Name,
			NodeType:   node.Type,
			ThreadID:   node.ThreadID,
			Status:     executor.StatusFailed,
			FinishedAt: strfmt.DateTime(time.Now()),
		}
	}
	c.cmd.Tracker.AddUsage(rec.Usage)

	if err == nil && node.DataOut {
		err = c.merge(ctx, node, rec)
	}
	if err != nil {
		rec.Status = executor.StatusFailed
		rec.Error = err.Error()
	}

	c.mu.Lock()
	c.records[node.ID] = rec
	c.mu.Unlock()

	if terr := c.cmd.Tracker.Finish(node.ID, err); terr != nil {
		logger.Error("failed to record node state", slogx.Error(terr))
	}
	c.publish(ctx, events.NodeFinished{
		SessionID: c.cmd.SessionID,
		NodeID:    node.ID,
		Status:    rec.Status.String(),
		Output:    rec.ModelOutput,
		Error:     rec.Error,
		Timestamp: strfmt.DateTime(time.Now()),
	})

	if err != nil {
		return rec, fmt.Errorf("node %s: %w", node.ID, err)
	}
	return rec, nil
}

func (c *Controller) merge(ctx context.Context, node plan.Node, rec *executor.Record) error {
	c.cmd.Store.SetOutput(node.ThreadID, threadstore.Output{
		Label:   node.DataOutDescription,
		Content: rec.DataOutContent,
		NodeID:  node.ID,
	})

	destination := node.OutputThread()
	merged, err := c.cmd.Store.Merge(node.ThreadID, destination)
	if err != nil {
		return err
	}
	if merged {
		c.publish(ctx, events.OutputMerged{
			SessionID:   c.cmd.SessionID,
			NodeID:      node.ID,
			ThreadID:    node.ThreadID,
			Destination: destination,
			Timestamp:   strfmt.DateTime(time.Now()),
		})
	}
	return nil
}

func (c *Controller) eligible(idx int) bool {
	snap := c.cmd.Tracker.Snapshot()
	if snap.Nodes[idx].Status != executor.StatusPending {
		return false
	}
	for _, prev := range snap.Nodes[:idx] {
		if !prev.Status.Terminal() {
			return false
		}
	}
	return true
}

func (c *Controller) nextEligible() (int, bool) {
	for i, n := range c.cmd.Tracker.Snapshot().Nodes {
		if n.Status == executor.StatusPending {
			return i, c.eligible(i)
		}
	}
	return 0, false
}

func (c *Controller) finished() bool {
	for _, n := range c.cmd.Tracker.Snapshot().Nodes {
		if !n.Status.Terminal() {
			return false
		}
	}
	return true
}

func (c *Controller) publish(ctx context.Context, e events.Event) {
	if err := c.cmd.Publisher.Publish(ctx, e); err != nil {
		c.logger.Warn("failed to publish event", slog.String("event", e.Kind()), slogx.Error(err))
	}
}

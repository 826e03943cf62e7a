// Package tracker keeps the execution state of every node in a session and
// publishes it as immutable snapshots.
//
// A Tracker has a single writer, the controller of its session. Every mutation
// copies the current snapshot, changes the copy and publishes it atomically, so
// readers on other goroutines never block and never observe a torn state.
package tracker

import (
	"errors"
	"fmt"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"github.com/casualjim/loom/internal/executor"
	"github.com/casualjim/loom/plan"
	"github.com/casualjim/loom/provider"
	"github.com/go-openapi/strfmt"
)

var ErrUnknownNode = errors.New("unknown node")

// OverallStatus summarizes a session.
type OverallStatus string

const (
	Initialized OverallStatus = "initialized"
	Running     OverallStatus = "running"
	Stopped     OverallStatus = "stopped"
	Completed   OverallStatus = "completed"
	Failed      OverallStatus = "failed"
)

func (s OverallStatus) String() string { return string(s) }

// NodeState is the tracked state of one node.
type NodeState struct {
	ID         string          `json:"id"`
	Name       string          `json:"name"`
	ThreadID   string          `json:"thread_id"`
	Status     executor.Status `json:"status"`
	Error      string          `json:"error,omitempty"`
	StartedAt  strfmt.DateTime `json:"started_at"`
	FinishedAt strfmt.DateTime `json:"finished_at"`
}

type Progress struct {
	Total     int     `json:"total"`
	Completed int     `json:"completed"`
	Failed    int     `json:"failed"`
	Running   int     `json:"running"`
	Pending   int     `json:"pending"`
	Percent   float64 `json:"percent"`
}

// Snapshot is a consistent view of a session. It must be treated as read-only.
type Snapshot struct {
	Status   OverallStatus  `json:"status"`
	Error    string         `json:"error,omitempty"`
	Nodes    []NodeState    `json:"nodes"`
	Progress Progress       `json:"progress"`
	Usage    provider.Usage `json:"usage"`
}

// Node returns the state of a node by id.
func (s *Snapshot) Node(id string) (NodeState, bool) {
	for _, n := range s.Nodes {
		if n.ID == id {
			return n, true
		}
	}
	return NodeState{}, false
}

type Tracker struct {
	mu    sync.Mutex
	snap  atomic.Pointer[Snapshot]
	index map[string]int
}

// New tracks every node of the plan, all PENDING.
func New(p *plan.Plan) *Tracker {
	t := &Tracker{index: make(map[string]int, p.Len())}
	snap := &Snapshot{
		Status: Initialized,
		Nodes:  make([]NodeState, p.Len()),
	}
	for i, node := range p.Nodes() {
		t.index[node.ID] = i
		snap.Nodes[i] = NodeState{
			ID:       node.ID,
			Name:     node.Name,
			ThreadID: node.ThreadID,
			Status:   executor.StatusPending,
		}
	}
	snap.Progress = progress(snap.Nodes)
	t.snap.Store(snap)
	return t
}

// Snapshot returns the latest published state.
func (t *Tracker) Snapshot() *Snapshot {
	return t.snap.Load()
}

// Status returns the status of a node.
func (t *Tracker) Status(id string) (executor.Status, bool) {
	i, ok := t.index[id]
	if !ok {
		return "", false
	}
	return t.snap.Load().Nodes[i].Status, true
}

// Start moves a node to RUNNING and the session to running.
func (t *Tracker) Start(id string) error {
	return t.update(func(s *Snapshot) error {
		n, err := t.node(s, id)
		if err != nil {
			return err
		}
		if n.Status != executor.StatusPending {
			return fmt.Errorf("node %s is %s, not %s", id, n.Status, executor.StatusPending)
		}
		n.Status = executor.StatusRunning
		n.StartedAt = strfmt.DateTime(time.Now())
		s.Status = Running
		return nil
	})
}

// Finish moves a running node to COMPLETED, or FAILED when err is not nil.
func (t *Tracker) Finish(id string, err error) error {
	return t.update(func(s *Snapshot) error {
		n, nerr := t.node(s, id)
		if nerr != nil {
			return nerr
		}
		if n.Status != executor.StatusRunning {
			return fmt.Errorf("node %s is %s, not %s", id, n.Status, executor.StatusRunning)
		}
		n.FinishedAt = strfmt.DateTime(time.Now())
		if err != nil {
			n.Status = executor.StatusFailed
			n.Error = err.Error()
			return nil
		}
		n.Status = executor.StatusCompleted
		return nil
	})
}

// SetStatus records the overall status of the session.
func (t *Tracker) SetStatus(status OverallStatus, err error) {
	_ = t.update(func(s *Snapshot) error {
		s.Status = status
		s.Error = ""
		if err != nil {
			s.Error = err.Error()
		}
		return nil
	})
}

// AddUsage accumulates token usage for the session.
func (t *Tracker) AddUsage(u provider.Usage) {
	_ = t.update(func(s *Snapshot) error {
		s.Usage.AddUsage(&u)
		return nil
	})
}

func (t *Tracker) node(s *Snapshot, id string) (*NodeState, error) {
	i, ok := t.index[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownNode, id)
	}
	return &s.Nodes[i], nil
}

func (t *Tracker) update(fn func(*Snapshot) error) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	cur := t.snap.Load()
	next := *cur
	next.Nodes = slices.Clone(cur.Nodes)
	if err := fn(&next); err != nil {
		return err
	}
	next.Progress = progress(next.Nodes)
	t.snap.Store(&next)
	return nil
}

func progress(nodes []NodeState) Progress {
	p := Progress{Total: len(nodes)}
	for _, n := range nodes {
		switch n.Status {
		case executor.StatusCompleted:
			p.Completed++
		case executor.StatusFailed:
			p.Failed++
		case executor.StatusRunning:
			p.Running++
		default:
			p.Pending++
		}
	}
	if p.Total > 0 {
		p.Percent = float64(p.Completed) * 100 / float64(p.Total)
	}
	return p
}

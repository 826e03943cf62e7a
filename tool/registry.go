package tool

import (
	"context"
	"errors"
	"fmt"

	"github.com/casualjim/loom/internal/registry"
)

var ErrToolNotFound = errors.New("tool not found")

// Registry is the capability the interpreter uses to reach tools. Registration is
// owned by the caller; implementations must be safe for concurrent use.
type Registry interface {
	Has(name string) bool
	Spec(name string) (Spec, bool)
	// Invoke runs the tool with a JSON object of arguments.
	Invoke(ctx context.Context, name, arguments string) (string, error)
}

// Table is a Registry of function backed definitions.
type Table struct {
	defs registry.Registry[Definition]
}

var _ Registry = (*Table)(nil)

// NewTable creates a table holding the given definitions.
func NewTable(defs ...Definition) *Table {
	t := &Table{defs: registry.New[Definition]()}
	t.Register(defs...)
	return t
}

// Register adds definitions, replacing any with the same name.
func (t *Table) Register(defs ...Definition) {
	for _, def := range defs {
		t.defs.Add(def.Name, def)
	}
}

// Unregister removes a tool.
func (t *Table) Unregister(name string) {
	t.defs.Del(name)
}

// Names lists the registered tools in sorted order.
func (t *Table) Names() []string {
	return t.defs.Names()
}

func (t *Table) Has(name string) bool {
	_, ok := t.defs.Get(name)
	return ok
}

func (t *Table) Get(name string) (Definition, bool) {
	return t.defs.Get(name)
}

func (t *Table) Spec(name string) (Spec, bool) {
	def, ok := t.defs.Get(name)
	if !ok {
		return Spec{}, false
	}
	return def.Spec(), true
}

func (t *Table) Invoke(ctx context.Context, name, arguments string) (string, error) {
	def, ok := t.defs.Get(name)
	if !ok {
		return "", fmt.Errorf("%w: %s", ErrToolNotFound, name)
	}
	return def.Call(ctx, arguments)
}

// Package plan loads and validates execution plans: ordered lists of nodes
// bound to named threads.
package plan

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strconv"
	"strings"

	"github.com/goccy/go-json"
	"github.com/tidwall/gjson"
	"gopkg.in/yaml.v3"
)

// ErrValidation is matched by every error returned from the loaders for a malformed plan.
var ErrValidation = errors.New("invalid plan")

// ValidationError lists every problem found in a plan document.
type ValidationError struct {
	Issues []error
}

func (e *ValidationError) Error() string {
	parts := make([]string, len(e.Issues))
	for i, issue := range e.Issues {
		parts[i] = issue.Error()
	}
	return ErrValidation.Error() + ": " + strings.Join(parts, "; ")
}

func (e *ValidationError) Unwrap() []error {
	return append([]error{ErrValidation}, e.Issues...)
}

// Plan is an immutable, validated list of nodes.
type Plan struct {
	task  string
	nodes []Node
	index map[string]int
}

func (p *Plan) Task() string { return p.task }
func (p *Plan) Len() int     { return len(p.nodes) }

// Node returns the node at position i in plan order.
func (p *Plan) Node(i int) Node { return p.nodes[i] }

// Nodes returns a copy of the nodes in plan order.
func (p *Plan) Nodes() []Node {
	out := make([]Node, len(p.nodes))
	copy(out, p.nodes)
	return out
}

// Index returns the plan position of a node id.
func (p *Plan) Index(id string) (int, bool) {
	i, ok := p.index[id]
	return i, ok
}

// Lookup returns the node with the given id.
func (p *Plan) Lookup(id string) (Node, bool) {
	i, ok := p.index[id]
	if !ok {
		return Node{}, false
	}
	return p.nodes[i], true
}

// ParentThread is the thread of the node right before position i, or main for the first node.
func (p *Plan) ParentThread(i int) string {
	if i <= 0 || i > len(p.nodes) {
		return MainThread
	}
	return p.nodes[i-1].ThreadID
}

// SourceThread resolves where the node at position i takes its seed from.
func (p *Plan) SourceThread(i int) string {
	if src := p.nodes[i].DataInThread; src != "" {
		return src
	}
	return p.ParentThread(i)
}

// Threads lists thread ids in order of first appearance, starting with main.
func (p *Plan) Threads() []string {
	seen := map[string]bool{MainThread: true}
	out := []string{MainThread}
	for _, n := range p.nodes {
		if !seen[n.ThreadID] {
			seen[n.ThreadID] = true
			out = append(out, n.ThreadID)
		}
	}
	return out
}

func (p *Plan) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		Task  string `json:"task,omitempty"`
		Nodes []Node `json:"nodes"`
	}{p.task, p.nodes})
}

// LoadFile reads a plan from disk. Files ending in .yaml or .yml are parsed as YAML.
func LoadFile(path string) (*Plan, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read plan: %w", err)
	}
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return LoadYAML(data)
	}
	return Load(data)
}

// LoadYAML parses a YAML plan document that uses the same keys as the JSON form.
func LoadYAML(data []byte) (*Plan, error) {
	var doc any
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, &ValidationError{Issues: []error{fmt.Errorf("yaml: %w", err)}}
	}
	b, err := json.Marshal(doc)
	if err != nil {
		return nil, &ValidationError{Issues: []error{fmt.Errorf("yaml: %w", err)}}
	}
	return Load(b)
}

// Load parses and validates a JSON plan document. The document is either an object
// with a "nodes" array or the array itself. Tool names are not checked here.
func Load(data []byte) (*Plan, error) {
	if !gjson.ValidBytes(data) {
		return nil, &ValidationError{Issues: []error{errors.New("document is not valid JSON")}}
	}
	doc := gjson.ParseBytes(data)
	nodesDoc := doc
	var task string
	if doc.IsObject() {
		nodesDoc = doc.Get("nodes")
		task = doc.Get("task").String()
	}
	if !nodesDoc.IsArray() {
		return nil, &ValidationError{Issues: []error{errors.New("nodes must be an array")}}
	}

	var issues []error
	items := nodesDoc.Array()
	if len(items) == 0 {
		issues = append(issues, errors.New("plan has no nodes"))
	}

	p := &Plan{
		task:  task,
		nodes: make([]Node, 0, len(items)),
		index: make(map[string]int, len(items)),
	}
	names := make(map[string]int, len(items))
	known := map[string]bool{MainThread: true}

	for i, item := range items {
		n, errs := parseNode(i, item)
		label := fmt.Sprintf("node %d", i+1)
		if n.Name != "" {
			label += " (" + n.Name + ")"
		}
		for _, err := range errs {
			issues = append(issues, fmt.Errorf("%s: %w", label, err))
		}

		if n.Name != "" {
			if prev, dup := names[n.Name]; dup {
				issues = append(issues, fmt.Errorf("%s: name duplicates node %d", label, prev+1))
			} else {
				names[n.Name] = i
			}
		}
		if prev, dup := p.index[n.ID]; dup {
			issues = append(issues, fmt.Errorf("%s: id %q duplicates node %d", label, n.ID, prev+1))
		} else {
			p.index[n.ID] = i
		}

		// data_in_* only matters on the node that creates its thread.
		if n.ThreadID != "" && !known[n.ThreadID] {
			if n.DataInThread != "" && !known[n.DataInThread] {
				issues = append(issues, fmt.Errorf("%s: data_in_thread %q is not created by any earlier node", label, n.DataInThread))
			}
			known[n.ThreadID] = true
		}
		if n.DataOut && !known[n.OutputThread()] {
			issues = append(issues, fmt.Errorf("%s: data_out_thread %q is not created by this or any earlier node", label, n.OutputThread()))
		}
		p.nodes = append(p.nodes, n)
	}

	if len(issues) > 0 {
		return nil, &ValidationError{Issues: issues}
	}
	return p, nil
}

func parseNode(pos int, v gjson.Result) (Node, []error) {
	if !v.IsObject() {
		return Node{ID: strconv.Itoa(pos + 1)}, []error{errors.New("must be an object")}
	}

	var errs []error
	n := Node{
		Name:               strings.TrimSpace(v.Get("name").String()),
		Type:               Type(strings.TrimSpace(v.Get("type").String())),
		ThreadID:           strings.TrimSpace(v.Get("thread_id").String()),
		DataInThread:       strings.TrimSpace(v.Get("data_in_thread").String()),
		DataOut:            v.Get("data_out").Bool(),
		DataOutThread:      strings.TrimSpace(v.Get("data_out_thread").String()),
		DataOutDescription: v.Get("data_out_description").String(),
		TaskPrompt:         v.Get("task_prompt").String(),
		InitialToolName:    strings.TrimSpace(v.Get("initial_tool_name").String()),
		EnableToolLoop:     v.Get("enable_tool_loop").Bool(),
	}

	switch id := v.Get("id"); id.Type {
	case gjson.Null:
		n.ID = strconv.Itoa(pos + 1)
	case gjson.String, gjson.Number:
		n.ID = strings.TrimSpace(id.String())
		if n.ID == "" {
			n.ID = strconv.Itoa(pos + 1)
		}
	default:
		n.ID = strconv.Itoa(pos + 1)
		errs = append(errs, fmt.Errorf("id must be a string or a number, got %s", id.Raw))
	}

	if n.Name == "" {
		errs = append(errs, errors.New("name is required"))
	}
	if !n.Type.Valid() {
		errs = append(errs, fmt.Errorf("unknown type %q", n.Type))
	}
	if n.ThreadID == "" {
		errs = append(errs, errors.New("thread_id is required"))
	}
	if n.Type == ToolFirst && n.InitialToolName == "" {
		errs = append(errs, errors.New("tool-first node requires initial_tool_name"))
	}

	slice, err := parseSlice(v.Get("data_in_slice"))
	if err != nil {
		errs = append(errs, fmt.Errorf("data_in_slice: %w", err))
	}
	n.DataInSlice = slice

	if tools := v.Get("tools"); tools.Exists() && tools.Type != gjson.Null {
		if !tools.IsArray() {
			errs = append(errs, errors.New("tools must be an array of names"))
		}
		for _, t := range tools.Array() {
			name := strings.TrimSpace(t.String())
			if t.Type != gjson.String || name == "" {
				errs = append(errs, fmt.Errorf("tools: invalid tool name %s", t.Raw))
				continue
			}
			if !slices.Contains(n.Tools, name) {
				n.Tools = append(n.Tools, name)
			}
		}
	}

	if limits := v.Get("tools_limit"); limits.Exists() && limits.Type != gjson.Null {
		if !limits.IsObject() {
			errs = append(errs, errors.New("tools_limit must be an object"))
		}
		limits.ForEach(func(key, value gjson.Result) bool {
			if value.Type != gjson.Number || value.Int() < 0 || float64(value.Int()) != value.Float() {
				errs = append(errs, fmt.Errorf("tools_limit[%s] must be a non-negative integer", key.String()))
				return true
			}
			if n.ToolsLimit == nil {
				n.ToolsLimit = make(map[string]int)
			}
			n.ToolsLimit[key.String()] = int(value.Int())
			return true
		})
	}

	switch args := v.Get("initial_tool_args"); {
	case !args.Exists() || args.Type == gjson.Null:
	case args.IsObject():
		n.InitialToolArgs = args.Raw
	case args.Type == gjson.String && strings.TrimSpace(args.String()) == "":
	case args.Type == gjson.String && gjson.Parse(args.String()).IsObject():
		n.InitialToolArgs = args.String()
	default:
		errs = append(errs, errors.New("initial_tool_args must be a JSON object"))
	}

	return n, errs
}

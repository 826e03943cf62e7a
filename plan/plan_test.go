package plan

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/goccy/go-json"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const researchPlan = `{
  "task": "research",
  "nodes": [
    {"id": 1, "name": "n0", "type": "llm-first", "thread_id": "main", "task_prompt": "Summarize"},
    {"id": 2, "name": "n1", "type": "llm-first", "thread_id": "q1", "task_prompt": "Answer",
     "data_out": true, "data_out_thread": "main", "data_out_description": "Q1:"},
    {"id": 3, "name": "n2", "type": "tool-first", "thread_id": "main",
     "initial_tool_name": "add", "initial_tool_args": {"a": 1, "b": 2},
     "tools": ["add", "add", "multiply"], "tools_limit": {"add": 2}, "enable_tool_loop": true}
  ]
}`

func TestLoad(t *testing.T) {
	t.Run("valid plan", func(t *testing.T) {
		p, err := Load([]byte(researchPlan))
		require.NoError(t, err)

		assert.Equal(t, "research", p.Task())
		require.Equal(t, 3, p.Len())
		assert.Equal(t, []string{"main", "q1"}, p.Threads())

		n2, ok := p.Lookup("3")
		require.True(t, ok)
		assert.Equal(t, ToolFirst, n2.Type)
		assert.Equal(t, []string{"add", "multiply"}, n2.Tools)
		assert.JSONEq(t, `{"a":1,"b":2}`, n2.Args())
		limit, ok := n2.Limit("add")
		assert.True(t, ok)
		assert.Equal(t, 2, limit)
		_, ok = n2.Limit("multiply")
		assert.False(t, ok)

		assert.Equal(t, "main", p.ParentThread(0))
		assert.Equal(t, "main", p.ParentThread(1))
		assert.Equal(t, "q1", p.ParentThread(2))
		assert.Equal(t, "q1", p.SourceThread(2))
	})

	t.Run("bare node array with default ids", func(t *testing.T) {
		p, err := Load([]byte(`[
			{"name": "a", "type": "llm-first", "thread_id": "main"},
			{"name": "b", "type": "planning", "thread_id": "main"}
		]`))
		require.NoError(t, err)
		_, ok := p.Lookup("1")
		assert.True(t, ok)
		idx, ok := p.Index("2")
		assert.True(t, ok)
		assert.Equal(t, 1, idx)
		assert.True(t, p.Node(0).PassThrough())
		assert.Equal(t, SliceLast, p.Node(0).DataInSlice.Kind)
		assert.Equal(t, "main", p.Node(0).OutputThread())
	})

	t.Run("validation errors", func(t *testing.T) {
		tests := []struct {
			name  string
			input string
			want  string
		}{
			{"not json", `{`, "not valid JSON"},
			{"no nodes", `{"nodes": []}`, "no nodes"},
			{"nodes not array", `{"nodes": {}}`, "must be an array"},
			{
				"duplicate names",
				`[{"name":"a","type":"llm-first","thread_id":"main"},{"name":"a","type":"llm-first","thread_id":"main"}]`,
				"name duplicates node 1",
			},
			{
				"duplicate ids",
				`[{"id":"x","name":"a","type":"llm-first","thread_id":"main"},{"id":"x","name":"b","type":"llm-first","thread_id":"main"}]`,
				`id "x" duplicates`,
			},
			{
				"tool-first without tool",
				`[{"name":"a","type":"tool-first","thread_id":"main"}]`,
				"requires initial_tool_name",
			},
			{
				"unknown type",
				`[{"name":"a","type":"branch","thread_id":"main"}]`,
				`unknown type "branch"`,
			},
			{
				"missing thread",
				`[{"name":"a","type":"llm-first"}]`,
				"thread_id is required",
			},
			{
				"reversed slice",
				`[{"name":"a","type":"llm-first","thread_id":"main","data_in_slice":[3,1]}]`,
				"start 3 is after end 1",
			},
			{
				"slice arity",
				`[{"name":"a","type":"llm-first","thread_id":"main","data_in_slice":[1,2,3]}]`,
				"exactly 2 bounds",
			},
			{
				"negative limit",
				`[{"name":"a","type":"llm-first","thread_id":"main","tools_limit":{"add":-1}}]`,
				"tools_limit[add]",
			},
			{
				"unknown source thread",
				`[{"name":"a","type":"llm-first","thread_id":"t1","data_in_thread":"t9"}]`,
				`data_in_thread "t9"`,
			},
			{
				"output to later thread",
				`[{"name":"a","type":"llm-first","thread_id":"main","data_out":true,"data_out_thread":"t2"},
				  {"name":"b","type":"llm-first","thread_id":"t2"}]`,
				`data_out_thread "t2"`,
			},
			{
				"args not an object",
				`[{"name":"a","type":"tool-first","thread_id":"main","initial_tool_name":"x","initial_tool_args":[1]}]`,
				"initial_tool_args",
			},
		}
		for _, tt := range tests {
			t.Run(tt.name, func(t *testing.T) {
				_, err := Load([]byte(tt.input))
				require.Error(t, err)
				assert.True(t, errors.Is(err, ErrValidation))
				var verr *ValidationError
				require.ErrorAs(t, err, &verr)
				assert.Contains(t, err.Error(), tt.want)
			})
		}
	})

	t.Run("reports every issue", func(t *testing.T) {
		_, err := Load([]byte(`[{"type":"tool-first"},{"name":"b","type":"nope","thread_id":"main"}]`))
		var verr *ValidationError
		require.ErrorAs(t, err, &verr)
		assert.GreaterOrEqual(t, len(verr.Issues), 4)
	})

	t.Run("data_in is only checked where the thread is created", func(t *testing.T) {
		p, err := Load([]byte(`[
			{"name": "a", "type": "llm-first", "thread_id": "main"},
			{"name": "b", "type": "llm-first", "thread_id": "main", "data_in_thread": "ghost", "data_in_slice": "none"},
			{"name": "c", "type": "llm-first", "thread_id": "side"},
			{"name": "d", "type": "llm-first", "thread_id": "side", "data_in_thread": "later"},
			{"name": "e", "type": "llm-first", "thread_id": "later"}
		]`))
		require.NoError(t, err)
		assert.Equal(t, "ghost", p.Node(1).DataInThread)
		assert.Equal(t, []string{"main", "side", "later"}, p.Threads())
	})

	t.Run("tool names are not checked", func(t *testing.T) {
		_, err := Load([]byte(`[{"name":"a","type":"tool-first","thread_id":"main","initial_tool_name":"not_registered"}]`))
		assert.NoError(t, err)
	})
}

func TestLoadYAML(t *testing.T) {
	doc := `
task: yaml plan
nodes:
  - name: fetch
    type: tool-first
    thread_id: main
    initial_tool_name: now
  - name: answer
    type: llm-first
    thread_id: side
    data_in_slice: [0, null]
    task_prompt: Answer the question
    data_out: true
    data_out_description: "A:"
`
	p, err := LoadYAML([]byte(doc))
	require.NoError(t, err)
	assert.Equal(t, "yaml plan", p.Task())
	require.Equal(t, 2, p.Len())
	answer := p.Node(1)
	assert.Equal(t, SliceRange, answer.DataInSlice.Kind)
	require.NotNil(t, answer.DataInSlice.Start)
	assert.Nil(t, answer.DataInSlice.End)
	assert.Equal(t, "{}", p.Node(0).Args())

	_, err = LoadYAML([]byte("nodes: [\n"))
	assert.ErrorIs(t, err, ErrValidation)
}

func TestLoadFile(t *testing.T) {
	dir := t.TempDir()
	jsonPath := filepath.Join(dir, "plan.json")
	require.NoError(t, os.WriteFile(jsonPath, []byte(researchPlan), 0o600))

	p, err := LoadFile(jsonPath)
	require.NoError(t, err)
	assert.Equal(t, 3, p.Len())

	_, err = LoadFile(filepath.Join(dir, "missing.json"))
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrValidation)
}

func TestPlanMarshalJSON(t *testing.T) {
	p, err := Load([]byte(researchPlan))
	require.NoError(t, err)

	b, err := json.Marshal(p)
	require.NoError(t, err)

	again, err := Load(b)
	require.NoError(t, err)
	assert.Equal(t, p.Nodes(), again.Nodes())
}

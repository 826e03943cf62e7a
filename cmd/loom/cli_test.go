package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/alecthomas/kong"
	"github.com/casualjim/loom/events"
	"github.com/casualjim/loom/internal/config"
	"github.com/casualjim/loom/tool"
	"github.com/fatih/color"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func parse(t *testing.T, args ...string) (*CLI, *kong.Context) {
	t.Helper()
	var cli CLI
	parser, err := kong.New(&cli, kongVars())
	require.NoError(t, err)
	kctx, err := parser.Parse(args)
	require.NoError(t, err)
	return &cli, kctx
}

func TestRunCmd_Flags(t *testing.T) {
	cli, kctx := parse(t, "run", "plan.json", "-m", "hello", "--tool-limit=-1", "--events")
	assert.Equal(t, "run <plan>", kctx.Command())
	assert.Equal(t, "plan.json", cli.Run.Plan)
	assert.Equal(t, "hello", cli.Run.Message)
	assert.Equal(t, -1, cli.Run.ToolLimit)
	assert.Equal(t, "main", cli.Run.Thread)
	assert.True(t, cli.Run.Events)
	assert.False(t, cli.Run.Inspect)
}

func TestRunCmd_RequiresMessage(t *testing.T) {
	var cli CLI
	parser, err := kong.New(&cli)
	require.NoError(t, err)
	_, err = parser.Parse([]string{"run", "plan.json"})
	assert.Error(t, err)
}

func TestStepCmd_Nodes(t *testing.T) {
	cli, _ := parse(t, "--config", "loom.toml", "step", "plan.yaml", "-m", "hi", "-n", "n0", "-n", "n1")
	assert.Equal(t, "loom.toml", cli.Config)
	assert.Equal(t, []string{"n0", "n1"}, cli.Step.Nodes)
	assert.Zero(t, cli.Step.ToolLimit)
}

func TestValidateCmd(t *testing.T) {
	color.NoColor = true
	dir := t.TempDir()
	good := filepath.Join(dir, "plan.yaml")
	require.NoError(t, os.WriteFile(good, []byte(`
nodes:
  - id: n0
    name: sum
    type: tool-first
    thread_id: main
    initial_tool_name: add
    initial_tool_args: {a: 1, b: 2}
`), 0o600))
	unknown := filepath.Join(dir, "unknown.json")
	require.NoError(t, os.WriteFile(unknown, []byte(`{"nodes": [
		{"id": "n0", "name": "x", "type": "llm-first", "thread_id": "side", "task_prompt": "go", "tools": ["teleport"]}
	]}`), 0o600))

	var out bytes.Buffer
	a := &app{cfg: config.New(), out: &out, status: &out}

	require.NoError(t, (&ValidateCmd{Plan: good, Tools: true}).Run(a))
	assert.Equal(t, "plan is valid: 1 nodes, threads: main\n", out.String())

	out.Reset()
	require.NoError(t, (&ValidateCmd{Plan: unknown}).Run(a))
	assert.Contains(t, out.String(), "threads: main, side")

	err := (&ValidateCmd{Plan: unknown, Tools: true}).Run(a)
	require.ErrorIs(t, err, tool.ErrToolNotFound)
	assert.Contains(t, err.Error(), "teleport")

	assert.Error(t, (&ValidateCmd{Plan: filepath.Join(dir, "missing.json")}).Run(a))
}

func TestBuiltinTools(t *testing.T) {
	table := tool.NewTable(builtinTools()...)
	ctx := context.Background()

	cases := []struct {
		name, args, want string
	}{
		{"add", `{"a": 2, "b": 3.5}`, "5.5"},
		{"multiply", `{"a": 4, "b": 2}`, "8"},
		{"echo", `{"text": "hi"}`, "hi"},
		{"upper", `{"text": "hi"}`, "HI"},
	}
	for _, tc := range cases {
		got, err := table.Invoke(ctx, tc.name, tc.args)
		require.NoError(t, err, tc.name)
		assert.Equal(t, tc.want, got, tc.name)
	}

	stamp, err := table.Invoke(ctx, "now", "")
	require.NoError(t, err)
	assert.NotEmpty(t, stamp)
}

func TestToolsCmd(t *testing.T) {
	color.NoColor = true
	var out bytes.Buffer
	require.NoError(t, ToolsCmd{}.Run(&app{out: &out}))
	for _, def := range builtinTools() {
		assert.Contains(t, out.String(), def.Name+"\t"+def.Description)
	}
}

func TestProgressHook(t *testing.T) {
	color.NoColor = true
	var out bytes.Buffer
	pub := events.FromHook(newProgressHook(&out))
	ctx := context.Background()

	require.NoError(t, pub.Publish(ctx, events.NodeStarted{NodeID: "n1", NodeName: "calc", ThreadID: "q1"}))
	require.NoError(t, pub.Publish(ctx, events.ToolInvoked{NodeID: "n1", Tool: "add", Arguments: `{"a":1}`, Result: "2"}))
	require.NoError(t, pub.Publish(ctx, events.NodeFinished{NodeID: "n1", Status: "COMPLETED"}))
	require.NoError(t, pub.Publish(ctx, events.OutputMerged{NodeID: "n1", ThreadID: "q1", Destination: "main"}))

	assert.Equal(t, "node calc [n1] on q1\n  add{\"a\"=1} -> 2\nCOMPLETED n1\nmerged q1 -> main\n", out.String())
}

func TestParseLevel(t *testing.T) {
	assert.Equal(t, "DEBUG", parseLevel("debug").String())
	assert.Equal(t, "WARN", parseLevel("WARNING").String())
	assert.Equal(t, "INFO", parseLevel("").String())
}

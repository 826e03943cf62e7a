package messages

import (
	"testing"

	"github.com/goccy/go-json"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tidwall/gjson"
)

func TestMarshal(t *testing.T) {
	t.Run("adds role discriminator", func(t *testing.T) {
		b, err := Marshal(NewAssistant("done", ToolCall{ID: "c1", Name: "add", Arguments: `{"a":1}`}))
		require.NoError(t, err)

		res := gjson.ParseBytes(b)
		assert.Equal(t, "assistant", res.Get("role").String())
		assert.Equal(t, "done", res.Get("content").String())
		assert.Equal(t, "add", res.Get("tool_calls.0.name").String())
	})

	t.Run("nil message", func(t *testing.T) {
		_, err := Marshal(nil)
		require.Error(t, err)
	})
}

func TestUnmarshal(t *testing.T) {
	t.Run("tool result", func(t *testing.T) {
		m, err := Unmarshal([]byte(`{"role":"tool","tool_call_id":"c1","tool_name":"add","content":"3"}`))
		require.NoError(t, err)
		tr, ok := m.(ToolResult)
		require.True(t, ok)
		assert.Equal(t, "c1", tr.ToolCallID)
		assert.Equal(t, "3", tr.Text())
	})

	t.Run("errors", func(t *testing.T) {
		tests := []struct {
			name  string
			input string
		}{
			{"invalid json", "nope"},
			{"missing role", `{"content":"x"}`},
			{"unknown role", `{"role":"robot","content":"x"}`},
		}
		for _, tt := range tests {
			t.Run(tt.name, func(t *testing.T) {
				_, err := Unmarshal([]byte(tt.input))
				assert.Error(t, err)
			})
		}
	})
}

func TestList(t *testing.T) {
	l := List{NewSystem("be brief"), NewUser("hi"), NewToolResult("c1", "now", "12:00")}

	b, err := json.Marshal(l)
	require.NoError(t, err)
	assert.Equal(t, int64(3), gjson.GetBytes(b, "#").Int())

	var back List
	require.NoError(t, json.Unmarshal(b, &back))
	require.Len(t, back, 3)
	assert.Equal(t, RoleSystem, back[0].Role())
	assert.Equal(t, RoleUser, back[1].Role())
	assert.Equal(t, RoleTool, back[2].Role())

	last, ok := back.Last()
	require.True(t, ok)
	assert.Equal(t, "12:00", last.Text())

	_, ok = List{}.Last()
	assert.False(t, ok)
}

package tool

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTable(t *testing.T) {
	add := Must(func(a, b float64) float64 { return a + b }, Name("add"), Parameters("a", "b"))
	echo := Must(func(s string) string { return s }, Name("echo"), Parameters("text"))

	tbl := NewTable(add)
	assert.True(t, tbl.Has("add"))
	assert.False(t, tbl.Has("echo"))

	tbl.Register(echo)
	assert.Equal(t, []string{"add", "echo"}, tbl.Names())

	spec, ok := tbl.Spec("echo")
	require.True(t, ok)
	assert.Equal(t, []string{"text"}, spec.Parameters.Required)

	out, err := tbl.Invoke(context.Background(), "add", `{"a": 2, "b": 40}`)
	require.NoError(t, err)
	assert.Equal(t, "42", out)

	_, err = tbl.Invoke(context.Background(), "missing", `{}`)
	assert.ErrorIs(t, err, ErrToolNotFound)
	_, ok = tbl.Spec("missing")
	assert.False(t, ok)

	tbl.Unregister("add")
	assert.False(t, tbl.Has("add"))
	_, ok = tbl.Get("echo")
	assert.True(t, ok)
}

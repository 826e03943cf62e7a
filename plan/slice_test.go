package plan

import (
	"testing"

	"github.com/goccy/go-json"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func ip(i int) *int { return &i }

func TestSliceBounds(t *testing.T) {
	tests := []struct {
		name   string
		slice  Slice
		n      int
		lo, hi int
	}{
		{"last of many", LastMessage(), 5, 4, 5},
		{"last of empty", LastMessage(), 0, 0, 0},
		{"none", NoInjection(), 5, 0, 0},
		{"full open range", Range(nil, nil), 3, 0, 3},
		{"prefix", Range(nil, ip(2)), 5, 0, 2},
		{"negative start", Range(ip(-2), nil), 5, 3, 5},
		{"end past length clamps", Range(ip(1), ip(50)), 3, 1, 3},
		{"start past length is empty", Range(ip(10), nil), 3, 3, 3},
		{"negative beyond length clamps to zero", Range(ip(-10), ip(2)), 3, 0, 2},
		{"crossing negative bounds are empty", Range(ip(-1), ip(-3)), 5, 4, 4},
		{"range on empty source", Range(ip(0), ip(3)), 0, 0, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			lo, hi := tt.slice.Bounds(tt.n)
			assert.Equal(t, tt.lo, lo)
			assert.Equal(t, tt.hi, hi)
		})
	}
}

func TestApply(t *testing.T) {
	items := []string{"a", "b", "c", "d"}

	got := Apply(Range(ip(1), ip(3)), items)
	assert.Equal(t, []string{"b", "c"}, got)

	got[0] = "changed"
	assert.Equal(t, "b", items[1], "apply must copy")

	assert.Empty(t, Apply(NoInjection(), items))
	assert.Equal(t, []string{"d"}, Apply(LastMessage(), items))
}

func TestSliceJSON(t *testing.T) {
	t.Run("decode", func(t *testing.T) {
		tests := []struct {
			input string
			want  Slice
		}{
			{`null`, LastMessage()},
			{`"last"`, LastMessage()},
			{`"none"`, NoInjection()},
			{`"NONE"`, NoInjection()},
			{`[]`, NoInjection()},
			{`[0, 2]`, Range(ip(0), ip(2))},
			{`[null, -1]`, Range(nil, ip(-1))},
		}
		for _, tt := range tests {
			t.Run(tt.input, func(t *testing.T) {
				var s Slice
				require.NoError(t, json.Unmarshal([]byte(tt.input), &s))
				assert.Equal(t, tt.want, s)
			})
		}
	})

	t.Run("reject", func(t *testing.T) {
		for _, input := range []string{`"sometimes"`, `[1]`, `[1.5, 2]`, `["a", 2]`, `{}`, `true`} {
			var s Slice
			assert.Error(t, json.Unmarshal([]byte(input), &s), input)
		}
	})

	t.Run("encode", func(t *testing.T) {
		b, err := json.Marshal(Range(ip(-2), nil))
		require.NoError(t, err)
		assert.JSONEq(t, `[-2, null]`, string(b))

		b, err = json.Marshal(NoInjection())
		require.NoError(t, err)
		assert.JSONEq(t, `"none"`, string(b))
	})

	assert.Equal(t, "[1:]", Range(ip(1), nil).String())
}

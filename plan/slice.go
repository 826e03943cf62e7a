package plan

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/tidwall/gjson"
)

// SliceKind selects how a new thread is seeded from its source thread.
type SliceKind uint8

const (
	// SliceLast seeds the thread with the single most recent source message.
	SliceLast SliceKind = iota
	// SliceNone seeds the thread with nothing.
	SliceNone
	// SliceRange seeds the thread with a half-open range of the source messages.
	SliceRange
)

// Slice is the data_in_slice of a node. The zero value is SliceLast.
type Slice struct {
	Kind  SliceKind
	Start *int
	End   *int
}

// LastMessage is the default slice.
func LastMessage() Slice { return Slice{Kind: SliceLast} }

// NoInjection is the sentinel slice that seeds an empty thread.
func NoInjection() Slice { return Slice{Kind: SliceNone} }

// Range builds a half-open range. A nil bound is open, negative bounds count from the end.
func Range(start, end *int) Slice {
	return Slice{Kind: SliceRange, Start: start, End: end}
}

// Bounds resolves the slice against a sequence of n items and returns the clamped
// half-open interval [lo, hi). An empty interval has lo == hi.
func (s Slice) Bounds(n int) (lo, hi int) {
	switch s.Kind {
	case SliceNone:
		return 0, 0
	case SliceLast:
		if n == 0 {
			return 0, 0
		}
		return n - 1, n
	}

	lo, hi = 0, n
	if s.Start != nil {
		lo = clampIndex(*s.Start, n)
	}
	if s.End != nil {
		hi = clampIndex(*s.End, n)
	}
	if lo > hi {
		return lo, lo
	}
	return lo, hi
}

// Apply returns a copy of the items selected by the slice.
func Apply[T any](s Slice, items []T) []T {
	lo, hi := s.Bounds(len(items))
	out := make([]T, hi-lo)
	copy(out, items[lo:hi])
	return out
}

func clampIndex(i, n int) int {
	if i < 0 {
		i += n
	}
	return max(0, min(i, n))
}

func (s Slice) String() string {
	switch s.Kind {
	case SliceNone:
		return "none"
	case SliceLast:
		return "last"
	}
	return "[" + bound(s.Start) + ":" + bound(s.End) + "]"
}

func bound(b *int) string {
	if b == nil {
		return ""
	}
	return strconv.Itoa(*b)
}

func (s Slice) MarshalJSON() ([]byte, error) {
	switch s.Kind {
	case SliceNone:
		return []byte(`"none"`), nil
	case SliceLast:
		return []byte("null"), nil
	}
	return []byte("[" + jsonBound(s.Start) + "," + jsonBound(s.End) + "]"), nil
}

func jsonBound(b *int) string {
	if b == nil {
		return "null"
	}
	return strconv.Itoa(*b)
}

func (s *Slice) UnmarshalJSON(data []byte) error {
	if !gjson.ValidBytes(data) {
		return errors.New("invalid JSON")
	}
	v, err := parseSlice(gjson.ParseBytes(data))
	if err != nil {
		return err
	}
	*s = v
	return nil
}

// parseSlice accepts null (default), "none" or [] (no injection), "last", and [start, end]
// where each bound is an integer or null.
func parseSlice(v gjson.Result) (Slice, error) {
	switch {
	case !v.Exists() || v.Type == gjson.Null:
		return LastMessage(), nil
	case v.Type == gjson.String:
		switch strings.ToLower(strings.TrimSpace(v.String())) {
		case "none":
			return NoInjection(), nil
		case "last", "":
			return LastMessage(), nil
		}
		return Slice{}, fmt.Errorf("unknown slice %q", v.String())
	case v.IsArray():
		items := v.Array()
		if len(items) == 0 {
			return NoInjection(), nil
		}
		if len(items) != 2 {
			return Slice{}, fmt.Errorf("slice must have exactly 2 bounds, got %d", len(items))
		}
		start, err := parseBound(items[0])
		if err != nil {
			return Slice{}, fmt.Errorf("slice start: %w", err)
		}
		end, err := parseBound(items[1])
		if err != nil {
			return Slice{}, fmt.Errorf("slice end: %w", err)
		}
		if start != nil && end != nil && *start >= 0 && *end >= 0 && *start > *end {
			return Slice{}, fmt.Errorf("slice start %d is after end %d", *start, *end)
		}
		return Range(start, end), nil
	}
	return Slice{}, fmt.Errorf("slice must be null, \"none\" or a [start, end] pair, got %s", v.Raw)
}

func parseBound(v gjson.Result) (*int, error) {
	if v.Type == gjson.Null {
		return nil, nil
	}
	if v.Type != gjson.Number {
		return nil, fmt.Errorf("%s is not an integer", v.Raw)
	}
	f := v.Float()
	i := int(f)
	if float64(i) != f {
		return nil, fmt.Errorf("%s is not an integer", v.Raw)
	}
	return &i, nil
}

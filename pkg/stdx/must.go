// Package stdx holds small helpers the standard library lacks.
package stdx

// Must1 returns v, or panics if err is not nil. Use it for values that cannot fail
// with the inputs the caller controls, like tool definitions built at startup.
func Must1[T any](v T, err error) T {
	if err != nil {
		panic(err)
	}
	return v
}

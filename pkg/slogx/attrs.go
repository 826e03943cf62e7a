// Package slogx holds slog attribute constructors shared across loom.
package slogx

import (
	"fmt"
	"log/slog"
)

// KeyLoggerName names the component that emitted a record.
const KeyLoggerName = "logger"

// Error renders err under the "error" key.
func Error(err error) slog.Attr {
	return slog.String("error", err.Error())
}

// ByteString logs raw bytes, such as a wire payload, as text.
func ByteString(key string, value []byte) slog.Attr {
	return slog.String(key, string(value))
}

// Stringer logs value.String(). Session ids and statuses go through here.
func Stringer(key string, value fmt.Stringer) slog.Attr {
	return slog.String(key, value.String())
}

func LoggerName(name string) slog.Attr {
	return slog.String(KeyLoggerName, name)
}

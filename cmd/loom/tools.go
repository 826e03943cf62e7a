package main

import (
	"strings"
	"time"

	"github.com/casualjim/loom/tool"
)

// builtinTools are available to every plan run from the command line.
func builtinTools() []tool.Definition {
	return []tool.Definition{
		tool.Must(add, tool.Name("add"), tool.Description("Add two numbers"), tool.Parameters("a", "b")),
		tool.Must(multiply, tool.Name("multiply"), tool.Description("Multiply two numbers"), tool.Parameters("a", "b")),
		tool.Must(now, tool.Name("now"), tool.Description("Current UTC time in RFC 3339 format")),
		tool.Must(echo, tool.Name("echo"), tool.Description("Return the text unchanged"), tool.Parameters("text")),
		tool.Must(upper, tool.Name("upper"), tool.Description("Convert text to upper case"), tool.Parameters("text")),
	}
}

func add(a, b float64) float64 { return a + b }

func multiply(a, b float64) float64 { return a * b }

func now() string { return time.Now().UTC().Format(time.RFC3339) }

func echo(text string) string { return text }

func upper(text string) string { return strings.ToUpper(text) }

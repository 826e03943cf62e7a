/*
Package tool defines the tool registry boundary of the interpreter and a reflective
implementation of it.

The interpreter only needs three things from a registry: whether a tool exists, the
schema to advertise to the model, and a way to invoke the tool with JSON arguments.
Registries may change between loading a plan and running it, so membership is
checked when a node starts, never when a plan is loaded.

# Definitions

A Definition wraps an ordinary Go function. Parameter names come from the
Parameters option, the JSON schema of each parameter is reflected from its Go type,
and the first return value is rendered as the tool result. A trailing error return
value fails the invocation. A leading context.Context parameter receives the
context of the running node.

	add := tool.Must(
		func(a, b float64) float64 { return a + b },
		tool.Name("add"),
		tool.Description("Add two numbers"),
		tool.Parameters("a", "b"),
	)

	tools := tool.NewTable()
	tools.Register(add)

	out, err := tools.Invoke(ctx, "add", `{"a": 1, "b": 2}`) // "3"
*/
package tool

// Package provider is the model client boundary of the interpreter.
//
// A Model receives the instructions, the full message context of a thread and the
// specs of the tools a node may call, and returns one completion: text, tool calls,
// or both. The interpreter never retries a failed completion; failures surface as
// ErrModelInvocation and fail the node that made the call.
package provider

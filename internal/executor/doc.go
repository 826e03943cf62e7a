// Package executor runs a single plan node against its thread.
//
// Design decisions:
//   - The executor never creates threads or merges outputs; the controller does that
//     around each call, so a node sees exactly the thread it was bound to.
//   - Every tool a node names must be registered when the node starts. Registries may
//     change after a plan is loaded, so this is the earliest point membership is known.
//   - Tool invocations are counted per node execution. The effective limit of a tool is
//     the node's tools_limit entry, otherwise the session default.
//   - A failure is terminal for the node: no retries happen here.
//
// Node types:
//
//   - llm-first: appends the task prompt and calls the model. Tool calls requested by
//     the model are executed and fed back while enable_tool_loop is set; without it only
//     one round of tool calls runs. An empty task prompt relays the last input message
//     without calling the model.
//   - tool-first: invokes the initial tool, then continues like llm-first. With an empty
//     task prompt the tool result is the output.
//   - planning: reserved, always fails with ErrUnimplemented.
package executor

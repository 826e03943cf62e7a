// Package loom interprets declarative plans of agent work.
//
// A plan is an ordered list of nodes. Each node is bound to a named thread of
// messages and either asks a model to complete a task (llm-first) or invokes a
// tool first and optionally lets a model analyse the result (tool-first). Threads
// are created the first time a node references them and are seeded with a slice
// of another thread. A node can publish its output back into another thread, so
// side conversations feed the main one.
//
// Design decisions:
//   - Explicit ownership: a Manager owns its sessions; there is no global state
//   - Per-session tools: every session gets its own tool table, copied from the
//     Manager's defaults at Init
//   - Deterministic order: nodes run strictly in plan order, both for full runs and
//     for single steps
//   - Observable: status snapshots never block, and lifecycle events can be
//     published to a broker
//
// Example usage:
//
//	mgr, err := loom.NewManager(
//	    loom.WithTools(add, multiply),
//	    loom.WithModelFactory(openai.Factory),
//	)
//	if err != nil {
//	    return err
//	}
//
//	p, err := plan.LoadFile("plan.yaml")
//	if err != nil {
//	    return err
//	}
//
//	id, err := mgr.Init(ctx, p, "Compare these two libraries")
//	if err != nil {
//	    return err
//	}
//	defer mgr.Terminate(id)
//
//	if err := mgr.RunSync(ctx, id); err != nil {
//	    return err
//	}
//	msgs, _ := mgr.Messages(id, plan.MainThread)
package loom

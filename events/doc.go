// Package events describes what happens while a plan runs and how observers
// receive it.
//
// Every event carries the id of the session it belongs to and a timestamp.
// Events serialize to JSON objects with a "type" discriminator so they can travel
// over a message bus and be decoded back into their concrete type.
//
// Event hierarchy:
//   - Event: Base interface for all events
//     ├── ThreadCreated: a node created its thread
//     ├── NodeStarted: a node moved to RUNNING
//     ├── ToolInvoked: a tool returned or failed
//     ├── NodeFinished: a node reached COMPLETED or FAILED
//     ├── OutputMerged: a thread output was appended to another thread
//     └── RunFinished: a run stopped making progress
//
// Observers either implement Publisher directly or implement Hook and adapt it
// with FromHook:
//
//	pub := events.FromHook(events.LoggingHook())
//	pub.Publish(ctx, events.NodeStarted{NodeID: "n0"})
package events

// Package runtime implements the alan engine host.
//
// A Runtime owns exactly one embedded script engine instance (goja) and the
// global execution context scripts run in. The engine is not reentrant, so
// every touch of its state is funneled through a single serialized loop.
//
// ARCHITECTURE:
//
// Single-Consumer Task Loop:
// Work is expressed as Tasks. Producers (timer wait loops, REPL input, bridge
// messages) submit Tasks to the Queue from any goroutine. Runtime.Run is the
// only consumer:
// 1. Dequeue one Task (strict FIFO)
// 2. Acquire exclusive engine access
// 3. Task.Execute(access)
// 4. Flush the engine job queue (promise reactions)
// 5. Release access, query Task.Stop()
//
// Spawned Work:
// Runtime.Spawn runs a SpawnFunc on its own goroutine. A SpawnFunc only ever
// receives a context - never engine access. The only sanctioned way for it to
// affect engine state is to send a Task.
//
// CRITICAL PATTERNS:
//
// Exclusive Access:
// Access is the single path to the engine instance. It is valid only while
// the loop (or Runtime.Exclusive) holds it. There is no lock around the
// engine: overlapping acquisition is a defect and panics with InvariantError.
//
// Job Queue Flush:
// Every Eval and every dispatched Task ends with a job queue flush, so
// microtasks settle before control returns to the loop. Timer and promise
// ordering depends on this.
package runtime

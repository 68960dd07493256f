// Package flow defines the narrow interfaces through which the gateway talks
// to the pipeline engine it runs in: processors, their configuration context
// and transactional sessions over flow files.
//
// Key Components:
//
//   - IProcessor: The capability interface a pipeline component implements.
//     The engine calls Initialize once, OnSchedule before the first trigger,
//     OnTrigger repeatedly (possibly concurrently) and OnUnschedule at the end.
//
//   - IProcessSession: A unit of transactional work. Changes to flow files
//     (transfers, removals, new content) only become visible on Commit;
//     Rollback returns pulled flow files to their queue.
//
//   - FlowFile: Attributes plus content size. The content itself is only
//     reachable through the owning session.
//
//   - StaticContext: A fixed property set with declared defaults.
//
// Implementations live in the subpackages memsession (in-memory sessions)
// and scheduler (trigger loop with backoff).
package flow

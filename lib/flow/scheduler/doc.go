// Package scheduler triggers a flow.IProcessor from a pool of worker
// goroutines, the way a pipeline engine runs its processors.
//
// Each worker creates a fresh session per trigger. Processors that are not
// triggered when empty are skipped while Config.HasWork reports an empty
// input queue. A processor can yield through flow.Yield to make its worker
// pause for Config.YieldDuration.
//
// Retryable failures back off with an exponential penalty (plus jitter),
// reset by the next successful trigger. A non retryable failure, as decided
// by Config.Retryable, stops all workers and is returned by Run.
package scheduler

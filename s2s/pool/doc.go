// Package pool provides the connection pool of a Site-to-Site port. The pool
// keeps handshaken protocol clients for a single remote endpoint so that the
// handshake is paid once per connection instead of once per invocation.
//
// Invariants:
//
//   - Every client in the idle queue is Handshaken. Clients released in any
//     other state (in particular Broken after a failed or cancelled
//     transaction) are closed instead of parked.
//
//   - A client is handed out to at most one caller at a time. The idle queue
//     (xsync.MPMCQueueOf) delivers each element once, and the parked flag on
//     the client turns a repeated Release into a no-op.
//
//   - The idle queue is bounded by Config.MaxIdle. Releasing into a full
//     queue closes the client. With Config.MaxIdleTime set, clients that sat
//     idle for too long are closed when they are popped.
//
// Statistics (created, destroyed, acquired, released, handshake failures,
// idle gauge and acquire latency) are kept in a per-pool go-metrics registry
// and returned by Stats.
//
// Usage Example:
//
//	p := pool.NewPool(endpoint, pool.Config{MaxIdle: 8}, func() *client.Client {
//		return client.NewClient(client.Config{Endpoint: endpoint, Timeout: timeout}, streams)
//	})
//	defer p.Close()
//
//	c, err := p.Acquire(ctx, true)
//	if err != nil {
//		return err // retryable, nothing was pooled
//	}
//	defer p.Release(c)
package pool

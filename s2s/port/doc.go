// Package port implements the Port Adapter, the pipeline processor that
// bridges a local flow.IProcessSession and one port on a remote Site-to-Site
// peer.
//
// The adapter is configured through three properties:
//
//   - "Host Name": remote host (default "localhost", a socket path for the unix transport)
//   - "Port": remote Site-to-Site port (default 9999)
//   - "Port UUID": identifier of the remote port (required)
//
// OnSchedule validates them and creates the connection pool of the port. A
// missing or invalid property is a configuration error (see common.IsFatal).
//
// Every OnTrigger checks out one client from the pool (creating and
// handshaking a new one when the pool is empty), runs exactly one transaction
// and releases the client again. A broken client is discarded on release.
//
// Delivery guarantees:
//
//   - SEND: flow files are pulled from the session (up to the batch count),
//     streamed to the peer and only removed from the session once the peer
//     acknowledged the completed transaction. Any failure rolls the session
//     back, so the flow files stay queued for the next attempt.
//   - RECEIVE: received records become new flow files routed to the
//     "undefined" relationship. The session is committed only after the
//     checksums were confirmed and the peer acknowledged the completed
//     transaction. Any failure before that rolls the session back, and the
//     peer keeps the records for the next attempt.
//
// A receiving port is triggered even when its input queue is empty. When the
// peer has nothing to offer, or a sending port has nothing to send, the
// adapter yields (flow.Yield) so the scheduler backs off briefly instead of
// spinning. Failures are returned to the scheduler, which owns retries.
//
// Usage Example:
//
//	adapter := port.NewAdapter(common.PortConfig{
//		Direction:    common.Send,
//		Timeout:      30 * time.Second,
//		Transmitting: true,
//	}, tcp.NewTCPStreamFactory(common.TransportConfig{}))
//	adapter.Initialize()
//
//	pctx := flow.NewStaticContext(port.EndpointProperties(endpoint), adapter.Properties())
//	err := scheduler.New(adapter, pctx, repo, scheduler.Config{}).Run(ctx)
package port

// Package peer implements the remote side of the Site-to-Site protocol: a
// listener that serves the handshake and SEND/RECEIVE transactions against
// in-memory port queues. It backs the "serve" command and the integration
// tests of the client, pool and port packages.
//
// Key Components:
//
//   - Peer: Accepts connections through a transport.IListenerFactory (tcp or
//     unix) and runs one session goroutine per connection. Ports are kept in
//     a concurrent map keyed by the port identifier.
//
//   - Queue: The transactional flow file queue of one port. SEND transactions
//     offer their records only after the client confirmed the checksum.
//     RECEIVE transactions take records tentatively and restore them unless
//     the client finishes the transaction.
//
// Handshake:
//
// The peer accepts every version of protocol.SupportedVersions and answers
// other proposals with the closest lower version. The PORT_IDENTIFIER
// property must name a known port (UNKNOWN_PORT otherwise). BATCH_COUNT
// bounds the flow files handed out per RECEIVE transaction.
//
// Flow control:
//
// A port configured with MaxQueued answers a confirmed SEND with
// TRANSACTION_FINISHED_BUT_DESTINATION_FULL once the limit is reached. The
// records are accepted anyway; the flag only tells clients to back off.
//
// Usage Example:
//
//	p := peer.NewPeer(common.PeerConfig{
//		Endpoint: ":9999",
//		Ports:    map[uuid.UUID]string{portID: "ingest"},
//	}, tcp.NewTCPListenerFactory())
//	if err := p.Start(); err != nil {
//		return err
//	}
//	defer p.Close()
package peer

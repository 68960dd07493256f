// Package client implements the Site-to-Site protocol client. A Client owns
// one connection to a remote peer, performs the handshake once and then runs
// sequential transactions on it.
//
// The package focuses on:
//   - The connection state machine (Uninitialized, Handshaken, InTransaction, Broken)
//   - Protocol version negotiation and the port handshake
//   - Transactional transfer of flow files with CRC32 confirmation
//   - Classification of failures into the common error taxonomy
//
// Key Components:
//
//   - Client: Created with NewClient from a Config and a transport.IStreamFactory.
//     Handshake connects and negotiates; Begin opens a Transaction; Close sends
//     a best effort SHUTDOWN and closes the connection.
//
//   - Transaction: Send writes records (SEND direction), Receive reads them
//     (RECEIVE direction). Confirm exchanges checksums and Complete finishes
//     the transaction, which returns the client to Handshaken. Cancel aborts.
//
// Any failure inside a transaction, and every cancel, leaves the client
// Broken. A Broken client must never be reused: the connection may hold
// half-written frames. The pool enforces this by destroying such clients on
// release.
//
// Timeouts: the handshake and each transaction as a whole are bounded by
// Config.Timeout or the context deadline, whichever is earlier. Exceeding it
// yields an error marked common.ErrTimeout.
//
// Usage Example:
//
//	c := client.NewClient(client.Config{
//		Endpoint: common.RemoteEndpoint{Host: "localhost", Port: 9999, PortID: portID},
//		Timeout:  30 * time.Second,
//	}, tcp.NewTCPStreamFactory(transportConfig))
//
//	if err := c.Handshake(ctx); err != nil {
//		return err
//	}
//	defer c.Close()
//
//	tx, err := c.Begin(ctx, common.Send)
//	if err != nil {
//		return err
//	}
//	if err := tx.Send(attrs, uint64(len(payload)), bytes.NewReader(payload)); err != nil {
//		return err
//	}
//	if err := tx.Confirm(); err != nil {
//		return err
//	}
//	return tx.Complete()
package client

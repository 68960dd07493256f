// Package tcp implements TCP socket based stream and listener factories for
// the Site-to-Site gateway.
//
// Key Components:
//
//   - streamFactory: Dials the remote endpoint and applies TCP options
//     (TCP_NODELAY, keep-alive, linger, socket buffer sizes) from the
//     TransportConfig.
//
//   - listenerFactory: Creates TCP listeners for the peer side.
package tcp

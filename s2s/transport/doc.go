// Package transport defines how the gateway obtains byte streams. The
// protocol client consumes an IStreamFactory and the peer consumes an
// IListenerFactory; the tcp and unix subpackages provide implementations.
//
// Key Components:
//
//   - IStreamFactory: Dials a connection to a RemoteEndpoint. Implementations
//     apply transport specific socket tuning before handing the connection out.
//
//   - IListenerFactory: Creates the listener a Site-to-Site peer accepts
//     connections on.
package transport

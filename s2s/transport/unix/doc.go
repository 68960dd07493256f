// Package unix implements stream and listener factories over Unix domain
// sockets, for a gateway and a peer running on the same machine.
//
// The RemoteEndpoint host is used as the socket path; the port is ignored.
package unix

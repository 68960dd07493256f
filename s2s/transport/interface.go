package transport

import (
	"context"
	"github.com/ValentinKolb/s2sgate/s2s/common"
	"github.com/lni/dragonboat/v4/logger"
	"net"
)

var Logger = logger.GetLogger("s2s/transport")

// --------------------------------------------------------------------------
// Client side
// --------------------------------------------------------------------------

// IStreamFactory supplies byte stream connections to a remote peer.
// The protocol client never constructs sockets itself.
type IStreamFactory interface {
	// CreateStream establishes a single connection to the endpoint. The
	// context bounds the time spent connecting.
	CreateStream(ctx context.Context, endpoint common.RemoteEndpoint) (net.Conn, error)

	// GetName returns the name of the transport type (e.g., "unix", "tcp")
	GetName() string
}

// --------------------------------------------------------------------------
// Peer side
// --------------------------------------------------------------------------

// IListenerFactory creates listeners for the peer side of the protocol
type IListenerFactory interface {
	// Listen creates a listener on the given endpoint
	Listen(endpoint string) (net.Listener, error)

	// GetName returns the name of the transport type (e.g., "unix", "tcp")
	GetName() string
}

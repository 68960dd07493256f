package tcp

import (
	"github.com/ValentinKolb/s2sgate/s2s/transport"
	"github.com/cockroachdb/errors"
	"net"
)

// listenerFactory implements the IListenerFactory interface for TCP sockets
type listenerFactory struct{}

// --------------------------------------------------------------------------
// Interface Methods (docu see transport.IListenerFactory)
// --------------------------------------------------------------------------

func (c *listenerFactory) GetName() string {
	return "tcp"
}

func (c *listenerFactory) Listen(endpoint string) (net.Listener, error) {
	listener, err := net.Listen("tcp", endpoint)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to create TCP socket on %s", endpoint)
	}

	return listener, nil
}

// --------------------------------------------------------------------------
// Factory Method
// --------------------------------------------------------------------------

// NewTCPListenerFactory creates a new TCP listener factory
func NewTCPListenerFactory() transport.IListenerFactory {
	return &listenerFactory{}
}

package unix

import (
	"github.com/ValentinKolb/s2sgate/s2s/transport"
	"github.com/cockroachdb/errors"
	"net"
	"os"
)

// listenerFactory implements the IListenerFactory interface for Unix sockets
type listenerFactory struct{}

// --------------------------------------------------------------------------
// Interface Methods (docu see transport.IListenerFactory)
// --------------------------------------------------------------------------

func (c *listenerFactory) GetName() string {
	return "unix"
}

func (c *listenerFactory) Listen(socketPath string) (net.Listener, error) {
	// Remove existing socket file if it exists
	if err := os.RemoveAll(socketPath); err != nil {
		return nil, errors.Wrapf(err, "failed to remove existing socket %s", socketPath)
	}

	listener, err := net.Listen("unix", socketPath)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to create Unix socket %s", socketPath)
	}

	return listener, nil
}

// --------------------------------------------------------------------------
// Factory Method
// --------------------------------------------------------------------------

// NewUnixListenerFactory creates a new Unix socket listener factory
func NewUnixListenerFactory() transport.IListenerFactory {
	return &listenerFactory{}
}

package unix

import (
	"context"
	"github.com/ValentinKolb/s2sgate/s2s/common"
	"github.com/ValentinKolb/s2sgate/s2s/transport"
	"github.com/cockroachdb/errors"
	"net"
)

// streamFactory implements the IStreamFactory interface for Unix sockets.
// The host of the endpoint is interpreted as the socket path.
type streamFactory struct {
	dialer net.Dialer
}

// --------------------------------------------------------------------------
// Interface Methods (docu see transport.IStreamFactory)
// --------------------------------------------------------------------------

func (f *streamFactory) GetName() string {
	return "unix"
}

func (f *streamFactory) CreateStream(ctx context.Context, endpoint common.RemoteEndpoint) (net.Conn, error) {
	conn, err := f.dialer.DialContext(ctx, "unix", endpoint.Host)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to connect to %s", endpoint.Host)
	}
	return conn, nil
}

// --------------------------------------------------------------------------
// Factory Method
// --------------------------------------------------------------------------

// NewUnixStreamFactory creates a new Unix socket stream factory
func NewUnixStreamFactory() transport.IStreamFactory {
	return &streamFactory{}
}

package tcp

import (
	"context"
	"github.com/ValentinKolb/s2sgate/s2s/common"
	"github.com/ValentinKolb/s2sgate/s2s/transport"
	"github.com/cockroachdb/errors"
	"net"
	"time"
)

// streamFactory implements the IStreamFactory interface for TCP sockets
type streamFactory struct {
	config common.TransportConfig
	dialer net.Dialer
}

// --------------------------------------------------------------------------
// Interface Methods (docu see transport.IStreamFactory)
// --------------------------------------------------------------------------

func (f *streamFactory) GetName() string {
	return "tcp"
}

func (f *streamFactory) CreateStream(ctx context.Context, endpoint common.RemoteEndpoint) (net.Conn, error) {
	if f.config.DialTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, f.config.DialTimeout)
		defer cancel()
	}

	conn, err := f.dialer.DialContext(ctx, "tcp", endpoint.Address())
	if err != nil {
		return nil, errors.Wrapf(err, "failed to connect to %s", endpoint.Address())
	}

	if err := UpgradeConnection(conn, f.config); err != nil {
		_ = conn.Close()
		return nil, errors.Wrapf(err, "failed to upgrade connection to %s", endpoint.Address())
	}

	transport.Logger.Debugf("connected to %s", endpoint.Address())
	return conn, nil
}

// --------------------------------------------------------------------------
// Helper
// --------------------------------------------------------------------------

// UpgradeConnection applies TCP and socket options from the configuration
func UpgradeConnection(conn net.Conn, config common.TransportConfig) error {
	tcpConn, ok := conn.(*net.TCPConn)
	if !ok {
		return nil // Not a TCP connection, nothing to upgrade
	}

	// Disable Nagle's algorithm (TCPNoDelay) if configured
	if err := tcpConn.SetNoDelay(config.TCPNoDelay); err != nil {
		return err
	}

	if config.WriteBufferSize > 0 {
		if err := tcpConn.SetWriteBuffer(config.WriteBufferSize); err != nil {
			return err
		}
	}

	if config.ReadBufferSize > 0 {
		if err := tcpConn.SetReadBuffer(config.ReadBufferSize); err != nil {
			return err
		}
	}

	if config.TCPKeepAliveSec > 0 {
		if err := tcpConn.SetKeepAlive(true); err != nil {
			return err
		}
		if err := tcpConn.SetKeepAlivePeriod(time.Duration(config.TCPKeepAliveSec) * time.Second); err != nil {
			return err
		}
	}

	if config.TCPLingerSec > 0 {
		if err := tcpConn.SetLinger(config.TCPLingerSec); err != nil {
			return err
		}
	}

	return nil
}

// --------------------------------------------------------------------------
// Factory Method
// --------------------------------------------------------------------------

// NewTCPStreamFactory creates a new TCP stream factory
func NewTCPStreamFactory(config common.TransportConfig) transport.IStreamFactory {
	return &streamFactory{config: config}
}

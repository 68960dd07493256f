package client

import (
	"bufio"
	"context"
	"github.com/ValentinKolb/s2sgate/s2s/common"
	"github.com/ValentinKolb/s2sgate/s2s/protocol"
	"github.com/ValentinKolb/s2sgate/s2s/transport"
	"github.com/cockroachdb/errors"
	"github.com/google/uuid"
	"github.com/lni/dragonboat/v4/logger"
	"net"
	"os"
	"strconv"
	"sync/atomic"
	"time"
)

var Logger = logger.GetLogger("s2s/client")

const (
	// DefaultTimeout is used when no transaction timeout is configured
	DefaultTimeout = 30 * time.Second
	// cancelGrace bounds the attempt to send a cancel after the deadline passed
	cancelGrace = time.Second
	// bufferSize of the buffered reader and writer wrapping the connection
	bufferSize = 64 * 1024
)

// --------------------------------------------------------------------------
// Client State
// --------------------------------------------------------------------------

// State is the connection state of a protocol client
type State int32

const (
	Uninitialized State = iota
	Handshaken
	InTransaction
	Broken
)

// String returns the string representation of a State
func (s State) String() string {
	switch s {
	case Uninitialized:
		return "UNINITIALIZED"
	case Handshaken:
		return "HANDSHAKEN"
	case InTransaction:
		return "IN_TRANSACTION"
	case Broken:
		return "BROKEN"
	default:
		return "UNKNOWN"
	}
}

// --------------------------------------------------------------------------
// Client
// --------------------------------------------------------------------------

// Config holds the parameters of a single protocol client
type Config struct {
	Endpoint common.RemoteEndpoint
	// Timeout bounds the handshake and every transaction as a whole
	Timeout time.Duration
	// BatchCount is announced to the peer as a batching hint (0 = none)
	BatchCount int
	// TransitURIPrefix is announced to the peer for provenance
	TransitURIPrefix string
}

// Client owns exactly one connection to a remote peer. It performs the
// handshake once and then runs any number of sequential transactions.
//
// A Client is not safe for concurrent use: it is owned by whoever acquired it
// from the pool until it is released again. Only State() may be called from
// other goroutines.
type Client struct {
	config  Config
	factory transport.IStreamFactory
	id      uuid.UUID

	conn    net.Conn
	reader  *bufio.Reader
	writer  *bufio.Writer
	version uint32

	state  atomic.Int32
	closed atomic.Bool
	idle   atomic.Bool

	createdAt    time.Time
	lastUsed     time.Time
	transactions uint64
}

// NewClient creates an uninitialized client. No connection is made until Handshake.
func NewClient(config Config, factory transport.IStreamFactory) *Client {
	if config.Timeout <= 0 {
		config.Timeout = DefaultTimeout
	}
	now := time.Now()
	return &Client{
		config:    config,
		factory:   factory,
		id:        uuid.New(),
		createdAt: now,
		lastUsed:  now,
	}
}

// ID returns the comms identifier announced during the handshake
func (c *Client) ID() uuid.UUID { return c.id }

// State returns the current connection state
func (c *Client) State() State { return State(c.state.Load()) }

// Version returns the negotiated protocol version (0 before the handshake)
func (c *Client) Version() uint32 { return c.version }

// Endpoint returns the remote endpoint of the client
func (c *Client) Endpoint() common.RemoteEndpoint { return c.config.Endpoint }

// LastUsed returns when the client last finished a handshake or transaction
func (c *Client) LastUsed() time.Time { return c.lastUsed }

// Transactions returns the number of committed transactions on this connection
func (c *Client) Transactions() uint64 { return c.transactions }

// IsClosed reports whether Close was called
func (c *Client) IsClosed() bool { return c.closed.Load() }

// MarkIdle flags the client as parked in a pool. It returns false if the
// client already was parked, which makes a repeated release a no-op.
func (c *Client) MarkIdle() bool { return c.idle.CompareAndSwap(false, true) }

// MarkInUse clears the parked flag once the client is handed out again
func (c *Client) MarkInUse() bool { return c.idle.CompareAndSwap(true, false) }

// Handshake connects to the endpoint, negotiates the protocol version and
// announces the requested port. On any failure the client is Broken and the
// returned error is marked common.ErrHandshake.
func (c *Client) Handshake(ctx context.Context) (err error) {
	if s := c.State(); s != Uninitialized {
		return common.NewProtocolError("handshake requires state %s, client is %s", Uninitialized, s)
	}

	address := c.config.Endpoint.Address()
	defer func() {
		if err != nil {
			c.setState(Broken)
			c.closeConn()
			common.RecordHandshakeFailure(address)
			Logger.Warningf("handshake with %s failed: %v", c.config.Endpoint, err)
		}
	}()

	conn, err := c.factory.CreateStream(ctx, c.config.Endpoint)
	if err != nil {
		return common.WrapHandshake(err, "failed to connect to %s", address)
	}
	c.conn = conn
	c.reader = bufio.NewReaderSize(conn, bufferSize)
	c.writer = bufio.NewWriterSize(conn, bufferSize)

	stop := c.bound(ctx, time.Now().Add(c.config.Timeout))
	defer stop()

	if err := protocol.WriteMagic(c.writer); err != nil {
		return common.WrapHandshake(err, "failed to write preamble")
	}

	version, err := c.negotiateVersion()
	if err != nil {
		return err
	}
	c.version = version

	props := map[string]string{
		protocol.PropGZIP:              "false",
		protocol.PropPortIdentifier:    c.config.Endpoint.PortID.String(),
		protocol.PropRequestExpiration: strconv.FormatInt(c.config.Timeout.Milliseconds(), 10),
	}
	if version >= 5 && c.config.BatchCount > 0 {
		props[protocol.PropBatchCount] = strconv.Itoa(c.config.BatchCount)
	}

	req := protocol.HandshakeRequest{
		CommsID:          c.id.String(),
		TransitURIPrefix: c.config.TransitURIPrefix,
		Properties:       props,
	}
	if err := req.Write(c.writer, version); err != nil {
		return common.WrapHandshake(err, "failed to write handshake")
	}
	if err := c.writer.Flush(); err != nil {
		return common.WrapHandshake(err, "failed to write handshake")
	}

	resp, err := protocol.ReadResponse(c.reader)
	if err != nil {
		return common.WrapHandshake(err, "failed to read handshake response")
	}
	if resp.Code != protocol.PropertiesOK {
		return common.NewHandshakeError("peer %s rejected handshake for port %s: %s", address, c.config.Endpoint.PortID, resp)
	}

	if err := c.conn.SetDeadline(time.Time{}); err != nil {
		return common.WrapHandshake(err, "failed to reset deadline")
	}

	c.lastUsed = time.Now()
	c.setState(Handshaken)
	Logger.Debugf("client %s handshaken with %s (protocol version %d)", c.id, c.config.Endpoint, version)
	return nil
}

// negotiateVersion proposes protocol versions until the peer accepts one
func (c *Client) negotiateVersion() (uint32, error) {
	version := protocol.SupportedVersions[0]

	for attempt := 0; attempt < len(protocol.SupportedVersions); attempt++ {
		if err := protocol.WriteResourceRequest(c.writer, protocol.ResourceName, version); err != nil {
			return 0, common.WrapHandshake(err, "failed to propose version %d", version)
		}
		if err := c.writer.Flush(); err != nil {
			return 0, common.WrapHandshake(err, "failed to propose version %d", version)
		}

		resp, err := protocol.ReadResourceResponse(c.reader)
		if err != nil {
			return 0, common.WrapHandshake(err, "failed to read negotiation response")
		}

		switch resp.Status {
		case protocol.ResourceOK:
			return version, nil
		case protocol.DifferentResourceVersion:
			if resp.Version == version || !isSupported(resp.Version) {
				return 0, common.NewHandshakeError("peer requires unsupported protocol version %d", resp.Version)
			}
			Logger.Debugf("peer prefers protocol version %d over %d", resp.Version, version)
			version = resp.Version
		default:
			return 0, common.NewHandshakeError("peer aborted negotiation: %s", resp.Message)
		}
	}
	return 0, common.NewHandshakeError("no common protocol version with peer")
}

// Begin opens a transaction in the given direction. The whole transaction is
// bounded by the client timeout or the context deadline, whichever is earlier.
func (c *Client) Begin(ctx context.Context, direction common.TransferDirection) (*Transaction, error) {
	if s := c.State(); s != Handshaken {
		return nil, common.NewProtocolError("transaction requires state %s, client is %s", Handshaken, s)
	}

	t := &Transaction{
		client:    c,
		id:        uuid.New(),
		direction: direction,
		started:   time.Now(),
	}
	c.setState(InTransaction)
	t.stop = c.bound(ctx, t.started.Add(c.config.Timeout))

	switch direction {
	case common.Send:
		t.crcW = protocol.NewChecksumWriter(c.writer)
		if err := protocol.WriteRequestType(c.writer, protocol.RequestSendFlowFiles); err != nil {
			return nil, t.fail(err, "failed to open send transaction")
		}
	case common.Receive:
		t.crcR = protocol.NewChecksumReader(c.reader)
		if err := protocol.WriteRequestType(c.writer, protocol.RequestReceiveFlowFiles); err != nil {
			return nil, t.fail(err, "failed to open receive transaction")
		}
		if err := c.writer.Flush(); err != nil {
			return nil, t.fail(err, "failed to open receive transaction")
		}
		resp, err := protocol.ReadResponse(c.reader)
		if err != nil {
			return nil, t.fail(err, "failed to read receive response")
		}
		switch resp.Code {
		case protocol.MoreData:
		case protocol.NoMoreData:
			t.exhausted = true
			t.empty = true
		default:
			return nil, t.fail(common.NewProtocolError("unexpected response %s to receive request", resp), "")
		}
	default:
		return nil, t.fail(common.NewProtocolError("unknown direction %d", direction), "")
	}

	Logger.Debugf("client %s began %s transaction %s", c.id, direction, t.id)
	return t, nil
}

// Close sends a best effort shutdown request if the connection is idle and
// closes it. The client is Broken afterwards. Calling Close more than once is a no-op.
func (c *Client) Close() error {
	if !c.closed.CompareAndSwap(false, true) {
		return nil
	}

	if c.State() == Handshaken && c.conn != nil {
		_ = c.conn.SetWriteDeadline(time.Now().Add(cancelGrace))
		if err := protocol.WriteRequestType(c.writer, protocol.RequestShutdown); err == nil {
			_ = c.writer.Flush()
		}
	}
	c.setState(Broken)
	return c.closeConn()
}

// --------------------------------------------------------------------------
// Helper Methods
// --------------------------------------------------------------------------

func (c *Client) setState(s State) {
	c.state.Store(int32(s))
}

func (c *Client) closeConn() error {
	if c.conn == nil {
		return nil
	}
	err := c.conn.Close()
	c.conn = nil
	return err
}

// bound applies the earlier of deadline and the context deadline to the
// connection and interrupts blocked I/O when the context is cancelled.
// The returned function detaches the context again.
func (c *Client) bound(ctx context.Context, deadline time.Time) func() bool {
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}
	_ = c.conn.SetDeadline(deadline)

	conn := c.conn
	return context.AfterFunc(ctx, func() {
		_ = conn.SetDeadline(time.Now())
	})
}

// classify marks an I/O error with the matching error class
func classify(err error, format string, args ...interface{}) error {
	if errors.Is(err, common.ErrProtocol) || errors.Is(err, common.ErrTimeout) ||
		errors.Is(err, common.ErrChecksumMismatch) || errors.Is(err, common.ErrHandshake) {
		return err
	}

	var netErr net.Error
	if errors.Is(err, os.ErrDeadlineExceeded) || errors.Is(err, context.DeadlineExceeded) ||
		(errors.As(err, &netErr) && netErr.Timeout()) {
		return common.WrapTimeout(err, format, args...)
	}
	return common.WrapProtocol(err, format, args...)
}

func isSupported(version uint32) bool {
	for _, v := range protocol.SupportedVersions {
		if v == version {
			return true
		}
	}
	return false
}

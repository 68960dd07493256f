package common

import (
	"fmt"
	"github.com/google/uuid"
	"net"
	"sort"
	"strconv"
	"strings"
	"time"
)

// --------------------------------------------------------------------------
// Remote endpoint
// --------------------------------------------------------------------------

// RemoteEndpoint identifies the peer and the logical port to connect to
type RemoteEndpoint struct {
	Host   string
	Port   int
	PortID uuid.UUID
}

// Address returns the host:port form of the endpoint
func (e RemoteEndpoint) Address() string {
	return net.JoinHostPort(e.Host, strconv.Itoa(e.Port))
}

// Validate checks that all required fields are present and in range
func (e RemoteEndpoint) Validate() error {
	if e.Host == "" {
		return NewConfigurationError("remote host name is required")
	}
	if e.Port < 1 || e.Port > 65535 {
		return NewConfigurationError("remote port %d is out of range (1-65535)", e.Port)
	}
	if e.PortID == uuid.Nil {
		return NewConfigurationError("remote port identifier is required")
	}
	return nil
}

func (e RemoteEndpoint) String() string {
	return fmt.Sprintf("%s/%s", e.Address(), e.PortID)
}

// --------------------------------------------------------------------------
// Transfer direction
// --------------------------------------------------------------------------

// TransferDirection determines which transaction verb a port uses
type TransferDirection uint8

const (
	// Send moves flow files from the local session to the remote port
	Send TransferDirection = iota
	// Receive moves flow files from the remote port into the local session
	Receive
)

// String returns the string representation of a TransferDirection
func (d TransferDirection) String() string {
	switch d {
	case Send:
		return "send"
	case Receive:
		return "receive"
	default:
		return "unknown"
	}
}

// ParseTransferDirection converts "send" or "receive" to a TransferDirection
func ParseTransferDirection(s string) (TransferDirection, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "send":
		return Send, nil
	case "receive":
		return Receive, nil
	default:
		return Send, NewConfigurationError("invalid direction %q (expected send or receive)", s)
	}
}

// --------------------------------------------------------------------------
// Socket configuration
// --------------------------------------------------------------------------

// SocketConf holds generic socket buffer settings
type SocketConf struct {
	WriteBufferSize int
	ReadBufferSize  int
}

// TCPConf holds TCP specific socket settings
type TCPConf struct {
	TCPNoDelay      bool
	TCPKeepAliveSec int
	TCPLingerSec    int
}

// TransportConfig selects and tunes the stream factory
type TransportConfig struct {
	// Name of the stream factory (tcp, unix)
	Name        string
	DialTimeout time.Duration
	SocketConf
	TCPConf
}

// --------------------------------------------------------------------------
// Port configuration
// --------------------------------------------------------------------------

// PortConfig holds all configuration parameters of a remote port adapter
type PortConfig struct {
	Endpoint     RemoteEndpoint
	Direction    TransferDirection
	Timeout      time.Duration
	Transmitting bool

	// BatchCount bounds how many flow files a single send transaction pulls
	BatchCount int

	// Connection pool bounds
	MaxIdle     int
	MaxIdleTime time.Duration

	Transport TransportConfig

	// Logging configuration
	LogLevel string
}

// String returns a formatted string representation of the configuration
func (c *PortConfig) String() string {
	var sb strings.Builder

	addSection := func(title string) {
		sb.WriteString("\n")
		sb.WriteString(fmt.Sprintf("%s\n", strings.ToUpper(title)))
	}

	addField := func(name, value string) {
		sb.WriteString(fmt.Sprintf("  %-22s: %s\n", name, value))
	}

	addSection("Remote Port")
	addField("Host", c.Endpoint.Host)
	addField("Port", strconv.Itoa(c.Endpoint.Port))
	addField("Port UUID", c.Endpoint.PortID.String())
	addField("Direction", c.Direction.String())
	addField("Timeout", c.Timeout.String())
	addField("Transmitting", strconv.FormatBool(c.Transmitting))
	addField("Batch Count", strconv.Itoa(c.BatchCount))

	addSection("Connection Pool")
	addField("Max Idle", strconv.Itoa(c.MaxIdle))
	addField("Max Idle Time", c.MaxIdleTime.String())

	addSection("Transport")
	addField("Name", c.Transport.Name)
	addField("Dial Timeout", c.Transport.DialTimeout.String())
	if c.Transport.Name == "tcp" {
		addField("TCP No Delay", strconv.FormatBool(c.Transport.TCPNoDelay))
		addField("TCP Keep Alive", fmt.Sprintf("%d sec", c.Transport.TCPKeepAliveSec))
	}

	addSection("Logging")
	addField("Log Level", c.LogLevel)

	return sb.String()
}

// --------------------------------------------------------------------------
// Peer configuration
// --------------------------------------------------------------------------

// PeerConfig holds the configuration of a Site-to-Site peer (the remote side)
type PeerConfig struct {
	// Endpoint on which the peer listens (host:port or socket path)
	Endpoint string
	// Name of the listener transport (tcp, unix)
	Transport string
	// Ports served by this peer, keyed by port identifier
	Ports map[uuid.UUID]string
	// Timeout for a single read or write on a connection
	Timeout time.Duration
	// MaxQueued bounds the number of flow files held per port (0 = unbounded)
	MaxQueued int
	// Endpoint for the prometheus metrics handler (empty = disabled)
	MetricsEndpoint string

	LogLevel string
}

// String returns a formatted string representation of the peer configuration
func (c *PeerConfig) String() string {
	var sb strings.Builder

	addSection := func(title string) {
		sb.WriteString("\n")
		sb.WriteString(fmt.Sprintf("%s\n", strings.ToUpper(title)))
	}

	addField := func(name, value string) {
		sb.WriteString(fmt.Sprintf("  %-22s: %s\n", name, value))
	}

	addSection("Site-to-Site Peer")
	addField("Endpoint", c.Endpoint)
	addField("Transport", c.Transport)
	addField("Timeout", c.Timeout.String())
	addField("Max Queued", strconv.Itoa(c.MaxQueued))
	addField("Metrics Endpoint", c.MetricsEndpoint)

	addSection("Logging")
	addField("Log Level", c.LogLevel)

	addSection("Ports")
	// sort for consistent output
	ids := make([]uuid.UUID, 0, len(c.Ports))
	for id := range c.Ports {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i].String() < ids[j].String() })
	for _, id := range ids {
		addField(c.Ports[id], id.String())
	}

	return sb.String()
}

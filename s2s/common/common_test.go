package common

import (
	"context"
	"github.com/cockroachdb/errors"
	"github.com/google/uuid"
	"github.com/lni/dragonboat/v4/logger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"strings"
	"testing"
	"time"
)

func TestErrorClassification(t *testing.T) {
	cause := errors.New("connection reset by peer")

	tests := []struct {
		name      string
		err       error
		fatal     bool
		retryable bool
		timeout   bool
	}{
		{"nil", nil, false, false, false},
		{"configuration", NewConfigurationError("port uuid is required"), true, false, false},
		{"handshake", NewHandshakeError("peer rejected port %s", "x"), false, true, false},
		{"wrapped handshake", WrapHandshake(cause, "failed to connect"), false, true, false},
		{"protocol", WrapProtocol(cause, "failed to read response"), false, true, false},
		{"timeout", WrapTimeout(cause, "transaction took too long"), false, true, true},
		{"checksum", NewChecksumMismatchError("1", "2"), false, true, false},
		{"deadline", context.DeadlineExceeded, false, true, false},
		{"unclassified", cause, false, false, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.fatal, IsFatal(tt.err))
			assert.Equal(t, tt.retryable, IsRetryable(tt.err))
			assert.Equal(t, tt.timeout, IsTimeout(tt.err))
		})
	}
}

func TestErrorMarksSurviveWrapping(t *testing.T) {
	err := errors.Wrap(NewChecksumMismatchError("10", "20"), "send transaction")
	assert.ErrorIs(t, err, ErrChecksumMismatch)
	assert.Contains(t, err.Error(), "local checksum 10 does not match remote checksum 20")

	err = errors.Wrap(WrapProtocol(errors.New("eof"), "read frame"), "handshake")
	assert.ErrorIs(t, err, ErrProtocol)
	assert.NotErrorIs(t, err, ErrHandshake)
}

func TestRemoteEndpoint_Validate(t *testing.T) {
	id := uuid.New()
	tests := []struct {
		name     string
		endpoint RemoteEndpoint
		ok       bool
	}{
		{"valid", RemoteEndpoint{Host: "localhost", Port: 9999, PortID: id}, true},
		{"missing host", RemoteEndpoint{Port: 9999, PortID: id}, false},
		{"port zero", RemoteEndpoint{Host: "localhost", PortID: id}, false},
		{"port too large", RemoteEndpoint{Host: "localhost", Port: 65536, PortID: id}, false},
		{"missing uuid", RemoteEndpoint{Host: "localhost", Port: 9999}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.endpoint.Validate()
			if tt.ok {
				assert.NoError(t, err)
				return
			}
			assert.True(t, IsFatal(err))
		})
	}

	e := RemoteEndpoint{Host: "::1", Port: 8080, PortID: id}
	assert.Equal(t, "[::1]:8080", e.Address())
	assert.Equal(t, "[::1]:8080/"+id.String(), e.String())
}

func TestParseTransferDirection(t *testing.T) {
	d, err := ParseTransferDirection(" Receive ")
	require.NoError(t, err)
	assert.Equal(t, Receive, d)
	assert.Equal(t, "receive", d.String())

	d, err = ParseTransferDirection("send")
	require.NoError(t, err)
	assert.Equal(t, Send, d)

	_, err = ParseTransferDirection("sideways")
	assert.True(t, IsFatal(err))
	assert.Equal(t, "unknown", TransferDirection(7).String())
}

func TestConfigStrings(t *testing.T) {
	id := uuid.New()
	port := &PortConfig{
		Endpoint:  RemoteEndpoint{Host: "nifi.local", Port: 10443, PortID: id},
		Direction: Receive,
		Timeout:   15 * time.Second,
		Transport: TransportConfig{Name: "tcp", TCPConf: TCPConf{TCPNoDelay: true}},
		LogLevel:  "debug",
	}
	out := port.String()
	assert.Contains(t, out, "REMOTE PORT")
	assert.Contains(t, out, id.String())
	assert.Contains(t, out, "receive")
	assert.Contains(t, out, "TCP No Delay")

	peer := &PeerConfig{
		Endpoint: ":9999",
		Ports:    map[uuid.UUID]string{uuid.MustParse("00000000-0000-0000-0000-000000000002"): "b", uuid.MustParse("00000000-0000-0000-0000-000000000001"): "a"},
	}
	out = peer.String()
	assert.Less(t, strings.Index(out, "00000000-0000-0000-0000-000000000001"), strings.Index(out, "00000000-0000-0000-0000-000000000002"))
}

func TestParseLogLevel(t *testing.T) {
	lvl, err := ParseLogLevel("WARN")
	require.NoError(t, err)
	assert.Equal(t, logger.WARNING, lvl)

	_, err = ParseLogLevel("verbose")
	assert.True(t, IsFatal(err))
}

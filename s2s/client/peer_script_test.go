package client

import (
	"bufio"
	"context"
	"fmt"
	"github.com/ValentinKolb/s2sgate/s2s/common"
	"github.com/ValentinKolb/s2sgate/s2s/protocol"
	"github.com/google/uuid"
	"io"
	"net"
	"strings"
	"testing"
	"time"
)

var testEndpoint = common.RemoteEndpoint{Host: "pipe", Port: 9999, PortID: uuid.MustParse("8a1c3b0e-5d6f-4c1a-9f2e-0b7d6e5c4a39")}

// pipeFactory hands out one end of an in-memory pipe
type pipeFactory struct {
	conn net.Conn
	err  error
}

func (f *pipeFactory) CreateStream(_ context.Context, _ common.RemoteEndpoint) (net.Conn, error) {
	return f.conn, f.err
}

func (f *pipeFactory) GetName() string { return "pipe" }

// newPipeClient creates a client whose connection is the returned peer end of a pipe
func newPipeClient(t *testing.T, timeout time.Duration) (*Client, net.Conn) {
	clientConn, peerConn := net.Pipe()
	c := NewClient(Config{Endpoint: testEndpoint, Timeout: timeout}, &pipeFactory{conn: clientConn})
	t.Cleanup(func() {
		_ = c.Close()
		_ = peerConn.Close()
	})
	return c, peerConn
}

// scriptedPeer plays the remote side of the protocol step by step
type scriptedPeer struct {
	conn net.Conn
	r    *bufio.Reader
}

// runPeer executes script on its own goroutine and closes the connection afterwards
func runPeer(conn net.Conn, script func(p *scriptedPeer) error) <-chan error {
	done := make(chan error, 1)
	go func() {
		defer conn.Close()
		done <- script(&scriptedPeer{conn: conn, r: bufio.NewReader(conn)})
	}()
	return done
}

// handshake accepts the handshake, steering negotiation to version
func (p *scriptedPeer) handshake(version uint32) (protocol.HandshakeRequest, error) {
	if err := protocol.ReadMagic(p.r); err != nil {
		return protocol.HandshakeRequest{}, err
	}
	if err := p.negotiate(version); err != nil {
		return protocol.HandshakeRequest{}, err
	}
	req, err := protocol.ReadHandshakeRequest(p.r, version)
	if err != nil {
		return req, err
	}
	return req, p.respond(protocol.PropertiesOK, "")
}

func (p *scriptedPeer) negotiate(version uint32) error {
	for {
		name, proposed, err := protocol.ReadResourceRequest(p.r)
		if err != nil {
			return err
		}
		if name != protocol.ResourceName {
			return fmt.Errorf("unexpected resource %q", name)
		}
		if proposed == version {
			return protocol.WriteResourceResponse(p.conn, protocol.ResourceResponse{Status: protocol.ResourceOK})
		}
		err = protocol.WriteResourceResponse(p.conn, protocol.ResourceResponse{
			Status:  protocol.DifferentResourceVersion,
			Version: version,
		})
		if err != nil {
			return err
		}
	}
}

func (p *scriptedPeer) respond(code protocol.ResponseCode, message string) error {
	return protocol.WriteResponse(p.conn, code, message)
}

func (p *scriptedPeer) expectRequest(want protocol.RequestType) error {
	got, err := protocol.ReadRequestType(p.r)
	if err != nil {
		return err
	}
	if got != want {
		return fmt.Errorf("expected request %s, got %s", want, got)
	}
	return nil
}

func (p *scriptedPeer) expectResponse(want protocol.ResponseCode) (protocol.Response, error) {
	resp, err := protocol.ReadResponse(p.r)
	if err != nil {
		return resp, err
	}
	if resp.Code != want {
		return resp, fmt.Errorf("expected %s, got %s", want, resp)
	}
	return resp, nil
}

type sentRecord struct {
	attrs   map[string]string
	payload string
}

// readSent reads records until FINISH_TRANSACTION and returns them with their checksum
func (p *scriptedPeer) readSent() ([]sentRecord, string, error) {
	crc := protocol.NewChecksumReader(p.r)
	var records []sentRecord
	for {
		attrs, size, err := protocol.ReadRecordHeader(crc)
		if err != nil {
			return nil, "", err
		}
		payload := make([]byte, size)
		if _, err := io.ReadFull(crc, payload); err != nil {
			return nil, "", err
		}
		records = append(records, sentRecord{attrs: attrs, payload: string(payload)})

		resp, err := protocol.ReadResponse(p.r)
		if err != nil {
			return nil, "", err
		}
		switch resp.Code {
		case protocol.ContinueTx:
		case protocol.FinishTx:
			return records, protocol.FormatChecksum(crc.Sum()), nil
		default:
			return nil, "", fmt.Errorf("unexpected %s between records", resp)
		}
	}
}

// writeRecords sends records for a RECEIVE transaction and returns their checksum
func (p *scriptedPeer) writeRecords(records []sentRecord) (string, error) {
	w := bufio.NewWriter(p.conn)
	crc := protocol.NewChecksumWriter(w)
	if err := protocol.WriteResponse(w, protocol.MoreData, ""); err != nil {
		return "", err
	}
	for i, rec := range records {
		if i > 0 {
			if err := protocol.WriteResponse(w, protocol.ContinueTx, ""); err != nil {
				return "", err
			}
		}
		if err := protocol.WriteRecord(crc, rec.attrs, uint64(len(rec.payload)), strings.NewReader(rec.payload)); err != nil {
			return "", err
		}
	}
	if err := protocol.WriteResponse(w, protocol.FinishTx, ""); err != nil {
		return "", err
	}
	return protocol.FormatChecksum(crc.Sum()), w.Flush()
}

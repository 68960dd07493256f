package peer

import (
	"bufio"
	"bytes"
	"github.com/ValentinKolb/s2sgate/s2s/common"
	"github.com/ValentinKolb/s2sgate/s2s/protocol"
	"github.com/cockroachdb/errors"
	"github.com/google/uuid"
	"io"
	"net"
	"slices"
	"strconv"
	"time"
)

const (
	bufferSize = 64 * 1024

	// defaultBatch bounds the flow files of a RECEIVE transaction when the
	// client did not ask for a batch count
	defaultBatch = 100

	// outcome of a RECEIVE request without data
	outcomeEmpty = "empty"
)

// errCancelled ends a connection whose client cancelled the transaction
var errCancelled = errors.New("transaction cancelled by client")

// session serves one client connection
type session struct {
	peer   *Peer
	conn   net.Conn
	r      *bufio.Reader
	w      *bufio.Writer
	remote string

	version    uint32
	port       *Queue
	batchCount int
}

func newSession(p *Peer, conn net.Conn) *session {
	return &session{
		peer:   p,
		conn:   conn,
		r:      bufio.NewReaderSize(conn, bufferSize),
		w:      bufio.NewWriterSize(conn, bufferSize),
		remote: conn.RemoteAddr().String(),
	}
}

// serve runs the handshake and then answers requests until the client shuts
// the connection down or an error occurs
func (s *session) serve() {
	if err := s.handshake(); err != nil {
		Logger.Warningf("handshake with %s failed: %v", s.remote, err)
		return
	}
	Logger.Debugf("client %s handshaken for port %s (protocol version %d)", s.remote, s.port.Name(), s.version)

	for {
		// idle connections wait for the next request without a deadline
		if err := s.conn.SetDeadline(time.Time{}); err != nil {
			return
		}
		req, err := protocol.ReadRequestType(s.r)
		if err != nil {
			if !errors.Is(err, io.EOF) && !s.peer.closed.Load() {
				Logger.Debugf("connection to %s closed: %v", s.remote, err)
			}
			return
		}
		if err := s.conn.SetDeadline(time.Now().Add(s.peer.config.Timeout)); err != nil {
			return
		}

		switch req {
		case protocol.RequestShutdown:
			Logger.Debugf("client %s shut down the connection", s.remote)
			return
		case protocol.RequestSendFlowFiles:
			err = s.receiveFromClient()
		case protocol.RequestReceiveFlowFiles:
			err = s.sendToClient()
		default:
			err = errors.Newf("unknown request type %q", req)
		}
		if err != nil {
			Logger.Warningf("%s request from %s failed: %v", req, s.remote, err)
			return
		}
	}
}

// --------------------------------------------------------------------------
// Handshake
// --------------------------------------------------------------------------

func (s *session) handshake() error {
	if err := s.conn.SetDeadline(time.Now().Add(s.peer.config.Timeout)); err != nil {
		return err
	}
	if err := protocol.ReadMagic(s.r); err != nil {
		return err
	}

	version, err := s.negotiate()
	if err != nil {
		return err
	}
	s.version = version

	req, err := protocol.ReadHandshakeRequest(s.r, version)
	if err != nil {
		return err
	}

	rawID, ok := req.Properties[protocol.PropPortIdentifier]
	if !ok {
		return s.reject(protocol.MissingProperty, "missing property "+protocol.PropPortIdentifier)
	}
	id, err := uuid.Parse(rawID)
	if err != nil {
		return s.reject(protocol.IllegalPropertyValue, "invalid port identifier "+rawID)
	}
	port, ok := s.peer.Port(id)
	if !ok {
		return s.reject(protocol.UnknownPort, "unknown port "+rawID)
	}
	s.port = port

	if raw, ok := req.Properties[protocol.PropBatchCount]; ok {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			return s.reject(protocol.IllegalPropertyValue, "invalid batch count "+raw)
		}
		s.batchCount = n
	}

	return s.respond(protocol.PropertiesOK, "")
}

// negotiate answers resource proposals until a supported version was proposed
func (s *session) negotiate() (uint32, error) {
	for attempt := 0; attempt <= len(protocol.SupportedVersions); attempt++ {
		name, version, err := protocol.ReadResourceRequest(s.r)
		if err != nil {
			return 0, err
		}
		if name != protocol.ResourceName {
			_ = protocol.WriteResourceResponse(s.w, protocol.ResourceResponse{
				Status:  protocol.NegotiatedAbort,
				Message: "unknown resource " + name,
			})
			_ = s.w.Flush()
			return 0, errors.Newf("client requested unknown resource %q", name)
		}

		resp := protocol.ResourceResponse{Status: protocol.ResourceOK}
		if !slices.Contains(protocol.SupportedVersions, version) {
			resp = protocol.ResourceResponse{Status: protocol.DifferentResourceVersion, Version: preferredVersion(version)}
		}
		if err := protocol.WriteResourceResponse(s.w, resp); err != nil {
			return 0, err
		}
		if err := s.w.Flush(); err != nil {
			return 0, err
		}
		if resp.Status == protocol.ResourceOK {
			return version, nil
		}
	}
	return 0, errors.New("version negotiation did not converge")
}

// preferredVersion returns the highest supported version below proposed, or
// the highest supported version at all
func preferredVersion(proposed uint32) uint32 {
	for _, v := range protocol.SupportedVersions {
		if v < proposed {
			return v
		}
	}
	return protocol.SupportedVersions[0]
}

func (s *session) reject(code protocol.ResponseCode, message string) error {
	if err := s.respond(code, message); err != nil {
		return err
	}
	return errors.Newf("rejected handshake: %s", message)
}

// --------------------------------------------------------------------------
// SEND (client to peer)
// --------------------------------------------------------------------------

// receiveFromClient buffers the records of a SEND transaction and offers them
// to the port once the client confirmed the checksum
func (s *session) receiveFromClient() (err error) {
	outcome := common.OutcomeFailed
	defer func() {
		common.RecordPeerTransaction(string(protocol.RequestSendFlowFiles), outcome)
	}()

	crc := protocol.NewChecksumReader(s.r)
	var items []Item
	for {
		// a client may cancel before the first record
		if len(items) == 0 {
			if b, err := s.r.Peek(1); err == nil && b[0] == 'R' {
				outcome = common.OutcomeCancelled
				return s.expectCancel()
			}
		}

		attrs, size, err := protocol.ReadRecordHeader(crc)
		if err != nil {
			return errors.Wrap(err, "failed to read record header")
		}
		content := make([]byte, size)
		if _, err := io.ReadFull(crc, content); err != nil {
			return errors.Wrap(err, "failed to read record content")
		}
		items = append(items, Item{Attributes: attrs, Content: content})

		resp, err := protocol.ReadResponse(s.r)
		if err != nil {
			return err
		}
		if resp.Code == protocol.FinishTx {
			break
		}
		switch resp.Code {
		case protocol.ContinueTx:
			continue
		case protocol.CancelTx:
			outcome = common.OutcomeCancelled
			return errors.Wrapf(errCancelled, "%s", resp.Message)
		default:
			return errors.Newf("unexpected %s between records", resp)
		}
	}

	if err := s.respond(protocol.ConfirmTx, protocol.FormatChecksum(crc.Sum())); err != nil {
		return err
	}
	resp, err := protocol.ReadResponse(s.r)
	if err != nil {
		return err
	}
	switch resp.Code {
	case protocol.ConfirmTx:
	case protocol.BadChecksum:
		return errors.Newf("client reported a bad checksum for %d flow files", len(items))
	case protocol.CancelTx:
		outcome = common.OutcomeCancelled
		return errors.Wrapf(errCancelled, "%s", resp.Message)
	default:
		return errors.Newf("client answered %s instead of confirming", resp)
	}

	code := protocol.TxFinished
	if full := s.port.Offer(items...); full {
		code = protocol.TxFinishedDestFull
	}
	outcome = common.OutcomeCommitted
	Logger.Debugf("received %d flow files from %s on port %s", len(items), s.remote, s.port.Name())
	return s.respond(code, "")
}

// --------------------------------------------------------------------------
// RECEIVE (peer to client)
// --------------------------------------------------------------------------

// sendToClient hands queued flow files to the client. They are removed from
// the port only after the client finished the transaction.
func (s *session) sendToClient() (err error) {
	batch := s.batchCount
	if batch <= 0 {
		batch = defaultBatch
	}
	items := s.port.Take(batch)

	outcome := common.OutcomeFailed
	defer func() {
		if outcome != common.OutcomeCommitted {
			s.port.Restore(items)
		}
		common.RecordPeerTransaction(string(protocol.RequestReceiveFlowFiles), outcome)
	}()

	if len(items) == 0 {
		outcome = outcomeEmpty
		return s.respond(protocol.NoMoreData, "")
	}

	crc := protocol.NewChecksumWriter(s.w)
	if err := protocol.WriteResponse(s.w, protocol.MoreData, ""); err != nil {
		return err
	}
	for i, item := range items {
		if i > 0 {
			if err := protocol.WriteResponse(s.w, protocol.ContinueTx, ""); err != nil {
				return err
			}
		}
		if err := protocol.WriteRecord(crc, item.Attributes, uint64(len(item.Content)), bytes.NewReader(item.Content)); err != nil {
			return err
		}
	}
	if err := s.respond(protocol.FinishTx, ""); err != nil {
		return err
	}

	resp, err := protocol.ReadResponse(s.r)
	if err != nil {
		return err
	}
	switch resp.Code {
	case protocol.ConfirmTx:
	case protocol.CancelTx:
		outcome = common.OutcomeCancelled
		return errors.Wrapf(errCancelled, "%s", resp.Message)
	default:
		return errors.Newf("client answered %s instead of confirming", resp)
	}
	if local := protocol.FormatChecksum(crc.Sum()); resp.Message != local {
		_ = s.respond(protocol.BadChecksum, "")
		return common.NewChecksumMismatchError(local, resp.Message)
	}
	if err := s.respond(protocol.ConfirmTx, ""); err != nil {
		return err
	}

	resp, err = protocol.ReadResponse(s.r)
	if err != nil {
		return err
	}
	switch resp.Code {
	case protocol.TxFinished:
	case protocol.CancelTx:
		outcome = common.OutcomeCancelled
		return errors.Wrapf(errCancelled, "%s", resp.Message)
	default:
		return errors.Newf("client answered %s instead of finishing", resp)
	}

	outcome = common.OutcomeCommitted
	Logger.Debugf("sent %d flow files to %s from port %s", len(items), s.remote, s.port.Name())
	return s.respond(protocol.TxFinished, "")
}

// --------------------------------------------------------------------------
// Helper Methods
// --------------------------------------------------------------------------

func (s *session) respond(code protocol.ResponseCode, message string) error {
	if err := protocol.WriteResponse(s.w, code, message); err != nil {
		return err
	}
	return s.w.Flush()
}

func (s *session) expectCancel() error {
	resp, err := protocol.ReadResponse(s.r)
	if err != nil {
		return err
	}
	if resp.Code != protocol.CancelTx {
		return errors.Newf("unexpected %s before the first record", resp)
	}
	return errors.Wrapf(errCancelled, "%s", resp.Message)
}

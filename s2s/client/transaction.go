package client

import (
	"github.com/ValentinKolb/s2sgate/s2s/common"
	"github.com/ValentinKolb/s2sgate/s2s/protocol"
	"github.com/google/uuid"
	"io"
	"time"
)

type txPhase int

const (
	phaseOpen txPhase = iota
	phaseConfirmed
	phaseDone
)

// Record is a flow file received from the peer. Content yields exactly Size
// bytes and is only valid until the next call to Receive or Confirm.
type Record struct {
	Attributes map[string]string
	Size       uint64
	Content    io.Reader
}

// Transaction is a single exchange of flow files in one direction. It is
// obtained from Client.Begin and ends with Complete, Cancel or the first error.
// After an error the owning client is Broken and must be discarded.
type Transaction struct {
	client    *Client
	id        uuid.UUID
	direction common.TransferDirection
	started   time.Time
	stop      func() bool
	phase     txPhase

	// send side
	crcW *protocol.ChecksumWriter

	// receive side
	crcR      *protocol.ChecksumReader
	pending   *io.LimitedReader
	exhausted bool
	empty     bool

	records         int
	bytes           uint64
	destinationFull bool
}

// ID returns the local identifier of the transaction (used in logs only)
func (t *Transaction) ID() uuid.UUID { return t.id }

// Direction returns the transfer direction of the transaction
func (t *Transaction) Direction() common.TransferDirection { return t.direction }

// Records returns the number of records sent or received so far
func (t *Transaction) Records() int { return t.records }

// Bytes returns the number of payload bytes sent or received so far
func (t *Transaction) Bytes() uint64 { return t.bytes }

// DestinationFull reports whether the peer accepted the data but signalled
// that its destination is now full
func (t *Transaction) DestinationFull() bool { return t.destinationFull }

// Checksum returns the CRC32 of the record bytes exchanged so far
func (t *Transaction) Checksum() string {
	if t.direction == common.Send {
		return protocol.FormatChecksum(t.crcW.Sum())
	}
	return protocol.FormatChecksum(t.crcR.Sum())
}

// --------------------------------------------------------------------------
// Send
// --------------------------------------------------------------------------

// Send writes one flow file to the peer. Exactly size bytes are copied from content.
func (t *Transaction) Send(attrs map[string]string, size uint64, content io.Reader) error {
	if err := t.expect(common.Send, phaseOpen); err != nil {
		return err
	}

	w := t.client.writer
	if t.records > 0 {
		if err := protocol.WriteResponse(w, protocol.ContinueTx, ""); err != nil {
			return t.fail(err, "failed to continue transaction")
		}
	}
	if err := protocol.WriteRecord(t.crcW, attrs, size, content); err != nil {
		return t.fail(err, "failed to send record %d", t.records+1)
	}

	t.records++
	t.bytes += size
	return nil
}

// --------------------------------------------------------------------------
// Receive
// --------------------------------------------------------------------------

// Receive returns the next record sent by the peer or nil once the peer has
// no more data for this transaction. Unread content of the previous record is
// discarded (but still checksummed).
func (t *Transaction) Receive() (*Record, error) {
	if err := t.expect(common.Receive, phaseOpen); err != nil {
		return nil, err
	}
	if err := t.drain(); err != nil {
		return nil, err
	}
	if t.exhausted {
		return nil, nil
	}

	if t.records > 0 {
		resp, err := protocol.ReadResponse(t.client.reader)
		if err != nil {
			return nil, t.fail(err, "failed to read transaction response")
		}
		switch resp.Code {
		case protocol.ContinueTx:
		case protocol.FinishTx:
			t.exhausted = true
			return nil, nil
		default:
			return nil, t.fail(common.NewProtocolError("unexpected response %s while receiving", resp), "")
		}
	}

	attrs, size, err := protocol.ReadRecordHeader(t.crcR)
	if err != nil {
		return nil, t.fail(err, "failed to read record %d", t.records+1)
	}

	t.pending = &io.LimitedReader{R: t.crcR, N: int64(size)}
	t.records++
	t.bytes += size
	return &Record{Attributes: attrs, Size: size, Content: &recordReader{t: t, r: t.pending}}, nil
}

// drain discards the unread rest of the current record
func (t *Transaction) drain() error {
	if t.pending == nil {
		return nil
	}
	pending := t.pending
	t.pending = nil
	if _, err := io.Copy(io.Discard, pending); err != nil {
		return t.fail(err, "failed to skip record content")
	}
	if pending.N > 0 {
		return t.fail(io.ErrUnexpectedEOF, "record content truncated")
	}
	return nil
}

// recordReader reports I/O failures of a record payload to its transaction
type recordReader struct {
	t *Transaction
	r *io.LimitedReader
}

func (rr *recordReader) Read(p []byte) (int, error) {
	if rr.t.pending != rr.r {
		return 0, io.EOF
	}
	n, err := rr.r.Read(p)
	if err != nil && err != io.EOF {
		return n, rr.t.fail(err, "failed to read record content")
	}
	if err == io.EOF && rr.r.N > 0 {
		return n, rr.t.fail(io.ErrUnexpectedEOF, "record content truncated")
	}
	return n, err
}

// --------------------------------------------------------------------------
// Confirm / Complete / Cancel
// --------------------------------------------------------------------------

// Confirm exchanges checksums with the peer. For SEND it announces the end of
// the data; for RECEIVE all data must have been read. A checksum mismatch
// returns an error marked common.ErrChecksumMismatch and breaks the client.
func (t *Transaction) Confirm() error {
	if err := t.expect(t.direction, phaseOpen); err != nil {
		return err
	}
	c := t.client

	switch t.direction {
	case common.Send:
		if t.records == 0 {
			return t.fail(common.NewProtocolError("cannot confirm a send transaction without records"), "")
		}
		if err := protocol.WriteResponse(c.writer, protocol.FinishTx, ""); err != nil {
			return t.fail(err, "failed to finish transaction")
		}
		if err := c.writer.Flush(); err != nil {
			return t.fail(err, "failed to finish transaction")
		}
		resp, err := protocol.ReadResponse(c.reader)
		if err != nil {
			return t.fail(err, "failed to read confirmation")
		}
		if resp.Code != protocol.ConfirmTx {
			return t.fail(common.NewProtocolError("peer answered %s instead of confirming", resp), "")
		}
		local := t.Checksum()
		if resp.Message != local {
			if err := protocol.WriteResponse(c.writer, protocol.BadChecksum, ""); err == nil {
				_ = c.writer.Flush()
			}
			return t.fail(common.NewChecksumMismatchError(local, resp.Message), "")
		}
		if err := protocol.WriteResponse(c.writer, protocol.ConfirmTx, ""); err != nil {
			return t.fail(err, "failed to confirm transaction")
		}
		if err := c.writer.Flush(); err != nil {
			return t.fail(err, "failed to confirm transaction")
		}

	case common.Receive:
		if err := t.drain(); err != nil {
			return err
		}
		if !t.exhausted {
			return t.fail(common.NewProtocolError("cannot confirm before the peer finished sending"), "")
		}
		if !t.empty {
			local := t.Checksum()
			if err := protocol.WriteResponse(c.writer, protocol.ConfirmTx, local); err != nil {
				return t.fail(err, "failed to confirm transaction")
			}
			if err := c.writer.Flush(); err != nil {
				return t.fail(err, "failed to confirm transaction")
			}
			resp, err := protocol.ReadResponse(c.reader)
			if err != nil {
				return t.fail(err, "failed to read confirmation")
			}
			switch resp.Code {
			case protocol.ConfirmTx:
			case protocol.BadChecksum:
				return t.fail(common.NewChecksumMismatchError(local, "rejected by peer"), "")
			default:
				return t.fail(common.NewProtocolError("peer answered %s instead of confirming", resp), "")
			}
		}
	}

	t.phase = phaseConfirmed
	return nil
}

// Complete finishes a confirmed transaction and hands the client back to the
// Handshaken state. For SEND the peer's answer may flag a full destination,
// which is still a success (see DestinationFull).
func (t *Transaction) Complete() error {
	if err := t.expect(t.direction, phaseConfirmed); err != nil {
		return err
	}
	c := t.client

	if t.direction == common.Send {
		resp, err := protocol.ReadResponse(c.reader)
		if err != nil {
			return t.fail(err, "failed to read transaction result")
		}
		switch resp.Code {
		case protocol.TxFinished:
		case protocol.TxFinishedDestFull:
			t.destinationFull = true
			Logger.Infof("peer %s accepted transaction %s but its destination is full", c.config.Endpoint, t.id)
		default:
			return t.fail(common.NewProtocolError("peer answered %s instead of finishing", resp), "")
		}
	} else if !t.empty {
		if err := protocol.WriteResponse(c.writer, protocol.TxFinished, ""); err != nil {
			return t.fail(err, "failed to finish transaction")
		}
		if err := c.writer.Flush(); err != nil {
			return t.fail(err, "failed to finish transaction")
		}
		resp, err := protocol.ReadResponse(c.reader)
		if err != nil {
			return t.fail(err, "failed to read transaction acknowledgement")
		}
		if resp.Code != protocol.TxFinished {
			return t.fail(common.NewProtocolError("peer answered %s instead of acknowledging", resp), "")
		}
	}

	t.stop()
	if err := c.conn.SetDeadline(time.Time{}); err != nil {
		return t.fail(err, "failed to reset deadline")
	}

	t.phase = phaseDone
	c.transactions++
	c.lastUsed = time.Now()
	c.setState(Handshaken)

	common.RecordTransaction(t.direction, common.OutcomeCommitted, t.records, t.bytes, time.Since(t.started))
	Logger.Debugf("client %s completed %s transaction %s (%d records, %d bytes)", c.id, t.direction, t.id, t.records, t.bytes)
	return nil
}

// Cancel aborts the transaction and tells the peer why. The client is Broken
// afterwards and must be discarded, even if the cancel could not be sent.
// Cancelling a finished transaction is a no-op.
func (t *Transaction) Cancel(reason string) error {
	if t.phase == phaseDone {
		return nil
	}
	t.phase = phaseDone
	t.stop()

	c := t.client
	var err error
	if c.conn != nil {
		_ = c.conn.SetWriteDeadline(time.Now().Add(cancelGrace))
		if err = protocol.WriteResponse(c.writer, protocol.CancelTx, reason); err == nil {
			err = c.writer.Flush()
		}
	}
	c.setState(Broken)

	common.RecordTransaction(t.direction, common.OutcomeCancelled, t.records, t.bytes, time.Since(t.started))
	Logger.Infof("client %s cancelled %s transaction %s: %s", c.id, t.direction, t.id, reason)
	if err != nil {
		return classify(err, "failed to send cancel")
	}
	return nil
}

// --------------------------------------------------------------------------
// Helper Methods
// --------------------------------------------------------------------------

func (t *Transaction) expect(direction common.TransferDirection, phase txPhase) error {
	if t.phase == phaseDone || t.client.State() != InTransaction {
		return common.NewProtocolError("transaction %s is no longer active", t.id)
	}
	if t.direction != direction {
		return common.NewProtocolError("operation not allowed in a %s transaction", t.direction)
	}
	if t.phase != phase {
		return common.NewProtocolError("operation not allowed after confirmation")
	}
	return nil
}

// fail ends the transaction after an error and breaks the client. Timeouts
// get a best effort cancel so the peer can release its side early.
func (t *Transaction) fail(err error, format string, args ...interface{}) error {
	if format != "" {
		err = classify(err, format, args...)
	} else {
		err = classify(err, "transaction %s failed", t.id)
	}
	if t.phase == phaseDone {
		return err
	}
	t.phase = phaseDone
	if t.stop != nil {
		t.stop()
	}

	c := t.client
	if common.IsTimeout(err) && c.conn != nil {
		_ = c.conn.SetWriteDeadline(time.Now().Add(cancelGrace))
		if werr := protocol.WriteResponse(c.writer, protocol.CancelTx, "transaction timed out"); werr == nil {
			_ = c.writer.Flush()
		}
	}
	c.setState(Broken)

	common.RecordTransaction(t.direction, common.OutcomeFailed, t.records, t.bytes, time.Since(t.started))
	Logger.Warningf("client %s %s transaction %s failed: %v", c.id, t.direction, t.id, err)
	return err
}

package protocol

import (
	"github.com/cockroachdb/errors"
	"io"
	"sort"
)

// ErrInvalidFrame is returned for frames that do not follow the wire format
var ErrInvalidFrame = errors.New("protocol: invalid frame")

// --------------------------------------------------------------------------
// Preamble
// --------------------------------------------------------------------------

// WriteMagic writes the connection preamble
func WriteMagic(w io.Writer) error {
	_, err := w.Write([]byte(Magic))
	return err
}

// ReadMagic reads and checks the connection preamble
func ReadMagic(r io.Reader) error {
	buf := make([]byte, len(Magic))
	if _, err := io.ReadFull(r, buf); err != nil {
		return err
	}
	if string(buf) != Magic {
		return errors.Wrapf(ErrInvalidFrame, "bad magic %q", buf)
	}
	return nil
}

// --------------------------------------------------------------------------
// Resource negotiation
// --------------------------------------------------------------------------

// WriteResourceRequest proposes a resource name and version
func WriteResourceRequest(w io.Writer, name string, version uint32) error {
	if err := WriteUTF(w, name); err != nil {
		return err
	}
	return WriteUint32(w, version)
}

// ReadResourceRequest reads a proposed resource name and version
func ReadResourceRequest(r io.Reader) (string, uint32, error) {
	name, err := ReadUTF(r)
	if err != nil {
		return "", 0, err
	}
	version, err := ReadUint32(r)
	if err != nil {
		return "", 0, err
	}
	return name, version, nil
}

// ResourceResponse is the answer to a resource proposal
type ResourceResponse struct {
	Status byte
	// Version preferred by the peer, set for DifferentResourceVersion
	Version uint32
	// Message set for NegotiatedAbort
	Message string
}

// WriteResourceResponse writes a negotiation answer
func WriteResourceResponse(w io.Writer, resp ResourceResponse) error {
	if _, err := w.Write([]byte{resp.Status}); err != nil {
		return err
	}
	switch resp.Status {
	case DifferentResourceVersion:
		return WriteUint32(w, resp.Version)
	case NegotiatedAbort:
		return WriteUTF(w, resp.Message)
	}
	return nil
}

// ReadResourceResponse reads a negotiation answer
func ReadResourceResponse(r io.Reader) (ResourceResponse, error) {
	status, err := ReadByte(r)
	if err != nil {
		return ResourceResponse{}, err
	}
	resp := ResourceResponse{Status: status}
	switch status {
	case ResourceOK:
	case DifferentResourceVersion:
		if resp.Version, err = ReadUint32(r); err != nil {
			return ResourceResponse{}, err
		}
	case NegotiatedAbort:
		if resp.Message, err = ReadUTF(r); err != nil {
			return ResourceResponse{}, err
		}
	default:
		return ResourceResponse{}, errors.Wrapf(ErrInvalidFrame, "unknown negotiation status %d", status)
	}
	return resp, nil
}

// --------------------------------------------------------------------------
// Handshake
// --------------------------------------------------------------------------

// HandshakeRequest identifies the client and the requested port
type HandshakeRequest struct {
	CommsID          string
	TransitURIPrefix string
	Properties       map[string]string
}

// Write encodes the request for the negotiated protocol version. The transit
// URI prefix is only part of the frame from version 3 on.
func (h HandshakeRequest) Write(w io.Writer, version uint32) error {
	if err := WriteUTF(w, h.CommsID); err != nil {
		return err
	}
	if version >= 3 {
		if err := WriteUTF(w, h.TransitURIPrefix); err != nil {
			return err
		}
	}

	keys := make([]string, 0, len(h.Properties))
	for k := range h.Properties {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	if err := WriteUint32(w, uint32(len(keys))); err != nil {
		return err
	}
	for _, k := range keys {
		if err := WriteUTF(w, k); err != nil {
			return err
		}
		if err := WriteUTF(w, h.Properties[k]); err != nil {
			return err
		}
	}
	return nil
}

// ReadHandshakeRequest decodes a request written by HandshakeRequest.Write
func ReadHandshakeRequest(r io.Reader, version uint32) (HandshakeRequest, error) {
	var h HandshakeRequest
	var err error
	if h.CommsID, err = ReadUTF(r); err != nil {
		return h, err
	}
	if version >= 3 {
		if h.TransitURIPrefix, err = ReadUTF(r); err != nil {
			return h, err
		}
	}
	count, err := ReadUint32(r)
	if err != nil {
		return h, err
	}
	if count > MaxAttributes {
		return h, errors.Wrapf(ErrInvalidFrame, "property count %d exceeds limit", count)
	}
	h.Properties = make(map[string]string, count)
	for i := uint32(0); i < count; i++ {
		k, err := ReadUTF(r)
		if err != nil {
			return h, err
		}
		v, err := ReadUTF(r)
		if err != nil {
			return h, err
		}
		h.Properties[k] = v
	}
	return h, nil
}

// WriteRequestType opens a request on a handshaken connection
func WriteRequestType(w io.Writer, t RequestType) error {
	return WriteUTF(w, string(t))
}

// ReadRequestType reads the verb of the next request
func ReadRequestType(r io.Reader) (RequestType, error) {
	s, err := ReadUTF(r)
	return RequestType(s), err
}

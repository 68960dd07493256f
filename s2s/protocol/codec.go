package protocol

import (
	"encoding/binary"
	"fmt"
	"github.com/cockroachdb/errors"
	"io"
	"math"
	"sort"
)

const (
	// MaxAttributes is a safety limit to avoid unbounded allocations on malformed input
	MaxAttributes = 1 << 16
	// MaxLongString bounds a 4 byte length prefixed string (attribute keys and values)
	MaxLongString = 16 << 20 // 16 MiB
)

// --------------------------------------------------------------------------
// Primitive encoding
// --------------------------------------------------------------------------

// WriteUTF writes s with a 2 byte big endian length prefix
func WriteUTF(w io.Writer, s string) error {
	if len(s) > math.MaxUint16 {
		return errors.Newf("string of %d bytes exceeds the short string limit", len(s))
	}
	buf := make([]byte, 2+len(s))
	binary.BigEndian.PutUint16(buf[:2], uint16(len(s)))
	copy(buf[2:], s)
	_, err := w.Write(buf)
	return err
}

// ReadUTF reads a string with a 2 byte big endian length prefix
func ReadUTF(r io.Reader) (string, error) {
	var header [2]byte
	if _, err := io.ReadFull(r, header[:]); err != nil {
		return "", err
	}
	buf := make([]byte, binary.BigEndian.Uint16(header[:]))
	if _, err := io.ReadFull(r, buf); err != nil {
		return "", err
	}
	return string(buf), nil
}

// WriteLongUTF writes s with a 4 byte big endian length prefix
func WriteLongUTF(w io.Writer, s string) error {
	if len(s) > MaxLongString {
		return errors.Newf("string of %d bytes exceeds limit of %d bytes", len(s), MaxLongString)
	}
	buf := make([]byte, 4+len(s))
	binary.BigEndian.PutUint32(buf[:4], uint32(len(s)))
	copy(buf[4:], s)
	_, err := w.Write(buf)
	return err
}

// ReadLongUTF reads a string with a 4 byte big endian length prefix
func ReadLongUTF(r io.Reader) (string, error) {
	length, err := ReadUint32(r)
	if err != nil {
		return "", err
	}
	if length > MaxLongString {
		return "", errors.Wrapf(ErrInvalidFrame, "string length %d exceeds limit of %d bytes", length, MaxLongString)
	}
	buf := make([]byte, length)
	if _, err := io.ReadFull(r, buf); err != nil {
		return "", err
	}
	return string(buf), nil
}

// WriteUint32 writes v as 4 big endian bytes
func WriteUint32(w io.Writer, v uint32) error {
	var buf [4]byte
	binary.BigEndian.PutUint32(buf[:], v)
	_, err := w.Write(buf[:])
	return err
}

// ReadUint32 reads 4 big endian bytes
func ReadUint32(r io.Reader) (uint32, error) {
	var buf [4]byte
	if _, err := io.ReadFull(r, buf[:]); err != nil {
		return 0, err
	}
	return binary.BigEndian.Uint32(buf[:]), nil
}

// WriteUint64 writes v as 8 big endian bytes
func WriteUint64(w io.Writer, v uint64) error {
	var buf [8]byte
	binary.BigEndian.PutUint64(buf[:], v)
	_, err := w.Write(buf[:])
	return err
}

// ReadUint64 reads 8 big endian bytes
func ReadUint64(r io.Reader) (uint64, error) {
	var buf [8]byte
	if _, err := io.ReadFull(r, buf[:]); err != nil {
		return 0, err
	}
	return binary.BigEndian.Uint64(buf[:]), nil
}

// ReadByte reads a single byte
func ReadByte(r io.Reader) (byte, error) {
	var buf [1]byte
	if _, err := io.ReadFull(r, buf[:]); err != nil {
		return 0, err
	}
	return buf[0], nil
}

// --------------------------------------------------------------------------
// Response frames
// --------------------------------------------------------------------------

// Response is a decoded response frame
type Response struct {
	Code    ResponseCode
	Message string
}

func (r Response) String() string {
	if r.Message == "" {
		return r.Code.String()
	}
	return fmt.Sprintf("%s (%s)", r.Code, r.Message)
}

// WriteResponse writes a response frame with the format:
// - 2 bytes: 'R', 'C'
// - 1 byte: response code
// - optional: message (2 byte length prefixed), only for codes that carry one
func WriteResponse(w io.Writer, code ResponseCode, message string) error {
	if _, err := w.Write([]byte{'R', 'C', byte(code)}); err != nil {
		return err
	}
	if code.HasMessage() {
		return WriteUTF(w, message)
	}
	return nil
}

// ReadResponse reads a response frame
func ReadResponse(r io.Reader) (Response, error) {
	var header [3]byte
	if _, err := io.ReadFull(r, header[:]); err != nil {
		return Response{}, err
	}
	if header[0] != 'R' || header[1] != 'C' {
		return Response{}, errors.Wrapf(ErrInvalidFrame, "got %q", header[:2])
	}
	resp := Response{Code: ResponseCode(header[2])}
	if resp.Code.HasMessage() {
		msg, err := ReadUTF(r)
		if err != nil {
			return Response{}, err
		}
		resp.Message = msg
	}
	return resp, nil
}

// --------------------------------------------------------------------------
// Record frames
// --------------------------------------------------------------------------

// WriteAttributes writes an attribute map with the format:
// - 4 bytes: attribute count
// - for each attribute (sorted by key): key and value, 4 byte length prefixed
func WriteAttributes(w io.Writer, attrs map[string]string) error {
	keys := make([]string, 0, len(attrs))
	for k := range attrs {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	if err := WriteUint32(w, uint32(len(keys))); err != nil {
		return err
	}
	for _, k := range keys {
		if err := WriteLongUTF(w, k); err != nil {
			return err
		}
		if err := WriteLongUTF(w, attrs[k]); err != nil {
			return err
		}
	}
	return nil
}

// ReadAttributes reads an attribute map written by WriteAttributes
func ReadAttributes(r io.Reader) (map[string]string, error) {
	count, err := ReadUint32(r)
	if err != nil {
		return nil, err
	}
	if count > MaxAttributes {
		return nil, errors.Wrapf(ErrInvalidFrame, "attribute count %d exceeds limit of %d", count, MaxAttributes)
	}
	attrs := make(map[string]string, count)
	for i := uint32(0); i < count; i++ {
		k, err := ReadLongUTF(r)
		if err != nil {
			return nil, err
		}
		v, err := ReadLongUTF(r)
		if err != nil {
			return nil, err
		}
		attrs[k] = v
	}
	return attrs, nil
}

// WriteRecord writes one flow file record: attributes, 8 byte payload length
// and exactly size bytes copied from content
func WriteRecord(w io.Writer, attrs map[string]string, size uint64, content io.Reader) error {
	if err := WriteAttributes(w, attrs); err != nil {
		return err
	}
	if err := WriteUint64(w, size); err != nil {
		return err
	}
	if size == 0 {
		return nil
	}
	if content == nil {
		return errors.Newf("record announces %d bytes but has no content", size)
	}
	n, err := io.CopyN(w, content, int64(size))
	if err != nil {
		if err == io.EOF {
			return errors.Newf("content ended after %d of %d bytes", n, size)
		}
		return err
	}
	return nil
}

// ReadRecordHeader reads the attributes and payload length of a record.
// The caller must consume exactly size payload bytes before the next frame.
func ReadRecordHeader(r io.Reader) (map[string]string, uint64, error) {
	attrs, err := ReadAttributes(r)
	if err != nil {
		return nil, 0, err
	}
	size, err := ReadUint64(r)
	if err != nil {
		return nil, 0, err
	}
	if size > math.MaxInt64 {
		return nil, 0, errors.Wrapf(ErrInvalidFrame, "record size %d exceeds limit of %d bytes", size, int64(math.MaxInt64))
	}
	return attrs, size, nil
}

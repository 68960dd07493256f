package protocol

import (
	"hash"
	"hash/crc32"
	"io"
	"strconv"
)

// ChecksumWriter passes writes through to the underlying writer and keeps a
// running CRC32 over every byte written
type ChecksumWriter struct {
	w     io.Writer
	crc   hash.Hash32
	count uint64
}

// NewChecksumWriter wraps w
func NewChecksumWriter(w io.Writer) *ChecksumWriter {
	return &ChecksumWriter{w: w, crc: crc32.NewIEEE()}
}

func (c *ChecksumWriter) Write(p []byte) (int, error) {
	n, err := c.w.Write(p)
	c.crc.Write(p[:n])
	c.count += uint64(n)
	return n, err
}

// Sum returns the checksum of all bytes written so far
func (c *ChecksumWriter) Sum() uint32 { return c.crc.Sum32() }

// Count returns the number of bytes written so far
func (c *ChecksumWriter) Count() uint64 { return c.count }

// ChecksumReader passes reads through and keeps a running CRC32 over every byte read
type ChecksumReader struct {
	r     io.Reader
	crc   hash.Hash32
	count uint64
}

// NewChecksumReader wraps r
func NewChecksumReader(r io.Reader) *ChecksumReader {
	return &ChecksumReader{r: r, crc: crc32.NewIEEE()}
}

func (c *ChecksumReader) Read(p []byte) (int, error) {
	n, err := c.r.Read(p)
	c.crc.Write(p[:n])
	c.count += uint64(n)
	return n, err
}

// Sum returns the checksum of all bytes read so far
func (c *ChecksumReader) Sum() uint32 { return c.crc.Sum32() }

// Count returns the number of bytes read so far
func (c *ChecksumReader) Count() uint64 { return c.count }

// FormatChecksum renders a checksum the way it is exchanged in CONFIRM_TRANSACTION frames
func FormatChecksum(sum uint32) string {
	return strconv.FormatUint(uint64(sum), 10)
}

package olm

import (
	"encoding/binary"
	"fmt"
	"io"
)

// byteReader wraps a seekable file and provides bounded little-endian reads
// for the fixed-width integers, byte spans, and absolute/relative seeks the
// central-directory parser, message materializer, and attachment extractor
// all need. Every multi-byte integer in a ZIP archive is little-endian.
type byteReader struct {
	r io.ReadSeeker
}

func newByteReader(r io.ReadSeeker) *byteReader {
	return &byteReader{r: r}
}

// size returns the total length of the underlying stream.
func (b *byteReader) size() (int64, error) {
	cur, err := b.r.Seek(0, io.SeekCurrent)
	if err != nil {
		return 0, fmt.Errorf("olm: seek current: %w", err)
	}
	end, err := b.r.Seek(0, io.SeekEnd)
	if err != nil {
		return 0, fmt.Errorf("olm: seek end: %w", err)
	}
	if _, err := b.r.Seek(cur, io.SeekStart); err != nil {
		return 0, fmt.Errorf("olm: seek restore: %w", err)
	}
	return end, nil
}

func (b *byteReader) seekAbs(off int64) error {
	_, err := b.r.Seek(off, io.SeekStart)
	if err != nil {
		return fmt.Errorf("olm: seek: %w", err)
	}
	return nil
}

func (b *byteReader) seekFromEnd(off int64) error {
	_, err := b.r.Seek(off, io.SeekEnd)
	if err != nil {
		return fmt.Errorf("olm: seek: %w", err)
	}
	return nil
}

func (b *byteReader) skip(n int64) error {
	if n == 0 {
		return nil
	}
	_, err := b.r.Seek(n, io.SeekCurrent)
	if err != nil {
		return fmt.Errorf("olm: seek: %w", err)
	}
	return nil
}

// readN reads exactly n bytes at the current position. A short read is
// reported as an error rather than returned partially.
func (b *byteReader) readN(n int) ([]byte, error) {
	buf := make([]byte, n)
	if _, err := io.ReadFull(b.r, buf); err != nil {
		return nil, fmt.Errorf("olm: read: %w", err)
	}
	return buf, nil
}

func (b *byteReader) uint16() (uint16, error) {
	buf, err := b.readN(2)
	if err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint16(buf), nil
}

func (b *byteReader) uint32() (uint32, error) {
	buf, err := b.readN(4)
	if err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint32(buf), nil
}

func (b *byteReader) uint64() (uint64, error) {
	buf, err := b.readN(8)
	if err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint64(buf), nil
}

// cursor is a byte-slice reader that consumes fixed-width little-endian
// fields from the front of an already-loaded buffer, the way central
// directory records and extra-field blocks are parsed once read into
// memory.
type cursor []byte

func (c *cursor) uint16() uint16 {
	v := binary.LittleEndian.Uint16(*c)
	*c = (*c)[2:]
	return v
}

func (c *cursor) uint32() uint32 {
	v := binary.LittleEndian.Uint32(*c)
	*c = (*c)[4:]
	return v
}

func (c *cursor) uint64() uint64 {
	v := binary.LittleEndian.Uint64(*c)
	*c = (*c)[8:]
	return v
}

func (c *cursor) sub(n int) cursor {
	s := (*c)[:n]
	*c = (*c)[n:]
	return s
}

package olm

import (
	"fmt"

	"github.com/klauspost/compress/zip"
)

// seekToPayload re-reads the local file header at a rawEntry's recorded
// offset and positions r at the start of the stored payload: the central
// directory doesn't carry filename/extra lengths that are guaranteed to
// match the local header, so both the message materializer and the
// attachment extractor re-read it rather than trusting the
// central-directory copies.
func seekToPayload(r *byteReader, e rawEntry) error {
	if err := r.seekAbs(int64(e.localHeaderOffset)); err != nil {
		return fmt.Errorf("olm: %w: %v", ErrFileIOError, err)
	}
	sig, err := r.uint32()
	if err != nil {
		return fmt.Errorf("olm: %w: %v", ErrFileIOError, err)
	}
	if sig != sigLocalFileHeader {
		return fmt.Errorf("olm: %w: %v (local file header signature)", ErrFileCorrupted, zip.ErrFormat)
	}
	if err := r.skip(22); err != nil {
		return fmt.Errorf("olm: %w: %v", ErrFileIOError, err)
	}
	nameLen, err := r.uint16()
	if err != nil {
		return fmt.Errorf("olm: %w: %v", ErrFileIOError, err)
	}
	extraLen, err := r.uint16()
	if err != nil {
		return fmt.Errorf("olm: %w: %v", ErrFileIOError, err)
	}
	if err := r.skip(int64(nameLen) + int64(extraLen)); err != nil {
		return fmt.Errorf("olm: %w: %v", ErrFileIOError, err)
	}
	return nil
}

// requireStored requires an entry's compression method to be zip.Store (0),
// the only method OLM archives use for message and attachment payloads:
// they are never compressed or encrypted. corrupted is the sentinel to wrap
// when the method is anything else, so callers can report the appropriate
// error.
func requireStored(method uint16, corrupted error) error {
	if method != zip.Store {
		return fmt.Errorf("olm: %w: compression method %d is not stored (method %d expected)", corrupted, method, zip.Store)
	}
	return nil
}

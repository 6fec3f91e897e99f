package olm

import (
	"encoding/binary"
	"fmt"
	"hash/maphash"
	"log/slog"
	"os"

	"github.com/dgryski/go-tinylfu"
)

// Handle is an opened OLM archive. It owns the underlying file and the
// catalog produced at Open time; it is read-only after Open returns and is
// not safe for concurrent use — callers needing concurrent access should
// Open independent handles on the same path.
type Handle struct {
	path   string
	file   *os.File
	reader *byteReader

	eocd  eocdRecord
	index index

	opts   openOptions
	logger *slog.Logger

	cache *tinylfu.T[int, *Message]
}

var messageCacheSeed = maphash.MakeSeed()

// hashMessageIndex hashes a message-catalog index for the tinylfu cache
// using hash/maphash over its little-endian byte representation.
func hashMessageIndex(i int) uint64 {
	var h maphash.Hash
	h.SetSeed(messageCacheSeed)
	var buf [8]byte
	binary.LittleEndian.PutUint64(buf[:], uint64(i))
	h.Write(buf[:])
	return h.Sum64()
}

// Open parses path's central directory, classifies every entry, and
// validates the magic-entry check before returning a *Handle. Any failure
// releases the opened file and returns a nil handle.
func Open(path string, opts ...Option) (*Handle, error) {
	o := defaultOpenOptions()
	for _, opt := range opts {
		opt(&o)
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("olm: %w: %v", ErrFileIOError, err)
	}

	r := newByteReader(f)
	entries, eocd, err := openArchive(r)
	if err != nil {
		f.Close()
		return nil, err
	}

	idx, err := buildIndex(entries, o.logger)
	if err != nil {
		f.Close()
		return nil, err
	}

	h := &Handle{
		path:   path,
		file:   f,
		reader: r,
		eocd:   eocd,
		index:  idx,
		opts:   o,
		logger: o.logger,
	}
	if o.cacheSize > 0 {
		h.cache = tinylfu.New[int, *Message](o.cacheSize, o.cacheSize*10, hashMessageIndex)
	}
	h.logger.Debug("opened OLM archive", "path", path,
		"messages", len(idx.messages), "attachments", len(idx.attachments), "zip64", eocd.zip64)
	return h, nil
}

// Close releases the handle's underlying file. It is safe to call once;
// calling any other method afterward is a caller error.
func (h *Handle) Close() error {
	if err := h.file.Close(); err != nil {
		return fmt.Errorf("olm: %w: %v", ErrFileIOError, err)
	}
	return nil
}

// MessageCount reports the number of messages cataloged at Open time.
func (h *Handle) MessageCount() int {
	return len(h.index.messages)
}

// ContactCount reports the number of contact entries cataloged at Open
// time. No parsing of their content is supported — see GetContactAt.
func (h *Handle) ContactCount() int {
	return len(h.index.contacts)
}

// GetContactAt always fails with ErrContactsUnsupported: contact entries
// are routed and counted (see ContactCount), but no contact XML parser
// exists yet.
func (h *Handle) GetContactAt(i int) (struct{}, error) {
	if i < 0 || i >= len(h.index.contacts) {
		return struct{}{}, fmt.Errorf("olm: %w: contact index %d out of range", ErrInvalidParameter, i)
	}
	return struct{}{}, ErrContactsUnsupported
}

// IgnoresErrors reports whether the handle was opened with OptIgnoreErrors.
func (h *Handle) IgnoresErrors() bool {
	return h.opts.ignoreErrors
}

// GetMessageAt materializes the message at the given zero-based index into
// the messages catalog. An out-of-range index fails with
// ErrInvalidParameter.
func (h *Handle) GetMessageAt(i int) (*Message, error) {
	if i < 0 || i >= len(h.index.messages) {
		return nil, fmt.Errorf("olm: %w: message index %d out of range", ErrInvalidParameter, i)
	}

	if h.cache != nil {
		if msg, ok := h.cache.Get(i); ok {
			return msg, nil
		}
	}

	msg, err := materializeMessage(h.reader, h.index.messages[i], h.opts.ignoreErrors)
	if err != nil {
		return nil, err
	}

	if h.cache != nil {
		h.cache.Add(i, msg)
	}
	return msg, nil
}

// ExtractAndSaveAttachment resolves ref back to its archive entry and
// streams its bytes to destPath, validating the written output's CRC-32
// against the entry's stored CRC-32. On a CRC mismatch, the partially
// written destination file is removed before the error is returned.
func (h *Handle) ExtractAndSaveAttachment(ref AttachmentRef, destPath string) error {
	return extractAttachment(h.reader, h.index.attachments, ref, destPath, h.logger)
}

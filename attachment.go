package olm

import (
	"fmt"
	"hash/crc32"
	"io"
	"log/slog"
	"os"
)

// maxBlockCount bounds the search for a block count that evenly divides an
// entry's size; defaultBlockSize is the fixed block size, with a short final
// block, that chooseBlockSize falls back to if no count within the bound
// divides it.
const (
	defaultBlockSize = 64 * 1024
	maxBlockCount    = 4096
)

// findAttachmentEntry linearly scans the attachments catalog for the entry
// whose raw path equals key.
func findAttachmentEntry(attachments []rawEntry, key string) (rawEntry, bool) {
	for _, e := range attachments {
		if e.rawPath == key {
			return e, true
		}
	}
	return rawEntry{}, false
}

// extractAttachment resolves ref back to its archive entry, streams the
// stored bytes to dest in chunked fashion, and validates the written
// output against the stored CRC-32.
func extractAttachment(r *byteReader, attachments []rawEntry, ref AttachmentRef, dest string, logger *slog.Logger) error {
	entry, ok := findAttachmentEntry(attachments, ref.privateKey)
	if !ok {
		return fmt.Errorf("olm: %w: %q", ErrAttachmentNotFound, ref.privateKey)
	}

	if err := seekToPayload(r, entry); err != nil {
		return err
	}
	if err := requireStored(entry.compressionMethod, ErrAttachmentCorrupted); err != nil {
		return err
	}

	if ref.FileSize != 0 && uint64(ref.FileSize) != entry.uncompressedSize {
		logger.Debug("attachment declared size disagrees with archive entry",
			"declared", ref.FileSize, "actual", entry.uncompressedSize, "path", ref.privateKey)
	}

	blockSize, blockCount := chooseBlockSize(entry.uncompressedSize)

	out, err := os.OpenFile(dest, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0640)
	if err != nil {
		return fmt.Errorf("olm: %w: %v", ErrFileIOError, err)
	}

	if err := streamAttachment(r, out, blockSize, blockCount, entry.uncompressedSize); err != nil {
		out.Close()
		os.Remove(dest)
		return err
	}

	if err := out.Close(); err != nil {
		os.Remove(dest)
		return fmt.Errorf("olm: %w: %v", ErrFileIOError, err)
	}

	gotCRC, err := fileCRC32(dest)
	if err != nil {
		os.Remove(dest)
		return fmt.Errorf("olm: %w: %v", ErrFileIOError, err)
	}
	if gotCRC != entry.crc32 {
		// Unlink the partially written file before returning the error.
		os.Remove(dest)
		return fmt.Errorf("olm: %w: CRC-32 mismatch writing %q", ErrAttachmentCorrupted, dest)
	}
	return nil
}

// chooseBlockSize tries block counts upward from 1, bounded by
// maxBlockCount, and returns the first one for which
// blockSize*blockCount == entrySize exactly. A count of 1 always divides a
// non-zero size, so the result is the whole entry as a single block; the
// defaultBlockSize fallback is not reached for any non-zero entrySize.
func chooseBlockSize(entrySize uint64) (blockSize, blockCount uint64) {
	if entrySize == 0 {
		return 0, 0
	}
	for count := uint64(1); count <= maxBlockCount; count++ {
		if entrySize%count == 0 {
			size := entrySize / count
			if size > 0 {
				return size, count
			}
		}
	}
	return defaultBlockSize, 0
}

// streamAttachment copies entrySize bytes from r to out, in chunks of
// blockSize (blockCount of them, with a trailing short block if
// chooseBlockSize fell back to the default size).
func streamAttachment(r *byteReader, out *os.File, blockSize, blockCount, entrySize uint64) error {
	var written uint64
	if blockCount > 0 {
		for i := uint64(0); i < blockCount; i++ {
			if err := copyBlock(r, out, blockSize); err != nil {
				return err
			}
			written += blockSize
		}
		return nil
	}
	for written < entrySize {
		n := blockSize
		if remain := entrySize - written; remain < n {
			n = remain
		}
		if err := copyBlock(r, out, n); err != nil {
			return err
		}
		written += n
	}
	return nil
}

func copyBlock(r *byteReader, out *os.File, n uint64) error {
	if n == 0 {
		return nil
	}
	buf, err := r.readN(int(n))
	if err != nil {
		return fmt.Errorf("olm: %w: %v", ErrFileIOError, err)
	}
	written, err := out.Write(buf)
	if err != nil {
		return fmt.Errorf("olm: %w: %v", ErrFileIOError, err)
	}
	if written != len(buf) {
		return fmt.Errorf("olm: %w: short write", ErrFileIOError)
	}
	return nil
}

// fileCRC32 recomputes the CRC-32 of the bytes written to dest by streaming
// it back through the checksum, without holding the whole attachment in
// memory a second time.
func fileCRC32(dest string) (uint32, error) {
	f, err := os.Open(dest)
	if err != nil {
		return 0, err
	}
	defer f.Close()

	h := crc32.NewIEEE()
	if _, err := io.Copy(h, f); err != nil {
		return 0, err
	}
	return h.Sum32(), nil
}

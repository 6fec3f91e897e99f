package olm

import (
	"encoding/binary"
	"fmt"
)

// ZIP/ZIP64 record signatures, little-endian on disk.
const (
	sigLocalFileHeader   = 0x04034b50
	sigCentralFileHeader = 0x02014b50
	sigEndOfCentralDir   = 0x06054b50
	sigZip64EOCDLocator  = 0x07064b50
	sigZip64EOCD         = 0x06064b50
)

const (
	eocdLen             = 22 // fixed portion, before the variable-length comment
	zip64LocatorLen     = 20
	centralHeaderLen    = 46 // fixed portion, before name/extra/comment
	localHeaderFixedLen = 26 // fixed fields after the 4-byte signature, before name/extra
	zip64ExtraID        = 0x0001
	sentinel32          = 0xFFFFFFFF

	// eocdSearchWindow bounds the backward scan for the end-of-central-directory
	// record: the fixed 22-byte EOCD record plus the largest possible comment
	// (65,535 bytes), with one byte to spare. Beyond this many bytes before
	// EOF, the file is not a ZIP at all.
	eocdSearchWindow = 65558
)

// rawEntry is a fully-resolved central-directory entry: the fixed header
// fields merged with any ZIP64 extra-field overrides. The 32-bit sentinel
// values that trigger a ZIP64 override never escape the parser.
type rawEntry struct {
	rawPath   string
	directory string
	filename  string
	isDir     bool

	uncompressedSize  uint64
	compressedSize    uint64
	externalAttrs     uint32
	compressionMethod uint16
	crc32             uint32
	flags             uint16
	localHeaderOffset uint64
}

type eocdRecord struct {
	totalEntries     uint64
	centralDirSize   uint64
	centralDirOffset uint64
	thisSegment      uint32
	totalSegments    uint32
	zip64            bool
	comment          string
}

// openArchive locates the central directory of the archive backing r and
// walks it, producing one rawEntry per record. It fails with ErrNotOLMFile
// if no end-of-central-directory record can be found, and ErrFileCorrupted
// if a structure that is present is malformed.
func openArchive(r *byteReader) ([]rawEntry, eocdRecord, error) {
	fileSize, err := r.size()
	if err != nil {
		return nil, eocdRecord{}, fmt.Errorf("olm: %w: %v", ErrFileIOError, err)
	}

	eocdOffset, eocd32, err := findEOCD(r, fileSize)
	if err != nil {
		return nil, eocdRecord{}, err
	}

	rec := eocdRecord{
		totalEntries:     uint64(eocd32.totalEntries),
		centralDirSize:   uint64(eocd32.centralDirSize),
		centralDirOffset: uint64(eocd32.centralDirOffset),
		thisSegment:      uint32(eocd32.thisSegment),
		totalSegments:    uint32(eocd32.thisSegment) + 1,
		comment:          eocd32.comment,
	}

	if locOffset := eocdOffset - zip64LocatorLen; locOffset >= 0 {
		if loc, ok, err := readZip64Locator(r, locOffset); err != nil {
			return nil, eocdRecord{}, err
		} else if ok {
			rec.zip64 = true
			eocd64, err := readZip64EOCD(r, int64(loc.eocdOffset))
			if err != nil {
				return nil, eocdRecord{}, err
			}
			rec.totalEntries = eocd64.totalEntries
			rec.centralDirSize = eocd64.centralDirSize
			rec.centralDirOffset = eocd64.centralDirOffset
			rec.totalSegments = loc.totalSegments
		}
	}

	entries, err := readCentralDirectory(r, rec)
	if err != nil {
		return nil, eocdRecord{}, err
	}
	return entries, rec, nil
}

type eocd32 struct {
	thisSegment      uint16
	totalEntries     uint16
	centralDirSize   uint32
	centralDirOffset uint32
	comment          string
}

// findEOCD performs a bounded backward search: seek to file-end minus 22,
// and if the signature doesn't match, move one byte earlier, giving up once
// eocdSearchWindow bytes before EOF is reached. The search window is read
// into memory once and scanned there, rather than re-seeking the file a
// byte at a time.
func findEOCD(r *byteReader, fileSize int64) (int64, eocd32, error) {
	window := int64(eocdSearchWindow)
	if window > fileSize {
		window = fileSize
	}
	if window < eocdLen {
		return 0, eocd32{}, fmt.Errorf("olm: %w: file too small for an end-of-central-directory record", ErrNotOLMFile)
	}
	if err := r.seekFromEnd(-window); err != nil {
		return 0, eocd32{}, fmt.Errorf("olm: %w: %v", ErrFileIOError, err)
	}
	buf, err := r.readN(int(window))
	if err != nil {
		return 0, eocd32{}, fmt.Errorf("olm: %w: %v", ErrFileIOError, err)
	}

	for i := int(window) - eocdLen; i >= 0; i-- {
		if binary.LittleEndian.Uint32(buf[i:i+4]) != sigEndOfCentralDir {
			continue
		}
		rec := eocd32{}
		fields := cursor(buf[i+4 : i+eocdLen])
		rec.thisSegment = fields.uint16()
		fields.uint16() // central_dir_start_segment
		fields.uint16() // total_entries_on_segment
		rec.totalEntries = fields.uint16()
		rec.centralDirSize = fields.uint32()
		rec.centralDirOffset = fields.uint32()
		commentLen := fields.uint16()

		absOffset := fileSize - window + int64(i)
		if commentLen > 0 {
			if err := r.seekAbs(absOffset + eocdLen); err != nil {
				return 0, eocd32{}, fmt.Errorf("olm: %w: %v", ErrFileIOError, err)
			}
			commentBytes, err := r.readN(int(commentLen))
			if err != nil {
				return 0, eocd32{}, fmt.Errorf("olm: %w: %v", ErrFileIOError, err)
			}
			rec.comment = string(commentBytes)
		}
		return absOffset, rec, nil
	}
	return 0, eocd32{}, fmt.Errorf("olm: %w: no end-of-central-directory record found", ErrNotOLMFile)
}

type zip64Locator struct {
	eocdOffset    uint64
	totalSegments uint32
}

// readZip64Locator attempts to read a 20-byte ZIP64 locator at the given
// absolute offset. It reports ok=false (not an error) if the signature
// doesn't match, since a non-ZIP64 archive simply has ordinary bytes there.
func readZip64Locator(r *byteReader, offset int64) (zip64Locator, bool, error) {
	if err := r.seekAbs(offset); err != nil {
		return zip64Locator{}, false, fmt.Errorf("olm: %w: %v", ErrFileIOError, err)
	}
	buf, err := r.readN(zip64LocatorLen)
	if err != nil {
		return zip64Locator{}, false, fmt.Errorf("olm: %w: %v", ErrFileIOError, err)
	}
	c := cursor(buf)
	if c.uint32() != sigZip64EOCDLocator {
		return zip64Locator{}, false, nil
	}
	c.uint32() // zip64 EOCD start segment
	eocdOffset := c.uint64()
	totalSegments := c.uint32()
	return zip64Locator{eocdOffset: eocdOffset, totalSegments: totalSegments}, true, nil
}

type eocd64 struct {
	totalEntries     uint64
	centralDirSize   uint64
	centralDirOffset uint64
}

// readZip64EOCD reads the fixed portion of a ZIP64 end-of-central-directory
// record at the given absolute offset. The optional PKZIP 6.2+
// compression/encryption fields that may follow are never needed here: OLM
// archives never compress or encrypt their central directory.
func readZip64EOCD(r *byteReader, offset int64) (eocd64, error) {
	if err := r.seekAbs(offset); err != nil {
		return eocd64{}, fmt.Errorf("olm: %w: %v", ErrFileIOError, err)
	}
	buf, err := r.readN(56)
	if err != nil {
		return eocd64{}, fmt.Errorf("olm: %w: %v", ErrFileIOError, err)
	}
	c := cursor(buf)
	if c.uint32() != sigZip64EOCD {
		return eocd64{}, fmt.Errorf("olm: %w: bad ZIP64 end-of-central-directory signature", ErrFileCorrupted)
	}
	c.uint64() // size of the remainder of this record
	c.uint16() // version made by
	c.uint16() // version needed to extract
	c.uint32() // number of this segment
	c.uint32() // segment with the start of the central directory
	c.uint64() // total entries on this segment
	total := c.uint64()
	size := c.uint64()
	offsetField := c.uint64()
	return eocd64{totalEntries: total, centralDirSize: size, centralDirOffset: offsetField}, nil
}

// readCentralDirectory seeks to rec's central-directory offset and reads
// exactly rec.totalEntries fixed+variable records, applying ZIP64
// extra-field overrides as it goes.
func readCentralDirectory(r *byteReader, rec eocdRecord) ([]rawEntry, error) {
	if err := r.seekAbs(int64(rec.centralDirOffset)); err != nil {
		return nil, fmt.Errorf("olm: %w: %v", ErrFileIOError, err)
	}

	entries := make([]rawEntry, 0, rec.totalEntries)
	for i := uint64(0); i < rec.totalEntries; i++ {
		entry, err := readOneCentralDirEntry(r)
		if err != nil {
			return nil, err
		}
		entries = append(entries, entry)
	}
	return entries, nil
}

func readOneCentralDirEntry(r *byteReader) (rawEntry, error) {
	buf, err := r.readN(centralHeaderLen)
	if err != nil {
		return rawEntry{}, fmt.Errorf("olm: %w: %v", ErrFileIOError, err)
	}
	c := cursor(buf)
	c.uint32() // signature, not strictly revalidated
	c.uint16() // version made by
	c.uint16() // version needed to extract
	flags := c.uint16()
	method := c.uint16()
	c.uint32() // modified date/time
	crc := c.uint32()
	compressedSize := uint64(c.uint32())
	uncompressedSize := uint64(c.uint32())
	filenameLen := c.uint16()
	extraLen := c.uint16()
	commentLen := c.uint16()
	c.uint16() // start segment number
	c.uint16() // internal file attributes
	externalAttrs := c.uint32()
	localHeaderOffset := uint64(c.uint32())

	if filenameLen == 0 {
		return rawEntry{}, fmt.Errorf("olm: %w: zero-length central directory filename", ErrFileCorrupted)
	}

	nameBuf, err := r.readN(int(filenameLen))
	if err != nil {
		return rawEntry{}, fmt.Errorf("olm: %w: %v", ErrFileIOError, err)
	}
	rawPath := string(nameBuf)

	if extraLen > 0 {
		extraBuf, err := r.readN(int(extraLen))
		if err != nil {
			return rawEntry{}, fmt.Errorf("olm: %w: %v", ErrFileIOError, err)
		}
		applyZip64Overrides(extraBuf, &uncompressedSize, &compressedSize, &localHeaderOffset)
	}

	if commentLen > 0 {
		if err := r.skip(int64(commentLen)); err != nil {
			return rawEntry{}, fmt.Errorf("olm: %w: %v", ErrFileIOError, err)
		}
	}

	directory, filename, isDir := splitEntryPath(rawPath, externalAttrs)

	return rawEntry{
		rawPath:           rawPath,
		directory:         directory,
		filename:          filename,
		isDir:             isDir,
		uncompressedSize:  uncompressedSize,
		compressedSize:    compressedSize,
		externalAttrs:     externalAttrs,
		compressionMethod: method,
		crc32:             crc,
		flags:             flags,
		localHeaderOffset: localHeaderOffset,
	}, nil
}

// fatAttribDir is the FAT/DOS directory attribute bit, tested against the
// low byte of the external attributes.
const fatAttribDir = 0x0010

// splitEntryPath applies the directory/filename split invariant: a trailing
// slash or the FAT directory bit marks a directory, in which case the slash
// is stripped and filename is empty; otherwise filename is the substring
// after the last '/' (or the whole path) and directory is everything
// before it.
func splitEntryPath(rawPath string, externalAttrs uint32) (directory, filename string, isDir bool) {
	isDir = externalAttrs&fatAttribDir != 0
	p := rawPath
	if len(p) > 0 && p[len(p)-1] == '/' {
		isDir = true
		p = p[:len(p)-1]
	}
	if isDir {
		return p, "", true
	}
	for i := len(p) - 1; i >= 0; i-- {
		if p[i] == '/' {
			return p[:i], p[i+1:], false
		}
	}
	return "", p, false
}

// applyZip64Overrides applies the tag-0x0001 ZIP64 extra-field override
// semantics: each 32-bit sentinel field present in the central header is
// replaced, in order (uncompressed size, compressed size, local-header
// offset), by the next 8 bytes of the extra data. Any other extra-field
// tag is skipped over and ignored.
func applyZip64Overrides(extra []byte, uncompressedSize, compressedSize, localHeaderOffset *uint64) {
	c := cursor(extra)
	for len(c) >= 4 {
		tag := c.uint16()
		size := c.uint16()
		if int(size) > len(c) {
			return
		}
		data := c.sub(int(size))
		if tag != zip64ExtraID {
			continue
		}
		d := cursor(data)
		if *uncompressedSize == sentinel32 && len(d) >= 8 {
			*uncompressedSize = d.uint64()
		}
		if *compressedSize == sentinel32 && len(d) >= 8 {
			*compressedSize = d.uint64()
		}
		if *localHeaderOffset == sentinel32 && len(d) >= 8 {
			*localHeaderOffset = d.uint64()
		}
	}
}

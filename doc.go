// Package olm reads Outlook-for-Mac archive (OLM) files.
//
// An OLM file is, at the byte level, a ZIP or ZIP64 archive whose internal
// member layout encodes a mailbox: a handful of magic entries that mark the
// archive as an OLM, a collection of per-message XML documents, and a
// parallel collection of raw attachment blobs referenced from those
// documents. This package parses the archive's central directory itself
// (it does not depend on archive/zip) and exposes a read-only API for
// listing messages, materializing a given message's fields, and extracting
// an attachment's bytes to disk.
//
// The library is read-only: it never writes, appends to, or otherwise
// modifies the archives it opens. It does not support compressed or
// encrypted message or attachment payloads, since OLM stores both
// uncompressed; any entry that claims otherwise is treated as corruption.
// A *Handle is not safe for concurrent use; callers that need concurrency
// should open independent handles on the same path.
package olm

package olm

import (
	"fmt"
	"log/slog"
)

// index is the in-memory catalog produced by opening an OLM archive: three
// ordered sequences of retained entry descriptors, plus the magic bitmask
// that must equal magicRequired for the archive to be accepted.
type index struct {
	messages    []rawEntry
	attachments []rawEntry
	contacts    []rawEntry
	magic       int
}

// buildIndex classifies every parsed entry and assembles the catalog. It
// fails with ErrNotOLMFile if the joint magic-entry check does not pass.
func buildIndex(entries []rawEntry, logger *slog.Logger) (index, error) {
	var idx index
	for _, e := range entries {
		kind, bit := classify(e)
		idx.magic |= bit
		switch kind {
		case catalogMessage:
			idx.messages = append(idx.messages, e)
		case catalogAttachment:
			idx.attachments = append(idx.attachments, e)
		case catalogContact:
			idx.contacts = append(idx.contacts, e)
		default:
			logger.Debug("discarding central directory entry", "path", e.rawPath)
		}
	}
	if idx.magic != magicRequired {
		return index{}, fmt.Errorf("olm: %w: magic bitmask %#b, want %#b", ErrNotOLMFile, idx.magic, magicRequired)
	}
	return idx, nil
}

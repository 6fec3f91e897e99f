package olm

import "log/slog"

// Option configures a Handle at Open time.
type Option func(*openOptions)

type openOptions struct {
	ignoreErrors bool
	logger       *slog.Logger
	cacheSize    int
}

func defaultOpenOptions() openOptions {
	return openOptions{logger: slog.Default()}
}

// OptIgnoreErrors enables lenient XML parsing for message bodies: a
// malformed tag is skipped and decoding resumes at the next token instead
// of failing the whole message with ErrMessageCorrupted.
func OptIgnoreErrors() Option {
	return func(o *openOptions) { o.ignoreErrors = true }
}

// WithLogger overrides the *slog.Logger used for diagnostic-only messages
// (a discarded entry, a summary of the opened archive, an attachment whose
// declared size disagrees with its archive entry). Logging
// never affects control flow. The default is slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(o *openOptions) { o.logger = l }
}

// WithMessageCache enables an in-memory cache from message index to a
// previously materialized *Message, holding up to size entries. It is off
// by default: an OLM file is typically read through once per message, so
// the cache only pays for itself when a caller re-fetches the same index
// (a UI re-render, a retry after a transient error further down the
// pipeline). size <= 0 disables the cache.
func WithMessageCache(size int) Option {
	return func(o *openOptions) { o.cacheSize = size }
}

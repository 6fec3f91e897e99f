package olm

import (
	"io"
	"log/slog"
)

// discardLogger returns a *slog.Logger that drops everything, for tests
// that need to pass a logger but don't care about its output.
func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

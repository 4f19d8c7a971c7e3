package logger

import (
	"io"
	"log/slog"
	"os"
	"path/filepath"
)

// OpenFile appends to the file at path, creating it and its parent
// directories, and returns a writer that tees to stdout and the file.
// The returned closer closes the file.
func OpenFile(path string) (io.Writer, io.Closer, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
		return nil, nil, err
	}

	f, err := os.OpenFile(filepath.Clean(path), os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o600) // #nosec G304 -- path is from application config
	if err != nil {
		return nil, nil, err
	}
	return io.MultiWriter(os.Stdout, f), f, nil
}

// New builds the process logger: JSON to w plus the in-memory buffer, with
// correlation ids attached. buf may be nil.
func New(w io.Writer, buf *Buffer, level slog.Leveler) *slog.Logger {
	var h slog.Handler = slog.NewJSONHandler(w, &slog.HandlerOptions{Level: level})
	if buf != nil {
		h = Fanout{h, buf}
	}
	return slog.New(NewContextHandler(h))
}

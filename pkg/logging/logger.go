package logging

import (
	"io"
	"log/slog"
	"os"
	"path/filepath"
)

// New builds the daemon's slog.Logger, writing to both stderr and a rotating
// file under dataRoot/logs/daemon.log. An empty dataRoot disables the file sink.
func New(dataRoot string, level slog.Level) (*slog.Logger, func() error, error) {
	writers := []io.Writer{os.Stderr}
	closer := func() error { return nil }

	if dataRoot != "" {
		rf, err := NewRotatingFile(filepath.Join(dataRoot, "logs", "daemon.log"))
		if err != nil {
			return nil, nil, err
		}
		writers = append(writers, rf)
		closer = rf.Close
	}

	handler := slog.NewJSONHandler(io.MultiWriter(writers...), &slog.HandlerOptions{
		Level: level,
	})
	return slog.New(handler), closer, nil
}

package pipeline

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
)

// LogFile is the pipeline log, relative to the logs working directory.
const LogFile = "pipeline.log"

// setupLogging installs the default slog logger, writing text records to
// console and to <root>/logs/pipeline.log. The returned file must be
// closed by the caller.
func setupLogging(root string, level slog.Level, console io.Writer) (*os.File, error) {
	path := filepath.Join(root, "logs", LogFile)
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open log file: %w", err)
	}

	handler := slog.NewTextHandler(io.MultiWriter(console, f), &slog.HandlerOptions{
		Level: level,
	})
	slog.SetDefault(slog.New(handler))
	return f, nil
}

package report

import (
	"encoding/json"
	"os"
	"path/filepath"

	"github.com/rs/zerolog"
)

// Writer persists run reports as JSON on disk.
type Writer struct {
	path   string
	logger zerolog.Logger
}

// NewWriter returns a JSON report writer for the given path.
func NewWriter(path string, logger zerolog.Logger) *Writer {
	return &Writer{
		path:   path,
		logger: logger,
	}
}

// Write saves the report atomically: a CI consumer watching the path
// never reads a half-written artifact.
func (w *Writer) Write(rep Report) error {
	dir := filepath.Dir(w.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}

	tempFile, err := os.CreateTemp(dir, ".report-*.json")
	if err != nil {
		return err
	}

	cleanup := func() {
		_ = os.Remove(tempFile.Name())
	}

	encoder := json.NewEncoder(tempFile)
	encoder.SetIndent("", "  ")
	if err := encoder.Encode(rep); err != nil {
		_ = tempFile.Close()
		cleanup()
		return err
	}
	if err := tempFile.Sync(); err != nil {
		_ = tempFile.Close()
		cleanup()
		return err
	}
	if err := tempFile.Close(); err != nil {
		cleanup()
		return err
	}

	if err := os.Rename(tempFile.Name(), w.path); err != nil {
		cleanup()
		return err
	}

	w.logger.Info().Str("path", w.path).Msg("run report written")
	return nil
}

package repo

import (
	"context"
	"os"

	"github.com/miradorstack/incident-metrics/internal/models"
	"github.com/miradorstack/incident-metrics/internal/utils"
)

// FileSource reads a JSON export from disk on every fetch.
type FileSource struct {
	path string
}

// NewFileSource returns a source reading path.
func NewFileSource(path string) *FileSource {
	return &FileSource{path: path}
}

// Fetch reads and decodes the export.
func (s *FileSource) Fetch(ctx context.Context) ([]models.RawRecord, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	f, err := os.Open(s.path)
	if err != nil {
		return nil, utils.NewAppError("repo.FileSource.Fetch", "open incident export", err)
	}
	defer f.Close()

	records, err := decodeRecords(f)
	if err != nil {
		return nil, utils.NewAppError("repo.FileSource.Fetch", s.path, err)
	}
	return records, nil
}

// Close is a no-op.
func (s *FileSource) Close() error { return nil }

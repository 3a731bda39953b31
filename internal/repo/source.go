package repo

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/miradorstack/incident-metrics/internal/config"
	"github.com/miradorstack/incident-metrics/internal/models"
	"github.com/miradorstack/incident-metrics/internal/utils"
)

// Source delivers the raw incident snapshot metrics are computed over.
type Source interface {
	Fetch(ctx context.Context) ([]models.RawRecord, error)
	Close() error
}

// NewSource builds the source selected by cfg.Type.
func NewSource(ctx context.Context, cfg config.SourceConfig, logger *slog.Logger) (Source, error) {
	if logger == nil {
		logger = slog.Default()
	}
	switch strings.ToLower(cfg.Type) {
	case config.SourceHTTP:
		return NewHTTPSource(cfg.HTTP, logger), nil
	case config.SourceFile:
		return NewFileSource(cfg.File.Path), nil
	case config.SourcePostgres:
		return NewPostgresSource(ctx, cfg.Postgres, logger)
	default:
		return nil, utils.NewAppError("repo.NewSource", fmt.Sprintf("unsupported source type %q", cfg.Type), nil)
	}
}

// decodeRecords accepts either a bare JSON array of records or an object with
// an "incidents" (or "records") array. Numbers are kept as json.Number so
// spreadsheet serials keep full precision.
func decodeRecords(r io.Reader) ([]models.RawRecord, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, err
	}
	data = bytes.TrimSpace(data)
	if len(data) == 0 {
		return []models.RawRecord{}, nil
	}

	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	if data[0] == '[' {
		var records []models.RawRecord
		if err := dec.Decode(&records); err != nil {
			return nil, fmt.Errorf("decode records: %w", err)
		}
		return nonNil(records), nil
	}

	var envelope struct {
		Incidents []models.RawRecord `json:"incidents"`
		Records   []models.RawRecord `json:"records"`
	}
	if err := dec.Decode(&envelope); err != nil {
		return nil, fmt.Errorf("decode records: %w", err)
	}
	if envelope.Incidents != nil {
		return envelope.Incidents, nil
	}
	return nonNil(envelope.Records), nil
}

func nonNil(records []models.RawRecord) []models.RawRecord {
	if records == nil {
		return []models.RawRecord{}
	}
	return records
}

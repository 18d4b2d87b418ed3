package sink

import (
	"context"
	"log/slog"

	"github.com/maltedev/sku-scraper/internal/models"
)

// Multi writes to a primary sink and mirrors to secondary sinks. Only the
// primary's error fails an append; secondary errors are logged.
type Multi struct {
	primary     Sink
	secondaries []Sink
	logger      *slog.Logger
}

func NewMulti(primary Sink, logger *slog.Logger, secondaries ...Sink) *Multi {
	if logger == nil {
		logger = slog.Default()
	}
	return &Multi{
		primary:     primary,
		secondaries: secondaries,
		logger:      logger.With("component", "sink"),
	}
}

func (m *Multi) Append(ctx context.Context, records []*models.ExtractedRecord) error {
	if len(records) == 0 {
		return nil
	}
	if err := m.primary.Append(ctx, records); err != nil {
		return err
	}
	for _, s := range m.secondaries {
		if err := s.Append(ctx, records); err != nil {
			m.logger.Error("secondary sink failed", "sink", sinkName(s), "records", len(records), "error", err)
		}
	}
	return nil
}

func (m *Multi) Close() error {
	var first error
	for _, s := range append([]Sink{m.primary}, m.secondaries...) {
		if err := s.Close(); err != nil && first == nil {
			first = err
		}
	}
	return first
}

func sinkName(s Sink) string {
	switch s.(type) {
	case *CSV:
		return "csv"
	case *Postgres:
		return "postgres"
	case *RedisStream:
		return "redis"
	}
	return "unknown"
}

// Package sink persists extracted records and attempt events.
package sink

import (
	"context"

	"github.com/maltedev/sku-scraper/internal/models"
)

// Sink receives finished records. Append must be safe for concurrent use and
// must treat an empty batch as a no-op.
type Sink interface {
	Append(ctx context.Context, records []*models.ExtractedRecord) error
	Close() error
}

package scraper

import (
	"context"

	"github.com/maltedev/sku-scraper/internal/checkpoint"
	"github.com/maltedev/sku-scraper/internal/models"
	"github.com/maltedev/sku-scraper/internal/sink"
)

// Persist appends a finished batch to out and only then marks its tasks
// completed. A failed append leaves them resumable.
func Persist(out sink.Sink, progress Progress) func(ctx context.Context, records []*models.ExtractedRecord) error {
	return func(ctx context.Context, records []*models.ExtractedRecord) error {
		if err := out.Append(ctx, records); err != nil {
			return err
		}
		if progress == nil {
			return nil
		}
		for _, r := range records {
			task := models.SkuTask{Retailer: r.Retailer, Identifier: r.SKU}
			if err := progress.Update(task, checkpoint.StatusCompleted, 0, ""); err != nil {
				return err
			}
		}
		return nil
	}
}

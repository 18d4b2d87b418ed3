package scraper

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/maltedev/sku-scraper/internal/checkpoint"
	"github.com/maltedev/sku-scraper/internal/models"
)

// runObserver turns retry events of one task into log lines, event log
// entries and checkpoint updates.
type runObserver struct {
	s          *Scraper
	task       models.SkuTask
	attempts   int
	lastRecord *models.ExtractedRecord
}

func (o *runObserver) OnSuccess(attempt int) {
	detail := "extracted"
	if r := o.lastRecord; r != nil {
		detail = fmt.Sprintf("extracted %d/5 fields: %s", r.FieldCount(), models.Value(r.Title))
	}
	o.s.logger.Info("scrape complete", "sku", o.task.Identifier, "retailer", o.task.Retailer, "attempt", attempt)
	o.s.metrics.IncRecord(string(o.task.Retailer))
	o.record(attempt, models.OutcomeSuccess, detail)
	o.progress(checkpoint.StatusExtracted, "")
}

func (o *runObserver) OnAttemptFailed(attempt int, err error, delay time.Duration) {
	outcome := models.OutcomeError
	detail := oneLine(err)

	var blocked *BlockedError
	if errors.As(err, &blocked) {
		outcome = models.OutcomeBlocked
		detail = blocked.Reason
	}

	log := o.s.logger.With("sku", o.task.Identifier, "retailer", o.task.Retailer, "attempt", attempt)
	if delay > 0 {
		log.Warn("attempt failed, retrying", "outcome", outcome, "error", err, "delay", delay)
	} else {
		log.Warn("attempt failed", "outcome", outcome, "error", err)
	}

	o.record(attempt, outcome, detail)
}

func (o *runObserver) OnExhausted(attempts int, err error) {
	o.s.logger.Error("giving up on task", "sku", o.task.Identifier, "retailer", o.task.Retailer, "attempts", attempts, "error", err)
	o.s.metrics.IncExhausted(string(o.task.Retailer))
	o.record(0, models.OutcomeExhausted, fmt.Sprintf("no result after %d attempts: %s", attempts, oneLine(err)))

	status := checkpoint.StatusFailed
	var blocked *BlockedError
	if errors.As(err, &blocked) {
		status = checkpoint.StatusBlocked
	}
	o.progress(status, oneLine(err))
}

// OnCancelled leaves the task resumable: the checkpoint goes back to pending
// and the exhaustion metric is untouched.
func (o *runObserver) OnCancelled(attempts int, err error) {
	o.s.logger.Info("task interrupted", "sku", o.task.Identifier, "retailer", o.task.Retailer, "attempts", attempts, "error", err)
	o.record(attempts, models.OutcomeCancelled, oneLine(err))
	if attempts > 0 {
		o.progress(checkpoint.StatusPending, "")
	}
}

// oneLine flattens joined errors for single-line log entries.
func oneLine(err error) string {
	return strings.ReplaceAll(err.Error(), "\n", ": ")
}

func (o *runObserver) record(attempt int, outcome models.Outcome, detail string) {
	if o.s.events == nil {
		return
	}
	entry := models.AttemptLog{
		Timestamp: time.Now(),
		SKU:       o.task.Identifier,
		Retailer:  o.task.Retailer,
		Attempt:   attempt,
		Outcome:   outcome,
		Detail:    detail,
	}
	if err := o.s.events.Record(entry); err != nil {
		o.s.logger.Error("failed to write event log", "error", err)
	}
}

func (o *runObserver) progress(status checkpoint.Status, errMsg string) {
	if o.s.progress == nil {
		return
	}
	if err := o.s.progress.Update(o.task, status, o.attempts, errMsg); err != nil {
		o.s.logger.Error("failed to update checkpoint", "sku", o.task.Identifier, "error", err)
	}
}

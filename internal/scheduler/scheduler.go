// Package scheduler fans SKU tasks out under per-retailer concurrency limits,
// in batches separated by randomized cool-downs.
package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"sync"
	"time"

	"golang.org/x/sync/semaphore"

	"github.com/maltedev/sku-scraper/internal/models"
	"github.com/maltedev/sku-scraper/internal/ratelimit"
)

// Class is the admission policy for one retailer.
type Class struct {
	Name        string
	Concurrency int
	// Limiter spaces out task starts within the class. Optional.
	Limiter ratelimit.Limiter
}

type Config struct {
	BatchSize          int
	CooldownMin        time.Duration
	CooldownMax        time.Duration
	DefaultConcurrency int
	Classes            []Class

	Rand  *rand.Rand
	Sleep func(ctx context.Context, d time.Duration) error
}

func DefaultConfig() Config {
	return Config{
		BatchSize:          10,
		CooldownMin:        5 * time.Second,
		CooldownMax:        10 * time.Second,
		DefaultConcurrency: 2,
	}
}

// WorkFunc processes one task; nil means the task produced no record.
type WorkFunc func(ctx context.Context, task models.SkuTask) *models.ExtractedRecord

type Summary struct {
	Total     int `json:"total"`
	Succeeded int `json:"succeeded"`
	Failed    int `json:"failed"`
	Skipped   int `json:"skipped"`
	Batches   int `json:"batches"`
}

type gate struct {
	sem     *semaphore.Weighted
	limiter ratelimit.Limiter
}

type Scheduler struct {
	cfg    Config
	logger *slog.Logger

	mu    sync.Mutex
	gates map[string]*gate

	// OnResult is called as each task finishes, from the task's goroutine.
	OnResult func(task models.SkuTask, record *models.ExtractedRecord)
	// OnBatch receives the records of a finished batch in task order. An
	// error stops the run.
	OnBatch func(ctx context.Context, records []*models.ExtractedRecord) error
}

func New(cfg Config, logger *slog.Logger) *Scheduler {
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 10
	}
	if cfg.DefaultConcurrency <= 0 {
		cfg.DefaultConcurrency = 1
	}
	if cfg.Rand == nil {
		cfg.Rand = rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64()))
	}
	if cfg.Sleep == nil {
		cfg.Sleep = ratelimit.Sleep
	}
	if logger == nil {
		logger = slog.Default()
	}

	s := &Scheduler{
		cfg:    cfg,
		logger: logger.With("component", "scheduler"),
		gates:  make(map[string]*gate),
	}
	for _, c := range cfg.Classes {
		n := c.Concurrency
		if n <= 0 {
			n = cfg.DefaultConcurrency
		}
		s.gates[c.Name] = &gate{sem: semaphore.NewWeighted(int64(n)), limiter: c.Limiter}
	}
	return s
}

// ClassOf names the admission class of a task.
func ClassOf(task models.SkuTask) string {
	return string(task.Retailer)
}

func (s *Scheduler) gate(class string) *gate {
	s.mu.Lock()
	defer s.mu.Unlock()

	g, ok := s.gates[class]
	if !ok {
		g = &gate{sem: semaphore.NewWeighted(int64(s.cfg.DefaultConcurrency))}
		s.gates[class] = g
	}
	return g
}

// Run processes tasks batch by batch. Within a batch every class admits
// tasks through its own window: a task starts as soon as a slot of its class
// frees up. Once ctx is done no further task is admitted; records of tasks
// that already finished are still handed to OnBatch.
func (s *Scheduler) Run(ctx context.Context, tasks []models.SkuTask, work WorkFunc) (Summary, error) {
	summary := Summary{Total: len(tasks)}
	size := s.cfg.BatchSize

	for start := 0; start < len(tasks); start += size {
		if ctx.Err() != nil {
			summary.Skipped += len(tasks) - start
			break
		}

		end := min(start+size, len(tasks))
		s.logger.Info("processing batch", "from", start+1, "to", end, "total", len(tasks))

		records, skipped := s.runBatch(ctx, tasks[start:end], work)
		summary.Batches++
		summary.Skipped += skipped
		summary.Succeeded += len(records)
		summary.Failed += end - start - len(records) - skipped

		if s.OnBatch != nil && len(records) > 0 {
			// Persist with a fresh context: finished work must survive cancellation.
			if err := s.OnBatch(context.WithoutCancel(ctx), records); err != nil {
				return summary, fmt.Errorf("failed to persist batch %d: %w", summary.Batches, err)
			}
		}

		if end == len(tasks) {
			break
		}

		s.mu.Lock()
		cooldown := ratelimit.Between(s.cfg.Rand, s.cfg.CooldownMin, s.cfg.CooldownMax)
		s.mu.Unlock()

		s.logger.Info("cooling down", "duration", cooldown)
		if err := s.cfg.Sleep(ctx, cooldown); err != nil {
			summary.Skipped += len(tasks) - end
			break
		}
	}

	s.logger.Info("run finished",
		"total", summary.Total,
		"succeeded", summary.Succeeded,
		"failed", summary.Failed,
		"skipped", summary.Skipped,
	)
	return summary, nil
}

func (s *Scheduler) runBatch(ctx context.Context, batch []models.SkuTask, work WorkFunc) ([]*models.ExtractedRecord, int) {
	results := make([]*models.ExtractedRecord, len(batch))
	ran := make([]bool, len(batch))

	var wg sync.WaitGroup
	for i, task := range batch {
		g := s.gate(ClassOf(task))

		wg.Add(1)
		go func() {
			defer wg.Done()

			if err := g.sem.Acquire(ctx, 1); err != nil {
				return
			}
			defer g.sem.Release(1)

			if g.limiter != nil {
				if err := g.limiter.Wait(ctx); err != nil {
					return
				}
			}
			if ctx.Err() != nil {
				return
			}

			results[i] = work(ctx, task)
			// A task cut short by cancellation counts as skipped, not failed.
			if results[i] == nil && ctx.Err() != nil {
				return
			}
			ran[i] = true
			if s.OnResult != nil {
				s.OnResult(task, results[i])
			}
		}()
	}
	wg.Wait()

	var records []*models.ExtractedRecord
	skipped := 0
	for i := range batch {
		switch {
		case !ran[i]:
			skipped++
		case results[i] != nil:
			records = append(records, results[i])
		}
	}
	return records, skipped
}

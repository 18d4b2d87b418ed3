// Package scraper runs single task attempts: open a session, navigate, check
// for blocks, behave like a visitor, extract, and always close the session.
package scraper

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"sync"
	"time"

	"github.com/maltedev/sku-scraper/internal/browser"
	"github.com/maltedev/sku-scraper/internal/checkpoint"
	"github.com/maltedev/sku-scraper/internal/config"
	"github.com/maltedev/sku-scraper/internal/detect"
	"github.com/maltedev/sku-scraper/internal/extract"
	"github.com/maltedev/sku-scraper/internal/humanize"
	"github.com/maltedev/sku-scraper/internal/metrics"
	"github.com/maltedev/sku-scraper/internal/models"
	"github.com/maltedev/sku-scraper/internal/ratelimit"
	"github.com/maltedev/sku-scraper/internal/retry"
)

// Target binds a retailer's page knowledge to the way its pages are loaded.
type Target struct {
	Spec     config.RetailerSpec
	Sessions browser.SessionFactory
	// Fetcher switches the retailer to plain HTTP fetching when set.
	Fetcher *extract.Fetcher
	Bypass  bool
	// Limiter is told about successes and blocks so it can adapt its pace.
	Limiter *ratelimit.AdaptiveRateLimiter
}

// EventRecorder receives one entry per attempt event.
type EventRecorder interface {
	Record(entry models.AttemptLog) error
}

// Progress tracks the final status of each task.
type Progress interface {
	Update(task models.SkuTask, status checkpoint.Status, attempts int, errMsg string) error
}

type Options struct {
	NavTimeout      time.Duration
	SelectorTimeout time.Duration
	WarmUp          bool
	BypassSettle    time.Duration
	Retry           retry.Policy
	// Profiles supplies user agents for HTTP fetch mode.
	Profiles []models.DeviceProfile
}

func DefaultOptions() Options {
	return Options{
		NavTimeout:      30 * time.Second,
		SelectorTimeout: 10 * time.Second,
		WarmUp:          true,
		BypassSettle:    3 * time.Second,
		Retry:           retry.DefaultPolicy(),
	}
}

type Scraper struct {
	targets   map[models.Retailer]Target
	detector  *detect.Detector
	extractor *extract.Extractor
	human     *humanize.Simulator
	events    EventRecorder
	progress  Progress
	metrics   *metrics.Metrics
	opts      Options
	logger    *slog.Logger

	mu  sync.Mutex
	rng *rand.Rand
}

type Deps struct {
	Detector  *detect.Detector
	Extractor *extract.Extractor
	Human     *humanize.Simulator
	Events    EventRecorder
	Progress  Progress
	Metrics   *metrics.Metrics
}

func New(targets map[models.Retailer]Target, deps Deps, opts Options, logger *slog.Logger) *Scraper {
	if logger == nil {
		logger = slog.Default()
	}
	if deps.Detector == nil {
		deps.Detector = detect.New(detect.DefaultMarkers(), logger)
	}
	if deps.Extractor == nil {
		deps.Extractor = extract.New(logger)
	}
	if deps.Human == nil {
		deps.Human = humanize.New(humanize.Config{NavTimeout: opts.NavTimeout}, logger)
	}

	return &Scraper{
		targets:   targets,
		detector:  deps.Detector,
		extractor: deps.Extractor,
		human:     deps.Human,
		events:    deps.Events,
		progress:  deps.Progress,
		metrics:   deps.Metrics,
		opts:      opts,
		logger:    logger.With("component", "scraper"),
		rng:       rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64())),
	}
}

// Run scrapes one task with retries. It returns nil when every attempt
// failed; the caller moves on to the next task.
func (s *Scraper) Run(ctx context.Context, task models.SkuTask) *models.ExtractedRecord {
	obs := &runObserver{s: s, task: task}

	record, ok := retry.Do(ctx, func(ctx context.Context, attempt int) (*models.ExtractedRecord, error) {
		start := time.Now()
		rec, err := s.safeAttempt(ctx, task, attempt)
		s.metrics.ObserveAttempt(string(task.Retailer), outcomeLabel(err), time.Since(start))
		obs.attempts = attempt
		obs.lastRecord = rec
		return rec, err
	}, s.opts.Retry, obs)

	if !ok {
		return nil
	}
	return record
}

func (s *Scraper) safeAttempt(ctx context.Context, task models.SkuTask, attempt int) (rec *models.ExtractedRecord, err error) {
	defer func() {
		if r := recover(); r != nil {
			rec, err = nil, &panicError{value: r}
		}
	}()
	return s.Attempt(ctx, task, attempt)
}

// Attempt performs one pass over a task. The session it opens is closed
// before Attempt returns, on every path.
func (s *Scraper) Attempt(ctx context.Context, task models.SkuTask, attempt int) (*models.ExtractedRecord, error) {
	target, ok := s.targets[task.Retailer]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownRetailer, task.Retailer)
	}
	if target.Fetcher != nil {
		return s.attemptHTTP(ctx, task, target)
	}

	session, err := target.Sessions.NewSession(ctx)
	if err != nil {
		return nil, err
	}
	s.metrics.SessionOpened()
	defer func() {
		if err := session.Close(); err != nil {
			s.logger.Warn("failed to close session", "session_id", session.ID(), "error", err)
		}
		s.metrics.SessionClosed()
	}()

	log := s.logger.With("sku", task.Identifier, "retailer", task.Retailer, "attempt", attempt, "session_id", session.ID())
	log.Debug("session open", "profile", session.Profile().Name)

	page, err := session.NewPage()
	if err != nil {
		return nil, err
	}
	defer s.human.Forget(page)

	if s.opts.WarmUp && target.Spec.Homepage != "" {
		if err := s.human.WarmUp(ctx, page, target.Spec.Homepage); err != nil {
			return nil, err
		}
	}

	url := target.Spec.URLFor(task.Identifier)
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := page.Goto(url, s.opts.NavTimeout); err != nil {
		return nil, err
	}
	log.Debug("navigated", "url", page.URL())

	var verdict detect.Verdict
	if target.Bypass {
		verdict = s.detector.Bypass(ctx, page, target.Spec.BypassButtons, s.opts.BypassSettle)
	} else {
		verdict = s.detector.Detect(page)
	}
	if verdict.Blocked {
		target.recordBlock()
		return nil, &BlockedError{Reason: verdict.Reason}
	}

	if err := s.human.SimulateBehavior(ctx, page); err != nil {
		return nil, err
	}

	if sel := target.Spec.PrimarySelector; sel != "" {
		if err := page.WaitForSelector(sel, s.opts.SelectorTimeout); err != nil {
			log.Debug("primary selector not found", "selector", sel, "error", err)
		}
	}

	fields := s.extractor.Page(page, target.Spec.Fields)
	return s.buildRecord(task, target, fields), nil
}

func (s *Scraper) attemptHTTP(ctx context.Context, task models.SkuTask, target Target) (*models.ExtractedRecord, error) {
	s.mu.Lock()
	profile := browser.SampleProfile(s.opts.Profiles, s.rng)
	s.mu.Unlock()

	url := target.Spec.URLFor(task.Identifier)
	resp, err := target.Fetcher.Fetch(ctx, url, profile.UserAgent)
	if err != nil {
		return nil, err
	}

	if verdict := s.detector.Detect(extract.NewHTMLPage(resp.URL, resp.HTML)); verdict.Blocked {
		target.recordBlock()
		return nil, &BlockedError{Reason: verdict.Reason}
	}
	if resp.StatusCode >= 400 {
		return nil, fmt.Errorf("%w: %d from %s", ErrUnexpectedStatus, resp.StatusCode, url)
	}

	fields := extract.ExtractHTML(resp.HTML, target.Spec.Fields)
	return s.buildRecord(task, target, fields), nil
}

// buildRecord turns extracted fields into a record. Missing fields do not
// fail the attempt.
func (s *Scraper) buildRecord(task models.SkuTask, target Target, fields map[string]*string) *models.ExtractedRecord {
	for name, v := range fields {
		if v == nil {
			s.metrics.IncMissingField(string(task.Retailer), name)
		}
	}
	if target.Limiter != nil {
		target.Limiter.RecordSuccess()
	}
	return models.NewRecord(task, fields)
}

func (t Target) recordBlock() {
	if t.Limiter != nil {
		t.Limiter.RecordError()
	}
}

func outcomeLabel(err error) string {
	var blocked *BlockedError
	switch {
	case err == nil:
		return "success"
	case errors.As(err, &blocked):
		return "blocked"
	default:
		return "error"
	}
}

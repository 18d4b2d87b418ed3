package scraper

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/jarcoal/httpmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/maltedev/sku-scraper/internal/browser"
	"github.com/maltedev/sku-scraper/internal/browser/browsertest"
	"github.com/maltedev/sku-scraper/internal/checkpoint"
	"github.com/maltedev/sku-scraper/internal/config"
	"github.com/maltedev/sku-scraper/internal/extract"
	"github.com/maltedev/sku-scraper/internal/humanize"
	"github.com/maltedev/sku-scraper/internal/metrics"
	"github.com/maltedev/sku-scraper/internal/models"
	"github.com/maltedev/sku-scraper/internal/retry"
	"github.com/maltedev/sku-scraper/internal/scheduler"
)

const homepage = "https://shop.test/"

var shopSpec = config.RetailerSpec{
	Homepage:        homepage,
	ProductURL:      "https://shop.test/dp/{sku}",
	PrimarySelector: "#title",
	Fields: []extract.FieldSpec{
		{Name: models.FieldTitle, Selectors: []string{"#title"}},
		{Name: models.FieldPrice, Selectors: []string{".offscreen", ".price"}},
		{Name: models.FieldDescription, Selectors: []string{"#description"}},
		{Name: models.FieldReviewCount, Selectors: []string{"#reviews"}},
		{Name: models.FieldRating, Selectors: []string{".rating"}, Clean: extract.CleanStripParens},
	},
	BypassButtons: []string{"button.continue"},
}

func productState(sku string) browsertest.PageState {
	return browsertest.PageState{
		URL:   shopSpec.URLFor(sku),
		Title: "Widget " + sku,
		Elements: map[string]string{
			"#title":       "  Widget " + sku + "  ",
			".price":       "$19.99",
			"#description": "A widget.",
			"#reviews":     "1,234 ratings",
			".rating":      "(4.5)",
		},
	}
}

func robotState(sku string) browsertest.PageState {
	return browsertest.PageState{
		URL:   shopSpec.URLFor(sku),
		Title: "Robot Check",
		Body:  "Enter the characters you see below",
	}
}

type memEvents struct {
	mu      sync.Mutex
	entries []models.AttemptLog
}

func (m *memEvents) Record(e models.AttemptLog) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries = append(m.entries, e)
	return nil
}

func (m *memEvents) outcomes() []models.Outcome {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]models.Outcome, 0, len(m.entries))
	for _, e := range m.entries {
		out = append(out, e.Outcome)
	}
	return out
}

type memProgress struct {
	mu       sync.Mutex
	statuses map[string]checkpoint.Status
	attempts map[string]int
}

func (m *memProgress) Update(task models.SkuTask, status checkpoint.Status, attempts int, _ string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.statuses == nil {
		m.statuses = make(map[string]checkpoint.Status)
		m.attempts = make(map[string]int)
	}
	m.statuses[task.Key()] = status
	m.attempts[task.Key()] = attempts
	return nil
}

func noSleep(context.Context, time.Duration) error { return nil }

type fixture struct {
	factory  *browsertest.Factory
	events   *memEvents
	progress *memProgress
	metrics  *metrics.Metrics
	scraper  *Scraper
}

func newFixture(t *testing.T, retries int, states func(sku string) browsertest.PageState) *fixture {
	t.Helper()

	factory := browsertest.NewFactory(func(*browsertest.Session) *browsertest.Page {
		p := &browsertest.Page{States: map[string]browsertest.PageState{}}
		for _, sku := range []string{"A1", "A2", "A3", "A4", "A5"} {
			p.States[shopSpec.URLFor(sku)] = states(sku)
		}
		return p
	})
	return buildFixture(factory, retries, Target{Spec: shopSpec, Sessions: factory})
}

func buildFixture(factory *browsertest.Factory, retries int, target Target) *fixture {
	f := &fixture{
		factory:  factory,
		events:   &memEvents{},
		progress: &memProgress{},
		metrics:  metrics.New(),
	}

	opts := DefaultOptions()
	opts.BypassSettle = 0
	opts.Retry = retry.Policy{
		Retries:   retries,
		BaseDelay: time.Millisecond,
		MaxJitter: time.Millisecond,
		Sleep:     noSleep,
	}

	f.scraper = New(
		map[models.Retailer]Target{models.RetailerAmazon: target},
		Deps{
			Human:    humanize.New(humanize.Config{Sleep: noSleep}, nil),
			Events:   f.events,
			Progress: f.progress,
			Metrics:  f.metrics,
		},
		opts,
		nil,
	)
	return f
}

func task(sku string) models.SkuTask {
	return models.SkuTask{Retailer: models.RetailerAmazon, Identifier: sku}
}

func assertClosedOnce(t *testing.T, factory *browsertest.Factory) {
	t.Helper()
	for _, s := range factory.Sessions() {
		assert.Equal(t, 1, s.Closes(), "session %s", s.ID())
	}
	assert.Zero(t, factory.Open())
}

func TestRun_Success(t *testing.T) {
	f := newFixture(t, 3, productState)

	rec := f.scraper.Run(context.Background(), task("A1"))

	require.NotNil(t, rec)
	assert.Equal(t, "A1", rec.SKU)
	assert.Equal(t, models.RetailerAmazon, rec.Retailer)
	assert.Equal(t, "Widget A1", models.Value(rec.Title))
	assert.Equal(t, "$19.99", models.Value(rec.Price))
	assert.Equal(t, "A widget.", models.Value(rec.Description))
	assert.Equal(t, "1,234 ratings", models.Value(rec.ReviewCount))
	assert.Equal(t, "4.5", models.Value(rec.Rating))

	require.Len(t, f.factory.Sessions(), 1)
	assertClosedOnce(t, f.factory)

	page := f.factory.Sessions()[0].Pages()[0]
	assert.Equal(t, []string{homepage, shopSpec.URLFor("A1")}, page.Visited)
	assert.Positive(t, page.MouseMoves)
	assert.NotEmpty(t, page.Wheels)

	assert.Equal(t, []models.Outcome{models.OutcomeSuccess}, f.events.outcomes())
	assert.Contains(t, f.events.entries[0].Detail, "5/5")
	assert.Equal(t, checkpoint.StatusExtracted, f.progress.statuses["Amazon:A1"])
	assert.Equal(t, 1, f.progress.attempts["Amazon:A1"])
}

func TestRun_PartialRecordIsNotRetried(t *testing.T) {
	f := newFixture(t, 3, func(sku string) browsertest.PageState {
		s := productState(sku)
		delete(s.Elements, ".price")
		delete(s.Elements, "#title")
		return s
	})

	rec := f.scraper.Run(context.Background(), task("A2"))

	require.NotNil(t, rec)
	assert.Nil(t, rec.Title)
	assert.Nil(t, rec.Price)
	assert.Equal(t, 3, rec.FieldCount())
	assert.Len(t, f.factory.Sessions(), 1)
	assertClosedOnce(t, f.factory)
}

func TestRun_BlockedLogsReasonAndGivesUp(t *testing.T) {
	f := newFixture(t, 2, robotState)

	rec := f.scraper.Run(context.Background(), task("A1"))

	assert.Nil(t, rec)
	assert.Len(t, f.factory.Sessions(), 3)
	assertClosedOnce(t, f.factory)

	assert.Equal(t, []models.Outcome{
		models.OutcomeBlocked,
		models.OutcomeBlocked,
		models.OutcomeBlocked,
		models.OutcomeExhausted,
	}, f.events.outcomes())

	blocked := f.events.entries[0]
	assert.Equal(t, 1, blocked.Attempt)
	assert.Contains(t, strings.ToLower(blocked.Detail), "robot check")
	assert.Equal(t, checkpoint.StatusBlocked, f.progress.statuses["Amazon:A1"])
	assert.Equal(t, 3, f.progress.attempts["Amazon:A1"])
}

func TestRun_BypassesInterstitial(t *testing.T) {
	factory := browsertest.NewFactory(func(*browsertest.Session) *browsertest.Page {
		url := shopSpec.URLFor("A1")
		return &browsertest.Page{States: map[string]browsertest.PageState{
			url: {
				URL:      url,
				Title:    "Amazon.com",
				Body:     "Click the button below to continue shopping. Our systems have detected unusual traffic from your computer network.",
				Elements: map[string]string{"button.continue": "Continue shopping"},
			},
			"click:button.continue": productState("A1"),
		}}
	})
	f := buildFixture(factory, 0, Target{Spec: shopSpec, Sessions: factory, Bypass: true})

	rec := f.scraper.Run(context.Background(), task("A1"))

	require.NotNil(t, rec)
	assert.Equal(t, "Widget A1", models.Value(rec.Title))
	assert.Equal(t, []string{"button.continue"}, factory.Sessions()[0].Pages()[0].Clicked)
	assertClosedOnce(t, factory)
}

func TestRun_SessionClosedOnEveryPath(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(p *browsertest.Page)
	}{
		{"navigation timeout", func(p *browsertest.Page) {
			p.Errors = map[string]error{"goto": browser.ErrNavigationTimeout}
		}},
		{"navigation error", func(p *browsertest.Page) {
			p.Errors = map[string]error{"goto": browsertest.ErrInjected}
		}},
		{"panic during navigation", func(p *browsertest.Page) {
			p.Panics = map[string]bool{"goto": true}
		}},
		{"panic reading url", func(p *browsertest.Page) {
			p.Panics = map[string]bool{"url": true}
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			factory := browsertest.NewFactory(func(*browsertest.Session) *browsertest.Page {
				p := &browsertest.Page{}
				tt.mutate(p)
				return p
			})
			f := buildFixture(factory, 1, Target{Spec: shopSpec, Sessions: factory})

			rec := f.scraper.Run(context.Background(), task("A1"))

			assert.Nil(t, rec)
			assert.Len(t, factory.Sessions(), 2)
			assertClosedOnce(t, factory)
			assert.Equal(t, []models.Outcome{
				models.OutcomeError,
				models.OutcomeError,
				models.OutcomeExhausted,
			}, f.events.outcomes())
			assert.Equal(t, checkpoint.StatusFailed, f.progress.statuses["Amazon:A1"])
		})
	}
}

func TestRun_NewPageFailureClosesSession(t *testing.T) {
	factory := browsertest.NewFactory(nil)
	factory.PageErr = browsertest.ErrInjected
	f := buildFixture(factory, 0, Target{Spec: shopSpec, Sessions: factory})

	assert.Nil(t, f.scraper.Run(context.Background(), task("A1")))
	assert.Len(t, factory.Sessions(), 1)
	assertClosedOnce(t, factory)
}

func TestRun_SessionCreationFailure(t *testing.T) {
	factory := browsertest.NewFactory(nil)
	factory.CreateErr = browsertest.ErrInjected
	f := buildFixture(factory, 1, Target{Spec: shopSpec, Sessions: factory})

	assert.Nil(t, f.scraper.Run(context.Background(), task("A1")))
	assert.Empty(t, factory.Sessions())

	f.events.mu.Lock()
	defer f.events.mu.Unlock()
	require.NotEmpty(t, f.events.entries)
	assert.Contains(t, f.events.entries[0].Detail, "create fresh session")
}

func TestRun_RecoversAfterFailure(t *testing.T) {
	var mu sync.Mutex
	calls := 0
	factory := browsertest.NewFactory(func(*browsertest.Session) *browsertest.Page {
		mu.Lock()
		defer mu.Unlock()
		calls++
		p := &browsertest.Page{States: map[string]browsertest.PageState{shopSpec.URLFor("A1"): productState("A1")}}
		if calls <= 2 {
			p.Errors = map[string]error{"goto": browser.ErrNavigationTimeout}
		}
		return p
	})
	f := buildFixture(factory, 3, Target{Spec: shopSpec, Sessions: factory})

	rec := f.scraper.Run(context.Background(), task("A1"))

	require.NotNil(t, rec)
	assert.Len(t, factory.Sessions(), 3)
	assertClosedOnce(t, factory)
	assert.Equal(t, []models.Outcome{
		models.OutcomeError,
		models.OutcomeError,
		models.OutcomeSuccess,
	}, f.events.outcomes())
	assert.Equal(t, 3, f.progress.attempts["Amazon:A1"])
}

func TestRun_CancelledDuringBackoff(t *testing.T) {
	factory := browsertest.NewFactory(func(*browsertest.Session) *browsertest.Page {
		return &browsertest.Page{Errors: map[string]error{"goto": browser.ErrNavigationTimeout}}
	})
	f := buildFixture(factory, 3, Target{Spec: shopSpec, Sessions: factory})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	f.scraper.opts.Retry.Sleep = func(ctx context.Context, _ time.Duration) error {
		cancel()
		return ctx.Err()
	}

	assert.Nil(t, f.scraper.Run(ctx, task("A1")))
	assert.Len(t, factory.Sessions(), 1)
	assertClosedOnce(t, factory)

	assert.Equal(t, []models.Outcome{models.OutcomeError, models.OutcomeCancelled}, f.events.outcomes())
	assert.Equal(t, checkpoint.StatusPending, f.progress.statuses["Amazon:A1"])
	assert.Equal(t, 1, f.progress.attempts["Amazon:A1"])
}

func TestAttempt_UnknownRetailer(t *testing.T) {
	f := newFixture(t, 0, productState)

	_, err := f.scraper.Attempt(context.Background(), models.SkuTask{Retailer: models.RetailerWalmart, Identifier: "1"}, 1)
	assert.ErrorIs(t, err, ErrUnknownRetailer)
}

func TestAttempt_CancelledContext(t *testing.T) {
	f := newFixture(t, 0, productState)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := f.scraper.Attempt(ctx, task("A1"), 1)
	assert.ErrorIs(t, err, context.Canceled)
	assertClosedOnce(t, f.factory)
}

func TestScheduler_EndToEndRespectsConcurrency(t *testing.T) {
	factory := browsertest.NewFactory(func(*browsertest.Session) *browsertest.Page {
		p := &browsertest.Page{States: map[string]browsertest.PageState{}, GotoDelay: 30 * time.Millisecond}
		for _, sku := range []string{"A1", "A2", "A3", "A4", "A5"} {
			p.States[shopSpec.URLFor(sku)] = productState(sku)
		}
		return p
	})
	f := buildFixture(factory, 0, Target{Spec: shopSpec, Sessions: factory})

	cfg := scheduler.DefaultConfig()
	cfg.DefaultConcurrency = 2
	cfg.BatchSize = 10
	cfg.CooldownMin, cfg.CooldownMax = 0, 0
	cfg.Sleep = noSleep
	sched := scheduler.New(cfg, nil)

	var mu sync.Mutex
	var persisted []*models.ExtractedRecord
	sched.OnBatch = func(_ context.Context, records []*models.ExtractedRecord) error {
		mu.Lock()
		defer mu.Unlock()
		persisted = append(persisted, records...)
		return nil
	}

	var tasks []models.SkuTask
	for i := 1; i <= 5; i++ {
		tasks = append(tasks, task(fmt.Sprintf("A%d", i)))
	}

	summary, err := sched.Run(context.Background(), tasks, f.scraper.Run)
	require.NoError(t, err)

	assert.Equal(t, 5, summary.Succeeded)
	assert.Len(t, persisted, 5)
	assert.LessOrEqual(t, factory.MaxOpen(), int64(2))
	assert.Greater(t, factory.MaxOpen(), int64(1))
	assert.Len(t, factory.Sessions(), 5)
	assertClosedOnce(t, factory)
}

func TestRun_HTTPMode(t *testing.T) {
	transport := httpmock.NewMockTransport()

	product := `<html><head><title>Widget</title></head><body>
<span id="title">Widget A1</span><span class="price">$5.00</span></body></html>`
	robot := `<html><head><title>Robot Check</title></head><body>captcha</body></html>`

	transport.RegisterResponder(http.MethodGet, shopSpec.URLFor("A1"), httpmock.NewStringResponder(http.StatusOK, product))
	transport.RegisterResponder(http.MethodGet, shopSpec.URLFor("A2"), httpmock.NewStringResponder(http.StatusServiceUnavailable, robot))
	transport.RegisterResponder(http.MethodGet, shopSpec.URLFor("A3"), httpmock.NewStringResponder(http.StatusNotFound, "<html><title>Not here</title></html>"))

	fetcher := extract.NewFetcher(5*time.Second, nil, nil)
	fetcher.WithTransport(transport)
	f := buildFixture(browsertest.NewFactory(nil), 0, Target{Spec: shopSpec, Fetcher: fetcher})

	rec := f.scraper.Run(context.Background(), task("A1"))
	require.NotNil(t, rec)
	assert.Equal(t, "Widget A1", models.Value(rec.Title))
	assert.Equal(t, "$5.00", models.Value(rec.Price))
	assert.Empty(t, f.factory.Sessions())

	_, err := f.scraper.Attempt(context.Background(), task("A2"), 1)
	var blocked *BlockedError
	require.ErrorAs(t, err, &blocked)
	assert.Contains(t, strings.ToLower(blocked.Reason), "robot check")

	_, err = f.scraper.Attempt(context.Background(), task("A3"), 1)
	assert.ErrorIs(t, err, ErrUnexpectedStatus)
}

func TestOutcomeLabel(t *testing.T) {
	assert.Equal(t, "success", outcomeLabel(nil))
	assert.Equal(t, "blocked", outcomeLabel(fmt.Errorf("wrap: %w", &BlockedError{Reason: "x"})))
	assert.Equal(t, "error", outcomeLabel(browsertest.ErrInjected))
}

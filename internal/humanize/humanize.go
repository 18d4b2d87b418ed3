// Package humanize drives human-looking cursor, scroll and keyboard activity on
// a page. Every operation is best-effort: page errors are logged and
// swallowed, only context cancellation stops a sequence early.
package humanize

import (
	"context"
	"log/slog"
	"math/rand/v2"
	"sync"
	"time"

	"github.com/maltedev/sku-scraper/internal/browser"
	"github.com/maltedev/sku-scraper/internal/ratelimit"
)

type Config struct {
	// Rand drives every random choice; seeded sources make runs reproducible.
	Rand *rand.Rand
	// Sleep replaces real waiting in tests.
	Sleep      func(ctx context.Context, d time.Duration) error
	NavTimeout time.Duration
}

type Simulator struct {
	mu      sync.Mutex
	rng     *rand.Rand
	sleep   func(ctx context.Context, d time.Duration) error
	timeout time.Duration
	cursors map[browser.Page]Point
	logger  *slog.Logger
}

func New(cfg Config, logger *slog.Logger) *Simulator {
	if cfg.Rand == nil {
		cfg.Rand = rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64()))
	}
	if cfg.Sleep == nil {
		cfg.Sleep = ratelimit.Sleep
	}
	if cfg.NavTimeout == 0 {
		cfg.NavTimeout = 30 * time.Second
	}
	if logger == nil {
		logger = slog.Default()
	}

	return &Simulator{
		rng:     cfg.Rand,
		sleep:   cfg.Sleep,
		timeout: cfg.NavTimeout,
		cursors: make(map[browser.Page]Point),
		logger:  logger.With("component", "humanize"),
	}
}

// The shared *rand.Rand is not safe for concurrent use.
func (s *Simulator) intN(n int) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.rng.IntN(n)
}

func (s *Simulator) between(min, max time.Duration) time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	return ratelimit.Between(s.rng, min, max)
}

func (s *Simulator) pause(ctx context.Context, min, max time.Duration) error {
	return s.sleep(ctx, s.between(min, max))
}

// Forget drops the remembered cursor position of a page that is about to close.
func (s *Simulator) Forget(page browser.Page) {
	s.mu.Lock()
	delete(s.cursors, page)
	s.mu.Unlock()
}

// MoveMouseTo moves the cursor along a curved, eased, jittered path. The
// first move on a page starts from a random point inside the viewport.
func (s *Simulator) MoveMouseTo(ctx context.Context, page browser.Page, x, y float64) error {
	w, h := page.ViewportSize()

	s.mu.Lock()
	start, ok := s.cursors[page]
	if !ok {
		start = Point{X: s.rng.Float64() * float64(w), Y: s.rng.Float64() * float64(h)}
	}
	target := Point{X: x, Y: y}
	path := Path(s.rng, start, target)
	delays := make([]time.Duration, len(path))
	for i := range path {
		delays[i] = stepDelay(s.rng, i+1, len(path))
	}
	s.cursors[page] = target
	s.mu.Unlock()

	for i, p := range path {
		if err := page.MouseMove(p.X, p.Y); err != nil {
			s.logger.Debug("mouse move failed", "error", err)
			return ctx.Err()
		}
		if err := s.sleep(ctx, delays[i]); err != nil {
			return err
		}
	}
	return nil
}

// moveRandom moves to a random point away from the viewport edges.
func (s *Simulator) moveRandom(ctx context.Context, page browser.Page) error {
	w, h := page.ViewportSize()
	s.mu.Lock()
	x := float64(w)*0.1 + s.rng.Float64()*float64(w)*0.8
	y := float64(h)*0.1 + s.rng.Float64()*float64(h)*0.8
	s.mu.Unlock()
	return s.MoveMouseTo(ctx, page, x, y)
}

// ScrollRandom scrolls down in one to three wheel gestures of varying length.
func (s *Simulator) ScrollRandom(ctx context.Context, page browser.Page) error {
	gestures := 1 + s.intN(3)
	for i := 0; i < gestures; i++ {
		dy := float64(200 + s.intN(401))
		if err := page.MouseWheel(0, dy); err != nil {
			s.logger.Debug("scroll failed", "error", err)
			return ctx.Err()
		}
		if err := s.pause(ctx, 300*time.Millisecond, 900*time.Millisecond); err != nil {
			return err
		}
	}
	return nil
}

// TypeWithJitter types text one character at a time with human keystroke timing.
func (s *Simulator) TypeWithJitter(ctx context.Context, page browser.Page, text string) error {
	for _, r := range text {
		if err := page.Type(string(r)); err != nil {
			s.logger.Debug("typing failed", "error", err)
			return ctx.Err()
		}

		s.mu.Lock()
		d := KeystrokeDelay(s.rng)
		s.mu.Unlock()

		if err := s.sleep(ctx, d); err != nil {
			return err
		}
	}
	return nil
}

// WarmUp visits the retailer homepage and idles there briefly so the target
// page is not the first request of the session.
func (s *Simulator) WarmUp(ctx context.Context, page browser.Page, homepageURL string) error {
	if homepageURL == "" {
		return ctx.Err()
	}

	if err := page.Goto(homepageURL, s.timeout); err != nil {
		s.logger.Debug("warm-up navigation failed", "url", homepageURL, "error", err)
		return ctx.Err()
	}
	if err := s.pause(ctx, 2*time.Second, 4*time.Second); err != nil {
		return err
	}
	if err := s.ScrollRandom(ctx, page); err != nil {
		return err
	}
	if err := s.moveRandom(ctx, page); err != nil {
		return err
	}
	return s.pause(ctx, 500*time.Millisecond, 1500*time.Millisecond)
}

// SimulateBehavior is the in-page routine run before extraction: an initial
// pause, two to four cursor moves, then a scroll down and partially back up.
func (s *Simulator) SimulateBehavior(ctx context.Context, page browser.Page) error {
	if err := s.pause(ctx, time.Second, 3*time.Second); err != nil {
		return err
	}

	moves := 2 + s.intN(3)
	for i := 0; i < moves; i++ {
		if err := s.moveRandom(ctx, page); err != nil {
			return err
		}
		if err := s.pause(ctx, 200*time.Millisecond, 700*time.Millisecond); err != nil {
			return err
		}
	}

	down := float64(300 + s.intN(401))
	if err := page.MouseWheel(0, down); err != nil {
		s.logger.Debug("scroll failed", "error", err)
		return ctx.Err()
	}
	if err := s.pause(ctx, 500*time.Millisecond, 1500*time.Millisecond); err != nil {
		return err
	}

	up := down * (0.3 + float64(s.intN(31))/100)
	if err := page.MouseWheel(0, -up); err != nil {
		s.logger.Debug("scroll failed", "error", err)
		return ctx.Err()
	}
	return s.pause(ctx, 300*time.Millisecond, 800*time.Millisecond)
}

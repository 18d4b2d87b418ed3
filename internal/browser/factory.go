package browser

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"os"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/playwright-community/playwright-go"

	"github.com/maltedev/sku-scraper/internal/lifecycle"
	"github.com/maltedev/sku-scraper/internal/models"
)

// Mode selects how a session obtains its browser.
type Mode string

const (
	// ModeFresh launches a new isolated browser with a sampled profile.
	ModeFresh Mode = "fresh"
	// ModeAttach connects to an already running browser over CDP.
	ModeAttach Mode = "attach"
	// ModePersistent launches a browser on an on-disk profile directory.
	ModePersistent Mode = "persistent"
)

// ParseMode validates a mode name.
func ParseMode(s string) (Mode, error) {
	switch m := Mode(s); m {
	case ModeFresh, ModeAttach, ModePersistent:
		return m, nil
	}
	return "", fmt.Errorf("unknown session mode %q", s)
}

// ErrSessionCreation is wrapped by every failure to launch or attach a browser.
var ErrSessionCreation = errors.New("session creation failed")

// SessionError describes a failed session creation.
type SessionError struct {
	Mode Mode
	Err  error
}

func (e *SessionError) Error() string {
	return fmt.Sprintf("create %s session: %v", e.Mode, e.Err)
}

func (e *SessionError) Unwrap() []error {
	return []error{ErrSessionCreation, e.Err}
}

type Options struct {
	Mode        Mode
	Headless    bool
	Channel     string
	CDPEndpoint string
	ProfileDir  string
	ProxyServer string
	// Timeout bounds every page operation that waits.
	Timeout      time.Duration
	ExtraHeaders map[string]string
	Profiles     []models.DeviceProfile
}

func DefaultOptions() *Options {
	return &Options{
		Mode:     ModeFresh,
		Headless: true,
		Timeout:  30 * time.Second,
		ExtraHeaders: map[string]string{
			"Accept":          "text/html,application/xhtml+xml,application/xml;q=0.9,image/webp,*/*;q=0.8",
			"Accept-Encoding": "gzip, deflate, br",
			"DNT":             "1",
		},
	}
}

var launchArgs = []string{
	"--disable-blink-features=AutomationControlled",
	"--disable-dev-shm-usage",
	"--no-sandbox",
	"--disable-setuid-sandbox",
	"--no-first-run",
	"--disable-default-apps",
}

// Factory creates playwright-backed sessions. One Factory owns the playwright
// driver process; every session it hands out is registered with the
// lifecycle coordinator until closed.
type Factory struct {
	pw     *playwright.Playwright
	opts   Options
	coord  *lifecycle.Coordinator
	logger *slog.Logger

	mu  sync.Mutex
	rng *rand.Rand
}

// NewFactory starts the playwright driver.
func NewFactory(opts *Options, coord *lifecycle.Coordinator, logger *slog.Logger) (*Factory, error) {
	if opts == nil {
		opts = DefaultOptions()
	}
	if logger == nil {
		logger = slog.Default()
	}
	if coord == nil {
		coord = lifecycle.New(logger)
	}

	pw, err := playwright.Run()
	if err != nil {
		return nil, &SessionError{Mode: opts.Mode, Err: fmt.Errorf("failed to start playwright: %w", err)}
	}

	f := &Factory{
		pw:     pw,
		opts:   *opts,
		coord:  coord,
		logger: logger.With("component", "session_factory"),
		rng:    rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64())),
	}
	coord.Register("playwright", pw.Stop)

	return f, nil
}

// WithMode returns a factory sharing the driver but creating sessions in
// another mode. Retailer classes use this to pick their own strategy.
func (f *Factory) WithMode(mode Mode, headless bool) *Factory {
	opts := f.opts
	opts.Mode = mode
	opts.Headless = headless
	return &Factory{
		pw:     f.pw,
		opts:   opts,
		coord:  f.coord,
		logger: f.logger,
		rng:    rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64())),
	}
}

func (f *Factory) sampleProfile() models.DeviceProfile {
	f.mu.Lock()
	defer f.mu.Unlock()
	return SampleProfile(f.opts.Profiles, f.rng)
}

// NewSession opens a session according to the configured mode. The stealth
// init script is installed on the browser context before any page exists.
func (f *Factory) NewSession(ctx context.Context) (Session, error) {
	if err := ctx.Err(); err != nil {
		return nil, &SessionError{Mode: f.opts.Mode, Err: err}
	}

	s := &pwSession{
		id:      uuid.NewString(),
		timeout: f.opts.Timeout,
	}

	var err error
	switch f.opts.Mode {
	case ModeAttach:
		err = f.attach(s)
	case ModePersistent:
		err = f.launchPersistent(s)
	default:
		err = f.launchFresh(s)
	}
	if err != nil {
		s.teardown()
		return nil, &SessionError{Mode: f.opts.Mode, Err: err}
	}

	if err := s.installStealth(StealthScript(s.profile)); err != nil {
		s.teardown()
		return nil, &SessionError{Mode: f.opts.Mode, Err: fmt.Errorf("failed to add stealth script: %w", err)}
	}

	s.release = f.coord.Register("session "+s.id, s.teardown)
	f.logger.Debug("session opened", "session_id", s.id, "mode", f.opts.Mode, "profile", s.profile.Name)

	return s, nil
}

func (f *Factory) launchOptions() playwright.BrowserTypeLaunchOptions {
	opts := playwright.BrowserTypeLaunchOptions{
		Headless: playwright.Bool(f.opts.Headless),
		Args:     launchArgs,
	}
	if f.opts.Channel != "" {
		opts.Channel = playwright.String(f.opts.Channel)
	}
	if f.opts.ProxyServer != "" {
		opts.Proxy = &playwright.Proxy{Server: f.opts.ProxyServer}
	}
	return opts
}

func (f *Factory) launchFresh(s *pwSession) error {
	s.profile = f.sampleProfile()

	b, err := f.pw.Chromium.Launch(f.launchOptions())
	if err != nil {
		return fmt.Errorf("failed to launch browser: %w", err)
	}
	s.browser = b
	s.ownsBrowser = true

	p := s.profile
	bctx, err := b.NewContext(playwright.BrowserNewContextOptions{
		UserAgent:         playwright.String(p.UserAgent),
		Viewport:          &playwright.Size{Width: p.Viewport.Width, Height: p.Viewport.Height},
		DeviceScaleFactor: playwright.Float(p.DeviceScaleFactor),
		IsMobile:          playwright.Bool(p.IsMobile),
		HasTouch:          playwright.Bool(p.HasTouch),
		Locale:            playwright.String(p.Locale),
		TimezoneId:        playwright.String(p.TimezoneID),
		AcceptDownloads:   playwright.Bool(false),
		JavaScriptEnabled: playwright.Bool(true),
		ExtraHttpHeaders:  f.opts.ExtraHeaders,
	})
	if err != nil {
		return fmt.Errorf("failed to create browser context: %w", err)
	}
	s.context = bctx
	s.ownsContext = true
	return nil
}

func (f *Factory) attach(s *pwSession) error {
	if f.opts.CDPEndpoint == "" {
		return errors.New("no CDP endpoint configured")
	}
	s.profile = models.InheritedProfile

	b, err := f.pw.Chromium.ConnectOverCDP(f.opts.CDPEndpoint)
	if err != nil {
		return fmt.Errorf("failed to connect over CDP: %w", err)
	}
	// Closing a CDP-connected browser only disconnects from it.
	s.browser = b
	s.ownsBrowser = true

	if contexts := b.Contexts(); len(contexts) > 0 {
		s.context = contexts[0]
		return nil
	}

	bctx, err := b.NewContext()
	if err != nil {
		return fmt.Errorf("failed to create browser context: %w", err)
	}
	s.context = bctx
	s.ownsContext = true
	return nil
}

func (f *Factory) launchPersistent(s *pwSession) error {
	if f.opts.ProfileDir == "" {
		return errors.New("no profile directory configured")
	}
	if err := os.MkdirAll(f.opts.ProfileDir, 0o755); err != nil {
		return fmt.Errorf("failed to create profile directory: %w", err)
	}
	s.profile = f.sampleProfile()
	p := s.profile

	opts := playwright.BrowserTypeLaunchPersistentContextOptions{
		Headless:          playwright.Bool(f.opts.Headless),
		Args:              launchArgs,
		UserAgent:         playwright.String(p.UserAgent),
		Viewport:          &playwright.Size{Width: p.Viewport.Width, Height: p.Viewport.Height},
		DeviceScaleFactor: playwright.Float(p.DeviceScaleFactor),
		IsMobile:          playwright.Bool(p.IsMobile),
		HasTouch:          playwright.Bool(p.HasTouch),
		Locale:            playwright.String(p.Locale),
		TimezoneId:        playwright.String(p.TimezoneID),
		ExtraHttpHeaders:  f.opts.ExtraHeaders,
	}
	if f.opts.Channel != "" {
		opts.Channel = playwright.String(f.opts.Channel)
	}

	bctx, err := f.pw.Chromium.LaunchPersistentContext(f.opts.ProfileDir, opts)
	if err != nil {
		return fmt.Errorf("failed to launch persistent context: %w", err)
	}
	s.context = bctx
	s.ownsContext = true
	return nil
}

type pwSession struct {
	id      string
	profile models.DeviceProfile
	timeout time.Duration

	browser     playwright.Browser
	context     playwright.BrowserContext
	ownsBrowser bool
	ownsContext bool

	// stealth is added to each new page when the context is not ours.
	stealth string

	mu      sync.Mutex
	pages   []playwright.Page
	release func() error
}

// installStealth puts the init script on a context this session owns. An
// attached browser's context is shared and outlives the session, so there
// the script goes on every page the session opens instead.
func (s *pwSession) installStealth(script string) error {
	if !s.ownsContext {
		s.stealth = script
		return nil
	}
	return s.context.AddInitScript(playwright.Script{Content: playwright.String(script)})
}

func (s *pwSession) ID() string                    { return s.id }
func (s *pwSession) Profile() models.DeviceProfile { return s.profile }

func (s *pwSession) NewPage() (Page, error) {
	page, err := s.context.NewPage()
	if err != nil {
		return nil, fmt.Errorf("failed to create new page: %w", err)
	}
	page.SetDefaultTimeout(float64(s.timeout.Milliseconds()))

	if s.stealth != "" {
		if err := page.AddInitScript(playwright.Script{Content: playwright.String(s.stealth)}); err != nil {
			page.Close()
			return nil, fmt.Errorf("failed to add stealth script: %w", err)
		}
	}

	s.mu.Lock()
	s.pages = append(s.pages, page)
	s.mu.Unlock()

	return &pwPage{page: page}, nil
}

// Close releases the session through the coordinator, so the teardown runs
// exactly once even when shutdown races with the owning task.
func (s *pwSession) Close() error {
	if s.release == nil {
		return s.teardown()
	}
	return s.release()
}

func (s *pwSession) teardown() error {
	var errs []error

	s.mu.Lock()
	pages := s.pages
	s.pages = nil
	s.mu.Unlock()

	// Pages first: on an attached browser the context is not ours to close.
	for _, p := range pages {
		if err := p.Close(); err != nil && !p.IsClosed() {
			errs = append(errs, fmt.Errorf("failed to close page: %w", err))
		}
	}

	if s.context != nil && s.ownsContext {
		if err := s.context.Close(); err != nil {
			errs = append(errs, fmt.Errorf("failed to close context: %w", err))
		}
	}

	if s.browser != nil && s.ownsBrowser {
		if err := s.browser.Close(); err != nil {
			errs = append(errs, fmt.Errorf("failed to close browser: %w", err))
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("errors during close: %w", errors.Join(errs...))
	}
	return nil
}

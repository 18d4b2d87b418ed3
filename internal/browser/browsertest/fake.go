// Package browsertest provides in-memory browser fakes for tests.
package browsertest

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/maltedev/sku-scraper/internal/browser"
	"github.com/maltedev/sku-scraper/internal/models"
)

// PageState describes what a fake page shows after navigation.
type PageState struct {
	URL      string
	Title    string
	Body     string
	HTML     string
	Elements map[string]string
}

// Page is a scriptable browser.Page. Zero value is an empty page.
type Page struct {
	mu sync.Mutex

	State PageState
	// States maps a navigated URL to the state it shows.
	States map[string]PageState

	// Errors injected per operation name ("goto", "title", "has", "text", "body", "content", "mouse", "wheel", "type", "click", "wait").
	Errors map[string]error
	// Panics makes the listed operations panic.
	Panics map[string]bool
	// GotoDelay is slept inside Goto.
	GotoDelay time.Duration

	Visited    []string
	MouseMoves int
	Wheels     []float64
	Typed      []string
	Clicked    []string
	Closed     bool
}

// NewPage creates a page that already shows state.
func NewPage(state PageState) *Page {
	return &Page{State: state}
}

func (p *Page) fail(op string) error {
	if p.Panics[op] {
		panic(fmt.Sprintf("browsertest: %s panicked", op))
	}
	return p.Errors[op]
}

func (p *Page) Goto(url string, timeout time.Duration) error {
	p.mu.Lock()
	delay := p.GotoDelay
	p.mu.Unlock()
	if delay > 0 {
		time.Sleep(delay)
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if err := p.fail("goto"); err != nil {
		return err
	}
	p.Visited = append(p.Visited, url)
	if s, ok := p.States[url]; ok {
		p.State = s
	} else {
		p.State = PageState{URL: url}
	}
	if p.State.URL == "" {
		p.State.URL = url
	}
	return nil
}

func (p *Page) URL() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.Panics["url"] {
		panic("browsertest: url panicked")
	}
	return p.State.URL
}

func (p *Page) Title() (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if err := p.fail("title"); err != nil {
		return "", err
	}
	return p.State.Title, nil
}

func (p *Page) Has(selector string) (bool, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if err := p.fail("has"); err != nil {
		return false, err
	}
	_, ok := p.State.Elements[selector]
	return ok, nil
}

func (p *Page) TextContent(selector string) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if err := p.fail("text"); err != nil {
		return "", err
	}
	text, ok := p.State.Elements[selector]
	if !ok {
		return "", browser.ErrElementNotFound
	}
	return text, nil
}

func (p *Page) WaitForSelector(selector string, timeout time.Duration) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if err := p.fail("wait"); err != nil {
		return err
	}
	if _, ok := p.State.Elements[selector]; !ok {
		return browser.ErrElementNotFound
	}
	return nil
}

func (p *Page) BodyText() (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if err := p.fail("body"); err != nil {
		return "", err
	}
	return p.State.Body, nil
}

func (p *Page) Content() (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if err := p.fail("content"); err != nil {
		return "", err
	}
	return p.State.HTML, nil
}

func (p *Page) Click(selector string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if err := p.fail("click"); err != nil {
		return err
	}
	if _, ok := p.State.Elements[selector]; !ok {
		return browser.ErrElementNotFound
	}
	p.Clicked = append(p.Clicked, selector)
	if next, ok := p.States["click:"+selector]; ok {
		p.State = next
	}
	return nil
}

func (p *Page) MouseMove(x, y float64) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if err := p.fail("mouse"); err != nil {
		return err
	}
	p.MouseMoves++
	return nil
}

func (p *Page) MouseWheel(dx, dy float64) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if err := p.fail("wheel"); err != nil {
		return err
	}
	p.Wheels = append(p.Wheels, dy)
	return nil
}

func (p *Page) Type(text string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if err := p.fail("type"); err != nil {
		return err
	}
	p.Typed = append(p.Typed, text)
	return nil
}

func (p *Page) ViewportSize() (int, int) {
	return 1280, 720
}

func (p *Page) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.Closed = true
	return nil
}

// Session is a fake browser.Session that counts how often it is closed.
type Session struct {
	id      string
	profile models.DeviceProfile
	factory *Factory

	mu     sync.Mutex
	pages  []*Page
	closes int
}

func (s *Session) ID() string                    { return s.id }
func (s *Session) Profile() models.DeviceProfile { return s.profile }

func (s *Session) NewPage() (browser.Page, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.factory.PageErr != nil {
		return nil, s.factory.PageErr
	}
	p := s.factory.NewPageFunc(s)
	s.pages = append(s.pages, p)
	return p, nil
}

func (s *Session) Close() error {
	s.mu.Lock()
	s.closes++
	first := s.closes == 1
	s.mu.Unlock()

	if first {
		s.factory.open.Add(-1)
	}
	return nil
}

// Closes returns how many times Close was called.
func (s *Session) Closes() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closes
}

// Pages returns the pages the session opened.
func (s *Session) Pages() []*Page {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]*Page(nil), s.pages...)
}

// Factory is a fake browser.SessionFactory that tracks concurrently open sessions.
type Factory struct {
	// NewPageFunc builds the page handed to a session; defaults to an empty page.
	NewPageFunc func(s *Session) *Page
	// CreateErr fails every NewSession call.
	CreateErr error
	// PageErr fails every NewPage call.
	PageErr error
	Profile models.DeviceProfile

	open    atomic.Int64
	maxOpen atomic.Int64
	seq     atomic.Int64

	mu       sync.Mutex
	sessions []*Session
}

// NewFactory returns a factory whose sessions hand out pages built by newPage.
func NewFactory(newPage func(s *Session) *Page) *Factory {
	if newPage == nil {
		newPage = func(*Session) *Page { return &Page{} }
	}
	return &Factory{NewPageFunc: newPage, Profile: browser.DefaultProfile()}
}

func (f *Factory) NewSession(ctx context.Context) (browser.Session, error) {
	if err := ctx.Err(); err != nil {
		return nil, &browser.SessionError{Mode: browser.ModeFresh, Err: err}
	}
	if f.CreateErr != nil {
		return nil, &browser.SessionError{Mode: browser.ModeFresh, Err: f.CreateErr}
	}

	s := &Session{
		id:      fmt.Sprintf("fake-%d", f.seq.Add(1)),
		profile: f.Profile,
		factory: f,
	}

	n := f.open.Add(1)
	for {
		cur := f.maxOpen.Load()
		if n <= cur || f.maxOpen.CompareAndSwap(cur, n) {
			break
		}
	}

	f.mu.Lock()
	f.sessions = append(f.sessions, s)
	f.mu.Unlock()
	return s, nil
}

// Open returns the number of sessions currently open.
func (f *Factory) Open() int64 { return f.open.Load() }

// MaxOpen returns the highest number of simultaneously open sessions seen.
func (f *Factory) MaxOpen() int64 { return f.maxOpen.Load() }

// Sessions returns every session created so far.
func (f *Factory) Sessions() []*Session {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]*Session(nil), f.sessions...)
}

// ErrInjected is a generic failure for fault injection.
var ErrInjected = errors.New("injected failure")

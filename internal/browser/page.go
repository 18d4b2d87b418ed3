package browser

import (
	"context"
	"errors"
	"time"

	"github.com/maltedev/sku-scraper/internal/models"
)

var (
	// ErrElementNotFound is returned by Page lookups when no element matches.
	ErrElementNotFound = errors.New("element not found")
	// ErrNavigationTimeout is returned when a page does not reach its load state in time.
	ErrNavigationTimeout = errors.New("navigation timed out")
)

// Page is the subset of a browser tab the scraper drives. Implementations
// must not wait on lookups: a missing element is reported immediately.
type Page interface {
	Goto(url string, timeout time.Duration) error
	URL() string
	Title() (string, error)
	Has(selector string) (bool, error)
	TextContent(selector string) (string, error)
	WaitForSelector(selector string, timeout time.Duration) error
	BodyText() (string, error)
	Content() (string, error)
	Click(selector string) error
	MouseMove(x, y float64) error
	MouseWheel(dx, dy float64) error
	Type(text string) error
	ViewportSize() (width, height int)
	Close() error
}

// Session is an isolated browsing context bound to one device profile. It is
// owned by a single task attempt and must be closed by it.
type Session interface {
	ID() string
	Profile() models.DeviceProfile
	NewPage() (Page, error)
	Close() error
}

// SessionFactory creates sessions.
type SessionFactory interface {
	NewSession(ctx context.Context) (Session, error)
}

package browser

import (
	"errors"
	"fmt"
	"time"

	"github.com/playwright-community/playwright-go"
)

// pwPage adapts a playwright page to Page.
type pwPage struct {
	page playwright.Page
}

// WrapPage exposes an existing playwright page as a Page.
func WrapPage(page playwright.Page) Page {
	return &pwPage{page: page}
}

func (p *pwPage) Goto(url string, timeout time.Duration) error {
	_, err := p.page.Goto(url, playwright.PageGotoOptions{
		WaitUntil: playwright.WaitUntilStateDomcontentloaded,
		Timeout:   playwright.Float(float64(timeout.Milliseconds())),
	})
	if err != nil {
		if errors.Is(err, playwright.ErrTimeout) {
			return fmt.Errorf("%w: %s", ErrNavigationTimeout, url)
		}
		return fmt.Errorf("failed to navigate to %s: %w", url, err)
	}
	return nil
}

func (p *pwPage) URL() string {
	return p.page.URL()
}

func (p *pwPage) Title() (string, error) {
	return p.page.Title()
}

func (p *pwPage) Has(selector string) (bool, error) {
	count, err := p.page.Locator(selector).Count()
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

func (p *pwPage) TextContent(selector string) (string, error) {
	loc := p.page.Locator(selector).First()

	// Count does not wait, TextContent would block until the default timeout.
	count, err := loc.Count()
	if err != nil {
		return "", err
	}
	if count == 0 {
		return "", ErrElementNotFound
	}

	return loc.TextContent()
}

func (p *pwPage) WaitForSelector(selector string, timeout time.Duration) error {
	_, err := p.page.WaitForSelector(selector, playwright.PageWaitForSelectorOptions{
		Timeout: playwright.Float(float64(timeout.Milliseconds())),
	})
	if errors.Is(err, playwright.ErrTimeout) {
		return ErrElementNotFound
	}
	return err
}

func (p *pwPage) BodyText() (string, error) {
	return p.page.Locator("body").InnerText(playwright.LocatorInnerTextOptions{
		Timeout: playwright.Float(5000),
	})
}

func (p *pwPage) Content() (string, error) {
	return p.page.Content()
}

func (p *pwPage) Click(selector string) error {
	loc := p.page.Locator(selector).First()
	count, err := loc.Count()
	if err != nil {
		return err
	}
	if count == 0 {
		return ErrElementNotFound
	}
	return loc.Click(playwright.LocatorClickOptions{
		Timeout: playwright.Float(5000),
	})
}

func (p *pwPage) MouseMove(x, y float64) error {
	return p.page.Mouse().Move(x, y)
}

func (p *pwPage) MouseWheel(dx, dy float64) error {
	return p.page.Mouse().Wheel(dx, dy)
}

func (p *pwPage) Type(text string) error {
	return p.page.Keyboard().Type(text)
}

func (p *pwPage) ViewportSize() (int, int) {
	if size := p.page.ViewportSize(); size != nil {
		return size.Width, size.Height
	}
	return 1280, 720
}

func (p *pwPage) Close() error {
	if p.page.IsClosed() {
		return nil
	}
	return p.page.Close()
}

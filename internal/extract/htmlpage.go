package extract

import (
	"time"

	"github.com/maltedev/sku-scraper/internal/browser"
)

var _ browser.Page = (*HTMLPage)(nil)

func (p *HTMLPage) Goto(string, time.Duration) error  { return nil }
func (p *HTMLPage) URL() string                       { return p.url }
func (p *HTMLPage) Title() (string, error)            { return p.title, nil }
func (p *HTMLPage) BodyText() (string, error)         { return p.body, nil }
func (p *HTMLPage) Content() (string, error)          { return p.html, nil }
func (p *HTMLPage) MouseMove(float64, float64) error  { return nil }
func (p *HTMLPage) MouseWheel(float64, float64) error { return nil }
func (p *HTMLPage) Type(string) error                 { return nil }
func (p *HTMLPage) ViewportSize() (int, int)          { return 1280, 720 }
func (p *HTMLPage) Close() error                      { return nil }
func (p *HTMLPage) Click(string) error                { return browser.ErrElementNotFound }

func (p *HTMLPage) Has(selector string) (bool, error) {
	if p.doc == nil {
		return false, nil
	}
	return p.doc.Find(selector).Length() > 0, nil
}

func (p *HTMLPage) TextContent(selector string) (string, error) {
	if p.doc == nil {
		return "", browser.ErrElementNotFound
	}
	sel := p.doc.Find(selector).First()
	if sel.Length() == 0 {
		return "", browser.ErrElementNotFound
	}
	return sel.Text(), nil
}

func (p *HTMLPage) WaitForSelector(selector string, _ time.Duration) error {
	if ok, _ := p.Has(selector); !ok {
		return browser.ErrElementNotFound
	}
	return nil
}

package extract

import (
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// ExtractHTML applies the same structured-first strategy to a fetched
// document. Selectors that goquery cannot compile simply miss.
func ExtractHTML(html string, specs []FieldSpec) map[string]*string {
	out := make(map[string]*string, len(specs))
	for _, spec := range specs {
		out[spec.Name] = nil
	}

	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return out
	}

	structured := structuredFromDoc(doc)
	for _, spec := range specs {
		if v := structured[spec.Name]; v != nil {
			out[spec.Name] = v
			continue
		}
		for _, sel := range spec.Selectors {
			sel := doc.Find(sel).First()
			if sel.Length() == 0 {
				continue
			}
			if v := clean(sel.Text(), spec.Clean); v != "" {
				out[spec.Name] = &v
				break
			}
		}
	}
	return out
}

// HTMLPage exposes a fetched document through the parts of browser.Page the
// block detector reads. Interaction methods are no-ops.
type HTMLPage struct {
	url   string
	title string
	body  string
	html  string
	doc   *goquery.Document
}

func NewHTMLPage(url, html string) *HTMLPage {
	p := &HTMLPage{url: url, html: html}
	if doc, err := goquery.NewDocumentFromReader(strings.NewReader(html)); err == nil {
		p.doc = doc
		p.title = strings.TrimSpace(doc.Find("title").First().Text())
		p.body = doc.Find("body").Text()
	}
	return p
}

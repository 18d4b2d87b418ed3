// Package extract pulls product fields out of a page, either from embedded
// structured data or from an ordered list of DOM selectors per field.
package extract

import (
	"log/slog"
	"strings"

	"github.com/maltedev/sku-scraper/internal/browser"
)

// Clean modes applied to matched text after trimming.
const (
	CleanNone        = ""
	CleanStripParens = "strip-parens"
	CleanFirstLine   = "first-line"
)

type FieldSpec struct {
	Name      string   `yaml:"name"`
	Selectors []string `yaml:"selectors"`
	Clean     string   `yaml:"clean,omitempty"`
}

func clean(text, mode string) string {
	text = strings.TrimSpace(text)
	switch mode {
	case CleanStripParens:
		text = strings.NewReplacer("(", "", ")", "").Replace(text)
	case CleanFirstLine:
		for _, line := range strings.Split(text, "\n") {
			if line = strings.TrimSpace(line); line != "" {
				return line
			}
		}
		return ""
	}
	return strings.TrimSpace(text)
}

// Extractor is retailer-agnostic; everything it knows about a layout comes
// from the field specs it is given.
type Extractor struct {
	logger *slog.Logger
}

func New(logger *slog.Logger) *Extractor {
	if logger == nil {
		logger = slog.Default()
	}
	return &Extractor{logger: logger.With("component", "field_extractor")}
}

// Fields resolves every spec against the page. A field whose selectors all
// miss, or only match empty text, maps to nil.
func (e *Extractor) Fields(page browser.Page, specs []FieldSpec) map[string]*string {
	out := make(map[string]*string, len(specs))
	for _, spec := range specs {
		out[spec.Name] = e.field(page, spec)
	}
	return out
}

func (e *Extractor) field(page browser.Page, spec FieldSpec) *string {
	for _, sel := range spec.Selectors {
		text, ok := e.text(page, sel)
		if !ok {
			continue
		}
		if v := clean(text, spec.Clean); v != "" {
			return &v
		}
	}
	e.logger.Debug("field not found", "field", spec.Name)
	return nil
}

func (e *Extractor) text(page browser.Page, selector string) (text string, ok bool) {
	defer func() {
		if r := recover(); r != nil {
			e.logger.Debug("selector lookup panicked", "selector", selector, "panic", r)
			text, ok = "", false
		}
	}()

	text, err := page.TextContent(selector)
	if err != nil {
		return "", false
	}
	return text, true
}

// Page runs the structured-data path first and lets DOM selectors fill the
// fields it could not provide.
func (e *Extractor) Page(page browser.Page, specs []FieldSpec) map[string]*string {
	var structured map[string]*string
	if html, err := page.Content(); err == nil {
		structured = Structured(html)
	} else {
		e.logger.Debug("failed to read page content", "error", err)
	}

	var missing []FieldSpec
	out := make(map[string]*string, len(specs))
	for _, spec := range specs {
		if v := structured[spec.Name]; v != nil {
			out[spec.Name] = v
			continue
		}
		missing = append(missing, spec)
	}

	for name, v := range e.Fields(page, missing) {
		out[name] = v
	}
	return out
}

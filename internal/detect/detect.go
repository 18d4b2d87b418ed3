// Package detect classifies a loaded page as a bot challenge or a usable page.
package detect

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"
	"unicode"

	"github.com/maltedev/sku-scraper/internal/browser"
	"github.com/maltedev/sku-scraper/internal/ratelimit"
)

// Markers are the patterns the detector looks for. They are retailer-agnostic;
// markers of every configured retailer are merged into one set.
type Markers struct {
	CaptchaURL       []string `yaml:"captcha_url"`
	CaptchaSelectors []string `yaml:"captcha_selectors"`
	CaptchaWidgetIDs []string `yaml:"captcha_widget_ids"`
	BlockedWord      string   `yaml:"blocked_word"`
	TitlePhrases     []string `yaml:"title_phrases"`
	StatusMarkers    []string `yaml:"status_markers"`
	TrafficPhrases   []string `yaml:"traffic_phrases"`
}

// Merge returns the union of m and other. The blocked word of m wins.
func (m Markers) Merge(other Markers) Markers {
	out := Markers{
		CaptchaURL:       union(m.CaptchaURL, other.CaptchaURL),
		CaptchaSelectors: union(m.CaptchaSelectors, other.CaptchaSelectors),
		CaptchaWidgetIDs: union(m.CaptchaWidgetIDs, other.CaptchaWidgetIDs),
		BlockedWord:      m.BlockedWord,
		TitlePhrases:     union(m.TitlePhrases, other.TitlePhrases),
		StatusMarkers:    union(m.StatusMarkers, other.StatusMarkers),
		TrafficPhrases:   union(m.TrafficPhrases, other.TrafficPhrases),
	}
	if out.BlockedWord == "" {
		out.BlockedWord = other.BlockedWord
	}
	return out
}

func union(a, b []string) []string {
	seen := make(map[string]bool, len(a)+len(b))
	var out []string
	for _, s := range append(append([]string(nil), a...), b...) {
		if s == "" || seen[s] {
			continue
		}
		seen[s] = true
		out = append(out, s)
	}
	return out
}

func DefaultMarkers() Markers {
	return Markers{
		CaptchaURL:       []string{"/errors/validatecaptcha", "/captcha", "/blocked?"},
		CaptchaSelectors: []string{`form[action*="validateCaptcha"]`, "#captchacharacters", `iframe[src*="captcha"]`},
		CaptchaWidgetIDs: []string{"px-captcha", "g-recaptcha", "cf-challenge-running"},
		BlockedWord:      "blocked",
		TitlePhrases:     []string{"robot check", "access denied", "robot or human", "are you a human"},
		StatusMarkers: []string{
			"403 forbidden", "error 403", "http 403",
			"429 too many requests", "error 429", "http 429",
			"503 service unavailable", "error 503", "http 503",
		},
		TrafficPhrases: []string{
			"automated access",
			"unusual traffic",
			"to discuss automated access",
			"verify you are a human",
			"activate and hold the button",
		},
	}
}

type Verdict struct {
	Blocked bool
	Reason  string
}

type check struct {
	name string
	run  func(browser.Page) (string, bool)
}

type Detector struct {
	markers Markers
	checks  []check
	logger  *slog.Logger
}

func New(markers Markers, logger *slog.Logger) *Detector {
	if logger == nil {
		logger = slog.Default()
	}
	d := &Detector{
		markers: lower(markers),
		logger:  logger.With("component", "block_detector"),
	}
	d.checks = []check{
		{"captcha_url", d.captchaURL},
		{"captcha_form", d.captchaForm},
		{"captcha_widget", d.captchaWidget},
		{"blocked_word", d.blockedWord},
		{"title_phrase", d.titlePhrase},
		{"status_marker", d.statusMarker},
		{"traffic_phrase", d.trafficPhrase},
	}
	return d
}

func lower(m Markers) Markers {
	low := func(in []string) []string {
		out := make([]string, len(in))
		for i, s := range in {
			out[i] = strings.ToLower(s)
		}
		return out
	}
	m.CaptchaURL = low(m.CaptchaURL)
	m.BlockedWord = strings.ToLower(m.BlockedWord)
	m.TitlePhrases = low(m.TitlePhrases)
	status := make([]string, len(m.StatusMarkers))
	for i, sm := range m.StatusMarkers {
		status[i] = words(sm)
	}
	m.StatusMarkers = status
	m.TrafficPhrases = low(m.TrafficPhrases)
	return m
}

// Detect runs the checks in order and stops at the first match. A check that
// fails or panics counts as not matching, so Detect always returns a verdict.
func (d *Detector) Detect(page browser.Page) Verdict {
	for _, c := range d.checks {
		if reason, ok := d.safeRun(c, page); ok {
			return Verdict{Blocked: true, Reason: reason}
		}
	}
	return Verdict{}
}

func (d *Detector) safeRun(c check, page browser.Page) (reason string, matched bool) {
	defer func() {
		if r := recover(); r != nil {
			d.logger.Debug("check panicked", "check", c.name, "panic", r)
			reason, matched = "", false
		}
	}()
	return c.run(page)
}

func (d *Detector) captchaURL(page browser.Page) (string, bool) {
	url := strings.ToLower(page.URL())
	for _, m := range d.markers.CaptchaURL {
		if strings.Contains(url, m) {
			return fmt.Sprintf("captcha URL detected (%s)", m), true
		}
	}
	return "", false
}

func (d *Detector) captchaForm(page browser.Page) (string, bool) {
	for _, sel := range d.markers.CaptchaSelectors {
		if ok, err := page.Has(sel); err == nil && ok {
			return fmt.Sprintf("captcha element present (%s)", sel), true
		}
	}
	return "", false
}

func (d *Detector) captchaWidget(page browser.Page) (string, bool) {
	for _, id := range d.markers.CaptchaWidgetIDs {
		if ok, err := page.Has("#" + id); err == nil && ok {
			return fmt.Sprintf("captcha widget present (#%s)", id), true
		}
	}
	return "", false
}

func (d *Detector) blockedWord(page browser.Page) (string, bool) {
	word := d.markers.BlockedWord
	if word == "" {
		return "", false
	}
	if strings.Contains(strings.ToLower(page.URL()), word) {
		return fmt.Sprintf("URL contains %q", word), true
	}
	title, err := page.Title()
	if err == nil && strings.Contains(strings.ToLower(title), word) {
		return fmt.Sprintf("title contains %q", word), true
	}
	return "", false
}

func (d *Detector) titlePhrase(page browser.Page) (string, bool) {
	title, err := page.Title()
	if err != nil {
		return "", false
	}
	title = strings.ToLower(title)
	for _, p := range d.markers.TitlePhrases {
		if strings.Contains(title, p) {
			return fmt.Sprintf("block page title (%s)", p), true
		}
	}
	return "", false
}

func (d *Detector) statusMarker(page browser.Page) (string, bool) {
	title, err := page.Title()
	if err != nil {
		return "", false
	}
	padded := " " + words(title) + " "
	for _, m := range d.markers.StatusMarkers {
		if m != "" && strings.Contains(padded, " "+m+" ") {
			return fmt.Sprintf("HTTP error status in title (%s)", m), true
		}
	}
	return "", false
}

// words lowercases s and reduces it to single-space separated alphanumeric
// words, so "503 - Service Unavailable" reads "503 service unavailable".
func words(s string) string {
	return strings.Join(strings.FieldsFunc(strings.ToLower(s), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	}), " ")
}

func (d *Detector) trafficPhrase(page browser.Page) (string, bool) {
	body, err := page.BodyText()
	if err != nil {
		return "", false
	}
	body = strings.ToLower(body)
	for _, p := range d.markers.TrafficPhrases {
		if strings.Contains(body, p) {
			return fmt.Sprintf("automated traffic warning (%s)", p), true
		}
	}
	return "", false
}

// Bypass tries to get past a soft interstitial by clicking the first present
// "continue shopping" button, then detects again. It never solves a captcha.
func (d *Detector) Bypass(ctx context.Context, page browser.Page, buttons []string, settle time.Duration) Verdict {
	verdict := d.Detect(page)
	if !verdict.Blocked || len(buttons) == 0 {
		return verdict
	}

	for _, sel := range buttons {
		if ok, err := page.Has(sel); err != nil || !ok {
			continue
		}

		d.logger.Info("found interstitial button", "selector", sel, "reason", verdict.Reason)
		if err := page.Click(sel); err != nil {
			d.logger.Debug("failed to click button", "selector", sel, "error", err)
			continue
		}

		if err := ratelimit.Sleep(ctx, settle); err != nil {
			return verdict
		}

		after := d.Detect(page)
		if !after.Blocked {
			d.logger.Info("interstitial bypassed", "selector", sel)
			return after
		}
		verdict = after
	}

	return verdict
}

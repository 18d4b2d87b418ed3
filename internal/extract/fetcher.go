package extract

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/gocolly/colly/v2"
)

// Response is a fetched document.
type Response struct {
	URL        string
	StatusCode int
	HTML       string
}

// Fetcher is the plain-HTTP fetch mode: no browser, no script execution.
type Fetcher struct {
	collector *colly.Collector
	headers   map[string]string
	logger    *slog.Logger
}

func NewFetcher(timeout time.Duration, headers map[string]string, logger *slog.Logger) *Fetcher {
	if logger == nil {
		logger = slog.Default()
	}

	c := colly.NewCollector(colly.AllowURLRevisit())
	c.SetRequestTimeout(timeout)
	c.IgnoreRobotsTxt = true
	// Block pages are served with 403/503; they still need to reach the detector.
	c.ParseHTTPErrorResponse = true

	return &Fetcher{
		collector: c,
		headers:   headers,
		logger:    logger.With("component", "http_fetcher"),
	}
}

// WithTransport replaces the HTTP transport, e.g. for a proxy or test double.
func (f *Fetcher) WithTransport(t http.RoundTripper) {
	f.collector.WithTransport(t)
}

// Fetch GETs url with the given user agent.
func (f *Fetcher) Fetch(ctx context.Context, url, userAgent string) (*Response, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	c := f.collector.Clone()
	c.AllowURLRevisit = true
	c.ParseHTTPErrorResponse = true
	if userAgent != "" {
		c.UserAgent = userAgent
	}

	var (
		resp     *Response
		fetchErr error
	)

	c.OnRequest(func(r *colly.Request) {
		for k, v := range f.headers {
			r.Headers.Set(k, v)
		}
		if ctx.Err() != nil {
			r.Abort()
		}
	})
	c.OnResponse(func(r *colly.Response) {
		resp = &Response{
			URL:        r.Request.URL.String(),
			StatusCode: r.StatusCode,
			HTML:       string(r.Body),
		}
	})
	c.OnError(func(r *colly.Response, err error) {
		fetchErr = err
	})

	if err := c.Visit(url); err != nil {
		return nil, fmt.Errorf("failed to fetch %s: %w", url, err)
	}
	if fetchErr != nil {
		return nil, fmt.Errorf("failed to fetch %s: %w", url, fetchErr)
	}
	if resp == nil {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		return nil, fmt.Errorf("failed to fetch %s: empty response", url)
	}

	f.logger.Debug("fetched page", "url", resp.URL, "status", resp.StatusCode, "bytes", len(resp.HTML))
	return resp, nil
}

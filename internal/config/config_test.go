package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/maltedev/sku-scraper/internal/extract"
	"github.com/maltedev/sku-scraper/internal/models"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)
	require.NoError(t, cfg.Validate())

	assert.Equal(t, "skus.json", cfg.Run.InputPath)
	assert.Equal(t, "product_data.csv", cfg.Run.OutputPath)
	assert.Equal(t, 10, cfg.Run.BatchSize)
	assert.Equal(t, 3, cfg.Run.Retries)
	assert.Equal(t, 3*time.Second, cfg.Run.BaseDelay)

	amazon := cfg.Classes[models.RetailerAmazon]
	assert.Equal(t, 2, amazon.Concurrency)
	assert.Equal(t, FetchBrowser, amazon.Fetch)

	walmart := cfg.Classes[models.RetailerWalmart]
	assert.Equal(t, 1, walmart.Concurrency)
	assert.Greater(t, walmart.DelayMin, amazon.DelayMin)
}

func TestLoad_ClassOverrides(t *testing.T) {
	t.Setenv("SCRAPER_WALMART_CONCURRENCY", "3")
	t.Setenv("SCRAPER_WALMART_MODE", "attach")
	t.Setenv("SCRAPER_WALMART_FETCH", "http")
	t.Setenv("SCRAPER_AMAZON_DELAY_MAX", "9s")
	t.Setenv("SERVER_CORS_ORIGINS", "http://a.test, http://b.test")

	cfg, err := Load()
	require.NoError(t, err)
	require.NoError(t, cfg.Validate())

	walmart := cfg.Classes[models.RetailerWalmart]
	assert.Equal(t, 3, walmart.Concurrency)
	assert.Equal(t, "attach", walmart.Mode)
	assert.Equal(t, FetchHTTP, walmart.Fetch)
	assert.Equal(t, 9*time.Second, cfg.Classes[models.RetailerAmazon].DelayMax)
	assert.Equal(t, []string{"http://a.test", "http://b.test"}, cfg.Server.CORSOrigins)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		env    map[string]string
		errMsg string
	}{
		{"batch size", map[string]string{"SCRAPER_BATCH_SIZE": "0"}, "SCRAPER_BATCH_SIZE"},
		{"cooldown range", map[string]string{"SCRAPER_COOLDOWN_MIN": "20s", "SCRAPER_COOLDOWN_MAX": "1s"}, "SCRAPER_COOLDOWN_MIN"},
		{"browser mode", map[string]string{"BROWSER_MODE": "headful"}, "BROWSER_MODE"},
		{"class concurrency", map[string]string{"SCRAPER_AMAZON_CONCURRENCY": "0"}, "SCRAPER_AMAZON_CONCURRENCY"},
		{"class fetch", map[string]string{"SCRAPER_WALMART_FETCH": "ftp"}, "SCRAPER_WALMART_FETCH"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			for k, v := range tt.env {
				t.Setenv(k, v)
			}
			cfg, err := Load()
			require.NoError(t, err)
			assert.ErrorContains(t, cfg.Validate(), tt.errMsg)
		})
	}
}

func TestLoadCatalog_Default(t *testing.T) {
	c, err := LoadCatalog("")
	require.NoError(t, err)

	assert.NotEmpty(t, c.Profiles)

	amazon, ok := c.Retailer(models.RetailerAmazon)
	require.True(t, ok)
	assert.Equal(t, "https://www.amazon.com/dp/B0TEST", amazon.URLFor("B0TEST"))
	assert.Equal(t, "#productTitle", amazon.PrimarySelector)
	assert.NotEmpty(t, amazon.BypassButtons)

	walmart, ok := c.Retailer(models.RetailerWalmart)
	require.True(t, ok)
	assert.Equal(t, "https://www.walmart.com/ip/12345", walmart.URLFor("12345"))

	var rating extract.FieldSpec
	for _, f := range walmart.Fields {
		if f.Name == models.FieldRating {
			rating = f
		}
	}
	assert.Equal(t, extract.CleanStripParens, rating.Clean)

	m := c.Markers()
	assert.Contains(t, m.CaptchaURL, "/errors/validateCaptcha")
	assert.Contains(t, m.CaptchaWidgetIDs, "px-captcha")
	assert.Equal(t, "blocked", m.BlockedWord)
}

func TestLoadCatalog_File(t *testing.T) {
	path := filepath.Join(t.TempDir(), "catalog.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
retailers:
  Amazon:
    product_url: "https://www.amazon.de/dp/{sku}"
    fields:
      - name: title
        selectors: ["#productTitle"]
`), 0o644))

	c, err := LoadCatalog(path)
	require.NoError(t, err)
	assert.Empty(t, c.Profiles)
	assert.Equal(t, "https://www.amazon.de/dp/X", c.Retailers[models.RetailerAmazon].URLFor("X"))
}

func TestParseCatalog_Invalid(t *testing.T) {
	tests := []struct {
		name string
		yaml string
	}{
		{"no retailers", "profiles: []"},
		{"missing placeholder", "retailers:\n  Amazon:\n    product_url: https://x\n    fields: [{name: title, selectors: [h1]}]"},
		{"unknown clean", "retailers:\n  Amazon:\n    product_url: https://x/{sku}\n    fields: [{name: title, selectors: [h1], clean: upper}]"},
		{"bad profile", "profiles: [{name: p}]\nretailers:\n  Amazon:\n    product_url: https://x/{sku}\n    fields: [{name: title, selectors: [h1]}]"},
		{"not yaml", "retailers: [unclosed"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseCatalog([]byte(tt.yaml))
			assert.Error(t, err)
		})
	}
}

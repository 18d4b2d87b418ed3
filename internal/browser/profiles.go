package browser

import (
	"math/rand/v2"
	"strings"

	"github.com/maltedev/sku-scraper/internal/models"
)

// SampleProfile picks a profile uniformly at random from catalog. The result
// depends only on rng, so a seeded source gives a deterministic choice.
func SampleProfile(catalog []models.DeviceProfile, rng *rand.Rand) models.DeviceProfile {
	if len(catalog) == 0 {
		return DefaultProfile()
	}
	return catalog[rng.IntN(len(catalog))]
}

// DefaultProfile is used when the catalog is empty.
func DefaultProfile() models.DeviceProfile {
	return models.DeviceProfile{
		Name:              "desktop-chrome-windows",
		UserAgent:         "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/124.0.0.0 Safari/537.36",
		Viewport:          models.Viewport{Width: 1920, Height: 1080},
		DeviceScaleFactor: 1,
		Locale:            "en-US",
		TimezoneID:        "America/New_York",
	}
}

// platformFor derives navigator.platform from a user agent string.
func platformFor(userAgent string) string {
	ua := strings.ToLower(userAgent)
	switch {
	case strings.Contains(ua, "iphone"):
		return "iPhone"
	case strings.Contains(ua, "ipad"):
		return "iPad"
	case strings.Contains(ua, "android"):
		return "Linux armv8l"
	case strings.Contains(ua, "macintosh"), strings.Contains(ua, "mac os x"):
		return "MacIntel"
	case strings.Contains(ua, "linux"):
		return "Linux x86_64"
	default:
		return "Win32"
	}
}

// languagesFor expands a locale into a navigator.languages list.
func languagesFor(locale string) []string {
	if locale == "" {
		return []string{"en-US", "en"}
	}
	langs := []string{locale}
	if base, _, ok := strings.Cut(locale, "-"); ok && base != "" {
		langs = append(langs, base)
	}
	return langs
}

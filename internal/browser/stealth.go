package browser

import (
	"encoding/json"
	"fmt"

	"github.com/go-rod/stealth"
	"github.com/maltedev/sku-scraper/internal/models"
)

// overridesTemplate patches the navigator properties fingerprinting scripts
// read on load. It is installed as an init script, so it runs before any
// page script.
const overridesTemplate = `(() => {
	const cfg = %s;
	const define = (obj, prop, value) => {
		try {
			Object.defineProperty(obj, prop, { get: () => value, configurable: true });
		} catch (e) {}
	};
	define(Navigator.prototype, 'webdriver', undefined);
	define(Navigator.prototype, 'languages', Object.freeze(cfg.languages));
	define(Navigator.prototype, 'hardwareConcurrency', cfg.hardwareConcurrency);
	define(Navigator.prototype, 'deviceMemory', cfg.deviceMemory);
	define(Navigator.prototype, 'platform', cfg.platform);
	if (!navigator.plugins || navigator.plugins.length === 0) {
		const plugins = cfg.plugins.map((name) => ({ name, filename: name.toLowerCase().replace(/ /g, '-') + '.so', description: name }));
		define(Navigator.prototype, 'plugins', plugins);
	}
	delete window.cdc_adoQpoasnfa76pfcZLmcfl_Array;
	delete window.cdc_adoQpoasnfa76pfcZLmcfl_Promise;
	delete window.cdc_adoQpoasnfa76pfcZLmcfl_Symbol;
})();`

type navigatorOverrides struct {
	Languages           []string `json:"languages"`
	HardwareConcurrency int      `json:"hardwareConcurrency"`
	DeviceMemory        int      `json:"deviceMemory"`
	Platform            string   `json:"platform"`
	Plugins             []string `json:"plugins"`
}

// StealthScript returns the init script applied to every page of a session:
// the go-rod stealth evasions followed by profile-specific navigator values.
func StealthScript(profile models.DeviceProfile) string {
	o := navigatorOverrides{
		Languages:           languagesFor(profile.Locale),
		HardwareConcurrency: 8,
		DeviceMemory:        8,
		Platform:            platformFor(profile.UserAgent),
		Plugins:             []string{"PDF Viewer", "Chrome PDF Viewer", "Chromium PDF Viewer"},
	}
	if profile.IsMobile {
		o.HardwareConcurrency = 6
		o.DeviceMemory = 4
		o.Plugins = []string{}
	}

	// Marshalling a struct of strings and ints cannot fail.
	cfg, _ := json.Marshal(o)
	return stealth.JS + "\n" + fmt.Sprintf(overridesTemplate, cfg)
}

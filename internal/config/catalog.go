package config

import (
	_ "embed"
	"fmt"
	"os"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/maltedev/sku-scraper/internal/detect"
	"github.com/maltedev/sku-scraper/internal/extract"
	"github.com/maltedev/sku-scraper/internal/models"
)

//go:embed catalog.yaml
var defaultCatalog []byte

// RetailerSpec is everything the scraper knows about one retailer's pages.
type RetailerSpec struct {
	Homepage        string              `yaml:"homepage"`
	ProductURL      string              `yaml:"product_url"`
	PrimarySelector string              `yaml:"primary_selector"`
	Fields          []extract.FieldSpec `yaml:"fields"`
	Markers         detect.Markers      `yaml:"markers"`
	BypassButtons   []string            `yaml:"bypass_buttons"`
}

// URLFor fills the {sku} placeholder of the product URL template.
func (r RetailerSpec) URLFor(identifier string) string {
	return strings.ReplaceAll(r.ProductURL, "{sku}", identifier)
}

type Catalog struct {
	Profiles  []models.DeviceProfile           `yaml:"profiles"`
	Retailers map[models.Retailer]RetailerSpec `yaml:"retailers"`
}

// LoadCatalog reads a catalog file, or the built-in catalog when path is empty.
func LoadCatalog(path string) (*Catalog, error) {
	if path == "" {
		return ParseCatalog(defaultCatalog)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read catalog: %w", err)
	}
	return ParseCatalog(data)
}

func ParseCatalog(data []byte) (*Catalog, error) {
	var c Catalog
	if err := yaml.Unmarshal(data, &c); err != nil {
		return nil, fmt.Errorf("failed to parse catalog: %w", err)
	}
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return &c, nil
}

func (c *Catalog) Validate() error {
	if len(c.Retailers) == 0 {
		return fmt.Errorf("catalog defines no retailers")
	}
	for name, r := range c.Retailers {
		if !strings.Contains(r.ProductURL, "{sku}") {
			return fmt.Errorf("retailer %s: product_url must contain {sku}", name)
		}
		if len(r.Fields) == 0 {
			return fmt.Errorf("retailer %s: no fields defined", name)
		}
		for _, f := range r.Fields {
			switch f.Clean {
			case extract.CleanNone, extract.CleanStripParens, extract.CleanFirstLine:
			default:
				return fmt.Errorf("retailer %s: field %s: unknown clean mode %q", name, f.Name, f.Clean)
			}
		}
	}
	for i, p := range c.Profiles {
		if p.UserAgent == "" || p.Viewport.Width <= 0 || p.Viewport.Height <= 0 {
			return fmt.Errorf("profile %d (%s): user_agent and viewport are required", i, p.Name)
		}
	}
	return nil
}

func (c *Catalog) Retailer(r models.Retailer) (RetailerSpec, bool) {
	spec, ok := c.Retailers[r]
	return spec, ok
}

// Markers merges the block markers of every retailer on top of the defaults.
func (c *Catalog) Markers() detect.Markers {
	names := make([]string, 0, len(c.Retailers))
	for r := range c.Retailers {
		names = append(names, string(r))
	}
	sort.Strings(names)

	m := detect.DefaultMarkers()
	for _, n := range names {
		m = m.Merge(c.Retailers[models.Retailer(n)].Markers)
	}
	return m
}

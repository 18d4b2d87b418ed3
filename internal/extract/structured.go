package extract

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/maltedev/sku-scraper/internal/models"
)

// Structured reads product fields from JSON-LD Product metadata and from an
// embedded __NEXT_DATA__ payload. JSON-LD wins where both provide a field.
func Structured(html string) map[string]*string {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return nil
	}
	return structuredFromDoc(doc)
}

func structuredFromDoc(doc *goquery.Document) map[string]*string {
	out := make(map[string]*string)

	doc.Find(`script[type="application/ld+json"]`).Each(func(_ int, s *goquery.Selection) {
		var raw any
		if err := json.Unmarshal([]byte(s.Text()), &raw); err != nil {
			return
		}
		for _, product := range findProducts(raw) {
			fillMissing(out, fromJSONLD(product))
		}
	})

	if payload := doc.Find("script#__NEXT_DATA__").First().Text(); payload != "" {
		var raw map[string]any
		if err := json.Unmarshal([]byte(payload), &raw); err == nil {
			fillMissing(out, fromNextData(raw))
		}
	}

	return out
}

func fillMissing(dst, src map[string]*string) {
	for k, v := range src {
		if v != nil && dst[k] == nil {
			dst[k] = v
		}
	}
}

// findProducts walks arrays and @graph containers for objects typed Product.
func findProducts(v any) []map[string]any {
	switch t := v.(type) {
	case []any:
		var out []map[string]any
		for _, item := range t {
			out = append(out, findProducts(item)...)
		}
		return out
	case map[string]any:
		if isProduct(t["@type"]) {
			return []map[string]any{t}
		}
		if graph, ok := t["@graph"]; ok {
			return findProducts(graph)
		}
	}
	return nil
}

func isProduct(v any) bool {
	switch t := v.(type) {
	case string:
		return t == "Product"
	case []any:
		for _, item := range t {
			if s, ok := item.(string); ok && s == "Product" {
				return true
			}
		}
	}
	return false
}

func fromJSONLD(p map[string]any) map[string]*string {
	out := map[string]*string{
		models.FieldTitle:       str(p["name"]),
		models.FieldDescription: str(p["description"]),
	}

	offer := p["offers"]
	if list, ok := offer.([]any); ok && len(list) > 0 {
		offer = list[0]
	}
	if o, ok := offer.(map[string]any); ok {
		price := o["price"]
		if price == nil {
			price = o["lowPrice"]
		}
		out[models.FieldPrice] = formatPrice(str(price), str(o["priceCurrency"]))
	}

	if r, ok := p["aggregateRating"].(map[string]any); ok {
		out[models.FieldRating] = str(r["ratingValue"])
		count := str(r["reviewCount"])
		if count == nil {
			count = str(r["ratingCount"])
		}
		out[models.FieldReviewCount] = count
	}

	return out
}

func fromNextData(raw map[string]any) map[string]*string {
	product, ok := dig(raw, "props", "pageProps", "initialData", "data", "product").(map[string]any)
	if !ok {
		return nil
	}

	price := str(dig(product, "priceInfo", "currentPrice", "priceString"))
	if price == nil {
		price = formatPrice(str(dig(product, "priceInfo", "currentPrice", "price")), str(dig(product, "priceInfo", "currentPrice", "currencyUnit")))
	}

	return map[string]*string{
		models.FieldTitle:       str(product["name"]),
		models.FieldDescription: str(product["shortDescription"]),
		models.FieldPrice:       price,
		models.FieldRating:      str(product["averageRating"]),
		models.FieldReviewCount: str(product["numberOfReviews"]),
	}
}

func dig(v any, path ...string) any {
	for _, key := range path {
		m, ok := v.(map[string]any)
		if !ok {
			return nil
		}
		v = m[key]
	}
	return v
}

// str renders a scalar JSON value as trimmed text; empty and non-scalar values are nil.
func str(v any) *string {
	var s string
	switch t := v.(type) {
	case string:
		s = strings.TrimSpace(t)
	case float64:
		s = strconv.FormatFloat(t, 'f', -1, 64)
	case json.Number:
		s = t.String()
	case bool:
		s = strconv.FormatBool(t)
	default:
		return nil
	}
	if s == "" {
		return nil
	}
	return &s
}

func formatPrice(amount, currency *string) *string {
	if amount == nil {
		return nil
	}
	var s string
	switch {
	case currency == nil:
		s = *amount
	case *currency == "USD":
		s = "$" + *amount
	default:
		s = fmt.Sprintf("%s %s", *amount, *currency)
	}
	return &s
}

package models

import (
	"fmt"
	"strings"
)

// Retailer identifies the store a SKU belongs to. Values match the "Type" field
// of the input file.
type Retailer string

const (
	RetailerAmazon  Retailer = "Amazon"
	RetailerWalmart Retailer = "Walmart"
)

// ParseRetailer matches a retailer name case-insensitively against the known set.
func ParseRetailer(s string) (Retailer, error) {
	for _, r := range []Retailer{RetailerAmazon, RetailerWalmart} {
		if strings.EqualFold(strings.TrimSpace(s), string(r)) {
			return r, nil
		}
	}
	return "", fmt.Errorf("unknown retailer %q", s)
}

// SkuTask is one unit of input: a product identifier at a retailer.
type SkuTask struct {
	Retailer   Retailer `json:"Type"`
	Identifier string   `json:"SKU"`
}

// Key returns a stable "retailer:identifier" key.
func (t SkuTask) Key() string {
	return string(t.Retailer) + ":" + t.Identifier
}

func (t SkuTask) String() string {
	return t.Key()
}

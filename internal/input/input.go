// Package input reads and writes the SKU list ({"skus": [...]}) and imports
// identifiers from CSV exports.
package input

import (
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/maltedev/sku-scraper/internal/models"
)

type document struct {
	SKUs []models.SkuTask `json:"skus"`
}

// Load reads the SKU list at path. Any malformed entry fails the whole load.
func Load(path string) ([]models.SkuTask, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open input: %w", err)
	}
	defer f.Close()

	tasks, err := Decode(f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return tasks, nil
}

func Decode(r io.Reader) ([]models.SkuTask, error) {
	var doc document
	if err := json.NewDecoder(r).Decode(&doc); err != nil {
		return nil, fmt.Errorf("failed to decode input: %w", err)
	}
	if doc.SKUs == nil {
		return nil, errors.New(`input has no "skus" array`)
	}

	tasks := make([]models.SkuTask, 0, len(doc.SKUs))
	for i, t := range doc.SKUs {
		retailer, err := models.ParseRetailer(string(t.Retailer))
		if err != nil {
			return nil, fmt.Errorf("entry %d: %w", i, err)
		}
		id := strings.TrimSpace(t.Identifier)
		if id == "" {
			return nil, fmt.Errorf("entry %d: empty SKU", i)
		}
		tasks = append(tasks, models.SkuTask{Retailer: retailer, Identifier: id})
	}
	return tasks, nil
}

// Save writes tasks in the input format, replacing path atomically.
func Save(path string, tasks []models.SkuTask) error {
	data, err := json.MarshalIndent(document{SKUs: tasks}, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode input: %w", err)
	}

	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, append(data, '\n'), 0o644); err != nil {
		return fmt.Errorf("failed to write input: %w", err)
	}
	return os.Rename(tmp, path)
}

// ImportCSV reads identifiers from the named column of a CSV export with a
// header row. Blank cells are skipped; limit <= 0 means no limit.
func ImportCSV(r io.Reader, column string, retailer models.Retailer, limit int) ([]models.SkuTask, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	cr.LazyQuotes = true

	header, err := cr.Read()
	if err != nil {
		return nil, fmt.Errorf("failed to read csv header: %w", err)
	}

	idx := -1
	for i, h := range header {
		if strings.TrimSpace(strings.TrimPrefix(h, "\uFEFF")) == column {
			idx = i
			break
		}
	}
	if idx < 0 {
		return nil, fmt.Errorf("column %q not found in csv header", column)
	}

	var tasks []models.SkuTask
	for limit <= 0 || len(tasks) < limit {
		row, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to read csv row: %w", err)
		}
		if idx >= len(row) {
			continue
		}
		if id := strings.TrimSpace(row[idx]); id != "" {
			tasks = append(tasks, models.SkuTask{Retailer: retailer, Identifier: id})
		}
	}
	return tasks, nil
}

// Merge appends the tasks of added that existing does not contain yet and
// reports how many were new.
func Merge(existing, added []models.SkuTask) ([]models.SkuTask, int) {
	seen := make(map[string]bool, len(existing)+len(added))
	out := make([]models.SkuTask, 0, len(existing)+len(added))
	for _, t := range existing {
		seen[t.Key()] = true
		out = append(out, t)
	}

	n := 0
	for _, t := range added {
		if seen[t.Key()] {
			continue
		}
		seen[t.Key()] = true
		out = append(out, t)
		n++
	}
	return out, n
}

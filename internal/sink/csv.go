package sink

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"

	"github.com/maltedev/sku-scraper/internal/models"
)

// Header is the fixed column set of the output file.
var Header = []string{"SKU", "Source", "Title", "Description", "Price", "Reviews", "Rating"}

// CSV appends records to a CSV file. The header is written only when the file
// is missing or empty; existing rows are never rewritten.
type CSV struct {
	path string
	mu   sync.Mutex
}

func NewCSV(path string) *CSV {
	return &CSV{path: path}
}

func (c *CSV) Path() string { return c.path }

func (c *CSV) Append(_ context.Context, records []*models.ExtractedRecord) error {
	if len(records) == 0 {
		return nil
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	needsHeader := false
	info, err := os.Stat(c.path)
	switch {
	case errors.Is(err, os.ErrNotExist):
		needsHeader = true
	case err != nil:
		return fmt.Errorf("stat csv file: %w", err)
	case info.Size() == 0:
		needsHeader = true
	}

	if dir := filepath.Dir(c.path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create output directory: %w", err)
		}
	}

	f, err := os.OpenFile(c.path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("open csv file: %w", err)
	}
	defer f.Close()

	w := csv.NewWriter(f)
	if needsHeader {
		if err := w.Write(Header); err != nil {
			return fmt.Errorf("write csv header: %w", err)
		}
	}
	for _, r := range records {
		if err := w.Write(row(r)); err != nil {
			return fmt.Errorf("write csv record: %w", err)
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return fmt.Errorf("flush csv records: %w", err)
	}

	return f.Close()
}

func row(r *models.ExtractedRecord) []string {
	return []string{
		r.SKU,
		string(r.Retailer),
		models.Value(r.Title),
		models.Value(r.Description),
		models.Value(r.Price),
		models.Value(r.ReviewCount),
		models.Value(r.Rating),
	}
}

// CompletedKeys returns the task keys of every row already in the file.
func (c *CSV) CompletedKeys() (map[string]bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	keys := make(map[string]bool)

	f, err := os.Open(c.path)
	if errors.Is(err, os.ErrNotExist) {
		return keys, nil
	}
	if err != nil {
		return nil, fmt.Errorf("open csv file: %w", err)
	}
	defer f.Close()

	r := csv.NewReader(f)
	r.FieldsPerRecord = -1

	first := true
	for {
		rec, err := r.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read csv file: %w", err)
		}
		if first {
			first = false
			if len(rec) > 0 && rec[0] == Header[0] {
				continue
			}
		}
		if len(rec) < 2 {
			continue
		}
		task := models.SkuTask{Retailer: models.Retailer(rec[1]), Identifier: rec[0]}
		keys[task.Key()] = true
	}

	return keys, nil
}

func (c *CSV) Close() error { return nil }

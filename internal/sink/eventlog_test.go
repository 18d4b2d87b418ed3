package sink

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/maltedev/sku-scraper/internal/models"
)

func TestFormat(t *testing.T) {
	ts := time.Date(2025, 3, 4, 10, 30, 0, 0, time.UTC)

	tests := []struct {
		name  string
		entry models.AttemptLog
		want  string
	}{
		{
			name: "with attempt",
			entry: models.AttemptLog{
				Timestamp: ts, SKU: "B0001", Retailer: models.RetailerAmazon,
				Attempt: 2, Outcome: models.OutcomeBlocked, Detail: "captcha URL detected (/errors/validatecaptcha)",
			},
			want: "[2025-03-04T10:30:00Z] BLOCKED attempt=2 Amazon B0001: captcha URL detected (/errors/validatecaptcha)",
		},
		{
			name: "without attempt",
			entry: models.AttemptLog{
				Timestamp: ts, SKU: "123", Retailer: models.RetailerWalmart,
				Outcome: models.OutcomeExhausted, Detail: "gave up after 4 attempts:\nlast error",
			},
			want: "[2025-03-04T10:30:00Z] EXHAUSTED Walmart 123: gave up after 4 attempts: last error",
		},
		{
			name:  "run note",
			entry: models.AttemptLog{Timestamp: ts, Outcome: models.OutcomeInfo, Detail: "run started with 5 tasks"},
			want:  "[2025-03-04T10:30:00Z] INFO run started with 5 tasks",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Format(tt.entry))
		})
	}
}

func TestEventLog_Record(t *testing.T) {
	path := filepath.Join(t.TempDir(), "errors.log")
	require.NoError(t, os.WriteFile(path, []byte("previous line\n"), 0o644))

	l := NewEventLog(path)
	l.now = func() time.Time { return time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC) }

	require.NoError(t, l.Record(models.AttemptLog{SKU: "B1", Retailer: models.RetailerAmazon, Attempt: 1, Outcome: models.OutcomeError, Detail: "boom"}))
	require.NoError(t, l.Record(models.AttemptLog{SKU: "B1", Retailer: models.RetailerAmazon, Attempt: 2, Outcome: models.OutcomeSuccess, Detail: "5/5 fields"}))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	lines := strings.Split(strings.TrimRight(string(data), "\n"), "\n")

	assert.Equal(t, []string{
		"previous line",
		"[2025-01-01T00:00:00Z] ERROR attempt=1 Amazon B1: boom",
		"[2025-01-01T00:00:00Z] SUCCESS attempt=2 Amazon B1: 5/5 fields",
	}, lines)
}

package sink

import (
	"fmt"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/maltedev/sku-scraper/internal/models"
)

// EventLog is the append-only attempt log. It is opened per write, so the
// file may be inspected or moved while a run is in progress.
type EventLog struct {
	path string
	mu   sync.Mutex
	now  func() time.Time
}

func NewEventLog(path string) *EventLog {
	return &EventLog{path: path, now: time.Now}
}

// Format renders one entry as
// "[timestamp] OUTCOME attempt=n retailer identifier: detail".
func Format(e models.AttemptLog) string {
	var b strings.Builder
	fmt.Fprintf(&b, "[%s] %s", e.Timestamp.UTC().Format(time.RFC3339), e.Outcome)
	if e.Attempt > 0 {
		fmt.Fprintf(&b, " attempt=%d", e.Attempt)
	}
	if e.Retailer != "" || e.SKU != "" {
		fmt.Fprintf(&b, " %s %s:", e.Retailer, e.SKU)
	}
	fmt.Fprintf(&b, " %s", strings.ReplaceAll(e.Detail, "\n", " "))
	return b.String()
}

func (l *EventLog) Record(e models.AttemptLog) error {
	if e.Timestamp.IsZero() {
		e.Timestamp = l.now()
	}
	line := Format(e) + "\n"

	l.mu.Lock()
	defer l.mu.Unlock()

	f, err := os.OpenFile(l.path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("open event log: %w", err)
	}
	if _, err := f.WriteString(line); err != nil {
		f.Close()
		return fmt.Errorf("write event log: %w", err)
	}
	return f.Close()
}

package scraper

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/maltedev/sku-scraper/internal/checkpoint"
	"github.com/maltedev/sku-scraper/internal/models"
	"github.com/maltedev/sku-scraper/internal/scheduler"
	"github.com/maltedev/sku-scraper/internal/sink"
)

type failingSink struct{ err error }

func (s failingSink) Append(context.Context, []*models.ExtractedRecord) error { return s.err }
func (s failingSink) Close() error                                            { return nil }

func runPersisted(t *testing.T, out sink.Sink) (*checkpoint.Store, []models.SkuTask, error) {
	t.Helper()

	store, err := checkpoint.Open(filepath.Join(t.TempDir(), "checkpoint.json"))
	require.NoError(t, err)

	f := newFixture(t, 0, productState)
	f.scraper.progress = store

	tasks := []models.SkuTask{task("A1"), task("A2")}
	require.NoError(t, store.Track(tasks))

	cfg := scheduler.DefaultConfig()
	cfg.CooldownMin, cfg.CooldownMax = 0, 0
	cfg.Sleep = noSleep
	sched := scheduler.New(cfg, nil)
	sched.OnBatch = Persist(out, store)

	_, err = sched.Run(context.Background(), tasks, f.scraper.Run)
	return store, tasks, err
}

func TestPersist_FailedAppendKeepsTasksResumable(t *testing.T) {
	store, tasks, err := runPersisted(t, failingSink{err: errors.New("disk full")})
	require.ErrorContains(t, err, "disk full")

	assert.Equal(t, tasks, store.Filter(tasks))
	for _, task := range tasks {
		e, ok := store.Get(task)
		require.True(t, ok)
		assert.Equal(t, checkpoint.StatusExtracted, e.Status)
		assert.Equal(t, 1, e.Attempts)
	}
}

func TestPersist_MarksCompletedAfterAppend(t *testing.T) {
	csvSink := sink.NewCSV(filepath.Join(t.TempDir(), "out.csv"))

	store, tasks, err := runPersisted(t, csvSink)
	require.NoError(t, err)

	assert.Empty(t, store.Filter(tasks))

	keys, err := csvSink.CompletedKeys()
	require.NoError(t, err)
	assert.Equal(t, map[string]bool{"Amazon:A1": true, "Amazon:A2": true}, keys)

	e, _ := store.Get(task("A1"))
	assert.Equal(t, checkpoint.StatusCompleted, e.Status)
	assert.Equal(t, 1, e.Attempts, "persisting adds no attempts")
}

func TestPersist_NilProgress(t *testing.T) {
	csvSink := sink.NewCSV(filepath.Join(t.TempDir(), "out.csv"))
	title := "Widget"
	err := Persist(csvSink, nil)(context.Background(), []*models.ExtractedRecord{
		{SKU: "A1", Retailer: models.RetailerAmazon, Title: &title},
	})
	require.NoError(t, err)
}

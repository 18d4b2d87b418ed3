package lifecycle

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCoordinator_ReleaseRunsOnce(t *testing.T) {
	c := New(nil)
	calls := 0

	release := c.Register("session-1", func() error {
		calls++
		return nil
	})
	assert.Equal(t, 1, c.Pending())

	require.NoError(t, release())
	require.NoError(t, release())
	assert.Equal(t, 1, calls)
	assert.Equal(t, 0, c.Pending())

	require.NoError(t, c.Shutdown())
	assert.Equal(t, 1, calls, "shutdown must not rerun released teardowns")
}

func TestCoordinator_ShutdownReleasesPendingInReverse(t *testing.T) {
	c := New(nil)
	var order []string

	c.Register("a", func() error { order = append(order, "a"); return nil })
	releaseB := c.Register("b", func() error { order = append(order, "b"); return nil })
	c.Register("c", func() error { order = append(order, "c"); return errors.New("boom") })

	err := c.Shutdown()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "c: boom")
	assert.Equal(t, []string{"c", "b", "a"}, order)

	// Released by shutdown already.
	require.NoError(t, releaseB())
	assert.Equal(t, []string{"c", "b", "a"}, order)
}

func TestCoordinator_RegisterAfterShutdown(t *testing.T) {
	c := New(nil)
	require.NoError(t, c.Shutdown())

	ran := false
	release := c.Register("late", func() error { ran = true; return nil })
	assert.True(t, ran)
	assert.NoError(t, release())
	assert.Equal(t, 0, c.Pending())
}

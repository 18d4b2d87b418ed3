package browser

import (
	"testing"

	"github.com/playwright-community/playwright-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Only the methods a session calls are implemented; the embedded nil
// interfaces panic on anything else.
type scriptContext struct {
	playwright.BrowserContext
	scripts int
	closed  bool
}

func (c *scriptContext) AddInitScript(playwright.Script) error {
	c.scripts++
	return nil
}

func (c *scriptContext) NewPage() (playwright.Page, error) {
	return &scriptPage{}, nil
}

func (c *scriptContext) Close(...playwright.BrowserContextCloseOptions) error {
	c.closed = true
	return nil
}

type scriptPage struct {
	playwright.Page
	scripts int
	closed  bool
}

func (p *scriptPage) AddInitScript(playwright.Script) error {
	p.scripts++
	return nil
}

func (p *scriptPage) SetDefaultTimeout(float64) {}

func (p *scriptPage) Close(...playwright.PageCloseOptions) error {
	p.closed = true
	return nil
}

func (p *scriptPage) IsClosed() bool { return p.closed }

func TestStealthOnOwnedContext(t *testing.T) {
	bctx := &scriptContext{}
	s := &pwSession{context: bctx, ownsContext: true}

	require.NoError(t, s.installStealth("/* stealth */"))
	_, err := s.NewPage()
	require.NoError(t, err)

	assert.Equal(t, 1, bctx.scripts)
	assert.Zero(t, s.pages[0].(*scriptPage).scripts)

	require.NoError(t, s.teardown())
	assert.True(t, bctx.closed)
}

func TestStealthOnAttachedContextStaysOnPages(t *testing.T) {
	shared := &scriptContext{}

	for i := 0; i < 3; i++ {
		s := &pwSession{context: shared}
		require.NoError(t, s.installStealth("/* stealth */"))

		_, err := s.NewPage()
		require.NoError(t, err)
		_, err = s.NewPage()
		require.NoError(t, err)

		for _, p := range s.pages {
			assert.Equal(t, 1, p.(*scriptPage).scripts)
		}
		pages := append([]playwright.Page(nil), s.pages...)

		require.NoError(t, s.teardown())
		for _, p := range pages {
			assert.True(t, p.IsClosed())
		}
	}

	assert.Zero(t, shared.scripts, "shared context must not collect init scripts")
	assert.False(t, shared.closed)
}

package selector_test

import (
	"context"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
	"go.uber.org/zap/zaptest"

	"github.com/xkilldash9x/mimic-cli/api/schemas"
	"github.com/xkilldash9x/mimic-cli/internal/browser/dom"
	"github.com/xkilldash9x/mimic-cli/internal/selector"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func parse(t *testing.T, src string) *dom.Page {
	t.Helper()
	page, err := dom.ParseHTML(src, dom.NewDefaultConfig())
	require.NoError(t, err)
	return page
}

func newSynthesizer(t *testing.T, page selector.PageQuery) *selector.Synthesizer {
	t.Helper()
	logger := zaptest.NewLogger(t)
	verifier := selector.NewVerifier(page, logger, selector.DefaultVerifierOptions())
	return selector.NewSynthesizer(page, verifier, logger, selector.DefaultOptions())
}

// synthesizeCSS synthesizes a descriptor for the first element matching css.
func synthesizeCSS(t *testing.T, page selector.PageQuery, css string) *selector.Resolution {
	t.Helper()
	res, err := newSynthesizer(t, page).Resolve(context.Background(), selector.TargetLocator(selector.CSS(css)))
	require.NoError(t, err)
	return res
}

// assertResolvesTo checks that d matches exactly the element css selects first.
func assertResolvesTo(t *testing.T, page selector.PageQuery, d schemas.SelectorDescriptor, css string) {
	t.Helper()
	ctx := context.Background()
	want, err := page.ResolveMarker(ctx, selector.CSS(css))
	require.NoError(t, err)
	got, err := page.IdentityMarkers(ctx, d)
	require.NoError(t, err)
	require.Equal(t, []string{want}, got, "descriptor %s", selector.String(d))
}

// countingPage counts probes and can close the page after a number of them.
type countingPage struct {
	*dom.Page
	probes     atomic.Int32
	closeAfter int32
}

func (c *countingPage) probe() {
	n := c.probes.Add(1)
	if c.closeAfter > 0 && n >= c.closeAfter {
		c.Page.Close()
	}
}

func (c *countingPage) CountMatches(ctx context.Context, d schemas.SelectorDescriptor) (int, error) {
	c.probe()
	return c.Page.CountMatches(ctx, d)
}

func (c *countingPage) IdentityMarkers(ctx context.Context, d schemas.SelectorDescriptor) ([]string, error) {
	c.probe()
	return c.Page.IdentityMarkers(ctx, d)
}

// stallingPage never answers a probe before its context expires.
type stallingPage struct {
	*dom.Page
}

func (s *stallingPage) IdentityMarkers(ctx context.Context, d schemas.SelectorDescriptor) ([]string, error) {
	<-ctx.Done()
	return nil, ctx.Err()
}

func (s *stallingPage) CountMatches(ctx context.Context, d schemas.SelectorDescriptor) (int, error) {
	<-ctx.Done()
	return 0, ctx.Err()
}

package runner

import (
	"context"
	"errors"
	"path/filepath"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
	"go.uber.org/zap/zaptest"

	"github.com/xkilldash9x/mimic-cli/api/schemas"
	"github.com/xkilldash9x/mimic-cli/internal/browser/dom"
	"github.com/xkilldash9x/mimic-cli/internal/decider"
	"github.com/xkilldash9x/mimic-cli/internal/replay"
	"github.com/xkilldash9x/mimic-cli/internal/selector"
	"github.com/xkilldash9x/mimic-cli/internal/snapshot"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

const shopV1 = `<html><body>
<header><a href="/" class="logo">Shop</a></header>
<main>
  <h1>Welcome</h1>
  <a class="cta" href="/start">Get started</a>
  <form><label for="email">Email</label><input id="email" type="email"></form>
</main></body></html>`

// shopV2 renames the call to action, so its stored descriptor stops matching.
const shopV2 = `<html><body>
<header><a href="/" class="logo">Shop</a></header>
<main>
  <h1>Welcome</h1>
  <a class="cta" href="/start">Start now</a>
  <form><label for="email">Email</label><input id="email" type="email"></form>
</main></body></html>`

const testBody = `go to the shop
click on get started
fill the email field with a@b.test`

var decisions = map[string]decider.Entry{
	"go to the shop":                     {Action: "navigate", URL: "https://shop.test/"},
	"click on get started":               {Action: "click", Target: "a.cta"},
	"fill the email field with a@b.test": {Action: "fill", Target: "#email", Value: "a@b.test"},
}

// countingDecider counts calls on top of a scripted decider.
type countingDecider struct {
	inner decider.Decider
	calls atomic.Int64
}

func (c *countingDecider) DecideAction(ctx context.Context, page selector.PageQuery, step string) (*decider.Decision, error) {
	c.calls.Add(1)
	return c.inner.DecideAction(ctx, page, step)
}

type fixture struct {
	store    *snapshot.Store
	decider  *countingDecider
	location string
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	logger := zaptest.NewLogger(t)
	return &fixture{
		store:    snapshot.NewStore(snapshot.NewFileBackend(logger, "", ""), logger),
		decider:  &countingDecider{inner: decider.NewScripted(decisions, logger)},
		location: filepath.Join(t.TempDir(), "shop.yaml"),
	}
}

func (f *fixture) runner(t *testing.T, opts Options) *Runner {
	return New(f.store, f.decider, zaptest.NewLogger(t), opts)
}

func shopPage(t *testing.T, doc string) *dom.Page {
	t.Helper()
	cfg := dom.NewDefaultConfig()
	cfg.Loader = dom.MapLoader(map[string]string{"https://shop.test/": doc})
	page, err := dom.ParseHTML(`<html><body></body></html>`, cfg)
	require.NoError(t, err)
	return page
}

func TestRun_RegenerateThenReplay(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	r := f.runner(t, DefaultOptions())

	livePage := shopPage(t, shopV1)
	res, err := r.Run(ctx, livePage, f.location, testBody)
	require.NoError(t, err)
	assert.Equal(t, ModeRegenerated, res.Mode)
	assert.Equal(t, 3, res.Steps)
	assert.True(t, res.Saved)
	assert.Nil(t, res.Divergence)
	assert.EqualValues(t, 3, f.decider.calls.Load())

	click := res.Snapshot.StepsByHash[snapshot.Hash("click on get started")]
	require.NotNil(t, click)
	assert.Equal(t, `role=link[name="Get started"s]`, selector.String(click.TargetElement.Selector))
	assert.Equal(t, "a", click.TargetElement.Metadata.Tag)

	replayPage := shopPage(t, shopV1)
	res, err = r.Run(ctx, replayPage, f.location, testBody)
	require.NoError(t, err)
	assert.Equal(t, ModeReplayed, res.Mode)
	assert.Equal(t, 3, res.Steps)
	assert.False(t, res.Saved)
	assert.EqualValues(t, 3, f.decider.calls.Load(), "replay never consults the decider")
	assert.Equal(t, livePage.Actions(), replayPage.Actions())

	// A third run on an unchanged page is still a no-op for the store.
	res, err = r.Run(ctx, shopPage(t, shopV1), f.location, testBody)
	require.NoError(t, err)
	assert.Equal(t, ModeReplayed, res.Mode)
}

func TestRun_FallsBackOnDivergence(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	r := f.runner(t, DefaultOptions())
	hash := snapshot.Hash(testBody)

	_, err := r.Run(ctx, shopPage(t, shopV1), f.location, testBody)
	require.NoError(t, err)

	res, err := r.Run(ctx, shopPage(t, shopV2), f.location, testBody)
	require.NoError(t, err)
	assert.Equal(t, ModeRegenerated, res.Mode)
	assert.True(t, res.Saved)
	var div *replay.DivergenceError
	require.ErrorAs(t, res.Divergence, &div)
	assert.Equal(t, 1, div.StepIndex)
	assert.ErrorIs(t, res.Divergence, selector.ErrNotFound)
	assert.EqualValues(t, 6, f.decider.calls.Load())

	stored := f.store.Get(ctx, f.location, hash)
	require.NotNil(t, stored)
	assert.Equal(t, `role=link[name="Start now"s]`,
		selector.String(stored.StepsByHash[snapshot.Hash("click on get started")].TargetElement.Selector))
	require.NotNil(t, stored.LastFailure)
	assert.Equal(t, 1, *stored.LastFailure.StepIndex)
	assert.True(t, f.store.ShouldUse(ctx, f.location, hash, 3), "the regeneration is a fresh pass")
}

func TestRun_NoFallback(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	_, err := f.runner(t, DefaultOptions()).Run(ctx, shopPage(t, shopV1), f.location, testBody)
	require.NoError(t, err)

	opts := DefaultOptions()
	opts.NoFallback = true
	res, err := f.runner(t, opts).Run(ctx, shopPage(t, shopV2), f.location, testBody)
	var div *replay.DivergenceError
	require.ErrorAs(t, err, &div)
	assert.Contains(t, err.Error(), `replay diverged at step 1 ("click on get started")`)
	assert.Equal(t, ModeReplayed, res.Mode)
	assert.Equal(t, 1, res.Steps)
	assert.False(t, f.store.ShouldUse(ctx, f.location, snapshot.Hash(testBody), 3), "the failure is recorded")
}

func TestRun_PageClosedIsFatal(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	_, err := f.runner(t, DefaultOptions()).Run(ctx, shopPage(t, shopV1), f.location, testBody)
	require.NoError(t, err)

	page := shopPage(t, shopV1)
	page.Close()
	_, err = f.runner(t, DefaultOptions()).Run(ctx, page, f.location, testBody)
	assert.ErrorIs(t, err, selector.ErrPageClosed)
	assert.EqualValues(t, 3, f.decider.calls.Load(), "no regeneration against a closed page")
}

func TestRun_RegenerateOption(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	_, err := f.runner(t, DefaultOptions()).Run(ctx, shopPage(t, shopV1), f.location, testBody)
	require.NoError(t, err)

	opts := DefaultOptions()
	opts.Regenerate = true
	res, err := f.runner(t, opts).Run(ctx, shopPage(t, shopV1), f.location, testBody)
	require.NoError(t, err)
	assert.Equal(t, ModeRegenerated, res.Mode)
	assert.False(t, res.Saved, "identical regeneration does not rewrite the file")
	assert.EqualValues(t, 6, f.decider.calls.Load())
}

func TestRun_LiveFailureIsRecorded(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	body := "go to the shop\nclick on the missing thing"

	res, err := f.runner(t, DefaultOptions()).Run(ctx, shopPage(t, shopV1), f.location, body)
	var stepErr *StepError
	require.ErrorAs(t, err, &stepErr)
	assert.Equal(t, 1, stepErr.StepIndex)
	assert.ErrorIs(t, err, decider.ErrNoDecision)
	assert.Equal(t, 1, res.Steps)
	assert.False(t, res.Saved)

	stored := f.store.Get(ctx, f.location, snapshot.Hash(body))
	require.NotNil(t, stored)
	assert.Nil(t, stored.Flags.LastPassedAt)
	require.NotNil(t, stored.LastFailure)
	assert.Equal(t, "click on the missing thing", stored.LastFailure.StepText)
}

func TestRun_TargetNotFound(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.decider.inner = decider.NewScripted(map[string]decider.Entry{
		"go to the shop":   {Action: "navigate", URL: "https://shop.test/"},
		"click the banner": {Action: "click", Target: ".banner"},
	}, nil)

	_, err := f.runner(t, DefaultOptions()).Run(ctx, shopPage(t, shopV1), f.location, "go to the shop\nclick the banner")
	assert.ErrorIs(t, err, selector.ErrNotFound)
	assert.False(t, errors.Is(err, selector.ErrPageClosed))
}

func TestRun_EmptyTest(t *testing.T) {
	f := newFixture(t)
	_, err := f.runner(t, DefaultOptions()).Run(context.Background(), shopPage(t, shopV1), f.location, " \n\n ")
	assert.ErrorIs(t, err, ErrEmptyTest)
}

const termsURL = "https://terms.test/"

const termsV1 = `<html><body><form>
<input type="checkbox" id="agree" aria-label="I agree">
<button type="submit">Submit</button>
</form></body></html>`

// termsV2 renames the submit button, so replay diverges after the toggle ran.
const termsV2 = `<html><body><form>
<input type="checkbox" id="agree" aria-label="I agree">
<button type="submit">Send</button>
</form></body></html>`

const termsBody = "tick agree\nclick submit"

// termsPage is already showing doc, as if the suite navigated there first.
func termsPage(t *testing.T, doc string) *dom.Page {
	t.Helper()
	cfg := dom.NewDefaultConfig()
	cfg.Loader = dom.MapLoader(map[string]string{termsURL: doc})
	page, err := dom.ParseHTML(doc, cfg)
	require.NoError(t, err)
	return page
}

func agreeChecked(t *testing.T, page *dom.Page) bool {
	t.Helper()
	marker, err := page.MarkerByXPath(`//input[@id="agree"]`)
	require.NoError(t, err)
	checked, err := page.Checked(marker)
	require.NoError(t, err)
	return checked
}

func TestRun_ResetsPageBeforeRegenerating(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.decider.inner = decider.NewScripted(map[string]decider.Entry{
		"tick agree":   {Action: "click", Target: "#agree"},
		"click submit": {Action: "click", Target: "button"},
	}, nil)

	var resets atomic.Int64
	opts := DefaultOptions()
	opts.Reset = func(ctx context.Context, page Page) error {
		resets.Add(1)
		return page.Navigate(ctx, termsURL)
	}

	first := termsPage(t, termsV1)
	res, err := f.runner(t, opts).Run(ctx, first, f.location, termsBody)
	require.NoError(t, err)
	require.Equal(t, ModeRegenerated, res.Mode)
	assert.True(t, agreeChecked(t, first))
	assert.Zero(t, resets.Load(), "a plain live run does not reset")

	second := termsPage(t, termsV2)
	res, err = f.runner(t, opts).Run(ctx, second, f.location, termsBody)
	require.NoError(t, err)
	assert.Equal(t, ModeRegenerated, res.Mode)
	require.Error(t, res.Divergence)
	assert.EqualValues(t, 1, resets.Load())
	assert.True(t, agreeChecked(t, second), "the toggle is applied once after the reset")

	// replayed toggle, reset navigation, then the two live clicks
	actions := second.Actions()
	require.Len(t, actions, 4)
	assert.Equal(t, schemas.ActionNavigation, actions[1].Kind)
	assert.Equal(t, termsURL, actions[1].Value)

	// The regenerated snapshot replays to the same end state.
	third := termsPage(t, termsV2)
	res, err = f.runner(t, opts).Run(ctx, third, f.location, termsBody)
	require.NoError(t, err)
	assert.Equal(t, ModeReplayed, res.Mode)
	assert.True(t, agreeChecked(t, third))
}

func TestRun_ResetFailureStopsFallback(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.decider.inner = decider.NewScripted(map[string]decider.Entry{
		"tick agree":   {Action: "click", Target: "#agree"},
		"click submit": {Action: "click", Target: "button"},
	}, nil)

	_, err := f.runner(t, DefaultOptions()).Run(ctx, termsPage(t, termsV1), f.location, termsBody)
	require.NoError(t, err)

	resetErr := errors.New("tab crashed")
	opts := DefaultOptions()
	opts.Reset = func(context.Context, Page) error { return resetErr }
	res, err := f.runner(t, opts).Run(ctx, termsPage(t, termsV2), f.location, termsBody)
	assert.ErrorIs(t, err, resetErr)
	require.NotNil(t, res)
	assert.Equal(t, ModeReplayed, res.Mode)
	assert.Error(t, res.Divergence)
	assert.EqualValues(t, 2, f.decider.calls.Load(), "no live step ran after the failed reset")
}

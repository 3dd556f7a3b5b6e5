// internal/browser/dom/interactor_test.go
package dom_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xkilldash9x/mimic-cli/api/schemas"
	"github.com/xkilldash9x/mimic-cli/internal/browser/dom"
	"github.com/xkilldash9x/mimic-cli/internal/selector"
)

const settingsHTML = `
<html><body>
  <label><input type="checkbox" id="news"> Newsletter</label>
  <label><input type="radio" name="plan" value="basic" checked> Basic</label>
  <label><input type="radio" name="plan" value="pro"> Pro</label>
  <label for="city">City</label>
  <select id="city"><option value="ber">Berlin</option><option value="par">Paris</option></select>
  <input id="q" placeholder="Search">
  <button>Save</button><button>Save</button>
</body></html>`

func TestInteractor_ClickAndForm(t *testing.T) {
	page := newPage(t, settingsHTML)
	ctx := context.Background()

	news, err := page.ResolveMarker(ctx, selector.CSS("#news"))
	require.NoError(t, err)
	require.NoError(t, page.Click(ctx, selector.Label("Newsletter", true), schemas.ClickDetails{}))
	checked, err := page.Checked(news)
	require.NoError(t, err)
	assert.True(t, checked)

	require.NoError(t, page.UpdateForm(ctx, selector.Label("Newsletter", true), schemas.FormDetails{Operation: schemas.FormUncheck}))
	checked, err = page.Checked(news)
	require.NoError(t, err)
	assert.False(t, checked)

	basic, err := page.ResolveMarker(ctx, selector.Role("radio", "Basic", true))
	require.NoError(t, err)
	pro, err := page.ResolveMarker(ctx, selector.Role("radio", "Pro", true))
	require.NoError(t, err)
	require.NoError(t, page.Click(ctx, selector.Role("radio", "Pro", true), schemas.ClickDetails{}))
	checked, _ = page.Checked(pro)
	assert.True(t, checked)
	checked, _ = page.Checked(basic)
	assert.False(t, checked, "radios of one group are exclusive")

	q, err := page.ResolveMarker(ctx, selector.Placeholder("Search", true))
	require.NoError(t, err)
	require.NoError(t, page.UpdateForm(ctx, selector.Placeholder("Search", true), schemas.FormDetails{Operation: schemas.FormFill, Value: "go"}))
	require.NoError(t, page.UpdateForm(ctx, selector.Placeholder("Search", true), schemas.FormDetails{Operation: schemas.FormType, Value: "lang"}))
	v, err := page.Value(q)
	require.NoError(t, err)
	assert.Equal(t, "golang", v)

	require.NoError(t, page.UpdateForm(ctx, selector.Label("City", true), schemas.FormDetails{Operation: schemas.FormSelect, Value: "Paris"}))
	err = page.UpdateForm(ctx, selector.Label("City", true), schemas.FormDetails{Operation: schemas.FormSelect, Value: "Rome"})
	assert.ErrorIs(t, err, selector.ErrNotFound)

	actions := page.Actions()
	require.Len(t, actions, 6)
	assert.Equal(t, schemas.ActionClick, actions[0].Kind)
	assert.Equal(t, `//*[@id='news']`, actions[0].Target)
	assert.Equal(t, "fill", actions[3].Detail)
	assert.Equal(t, "go", actions[3].Value)
}

func TestInteractor_RequiresSingleMatch(t *testing.T) {
	page := newPage(t, settingsHTML)
	ctx := context.Background()

	err := page.Click(ctx, selector.Role("button", "Save", true), schemas.ClickDetails{})
	assert.ErrorIs(t, err, selector.ErrAmbiguousMatch)

	err = page.Click(ctx, selector.WithNth(selector.Role("button", "Save", true), 1), schemas.ClickDetails{ClickType: schemas.ClickDouble})
	require.NoError(t, err)

	err = page.Click(ctx, selector.Role("button", "Delete", true), schemas.ClickDetails{})
	assert.ErrorIs(t, err, selector.ErrNotFound)

	err = page.UpdateForm(ctx, selector.CSS("#q"), schemas.FormDetails{Operation: "shake"})
	assert.Error(t, err)

	actions := page.Actions()
	require.Len(t, actions, 1)
	assert.Equal(t, "double", actions[0].Detail)
}

func TestInteractor_Navigate(t *testing.T) {
	cfg := dom.NewDefaultConfig()
	cfg.Loader = dom.MapLoader(map[string]string{
		"https://shop.test/": `<html><body><a href="/cart">Cart</a></body></html>`,
	})
	page, err := dom.ParseHTML(`<html><body></body></html>`, cfg)
	require.NoError(t, err)
	ctx := context.Background()

	require.NoError(t, page.Navigate(ctx, "https://shop.test/"))
	assert.Equal(t, "https://shop.test/", page.URL())
	n, err := page.CountMatches(ctx, selector.Role("link", "Cart", true))
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	assert.Error(t, page.Navigate(ctx, "https://shop.test/missing"))

	page.Close()
	assert.ErrorIs(t, page.Navigate(ctx, "https://shop.test/"), selector.ErrPageClosed)
}

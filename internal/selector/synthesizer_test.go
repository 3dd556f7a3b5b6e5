package selector_test

import (
	"context"
	"strings"
	"testing"
	"time"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xkilldash9x/mimic-cli/api/schemas"
	"github.com/xkilldash9x/mimic-cli/internal/selector"
)

func TestSynthesize_TieredPriority(t *testing.T) {
	longText := strings.TrimSpace(strings.Repeat("lorem ipsum ", 12))

	tests := []struct {
		name     string
		html     string
		target   string
		kind     schemas.SelectorKind
		validate func(t *testing.T, d schemas.SelectorDescriptor)
	}{
		{
			name:   "Test id beats role and name",
			html:   `<button data-testid="buy">Buy now</button><button>Buy now</button>`,
			target: `[data-testid="buy"]`,
			kind:   schemas.SelectorTestID,
			validate: func(t *testing.T, d schemas.SelectorDescriptor) {
				assert.Equal(t, "buy", d.Value)
			},
		},
		{
			name:   "Role and name beat label",
			html:   `<label for="e">Email</label><input id="e" type="email">`,
			target: "#e",
			kind:   schemas.SelectorRole,
			validate: func(t *testing.T, d schemas.SelectorDescriptor) {
				assert.Equal(t, "textbox", d.Role)
				assert.Equal(t, "Email", d.Name)
				assert.True(t, d.IsExact())
			},
		},
		{
			name:   "Label for roleless control",
			html:   `<label for="pw">Password</label><input id="pw" type="password">`,
			target: "#pw",
			kind:   schemas.SelectorLabel,
			validate: func(t *testing.T, d schemas.SelectorDescriptor) {
				assert.Equal(t, "Password", d.Value)
			},
		},
		{
			name:   "Placeholder when unlabelled",
			html:   `<input type="password" placeholder="Secret">`,
			target: "input",
			kind:   schemas.SelectorPlaceholder,
			validate: func(t *testing.T, d schemas.SelectorDescriptor) {
				assert.Equal(t, "Secret", d.Value)
			},
		},
		{
			name:   "Placeholder skipped when aria-label exists",
			html:   `<input type="password" placeholder="Secret" aria-label="PIN">`,
			target: "input",
			kind:   schemas.SelectorLabel,
			validate: func(t *testing.T, d schemas.SelectorDescriptor) {
				assert.Equal(t, "PIN", d.Value)
			},
		},
		{
			name:   "Title for roleless element",
			html:   `<span title="More info">i</span><span>i</span>`,
			target: "span",
			kind:   schemas.SelectorTitle,
		},
		{
			name:   "Short text is exact",
			html:   `<p>Welcome back</p><p>Welcome back, friend</p>`,
			target: "p",
			kind:   schemas.SelectorText,
			validate: func(t *testing.T, d schemas.SelectorDescriptor) {
				assert.Equal(t, "Welcome back", d.Value)
				assert.True(t, d.IsExact())
			},
		},
		{
			name:   "Long text is relaxed and truncated",
			html:   `<p>` + longText + `</p>`,
			target: "p",
			kind:   schemas.SelectorText,
			validate: func(t *testing.T, d schemas.SelectorDescriptor) {
				assert.False(t, d.IsExact())
				assert.LessOrEqual(t, utf8.RuneCountInString(d.Value), 80)
				assert.True(t, strings.HasPrefix(longText, d.Value))
			},
		},
		{
			name:   "Name attribute as structural fallback",
			html:   `<input type="password" name="pin"><input type="password" name="otp">`,
			target: `[name="pin"]`,
			kind:   schemas.SelectorCSS,
			validate: func(t *testing.T, d schemas.SelectorDescriptor) {
				assert.Equal(t, `input[name="pin"]`, d.Selector)
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			page := parse(t, `<html><body>`+tt.html+`</body></html>`)
			res := synthesizeCSS(t, page, tt.target)

			assert.Equal(t, tt.kind, res.Descriptor.Type, selector.String(res.Descriptor))
			assert.Nil(t, res.Descriptor.Child, "unique local descriptors are never nested")
			assert.Nil(t, res.Descriptor.Nth)
			if tt.validate != nil {
				tt.validate(t, res.Descriptor)
			}
			assertResolvesTo(t, page, res.Descriptor, tt.target)
		})
	}
}

func TestSynthesize_IndexedRoleForDuplicateButtons(t *testing.T) {
	page := parse(t, buttonsHTML)
	res := synthesizeCSS(t, page, "#x")

	d := res.Descriptor
	assert.Equal(t, schemas.SelectorRole, d.Type)
	assert.Equal(t, "button", d.Role)
	assert.Equal(t, "Save", d.Name)
	require.NotNil(t, d.Nth)
	assert.Equal(t, 0, *d.Nth)
	assert.Nil(t, d.Child)
	assert.Equal(t, selector.StrategyLocal, res.Strategy)
	assert.Equal(t, "button", res.Element.Tag)
	assertResolvesTo(t, page, d, "#x")
}

func TestSynthesize_RadiosSharingAName(t *testing.T) {
	page := parse(t, `<html><body><fieldset>
		<input type="radio" name="plan" aria-label="Option">
		<input type="radio" name="plan" aria-label="Option">
		<input type="radio" name="plan" aria-label="Option">
	</fieldset></body></html>`)
	res := synthesizeCSS(t, page, "input:nth-of-type(2)")

	d := res.Descriptor
	assert.Equal(t, schemas.SelectorRole, d.Type)
	assert.Equal(t, "radio", d.Role)
	assert.Equal(t, "Option", d.Name)
	require.NotNil(t, d.Nth)
	assert.Equal(t, 1, *d.Nth)
	assertResolvesTo(t, page, d, "input:nth-of-type(2)")
}

func TestSynthesize_UniqueLinkIsNotNested(t *testing.T) {
	page := parse(t, `<html><body>
		<nav id="primary"><a href="/a">Get started</a></nav>
		<footer id="foot"><a href="/b">Contact</a></footer>
	</body></html>`)
	res := synthesizeCSS(t, page, `a[href="/a"]`)

	assert.Equal(t, selector.Role("link", "Get started", true), res.Descriptor)
	assert.Equal(t, selector.StrategyLocal, res.Strategy)
}

func TestSynthesize_NestsUnderUniqueParent(t *testing.T) {
	page := parse(t, `<html><body>
		<section id="billing"><div data-testid="panel"></div></section>
		<section id="shipping"><div data-testid="panel"></div></section>
	</body></html>`)
	res := synthesizeCSS(t, page, "#shipping div")

	d := res.Descriptor
	assert.Equal(t, selector.StrategyNested, res.Strategy)
	assert.Equal(t, schemas.SelectorCSS, d.Type)
	assert.Equal(t, `[id="shipping"]`, d.Selector)
	require.NotNil(t, d.Child)
	assert.Equal(t, selector.TestID("panel"), *d.Child)
	assertResolvesTo(t, page, d, "#shipping div")
}

func TestSynthesize_NestedRetriesGenericChildren(t *testing.T) {
	t.Run("Role without a name under a unique parent", func(t *testing.T) {
		// The shared test id is ambiguous even inside #cart, but the cart
		// holds a single button.
		page := parse(t, `<html><body>
			<section id="cart"><button data-testid="act"></button><a href="/x" data-testid="act">More</a></section>
			<aside><button data-testid="act"></button></aside>
		</body></html>`)
		res := synthesizeCSS(t, page, "#cart button")

		assert.Equal(t, selector.StrategyNested, res.Strategy)
		assert.Equal(t, selector.WithChild(selector.CSS(`[id="cart"]`), selector.Role("button", "", false)), res.Descriptor)
		assert.True(t, res.Verification.Unique)
		assertResolvesTo(t, page, res.Descriptor, "#cart button")
	})

	t.Run("Shared test id parent preferred over a duplicated id", func(t *testing.T) {
		page := parse(t, `<html><body>
			<section data-testid="grp"><div id="dup"><div data-testid="panel"></div></div></section>
			<section data-testid="grp"><p>Empty</p></section>
			<div id="dup"><div data-testid="panel"></div></div>
		</body></html>`)
		res := synthesizeCSS(t, page, "section div div")

		assert.Equal(t, selector.StrategyNested, res.Strategy)
		assert.Equal(t, selector.WithChild(selector.TestID("grp"), selector.TestID("panel")), res.Descriptor)
		assertResolvesTo(t, page, res.Descriptor, "section div div")
	})
}

func TestSynthesize_StructuralFallback(t *testing.T) {
	t.Run("Anchored on a unique ancestor id", func(t *testing.T) {
		page := parse(t, `<html><body><main id="app"><div></div><div></div></main></body></html>`)
		res := synthesizeCSS(t, page, "main > div:nth-of-type(2)")

		assert.Equal(t, selector.StrategyStructural, res.Strategy)
		assert.Equal(t, selector.CSS(`[id="app"] > div:nth-of-type(2)`), res.Descriptor)
		assert.True(t, res.Verification.Unique)
		assertResolvesTo(t, page, res.Descriptor, "main > div:nth-of-type(2)")
	})

	t.Run("Rooted at html", func(t *testing.T) {
		page := parse(t, `<html><body><div><span></span><span></span></div></body></html>`)
		res := synthesizeCSS(t, page, "span:nth-of-type(2)")

		assert.Equal(t, selector.CSS("html > body:nth-of-type(1) > div:nth-of-type(1) > span:nth-of-type(2)"), res.Descriptor)
		assertResolvesTo(t, page, res.Descriptor, "span:nth-of-type(2)")
	})

	t.Run("Document root", func(t *testing.T) {
		page := parse(t, `<html><head></head><body><p>Hi</p></body></html>`)
		res := synthesizeCSS(t, page, "html")

		assert.Equal(t, selector.StrategyStructural, res.Strategy)
		assert.Equal(t, selector.CSS("html"), res.Descriptor)
		assert.True(t, res.Verification.Unique)
		assertResolvesTo(t, page, res.Descriptor, "html")

		res = synthesizeCSS(t, page, "head")
		assert.Equal(t, selector.CSS("html > head:nth-of-type(1)"), res.Descriptor)
		assertResolvesTo(t, page, res.Descriptor, "head")
	})

	t.Run("Duplicate ids are not used as anchors", func(t *testing.T) {
		page := parse(t, `<html><body>
			<div id="dup"><i></i></div>
			<div id="dup"><i></i><i></i></div>
		</body></html>`)
		res := synthesizeCSS(t, page, "div:nth-of-type(2) > i:nth-of-type(2)")

		assert.NotContains(t, res.Descriptor.Selector, "dup")
		assertResolvesTo(t, page, res.Descriptor, "div:nth-of-type(2) > i:nth-of-type(2)")
	})
}

const storefrontHTML = `<html><head><title>Shop</title></head><body>
<header id="top"><nav aria-label="Main"><a href="/">Home</a><a href="/deals">Deals</a><a href="/deals">Deals</a></nav></header>
<main>
  <section id="billing"><h2>Billing</h2>
    <div data-testid="panel"><label for="card">Card number</label><input id="card" name="card"><button>Save</button></div>
  </section>
  <section id="shipping"><h2>Shipping</h2>
    <div data-testid="panel"><label>Street <input name="street"></label><button>Save</button></div>
  </section>
  <ul><li><span>Item <b>one</b></span></li><li><span>Item two</span></li><li><span>Item two</span></li></ul>
  <form>
    <input type="radio" name="plan" aria-label="Plan"><input type="radio" name="plan" aria-label="Plan">
    <input type="checkbox" title="Remember me">
    <select><option>Berlin</option><option>Paris</option></select>
  </form>
  <div hidden><button>Save</button></div>
  <img src="a.png" alt="Logo"><img src="b.png" alt="Logo">
  <p>Every order ships from our warehouse within two business days, tracked end to end and insured against loss.</p>
  <div><span></span><span></span></div>
</main>
</body></html>`

// Every element, the document root included, gets a descriptor that
// resolves to it and only it.
func TestSynthesize_UniquenessAcrossPage(t *testing.T) {
	page := parse(t, storefrontHTML)
	ctx := context.Background()
	synth := newSynthesizer(t, page)

	markers, err := page.IdentityMarkers(ctx, selector.CSS("*"))
	require.NoError(t, err)
	require.NotEmpty(t, markers)

	strategies := map[string]int{}
	for _, marker := range markers {
		res, err := synth.Resolve(ctx, selector.TargetMarker(marker))
		require.NoError(t, err)
		require.NoError(t, selector.Validate(res.Descriptor))

		got, err := page.IdentityMarkers(ctx, res.Descriptor)
		require.NoError(t, err)
		assert.Equal(t, []string{marker}, got, "descriptor %s for <%s>", selector.String(res.Descriptor), res.Element.Tag)
		strategies[res.Strategy]++
	}

	assert.Positive(t, strategies[selector.StrategyLocal])
	assert.Positive(t, strategies[selector.StrategyNested])
	assert.Positive(t, strategies[selector.StrategyStructural])
}

func TestSynthesize_Deterministic(t *testing.T) {
	page := parse(t, storefrontHTML)
	ctx := context.Background()
	synth := newSynthesizer(t, page)
	target := selector.TargetLocator(selector.CSS("#shipping button"))

	first, err := synth.Synthesize(ctx, target)
	require.NoError(t, err)
	second, err := synth.Synthesize(ctx, target)
	require.NoError(t, err)
	assert.Equal(t, first, second)
}

func TestSynthesize_Failures(t *testing.T) {
	ctx := context.Background()

	t.Run("Locator matches nothing", func(t *testing.T) {
		page := parse(t, buttonsHTML)
		_, err := newSynthesizer(t, page).Synthesize(ctx, selector.TargetLocator(selector.CSS("#missing")))
		assert.ErrorIs(t, err, selector.ErrNotFound)
	})

	t.Run("Unknown marker", func(t *testing.T) {
		page := parse(t, buttonsHTML)
		_, err := newSynthesizer(t, page).Synthesize(ctx, selector.TargetMarker("gone"))
		assert.ErrorIs(t, err, selector.ErrNotFound)
	})

	t.Run("Empty target", func(t *testing.T) {
		page := parse(t, buttonsHTML)
		_, err := newSynthesizer(t, page).Synthesize(ctx, selector.Target{})
		assert.ErrorIs(t, err, selector.ErrInvalidDescriptor)
	})

	t.Run("Page closed before", func(t *testing.T) {
		page := parse(t, buttonsHTML)
		page.Close()
		_, err := newSynthesizer(t, page).Synthesize(ctx, selector.TargetLocator(selector.CSS("#x")))
		assert.ErrorIs(t, err, selector.ErrPageClosed)
	})

	t.Run("Page closed mid-resolution", func(t *testing.T) {
		page := &countingPage{Page: parse(t, storefrontHTML), closeAfter: 1}
		_, err := newSynthesizer(t, page).Synthesize(ctx, selector.TargetLocator(selector.CSS("#shipping button")))
		assert.ErrorIs(t, err, selector.ErrPageClosed)
		assert.NotErrorIs(t, err, selector.ErrNotFound)
	})

	t.Run("Probe timeout", func(t *testing.T) {
		page := &stallingPage{Page: parse(t, buttonsHTML)}
		verifier := selector.NewVerifier(page, nil, selector.VerifierOptions{ProbeTimeout: 10 * time.Millisecond})
		synth := selector.NewSynthesizer(page, verifier, nil, selector.Options{})
		_, err := synth.Synthesize(ctx, selector.TargetLocator(selector.CSS("#x")))
		assert.ErrorIs(t, err, selector.ErrTimeout)
	})
}

package session

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xkilldash9x/mimic-cli/internal/selector"
)

// checkoutFacts mirrors what the snapshot script reports for:
//
//	<html><body>
//	  <nav><a href="/">Home</a></nav>
//	  <form id="checkout">
//	    <label for="email">Email</label><input id="email" type="email">
//	    <button>Save</button>
//	  </form>
//	  <div data-testid="promo" style="display:none"><button>Save</button></div>
//	  <div>Total <span>5</span></div>
//	</body></html>
func checkoutFacts() []elementFacts {
	return []elementFacts{
		{Marker: "m-0", Parent: -1, Tag: "html"},
		{Marker: "m-1", Parent: 0, Tag: "body", Text: "Home Email Save Total 5"},
		{Marker: "m-2", Parent: 1, Tag: "nav", Text: "Home"},
		{Marker: "m-3", Parent: 2, Tag: "a", Attrs: map[string]string{"href": "/"}, Text: "Home", NthOfType: 1},
		{Marker: "m-4", Parent: 1, Tag: "form", Attrs: map[string]string{"id": "checkout"}, Text: "Email Save"},
		{Marker: "m-5", Parent: 4, Tag: "label", Attrs: map[string]string{"for": "email"}, Text: "Email"},
		{Marker: "m-6", Parent: 4, Tag: "input", Attrs: map[string]string{"id": "email", "type": "email"}, Label: "Email"},
		{Marker: "m-7", Parent: 4, Tag: "button", Text: "Save", NthOfType: 1},
		{Marker: "m-8", Parent: 1, Tag: "div", Attrs: map[string]string{"data-testid": "promo"}, Hidden: true, NthOfType: 1},
		{Marker: "m-9", Parent: 8, Tag: "button", Text: "Save", NthOfType: 1},
		{Marker: "m-10", Parent: 1, Tag: "div", Text: "Total 5", NthOfType: 2},
		{Marker: "m-11", Parent: 10, Tag: "span", Text: "5", NthOfType: 1},
	}
}

func checkoutDocument(t *testing.T, css map[string][]int) *document {
	t.Helper()
	var list []string
	var results []cssResult
	for sel, matches := range css {
		list = append(list, sel)
		results = append(results, cssResult{Matches: matches})
	}
	doc, err := newDocument(snapshotPayload{Elements: checkoutFacts(), CSS: results}, list, "data-testid")
	require.NoError(t, err)
	return doc
}

func TestDocument_Visibility(t *testing.T) {
	doc := checkoutDocument(t, nil)
	assert.True(t, doc.visible[7])
	assert.False(t, doc.visible[8])
	assert.False(t, doc.visible[9], "hidden ancestors hide their subtree")
}

func TestDocument_Resolve(t *testing.T) {
	doc := checkoutDocument(t, map[string][]int{
		"button": {7, 9},
		"form":   {4},
	})

	cases := []struct {
		name string
		desc func() (got []int, err error)
		want []int
	}{
		{"role skips hidden elements", func() ([]int, error) { return doc.resolve(selector.Role("button", "Save", true)) }, []int{7}},
		{"role without name", func() ([]int, error) { return doc.resolve(selector.Role("link", "", false)) }, []int{3}},
		{"label", func() ([]int, error) { return doc.resolve(selector.Label("email", false)) }, []int{6}},
		{"testid ignores visibility", func() ([]int, error) { return doc.resolve(selector.TestID("promo")) }, []int{8}},
		{"text keeps the innermost match", func() ([]int, error) { return doc.resolve(selector.Text("5", false)) }, []int{11}},
		{"css is not filtered", func() ([]int, error) { return doc.resolve(selector.CSS("button")) }, []int{7, 9}},
		{"nth picks from the union", func() ([]int, error) { return doc.resolve(selector.WithNth(selector.Text("Save", true), 0)) }, []int{7}},
		{"nth out of range", func() ([]int, error) { return doc.resolve(selector.WithNth(selector.Text("Save", true), 1)) }, nil},
		{"css scoped to a parent", func() ([]int, error) {
			return doc.resolve(selector.WithChild(selector.CSS("form"), selector.CSS("button")))
		}, []int{7}},
		{"role scoped to a testid", func() ([]int, error) {
			return doc.resolve(selector.WithChild(selector.TestID("promo"), selector.Role("button", "Save", true)))
		}, nil},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := tc.desc()
			require.NoError(t, err)
			assert.Equal(t, tc.want, got)
		})
	}
}

func TestDocument_ResolveErrors(t *testing.T) {
	doc, err := newDocument(snapshotPayload{
		Elements: checkoutFacts(),
		CSS:      []cssResult{{Error: "'[' is not a valid selector"}},
	}, []string{"["}, "data-testid")
	require.NoError(t, err)

	_, err = doc.resolve(selector.CSS("["))
	assert.ErrorIs(t, err, selector.ErrInvalidDescriptor)

	_, err = doc.resolve(selector.CSS("main"))
	assert.Error(t, err, "selectors missing from the snapshot are reported")
}

func TestDocument_Describe(t *testing.T) {
	doc := checkoutDocument(t, nil)

	email := doc.describe(6)
	assert.Equal(t, "m-6", email.Marker)
	assert.Equal(t, "input", email.Tag)
	assert.Equal(t, "textbox", email.Role)
	assert.Equal(t, "email", email.InputType)
	assert.Equal(t, "Email", email.Label)
	assert.True(t, email.Visible)
	assert.Equal(t, "Email", selector.AccessibleName(email))

	promo := doc.describe(8)
	assert.False(t, promo.Visible)
	assert.Equal(t, "promo", selector.TestIDValue(promo, "data-testid"))
	assert.Equal(t, 1, promo.NthOfType)
}

func TestDocument_Ancestors(t *testing.T) {
	doc := checkoutDocument(t, nil)
	assert.Equal(t, []int{4, 1}, doc.ancestors(6, 0), "html is never an ancestor")
	assert.Equal(t, []int{4}, doc.ancestors(6, 1))
	assert.Empty(t, doc.ancestors(1, 0))

	i, err := doc.index("m-9")
	require.NoError(t, err)
	assert.Equal(t, 9, i)
	_, err = doc.index("gone")
	assert.ErrorIs(t, err, selector.ErrNotFound)
}

func TestNewDocument_RejectsMalformedPayloads(t *testing.T) {
	_, err := newDocument(snapshotPayload{
		Elements: []elementFacts{{Marker: "m-0", Parent: 0, Tag: "html"}},
	}, nil, "data-testid")
	assert.Error(t, err)

	_, err = newDocument(snapshotPayload{Elements: checkoutFacts()}, []string{"button"}, "data-testid")
	assert.Error(t, err)
}

func TestCSSSelectors(t *testing.T) {
	chain := selector.WithChild(selector.CSS("form"), selector.WithChild(selector.Role("group", "", false), selector.CSS("button")))
	assert.Equal(t, []string{"form", "button"}, cssSelectors(chain))
	assert.Nil(t, cssSelectors(selector.Text("Save", true)))
}

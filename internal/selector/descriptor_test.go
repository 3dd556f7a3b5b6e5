package selector_test

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xkilldash9x/mimic-cli/api/schemas"
	"github.com/xkilldash9x/mimic-cli/internal/selector"
)

func TestValidate(t *testing.T) {
	negative := -1
	tests := []struct {
		name    string
		d       schemas.SelectorDescriptor
		wantErr bool
	}{
		{"TestID", selector.TestID("buy"), false},
		{"Role without name", selector.Role("button", "", false), false},
		{"Role missing role", schemas.SelectorDescriptor{Type: schemas.SelectorRole, Name: "x"}, true},
		{"Text missing value", schemas.SelectorDescriptor{Type: schemas.SelectorText}, true},
		{"CSS blank selector", selector.CSS("   "), true},
		{"Missing type", schemas.SelectorDescriptor{Value: "x"}, true},
		{"Unknown type", schemas.SelectorDescriptor{Type: "xpath", Value: "//a"}, true},
		{"Nth on role", selector.WithNth(selector.Role("radio", "Plan", true), 2), false},
		{"Nth on css", selector.WithNth(selector.CSS("a"), 0), true},
		{"Nth on testid", selector.WithNth(selector.TestID("row"), 1), true},
		{"Negative nth", schemas.SelectorDescriptor{Type: schemas.SelectorText, Value: "a", Nth: &negative}, true},
		{"Invalid child", selector.WithChild(selector.CSS("#a"), schemas.SelectorDescriptor{Type: schemas.SelectorLabel}), true},
		{"Valid chain", selector.WithChild(selector.CSS("#a"), selector.Text("Go", true)), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := selector.Validate(tt.d)
			if tt.wantErr {
				assert.ErrorIs(t, err, selector.ErrInvalidDescriptor)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestString(t *testing.T) {
	d := selector.WithInnermostNth(
		selector.WithChild(selector.WithNth(selector.Label("Billing", false), 1), selector.Role("button", "Save", true)),
		0)
	assert.Equal(t, `label="Billing" >> nth=1 >> role=button[name="Save"s] >> nth=0`, selector.String(d))
	assert.Equal(t, `role=link`, selector.String(selector.Role("link", "", true)))
	assert.Equal(t, `css=#x > a`, selector.String(selector.CSS("#x > a")))
	assert.Equal(t, `testid="buy"`, selector.String(selector.TestID("buy")))
}

func TestComposition_DeepCopies(t *testing.T) {
	parent := selector.CSS("#a")
	child := selector.Text("Go", true)

	nested := selector.WithChild(parent, child)
	require.NotNil(t, nested.Child)
	assert.Nil(t, parent.Child, "WithChild must not mutate the parent")
	assert.Equal(t, 2, selector.Depth(nested))

	deeper := selector.WithChild(nested, selector.Role("button", "", false))
	assert.Equal(t, 3, selector.Depth(deeper))
	assert.Equal(t, 2, selector.Depth(nested), "extending a chain must not mutate it")

	indexed := selector.WithInnermostNth(deeper, 4)
	require.NotNil(t, indexed.Child.Child.Nth)
	assert.Equal(t, 4, *indexed.Child.Child.Nth)
	assert.Nil(t, deeper.Child.Child.Nth)
	assert.Nil(t, indexed.Nth)
}

func TestDescriptor_JSONShape(t *testing.T) {
	d := selector.WithNth(selector.Role("button", "Save", false), 0)
	data, err := json.Marshal(d)
	require.NoError(t, err)
	assert.JSONEq(t, `{"type":"role","role":"button","name":"Save","nth":0}`, string(data))

	nested := selector.WithChild(selector.TestID("card"), selector.Text("Buy", true))
	data, err = json.Marshal(nested)
	require.NoError(t, err)
	assert.JSONEq(t, `{"type":"testid","value":"card","child":{"type":"text","value":"Buy","exact":true}}`, string(data))
}

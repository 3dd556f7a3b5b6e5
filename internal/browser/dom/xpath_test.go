package dom_test

import (
	"strings"
	"testing"

	"github.com/antchfx/htmlquery"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xkilldash9x/mimic-cli/internal/browser/dom"
)

const structureHTML = `
	<html>
	<body>
		<header id="top">
			<h1>Checkout</h1>
		</header>
		<form>
			<fieldset><input name="a"><input name="b"></fieldset>
			<fieldset>
				<button>Back</button>
				<button>Next</button>
				<button id="pay">Pay</button>
			</fieldset>
		</form>
	</body>
	</html>
	`

func TestGenerateUniqueXPath(t *testing.T) {
	doc, err := htmlquery.Parse(strings.NewReader(structureHTML))
	require.NoError(t, err)

	tests := []struct {
		name     string
		target   string
		expected string
	}{
		{"Body", "//body", "/html[1]/body[1]"},
		{"Anchored on id", "//header", `//*[@id='top']`},
		{"Child of id element", "//h1", `//*[@id='top']/h1[1]`},
		{"Second same-tag sibling", "//input[@name='b']", "/html[1]/body[1]/form[1]/fieldset[1]/input[2]"},
		{"Second fieldset", "//button[text()='Next']", "/html[1]/body[1]/form[1]/fieldset[2]/button[2]"},
		{"Element with own id", "//button[@id='pay']", `//*[@id='pay']`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			node := htmlquery.FindOne(doc, tt.target)
			require.NotNil(t, node, "setup: %s matched nothing", tt.target)

			got := dom.GenerateUniqueXPath(node)
			assert.Equal(t, tt.expected, got)
			assert.Equal(t, node, htmlquery.FindOne(doc, got), "generated xpath must select the original node")
		})
	}
}

func TestNthOfType(t *testing.T) {
	doc, err := htmlquery.Parse(strings.NewReader(structureHTML))
	require.NoError(t, err)

	assert.Equal(t, 1, dom.NthOfType(htmlquery.FindOne(doc, "//body")))
	assert.Equal(t, 2, dom.NthOfType(htmlquery.FindOne(doc, "//input[@name='b']")))
	assert.Equal(t, 3, dom.NthOfType(htmlquery.FindOne(doc, "//button[@id='pay']")))
	assert.Equal(t, 0, dom.NthOfType(nil))
}

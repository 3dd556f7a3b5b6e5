// browser/dom/xpath.go
package dom

import (
	"fmt"
	"strings"

	"github.com/antchfx/htmlquery"
	"golang.org/x/net/html"
)

// NthOfType returns the 1-based index of n among its same-tag element siblings.
func NthOfType(n *html.Node) int {
	if n == nil || n.Type != html.ElementNode {
		return 0
	}
	tag := strings.ToLower(n.Data)
	index := 1
	for prev := n.PrevSibling; prev != nil; prev = prev.PrevSibling {
		if prev.Type == html.ElementNode && strings.ToLower(prev.Data) == tag {
			index++
		}
	}
	return index
}

// GenerateUniqueXPath generates an XPath for n, anchored on the nearest id.
// It is used to name elements in the action log.
func GenerateUniqueXPath(n *html.Node) string {
	if n == nil {
		return ""
	}

	var path []string
	for cur := n; cur != nil && cur.Type != html.DocumentNode; cur = cur.Parent {
		if cur.Type != html.ElementNode {
			continue
		}
		tag := strings.ToLower(cur.Data)
		if id := htmlquery.SelectAttr(cur, "id"); id != "" {
			path = append(path, fmt.Sprintf(`//*[@id='%s']`, id))
			break
		}
		path = append(path, fmt.Sprintf("%s[%d]", tag, NthOfType(cur)))
	}
	if len(path) == 0 {
		return "/"
	}

	for i, j := 0, len(path)-1; i < j; i, j = i+1, j-1 {
		path[i], path[j] = path[j], path[i]
	}
	xpath := strings.Join(path, "/")
	if !strings.HasPrefix(xpath, "//*[@id=") {
		xpath = "/" + xpath
	}
	return xpath
}

// elementAncestors returns the element ancestors of n, nearest first,
// excluding the html root.
func elementAncestors(n *html.Node) []*html.Node {
	var out []*html.Node
	for p := n.Parent; p != nil && p.Type == html.ElementNode; p = p.Parent {
		if strings.EqualFold(p.Data, "html") {
			break
		}
		out = append(out, p)
	}
	return out
}

package receipt

import (
	"fmt"
	"strings"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

// Row is one name/price pair lifted from a basket view.
type Row struct {
	Name  string
	Price string
}

// ParseView extracts line-item rows from the store-rendered basket markup.
//
// A line item is any element with class "row" that has no earlier <hr>
// sibling; rows after the divider are the totals/discount footer. Within a row
// the first ".left" descendant holds the name and the first ".right" the price.
// Rows missing either part are dropped.
func ParseView(view string) ([]Row, error) {
	doc, err := html.Parse(strings.NewReader(view))
	if err != nil {
		return nil, fmt.Errorf("ParseView: parsing markup: %w", err)
	}

	var rows []Row
	walk(doc, func(n *html.Node) {
		if !hasClass(n, "row") || followsDivider(n) {
			return
		}

		name := textOf(findFirst(n, "left"))
		price := textOf(findFirst(n, "right"))
		if name == "" || price == "" {
			return
		}

		rows = append(rows, Row{Name: name, Price: price})
	})

	return rows, nil
}

// walk visits n and its descendants in document order.
func walk(n *html.Node, visit func(*html.Node)) {
	visit(n)
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		walk(c, visit)
	}
}

func hasClass(n *html.Node, class string) bool {
	if n == nil || n.Type != html.ElementNode {
		return false
	}
	for _, attr := range n.Attr {
		if attr.Key != "class" {
			continue
		}
		for _, c := range strings.Fields(attr.Val) {
			if c == class {
				return true
			}
		}
	}
	return false
}

func followsDivider(n *html.Node) bool {
	for s := n.PrevSibling; s != nil; s = s.PrevSibling {
		if s.Type == html.ElementNode && s.DataAtom == atom.Hr {
			return true
		}
	}
	return false
}

// findFirst returns the first descendant of n (excluding n) carrying class.
func findFirst(n *html.Node, class string) *html.Node {
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if hasClass(c, class) {
			return c
		}
		if found := findFirst(c, class); found != nil {
			return found
		}
	}
	return nil
}

// textOf concatenates all text beneath n, trimmed.
func textOf(n *html.Node) string {
	if n == nil {
		return ""
	}
	var b strings.Builder
	walk(n, func(c *html.Node) {
		if c.Type == html.TextNode {
			b.WriteString(c.Data)
		}
	})
	return strings.TrimSpace(b.String())
}

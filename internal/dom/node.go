package dom

import (
	"bytes"
	"io"

	"github.com/andybalholm/cascadia"
	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

func Compile(sel string) (cascadia.Selector, error) {
	return cascadia.Compile(sel)
}

func IsElement(n *html.Node) bool {
	return n != nil && n.Type == html.ElementNode
}

func Matches(n *html.Node, sel cascadia.Selector) bool {
	return IsElement(n) && sel.Match(n)
}

// QueryAll returns the descendants of n matching sel in document order.
// n itself is never part of the result.
func QueryAll(n *html.Node, sel cascadia.Selector) []*html.Node {
	if n == nil {
		return nil
	}
	var out []*html.Node
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		out = append(out, sel.MatchAll(c)...)
	}
	return out
}

func QueryFirst(n *html.Node, sel cascadia.Selector) *html.Node {
	if n == nil {
		return nil
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if m := sel.MatchFirst(c); m != nil {
			return m
		}
	}
	return nil
}

func ElementByID(n *html.Node, id string) *html.Node {
	if n == nil || id == "" {
		return nil
	}
	if IsElement(n) {
		if v, ok := Attr(n, "id"); ok && v == id {
			return n
		}
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if m := ElementByID(c, id); m != nil {
			return m
		}
	}
	return nil
}

func Attr(n *html.Node, key string) (string, bool) {
	if !IsElement(n) {
		return "", false
	}
	for _, a := range n.Attr {
		if a.Namespace == "" && a.Key == key {
			return a.Val, true
		}
	}
	return "", false
}

// Contains reports whether n is root or one of its descendants.
func Contains(root, n *html.Node) bool {
	for ; n != nil; n = n.Parent {
		if n == root {
			return true
		}
	}
	return false
}

func ClearChildren(n *html.Node) {
	for c := n.FirstChild; c != nil; {
		next := c.NextSibling
		n.RemoveChild(c)
		c = next
	}
}

// AppendText appends <tag>text</tag> to parent. text always becomes a text
// node, so markup in it is escaped on render.
func AppendText(parent *html.Node, tag atom.Atom, text string) *html.Node {
	el := &html.Node{Type: html.ElementNode, DataAtom: tag, Data: tag.String()}
	el.AppendChild(&html.Node{Type: html.TextNode, Data: text})
	parent.AppendChild(el)
	return el
}

// ParseFragment parses an HTML partial as if it were the content of a <div>.
func ParseFragment(r io.Reader) ([]*html.Node, error) {
	return html.ParseFragment(r, &html.Node{Type: html.ElementNode, DataAtom: atom.Div, Data: "div"})
}

func RenderNodes(nodes []*html.Node) ([]byte, error) {
	var buf bytes.Buffer
	for _, n := range nodes {
		if err := html.Render(&buf, n); err != nil {
			return nil, err
		}
	}
	return buf.Bytes(), nil
}

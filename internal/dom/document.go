package dom

import (
	"io"
	"strings"

	"github.com/andybalholm/cascadia"
	"golang.org/x/net/html"
)

// Mutation is one batch of child list changes under an observed root.
type Mutation struct {
	Target  *html.Node
	Added   []*html.Node
	Removed []*html.Node
}

// Document is a parsed page whose structural changes can be observed.
// It is not safe for concurrent use; one goroutine owns it.
type Document struct {
	root *html.Node
	subs []*Subscription
}

type Subscription struct {
	doc    *Document
	rootID string
	fn     func(Mutation)
	active bool
}

func New() *Document {
	d, _ := Parse(strings.NewReader(""))
	return d
}

func Parse(r io.Reader) (*Document, error) {
	root, err := html.Parse(r)
	if err != nil {
		return nil, err
	}
	return &Document{root: root}, nil
}

func (d *Document) Root() *html.Node { return d.root }

// Load replaces the whole tree. Observers whose root exists in the new tree
// see its children as inserted.
func (d *Document) Load(r io.Reader) error {
	root, err := html.Parse(r)
	if err != nil {
		return err
	}
	d.root = root

	for _, s := range d.activeSubs() {
		target := ElementByID(d.root, s.rootID)
		if target == nil {
			continue
		}
		var added []*html.Node
		for c := target.FirstChild; c != nil; c = c.NextSibling {
			added = append(added, c)
		}
		if len(added) > 0 {
			s.fn(Mutation{Target: target, Added: added})
		}
	}
	return nil
}

func (d *Document) ElementByID(id string) *html.Node {
	return ElementByID(d.root, id)
}

func (d *Document) QueryAll(sel cascadia.Selector) []*html.Node {
	return QueryAll(d.root, sel)
}

func (d *Document) AppendChild(parent, child *html.Node) {
	parent.AppendChild(child)
	d.notify(Mutation{Target: parent, Added: []*html.Node{child}})
}

// AppendChildren appends nodes in order and reports them as one batch.
func (d *Document) AppendChildren(parent *html.Node, nodes []*html.Node) {
	for _, n := range nodes {
		parent.AppendChild(n)
	}
	if len(nodes) > 0 {
		d.notify(Mutation{Target: parent, Added: nodes})
	}
}

func (d *Document) RemoveChild(parent, child *html.Node) {
	parent.RemoveChild(child)
	d.notify(Mutation{Target: parent, Removed: []*html.Node{child}})
}

func (d *Document) Render(w io.Writer) error {
	return html.Render(w, d.root)
}

func (d *Document) String() string {
	var b strings.Builder
	_ = d.Render(&b)
	return b.String()
}

// Observe subscribes fn to child list changes anywhere in the subtree of the
// element with id rootID. The root is resolved on every change, so the
// subscription survives Load.
func (d *Document) Observe(rootID string, fn func(Mutation)) *Subscription {
	s := &Subscription{doc: d, rootID: rootID, fn: fn, active: true}
	d.subs = append(d.subs, s)
	return s
}

func (s *Subscription) Disconnect() {
	if s == nil || !s.active {
		return
	}
	s.active = false

	subs := s.doc.subs[:0]
	for _, o := range s.doc.subs {
		if o != s {
			subs = append(subs, o)
		}
	}
	s.doc.subs = subs
}

func (d *Document) notify(m Mutation) {
	for _, s := range d.activeSubs() {
		root := ElementByID(d.root, s.rootID)
		if root != nil && Contains(root, m.Target) {
			s.fn(m)
		}
	}
}

func (d *Document) activeSubs() []*Subscription {
	out := make([]*Subscription, 0, len(d.subs))
	for _, s := range d.subs {
		if s.active {
			out = append(out, s)
		}
	}
	return out
}

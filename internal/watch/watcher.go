package watch

import (
	"github.com/andybalholm/cascadia"
	"go.uber.org/zap"
	"golang.org/x/net/html"

	"OrderLens/internal/dom"
	"OrderLens/internal/render"
)

const (
	DefaultRootID       = "order-list"
	DefaultCardSelector = ".order-card"
)

type Enhancer interface {
	Enhance(card *html.Node) render.Outcome
}

// Watcher enhances order cards as they are inserted under the root container.
type Watcher struct {
	rootID   string
	card     cascadia.Selector
	enhancer Enhancer
	log      *zap.Logger

	// OnEnhance, when set, sees every outcome.
	OnEnhance func(render.Outcome)

	doc *dom.Document
	sub *dom.Subscription
}

func New(rootID, cardSelector string, e Enhancer, log *zap.Logger) (*Watcher, error) {
	if rootID == "" {
		rootID = DefaultRootID
	}
	if cardSelector == "" {
		cardSelector = DefaultCardSelector
	}
	if log == nil {
		log = zap.NewNop()
	}

	sel, err := dom.Compile(cardSelector)
	if err != nil {
		return nil, err
	}
	return &Watcher{rootID: rootID, card: sel, enhancer: e, log: log}, nil
}

// Start attaches to doc. It reports false when the root container is not
// there yet; the caller decides whether to try again.
func (w *Watcher) Start(doc *dom.Document) bool {
	if w.doc == doc && w.sub != nil {
		return true
	}
	root := doc.ElementByID(w.rootID)
	if root == nil {
		return false
	}

	w.Stop()
	w.doc = doc
	w.sub = doc.Observe(w.rootID, func(m dom.Mutation) {
		w.HandleInserted(m.Added)
	})

	n := w.enhanceUnder(root)
	w.log.Debug("watcher attached", zap.String("root", w.rootID), zap.Int("cards", n))
	return true
}

func (w *Watcher) Stop() {
	if w.sub != nil {
		w.sub.Disconnect()
	}
	w.sub = nil
	w.doc = nil
}

// Root returns the observed container in doc, or nil.
func (w *Watcher) Root(doc *dom.Document) *html.Node {
	return doc.ElementByID(w.rootID)
}

// Attached reports whether the watcher observes doc.
func (w *Watcher) Attached(doc *dom.Document) bool {
	return w.sub != nil && w.doc == doc
}

// HandleInserted enhances each inserted node that is a card, or else every
// card below it. It returns the number of cards visited.
func (w *Watcher) HandleInserted(nodes []*html.Node) int {
	n := 0
	for _, node := range nodes {
		if !dom.IsElement(node) {
			continue
		}
		if dom.Matches(node, w.card) {
			w.enhance(node)
			n++
			continue
		}
		n += w.enhanceUnder(node)
	}
	return n
}

// EnhanceAll enhances every card in doc, attached or not.
func (w *Watcher) EnhanceAll(doc *dom.Document) int {
	return w.enhanceUnder(doc.Root())
}

func (w *Watcher) enhanceUnder(n *html.Node) int {
	cards := dom.QueryAll(n, w.card)
	for _, c := range cards {
		w.enhance(c)
	}
	return len(cards)
}

func (w *Watcher) enhance(card *html.Node) {
	out := w.enhancer.Enhance(card)
	if w.OnEnhance != nil {
		w.OnEnhance(out)
	}
}

package render

import (
	"strconv"
	"strings"

	"github.com/andybalholm/cascadia"
	lru "github.com/hashicorp/golang-lru/v2"
	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"

	"OrderLens/internal/dom"
	"OrderLens/internal/orders"
)

type Outcome string

const (
	Enhanced          Outcome = "enhanced"
	SkippedNotElement Outcome = "not_element"
	SkippedNoRow      Outcome = "no_row"
	SkippedNoProducts Outcome = "no_products"
	SkippedNoList     Outcome = "no_list"
)

type Labels struct {
	Color    string
	Size     string
	Quantity string
	Price    string
}

var DefaultLabels = Labels{
	Color:    "اللون: ",
	Size:     "المقاس: ",
	Quantity: "الكمية: ",
	Price:    "السعر: ",
}

const (
	DefaultRowAttr      = "data-row"
	DefaultListSelector = ".order-details ul"
	DefaultMemoSize     = 4096
)

type Config struct {
	RowAttr      string
	ListSelector string
	Labels       Labels
	MemoSize     int
}

// Renderer rewrites the item list of an order card from the cache.
type Renderer struct {
	cache   *orders.Cache
	rowAttr string
	list    cascadia.Selector
	labels  Labels
	memo    *lru.Cache[string, []string]
}

func New(cache *orders.Cache, cfg Config) (*Renderer, error) {
	if cfg.RowAttr == "" {
		cfg.RowAttr = DefaultRowAttr
	}
	if cfg.ListSelector == "" {
		cfg.ListSelector = DefaultListSelector
	}
	if cfg.Labels == (Labels{}) {
		cfg.Labels = DefaultLabels
	}
	if cfg.MemoSize <= 0 {
		cfg.MemoSize = DefaultMemoSize
	}

	list, err := dom.Compile(cfg.ListSelector)
	if err != nil {
		return nil, err
	}
	memo, err := lru.New[string, []string](cfg.MemoSize)
	if err != nil {
		return nil, err
	}

	return &Renderer{
		cache:   cache,
		rowAttr: cfg.RowAttr,
		list:    list,
		labels:  cfg.Labels,
		memo:    memo,
	}, nil
}

// Enhance replaces the content of the card's item list with one entry per
// cached product. When anything it needs is missing the card is left as is.
func (r *Renderer) Enhance(card *html.Node) Outcome {
	if !dom.IsElement(card) {
		return SkippedNotElement
	}
	row, ok := dom.Attr(card, r.rowAttr)
	if !ok || row == "" {
		return SkippedNoRow
	}
	lines, ok := r.Lines(row)
	if !ok {
		return SkippedNoProducts
	}
	ul := dom.QueryFirst(card, r.list)
	if ul == nil {
		return SkippedNoList
	}

	dom.ClearChildren(ul)
	for _, l := range lines {
		dom.AppendText(ul, atom.Li, l)
	}
	return Enhanced
}

// Lines returns the formatted entries for row, or false when the row has no
// products in the cache.
func (r *Renderer) Lines(row string) ([]string, bool) {
	snap := r.cache.Snapshot()
	key := strconv.FormatUint(snap.Generation, 10) + "/" + row
	if lines, ok := r.memo.Get(key); ok {
		return lines, true
	}

	products, ok := snap.Products(row)
	if !ok || len(products) == 0 {
		return nil, false
	}

	lines := make([]string, 0, len(products))
	for _, p := range products {
		lines = append(lines, r.labels.Line(p))
	}
	r.memo.Add(key, lines)
	return lines, true
}

// Snapshot is the cache snapshot lines are currently rendered from.
func (r *Renderer) Snapshot() *orders.Snapshot {
	return r.cache.Snapshot()
}

func (r *Renderer) Products(row string) ([]orders.Product, bool) {
	return r.cache.Products(row)
}

// Line formats one product:
// name[ — color | size] (quantity) - price.
func (l Labels) Line(p orders.Product) string {
	var b strings.Builder
	b.WriteString(p.Name)

	var bits []string
	if p.Color != "" {
		bits = append(bits, l.Color+p.Color)
	}
	if p.Size != "" {
		bits = append(bits, l.Size+p.Size)
	}
	if len(bits) > 0 {
		b.WriteString(" — ")
		b.WriteString(strings.Join(bits, " | "))
	}

	b.WriteString(" (")
	b.WriteString(l.Quantity)
	b.WriteString(p.Quantity)
	b.WriteString(") - ")
	b.WriteString(l.Price)
	b.WriteString(p.Price)
	return b.String()
}

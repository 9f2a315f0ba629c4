package orders

import (
	"slices"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
)

// Snapshot is one immutable generation of the cache.
type Snapshot struct {
	ID         string
	Generation uint64
	LoadedAt   time.Time

	rows map[string][]Product
}

func (s *Snapshot) Len() int {
	if s == nil {
		return 0
	}
	return len(s.rows)
}

// Cache maps row ids to product lists. It is replaced wholesale on every
// refresh and never merged; readers see either the old or the new snapshot.
type Cache struct {
	cur atomic.Pointer[Snapshot]
	gen atomic.Uint64
}

func NewCache() *Cache {
	c := &Cache{}
	c.cur.Store(&Snapshot{rows: map[string][]Product{}})
	return c
}

// Replace installs rows as the new contents. The map must not be modified
// by the caller afterwards.
func (c *Cache) Replace(rows map[string][]Product) *Snapshot {
	if rows == nil {
		rows = map[string][]Product{}
	}
	s := &Snapshot{
		ID:         uuid.NewString(),
		Generation: c.gen.Add(1),
		LoadedAt:   time.Now().UTC(),
		rows:       rows,
	}
	c.cur.Store(s)
	return s
}

func (c *Cache) Snapshot() *Snapshot {
	return c.cur.Load()
}

// Products returns the list for row. The returned slice is shared and must
// be treated as read-only.
func (c *Cache) Products(row string) ([]Product, bool) {
	return c.Snapshot().Products(row)
}

func (s *Snapshot) Products(row string) ([]Product, bool) {
	if s == nil {
		return nil, false
	}
	p, ok := s.rows[row]
	return p, ok
}

// Rows returns the row ids present in the snapshot, sorted.
func (s *Snapshot) Rows() []string {
	if s == nil {
		return nil
	}
	out := make([]string, 0, len(s.rows))
	for r := range s.rows {
		out = append(out, r)
	}
	slices.Sort(out)
	return out
}

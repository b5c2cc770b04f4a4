package confluence

import (
	"marketstructure/internal/bar"
	"marketstructure/internal/timeframe"
)

// Registry is the deduplicated, insertion-ordered collection of gaps for one timeframe.
type Registry struct {
	fvgs []FairValueGap
	seen map[[3]int64]struct{}
}

func NewRegistry() *Registry {
	return &Registry{seen: make(map[[3]int64]struct{})}
}

// Add appends the gaps whose identity is not yet present and returns how many were new.
func (r *Registry) Add(gaps ...FairValueGap) int {
	added := 0
	for _, g := range gaps {
		if _, ok := r.seen[g.RelatedTimestamps]; ok {
			continue
		}
		r.seen[g.RelatedTimestamps] = struct{}{}
		r.fvgs = append(r.fvgs, g)
		added++
	}
	return added
}

func (r *Registry) Reset() {
	r.fvgs = nil
	r.seen = make(map[[3]int64]struct{})
}

// FVGs returns a copy of the recorded gaps in first-insertion order.
func (r *Registry) FVGs() []FairValueGap {
	out := make([]FairValueGap, len(r.fvgs))
	copy(out, r.fvgs)
	return out
}

func (r *Registry) Len() int {
	return len(r.fvgs)
}

func (r *Registry) Clone() *Registry {
	c := NewRegistry()
	c.Add(r.fvgs...)
	return c
}

// Book holds one Registry per timeframe.
type Book map[timeframe.Timeframe]*Registry

// NewBook returns a Book with an empty registry for every supported timeframe.
func NewBook() Book {
	b := make(Book, len(timeframe.All()))
	for _, tf := range timeframe.All() {
		b[tf] = NewRegistry()
	}
	return b
}

// Detect runs gap detection over bars and records the results under tf.
// It returns the number of gaps not seen before.
func (b Book) Detect(tf timeframe.Timeframe, bars []bar.Bar) int {
	reg, ok := b[tf]
	if !ok {
		reg = NewRegistry()
		b[tf] = reg
	}
	return reg.Add(Detect(bars, tf)...)
}

// Snapshot deep-copies every registry.
func (b Book) Snapshot() Book {
	out := make(Book, len(b))
	for tf, reg := range b {
		out[tf] = reg.Clone()
	}
	return out
}

// Reset empties every registry and makes sure all timeframes are present.
func (b Book) Reset() {
	for _, tf := range timeframe.All() {
		if reg, ok := b[tf]; ok {
			reg.Reset()
			continue
		}
		b[tf] = NewRegistry()
	}
}

// Count returns the number of gaps across all timeframes.
func (b Book) Count() int {
	n := 0
	for _, reg := range b {
		n += reg.Len()
	}
	return n
}

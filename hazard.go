package lfqueue

import (
	"sync/atomic"
)

// Hazard pointers after Maged M. Michael, "Hazard Pointers: Safe Memory
// Reclamation for Lock-Free Objects", IEEE TPDS 2004.

const (
	hazardsPerGuard = 2
	retireThreshold = 64
)

// hazardRecord is the per-guard state. Its hazards are read by every scan;
// everything else is touched only by the goroutine holding the guard.
type hazardRecord[N any] struct {
	hazards [hazardsPerGuard]atomic.Pointer[N]
	retired []*N
	scratch map[*N]struct{}
}

// overflowRecord is a record allocated once the slab is exhausted. Overflow
// records are linked into a list that only grows; a released one is marked
// inactive and reused by a later acquire.
type overflowRecord[N any] struct {
	hazardRecord[N]
	active atomic.Bool
	next   *overflowRecord[N]
}

// reclaimer coordinates safe reuse of nodes of type N. Guard records come
// from a fixed slab first and from the overflow list after that; a node
// retired through a guard is handed to reclaim only once no record protects
// it.
type reclaimer[N any] struct {
	records  *Slab[hazardRecord[N]]
	overflow atomic.Pointer[overflowRecord[N]]
	reclaim  func(*N)
}

func newReclaimer[N any](maxGuards int, b Backoff, reclaim func(*N)) *reclaimer[N] {
	return &reclaimer[N]{
		records: NewSlab[hazardRecord[N]](uint64(maxGuards), WithBackoff(b)),
		reclaim: reclaim,
	}
}

// guard is a goroutine's handle on one hazard record. It must not be shared
// between goroutines and must be released when the goroutine is done.
type guard[N any] struct {
	r   *reclaimer[N]
	idx uint64
	ovf *overflowRecord[N] // nil for slab records
	rec *hazardRecord[N]
}

// acquire registers the calling goroutine. It never waits: with every slab
// record held it takes an inactive overflow record or links a new one.
func (r *reclaimer[N]) acquire() guard[N] {
	if idx, ok := r.records.Acquire(); ok {
		return guard[N]{r: r, idx: idx, rec: r.records.At(idx)}
	}
	for o := r.overflow.Load(); o != nil; o = o.next {
		if !o.active.Load() && o.active.CompareAndSwap(false, true) {
			return guard[N]{r: r, ovf: o, rec: &o.hazardRecord}
		}
	}
	o := &overflowRecord[N]{}
	o.active.Store(true)
	for {
		head := r.overflow.Load()
		o.next = head
		if r.overflow.CompareAndSwap(head, o) {
			return guard[N]{r: r, ovf: o, rec: &o.hazardRecord}
		}
	}
}

// overflowLen returns the number of overflow records ever linked.
func (r *reclaimer[N]) overflowLen() int {
	n := 0
	for o := r.overflow.Load(); o != nil; o = o.next {
		n++
	}
	return n
}

// protect publishes the current value of src in hazard slot i and returns
// it once src is seen unchanged after publication. From then on the node
// cannot be reclaimed until the slot is cleared or overwritten.
func (g *guard[N]) protect(i int, src *atomic.Pointer[N]) *N {
	p := src.Load()
	for {
		g.rec.hazards[i].Store(p)
		q := src.Load()
		if q == p {
			return p
		}
		p = q
	}
}

// set publishes p in hazard slot i without validation; the caller validates.
func (g *guard[N]) set(i int, p *N) {
	g.rec.hazards[i].Store(p)
}

func (g *guard[N]) clear() {
	for i := range g.rec.hazards {
		g.rec.hazards[i].Store(nil)
	}
}

// retire hands n over for reclamation. n must already be unreachable from
// the shared structure.
func (g *guard[N]) retire(n *N) {
	g.rec.retired = append(g.rec.retired, n)
	if len(g.rec.retired) >= retireThreshold {
		g.scan()
	}
}

// scan reclaims every retired node that no record protects.
func (g *guard[N]) scan() {
	if g.rec.scratch == nil {
		g.rec.scratch = make(map[*N]struct{}, hazardsPerGuard*g.r.records.Capacity())
	}
	protected := g.rec.scratch
	clear(protected)

	for i := uint64(0); i < g.r.records.Capacity(); i++ {
		collectHazards(protected, g.r.records.At(i))
	}
	for o := g.r.overflow.Load(); o != nil; o = o.next {
		collectHazards(protected, &o.hazardRecord)
	}

	kept := g.rec.retired[:0]
	for _, n := range g.rec.retired {
		if _, ok := protected[n]; ok {
			kept = append(kept, n)
			continue
		}
		g.r.reclaim(n)
	}
	clear(g.rec.retired[len(kept):])
	g.rec.retired = kept
}

func collectHazards[N any](into map[*N]struct{}, rec *hazardRecord[N]) {
	for j := range rec.hazards {
		if p := rec.hazards[j].Load(); p != nil {
			into[p] = struct{}{}
		}
	}
}

// release clears the guard's hazards and returns the record to the
// registry. Retired nodes stay on the record and are scanned by its next
// holder.
func (g *guard[N]) release() {
	g.clear()
	if g.ovf != nil {
		g.ovf.active.Store(false)
	} else {
		g.r.records.Release(g.idx)
	}
	g.rec = nil
}

// flush reclaims every retired node of the guard that no record protects.
// Nodes still protected elsewhere stay on the record.
func (g *guard[N]) flush() {
	if len(g.rec.retired) > 0 {
		g.scan()
	}
}

// Package barrier inserts write barriers behind pointer stores so the
// garbage collector sees every cross-generation reference. It runs on
// lowered graphs, after high-level field accesses have become Writes.
package barrier

import "github.com/seaofnodes/sea/pkg/ir"

// Apply inserts a WriteBarrier directly after every Write that stores a
// pointer into a heap object, and returns how many were added. Writes that
// already carry a barrier are left alone, so the pass is idempotent.
func Apply(g *ir.Graph) int {
	added := 0
	for _, w := range ir.NodesOf[*ir.WriteNode](g) {
		if !needsBarrier(w) {
			continue
		}
		b := ir.NewWriteBarrier(g, w.Object())
		g.InsertAfter(w, b)
		added++
	}
	return added
}

func needsBarrier(w *ir.WriteNode) bool {
	v := w.Value()
	if v == nil || v.Stamp().Kind != ir.KindPtr {
		return false
	}
	if w.Object() == nil {
		return false
	}
	if b, ok := w.Successor(0).(*ir.WriteBarrierNode); ok && b.Object() == w.Object() {
		return false
	}
	return true
}

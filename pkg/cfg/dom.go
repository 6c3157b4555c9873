package cfg

// Dominator computation: the iterative algorithm over reverse postorder
// (Cooper/Harvey/Kennedy). Blocks[] is already in reverse postorder, so
// Index doubles as the RPO number.

func computeDominators(c *ControlFlowGraph) {
	entry := c.Blocks[0]
	entry.Dom = nil

	idom := make([]*Block, len(c.Blocks))
	idom[0] = entry

	changed := true
	for changed {
		changed = false
		for _, b := range c.Blocks[1:] {
			var newIdom *Block
			for _, p := range b.Preds {
				if idom[p.Index] == nil {
					continue
				}
				if newIdom == nil {
					newIdom = p
				} else {
					newIdom = intersect(idom, p, newIdom)
				}
			}
			if newIdom != nil && idom[b.Index] != newIdom {
				idom[b.Index] = newIdom
				changed = true
			}
		}
	}

	for _, b := range c.Blocks[1:] {
		b.Dom = idom[b.Index]
		if b.Dom == b {
			b.Dom = nil
		}
	}
	// Depths for fast Dominates queries.
	for _, b := range c.Blocks {
		d := 0
		for a := b.Dom; a != nil; a = a.Dom {
			d++
		}
		b.DomDepth = d
	}
}

func intersect(idom []*Block, a, b *Block) *Block {
	for a != b {
		for a.Index > b.Index {
			a = idom[a.Index]
		}
		for b.Index > a.Index {
			b = idom[b.Index]
		}
	}
	return a
}

// computePostdominators runs the same algorithm on the reversed CFG. All
// blocks without successors hang off a virtual exit; their PostDom stays
// nil. Blocks that cannot reach an exit (infinite loops) also keep a nil
// PostDom.
func computePostdominators(c *ControlFlowGraph) {
	// Postorder of the reversed graph, rooted at the exit blocks.
	var po []*Block
	seen := make(map[*Block]bool)
	var visit func(b *Block)
	visit = func(b *Block) {
		if seen[b] {
			return
		}
		seen[b] = true
		for _, p := range b.Preds {
			visit(p)
		}
		po = append(po, b)
	}
	for _, b := range c.Blocks {
		if len(b.Succs) == 0 {
			visit(b)
		}
	}

	num := make(map[*Block]int, len(po))
	for i, b := range po {
		num[b] = i
	}
	const vexit = int(^uint(0) >> 1) // virtual exit: highest number
	ip := make(map[*Block]int, len(po))
	for _, b := range po {
		if len(b.Succs) == 0 {
			ip[b] = vexit
		}
	}

	// intersect walks ipdom chains, which strictly increase toward the
	// virtual exit.
	intersect := func(a, b int) int {
		for a != b {
			for a < b {
				a = ip[po[a]]
			}
			for b < a {
				b = ip[po[b]]
			}
		}
		return a
	}

	changed := true
	for changed {
		changed = false
		for i := len(po) - 1; i >= 0; i-- {
			b := po[i]
			if len(b.Succs) == 0 {
				continue
			}
			newIp := -1
			for _, s := range b.Succs {
				sn, reachable := num[s]
				if !reachable {
					continue
				}
				if _, processed := ip[s]; !processed {
					continue
				}
				if newIp == -1 {
					newIp = sn
				} else {
					newIp = intersect(newIp, sn)
				}
			}
			if newIp == -1 {
				continue
			}
			if old, ok := ip[b]; !ok || old != newIp {
				ip[b] = newIp
				changed = true
			}
		}
	}

	for _, b := range po {
		if len(b.Succs) == 0 {
			continue
		}
		if p, ok := ip[b]; ok && p != vexit {
			b.PostDom = po[p]
		}
	}
}

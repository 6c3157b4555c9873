package cfg

import "github.com/seaofnodes/sea/pkg/ir"

// Loop discovery. Loops are structured: every loop is rooted at a
// LoopBeginNode with LoopEnd back edges and LoopExit exits, so membership
// is the classic natural-loop walk backwards from the back edges.
func computeLoops(c *ControlFlowGraph) {
	for _, header := range c.Blocks {
		lb, ok := header.Begin.(*ir.LoopBeginNode)
		if !ok {
			continue
		}
		loop := &Loop{Header: header, Begin: lb}

		member := map[*Block]bool{header: true}
		var stack []*Block
		for _, le := range lb.LoopEnds() {
			if b := c.BlockFor(le); b != nil && !member[b] {
				member[b] = true
				stack = append(stack, b)
			}
		}
		for len(stack) > 0 {
			b := stack[len(stack)-1]
			stack = stack[:len(stack)-1]
			for _, p := range b.Preds {
				if !member[p] {
					member[p] = true
					stack = append(stack, p)
				}
			}
		}
		for _, b := range c.Blocks {
			if member[b] {
				loop.Blocks = append(loop.Blocks, b)
			}
		}

		for _, n := range ir.NodesOf[*ir.LoopExitNode](c.Graph) {
			if n.LoopBegin() == lb {
				if b := c.BlockFor(n); b != nil {
					loop.Exits = append(loop.Exits, b)
				}
			}
		}

		c.Loops = append(c.Loops, loop)
	}

	// Nesting: a loop's parent is the smallest other loop containing its
	// header. Blocks record their innermost loop.
	for _, l := range c.Loops {
		for _, outer := range c.Loops {
			if outer == l || !contains(outer, l.Header) {
				continue
			}
			if l.Parent == nil || len(outer.Blocks) < len(l.Parent.Blocks) {
				l.Parent = outer
			}
		}
	}
	for _, l := range c.Loops {
		l.Depth = 1
		for p := l.Parent; p != nil; p = p.Parent {
			l.Depth++
		}
	}
	for _, l := range c.Loops {
		for _, b := range l.Blocks {
			if b.Loop == nil || l.Depth > b.Loop.Depth {
				b.Loop = l
			}
		}
	}
}

func contains(l *Loop, b *Block) bool {
	for _, m := range l.Blocks {
		if m == b {
			return true
		}
	}
	return false
}

// LoopFor returns the loop rooted at the given LoopBegin, or nil.
func (c *ControlFlowGraph) LoopFor(lb *ir.LoopBeginNode) *Loop {
	for _, l := range c.Loops {
		if l.Begin == lb {
			return l
		}
	}
	return nil
}

// ContainsNode reports whether the fixed node n is inside the loop.
func (l *Loop) ContainsNode(c *ControlFlowGraph, n ir.Node) bool {
	b := c.BlockFor(n)
	return b != nil && contains(l, b)
}

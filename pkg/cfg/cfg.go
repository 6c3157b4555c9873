// Package cfg derives basic-block structure from the fixed-node skeleton of
// an IR graph: blocks, predecessor/successor edges, dominator and
// postdominator trees, and loop membership. The structure is a throwaway
// view; passes recompute it after mutating the graph.
package cfg

import (
	"fmt"
	"strings"

	"github.com/seaofnodes/sea/pkg/ir"
)

// Block is a basic block: a leader node, the ordered fixed nodes of the
// block, and the derived relations computed by Compute.
type Block struct {
	Index int // position in reverse postorder

	Begin ir.Node // leader: Start, Begin, Merge, LoopBegin or LoopExit
	End   ir.Node // last fixed node: If, Return, End, LoopEnd...

	// Fixed holds the block's fixed nodes in control order, Begin first.
	Fixed []ir.Node

	Preds []*Block
	Succs []*Block

	Dom      *Block // immediate dominator, nil for the entry block
	DomDepth int
	PostDom  *Block // immediate postdominator, nil at exits

	Loop *Loop // innermost containing loop, or nil
}

func (b *Block) String() string { return fmt.Sprintf("B%d", b.Index) }

// LoopDepth returns the loop nesting depth (0 outside any loop).
func (b *Block) LoopDepth() int {
	if b.Loop == nil {
		return 0
	}
	return b.Loop.Depth
}

// Dominates reports whether b dominates other (reflexively).
func (b *Block) Dominates(other *Block) bool {
	for other != nil && other.DomDepth >= b.DomDepth {
		if other == b {
			return true
		}
		other = other.Dom
	}
	return false
}

// Loop is a natural loop rooted at a LoopBegin header.
type Loop struct {
	Header *Block
	Begin  *ir.LoopBeginNode
	Blocks []*Block
	Exits  []*Block // blocks led by the loop's LoopExit nodes
	Parent *Loop
	Depth  int // 1 for outermost loops
}

// ControlFlowGraph is the block view over one graph.
type ControlFlowGraph struct {
	Graph  *ir.Graph
	Blocks []*Block // reverse postorder; Blocks[0] is the entry
	Loops  []*Loop

	blockOf map[ir.NodeID]*Block
}

// BlockFor returns the block containing the given fixed node, or nil.
func (c *ControlFlowGraph) BlockFor(n ir.Node) *Block {
	if n == nil {
		return nil
	}
	return c.blockOf[n.ID()]
}

// Entry returns the block of the Start node.
func (c *ControlFlowGraph) Entry() *Block { return c.Blocks[0] }

func isLeader(n ir.Node) bool {
	switch n.(type) {
	case *ir.StartNode, *ir.BeginNode, *ir.MergeNode, *ir.LoopBeginNode, *ir.LoopExitNode:
		return true
	}
	return false
}

// Compute builds the block structure, dominators, postdominators and loops
// for the graph's current fixed skeleton.
func Compute(g *ir.Graph) *ControlFlowGraph {
	c := &ControlFlowGraph{Graph: g, blockOf: make(map[ir.NodeID]*Block)}

	var start *ir.StartNode
	for _, n := range g.Nodes() {
		if s, ok := n.(*ir.StartNode); ok {
			start = s
			break
		}
	}
	if start == nil {
		ir.Fatalf(g, nil, "graph has no start node")
	}

	// Carve blocks by walking forward from each leader.
	blocks := make(map[ir.NodeID]*Block)
	var all []*Block
	for _, n := range g.Nodes() {
		if !isLeader(n) {
			continue
		}
		b := &Block{Begin: n}
		cur := n
		for {
			b.Fixed = append(b.Fixed, cur)
			c.blockOf[cur.ID()] = b
			if len(cur.Successors()) != 1 {
				break
			}
			next := cur.Successor(0)
			if next == nil || isLeader(next) {
				break
			}
			cur = next
		}
		b.End = b.Fixed[len(b.Fixed)-1]
		blocks[n.ID()] = b
		all = append(all, b)
	}

	// Successor edges from each block end.
	edge := func(from *Block, toLeader ir.Node) {
		to := blocks[toLeader.ID()]
		if to == nil {
			ir.Fatalf(g, toLeader, "control edge to a non-leader node")
		}
		from.Succs = append(from.Succs, to)
		to.Preds = append(to.Preds, from)
	}
	for _, b := range all {
		switch end := b.End.(type) {
		case *ir.IfNode:
			edge(b, end.TrueSuccessor())
			edge(b, end.FalseSuccessor())
		case *ir.EndNode:
			edge(b, mergeOf(g, end))
		case *ir.LoopEndNode:
			edge(b, end.LoopBegin())
		case *ir.ReturnNode:
			// no successors
		default:
			if len(end.Successors()) == 1 && end.Successor(0) != nil {
				edge(b, end.Successor(0))
			}
		}
	}

	// Reverse postorder from the entry block.
	entry := blocks[start.ID()]
	c.Blocks = reversePostorder(entry)
	for i, b := range c.Blocks {
		b.Index = i
	}

	computeDominators(c)
	computePostdominators(c)
	computeLoops(c)
	return c
}

// mergeOf finds the merge consuming an end node.
func mergeOf(g *ir.Graph, end *ir.EndNode) ir.Node {
	for _, u := range end.Usages() {
		switch u.(type) {
		case *ir.MergeNode, *ir.LoopBeginNode:
			return u
		}
	}
	ir.Fatalf(g, end, "end node without a merge")
	return nil
}

func reversePostorder(entry *Block) []*Block {
	var order []*Block
	seen := make(map[*Block]bool)
	var visit func(b *Block)
	visit = func(b *Block) {
		if seen[b] {
			return
		}
		seen[b] = true
		for _, s := range b.Succs {
			visit(s)
		}
		order = append(order, b)
	}
	visit(entry)
	for i, j := 0, len(order)-1; i < j; i, j = i+1, j-1 {
		order[i], order[j] = order[j], order[i]
	}
	return order
}

// Dump renders the block structure for debug output.
func (c *ControlFlowGraph) Dump() string {
	var sb strings.Builder
	for _, b := range c.Blocks {
		fmt.Fprintf(&sb, "%s:", b)
		if b.Dom != nil {
			fmt.Fprintf(&sb, " dom=%s", b.Dom)
		}
		if b.Loop != nil {
			fmt.Fprintf(&sb, " depth=%d", b.Loop.Depth)
		}
		sb.WriteString(" [")
		for i, n := range b.Fixed {
			if i > 0 {
				sb.WriteString(" ")
			}
			fmt.Fprintf(&sb, "%s@%d", n.Op(), n.ID())
		}
		sb.WriteString("] ->")
		for _, s := range b.Succs {
			fmt.Fprintf(&sb, " %s", s)
		}
		sb.WriteString("\n")
	}
	return sb.String()
}

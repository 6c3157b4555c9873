// Package gir reads and writes the textual debug form of node graphs. A
// file holds one or more graphs; each node line names its operation, its
// payload, its value inputs and, for fixed nodes, its control successors.
// The form serves the CLI and tests only and is not a stable interchange
// format.
package gir

import (
	"fmt"
	"io"

	"github.com/seaofnodes/sea/pkg/ir"
)

// Printer writes graphs in their textual form.
type Printer struct {
	w io.Writer
}

// NewPrinter creates a printer writing to w.
func NewPrinter(w io.Writer) *Printer {
	return &Printer{w: w}
}

// PrintGraph writes one graph. Nodes are renumbered densely in an order
// where every input precedes its user, except phi values and loop back
// edges which may point forward; the output parses back with the Reader.
func (p *Printer) PrintGraph(g *ir.Graph) error {
	order, ids, err := emissionOrder(g)
	if err != nil {
		return err
	}
	fmt.Fprintf(p.w, "graph %s\n", g.Name)
	for _, n := range order {
		p.printNode(n, ids)
	}
	return nil
}

// PrintGraphs writes several graphs separated by blank lines.
func (p *Printer) PrintGraphs(graphs []*ir.Graph) error {
	for i, g := range graphs {
		if i > 0 {
			fmt.Fprintln(p.w)
		}
		if err := p.PrintGraph(g); err != nil {
			return err
		}
	}
	return nil
}

// deferredInput reports input edges allowed to point forward in the file:
// phi values, and the back edges a loop header collects. Everything else
// must be defined before use so the reader can construct nodes directly.
func deferredInput(n ir.Node, slot int) bool {
	switch n.(type) {
	case *ir.PhiNode, *ir.LoopBeginNode:
		return slot > 0
	}
	return false
}

func emissionOrder(g *ir.Graph) ([]ir.Node, map[ir.NodeID]int, error) {
	ids := make(map[ir.NodeID]int)
	visiting := make(map[ir.NodeID]bool)
	var order []ir.Node

	var visit func(n ir.Node) error
	visit = func(n ir.Node) error {
		if _, done := ids[n.ID()]; done {
			return nil
		}
		if visiting[n.ID()] {
			return fmt.Errorf("gir: input cycle through %s %d", n.Op(), n.ID())
		}
		visiting[n.ID()] = true
		for i, in := range n.Inputs() {
			if in == nil || deferredInput(n, i) {
				continue
			}
			if err := visit(in); err != nil {
				return err
			}
		}
		delete(visiting, n.ID())
		ids[n.ID()] = len(order)
		order = append(order, n)
		return nil
	}
	for _, n := range g.Nodes() {
		if err := visit(n); err != nil {
			return nil, nil, err
		}
	}
	return order, ids, nil
}

func opToken(n ir.Node) string {
	if phi, ok := n.(*ir.PhiNode); ok && phi.Type == ir.PhiGuard {
		return "GuardPhi"
	}
	return n.Op()
}

func (p *Printer) printNode(n ir.Node, ids map[ir.NodeID]int) {
	fmt.Fprintf(p.w, "v%d = %s", ids[n.ID()], opToken(n))

	switch t := n.(type) {
	case *ir.ParamNode:
		fmt.Fprintf(p.w, " %s %d", t.Stamp().Kind, t.Index)
	case *ir.ConstNode:
		fmt.Fprintf(p.w, " %s %d", t.Stamp().Kind, t.Value)
	case *ir.InvokeNode:
		fmt.Fprintf(p.w, " %s @%s", t.Stamp().Kind, t.Callee)
	case *ir.ReadNode:
		fmt.Fprintf(p.w, " %s", t.Stamp().Kind)
	case *ir.LoadFieldNode:
		fmt.Fprintf(p.w, " %s %d", t.Kind, t.Offset)
	case *ir.StoreFieldNode:
		fmt.Fprintf(p.w, " %s %d", t.Kind, t.Offset)
	case *ir.PhiNode:
		if t.Type == ir.PhiValue {
			fmt.Fprintf(p.w, " %s", t.Stamp().Kind)
		}
	case *ir.GuardNode:
		pol := "direct"
		if t.Negated() {
			pol = "negated"
		}
		fmt.Fprintf(p.w, " %s %s %s", pol, t.Reason, t.Action)
	}

	for i, in := range n.Inputs() {
		if _, isLoop := n.(*ir.LoopBeginNode); isLoop && i > 0 {
			continue // back edges re-register themselves on read
		}
		if in == nil {
			fmt.Fprint(p.w, " _")
			continue
		}
		fmt.Fprintf(p.w, " v%d", ids[in.ID()])
	}

	if succs := n.Successors(); len(succs) > 0 {
		fmt.Fprint(p.w, " ->")
		for _, s := range succs {
			if s == nil {
				fmt.Fprint(p.w, " _")
				continue
			}
			fmt.Fprintf(p.w, " v%d", ids[s.ID()])
		}
	}
	fmt.Fprintln(p.w)
}

package ir

import "reflect"

// Duplicate clones the given node set into dst (which may be the source
// graph), consistently remapping edges between set members. Edges leaving
// the set are substituted from replacements; an unreplaced external edge is
// kept pointing at the original node, which is only legal when duplicating
// within the same graph. The old-to-new mapping is returned. The source set
// is never mutated.
func Duplicate(dst *Graph, nodes []Node, replacements map[Node]Node) map[Node]Node {
	mapping := make(map[Node]Node, len(nodes))

	for _, n := range nodes {
		if !n.Alive() {
			Fatalf(dst, n, "duplicating dead node")
		}
		mapping[n] = cloneInto(dst, n)
	}

	resolve := func(orig Node, target Node) Node {
		if target == nil {
			return nil
		}
		if m, ok := mapping[target]; ok {
			return m
		}
		if r, ok := replacements[target]; ok {
			return r
		}
		if target.Graph() != dst {
			Fatalf(dst, orig, "external edge to %s %d crosses graphs without a replacement",
				target.Op(), target.ID())
		}
		return target
	}

	for _, n := range nodes {
		clone := mapping[n]
		for _, in := range n.Inputs() {
			dst.AppendInput(clone, resolve(n, in))
		}
		for _, s := range n.Successors() {
			t := resolve(n, s)
			if t != nil && t.Predecessor() != nil {
				// External successor already linked; the caller is
				// responsible for splicing control flow.
				dst.AppendSuccessor(clone, nil)
				continue
			}
			dst.AppendSuccessor(clone, t)
		}
	}
	return mapping
}

// cloneInto makes a shallow copy of n with fresh identity and empty edges
// and registers it in dst.
func cloneInto(dst *Graph, n Node) Node {
	v := reflect.ValueOf(n).Elem()
	c := reflect.New(v.Type())
	c.Elem().Set(v)
	clone := c.Interface().(Node)
	stamp := n.Stamp()
	*clone.base() = NodeBase{stamp: stamp}
	dst.Add(clone)
	return clone
}

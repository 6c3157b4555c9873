package ir

// Node-side lowerings. Each rewrites one high-level node into explicit
// low-level nodes at its own position, guarding through the tool so equal
// conditions already proven in the block are reused.

// Lower rewrites a field load into a null-check guard and an explicit
// address-offset read.
func (n *LoadFieldNode) Lower(tool LoweringTool) {
	g := tool.Graph()
	obj := n.Object()
	guard := tool.CreateGuard(NewIsNull(g, obj), true, ReasonNullCheck, ActionInvalidateReprofile)
	addr := NewAdd(g, obj, NewConst(g, KindI64, n.Offset))
	read := NewRead(g, addr, n.Kind, guard)
	g.InsertAfter(n, read)
	g.ReplaceAtUsages(n, read)
	g.RemoveFixed(n)
}

// Lower rewrites a field store into a null-check guard and an explicit
// write carrying the object for later barrier insertion.
func (n *StoreFieldNode) Lower(tool LoweringTool) {
	g := tool.Graph()
	obj := n.Object()
	guard := tool.CreateGuard(NewIsNull(g, obj), true, ReasonNullCheck, ActionInvalidateReprofile)
	addr := NewAdd(g, obj, NewConst(g, KindI64, n.Offset))
	write := NewWrite(g, addr, n.Value(), obj, guard)
	g.InsertAfter(n, write)
	g.RemoveFixed(n)
}

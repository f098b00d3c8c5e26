package lazify

import "github.com/DanielAugusto191/wyvern/flowgraph"

// gateMap holds, for every block reachable by more than one
// predecessor, the branch/switch values that decide which of those
// predecessors control actually took. A phi at such a block is
// control-dependent on its gates: to reproduce the phi's value
// outside its original context, the slice must also carry whichever
// gate chose the edge that was actually taken.
type gateMap map[*flowgraph.BasicBlock][]flowgraph.Value

// computeGates mirrors computeGates/getController/getGate: for each
// predecessor of a join block, either that predecessor's own
// terminator gates the edge (if the predecessor dominates the join
// and the join does not post-dominate it back), or the nearest
// dominator that the predecessor does not post-dominate does.
func computeGates(f *flowgraph.FuncDef, dom *flowgraph.DomTree, pdom *flowgraph.PostDomTree) gateMap {
	gates := make(gateMap, len(f.Blocks))
	for _, b := range f.Blocks {
		preds := b.In()
		if len(preds) <= 1 {
			continue
		}
		var bgates []flowgraph.Value
		for _, pred := range preds {
			if dom.Dominates(pred, b) && !pdom.Dominates(b, pred) {
				if g := gate(pred); g != nil {
					bgates = append(bgates, g)
				}
				continue
			}
			if ctrl := controller(pred, dom, pdom); ctrl != nil {
				if g := gate(ctrl); g != nil {
					bgates = append(bgates, g)
				}
			}
		}
		gates[b] = bgates
	}
	return gates
}

// controller finds the nearest dominator of b (including b's own
// immediate dominator, walking upward) that b does not
// post-dominate: the block whose branch is actually responsible for
// whether control reaches b at all.
func controller(b *flowgraph.BasicBlock, dom *flowgraph.DomTree, pdom *flowgraph.PostDomTree) *flowgraph.BasicBlock {
	cur := b
	for {
		idom := dom.Idom(cur)
		if idom == nil {
			return nil
		}
		if !pdom.Dominates(b, idom) {
			return idom
		}
		cur = idom
	}
}

// gate returns the value a block's terminator branches or switches
// on, or nil if the block ends in an unconditional jump or a return
// (nothing to gate on).
func gate(b *flowgraph.BasicBlock) flowgraph.Value {
	if len(b.Instrs) == 0 {
		return nil
	}
	switch term := b.Instrs[len(b.Instrs)-1].(type) {
	case *flowgraph.If:
		return term.Value
	case *flowgraph.Switch:
		return term.Value
	default:
		return nil
	}
}

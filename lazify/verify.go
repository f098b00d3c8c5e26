package lazify

import "github.com/DanielAugusto191/wyvern/flowgraph"

// verify checks the SSA invariants a synthesized function must
// hold: every block ends in a terminator, every phi's edges name
// exactly its parent's real predecessors, and every value used by an
// instruction in block B is either defined in B ahead of that use or
// defined in a block that dominates B. It panics with a *Error of
// Kind MalformedSSA on the first violation; synth.go's rerouteBranches
// and repairPhis rely on this to catch the cases their approximations
// leave unresolved rather than silently producing broken IR.
func verify(f *flowgraph.FuncDef) {
	if len(f.Blocks) == 0 {
		return
	}
	dom := flowgraph.BuildDomTree(f)

	defBlock := map[flowgraph.Value]*flowgraph.BasicBlock{}
	for _, b := range f.Blocks {
		for _, in := range b.Instrs {
			if v, ok := in.(flowgraph.Value); ok {
				defBlock[v] = b
			}
		}
	}

	for _, b := range f.Blocks {
		if !flowgraph.IsTerminated(b) {
			panic(malformedSSA("block %d of %s has no terminator", b.Num, f.Name))
		}

		preds := map[*flowgraph.BasicBlock]bool{}
		for _, p := range b.In() {
			preds[p] = true
		}

		defined := map[flowgraph.Value]bool{}
		for _, in := range b.Instrs {
			if phi, ok := in.(*flowgraph.Phi); ok {
				verifyPhiEdges(phi, b, preds, f.Name)
			} else {
				for _, use := range in.Uses() {
					if use != nil && use != in && defBlock[use] == b && !defined[use] {
						panic(malformedSSA("value used in block %d of %s before its definition", b.Num, f.Name))
					}
				}
			}
			for _, use := range in.Uses() {
				verifyDominates(use, b, defBlock, dom, f.Name)
			}
			if v, ok := in.(flowgraph.Value); ok {
				defined[v] = true
			}
		}
	}
}

func verifyPhiEdges(phi *flowgraph.Phi, b *flowgraph.BasicBlock, preds map[*flowgraph.BasicBlock]bool, fname string) {
	edgeBlocks := map[*flowgraph.BasicBlock]bool{}
	for _, e := range phi.Edges {
		edgeBlocks[e.Block] = true
		if !preds[e.Block] {
			panic(malformedSSA("phi in block %d of %s has an edge from block %d, which is not a predecessor", b.Num, fname, e.Block.Num))
		}
	}
	for p := range preds {
		if !edgeBlocks[p] {
			panic(malformedSSA("phi in block %d of %s is missing an edge from predecessor %d", b.Num, fname, p.Num))
		}
	}
}

func verifyDominates(use flowgraph.Value, b *flowgraph.BasicBlock, defBlock map[flowgraph.Value]*flowgraph.BasicBlock, dom *flowgraph.DomTree, fname string) {
	if use == nil {
		return
	}
	defb, ok := defBlock[use]
	if !ok {
		return // a Parm, a literal, or some other value that never lands in a block of its own.
	}
	if defb == b || dom.Dominates(defb, b) {
		return
	}
	panic(malformedSSA("value defined in block %d of %s does not dominate its use in block %d", defb.Num, fname, b.Num))
}

// Verify runs the SSA invariant check on f and reports the first
// violation as an ordinary error, recovering the panic verify raises
// internally. Outline, MemoizedOutline, and LazifyCallSite all call
// this on every function they synthesize before returning it.
func Verify(f *flowgraph.FuncDef) (err error) {
	defer func() {
		if r := recover(); r != nil {
			if e, ok := r.(*Error); ok {
				err = e
				return
			}
			panic(r)
		}
	}()
	verify(f)
	return nil
}

package lazify

import "github.com/DanielAugusto191/wyvern/flowgraph"

// Slice is a backward program slice: the seed's transitive
// data/control dependences within a single function, ready to be
// safety-checked (4.D) and outlined (4.F-4.G) into a thunk.
type Slice struct {
	Func     *flowgraph.FuncDef
	Seed     flowgraph.Value
	CallSite *flowgraph.Call

	Insts  map[flowgraph.Instruction]bool
	Blocks map[*flowgraph.BasicBlock]bool

	// DepArgs are the seed's ancestor formal parameters, in the
	// order they appear in Func.Parms. They become the outlined
	// function's captured closure fields (4.G) and the values
	// loaded into the closure at the call site (4.H).
	DepArgs []*flowgraph.Parm

	dom    *flowgraph.DomTree
	pdom   *flowgraph.PostDomTree
	loops  *flowgraph.LoopInfo
	layout *flowgraph.DataLayout
	gates  gateMap

	instrBlock map[flowgraph.Instruction]*flowgraph.BasicBlock
	attractors map[*flowgraph.BasicBlock]*flowgraph.BasicBlock
}

// MakeSlice computes the backward slice of f rooted at seed: every
// instruction seed transitively depends on through operand uses,
// plus every phi's gating branch/switch value, plus the predecessor
// blocks a phi merges across and the blocks whose terminators gate
// it (so those blocks exist as routing points in the outlined
// function even when nothing in them is itself a slice member). callSite is the call the slice is being
// extracted on behalf of; CanOutline's loop-depth predicate (4.D)
// compares against its block, nothing else consults it.
func MakeSlice(f *flowgraph.FuncDef, seed flowgraph.Value, callSite *flowgraph.Call, opts ...Option) (*Slice, error) {
	cfg := newConfig(opts...)
	log := cfg.log.WithName("slice")

	if len(f.Blocks) == 0 {
		return nil, notLazifiable("function %s has no blocks", f.Name)
	}

	instrBlock := make(map[flowgraph.Instruction]*flowgraph.BasicBlock)
	for _, b := range f.Blocks {
		for _, in := range b.Instrs {
			instrBlock[in] = b
		}
	}

	dom := flowgraph.BuildDomTree(f)
	pdom := flowgraph.BuildPostDomTree(f)
	gates := computeGates(f, dom, pdom)

	insts := map[flowgraph.Instruction]bool{}
	blocks := map[*flowgraph.BasicBlock]bool{}
	parmSeen := map[*flowgraph.ParmDef]bool{}
	var depArgs []*flowgraph.Parm

	visited := map[flowgraph.Value]bool{seed: true}
	queue := []flowgraph.Value{seed}

	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]

		if parm, ok := cur.(*flowgraph.Parm); ok {
			if !parmSeen[parm.Def] {
				parmSeen[parm.Def] = true
				depArgs = append(depArgs, parm)
			}
			continue
		}

		insts[cur] = true
		if bb := instrBlock[cur]; bb != nil {
			blocks[bb] = true
		}

		for _, use := range cur.Uses() {
			if use == nil || visited[use] {
				continue
			}
			visited[use] = true
			queue = append(queue, use)
		}

		if phi, ok := cur.(*flowgraph.Phi); ok {
			for _, e := range phi.Edges {
				blocks[e.Block] = true
			}
			if parent := instrBlock[phi]; parent != nil {
				for _, g := range gates[parent] {
					if g != nil && !visited[g] {
						visited[g] = true
						queue = append(queue, g)
					}
				}
				// The blocks whose terminators produce those gates are
				// slice blocks too, even when the gate value is a bare
				// parameter that lives in no block of its own.
				if _, gated := gates[parent]; gated {
					for _, pred := range parent.In() {
						ctrl := pred
						if !dom.Dominates(pred, parent) || pdom.Dominates(parent, pred) {
							ctrl = controller(pred, dom, pdom)
						}
						if ctrl != nil && gate(ctrl) != nil {
							blocks[ctrl] = true
						}
					}
				}
			}
		}
	}

	sortDepArgsByParmIndex(f, depArgs)

	log.V(1).Info("extracted slice",
		"func", f.Name, "instructions", len(insts),
		"blocks", len(blocks), "depArgs", len(depArgs))

	return &Slice{
		Func:       f,
		Seed:       seed,
		CallSite:   callSite,
		Insts:      insts,
		Blocks:     blocks,
		DepArgs:    depArgs,
		dom:        dom,
		pdom:       pdom,
		loops:      flowgraph.BuildLoopInfo(f, dom),
		layout:     flowgraph.DefaultDataLayout(),
		gates:      gates,
		instrBlock: instrBlock,
	}, nil
}

func sortDepArgsByParmIndex(f *flowgraph.FuncDef, depArgs []*flowgraph.Parm) {
	index := make(map[*flowgraph.ParmDef]int, len(f.Parms))
	for i, p := range f.Parms {
		index[p] = i
	}
	// insertion sort: depArgs is small (bounded by the function's
	// parameter count) and this keeps the ordering deterministic
	// without pulling in sort for a handful of elements.
	for i := 1; i < len(depArgs); i++ {
		for j := i; j > 0 && index[depArgs[j].Def] < index[depArgs[j-1].Def]; j-- {
			depArgs[j], depArgs[j-1] = depArgs[j-1], depArgs[j]
		}
	}
}

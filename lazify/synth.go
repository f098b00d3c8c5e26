package lazify

import "github.com/DanielAugusto191/wyvern/flowgraph"

// outlineSlice builds a free-standing function computing s.Seed from
// s.DepArgs: the Function Synthesizer (4.F). Every slice block is
// cloned, branches are rerouted through the attractor map so a
// dropped block's successors still reach a live one, and the seed's
// computed value is written through a synthesized return-value
// parameter. outlineSlice itself produces an ordinary function
// taking its captured values as plain parameters, in DepArgs order;
// thunk.go wraps the result behind the closure ABI that the exported
// Outline/MemoizedOutline entry points (api.go) hand callers.
func outlineSlice(s *Slice, name string, opts ...Option) (*flowgraph.FuncDef, error) {
	cfg := newConfig(opts...)
	log := cfg.log.WithName("synth")

	core := &flowgraph.FuncDef{Mod: s.Func.Mod, Name: name, L: s.Seed.Loc(), Pure: true, WillReturn: true}

	depParms := make([]*flowgraph.ParmDef, len(s.DepArgs))
	parmTypes := make([]flowgraph.Type, len(s.DepArgs))
	for i, old := range s.DepArgs {
		pd := &flowgraph.ParmDef{Name: old.Def.Name, Type: old.Def.Type, ByValue: old.Def.ByValue, L: old.Def.L}
		depParms[i] = pd
		parmTypes[i] = old.Def.Type
		core.Parms = append(core.Parms, pd)
	}

	retElem := s.Seed.Type()
	retParm := &flowgraph.ParmDef{Name: "<result>", Type: &flowgraph.AddrType{Elem: retElem}, RetValue: true}
	core.Parms = append(core.Parms, retParm)
	core.Type = &flowgraph.FuncType{Parms: parmTypes, Ret: retElem}

	origToNew := populateFunctionWithBBs(core, s)
	valueSub, valueBlock := populateBBsWithInsts(core, origToNew, s)

	for i, old := range s.DepArgs {
		// Numbered negative: depParms never land in a block of their
		// own (they're read directly as call operands), so they fall
		// outside the per-block numbering populateBBsWithInsts hands
		// out, and just need to stay distinct from one another.
		newParm := &flowgraph.Parm{Def: depParms[i], L: old.L}
		flowgraph.SetNum(newParm, -(i + 1))
		valueSub[old] = newParm
	}

	reorganizeUses(core, origToNew, valueSub)
	rerouteBranches(core, s, origToNew, valueSub)
	retAddr := &flowgraph.Parm{Def: retParm, L: s.Seed.Loc()}
	flowgraph.SetNum(retAddr, -1)
	addReturnValue(core, s, valueSub, valueBlock, retAddr)
	repairPhis(core)
	reorderBlocks(core)
	flowgraph.OptimizeFunc(core)

	log.V(1).Info("outlined function", "name", name, "blocks", len(core.Blocks), "depArgs", len(s.DepArgs))
	return core, nil
}

func populateFunctionWithBBs(core *flowgraph.FuncDef, s *Slice) map[*flowgraph.BasicBlock]*flowgraph.BasicBlock {
	origToNew := make(map[*flowgraph.BasicBlock]*flowgraph.BasicBlock, len(s.Blocks))
	for _, ob := range s.Func.Blocks {
		if !s.Blocks[ob] {
			continue
		}
		origToNew[ob] = flowgraph.NewBasicBlock(core)
	}
	return origToNew
}

// populateBBsWithInsts clones every slice-member instruction into
// its block's new counterpart, in original order, and records the
// old->new value substitution and which new block each clone landed
// in. Operands are not yet rewritten — that's reorganizeUses, once
// every clone exists and the full substitution map is known.
func populateBBsWithInsts(core *flowgraph.FuncDef, origToNew map[*flowgraph.BasicBlock]*flowgraph.BasicBlock, s *Slice) (map[flowgraph.Value]flowgraph.Value, map[flowgraph.Value]*flowgraph.BasicBlock) {
	valueSub := map[flowgraph.Value]flowgraph.Value{}
	valueBlock := map[flowgraph.Value]*flowgraph.BasicBlock{}
	next := 0
	for _, ob := range s.Func.Blocks {
		nb, ok := origToNew[ob]
		if !ok {
			continue
		}
		for _, in := range ob.Instrs {
			if !s.Insts[in] {
				continue
			}
			clone := flowgraph.CloneInstr(in)
			flowgraph.AppendInstr(nb, clone)
			if ov, ok := in.(flowgraph.Value); ok {
				nv := clone.(flowgraph.Value)
				flowgraph.SetNum(nv, next)
				next++
				valueSub[ov] = nv
				valueBlock[ov] = nb
			}
		}
	}
	return valueSub, valueBlock
}

// reorganizeUses retargets every cloned phi's incoming-block labels
// to the new blocks, rewrites every clone's operands through sub,
// and rebuilds the use-lists the rewrite invalidated.
func reorganizeUses(core *flowgraph.FuncDef, origToNew map[*flowgraph.BasicBlock]*flowgraph.BasicBlock, sub map[flowgraph.Value]flowgraph.Value) {
	for _, nb := range core.Blocks {
		for _, clone := range nb.Instrs {
			if phi, ok := clone.(*flowgraph.Phi); ok {
				for old, new := range origToNew {
					phi.ReplaceIncomingBlock(old, new)
				}
			}
			flowgraph.SubValues(clone, sub)
			for _, use := range clone.Uses() {
				flowgraph.RegisterUser(use, clone)
			}
		}
	}
}

// rerouteBranches gives every new block the terminator it lost by
// not being cloned from the original (terminators are never slice
// members — If/Jump/Return/Switch carry no Num/Type and can never
// be enqueued by extract.go's Value-only BFS). Step 5: when the
// original terminator is an If/Switch whose condition was itself
// pulled into the slice (as a phi's gate, extract.go's MakeSlice),
// the branch is live control flow, not dead routing, and is cloned
// as-is with its targets resolved through the attractor map. Step
// 4: otherwise — an unconditional Jump, a Return, or a branch whose
// condition never made it into the slice — every successor
// collapses to whichever attractor-resolved block is reached first.
// A block all of whose successors are attractor-free is left
// without a terminator — lazify/verify.go's malformed-SSA check is
// what catches that, per the attractor-free-blocks decision in
// DESIGN.md.
func rerouteBranches(core *flowgraph.FuncDef, s *Slice, origToNew map[*flowgraph.BasicBlock]*flowgraph.BasicBlock, valueSub map[flowgraph.Value]flowgraph.Value) {
	attractors := s.Attractors()
	resolve := func(t *flowgraph.BasicBlock) *flowgraph.BasicBlock {
		if t == nil {
			return nil
		}
		a, ok := attractors[t]
		if !ok {
			return nil
		}
		dst, ok := origToNew[a]
		if !ok {
			return nil
		}
		return dst
	}

	for ob, nb := range origToNew {
		if len(ob.Instrs) == 0 {
			continue
		}
		term := ob.Instrs[len(ob.Instrs)-1]

		if iff, ok := term.(*flowgraph.If); ok {
			if cond, kept := keptGate(iff, valueSub); kept {
				if yes, no := resolve(iff.Yes), resolve(iff.No); yes != nil && no != nil {
					clone := &flowgraph.If{Value: cond, Op: iff.Op, X: iff.X, Yes: yes, No: no, L: iff.L}
					flowgraph.AppendInstr(nb, clone)
					flowgraph.LinkTerminator(nb)
					wireUses(clone)
					continue
				}
			}
		} else if sw, ok := term.(*flowgraph.Switch); ok {
			if cond, kept := keptGate(sw, valueSub); kept {
				if clone, ok := cloneSwitch(sw, cond, resolve); ok {
					flowgraph.AppendInstr(nb, clone)
					flowgraph.LinkTerminator(nb)
					wireUses(clone)
					continue
				}
			}
		}

		for _, t := range ob.Out() {
			dst := resolve(t)
			if dst == nil {
				continue
			}
			for _, in := range dst.Instrs {
				if phi, ok := in.(*flowgraph.Phi); ok {
					phi.ReplaceIncomingBlock(t, nb)
				}
			}
			flowgraph.AppendInstr(nb, &flowgraph.Jump{Dst: dst, L: ob.Func.L})
			flowgraph.LinkTerminator(nb)
			break
		}
	}
}

// keptGate returns term's branch/switch condition, cloned into the
// new function, if and only if the outlined function actually has
// that value available: either it's a cloned slice member (valueSub
// holds an Insts clone) or it's one of the slice's own DepArgs
// (valueSub also holds the DepArg-to-captured-parameter
// substitution outlineSlice installs before calling this). A
// condition that is neither is not computable inside the outlined
// function at all, so there is nothing sound to clone — this is the
// test step 5 uses to decide whether a branch is live control flow
// worth keeping rather than dead routing to collapse (step 4).
func keptGate(term flowgraph.Instruction, valueSub map[flowgraph.Value]flowgraph.Value) (flowgraph.Value, bool) {
	var cond flowgraph.Value
	switch t := term.(type) {
	case *flowgraph.If:
		cond = t.Value
	case *flowgraph.Switch:
		cond = t.Value
	default:
		return nil, false
	}
	if cond == nil {
		return nil, false
	}
	nv, ok := valueSub[cond]
	return nv, ok
}

// cloneSwitch rebuilds sw with every case and the default target
// resolved through resolve; a case whose target has no live
// attractor is dropped (its value just falls through to Default in
// the outlined function), but an unresolved Default means there's
// no sound clone to build at all.
func cloneSwitch(sw *flowgraph.Switch, cond flowgraph.Value, resolve func(*flowgraph.BasicBlock) *flowgraph.BasicBlock) (*flowgraph.Switch, bool) {
	def := resolve(sw.Default)
	if def == nil {
		return nil, false
	}
	var cases []flowgraph.SwitchCase
	for _, c := range sw.Cases {
		if dst := resolve(c.Dst); dst != nil {
			cases = append(cases, flowgraph.SwitchCase{X: c.X, Dst: dst})
		}
	}
	return &flowgraph.Switch{Value: cond, Cases: cases, Default: def, L: sw.L}, true
}

// addReturnValue finds the new block holding the seed's clone,
// detaches whatever jump rerouteBranches speculatively installed
// there, and replaces it with the function's real exit: store the
// computed value through the return-value parameter and return. If
// the seed is itself a depArg (a degenerate slice: forcing the thunk
// just yields a captured argument straight through), there is no
// block computing it, and the store happens from the entry block.
func addReturnValue(core *flowgraph.FuncDef, s *Slice, sub map[flowgraph.Value]flowgraph.Value, valueBlock map[flowgraph.Value]*flowgraph.BasicBlock, retAddr *flowgraph.Parm) {
	seedVal := sub[s.Seed]
	exit, ok := valueBlock[s.Seed]
	if !ok {
		if len(core.Blocks) == 0 {
			flowgraph.NewBasicBlock(core)
		}
		exit = core.Blocks[0]
	} else {
		flowgraph.DetachTerminator(exit)
	}
	flowgraph.AppendInstr(exit, &flowgraph.Store{Dst: retAddr, Src: seedVal, L: core.L})
	flowgraph.AppendInstr(exit, &flowgraph.Return{L: core.L})
	flowgraph.LinkTerminator(exit)
}

// repairPhis fixes up the SSA invariant rerouteBranches can leave
// dangling: every phi's edges must name exactly its parent block's
// real predecessors. Stale edges (pointing at a block that no
// longer reaches this one, because the path was collapsed through
// an attractor) are dropped; a predecessor with no matching edge
// reuses the phi's sole surviving value when there is exactly one —
// sound because the gate analysis (4.A) only ever collapses paths
// that the slice's own control dependence treats as equivalent at
// this phi. A phi left with more than one surviving edge but a new
// predecessor unaccounted for is a case the verifier rejects rather
// than guesses at.
func repairPhis(core *flowgraph.FuncDef) {
	for _, b := range core.Blocks {
		preds := map[*flowgraph.BasicBlock]bool{}
		for _, p := range b.In() {
			preds[p] = true
		}
		for _, in := range b.Instrs {
			phi, ok := in.(*flowgraph.Phi)
			if !ok {
				continue
			}
			phi.DropIncomingNotIn(preds)
			if len(phi.Edges) == 1 {
				sole := phi.Edges[0].Val
				for p := range preds {
					if _, has := phi.Incoming(p); !has {
						phi.Edges = append(phi.Edges, flowgraph.PhiEdge{Block: p, Val: sole})
					}
				}
			}
		}
	}
}

// reorderBlocks moves the block with no predecessors — the slice's
// true entry — to the front, matching this IR's convention that
// block 0 is where a function starts executing.
func reorderBlocks(core *flowgraph.FuncDef) {
	entry := -1
	for i, b := range core.Blocks {
		if len(b.In()) == 0 {
			entry = i
			break
		}
	}
	if entry <= 0 {
		return
	}
	core.Blocks[0], core.Blocks[entry] = core.Blocks[entry], core.Blocks[0]
	for i, b := range core.Blocks {
		b.Num = i
	}
}

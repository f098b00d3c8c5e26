package lazify

import "github.com/DanielAugusto191/wyvern/flowgraph"

// LazifyCallSite implements the Call-Site Rewriter (4.H): it slices
// the call's argIndex'th argument, wraps the slice in a thunk, clones
// the callee with that parameter replaced by the closure ABI, and
// rewires the call in place to target the clone with a freshly built
// closure value. It returns the cloned callee and the thunk, both of
// which must be added to the module's function list by the caller
// (the driver owns Mod.Funcs; this package never modifies it).
func LazifyCallSite(caller *flowgraph.FuncDef, call *flowgraph.Call, argIndex int, opts ...Option) (*LazifiedCall, error) {
	cfg := newConfig(opts...)
	log := cfg.log.WithName("callsite")

	if argIndex < 0 || argIndex >= len(call.Args) {
		return nil, notLazifiable("argument index %d out of range for call with %d arguments", argIndex, len(call.Args))
	}
	seed := call.Args[argIndex]
	if _, ok := seed.(*flowgraph.Parm); ok {
		return nil, notLazifiable("argument %d is already a bare parameter; nothing to defer", argIndex)
	}
	calleeFunc, ok := call.Func.(*flowgraph.Func)
	if !ok {
		return nil, notLazifiable("call is indirect; the callee to clone is unknown")
	}
	callee := calleeFunc.Def
	if argIndex >= len(callee.Parms) {
		return nil, notLazifiable("argument index %d out of range for callee %s", argIndex, callee.Name)
	}

	slice, err := MakeSlice(caller, seed, call, opts...)
	if err != nil {
		return nil, err
	}
	if err := CanOutline(slice, opts...); err != nil {
		return nil, err
	}

	baseName := cfg.nameFunc(sliceName(caller.Name, slice.Seed, cfg.memoize))
	thunkFunc, closure, err := Thunk(slice, baseName, opts...)
	if err != nil {
		return nil, err
	}

	cloneName := cfg.nameFunc(callee.Name + "_lazyclone")
	newCallee := cloneCalleeFunction(callee, argIndex, closure, thunkFunc.Type, slice.Seed.Type(), cloneName)
	flowgraph.OptimizeFunc(newCallee)
	if err := Verify(newCallee); err != nil {
		return nil, err
	}

	buildClosureAt := func(ins func(in flowgraph.Instruction)) flowgraph.Value {
		return buildClosureValue(slice, closure, thunkFunc, cfg.memoize, ins)
	}
	rewriteCallSite(caller, call, argIndex, newCallee, buildClosureAt)

	log.V(0).Info("lazified call site",
		"caller", caller.Name, "callee", callee.Name, "clone", newCallee.Name, "thunk", thunkFunc.Name)

	return &LazifiedCall{Callee: newCallee, Thunk: thunkFunc, Closure: closure}, nil
}

// LazifiedCall is everything a caller of LazifyCallSite needs to add
// to the module in order to make the rewritten call site valid.
type LazifiedCall struct {
	Callee  *flowgraph.FuncDef
	Thunk   *flowgraph.FuncDef
	Closure *Closure
}

// rewriteCallSite redirects call to target newCallee and replaces
// its lazified argument with a freshly allocated, freshly populated
// closure value, inserted into call's own block right before it.
func rewriteCallSite(caller *flowgraph.FuncDef, call *flowgraph.Call, argIndex int, newCallee *flowgraph.FuncDef, buildClosure func(func(flowgraph.Instruction)) flowgraph.Value) {
	b := blockContaining(caller, call)
	if b == nil {
		return
	}
	var pending []flowgraph.Instruction
	closureVal := buildClosure(func(in flowgraph.Instruction) { pending = append(pending, in) })
	flowgraph.InsertBefore(b, call, pending...)
	for _, in := range pending {
		wireUses(in)
	}

	old := call.Args[argIndex]
	flowgraph.RemoveUser(old, call)
	call.Args[argIndex] = closureVal
	call.Func = &flowgraph.Func{Def: newCallee, L: call.L}
	wireUses(call)
	renumber(caller)
}

// buildClosureValue allocates the closure struct and stores the
// thunk's function pointer and every captured DepArg's current
// value into it — a by-value snapshot, not a pointer back into the
// caller's own frame, so the closure survives after the caller
// returns. The memo/ready fields, if present, start unset.
func buildClosureValue(s *Slice, closure *Closure, thunkFunc *flowgraph.FuncDef, memoize bool, emit func(flowgraph.Instruction)) flowgraph.Value {
	alloc := &flowgraph.Alloc{CountImm: -1, T: &flowgraph.AddrType{Elem: closure.Type}, Stack: true, L: thunkFunc.L}
	emit(alloc)

	fnAddr := &flowgraph.Field{Base: alloc, Def: closure.FnField, BaseType: *closure.Type, L: thunkFunc.L}
	emit(fnAddr)
	fnVal := &flowgraph.Func{Def: thunkFunc, L: thunkFunc.L}
	emit(fnVal)
	emit(&flowgraph.Store{Dst: fnAddr, Src: fnVal, L: thunkFunc.L})

	if memoize {
		readyAddr := &flowgraph.Field{Base: alloc, Def: closure.ReadyField, BaseType: *closure.Type, L: thunkFunc.L}
		emit(readyAddr)
		zero := &flowgraph.Int{Text: "0", T: flowgraph.IntType{Size: 8, Unsigned: true}, L: thunkFunc.L}
		emit(zero)
		emit(&flowgraph.Store{Dst: readyAddr, Src: zero, L: thunkFunc.L})
	}

	for i, dep := range s.DepArgs {
		fd := closure.ArgFields[i]
		addr := &flowgraph.Field{Base: alloc, Def: fd, BaseType: *closure.Type, L: thunkFunc.L}
		emit(addr)
		// ByValue params are themselves represented by their address
		// (a pointer-sized value); Copy duplicates what that pointer
		// points at. Everything else is a plain scalar value, stored
		// directly.
		if dep.Def.ByValue {
			emit(&flowgraph.Copy{Dst: addr, Src: dep, L: thunkFunc.L})
		} else {
			emit(&flowgraph.Store{Dst: addr, Src: dep, L: thunkFunc.L})
		}
	}

	return alloc
}

// cloneCalleeFunction rebuilds callee with its index'th parameter
// retyped to a pointer to the closure, and every use of that
// parameter inside the body replaced by a force: load the thunk
// pointer out of the closure and call it, once per distinct
// consuming instruction (grounded on updateMemoizedThunkArgUses —
// this reimplementation always routes through the closure-and-
// indirect-call sequence, memoized or not, rather than special-
// casing a bare function-pointer argument for the non-memoized
// case; see DESIGN.md).
func cloneCalleeFunction(callee *flowgraph.FuncDef, index int, closure *Closure, thunkType *flowgraph.FuncType, retElem flowgraph.Type, name string) *flowgraph.FuncDef {
	newCallee := &flowgraph.FuncDef{Mod: callee.Mod, Name: name, L: callee.L, Pure: callee.Pure, Intrinsic: callee.Intrinsic, WillReturn: callee.WillReturn}

	closureAddr := &flowgraph.AddrType{Elem: closure.Type}
	newParms := make([]*flowgraph.ParmDef, len(callee.Parms))
	var lazyDef *flowgraph.ParmDef
	newTypes := append([]flowgraph.Type{}, callee.Type.Parms...)
	for i, p := range callee.Parms {
		np := &flowgraph.ParmDef{Name: p.Name, Type: p.Type, ByValue: p.ByValue, RetValue: p.RetValue, BlockData: p.BlockData, L: p.L}
		if i == index {
			np.Type = closureAddr
			np.ByValue = true
			lazyDef = np
			if i < len(newTypes) {
				newTypes[i] = closure.Type
			}
		}
		newParms[i] = np
	}
	newCallee.Parms = newParms
	newCallee.Type = &flowgraph.FuncType{Parms: newTypes, Ret: callee.Type.Ret}

	origToNew := map[*flowgraph.BasicBlock]*flowgraph.BasicBlock{}
	for _, ob := range callee.Blocks {
		origToNew[ob] = flowgraph.NewBasicBlock(newCallee)
	}

	valueSub := map[flowgraph.Value]flowgraph.Value{}
	var lazyClones []*flowgraph.Parm
	instrBlock := map[flowgraph.Instruction]*flowgraph.BasicBlock{}
	for _, ob := range callee.Blocks {
		nb := origToNew[ob]
		for _, in := range ob.Instrs {
			clone := flowgraph.CloneInstr(in)
			flowgraph.AppendInstr(nb, clone)
			instrBlock[clone] = nb
			if ov, ok := in.(flowgraph.Value); ok {
				nv := clone.(flowgraph.Value)
				valueSub[ov] = nv
				if p, ok := nv.(*flowgraph.Parm); ok && p.Def == callee.Parms[index] {
					p.Def = lazyDef
					lazyClones = append(lazyClones, p)
				}
			}
		}
	}

	for _, nb := range newCallee.Blocks {
		for _, clone := range nb.Instrs {
			if phi, ok := clone.(*flowgraph.Phi); ok {
				for old, new := range origToNew {
					phi.ReplaceIncomingBlock(old, new)
				}
			}
			if t, ok := clone.(flowgraph.Terminal); ok {
				blocksSub := map[*flowgraph.BasicBlock]*flowgraph.BasicBlock{}
				for _, succ := range t.Out() {
					if succ != nil {
						blocksSub[succ] = origToNew[succ]
					}
				}
				flowgraph.SubBlocks(t, blocksSub)
				flowgraph.LinkTerminator(nb)
			}
			flowgraph.SubValues(clone, valueSub)
			wireUses(clone)
		}
	}

	for _, p := range lazyClones {
		forceAtUses(newCallee, p, closure, retElem, instrBlock)
	}

	renumber(newCallee)
	return newCallee
}

// forceAtUses replaces every distinct consuming instruction's
// reference to the closure-typed parameter with the result of
// forcing the thunk, inserted immediately before that instruction —
// so the computation still only runs on the control-flow paths that
// actually reach a use, exactly the property lazification exists to
// preserve.
func forceAtUses(f *flowgraph.FuncDef, parmVal *flowgraph.Parm, closure *Closure, retElem flowgraph.Type, instrBlock map[flowgraph.Instruction]*flowgraph.BasicBlock) {
	seen := map[flowgraph.Instruction]bool{}
	for _, user := range parmVal.UsedBy() {
		if seen[user] || user == parmVal {
			continue
		}
		seen[user] = true
		b := instrBlock[user]
		if b == nil {
			continue
		}

		fnAddr := &flowgraph.Field{Base: parmVal, Def: closure.FnField, BaseType: *closure.Type, L: user.Loc()}
		fn := &flowgraph.Load{Addr: fnAddr, AddrType: flowgraph.AddrType{Elem: closure.FnField.Type}, L: user.Loc()}
		tmp := &flowgraph.Alloc{CountImm: -1, T: &flowgraph.AddrType{Elem: retElem}, Stack: true, L: user.Loc()}
		call := &flowgraph.Call{Func: fn, Args: []flowgraph.Value{parmVal, tmp}, L: user.Loc()}
		forced := &flowgraph.Load{Addr: tmp, AddrType: flowgraph.AddrType{Elem: retElem}, L: user.Loc()}

		flowgraph.InsertBefore(b, user, fnAddr, fn, tmp, call, forced)
		for _, in := range []flowgraph.Instruction{fnAddr, fn, tmp, call, forced} {
			wireUses(in)
		}

		flowgraph.SubValues(user, map[flowgraph.Value]flowgraph.Value{parmVal: forced})
		flowgraph.RemoveUser(parmVal, user)
		flowgraph.RegisterUser(forced, user)
	}
}

func blockContaining(f *flowgraph.FuncDef, target flowgraph.Instruction) *flowgraph.BasicBlock {
	for _, b := range f.Blocks {
		for _, in := range b.Instrs {
			if in == target {
				return b
			}
		}
	}
	return nil
}

func wireUses(in flowgraph.Instruction) {
	for _, use := range in.Uses() {
		flowgraph.RegisterUser(use, in)
	}
}

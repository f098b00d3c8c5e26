package lazify

import "github.com/DanielAugusto191/wyvern/flowgraph"

// CanOutline runs the outline safety check (4.D): every member of
// the slice must be side-effect-free and always-terminating, no
// stack allocation in the slice may have its address observed
// outside the slice, and the slice must not be lifted out of a loop
// the call site is inside of. It mirrors ProgramSlice::canOutline,
// split into named predicates for clarity.
func CanOutline(s *Slice, opts ...Option) error {
	cfg := newConfig(opts...)
	log := cfg.log.WithName("safety")

	for in := range s.Insts {
		if err := checkEffects(in); err != nil {
			log.V(0).Info("rejecting slice", "reason", err)
			return err
		}
		if alloc, ok := in.(*flowgraph.Alloc); ok && escapes(alloc) {
			err := unsafeSlice("alloc %s has its address taken outside the slice", alloc)
			log.V(0).Info("rejecting slice", "reason", err)
			return err
		}
	}

	if err := checkLoopDepth(s); err != nil {
		log.V(0).Info("rejecting slice", "reason", err)
		return err
	}

	if _, ok := s.Seed.(*flowgraph.Alloc); ok {
		err := unsafeSlice("slicing criterion is itself an alloca")
		log.V(0).Info("rejecting slice", "reason", err)
		return err
	}

	if err := checkPathologicalPhi(s); err != nil {
		log.V(0).Info("rejecting slice", "reason", err)
		return err
	}

	log.V(1).Info("slice is outlineable", "instructions", len(s.Insts))
	return nil
}

// checkEffects rejects an instruction that may throw (Panic), may
// read or write memory (Load/Store/Copy/a Call whose callee isn't
// known benign), or may not return (Panic again — in this IR panic
// and non-termination share one opcode — or a Call whose callee
// isn't known to terminate).
func checkEffects(in flowgraph.Instruction) error {
	switch v := in.(type) {
	case *flowgraph.Op:
		if v.Op == flowgraph.Panic {
			return unsafeSlice("instruction may throw or not return: %s", v)
		}
	case *flowgraph.Load:
		return unsafeSlice("instruction reads memory: %s", v)
	case *flowgraph.Store:
		return unsafeSlice("instruction writes memory: %s", v)
	case *flowgraph.Copy:
		return unsafeSlice("instruction writes memory: %s", v)
	case *flowgraph.Call:
		if !calleeIsBenign(v.Func) {
			return unsafeSlice("instruction may read or write memory: %s", v)
		}
		if !calleeWillReturn(v.Func) {
			return unsafeSlice("instruction may not return: %s", v)
		}
	}
	return nil
}

// calleeWillReturn reports whether fn is known to always return to
// its caller. Pure and WillReturn are orthogonal bits — a pure
// function can still diverge (unbounded pure recursion, a busy
// loop over arguments only) and an impure one can still be proven
// to terminate — so a benign-for-capture callee is not automatically
// safe to outline; it also has to carry WillReturn, or be an
// Intrinsic, which by construction never loops.
func calleeWillReturn(fn flowgraph.Value) bool {
	f, ok := fn.(*flowgraph.Func)
	return ok && (f.Def.WillReturn || f.Def.Intrinsic)
}

// checkLoopDepth rejects a slice that would be lifted out of the
// loop nest its call site lives in: every block in the slice must
// be strictly more deeply nested than the call site, or the
// deferred computation's trip-count semantics change.
func checkLoopDepth(s *Slice) error {
	if s.CallSite == nil {
		return nil
	}
	callBlock := s.instrBlock[s.CallSite]
	if callBlock == nil {
		return nil
	}
	callDepth := s.loops.Depth(callBlock)
	if callDepth == 0 {
		return nil
	}
	for b := range s.Blocks {
		if s.loops.Depth(b) <= callDepth {
			return unsafeSlice("block is at or above the call site's loop depth")
		}
	}
	return nil
}

// checkPathologicalPhi rejects the one pattern that can't be
// soundly eliminated: a seed phi with a single incoming edge whose
// source block's terminator (the conditional that actually decides
// whether that edge is taken) was not itself pulled into the slice.
func checkPathologicalPhi(s *Slice) error {
	phi, ok := s.Seed.(*flowgraph.Phi)
	if !ok || len(phi.Edges) != 1 {
		return nil
	}
	incoming := phi.Edges[0].Block
	if len(incoming.Instrs) == 0 {
		return nil
	}
	term := incoming.Instrs[len(incoming.Instrs)-1]
	if !s.Insts[term] {
		return unsafeSlice("single-incoming phi's guarding terminator is not in the slice")
	}
	return nil
}

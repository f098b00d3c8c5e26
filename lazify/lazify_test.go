package lazify_test

import (
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/DanielAugusto191/wyvern/flowgraph"
	"github.com/DanielAugusto191/wyvern/lazify"
)

var i64 = flowgraph.IntType{Size: 64}

func parmDef(name string) *flowgraph.ParmDef {
	return &flowgraph.ParmDef{Name: name, Type: &i64}
}

func parmVal(pd *flowgraph.ParmDef, n int) *flowgraph.Parm {
	v := &flowgraph.Parm{Def: pd}
	flowgraph.SetNum(v, n)
	return v
}

func appendVal(b *flowgraph.BasicBlock, v flowgraph.Value, n int) flowgraph.Value {
	flowgraph.SetNum(v, n)
	flowgraph.AppendInstr(b, v)
	for _, use := range v.Uses() {
		flowgraph.RegisterUser(use, v)
	}
	return v
}

// buildArithmeticCaller returns caller(a, b int64), which computes
// x := a + b and passes it to consumer(int64), plus the Call
// instruction itself (S1: pure data-dependent slice, no control
// dependence, two DepArgs).
func buildArithmeticCaller(t *testing.T) (*flowgraph.FuncDef, *flowgraph.Call, flowgraph.Value) {
	t.Helper()
	consumer := &flowgraph.FuncDef{Mod: "test", Name: "consumer"}
	consumer.Parms = []*flowgraph.ParmDef{parmDef("x")}
	consumer.Type = &flowgraph.FuncType{Parms: []flowgraph.Type{&i64}, Ret: &flowgraph.StructType{}}
	cb := flowgraph.NewBasicBlock(consumer)
	flowgraph.AppendInstr(cb, &flowgraph.Return{})
	flowgraph.LinkTerminator(cb)

	caller := &flowgraph.FuncDef{Mod: "test", Name: "caller"}
	aDef, bDef := parmDef("a"), parmDef("b")
	caller.Parms = []*flowgraph.ParmDef{aDef, bDef}
	caller.Type = &flowgraph.FuncType{Parms: []flowgraph.Type{&i64, &i64}, Ret: &flowgraph.StructType{}}

	b0 := flowgraph.NewBasicBlock(caller)
	a := parmVal(aDef, -1)
	bb := parmVal(bDef, -2)
	x := appendVal(b0, &flowgraph.Op{Op: flowgraph.Plus, Args: []flowgraph.Value{a, bb}, T: &i64}, 0)
	call := &flowgraph.Call{Func: &flowgraph.Func{Def: consumer}, Args: []flowgraph.Value{x}}
	flowgraph.AppendInstr(b0, call)
	for _, use := range call.Uses() {
		flowgraph.RegisterUser(use, call)
	}
	flowgraph.AppendInstr(b0, &flowgraph.Return{})
	flowgraph.LinkTerminator(b0)

	return caller, call, x
}

func TestMakeSliceArithmetic(t *testing.T) {
	caller, call, x := buildArithmeticCaller(t)

	slice, err := lazify.MakeSlice(caller, x, call)
	if err != nil {
		t.Fatalf("MakeSlice: %v", err)
	}
	if !slice.Insts[x.(flowgraph.Instruction)] {
		t.Error("seed instruction missing from slice")
	}
	var names []string
	for _, p := range slice.DepArgs {
		names = append(names, p.Def.Name)
	}
	if diff := cmp.Diff([]string{"a", "b"}, names); diff != "" {
		t.Errorf("DepArgs order mismatch (-want +got):\n%s", diff)
	}

	if err := lazify.CanOutline(slice); err != nil {
		t.Fatalf("CanOutline: %v", err)
	}
}

func TestOutlineProducesClosedFunction(t *testing.T) {
	caller, call, x := buildArithmeticCaller(t)
	slice, err := lazify.MakeSlice(caller, x, call)
	if err != nil {
		t.Fatalf("MakeSlice: %v", err)
	}
	if err := lazify.CanOutline(slice); err != nil {
		t.Fatalf("CanOutline: %v", err)
	}

	thunk, err := lazify.Outline(slice)
	if err != nil {
		t.Fatalf("Outline: %v", err)
	}
	if len(thunk.Parms) != 2 {
		t.Fatalf("thunk.Parms = %d, want 2 (closure, <result>)", len(thunk.Parms))
	}
	if !thunk.Parms[0].ByValue {
		t.Error("closure parameter should be ByValue (passed by address)")
	}
	if !thunk.Parms[1].RetValue {
		t.Error("second parameter should be the synthesized return slot")
	}
	if len(thunk.Blocks) == 0 {
		t.Fatal("thunk has no blocks")
	}
	if err := lazify.Verify(thunk); err != nil {
		t.Errorf("Verify(thunk): %v", err)
	}
}

func TestMemoizedOutlineAddsReadyCheck(t *testing.T) {
	caller, call, x := buildArithmeticCaller(t)
	slice, err := lazify.MakeSlice(caller, x, call)
	if err != nil {
		t.Fatalf("MakeSlice: %v", err)
	}
	if err := lazify.CanOutline(slice); err != nil {
		t.Fatalf("CanOutline: %v", err)
	}

	thunk, err := lazify.MemoizedOutline(slice)
	if err != nil {
		t.Fatalf("MemoizedOutline: %v", err)
	}
	// The memoized thunk branches on a ready flag before computing,
	// so it needs at least 3 blocks: check, compute, memoized-return.
	if len(thunk.Blocks) < 3 {
		t.Errorf("memoized thunk has %d blocks, want at least 3", len(thunk.Blocks))
	}
	if err := lazify.Verify(thunk); err != nil {
		t.Errorf("Verify(thunk): %v", err)
	}
}

// buildControlDependentCaller returns caller(a, b, p int64), where
// the seed is a phi that depends on which arm of an `if p == 0`
// branch ran (S2: control-dependent slice — the slice must also
// pull in the gating value and both predecessor blocks).
func buildControlDependentCaller(t *testing.T) (*flowgraph.FuncDef, *flowgraph.Call, flowgraph.Value) {
	t.Helper()
	consumer := &flowgraph.FuncDef{Mod: "test", Name: "consumer"}
	consumer.Parms = []*flowgraph.ParmDef{parmDef("x")}
	consumer.Type = &flowgraph.FuncType{Parms: []flowgraph.Type{&i64}, Ret: &flowgraph.StructType{}}
	cb := flowgraph.NewBasicBlock(consumer)
	flowgraph.AppendInstr(cb, &flowgraph.Return{})
	flowgraph.LinkTerminator(cb)

	caller := &flowgraph.FuncDef{Mod: "test", Name: "caller"}
	aDef, bDef, pDef := parmDef("a"), parmDef("b"), parmDef("p")
	caller.Parms = []*flowgraph.ParmDef{aDef, bDef, pDef}
	caller.Type = &flowgraph.FuncType{Parms: []flowgraph.Type{&i64, &i64, &i64}, Ret: &flowgraph.StructType{}}

	entry := flowgraph.NewBasicBlock(caller)
	yes := flowgraph.NewBasicBlock(caller)
	no := flowgraph.NewBasicBlock(caller)
	join := flowgraph.NewBasicBlock(caller)

	a := parmVal(aDef, -1)
	bb := parmVal(bDef, -2)
	p := parmVal(pDef, -3)

	cmpOp := appendVal(entry, &flowgraph.Op{Op: flowgraph.Eq, Args: []flowgraph.Value{p, &flowgraph.Int{Text: "0", T: i64}}, T: &i64}, 0)
	flowgraph.AppendInstr(entry, &flowgraph.If{Value: cmpOp, Op: flowgraph.Eq, X: 0, Yes: no, No: yes})
	flowgraph.LinkTerminator(entry)

	flowgraph.AppendInstr(yes, &flowgraph.Jump{Dst: join})
	flowgraph.LinkTerminator(yes)
	flowgraph.AppendInstr(no, &flowgraph.Jump{Dst: join})
	flowgraph.LinkTerminator(no)

	phi := &flowgraph.Phi{
		Edges: []flowgraph.PhiEdge{{Block: yes, Val: a}, {Block: no, Val: bb}},
		T:     &i64,
	}
	appendVal(join, phi, 1)
	call := &flowgraph.Call{Func: &flowgraph.Func{Def: consumer}, Args: []flowgraph.Value{phi}}
	flowgraph.AppendInstr(join, call)
	for _, use := range call.Uses() {
		flowgraph.RegisterUser(use, call)
	}
	flowgraph.AppendInstr(join, &flowgraph.Return{})
	flowgraph.LinkTerminator(join)

	return caller, call, phi
}

// coreOf digs the outlined core function out of a thunk: the thunk
// always calls it exactly once, passing its captured DepArgs.
func coreOf(t *testing.T, thunk *flowgraph.FuncDef) *flowgraph.FuncDef {
	t.Helper()
	for _, b := range thunk.Blocks {
		for _, in := range b.Instrs {
			if call, ok := in.(*flowgraph.Call); ok {
				if fn, ok := call.Func.(*flowgraph.Func); ok {
					return fn.Def
				}
			}
		}
	}
	t.Fatal("thunk contains no call to its outlined core")
	return nil
}

// terminalBlock follows a chain of unconditional Jumps to wherever
// it actually ends up, so two branch arms that both degenerate to a
// plain jump before reconverging can still be compared by identity.
func terminalBlock(b *flowgraph.BasicBlock) *flowgraph.BasicBlock {
	for len(b.Instrs) > 0 {
		j, ok := b.Instrs[len(b.Instrs)-1].(*flowgraph.Jump)
		if !ok {
			return b
		}
		b = j.Dst
	}
	return b
}

// TestOutlineKeepsConditionalBranch guards against the outlined
// core always taking whichever arm of a gated phi happens to come
// first in block order: the If gating the phi must survive as a
// real conditional in the outlined function, not collapse into an
// unconditional Jump to one arm regardless of the runtime value of
// cond.
func TestOutlineKeepsConditionalBranch(t *testing.T) {
	caller, call, phi := buildControlDependentCaller(t)
	slice, err := lazify.MakeSlice(caller, phi, call)
	if err != nil {
		t.Fatalf("MakeSlice: %v", err)
	}
	if err := lazify.CanOutline(slice); err != nil {
		t.Fatalf("CanOutline: %v", err)
	}
	thunk, err := lazify.Outline(slice)
	if err != nil {
		t.Fatalf("Outline: %v", err)
	}
	core := coreOf(t, thunk)

	entry := core.Blocks[0]
	if len(entry.Instrs) == 0 {
		t.Fatal("core entry block is empty")
	}
	iff, ok := entry.Instrs[len(entry.Instrs)-1].(*flowgraph.If)
	if !ok {
		t.Fatalf("core entry block ends in %T, want a cloned *flowgraph.If — the outlined function must still branch on the gating condition instead of always taking one arm", entry.Instrs[len(entry.Instrs)-1])
	}
	if iff.Op != flowgraph.Eq || iff.X != 0 {
		t.Errorf("cloned If = {Op:%v X:%d}, want the original's {Op:Eq X:0}", iff.Op, iff.X)
	}
	if iff.Yes == nil || iff.No == nil || iff.Yes == iff.No {
		t.Fatalf("cloned If has degenerate targets Yes=%v No=%v, want two distinct live blocks", iff.Yes, iff.No)
	}

	yesEnd := terminalBlock(iff.Yes)
	noEnd := terminalBlock(iff.No)
	if yesEnd != noEnd {
		t.Fatalf("branch arms reconverge at different blocks (%v vs %v), want a single shared merge point", yesEnd, noEnd)
	}
	if _, ok := yesEnd.Instrs[len(yesEnd.Instrs)-1].(*flowgraph.Return); !ok {
		t.Errorf("reconverged block ends in %T, want Return", yesEnd.Instrs[len(yesEnd.Instrs)-1])
	}
}

// buildSwitchCaller returns caller(a, b, c, p int64), where the seed
// is a phi merging three arms of a three-way switch on p directly
// (S6: the condition is a bare captured parameter, not a computed
// value, exercising the DepArg side of keptGate rather than the
// Insts side buildControlDependentCaller exercises).
func buildSwitchCaller(t *testing.T) (*flowgraph.FuncDef, *flowgraph.Call, flowgraph.Value) {
	t.Helper()
	consumer := &flowgraph.FuncDef{Mod: "test", Name: "consumer"}
	consumer.Parms = []*flowgraph.ParmDef{parmDef("x")}
	consumer.Type = &flowgraph.FuncType{Parms: []flowgraph.Type{&i64}, Ret: &flowgraph.StructType{}}
	cb := flowgraph.NewBasicBlock(consumer)
	flowgraph.AppendInstr(cb, &flowgraph.Return{})
	flowgraph.LinkTerminator(cb)

	caller := &flowgraph.FuncDef{Mod: "test", Name: "caller"}
	aDef, bDef, cDef, pDef := parmDef("a"), parmDef("b"), parmDef("c"), parmDef("p")
	caller.Parms = []*flowgraph.ParmDef{aDef, bDef, cDef, pDef}
	caller.Type = &flowgraph.FuncType{Parms: []flowgraph.Type{&i64, &i64, &i64, &i64}, Ret: &flowgraph.StructType{}}

	entry := flowgraph.NewBasicBlock(caller)
	case0 := flowgraph.NewBasicBlock(caller)
	case1 := flowgraph.NewBasicBlock(caller)
	deflt := flowgraph.NewBasicBlock(caller)
	join := flowgraph.NewBasicBlock(caller)

	a := parmVal(aDef, -1)
	bb := parmVal(bDef, -2)
	cc := parmVal(cDef, -3)
	p := parmVal(pDef, -4)

	flowgraph.AppendInstr(entry, &flowgraph.Switch{
		Value:   p,
		Cases:   []flowgraph.SwitchCase{{X: 0, Dst: case0}, {X: 1, Dst: case1}},
		Default: deflt,
	})
	flowgraph.LinkTerminator(entry)

	flowgraph.AppendInstr(case0, &flowgraph.Jump{Dst: join})
	flowgraph.LinkTerminator(case0)
	flowgraph.AppendInstr(case1, &flowgraph.Jump{Dst: join})
	flowgraph.LinkTerminator(case1)
	flowgraph.AppendInstr(deflt, &flowgraph.Jump{Dst: join})
	flowgraph.LinkTerminator(deflt)

	phi := &flowgraph.Phi{
		Edges: []flowgraph.PhiEdge{{Block: case0, Val: a}, {Block: case1, Val: bb}, {Block: deflt, Val: cc}},
		T:     &i64,
	}
	appendVal(join, phi, 0)
	call := &flowgraph.Call{Func: &flowgraph.Func{Def: consumer}, Args: []flowgraph.Value{phi}}
	flowgraph.AppendInstr(join, call)
	for _, use := range call.Uses() {
		flowgraph.RegisterUser(use, call)
	}
	flowgraph.AppendInstr(join, &flowgraph.Return{})
	flowgraph.LinkTerminator(join)

	return caller, call, phi
}

func TestOutlineKeepsThreeArmSwitch(t *testing.T) {
	caller, call, phi := buildSwitchCaller(t)

	slice, err := lazify.MakeSlice(caller, phi, call)
	if err != nil {
		t.Fatalf("MakeSlice: %v", err)
	}
	if err := lazify.CanOutline(slice); err != nil {
		t.Fatalf("CanOutline: %v", err)
	}
	thunk, err := lazify.Outline(slice)
	if err != nil {
		t.Fatalf("Outline: %v", err)
	}
	core := coreOf(t, thunk)

	entry := core.Blocks[0]
	sw, ok := entry.Instrs[len(entry.Instrs)-1].(*flowgraph.Switch)
	if !ok {
		t.Fatalf("core entry block ends in %T, want a cloned *flowgraph.Switch", entry.Instrs[len(entry.Instrs)-1])
	}
	if len(sw.Cases) != 2 {
		t.Errorf("cloned switch has %d cases, want 2 (plus the default)", len(sw.Cases))
	}
	if sw.Default == nil {
		t.Fatal("cloned switch has no default target")
	}

	ends := map[*flowgraph.BasicBlock]bool{terminalBlock(sw.Default): true}
	for _, c := range sw.Cases {
		ends[terminalBlock(c.Dst)] = true
	}
	if len(ends) != 1 {
		t.Errorf("switch arms reconverge at %d distinct blocks, want exactly 1", len(ends))
	}
	if err := lazify.Verify(thunk); err != nil {
		t.Errorf("Verify(thunk): %v", err)
	}
}

func TestMakeSliceControlDependent(t *testing.T) {
	caller, call, phi := buildControlDependentCaller(t)

	slice, err := lazify.MakeSlice(caller, phi, call)
	if err != nil {
		t.Fatalf("MakeSlice: %v", err)
	}
	// The gating comparison must be pulled in alongside the phi
	// itself, or the outlined function couldn't reproduce which
	// value to pick.
	var sawGate bool
	for in := range slice.Insts {
		if op, ok := in.(*flowgraph.Op); ok && op.Op == flowgraph.Eq {
			sawGate = true
		}
	}
	if !sawGate {
		t.Error("control-dependent slice did not pull in its gating comparison")
	}
	if err := lazify.CanOutline(slice); err != nil {
		t.Fatalf("CanOutline: %v", err)
	}
	if _, err := lazify.Outline(slice); err != nil {
		t.Fatalf("Outline: %v", err)
	}
}

func TestCanOutlineRejectsMemoryRead(t *testing.T) {
	caller := &flowgraph.FuncDef{Mod: "test", Name: "caller"}
	pDef := parmDef("p")
	caller.Parms = []*flowgraph.ParmDef{pDef}
	caller.Type = &flowgraph.FuncType{Parms: []flowgraph.Type{&flowgraph.AddrType{Elem: &i64}}, Ret: &flowgraph.StructType{}}

	b0 := flowgraph.NewBasicBlock(caller)
	p := parmVal(pDef, -1)
	load := appendVal(b0, &flowgraph.Load{Addr: p, AddrType: flowgraph.AddrType{Elem: &i64}}, 0)
	flowgraph.AppendInstr(b0, &flowgraph.Return{})
	flowgraph.LinkTerminator(b0)

	slice, err := lazify.MakeSlice(caller, load, nil)
	if err != nil {
		t.Fatalf("MakeSlice: %v", err)
	}
	if err := lazify.CanOutline(slice); err == nil {
		t.Fatal("expected CanOutline to reject a slice containing a Load")
	} else if !lazify.IsKind(err, lazify.UnsafeSlice) {
		t.Errorf("expected Kind UnsafeSlice, got %v", err)
	}
}

// TestCanOutlineRejectsEscapingAlloc builds a slice whose only
// direct use of its Alloc is a null check (opEscapes treats Eq/Neq
// on a pointer as non-escaping), so the rejection has to come from
// walking the Alloc's full UsedBy() set and finding the separate,
// non-pure sink call that also takes its address — not from the
// slice's own seed-to-Alloc operand chain.
func TestCanOutlineRejectsEscapingAlloc(t *testing.T) {
	sink := &flowgraph.FuncDef{Mod: "test", Name: "sink"}
	sink.Parms = []*flowgraph.ParmDef{{Name: "p", Type: &flowgraph.AddrType{Elem: &i64}, ByValue: true}}
	sink.Type = &flowgraph.FuncType{Parms: []flowgraph.Type{&i64}, Ret: &flowgraph.StructType{}}
	sb := flowgraph.NewBasicBlock(sink)
	flowgraph.AppendInstr(sb, &flowgraph.Return{})
	flowgraph.LinkTerminator(sb)

	caller := &flowgraph.FuncDef{Mod: "test", Name: "caller"}
	caller.Type = &flowgraph.FuncType{Ret: &flowgraph.StructType{}}

	b0 := flowgraph.NewBasicBlock(caller)
	alloc := appendVal(b0, &flowgraph.Alloc{CountImm: -1, T: &flowgraph.AddrType{Elem: &i64}, Stack: true}, 0)
	escapeCall := &flowgraph.Call{Func: &flowgraph.Func{Def: sink}, Args: []flowgraph.Value{alloc}}
	flowgraph.AppendInstr(b0, escapeCall)
	for _, use := range escapeCall.Uses() {
		flowgraph.RegisterUser(use, escapeCall)
	}
	null := &flowgraph.Null{T: flowgraph.AddrType{Elem: &i64}}
	isNull := appendVal(b0, &flowgraph.Op{Op: flowgraph.Eq, Args: []flowgraph.Value{alloc, null}, T: &i64}, 1)
	flowgraph.AppendInstr(b0, &flowgraph.Return{})
	flowgraph.LinkTerminator(b0)

	slice, err := lazify.MakeSlice(caller, isNull, nil)
	if err != nil {
		t.Fatalf("MakeSlice: %v", err)
	}
	if !slice.Insts[alloc.(flowgraph.Instruction)] {
		t.Fatal("slice should contain the alloc the null check depends on")
	}
	if err := lazify.CanOutline(slice); err == nil {
		t.Fatal("expected CanOutline to reject an alloc whose address escapes through a non-pure call")
	} else if !lazify.IsKind(err, lazify.UnsafeSlice) {
		t.Errorf("expected Kind UnsafeSlice, got %v", err)
	}
}

func TestCanOutlineRejectsLoopLift(t *testing.T) {
	consumer := &flowgraph.FuncDef{Mod: "test", Name: "consumer"}
	consumer.Parms = []*flowgraph.ParmDef{parmDef("x")}
	consumer.Type = &flowgraph.FuncType{Parms: []flowgraph.Type{&i64}, Ret: &flowgraph.StructType{}}
	cb := flowgraph.NewBasicBlock(consumer)
	flowgraph.AppendInstr(cb, &flowgraph.Return{})
	flowgraph.LinkTerminator(cb)

	caller := &flowgraph.FuncDef{Mod: "test", Name: "caller"}
	aDef := parmDef("a")
	caller.Parms = []*flowgraph.ParmDef{aDef}
	caller.Type = &flowgraph.FuncType{Parms: []flowgraph.Type{&i64}, Ret: &flowgraph.StructType{}}

	entry := flowgraph.NewBasicBlock(caller)
	loop := flowgraph.NewBasicBlock(caller)
	exit := flowgraph.NewBasicBlock(caller)

	flowgraph.AppendInstr(entry, &flowgraph.Jump{Dst: loop})
	flowgraph.LinkTerminator(entry)

	a := parmVal(aDef, -1)
	x := appendVal(loop, &flowgraph.Op{Op: flowgraph.Plus, Args: []flowgraph.Value{a, a}, T: &i64}, 0)
	call := &flowgraph.Call{Func: &flowgraph.Func{Def: consumer}, Args: []flowgraph.Value{x}}
	flowgraph.AppendInstr(loop, call)
	for _, use := range call.Uses() {
		flowgraph.RegisterUser(use, call)
	}
	cmpOp := appendVal(loop, &flowgraph.Op{Op: flowgraph.Eq, Args: []flowgraph.Value{a, &flowgraph.Int{Text: "0", T: i64}}, T: &i64}, 1)
	flowgraph.AppendInstr(loop, &flowgraph.If{Value: cmpOp, Op: flowgraph.Eq, X: 0, Yes: exit, No: loop})
	flowgraph.LinkTerminator(loop)

	flowgraph.AppendInstr(exit, &flowgraph.Return{})
	flowgraph.LinkTerminator(exit)

	slice, err := lazify.MakeSlice(caller, x, call)
	if err != nil {
		t.Fatalf("MakeSlice: %v", err)
	}
	if err := lazify.CanOutline(slice); err == nil {
		t.Fatal("expected CanOutline to reject lifting a slice out of the call site's loop")
	} else if !lazify.IsKind(err, lazify.UnsafeSlice) {
		t.Errorf("expected Kind UnsafeSlice, got %v", err)
	}
}

func TestLazifyCallSiteRewritesCall(t *testing.T) {
	caller, call, _ := buildArithmeticCaller(t)
	consumer := call.Func.(*flowgraph.Func).Def

	result, err := lazify.LazifyCallSite(caller, call, 0)
	if err != nil {
		t.Fatalf("LazifyCallSite: %v", err)
	}
	if result.Callee == consumer {
		t.Error("LazifyCallSite should clone the callee, not mutate it in place")
	}
	if call.Func.(*flowgraph.Func).Def != result.Callee {
		t.Error("call site was not retargeted to the cloned callee")
	}
	if _, ok := call.Args[0].(*flowgraph.Alloc); !ok {
		t.Errorf("call argument 0 should now be the closure allocation, got %T", call.Args[0])
	}
	if err := lazify.Verify(result.Callee); err != nil {
		t.Errorf("Verify(clonedCallee): %v", err)
	}
	if err := lazify.Verify(result.Thunk); err != nil {
		t.Errorf("Verify(thunk): %v", err)
	}
	if err := lazify.Verify(caller); err != nil {
		t.Errorf("Verify(caller): %v", err)
	}
}

func TestLazifyCallSiteRejectsBareParmArgument(t *testing.T) {
	consumer := &flowgraph.FuncDef{Mod: "test", Name: "consumer"}
	consumer.Parms = []*flowgraph.ParmDef{parmDef("x")}
	consumer.Type = &flowgraph.FuncType{Parms: []flowgraph.Type{&i64}, Ret: &flowgraph.StructType{}}
	cb := flowgraph.NewBasicBlock(consumer)
	flowgraph.AppendInstr(cb, &flowgraph.Return{})
	flowgraph.LinkTerminator(cb)

	caller := &flowgraph.FuncDef{Mod: "test", Name: "caller"}
	aDef := parmDef("a")
	caller.Parms = []*flowgraph.ParmDef{aDef}
	caller.Type = &flowgraph.FuncType{Parms: []flowgraph.Type{&i64}, Ret: &flowgraph.StructType{}}
	b0 := flowgraph.NewBasicBlock(caller)
	a := parmVal(aDef, -1)
	call := &flowgraph.Call{Func: &flowgraph.Func{Def: consumer}, Args: []flowgraph.Value{a}}
	flowgraph.AppendInstr(b0, call)
	flowgraph.AppendInstr(b0, &flowgraph.Return{})
	flowgraph.LinkTerminator(b0)

	if _, err := lazify.LazifyCallSite(caller, call, 0); err == nil {
		t.Fatal("expected rejection of an already-bare parameter argument")
	} else if !lazify.IsKind(err, lazify.NotLazifiable) {
		t.Errorf("expected Kind NotLazifiable, got %v", err)
	}
}

package lazify

import (
	"strconv"

	"github.com/DanielAugusto191/wyvern/flowgraph"
)

// Closure is the synthesized layout a thunk's single parameter
// points at: a function pointer field call sites use for indirect
// dispatch, an optional memo value/ready pair, and one field per
// captured DepArg, holding a copy of its value taken at the call
// site (4.H) rather than a pointer back into the caller's frame —
// the closure must stay valid after the caller returns.
type Closure struct {
	Type    *flowgraph.StructType
	FnField *flowgraph.FieldDef
	// MemoField and ReadyField are nil unless the thunk was built
	// with memoization enabled.
	MemoField  *flowgraph.FieldDef
	ReadyField *flowgraph.FieldDef
	ArgFields  []*flowgraph.FieldDef
}

// Thunk implements the Thunk ABI Wrapper (4.G): it outlines s (via
// outlineSlice) and wraps the result behind a closure-pointer calling
// convention, so every lazified call site can share one signature
// regardless of what a particular slice captures. With memoization
// on, the wrapper checks a ready flag before recomputing and caches
// the result back into the closure on first force.
func Thunk(s *Slice, name string, opts ...Option) (*flowgraph.FuncDef, *Closure, error) {
	cfg := newConfig(opts...)
	log := cfg.log.WithName("thunk")

	core, err := outlineSlice(s, name+"$core", opts...)
	if err != nil {
		return nil, nil, err
	}
	if err := Verify(core); err != nil {
		return nil, nil, err
	}

	retElem := s.Seed.Type()
	closure := buildClosureType(s, name, retElem, cfg.memoize)

	thunk := &flowgraph.FuncDef{Mod: s.Func.Mod, Name: name, L: core.L}
	closureParmDef := &flowgraph.ParmDef{
		Name:    "closure",
		Type:    &flowgraph.AddrType{Elem: closure.Type},
		ByValue: true,
		L:       core.L,
	}
	retParmDef := &flowgraph.ParmDef{
		Name:     "<result>",
		Type:     &flowgraph.AddrType{Elem: retElem},
		RetValue: true,
		L:        core.L,
	}
	thunk.Parms = []*flowgraph.ParmDef{closureParmDef, retParmDef}
	thunk.Type = &flowgraph.FuncType{Parms: []flowgraph.Type{closure.Type}, Ret: retElem}
	closure.FnField.Type = thunk.Type

	closureVal := newValue(&flowgraph.Parm{Def: closureParmDef, L: core.L})
	retAddr := newValue(&flowgraph.Parm{Def: retParmDef, L: core.L})
	flowgraph.SetNum(retAddr, -1) // never appended to a block, like a RetValue parm in any other function.

	entry := flowgraph.NewBasicBlock(thunk)
	appendValue(entry, closureVal)

	computeBlock := entry
	if cfg.memoize {
		memoAddr := appendValue(entry, &flowgraph.Field{Base: closureVal, Def: closure.ReadyField, BaseType: *closure.Type, L: core.L})
		ready := appendValue(entry, &flowgraph.Load{Addr: memoAddr, AddrType: flowgraph.AddrType{Elem: closure.ReadyField.Type}, L: core.L})

		memoRet := flowgraph.NewBasicBlock(thunk)
		computeBlock = flowgraph.NewBasicBlock(thunk)

		appendTerm(entry, &flowgraph.If{Value: ready, Op: flowgraph.Eq, X: 0, Yes: computeBlock, No: memoRet, L: core.L})

		memoValAddr := appendValue(memoRet, &flowgraph.Field{Base: closureVal, Def: closure.MemoField, BaseType: *closure.Type, L: core.L})
		memoVal := appendValue(memoRet, &flowgraph.Load{Addr: memoValAddr, AddrType: flowgraph.AddrType{Elem: closure.MemoField.Type}, L: core.L})
		appendInstr(memoRet, &flowgraph.Store{Dst: retAddr, Src: memoVal, L: core.L})
		appendTerm(memoRet, &flowgraph.Return{L: core.L})
	}

	args := make([]flowgraph.Value, len(closure.ArgFields))
	for i, fd := range closure.ArgFields {
		addr := appendValue(computeBlock, &flowgraph.Field{Base: closureVal, Def: fd, BaseType: *closure.Type, L: core.L})
		args[i] = appendValue(computeBlock, &flowgraph.Load{Addr: addr, AddrType: flowgraph.AddrType{Elem: fd.Type}, L: core.L})
	}
	tmpRet := appendValue(computeBlock, &flowgraph.Alloc{CountImm: -1, T: &flowgraph.AddrType{Elem: retElem}, L: core.L, Stack: true})
	coreFunc := appendValue(computeBlock, &flowgraph.Func{Def: core, L: core.L})
	appendInstr(computeBlock, &flowgraph.Call{Func: coreFunc, Args: append(args, tmpRet), L: core.L})
	result := appendValue(computeBlock, &flowgraph.Load{Addr: tmpRet, AddrType: flowgraph.AddrType{Elem: retElem}, L: core.L})

	if cfg.memoize {
		memoValAddr := appendValue(computeBlock, &flowgraph.Field{Base: closureVal, Def: closure.MemoField, BaseType: *closure.Type, L: core.L})
		appendInstr(computeBlock, &flowgraph.Store{Dst: memoValAddr, Src: result, L: core.L})
		readyAddr := appendValue(computeBlock, &flowgraph.Field{Base: closureVal, Def: closure.ReadyField, BaseType: *closure.Type, L: core.L})
		one := appendValue(computeBlock, &flowgraph.Int{Text: "1", T: flowgraph.IntType{Size: 8, Unsigned: true}, L: core.L})
		appendInstr(computeBlock, &flowgraph.Store{Dst: readyAddr, Src: one, L: core.L})
	}
	appendInstr(computeBlock, &flowgraph.Store{Dst: retAddr, Src: result, L: core.L})
	appendTerm(computeBlock, &flowgraph.Return{L: core.L})

	renumber(thunk)
	if err := Verify(thunk); err != nil {
		return nil, nil, err
	}
	log.V(1).Info("built thunk", "name", name, "memoized", cfg.memoize, "args", len(closure.ArgFields))
	return thunk, closure, nil
}

func buildClosureType(s *Slice, name string, retElem flowgraph.Type, memoize bool) *Closure {
	c := &Closure{Type: &flowgraph.StructType{Mod: s.Func.Mod, Name: name + "$closure"}}
	num := 0
	addField := func(fname string, t flowgraph.Type) *flowgraph.FieldDef {
		fd := &flowgraph.FieldDef{Num: num, Name: fname, Type: t}
		num++
		c.Type.Fields = append(c.Type.Fields, fd)
		return fd
	}
	c.FnField = addField("fn", &flowgraph.FuncType{}) // patched to the thunk's real type by the caller once known.
	if memoize {
		c.MemoField = addField("memo", retElem)
		c.ReadyField = addField("ready", &flowgraph.IntType{Size: 8, Unsigned: true})
	}
	for i, p := range s.DepArgs {
		c.ArgFields = append(c.ArgFields, addField(argFieldName(i, p), p.Def.Type))
	}
	return c
}

func argFieldName(i int, p *flowgraph.Parm) string {
	if p.Def.Name != "" {
		return p.Def.Name
	}
	return "arg" + strconv.Itoa(i)
}

// newValue returns v unchanged; a value placed in a block gets its
// number from renumber once the thunk's blocks are complete.
func newValue(v flowgraph.Value) flowgraph.Value { return v }

func appendValue(b *flowgraph.BasicBlock, v flowgraph.Value) flowgraph.Value {
	flowgraph.AppendInstr(b, v)
	for _, use := range v.Uses() {
		flowgraph.RegisterUser(use, v)
	}
	return v
}

func appendInstr(b *flowgraph.BasicBlock, in flowgraph.Instruction) {
	flowgraph.AppendInstr(b, in)
	for _, use := range in.Uses() {
		flowgraph.RegisterUser(use, in)
	}
}

func appendTerm(b *flowgraph.BasicBlock, t flowgraph.Instruction) {
	appendInstr(b, t)
	flowgraph.LinkTerminator(b)
}

// renumber assigns fresh, block-ordered SSA numbers across the
// whole function, the way populateBBsWithInsts does for an outlined
// core function; Thunk builds its blocks directly rather than by
// cloning, so it does its own numbering pass at the end instead of
// threading a counter through every append call above.
func renumber(f *flowgraph.FuncDef) {
	n := 0
	for _, b := range f.Blocks {
		for _, in := range b.Instrs {
			if v, ok := in.(flowgraph.Value); ok {
				flowgraph.SetNum(v, n)
				n++
			}
		}
	}
}

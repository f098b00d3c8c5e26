package flowgraph

import "testing"

// buildDiamond builds entry -> {yes, no} -> join, the same shape
// lazify's own control-dependence tests drive, used here to check
// the dominator/post-dominator trees those tests lean on.
func buildDiamond() (entry, yes, no, join *BasicBlock) {
	f := &FuncDef{Mod: "test", Name: "f"}
	entry = NewBasicBlock(f)
	yes = NewBasicBlock(f)
	no = NewBasicBlock(f)
	join = NewBasicBlock(f)

	cond := &Int{Text: "0", T: IntType{Size: 64}}
	AppendInstr(entry, cond)
	AppendInstr(entry, &If{Value: cond, Op: Eq, X: 0, Yes: yes, No: no})
	LinkTerminator(entry)

	AppendInstr(yes, &Jump{Dst: join})
	LinkTerminator(yes)
	AppendInstr(no, &Jump{Dst: join})
	LinkTerminator(no)

	AppendInstr(join, &Return{})
	LinkTerminator(join)
	return entry, yes, no, join
}

func TestDomTreeDiamond(t *testing.T) {
	entry, yes, no, join := buildDiamond()
	dt := BuildDomTree(entry.Func)

	if !dt.Dominates(entry, join) {
		t.Error("entry should dominate join")
	}
	if dt.Dominates(yes, join) {
		t.Error("yes should not dominate join: no is a path around it")
	}
	if dt.Dominates(no, join) {
		t.Error("no should not dominate join: yes is a path around it")
	}
	if got := dt.Idom(join); got != entry {
		t.Errorf("Idom(join) = %v, want entry", got)
	}
	if got := dt.Idom(yes); got != entry {
		t.Errorf("Idom(yes) = %v, want entry", got)
	}
}

func TestPostDomTreeDiamond(t *testing.T) {
	entry, yes, no, join := buildDiamond()
	pdt := BuildPostDomTree(entry.Func)

	if !pdt.Dominates(join, entry) {
		t.Error("join should post-dominate entry: every path from entry reaches join")
	}
	if !pdt.Dominates(join, yes) {
		t.Error("join should post-dominate yes")
	}
	if pdt.Dominates(yes, entry) {
		t.Error("yes should not post-dominate entry: no is a path around it")
	}
	_ = no
}

func TestLoopInfoDepth(t *testing.T) {
	f := &FuncDef{Mod: "test", Name: "f"}
	entry := NewBasicBlock(f)
	loop := NewBasicBlock(f)
	exit := NewBasicBlock(f)

	AppendInstr(entry, &Jump{Dst: loop})
	LinkTerminator(entry)

	cond := &Int{Text: "0", T: IntType{Size: 64}}
	AppendInstr(loop, cond)
	AppendInstr(loop, &If{Value: cond, Op: Eq, X: 0, Yes: exit, No: loop})
	LinkTerminator(loop)

	AppendInstr(exit, &Return{})
	LinkTerminator(exit)

	dt := BuildDomTree(f)
	li := BuildLoopInfo(f, dt)

	if li.Depth(entry) != 0 {
		t.Errorf("Depth(entry) = %d, want 0", li.Depth(entry))
	}
	if li.Depth(loop) != 1 {
		t.Errorf("Depth(loop) = %d, want 1", li.Depth(loop))
	}
	if li.Depth(exit) != 0 {
		t.Errorf("Depth(exit) = %d, want 0", li.Depth(exit))
	}
}

package flowgraph

import "testing"

// TestOptimizeFuncDropsUnreachable checks that a block with no path
// from the entry block disappears entirely, the same debris a clone
// that drops a branch (no Attractors entry, see lazify/attractor.go)
// can leave behind.
func TestOptimizeFuncDropsUnreachable(t *testing.T) {
	f := &FuncDef{Mod: "test", Name: "f"}
	entry := NewBasicBlock(f)
	dead := NewBasicBlock(f)

	AppendInstr(entry, &Return{})
	LinkTerminator(entry)
	AppendInstr(dead, &Return{})
	LinkTerminator(dead)

	OptimizeFunc(f)

	for _, b := range f.Blocks {
		if b == dead {
			t.Fatal("unreachable block survived OptimizeFunc")
		}
	}
	if len(f.Blocks) != 1 {
		t.Fatalf("len(f.Blocks) = %d, want 1", len(f.Blocks))
	}
}

// TestOptimizeFuncDropsDeadAlloc checks that a write-only alloc with
// no readers is deleted, and that its Store is deleted along with
// it rather than left dangling.
func TestOptimizeFuncDropsDeadAlloc(t *testing.T) {
	f := &FuncDef{Mod: "test", Name: "f"}
	entry := NewBasicBlock(f)

	i64 := IntType{Size: 64}
	alloc := &Alloc{CountImm: -1, T: &AddrType{Elem: &i64}, Stack: true}
	AppendInstr(entry, alloc)
	one := &Int{Text: "1", T: i64}
	AppendInstr(entry, one)
	store := &Store{Dst: alloc, Src: one}
	AppendInstr(entry, store)
	RegisterUser(alloc, store)
	RegisterUser(one, store)
	AppendInstr(entry, &Return{})
	LinkTerminator(entry)

	OptimizeFunc(f)

	for _, in := range entry.Instrs {
		if in == alloc || in == store {
			t.Errorf("dead instruction %T survived OptimizeFunc", in)
		}
	}
}

// TestOptimizeFuncMergesSingleSuccessor checks that a block whose
// only predecessor ends in a jump to it is folded into that
// predecessor.
func TestOptimizeFuncMergesSingleSuccessor(t *testing.T) {
	f := &FuncDef{Mod: "test", Name: "f"}
	entry := NewBasicBlock(f)
	next := NewBasicBlock(f)

	AppendInstr(entry, &Jump{Dst: next})
	LinkTerminator(entry)
	AppendInstr(next, &Return{})
	LinkTerminator(next)

	OptimizeFunc(f)

	if len(f.Blocks) != 1 {
		t.Fatalf("len(f.Blocks) = %d, want 1 after merging a single-successor jump", len(f.Blocks))
	}
	if _, ok := f.Blocks[0].Instrs[len(f.Blocks[0].Instrs)-1].(*Return); !ok {
		t.Error("merged block should end in the Return that was next's terminator")
	}
}

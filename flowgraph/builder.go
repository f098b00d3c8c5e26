package flowgraph

// This file exposes the package's private construction primitives
// (addUser/addIn use-wiring and predecessor bookkeeping,
// shallowCopy/subValues/subBlocks's identity-map cloning) so a
// second pass outside this package —
// lazify's function synthesizer — can build and clone functions
// without reaching into private fields.

// NewBasicBlock appends a fresh, empty block to f and returns it.
func NewBasicBlock(f *FuncDef) *BasicBlock {
	b := &BasicBlock{Num: len(f.Blocks), Func: f}
	f.Blocks = append(f.Blocks, b)
	return b
}

// AppendInstr appends r to b with no side effects on r's operands or
// its successors' predecessor lists. Callers that need those wired
// call RegisterUser/LinkTerminator once r's final operands and
// targets are settled.
func AppendInstr(b *BasicBlock, r Instruction) {
	b.Instrs = append(b.Instrs, r)
}

// RegisterUser records user as a reader of v (v's addUser
// bookkeeping).
func RegisterUser(v Value, user Instruction) {
	if v != nil {
		v.addUser(user)
	}
}

// LinkTerminator records b as a predecessor of every successor of
// b's current (assumed just-appended) terminator.
func LinkTerminator(b *BasicBlock) {
	if len(b.Instrs) == 0 {
		return
	}
	t, ok := b.Instrs[len(b.Instrs)-1].(Terminal)
	if !ok {
		return
	}
	for _, o := range t.Out() {
		if o != nil {
			o.addIn(b)
		}
	}
}

// DetachTerminator removes b's terminating instruction, if any, and
// undoes the predecessor bookkeeping it had installed on its
// successors, returning the removed instruction.
func DetachTerminator(b *BasicBlock) Instruction {
	if len(b.Instrs) == 0 {
		return nil
	}
	last := b.Instrs[len(b.Instrs)-1]
	t, ok := last.(Terminal)
	if !ok {
		return nil
	}
	for _, o := range t.Out() {
		if o != nil {
			o.rmIn(b)
		}
	}
	b.Instrs = b.Instrs[:len(b.Instrs)-1]
	return last
}

// InsertBefore splices ins into b immediately before at, which must
// already be a member of b.Instrs. Used to insert a forcing
// sequence at a specific use site inside a cloned function body,
// where the sequence must run exactly where the original value was
// consumed and nowhere earlier.
func InsertBefore(b *BasicBlock, at Instruction, ins ...Instruction) {
	for i, in := range b.Instrs {
		if in == at {
			tail := append([]Instruction{}, b.Instrs[i:]...)
			b.Instrs = append(append(b.Instrs[:i], ins...), tail...)
			return
		}
	}
}

// RemoveUser is the inverse of RegisterUser (v's rmUser
// bookkeeping); used after SubValues rewrites an operand
// away from v, so v's stale UsedBy entry for user is dropped.
func RemoveUser(v Value, user Instruction) {
	if v != nil {
		v.rmUser(user)
	}
}

// CloneInstr returns a shallow, detached-user-list copy of r: the
// same field-for-field copy shallowCopy performs for every
// instruction kind, exported so a cloning pass outside this package
// can use it without duplicating the per-type dispatch.
func CloneInstr(r Instruction) Instruction { return r.shallowCopy() }

// SubValues rewrites every Value-typed operand of r according to
// sub; operands with no entry in sub are left as-is.
func SubValues(r Instruction, sub map[Value]Value) { r.subValues(sub) }

// SubBlocks rewrites every successor block named by t according to
// sub. Every successor of t must have an entry in sub, or this
// panics (mirroring subBlock's contract) — callers that may leave a
// successor unmapped should synthesize a fresh terminator instead
// of calling SubBlocks.
func SubBlocks(t Terminal, sub map[*BasicBlock]*BasicBlock) { t.subBlocks(sub) }

// SetNum assigns v's SSA numbering. Synthesized functions number
// their values independently of the function they were sliced from.
func SetNum(v Value, n int) { v.setNum(n) }

// IsTerminated reports whether b already ends in a terminator.
func IsTerminated(b *BasicBlock) bool {
	if len(b.Instrs) == 0 {
		return false
	}
	_, ok := b.Instrs[len(b.Instrs)-1].(Terminal)
	return ok
}

package lazify

import "github.com/DanielAugusto191/wyvern/flowgraph"

// escapes reports whether addr (the address produced by an Alloc)
// is used in a way that could let it outlive, or be observed
// outside, the stack frame it was allocated in. It is the
// recursive per-use classification that hasAddressTaken performs in
// the original pass, minus the exact byte-offset bookkeeping GEP
// needs in LLVM's untyped pointer world — field/index/case access
// here still carries its own static type, so there is no
// out-of-bounds case to detect, only "does the derived address also
// escape."
func escapes(addr flowgraph.Value) bool {
	return escapesRec(addr, map[flowgraph.Value]bool{})
}

func escapesRec(addr flowgraph.Value, seen map[flowgraph.Value]bool) bool {
	if seen[addr] {
		return false
	}
	seen[addr] = true

	for _, user := range addr.UsedBy() {
		switch u := user.(type) {
		case *flowgraph.Store:
			// Storing through addr is an ordinary write; storing addr
			// itself as a value is what leaks the pointer.
			if u.Src == addr {
				return true
			}
		case *flowgraph.Copy:
			if u.Src == addr {
				return true
			}
		case *flowgraph.Call:
			if !calleeIsBenign(u.Func) {
				for _, a := range u.Args {
					if a == addr {
						return true
					}
				}
			}
		case *flowgraph.Field:
			if u.Base == addr && escapesRec(u, seen) {
				return true
			}
		case *flowgraph.Case:
			if u.Base == addr && escapesRec(u, seen) {
				return true
			}
		case *flowgraph.Index:
			if (u.Base == addr || u.Index == addr) && escapesRec(u, seen) {
				return true
			}
		case *flowgraph.Slice:
			if (u.Base == addr || u.Index == addr) && escapesRec(u, seen) {
				return true
			}
		case *flowgraph.Phi:
			if escapesRec(u, seen) {
				return true
			}
		case *flowgraph.Op:
			if opEscapes(u) {
				return true
			}
		case *flowgraph.Load, *flowgraph.Return:
			// Load-like and exit uses never outlive the frame.
		default:
			// Conservatively treat any unrecognized use of an
			// address as an escape.
			return true
		}
	}
	return false
}

// calleeIsBenign reports whether fn is known not to capture its
// pointer arguments: a Pure function (no observable side effects,
// by definition can't stash a pointer anywhere persistent) or an
// Intrinsic (lifetime/debug marker, never a real use).
func calleeIsBenign(fn flowgraph.Value) bool {
	f, ok := fn.(*flowgraph.Func)
	return ok && (f.Def.Pure || f.Def.Intrinsic)
}

// opEscapes reports whether op converts an address to a form that
// outlives comparison/arithmetic on the pointer itself, i.e.
// anything other than an equality or inequality comparison.
func opEscapes(op *flowgraph.Op) bool {
	switch op.Op {
	case flowgraph.Eq, flowgraph.Neq:
		return false
	case flowgraph.NumConvert:
		return true
	default:
		return true
	}
}

package lazify

import "github.com/DanielAugusto191/wyvern/flowgraph"

// Outline implements the call-by-name path over s: the slice is
// wrapped in a thunk that recomputes its seed every time it's
// forced. It returns the synthesized function so a driver can, e.g.,
// compute its own instruction count, or hand it and LazifyCallSite's
// other outputs to the module being rewritten.
//
// Any WithMemoization passed in opts is overridden; use Thunk
// directly if you need the *Closure layout alongside a caller-chosen
// memoization setting.
func Outline(s *Slice, opts ...Option) (*flowgraph.FuncDef, error) {
	cfg := newConfig(opts...)
	name := cfg.nameFunc(sliceName(s.Func.Name, s.Seed, false))
	f, _, err := Thunk(s, name, append(append([]Option{}, opts...), WithMemoization(false))...)
	return f, err
}

// MemoizedOutline is Outline's call-by-need twin: the thunk checks a
// ready flag before recomputing and caches the result on first
// force, matching Lazyfication.cpp's WyvernLazificationMemoization
// default.
func MemoizedOutline(s *Slice, opts ...Option) (*flowgraph.FuncDef, error) {
	cfg := newConfig(opts...)
	name := cfg.nameFunc(sliceName(s.Func.Name, s.Seed, true))
	f, _, err := Thunk(s, name, append(append([]Option{}, opts...), WithMemoization(true))...)
	return f, err
}

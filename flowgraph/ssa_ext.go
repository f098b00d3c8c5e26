package flowgraph

import (
	"fmt"
	"strings"
)

// This file adds the SSA constructs the teacher's flow-graph IR did
// not need (Phi, Switch) following the same String/buildString,
// shallowCopy, subValues, subBlocks conventions as the rest of the
// package (see string.go and optimize.go).

func (p *Phi) String() string    { return p.buildString(new(strings.Builder)).String() }
func (s *Switch) String() string { return s.buildString(new(strings.Builder)).String() }

func (p *Phi) buildString(s *strings.Builder) *strings.Builder {
	fmt.Fprintf(s, "x%d := phi(", p.Num())
	for i, e := range p.Edges {
		if i > 0 {
			s.WriteString(", ")
		}
		fmt.Fprintf(s, "%d: x%d", e.Block.Num, e.Val.Num())
	}
	s.WriteString(")")
	return s
}

func (s *Switch) buildString(b *strings.Builder) *strings.Builder {
	fmt.Fprintf(b, "switch x%d {", s.Value.Num())
	for _, c := range s.Cases {
		fmt.Fprintf(b, " %d: %d;", c.X, c.Dst.Num)
	}
	if s.Default != nil {
		fmt.Fprintf(b, " default: %d", s.Default.Num)
	}
	b.WriteString(" }")
	return b
}

func (p Phi) shallowCopy() Instruction {
	shallowCopyUsedBy(&p.value)
	p.Edges = append([]PhiEdge{}, p.Edges...)
	return &p
}

func (s Switch) shallowCopy() Instruction {
	s.Cases = append([]SwitchCase{}, s.Cases...)
	return &s
}

func (p *Phi) subValues(sub map[Value]Value) {
	for i := range p.Edges {
		p.Edges[i].Val = subValue(p.Edges[i].Val, sub)
	}
}

func (s *Switch) subValues(sub map[Value]Value) {
	s.Value = subValue(s.Value, sub)
}

func (s *Switch) subBlocks(sub map[*BasicBlock]*BasicBlock) {
	for i := range s.Cases {
		s.Cases[i].Dst = subBlock(s.Cases[i].Dst, sub)
	}
	if s.Default != nil {
		s.Default = subBlock(s.Default, sub)
	}
}

package lazify

import "github.com/DanielAugusto191/wyvern/flowgraph"

// Attractors returns, for every block of the function, the block
// control should be rerouted to if the original block isn't itself
// in the slice: the block itself if it's a member, otherwise the
// nearest ancestor in the post-dominator tree that is. A block with
// no such ancestor has no entry in the map — rerouteBranches (4.F)
// leaves a slice block whose successors all lack an entry without a
// terminator rather than guessing at one, and verify.go's
// malformed-SSA check is what catches that (see DESIGN.md).
func (s *Slice) Attractors() map[*flowgraph.BasicBlock]*flowgraph.BasicBlock {
	if s.attractors != nil {
		return s.attractors
	}
	attractors := make(map[*flowgraph.BasicBlock]*flowgraph.BasicBlock, len(s.Func.Blocks))
	for _, b := range s.Func.Blocks {
		if s.Blocks[b] {
			attractors[b] = b
			continue
		}
		cand := s.pdom.Idom(b)
		for cand != nil && !s.Blocks[cand] {
			cand = s.pdom.Idom(cand)
		}
		if cand != nil {
			attractors[b] = cand
		}
	}
	s.attractors = attractors
	return attractors
}

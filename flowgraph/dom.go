package flowgraph

// Dominator and post-dominator tree construction, Lengauer-Tarjan,
// adapted from the classic go/ssa dominator-tree algorithm
// (the teacher's own flow-graph IR has no dominance analysis to
// build on) to operate directly over *BasicBlock via a pair of
// successor/predecessor callbacks, so the same engine builds both
// the forward dominator tree (4.A, 4.D) and, run over the reversed
// CFG with a synthetic exit root, the post-dominator tree (4.A,
// 4.E).
//
// See Lengauer & Tarjan, "A fast algorithm for finding dominators
// in a flowgraph", TOPLAS 1979, with the refinement from
// Georgiadis, Tarjan & Werneck, "Finding Dominators in Practice",
// JGAA 2006, that keeps each bucket a single linked chain.

type domNode struct {
	block    *BasicBlock // nil only for the synthetic post-dom exit root
	idom     *domNode
	children []*domNode
	pre, post int32
	index    int32 // preorder index among reachable nodes; -1 if unreached

	// Lengauer-Tarjan working state.
	sdom     *domNode
	ltParent *domNode
	ancestor *domNode
}

type domGraph struct {
	nodes      []*domNode
	byBlock    map[*BasicBlock]*domNode
	root       *domNode
	succ, pred func(*domNode) []*domNode
	lt         *ltState
}

func (g *domGraph) dfs(v *domNode, i int32, preorder []*domNode) int32 {
	preorder[i] = v
	v.pre = i
	i++
	lt := g.lt
	lt.sdom[v.index] = v
	g.link(nil, v)
	for _, w := range g.succ(v) {
		if lt.sdom[w.index] == nil {
			lt.ltParent[w.index] = v
			i = g.dfs(w, i, preorder)
		}
	}
	return i
}

// ltState mirrors domGraph's per-run scratch arrays; kept as a
// separate type so dfs/eval/link read naturally as the textbook
// algorithm.
type ltState struct {
	sdom     []*domNode
	ltParent []*domNode
	ancestor []*domNode
}

func (g *domGraph) eval(v *domNode) *domNode {
	lt := g.lt
	u := v
	for ; lt.ancestor[v.index] != nil; v = lt.ancestor[v.index] {
		if lt.sdom[v.index].pre < lt.sdom[u.index].pre {
			u = v
		}
	}
	return u
}

func (g *domGraph) link(v, w *domNode) {
	g.lt.ancestor[w.index] = v
}

func (g *domGraph) build() {
	var reachable []*domNode
	seen := make(map[*domNode]bool)
	var visit func(n *domNode)
	visit = func(n *domNode) {
		if seen[n] {
			return
		}
		seen[n] = true
		n.index = int32(len(reachable))
		reachable = append(reachable, n)
		for _, s := range g.succ(n) {
			visit(s)
		}
	}
	visit(g.root)
	nodes := reachable

	n := len(nodes)
	space := make([]*domNode, 5*n)
	g.lt = &ltState{
		sdom:     space[0:n],
		ltParent: space[n : 2*n],
		ancestor: space[2*n : 3*n],
	}
	preorder := space[3*n : 4*n]
	buckets := space[4*n : 5*n]

	var prenum int32
	prenum = g.dfs(g.root, prenum, preorder)
	_ = prenum
	copy(buckets, preorder)

	lt := g.lt
	for i := int32(n) - 1; i > 0; i-- {
		w := preorder[i]

		for v := buckets[i]; v != w; v = buckets[v.pre] {
			u := g.eval(v)
			if lt.sdom[u.index].pre < i {
				v.idom = u
			} else {
				v.idom = w
			}
		}

		lt.sdom[w.index] = lt.ltParent[w.index]
		for _, v := range g.pred(w) {
			if v.index < 0 || !seen[v] {
				continue
			}
			u := g.eval(v)
			if lt.sdom[u.index].pre < lt.sdom[w.index].pre {
				lt.sdom[w.index] = lt.sdom[u.index]
			}
		}

		g.link(lt.ltParent[w.index], w)

		if lt.ltParent[w.index] == lt.sdom[w.index] {
			w.idom = lt.ltParent[w.index]
		} else {
			buckets[i] = buckets[lt.sdom[w.index].pre]
			buckets[lt.sdom[w.index].pre] = w
		}
	}

	for v := buckets[0]; v != preorder[0]; v = buckets[v.pre] {
		v.idom = preorder[0]
	}

	for _, w := range preorder[1:] {
		if w == g.root {
			w.idom = nil
			continue
		}
		if w.idom != lt.sdom[w.index] {
			w.idom = w.idom.idom
		}
		w.idom.children = append(w.idom.children, w)
	}

	var pre, post int32
	pre, post = numberDomTree(g.root, pre, post)
	_ = post
}

func numberDomTree(v *domNode, pre, post int32) (int32, int32) {
	v.pre = pre
	pre++
	for _, c := range v.children {
		pre, post = numberDomTree(c, pre, post)
	}
	v.post = post
	post++
	return pre, post
}

// DomTree is the dominator tree of a function: for every reachable
// block, which block immediately dominates it.
type DomTree struct {
	g *domGraph
}

// BuildDomTree computes the dominator tree of f, rooted at f's
// entry block (f.Blocks[0]).
func BuildDomTree(f *FuncDef) *DomTree {
	if len(f.Blocks) == 0 {
		return &DomTree{g: &domGraph{byBlock: map[*BasicBlock]*domNode{}}}
	}
	byBlock := make(map[*BasicBlock]*domNode, len(f.Blocks))
	nodes := make([]*domNode, len(f.Blocks))
	for i, b := range f.Blocks {
		n := &domNode{block: b, index: -1}
		byBlock[b] = n
		nodes[i] = n
	}
	g := &domGraph{
		nodes:   nodes,
		byBlock: byBlock,
		root:    byBlock[f.Blocks[0]],
		succ: func(n *domNode) []*domNode {
			return mapBlocks(n.block.Out(), byBlock)
		},
		pred: func(n *domNode) []*domNode {
			return mapBlocks(n.block.In(), byBlock)
		},
	}
	g.build()
	return &DomTree{g: g}
}

func mapBlocks(bs []*BasicBlock, byBlock map[*BasicBlock]*domNode) []*domNode {
	out := make([]*domNode, 0, len(bs))
	for _, b := range bs {
		if b == nil {
			continue
		}
		if n, ok := byBlock[b]; ok {
			out = append(out, n)
		}
	}
	return out
}

// Dominates reports whether a dominates b (reflexively: a block
// dominates itself).
func (t *DomTree) Dominates(a, b *BasicBlock) bool {
	na, oka := t.g.byBlock[a]
	nb, okb := t.g.byBlock[b]
	if !oka || !okb {
		return false
	}
	return na.pre <= nb.pre && nb.post <= na.post
}

// Idom returns the immediate dominator of b, or nil if b is the
// root or unreachable.
func (t *DomTree) Idom(b *BasicBlock) *BasicBlock {
	n, ok := t.g.byBlock[b]
	if !ok || n.idom == nil {
		return nil
	}
	return n.idom.block
}

// PostDomTree is the post-dominator tree of a function, built over
// a virtual single exit connected to every block with no CFG
// successors (returns, unreachables).
type PostDomTree struct {
	g    *domGraph
	exit *domNode
}

// BuildPostDomTree computes the post-dominator tree of f.
func BuildPostDomTree(f *FuncDef) *PostDomTree {
	byBlock := make(map[*BasicBlock]*domNode, len(f.Blocks))
	nodes := make([]*domNode, 0, len(f.Blocks)+1)
	for _, b := range f.Blocks {
		n := &domNode{block: b, index: -1}
		byBlock[b] = n
		nodes = append(nodes, n)
	}
	exit := &domNode{block: nil, index: -1}
	nodes = append(nodes, exit)

	var exits []*domNode
	for _, b := range f.Blocks {
		if len(b.Out()) == 0 {
			exits = append(exits, byBlock[b])
		}
	}

	g := &domGraph{
		nodes:   nodes,
		byBlock: byBlock,
		root:    exit,
		succ: func(n *domNode) []*domNode {
			if n.block == nil {
				return exits
			}
			return mapBlocks(n.block.In(), byBlock)
		},
		pred: func(n *domNode) []*domNode {
			if n.block == nil {
				return nil
			}
			if len(n.block.Out()) == 0 {
				return []*domNode{exit}
			}
			return mapBlocks(n.block.Out(), byBlock)
		},
	}
	g.build()
	return &PostDomTree{g: g, exit: exit}
}

// Dominates reports whether a post-dominates b.
func (t *PostDomTree) Dominates(a, b *BasicBlock) bool {
	na, oka := t.g.byBlock[a]
	nb, okb := t.g.byBlock[b]
	if !oka || !okb {
		return false
	}
	return na.pre <= nb.pre && nb.post <= na.post
}

// Idom returns the immediate post-dominator of b, or nil if b
// post-dominates the function (reaches every exit) or is
// unreachable within the post-dom graph.
func (t *PostDomTree) Idom(b *BasicBlock) *BasicBlock {
	n, ok := t.g.byBlock[b]
	if !ok || n.idom == nil || n.idom.block == nil {
		return nil
	}
	return n.idom.block
}

package analysis

import (
	"sysyc/internal/mir"
	"sysyc/internal/pass"
)

// DominanceResult is the immediate-dominator tree plus its derived
// structures (spec.md §4.4): dominance frontier, strict/dominated
// sets, and three traversal orders over the dominator tree.
type DominanceResult struct {
	Entry *mir.Block
	IDom  map[*mir.Block]*mir.Block
	// Children is the dominator-tree adjacency list (Entry's parent is
	// itself; it has no entry of its own as a child of anything).
	Children map[*mir.Block][]*mir.Block
	Frontier map[*mir.Block][]*mir.Block

	preOrder  []*mir.Block
	postOrder []*mir.Block
	bfsLayers [][]*mir.Block
}

// Dominates reports whether a dominates b (non-strictly: a block
// dominates itself).
func (d *DominanceResult) Dominates(a, b *mir.Block) bool {
	if a == b {
		return true
	}
	cur := b
	for {
		parent, ok := d.IDom[cur]
		if !ok || parent == cur {
			return false
		}
		if parent == a {
			return true
		}
		cur = parent
	}
}

// StrictlyDominates reports whether a strictly dominates b (a != b).
func (d *DominanceResult) StrictlyDominates(a, b *mir.Block) bool {
	return a != b && d.Dominates(a, b)
}

// Dominated returns every block (non-strictly) dominated by a.
func (d *DominanceResult) Dominated(a *mir.Block) []*mir.Block {
	var out []*mir.Block
	var walk func(b *mir.Block)
	walk = func(b *mir.Block) {
		out = append(out, b)
		for _, c := range d.Children[b] {
			walk(c)
		}
	}
	walk(a)
	return out
}

func (d *DominanceResult) PreOrder() []*mir.Block  { return d.preOrder }
func (d *DominanceResult) PostOrder() []*mir.Block { return d.postOrder }
func (d *DominanceResult) BFSLayers() [][]*mir.Block { return d.bfsLayers }

type DominanceAnalysis struct{}

func (DominanceAnalysis) Name() string        { return "dominance" }
func (DominanceAnalysis) DependsOn() []string { return []string{"cfg"} }

func (DominanceAnalysis) Compute(m *mir.Module, f *mir.Function, mgr *pass.Manager) any {
	entry := f.Entry()
	res := &DominanceResult{
		Entry:    entry,
		IDom:     map[*mir.Block]*mir.Block{},
		Children: map[*mir.Block][]*mir.Block{},
		Frontier: map[*mir.Block][]*mir.Block{},
	}
	if entry == nil {
		return res
	}
	cfg := CFGOf(mgr, f)

	lt := newLengauerTarjan(cfg, entry)
	lt.run()
	for b, idom := range lt.idom {
		res.IDom[b] = idom
	}
	res.IDom[entry] = entry

	for _, b := range cfg.Order {
		if b == entry {
			continue
		}
		p := res.IDom[b]
		res.Children[p] = append(res.Children[p], b)
	}

	computeDominanceFrontier(cfg, res)
	computeTraversals(res)
	return res
}

// DominanceOf fetches (or computes) f's memoized dominator tree.
func DominanceOf(mgr *pass.Manager, f *mir.Function) *DominanceResult {
	return mgr.GetAnalysisResult(pass.Create[DominanceAnalysis](), f).(*DominanceResult)
}

// lengauerTarjan is the classic (unbalanced, O(m log n)) formulation:
// a DFS numbering, semidominators computed via a path-compressing
// union-find over the DFS tree, and a two-pass idom fixup.
type lengauerTarjan struct {
	cfg *CFGResult

	dfnum map[*mir.Block]int
	vertex []*mir.Block
	parent map[*mir.Block]*mir.Block
	semi   map[*mir.Block]*mir.Block
	ancestor map[*mir.Block]*mir.Block
	label    map[*mir.Block]*mir.Block
	bucket   map[*mir.Block][]*mir.Block
	idom     map[*mir.Block]*mir.Block
}

func newLengauerTarjan(cfg *CFGResult, entry *mir.Block) *lengauerTarjan {
	return &lengauerTarjan{
		cfg:      cfg,
		dfnum:    map[*mir.Block]int{},
		parent:   map[*mir.Block]*mir.Block{},
		semi:     map[*mir.Block]*mir.Block{},
		ancestor: map[*mir.Block]*mir.Block{},
		label:    map[*mir.Block]*mir.Block{},
		bucket:   map[*mir.Block][]*mir.Block{},
		idom:     map[*mir.Block]*mir.Block{},
	}
}

func (lt *lengauerTarjan) run() {
	entry := lt.cfg.Order[0]
	lt.dfs(entry)

	for i := len(lt.vertex) - 1; i >= 1; i-- {
		w := lt.vertex[i]
		for _, v := range lt.cfg.Preds[w] {
			if _, ok := lt.dfnum[v]; !ok {
				continue // unreachable predecessor
			}
			u := lt.eval(v)
			if lt.dfnum[lt.semi[u]] < lt.dfnum[lt.semi[w]] {
				lt.semi[w] = lt.semi[u]
			}
		}
		lt.bucket[lt.semi[w]] = append(lt.bucket[lt.semi[w]], w)
		lt.link(lt.parent[w], w)

		pw := lt.parent[w]
		bucket := lt.bucket[pw]
		lt.bucket[pw] = nil
		for _, v := range bucket {
			u := lt.eval(v)
			if lt.dfnum[lt.semi[u]] < lt.dfnum[lt.semi[v]] {
				lt.idom[v] = u
			} else {
				lt.idom[v] = pw
			}
		}
	}

	for i := 1; i < len(lt.vertex); i++ {
		w := lt.vertex[i]
		if lt.idom[w] != lt.semi[w] {
			lt.idom[w] = lt.idom[lt.idom[w]]
		}
	}
}

func (lt *lengauerTarjan) dfs(b *mir.Block) {
	if _, seen := lt.dfnum[b]; seen {
		return
	}
	lt.dfnum[b] = len(lt.vertex)
	lt.vertex = append(lt.vertex, b)
	lt.semi[b] = b
	lt.label[b] = b

	for _, s := range lt.cfg.Succs[b] {
		if _, seen := lt.dfnum[s]; !seen {
			lt.parent[s] = b
			lt.dfs(s)
		}
	}
}

func (lt *lengauerTarjan) link(v, w *mir.Block) {
	lt.ancestor[w] = v
}

func (lt *lengauerTarjan) eval(v *mir.Block) *mir.Block {
	if _, ok := lt.ancestor[v]; !ok {
		return v
	}
	lt.compress(v)
	return lt.label[v]
}

func (lt *lengauerTarjan) compress(v *mir.Block) {
	a := lt.ancestor[v]
	if _, ok := lt.ancestor[a]; !ok {
		return
	}
	lt.compress(a)
	if lt.dfnum[lt.semi[lt.label[a]]] < lt.dfnum[lt.semi[lt.label[v]]] {
		lt.label[v] = lt.label[a]
	}
	lt.ancestor[v] = lt.ancestor[a]
}

// computeDominanceFrontier is the classic Cytron-Ferrante walk
// (spec.md §4.4): for each join block x (>=2 CFG predecessors), for
// each predecessor p, ascend the idom chain from p up to (excluding)
// idom(x), adding x to every visited block's frontier.
func computeDominanceFrontier(cfg *CFGResult, res *DominanceResult) {
	for _, x := range cfg.Order {
		preds := cfg.Preds[x]
		if len(preds) < 2 {
			continue
		}
		idomX := res.IDom[x]
		for _, p := range preds {
			runner := p
			for runner != idomX {
				res.Frontier[runner] = appendUnique(res.Frontier[runner], x)
				next := res.IDom[runner]
				if next == runner {
					break // reached the entry without finding idomX; stop
				}
				runner = next
			}
		}
	}
}

func appendUnique(list []*mir.Block, b *mir.Block) []*mir.Block {
	for _, x := range list {
		if x == b {
			return list
		}
	}
	return append(list, b)
}

func computeTraversals(res *DominanceResult) {
	var pre, post []*mir.Block
	var walk func(b *mir.Block)
	walk = func(b *mir.Block) {
		pre = append(pre, b)
		for _, c := range res.Children[b] {
			walk(c)
		}
		post = append(post, b)
	}
	if res.Entry != nil {
		walk(res.Entry)
	}
	res.preOrder = pre
	res.postOrder = post

	var layers [][]*mir.Block
	if res.Entry != nil {
		layer := []*mir.Block{res.Entry}
		for len(layer) > 0 {
			layers = append(layers, layer)
			var next []*mir.Block
			for _, b := range layer {
				next = append(next, res.Children[b]...)
			}
			layer = next
		}
	}
	res.bfsLayers = layers
}

// Package analysis implements the dataflow analyses feature passes
// depend on: dominator trees, post-order traversal, and a sparse
// conditional constant/divergence propagation engine.
package analysis

import (
	"sort"

	"github.com/gpureshape/gpuvalidate/ir"
)

const dominatorAnalysisKey = "dominator"

// Dominator caches a function's immediate-dominator tree plus the
// predecessor/successor lists and post-order numbering it was computed
// from, per spec §4.2.
type Dominator struct {
	postOrder  []ir.ID
	rpoNumber  map[ir.ID]int
	idom       map[ir.ID]ir.ID
	preds      map[ir.ID][]ir.ID
	succs      map[ir.ID][]ir.ID
	entry      ir.ID
}

// ComputeDominators computes (or returns the cached) Dominator for f.
func ComputeDominators(f *ir.Function) *Dominator {
	if cached, ok := f.Analysis(dominatorAnalysisKey); ok {
		return cached.(*Dominator)
	}
	d := buildDominator(f)
	f.SetAnalysis(dominatorAnalysisKey, d)
	return d
}

func buildDominator(f *ir.Function) *Dominator {
	d := &Dominator{
		idom:  make(map[ir.ID]ir.ID),
		preds: make(map[ir.ID][]ir.ID),
		succs: make(map[ir.ID][]ir.ID),
	}
	entry := f.Entry()
	if entry == nil {
		return d
	}
	d.entry = entry.ID

	for _, b := range f.Blocks() {
		d.succs[b.ID] = blockSuccessors(b)
	}
	for id, succs := range d.succs {
		for _, s := range succs {
			d.preds[s] = append(d.preds[s], id)
		}
	}

	d.postOrder = postOrder(entry.ID, d.succs)
	d.rpoNumber = make(map[ir.ID]int, len(d.postOrder))
	n := len(d.postOrder)
	for i, id := range d.postOrder {
		d.rpoNumber[id] = n - 1 - i
	}

	d.idom[entry.ID] = entry.ID

	rpoOrder := make([]ir.ID, len(d.postOrder))
	copy(rpoOrder, d.postOrder)
	sort.Slice(rpoOrder, func(i, j int) bool { return d.rpoNumber[rpoOrder[i]] < d.rpoNumber[rpoOrder[j]] })

	changed := true
	for changed {
		changed = false
		for _, b := range rpoOrder {
			if b == entry.ID {
				continue
			}
			var newIdom ir.ID
			first := true
			for _, p := range d.preds[b] {
				if _, ok := d.idom[p]; !ok {
					continue
				}
				if first {
					newIdom = p
					first = false
					continue
				}
				newIdom = intersect(newIdom, p, d.idom, d.rpoNumber)
			}
			if first {
				continue // unreachable predecessor set so far
			}
			if cur, ok := d.idom[b]; !ok || cur != newIdom {
				d.idom[b] = newIdom
				changed = true
			}
		}
	}
	return d
}

// intersect finger-walks two blocks up the (partially built) dominator
// tree using reverse-post-order numbers (entry = 0) until they
// converge, per Cooper-Harvey-Kennedy.
func intersect(a, b ir.ID, idom map[ir.ID]ir.ID, rpo map[ir.ID]int) ir.ID {
	for a != b {
		for rpo[a] > rpo[b] {
			a = idom[a]
		}
		for rpo[b] > rpo[a] {
			b = idom[b]
		}
	}
	return a
}

func postOrder(entry ir.ID, succs map[ir.ID][]ir.ID) []ir.ID {
	var order []ir.ID
	visited := map[ir.ID]bool{}
	var visit func(ir.ID)
	visit = func(id ir.ID) {
		if visited[id] {
			return
		}
		visited[id] = true
		for _, s := range succs[id] {
			visit(s)
		}
		order = append(order, id)
	}
	visit(entry)
	return order
}

func blockSuccessors(b *ir.BasicBlock) []ir.ID {
	term := b.Terminator()
	if term == nil {
		return nil
	}
	switch term.OpCode {
	case ir.OpBranch:
		return []ir.ID{term.Operands[0]}
	case ir.OpBranchConditional:
		return []ir.ID{term.Operands[1], term.Operands[2]}
	case ir.OpSwitch:
		out := []ir.ID{term.Operands[1]}
		for i := 3; i < len(term.Operands); i += 2 {
			out = append(out, term.Operands[i])
		}
		return out
	default:
		return nil
	}
}

// Dominates reports whether a dominates b (every path from the entry
// to b passes through a). Dominates(b, b) is always true.
func (d *Dominator) Dominates(a, b ir.ID) bool {
	if a == b {
		return true
	}
	cur, ok := d.idom[b]
	if !ok {
		return false
	}
	for {
		if cur == a {
			return true
		}
		if cur == d.entry {
			return cur == a
		}
		next, ok := d.idom[cur]
		if !ok || next == cur {
			return false
		}
		cur = next
	}
}

// ImmediateDominator returns b's immediate dominator.
func (d *Dominator) ImmediateDominator(b ir.ID) (ir.ID, bool) {
	id, ok := d.idom[b]
	return id, ok
}

// Predecessors returns b's predecessor blocks.
func (d *Dominator) Predecessors(b ir.ID) []ir.ID { return d.preds[b] }

// Successors returns b's successor blocks.
func (d *Dominator) Successors(b ir.ID) []ir.ID { return d.succs[b] }

// PostOrder returns the function's post-order block traversal.
func (d *Dominator) PostOrder() []ir.ID { return d.postOrder }

// Reachable reports whether b was reached from the entry at all.
func (d *Dominator) Reachable(b ir.ID) bool {
	_, ok := d.rpoNumber[b]
	return ok
}

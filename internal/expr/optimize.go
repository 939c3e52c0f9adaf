package expr

import "github.com/evince-ml/evince/internal/factor"

// Optimize rewrites the graph rooted at n into an equivalent form with a
// cheaper evaluation order: log-sum-exp reductions over products are
// reassociated by greedy variable elimination, combining at each step only
// the factors that mention the cheapest variable and reducing that
// variable as early as possible. Results are numerically equivalent up to
// floating-point reassociation.
//
// Leaves are preserved: the optimized graph references the same leaf nodes,
// so adjoint targets remain valid.
func Optimize(b *Builder, n *Node) *Node {
	p := &optPass{b: b, done: make(map[*Node]*Node)}
	return p.rewrite(n)
}

type optPass struct {
	b    *Builder
	done map[*Node]*Node
}

func (p *optPass) rewrite(n *Node) *Node {
	if out, ok := p.done[n]; ok {
		return out
	}
	var out *Node
	switch n.kind {
	case KindLeaf:
		out = n
	case KindProduct:
		args := make([]*Node, len(n.args))
		for i, a := range n.args {
			args[i] = p.rewrite(a)
		}
		out = p.b.Product(args...)
	case KindReduce:
		child := p.rewrite(n.args[0])
		if n.op == LogSumExp && child.kind == KindProduct {
			out = p.contract(child.args, n.vars)
		} else {
			out = p.b.Reduce(n.op, child, n.vars)
		}
	case KindSlice:
		out = p.b.Slice(p.rewrite(n.args[0]), n.from, n.index)
	case KindRename:
		out = p.b.Rename(p.rewrite(n.args[0]), n.from, n.to)
	case KindScale:
		out = p.b.Scale(p.rewrite(n.args[0]), n.c)
	case KindIntegrate:
		out = p.b.Integrate(p.rewrite(n.args[0]), p.rewrite(n.args[1]), n.vars)
	default:
		out = n
	}
	p.done[n] = out
	return out
}

// contract eliminates vars from the product of factors by greedy variable
// elimination: repeatedly pick the variable whose neighborhood produces
// the smallest intermediate, combine exactly those factors, and reduce
// every eliminated variable confined to that group.
func (p *optPass) contract(factors []*Node, vars factor.VarSet) *Node {
	factors = append([]*Node(nil), factors...)
	remaining := vars

	for len(remaining) > 0 {
		best := -1
		bestCost := 0
		for vi, v := range remaining {
			mentioned := false
			joint := factor.NewVarSet()
			for _, f := range factors {
				if f.inputs.Contains(v.Name) {
					mentioned = true
					joint = joint.Union(f.inputs)
				}
			}
			if !mentioned {
				continue
			}
			cost := joint.NumCells()
			if best < 0 || cost < bestCost {
				best, bestCost = vi, cost
			}
		}
		if best < 0 {
			// Nothing mentions the pending variables; already eliminated.
			break
		}
		v := remaining[best]

		group := make([]*Node, 0, len(factors))
		rest := make([]*Node, 0, len(factors))
		for _, f := range factors {
			if f.inputs.Contains(v.Name) {
				group = append(group, f)
			} else {
				rest = append(rest, f)
			}
		}
		combined := p.b.Product(group...)

		// Reduce every pending variable that no remaining factor mentions.
		confined := factor.NewVarSet()
		for _, rv := range remaining {
			if !combined.inputs.Contains(rv.Name) {
				continue
			}
			mentioned := false
			for _, f := range rest {
				if f.inputs.Contains(rv.Name) {
					mentioned = true
					break
				}
			}
			if !mentioned {
				confined = confined.Add(rv)
			}
		}
		factors = append(rest, p.b.Reduce(LogSumExp, combined, confined))
		remaining = remaining.Minus(confined)
	}
	return p.b.Product(factors...)
}

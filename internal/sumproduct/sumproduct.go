// Package sumproduct implements generalized variable elimination over lazy
// factor graphs, under the (log-sum-exp, add) semiring.
//
// Plate variables are replicated-independent batch dimensions: they are
// never eliminated by the semiring sum, only preserved as batch axes or
// collapsed by numeric summation once a component is fully contracted.
// Measure variables are eliminated by log-sum-exp. A plate carrying a
// non-empty step descriptor is a sequential axis and is eliminated by a
// linear-chain scan (see markov.go).
//
// All routines are pure functions over immutable node collections: they
// build lazy graph nodes and never materialize values.
package sumproduct

import (
	"errors"
	"fmt"
	"sort"

	"github.com/evince-ml/evince/internal/expr"
	"github.com/evince-ml/evince/internal/factor"
)

// ErrIntractable reports a factor graph whose plate/measure structure
// admits no valid elimination order: a contracted component still spans
// the full plate context it started in.
var ErrIntractable = errors.New("sumproduct: intractable plate structure")

type ordinalEntry struct {
	vars    factor.VarSet // plate context
	factors []*expr.Node
	elim    factor.VarSet // sum variables eliminated at this ordinal
}

// PartialSumProduct eliminates the measure variables of eliminate from the
// factor collection by sum-product variable elimination, treating the
// plate variables as batch dimensions. Plate variables listed in eliminate
// are collapsed by numeric summation once no measure variable links their
// component to anything else.
//
// Returns one residual node per connected component of the eliminated
// factor graph.
func PartialSumProduct(b *expr.Builder, factors []*expr.Node, plates, eliminate factor.VarSet) ([]*expr.Node, error) {
	sumVars := eliminate.Minus(plates)
	prodVars := eliminate.Intersect(plates)

	// Group factors by plate context, and find for every sum variable the
	// shallowest context it appears under: that is where it is eliminated.
	ordinals := make(map[string]*ordinalEntry)
	varToOrdinal := make(map[string]factor.VarSet)
	entry := func(ord factor.VarSet) *ordinalEntry {
		key := ord.Key()
		e, ok := ordinals[key]
		if !ok {
			e = &ordinalEntry{vars: ord}
			ordinals[key] = e
		}
		return e
	}
	for _, f := range factors {
		ord := plates.Intersect(f.Inputs())
		entry(ord).factors = append(entry(ord).factors, f)
		for _, v := range sumVars.Intersect(f.Inputs()) {
			if cur, ok := varToOrdinal[v.Name]; ok {
				varToOrdinal[v.Name] = cur.Intersect(ord)
			} else {
				varToOrdinal[v.Name] = ord
			}
		}
	}
	names := make([]string, 0, len(varToOrdinal))
	for name := range varToOrdinal {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		v, _ := sumVars.Lookup(name)
		e := entry(varToOrdinal[name])
		e.elim = e.elim.Add(v)
	}

	var results []*expr.Node
	for {
		leaf := deepestPending(ordinals)
		if leaf == nil {
			break
		}
		pending := leaf.factors
		leaf.factors = nil

		for _, comp := range partition(pending, leaf.elim) {
			f := b.Reduce(expr.LogSumExp, b.Product(comp.factors...), comp.vars)
			remaining := sumVars.Intersect(f.Inputs())
			if len(remaining) == 0 {
				results = append(results, b.Reduce(expr.Sum, f, leaf.vars.Intersect(prodVars)))
				continue
			}
			newOrd := factor.NewVarSet()
			for _, v := range remaining {
				newOrd = newOrd.Union(varToOrdinal[v.Name])
			}
			if newOrd.Equal(leaf.vars) {
				return nil, fmt.Errorf("%w: variables %v remain inside plates %v", ErrIntractable, remaining, leaf.vars)
			}
			// Moving to a shallower plate context collapses every departed
			// plate axis with the product: a variable shared across a plate
			// sees the product of the per-replicate factors.
			f = b.Reduce(expr.Sum, f, leaf.vars.Minus(newOrd))
			entry(newOrd).factors = append(entry(newOrd).factors, f)
		}
	}
	return results, nil
}

// deepestPending picks the pending ordinal with the largest plate context,
// breaking ties by key for determinism.
func deepestPending(ordinals map[string]*ordinalEntry) *ordinalEntry {
	var best *ordinalEntry
	var bestKey string
	for key, e := range ordinals {
		if len(e.factors) == 0 {
			continue
		}
		if best == nil || len(e.vars) > len(best.vars) ||
			(len(e.vars) == len(best.vars) && key < bestKey) {
			best, bestKey = e, key
		}
	}
	return best
}

// SumProduct fully contracts the factor collection, folding the residual
// components with the semiring product. The empty collection contracts to
// the product unit.
func SumProduct(b *expr.Builder, factors []*expr.Node, plates, eliminate factor.VarSet) (*expr.Node, error) {
	parts, err := PartialSumProduct(b, factors, plates, eliminate)
	if err != nil {
		return nil, err
	}
	return b.Product(parts...), nil
}

type component struct {
	factors []*expr.Node
	vars    factor.VarSet
}

// partition splits factors into connected components, where two factors
// are connected when they share a variable from vars. Factors mentioning
// no such variable form singleton components.
func partition(factors []*expr.Node, vars factor.VarSet) []component {
	parent := make([]int, len(factors))
	for i := range parent {
		parent[i] = i
	}
	var find func(i int) int
	find = func(i int) int {
		if parent[i] != i {
			parent[i] = find(parent[i])
		}
		return parent[i]
	}
	union := func(i, j int) {
		parent[find(i)] = find(j)
	}

	for _, v := range vars {
		first := -1
		for i, f := range factors {
			if !f.Inputs().Contains(v.Name) {
				continue
			}
			if first < 0 {
				first = i
				continue
			}
			union(first, i)
		}
	}

	byRoot := make(map[int]*component)
	var order []int
	for i, f := range factors {
		r := find(i)
		c, ok := byRoot[r]
		if !ok {
			c = &component{}
			byRoot[r] = c
			order = append(order, r)
		}
		c.factors = append(c.factors, f)
		c.vars = c.vars.Union(vars.Intersect(f.Inputs()))
	}

	out := make([]component, 0, len(order))
	for _, r := range order {
		out = append(out, *byRoot[r])
	}
	return out
}

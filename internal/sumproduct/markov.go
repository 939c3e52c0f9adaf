package sumproduct

import (
	"errors"
	"fmt"
	"sort"

	"github.com/evince-ml/evince/internal/expr"
	"github.com/evince-ml/evince/internal/factor"
)

// ErrMalformedStep reports a sequential plate whose step descriptor is
// inconsistent with the factor collection: a fatal configuration error,
// never retried.
var ErrMalformedStep = errors.New("sumproduct: malformed step descriptor")

// ModifiedPartialSumProduct generalizes PartialSumProduct to sequential
// plates. A plate with a non-empty step descriptor is eliminated by a
// linear-chain reduction: the time-indexed factors are combined, sliced
// step by step, and a message is passed from step t to step t+1 according
// to the descriptor, with prev-state variables (and any step-local measure
// variables) eliminated at each step. Ordinary plates keep their batch
// semantics and are handled by PartialSumProduct afterwards.
//
// The eliminate set must include every sequential plate and its chain
// variables; sequential plates are fully eliminated, not retained as
// batch axes. The chain is unrolled into the lazy graph, so a semiring
// adjoint pass over the result recovers per-step smoothing marginals.
func ModifiedPartialSumProduct(b *expr.Builder, factors []*expr.Node, plateToStep map[string]factor.Step, eliminate factor.VarSet) ([]*expr.Node, error) {
	allInputs := factor.NewVarSet()
	for _, f := range factors {
		allInputs = allInputs.Union(f.Inputs())
	}

	plateNames := make([]string, 0, len(plateToStep))
	for name := range plateToStep {
		plateNames = append(plateNames, name)
	}
	sort.Strings(plateNames)

	ordinary := factor.NewVarSet()
	markov := factor.NewVarSet()
	for _, name := range plateNames {
		v, mentioned := allInputs.Lookup(name)
		if !mentioned {
			continue
		}
		if plateToStep[name].IsEmpty() {
			ordinary = ordinary.Add(v)
			continue
		}
		if !eliminate.Contains(name) {
			return nil, fmt.Errorf("%w: sequential plate %q must be eliminated", ErrMalformedStep, name)
		}
		markov = markov.Add(v)
	}

	// Chain elimination never log-sum-exps another sequential plate's axis.
	elimInChain := eliminate.Minus(markov)

	remaining := append([]*expr.Node(nil), factors...)
	for _, tvar := range markov {
		step := plateToStep[tvar.Name]
		msg, rest, err := eliminateChain(b, remaining, tvar, step, elimInChain, ordinary)
		if err != nil {
			return nil, err
		}
		remaining = append(rest, msg)
	}

	return PartialSumProduct(b, remaining, ordinary, eliminate.Minus(markov))
}

// eliminateChain runs the linear-chain scan for one sequential plate,
// returning the chain's residual message and the untouched factors.
func eliminateChain(b *expr.Builder, factors []*expr.Node, tvar factor.Var, step factor.Step, eliminate, ordinary factor.VarSet) (*expr.Node, []*expr.Node, error) {
	initNames := step.InitNames()
	prevNames := step.PrevNames()
	currNames := step.CurrNames()

	var timeF, initF, rest []*expr.Node
	for _, f := range factors {
		switch {
		case f.Inputs().Contains(tvar.Name):
			timeF = append(timeF, f)
		case mentionsAny(f, initNames):
			initF = append(initF, f)
		default:
			rest = append(rest, f)
		}
	}
	if len(timeF) == 0 {
		return nil, nil, fmt.Errorf("%w: no time-indexed factor mentions sequential plate %q", ErrMalformedStep, tvar.Name)
	}

	// Plate axes every state-bearing factor shares batch the whole chain;
	// plate axes local to a step (iid replicates given the step's state)
	// are product-collapsed per factor before the scan.
	chainPlates := factor.NewVarSet()
	seeded := false
	for _, f := range timeF {
		if !mentionsAny(f, prevNames) && !mentionsAny(f, currNames) {
			continue
		}
		ord := ordinary.Intersect(f.Inputs())
		if !seeded {
			chainPlates, seeded = ord, true
		} else {
			chainPlates = chainPlates.Intersect(ord)
		}
	}
	for i, f := range timeF {
		if inner := ordinary.Intersect(f.Inputs()).Minus(chainPlates); len(inner) > 0 {
			timeF[i] = b.Reduce(expr.Sum, f, inner)
		}
	}
	for _, f := range rest {
		if mentionsAny(f, prevNames) || mentionsAny(f, currNames) {
			return nil, nil, fmt.Errorf("%w: factor over %v mentions chain variables of %q outside the chain", ErrMalformedStep, f.Inputs(), tvar.Name)
		}
	}

	trans := b.Product(timeF...)
	currSet := factor.NewVarSet()
	for _, c := range step.Chains {
		curr, ok := trans.Inputs().Lookup(c.Curr)
		if !ok {
			return nil, nil, fmt.Errorf("%w: chain variable %q absent from time-indexed factors of %q", ErrMalformedStep, c.Curr, tvar.Name)
		}
		if prev, ok := trans.Inputs().Lookup(c.Prev); ok && prev.Size != curr.Size {
			return nil, nil, fmt.Errorf("%w: chain %q has prev domain %d but curr domain %d", ErrMalformedStep, c.Curr, prev.Size, curr.Size)
		}
		if !eliminate.Contains(c.Curr) {
			return nil, nil, fmt.Errorf("%w: chain variable %q must be eliminated", ErrMalformedStep, c.Curr)
		}
		currSet = currSet.Add(curr)
	}

	// Seed the message with the init factors, renamed into curr position,
	// then scan: at each step the message becomes the prev state, the
	// step-t slice of the transition product is multiplied in, and
	// everything but the new curr state is summed out.
	msg := b.Product(initF...)
	for _, c := range step.Chains {
		msg = b.Rename(msg, c.Init, c.Curr)
	}
	for t := 0; t < tvar.Size; t++ {
		for _, c := range step.Chains {
			msg = b.Rename(msg, c.Curr, c.Prev)
		}
		msg = b.Product(msg, b.Slice(trans, tvar.Name, t))
		stepElim := eliminate.Intersect(msg.Inputs()).Minus(currSet)
		msg = b.Reduce(expr.LogSumExp, msg, stepElim)
	}
	msg = b.Reduce(expr.LogSumExp, msg, eliminate.Intersect(msg.Inputs()))
	return msg, rest, nil
}

func mentionsAny(f *expr.Node, names map[string]bool) bool {
	for name := range names {
		if f.Inputs().Contains(name) {
			return true
		}
	}
	return false
}

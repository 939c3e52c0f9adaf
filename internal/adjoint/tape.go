// Package adjoint recovers marginal distributions from a lazily built
// partition-function graph by differentiating it under the
// (log-sum-exp, add) semiring.
//
// The forward pass materializes the graph under an evaluation context,
// recording execution order; the backward pass walks that order in
// reverse, accumulating per-node adjoints with the semiring sum. The
// adjoint of a leaf, combined with the leaf's own table, is exactly the
// marginal over that leaf's variables, so every marginal needed for the
// expectation step falls out of one forward+backward traversal.
package adjoint

import (
	"errors"
	"fmt"

	"github.com/evince-ml/evince/internal/expr"
	"github.com/evince-ml/evince/internal/factor"
)

// ErrNoMarginal reports a target whose adjoint cannot be recovered: the
// target does not participate in the partition-function graph. This is a
// structural inconsistency between model and guide, never retried.
var ErrNoMarginal = errors.New("adjoint: no marginal for target")

// Marginal is one recovered marginal distribution.
type Marginal struct {
	Target  *expr.Node
	Inputs  factor.VarSet
	LogProb *factor.Factor
}

// Tape drives one forward+backward traversal over a lazy graph.
type Tape struct {
	ctx   *expr.Context
	order []*expr.Node
	seen  map[*expr.Node]bool
}

// NewTape creates a tape bound to an evaluation context. The context's
// memo table doubles as the tape's record of forward values.
func NewTape(ctx *expr.Context) *Tape {
	return &Tape{ctx: ctx, seen: make(map[*expr.Node]bool)}
}

// Forward materializes root and records every reachable node in
// topological order. Returns the root's value.
func (t *Tape) Forward(root *expr.Node) *factor.Factor {
	out := t.ctx.Eval(root)
	t.record(root)
	return out
}

func (t *Tape) record(n *expr.Node) {
	if t.seen[n] {
		return
	}
	t.seen[n] = true
	for _, a := range n.Args() {
		t.record(a)
	}
	t.order = append(t.order, n)
}

// Marginals runs the backward pass from root and returns one marginal per
// target, in target order. Every target must be a leaf of the graph; a
// target without an adjoint is a structural inconsistency.
//
// Adjoint variables beyond a target's declared inputs are completed
// before the expansion: axes in plates collapse with the semiring product
// (a shared value multiplies across the replicates), the rest with the
// semiring sum.
func (t *Tape) Marginals(root *expr.Node, targets []*expr.Node, plates factor.VarSet) ([]Marginal, error) {
	if !t.seen[root] {
		t.Forward(root)
	}

	adj := make(map[*expr.Node]*factor.Factor, len(t.order))
	adj[root] = factor.Scalar(0) // semiring one

	accumulate := func(n *expr.Node, f *factor.Factor) {
		if existing, ok := adj[n]; ok {
			adj[n] = factor.LogAddExp(existing, f)
			return
		}
		adj[n] = f
	}

	for i := len(t.order) - 1; i >= 0; i-- {
		n := t.order[i]
		adjOut, ok := adj[n]
		if !ok {
			continue
		}
		switch n.Kind() {
		case expr.KindLeaf:
			// Terminal.
		case expr.KindProduct:
			if err := t.backwardProduct(n, adjOut, accumulate); err != nil {
				return nil, err
			}
		case expr.KindReduce:
			child := n.Args()[0]
			switch n.Op() {
			case expr.LogSumExp:
				// ⊕-reduction: the adjoint broadcasts back over the
				// eliminated variables.
				accumulate(child, adjOut)
			case expr.Sum:
				// Plate collapse is an ⊗-reduction: the adjoint of one
				// replicate is the collapsed result divided by that
				// replicate, broadcast back over the collapsed axes.
				out, ok := t.ctx.Cached(n)
				if !ok {
					return nil, fmt.Errorf("adjoint: reduction %v was never materialized", n.Inputs())
				}
				arg, ok := t.ctx.Cached(child)
				if !ok {
					return nil, fmt.Errorf("adjoint: argument %v was never materialized", child.Inputs())
				}
				accumulate(child, factor.Add(adjOut, factor.Sub(out, arg)))
			default:
				return nil, fmt.Errorf("adjoint: %v reduction has no semiring adjoint", n.Op())
			}
		case expr.KindSlice:
			child := n.Args()[0]
			size := child.Inputs().SizeOf(n.From())
			v := factor.Var{Name: n.From(), Size: size}
			accumulate(child, adjOut.Scatter(v, n.Index()))
		case expr.KindRename:
			accumulate(n.Args()[0], adjOut.Rename(n.To(), n.From()))
		default:
			return nil, fmt.Errorf("adjoint: node kind %d has no semiring adjoint", n.Kind())
		}
	}

	out := make([]Marginal, 0, len(targets))
	for _, target := range targets {
		a, ok := adj[target]
		if !ok {
			return nil, fmt.Errorf("%w: inputs %v", ErrNoMarginal, target.Inputs())
		}
		value := target.Leaf()
		if value == nil {
			return nil, fmt.Errorf("adjoint: target %v is not a leaf", target)
		}
		// The marginal is the adjoint times the leaf's own potential.
		// Extra plate axes collapse with the product, extra measure
		// variables with the semiring sum; missing inputs broadcast. The
		// result's inputs always equal the target's declared inputs.
		logProb := factor.Add(a, value)
		if extra := logProb.Vars().Minus(target.Inputs()); len(extra) > 0 {
			if pl := extra.Intersect(plates); len(pl) > 0 {
				logProb = logProb.ReduceSum(pl)
			}
			if mv := extra.Minus(plates); len(mv) > 0 {
				logProb = logProb.ReduceLogSumExp(mv)
			}
		}
		logProb = logProb.ExpandTo(target.Inputs())
		out = append(out, Marginal{Target: target, Inputs: target.Inputs(), LogProb: logProb})
	}
	return out, nil
}

// backwardProduct distributes a product node's adjoint to each argument:
// the adjoint times the semiring product of all sibling values. Prefix and
// suffix products keep this linear in the argument count.
func (t *Tape) backwardProduct(n *expr.Node, adjOut *factor.Factor, accumulate func(*expr.Node, *factor.Factor)) error {
	args := n.Args()
	values := make([]*factor.Factor, len(args))
	for i, a := range args {
		v, ok := t.ctx.Cached(a)
		if !ok {
			return fmt.Errorf("adjoint: argument %v was never materialized", a.Inputs())
		}
		values[i] = v
	}

	prefix := make([]*factor.Factor, len(args)+1)
	suffix := make([]*factor.Factor, len(args)+1)
	prefix[0] = factor.Scalar(0)
	suffix[len(args)] = factor.Scalar(0)
	for i := 0; i < len(args); i++ {
		prefix[i+1] = factor.Add(prefix[i], values[i])
		j := len(args) - 1 - i
		suffix[j] = factor.Add(suffix[j+1], values[j])
	}
	for i, a := range args {
		accumulate(a, factor.Add(adjOut, factor.Add(prefix[i], suffix[i+1])))
	}
	return nil
}

package expr

import (
	"fmt"

	"github.com/evince-ml/evince/internal/factor"
)

// Stats counts evaluation work, for instrumentation and tests.
type Stats struct {
	Materializations int // nodes actually computed
	Hits             int // memo-table reuses
}

// Context is a memoization scope for one evaluation call. Structurally
// identical subexpressions (same *Node, by hash-consing) are computed once
// and shared. A Context must not outlive its evaluation call: a fresh
// scope per call prevents stale reuse across different inputs of the same
// shape.
type Context struct {
	memo  map[*Node]*factor.Factor
	Stats Stats
}

// NewContext creates an empty evaluation scope.
func NewContext() *Context {
	return &Context{memo: make(map[*Node]*factor.Factor)}
}

// Cached returns the materialized value of n, if this scope computed it.
func (ctx *Context) Cached(n *Node) (*factor.Factor, bool) {
	f, ok := ctx.memo[n]
	return f, ok
}

// Eval materializes the expression graph rooted at n.
func (ctx *Context) Eval(n *Node) *factor.Factor {
	if f, ok := ctx.memo[n]; ok {
		ctx.Stats.Hits++
		return f
	}
	var out *factor.Factor
	switch n.kind {
	case KindLeaf:
		out = n.leaf
	case KindProduct:
		out = ctx.Eval(n.args[0])
		for _, a := range n.args[1:] {
			out = factor.Add(out, ctx.Eval(a))
		}
	case KindReduce:
		x := ctx.Eval(n.args[0])
		switch n.op {
		case LogSumExp:
			out = x.ReduceLogSumExp(n.vars)
		case Sum:
			out = x.ReduceSum(n.vars)
		default:
			panic(fmt.Sprintf("unknown reduce op %v", n.op))
		}
	case KindSlice:
		out = ctx.Eval(n.args[0]).Slice(n.from, n.index)
	case KindRename:
		out = ctx.Eval(n.args[0]).Rename(n.from, n.to)
	case KindScale:
		out = ctx.Eval(n.args[0]).Scale(n.c)
	case KindIntegrate:
		out = factor.Integrate(ctx.Eval(n.args[0]), ctx.Eval(n.args[1]), n.vars)
	default:
		panic(fmt.Sprintf("cannot evaluate node of kind %d", n.kind))
	}
	ctx.memo[n] = out
	ctx.Stats.Materializations++
	return out
}

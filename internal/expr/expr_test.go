package expr

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/evince-ml/evince/internal/factor"
)

func TestBuilder_InternsStructurally(t *testing.T) {
	b := NewBuilder()
	z := factor.Var{Name: "z", Size: 2}
	f := b.Leaf(factor.Zeros(factor.NewVarSet(z)))
	g := b.Leaf(factor.Zeros(factor.NewVarSet(z)))

	// Distinct factor tables stay distinct leaves.
	assert.NotSame(t, f, g)

	// Structurally identical composites collapse to one node.
	p1 := b.Reduce(LogSumExp, b.Product(f, g), factor.NewVarSet(z))
	p2 := b.Reduce(LogSumExp, b.Product(f, g), factor.NewVarSet(z))
	assert.Same(t, p1, p2)
}

func TestEval_Memoizes(t *testing.T) {
	b := NewBuilder()
	z := factor.Var{Name: "z", Size: 3}
	f, err := factor.New(factor.NewVarSet(z), []float64{0.1, 0.2, 0.3})
	require.NoError(t, err)
	leaf := b.Leaf(f)
	shared := b.Reduce(LogSumExp, leaf, factor.NewVarSet(z))
	root := b.Product(shared, shared)

	ctx := NewContext()
	first := ctx.Eval(root)
	mats := ctx.Stats.Materializations

	// The shared subexpression is computed once, then reused.
	assert.Equal(t, 1, ctx.Stats.Hits)

	second := ctx.Eval(root)
	assert.Same(t, first, second, "re-evaluation must return the cached result")
	assert.Equal(t, mats, ctx.Stats.Materializations, "no recomputation on second Eval")
	assert.Equal(t, 2*first.Item(), 2*second.Item())
}

func TestEval_FreshContextRecomputes(t *testing.T) {
	b := NewBuilder()
	leaf := b.Scalar(1.5)
	root := b.Product(leaf, b.Scalar(2.5))

	v1 := NewContext().Eval(root).Item()
	v2 := NewContext().Eval(root).Item()
	assert.Equal(t, v1, v2)
	assert.Equal(t, 4.0, v1)
}

func TestEval_ReduceAndSlice(t *testing.T) {
	b := NewBuilder()
	tv := factor.Var{Name: "t", Size: 2}
	x := factor.Var{Name: "x", Size: 2}
	f := factor.Tabulate(factor.NewVarSet(tv, x), func(idx []int) float64 {
		return float64(idx[0]*2 + idx[1])
	})
	leaf := b.Leaf(f)

	got := NewContext().Eval(b.Slice(leaf, "t", 1))
	assert.Equal(t, f.At(1, 0), got.At(0))

	sum := NewContext().Eval(b.Reduce(Sum, leaf, factor.NewVarSet(tv, x)))
	assert.InDelta(t, 0+1+2+3, sum.Item(), 1e-12)
}

func TestEval_RenameAndScale(t *testing.T) {
	b := NewBuilder()
	x := factor.Var{Name: "x", Size: 2}
	f, _ := factor.New(factor.NewVarSet(x), []float64{1, 2})
	leaf := b.Leaf(f)

	r := NewContext().Eval(b.Rename(leaf, "x", "y"))
	assert.True(t, r.Vars().Equal(factor.NewVarSet(factor.Var{Name: "y", Size: 2})))

	s := NewContext().Eval(b.Scale(leaf, -1))
	assert.Equal(t, -1.0, s.At(0))

	// Identity scale is elided.
	assert.Same(t, leaf, b.Scale(leaf, 1))
}

func TestOptimize_EquivalentValue(t *testing.T) {
	// A small chain x - y - z: the optimizer reassociates, the value must
	// not change beyond float reassociation.
	b := NewBuilder()
	x := factor.Var{Name: "x", Size: 2}
	y := factor.Var{Name: "y", Size: 3}
	z := factor.Var{Name: "z", Size: 2}

	fxy := factor.Tabulate(factor.NewVarSet(x, y), func(idx []int) float64 {
		return -0.5 * float64(idx[0]+idx[1])
	})
	fyz := factor.Tabulate(factor.NewVarSet(y, z), func(idx []int) float64 {
		return -0.25 * float64(idx[0]*idx[1]+1)
	})
	fz := factor.Tabulate(factor.NewVarSet(z), func(idx []int) float64 {
		return math.Log(0.5)
	})

	root := b.Reduce(LogSumExp,
		b.Product(b.Leaf(fxy), b.Leaf(fyz), b.Leaf(fz)),
		factor.NewVarSet(x, y, z))

	naive := NewContext().Eval(root).Item()
	opt := Optimize(b, root)
	got := NewContext().Eval(opt).Item()
	assert.InDelta(t, naive, got, 1e-10)
}

func TestOptimize_PreservesLeaves(t *testing.T) {
	b := NewBuilder()
	x := factor.Var{Name: "x", Size: 2}
	y := factor.Var{Name: "y", Size: 2}
	fx := b.Leaf(factor.Zeros(factor.NewVarSet(x)))
	fxy := b.Leaf(factor.Zeros(factor.NewVarSet(x, y)))

	root := b.Reduce(LogSumExp, b.Product(fx, fxy), factor.NewVarSet(x, y))
	opt := Optimize(b, root)

	found := map[*Node]bool{}
	var walk func(n *Node)
	walk = func(n *Node) {
		if n.Kind() == KindLeaf {
			found[n] = true
		}
		for _, a := range n.Args() {
			walk(a)
		}
	}
	walk(opt)
	assert.True(t, found[fx], "optimized graph must reference the original leaf")
	assert.True(t, found[fxy], "optimized graph must reference the original leaf")
}

func TestProduct_FlattensAndUnits(t *testing.T) {
	b := NewBuilder()
	a := b.Scalar(1)
	c := b.Scalar(2)

	assert.Same(t, b.Unit(), b.Product())
	assert.Same(t, a, b.Product(a))

	nested := b.Product(b.Product(a, c), a)
	require.Equal(t, KindProduct, nested.Kind())
	assert.Len(t, nested.Args(), 3)
}

package factor

import (
	"math"

	"gonum.org/v1/gonum/floats"

	"github.com/evince-ml/evince/internal/parallel"
)

// ReduceLogSumExp eliminates the given variables with the semiring sum:
// log-sum-exp over their joint domain. Variables not carried by f are
// ignored. Reducing every variable yields a scalar factor.
//
// An empty joint domain cannot occur (domain sizes are positive), so the
// only degeneracies are -Inf/NaN cells, which propagate untouched.
func (f *Factor) ReduceLogSumExp(vars VarSet) *Factor {
	return f.reduce(vars, floats.LogSumExp)
}

// ReduceSum eliminates the given variables by ordinary numeric summation.
// This is the plate reduction: a product of replicated densities is a sum
// of their log tables.
func (f *Factor) ReduceSum(vars VarSet) *Factor {
	return f.reduce(vars, floats.Sum)
}

func (f *Factor) reduce(vars VarSet, kernel func([]float64) float64) *Factor {
	elim := f.vars.Intersect(vars)
	if len(elim) == 0 {
		return f
	}
	keep := f.vars.Minus(elim)
	out := Zeros(keep)

	// Strides of kept and eliminated variables within f.
	kSrc := alignedStrides(keep, f)
	eSrc := alignedStrides(elim, f)
	elimCells := elim.NumCells()

	cfg := parallel.DefaultConfig()
	parallel.Range(len(out.data), func(start, end int) {
		scratch := make([]float64, elimCells)
		kIdx := cellIndex(out.vars, out.strides, start)
		eIdx := make([]int, len(elim))
		for i := start; i < end; i++ {
			base := dot(kIdx, kSrc)
			for d := range eIdx {
				eIdx[d] = 0
			}
			for k := 0; k < elimCells; k++ {
				scratch[k] = f.data[base+dot(eIdx, eSrc)]
				odometer(eIdx, elim)
			}
			out.data[i] = kernel(scratch)
			odometer(kIdx, out.vars)
		}
	}, cfg)
	return out
}

// Integrate computes the expectation Σ_vars exp(logProb)·f, reducing
// exactly the given variables and broadcasting over the rest. The result
// carries the union of both input variable sets minus vars.
//
// This is real-space arithmetic: f may be negative, so the reduction is a
// weighted sum, not a log-sum-exp.
func Integrate(logProb, f *Factor, vars VarSet) *Factor {
	joint := logProb.vars.Union(f.vars)
	elim := joint.Intersect(vars)
	keep := joint.Minus(elim)
	out := Zeros(keep)

	lpK := alignedStrides(keep, logProb)
	fK := alignedStrides(keep, f)
	lpE := alignedStrides(elim, logProb)
	fE := alignedStrides(elim, f)
	elimCells := elim.NumCells()

	cfg := parallel.DefaultConfig()
	parallel.Range(len(out.data), func(start, end int) {
		kIdx := cellIndex(out.vars, out.strides, start)
		eIdx := make([]int, len(elim))
		for i := start; i < end; i++ {
			lpBase := dot(kIdx, lpK)
			fBase := dot(kIdx, fK)
			for d := range eIdx {
				eIdx[d] = 0
			}
			acc := 0.0
			for k := 0; k < elimCells; k++ {
				acc += math.Exp(logProb.data[lpBase+dot(eIdx, lpE)]) * f.data[fBase+dot(eIdx, fE)]
				odometer(eIdx, elim)
			}
			out.data[i] = acc
			odometer(kIdx, out.vars)
		}
	}, cfg)
	return out
}

package factor

import (
	"math"

	"github.com/evince-ml/evince/internal/parallel"
)

// alignedStrides returns, for each variable of out, the corresponding
// stride in f (0 when f does not carry that variable, i.e. broadcast).
func alignedStrides(out VarSet, f *Factor) []int {
	st := make([]int, len(out))
	for i, v := range out {
		for j, fv := range f.vars {
			if fv.Name == v.Name {
				st[i] = f.strides[j]
				break
			}
		}
	}
	return st
}

// apply2 computes op elementwise over the broadcast union of a and b.
func apply2(a, b *Factor, op func(x, y float64) float64) *Factor {
	out := Zeros(a.vars.Union(b.vars))
	sa := alignedStrides(out.vars, a)
	sb := alignedStrides(out.vars, b)

	cfg := parallel.DefaultConfig()
	parallel.Range(len(out.data), func(start, end int) {
		idx := cellIndex(out.vars, out.strides, start)
		offA := dot(idx, sa)
		offB := dot(idx, sb)
		for i := start; i < end; i++ {
			out.data[i] = op(a.data[offA], b.data[offB])
			offA, offB = advance2(idx, out.vars, sa, sb, offA, offB)
		}
	}, cfg)
	return out
}

// cellIndex decomposes a linear cell position into a multi-index.
func cellIndex(vars VarSet, strides []int, pos int) []int {
	idx := make([]int, len(vars))
	for d := range vars {
		idx[d] = (pos / strides[d]) % vars[d].Size
	}
	return idx
}

func dot(idx, strides []int) int {
	off := 0
	for d := range idx {
		off += idx[d] * strides[d]
	}
	return off
}

// advance2 steps a multi-index by one cell, updating two operand offsets
// incrementally.
func advance2(idx []int, vars VarSet, sa, sb []int, offA, offB int) (int, int) {
	for d := len(idx) - 1; d >= 0; d-- {
		idx[d]++
		offA += sa[d]
		offB += sb[d]
		if idx[d] < vars[d].Size {
			return offA, offB
		}
		idx[d] = 0
		offA -= sa[d] * vars[d].Size
		offB -= sb[d] * vars[d].Size
	}
	return offA, offB
}

// Add is the semiring product: elementwise addition of log values with
// named-dimension broadcasting over shared variables.
func Add(a, b *Factor) *Factor {
	return apply2(a, b, func(x, y float64) float64 { return x + y })
}

// LogAddExp combines two factors with the semiring sum, elementwise with
// broadcasting. Used by adjoint accumulation.
func LogAddExp(a, b *Factor) *Factor {
	return apply2(a, b, logAddExp)
}

// Sub subtracts b from a elementwise with broadcasting: semiring division,
// used by the backward pass of a plate collapse.
func Sub(a, b *Factor) *Factor {
	return apply2(a, b, func(x, y float64) float64 { return x - y })
}

func logAddExp(x, y float64) float64 {
	if math.IsInf(x, -1) {
		return y
	}
	if math.IsInf(y, -1) {
		return x
	}
	m := math.Max(x, y)
	return m + math.Log(math.Exp(x-m)+math.Exp(y-m))
}

// Scale multiplies every log value by c. This is real multiplication of
// the log table (density exponentiation), not a log-space shift.
func (f *Factor) Scale(c float64) *Factor {
	out := Zeros(f.vars)
	parallel.For(len(f.data), func(i int) {
		out.data[i] = f.data[i] * c
	}, parallel.DefaultConfig())
	return out
}

// Neg negates every log value.
func (f *Factor) Neg() *Factor {
	return f.Scale(-1)
}

// ExpandTo broadcasts f to a factor carrying every variable of vars.
// Panics if f has variables outside vars.
func (f *Factor) ExpandTo(vars VarSet) *Factor {
	if extra := f.vars.Minus(vars); len(extra) > 0 {
		panic("ExpandTo: factor carries variables " + extra.String() + " outside target " + vars.String())
	}
	if f.vars.Equal(vars) {
		return f
	}
	return Add(f, Zeros(vars))
}

// Rename returns f with variable from renamed to to. The domain size is
// preserved and the table is re-laid-out in the new canonical order.
// Returns f unchanged when from is absent; panics if to is already present.
func (f *Factor) Rename(from, to string) *Factor {
	v, ok := f.vars.Lookup(from)
	if !ok {
		return f
	}
	if f.vars.Contains(to) {
		panic("Rename: variable " + to + " already present in " + f.vars.String())
	}
	outVars := f.vars.Minus(NewVarSet(v)).Add(Var{Name: to, Size: v.Size})
	out := Zeros(outVars)

	// Source stride for each output variable, mapping to back to from.
	src := make([]int, len(outVars))
	for i, ov := range outVars {
		name := ov.Name
		if name == to {
			name = from
		}
		for j, fv := range f.vars {
			if fv.Name == name {
				src[i] = f.strides[j]
				break
			}
		}
	}
	parallel.Range(len(out.data), func(start, end int) {
		idx := cellIndex(out.vars, out.strides, start)
		for i := start; i < end; i++ {
			out.data[i] = f.data[dot(idx, src)]
			odometer(idx, out.vars)
		}
	}, parallel.DefaultConfig())
	return out
}

// Slice fixes the named variable at index idx, dropping that dimension.
// Panics if the variable is absent or idx is out of range.
func (f *Factor) Slice(name string, idx int) *Factor {
	v, ok := f.vars.Lookup(name)
	if !ok {
		panic("Slice: variable " + name + " not in " + f.vars.String())
	}
	if idx < 0 || idx >= v.Size {
		panic("Slice: index out of range for " + v.String())
	}
	outVars := f.vars.Minus(NewVarSet(v))
	out := Zeros(outVars)
	src := alignedStrides(outVars, f)
	var fixed int
	for j, fv := range f.vars {
		if fv.Name == name {
			fixed = idx * f.strides[j]
		}
	}
	parallel.Range(len(out.data), func(start, end int) {
		iidx := cellIndex(out.vars, out.strides, start)
		for i := start; i < end; i++ {
			out.data[i] = f.data[fixed+dot(iidx, src)]
			odometer(iidx, out.vars)
		}
	}, parallel.DefaultConfig())
	return out
}

// Scatter is the adjoint of Slice: it embeds f as the idx-th slab of a new
// dimension v, filling every other slab with -Inf (the semiring zero).
func (f *Factor) Scatter(v Var, idx int) *Factor {
	if f.vars.Contains(v.Name) {
		panic("Scatter: variable " + v.Name + " already present in " + f.vars.String())
	}
	if idx < 0 || idx >= v.Size {
		panic("Scatter: index out of range for " + v.String())
	}
	outVars := f.vars.Add(v)
	out := Zeros(outVars)
	src := alignedStrides(outVars, f)
	var axis int
	for d, ov := range outVars {
		if ov.Name == v.Name {
			axis = d
		}
	}
	parallel.Range(len(out.data), func(start, end int) {
		iidx := cellIndex(out.vars, out.strides, start)
		for i := start; i < end; i++ {
			if iidx[axis] == idx {
				out.data[i] = f.data[dot(iidx, src)]
			} else {
				out.data[i] = math.Inf(-1)
			}
			odometer(iidx, out.vars)
		}
	}, parallel.DefaultConfig())
	return out
}

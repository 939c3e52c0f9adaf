package factor

import (
	"fmt"
	"strings"
)

// Factor is a log-space potential: a dense table of float64 values indexed
// by an ordered set of named finite-domain variables. The table is stored
// row-major over the canonical (name-sorted) variable order.
//
// Factors are immutable after construction; every operation allocates a
// fresh result. The declared variables always exactly describe the table:
// the product of the domain sizes equals len(data).
type Factor struct {
	vars    VarSet
	data    []float64
	strides []int
}

// New creates a factor over vars from data laid out row-major in the
// canonical variable order.
func New(vars VarSet, data []float64) (*Factor, error) {
	if n := vars.NumCells(); n != len(data) {
		return nil, fmt.Errorf("factor over %v requires %d cells, got %d", vars, n, len(data))
	}
	return &Factor{vars: vars, data: data, strides: strides(vars)}, nil
}

// Zeros creates a factor over vars with every cell set to 0 (the semiring
// product unit in log space).
func Zeros(vars VarSet) *Factor {
	return &Factor{vars: vars, data: make([]float64, vars.NumCells()), strides: strides(vars)}
}

// Scalar creates a zero-dimensional factor holding a single value.
func Scalar(v float64) *Factor {
	return &Factor{vars: nil, data: []float64{v}, strides: nil}
}

// Tabulate creates a factor over vars by calling fn once per cell with the
// multi-index in canonical variable order.
func Tabulate(vars VarSet, fn func(idx []int) float64) *Factor {
	f := Zeros(vars)
	idx := make([]int, len(vars))
	for i := range f.data {
		f.data[i] = fn(idx)
		odometer(idx, vars)
	}
	return f
}

// odometer advances a multi-index over vars by one cell, row-major.
func odometer(idx []int, vars VarSet) {
	for d := len(idx) - 1; d >= 0; d-- {
		idx[d]++
		if idx[d] < vars[d].Size {
			return
		}
		idx[d] = 0
	}
}

func strides(vars VarSet) []int {
	st := make([]int, len(vars))
	if len(vars) == 0 {
		return st
	}
	st[len(vars)-1] = 1
	for i := len(vars) - 2; i >= 0; i-- {
		st[i] = st[i+1] * vars[i+1].Size
	}
	return st
}

// Vars returns the factor's variables in canonical order.
func (f *Factor) Vars() VarSet {
	return f.vars
}

// Data returns the underlying table. The slice directly accesses the
// factor's memory; callers must not modify it.
func (f *Factor) Data() []float64 {
	return f.data
}

// NumCells returns the number of cells in the table.
func (f *Factor) NumCells() int {
	return len(f.data)
}

// IsScalar reports whether the factor has no variables.
func (f *Factor) IsScalar() bool {
	return len(f.vars) == 0
}

// Item returns the value of a zero-dimensional factor.
// Panics otherwise.
func (f *Factor) Item() float64 {
	if !f.IsScalar() {
		panic(fmt.Sprintf("Item() requires a scalar factor, got %v", f.vars))
	}
	return f.data[0]
}

// At returns the cell at the given multi-index (canonical variable order).
// Panics if indices are out of bounds.
func (f *Factor) At(indices ...int) float64 {
	return f.data[f.offset(indices)]
}

// Set sets the cell at the given multi-index (canonical variable order).
// Panics if indices are out of bounds.
func (f *Factor) Set(value float64, indices ...int) {
	f.data[f.offset(indices)] = value
}

func (f *Factor) offset(indices []int) int {
	if len(indices) != len(f.vars) {
		panic(fmt.Sprintf("expected %d indices, got %d", len(f.vars), len(indices)))
	}
	offset := 0
	for i, idx := range indices {
		if idx < 0 || idx >= f.vars[i].Size {
			panic(fmt.Sprintf("index %d out of bounds for %v", idx, f.vars[i]))
		}
		offset += idx * f.strides[i]
	}
	return offset
}

// Clone creates a deep copy of the factor.
func (f *Factor) Clone() *Factor {
	data := make([]float64, len(f.data))
	copy(data, f.data)
	out, _ := New(f.vars, data)
	return out
}

func (f *Factor) String() string {
	var b strings.Builder
	fmt.Fprintf(&b, "Factor%v[%d cells]", f.vars, len(f.data))
	return b.String()
}

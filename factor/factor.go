// Copyright 2026 Evince ML Framework. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

// Package factor provides the public API for discrete log-space factors
// in the Evince ML framework.
//
// A Factor is a dense table of log values over named finite-domain
// variables. Factors combine by broadcasting addition (the semiring
// product), reduce by log-sum-exp or plain summation, and support the
// slice/rename plumbing that sequential models need.
//
// Example:
//
//	z := factor.Var{Name: "z", Size: 3}
//	prior, _ := factor.New(factor.NewVarSet(z), []float64{-1.1, -1.1, -1.1})
//	joint := factor.Add(prior, likelihood)
//	evidence := joint.ReduceLogSumExp(factor.NewVarSet(z))
package factor

import (
	"github.com/evince-ml/evince/internal/factor"
)

// Var is a named variable with a finite domain size.
type Var = factor.Var

// VarSet is a canonically ordered set of variables.
type VarSet = factor.VarSet

// NewVarSet builds a set from the given variables.
func NewVarSet(vars ...Var) VarSet { return factor.NewVarSet(vars...) }

// Factor is a dense table of log values over a variable set.
type Factor = factor.Factor

// New creates a factor from row-major data over the canonical variable
// order.
func New(vars VarSet, data []float64) (*Factor, error) { return factor.New(vars, data) }

// Zeros creates a factor of all zeros, the unit of factor combination.
func Zeros(vars VarSet) *Factor { return factor.Zeros(vars) }

// Scalar creates a variable-free factor holding one value.
func Scalar(v float64) *Factor { return factor.Scalar(v) }

// Tabulate fills a factor cell by cell from an index function.
func Tabulate(vars VarSet, fn func(idx []int) float64) *Factor { return factor.Tabulate(vars, fn) }

// Add combines two factors by broadcasting addition.
func Add(a, b *Factor) *Factor { return factor.Add(a, b) }

// LogAddExp combines two factors by pointwise log-sum-exp.
func LogAddExp(a, b *Factor) *Factor { return factor.LogAddExp(a, b) }

// Integrate computes sum over vars of exp(logProb) * f.
func Integrate(logProb, f *Factor, vars VarSet) *Factor { return factor.Integrate(logProb, f, vars) }

// Chain names one variable's wiring through a sequential plate.
type Chain = factor.Chain

// Step describes how chain variables advance along a sequential plate.
type Step = factor.Step

// Copyright 2026 Evince ML Framework. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

// Package elbo provides the public API for exact variational objectives
// over enumerated discrete latent variables in the Evince ML framework.
//
// TraceEnumELBO handles models whose enumerated variables live under
// ordinary plates; TraceMarkovEnumELBO additionally handles sequential
// (Markov) plates in linear time. Both return the exact negative evidence
// lower bound given a model and guide Tracer.
//
// Example:
//
//	loss, err := elbo.NewTraceEnumELBO().Loss(model, guide)
package elbo

import (
	"github.com/evince-ml/evince/internal/elbo"
)

// TraceEnumELBO is the plate-parallel exact objective.
type TraceEnumELBO = elbo.TraceEnumELBO

// NewTraceEnumELBO returns a plate-parallel objective.
func NewTraceEnumELBO() *TraceEnumELBO { return elbo.NewTraceEnumELBO() }

// TraceMarkovEnumELBO is the sequential-plate exact objective.
type TraceMarkovEnumELBO = elbo.TraceMarkovEnumELBO

// NewTraceMarkovEnumELBO returns a sequential-plate objective.
func NewTraceMarkovEnumELBO() *TraceMarkovEnumELBO { return elbo.NewTraceMarkovEnumELBO() }

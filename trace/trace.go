// Copyright 2026 Evince ML Framework. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

// Package trace provides the public API for recording probabilistic
// program executions in the Evince ML framework.
//
// A model or guide runs once and records every sample, observation, and
// plate annotation into a Trace via a Builder. Objectives consume traces
// through the Tracer interface.
//
// Example:
//
//	guide := trace.TracerFunc(func() (*trace.Trace, error) {
//		b := trace.NewBuilder()
//		b.Enumerate("z", z, qTable, factor.NewVarSet())
//		return b.Build()
//	})
package trace

import (
	"github.com/evince-ml/evince/internal/trace"
)

// Kind distinguishes site records.
type Kind = trace.Kind

// Record kinds.
const (
	KindSample      Kind = trace.KindSample
	KindMarkovChain Kind = trace.KindMarkovChain
)

// PlateMarker names a conditional-independence context.
type PlateMarker = trace.PlateMarker

// Record is one site of an executed program.
type Record = trace.Record

// Trace is the ordered record of one program execution.
type Trace = trace.Trace

// Tracer produces a trace by running a program.
type Tracer = trace.Tracer

// TracerFunc adapts a plain function to the Tracer interface.
type TracerFunc = trace.TracerFunc

// Builder assembles a trace record by record.
type Builder = trace.Builder

// NewBuilder starts an empty trace.
func NewBuilder() *Builder { return trace.NewBuilder() }

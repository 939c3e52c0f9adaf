// Package trace represents the execution of a probabilistic program as a
// flat sequence of site records. Every random choice, observation, and
// plate annotation a program makes during one run lands here; downstream
// stages read the trace, never the program.
//
// A trace is built once and treated as immutable afterwards. Records hold
// log-density tables over named finite-domain variables, so a trace is
// self-describing: no separate schema travels with it.
package trace

import (
	"fmt"

	"github.com/evince-ml/evince/internal/factor"
)

// Kind distinguishes site records.
type Kind int

const (
	// KindSample is an ordinary sample or observe site.
	KindSample Kind = iota
	// KindMarkovChain declares a sequential plate and its chain wiring;
	// it carries no density.
	KindMarkovChain
)

// PlateMarker names a conditional-independence context a site was sampled
// under. Only vectorized plates induce batch dimensions.
type PlateMarker struct {
	Name       string
	Size       int
	Vectorized bool
}

// Record is one site of an executed program.
type Record struct {
	Kind Kind
	Name string

	// LogProb is the site's log density, evaluated pointwise over the
	// site's enumerated inputs and plate dimensions.
	LogProb *factor.Factor

	// LogMeasure is the enumeration measure introduced at this site, nil
	// when the site is not enumerated.
	LogMeasure *factor.Factor

	// ValueInputs are the enumerated variables the site's value depends
	// on, including its own variable when enumerated.
	ValueInputs factor.VarSet

	// Scale is the likelihood weight applied to this site, usually 1.
	// Subsampling sets it to total/batch.
	Scale float64

	Observed bool
	Plates   []PlateMarker

	// DoNotScore marks sites whose density must not enter the objective.
	DoNotScore bool
	// Subsample marks plate-bookkeeping sites that carry indices, not
	// densities.
	Subsample bool

	// ReplayActive is set when the trace was produced by replaying
	// against a guide; ReplaySkipped marks sites whose value the replay
	// took from the guide, so their density belongs to the guide side.
	ReplayActive  bool
	ReplaySkipped bool

	// Step holds the chain wiring of a KindMarkovChain record.
	Step factor.Step
}

// Trace is the ordered record of one program execution.
type Trace struct {
	Records []*Record
}

// Tracer produces a trace by running a program. Model and guide callables
// both satisfy it.
type Tracer interface {
	Trace() (*Trace, error)
}

// TracerFunc adapts a plain function to the Tracer interface.
type TracerFunc func() (*Trace, error)

// Trace runs the function.
func (f TracerFunc) Trace() (*Trace, error) { return f() }

// ByName returns the record with the given name, or nil.
func (tr *Trace) ByName(name string) *Record {
	for _, r := range tr.Records {
		if r.Name == name {
			return r
		}
	}
	return nil
}

// Validate checks structural well-formedness: unique names, densities on
// sample records, steps only on chain records.
func (tr *Trace) Validate() error {
	seen := make(map[string]bool, len(tr.Records))
	for _, r := range tr.Records {
		if r.Name == "" {
			return fmt.Errorf("trace: unnamed record")
		}
		if seen[r.Name] {
			return fmt.Errorf("trace: duplicate site %q", r.Name)
		}
		seen[r.Name] = true
		switch r.Kind {
		case KindSample:
			if r.LogProb == nil && !r.Subsample && !r.DoNotScore {
				return fmt.Errorf("trace: sample site %q has no log density", r.Name)
			}
		case KindMarkovChain:
			if r.LogProb != nil || r.LogMeasure != nil {
				return fmt.Errorf("trace: chain record %q carries a density", r.Name)
			}
		default:
			return fmt.Errorf("trace: record %q has unknown kind %d", r.Name, r.Kind)
		}
	}
	return nil
}

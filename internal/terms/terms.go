// Package terms extracts the raw ingredients of a variational objective
// from execution traces: cost factors, enumeration measures, plate and
// measure variable sets, and the subsampling scale.
package terms

import (
	"errors"
	"fmt"

	"github.com/evince-ml/evince/internal/factor"
	"github.com/evince-ml/evince/internal/trace"
)

// ErrAmbiguousScale reports a trace with more than one distinct
// subsampling scale on sites that depend on enumerated variables. Such
// sites cannot fold their scale into the log density, so a single shared
// scale is required.
var ErrAmbiguousScale = errors.New("terms: ambiguous subsampling scale")

// Bundle is the distilled content of one trace.
type Bundle struct {
	// LogFactors are the cost terms: log densities of observed and
	// traced sites, with per-site scales already folded in.
	LogFactors []*factor.Factor

	// LogMeasures are the enumeration measures of enumerated sites.
	LogMeasures []*factor.Factor

	// Scale is the shared subsampling scale of enumeration-dependent
	// sites, 1 when none applies.
	Scale float64

	// PlateVars are the vectorized plate dimensions seen in the trace.
	PlateVars factor.VarSet

	// MeasureVars are the enumerated variables introduced by measures.
	MeasureVars factor.VarSet

	// PlateToStep maps every plate name to its step descriptor; ordinary
	// plates map to the empty step.
	PlateToStep map[string]factor.Step
}

// FromTrace walks the trace once and collects the bundle. The trace is
// never mutated: folding a scale into a log density copies the table.
func FromTrace(tr *trace.Trace) (*Bundle, error) {
	b := &Bundle{
		Scale:       1,
		PlateVars:   factor.NewVarSet(),
		MeasureVars: factor.NewVarSet(),
		PlateToStep: make(map[string]factor.Step),
	}
	sharedScale := false

	for _, r := range tr.Records {
		if r.Kind == trace.KindMarkovChain {
			b.PlateToStep[r.Name] = r.Step
			continue
		}
		if r.Subsample || r.DoNotScore {
			continue
		}
		for _, p := range r.Plates {
			if p.Vectorized {
				b.PlateVars = b.PlateVars.Add(factor.Var{Name: p.Name, Size: p.Size})
			}
		}
		if r.LogMeasure != nil {
			b.LogMeasures = append(b.LogMeasures, r.LogMeasure)
			b.MeasureVars = b.MeasureVars.Union(r.ValueInputs.Minus(b.PlateVars))
		}

		logProb := r.LogProb
		if logProb == nil {
			continue
		}
		if r.ReplayActive && r.Scale != 1 && logProb.Vars().Intersects(b.MeasureVars) {
			// A subsampled site downstream of enumeration cannot fold its
			// scale pointwise: the scale must multiply the whole
			// marginalized expectation, so it is shared across the bundle.
			if sharedScale && b.Scale != r.Scale {
				return nil, fmt.Errorf("%w: site %q has scale %v, bundle already carries %v",
					ErrAmbiguousScale, r.Name, r.Scale, b.Scale)
			}
			b.Scale = r.Scale
			sharedScale = true
		} else if r.Scale != 1 {
			logProb = logProb.Scale(r.Scale)
		}

		// Replay-skipped latent sites belong to the guide's ledger, not
		// this one; observations always count.
		if r.Observed || !r.ReplaySkipped {
			b.LogFactors = append(b.LogFactors, logProb)
		}
	}

	for _, p := range b.PlateVars {
		if _, ok := b.PlateToStep[p.Name]; !ok {
			b.PlateToStep[p.Name] = factor.Step{}
		}
	}
	return b, nil
}

// MarkovPlates returns the plate variables whose step descriptor is
// non-empty, as a subset of PlateVars.
func (b *Bundle) MarkovPlates() factor.VarSet {
	out := factor.NewVarSet()
	for _, p := range b.PlateVars {
		if !b.PlateToStep[p.Name].IsEmpty() {
			out = out.Add(p)
		}
	}
	return out
}

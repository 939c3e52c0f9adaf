package trace

import (
	"github.com/evince-ml/evince/internal/factor"
)

// Builder assembles a trace record by record. The convenience methods
// cover the common site shapes; each returns the appended record so a
// caller can tweak flags before the next site.
type Builder struct {
	tr     *Trace
	replay bool
}

// NewBuilder starts an empty trace.
func NewBuilder() *Builder {
	return &Builder{tr: &Trace{}}
}

// Replay marks the trace as produced by replaying against a guide. Sites
// added afterwards carry ReplayActive; use SkipReplayed on sites whose
// value came from the guide.
func (b *Builder) Replay() *Builder {
	b.replay = true
	return b
}

func (b *Builder) add(r *Record) *Record {
	r.ReplayActive = b.replay
	if r.Scale == 0 {
		r.Scale = 1
	}
	b.tr.Records = append(b.tr.Records, r)
	return r
}

// MarkovChain declares a sequential plate with the given chain wiring.
func (b *Builder) MarkovChain(plate string, chains ...factor.Chain) *Record {
	return b.add(&Record{
		Kind: KindMarkovChain,
		Name: plate,
		Step: factor.Step{Chains: chains},
	})
}

// Sample records a non-enumerated latent site scored pointwise. The
// density table's enumerated inputs (everything it conditions on) go in
// valueInputs.
func (b *Builder) Sample(name string, logProb *factor.Factor, valueInputs factor.VarSet, plates ...PlateMarker) *Record {
	return b.add(&Record{
		Kind:        KindSample,
		Name:        name,
		LogProb:     logProb,
		ValueInputs: valueInputs,
		Plates:      plates,
	})
}

// Observe records an observed site. The log density is evaluated at the
// observed value, leaving only enumerated ancestors and plates as inputs.
func (b *Builder) Observe(name string, logProb *factor.Factor, valueInputs factor.VarSet, plates ...PlateMarker) *Record {
	r := b.Sample(name, logProb, valueInputs, plates...)
	r.Observed = true
	return r
}

// Enumerate records an enumerated site whose measure is its own log
// density. This is the guide-side shape: the measure is normalized, so
// marginals recovered downstream are posterior-weighted by the guide.
func (b *Builder) Enumerate(name string, v factor.Var, logProb *factor.Factor, valueInputs factor.VarSet, plates ...PlateMarker) *Record {
	return b.add(&Record{
		Kind:        KindSample,
		Name:        name,
		LogProb:     logProb,
		LogMeasure:  logProb,
		ValueInputs: valueInputs.Add(v),
		Plates:      plates,
	})
}

// EnumerateInModel records a model-side enumerated site absent from the
// guide. Its measure is the zero counting measure over the site's domain,
// so the variable is marginalized exactly rather than posterior-weighted.
// The measure carries the site's vectorized plate dimensions: a site
// inside a sequential plate is enumerated per step.
func (b *Builder) EnumerateInModel(name string, v factor.Var, logProb *factor.Factor, valueInputs factor.VarSet, plates ...PlateMarker) *Record {
	mv := factor.NewVarSet(v)
	for _, p := range plates {
		if p.Vectorized {
			mv = mv.Add(factor.Var{Name: p.Name, Size: p.Size})
		}
	}
	return b.add(&Record{
		Kind:        KindSample,
		Name:        name,
		LogProb:     logProb,
		LogMeasure:  factor.Zeros(mv),
		ValueInputs: valueInputs.Add(v),
		Plates:      plates,
	})
}

// SkipReplayed marks a record as having taken its value from the guide
// during replay; its density is excluded from the cost terms unless
// observed.
func (b *Builder) SkipReplayed(r *Record) *Record {
	r.ReplaySkipped = true
	return r
}

// Build finalizes the trace.
func (b *Builder) Build() (*Trace, error) {
	if err := b.tr.Validate(); err != nil {
		return nil, err
	}
	return b.tr, nil
}

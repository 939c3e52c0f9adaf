// Package elbo assembles exact variational objectives for models with
// enumerated discrete latent variables.
//
// Both objectives follow the same plan: trace the guide, trace the model
// replayed against it, extract term bundles, contract the model's
// enumerated variables out of its cost terms, then take the expectation of
// every cost under the guide's enumeration measures and sum over plates.
// The two objectives differ only in how that expectation is computed:
// TraceEnumELBO eliminates per cost with plate-parallel sum-product, while
// TraceMarkovEnumELBO handles sequential plates by recovering all guide
// marginals at once from a single adjoint pass over the partition
// function.
package elbo

import (
	"fmt"

	"github.com/evince-ml/evince/internal/adjoint"
	"github.com/evince-ml/evince/internal/expr"
	"github.com/evince-ml/evince/internal/factor"
	"github.com/evince-ml/evince/internal/sumproduct"
	"github.com/evince-ml/evince/internal/terms"
	"github.com/evince-ml/evince/internal/trace"
)

// TraceEnumELBO computes the exact negative evidence lower bound for
// models whose enumerated variables live under ordinary plates.
type TraceEnumELBO struct {
	// LastStats reports materializations and memo hits of the most
	// recent Loss evaluation.
	LastStats expr.Stats
}

// NewTraceEnumELBO returns a plate-parallel objective.
func NewTraceEnumELBO() *TraceEnumELBO { return &TraceEnumELBO{} }

// Loss traces the guide and model and evaluates the negative ELBO.
func (e *TraceEnumELBO) Loss(model, guide trace.Tracer) (float64, error) {
	modelTerms, guideTerms, err := bundles(model, guide)
	if err != nil {
		return 0, err
	}

	b := expr.NewBuilder()
	costs, err := modelCosts(b, modelTerms, false)
	if err != nil {
		return 0, err
	}
	for _, f := range guideTerms.LogFactors {
		costs = append(costs, b.Scale(b.Leaf(f), -1))
	}

	plateVars := guideTerms.PlateVars.Union(modelTerms.PlateVars)
	measures := leaves(b, guideTerms.LogMeasures)

	elboTerms := make([]*expr.Node, 0, len(costs))
	for _, cost := range costs {
		// Marginalize the guide down to exactly this cost's inputs, take
		// the expectation over the enumerated inputs, and sum the plates.
		logProb, err := sumproduct.SumProduct(b, measures, plateVars,
			plateVars.Union(guideTerms.MeasureVars).Minus(cost.Inputs()))
		if err != nil {
			return 0, err
		}
		term := b.Integrate(logProb, cost, guideTerms.MeasureVars.Intersect(cost.Inputs()))
		term = b.Reduce(expr.Sum, term, plateVars.Intersect(cost.Inputs()))
		elboTerms = append(elboTerms, term)
	}

	ctx := expr.NewContext()
	out := ctx.Eval(expr.Optimize(b, b.Product(elboTerms...)))
	e.LastStats = ctx.Stats
	return -out.Item(), nil
}

// TraceMarkovEnumELBO computes the exact negative evidence lower bound
// for models with sequential (Markov) plates. Chains are eliminated in
// linear time, and every guide marginal a cost term needs is recovered
// from one forward+backward adjoint pass.
type TraceMarkovEnumELBO struct {
	LastStats expr.Stats
}

// NewTraceMarkovEnumELBO returns a sequential-plate objective.
func NewTraceMarkovEnumELBO() *TraceMarkovEnumELBO { return &TraceMarkovEnumELBO{} }

// Loss traces the guide and model and evaluates the negative ELBO.
func (e *TraceMarkovEnumELBO) Loss(model, guide trace.Tracer) (float64, error) {
	modelTerms, guideTerms, err := bundles(model, guide)
	if err != nil {
		return 0, err
	}

	b := expr.NewBuilder()
	modelCostNodes, err := modelCosts(b, modelTerms, true)
	if err != nil {
		return 0, err
	}
	costs := append([]*expr.Node(nil), modelCostNodes...)
	for _, f := range guideTerms.LogFactors {
		costs = append(costs, b.Scale(b.Leaf(f), -1))
	}

	// One zero probe per model cost forces the adjoint pass to produce a
	// guide marginal over exactly that cost's inputs; the guide's own
	// measures cover the guide cost terms.
	targets := make([]*expr.Node, 0, len(modelCostNodes)+len(guideTerms.LogMeasures))
	for _, cost := range modelCostNodes {
		targets = append(targets, b.Leaf(factor.Zeros(cost.Inputs())))
	}
	targets = append(targets, leaves(b, guideTerms.LogMeasures)...)

	parts, err := sumproduct.ModifiedPartialSumProduct(b, targets,
		guideTerms.PlateToStep,
		guideTerms.MeasureVars.Union(guideTerms.MarkovPlates()))
	if err != nil {
		return 0, err
	}
	logzq := expr.Optimize(b, b.Product(parts...))

	ctx := expr.NewContext()
	tape := adjoint.NewTape(ctx)
	plateVars := guideTerms.PlateVars.Union(modelTerms.PlateVars)
	marginals, err := tape.Marginals(logzq, targets, plateVars)
	if err != nil {
		return 0, err
	}

	guidePlates := make(map[string]bool, len(guideTerms.PlateToStep))
	for name := range guideTerms.PlateToStep {
		guidePlates[name] = true
	}

	elboTerms := make([]*expr.Node, 0, len(costs))
	for _, cost := range costs {
		logProb, err := marginalFor(marginals, cost.Inputs())
		if err != nil {
			return 0, err
		}
		term := b.Integrate(b.Leaf(logProb), cost, cost.Inputs().MinusNames(guidePlates))
		term = b.Reduce(expr.Sum, term, term.Inputs())
		elboTerms = append(elboTerms, term)
	}

	out := ctx.Eval(expr.Optimize(b, b.Product(elboTerms...)))
	e.LastStats = ctx.Stats
	return -out.Item(), nil
}

// bundles traces the guide, then the model, and extracts both term
// bundles. The model is expected to have been replayed against the guide
// by its author; the objective only consumes the resulting traces.
func bundles(model, guide trace.Tracer) (modelTerms, guideTerms *terms.Bundle, err error) {
	guideTr, err := guide.Trace()
	if err != nil {
		return nil, nil, fmt.Errorf("elbo: tracing guide: %w", err)
	}
	modelTr, err := model.Trace()
	if err != nil {
		return nil, nil, fmt.Errorf("elbo: tracing model: %w", err)
	}
	guideTerms, err = terms.FromTrace(guideTr)
	if err != nil {
		return nil, nil, err
	}
	modelTerms, err = terms.FromTrace(modelTr)
	if err != nil {
		return nil, nil, err
	}
	return modelTerms, guideTerms, nil
}

// modelCosts contracts the model's enumerated variables out of its cost
// terms. Factors untouched by enumeration pass through as-is; the rest are
// combined with the model's measures and eliminated, and the shared
// subsampling scale multiplies each contracted residual.
func modelCosts(b *expr.Builder, mt *terms.Bundle, markov bool) ([]*expr.Node, error) {
	var contracted, costs []*expr.Node
	for _, f := range mt.LogFactors {
		if f.Vars().Intersects(mt.MeasureVars) {
			contracted = append(contracted, b.Leaf(f))
		} else {
			costs = append(costs, b.Leaf(f))
		}
	}
	if len(contracted) == 0 && len(mt.LogMeasures) == 0 {
		return costs, nil
	}

	factors := append(leaves(b, mt.LogMeasures), contracted...)
	var parts []*expr.Node
	var err error
	if markov {
		parts, err = sumproduct.ModifiedPartialSumProduct(b, factors,
			mt.PlateToStep, mt.MeasureVars.Union(mt.MarkovPlates()))
	} else {
		parts, err = sumproduct.PartialSumProduct(b, factors, mt.PlateVars, mt.MeasureVars)
	}
	if err != nil {
		return nil, err
	}
	out := make([]*expr.Node, 0, len(parts)+len(costs))
	for _, p := range parts {
		out = append(out, b.Scale(p, mt.Scale))
	}
	return append(out, costs...), nil
}

// marginalFor returns the first recovered marginal whose inputs match
// exactly. Probes precede guide measures in target order, so a cost whose
// inputs match both gets the probe's marginal.
func marginalFor(marginals []adjoint.Marginal, inputs factor.VarSet) (*factor.Factor, error) {
	key := inputs.Key()
	for _, m := range marginals {
		if m.Inputs.Key() == key {
			return m.LogProb, nil
		}
	}
	return nil, fmt.Errorf("%w: no recovered marginal over %v", adjoint.ErrNoMarginal, inputs)
}

func leaves(b *expr.Builder, fs []*factor.Factor) []*expr.Node {
	out := make([]*expr.Node, 0, len(fs))
	for _, f := range fs {
		out = append(out, b.Leaf(f))
	}
	return out
}

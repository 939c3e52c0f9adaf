// Package dist builds log-density tables from standard distributions, the
// bridge between continuous likelihoods and the discrete factor layer.
package dist

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat/distuv"

	"github.com/evince-ml/evince/internal/factor"
)

// Categorical returns the normalized log-probability table of a
// categorical distribution over v. Weights need not sum to one; they must
// be nonnegative with a positive total.
func Categorical(v factor.Var, weights []float64) (*factor.Factor, error) {
	if len(weights) != v.Size {
		return nil, fmt.Errorf("dist: %d weights for variable %q of size %d", len(weights), v.Name, v.Size)
	}
	total := floats.Sum(weights)
	if total <= 0 || math.IsNaN(total) {
		return nil, fmt.Errorf("dist: categorical weights for %q must have positive total, got %v", v.Name, total)
	}
	data := make([]float64, v.Size)
	for i, w := range weights {
		if w < 0 {
			return nil, fmt.Errorf("dist: negative weight %v for %q", w, v.Name)
		}
		data[i] = math.Log(w / total)
	}
	return factor.New(factor.NewVarSet(v), data)
}

// NormalTable tabulates log N(data[i] | mu[k], sigma[k]) over the plate
// and component variables: the standard mixture-likelihood table.
func NormalTable(plate, comp factor.Var, data, mu, sigma []float64) (*factor.Factor, error) {
	if len(data) != plate.Size {
		return nil, fmt.Errorf("dist: %d observations for plate %q of size %d", len(data), plate.Name, plate.Size)
	}
	if len(mu) != comp.Size || len(sigma) != comp.Size {
		return nil, fmt.Errorf("dist: %d/%d parameters for component %q of size %d", len(mu), len(sigma), comp.Name, comp.Size)
	}
	comps := make([]distuv.Normal, comp.Size)
	for k := range comps {
		if sigma[k] <= 0 {
			return nil, fmt.Errorf("dist: nonpositive sigma %v for component %d of %q", sigma[k], k, comp.Name)
		}
		comps[k] = distuv.Normal{Mu: mu[k], Sigma: sigma[k]}
	}
	// Tabulate walks canonical variable order; resolve axis positions
	// explicitly since plate and comp sort by name.
	vars := factor.NewVarSet(plate, comp)
	plateAxis, compAxis := 0, 1
	if vars.Names()[0] != plate.Name {
		plateAxis, compAxis = 1, 0
	}
	return factor.Tabulate(vars, func(idx []int) float64 {
		return comps[idx[compAxis]].LogProb(data[idx[plateAxis]])
	}), nil
}

// NormalEmission tabulates log N(obs[t] | mu[k], sigma[k]) over the time
// and state variables. Identical table shape to NormalTable; named for the
// chain-model reading.
func NormalEmission(tvar, state factor.Var, obs, mu, sigma []float64) (*factor.Factor, error) {
	return NormalTable(tvar, state, obs, mu, sigma)
}

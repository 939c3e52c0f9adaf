// Copyright 2026 Evince ML Framework. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

// Package dist provides the public API for building log-density tables
// from standard distributions in the Evince ML framework.
package dist

import (
	"github.com/evince-ml/evince/factor"
	"github.com/evince-ml/evince/internal/dist"
)

// Categorical returns the normalized log-probability table of a
// categorical distribution over v.
func Categorical(v factor.Var, weights []float64) (*factor.Factor, error) {
	return dist.Categorical(v, weights)
}

// NormalTable tabulates log N(data[i] | mu[k], sigma[k]) over the plate
// and component variables.
func NormalTable(plate, comp factor.Var, data, mu, sigma []float64) (*factor.Factor, error) {
	return dist.NormalTable(plate, comp, data, mu, sigma)
}

// NormalEmission tabulates log N(obs[t] | mu[k], sigma[k]) over the time
// and state variables.
func NormalEmission(tvar, state factor.Var, obs, mu, sigma []float64) (*factor.Factor, error) {
	return dist.NormalEmission(tvar, state, obs, mu, sigma)
}

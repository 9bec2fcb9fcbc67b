// Package pcatest generates seeded synthetic process data for tests.
package pcatest

import (
	"math/rand/v2"

	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat/distmv"
)

// FillingLineMean is the in-control mean of four filling-line variables:
// fill volume (ml), nozzle pressure (bar), line speed (units/min), temperature (°C).
var FillingLineMean = []float64{500, 2.5, 120, 21}

// FillingLineCovariance couples fill volume with pressure and speed.
var FillingLineCovariance = []float64{
	4.0, 0.6, 3.0, 0.2,
	0.6, 0.25, 0.5, 0.0,
	3.0, 0.5, 9.0, 0.3,
	0.2, 0.0, 0.3, 1.0,
}

// Normal draws n observations from a multivariate normal distribution.
// The same seed always yields the same matrix.
func Normal(seed uint64, n int, mean []float64, covariance []float64) *mat.Dense {
	dim := len(mean)
	sigma := mat.NewSymDense(dim, append([]float64(nil), covariance...))

	dist, ok := distmv.NewNormal(mean, sigma, rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))
	if !ok {
		panic("pcatest: covariance is not positive definite")
	}

	out := mat.NewDense(n, dim, nil)
	row := make([]float64, dim)

	for i := range n {
		out.SetRow(i, dist.Rand(row))
	}

	return out
}

// FillingLine draws n in-control filling-line observations.
func FillingLine(seed uint64, n int) *mat.Dense {
	return Normal(seed, n, FillingLineMean, FillingLineCovariance)
}

// FillingLineNames are the column names of FillingLine data.
func FillingLineNames() []string {
	return []string{"fill_volume", "nozzle_pressure", "line_speed", "temperature"}
}

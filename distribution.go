package ilrep

import (
	"fmt"

	"github.com/unixpickle/anydiff"
	"github.com/unixpickle/anyvec"
)

// A Distribution is a batch of independent diagonal Gaussians over
// a fixed-dimension representation vector.
//
// The mean and standard deviation are packed batch-major, one
// Dim-component row per sample.
// Standard deviations are strictly positive; every constructor in
// this module guarantees that by building them from exponentials
// or constant ones, so Distribution itself only checks shapes.
type Distribution struct {
	Mean   anydiff.Res
	Stddev anydiff.Res
	Dim    int
}

// NewDistribution creates a Distribution after validating that the
// mean and standard deviation agree in size and that both are an
// integer number of Dim-sized rows.
func NewDistribution(mean, stddev anydiff.Res, dim int) *Distribution {
	if mean.Output().Len() != stddev.Output().Len() {
		panic(fmt.Sprintf("distribution: mean length %d does not match stddev length %d",
			mean.Output().Len(), stddev.Output().Len()))
	}
	if dim <= 0 || mean.Output().Len()%dim != 0 {
		panic(fmt.Sprintf("distribution: length %d is not a multiple of dimension %d",
			mean.Output().Len(), dim))
	}
	return &Distribution{Mean: mean, Stddev: stddev, Dim: dim}
}

// UnitDistribution wraps a vector as a Distribution with unit
// standard deviation, e.g. for treating raw data as a degenerate
// encoding.
func UnitDistribution(mean anydiff.Res, dim int) *Distribution {
	c := mean.Output().Creator()
	ones := c.MakeVector(mean.Output().Len())
	ones.AddScalar(c.MakeNumeric(1))
	return NewDistribution(mean, anydiff.NewConst(ones), dim)
}

// Batch returns the number of samples in the batch.
func (d *Distribution) Batch() int {
	return d.Mean.Output().Len() / d.Dim
}

// Vector collapses the distribution to one vector per sample.
// If sample is true, it draws a reparameterized sample
// (mean + stddev*eps with standard normal eps), so gradients flow
// into both parameters; otherwise it returns the mean.
func (d *Distribution) Vector(sample bool) anydiff.Res {
	if !sample {
		return d.Mean
	}
	c := d.Mean.Output().Creator()
	noise := c.MakeVector(d.Mean.Output().Len())
	anyvec.Rand(noise, anyvec.Normal, nil)
	return anydiff.Add(d.Mean, anydiff.Mul(d.Stddev, anydiff.NewConst(noise)))
}

// Detach returns a copy of the distribution whose parameters are
// constants, so that no gradient can flow through it.
func (d *Distribution) Detach() *Distribution {
	return &Distribution{
		Mean:   anydiff.NewConst(d.Mean.Output().Copy()),
		Stddev: anydiff.NewConst(d.Stddev.Output().Copy()),
		Dim:    d.Dim,
	}
}

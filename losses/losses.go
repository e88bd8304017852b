// Package losses implements the objectives that score decoded
// context/target pairs during representation learning.
package losses

import (
	"math"

	ilrep "github.com/HumanCompatibleAI/il-representations"
	"github.com/unixpickle/anydiff"
)

// CrossEntropy is the InfoNCE contrastive objective.
//
// Each decoded context is scored against every decoded target
// by dot product; the i-th target is the positive match for
// the i-th context, and every other target (including any the
// batch extender mixed in) is a negative.
type CrossEntropy struct {
	// Temperature divides the similarity logits.
	// A zero value means 1.
	Temperature float64

	// Normalize projects means onto the unit sphere before
	// comparison, turning dot products into cosines.
	Normalize bool

	// Sample draws vectors from the decoded distributions
	// instead of using their means.
	Sample bool
}

// Loss computes the mean negative log-probability of each
// context matching its positive target.
//
// The target batch may be larger than the context batch; the
// first len(contexts) targets are the positives.
func (c *CrossEntropy) Loss(decCtx, decTgt,
	encCtx *ilrep.Distribution) anydiff.Res {
	ctx := decCtx.Vector(c.Sample)
	tgt := decTgt.Vector(c.Sample)
	if c.Normalize {
		ctx = ilrep.NormalizeRows(ctx, decCtx.Dim)
		tgt = ilrep.NormalizeRows(tgt, decTgt.Dim)
	}
	n := ctx.Output().Len() / decCtx.Dim
	m := tgt.Output().Len() / decTgt.Dim
	if m < n {
		panic("fewer targets than contexts")
	}

	temp := c.Temperature
	if temp == 0 {
		temp = 1
	}

	logits := anydiff.MatMul(false, true,
		&anydiff.Matrix{Data: ctx, Rows: n, Cols: decCtx.Dim},
		&anydiff.Matrix{Data: tgt, Rows: m, Cols: decTgt.Dim})
	cr := logits.Data.Output().Creator()
	scaled := anydiff.Scale(logits.Data, cr.MakeNumeric(1/temp))
	logProbs := anydiff.LogSoftmax(scaled, m)

	matched := anydiff.Pool(logProbs, func(lp anydiff.Res) anydiff.Res {
		rows := make([]anydiff.Res, n)
		for i := range rows {
			rows[i] = anydiff.Slice(lp, i*m+i, i*m+i+1)
		}
		return anydiff.Sum(anydiff.Concat(rows...))
	})
	return anydiff.Scale(matched, cr.MakeNumeric(-1/float64(n)))
}

// MeanSquaredError penalizes the squared distance between
// decoded context and target vectors.
//
// With Normalize set, both sides are projected onto the unit
// sphere first, which is the form self-distillation uses.
type MeanSquaredError struct {
	Normalize bool
	Sample    bool
}

// Loss computes the mean (over samples and components) of the
// squared differences.
func (m *MeanSquaredError) Loss(decCtx, decTgt,
	encCtx *ilrep.Distribution) anydiff.Res {
	ctx := decCtx.Vector(m.Sample)
	tgt := decTgt.Vector(m.Sample)
	if m.Normalize {
		ctx = ilrep.NormalizeRows(ctx, decCtx.Dim)
		tgt = ilrep.NormalizeRows(tgt, decTgt.Dim)
	}
	cr := ctx.Output().Creator()
	diff := anydiff.Add(ctx, anydiff.Scale(tgt, cr.MakeNumeric(-1)))
	sum := anydiff.Sum(anydiff.Square(diff))
	return anydiff.Scale(sum, cr.MakeNumeric(1/float64(ctx.Output().Len())))
}

// VAE is the evidence lower bound objective for generative
// decoders: a Gaussian reconstruction log-likelihood of the
// target under the decoded context distribution, plus a
// KL penalty pulling the encoded context toward a standard
// normal prior.
type VAE struct {
	// Beta scales the KL term.
	Beta float64
}

// Loss computes reconstruction NLL plus Beta times the KL
// divergence, averaged over the batch.
//
// The decoded target must be a degenerate pixel distribution
// whose mean is the raw observation.
func (v *VAE) Loss(decCtx, decTgt,
	encCtx *ilrep.Distribution) anydiff.Res {
	cr := decCtx.Mean.Output().Creator()
	n := encCtx.Batch()

	recon := anydiff.Pool(decCtx.Stddev, func(stddev anydiff.Res) anydiff.Res {
		target := anydiff.NewConst(decTgt.Mean.Output().Copy())
		diff := anydiff.Add(decCtx.Mean,
			anydiff.Scale(target, cr.MakeNumeric(-1)))
		invVar := anydiff.Pow(anydiff.Square(stddev), cr.MakeNumeric(-1))
		sqTerm := anydiff.Mul(anydiff.Square(diff), invVar)
		logTerm := anydiff.Scale(anydiff.Log(stddev), cr.MakeNumeric(2))
		perComp := anydiff.Add(sqTerm, logTerm)
		total := anydiff.Sum(perComp)
		count := float64(decCtx.Mean.Output().Len())
		return anydiff.AddScalar(
			anydiff.Scale(total, cr.MakeNumeric(0.5)),
			cr.MakeNumeric(0.5*count*math.Log(2*math.Pi)),
		)
	})

	kl := anydiff.Pool(encCtx.Stddev, func(stddev anydiff.Res) anydiff.Res {
		variance := anydiff.Square(stddev)
		meanSq := anydiff.Square(encCtx.Mean)
		logVar := anydiff.Scale(anydiff.Log(stddev), cr.MakeNumeric(2))
		perComp := anydiff.Add(anydiff.Add(variance, meanSq),
			anydiff.AddScalar(anydiff.Scale(logVar, cr.MakeNumeric(-1)),
				cr.MakeNumeric(-1)))
		return anydiff.Scale(anydiff.Sum(perComp), cr.MakeNumeric(0.5))
	})

	total := anydiff.Add(recon, anydiff.Scale(kl, cr.MakeNumeric(v.Beta)))
	return anydiff.Scale(total, cr.MakeNumeric(1/float64(n)))
}

package losses

import (
	"math"
	"testing"

	ilrep "github.com/HumanCompatibleAI/il-representations"
	"github.com/unixpickle/anydiff"
	"github.com/unixpickle/anydiff/anydifftest"
	"github.com/unixpickle/anyvec/anyvec32"
)

func TestCrossEntropyOut(t *testing.T) {
	// Orthogonal unit contexts and targets: each context matches
	// exactly one target, so every logit row is one-hot after
	// scaling by 1/temperature.
	ctx := unitDist([]float32{
		1, 0,
		0, 1,
	}, 2)
	tgt := unitDist([]float32{
		1, 0,
		0, 1,
	}, 2)
	loss := (&CrossEntropy{Temperature: 1}).Loss(ctx, tgt, ctx)

	// Row logits are [1, 0] and [0, 1]; the matched log-prob is
	// log(e / (e + 1)) in both rows.
	expected := -math.Log(math.E / (math.E + 1))
	actual := float64(loss.Output().Data().([]float32)[0])
	if math.Abs(actual-expected) > 1e-4 {
		t.Errorf("expected %f but got %f", expected, actual)
	}
}

func TestCrossEntropyTemperature(t *testing.T) {
	ctx := unitDist([]float32{1, 0, 0, 1}, 2)
	tgt := unitDist([]float32{1, 0, 0, 1}, 2)
	cold := (&CrossEntropy{Temperature: 0.1}).Loss(ctx, tgt, ctx)
	warm := (&CrossEntropy{Temperature: 10}).Loss(ctx, tgt, ctx)
	coldVal := cold.Output().Data().([]float32)[0]
	warmVal := warm.Output().Data().([]float32)[0]
	if coldVal >= warmVal {
		t.Errorf("sharper temperature should give lower loss: %f vs %f",
			coldVal, warmVal)
	}
}

func TestCrossEntropyExtendedTargets(t *testing.T) {
	// Extra negatives can only increase the loss relative to the
	// positives-only batch.
	ctx := unitDist([]float32{1, 0, 0, 1}, 2)
	tgt := unitDist([]float32{1, 0, 0, 1}, 2)
	extended := unitDist([]float32{
		1, 0,
		0, 1,
		0.5, 0.5,
		-1, 0.25,
	}, 2)
	ce := &CrossEntropy{Temperature: 1}
	plain := ce.Loss(ctx, tgt, ctx).Output().Data().([]float32)[0]
	more := ce.Loss(ctx, extended, ctx).Output().Data().([]float32)[0]
	if more <= plain {
		t.Errorf("extra negatives should increase the loss: %f vs %f",
			more, plain)
	}
}

func TestCrossEntropyProp(t *testing.T) {
	ctxVar := anydiff.NewVar(anyvec32.MakeVectorData([]float32{
		0.5, -1, 2, 0.3, 1, -0.5,
	}))
	tgtVar := anydiff.NewVar(anyvec32.MakeVectorData([]float32{
		1, 0.2, -0.3, 2, 0.1, 0.7,
		-1, 0.4, 0.9, 0.2, -2, 0.5,
	}))
	checker := &anydifftest.ResChecker{
		F: func() anydiff.Res {
			ctx := ilrep.UnitDistribution(ctxVar, 3)
			tgt := ilrep.UnitDistribution(tgtVar, 3)
			return (&CrossEntropy{Temperature: 0.5}).Loss(ctx, tgt, ctx)
		},
		V: []*anydiff.Var{ctxVar, tgtVar},
	}
	checker.FullCheck(t)
}

func TestMeanSquaredErrorOut(t *testing.T) {
	ctx := unitDist([]float32{1, 2, 3, 4}, 2)
	tgt := unitDist([]float32{2, 4, 3, 0}, 2)
	loss := (&MeanSquaredError{}).Loss(ctx, tgt, ctx)
	expected := float32(1+4+0+16) / 4
	actual := loss.Output().Data().([]float32)[0]
	if math.Abs(float64(actual-expected)) > 1e-4 {
		t.Errorf("expected %f but got %f", expected, actual)
	}
}

func TestMeanSquaredErrorNormalized(t *testing.T) {
	// Scaling one side should not matter once both sides are
	// normalized.
	ctx := unitDist([]float32{1, 2, 3, 4}, 2)
	scaled := unitDist([]float32{2, 4, 6, 8}, 2)
	loss := (&MeanSquaredError{Normalize: true}).Loss(ctx, scaled, ctx)
	actual := loss.Output().Data().([]float32)[0]
	if math.Abs(float64(actual)) > 1e-4 {
		t.Errorf("expected 0 but got %f", actual)
	}
}

func TestVAEOut(t *testing.T) {
	// With unit stddev everywhere and decoded mean equal to the
	// target, the reconstruction term is just the Gaussian
	// normalization constant and the KL reduces to mean²/2.
	decoded := unitDist([]float32{1, 2}, 2)
	target := unitDist([]float32{1, 2}, 2)
	encoded := unitDist([]float32{3, 0}, 2)
	loss := (&VAE{Beta: 1}).Loss(decoded, target, encoded)
	expected := 0.5*2*math.Log(2*math.Pi) + 0.5*9
	actual := float64(loss.Output().Data().([]float32)[0])
	if math.Abs(actual-expected) > 1e-3 {
		t.Errorf("expected %f but got %f", expected, actual)
	}
}

func TestVAEBeta(t *testing.T) {
	decoded := unitDist([]float32{1, 2}, 2)
	target := unitDist([]float32{0, 0}, 2)
	encoded := unitDist([]float32{3, 1}, 2)
	small := (&VAE{Beta: 0.1}).Loss(decoded, target, encoded)
	large := (&VAE{Beta: 10}).Loss(decoded, target, encoded)
	if small.Output().Data().([]float32)[0] >= large.Output().Data().([]float32)[0] {
		t.Error("larger beta should give larger loss")
	}
}

func TestVAEProp(t *testing.T) {
	meanVar := anydiff.NewVar(anyvec32.MakeVectorData([]float32{0.5, -1, 0.3, 1}))
	encVar := anydiff.NewVar(anyvec32.MakeVectorData([]float32{1, 0.2, -0.3, 0.8}))
	target := unitDist([]float32{0.4, -0.9, 0.5, 1.2}, 2)
	checker := &anydifftest.ResChecker{
		F: func() anydiff.Res {
			decoded := ilrep.UnitDistribution(meanVar, 2)
			encoded := ilrep.UnitDistribution(encVar, 2)
			return (&VAE{Beta: 0.5}).Loss(decoded, target, encoded)
		},
		V: []*anydiff.Var{meanVar, encVar},
	}
	checker.FullCheck(t)
}

func unitDist(data []float32, dim int) *ilrep.Distribution {
	mean := anydiff.NewConst(anyvec32.MakeVectorData(data))
	return ilrep.UnitDistribution(mean, dim)
}

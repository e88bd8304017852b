package augmenters

import (
	"math"
	"testing"

	ilrep "github.com/HumanCompatibleAI/il-representations"
	"github.com/unixpickle/anyvec/anyvec32"
)

func TestPipelineUnknownTransform(t *testing.T) {
	c := anyvec32.CurrentCreator()
	shape := ilrep.ImageShape{Width: 8, Height: 8, Depth: 1}
	_, err := NewPipeline(c, shape, []TransformSpec{
		{Name: "pad", Size: 2},
		{Name: "solarize"},
	})
	if err == nil {
		t.Error("expected error for unknown transform")
	}
}

func TestPipelineBadParams(t *testing.T) {
	c := anyvec32.CurrentCreator()
	shape := ilrep.ImageShape{Width: 8, Height: 8, Depth: 1}
	cases := []TransformSpec{
		{Name: "pad", Size: 0},
		{Name: "random-crop", Size: 9},
		{Name: "gaussian-blur", Sigma: -1},
	}
	for _, spec := range cases {
		if _, err := NewPipeline(c, shape, []TransformSpec{spec}); err == nil {
			t.Errorf("%s: expected error", spec.Name)
		}
	}
}

func TestPipelineShape(t *testing.T) {
	c := anyvec32.CurrentCreator()
	shape := ilrep.ImageShape{Width: 8, Height: 6, Depth: 3}
	p, err := NewPipeline(c, shape, DefaultTransforms(shape))
	if err != nil {
		t.Fatal(err)
	}
	if p.OutShape() != shape {
		t.Errorf("pad then crop should preserve the shape, got %v", p.OutShape())
	}

	batch := c.MakeVector(2 * shape.Size())
	out := p.Apply(batch, 2)
	if out.Len() != 2*shape.Size() {
		t.Errorf("expected length %d but got %d", 2*shape.Size(), out.Len())
	}
}

func TestPadContents(t *testing.T) {
	c := anyvec32.CurrentCreator()
	shape := ilrep.ImageShape{Width: 2, Height: 2, Depth: 1}
	p, err := NewPipeline(c, shape, []TransformSpec{{Name: "pad", Size: 1}})
	if err != nil {
		t.Fatal(err)
	}
	img := anyvec32.MakeVectorData([]float32{1, 2, 3, 4})
	out := p.Apply(img, 1).Data().([]float32)
	expected := []float32{
		0, 0, 0, 0,
		0, 1, 2, 0,
		0, 3, 4, 0,
		0, 0, 0, 0,
	}
	for i, x := range expected {
		if out[i] != x {
			t.Errorf("component %d: expected %f but got %f", i, x, out[i])
		}
	}
}

func TestRandomCropContents(t *testing.T) {
	// A 1x1 crop of a constant image must be that constant, and
	// on a ramp image must be one of its values.
	c := anyvec32.CurrentCreator()
	shape := ilrep.ImageShape{Width: 3, Height: 3, Depth: 1}
	p, err := NewPipeline(c, shape, []TransformSpec{
		{Name: "random-crop", Size: 1},
	})
	if err != nil {
		t.Fatal(err)
	}
	img := anyvec32.MakeVectorData([]float32{1, 2, 3, 4, 5, 6, 7, 8, 9})
	for i := 0; i < 10; i++ {
		out := p.Apply(img.Copy(), 1).Data().([]float32)
		if len(out) != 1 || out[0] < 1 || out[0] > 9 {
			t.Fatalf("unexpected crop output %v", out)
		}
	}
}

func TestFlipMirrors(t *testing.T) {
	c := anyvec32.CurrentCreator()
	shape := ilrep.ImageShape{Width: 3, Height: 1, Depth: 2}
	f := newFlip(c, shape)
	img := anyvec32.MakeVectorData([]float32{1, 2, 3, 4, 5, 6})
	out := c.MakeVector(shape.Size())
	f.mapper.Map(img, out)
	expected := []float32{5, 6, 3, 4, 1, 2}
	for i, x := range expected {
		if out.Data().([]float32)[i] != x {
			t.Errorf("component %d: expected %f but got %f",
				i, x, out.Data().([]float32)[i])
		}
	}
}

func TestGaussianBlurConstant(t *testing.T) {
	// Blurring a constant image with clamped borders must not
	// change it.
	c := anyvec32.CurrentCreator()
	shape := ilrep.ImageShape{Width: 4, Height: 4, Depth: 2}
	p, err := NewPipeline(c, shape, []TransformSpec{
		{Name: "gaussian-blur", Sigma: 1.5},
	})
	if err != nil {
		t.Fatal(err)
	}
	img := c.MakeVector(shape.Size())
	img.AddScalar(float32(0.7))
	out := p.Apply(img, 1).Data().([]float32)
	for i, x := range out {
		if math.Abs(float64(x)-0.7) > 1e-4 {
			t.Errorf("component %d: expected 0.7 but got %f", i, x)
		}
	}
}

func TestGaussianBlurSmoothes(t *testing.T) {
	c := anyvec32.CurrentCreator()
	shape := ilrep.ImageShape{Width: 3, Height: 1, Depth: 1}
	p, err := NewPipeline(c, shape, []TransformSpec{
		{Name: "gaussian-blur", Sigma: 1},
	})
	if err != nil {
		t.Fatal(err)
	}
	img := anyvec32.MakeVectorData([]float32{0, 1, 0})
	out := p.Apply(img, 1).Data().([]float32)
	if out[1] >= 1 || out[0] <= 0 || out[2] <= 0 {
		t.Errorf("blur should spread the peak, got %v", out)
	}
}

func TestContextOnlyLeavesTargets(t *testing.T) {
	c := anyvec32.CurrentCreator()
	shape := ilrep.ImageShape{Width: 4, Height: 4, Depth: 1}
	p, err := NewPipeline(c, shape, DefaultTransforms(shape))
	if err != nil {
		t.Fatal(err)
	}
	aug := &ContextOnly{Pipeline: p}
	contexts := c.MakeVector(shape.Size())
	targets := anyvec32.MakeVectorData([]float32{
		1, 2, 3, 4, 5, 6, 7, 8, 9, 10, 11, 12, 13, 14, 15, 16,
	})
	_, outTargets := aug.Augment(contexts, targets, 1)
	for i, x := range targets.Data().([]float32) {
		if outTargets.Data().([]float32)[i] != x {
			t.Error("targets should pass through unchanged")
			break
		}
	}
}

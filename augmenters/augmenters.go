// Package augmenters implements stochastic image transforms which are
// applied to training batches before they enter the encoder.
//
// Transforms operate on raw batch vectors rather than on graph nodes,
// since gradients never flow back into the augmentation stage.
package augmenters

import (
	"fmt"
	"math"
	"math/rand"

	ilrep "github.com/HumanCompatibleAI/il-representations"
	"github.com/unixpickle/anyvec"
)

// A TransformSpec names one transform in an augmentation
// pipeline, along with its parameters.
//
// Which parameters are meaningful depends on Name:
//
//	pad            Size is the border width.
//	random-crop    Width and Height give the output size
//	               (Size sets both when they are 0).
//	flip           no parameters.
//	gaussian-blur  Sigma is the kernel standard deviation.
type TransformSpec struct {
	Name   string  `yaml:"name"`
	Size   int     `yaml:"size,omitempty"`
	Width  int     `yaml:"width,omitempty"`
	Height int     `yaml:"height,omitempty"`
	Sigma  float64 `yaml:"sigma,omitempty"`
}

// DefaultTransforms returns the standard augmentation recipe
// for the given observation shape: pad by 4 pixels, randomly
// crop back to the original size, then blur slightly.
func DefaultTransforms(shape ilrep.ImageShape) []TransformSpec {
	return []TransformSpec{
		{Name: "pad", Size: 4},
		{Name: "random-crop", Width: shape.Width, Height: shape.Height},
		{Name: "gaussian-blur", Sigma: 0.8},
	}
}

type transform interface {
	apply(batch anyvec.Vector, n int) anyvec.Vector
	outShape() ilrep.ImageShape
}

// A Pipeline applies an ordered sequence of transforms to
// every sample in a batch.
type Pipeline struct {
	InShape ilrep.ImageShape

	transforms []transform
	finalShape ilrep.ImageShape
}

// NewPipeline builds a Pipeline for observations of the given
// shape.
//
// It fails if a spec names an unknown transform or carries
// parameters that do not fit the running shape.
func NewPipeline(c anyvec.Creator, shape ilrep.ImageShape,
	specs []TransformSpec) (*Pipeline, error) {
	res := &Pipeline{InShape: shape, finalShape: shape}
	cur := shape
	for _, spec := range specs {
		t, err := newTransform(c, cur, spec)
		if err != nil {
			return nil, err
		}
		cur = t.outShape()
		res.transforms = append(res.transforms, t)
	}
	res.finalShape = cur
	return res, nil
}

// OutShape returns the observation shape after all transforms
// have been applied.
func (p *Pipeline) OutShape() ilrep.ImageShape {
	return p.finalShape
}

// Apply transforms a batch of n samples.
func (p *Pipeline) Apply(batch anyvec.Vector, n int) anyvec.Vector {
	if batch.Len() != n*p.InShape.Size() {
		panic("incorrect batch size")
	}
	for _, t := range p.transforms {
		batch = t.apply(batch, n)
	}
	return batch
}

// A ContextOnly augmenter transforms context samples and
// passes targets through untouched.
type ContextOnly struct {
	Pipeline *Pipeline
}

// Augment applies the pipeline to the contexts.
func (c *ContextOnly) Augment(contexts, targets anyvec.Vector,
	n int) (anyvec.Vector, anyvec.Vector) {
	return c.Pipeline.Apply(contexts, n), targets
}

// A ContextAndTarget augmenter transforms context and target
// samples independently, so the two halves of a pair see
// different random draws.
type ContextAndTarget struct {
	Pipeline *Pipeline
}

// Augment applies the pipeline to both halves of the batch.
func (c *ContextAndTarget) Augment(contexts, targets anyvec.Vector,
	n int) (anyvec.Vector, anyvec.Vector) {
	return c.Pipeline.Apply(contexts, n), c.Pipeline.Apply(targets, n)
}

func newTransform(c anyvec.Creator, shape ilrep.ImageShape,
	spec TransformSpec) (transform, error) {
	switch spec.Name {
	case "pad":
		return newPad(c, shape, spec.Size)
	case "random-crop":
		w, h := spec.Width, spec.Height
		if w == 0 && h == 0 {
			w, h = spec.Size, spec.Size
		}
		return newRandomCrop(c, shape, w, h)
	case "flip":
		return newFlip(c, shape), nil
	case "gaussian-blur":
		return newGaussianBlur(c, shape, spec.Sigma)
	default:
		return nil, fmt.Errorf("unknown transform: %s", spec.Name)
	}
}

// batchGather applies a per-sample gather table to every
// sample in a batch, producing a batch of mapper outputs.
func batchGather(m anyvec.Mapper, batch anyvec.Vector, n int) anyvec.Vector {
	c := batch.Creator()
	inSize := m.InSize()
	var outs []anyvec.Vector
	for i := 0; i < n; i++ {
		sub := batch.Slice(inSize*i, inSize*(i+1))
		out := c.MakeVector(m.OutSize())
		m.Map(sub, out)
		outs = append(outs, out)
	}
	return c.Concat(outs...)
}

type pad struct {
	creator anyvec.Creator
	in      ilrep.ImageShape
	out     ilrep.ImageShape
	mapper  anyvec.Mapper
}

func newPad(c anyvec.Creator, shape ilrep.ImageShape, size int) (*pad, error) {
	if size <= 0 {
		return nil, fmt.Errorf("pad: non-positive border: %d", size)
	}
	out := ilrep.ImageShape{
		Width:  shape.Width + 2*size,
		Height: shape.Height + 2*size,
		Depth:  shape.Depth,
	}
	table := make([]int, 0, shape.Size())
	for y := 0; y < shape.Height; y++ {
		yOff := (y + size) * out.Width * shape.Depth
		for x := 0; x < shape.Width; x++ {
			xOff := yOff + (x+size)*shape.Depth
			for z := 0; z < shape.Depth; z++ {
				table = append(table, xOff+z)
			}
		}
	}
	return &pad{
		creator: c,
		in:      shape,
		out:     out,
		mapper:  c.MakeMapper(out.Size(), table),
	}, nil
}

func (p *pad) apply(batch anyvec.Vector, n int) anyvec.Vector {
	inSize := p.in.Size()
	var outs []anyvec.Vector
	for i := 0; i < n; i++ {
		sub := batch.Slice(inSize*i, inSize*(i+1))
		out := p.creator.MakeVector(p.out.Size())
		p.mapper.MapTranspose(sub, out)
		outs = append(outs, out)
	}
	return p.creator.Concat(outs...)
}

func (p *pad) outShape() ilrep.ImageShape {
	return p.out
}

type randomCrop struct {
	creator anyvec.Creator
	in      ilrep.ImageShape
	out     ilrep.ImageShape
}

func newRandomCrop(c anyvec.Creator, shape ilrep.ImageShape, w,
	h int) (*randomCrop, error) {
	if w <= 0 || h <= 0 || w > shape.Width || h > shape.Height {
		return nil, fmt.Errorf("random-crop: bad output size %dx%d for input %dx%d",
			w, h, shape.Width, shape.Height)
	}
	return &randomCrop{
		creator: c,
		in:      shape,
		out:     ilrep.ImageShape{Width: w, Height: h, Depth: shape.Depth},
	}, nil
}

func (r *randomCrop) apply(batch anyvec.Vector, n int) anyvec.Vector {
	inSize := r.in.Size()
	var outs []anyvec.Vector
	for i := 0; i < n; i++ {
		offX := rand.Intn(r.in.Width - r.out.Width + 1)
		offY := rand.Intn(r.in.Height - r.out.Height + 1)
		table := make([]int, 0, r.out.Size())
		for y := 0; y < r.out.Height; y++ {
			yOff := (y + offY) * r.in.Width * r.in.Depth
			for x := 0; x < r.out.Width; x++ {
				xOff := yOff + (x+offX)*r.in.Depth
				for z := 0; z < r.in.Depth; z++ {
					table = append(table, xOff+z)
				}
			}
		}
		mapper := r.creator.MakeMapper(inSize, table)
		sub := batch.Slice(inSize*i, inSize*(i+1))
		out := r.creator.MakeVector(r.out.Size())
		mapper.Map(sub, out)
		outs = append(outs, out)
	}
	return r.creator.Concat(outs...)
}

func (r *randomCrop) outShape() ilrep.ImageShape {
	return r.out
}

type flip struct {
	shape  ilrep.ImageShape
	mapper anyvec.Mapper
}

func newFlip(c anyvec.Creator, shape ilrep.ImageShape) *flip {
	table := make([]int, 0, shape.Size())
	for y := 0; y < shape.Height; y++ {
		yOff := y * shape.Width * shape.Depth
		for x := 0; x < shape.Width; x++ {
			xOff := yOff + (shape.Width-1-x)*shape.Depth
			for z := 0; z < shape.Depth; z++ {
				table = append(table, xOff+z)
			}
		}
	}
	return &flip{
		shape:  shape,
		mapper: c.MakeMapper(shape.Size(), table),
	}
}

func (f *flip) apply(batch anyvec.Vector, n int) anyvec.Vector {
	c := batch.Creator()
	size := f.shape.Size()
	var outs []anyvec.Vector
	for i := 0; i < n; i++ {
		sub := batch.Slice(size*i, size*(i+1))
		if rand.Intn(2) == 0 {
			outs = append(outs, sub)
			continue
		}
		out := c.MakeVector(size)
		f.mapper.Map(sub, out)
		outs = append(outs, out)
	}
	return c.Concat(outs...)
}

func (f *flip) outShape() ilrep.ImageShape {
	return f.shape
}

type gaussianBlur struct {
	shape ilrep.ImageShape

	// Horizontal and vertical shift tables for the two
	// separable passes, edge pixels clamped.
	left, right anyvec.Mapper
	up, down    anyvec.Mapper

	center float64
	side   float64
}

func newGaussianBlur(c anyvec.Creator, shape ilrep.ImageShape,
	sigma float64) (*gaussianBlur, error) {
	if sigma <= 0 {
		return nil, fmt.Errorf("gaussian-blur: non-positive sigma: %v", sigma)
	}
	k := math.Exp(-1 / (2 * sigma * sigma))
	res := &gaussianBlur{
		shape:  shape,
		center: 1 / (1 + 2*k),
		side:   k / (1 + 2*k),
	}
	res.left = shiftMapper(c, shape, -1, 0)
	res.right = shiftMapper(c, shape, 1, 0)
	res.up = shiftMapper(c, shape, 0, -1)
	res.down = shiftMapper(c, shape, 0, 1)
	return res, nil
}

func (g *gaussianBlur) apply(batch anyvec.Vector, n int) anyvec.Vector {
	horiz := g.pass(batch, n, g.left, g.right)
	return g.pass(horiz, n, g.up, g.down)
}

func (g *gaussianBlur) pass(batch anyvec.Vector, n int, neg,
	pos anyvec.Mapper) anyvec.Vector {
	out := batchGather(neg, batch, n)
	out.Add(batchGather(pos, batch, n))
	out.Scale(batch.Creator().MakeNumeric(g.side / g.center))
	out.Add(batch)
	out.Scale(batch.Creator().MakeNumeric(g.center))
	return out
}

func (g *gaussianBlur) outShape() ilrep.ImageShape {
	return g.shape
}

// shiftMapper gathers each pixel from a neighbor offset by
// (dx, dy), clamping at the image border.
func shiftMapper(c anyvec.Creator, shape ilrep.ImageShape, dx,
	dy int) anyvec.Mapper {
	clamp := func(v, max int) int {
		if v < 0 {
			return 0
		} else if v >= max {
			return max - 1
		}
		return v
	}
	table := make([]int, 0, shape.Size())
	for y := 0; y < shape.Height; y++ {
		srcY := clamp(y+dy, shape.Height)
		for x := 0; x < shape.Width; x++ {
			srcX := clamp(x+dx, shape.Width)
			off := (srcY*shape.Width + srcX) * shape.Depth
			for z := 0; z < shape.Depth; z++ {
				table = append(table, off+z)
			}
		}
	}
	return c.MakeMapper(shape.Size(), table)
}

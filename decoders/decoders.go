// Package decoders implements the loss decoders that map encoded
// Distributions into the space a loss calculator compares.
//
// Variants needing a projection compose a shared projection value
// rather than inheriting from each other, so the set of decoders
// is closed and each one's behavior is visible at its definition.
package decoders

import (
	"fmt"

	ilrep "github.com/HumanCompatibleAI/il-representations"
	"github.com/unixpickle/anydiff"
	"github.com/unixpickle/anynet"
	"github.com/unixpickle/anyvec"
	"github.com/unixpickle/essentials"
	"github.com/unixpickle/serializer"
)

const defaultProjectionHidden = 256

// A projection is a two-layer ReLU MLP with a mean head and an
// (optionally learned, exponentiated) scale head.
// It is the capability object shared by every decoder that
// projects representations.
type projection struct {
	Trunk     anynet.Net
	MeanHead  *anynet.FC
	ScaleHead *anynet.FC
	Learned   bool
	OutDim    int
}

func newProjection(c anyvec.Creator, in, hidden, out int, learnScale bool) *projection {
	if hidden == 0 {
		hidden = defaultProjectionHidden
	}
	return &projection{
		Trunk: anynet.Net{
			anynet.NewFC(c, in, hidden),
			anynet.ReLU,
			anynet.NewFC(c, hidden, hidden),
			anynet.ReLU,
		},
		MeanHead:  anynet.NewFC(c, hidden, out),
		ScaleHead: anynet.NewFCZero(c, hidden, out),
		Learned:   learnScale,
		OutDim:    out,
	}
}

func (p *projection) apply(vec anydiff.Res, n int) *ilrep.Distribution {
	hidden := p.Trunk.Apply(vec, n)
	mean := p.MeanHead.Apply(hidden, n)
	if !p.Learned {
		return ilrep.UnitDistribution(mean, p.OutDim)
	}
	stddev := anydiff.Exp(p.ScaleHead.Apply(hidden, n))
	return ilrep.NewDistribution(mean, stddev, p.OutDim)
}

// parameters returns the projection's variables in a fixed order.
// The scale head is always included so that clones of the same
// projection stay structurally aligned whether or not the scale
// is learned.
func (p *projection) parameters() []*anydiff.Var {
	res := p.Trunk.Parameters()
	res = append(res, p.MeanHead.Parameters()...)
	res = append(res, p.ScaleHead.Parameters()...)
	return res
}

// trainable returns the parameters the optimizer should see.
func (p *projection) trainable() []*anydiff.Var {
	res := p.Trunk.Parameters()
	res = append(res, p.MeanHead.Parameters()...)
	if p.Learned {
		res = append(res, p.ScaleHead.Parameters()...)
	}
	return res
}

// clone deep-copies the projection by round-tripping every
// sub-network through the serializer, so the copy is structurally
// identical by construction.
func (p *projection) clone() (*projection, error) {
	trunkData, err := p.Trunk.Serialize()
	if err != nil {
		return nil, essentials.AddCtx("clone projection", err)
	}
	trunk, err := anynet.DeserializeNet(trunkData)
	if err != nil {
		return nil, essentials.AddCtx("clone projection", err)
	}
	mean, err := cloneFC(p.MeanHead)
	if err != nil {
		return nil, essentials.AddCtx("clone projection", err)
	}
	scale, err := cloneFC(p.ScaleHead)
	if err != nil {
		return nil, essentials.AddCtx("clone projection", err)
	}
	return &projection{
		Trunk:     trunk,
		MeanHead:  mean,
		ScaleHead: scale,
		Learned:   p.Learned,
		OutDim:    p.OutDim,
	}, nil
}

func (p *projection) serialize() ([]byte, error) {
	return serializer.SerializeAny(p.Trunk, p.MeanHead, p.ScaleHead, p.Learned,
		p.OutDim)
}

func deserializeProjection(d []byte) (*projection, error) {
	var res projection
	err := serializer.DeserializeAny(d, &res.Trunk, &res.MeanHead, &res.ScaleHead,
		&res.Learned, &res.OutDim)
	if err != nil {
		return nil, err
	}
	return &res, nil
}

func cloneFC(fc *anynet.FC) (*anynet.FC, error) {
	data, err := fc.Serialize()
	if err != nil {
		return nil, err
	}
	return anynet.DeserializeFC(data)
}

// emaUpdate moves each target variable toward its online
// counterpart: target = momentum*target + (1-momentum)*online.
//
// The two parameter lists must be structurally identical; since a
// mismatch would silently corrupt training, it is checked on every
// call rather than trusted from construction.
func emaUpdate(online, target []*anydiff.Var, momentum float64) {
	if len(online) != len(target) {
		panic(fmt.Sprintf("momentum update: online has %d parameters, target has %d",
			len(online), len(target)))
	}
	for i, q := range online {
		k := target[i]
		if q.Vector.Len() != k.Vector.Len() {
			panic(fmt.Sprintf("momentum update: parameter %d length mismatch: %d vs %d",
				i, q.Vector.Len(), k.Vector.Len()))
		}
		c := k.Vector.Creator()
		k.Vector.Scale(c.MakeNumeric(momentum))
		scaled := q.Vector.Copy()
		scaled.Scale(c.MakeNumeric(1 - momentum))
		k.Vector.Add(scaled)
	}
}

// vectorFrom collapses a distribution per the decoder's fixed
// sample policy, panicking on absent input.
func vectorFrom(z *ilrep.Distribution, sample bool, role string) anydiff.Res {
	if z == nil {
		panic("missing required " + role)
	}
	return z.Vector(sample)
}

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

func init() {
	var t TargetProjection
	serializer.RegisterTypedDeserializer(t.SerializerType(), DeserializeTargetProjection)
	var p ProjectionHead
	serializer.RegisterTypedDeserializer(p.SerializerType(), DeserializeProjectionHead)
}

// TargetProjection leaves the context path alone and applies a
// learned linear map to the target mean, carrying the standard
// deviation through unchanged.
//
// Because the standard deviation is reused, the projection cannot
// change the dimension.
type TargetProjection struct {
	Proj   *anynet.FC
	Dim    int
	Sample bool
}

// DeserializeTargetProjection deserializes a TargetProjection.
func DeserializeTargetProjection(d []byte) (*TargetProjection, error) {
	var res TargetProjection
	err := serializer.DeserializeAny(d, &res.Proj, &res.Dim, &res.Sample)
	if err != nil {
		return nil, essentials.AddCtx("deserialize TargetProjection", err)
	}
	return &res, nil
}

// NewTargetProjection creates a TargetProjection over dim-sized
// representations.
func NewTargetProjection(c anyvec.Creator, dim int, sample bool) *TargetProjection {
	return &TargetProjection{
		Proj:   anynet.NewFC(c, dim, dim),
		Dim:    dim,
		Sample: sample,
	}
}

// DecodeContext returns z unchanged.
func (t *TargetProjection) DecodeContext(z *ilrep.Distribution, traj *ilrep.TrajectoryInfo,
	extra *ilrep.Distribution) *ilrep.Distribution {
	return z
}

// DecodeTarget projects the target vector linearly, keeping the
// input's standard deviation.
func (t *TargetProjection) DecodeTarget(z *ilrep.Distribution, traj *ilrep.TrajectoryInfo,
	extra *ilrep.Distribution) *ilrep.Distribution {
	if z.Dim != t.Dim {
		panic(fmt.Sprintf("target projection expects dimension %d, got %d", t.Dim, z.Dim))
	}
	vec := z.Vector(t.Sample)
	mean := t.Proj.Apply(vec, z.Batch())
	return ilrep.NewDistribution(mean, z.Stddev, t.Dim)
}

// ProjectionDim returns the (unchanged) representation dimension.
func (t *TargetProjection) ProjectionDim() int {
	return t.Dim
}

// Parameters returns the projection's weights and biases.
func (t *TargetProjection) Parameters() []*anydiff.Var {
	return t.Proj.Parameters()
}

// SerializerType returns the unique ID used to serialize a
// TargetProjection with the serializer package.
func (t *TargetProjection) SerializerType() string {
	return "github.com/HumanCompatibleAI/il-representations/decoders.TargetProjection"
}

// Serialize serializes the TargetProjection.
func (t *TargetProjection) Serialize() ([]byte, error) {
	return serializer.SerializeAny(t.Proj, t.Dim, t.Sample)
}

// ProjectionHead runs both the context and target paths through a
// shared nonlinear projection.
type ProjectionHead struct {
	proj   *projection
	Sample bool
}

// DeserializeProjectionHead deserializes a ProjectionHead.
func DeserializeProjectionHead(d []byte) (*ProjectionHead, error) {
	var projData []byte
	var sample bool
	if err := serializer.DeserializeAny(d, &projData, &sample); err != nil {
		return nil, essentials.AddCtx("deserialize ProjectionHead", err)
	}
	proj, err := deserializeProjection(projData)
	if err != nil {
		return nil, essentials.AddCtx("deserialize ProjectionHead", err)
	}
	return &ProjectionHead{proj: proj, Sample: sample}, nil
}

// NewProjectionHead creates a projection head from in-dimensional
// representations to out-dimensional projections.
// A zero hidden size selects the default width.
func NewProjectionHead(c anyvec.Creator, in, hidden, out int, sample,
	learnScale bool) *ProjectionHead {
	return &ProjectionHead{
		proj:   newProjection(c, in, hidden, out, learnScale),
		Sample: sample,
	}
}

// DecodeContext projects the context.
func (p *ProjectionHead) DecodeContext(z *ilrep.Distribution, traj *ilrep.TrajectoryInfo,
	extra *ilrep.Distribution) *ilrep.Distribution {
	return p.forward(z)
}

// DecodeTarget projects the target with the same weights.
func (p *ProjectionHead) DecodeTarget(z *ilrep.Distribution, traj *ilrep.TrajectoryInfo,
	extra *ilrep.Distribution) *ilrep.Distribution {
	return p.forward(z)
}

func (p *ProjectionHead) forward(z *ilrep.Distribution) *ilrep.Distribution {
	vec := vectorFrom(z, p.Sample, "input distribution")
	return p.proj.apply(vec, z.Batch())
}

// ProjectionDim returns the projection output dimension.
func (p *ProjectionHead) ProjectionDim() int {
	return p.proj.OutDim
}

// Parameters returns the trainable projection parameters.
func (p *ProjectionHead) Parameters() []*anydiff.Var {
	return p.proj.trainable()
}

// SerializerType returns the unique ID used to serialize a
// ProjectionHead with the serializer package.
func (p *ProjectionHead) SerializerType() string {
	return "github.com/HumanCompatibleAI/il-representations/decoders.ProjectionHead"
}

// Serialize serializes the ProjectionHead.
func (p *ProjectionHead) Serialize() ([]byte, error) {
	projData, err := p.proj.serialize()
	if err != nil {
		return nil, err
	}
	return serializer.SerializeAny(projData, p.Sample)
}

func (p *ProjectionHead) clone() (*ProjectionHead, error) {
	proj, err := p.proj.clone()
	if err != nil {
		return nil, err
	}
	return &ProjectionHead{proj: proj, Sample: p.Sample}, nil
}

package decoders

import (
	ilrep "github.com/HumanCompatibleAI/il-representations"
	"github.com/unixpickle/anydiff"
	"github.com/unixpickle/anyvec"
	"github.com/unixpickle/essentials"
	"github.com/unixpickle/serializer"
)

func init() {
	var s SelfDistillationHead
	serializer.RegisterTypedDeserializer(s.SerializerType(), DeserializeSelfDistillationHead)
}

// SelfDistillationHead is a BYOL-style decoder: a momentum head
// with an extra predictor applied only to the context path, and
// unit-normalized means on both paths.
type SelfDistillationHead struct {
	Momentum  *MomentumProjectionHead
	predictor *projection
}

// DeserializeSelfDistillationHead deserializes a
// SelfDistillationHead.
func DeserializeSelfDistillationHead(d []byte) (*SelfDistillationHead, error) {
	var momentum *MomentumProjectionHead
	var predData []byte
	if err := serializer.DeserializeAny(d, &momentum, &predData); err != nil {
		return nil, essentials.AddCtx("deserialize SelfDistillationHead", err)
	}
	pred, err := deserializeProjection(predData)
	if err != nil {
		return nil, essentials.AddCtx("deserialize SelfDistillationHead", err)
	}
	return &SelfDistillationHead{Momentum: momentum, predictor: pred}, nil
}

// NewSelfDistillationHead creates a self-distillation head
// projecting in-dimensional representations to out dimensions.
func NewSelfDistillationHead(c anyvec.Creator, in, out int, momentum float64,
	sample bool) (*SelfDistillationHead, error) {
	head, err := NewMomentumProjectionHead(c, in, out, momentum, sample, false)
	if err != nil {
		return nil, essentials.AddCtx("new SelfDistillationHead", err)
	}
	return &SelfDistillationHead{
		Momentum:  head,
		predictor: newProjection(c, out, 0, out, false),
	}, nil
}

// DecodeContext projects the context with the online head, applies
// the predictor, and normalizes the mean to unit norm.
func (s *SelfDistillationHead) DecodeContext(z *ilrep.Distribution,
	traj *ilrep.TrajectoryInfo, extra *ilrep.Distribution) *ilrep.Distribution {
	inner := s.Momentum.DecodeContext(z, traj, extra)
	pred := s.predictor.apply(inner.Vector(s.Momentum.Online.Sample), inner.Batch())
	mean := ilrep.NormalizeRows(pred.Mean, pred.Dim)
	return ilrep.NewDistribution(mean, pred.Stddev, pred.Dim)
}

// DecodeTarget projects the target with the key head and
// normalizes the mean.
// The result carries no gradient.
func (s *SelfDistillationHead) DecodeTarget(z *ilrep.Distribution,
	traj *ilrep.TrajectoryInfo, extra *ilrep.Distribution) *ilrep.Distribution {
	decoded := s.Momentum.DecodeTarget(z, traj, extra)
	mean := ilrep.NormalizeRows(decoded.Mean, decoded.Dim)
	return ilrep.NewDistribution(mean, decoded.Stddev, decoded.Dim).Detach()
}

// ProjectionDim returns the projection output dimension.
func (s *SelfDistillationHead) ProjectionDim() int {
	return s.Momentum.ProjectionDim()
}

// Parameters returns the online head's and predictor's parameters.
func (s *SelfDistillationHead) Parameters() []*anydiff.Var {
	return append(s.Momentum.Parameters(), s.predictor.trainable()...)
}

// SerializerType returns the unique ID used to serialize a
// SelfDistillationHead with the serializer package.
func (s *SelfDistillationHead) SerializerType() string {
	return "github.com/HumanCompatibleAI/il-representations/decoders.SelfDistillationHead"
}

// Serialize serializes the SelfDistillationHead.
func (s *SelfDistillationHead) Serialize() ([]byte, error) {
	predData, err := s.predictor.serialize()
	if err != nil {
		return nil, err
	}
	return serializer.SerializeAny(s.Momentum, predData)
}

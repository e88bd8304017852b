package decoders

import (
	"fmt"

	ilrep "github.com/HumanCompatibleAI/il-representations"
	"github.com/unixpickle/anydiff"
	"github.com/unixpickle/anynet"
	"github.com/unixpickle/anyvec"
	"github.com/unixpickle/anyvec/anyvecsave"
	"github.com/unixpickle/essentials"
	"github.com/unixpickle/serializer"
)

func init() {
	var a ActionPredictionHead
	serializer.RegisterTypedDeserializer(a.SerializerType(), DeserializeActionPredictionHead)
	var v ActionConditionedVectorDecoder
	serializer.RegisterTypedDeserializer(v.SerializerType(), DeserializeActionConditionedVectorDecoder)
}

// An ActionSpace describes the space actions live in, which
// determines how an action distribution is parameterized.
type ActionSpace interface {
	// ParamDim is the number of parameters per action
	// distribution: logits for discrete spaces, means for
	// continuous ones.
	ParamDim() int
}

// Discrete is an action space of n distinct actions.
type Discrete struct {
	N int
}

// ParamDim returns the number of logits.
func (d Discrete) ParamDim() int {
	return d.N
}

// Box is a continuous action space of the given dimension.
type Box struct {
	Dim int
}

// ParamDim returns the action dimension.
func (b Box) ParamDim() int {
	return b.Dim
}

// ActionPredictionHead predicts the action taken between two
// frames from the context representation and a future-frame
// representation supplied as extra context.
//
// For discrete spaces the resulting Distribution's mean holds
// logits; for continuous spaces it is a Gaussian with a learned
// state-independent log standard deviation.
// The target path is the identity.
type ActionPredictionHead struct {
	Space  ActionSpace
	Proj   *anynet.FC
	LogStd *anydiff.Var
	Dim    int
	Sample bool
}

// DeserializeActionPredictionHead deserializes an
// ActionPredictionHead.
func DeserializeActionPredictionHead(d []byte) (*ActionPredictionHead, error) {
	var res ActionPredictionHead
	var discrete bool
	var spaceDim int
	var logStd *anyvecsave.S
	err := serializer.DeserializeAny(d, &res.Proj, &discrete, &spaceDim, &logStd,
		&res.Dim, &res.Sample)
	if err != nil {
		return nil, essentials.AddCtx("deserialize ActionPredictionHead", err)
	}
	if discrete {
		res.Space = Discrete{N: spaceDim}
	} else {
		res.Space = Box{Dim: spaceDim}
	}
	res.LogStd = anydiff.NewVar(logStd.Vector)
	return &res, nil
}

// NewActionPredictionHead creates an action prediction head over
// dim-sized frame representations.
func NewActionPredictionHead(c anyvec.Creator, dim int, space ActionSpace,
	sample bool) *ActionPredictionHead {
	return &ActionPredictionHead{
		Space:  space,
		Proj:   anynet.NewFC(c, 2*dim, space.ParamDim()),
		LogStd: anydiff.NewVar(c.MakeVector(space.ParamDim())),
		Dim:    dim,
		Sample: sample,
	}
}

// DecodeContext concatenates the context and future-frame vectors
// and maps the result to an action distribution.
// Extra context is required; its representation dimension must
// match the context's.
func (a *ActionPredictionHead) DecodeContext(z *ilrep.Distribution,
	traj *ilrep.TrajectoryInfo, extra *ilrep.Distribution) *ilrep.Distribution {
	if extra == nil {
		panic("action prediction requires a future-frame extra context")
	}
	if extra.Dim != z.Dim {
		panic(fmt.Sprintf("future-frame dimension %d does not match context dimension %d",
			extra.Dim, z.Dim))
	}
	n := z.Batch()
	if extra.Batch() != n {
		panic(fmt.Sprintf("future-frame batch %d does not match context batch %d",
			extra.Batch(), n))
	}
	merged := anynet.ConcatMixer{}.Mix(z.Vector(a.Sample), extra.Vector(a.Sample), n)
	params := a.Proj.Apply(merged, n)

	pd := a.Space.ParamDim()
	if _, ok := a.Space.(Discrete); ok {
		return ilrep.UnitDistribution(params, pd)
	}
	c := params.Output().Creator()
	stddev := anydiff.Exp(anydiff.AddRepeated(
		anydiff.NewConst(c.MakeVector(n*pd)), a.LogStd))
	return ilrep.NewDistribution(params, stddev, pd)
}

// DecodeTarget returns z unchanged.
func (a *ActionPredictionHead) DecodeTarget(z *ilrep.Distribution,
	traj *ilrep.TrajectoryInfo, extra *ilrep.Distribution) *ilrep.Distribution {
	return z
}

// ProjectionDim returns the action parameter dimension.
func (a *ActionPredictionHead) ProjectionDim() int {
	return a.Space.ParamDim()
}

// Parameters returns the projection weights, plus the log-std for
// continuous spaces.
func (a *ActionPredictionHead) Parameters() []*anydiff.Var {
	res := a.Proj.Parameters()
	if _, ok := a.Space.(Box); ok {
		res = append(res, a.LogStd)
	}
	return res
}

// SerializerType returns the unique ID used to serialize an
// ActionPredictionHead with the serializer package.
func (a *ActionPredictionHead) SerializerType() string {
	return "github.com/HumanCompatibleAI/il-representations/decoders.ActionPredictionHead"
}

// Serialize serializes the ActionPredictionHead.
func (a *ActionPredictionHead) Serialize() ([]byte, error) {
	_, discrete := a.Space.(Discrete)
	return serializer.SerializeAny(a.Proj, discrete, a.Space.ParamDim(),
		&anyvecsave.S{Vector: a.LogStd.Vector}, a.Dim, a.Sample)
}

// ActionConditionedVectorDecoder projects the concatenation of the
// context representation and an action representation (from extra
// context) into the loss space.
// The target path is the identity.
type ActionConditionedVectorDecoder struct {
	MeanHead  *anynet.FC
	ScaleHead *anynet.FC
	Learned   bool
	ActionDim int
	OutDim    int
	Sample    bool
}

// DeserializeActionConditionedVectorDecoder deserializes an
// ActionConditionedVectorDecoder.
func DeserializeActionConditionedVectorDecoder(d []byte) (
	*ActionConditionedVectorDecoder, error) {
	var res ActionConditionedVectorDecoder
	err := serializer.DeserializeAny(d, &res.MeanHead, &res.ScaleHead, &res.Learned,
		&res.ActionDim, &res.OutDim, &res.Sample)
	if err != nil {
		return nil, essentials.AddCtx("deserialize ActionConditionedVectorDecoder", err)
	}
	return &res, nil
}

// NewActionConditionedVectorDecoder creates a decoder combining
// dim-sized representations with actionDim-sized action
// representations into out-dimensional projections.
func NewActionConditionedVectorDecoder(c anyvec.Creator, dim, actionDim, out int,
	sample, learnScale bool) *ActionConditionedVectorDecoder {
	return &ActionConditionedVectorDecoder{
		MeanHead:  anynet.NewFC(c, dim+actionDim, out),
		ScaleHead: anynet.NewFCZero(c, dim+actionDim, out),
		Learned:   learnScale,
		ActionDim: actionDim,
		OutDim:    out,
		Sample:    sample,
	}
}

// DecodeContext concatenates the context vector with the action
// representation and projects the result.
// Extra context is required.
func (a *ActionConditionedVectorDecoder) DecodeContext(z *ilrep.Distribution,
	traj *ilrep.TrajectoryInfo, extra *ilrep.Distribution) *ilrep.Distribution {
	if extra == nil {
		panic("action-conditioned decoding requires an action extra context")
	}
	if extra.Dim != a.ActionDim {
		panic(fmt.Sprintf("action representation dimension %d, expected %d",
			extra.Dim, a.ActionDim))
	}
	n := z.Batch()
	if extra.Batch() != n {
		panic(fmt.Sprintf("action batch %d does not match context batch %d",
			extra.Batch(), n))
	}
	merged := anynet.ConcatMixer{}.Mix(z.Vector(a.Sample), extra.Vector(a.Sample), n)
	mean := a.MeanHead.Apply(merged, n)
	if !a.Learned {
		return ilrep.UnitDistribution(mean, a.OutDim)
	}
	stddev := anydiff.Exp(a.ScaleHead.Apply(merged, n))
	return ilrep.NewDistribution(mean, stddev, a.OutDim)
}

// DecodeTarget returns z unchanged.
func (a *ActionConditionedVectorDecoder) DecodeTarget(z *ilrep.Distribution,
	traj *ilrep.TrajectoryInfo, extra *ilrep.Distribution) *ilrep.Distribution {
	return z
}

// ProjectionDim returns the projection output dimension.
func (a *ActionConditionedVectorDecoder) ProjectionDim() int {
	return a.OutDim
}

// Parameters returns the trainable parameters.
func (a *ActionConditionedVectorDecoder) Parameters() []*anydiff.Var {
	res := a.MeanHead.Parameters()
	if a.Learned {
		res = append(res, a.ScaleHead.Parameters()...)
	}
	return res
}

// SerializerType returns the unique ID used to serialize an
// ActionConditionedVectorDecoder with the serializer package.
func (a *ActionConditionedVectorDecoder) SerializerType() string {
	return "github.com/HumanCompatibleAI/il-representations/decoders.ActionConditionedVectorDecoder"
}

// Serialize serializes the ActionConditionedVectorDecoder.
func (a *ActionConditionedVectorDecoder) Serialize() ([]byte, error) {
	return serializer.SerializeAny(a.MeanHead, a.ScaleHead, a.Learned, a.ActionDim,
		a.OutDim, a.Sample)
}

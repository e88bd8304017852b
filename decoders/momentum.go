package decoders

import (
	ilrep "github.com/HumanCompatibleAI/il-representations"
	"github.com/unixpickle/anydiff"
	"github.com/unixpickle/anyvec"
	"github.com/unixpickle/essentials"
	"github.com/unixpickle/serializer"
)

func init() {
	var m MomentumProjectionHead
	serializer.RegisterTypedDeserializer(m.SerializerType(), DeserializeMomentumProjectionHead)
}

// MomentumProjectionHead decodes the context with an online
// projection head and the target with a key head that trails the
// online head by an exponential moving average.
//
// The key head is constructed only by cloning the online head, so
// the two parameter lists are structurally identical.
// Key parameters are invisible to Parameters() and the key output
// is detached, so no gradient ever reaches the key head; it moves
// only through the EMA rule.
type MomentumProjectionHead struct {
	Online *ProjectionHead
	Key    *ProjectionHead

	// MomentumWeight is the EMA retention factor; 1 freezes the
	// key head and 0 copies the online head on every target
	// decode.
	MomentumWeight float64
}

// DeserializeMomentumProjectionHead deserializes a
// MomentumProjectionHead.
func DeserializeMomentumProjectionHead(d []byte) (*MomentumProjectionHead, error) {
	var res MomentumProjectionHead
	err := serializer.DeserializeAny(d, &res.Online, &res.Key, &res.MomentumWeight)
	if err != nil {
		return nil, essentials.AddCtx("deserialize MomentumProjectionHead", err)
	}
	return &res, nil
}

// NewMomentumProjectionHead creates a momentum head projecting
// in-dimensional representations to out dimensions.
func NewMomentumProjectionHead(c anyvec.Creator, in, out int, momentum float64,
	sample, learnScale bool) (*MomentumProjectionHead, error) {
	online := NewProjectionHead(c, in, 0, out, sample, learnScale)
	key, err := online.clone()
	if err != nil {
		return nil, essentials.AddCtx("new MomentumProjectionHead", err)
	}
	return &MomentumProjectionHead{
		Online:         online,
		Key:            key,
		MomentumWeight: momentum,
	}, nil
}

// DecodeContext projects the context with the online head.
func (m *MomentumProjectionHead) DecodeContext(z *ilrep.Distribution,
	traj *ilrep.TrajectoryInfo, extra *ilrep.Distribution) *ilrep.Distribution {
	return m.Online.DecodeContext(z, traj, extra)
}

// DecodeTarget advances the key head by one EMA step and then
// projects the target with it.
// The EMA step runs before the forward pass; reversing that order
// would change the asymmetry contrastive losses rely on.
// The result carries no gradient.
func (m *MomentumProjectionHead) DecodeTarget(z *ilrep.Distribution,
	traj *ilrep.TrajectoryInfo, extra *ilrep.Distribution) *ilrep.Distribution {
	emaUpdate(m.Online.proj.parameters(), m.Key.proj.parameters(), m.MomentumWeight)
	return m.Key.DecodeTarget(z, traj, extra).Detach()
}

// ProjectionDim returns the projection output dimension.
func (m *MomentumProjectionHead) ProjectionDim() int {
	return m.Online.ProjectionDim()
}

// Parameters returns the online head's parameters.
// The key head never receives gradient updates.
func (m *MomentumProjectionHead) Parameters() []*anydiff.Var {
	return m.Online.Parameters()
}

// SerializerType returns the unique ID used to serialize a
// MomentumProjectionHead with the serializer package.
func (m *MomentumProjectionHead) SerializerType() string {
	return "github.com/HumanCompatibleAI/il-representations/decoders.MomentumProjectionHead"
}

// Serialize serializes the MomentumProjectionHead.
func (m *MomentumProjectionHead) Serialize() ([]byte, error) {
	return serializer.SerializeAny(m.Online, m.Key, m.MomentumWeight)
}

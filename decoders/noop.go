package decoders

import (
	ilrep "github.com/HumanCompatibleAI/il-representations"
	"github.com/unixpickle/essentials"
	"github.com/unixpickle/serializer"
)

func init() {
	var n NoOp
	serializer.RegisterTypedDeserializer(n.SerializerType(), DeserializeNoOp)
}

// NoOp is the identity decoder: the loss sees exactly what the
// encoder produced.
type NoOp struct {
	Dim int
}

// DeserializeNoOp deserializes a NoOp.
func DeserializeNoOp(d []byte) (*NoOp, error) {
	var res NoOp
	if err := serializer.DeserializeAny(d, &res.Dim); err != nil {
		return nil, essentials.AddCtx("deserialize NoOp", err)
	}
	return &res, nil
}

// DecodeContext returns z unchanged.
func (n *NoOp) DecodeContext(z *ilrep.Distribution, traj *ilrep.TrajectoryInfo,
	extra *ilrep.Distribution) *ilrep.Distribution {
	return z
}

// DecodeTarget returns z unchanged.
func (n *NoOp) DecodeTarget(z *ilrep.Distribution, traj *ilrep.TrajectoryInfo,
	extra *ilrep.Distribution) *ilrep.Distribution {
	return z
}

// ProjectionDim returns the representation dimension.
func (n *NoOp) ProjectionDim() int {
	return n.Dim
}

// SerializerType returns the unique ID used to serialize a NoOp
// with the serializer package.
func (n *NoOp) SerializerType() string {
	return "github.com/HumanCompatibleAI/il-representations/decoders.NoOp"
}

// Serialize serializes the NoOp.
func (n *NoOp) Serialize() ([]byte, error) {
	return serializer.SerializeAny(n.Dim)
}

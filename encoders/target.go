package encoders

import (
	ilrep "github.com/HumanCompatibleAI/il-representations"
	"github.com/unixpickle/anydiff"
)

// RawTarget wraps an encoder so that target observations are not
// encoded at all: the target path yields the preprocessed pixels
// as a degenerate unit-stddev distribution.
//
// Generative objectives use this so that their reconstruction
// target stays in pixel space while the context path still runs
// through the wrapped encoder.
type RawTarget struct {
	Encoder ilrep.Encoder

	// ObsSize is the number of components per observation.
	ObsSize int
}

// ReprDim returns the wrapped encoder's representation dimension.
func (r *RawTarget) ReprDim() int {
	return r.Encoder.ReprDim()
}

// EncodeContext defers to the wrapped encoder.
func (r *RawTarget) EncodeContext(obs anydiff.Res, traj *ilrep.TrajectoryInfo,
	n int) *ilrep.Distribution {
	return r.Encoder.EncodeContext(obs, traj, n)
}

// EncodeTarget returns the raw observations as a distribution over
// pixel space.
func (r *RawTarget) EncodeTarget(obs anydiff.Res, traj *ilrep.TrajectoryInfo,
	n int) *ilrep.Distribution {
	return ilrep.UnitDistribution(obs, r.ObsSize)
}

// EncodeExtraContext defers to the wrapped encoder.
func (r *RawTarget) EncodeExtraContext(extra *ilrep.Distribution, traj *ilrep.TrajectoryInfo,
	n int) *ilrep.Distribution {
	return r.Encoder.EncodeExtraContext(extra, traj, n)
}

// Parameters returns the wrapped encoder's parameters, if any.
func (r *RawTarget) Parameters() []*anydiff.Var {
	if p, ok := r.Encoder.(interface {
		Parameters() []*anydiff.Var
	}); ok {
		return p.Parameters()
	}
	return nil
}

// SetTrainMode forwards the mode switch to the wrapped encoder.
func (r *RawTarget) SetTrainMode(train bool) {
	if t, ok := r.Encoder.(ilrep.TrainModer); ok {
		t.SetTrainMode(train)
	}
}

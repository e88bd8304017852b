// Package ilrep provides the core types for self-supervised
// representation learning on trajectory data.
// It defines the probability-distribution representation produced
// by encoders, and the component contracts that the training
// engine in the learner sub-package wires together.
package ilrep

import (
	"github.com/unixpickle/anydiff"
	"github.com/unixpickle/anyvec"
)

// A TrajectoryInfo identifies, for each sample in a batch, the
// trajectory it came from and the timestep within that trajectory.
type TrajectoryInfo struct {
	Trajectories []int
	Timesteps    []int
}

// Len returns the number of samples described.
func (t *TrajectoryInfo) Len() int {
	if t == nil {
		return 0
	}
	return len(t.Trajectories)
}

// An Encoder maps raw observations to Distributions over a
// representation space of fixed dimension.
//
// The three entry points correspond to the three roles a sample
// can play in a training pair.
// A nil extra-context argument means extra context is absent, and
// must be answered with a nil result.
type Encoder interface {
	EncodeContext(obs anydiff.Res, traj *TrajectoryInfo, n int) *Distribution
	EncodeTarget(obs anydiff.Res, traj *TrajectoryInfo, n int) *Distribution
	EncodeExtraContext(extra *Distribution, traj *TrajectoryInfo, n int) *Distribution
	ReprDim() int
}

// A LossDecoder maps encoded Distributions into the space a loss
// calculator compares, with separate paths for the context and
// target halves of a pair.
//
// Variants that require extra context must treat a nil extra
// argument as a precondition violation and panic, since silently
// substituting a default would corrupt the pairing seen by the
// loss.
type LossDecoder interface {
	DecodeContext(z *Distribution, traj *TrajectoryInfo, extra *Distribution) *Distribution
	DecodeTarget(z *Distribution, traj *TrajectoryInfo, extra *Distribution) *Distribution
	ProjectionDim() int
}

// A BatchExtender optionally enlarges the set of targets seen by
// the loss, e.g. by mixing in negatives remembered from earlier
// steps.
type BatchExtender interface {
	Extend(context, target *Distribution) (*Distribution, *Distribution)
}

// An Augmenter transforms raw context (and possibly target)
// observation batches before they are encoded.
// The returned batches have the same packed layout and batch size
// as the inputs.
type Augmenter interface {
	Augment(contexts, targets anyvec.Vector, n int) (anyvec.Vector, anyvec.Vector)
}

// A LossCalculator reduces decoded context/target pairs to a
// scalar training loss.
// The raw encoded context is passed alongside because generative
// objectives regularize it directly.
type LossCalculator interface {
	Loss(decodedContext, decodedTarget, encodedContext *Distribution) anydiff.Res
}

// A Parameterizer exposes the trainable variables of a component
// so that the training engine can accumulate them into a single
// gradient.
type Parameterizer interface {
	Parameters() []*anydiff.Var
}

// A TrainModer is a component that behaves differently during
// training than during evaluation (e.g. one containing dropout).
// The training engine toggles the mode at epoch boundaries.
type TrainModer interface {
	SetTrainMode(train bool)
}

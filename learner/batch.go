package learner

import (
	"errors"
	"fmt"
	"runtime"
	"sync"

	ilrep "github.com/HumanCompatibleAI/il-representations"
	"github.com/unixpickle/anynet/anysgd"
	"github.com/unixpickle/anyvec"
	"github.com/unixpickle/essentials"
)

// A PairSample is one (context, target) training pair drawn
// from a trajectory.
//
// Observations are stored channels-first, the way trajectory
// recorders produce them.
type PairSample struct {
	Context anyvec.Vector
	Target  anyvec.Vector

	// ExtraContext is auxiliary conditioning information
	// (e.g. the action taken between the frames).
	// A nil value means absent, which is distinct from an
	// empty vector.
	ExtraContext anyvec.Vector

	Trajectory int
	Timestep   int
}

// A PairList is an anysgd.SampleList that produces training
// pairs.
type PairList interface {
	anysgd.SampleList

	GetSample(idx int) (*PairSample, error)
}

// A SlicePairList is a concrete PairList with predetermined
// samples.
type SlicePairList []*PairSample

// Len returns the number of samples.
func (s SlicePairList) Len() int {
	return len(s)
}

// Swap swaps two samples.
func (s SlicePairList) Swap(i, j int) {
	s[i], s[j] = s[j], s[i]
}

// Slice copies a sub-slice of the list.
func (s SlicePairList) Slice(i, j int) anysgd.SampleList {
	return append(SlicePairList{}, s[i:j]...)
}

// GetSample returns the sample at the index.
func (s SlicePairList) GetSample(idx int) (*PairSample, error) {
	return s[idx], nil
}

// A Batch is a packed batch of training pairs, already
// permuted to the depth-minor layout the networks consume
// and normalized to the [0, 1] pixel range.
type Batch struct {
	Contexts anyvec.Vector
	Targets  anyvec.Vector

	// Extra is nil when no sample carried extra context.
	Extra anyvec.Vector

	TrajInfo *ilrep.TrajectoryInfo
	Num      int
}

// A Fetcher assembles Batches from PairLists.
//
// Samples must declare their observations channels-first:
// the channel axis is required to be strictly smaller than
// both spatial axes. A channels-last shape is rejected at
// construction rather than silently transposed.
type Fetcher struct {
	creator anyvec.Creator

	// Shape is the declared channels-first observation
	// shape of every context and target sample.
	Shape ilrep.ImageShape

	// ExtraSize is the expected component count of extra
	// context vectors, when they are present.
	ExtraSize int

	// NormalizePixels divides observations by 255 after
	// the layout permutation.
	NormalizePixels bool

	// MaxGos limits the goroutines used to fetch samples.
	// Zero means GOMAXPROCS.
	MaxGos int

	permute anyvec.Mapper
}

// NewFetcher creates a Fetcher for channels-first samples of
// the given shape.
func NewFetcher(c anyvec.Creator, shape ilrep.ImageShape) (*Fetcher, error) {
	if shape.Depth >= shape.Width || shape.Depth >= shape.Height {
		return nil, fmt.Errorf("fetch batch: shape %dx%dx%d does not look "+
			"channels-first (channel axis must be smallest)",
			shape.Depth, shape.Height, shape.Width)
	}
	return &Fetcher{
		creator:         c,
		Shape:           shape,
		NormalizePixels: true,
		permute:         permuteMapper(c, shape),
	}, nil
}

// Fetch produces a *Batch for the subset of samples.
// The s argument must implement PairList.
// The batch may not be empty.
func (f *Fetcher) Fetch(s anysgd.SampleList) (anysgd.Batch, error) {
	if s.Len() == 0 {
		return nil, errors.New("fetch batch: empty batch")
	}

	l := s.(PairList)
	samples := make([]*PairSample, l.Len())

	idxChan := make(chan int, l.Len())
	for i := 0; i < l.Len(); i++ {
		idxChan <- i
	}
	close(idxChan)

	maxGos := f.MaxGos
	if maxGos == 0 {
		maxGos = runtime.GOMAXPROCS(0)
	}

	wg := sync.WaitGroup{}
	errChan := make(chan error, maxGos)
	for i := 0; i < maxGos; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range idxChan {
				sample, err := l.GetSample(i)
				if err != nil {
					errChan <- essentials.AddCtx("fetch batch", err)
					return
				}
				samples[i] = sample
			}
		}()
	}

	wg.Wait()
	close(errChan)

	if err := <-errChan; err != nil {
		return nil, err
	}

	return f.pack(samples)
}

func (f *Fetcher) pack(samples []*PairSample) (*Batch, error) {
	size := f.Shape.Size()
	contexts := make([]anyvec.Vector, len(samples))
	targets := make([]anyvec.Vector, len(samples))
	var extras []anyvec.Vector

	traj := &ilrep.TrajectoryInfo{
		Trajectories: make([]int, len(samples)),
		Timesteps:    make([]int, len(samples)),
	}

	for i, sample := range samples {
		if sample.Context.Len() != size || sample.Target.Len() != size {
			return nil, fmt.Errorf("fetch batch: sample %d: observation "+
				"length %d does not match declared shape (%d components)",
				i, sample.Context.Len(), size)
		}
		contexts[i] = f.prepObservation(sample.Context)
		targets[i] = f.prepObservation(sample.Target)
		traj.Trajectories[i] = sample.Trajectory
		traj.Timesteps[i] = sample.Timestep

		if sample.ExtraContext != nil {
			if sample.ExtraContext.Len() != f.ExtraSize {
				return nil, fmt.Errorf("fetch batch: sample %d: extra "+
					"context length %d (expected %d)", i,
					sample.ExtraContext.Len(), f.ExtraSize)
			}
			extras = append(extras, sample.ExtraContext.Copy())
		} else if extras != nil {
			return nil, fmt.Errorf("fetch batch: sample %d: missing extra "+
				"context in a batch that carries it", i)
		}
	}
	if extras != nil && len(extras) != len(samples) {
		return nil, errors.New("fetch batch: extra context present on some " +
			"samples but not all")
	}

	res := &Batch{
		Contexts: f.creator.Concat(contexts...),
		Targets:  f.creator.Concat(targets...),
		TrajInfo: traj,
		Num:      len(samples),
	}
	if extras != nil {
		res.Extra = f.creator.Concat(extras...)
	}
	return res, nil
}

// prepObservation permutes one channels-first observation to
// depth-minor layout and scales it to [0, 1].
func (f *Fetcher) prepObservation(obs anyvec.Vector) anyvec.Vector {
	out := f.creator.MakeVector(obs.Len())
	f.permute.Map(obs, out)
	if f.NormalizePixels {
		out.Scale(f.creator.MakeNumeric(1.0 / 255))
	}
	return out
}

// permuteMapper builds the gather table taking an observation
// from channels-first (depth-major) to the depth-minor layout
// used by the convolution stack.
func permuteMapper(c anyvec.Creator, shape ilrep.ImageShape) anyvec.Mapper {
	table := make([]int, 0, shape.Size())
	for y := 0; y < shape.Height; y++ {
		for x := 0; x < shape.Width; x++ {
			for z := 0; z < shape.Depth; z++ {
				table = append(table, z*shape.Width*shape.Height+y*shape.Width+x)
			}
		}
	}
	return c.MakeMapper(shape.Size(), table)
}

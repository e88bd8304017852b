// Package extenders implements batch extenders, which enlarge the
// set of targets seen by a loss beyond the current mini-batch.
package extenders

import (
	"fmt"

	ilrep "github.com/HumanCompatibleAI/il-representations"
	"github.com/unixpickle/anydiff"
	"github.com/unixpickle/anyvec"
)

// Identity is a batch extender that returns its inputs unchanged.
type Identity struct{}

// Extend returns the context and target untouched.
func (Identity) Extend(context, target *ilrep.Distribution) (*ilrep.Distribution,
	*ilrep.Distribution) {
	return context, target
}

// A Queue is a batch extender that remembers the most recent
// target distributions in a fixed-capacity ring buffer and returns
// them as extra negatives alongside each new batch.
//
// The queue slots start out filled with random normal values, so
// during the first pass over the buffer the returned negatives
// include initialization noise.
// That matches the behavior this design was taken from; set
// SkipWarmup to only return slots that have actually been written.
type Queue struct {
	// SkipWarmup, if set, excludes never-written slots from the
	// returned negatives until the buffer has filled once.
	SkipWarmup bool

	size int
	dim  int

	meanRows  []anyvec.Vector
	scaleRows []anyvec.Vector

	ptr    int
	filled int
}

// NewQueue creates a Queue holding size rows of dim-component
// (mean, stddev) pairs, initialized with random normal values.
func NewQueue(c anyvec.Creator, size, dim int) *Queue {
	if size <= 0 || dim <= 0 {
		panic("queue size and dimension must be positive")
	}
	q := &Queue{
		size:      size,
		dim:       dim,
		meanRows:  make([]anyvec.Vector, size),
		scaleRows: make([]anyvec.Vector, size),
	}
	for i := range q.meanRows {
		q.meanRows[i] = c.MakeVector(dim)
		q.scaleRows[i] = c.MakeVector(dim)
		anyvec.Rand(q.meanRows[i], anyvec.Normal, nil)
		anyvec.Rand(q.scaleRows[i], anyvec.Normal, nil)
	}
	return q
}

// Size returns the queue capacity in rows.
func (q *Queue) Size() int {
	return q.size
}

// Ptr returns the current write cursor, always in [0, Size()).
func (q *Queue) Ptr() int {
	return q.ptr
}

// Filled returns how many distinct slots have been written so far,
// up to Size().
func (q *Queue) Filled() int {
	return q.filled
}

// Extend stores the current target batch in the ring buffer and
// returns the context unchanged together with a target enlarged by
// the pre-overwrite queue contents.
//
// The snapshot is taken before the overwrite, so a batch is never
// returned as its own negative.
// The batch size must not exceed the queue size.
func (q *Queue) Extend(context, target *ilrep.Distribution) (*ilrep.Distribution,
	*ilrep.Distribution) {
	if target.Dim != q.dim {
		panic(fmt.Sprintf("queue dimension is %d, but target dimension is %d",
			q.dim, target.Dim))
	}
	n := target.Batch()
	if n > q.size {
		panic(fmt.Sprintf("batch size %d exceeds queue size %d", n, q.size))
	}

	snapCount := q.size
	if q.SkipWarmup && q.filled < q.size {
		snapCount = q.filled
	}
	var snapMeans, snapScales []anyvec.Vector
	for i := 0; i < snapCount; i++ {
		snapMeans = append(snapMeans, q.meanRows[i].Copy())
		snapScales = append(snapScales, q.scaleRows[i].Copy())
	}

	targetMean := target.Mean.Output()
	targetScale := target.Stddev.Output()
	for i, slot := range slotIndices(q.ptr, n, q.size) {
		q.meanRows[slot].Set(targetMean.Slice(i*q.dim, (i+1)*q.dim))
		q.scaleRows[slot].Set(targetScale.Slice(i*q.dim, (i+1)*q.dim))
	}
	q.ptr = (q.ptr + n) % q.size
	if q.filled < q.size {
		q.filled += n
		if q.filled > q.size {
			q.filled = q.size
		}
	}

	if snapCount == 0 {
		return context, target
	}
	c := targetMean.Creator()
	mergedMean := anydiff.Concat(target.Mean,
		anydiff.NewConst(c.Concat(snapMeans...)))
	mergedScale := anydiff.Concat(target.Stddev,
		anydiff.NewConst(c.Concat(snapScales...)))
	return context, ilrep.NewDistribution(mergedMean, mergedScale, q.dim)
}

// slotIndices returns the ring-buffer slots that a write of n rows
// starting at ptr touches, wrapping around the end of a buffer of
// the given size.
func slotIndices(ptr, n, size int) []int {
	res := make([]int, n)
	for i := range res {
		res[i] = (ptr + i) % size
	}
	return res
}

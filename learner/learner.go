// Package learner implements the representation-learning
// training engine: it routes batches of trajectory pairs
// through augmentation, encoding, decoding, batch extension,
// and a loss, then applies gradient updates.
package learner

import (
	"errors"

	ilrep "github.com/HumanCompatibleAI/il-representations"
	"github.com/unixpickle/anydiff"
	"github.com/unixpickle/anynet/anysgd"
	"github.com/unixpickle/anyvec"
	"github.com/unixpickle/essentials"
	"github.com/unixpickle/serializer"
)

// A Learner owns the components of one training run and is
// their sole mutator during Learn.
//
// The zero values of the optional fields mean: no
// augmentation, identity batch extension, plain SGD steps at
// a constant rate, no logging, and no checkpointing.
type Learner struct {
	Fetcher *Fetcher

	Augmenter ilrep.Augmenter
	Encoder   ilrep.Encoder
	Decoder   ilrep.LossDecoder
	Extender  ilrep.BatchExtender
	Loss      ilrep.LossCalculator

	// Params are the trainable parameters of Encoder and
	// Decoder combined. If nil, they are gathered from any
	// component implementing ilrep.Parameterizer.
	Params []*anydiff.Var

	Transformer anysgd.Transformer
	Rater       anysgd.Rater

	BatchSize int

	// MaxStepsPerEpoch caps the optimizer updates taken per
	// epoch; end-of-epoch bookkeeping still runs when the
	// cap cuts an epoch short. Zero means no cap.
	MaxStepsPerEpoch int

	// SaveInterval controls checkpointing: every
	// SaveInterval epochs, encoder and decoder state is
	// written under LogDir. Zero disables checkpointing.
	SaveInterval int
	LogDir       string

	Logger *Logger
}

// Learn trains for the given number of epochs and returns
// the per-epoch average losses.
//
// The data is reshuffled at the start of every epoch. Any
// failure aborts the run immediately: skipping a bad batch
// would bias the negative-queue and momentum state carried
// across steps.
func (l *Learner) Learn(data PairList, epochs int) ([]float64, error) {
	if data.Len() == 0 {
		return nil, errors.New("learn: empty dataset")
	}
	if l.BatchSize <= 0 {
		return nil, errors.New("learn: batch size not set")
	}
	if l.Params == nil {
		for _, comp := range []interface{}{l.Encoder, l.Decoder} {
			if p, ok := comp.(ilrep.Parameterizer); ok {
				l.Params = append(l.Params, p.Parameters()...)
			}
		}
		if l.Params == nil {
			return nil, errors.New("learn: no trainable parameters")
		}
	}

	var history []float64
	globalStep := 0
	for epoch := 0; epoch < epochs; epoch++ {
		l.setTrainMode(true)
		anysgd.Shuffle(data)

		var epochLoss float64
		var steps int
		for idx := 0; idx < data.Len(); idx += l.BatchSize {
			if l.MaxStepsPerEpoch != 0 && steps >= l.MaxStepsPerEpoch {
				break
			}
			end := idx + l.BatchSize
			if end > data.Len() {
				end = data.Len()
			}
			raw, err := l.Fetcher.Fetch(data.Slice(idx, end).(PairList))
			if err != nil {
				return nil, essentials.AddCtx("learn", err)
			}
			batch := raw.(*Batch)

			lossVal := l.step(batch, epoch)
			epochLoss += lossVal
			steps++

			if l.Logger != nil {
				l.Logger.Record("loss", lossVal)
				l.Logger.Record("epoch", float64(epoch))
				l.Logger.Record("within_epoch_step", float64(steps))
				if err := l.Logger.Dump(globalStep); err != nil {
					return nil, essentials.AddCtx("learn", err)
				}
			}
			globalStep++
		}

		history = append(history, epochLoss/float64(steps))
		l.setTrainMode(false)

		if l.SaveInterval != 0 && epoch%l.SaveInterval == 0 {
			if err := l.checkpoint(epoch); err != nil {
				return nil, essentials.AddCtx("learn", err)
			}
		}
	}
	return history, nil
}

// step runs the forward pipeline on one batch, applies a
// gradient update, and returns the scalar loss.
func (l *Learner) step(batch *Batch, epoch int) float64 {
	contexts, targets := batch.Contexts, batch.Targets
	if l.Augmenter != nil {
		contexts, targets = l.Augmenter.Augment(contexts, targets, batch.Num)
	}

	encCtx := l.Encoder.EncodeContext(anydiff.NewConst(contexts),
		batch.TrajInfo, batch.Num)
	encTgt := l.Encoder.EncodeTarget(anydiff.NewConst(targets),
		batch.TrajInfo, batch.Num)
	var extra *ilrep.Distribution
	if batch.Extra != nil {
		raw := ilrep.UnitDistribution(anydiff.NewConst(batch.Extra),
			batch.Extra.Len()/batch.Num)
		extra = l.Encoder.EncodeExtraContext(raw, batch.TrajInfo, batch.Num)
	}

	decCtx := l.Decoder.DecodeContext(encCtx, batch.TrajInfo, extra)
	decTgt := l.Decoder.DecodeTarget(encTgt, batch.TrajInfo, extra)
	if l.Extender != nil {
		decCtx, decTgt = l.Extender.Extend(decCtx, decTgt)
	}

	loss := l.Loss.Loss(decCtx, decTgt, encCtx)
	c := loss.Output().Creator()

	grad := anydiff.NewGrad(l.Params...)
	upstream := c.MakeVectorData(c.MakeNumericList([]float64{1}))
	loss.Propagate(upstream, grad)
	if l.Transformer != nil {
		grad = l.Transformer.Transform(grad)
	}
	grad.Scale(c.MakeNumeric(-l.rate(epoch)))
	grad.AddToVars()

	return numericFloat(anyvec.Sum(loss.Output()))
}

func (l *Learner) rate(epoch int) float64 {
	if l.Rater == nil {
		return 0.001
	}
	return l.Rater.Rate(float64(epoch))
}

func (l *Learner) setTrainMode(train bool) {
	if t, ok := l.Encoder.(ilrep.TrainModer); ok {
		t.SetTrainMode(train)
	}
	if t, ok := l.Decoder.(ilrep.TrainModer); ok {
		t.SetTrainMode(train)
	}
}

func (l *Learner) checkpoint(epoch int) error {
	enc, ok := l.Encoder.(serializer.Serializer)
	if !ok {
		return errors.New("checkpoint: encoder is not serializable")
	}
	dec, ok := l.Decoder.(serializer.Serializer)
	if !ok {
		return errors.New("checkpoint: decoder is not serializable")
	}
	if err := SaveCheckpoint(l.LogDir, EncoderCheckpoint, epoch, enc); err != nil {
		return err
	}
	return SaveCheckpoint(l.LogDir, DecoderCheckpoint, epoch, dec)
}

func numericFloat(n anyvec.Numeric) float64 {
	switch n := n.(type) {
	case float32:
		return float64(n)
	case float64:
		return n
	}
	panic("unsupported numeric type")
}

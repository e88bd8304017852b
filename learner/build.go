package learner

import (
	"fmt"

	ilrep "github.com/HumanCompatibleAI/il-representations"
	"github.com/HumanCompatibleAI/il-representations/augmenters"
	"github.com/HumanCompatibleAI/il-representations/decoders"
	"github.com/HumanCompatibleAI/il-representations/encoders"
	"github.com/HumanCompatibleAI/il-representations/extenders"
	"github.com/HumanCompatibleAI/il-representations/losses"
	"github.com/unixpickle/anynet/anysgd"
	"github.com/unixpickle/anyvec"
	"github.com/unixpickle/essentials"
)

// Build assembles a Learner from a Config, implementing the
// momentum-contrastive recipe: a CNN encoder, a momentum
// projection head, a negative queue, and a temperature-scaled
// contrastive loss.
//
// An empty Augmentation list selects the default recipe; the
// transforms apply to context samples only, and must preserve
// the observation shape.
func Build(c anyvec.Creator, conf *Config) (*Learner, error) {
	shape := ilrep.ImageShape{
		Width:  conf.Width,
		Height: conf.Height,
		Depth:  conf.Channels,
	}
	fetcher, err := NewFetcher(c, shape)
	if err != nil {
		return nil, essentials.AddCtx("build learner", err)
	}

	specs := conf.Augmentation
	if len(specs) == 0 {
		specs = augmenters.DefaultTransforms(shape)
	}
	pipeline, err := augmenters.NewPipeline(c, shape, specs)
	if err != nil {
		return nil, essentials.AddCtx("build learner", err)
	}
	if out := pipeline.OutShape(); out != shape {
		return nil, fmt.Errorf("build learner: augmentation changes the "+
			"observation shape from %dx%dx%d to %dx%dx%d",
			shape.Width, shape.Height, shape.Depth,
			out.Width, out.Height, out.Depth)
	}

	encoder, err := encoders.NewCNN(c, shape, conf.RepresentationDim,
		encoders.CNNConfig{Arch: conf.Arch})
	if err != nil {
		return nil, essentials.AddCtx("build learner", err)
	}
	decoder, err := decoders.NewMomentumProjectionHead(c,
		conf.RepresentationDim, conf.ProjectionDim, conf.MomentumWeight,
		false, false)
	if err != nil {
		return nil, essentials.AddCtx("build learner", err)
	}

	var extender ilrep.BatchExtender = extenders.Identity{}
	if conf.QueueSize > 0 {
		extender = extenders.NewQueue(c, conf.QueueSize, conf.ProjectionDim)
	}

	res := &Learner{
		Fetcher:          fetcher,
		Augmenter:        &augmenters.ContextOnly{Pipeline: pipeline},
		Encoder:          encoder,
		Decoder:          decoder,
		Extender:         extender,
		Loss:             &losses.CrossEntropy{Temperature: conf.Temperature},
		Transformer:      &anysgd.Adam{},
		Rater:            anysgd.ConstRater(conf.LearningRate),
		BatchSize:        conf.BatchSize,
		MaxStepsPerEpoch: conf.MaxStepsPerEpoch,
		SaveInterval:     conf.SaveInterval,
		LogDir:           conf.LogDir,
	}
	if conf.LogDir != "" {
		logger, err := NewLogger(conf.LogDir)
		if err != nil {
			return nil, essentials.AddCtx("build learner", err)
		}
		res.Logger = logger
	}
	return res, nil
}

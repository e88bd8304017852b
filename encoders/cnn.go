package encoders

import (
	"fmt"

	ilrep "github.com/HumanCompatibleAI/il-representations"
	"github.com/unixpickle/anydiff"
	"github.com/unixpickle/anynet"
	"github.com/unixpickle/anynet/anyconv"
	"github.com/unixpickle/anyvec"
	"github.com/unixpickle/essentials"
	"github.com/unixpickle/serializer"
)

func init() {
	var c CNN
	serializer.RegisterTypedDeserializer(c.SerializerType(), DeserializeCNN)
}

// CNNConfig configures a CNN encoder.
type CNNConfig struct {
	// Arch names an entry in the architecture table.
	// Defaults to "BasicCNN".
	Arch string

	// Hidden is the width of the fully-connected trunk.
	// Defaults to 256.
	Hidden int

	// LearnScale enables the learned standard-deviation head.
	// Without it, encodings have unit standard deviation.
	LearnScale bool

	// KeepProb, if non-zero, inserts a dropout layer with the
	// given keep probability after the trunk.
	KeepProb float64
}

// A CNN encodes image observations with a convolutional stack
// followed by a fully-connected trunk and a Gaussian head.
//
// The same network is used for the context and target roles.
// Extra context is passed through unchanged.
type CNN struct {
	Conv      anynet.Net
	Trunk     anynet.Net
	MeanHead  *anynet.FC
	ScaleHead *anynet.FC
	// LearnedScale selects between the scale head and a constant
	// unit standard deviation.
	// The head always exists so that checkpoints have a fixed
	// structure.
	LearnedScale bool
	Dim          int

	dropout *anynet.Dropout
}

// DeserializeCNN deserializes a CNN.
func DeserializeCNN(d []byte) (*CNN, error) {
	var res CNN
	err := serializer.DeserializeAny(d, &res.Conv, &res.Trunk, &res.MeanHead,
		&res.ScaleHead, &res.LearnedScale, &res.Dim)
	if err != nil {
		return nil, essentials.AddCtx("deserialize CNN", err)
	}
	res.findDropout()
	return &res, nil
}

// NewCNN creates a randomly initialized CNN for observations of
// the given shape, producing reprDim-dimensional encodings.
func NewCNN(c anyvec.Creator, shape ilrep.ImageShape, reprDim int, conf CNNConfig) (*CNN, error) {
	if conf.Arch == "" {
		conf.Arch = "BasicCNN"
	}
	if conf.Hidden == 0 {
		conf.Hidden = 256
	}
	arch, err := Architecture(conf.Arch)
	if err != nil {
		return nil, essentials.AddCtx("new CNN", err)
	}

	var convNet anynet.Net
	cur := shape
	for _, spec := range arch {
		if spec.Padding > 0 {
			convNet = append(convNet, &anyconv.Padding{
				InputWidth:  cur.Width,
				InputHeight: cur.Height,
				InputDepth:  cur.Depth,

				PaddingTop:    spec.Padding,
				PaddingRight:  spec.Padding,
				PaddingBottom: spec.Padding,
				PaddingLeft:   spec.Padding,
			})
		}
		conv := &anyconv.Conv{
			FilterCount:  spec.Out,
			FilterWidth:  spec.Kernel,
			FilterHeight: spec.Kernel,
			StrideX:      spec.Stride,
			StrideY:      spec.Stride,

			InputWidth:  cur.Width + 2*spec.Padding,
			InputHeight: cur.Height + 2*spec.Padding,
			InputDepth:  cur.Depth,
		}
		conv.InitRand(c)
		convNet = append(convNet, conv, anynet.ReLU)
		cur.Width = convOutDim(cur.Width, spec)
		cur.Height = convOutDim(cur.Height, spec)
		cur.Depth = spec.Out
	}
	if cur.Width <= 0 || cur.Height <= 0 {
		return nil, fmt.Errorf("new CNN: architecture %q collapses %dx%d input",
			conf.Arch, shape.Width, shape.Height)
	}

	trunk := anynet.Net{
		anynet.NewFC(c, cur.Size(), conf.Hidden),
		anynet.ReLU,
	}
	var dropout *anynet.Dropout
	if conf.KeepProb != 0 {
		dropout = &anynet.Dropout{Enabled: true, KeepProb: conf.KeepProb}
		trunk = append(trunk, dropout)
	}

	return &CNN{
		Conv:         convNet,
		Trunk:        trunk,
		MeanHead:     anynet.NewFC(c, conf.Hidden, reprDim),
		ScaleHead:    anynet.NewFCZero(c, conf.Hidden, reprDim),
		LearnedScale: conf.LearnScale,
		Dim:          reprDim,
		dropout:      dropout,
	}, nil
}

// ReprDim returns the dimension of the produced encodings.
func (c *CNN) ReprDim() int {
	return c.Dim
}

// EncodeContext encodes a batch of context observations.
func (c *CNN) EncodeContext(obs anydiff.Res, traj *ilrep.TrajectoryInfo, n int) *ilrep.Distribution {
	return c.encode(obs, n)
}

// EncodeTarget encodes a batch of target observations with the
// same weights as the context path.
func (c *CNN) EncodeTarget(obs anydiff.Res, traj *ilrep.TrajectoryInfo, n int) *ilrep.Distribution {
	return c.encode(obs, n)
}

// EncodeExtraContext passes extra context through unchanged.
// Absent extra context stays absent.
func (c *CNN) EncodeExtraContext(extra *ilrep.Distribution, traj *ilrep.TrajectoryInfo,
	n int) *ilrep.Distribution {
	return extra
}

func (c *CNN) encode(obs anydiff.Res, n int) *ilrep.Distribution {
	hidden := c.Trunk.Apply(c.Conv.Apply(obs, n), n)
	mean := c.MeanHead.Apply(hidden, n)
	if !c.LearnedScale {
		return ilrep.UnitDistribution(mean, c.Dim)
	}
	stddev := anydiff.Exp(c.ScaleHead.Apply(hidden, n))
	return ilrep.NewDistribution(mean, stddev, c.Dim)
}

// Parameters returns the trainable parameters of the encoder.
// The scale head only contributes when the scale is learned.
func (c *CNN) Parameters() []*anydiff.Var {
	res := append(c.Conv.Parameters(), c.Trunk.Parameters()...)
	res = append(res, c.MeanHead.Parameters()...)
	if c.LearnedScale {
		res = append(res, c.ScaleHead.Parameters()...)
	}
	return res
}

// SetTrainMode enables or disables the dropout layer, if any.
func (c *CNN) SetTrainMode(train bool) {
	if c.dropout != nil {
		c.dropout.Enabled = train
	}
}

// SerializerType returns the unique ID used to serialize a CNN
// with the serializer package.
func (c *CNN) SerializerType() string {
	return "github.com/HumanCompatibleAI/il-representations/encoders.CNN"
}

// Serialize serializes the CNN.
func (c *CNN) Serialize() ([]byte, error) {
	return serializer.SerializeAny(c.Conv, c.Trunk, c.MeanHead, c.ScaleHead,
		c.LearnedScale, c.Dim)
}

func (c *CNN) findDropout() {
	for _, layer := range c.Trunk {
		if d, ok := layer.(*anynet.Dropout); ok {
			c.dropout = d
		}
	}
}

package decoders

import (
	"fmt"

	ilrep "github.com/HumanCompatibleAI/il-representations"
	"github.com/HumanCompatibleAI/il-representations/encoders"
	"github.com/unixpickle/anydiff"
	"github.com/unixpickle/anynet"
	"github.com/unixpickle/anynet/anyconv"
	"github.com/unixpickle/anyvec"
	"github.com/unixpickle/essentials"
	"github.com/unixpickle/serializer"
)

func init() {
	var p PixelDecoder
	serializer.RegisterTypedDeserializer(p.SerializerType(), DeserializePixelDecoder)
}

// PixelDecoderConfig configures a PixelDecoder.
type PixelDecoderConfig struct {
	// Arch names the encoder architecture whose layer specs are
	// reversed to build the upsampling stack.
	// Defaults to "BasicCNN".
	Arch string

	// ActionDim, if non-zero, conditions the decoding on an
	// action representation of that dimension taken from extra
	// context.
	ActionDim int

	// LearnScale enables the per-pixel learned scale head;
	// otherwise the standard deviation is ConstStddev.
	LearnScale bool

	// ConstStddev is the constant per-pixel standard deviation
	// used when the scale is not learned.
	// Defaults to 0.1.
	ConstStddev float64

	// Sample draws a reparameterized sample from the input
	// distribution instead of taking its mean.
	Sample bool
}

// A PixelDecoder maps a representation vector back into
// observation pixel space for generative (reconstruction)
// objectives.
//
// The architecture mirrors the encoder: a linear projection into
// the encoder's flattened conv-stack output shape, an upsampling
// convolutional stack following the reversed layer specs, an
// exact-size resize back to the observation's spatial shape, and
// per-pixel mean and scale heads.
// The target path is the identity.
type PixelDecoder struct {
	Initial     *anynet.FC
	Stack       anynet.Net
	MeanHead    anynet.Net
	ScaleHead   anynet.Net
	Learned     bool
	ConstStddev float64
	ActionDim   int
	OutDim      int
	Sample      bool
}

// DeserializePixelDecoder deserializes a PixelDecoder.
func DeserializePixelDecoder(d []byte) (*PixelDecoder, error) {
	var res PixelDecoder
	err := serializer.DeserializeAny(d, &res.Initial, &res.Stack, &res.MeanHead,
		&res.ScaleHead, &res.Learned, &res.ConstStddev, &res.ActionDim, &res.OutDim,
		&res.Sample)
	if err != nil {
		return nil, essentials.AddCtx("deserialize PixelDecoder", err)
	}
	return &res, nil
}

// NewPixelDecoder creates a pixel decoder for observations of the
// given shape from reprDim-dimensional representations.
func NewPixelDecoder(c anyvec.Creator, reprDim int, obsShape ilrep.ImageShape,
	conf PixelDecoderConfig) (*PixelDecoder, error) {
	if conf.Arch == "" {
		conf.Arch = "BasicCNN"
	}
	if conf.ConstStddev == 0 {
		conf.ConstStddev = 0.1
	}
	if conf.ConstStddev < 0 {
		return nil, fmt.Errorf("new PixelDecoder: negative stddev %v", conf.ConstStddev)
	}
	arch, err := encoders.Architecture(conf.Arch)
	if err != nil {
		return nil, essentials.AddCtx("new PixelDecoder", err)
	}

	cur := encoders.OutputShape(obsShape, arch)
	if cur.Width <= 0 || cur.Height <= 0 {
		return nil, fmt.Errorf("new PixelDecoder: architecture %q collapses %dx%d input",
			conf.Arch, obsShape.Width, obsShape.Height)
	}

	initial := anynet.NewFC(c, reprDim+conf.ActionDim, cur.Size())

	// Walk the specs backwards; each step undoes one encoder
	// layer's downsampling with a resize followed by a
	// stride-one convolution.
	var stack anynet.Net
	for i := len(arch) - 1; i >= 0; i-- {
		outDepth := obsShape.Depth
		if i > 0 {
			outDepth = arch[i-1].Out
		}
		stack = append(stack, upsampleBlock(c, &cur, arch[i].Stride, outDepth)...)
	}
	if cur.Width != obsShape.Width || cur.Height != obsShape.Height {
		stack = append(stack, &anyconv.Resize{
			Depth:        cur.Depth,
			InputWidth:   cur.Width,
			InputHeight:  cur.Height,
			OutputWidth:  obsShape.Width,
			OutputHeight: obsShape.Height,
		})
		cur.Width = obsShape.Width
		cur.Height = obsShape.Height
	}

	res := &PixelDecoder{
		Initial:     initial,
		Stack:       stack,
		MeanHead:    pixelHead(c, cur, obsShape.Depth),
		ScaleHead:   pixelHead(c, cur, obsShape.Depth),
		Learned:     conf.LearnScale,
		ConstStddev: conf.ConstStddev,
		ActionDim:   conf.ActionDim,
		OutDim:      obsShape.Size(),
		Sample:      conf.Sample,
	}
	return res, nil
}

// upsampleBlock resizes by the given stride and convolves back to
// outDepth channels, updating shape in place.
func upsampleBlock(c anyvec.Creator, shape *ilrep.ImageShape, stride,
	outDepth int) anynet.Net {
	var block anynet.Net
	if stride > 1 {
		block = append(block, &anyconv.Resize{
			Depth:        shape.Depth,
			InputWidth:   shape.Width,
			InputHeight:  shape.Height,
			OutputWidth:  shape.Width * stride,
			OutputHeight: shape.Height * stride,
		})
		shape.Width *= stride
		shape.Height *= stride
	}
	block = append(block, &anyconv.Padding{
		InputWidth:  shape.Width,
		InputHeight: shape.Height,
		InputDepth:  shape.Depth,

		PaddingTop:    1,
		PaddingRight:  1,
		PaddingBottom: 1,
		PaddingLeft:   1,
	})
	conv := &anyconv.Conv{
		FilterCount:  outDepth,
		FilterWidth:  3,
		FilterHeight: 3,
		StrideX:      1,
		StrideY:      1,

		InputWidth:  shape.Width + 2,
		InputHeight: shape.Height + 2,
		InputDepth:  shape.Depth,
	}
	conv.InitRand(c)
	block = append(block, conv, anyconv.NewBatchNorm(c, outDepth), anynet.ReLU)
	shape.Depth = outDepth
	return block
}

// pixelHead builds a shape-preserving 3x3 convolution down to the
// observation's channel count.
func pixelHead(c anyvec.Creator, shape ilrep.ImageShape, channels int) anynet.Net {
	conv := &anyconv.Conv{
		FilterCount:  channels,
		FilterWidth:  3,
		FilterHeight: 3,
		StrideX:      1,
		StrideY:      1,

		InputWidth:  shape.Width + 2,
		InputHeight: shape.Height + 2,
		InputDepth:  shape.Depth,
	}
	conv.InitRand(c)
	return anynet.Net{
		&anyconv.Padding{
			InputWidth:  shape.Width,
			InputHeight: shape.Height,
			InputDepth:  shape.Depth,

			PaddingTop:    1,
			PaddingRight:  1,
			PaddingBottom: 1,
			PaddingLeft:   1,
		},
		conv,
	}
}

// DecodeContext decodes the context vector into a per-pixel
// Gaussian over the observation space.
// When the decoder is action-conditioned, extra context must hold
// the action representation.
func (p *PixelDecoder) DecodeContext(z *ilrep.Distribution,
	traj *ilrep.TrajectoryInfo, extra *ilrep.Distribution) *ilrep.Distribution {
	vec := z.Vector(p.Sample)
	n := z.Batch()
	if p.ActionDim > 0 {
		if extra == nil {
			panic("action-conditioned pixel decoding requires an action extra context")
		}
		if extra.Dim != p.ActionDim {
			panic(fmt.Sprintf("action representation dimension %d, expected %d",
				extra.Dim, p.ActionDim))
		}
		vec = anynet.ConcatMixer{}.Mix(vec, extra.Vector(p.Sample), n)
	}
	feats := p.Stack.Apply(p.Initial.Apply(vec, n), n)
	mean := p.MeanHead.Apply(feats, n)
	if !p.Learned {
		c := mean.Output().Creator()
		stddev := c.MakeVector(mean.Output().Len())
		stddev.AddScalar(c.MakeNumeric(p.ConstStddev))
		return ilrep.NewDistribution(mean, anydiff.NewConst(stddev), p.OutDim)
	}
	stddev := anydiff.Exp(p.ScaleHead.Apply(feats, n))
	return ilrep.NewDistribution(mean, stddev, p.OutDim)
}

// DecodeTarget returns z unchanged.
func (p *PixelDecoder) DecodeTarget(z *ilrep.Distribution,
	traj *ilrep.TrajectoryInfo, extra *ilrep.Distribution) *ilrep.Distribution {
	return z
}

// ProjectionDim returns the flattened observation size.
func (p *PixelDecoder) ProjectionDim() int {
	return p.OutDim
}

// Parameters returns the trainable parameters.
func (p *PixelDecoder) Parameters() []*anydiff.Var {
	res := p.Initial.Parameters()
	res = append(res, p.Stack.Parameters()...)
	res = append(res, p.MeanHead.Parameters()...)
	if p.Learned {
		res = append(res, p.ScaleHead.Parameters()...)
	}
	return res
}

// SerializerType returns the unique ID used to serialize a
// PixelDecoder with the serializer package.
func (p *PixelDecoder) SerializerType() string {
	return "github.com/HumanCompatibleAI/il-representations/decoders.PixelDecoder"
}

// Serialize serializes the PixelDecoder.
func (p *PixelDecoder) Serialize() ([]byte, error) {
	return serializer.SerializeAny(p.Initial, p.Stack, p.MeanHead, p.ScaleHead,
		p.Learned, p.ConstStddev, p.ActionDim, p.OutDim, p.Sample)
}

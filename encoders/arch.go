// Package encoders implements observation encoders that map image
// batches to Distributions over a representation space.
package encoders

import (
	"fmt"

	ilrep "github.com/HumanCompatibleAI/il-representations"
)

// A LayerSpec describes one convolutional layer of an encoder
// architecture.
// The same specs, reversed, drive the upsampling stack of the
// pixel decoder.
type LayerSpec struct {
	Out     int
	Kernel  int
	Stride  int
	Padding int
}

var architectures = map[string][]LayerSpec{
	"BasicCNN": {
		{Out: 32, Kernel: 8, Stride: 4},
		{Out: 64, Kernel: 4, Stride: 2},
		{Out: 64, Kernel: 3, Stride: 1},
	},
	"SmallCNN": {
		{Out: 32, Kernel: 3, Stride: 2, Padding: 1},
		{Out: 64, Kernel: 3, Stride: 2, Padding: 1},
	},
}

// Architecture looks up a named convolutional architecture.
// Unknown names are a configuration error.
func Architecture(name string) ([]LayerSpec, error) {
	arch, ok := architectures[name]
	if !ok {
		return nil, fmt.Errorf("unknown encoder architecture: %q", name)
	}
	res := make([]LayerSpec, len(arch))
	copy(res, arch)
	return res, nil
}

// OutputShape computes the spatial shape produced by running an
// input of the given shape through a stack of layer specs.
func OutputShape(in ilrep.ImageShape, arch []LayerSpec) ilrep.ImageShape {
	shape := in
	for _, spec := range arch {
		shape.Width = convOutDim(shape.Width, spec)
		shape.Height = convOutDim(shape.Height, spec)
		shape.Depth = spec.Out
	}
	return shape
}

func convOutDim(in int, spec LayerSpec) int {
	out := 1 + (in+2*spec.Padding-spec.Kernel)/spec.Stride
	if out < 0 {
		return 0
	}
	return out
}

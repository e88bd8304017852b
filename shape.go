package ilrep

// An ImageShape describes an observation tensor in the row-major
// depth-minor layout used throughout this module.
type ImageShape struct {
	Width  int
	Height int
	Depth  int
}

// Size returns the number of components in one observation.
func (s ImageShape) Size() int {
	return s.Width * s.Height * s.Depth
}

package ilrep

import (
	"github.com/unixpickle/anydiff"
)

const normStabilizer = 1e-12

// NormalizeRows scales each dim-component row of a packed batch to
// unit Euclidean norm.
func NormalizeRows(v anydiff.Res, dim int) anydiff.Res {
	if v.Output().Len()%dim != 0 {
		panic("row dimension must divide input size")
	}
	n := v.Output().Len() / dim
	c := v.Output().Creator()
	return anydiff.Pool(v, func(v anydiff.Res) anydiff.Res {
		sums := anydiff.SumCols(&anydiff.Matrix{
			Data: anydiff.Square(v),
			Rows: n,
			Cols: dim,
		})
		invNorms := anydiff.Pow(
			anydiff.AddScalar(sums, c.MakeNumeric(normStabilizer)),
			c.MakeNumeric(-0.5),
		)
		return anydiff.Pool(invNorms, func(invNorms anydiff.Res) anydiff.Res {
			transposed := anydiff.Transpose(&anydiff.Matrix{Data: v, Rows: n, Cols: dim})
			scaled := anydiff.ScaleAddRepeated(transposed.Data, invNorms,
				anydiff.NewConst(c.MakeVector(n)))
			back := anydiff.Transpose(&anydiff.Matrix{Data: scaled, Rows: dim, Cols: n})
			return back.Data
		})
	})
}

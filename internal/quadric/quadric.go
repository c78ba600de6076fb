// Package quadric implements the Garland-Heckbert quadric error metric in
// its three flavours (geometry only, geometry+colour, geometry+colour+normal)
// behind a single tagged-variant type, rather than the type-hierarchy /
// typeid dispatch the original C++ uses. Dimension (3, 6 or 9) selects the
// code path everywhere a flavour-specific decision is needed.
package quadric

import (
	"math"

	"github.com/Zielon/ParallelQSlim/internal/vecutil"
	"gonum.org/v1/gonum/mat"
)

// Flavour names the three supported quadric dimensions.
type Flavour int

const (
	Q3 Flavour = 3
	Q6 Flavour = 6
	Q9 Flavour = 9
)

// Dim returns the attribute-space dimension of the flavour.
func (f Flavour) Dim() int { return int(f) }

// Quadric holds the symmetric matrix A, vector b and scalar c of
// Q(v) = v^T A v + 2 b^T v + c, at a fixed dimension (3, 6 or 9).
type Quadric struct {
	Dim int
	A   *mat.SymDense
	B   *mat.VecDense
	C   float64
}

// New allocates a zeroed quadric at the given dimension.
func New(dim int) *Quadric {
	q := &Quadric{Dim: dim}
	q.Reset()
	return q
}

// Reset zeroes A, b, c at the quadric's own dimension.
func (q *Quadric) Reset() {
	if q.Dim == 0 {
		return
	}
	q.A = mat.NewSymDense(q.Dim, nil)
	q.B = mat.NewVecDense(q.Dim, nil)
	q.C = 0
}

// FromPlane builds a Q3 quadric from a plane equation (n, d):
// A = n n^T, b = d n, c = d^2.
func FromPlane(n vecutil.Vec3, d float64) *Quadric {
	q := New(3)
	nv := []float64{n.X(), n.Y(), n.Z()}
	for i := 0; i < 3; i++ {
		for j := i; j < 3; j++ {
			q.A.SetSym(i, j, nv[i]*nv[j])
		}
		q.B.SetVec(i, d*nv[i])
	}
	q.C = d * d
	return q
}

// FromTangentBasis builds a Qk quadric (k = len(p)) from a point p in
// attribute space and an orthonormal basis (e1, e2) of the face's tangent
// subspace: A = I - e1 e1^T - e2 e2^T, b = (p.e1) e1 + (p.e2) e2 - p,
// c = p.p - (p.e1)^2 - (p.e2)^2.
func FromTangentBasis(p, e1, e2 []float64) *Quadric {
	k := len(p)
	q := New(k)

	pe1 := dot(p, e1)
	pe2 := dot(p, e2)

	for i := 0; i < k; i++ {
		for j := i; j < k; j++ {
			var identity float64
			if i == j {
				identity = 1
			}
			a := identity - e1[i]*e1[j] - e2[i]*e2[j]
			q.A.SetSym(i, j, a)
		}
		b := pe1*e1[i] + pe2*e2[i] - p[i]
		q.B.SetVec(i, b)
	}

	q.C = dot(p, p) - pe1*pe1 - pe2*pe2
	return q
}

func dot(a, b []float64) float64 {
	var s float64
	for i := range a {
		s += a[i] * b[i]
	}
	return s
}

// Add adds other into q componentwise. A nil other is a no-op, matching
// the original's "if (!q) return" guard on a possibly-absent quadric.
func (q *Quadric) Add(other *Quadric) {
	if other == nil || other.A == nil {
		return
	}
	if q.A == nil {
		q.Dim = other.Dim
		q.Reset()
	}
	q.A.AddSym(q.A, other.A)
	q.B.AddVec(q.B, other.B)
	q.C += other.C
}

// Scale multiplies A, b and c by s.
func (q *Quadric) Scale(s float64) {
	if q.A == nil {
		return
	}
	q.A.ScaleSym(s, q.A)
	q.B.ScaleVec(s, q.B)
	q.C *= s
}

// Evaluate computes the full quadratic form v^T A v + 2 b^T v + c.
func (q *Quadric) Evaluate(v []float64) float64 {
	if q.A == nil {
		return 0
	}
	vv := mat.NewVecDense(len(v), v)
	var av mat.VecDense
	av.MulVec(q.A, vv)
	quad := mat.Dot(vv, &av)
	return quad + 2*mat.Dot(q.B, vv) + q.C
}

// EvaluateLegacy reproduces the original source's evaluate() bug, which
// drops the v^T A v term and computes only b.v + c. Kept only for the
// regression test that pins the documented source discrepancy (spec §9);
// never called from production code.
func (q *Quadric) EvaluateLegacy(v []float64) float64 {
	if q.A == nil {
		return 0
	}
	vv := mat.NewVecDense(len(v), v)
	return mat.Dot(q.B, vv) + q.C
}

// singularCondition is the condition-number threshold above which A is
// treated as singular/rank-deficient for Optimise's purposes.
const singularCondition = 1e12

// Optimise solves A x = -b for x via a full LU factorisation, writing the
// result into out (which must have length Dim) and returning true on
// success. It returns false when A's condition number indicates the
// factorisation is not reliably invertible (rank < Dim), mirroring
// Eigen::FullPivLU::isInvertible in the original.
func (q *Quadric) Optimise(out []float64) bool {
	if q.A == nil || len(out) != q.Dim {
		return false
	}

	dense := denseFromSym(q.A)

	var lu mat.LU
	lu.Factorize(dense)

	cond := lu.Cond()
	if math.IsInf(cond, 1) || math.IsNaN(cond) || cond > singularCondition {
		return false
	}

	negB := mat.NewVecDense(q.Dim, nil)
	negB.ScaleVec(-1, q.B)

	var x mat.VecDense
	if err := lu.SolveVecTo(&x, false, negB); err != nil {
		return false
	}

	for i := 0; i < q.Dim; i++ {
		out[i] = x.AtVec(i)
	}
	return true
}

func denseFromSym(s *mat.SymDense) *mat.Dense {
	n := s.SymmetricDim()
	d := mat.NewDense(n, n, nil)
	for i := 0; i < n; i++ {
		for j := 0; j < n; j++ {
			d.Set(i, j, s.At(i, j))
		}
	}
	return d
}

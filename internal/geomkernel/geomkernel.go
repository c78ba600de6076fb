// Package geomkernel holds the pure geometric and locked-mutation
// primitives the QSlim worker composes: area/normal/tangent-basis math,
// border detection and penalty quadrics, triangle-flip detection, and the
// atomic locked edge contraction itself. Grounded on
// original_source/simplify_mesh/src/garland/geometry.{h,cpp} for the math
// and on the original's per-node boost::recursive_mutex::try_lock
// discipline (q_slim.cpp) for MovedToTarget's locking, generalised in Go
// via sync.Mutex.TryLock (spec §4.4/§5).
package geomkernel

import (
	"math"
	"sort"

	"github.com/Zielon/ParallelQSlim/internal/edge"
	"github.com/Zielon/ParallelQSlim/internal/mesh"
	"github.com/Zielon/ParallelQSlim/internal/quadric"
	"github.com/Zielon/ParallelQSlim/internal/vecutil"
)

// ComputeArea returns the area of the triangle (p, q, r) via Heron's
// formula, matching the original's Geometry::computeArea.
func ComputeArea(p, q, r vecutil.Vec3) float64 {
	a := p.Sub(q).Len()
	b := q.Sub(r).Len()
	c := r.Sub(p).Len()
	s := 0.5 * (a + b + c)
	radicand := s * (s - a) * (s - b) * (s - c)
	if radicand <= 0 {
		return 0
	}
	return math.Sqrt(radicand)
}

// ComputeNormal returns the unit normal of triangle (p, q, r), zero if
// degenerate.
func ComputeNormal(p, q, r vecutil.Vec3) vecutil.Vec3 {
	return vecutil.SafeNormalize(q.Sub(p).Cross(r.Sub(p)))
}

// GramSchmidt orthonormalises e1 against nothing and e2 against e1,
// returning (e1', e2') spanning the same plane. Used to build the
// tangent-space basis a face's Qk quadric is expressed in.
func GramSchmidt(e1, e2 []float64) ([]float64, []float64) {
	u1 := normalizeVec(e1)
	proj := dotVec(e2, u1)
	u2raw := make([]float64, len(e2))
	for i := range e2 {
		u2raw[i] = e2[i] - proj*u1[i]
	}
	u2 := normalizeVec(u2raw)
	return u1, u2
}

func dotVec(a, b []float64) float64 {
	var s float64
	for i := range a {
		s += a[i] * b[i]
	}
	return s
}

func normalizeVec(v []float64) []float64 {
	n := math.Sqrt(dotVec(v, v))
	out := make([]float64, len(v))
	if n < 1e-12 {
		return out
	}
	for i := range v {
		out[i] = v[i] / n
	}
	return out
}

// AttributesAt returns the attribute vector for vertex id truncated to
// dim components (3 = position only, 6 = +colour, 9 = +colour+normal),
// the counterpart of Vertex::getVector(dim) in the original.
func AttributesAt(m *mesh.Mesh, id mesh.VertexID) func(dim int) []float64 {
	v, ok := m.Vertex(id)
	if !ok {
		return func(int) []float64 { return nil }
	}
	full := v.Attributes()
	return func(dim int) []float64 {
		if dim > len(full) {
			dim = len(full)
		}
		return append([]float64(nil), full[:dim]...)
	}
}

// FaceTangentBasis builds the (e1, e2) basis spanning the attribute-space
// plane of triangle (pa, pb, pc), each truncated to dim, used as input to
// quadric.FromTangentBasis.
func FaceTangentBasis(pa, pb, pc []float64) (e1, e2 []float64) {
	e1raw := make([]float64, len(pa))
	e2raw := make([]float64, len(pa))
	for i := range pa {
		e1raw[i] = pb[i] - pa[i]
		e2raw[i] = pc[i] - pa[i]
	}
	return GramSchmidt(e1raw, e2raw)
}

// BorderPenalty builds the Q3 penalty quadric for the border edge (u, v)
// incident to face f: a plane containing the edge, perpendicular to f's
// normal. Geometry::borderPenalty scales this by a constant (1000) in a
// comment but leaves the multiply commented out in the shipped original, so
// the penalty plane is added unscaled -- the border quadric already
// dominates on its own because it is summed once per border edge a vertex
// touches.
func BorderPenalty(m *mesh.Mesh, u, v mesh.VertexID, f *mesh.Face) *quadric.Quadric {
	pu, pv := m.Position(u), m.Position(v)
	a, b, c := m.Position(f.Index[0]), m.Position(f.Index[1]), m.Position(f.Index[2])
	faceNormal := ComputeNormal(a, b, c)

	edgeVec := pv.Sub(pu)
	planeNormal := vecutil.SafeNormalize(edgeVec.Cross(faceNormal))
	d := -planeNormal.Dot(pu)

	return quadric.FromPlane(planeNormal, d)
}

// CheckBorder reports whether (u, v) is a border edge, marking both
// endpoints and the sole incident face OnBorder as a side effect. Thin
// wrapper over Mesh.CheckBorderEdge kept here so the rest of the package
// reads as one coherent geometry kernel surface (spec §4.4), avoiding a
// mesh<->geomkernel import cycle by delegating the actual bookkeeping to
// mesh.
func CheckBorder(m *mesh.Mesh, u, v mesh.VertexID) bool {
	return m.CheckBorderEdge(u, v)
}

// degenerateCos and minOrientationDot are the two thresholds
// Geometry::willFlip applies to a silhouette face f: collapsed is the one
// endpoint of the contracted edge f is incident to, o1/o2 are f's other two
// (unmoved) vertices, and target is where collapsed is about to land.
//
// uvec/vvec are the edges from target to o1/o2 after the move. If they are
// nearly parallel (the new triangle is close to degenerate) the collapse is
// rejected outright; otherwise the new face normal is compared against f's
// current normal and the collapse is rejected if the orientation has
// changed by more than the second threshold allows.
const (
	degenerateCos     = 0.999
	minOrientationDot = 0.2
)

// Flipped reports whether collapsing the edge onto target would flip or
// near-degenerate face f, the original's triangle-flip guard (willFlip in
// garland's SimplifyMeshPara/geometry.cpp) taken just before committing a
// contraction.
func Flipped(m *mesh.Mesh, f *mesh.Face, collapsed mesh.VertexID, target vecutil.Vec3) bool {
	o1, o2 := f.OppositeEdge(collapsed)
	oldNormal := ComputeNormal(m.Position(collapsed), m.Position(o1), m.Position(o2))

	uvec := vecutil.SafeNormalize(m.Position(o1).Sub(target))
	vvec := vecutil.SafeNormalize(m.Position(o2).Sub(target))

	if math.Abs(uvec.Dot(vvec)) > degenerateCos {
		return true
	}

	newNormal := vecutil.SafeNormalize(uvec.Cross(vvec))
	return newNormal.Dot(oldNormal) < minOrientationDot
}

// lockSet try-locks a list of vertices and faces in ascending id order,
// releasing everything already held and reporting false at the
// first failure -- the non-blocking, deadlock-free acquisition spec §4.4
// requires for concurrent contraction near cluster borders.
type lockSet struct {
	vertices []*mesh.Vertex
	faces    []*mesh.Face
}

func (l *lockSet) unlock() {
	for i := len(l.faces) - 1; i >= 0; i-- {
		l.faces[i].Unlock()
	}
	for i := len(l.vertices) - 1; i >= 0; i-- {
		l.vertices[i].Unlock()
	}
}

func tryAcquire(m *mesh.Mesh, u, v mesh.VertexID, faceKeys []mesh.FaceID) (*lockSet, bool) {
	vu, okU := m.Vertex(u)
	vv, okV := m.Vertex(v)
	if !okU || !okV {
		return nil, false
	}

	set := &lockSet{}
	ordered := []*mesh.Vertex{vu, vv}
	if ordered[0].ID > ordered[1].ID {
		ordered[0], ordered[1] = ordered[1], ordered[0]
	}
	for _, vx := range ordered {
		if !vx.TryLock() {
			set.unlock()
			return nil, false
		}
		set.vertices = append(set.vertices, vx)
	}

	unique := make(map[mesh.FaceID]*mesh.Face, len(faceKeys))
	for _, key := range faceKeys {
		if f, ok := m.Face(key); ok {
			unique[f.ID] = f
		}
	}
	ids := make([]mesh.FaceID, 0, len(unique))
	for id := range unique {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

	for _, id := range ids {
		f := unique[id]
		if !f.TryLock() {
			set.unlock()
			return nil, false
		}
		set.faces = append(set.faces, f)
	}

	return set, true
}

// MovedToTarget attempts the full atomic contraction of e = (u, v) onto
// e.Optimised/e.Target: acquire every vertex and face the collapse
// touches without blocking, re-validate the edge is still live, reject
// moves that would flip a surviving triangle, then merge v into u and
// drop the now-degenerate faces. Returns false (with every lock released
// again) whenever the contraction cannot proceed right now -- either lock
// contention or a geometric rejection -- so the caller can retry later via
// updateEdge, per spec §4.4 steps 1-9.
func MovedToTarget(m *mesh.Mesh, e *edge.Edge) bool {
	if !m.IsValidEdge(e.U, e.V) {
		return false
	}

	uv, okU := m.Vertex(e.U)
	vv, okV := m.Vertex(e.V)
	if !okU || !okV {
		return false
	}
	if uv.OnBorder != vv.OnBorder {
		return false
	}

	around := m.FacesAroundEdge(e.U, e.V)
	faceKeys := make([]mesh.FaceID, 0, len(around))
	for _, f := range around {
		faceKeys = append(faceKeys, f.ID)
	}

	set, ok := tryAcquire(m, e.U, e.V, faceKeys)
	if !ok {
		return false
	}
	defer set.unlock()

	if !m.IsValidEdge(e.U, e.V) {
		return false
	}

	shared := m.FacesForEdge(e.U, e.V)
	if len(shared) == 0 || len(shared) > 2 {
		return false
	}

	sharedSet := make(map[mesh.FaceID]struct{}, len(shared))
	for _, f := range shared {
		sharedSet[f.ID] = struct{}{}
	}

	for _, f := range set.faces {
		if _, isShared := sharedSet[f.ID]; isShared {
			continue
		}
		if f.HasVertex(e.V) && Flipped(m, f, e.V, e.Target) {
			return false
		}
		if f.HasVertex(e.U) && Flipped(m, f, e.U, e.Target) {
			return false
		}
	}

	u, ok := m.Vertex(e.U)
	if !ok {
		return false
	}
	v, ok := m.Vertex(e.V)
	if !ok {
		return false
	}

	u.Update(e.Optimised)
	u.Quadric = e.Quadric

	for _, f := range set.faces {
		if _, isShared := sharedSet[f.ID]; isShared {
			// f is already locked by set, so retire it inline rather than
			// through m.RemoveFace, which would lock it a second time.
			f.Invalid = true
			for _, vid := range f.Index {
				if vx, ok := m.Vertex(vid); ok {
					vx.RemoveFaceRef(f.ID)
				}
			}
			continue
		}
		if f.HasVertex(e.V) {
			f.Reconnect(e.V, e.U)
		}
	}

	for _, fid := range v.Faces() {
		if _, isShared := sharedSet[fid]; isShared {
			continue
		}
		u.AddFaceRef(fid)
	}

	m.RemoveVertex(e.V)
	return true
}

// MoveToCluster assigns v's ClusterID, the final step of basic
// partitioning (spec §4.6).
func MoveToCluster(m *mesh.Mesh, id mesh.VertexID, clusterID int) {
	if v, ok := m.Vertex(id); ok {
		v.ClusterID = clusterID
	}
}

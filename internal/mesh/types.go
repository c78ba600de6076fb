// Package mesh owns the vertex/face graph that the simplifier mutates. It is
// the single coordination point for ID allocation, removal and reindexing:
// worker goroutines hold a shared *Mesh and mutate it only through methods
// that acquire per-element locks, grounded on the teacher's WaitGroup/channel
// worker pool (renderer_parallel.go) generalised from render tiles to mesh
// elements, and on the original's garland::Mesh (models/mesh.h/.cpp).
package mesh

import (
	"sync"

	"github.com/Zielon/ParallelQSlim/internal/quadric"
	"github.com/Zielon/ParallelQSlim/internal/vecutil"
)

// VertexID and FaceID are stable integer identifiers. They are never
// reused within one Mesh lifetime except across a Reindex call.
type VertexID int
type FaceID int

// Vertex is the mesh's passive per-vertex record plus its own lock, the
// direct counterpart of garland::Vertex.
type Vertex struct {
	mu sync.Mutex

	ID        VertexID
	ClusterID int
	Invalid   bool
	OnBorder  bool

	Position vecutil.Vec3
	Normal   vecutil.Vec3
	Color    vecutil.Vec3

	Quadric *quadric.Quadric

	faces map[FaceID]struct{}
}

func newVertex(id VertexID, pos vecutil.Vec3) *Vertex {
	return &Vertex{
		ID:        id,
		ClusterID: -1,
		Position:  pos,
		faces:     make(map[FaceID]struct{}),
	}
}

// Lock/Unlock/TryLock expose the vertex's own mutex to the geometry kernel's
// locked contraction (MovedToTarget acquires these directly, in ascending
// id order, per spec §4.4 step 2).
func (v *Vertex) Lock()        { v.mu.Lock() }
func (v *Vertex) Unlock()      { v.mu.Unlock() }
func (v *Vertex) TryLock() bool { return v.mu.TryLock() }

// Attributes returns the concatenation (position, colour, normal), length 9.
func (v *Vertex) Attributes() []float64 {
	return []float64{
		v.Position.X(), v.Position.Y(), v.Position.Z(),
		v.Color.X(), v.Color.Y(), v.Color.Z(),
		v.Normal.X(), v.Normal.Y(), v.Normal.Z(),
	}
}

// Update writes position, and (if present) colour and normal, from an
// optimised attribute vector, in the order position/colour/normal per the
// original's Vertex::update.
func (v *Vertex) Update(attrs []float64) {
	if len(attrs) > 0 {
		v.Position = vecutil.New(attrs[0], attrs[1], attrs[2])
	}
	if len(attrs) > 3 {
		v.Color = vecutil.New(absf(attrs[3]), absf(attrs[4]), absf(attrs[5]))
	}
	if len(attrs) > 6 {
		v.Normal = vecutil.New(attrs[6], attrs[7], attrs[8])
	}
}

func absf(x float64) float64 {
	if x < 0 {
		return -x
	}
	return x
}

// AddQuadric adds other into the vertex's quadric, allocating if absent.
func (v *Vertex) AddQuadric(other *quadric.Quadric) {
	if other == nil {
		return
	}
	if v.Quadric == nil {
		v.Quadric = quadric.New(other.Dim)
	}
	v.Quadric.Add(other)
}

// Faces returns a snapshot slice of the face IDs currently incident to v.
func (v *Vertex) Faces() []FaceID {
	out := make([]FaceID, 0, len(v.faces))
	for f := range v.faces {
		out = append(out, f)
	}
	return out
}

func (v *Vertex) addFace(id FaceID)    { v.faces[id] = struct{}{} }
func (v *Vertex) removeFace(id FaceID) { delete(v.faces, id) }

// AddFaceRef and RemoveFaceRef are the exported forms used by the
// geometry kernel when it transfers face adjacency during a contraction.
func (v *Vertex) AddFaceRef(id FaceID)    { v.addFace(id) }
func (v *Vertex) RemoveFaceRef(id FaceID) { v.removeFace(id) }

// Face is the mesh's passive per-face record plus its own lock, the direct
// counterpart of garland::Face.
type Face struct {
	mu sync.Mutex

	ID         FaceID
	Index      [3]VertexID
	Invalid    bool
	OnBorder   bool
	Clustered  bool
	Normal     vecutil.Vec3
}

func newFace(id FaceID, a, b, c VertexID) *Face {
	return &Face{ID: id, Index: [3]VertexID{a, b, c}}
}

func (f *Face) Lock()         { f.mu.Lock() }
func (f *Face) Unlock()       { f.mu.Unlock() }
func (f *Face) TryLock() bool { return f.mu.TryLock() }

// HasVertex reports whether id is one of the face's three vertices.
func (f *Face) HasVertex(id VertexID) bool {
	return f.Index[0] == id || f.Index[1] == id || f.Index[2] == id
}

// Reconnect rewrites every occurrence of u in the face's index to v,
// the counterpart of garland::Face::reconnect.
func (f *Face) Reconnect(u, v VertexID) {
	for i, idx := range f.Index {
		if idx == u {
			f.Index[i] = v
		}
	}
}

// OppositeEdge returns the two vertices of the face other than id, the
// counterpart of garland::Face::getOppositeEdge (without the EdgeKey
// max/min canonicalisation, which callers apply if they need it).
func (f *Face) OppositeEdge(id VertexID) (VertexID, VertexID) {
	var others [2]VertexID
	n := 0
	for _, idx := range f.Index {
		if idx != id {
			others[n] = idx
			n++
		}
	}
	return others[0], others[1]
}

// AABB is an axis-aligned bounding box.
type AABB struct {
	ID  int
	Min vecutil.Vec3
	Max vecutil.Vec3
}

// NewEmptyAABB returns an AABB whose bounds are ready to be expanded by
// Expand, matching the original's +inf/-inf initial min/max.
func NewEmptyAABB() AABB {
	const inf = 1e308
	return AABB{
		Min: vecutil.New(inf, inf, inf),
		Max: vecutil.New(-inf, -inf, -inf),
	}
}

// Inside reports componentwise containment.
func (b AABB) Inside(p vecutil.Vec3) bool {
	return p.X() >= b.Min.X() && p.X() <= b.Max.X() &&
		p.Y() >= b.Min.Y() && p.Y() <= b.Max.Y() &&
		p.Z() >= b.Min.Z() && p.Z() <= b.Max.Z()
}

// Expand grows b to contain p.
func (b *AABB) Expand(p vecutil.Vec3) {
	b.Min = vecutil.New(minf(b.Min.X(), p.X()), minf(b.Min.Y(), p.Y()), minf(b.Min.Z(), p.Z()))
	b.Max = vecutil.New(maxf(b.Max.X(), p.X()), maxf(b.Max.Y(), p.Y()), maxf(b.Max.Z(), p.Z()))
}

func minf(a, b float64) float64 {
	if a < b {
		return a
	}
	return b
}

func maxf(a, b float64) float64 {
	if a > b {
		return a
	}
	return b
}

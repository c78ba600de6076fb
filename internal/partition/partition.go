// Package partition splits a mesh into spatial clusters so
// internal/simplify can drive one QSlim worker per cluster concurrently.
// Grounded on original_source/src/partition/{basic_partitioner.h,
// partitioner.h,cluster.h,aabb.h} for the uniform-grid scheme, and on the
// teacher's SimplifyMeshClustering (mesh_simplification.go) for the
// Go-side grid-bucket-by-position approach.
package partition

import (
	"math"
	"math/rand"
	"sort"

	"github.com/Zielon/ParallelQSlim/internal/geomkernel"
	"github.com/Zielon/ParallelQSlim/internal/mesh"
	"github.com/Zielon/ParallelQSlim/internal/vecutil"
)

// Cluster is one spatial partition cell: its bounds, a stable debug
// colour, and the vertex/face ids assigned to it.
type Cluster struct {
	ID         int
	AABB       mesh.AABB
	Color      vecutil.Vec3
	VertexKeys []mesh.VertexID
	FaceKeys   []mesh.FaceID
}

// Partitioner assigns every vertex of m to a ClusterID and returns the
// resulting clusters, generalising the original's template<class P> P
// parameter to a Go interface.
type Partitioner interface {
	Partition(m *mesh.Mesh, targetClusters int) []*Cluster
}

// BasicPartitioner buckets vertices into an f*f*f uniform grid over the
// mesh's bounding box, where f is the smallest integer with f^3 >=
// targetClusters.
type BasicPartitioner struct {
	rng *rand.Rand
}

// NewBasicPartitioner returns a partitioner whose debug cluster colours
// are deterministic for a given seed, so repeated runs over the same mesh
// produce identical coloured output.
func NewBasicPartitioner(seed int64) *BasicPartitioner {
	return &BasicPartitioner{rng: rand.New(rand.NewSource(seed))}
}

// Partition implements Partitioner.
func (p *BasicPartitioner) Partition(m *mesh.Mesh, targetClusters int) []*Cluster {
	if targetClusters < 1 {
		targetClusters = 1
	}
	f := int(math.Ceil(math.Cbrt(float64(targetClusters))))
	if f < 1 {
		f = 1
	}

	bounds := m.AABB()
	extent := bounds.Max.Sub(bounds.Min)
	for i := 0; i < 3; i++ {
		if extent[i] <= 0 {
			extent[i] = 1
		}
	}

	clusters := make(map[int]*Cluster)
	cellOf := func(pos vecutil.Vec3) int {
		rel := pos.Sub(bounds.Min)
		ix := cellIndex(rel.X(), extent.X(), f)
		iy := cellIndex(rel.Y(), extent.Y(), f)
		iz := cellIndex(rel.Z(), extent.Z(), f)
		return (ix*f+iy)*f + iz
	}

	for _, id := range m.VertexIDs() {
		v, ok := m.Vertex(id)
		if !ok || v.Invalid {
			continue
		}
		cid := cellOf(v.Position)
		geomkernel.MoveToCluster(m, id, cid)
		c := p.clusterFor(clusters, cid)
		c.VertexKeys = append(c.VertexKeys, id)
		c.AABB.Expand(v.Position)
	}

	for _, id := range m.FaceIDs() {
		face, ok := m.Face(id)
		if !ok || face.Invalid {
			continue
		}
		cid := majorityCluster(m, face)
		c := p.clusterFor(clusters, cid)
		c.FaceKeys = append(c.FaceKeys, id)
	}

	ids := make([]int, 0, len(clusters))
	for id := range clusters {
		ids = append(ids, id)
	}
	sort.Ints(ids)

	out := make([]*Cluster, 0, len(ids))
	for _, id := range ids {
		out = append(out, clusters[id])
	}
	return out
}

func (p *BasicPartitioner) clusterFor(clusters map[int]*Cluster, id int) *Cluster {
	if c, ok := clusters[id]; ok {
		return c
	}
	c := &Cluster{
		ID:    id,
		AABB:  mesh.NewEmptyAABB(),
		Color: vecutil.New(p.rng.Float64(), p.rng.Float64(), p.rng.Float64()),
	}
	clusters[id] = c
	return c
}

func cellIndex(rel, extent float64, f int) int {
	// A point exactly on a shared cell face goes to the lower-index cell.
	idx := int(math.Ceil(rel/extent*float64(f))) - 1
	if idx < 0 {
		idx = 0
	}
	if idx >= f {
		idx = f - 1
	}
	return idx
}

// majorityCluster returns the ClusterID shared by at least two of a
// face's three vertices, or the first vertex's cluster as a tie-break
// when all three disagree -- first-containing-AABB semantics, applied by
// iterating the face's own vertex order (spec §4.6).
func majorityCluster(m *mesh.Mesh, f *mesh.Face) int {
	counts := make(map[int]int, 3)
	order := make([]int, 0, 3)
	for _, vid := range f.Index {
		v, ok := m.Vertex(vid)
		if !ok {
			continue
		}
		if _, seen := counts[v.ClusterID]; !seen {
			order = append(order, v.ClusterID)
		}
		counts[v.ClusterID]++
	}
	for _, cid := range order {
		if counts[cid] >= 2 {
			return cid
		}
	}
	if len(order) > 0 {
		return order[0]
	}
	return 0
}

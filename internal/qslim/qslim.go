// Package qslim implements the sequential core of quadric-based edge
// contraction: accumulating per-vertex quadrics, building the candidate
// edge heap, and popping/applying contractions until a target is reached.
// One QSlim instance is the unit of work a single partition-cluster
// worker drives; internal/simplify fans these out across goroutines.
// Grounded on original_source/simplify_mesh/src/garland/q_slim.{h,cpp}
// and on the teacher's EdgeHeap-driven loop in mesh_simplification.go.
package qslim

import (
	"sync"

	"github.com/Zielon/ParallelQSlim/internal/edge"
	"github.com/Zielon/ParallelQSlim/internal/geomkernel"
	"github.com/Zielon/ParallelQSlim/internal/mesh"
	"github.com/Zielon/ParallelQSlim/internal/quadric"
)

// WeightMode selects how a face's contribution to its vertices' quadrics
// is scaled.
type WeightMode int

const (
	WeightNone WeightMode = iota
	WeightArea
)

// ErrorLevel is the shared cutoff above which no edge may be contracted,
// regardless of cluster. It is written once by internal/simplify.Run
// before any worker goroutine is spawned for a round and never again
// until every worker for that round has been joined; the `go` statement's
// happens-before edge is what makes that single unsynchronised write safe
// to read from every worker without a mutex, standing in for the
// original's explicit memory barrier around its global ERROR_LEVEL
// (spec §5).
var ErrorLevel float64 = 1e9

// QSlim drives quadric collection and greedy edge contraction over one
// mesh (or one partition's slice of it, when run under internal/simplify).
type QSlim struct {
	Mesh    *mesh.Mesh
	Flavour quadric.Flavour
	Weight  WeightMode

	mu       sync.Mutex
	heap     *edge.Heap
	byVertex map[mesh.VertexID]map[mesh.EdgeKey]*edge.Edge
}

// New returns a QSlim instance over m at the given quadric flavour and
// area-weighting mode.
func New(m *mesh.Mesh, flavour quadric.Flavour, weight WeightMode) *QSlim {
	return &QSlim{
		Mesh:     m,
		Flavour:  flavour,
		Weight:   weight,
		heap:     edge.NewHeap(),
		byVertex: make(map[mesh.VertexID]map[mesh.EdgeKey]*edge.Edge),
	}
}

// CollectQuadrics accumulates each face's fundamental quadric into its
// three vertices. The weighting switch is written with an explicit
// fallthrough, faithfully reproducing the original's behaviour: WeightArea
// scales the face quadric by its area before adding it, WeightNone adds
// it unscaled -- both paths add, only the scale differs (spec §9).
func (q *QSlim) CollectQuadrics(faceKeys []mesh.FaceID) {
	dim := q.Flavour.Dim()

	for _, key := range faceKeys {
		f, ok := q.Mesh.Face(key)
		if !ok || f.Invalid {
			continue
		}

		a, okA := q.Mesh.Vertex(f.Index[0])
		b, okB := q.Mesh.Vertex(f.Index[1])
		c, okC := q.Mesh.Vertex(f.Index[2])
		if !okA || !okB || !okC {
			continue
		}

		area := geomkernel.ComputeArea(a.Position, b.Position, c.Position)
		normal := geomkernel.ComputeNormal(a.Position, b.Position, c.Position)
		d := -normal.Dot(a.Position)

		var combined *quadric.Quadric
		if dim == quadric.Q3.Dim() {
			combined = quadric.FromPlane(normal, d)
		} else {
			pa := geomkernel.AttributesAt(q.Mesh, f.Index[0])(dim)
			pb := geomkernel.AttributesAt(q.Mesh, f.Index[1])(dim)
			pc := geomkernel.AttributesAt(q.Mesh, f.Index[2])(dim)
			e1, e2 := geomkernel.FaceTangentBasis(pa, pb, pc)
			combined = quadric.FromTangentBasis(pa, e1, e2)
		}

		switch q.Weight {
		case WeightArea:
			combined.Scale(area)
			fallthrough
		case WeightNone:
			a.AddQuadric(combined)
			b.AddQuadric(combined)
			c.AddQuadric(combined)
		}

		if f.OnBorder {
			q.addBorderPenalties(f)
		}
	}
}

func (q *QSlim) addBorderPenalties(f *mesh.Face) {
	idx := f.Index
	pairs := [3][2]mesh.VertexID{{idx[0], idx[1]}, {idx[1], idx[2]}, {idx[2], idx[0]}}
	for _, pr := range pairs {
		if !q.Mesh.IsBorderEdge(pr[0], pr[1]) {
			continue
		}
		penalty := geomkernel.BorderPenalty(q.Mesh, pr[0], pr[1], f)
		if u, ok := q.Mesh.Vertex(pr[0]); ok {
			u.AddQuadric(penalty)
		}
		if v, ok := q.Mesh.Vertex(pr[1]); ok {
			v.AddQuadric(penalty)
		}
	}
}

// CollectEdges builds one edge.Edge per geometric edge among faceKeys and
// indexes it by both endpoints, without touching the heap.
func (q *QSlim) CollectEdges(faceKeys []mesh.FaceID) []*edge.Edge {
	descriptors := q.Mesh.CreateEdges(faceKeys)
	out := make([]*edge.Edge, 0, len(descriptors))

	for _, d := range descriptors {
		u, okU := q.Mesh.Vertex(d.U)
		v, okV := q.Mesh.Vertex(d.V)
		if !okU || !okV {
			continue
		}
		e := edge.New(d.U, d.V, d.FaceID, u.Quadric, v.Quadric)
		e.ComputeOptimum(u.Attributes()[:q.Flavour.Dim()], v.Attributes()[:q.Flavour.Dim()])
		out = append(out, e)
		q.index(e)
	}
	return out
}

func (q *QSlim) index(e *edge.Edge) {
	q.mu.Lock()
	defer q.mu.Unlock()
	key := e.Key()
	for _, id := range [2]mesh.VertexID{e.U, e.V} {
		if q.byVertex[id] == nil {
			q.byVertex[id] = make(map[mesh.EdgeKey]*edge.Edge)
		}
		q.byVertex[id][key] = e
	}
}

func (q *QSlim) unindex(e *edge.Edge) {
	q.mu.Lock()
	defer q.mu.Unlock()
	key := e.Key()
	for _, id := range [2]mesh.VertexID{e.U, e.V} {
		if m := q.byVertex[id]; m != nil {
			delete(m, key)
		}
	}
}

// BuildHeap pushes every given edge onto the contraction heap.
func (q *QSlim) BuildHeap(edges []*edge.Edge) {
	q.mu.Lock()
	defer q.mu.Unlock()
	for _, e := range edges {
		q.heap.PushEdge(e)
	}
}

// EdgesForVertex returns the currently indexed candidate edges incident to
// v, a snapshot safe to range over after releasing the lock.
func (q *QSlim) EdgesForVertex(v mesh.VertexID) []*edge.Edge {
	q.mu.Lock()
	defer q.mu.Unlock()
	m := q.byVertex[v]
	out := make([]*edge.Edge, 0, len(m))
	for _, e := range m {
		out = append(out, e)
	}
	return out
}

// updateEdge recomputes e's optimum and cost and re-seats it in the heap,
// the only path by which an edge dropped from the heap (see
// ApplyContraction) can become a live candidate again.
func (q *QSlim) updateEdge(e *edge.Edge) {
	u, okU := q.Mesh.Vertex(e.U)
	v, okV := q.Mesh.Vertex(e.V)
	if !okU || !okV {
		q.unindex(e)
		return
	}

	dim := q.Flavour.Dim()
	e.Quadric = quadric.New(dim)
	e.Quadric.Add(u.Quadric)
	e.Quadric.Add(v.Quadric)
	e.ComputeOptimum(u.Attributes()[:dim], v.Attributes()[:dim])

	q.mu.Lock()
	q.heap.Erase(e)
	q.heap.PushEdge(e)
	q.mu.Unlock()
}

// RefreshNeighbourhood re-costs every candidate edge still incident to v
// after v absorbed another vertex during a contraction.
func (q *QSlim) RefreshNeighbourhood(v mesh.VertexID) {
	for _, e := range q.EdgesForVertex(v) {
		if !q.Mesh.IsValidEdge(e.U, e.V) {
			q.unindex(e)
			continue
		}
		q.updateEdge(e)
	}
}

// ApplyContraction pops the least-cost edge and attempts its contraction.
// It returns (true, true) on a successful collapse, (false, true) when an
// edge was popped but could not be applied this round (stale, cross-
// cluster, lock contention, or a flip), and (false, false) once the heap
// is empty or the popped edge's cost exceeds ErrorLevel.
//
// A popped-but-rejected edge is not re-pushed here: it is simply gone
// from the heap unless some later RefreshNeighbourhood call touches its
// endpoints again and re-seats it. This favours forward progress over
// exhaustiveness and mirrors the original's applyContraction, which pops
// before checking the cluster match (spec §9).
func (q *QSlim) ApplyContraction() (collapsed bool, popped bool) {
	q.mu.Lock()
	e := q.heap.PopMin()
	q.mu.Unlock()
	if e == nil {
		return false, false
	}
	if e.Cost > ErrorLevel {
		// The heap is cost-ordered, so nothing cheaper remains behind e:
		// treat the whole candidate set as exhausted rather than dropping
		// just this one edge.
		q.unindex(e)
		return false, false
	}

	if !q.Mesh.IsValidEdge(e.U, e.V) {
		q.unindex(e)
		return false, true
	}
	if !q.Mesh.SameCluster(e.U, e.V) {
		return false, true
	}

	if !geomkernel.MovedToTarget(q.Mesh, e) {
		return false, true
	}

	q.unindex(e)
	q.RefreshNeighbourhood(e.U)
	return true, true
}

// Len reports the number of candidate edges still in the heap.
func (q *QSlim) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.heap.Len()
}

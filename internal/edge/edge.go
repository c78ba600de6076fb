// Package edge models a candidate edge contraction: the pair of endpoints,
// its optimum target attributes, its collapse cost, and the heap slot it
// occupies while live. Grounded on the teacher's SimplificationEdge/EdgeHeap
// (mesh_simplification.go) for the mutable-key min-heap shape, generalised
// from a single xyz cost to the arbitrary-dimension quadric cost of
// garland::Edge (original_source/simplify_mesh/src/garland/models/edge.h).
package edge

import (
	"container/heap"

	"github.com/Zielon/ParallelQSlim/internal/mesh"
	"github.com/Zielon/ParallelQSlim/internal/quadric"
	"github.com/Zielon/ParallelQSlim/internal/vecutil"
)

// Edge is one candidate contraction, transient: it is never stored on the
// Mesh itself, only referenced from a QSlim worker's heap and per-vertex
// index.
type Edge struct {
	U, V   mesh.VertexID
	FaceID mesh.FaceID

	Quadric   *quadric.Quadric
	Optimised []float64
	Target    vecutil.Vec3
	Cost      float64

	InHeap bool
	index  int // maintained by container/heap; do not set directly
}

// Key returns the canonical undirected key for the edge.
func (e *Edge) Key() mesh.EdgeKey { return mesh.EdgeKeyOf(e.U, e.V) }

// New builds an edge for (u, v) with the combined quadric of their two
// vertex quadrics, ready for ComputeOptimum.
func New(u, v mesh.VertexID, faceID mesh.FaceID, qu, qv *quadric.Quadric) *Edge {
	e := &Edge{U: u, V: v, FaceID: faceID, index: -1}
	if qu != nil {
		e.Quadric = quadric.New(qu.Dim)
		e.Quadric.Add(qu)
		e.Quadric.Add(qv)
	}
	return e
}

// ComputeOptimum finds the edge's target attribute vector and cost. It
// first tries to solve the combined quadric for its true minimiser; if
// that fails (singular A, per spec §4.3 / testable property 6) it falls
// back to the cheaper of the two endpoints and their midpoint, evaluated
// under the same quadric -- the fallback the original takes when
// Eigen::FullPivLU reports non-invertible.
func (e *Edge) ComputeOptimum(attrsU, attrsV []float64) {
	if e.Quadric == nil {
		e.Optimised = attrsU
		e.Cost = 0
		e.setTarget()
		return
	}

	dim := e.Quadric.Dim
	candidate := make([]float64, dim)
	if e.Quadric.Optimise(candidate) {
		e.Optimised = candidate
		e.Cost = e.Quadric.Evaluate(candidate)
		e.setTarget()
		return
	}

	mid := make([]float64, dim)
	for i := 0; i < dim; i++ {
		mid[i] = 0.5 * (attrsU[i] + attrsV[i])
	}

	costU := e.Quadric.Evaluate(attrsU)
	costV := e.Quadric.Evaluate(attrsV)
	costMid := e.Quadric.Evaluate(mid)

	best, bestCost := attrsU, costU
	if costV < bestCost {
		best, bestCost = attrsV, costV
	}
	if costMid < bestCost {
		best, bestCost = mid, costMid
	}

	e.Optimised = best
	e.Cost = bestCost
	e.setTarget()
}

func (e *Edge) setTarget() {
	if len(e.Optimised) >= 3 {
		e.Target = vecutil.New(e.Optimised[0], e.Optimised[1], e.Optimised[2])
	}
}

// Heap is a binary min-heap of *Edge ordered by ascending Cost, breaking
// ties by canonical key for determinism. It implements container/heap's
// five methods plus Erase, which emulates the decrease-key operation Go's
// heap package lacks natively by removing the element at its current slot
// and letting callers re-Push a freshly costed edge (grounded on the
// teacher's EdgeHeap.Fix-by-index pattern in mesh_simplification.go).
type Heap struct {
	items []*Edge
}

// NewHeap returns an empty, ready-to-use heap.
func NewHeap() *Heap { return &Heap{} }

func (h *Heap) Len() int { return len(h.items) }

func (h *Heap) Less(i, j int) bool {
	a, b := h.items[i], h.items[j]
	if a.Cost != b.Cost {
		return a.Cost < b.Cost
	}
	ak, bk := a.Key(), b.Key()
	if ak.Hi != bk.Hi {
		return ak.Hi < bk.Hi
	}
	return ak.Lo < bk.Lo
}

func (h *Heap) Swap(i, j int) {
	h.items[i], h.items[j] = h.items[j], h.items[i]
	h.items[i].index = i
	h.items[j].index = j
}

func (h *Heap) Push(x any) {
	e := x.(*Edge)
	e.index = len(h.items)
	e.InHeap = true
	h.items = append(h.items, e)
}

func (h *Heap) Pop() any {
	n := len(h.items)
	e := h.items[n-1]
	h.items[n-1] = nil
	h.items = h.items[:n-1]
	e.index = -1
	e.InHeap = false
	return e
}

// PushEdge pushes e onto the heap, maintaining the heap invariant.
func (h *Heap) PushEdge(e *Edge) { heap.Push(h, e) }

// PopMin removes and returns the least-cost edge, or nil if empty.
func (h *Heap) PopMin() *Edge {
	if h.Len() == 0 {
		return nil
	}
	return heap.Pop(h).(*Edge)
}

// Erase removes e from wherever it currently sits in the heap. A no-op if
// e is not (or no longer) present -- callers use this before mutating an
// edge's cost and re-pushing it, since container/heap offers no in-place
// decrease-key.
func (h *Heap) Erase(e *Edge) {
	if !e.InHeap || e.index < 0 || e.index >= len(h.items) {
		return
	}
	heap.Remove(h, e.index)
}

// Peek returns the least-cost edge without removing it, or nil if empty.
func (h *Heap) Peek() *Edge {
	if h.Len() == 0 {
		return nil
	}
	return h.items[0]
}

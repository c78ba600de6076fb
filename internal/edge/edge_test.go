package edge

import (
	"testing"

	"github.com/Zielon/ParallelQSlim/internal/mesh"
	"github.com/Zielon/ParallelQSlim/internal/quadric"
	"gonum.org/v1/gonum/mat"
)

func newTestEdge(u, v mesh.VertexID, cost float64) *Edge {
	return &Edge{U: u, V: v, Cost: cost, index: -1}
}

func TestHeapPopsInAscendingCostOrder(t *testing.T) {
	h := NewHeap()
	costs := []float64{5, 1, 3, 2, 4}
	for i, c := range costs {
		h.PushEdge(newTestEdge(mesh.VertexID(i), mesh.VertexID(i+1), c))
	}

	var popped []float64
	for h.Len() > 0 {
		popped = append(popped, h.PopMin().Cost)
	}

	for i := 1; i < len(popped); i++ {
		if popped[i] < popped[i-1] {
			t.Fatalf("heap did not pop in ascending order: %v", popped)
		}
	}
	if len(popped) != len(costs) {
		t.Fatalf("expected %d pops, got %d", len(costs), len(popped))
	}
}

func TestEraseRemovesArbitraryElement(t *testing.T) {
	h := NewHeap()
	a := newTestEdge(0, 1, 1)
	b := newTestEdge(1, 2, 2)
	c := newTestEdge(2, 3, 3)
	h.PushEdge(a)
	h.PushEdge(b)
	h.PushEdge(c)

	h.Erase(b)
	if h.Len() != 2 {
		t.Fatalf("expected 2 elements after erase, got %d", h.Len())
	}
	if b.InHeap {
		t.Fatalf("erased edge should report InHeap == false")
	}

	first := h.PopMin()
	second := h.PopMin()
	if first != a || second != c {
		t.Fatalf("expected a then c after erasing b")
	}
}

func TestEraseOnAbsentEdgeIsNoop(t *testing.T) {
	h := NewHeap()
	a := newTestEdge(0, 1, 1)
	h.PushEdge(a)

	stray := newTestEdge(9, 10, 100)
	h.Erase(stray) // never pushed: InHeap is false

	if h.Len() != 1 {
		t.Fatalf("erase of a never-pushed edge must not touch the heap")
	}
}

func TestComputeOptimumFallsBackWithoutQuadric(t *testing.T) {
	e := &Edge{U: 0, V: 1, index: -1}
	attrsU := []float64{1, 2, 3}
	attrsV := []float64{4, 5, 6}
	e.ComputeOptimum(attrsU, attrsV)

	if e.Cost != 0 {
		t.Fatalf("expected zero cost with no quadric, got %v", e.Cost)
	}
	if e.Optimised[0] != attrsU[0] {
		t.Fatalf("expected fallback to attrsU")
	}
}

// TestComputeOptimumFallsBackOnSingularQuadric is spec §8 property 6: when
// A is singular, the chosen target is whichever of v_u, v_v, their midpoint
// evaluates cheapest under the combined quadric, not the true minimiser.
func TestComputeOptimumFallsBackOnSingularQuadric(t *testing.T) {
	q := quadric.New(3)
	q.B = mustVec(1, 1, 1)
	// A stays the zero matrix: singular by construction (rank 0), so
	// Optimise's LU factorisation reports it uninvertible.

	e := &Edge{U: 0, V: 1, Quadric: q, index: -1}
	attrsU := []float64{0, 0, 0}
	attrsV := []float64{2, 2, 2}
	e.ComputeOptimum(attrsU, attrsV)

	costU := q.Evaluate(attrsU)
	costV := q.Evaluate(attrsV)
	mid := []float64{1, 1, 1}
	costMid := q.Evaluate(mid)

	want := costU
	if costV < want {
		want = costV
	}
	if costMid < want {
		want = costMid
	}

	if e.Cost != want {
		t.Fatalf("expected fallback cost %v (min of u/v/mid), got %v", want, e.Cost)
	}
	if e.Optimised[0] != attrsU[0] || e.Optimised[1] != attrsU[1] || e.Optimised[2] != attrsU[2] {
		t.Fatalf("expected the fallback to pick attrsU (cheapest: cost 0), got %v", e.Optimised)
	}
}

func mustVec(x, y, z float64) *mat.VecDense {
	return mat.NewVecDense(3, []float64{x, y, z})
}

func TestKeyIsCanonical(t *testing.T) {
	a := newTestEdge(5, 2, 1)
	b := newTestEdge(2, 5, 1)
	if a.Key() != b.Key() {
		t.Fatalf("Key() should not depend on endpoint order")
	}
}

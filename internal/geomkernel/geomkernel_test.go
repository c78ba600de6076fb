package geomkernel

import (
	"math"
	"testing"

	"github.com/Zielon/ParallelQSlim/internal/edge"
	"github.com/Zielon/ParallelQSlim/internal/mesh"
	"github.com/Zielon/ParallelQSlim/internal/vecutil"
)

func buildFan(t *testing.T) (*mesh.Mesh, mesh.VertexID, []mesh.VertexID) {
	t.Helper()
	m := mesh.New()
	hub := m.NewVertex(vecutil.New(0, 0, 0))

	offsets := [6][2]float64{{1, 0}, {0.5, 0.87}, {-0.5, 0.87}, {-1, 0}, {-0.5, -0.87}, {0.5, -0.87}}
	rim := make([]mesh.VertexID, 6)
	for i, o := range offsets {
		rim[i] = m.NewVertex(vecutil.New(o[0], o[1], 0)).ID
	}
	for i := 0; i < 6; i++ {
		m.NewFace(hub.ID, rim[i], rim[(i+1)%6])
	}
	return m, hub.ID, rim
}

func TestComputeAreaOfUnitRightTriangle(t *testing.T) {
	p := vecutil.New(0, 0, 0)
	q := vecutil.New(1, 0, 0)
	r := vecutil.New(0, 1, 0)
	area := ComputeArea(p, q, r)
	if diff := area - 0.5; diff > 1e-6 || diff < -1e-6 {
		t.Fatalf("expected area 0.5, got %v", area)
	}
}

func TestComputeAreaDegenerateIsZero(t *testing.T) {
	p := vecutil.New(0, 0, 0)
	q := vecutil.New(1, 0, 0)
	r := vecutil.New(2, 0, 0) // collinear
	if area := ComputeArea(p, q, r); area > 1e-9 {
		t.Fatalf("expected ~0 area for collinear points, got %v", area)
	}
}

func TestComputeNormalPointsInExpectedDirection(t *testing.T) {
	p := vecutil.New(0, 0, 0)
	q := vecutil.New(1, 0, 0)
	r := vecutil.New(0, 1, 0)
	n := ComputeNormal(p, q, r)
	if n.Z() < 0.99 {
		t.Fatalf("expected +Z normal for CCW xy triangle, got %v", n)
	}
}

// buildIsoceles returns a-(-1,0,0), b-(1,0,0), c-(0,1,0) and the face
// (a,b,c). Rotating c's target around the a-b axis by angle theta (radians)
// changes the new-normal/old-normal dot product by exactly cos(theta),
// which is what makes the threshold math below exact instead of fudged.
func buildIsoceles(t *testing.T) (*mesh.Mesh, *mesh.Face, mesh.VertexID) {
	t.Helper()
	m := mesh.New()
	a := m.NewVertex(vecutil.New(-1, 0, 0))
	b := m.NewVertex(vecutil.New(1, 0, 0))
	c := m.NewVertex(vecutil.New(0, 1, 0))
	f := m.NewFace(a.ID, b.ID, c.ID)
	return m, f, c.ID
}

func rotatedTarget(theta float64) vecutil.Vec3 {
	return vecutil.New(0, math.Cos(theta), math.Sin(theta))
}

func TestFlippedDetectsFullInversion(t *testing.T) {
	m, f, c := buildIsoceles(t)
	if !Flipped(m, f, c, rotatedTarget(math.Pi)) {
		t.Fatalf("expected a 180 degree inversion to be flagged")
	}
}

func TestFlippedAllowsSmallRotation(t *testing.T) {
	m, f, c := buildIsoceles(t)
	if Flipped(m, f, c, rotatedTarget(0)) {
		t.Fatalf("did not expect an unmoved target to flip the triangle")
	}
}

// TestFlippedOrientationThreshold exercises the 0.2 dot-product threshold
// directly: a 75 degree rotation (cos ~= 0.259) stays above it, an 80
// degree rotation (cos ~= 0.174) falls below it. Neither is an inversion
// (dot < 0), so a whole-face old-vs-new normal dot<0 check would have
// wrongly accepted both.
func TestFlippedOrientationThreshold(t *testing.T) {
	m, f, c := buildIsoceles(t)

	below := 75.0 * math.Pi / 180.0
	if Flipped(m, f, c, rotatedTarget(below)) {
		t.Fatalf("expected a 75 degree rotation to stay within the orientation threshold")
	}

	above := 80.0 * math.Pi / 180.0
	if !Flipped(m, f, c, rotatedTarget(above)) {
		t.Fatalf("expected an 80 degree rotation to cross the orientation threshold")
	}
}

// TestFlippedRejectsDegenerateTarget moves c's target onto the line through
// a and b (but outside the segment), making uvec and vvec parallel -- the
// near-degenerate case the 0.999 threshold exists for, independent of any
// orientation change.
func TestFlippedRejectsDegenerateTarget(t *testing.T) {
	m, f, c := buildIsoceles(t)
	if !Flipped(m, f, c, vecutil.New(5, 0, 0)) {
		t.Fatalf("expected a collinear target to be rejected as degenerate")
	}
}

func TestCheckBorderMarksRimFace(t *testing.T) {
	m, hub, rim := buildFan(t)
	CheckBorder(m, rim[0], rim[1])

	rv0, _ := m.Vertex(rim[0])
	rv1, _ := m.Vertex(rim[1])
	if !rv0.OnBorder || !rv1.OnBorder {
		t.Fatalf("expected rim edge endpoints marked OnBorder")
	}

	hubVertex, _ := m.Vertex(hub)
	if hubVertex.OnBorder {
		t.Fatalf("hub should not be touched by a rim-only border check")
	}
}

func TestMovedToTargetMergesVertexAndDropsSharedFaces(t *testing.T) {
	m, hub, rim := buildFan(t)

	before := m.FaceCount()
	e := &edge.Edge{U: hub, V: rim[0]}
	e.Optimised = []float64{0, 0, 0}
	e.Target = vecutil.New(0, 0, 0)

	ok := MovedToTarget(m, e)
	if !ok {
		t.Fatalf("expected contraction to succeed")
	}

	if m.IsValidVertex(rim[0]) {
		t.Fatalf("rim[0] should be invalidated after being merged into hub")
	}
	if !m.IsValidVertex(hub) {
		t.Fatalf("hub should remain valid")
	}

	// The two faces incident to both hub and rim[0] collapse to degenerate
	// triangles and are removed; the rest survive, reconnected to hub.
	if want, got := before-2, countValidFaces(m); got != want {
		t.Fatalf("expected %d valid faces remaining, got %d", want, got)
	}
}

// TestMovedToTargetRefusesBorderStateMismatch builds a fan whose hub is
// interior and whose rim is entirely on the outer border, then checks that
// contracting a hub-rim edge (one endpoint OnBorder, the other not) is
// refused before any locks are taken.
func TestMovedToTargetRefusesBorderStateMismatch(t *testing.T) {
	m, hub, rim := buildFan(t)
	m.UpdateBorders()

	hubVertex, _ := m.Vertex(hub)
	rimVertex, _ := m.Vertex(rim[0])
	if hubVertex.OnBorder {
		t.Fatalf("expected hub to remain interior")
	}
	if !rimVertex.OnBorder {
		t.Fatalf("expected rim[0] to be on the border")
	}

	e := &edge.Edge{U: hub, V: rim[0]}
	e.Optimised = []float64{0, 0, 0}
	e.Target = vecutil.New(0, 0, 0)

	if MovedToTarget(m, e) {
		t.Fatalf("expected contraction across a border-state mismatch to be refused")
	}
}

func countValidFaces(m *mesh.Mesh) int {
	n := 0
	for _, id := range m.FaceIDs() {
		if m.IsValidFace(id) {
			n++
		}
	}
	return n
}

func TestMoveToClusterAssignsID(t *testing.T) {
	m, hub, _ := buildFan(t)
	MoveToCluster(m, hub, 7)
	v, _ := m.Vertex(hub)
	if v.ClusterID != 7 {
		t.Fatalf("expected ClusterID 7, got %d", v.ClusterID)
	}
}

package smooth

import (
	"testing"

	"github.com/Zielon/ParallelQSlim/internal/mesh"
	"github.com/Zielon/ParallelQSlim/internal/vecutil"
)

// buildNoisyPlane returns a flat grid with its centre vertex displaced
// upward, a single-spike noise case Taubin smoothing should flatten back
// down without shrinking the whole patch.
func buildNoisyPlane(t *testing.T) (*mesh.Mesh, mesh.VertexID) {
	t.Helper()
	m := mesh.New()
	const n = 5
	ids := make([][]mesh.VertexID, n)
	for i := 0; i < n; i++ {
		ids[i] = make([]mesh.VertexID, n)
		for j := 0; j < n; j++ {
			z := 0.0
			if i == n/2 && j == n/2 {
				z = 5.0
			}
			ids[i][j] = m.NewVertex(vecutil.New(float64(i), float64(j), z)).ID
		}
	}
	for i := 0; i < n-1; i++ {
		for j := 0; j < n-1; j++ {
			m.NewFace(ids[i][j], ids[i+1][j], ids[i+1][j+1])
			m.NewFace(ids[i][j], ids[i+1][j+1], ids[i][j+1])
		}
	}
	return m, ids[n/2][n/2]
}

func TestRunReducesSpikeHeight(t *testing.T) {
	m, center := buildNoisyPlane(t)
	before, _ := m.Vertex(center)
	beforeZ := before.Position.Z()

	Run(m, Options{Iterations: 5, Lambda: 0.33, Mu: -0.34})

	after, _ := m.Vertex(center)
	afterZ := after.Position.Z()

	if afterZ >= beforeZ {
		t.Fatalf("expected spike to flatten: before %v, after %v", beforeZ, afterZ)
	}
	if afterZ < 0 {
		t.Fatalf("did not expect the spike to overshoot below the plane: %v", afterZ)
	}
}

func TestDefaultOptionsAreUsable(t *testing.T) {
	o := DefaultOptions()
	if o.Iterations <= 0 {
		t.Fatalf("expected positive iteration count")
	}
	if o.Lambda <= 0 || o.Mu >= 0 {
		t.Fatalf("expected lambda positive and mu negative, got %+v", o)
	}
}

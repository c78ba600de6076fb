// Package smooth implements Taubin's lambda/mu low-pass mesh filter, run
// as an optional pre-pass before simplification to reduce high-frequency
// noise without the shrinkage a plain Laplacian pass introduces. Grounded
// on original_source/simplify_mesh/src/smooth/taubin.hpp for the two-step
// lambda-then-mu iteration; no OpenMesh (or other mesh-smoothing library)
// analogue exists anywhere in the example pack, so this operates directly
// on internal/mesh (DESIGN.md).
package smooth

import (
	"github.com/Zielon/ParallelQSlim/internal/mesh"
	"github.com/Zielon/ParallelQSlim/internal/vecutil"
)

// Options configures a Taubin smoothing pass. Lambda is the positive
// (shrinking) step and Mu the negative (inflating) step; Mu is normally
// set more negative than -Lambda so the two steps' volume changes cancel
// rather than compound.
type Options struct {
	Iterations int
	Lambda     float64
	Mu         float64
}

// DefaultOptions returns the standard Taubin parameters (lambda=0.33,
// mu=-0.34, 10 passes), a safe default when a caller wants noise
// reduction without tuning.
func DefaultOptions() Options {
	return Options{Iterations: 10, Lambda: 0.33, Mu: -0.34}
}

// Run smooths m in place for the configured number of lambda/mu pass
// pairs. It assumes adjacency (vertex.Faces()) is current, so callers
// should run it on a freshly-read or freshly-Updated mesh.
func Run(m *mesh.Mesh, opts Options) {
	for i := 0; i < opts.Iterations; i++ {
		step(m, opts.Lambda)
		step(m, opts.Mu)
	}
}

// step displaces every vertex toward (factor) the average of its
// one-ring neighbours' positions, computed from the current (not yet
// updated) positions so the pass is order-independent within itself.
func step(m *mesh.Mesh, factor float64) {
	ids := m.VertexIDs()
	displacement := make(map[mesh.VertexID]vecutil.Vec3, len(ids))

	for _, id := range ids {
		v, ok := m.Vertex(id)
		if !ok || v.Invalid {
			continue
		}
		neighbours := oneRing(m, id)
		if len(neighbours) == 0 {
			continue
		}
		var sum vecutil.Vec3
		for _, n := range neighbours {
			sum = sum.Add(n)
		}
		avg := sum.Mul(1.0 / float64(len(neighbours)))
		displacement[id] = avg.Sub(v.Position).Mul(factor)
	}

	for id, d := range displacement {
		if v, ok := m.Vertex(id); ok {
			v.Position = v.Position.Add(d)
		}
	}
}

// oneRing returns the positions of every vertex sharing a face with id,
// deduplicated.
func oneRing(m *mesh.Mesh, id mesh.VertexID) []vecutil.Vec3 {
	seen := make(map[mesh.VertexID]struct{})
	var out []vecutil.Vec3
	for _, f := range m.FacesForVertex(id) {
		for _, n := range f.Index {
			if n == id {
				continue
			}
			if _, ok := seen[n]; ok {
				continue
			}
			seen[n] = struct{}{}
			if nv, ok := m.Vertex(n); ok {
				out = append(out, nv.Position)
			}
		}
	}
	return out
}

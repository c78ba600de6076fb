package partition

import (
	"testing"

	"github.com/Zielon/ParallelQSlim/internal/mesh"
	"github.com/Zielon/ParallelQSlim/internal/vecutil"
)

func buildCube(t *testing.T) *mesh.Mesh {
	t.Helper()
	m := mesh.New()
	var ids []mesh.VertexID
	for _, corner := range [8][3]float64{
		{0, 0, 0}, {10, 0, 0}, {10, 10, 0}, {0, 10, 0},
		{0, 0, 10}, {10, 0, 10}, {10, 10, 10}, {0, 10, 10},
	} {
		ids = append(ids, m.NewVertex(vecutil.New(corner[0], corner[1], corner[2])).ID)
	}
	// two triangles per face of the cube is unnecessary for partition
	// testing; a handful of faces touching all 8 corners is enough.
	m.NewFace(ids[0], ids[1], ids[2])
	m.NewFace(ids[0], ids[2], ids[3])
	m.NewFace(ids[4], ids[5], ids[6])
	m.NewFace(ids[4], ids[6], ids[7])
	m.NewFace(ids[0], ids[1], ids[5])
	m.NewFace(ids[0], ids[5], ids[4])
	return m
}

func TestPartitionAssignsEveryVertexAClusterID(t *testing.T) {
	m := buildCube(t)
	p := NewBasicPartitioner(1)
	p.Partition(m, 8)

	for _, id := range m.VertexIDs() {
		v, _ := m.Vertex(id)
		if v.ClusterID < 0 {
			t.Fatalf("vertex %d was never assigned a cluster", id)
		}
	}
}

func TestPartitionSplitsWidelySeparatedCornersDifferently(t *testing.T) {
	m := buildCube(t)
	p := NewBasicPartitioner(1)
	clusters := p.Partition(m, 8)

	if len(clusters) < 2 {
		t.Fatalf("expected at least 2 clusters for 8 widely separated corners, got %d", len(clusters))
	}

	first, _ := m.Vertex(m.VertexIDs()[0])
	last, _ := m.Vertex(m.VertexIDs()[len(m.VertexIDs())-1])
	if first.ClusterID == last.ClusterID {
		t.Fatalf("expected corners (0,0,0) and (0,10,10) to land in different clusters")
	}
}

func TestPartitionIsDeterministicForAFixedSeed(t *testing.T) {
	m1 := buildCube(t)
	m2 := buildCube(t)

	c1 := NewBasicPartitioner(42).Partition(m1, 8)
	c2 := NewBasicPartitioner(42).Partition(m2, 8)

	if len(c1) != len(c2) {
		t.Fatalf("expected same cluster count for same seed, got %d vs %d", len(c1), len(c2))
	}
	for i := range c1 {
		if c1[i].Color != c2[i].Color {
			t.Fatalf("expected identical debug colours for a fixed seed")
		}
	}

	for _, id := range m1.VertexIDs() {
		v1, _ := m1.Vertex(id)
		v2, _ := m2.Vertex(id)
		if v1.ClusterID != v2.ClusterID {
			t.Fatalf("vertex %d: expected identical cluster assignment for a fixed seed, got %d vs %d", id, v1.ClusterID, v2.ClusterID)
		}
	}
}

func TestEveryFaceIsAssignedToSomeCluster(t *testing.T) {
	m := buildCube(t)
	p := NewBasicPartitioner(1)
	clusters := p.Partition(m, 8)

	total := 0
	for _, c := range clusters {
		total += len(c.FaceKeys)
	}
	if total != m.FaceCount() {
		t.Fatalf("expected every face assigned exactly once: got %d assignments for %d faces", total, m.FaceCount())
	}
}

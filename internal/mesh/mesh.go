package mesh

import (
	"sort"
	"sync"

	"github.com/Zielon/ParallelQSlim/internal/vecutil"
)

// EdgeKey is the canonical identifier of an undirected edge: (max(u,v),
// min(u,v)), so EdgeKeyOf(a,b) == EdgeKeyOf(b,a) always.
type EdgeKey struct {
	Hi VertexID
	Lo VertexID
}

// EdgeKeyOf builds the canonical key for the edge between a and b.
func EdgeKeyOf(a, b VertexID) EdgeKey {
	if a < b {
		a, b = b, a
	}
	return EdgeKey{Hi: a, Lo: b}
}

// EdgeDescriptor is the transient, mesh-local view of one geometric edge
// produced by CreateEdges: its two endpoints and one incident face id.
// It carries no cost/quadric/heap state -- those belong to edge.Edge, built
// on top of this by the QSlim worker.
type EdgeDescriptor struct {
	Key    EdgeKey
	U, V   VertexID
	FaceID FaceID
}

// Mesh owns every vertex and face record for its lifetime. Structural
// mutation of the vertex/face maps themselves is serialised by storeMu;
// per-element state (position, quadric, invalid flag, adjacency) is
// protected by each Vertex/Face's own lock. Callers normally hold an
// element's lock before mutating it, matching the original's
// boost::recursive_mutex-per-node discipline.
type Mesh struct {
	storeMu sync.RWMutex

	vertices map[VertexID]*Vertex
	faces    map[FaceID]*Face

	vertexOrder []VertexID
	faceOrder   []FaceID

	aabbMu sync.Mutex
	aabb   AABB

	nextVertexID VertexID
	nextFaceID   FaceID
}

// New returns an empty mesh.
func New() *Mesh {
	return &Mesh{
		vertices: make(map[VertexID]*Vertex),
		faces:    make(map[FaceID]*Face),
		aabb:     NewEmptyAABB(),
	}
}

// NewVertex allocates a fresh vertex with an auto-assigned id and inserts
// it. Used by readers and Clone; direct construction-time insertion where
// the caller already knows the id should use InsertVertex.
func (m *Mesh) NewVertex(pos vecutil.Vec3) *Vertex {
	m.storeMu.Lock()
	id := m.nextVertexID
	m.nextVertexID++
	v := newVertex(id, pos)
	m.vertices[id] = v
	m.vertexOrder = append(m.vertexOrder, id)
	m.storeMu.Unlock()
	m.UpdateAABB(pos)
	return v
}

// NewFace allocates a fresh face with an auto-assigned id, referencing the
// three given vertices, and inserts it.
func (m *Mesh) NewFace(a, b, c VertexID) *Face {
	m.storeMu.Lock()
	id := m.nextFaceID
	m.nextFaceID++
	f := newFace(id, a, b, c)
	m.faces[id] = f
	m.faceOrder = append(m.faceOrder, id)
	m.storeMu.Unlock()
	m.insertFaceAdjacency(f)
	return f
}

// InsertVertex clears v.Invalid and records v under its own id. Not
// thread-safe; used during construction/reindex, per spec §4.2.
func (m *Mesh) InsertVertex(v *Vertex) {
	v.Invalid = false
	if _, exists := m.vertices[v.ID]; !exists {
		m.vertexOrder = append(m.vertexOrder, v.ID)
	}
	m.vertices[v.ID] = v
	if v.ID >= m.nextVertexID {
		m.nextVertexID = v.ID + 1
	}
}

// InsertFace clears f.Invalid and adds f.ID to each of its three vertices'
// face sets. Not thread-safe; used during construction/reindex.
func (m *Mesh) InsertFace(f *Face) {
	f.Invalid = false
	if _, exists := m.faces[f.ID]; !exists {
		m.faceOrder = append(m.faceOrder, f.ID)
	}
	m.faces[f.ID] = f
	if f.ID >= m.nextFaceID {
		m.nextFaceID = f.ID + 1
	}
	m.insertFaceAdjacency(f)
}

func (m *Mesh) insertFaceAdjacency(f *Face) {
	for _, vid := range f.Index {
		if v, ok := m.vertices[vid]; ok {
			v.addFace(f.ID)
		}
	}
}

// RemoveFace marks f invalid and removes it from each incident vertex's
// face set. The record is retained until Update compacts it.
func (m *Mesh) RemoveFace(f *Face) {
	f.Lock()
	defer f.Unlock()
	f.Invalid = true
	for _, vid := range f.Index {
		if v, ok := m.vertices[vid]; ok {
			v.removeFace(f.ID)
		}
	}
}

// RemoveFaceByID is RemoveFace keyed by id.
func (m *Mesh) RemoveFaceByID(id FaceID) {
	if f, ok := m.faces[id]; ok {
		m.RemoveFace(f)
	}
}

// RemoveVertex marks the vertex invalid. Retained until Update compacts it.
func (m *Mesh) RemoveVertex(id VertexID) {
	if v, ok := m.vertices[id]; ok {
		v.Invalid = true
	}
}

// Vertex returns the vertex record for id, if any (valid or not).
func (m *Mesh) Vertex(id VertexID) (*Vertex, bool) {
	v, ok := m.vertices[id]
	return v, ok
}

// Face returns the face record for id, if any (valid or not).
func (m *Mesh) Face(id FaceID) (*Face, bool) {
	f, ok := m.faces[id]
	return f, ok
}

// IsValidVertex reports whether id exists and is not invalidated.
func (m *Mesh) IsValidVertex(id VertexID) bool {
	v, ok := m.vertices[id]
	return ok && !v.Invalid
}

// IsValidFace reports whether id exists and is not invalidated.
func (m *Mesh) IsValidFace(id FaceID) bool {
	f, ok := m.faces[id]
	return ok && !f.Invalid
}

// IsValidFaceRef reports whether the given face record is still valid.
func (m *Mesh) IsValidFaceRef(f *Face) bool {
	return m.IsValidFace(f.ID)
}

// IsValidEdge reports whether both endpoints of (u, v) are valid vertices.
func (m *Mesh) IsValidEdge(u, v VertexID) bool {
	return m.IsValidVertex(u) && m.IsValidVertex(v)
}

// SameCluster reports whether u and v share a ClusterID.
func (m *Mesh) SameCluster(u, v VertexID) bool {
	uv, uok := m.vertices[u]
	vv, vok := m.vertices[v]
	return uok && vok && uv.ClusterID == vv.ClusterID
}

// IsBorderEdge reports whether both endpoints are flagged OnBorder.
func (m *Mesh) IsBorderEdge(u, v VertexID) bool {
	uv, uok := m.vertices[u]
	vv, vok := m.vertices[v]
	return uok && vok && uv.OnBorder && vv.OnBorder
}

// FacesForVertex returns the currently valid faces incident to v.
func (m *Mesh) FacesForVertex(v VertexID) []*Face {
	vert, ok := m.vertices[v]
	if !ok {
		return nil
	}
	out := make([]*Face, 0, len(vert.faces))
	for fid := range vert.faces {
		if f, ok := m.faces[fid]; ok && !f.Invalid {
			out = append(out, f)
		}
	}
	return out
}

// FacesAroundEdge returns facesFor(u) ++ facesFor(v) as a multiset
// (duplicates are meaningful -- a face incident to both endpoints appears
// twice), per spec §4.2.
func (m *Mesh) FacesAroundEdge(u, v VertexID) []*Face {
	fu := m.FacesForVertex(u)
	fv := m.FacesForVertex(v)
	out := make([]*Face, 0, len(fu)+len(fv))
	out = append(out, fu...)
	out = append(out, fv...)
	return out
}

// FacesForEdge returns the 1 or 2 faces whose vertex set contains both u
// and v -- the intersection of facesFor(u) and facesFor(v).
func (m *Mesh) FacesForEdge(u, v VertexID) []*Face {
	around := m.FacesAroundEdge(u, v)
	seen := make(map[FaceID]int, len(around))
	order := make([]FaceID, 0, len(around))
	for _, f := range around {
		if _, ok := seen[f.ID]; !ok {
			order = append(order, f.ID)
		}
		seen[f.ID]++
	}
	result := make([]*Face, 0, 2)
	for _, id := range order {
		if seen[id] >= 2 {
			if f, ok := m.faces[id]; ok {
				result = append(result, f)
			}
		}
	}
	return result
}

// CreateEdges emits one EdgeDescriptor per geometric edge among the given
// faces' three directed edges, deduplicated by canonical key. Each face is
// briefly locked while its edges are read. When two faces in keys share an
// edge, the later face in keys wins the FaceID tag (matching the original's
// map-overwrite semantics) -- the choice is documented as arbitrary by spec
// §4.2, so this is a faithful, not just compatible, port.
func (m *Mesh) CreateEdges(faceKeys []FaceID) []EdgeDescriptor {
	byKey := make(map[EdgeKey]EdgeDescriptor)
	order := make([]EdgeKey, 0, len(faceKeys)*3)

	for _, key := range faceKeys {
		f, ok := m.faces[key]
		if !ok || f.Invalid {
			continue
		}

		f.Lock()
		idx := f.Index
		fid := f.ID
		f.Unlock()

		pairs := [3][2]VertexID{
			{idx[0], idx[1]},
			{idx[1], idx[2]},
			{idx[2], idx[0]},
		}
		for _, pr := range pairs {
			ek := EdgeKeyOf(pr[0], pr[1])
			if _, exists := byKey[ek]; !exists {
				order = append(order, ek)
			}
			byKey[ek] = EdgeDescriptor{Key: ek, U: pr[0], V: pr[1], FaceID: fid}
		}
	}

	result := make([]EdgeDescriptor, 0, len(order))
	for _, k := range order {
		result = append(result, byKey[k])
	}
	return result
}

// UpdateFaceNormals recomputes normals for the given faces in parallel; no
// locking is used because faces are partitioned by key across callers.
func (m *Mesh) UpdateFaceNormals(faceKeys []FaceID) {
	var wg sync.WaitGroup
	for _, key := range faceKeys {
		f, ok := m.faces[key]
		if !ok {
			continue
		}
		wg.Add(1)
		go func(f *Face) {
			defer wg.Done()
			p, okp := m.vertices[f.Index[0]]
			q, okq := m.vertices[f.Index[1]]
			r, okr := m.vertices[f.Index[2]]
			if !okp || !okq || !okr {
				return
			}
			f.Normal = computeNormal(p.Position, q.Position, r.Position)
		}(f)
	}
	wg.Wait()
}

func computeNormal(p, q, r vecutil.Vec3) vecutil.Vec3 {
	a := q.Sub(p)
	b := r.Sub(p)
	return vecutil.SafeNormalize(a.Cross(b))
}

// UpdateAABB expands the mesh's global bounding box to contain p.
func (m *Mesh) UpdateAABB(p vecutil.Vec3) {
	m.aabbMu.Lock()
	m.aabb.Expand(p)
	m.aabbMu.Unlock()
}

// AABB returns a snapshot of the mesh's global bounding box.
func (m *Mesh) AABB() AABB {
	m.aabbMu.Lock()
	defer m.aabbMu.Unlock()
	return m.aabb
}

// Position returns the current position of vertex id.
func (m *Mesh) Position(id VertexID) vecutil.Vec3 {
	return m.vertices[id].Position
}

// VertexCount / FaceCount report the live (non-compacted) store sizes,
// which include invalidated-but-not-yet-updated entries between
// contraction and the next Update call.
func (m *Mesh) VertexCount() int { return len(m.vertices) }
func (m *Mesh) FaceCount() int   { return len(m.faces) }

// ValidVertexCount counts only vertices not flagged invalid, useful for
// the outer loop's reduction bookkeeping during a pass (before Update
// compacts the stores).
func (m *Mesh) ValidVertexCount() int {
	n := 0
	for _, v := range m.vertices {
		if !v.Invalid {
			n++
		}
	}
	return n
}

// VertexIDs / FaceIDs return ids in stable insertion order (the
// counterpart of the original's ordered std::map<int,...> iteration,
// needed so Reindex and the PLY writer produce deterministic output
// despite Go's randomised map iteration order -- see SPEC_FULL §9).
func (m *Mesh) VertexIDs() []VertexID {
	out := make([]VertexID, len(m.vertexOrder))
	copy(out, m.vertexOrder)
	return out
}

func (m *Mesh) FaceIDs() []FaceID {
	out := make([]FaceID, len(m.faceOrder))
	copy(out, m.faceOrder)
	return out
}

// checkBorderEdge marks both endpoints and the sole incident face OnBorder
// when exactly one face contains both u and v. Lives on Mesh rather than
// the geometry kernel to avoid a mesh<->geomkernel import cycle; the
// geometry kernel exposes CheckBorder as a thin wrapper for spec-surface
// naming (spec §4.4).
func (m *Mesh) checkBorderEdge(u, v VertexID) bool {
	faces := m.FacesForEdge(u, v)
	if len(faces) != 1 {
		return false
	}
	if uv, ok := m.vertices[u]; ok {
		uv.OnBorder = true
	}
	if vv, ok := m.vertices[v]; ok {
		vv.OnBorder = true
	}
	faces[0].OnBorder = true
	return true
}

// CheckBorderEdge is the exported form used by internal/geomkernel.
func (m *Mesh) CheckBorderEdge(u, v VertexID) bool { return m.checkBorderEdge(u, v) }

// UpdateBorders recomputes the OnBorder flag for every face edge.
func (m *Mesh) UpdateBorders() {
	for _, key := range m.FaceIDs() {
		f, ok := m.faces[key]
		if !ok || f.Invalid {
			continue
		}
		idx := f.Index
		pairs := [3][2]VertexID{{idx[0], idx[1]}, {idx[1], idx[2]}, {idx[2], idx[0]}}
		for _, pr := range pairs {
			m.checkBorderEdge(pr[0], pr[1])
		}
	}
}

// Update is single-thread only. It compacts invalidated vertices/faces,
// resets surviving per-iteration state (OnBorder, Quadric, Normal), and
// recomputes face normals, accumulating each into its vertices' (now
// unnormalised) normal sum. Finally it re-runs UpdateBorders.
func (m *Mesh) Update() {
	var verticesToRemove []VertexID
	var facesToRemove []FaceID

	for id, v := range m.vertices {
		if v.Invalid {
			verticesToRemove = append(verticesToRemove, id)
			continue
		}
		v.OnBorder = false
		v.Quadric = nil
		v.Normal = vecutil.Zero()
	}

	for id, f := range m.faces {
		if f.Invalid {
			facesToRemove = append(facesToRemove, id)
			continue
		}
		f.OnBorder = false
		f.Clustered = false

		p, okp := m.vertices[f.Index[0]]
		q, okq := m.vertices[f.Index[1]]
		r, okr := m.vertices[f.Index[2]]
		if !okp || !okq || !okr {
			continue
		}

		n := computeNormal(p.Position, q.Position, r.Position)
		f.Normal = n
		p.Normal = p.Normal.Add(n)
		q.Normal = q.Normal.Add(n)
		r.Normal = r.Normal.Add(n)
	}

	for _, id := range facesToRemove {
		delete(m.faces, id)
	}
	for _, id := range verticesToRemove {
		delete(m.vertices, id)
	}
	m.compactOrder(verticesToRemove, facesToRemove)

	m.UpdateBorders()
}

func (m *Mesh) compactOrder(removedVerts []VertexID, removedFaces []FaceID) {
	if len(removedVerts) > 0 {
		removed := make(map[VertexID]struct{}, len(removedVerts))
		for _, id := range removedVerts {
			removed[id] = struct{}{}
		}
		out := m.vertexOrder[:0]
		for _, id := range m.vertexOrder {
			if _, gone := removed[id]; !gone {
				out = append(out, id)
			}
		}
		m.vertexOrder = out
	}
	if len(removedFaces) > 0 {
		removed := make(map[FaceID]struct{}, len(removedFaces))
		for _, id := range removedFaces {
			removed[id] = struct{}{}
		}
		out := m.faceOrder[:0]
		for _, id := range m.faceOrder {
			if _, gone := removed[id]; !gone {
				out = append(out, id)
			}
		}
		m.faceOrder = out
	}
}

// Reindex is single-thread only, called exactly once after the final
// iteration before writing. It walks vertices in iteration order assigning
// consecutive ids from 0, and rewrites every incident face's vertex index
// to the new id -- but, faithfully to the original (spec §9), never
// rewrites the store's own keys. Output (via internal/ply) is therefore
// consistent with vertex iteration order, not with the (now stale) map
// keys.
func (m *Mesh) Reindex() {
	newIndex := VertexID(0)
	for _, oldIndex := range m.VertexIDs() {
		for _, f := range m.FacesForVertex(oldIndex) {
			for i, idx := range f.Index {
				if idx == oldIndex {
					f.Index[i] = newIndex
				}
			}
		}
		newIndex++
	}
}

// Clone returns a deep copy of the mesh with freshly assigned, compact
// ids (0..n-1 for vertices and faces), grounded on the original's
// Mesh::getCopy (mesh.cpp) -- present in original_source but dropped from
// the distilled spec. Invalidated records are copied like valid ones.
func (m *Mesh) Clone() *Mesh {
	out := New()
	refs := make(map[VertexID]VertexID, len(m.vertices))

	ids := m.VertexIDs()
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	for _, old := range ids {
		v, ok := m.vertices[old]
		if !ok {
			continue
		}
		nv := out.NewVertex(v.Position)
		nv.Normal = v.Normal
		nv.Color = v.Color
		refs[old] = nv.ID
	}

	fids := m.FaceIDs()
	sort.Slice(fids, func(i, j int) bool { return fids[i] < fids[j] })
	for _, old := range fids {
		f, ok := m.faces[old]
		if !ok {
			continue
		}
		out.NewFace(refs[f.Index[0]], refs[f.Index[1]], refs[f.Index[2]])
	}

	return out
}

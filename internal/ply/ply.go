// Package ply reads and writes the Stanford PLY mesh format used as the
// simplifier's external interface (spec §6): binary little-endian input,
// ASCII output. No PLY library appears anywhere in the example pack, so
// this is built directly on encoding/binary and bufio -- a documented
// standard-library choice (DESIGN.md), not a default.
package ply

import (
	"bufio"
	"encoding/binary"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/Zielon/ParallelQSlim/internal/mesh"
	"github.com/Zielon/ParallelQSlim/internal/vecutil"
)

// Layout names the two vertex property layouts the simplifier accepts.
type Layout int

const (
	// Geometry is position-only: x, y, z.
	Geometry Layout = iota
	// GeometryColorNormal is position + normal + colour: x,y,z,nx,ny,nz,red,green,blue.
	GeometryColorNormal
)

func (l Layout) String() string {
	if l == GeometryColorNormal {
		return "geometry_color_normal"
	}
	return "geometry"
}

type header struct {
	layout      Layout
	vertexCount int
	faceCount   int
}

// Read parses a binary-little-endian PLY stream into a new Mesh.
func Read(r io.Reader) (*mesh.Mesh, Layout, error) {
	br := bufio.NewReader(r)
	h, err := readHeader(br)
	if err != nil {
		return nil, Geometry, err
	}

	m := mesh.New()
	ids := make([]mesh.VertexID, h.vertexCount)

	for i := 0; i < h.vertexCount; i++ {
		var x, y, z float32
		if err := readF32(br, &x, &y, &z); err != nil {
			return nil, h.layout, fmt.Errorf("ply: reading vertex %d: %w", i, err)
		}
		v := m.NewVertex(vecutil.New(float64(x), float64(y), float64(z)))

		if h.layout == GeometryColorNormal {
			var nx, ny, nz float32
			if err := readF32(br, &nx, &ny, &nz); err != nil {
				return nil, h.layout, fmt.Errorf("ply: reading normal %d: %w", i, err)
			}
			var red, green, blue uint8
			if err := binary.Read(br, binary.LittleEndian, &red); err != nil {
				return nil, h.layout, err
			}
			if err := binary.Read(br, binary.LittleEndian, &green); err != nil {
				return nil, h.layout, err
			}
			if err := binary.Read(br, binary.LittleEndian, &blue); err != nil {
				return nil, h.layout, err
			}
			v.Normal = vecutil.New(float64(nx), float64(ny), float64(nz))
			v.Color = vecutil.New(float64(red)/255, float64(green)/255, float64(blue)/255)
		}
		ids[i] = v.ID
	}

	for i := 0; i < h.faceCount; i++ {
		var count uint8
		if err := binary.Read(br, binary.LittleEndian, &count); err != nil {
			return nil, h.layout, fmt.Errorf("ply: reading face %d count: %w", i, err)
		}
		if count != 3 {
			return nil, h.layout, fmt.Errorf("ply: face %d is not a triangle (%d indices)", i, count)
		}
		var a, b, c int32
		if err := readI32(br, &a, &b, &c); err != nil {
			return nil, h.layout, fmt.Errorf("ply: reading face %d indices: %w", i, err)
		}
		if int(a) >= len(ids) || int(b) >= len(ids) || int(c) >= len(ids) || a < 0 || b < 0 || c < 0 {
			return nil, h.layout, fmt.Errorf("ply: face %d references out-of-range vertex", i)
		}
		m.NewFace(ids[a], ids[b], ids[c])
	}

	return m, h.layout, nil
}

func readF32(r io.Reader, vs ...*float32) error {
	for _, v := range vs {
		if err := binary.Read(r, binary.LittleEndian, v); err != nil {
			return err
		}
	}
	return nil
}

func readI32(r io.Reader, vs ...*int32) error {
	for _, v := range vs {
		if err := binary.Read(r, binary.LittleEndian, v); err != nil {
			return err
		}
	}
	return nil
}

func readHeader(br *bufio.Reader) (header, error) {
	var h header
	line, err := br.ReadString('\n')
	if err != nil || strings.TrimSpace(line) != "ply" {
		return h, fmt.Errorf("ply: missing magic header")
	}

	hasNormal, hasColor := false, false
	for {
		line, err = br.ReadString('\n')
		if err != nil {
			return h, fmt.Errorf("ply: truncated header: %w", err)
		}
		fields := strings.Fields(line)
		if len(fields) == 0 {
			continue
		}
		switch fields[0] {
		case "format":
			if len(fields) < 2 || fields[1] != "binary_little_endian" {
				return h, fmt.Errorf("ply: unsupported format %q", line)
			}
		case "element":
			if len(fields) < 3 {
				continue
			}
			n, err := strconv.Atoi(fields[2])
			if err != nil {
				return h, fmt.Errorf("ply: bad element count %q: %w", fields[2], err)
			}
			switch fields[1] {
			case "vertex":
				h.vertexCount = n
			case "face":
				h.faceCount = n
			}
		case "property":
			if len(fields) >= 3 {
				switch fields[2] {
				case "nx", "ny", "nz":
					hasNormal = true
				case "red", "green", "blue":
					hasColor = true
				}
			}
		case "end_header":
			if hasNormal && hasColor {
				h.layout = GeometryColorNormal
			} else {
				h.layout = Geometry
			}
			return h, nil
		}
	}
}

// Write emits m in ASCII PLY under the given layout. m must already have
// had Reindex called on it: Write trusts each face's vertex indices to be
// the final compact 0..n-1 range in the same order as VertexIDs(), per
// Mesh.Reindex's output-centric (not store-key) numbering (spec §9) --
// it does not re-derive output positions from the store's own keys.
func Write(w io.Writer, m *mesh.Mesh, layout Layout) error {
	bw := bufio.NewWriter(w)

	vertexIDs := m.VertexIDs()
	faceIDs := m.FaceIDs()

	fmt.Fprintln(bw, "ply")
	fmt.Fprintln(bw, "format ascii 1.0")
	fmt.Fprintf(bw, "element vertex %d\n", len(vertexIDs))
	fmt.Fprintln(bw, "property float x")
	fmt.Fprintln(bw, "property float y")
	fmt.Fprintln(bw, "property float z")
	if layout == GeometryColorNormal {
		fmt.Fprintln(bw, "property float nx")
		fmt.Fprintln(bw, "property float ny")
		fmt.Fprintln(bw, "property float nz")
		fmt.Fprintln(bw, "property uchar red")
		fmt.Fprintln(bw, "property uchar green")
		fmt.Fprintln(bw, "property uchar blue")
	}
	fmt.Fprintf(bw, "element face %d\n", len(faceIDs))
	fmt.Fprintln(bw, "property list uchar int vertex_indices")
	fmt.Fprintln(bw, "end_header")

	for _, id := range vertexIDs {
		v, ok := m.Vertex(id)
		if !ok {
			return fmt.Errorf("ply: missing vertex %d during write", id)
		}
		if layout == GeometryColorNormal {
			fmt.Fprintf(bw, "%g %g %g %g %g %g %d %d %d\n",
				v.Position.X(), v.Position.Y(), v.Position.Z(),
				v.Normal.X(), v.Normal.Y(), v.Normal.Z(),
				clampByte(v.Color.X()), clampByte(v.Color.Y()), clampByte(v.Color.Z()))
		} else {
			fmt.Fprintf(bw, "%g %g %g\n", v.Position.X(), v.Position.Y(), v.Position.Z())
		}
	}

	for _, id := range faceIDs {
		f, ok := m.Face(id)
		if !ok {
			continue
		}
		fmt.Fprintf(bw, "3 %d %d %d\n", f.Index[0], f.Index[1], f.Index[2])
	}

	return bw.Flush()
}

func clampByte(c float64) int {
	v := int(c*255 + 0.5)
	if v < 0 {
		return 0
	}
	if v > 255 {
		return 255
	}
	return v
}

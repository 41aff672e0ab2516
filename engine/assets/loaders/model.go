package loaders

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/go-gl/mathgl/mgl32"

	"github.com/spaghettifunk/shaderpixel/engine/renderer/metadata"
)

// ModelLoader reads Wavefront OBJ files: positions, texture coordinates,
// normals and polygonal faces. Materials and groups are ignored.
type ModelLoader struct{}

func (ml *ModelLoader) Load(path string) (*metadata.Mesh, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	mesh, err := ReadOBJ(f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	mesh.Name = filepath.Base(path)
	return mesh, nil
}

type objIndex struct {
	v, vt, vn int
}

// ReadOBJ parses an OBJ stream into an indexed triangle mesh. Faces with more
// than three corners are fanned, identical corners share one vertex, and
// missing normals are computed from the faces.
func ReadOBJ(r io.Reader) (*metadata.Mesh, error) {
	var (
		positions []mgl32.Vec3
		texCoords []mgl32.Vec2
		normals   []mgl32.Vec3
		mesh      = &metadata.Mesh{}
		lookup    = map[objIndex]uint32{}
		hasNormal = true
	)

	corner := func(tok string) (uint32, error) {
		idx, err := parseCorner(tok, len(positions), len(texCoords), len(normals))
		if err != nil {
			return 0, err
		}
		if i, ok := lookup[idx]; ok {
			return i, nil
		}
		v := metadata.Vertex{Position: positions[idx.v]}
		if idx.vt >= 0 {
			v.TexCoord = texCoords[idx.vt]
		}
		if idx.vn >= 0 {
			v.Normal = normals[idx.vn]
		} else {
			hasNormal = false
		}
		i := uint32(len(mesh.Vertices))
		mesh.Vertices = append(mesh.Vertices, v)
		lookup[idx] = i
		return i, nil
	}

	scanner := bufio.NewScanner(r)
	line := 0
	for scanner.Scan() {
		line++
		text := scanner.Text()
		if i := strings.IndexByte(text, '#'); i >= 0 {
			text = text[:i]
		}
		fields := strings.Fields(text)
		if len(fields) == 0 {
			continue
		}

		switch fields[0] {
		case "v":
			p, err := parseFloats(fields[1:], 3)
			if err != nil {
				return nil, fmt.Errorf("line %d: %w", line, err)
			}
			positions = append(positions, mgl32.Vec3{p[0], p[1], p[2]})
		case "vt":
			t, err := parseFloats(fields[1:], 2)
			if err != nil {
				return nil, fmt.Errorf("line %d: %w", line, err)
			}
			texCoords = append(texCoords, mgl32.Vec2{t[0], t[1]})
		case "vn":
			n, err := parseFloats(fields[1:], 3)
			if err != nil {
				return nil, fmt.Errorf("line %d: %w", line, err)
			}
			normals = append(normals, mgl32.Vec3{n[0], n[1], n[2]})
		case "f":
			if len(fields) < 4 {
				return nil, fmt.Errorf("line %d: face needs at least 3 corners", line)
			}
			ids := make([]uint32, 0, len(fields)-1)
			for _, tok := range fields[1:] {
				i, err := corner(tok)
				if err != nil {
					return nil, fmt.Errorf("line %d: %w", line, err)
				}
				ids = append(ids, i)
			}
			for k := 1; k+1 < len(ids); k++ {
				mesh.Indices = append(mesh.Indices, ids[0], ids[k], ids[k+1])
			}
		case "o", "g", "s", "mtllib", "usemtl", "l", "vp":
		default:
			return nil, fmt.Errorf("line %d: unknown statement %q", line, fields[0])
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	if !hasNormal {
		ComputeNormals(mesh)
	}
	return mesh, nil
}

func parseFloats(fields []string, n int) ([]float32, error) {
	if len(fields) < n {
		return nil, fmt.Errorf("expected %d numbers, found %d", n, len(fields))
	}
	out := make([]float32, n)
	for i := 0; i < n; i++ {
		f, err := strconv.ParseFloat(fields[i], 32)
		if err != nil {
			return nil, fmt.Errorf("invalid number %q", fields[i])
		}
		out[i] = float32(f)
	}
	return out, nil
}

// parseCorner resolves "v", "v/vt", "v//vn" or "v/vt/vn" into zero based
// indices, -1 for absent parts. Negative OBJ indices count from the end.
func parseCorner(tok string, nv, nvt, nvn int) (objIndex, error) {
	parts := strings.Split(tok, "/")
	if len(parts) > 3 {
		return objIndex{}, fmt.Errorf("invalid face corner %q", tok)
	}
	idx := objIndex{v: -1, vt: -1, vn: -1}
	resolve := func(s string, count int, what string) (int, error) {
		i, err := strconv.Atoi(s)
		if err != nil {
			return -1, fmt.Errorf("invalid %s index %q", what, s)
		}
		if i < 0 {
			i += count + 1
		}
		if i < 1 || i > count {
			return -1, fmt.Errorf("%s index %s out of range", what, s)
		}
		return i - 1, nil
	}

	var err error
	if idx.v, err = resolve(parts[0], nv, "vertex"); err != nil {
		return idx, err
	}
	if len(parts) > 1 && parts[1] != "" {
		if idx.vt, err = resolve(parts[1], nvt, "texture"); err != nil {
			return idx, err
		}
	}
	if len(parts) > 2 && parts[2] != "" {
		if idx.vn, err = resolve(parts[2], nvn, "normal"); err != nil {
			return idx, err
		}
	}
	return idx, nil
}

// ComputeNormals replaces every vertex normal by the normalized sum of the
// normals of the triangles using it.
func ComputeNormals(mesh *metadata.Mesh) {
	acc := make([]mgl32.Vec3, len(mesh.Vertices))
	for i := 0; i+2 < len(mesh.Indices); i += 3 {
		a, b, c := mesh.Indices[i], mesh.Indices[i+1], mesh.Indices[i+2]
		pa, pb, pc := mesh.Vertices[a].Position, mesh.Vertices[b].Position, mesh.Vertices[c].Position
		n := pb.Sub(pa).Cross(pc.Sub(pa))
		acc[a] = acc[a].Add(n)
		acc[b] = acc[b].Add(n)
		acc[c] = acc[c].Add(n)
	}
	for i := range mesh.Vertices {
		if acc[i].Len() > 0 {
			mesh.Vertices[i].Normal = acc[i].Normalize()
		}
	}
}

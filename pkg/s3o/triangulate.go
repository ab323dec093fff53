package s3o

// Triangulate rewrites the model so that every piece uses a plain
// triangle list. Triangle strips and quads are legacy encodings that the
// engine itself expands on load; editing pipelines only deal in triangles,
// so normalization is one-way.
func (m *Model) Triangulate() {
	if m.Root == nil {
		return
	}
	m.Root.Walk(func(p *Piece) { p.Triangulate() })
}

// Triangulate converts the piece's index list to triangles in place.
// The conversion is deterministic: the same input indices always produce
// the same triangle order, byte for byte.
func (p *Piece) Triangulate() {
	switch p.Primitive {
	case PrimitiveTriangles:
		// already triangles; drop any trailing partial triangle
		p.Indices = p.Indices[:len(p.Indices)/3*3]

	case PrimitiveTriangleStrips:
		p.Indices = expandStrips(p.Indices)
		p.Primitive = PrimitiveTriangles

	case PrimitiveQuads:
		if len(p.Indices)%4 != 0 {
			p.Indices = nil
			p.Primitive = PrimitiveTriangles
			return
		}
		out := make([]int32, 0, len(p.Indices)/4*6)
		for i := 0; i+3 < len(p.Indices); i += 4 {
			a, b, c, d := p.Indices[i], p.Indices[i+1], p.Indices[i+2], p.Indices[i+3]
			out = append(out, a, b, c, a, c, d)
		}
		p.Indices = out
		p.Primitive = PrimitiveTriangles
	}
}

// expandStrips expands one or more triangle strips into a triangle list.
// A stripRestart index ends the current strip. Winding alternates within a
// strip and is corrected on odd triangles so all faces keep the winding of
// the first.
func expandStrips(indices []int32) []int32 {
	out := make([]int32, 0, len(indices)*3)
	start := 0
	for i := 0; i <= len(indices); i++ {
		if i < len(indices) && indices[i] != stripRestart {
			continue
		}
		strip := indices[start:i]
		for k := 0; k+2 < len(strip); k++ {
			a, b, c := strip[k], strip[k+1], strip[k+2]
			if a == b || b == c || a == c {
				continue // degenerate stitch triangle
			}
			if k%2 == 0 {
				out = append(out, a, b, c)
			} else {
				out = append(out, b, a, c)
			}
		}
		start = i + 1
	}
	return out
}

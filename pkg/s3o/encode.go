package s3o

import (
	"encoding/binary"
	"errors"
	"fmt"
	gomath "math"
	"strings"
)

// Encode errors. Encoding never produces partial output: the buffer is
// fully built in memory and only returned on success.
var (
	ErrNoRootPiece   = errors.New("s3o model has no root piece")
	ErrNameInvalid   = errors.New("piece name is too long or contains NUL")
	ErrIndexRange    = errors.New("piece index references a missing vertex")
	ErrCountOverflow = errors.New("piece element count overflows format field")
)

// maxNameLen bounds serialized piece names. The format itself only
// requires NUL termination but the engine reads names into fixed buffers.
const maxNameLen = 255

// Encode serializes the model into the s3o byte layout.
//
// Layout is canonical: header, texture names, then pieces depth-first with
// each piece's name, child-offset table, vertices and indices packed
// immediately after its header. Decoding and re-encoding an unmodified
// model reproduces the original bytes.
func (m *Model) Encode() ([]byte, error) {
	if m.Root == nil {
		return nil, ErrNoRootPiece
	}

	if err := m.validate(); err != nil {
		return nil, err
	}

	tex1 := append([]byte(m.TexturePath1), 0)
	tex2 := append([]byte(m.TexturePath2), 0)

	tex1Offset := int32(headerSize)
	tex2Offset := tex1Offset + int32(len(tex1))
	rootOffset := tex2Offset + int32(len(tex2))

	data := make([]byte, headerSize, headerSize+len(tex1)+len(tex2))
	copy(data[0:12], magic[:])
	putI32(data, 12, 0) // version
	putF32(data, 16, m.CollisionRadius)
	putF32(data, 20, m.Height)
	putF32(data, 24, m.Midpoint[0])
	putF32(data, 28, m.Midpoint[1])
	putF32(data, 32, m.Midpoint[2])
	putI32(data, 36, rootOffset)
	putI32(data, 40, 0) // collision data, unimplemented by the format
	putI32(data, 44, tex1Offset)
	putI32(data, 48, tex2Offset)

	data = append(data, tex1...)
	data = append(data, tex2...)

	return appendPiece(data, m.Root)
}

func (m *Model) validate() error {
	var err error
	m.Root.Walk(func(p *Piece) {
		if err != nil {
			return
		}
		if len(p.Name) > maxNameLen || strings.IndexByte(p.Name, 0) >= 0 {
			err = fmt.Errorf("%w: %q", ErrNameInvalid, p.Name)
			return
		}
		if len(p.Vertices) > gomath.MaxInt32 || len(p.Indices) > gomath.MaxInt32 {
			err = fmt.Errorf("%w: piece %q", ErrCountOverflow, p.Name)
			return
		}
		for _, idx := range p.Indices {
			if idx == stripRestart && p.Primitive == PrimitiveTriangleStrips {
				continue
			}
			if idx < 0 || int(idx) >= len(p.Vertices) {
				err = fmt.Errorf("%w: piece %q index %d of %d vertices",
					ErrIndexRange, p.Name, idx, len(p.Vertices))
				return
			}
		}
	})
	return err
}

// appendPiece serializes p at the current end of data and returns the
// grown buffer. Child offsets are unknown until the children themselves
// are serialized, so the child table is written twice: placeholders first,
// then patched with real offsets.
func appendPiece(data []byte, p *Piece) ([]byte, error) {
	base := int32(len(data))

	nameOffset := base + pieceHeaderSize
	name := append([]byte(p.Name), 0)
	childTableOffset := nameOffset + int32(len(name))
	vertexOffset := childTableOffset + int32(len(p.Children))*childRefSize
	indexOffset := vertexOffset + int32(len(p.Vertices))*vertexSize

	header := make([]byte, pieceHeaderSize)
	putI32(header, 0, nameOffset)
	putI32(header, 4, int32(len(p.Children)))
	putI32(header, 8, childTableOffset)
	putI32(header, 12, int32(len(p.Vertices)))
	putI32(header, 16, vertexOffset)
	putI32(header, 20, 0) // vertex type, unimplemented by the format
	putI32(header, 24, int32(p.Primitive))
	putI32(header, 28, int32(len(p.Indices)))
	putI32(header, 32, indexOffset)
	putI32(header, 36, 0) // collision data, unimplemented by the format
	putF32(header, 40, p.ParentOffset[0])
	putF32(header, 44, p.ParentOffset[1])
	putF32(header, 48, p.ParentOffset[2])

	data = append(data, header...)
	data = append(data, name...)
	data = append(data, make([]byte, len(p.Children)*childRefSize)...)

	vbuf := make([]byte, vertexSize)
	for _, v := range p.Vertices {
		putF32(vbuf, 0, v.Position[0])
		putF32(vbuf, 4, v.Position[1])
		putF32(vbuf, 8, v.Position[2])
		putF32(vbuf, 12, v.Normal[0])
		putF32(vbuf, 16, v.Normal[1])
		putF32(vbuf, 20, v.Normal[2])
		putF32(vbuf, 24, v.TexCoord[0])
		putF32(vbuf, 28, v.TexCoord[1])
		data = append(data, vbuf...)
	}

	ibuf := make([]byte, indexSize)
	for _, idx := range p.Indices {
		putI32(ibuf, 0, idx)
		data = append(data, ibuf...)
	}

	for i, child := range p.Children {
		childOffset := int32(len(data))
		putI32(data, childTableOffset+int32(i)*childRefSize, childOffset)

		var err error
		if data, err = appendPiece(data, child); err != nil {
			return nil, err
		}
	}

	return data, nil
}

func putI32(data []byte, offset, v int32) {
	binary.LittleEndian.PutUint32(data[offset:], uint32(v))
}

func putF32(data []byte, offset int32, v float32) {
	binary.LittleEndian.PutUint32(data[offset:], gomath.Float32bits(v))
}

package s3o

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	gomath "math"

	"github.com/go-gl/mathgl/mgl32"
)

// Format errors reported by Decode. All are wrapped with byte-offset and
// piece-name context where available.
var (
	ErrBadMagic      = errors.New("invalid s3o magic: expected \"Spring unit\"")
	ErrBadVersion    = errors.New("unsupported s3o version")
	ErrTruncated     = errors.New("truncated s3o data")
	ErrBadOffset     = errors.New("s3o offset outside file bounds")
	ErrCyclicPieces  = errors.New("s3o piece offsets form a cycle")
	ErrTooManyPieces = errors.New("s3o piece count exceeds sanity limit")
)

const (
	headerSize      = 52 // magic[12] + version + 5 floats + 4 offsets
	pieceHeaderSize = 52 // 10 int32 fields + 3 float32 offset
	vertexSize      = 32 // 3f position + 3f normal + 2f texcoord
	indexSize       = 4
	childRefSize    = 4

	// maxPieces bounds the piece walk so that corrupt offset chains cannot
	// blow up memory before cycle detection kicks in.
	maxPieces = 10000
)

var magic = [12]byte{'S', 'p', 'r', 'i', 'n', 'g', ' ', 'u', 'n', 'i', 't', 0}

// Decode parses a complete s3o file held in memory.
//
// The piece graph is walked by following absolute byte offsets; every
// referenced range is bounds checked and re-visited piece offsets are
// rejected, so corrupt files fail cleanly instead of looping or reading
// out of range.
func Decode(data []byte) (*Model, error) {
	if len(data) < headerSize {
		return nil, fmt.Errorf("%w: %d byte header, need %d", ErrTruncated, len(data), headerSize)
	}

	if !bytes.Equal(data[0:12], magic[:]) {
		return nil, ErrBadMagic
	}

	version := readI32(data, 12)
	if version != 0 {
		return nil, fmt.Errorf("%w: %d", ErrBadVersion, version)
	}

	m := &Model{
		CollisionRadius: readF32(data, 16),
		Height:          readF32(data, 20),
		Midpoint: mgl32.Vec3{
			readF32(data, 24),
			readF32(data, 28),
			readF32(data, 32),
		},
	}

	rootOffset := readI32(data, 36)
	tex1Offset := readI32(data, 44)
	tex2Offset := readI32(data, 48)

	var err error
	if m.TexturePath1, err = readCString(data, tex1Offset); err != nil {
		return nil, fmt.Errorf("texture 1 name: %w", err)
	}
	if m.TexturePath2, err = readCString(data, tex2Offset); err != nil {
		return nil, fmt.Errorf("texture 2 name: %w", err)
	}

	dec := &decoder{data: data, seen: make(map[int32]bool)}
	if m.Root, err = dec.piece(rootOffset); err != nil {
		return nil, err
	}

	return m, nil
}

type decoder struct {
	data  []byte
	seen  map[int32]bool
	count int
}

func (d *decoder) piece(offset int32) (*Piece, error) {
	if offset < 0 || int(offset)+pieceHeaderSize > len(d.data) {
		return nil, fmt.Errorf("%w: piece header at %d", ErrBadOffset, offset)
	}
	if d.seen[offset] {
		return nil, fmt.Errorf("%w: piece at %d referenced twice", ErrCyclicPieces, offset)
	}
	d.seen[offset] = true

	if d.count++; d.count > maxPieces {
		return nil, ErrTooManyPieces
	}

	data := d.data
	nameOffset := readI32(data, offset)
	numChildren := readI32(data, offset+4)
	childrenOffset := readI32(data, offset+8)
	numVertices := readI32(data, offset+12)
	vertexOffset := readI32(data, offset+16)
	primitive := PrimitiveType(readI32(data, offset+24))
	numIndices := readI32(data, offset+28)
	indexOffset := readI32(data, offset+32)

	p := &Piece{
		Primitive: primitive,
		ParentOffset: mgl32.Vec3{
			readF32(data, offset+40),
			readF32(data, offset+44),
			readF32(data, offset+48),
		},
	}

	var err error
	if p.Name, err = readCString(data, nameOffset); err != nil {
		return nil, fmt.Errorf("piece at %d: name: %w", offset, err)
	}

	if numVertices < 0 || numIndices < 0 || numChildren < 0 {
		return nil, fmt.Errorf("%w: piece %q has negative counts", ErrBadOffset, p.Name)
	}

	end := int64(vertexOffset) + int64(numVertices)*vertexSize
	if numVertices > 0 && (vertexOffset < 0 || end > int64(len(data))) {
		return nil, fmt.Errorf("%w: piece %q vertices at %d", ErrBadOffset, p.Name, vertexOffset)
	}
	p.Vertices = make([]Vertex, numVertices)
	for i := range p.Vertices {
		at := vertexOffset + int32(i)*vertexSize
		p.Vertices[i] = Vertex{
			Position: mgl32.Vec3{readF32(data, at), readF32(data, at+4), readF32(data, at+8)},
			Normal:   mgl32.Vec3{readF32(data, at+12), readF32(data, at+16), readF32(data, at+20)},
			TexCoord: mgl32.Vec2{readF32(data, at+24), readF32(data, at+28)},
		}
	}

	end = int64(indexOffset) + int64(numIndices)*indexSize
	if numIndices > 0 && (indexOffset < 0 || end > int64(len(data))) {
		return nil, fmt.Errorf("%w: piece %q indices at %d", ErrBadOffset, p.Name, indexOffset)
	}
	p.Indices = make([]int32, numIndices)
	for i := range p.Indices {
		idx := readI32(data, indexOffset+int32(i)*indexSize)
		if idx < 0 || idx >= numVertices {
			// the restart marker is only meaningful inside strip pieces
			if idx != stripRestart || primitive != PrimitiveTriangleStrips {
				return nil, fmt.Errorf("%w: piece %q index %d out of range", ErrBadOffset, p.Name, idx)
			}
		}
		p.Indices[i] = idx
	}

	end = int64(childrenOffset) + int64(numChildren)*childRefSize
	if numChildren > 0 && (childrenOffset < 0 || end > int64(len(data))) {
		return nil, fmt.Errorf("%w: piece %q child list at %d", ErrBadOffset, p.Name, childrenOffset)
	}
	p.Children = make([]*Piece, 0, numChildren)
	for i := int32(0); i < numChildren; i++ {
		childAt := readI32(data, childrenOffset+i*childRefSize)
		child, err := d.piece(childAt)
		if err != nil {
			return nil, fmt.Errorf("piece %q: %w", p.Name, err)
		}
		p.Children = append(p.Children, child)
	}

	return p, nil
}

// readCString extracts a NUL-terminated string starting at offset.
// Offset 0 encodes the empty string (the format reuses the magic's first
// byte slot as a null reference).
func readCString(data []byte, offset int32) (string, error) {
	if offset == 0 {
		return "", nil
	}
	if offset < 0 || int(offset) >= len(data) {
		return "", fmt.Errorf("%w: string at %d", ErrBadOffset, offset)
	}
	end := bytes.IndexByte(data[offset:], 0)
	if end < 0 {
		return "", fmt.Errorf("%w: unterminated string at %d", ErrTruncated, offset)
	}
	return string(data[offset : int(offset)+end]), nil
}

func readI32(data []byte, offset int32) int32 {
	return int32(binary.LittleEndian.Uint32(data[offset:]))
}

func readF32(data []byte, offset int32) float32 {
	return gomath.Float32frombits(binary.LittleEndian.Uint32(data[offset:]))
}

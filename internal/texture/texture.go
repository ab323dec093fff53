// Package texture locates and decodes the textures a model references.
// s3o files store bare file names authored on case-insensitive
// filesystems, so lookup ignores case; a missing or undecodable texture
// is reported as a typed error the caller can log and skip.
package texture

import (
	"fmt"
	"image"
	"image/png"
	"os"
	"path/filepath"
	"strings"

	"github.com/ftrvxmtrx/tga"
	"golang.org/x/image/bmp"
)

// NotFoundError reports a texture name with no matching file in the
// search directory. It is non-fatal: a model without textures on disk
// is still fully editable.
type NotFoundError struct {
	Name string
	Dir  string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("texture %q not found in %s", e.Name, e.Dir)
}

// UnsupportedError reports a texture whose file extension has no
// decoder.
type UnsupportedError struct {
	Path string
}

func (e *UnsupportedError) Error() string {
	return fmt.Sprintf("no decoder for texture %q", e.Path)
}

// Texture is one resolved texture image.
type Texture struct {
	// Name is the file name as stored in the model.
	Name string
	// Path is the file that actually matched, with its on-disk casing.
	Path  string
	Image image.Image
}

// Resolved holds the outcome of resolving a model's texture pair.
// Either entry is nil when the model leaves that slot empty.
type Resolved struct {
	Color *Texture // texture 1, the color map
	Extra *Texture // texture 2, team color and shading masks
}

// Resolve looks up and decodes the model's two texture names inside
// dir. An empty name resolves to nil without error.
func Resolve(dir, tex1, tex2 string) (Resolved, error) {
	var res Resolved
	var err error

	if tex1 != "" {
		if res.Color, err = load(dir, tex1); err != nil {
			return res, err
		}
	}
	if tex2 != "" {
		if res.Extra, err = load(dir, tex2); err != nil {
			return res, err
		}
	}
	return res, nil
}

func load(dir, name string) (*Texture, error) {
	path, err := findFile(dir, name)
	if err != nil {
		return nil, err
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open texture: %w", err)
	}
	defer f.Close()

	var img image.Image
	switch strings.ToLower(filepath.Ext(path)) {
	case ".png":
		img, err = png.Decode(f)
	case ".bmp":
		img, err = bmp.Decode(f)
	case ".tga":
		img, err = tga.Decode(f)
	default:
		return nil, &UnsupportedError{Path: path}
	}
	if err != nil {
		return nil, fmt.Errorf("decode texture %q: %w", path, err)
	}

	return &Texture{Name: name, Path: path, Image: img}, nil
}

// findFile matches name inside dir ignoring case.
func findFile(dir, name string) (string, error) {
	// exact match first, the cheap common case
	direct := filepath.Join(dir, name)
	if _, err := os.Stat(direct); err == nil {
		return direct, nil
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		return "", fmt.Errorf("read texture dir: %w", err)
	}
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		if strings.EqualFold(e.Name(), name) {
			return filepath.Join(dir, e.Name()), nil
		}
	}
	return "", &NotFoundError{Name: name, Dir: dir}
}

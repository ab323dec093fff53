package texture

import (
	"errors"
	"image"
	"image/color"
	"image/png"
	"os"
	"path/filepath"
	"testing"

	"github.com/ftrvxmtrx/tga"
	"golang.org/x/image/bmp"
)

func writeImage(t *testing.T, dir, name string, encode func(*os.File, image.Image) error) {
	t.Helper()

	img := image.NewNRGBA(image.Rect(0, 0, 4, 4))
	for y := 0; y < 4; y++ {
		for x := 0; x < 4; x++ {
			img.Set(x, y, color.NRGBA{R: uint8(x * 60), G: uint8(y * 60), A: 255})
		}
	}

	f, err := os.Create(filepath.Join(dir, name))
	if err != nil {
		t.Fatalf("create %s: %v", name, err)
	}
	defer f.Close()
	if err := encode(f, img); err != nil {
		t.Fatalf("encode %s: %v", name, err)
	}
}

func encodePNG(f *os.File, img image.Image) error { return png.Encode(f, img) }
func encodeBMP(f *os.File, img image.Image) error { return bmp.Encode(f, img) }
func encodeTGA(f *os.File, img image.Image) error { return tga.Encode(f, img) }

func TestResolve_Formats(t *testing.T) {
	dir := t.TempDir()
	writeImage(t, dir, "unit_color.png", encodePNG)
	writeImage(t, dir, "unit_mask.bmp", encodeBMP)
	writeImage(t, dir, "unit_alt.tga", encodeTGA)

	tests := []struct {
		name       string
		tex1, tex2 string
	}{
		{"png and bmp", "unit_color.png", "unit_mask.bmp"},
		{"tga", "unit_alt.tga", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res, err := Resolve(dir, tt.tex1, tt.tex2)
			if err != nil {
				t.Fatalf("Resolve failed: %v", err)
			}
			if res.Color == nil || res.Color.Image == nil {
				t.Fatal("color texture not decoded")
			}
			if got := res.Color.Image.Bounds().Dx(); got != 4 {
				t.Errorf("decoded width = %d, want 4", got)
			}
			if (res.Extra != nil) != (tt.tex2 != "") {
				t.Errorf("extra texture presence = %v", res.Extra != nil)
			}
		})
	}
}

func TestResolve_CaseInsensitive(t *testing.T) {
	dir := t.TempDir()
	writeImage(t, dir, "Unit_Color.png", encodePNG)

	res, err := Resolve(dir, "unit_color.PNG", "")
	if err != nil {
		t.Fatalf("Resolve failed: %v", err)
	}
	if filepath.Base(res.Color.Path) != "Unit_Color.png" {
		t.Errorf("matched path = %q, want the on-disk casing", res.Color.Path)
	}
	if res.Color.Name != "unit_color.PNG" {
		t.Errorf("Name = %q, want the stored name", res.Color.Name)
	}
}

func TestResolve_EmptyNames(t *testing.T) {
	res, err := Resolve(t.TempDir(), "", "")
	if err != nil {
		t.Fatalf("Resolve failed: %v", err)
	}
	if res.Color != nil || res.Extra != nil {
		t.Error("empty names must resolve to nil textures")
	}
}

func TestResolve_NotFound(t *testing.T) {
	_, err := Resolve(t.TempDir(), "missing.png", "")

	var nf *NotFoundError
	if !errors.As(err, &nf) {
		t.Fatalf("err = %v, want *NotFoundError", err)
	}
	if nf.Name != "missing.png" {
		t.Errorf("NotFoundError.Name = %q", nf.Name)
	}
}

func TestResolve_UnsupportedExtension(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "unit.dds"), []byte("DDS "), 0o644); err != nil {
		t.Fatal(err)
	}

	_, err := Resolve(dir, "unit.dds", "")
	var ue *UnsupportedError
	if !errors.As(err, &ue) {
		t.Fatalf("err = %v, want *UnsupportedError", err)
	}
}

package raster

import (
	"bytes"
	"image"
	"image/color"
	"testing"
)

func checkerboard(w, h int) *image.NRGBA {
	img := image.NewNRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, color.NRGBA{R: uint8(x), G: uint8(y), B: 0, A: 255})
		}
	}
	return img
}

func TestCropRelative(t *testing.T) {
	img := checkerboard(200, 100)

	tests := []struct {
		name  string
		rect  Rect
		wantW int
		wantH int
		wantX int // source x of the crop's first pixel
		wantY int
	}{
		{name: "qr corner", rect: QRRegion, wantW: 90, wantH: 45, wantX: 110, wantY: 0},
		{name: "full page", rect: Rect{0, 0, 1, 1}, wantW: 200, wantH: 100},
		{name: "overflow is clamped", rect: Rect{0.9, 0.9, 0.5, 0.5}, wantW: 20, wantH: 10, wantX: 180, wantY: 90},
		{name: "tiny size floors at one pixel", rect: Rect{0.5, 0.5, 0.0001, 0.0001}, wantW: 1, wantH: 1, wantX: 100, wantY: 50},
		{name: "origin past edge", rect: Rect{1, 1, 0.2, 0.2}, wantW: 1, wantH: 1, wantX: 199, wantY: 99},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			crop := CropRelative(img, tt.rect)
			b := crop.Bounds()
			if b.Dx() != tt.wantW || b.Dy() != tt.wantH {
				t.Fatalf("Expected %dx%d crop, got %dx%d", tt.wantW, tt.wantH, b.Dx(), b.Dy())
			}
			want := img.NRGBAAt(tt.wantX, tt.wantY)
			if got := crop.NRGBAAt(b.Min.X, b.Min.Y); got != want {
				t.Errorf("Expected first pixel %v, got %v", want, got)
			}
		})
	}
}

func TestCropRelativeOffsetBounds(t *testing.T) {
	full := checkerboard(100, 100)
	sub := full.SubImage(image.Rect(50, 50, 100, 100))

	crop := CropRelative(sub, Rect{0, 0, 0.5, 0.5})
	if crop.Bounds().Dx() != 25 || crop.Bounds().Dy() != 25 {
		t.Fatalf("Unexpected crop size %v", crop.Bounds())
	}
	if got, want := crop.NRGBAAt(0, 0), full.NRGBAAt(50, 50); got != want {
		t.Errorf("Expected crop to start at sub-image origin, got %v want %v", got, want)
	}
}

func TestRotate180(t *testing.T) {
	img := checkerboard(30, 20)
	before := append([]uint8(nil), img.Pix...)

	rot := Rotate180(img)

	if !bytes.Equal(before, img.Pix) {
		t.Fatal("Rotate180 mutated its input")
	}
	if rot.Bounds().Dx() != 30 || rot.Bounds().Dy() != 20 {
		t.Fatalf("Unexpected size %v", rot.Bounds())
	}
	for _, p := range []image.Point{{0, 0}, {29, 19}, {7, 3}} {
		want := img.NRGBAAt(29-p.X, 19-p.Y)
		if got := rot.NRGBAAt(p.X, p.Y); got != want {
			t.Errorf("At %v expected %v, got %v", p, want, got)
		}
	}

	back := Rotate180(rot)
	if !bytes.Equal(back.Pix, img.Pix) {
		t.Error("Two rotations should restore the original")
	}
}

func TestEncodePNGDeterministic(t *testing.T) {
	img := checkerboard(40, 40)

	a, err := EncodePNG(img)
	if err != nil {
		t.Fatal(err)
	}
	b, err := EncodePNG(img)
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(a, b) {
		t.Error("Expected identical png bytes for identical input")
	}

	decoded, err := DecodePNG(a)
	if err != nil {
		t.Fatal(err)
	}
	if decoded.Bounds() != img.Bounds() {
		t.Errorf("Expected bounds %v, got %v", img.Bounds(), decoded.Bounds())
	}
}

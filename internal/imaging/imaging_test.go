package imaging

import (
	"bytes"
	"image"
	"image/color"
	"image/jpeg"
	"image/png"
	"testing"

	"golang.org/x/image/tiff"
)

func createTestImage(width, height int, c color.Color) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, width, height))
	for x := range width {
		for y := range height {
			img.Set(x, y, c)
		}
	}
	return img
}

func encodeJPEG(img image.Image) []byte {
	var buf bytes.Buffer
	jpeg.Encode(&buf, img, &jpeg.Options{Quality: 90})
	return buf.Bytes()
}

func encodePNG(img image.Image) []byte {
	var buf bytes.Buffer
	png.Encode(&buf, img)
	return buf.Bytes()
}

func encodeTIFF(img image.Image) []byte {
	var buf bytes.Buffer
	tiff.Encode(&buf, img, nil)
	return buf.Bytes()
}

func decode(t *testing.T, data []byte) (image.Image, string) {
	t.Helper()
	img, format, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		t.Fatalf("failed to decode result: %v", err)
	}
	return img, format
}

func TestPrepare_SmallJPEGUnchanged(t *testing.T) {
	data := encodeJPEG(createTestImage(100, 80, color.White))

	out, err := Prepare(data, 200)
	if err != nil {
		t.Fatalf("Prepare failed: %v", err)
	}
	if !bytes.Equal(out, data) {
		t.Error("expected small JPEG to be returned unchanged")
	}
}

func TestPrepare_SmallPNGUnchanged(t *testing.T) {
	data := encodePNG(createTestImage(50, 50, color.Black))

	out, err := Prepare(data, 200)
	if err != nil {
		t.Fatalf("Prepare failed: %v", err)
	}
	if _, format := decode(t, out); format != "png" {
		t.Errorf("expected png to be kept, got %s", format)
	}
}

func TestExtension(t *testing.T) {
	img := createTestImage(8, 8, color.White)
	tests := []struct {
		name string
		data []byte
		want string
	}{
		{"png", encodePNG(img), ".png"},
		{"jpeg", encodeJPEG(img), ".jpg"},
		{"empty", nil, ".jpg"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Extension(tt.data); got != tt.want {
				t.Errorf("Extension = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestPrepare_TIFFConvertedToJPEG(t *testing.T) {
	data := encodeTIFF(createTestImage(120, 60, color.Gray{Y: 128}))

	out, err := Prepare(data, 4096)
	if err != nil {
		t.Fatalf("Prepare failed: %v", err)
	}
	img, format := decode(t, out)
	if format != "jpeg" {
		t.Errorf("expected jpeg, got %s", format)
	}
	if img.Bounds().Dx() != 120 || img.Bounds().Dy() != 60 {
		t.Errorf("expected size to be kept, got %v", img.Bounds())
	}
}

func TestPrepare_LargeImageDownscaled(t *testing.T) {
	data := encodePNG(createTestImage(400, 200, color.White))

	out, err := Prepare(data, 100)
	if err != nil {
		t.Fatalf("Prepare failed: %v", err)
	}
	img, format := decode(t, out)
	if format != "jpeg" {
		t.Errorf("expected jpeg, got %s", format)
	}
	if img.Bounds().Dx() != 100 || img.Bounds().Dy() != 50 {
		t.Errorf("expected 100x50, got %dx%d", img.Bounds().Dx(), img.Bounds().Dy())
	}
}

func TestPrepare_InvalidData(t *testing.T) {
	if _, err := Prepare([]byte("not an image"), 100); err == nil {
		t.Error("expected error for invalid image data")
	}
}

func TestResize(t *testing.T) {
	tests := []struct {
		name          string
		width, height int
		maxSize       int
		wantW, wantH  int
	}{
		{"landscape", 400, 200, 100, 100, 50},
		{"portrait", 200, 400, 100, 50, 100},
		{"fits", 80, 60, 100, 80, 60},
		{"disabled", 400, 200, 0, 400, 200},
		{"thin strip", 1000, 2, 100, 100, 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			img := Resize(createTestImage(tt.width, tt.height, color.White), tt.maxSize)
			if img.Bounds().Dx() != tt.wantW || img.Bounds().Dy() != tt.wantH {
				t.Errorf("expected %dx%d, got %dx%d", tt.wantW, tt.wantH, img.Bounds().Dx(), img.Bounds().Dy())
			}
		})
	}
}

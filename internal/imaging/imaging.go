// Package imaging prepares archive scans for the recognition API, which only
// reads JPEG and PNG up to a fixed inline size.
package imaging

import (
	"bytes"
	"fmt"
	"image"
	"image/jpeg"
	_ "image/png"

	_ "golang.org/x/image/bmp"
	"golang.org/x/image/draw"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"

	"github.com/kozaktomas/photo-archive/internal/constants"
)

// jpegQualities are tried in order until the encoded image fits the API limit.
var jpegQualities = []int{90, 80, 70, 60, 50}

// Prepare returns image bytes the recognition API accepts. JPEG and PNG input
// that already fits within maxSize pixels and the inline byte limit is
// returned unchanged; anything else is decoded, scaled down to maxSize on its
// longest side and re-encoded as JPEG.
func Prepare(data []byte, maxSize int) ([]byte, error) {
	cfg, format, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("failed to decode image header: %w", err)
	}
	if (format == "jpeg" || format == "png") &&
		fits(cfg.Width, cfg.Height, maxSize) && len(data) <= constants.MaxImageBytes {
		return data, nil
	}

	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("failed to decode image: %w", err)
	}
	img = Resize(img, maxSize)

	for _, q := range jpegQualities {
		var buf bytes.Buffer
		if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: q}); err != nil {
			return nil, fmt.Errorf("failed to encode image: %w", err)
		}
		if buf.Len() <= constants.MaxImageBytes {
			return buf.Bytes(), nil
		}
	}
	return nil, fmt.Errorf("image exceeds %d bytes after compression", constants.MaxImageBytes)
}

var pngSignature = []byte("\x89PNG\r\n\x1a\n")

// Extension returns the file extension for bytes produced by Prepare:
// ".png" for PNG data, ".jpg" otherwise.
func Extension(data []byte) string {
	if bytes.HasPrefix(data, pngSignature) {
		return ".png"
	}
	return ".jpg"
}

// Resize scales img to fit within maxSize (width or height) while keeping
// aspect ratio. A maxSize <= 0 disables scaling.
func Resize(img image.Image, maxSize int) image.Image {
	bounds := img.Bounds()
	width := bounds.Dx()
	height := bounds.Dy()
	if fits(width, height, maxSize) {
		return img
	}

	var newWidth, newHeight int
	if width > height {
		newWidth = maxSize
		newHeight = max(int(float64(height)*float64(maxSize)/float64(width)), 1)
	} else {
		newHeight = maxSize
		newWidth = max(int(float64(width)*float64(maxSize)/float64(height)), 1)
	}

	resized := image.NewRGBA(image.Rect(0, 0, newWidth, newHeight))
	draw.CatmullRom.Scale(resized, resized.Bounds(), img, bounds, draw.Over, nil)
	return resized
}

func fits(width, height, maxSize int) bool {
	return maxSize <= 0 || (width <= maxSize && height <= maxSize)
}

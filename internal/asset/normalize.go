package asset

import (
	"bytes"
	"fmt"
	"image"
	_ "image/gif"
	"image/jpeg"
	_ "image/png"

	"golang.org/x/image/draw"
	_ "golang.org/x/image/webp"
)

const (
	DefaultMaxDimension = 1536
	DefaultJPEGQuality  = 85

	// MaxPixels bounds the decoded size of an upload; a small compressed file
	// can otherwise expand to gigabytes of pixels.
	MaxPixels = 40_000_000
)

// Normalizer bounds uploaded images before they are stored in a session and
// sent to the model.
type Normalizer struct {
	MaxDimension int
	Quality      int
}

func NewNormalizer(maxDimension, quality int) Normalizer {
	if maxDimension <= 0 {
		maxDimension = DefaultMaxDimension
	}
	if quality <= 0 || quality > 100 {
		quality = DefaultJPEGQuality
	}
	return Normalizer{MaxDimension: maxDimension, Quality: quality}
}

// Normalize downsizes images whose longest edge exceeds MaxDimension and
// re-encodes them as JPEG. Images already within bounds are only re-encoded
// when that makes them smaller.
func (n Normalizer) Normalize(a Asset) (Asset, error) {
	if len(a.Data) == 0 {
		return Asset{}, ErrEmpty
	}

	cfg, _, err := image.DecodeConfig(bytes.NewReader(a.Data))
	if err != nil {
		return Asset{}, fmt.Errorf("%w: %v", ErrNotImage, err)
	}
	if cfg.Width <= 0 || cfg.Height <= 0 || int64(cfg.Width)*int64(cfg.Height) > MaxPixels {
		return Asset{}, fmt.Errorf("%w: %dx%d exceeds %d pixels", ErrNotImage, cfg.Width, cfg.Height, MaxPixels)
	}

	img, _, err := image.Decode(bytes.NewReader(a.Data))
	if err != nil {
		return Asset{}, fmt.Errorf("%w: %v", ErrNotImage, err)
	}

	resized := false
	if scaled, ok := n.downscale(img); ok {
		img = scaled
		resized = true
	}

	encoded, err := n.encodeJPEG(img)
	if err != nil {
		return Asset{}, fmt.Errorf("encode jpeg: %w", err)
	}

	if !resized && len(encoded) >= len(a.Data) {
		return a, nil
	}
	return Asset{MimeType: "image/jpeg", Data: encoded}, nil
}

func (n Normalizer) downscale(img image.Image) (image.Image, bool) {
	bounds := img.Bounds()
	w, h := bounds.Dx(), bounds.Dy()
	longest := max(w, h)
	if n.MaxDimension <= 0 || longest <= n.MaxDimension {
		return nil, false
	}

	scale := float64(n.MaxDimension) / float64(longest)
	nw := max(1, int(float64(w)*scale))
	nh := max(1, int(float64(h)*scale))

	dst := image.NewRGBA(image.Rect(0, 0, nw, nh))
	draw.CatmullRom.Scale(dst, dst.Bounds(), img, bounds, draw.Over, nil)
	return dst, true
}

// encodeJPEG flattens transparency onto white since JPEG has no alpha.
func (n Normalizer) encodeJPEG(img image.Image) ([]byte, error) {
	bounds := img.Bounds()
	flat := image.NewRGBA(image.Rect(0, 0, bounds.Dx(), bounds.Dy()))
	draw.Draw(flat, flat.Bounds(), image.White, image.Point{}, draw.Src)
	draw.Draw(flat, flat.Bounds(), img, bounds.Min, draw.Over)

	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, flat, &jpeg.Options{Quality: n.Quality}); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

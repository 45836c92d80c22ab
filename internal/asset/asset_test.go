package asset

import (
	"bytes"
	"encoding/base64"
	"encoding/binary"
	"hash/crc32"
	"image"
	"image/color"
	"image/png"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func pngBytes(t *testing.T, w, h int) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, color.RGBA{R: uint8(x), G: uint8(y), B: uint8(x ^ y), A: 255})
		}
	}
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

func TestParseDataURL(t *testing.T) {
	data := pngBytes(t, 4, 4)
	encoded := base64.StdEncoding.EncodeToString(data)

	t.Run("data url", func(t *testing.T) {
		a, err := ParseDataURL("data:image/png;base64," + encoded)
		require.NoError(t, err)
		assert.Equal(t, "image/png", a.MimeType)
		assert.Equal(t, data, a.Data)
	})

	t.Run("bare base64 is sniffed", func(t *testing.T) {
		a, err := ParseDataURL(encoded)
		require.NoError(t, err)
		assert.Equal(t, "image/png", a.MimeType)
	})

	t.Run("round trip", func(t *testing.T) {
		a, err := New("image/png", data)
		require.NoError(t, err)
		back, err := ParseDataURL(a.DataURL())
		require.NoError(t, err)
		assert.Equal(t, a, back)
	})

	t.Run("errors", func(t *testing.T) {
		for _, in := range []string{
			"",
			"data:image/png;base64",
			"data:image/png," + encoded,
			"data:image/png;base64,!!!",
			"data:text/plain;base64," + base64.StdEncoding.EncodeToString([]byte("hello")),
		} {
			_, err := ParseDataURL(in)
			assert.Error(t, err, in)
		}
	})
}

func TestDetectMimeType(t *testing.T) {
	data := pngBytes(t, 2, 2)

	assert.Equal(t, "image/webp", DetectMimeType("image/webp; q=1", data))
	assert.Equal(t, "image/png", DetectMimeType("application/octet-stream", data))
	assert.Equal(t, "image/png", DetectMimeType("", data))
}

func TestNormalizeDownscalesLargeImages(t *testing.T) {
	n := NewNormalizer(32, 80)
	in, err := New("image/png", pngBytes(t, 128, 64))
	require.NoError(t, err)

	out, err := n.Normalize(in)
	require.NoError(t, err)

	assert.Equal(t, "image/jpeg", out.MimeType)
	cfg, _, err := image.DecodeConfig(bytes.NewReader(out.Data))
	require.NoError(t, err)
	assert.Equal(t, 32, cfg.Width)
	assert.Equal(t, 16, cfg.Height)
}

func TestNormalizeKeepsSmallerOriginal(t *testing.T) {
	n := NewNormalizer(1024, 100)
	in, err := New("image/png", pngBytes(t, 1, 1))
	require.NoError(t, err)

	out, err := n.Normalize(in)
	require.NoError(t, err)
	assert.Equal(t, in, out)
}

func TestNormalizeRejectsGarbage(t *testing.T) {
	_, err := NewNormalizer(0, 0).Normalize(Asset{MimeType: "image/png", Data: []byte("nope")})
	assert.ErrorIs(t, err, ErrNotImage)
}

// pngHeader returns a PNG that declares w x h grayscale pixels but carries no
// image data; only its header can be decoded.
func pngHeader(w, h uint32) []byte {
	ihdr := make([]byte, 13)
	binary.BigEndian.PutUint32(ihdr[0:4], w)
	binary.BigEndian.PutUint32(ihdr[4:8], h)
	ihdr[8] = 8

	var buf bytes.Buffer
	buf.WriteString("\x89PNG\r\n\x1a\n")
	_ = binary.Write(&buf, binary.BigEndian, uint32(len(ihdr)))
	chunk := append([]byte("IHDR"), ihdr...)
	buf.Write(chunk)
	_ = binary.Write(&buf, binary.BigEndian, crc32.ChecksumIEEE(chunk))
	return buf.Bytes()
}

func TestNormalizeRejectsOversizedPixelCount(t *testing.T) {
	data := pngHeader(12000, 12000)
	require.Less(t, len(data), 100)

	_, err := NewNormalizer(1536, 85).Normalize(Asset{MimeType: "image/png", Data: data})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrNotImage)
	assert.Contains(t, err.Error(), "12000x12000")
}

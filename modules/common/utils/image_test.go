package utils

import (
	"bytes"
	"image"
	"image/color"
	"image/png"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func solidPNG(t *testing.T, w, h int, c color.Color) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, c)
		}
	}
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

func TestDetectImageMIME(t *testing.T) {
	mimeType, err := DetectImageMIME(solidPNG(t, 2, 2, color.White))
	require.NoError(t, err)
	assert.Equal(t, "image/png", mimeType)

	_, err = DetectImageMIME([]byte("hello world"))
	assert.ErrorIs(t, err, ErrNotImage)

	_, err = DetectImageMIME(nil)
	assert.ErrorIs(t, err, ErrNotImage)
}

func TestMIMETypeOrDefault(t *testing.T) {
	assert.Equal(t, "image/png", MIMETypeOrDefault([]byte("not an image")))
	jpegMagic := []byte{0xFF, 0xD8, 0xFF, 0xE0, 0x00, 0x10, 'J', 'F', 'I', 'F', 0x00}
	assert.Equal(t, "image/jpeg", MIMETypeOrDefault(jpegMagic))
}

func TestExtensionFor(t *testing.T) {
	assert.Equal(t, ".jpg", ExtensionFor("image/jpeg"))
	assert.Equal(t, ".webp", ExtensionFor("image/webp"))
	assert.Equal(t, ".png", ExtensionFor("image/png"))
	assert.Equal(t, ".png", ExtensionFor("application/octet-stream"))
}

func TestResizeImageKeepsAspectAndCenters(t *testing.T) {
	src := image.NewRGBA(image.Rect(0, 0, 40, 20))
	for y := 0; y < 20; y++ {
		for x := 0; x < 40; x++ {
			src.Set(x, y, color.RGBA{R: 255, A: 255})
		}
	}

	dst := ResizeImage(src, 20, 20)
	assert.Equal(t, image.Rect(0, 0, 20, 20), dst.Bounds())

	// 40x20 scaled by 0.5 → 20x10 band centred vertically (rows 5..14).
	_, _, _, a := dst.At(10, 2).RGBA()
	assert.Zero(t, a, "letterbox area stays transparent")
	r, _, _, a := dst.At(10, 10).RGBA()
	assert.NotZero(t, a)
	assert.Equal(t, uint32(0xffff), r)
}

func TestResizeImageHonoursSourceOrigin(t *testing.T) {
	src := image.NewRGBA(image.Rect(10, 10, 20, 20))
	for y := 10; y < 20; y++ {
		for x := 10; x < 20; x++ {
			src.Set(x, y, color.RGBA{G: 255, A: 255})
		}
	}
	dst := ResizeImage(src, 5, 5)
	_, g, _, _ := dst.At(2, 2).RGBA()
	assert.Equal(t, uint32(0xffff), g)
}

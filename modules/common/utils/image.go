package utils

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	_ "image/gif"  // GIF 디코더 등록
	_ "image/jpeg" // JPEG 디코더 등록
	_ "image/png"  // PNG 디코더 등록
	"math"
	"net/http"
	"strings"

	_ "github.com/kolesa-team/go-webp/decoder" // WebP 디코더 등록
	"github.com/kolesa-team/go-webp/encoder"
	"github.com/kolesa-team/go-webp/webp"
	"github.com/rs/zerolog/log"
)

const (
	DefaultMIMEType = "image/png"
	PreviewMaxSide  = 512
	PreviewQuality  = 80
)

var ErrNotImage = errors.New("data is not an image")

// DetectImageMIME - 바이너리에서 MIME 타입 추출, 이미지가 아니면 ErrNotImage
func DetectImageMIME(data []byte) (string, error) {
	if len(data) == 0 {
		return "", ErrNotImage
	}
	mimeType := http.DetectContentType(data)
	if !strings.HasPrefix(mimeType, "image/") {
		return "", fmt.Errorf("%w: detected %s", ErrNotImage, mimeType)
	}
	return mimeType, nil
}

// MIMETypeOrDefault returns the sniffed image type, or image/png when the
// bytes are not recognised.
func MIMETypeOrDefault(data []byte) string {
	if mimeType, err := DetectImageMIME(data); err == nil {
		return mimeType
	}
	return DefaultMIMEType
}

// ExtensionFor maps an image MIME type to a file extension.
func ExtensionFor(mimeType string) string {
	switch mimeType {
	case "image/jpeg":
		return ".jpg"
	case "image/webp":
		return ".webp"
	case "image/gif":
		return ".gif"
	default:
		return ".png"
	}
}

// MakePreview - 긴 변 기준 maxSide로 축소한 WebP 썸네일 생성
func MakePreview(data []byte, maxSide int) ([]byte, error) {
	img, format, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("failed to decode image: %w", err)
	}

	b := img.Bounds()
	if longest := max(b.Dx(), b.Dy()); longest > maxSide {
		scale := float64(maxSide) / float64(longest)
		w := int(math.Max(1, math.Round(float64(b.Dx())*scale)))
		h := int(math.Max(1, math.Round(float64(b.Dy())*scale)))
		img = ResizeImage(img, w, h)
	}

	out, err := encodeWebP(img, PreviewQuality)
	if err != nil {
		return nil, err
	}
	log.Debug().Str("source_format", format).Int("bytes", len(out)).Msg("🖼️  Preview created")
	return out, nil
}

func encodeWebP(img image.Image, quality float32) ([]byte, error) {
	options, err := encoder.NewLossyEncoderOptions(encoder.PresetDefault, quality)
	if err != nil {
		return nil, fmt.Errorf("failed to create WebP encoder options: %w", err)
	}

	var buf bytes.Buffer
	if err := webp.Encode(&buf, img, options); err != nil {
		return nil, fmt.Errorf("failed to encode WebP: %w", err)
	}
	return buf.Bytes(), nil
}

// ResizeImage - 이미지를 지정된 크기로 resize (비율 유지하며 fit, 투명 배경)
func ResizeImage(src image.Image, targetWidth, targetHeight int) image.Image {
	srcBounds := src.Bounds()
	srcWidth := srcBounds.Dx()
	srcHeight := srcBounds.Dy()

	dst := image.NewRGBA(image.Rect(0, 0, targetWidth, targetHeight))
	if srcWidth == 0 || srcHeight == 0 {
		return dst
	}

	// 비율 계산
	scaleX := float64(targetWidth) / float64(srcWidth)
	scaleY := float64(targetHeight) / float64(srcHeight)
	scale := math.Min(scaleX, scaleY)

	// 스케일된 크기 계산
	newWidth := int(float64(srcWidth) * scale)
	newHeight := int(float64(srcHeight) * scale)

	// 중앙 정렬을 위한 오프셋 계산
	xOffset := (targetWidth - newWidth) / 2
	yOffset := (targetHeight - newHeight) / 2

	// Nearest Neighbor 방식으로 리사이즈
	for y := 0; y < newHeight; y++ {
		for x := 0; x < newWidth; x++ {
			srcX := srcBounds.Min.X + int(float64(x)/scale)
			srcY := srcBounds.Min.Y + int(float64(y)/scale)
			dst.Set(x+xOffset, y+yOffset, src.At(srcX, srcY))
		}
	}

	return dst
}

// Package imagecodec converts between encoded images and RGBA pixel buffers.
//
// Decode accepts PNG, JPEG, GIF and BMP. The processor always answers with
// PNG.
package imagecodec

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	"image/draw"
	_ "image/gif"  // register GIF decoder
	_ "image/jpeg" // register JPEG decoder
	"image/png"

	_ "golang.org/x/image/bmp" // register BMP decoder

	"github.com/pithecene-io/bilat/types"
)

// ErrCorruptImage is wrapped by every decoding failure.
var ErrCorruptImage = errors.New("corrupt or unsupported image")

// MaxPixels is the largest image Decode accepts: 8192×8192, or 256 MiB per
// RGBA buffer.
const MaxPixels = 1 << 26

// Decode decodes an encoded image into a tightly packed RGBA buffer.
// Returns the detected format name ("png", "jpeg", "gif", "bmp").
func Decode(data []byte) (*types.PixelBuffer, string, error) {
	return DecodeLimit(data, MaxPixels)
}

// DecodeLimit is Decode with a custom pixel budget. The header is read
// first so an oversized image is rejected before any pixel memory is
// allocated.
func DecodeLimit(data []byte, maxPixels int64) (*types.PixelBuffer, string, error) {
	if len(data) == 0 {
		return nil, "", fmt.Errorf("%w: empty image", ErrCorruptImage)
	}

	cfg, format, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return nil, "", fmt.Errorf("%w: %v", ErrCorruptImage, err)
	}
	if cfg.Width <= 0 || cfg.Height <= 0 {
		return nil, format, fmt.Errorf("%w: zero-sized %s image", ErrCorruptImage, format)
	}
	if pixels := int64(cfg.Width) * int64(cfg.Height); pixels > maxPixels {
		return nil, format, fmt.Errorf("%w: %s image %dx%d exceeds %d pixels",
			ErrCorruptImage, format, cfg.Width, cfg.Height, maxPixels)
	}

	img, format, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, "", fmt.Errorf("%w: %v", ErrCorruptImage, err)
	}

	bounds := img.Bounds()
	if bounds.Empty() {
		return nil, format, fmt.Errorf("%w: zero-sized %s image", ErrCorruptImage, format)
	}

	nrgba := image.NewNRGBA(image.Rect(0, 0, bounds.Dx(), bounds.Dy()))
	draw.Draw(nrgba, nrgba.Bounds(), img, bounds.Min, draw.Src)

	return &types.PixelBuffer{
		Width:  bounds.Dx(),
		Height: bounds.Dy(),
		Stride: nrgba.Stride,
		Data:   nrgba.Pix,
	}, format, nil
}

// EncodePNG encodes buf as PNG.
func EncodePNG(buf *types.PixelBuffer) ([]byte, error) {
	if err := buf.Validate(); err != nil {
		return nil, err
	}

	img := &image.NRGBA{
		Pix:    buf.Data,
		Stride: buf.Stride,
		Rect:   image.Rect(0, 0, buf.Width, buf.Height),
	}
	var out bytes.Buffer
	if err := png.Encode(&out, img); err != nil {
		return nil, fmt.Errorf("failed to encode png: %w", err)
	}
	return out.Bytes(), nil
}

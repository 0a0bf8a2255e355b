package types

import (
	"errors"
	"fmt"
)

// BytesPerPixel is the fixed pixel size: three color channels plus alpha.
const BytesPerPixel = 4

// ErrInvalidPixelBuffer indicates a pixel buffer whose dimensions, stride and
// data length are inconsistent.
var ErrInvalidPixelBuffer = errors.New("invalid pixel buffer")

// PixelBuffer is a raw RGBA image. Row y starts at Data[y*Stride]; each row
// holds Width*BytesPerPixel meaningful bytes, possibly followed by padding.
type PixelBuffer struct {
	Width  int
	Height int
	Stride int
	Data   []byte
}

// NewPixelBuffer allocates a zeroed buffer with a tight stride.
func NewPixelBuffer(width, height int) *PixelBuffer {
	stride := width * BytesPerPixel
	return &PixelBuffer{
		Width:  width,
		Height: height,
		Stride: stride,
		Data:   make([]byte, stride*height),
	}
}

// Validate checks that the buffer is large enough for its dimensions.
func (b *PixelBuffer) Validate() error {
	if b == nil {
		return fmt.Errorf("%w: nil buffer", ErrInvalidPixelBuffer)
	}
	if b.Width <= 0 || b.Height <= 0 {
		return fmt.Errorf("%w: dimensions %dx%d", ErrInvalidPixelBuffer, b.Width, b.Height)
	}
	if b.Stride < b.Width*BytesPerPixel {
		return fmt.Errorf("%w: stride %d smaller than row size %d", ErrInvalidPixelBuffer, b.Stride, b.Width*BytesPerPixel)
	}
	if need := b.Stride*(b.Height-1) + b.Width*BytesPerPixel; len(b.Data) < need {
		return fmt.Errorf("%w: data length %d, need %d", ErrInvalidPixelBuffer, len(b.Data), need)
	}
	return nil
}

// SameShape reports whether o has the same width, height and stride.
func (b *PixelBuffer) SameShape(o *PixelBuffer) bool {
	return b.Width == o.Width && b.Height == o.Height && b.Stride == o.Stride
}

// NewLike allocates a zeroed buffer with the same shape and data length.
func (b *PixelBuffer) NewLike() *PixelBuffer {
	return &PixelBuffer{
		Width:  b.Width,
		Height: b.Height,
		Stride: b.Stride,
		Data:   make([]byte, len(b.Data)),
	}
}

// Clone returns a deep copy.
func (b *PixelBuffer) Clone() *PixelBuffer {
	c := b.NewLike()
	copy(c.Data, b.Data)
	return c
}

// Offset returns the index of pixel (x, y) in Data.
func (b *PixelBuffer) Offset(x, y int) int {
	return y*b.Stride + x*BytesPerPixel
}

package pixel

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math"
)

var (
	// ErrFrameSize indicates frame dimensions that are zero or too large to
	// address as a byte slice.
	ErrFrameSize = errors.New("invalid frame size")
	// ErrShortBuffer indicates a source buffer with fewer bytes than the
	// descriptor's pixel count requires.
	ErrShortBuffer = errors.New("source buffer too small")
)

// Desc describes the geometry and encoding of a source framebuffer.
type Desc struct {
	Width  uint32
	Height uint32
	Format Format
}

// PixelCount returns Width*Height after validating that the dimensions are
// non-zero and that the source and destination byte counts fit in an int.
func (d Desc) PixelCount() (int, error) {
	if d.Width == 0 || d.Height == 0 {
		return 0, fmt.Errorf("%w: %dx%d", ErrFrameSize, d.Width, d.Height)
	}
	pixels := uint64(d.Width) * uint64(d.Height)
	if pixels > uint64(math.MaxInt/4) {
		return 0, fmt.Errorf("%w: %dx%d exceeds addressable range", ErrFrameSize, d.Width, d.Height)
	}
	return int(pixels), nil
}

// SourceBytes returns the number of bytes the described framebuffer occupies
// in its native encoding.
func (d Desc) SourceBytes() (int, error) {
	pixels, err := d.PixelCount()
	if err != nil {
		return 0, err
	}
	bpp := d.Format.BytesPerPixel()
	if bpp == 0 {
		return 0, fmt.Errorf("%w: %s", ErrUnsupportedFormat, d.Format)
	}
	return pixels * bpp, nil
}

// Frame is a converted image: flat row-major RGB888 bytes with no row
// padding, stride Width*3.
type Frame struct {
	Width  int
	Height int
	Pix    []byte
}

// DecodeRGB565 expands one 5-6-5 packed pixel into 8-bit channels using bare
// shifts; the low bits of each byte stay zero.
func DecodeRGB565(px uint16) (r, g, b uint8) {
	r = uint8((px & 0xf800) >> 8)
	g = uint8((px & 0x07e0) >> 3)
	b = uint8((px & 0x001f) << 3)
	return r, g, b
}

// DecodeXRGB8888 extracts the red, green, and blue channels from the low 24
// bits of a 32-bit word, ignoring the top byte.
func DecodeXRGB8888(px uint32) (r, g, b uint8) {
	r = uint8((px >> 16) & 0xff)
	g = uint8((px >> 8) & 0xff)
	b = uint8(px & 0xff)
	return r, g, b
}

// Convert decodes src according to desc into a freshly allocated RGB888
// frame. Exactly Width*Height source pixels are read in row-major order;
// trailing bytes beyond that count are never touched, and a buffer shorter
// than the required count fails with ErrShortBuffer before any decoding.
// The transform is deterministic: the same descriptor and bytes always
// produce a byte-identical frame. On error no partial frame is returned.
func Convert(desc Desc, src []byte) (Frame, error) {
	pixels, err := desc.PixelCount()
	if err != nil {
		return Frame{}, err
	}

	bpp := desc.Format.BytesPerPixel()
	if bpp == 0 {
		return Frame{}, fmt.Errorf("%w: %s", ErrUnsupportedFormat, desc.Format)
	}
	if need := pixels * bpp; len(src) < need {
		return Frame{}, fmt.Errorf("%w: have %d bytes, need %d", ErrShortBuffer, len(src), need)
	}

	dst := make([]byte, pixels*3)
	switch desc.Format {
	case FormatRGB565:
		for i := 0; i < pixels; i++ {
			r, g, b := DecodeRGB565(binary.LittleEndian.Uint16(src[i*2:]))
			dst[i*3] = r
			dst[i*3+1] = g
			dst[i*3+2] = b
		}
	case FormatXRGB8888:
		for i := 0; i < pixels; i++ {
			r, g, b := DecodeXRGB8888(binary.LittleEndian.Uint32(src[i*4:]))
			dst[i*3] = r
			dst[i*3+1] = g
			dst[i*3+2] = b
		}
	}

	return Frame{Width: int(desc.Width), Height: int(desc.Height), Pix: dst}, nil
}

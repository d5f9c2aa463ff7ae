package pixel

import (
	"errors"
	"fmt"
)

// ErrUnsupportedFormat indicates a framebuffer bit depth this tool cannot
// decode. Unsupported depths fail explicitly rather than being truncated or
// guessed at.
var ErrUnsupportedFormat = errors.New("unsupported pixel format")

// Format identifies the pixel encoding of a source framebuffer.
type Format int

const (
	// FormatRGB565 packs red, green, and blue into 5, 6, and 5 bits of a
	// little-endian 16-bit word, red in the high bits.
	FormatRGB565 Format = iota
	// FormatXRGB8888 packs blue, green, and red into the low 24 bits of a
	// little-endian 32-bit word. The top byte (alpha or padding) is ignored.
	FormatXRGB8888
)

// String returns the conventional lowercase label for the format.
func (f Format) String() string {
	switch f {
	case FormatRGB565:
		return "rgb565"
	case FormatXRGB8888:
		return "xrgb8888"
	default:
		return fmt.Sprintf("unknown(%d)", int(f))
	}
}

// BytesPerPixel returns the source word size for the format, or zero for an
// unknown tag.
func (f Format) BytesPerPixel() int {
	switch f {
	case FormatRGB565:
		return 2
	case FormatXRGB8888:
		return 4
	default:
		return 0
	}
}

// FormatFromBPP maps a framebuffer bits-per-pixel value to its format tag.
// Only depths 16 and 32 are supported; every other value returns
// ErrUnsupportedFormat so callers dispatch on an explicit variant instead of
// a raw integer width.
func FormatFromBPP(bpp uint32) (Format, error) {
	switch bpp {
	case 16:
		return FormatRGB565, nil
	case 32:
		return FormatXRGB8888, nil
	default:
		return 0, fmt.Errorf("%w: %d bits per pixel", ErrUnsupportedFormat, bpp)
	}
}

// Package sink writes converted frames to their final on-disk form.
package sink

import (
	"fmt"
	"image"
	"image/png"
	"os"

	"kmsgrab/internal/pixel"
)

// WritePNG encodes frame as an 8-bit RGB PNG at path. On any failure the
// partially written file is removed so a broken capture never leaves a
// truncated image behind.
func WritePNG(path string, frame pixel.Frame) error {
	if frame.Width <= 0 || frame.Height <= 0 {
		return fmt.Errorf("invalid frame %dx%d", frame.Width, frame.Height)
	}
	if want := frame.Width * frame.Height * 3; len(frame.Pix) < want {
		return fmt.Errorf("frame pixel data truncated: have %d bytes, need %d", len(frame.Pix), want)
	}

	// The encoder writes plain 24-bit RGB when every pixel is opaque.
	img := image.NewNRGBA(image.Rect(0, 0, frame.Width, frame.Height))
	for y := 0; y < frame.Height; y++ {
		src := frame.Pix[y*frame.Width*3:]
		dst := img.Pix[y*img.Stride:]
		for x := 0; x < frame.Width; x++ {
			dst[x*4+0] = src[x*3+0]
			dst[x*4+1] = src[x*3+1]
			dst[x*4+2] = src[x*3+2]
			dst[x*4+3] = 0xff
		}
	}

	file, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o644)
	if err != nil {
		return fmt.Errorf("create output %s: %w", path, err)
	}

	if err := png.Encode(file, img); err != nil {
		file.Close()        //nolint:errcheck
		_ = os.Remove(path) // best effort
		return fmt.Errorf("encode png %s: %w", path, err)
	}
	if err := file.Close(); err != nil {
		_ = os.Remove(path)
		return fmt.Errorf("close output %s: %w", path, err)
	}
	return nil
}

package drm

import (
	"fmt"
	"math"
	"unsafe"
)

// Framebuffer holds the metadata of a scanout buffer as reported by
// DRM_IOCTL_MODE_GETFB. The GEM handle stays private to this package; it
// is only meaningful on the device that produced it.
type Framebuffer struct {
	ID     uint32
	Width  uint32
	Height uint32
	Pitch  uint32
	BPP    uint32
	Depth  uint32

	handle uint32
}

// Framebuffer fetches metadata for the framebuffer object with the given
// ID. The kernel hands out the GEM handle only to master or privileged
// clients, which is why captures usually run as root.
func (d *Device) Framebuffer(id uint32) (*Framebuffer, error) {
	arg := modeFBArg{fbID: id}
	if err := ioctl(d.fd, ioctlModeGetFB, unsafe.Pointer(&arg)); err != nil {
		return nil, fmt.Errorf("ioctl DRM_IOCTL_MODE_GETFB(%d) on %s: %w", id, d.path, err)
	}

	return &Framebuffer{
		ID:     id,
		Width:  arg.width,
		Height: arg.height,
		Pitch:  arg.pitch,
		BPP:    arg.bpp,
		Depth:  arg.depth,
		handle: arg.handle,
	}, nil
}

// Size returns the byte count of the pixel data, (bpp/8)*width*height.
// This is the length the dma-buf mapping uses; row padding beyond
// width*bpp/8 is not included.
func (fb *Framebuffer) Size() (int, error) {
	if fb.BPP == 0 || fb.BPP%8 != 0 {
		return 0, fmt.Errorf("framebuffer %d: unsupported bpp %d", fb.ID, fb.BPP)
	}
	total := uint64(fb.BPP/8) * uint64(fb.Width) * uint64(fb.Height)
	if total == 0 || total > math.MaxInt32 {
		return 0, fmt.Errorf("framebuffer %d: invalid extent %dx%d at bpp %d", fb.ID, fb.Width, fb.Height, fb.BPP)
	}
	return int(total), nil
}

// ExpectedPitch returns the tightly packed row stride in bytes. A driver
// pitch above this means the buffer carries row padding.
func (fb *Framebuffer) ExpectedPitch() uint32 {
	return fb.Width * (fb.BPP / 8)
}

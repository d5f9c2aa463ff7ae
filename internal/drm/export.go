package drm

import (
	"fmt"
	"unsafe"

	"golang.org/x/sys/unix"
)

// FrameData is a read-only mapping of an exported framebuffer. It owns the
// dma-buf descriptor backing the mapping; Close releases both.
type FrameData struct {
	fd   int
	data []byte
}

// ExportFramebuffer exports the framebuffer's backing object as a dma-buf
// file descriptor via PRIME. The descriptor is close-on-exec and must be
// closed by the caller.
func (d *Device) ExportFramebuffer(fb *Framebuffer) (int, error) {
	arg := primeHandleArg{handle: fb.handle, flags: unix.O_CLOEXEC, fd: -1}
	if err := ioctl(d.fd, ioctlPrimeHandleToFD, unsafe.Pointer(&arg)); err != nil {
		return -1, fmt.Errorf("ioctl DRM_IOCTL_PRIME_HANDLE_TO_FD(fb %d) on %s: %w", fb.ID, d.path, err)
	}
	return int(arg.fd), nil
}

// MapExported maps size bytes of an exported dma-buf read-only and private.
// MapExported takes ownership of fd in every case: on failure the descriptor
// is closed before returning, on success FrameData.Close releases it.
func MapExported(fd, size int) (*FrameData, error) {
	data, err := unix.Mmap(fd, 0, size, unix.PROT_READ, unix.MAP_PRIVATE)
	if err != nil {
		unix.Close(fd) //nolint:errcheck
		return nil, fmt.Errorf("mmap dma-buf (%d bytes): %w", size, err)
	}
	return &FrameData{fd: fd, data: data}, nil
}

// Bytes exposes the mapped pixel data. The slice is invalid after Close.
func (f *FrameData) Bytes() []byte {
	return f.data
}

// Close unmaps the pixel data and closes the dma-buf descriptor. Closing
// twice is harmless.
func (f *FrameData) Close() error {
	if f == nil {
		return nil
	}
	var firstErr error
	if f.data != nil {
		if err := unix.Munmap(f.data); err != nil {
			firstErr = fmt.Errorf("munmap framebuffer: %w", err)
		}
		f.data = nil
	}
	if f.fd >= 0 {
		if err := unix.Close(f.fd); err != nil && firstErr == nil {
			firstErr = fmt.Errorf("close dma-buf: %w", err)
		}
		f.fd = -1
	}
	return firstErr
}

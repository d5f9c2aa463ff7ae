package drm

import (
	"errors"
	"fmt"
	"strings"
	"unsafe"

	"golang.org/x/sys/unix"
)

var (
	// ErrNoCapableDevice indicates the device scan exhausted every card node
	// without finding one whose driver reports dumb buffer support.
	ErrNoCapableDevice = errors.New("no KMS/DRM device with dumb buffer support")
	// ErrNoActiveDisplay indicates no CRTC on the device has a framebuffer
	// attached, i.e. nothing is currently being scanned out.
	ErrNoActiveDisplay = errors.New("no CRTC with an attached framebuffer")
)

// Device is an open KMS/DRM card node.
type Device struct {
	path string
	fd   int
}

// Open opens the DRM device node at path. The descriptor is opened
// read-write with close-on-exec, matching what the mode-setting ioctls
// expect.
func Open(path string) (*Device, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return nil, fmt.Errorf("empty device path")
	}

	fd, err := unix.Open(path, unix.O_RDWR|unix.O_CLOEXEC, 0)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	return &Device{path: path, fd: fd}, nil
}

// Path returns the device node path this device was opened from.
func (d *Device) Path() string {
	return d.path
}

// Close releases the device descriptor. Closing twice is harmless.
func (d *Device) Close() error {
	if d == nil || d.fd < 0 {
		return nil
	}
	fd := d.fd
	d.fd = -1
	if err := unix.Close(fd); err != nil {
		return fmt.Errorf("close %s: %w", d.path, err)
	}
	return nil
}

// Capability queries a DRM_CAP_* value via DRM_IOCTL_GET_CAP.
func (d *Device) Capability(id uint64) (uint64, error) {
	arg := capArg{capability: id}
	if err := ioctl(d.fd, ioctlGetCap, unsafe.Pointer(&arg)); err != nil {
		return 0, fmt.Errorf("ioctl DRM_IOCTL_GET_CAP(%d) on %s: %w", id, d.path, err)
	}
	return arg.value, nil
}

// SupportsDumbBuffers reports whether the driver advertises
// DRM_CAP_DUMB_BUFFER. Render-only nodes and display-less GPUs do not.
func (d *Device) SupportsDumbBuffers() (bool, error) {
	value, err := d.Capability(capDumbBuffer)
	if err != nil {
		return false, err
	}
	return value != 0, nil
}

// EnableCaptureCaps opts this client into atomic modesetting and universal
// planes so CRTC state reflects what the display controller actually scans
// out under a modern compositor.
func (d *Device) EnableCaptureCaps() error {
	caps := []clientCapArg{
		{capability: clientCapAtomic, value: 1},
		{capability: clientCapUniversalPlanes, value: 1},
	}
	for i := range caps {
		if err := ioctl(d.fd, ioctlSetClientCap, unsafe.Pointer(&caps[i])); err != nil {
			return fmt.Errorf("ioctl DRM_IOCTL_SET_CLIENT_CAP(%d) on %s: %w", caps[i].capability, d.path, err)
		}
	}
	return nil
}

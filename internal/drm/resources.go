package drm

import (
	"bytes"
	"fmt"
	"runtime"
	"unsafe"
)

// Resources holds the mode objects a device exposes. Only CRTC IDs are
// materialized; the remaining counts are kept for diagnostics.
type Resources struct {
	CrtcIDs          []uint32
	FramebufferCount int
	ConnectorCount   int
	EncoderCount     int
}

// Resources fetches the device's mode resources using the usual two-call
// sequence: one ioctl to learn the counts, a second to fill the CRTC ID
// array. If a hotplug shrinks the count between calls the shorter result
// wins.
func (d *Device) Resources() (*Resources, error) {
	var count modeCardResArg
	if err := ioctl(d.fd, ioctlModeGetResources, unsafe.Pointer(&count)); err != nil {
		return nil, fmt.Errorf("ioctl DRM_IOCTL_MODE_GETRESOURCES on %s: %w", d.path, err)
	}

	res := &Resources{
		FramebufferCount: int(count.countFBs),
		ConnectorCount:   int(count.countConnectors),
		EncoderCount:     int(count.countEncoders),
	}
	if count.countCrtcs == 0 {
		return res, nil
	}

	crtcs := make([]uint32, count.countCrtcs)
	fill := modeCardResArg{
		crtcIDPtr:  uint64(uintptr(unsafe.Pointer(&crtcs[0]))),
		countCrtcs: count.countCrtcs,
	}
	err := ioctl(d.fd, ioctlModeGetResources, unsafe.Pointer(&fill))
	runtime.KeepAlive(crtcs)
	if err != nil {
		return nil, fmt.Errorf("ioctl DRM_IOCTL_MODE_GETRESOURCES on %s: %w", d.path, err)
	}
	if int(fill.countCrtcs) < len(crtcs) {
		crtcs = crtcs[:fill.countCrtcs]
	}
	res.CrtcIDs = crtcs
	return res, nil
}

// DisplayMode describes the video mode a CRTC is driving.
type DisplayMode struct {
	Name     string
	Width    uint16
	Height   uint16
	VRefresh uint32
	Clock    uint32
}

// Crtc is the scanout state of one display controller.
type Crtc struct {
	ID            uint32
	FramebufferID uint32
	X             uint32
	Y             uint32
	GammaSize     uint32
	ModeValid     bool
	Mode          DisplayMode
}

// Crtc fetches the current state of the CRTC with the given object ID.
func (d *Device) Crtc(id uint32) (*Crtc, error) {
	arg := modeCrtcArg{crtcID: id}
	if err := ioctl(d.fd, ioctlModeGetCrtc, unsafe.Pointer(&arg)); err != nil {
		return nil, fmt.Errorf("ioctl DRM_IOCTL_MODE_GETCRTC(%d) on %s: %w", id, d.path, err)
	}

	crtc := &Crtc{
		ID:            arg.crtcID,
		FramebufferID: arg.fbID,
		X:             arg.x,
		Y:             arg.y,
		GammaSize:     arg.gammaSize,
		ModeValid:     arg.modeValid != 0,
	}
	if crtc.ModeValid {
		crtc.Mode = DisplayMode{
			Name:     modeName(arg.mode.name),
			Width:    arg.mode.hdisplay,
			Height:   arg.mode.vdisplay,
			VRefresh: arg.mode.vrefresh,
			Clock:    arg.mode.clock,
		}
	}
	return crtc, nil
}

// ActiveCrtc returns the first CRTC that currently has a framebuffer
// attached, scanning in the order the driver reports them. Mirror and
// multi-head setups capture whichever display the driver lists first.
func (d *Device) ActiveCrtc() (*Crtc, error) {
	res, err := d.Resources()
	if err != nil {
		return nil, err
	}

	for _, id := range res.CrtcIDs {
		crtc, err := d.Crtc(id)
		if err != nil {
			return nil, err
		}
		if crtc.FramebufferID != 0 {
			return crtc, nil
		}
	}

	return nil, fmt.Errorf("%w on %s", ErrNoActiveDisplay, d.path)
}

func modeName(raw [32]byte) string {
	if i := bytes.IndexByte(raw[:], 0); i >= 0 {
		return string(raw[:i])
	}
	return string(raw[:])
}

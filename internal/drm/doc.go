// Package drm talks to Linux KMS/DRM devices directly through ioctls.
//
// It covers the small slice of the DRM interface a screenshot needs:
// probing /dev/dri card nodes for dumb buffer support, reading mode
// resources and CRTC state, resolving the framebuffer a display currently
// scans out, and exporting that framebuffer as a mappable dma-buf via
// PRIME. Wire structs mirror the kernel uapi layouts byte for byte; the
// exported types carry only the fields capture code consumes.
//
// Every handle returned by this package (devices, frame mappings) owns a
// file descriptor and must be closed by the caller.
package drm

package drm

import (
	"unsafe"

	"golang.org/x/sys/unix"
)

// ioctl request numbers are built with the asm-generic/ioctl.h encoding:
// direction in bits 30-31, argument size in bits 16-29, type in bits 8-15,
// and number in bits 0-7. All DRM requests use type 'd'.
const (
	iocWrite = 0x1
	iocRead  = 0x2

	iocNrBits   = 8
	iocTypeBits = 8
	iocSizeBits = 14

	iocNrShift   = 0
	iocTypeShift = iocNrShift + iocNrBits
	iocSizeShift = iocTypeShift + iocTypeBits
	iocDirShift  = iocSizeShift + iocSizeBits

	drmIoctlType = 'd'
)

func drmIOC(dir, nr, size uintptr) uintptr {
	return dir<<iocDirShift | size<<iocSizeShift | drmIoctlType<<iocTypeShift | nr<<iocNrShift
}

func drmIOW(nr, size uintptr) uintptr { return drmIOC(iocWrite, nr, size) }

func drmIOWR(nr, size uintptr) uintptr { return drmIOC(iocRead|iocWrite, nr, size) }

// Request numbers for the DRM ioctls used here, matching the DRM_IOCTL_*
// macros from the kernel uapi drm.h.
var (
	ioctlGetCap           = drmIOWR(0x0c, unsafe.Sizeof(capArg{}))
	ioctlSetClientCap     = drmIOW(0x0d, unsafe.Sizeof(clientCapArg{}))
	ioctlPrimeHandleToFD  = drmIOWR(0x2d, unsafe.Sizeof(primeHandleArg{}))
	ioctlModeGetResources = drmIOWR(0xa0, unsafe.Sizeof(modeCardResArg{}))
	ioctlModeGetCrtc      = drmIOWR(0xa1, unsafe.Sizeof(modeCrtcArg{}))
	ioctlModeGetFB        = drmIOWR(0xad, unsafe.Sizeof(modeFBArg{}))
)

const (
	// capDumbBuffer is DRM_CAP_DUMB_BUFFER.
	capDumbBuffer = 0x1

	// clientCapUniversalPlanes is DRM_CLIENT_CAP_UNIVERSAL_PLANES.
	clientCapUniversalPlanes = 2
	// clientCapAtomic is DRM_CLIENT_CAP_ATOMIC.
	clientCapAtomic = 3
)

// capArg mirrors struct drm_get_cap.
type capArg struct {
	capability uint64
	value      uint64
}

// clientCapArg mirrors struct drm_set_client_cap.
type clientCapArg struct {
	capability uint64
	value      uint64
}

// primeHandleArg mirrors struct drm_prime_handle.
type primeHandleArg struct {
	handle uint32
	flags  uint32
	fd     int32
}

// modeCardResArg mirrors struct drm_mode_card_res.
type modeCardResArg struct {
	fbIDPtr         uint64
	crtcIDPtr       uint64
	connectorIDPtr  uint64
	encoderIDPtr    uint64
	countFBs        uint32
	countCrtcs      uint32
	countConnectors uint32
	countEncoders   uint32
	minWidth        uint32
	maxWidth        uint32
	minHeight       uint32
	maxHeight       uint32
}

// modeInfoArg mirrors struct drm_mode_modeinfo.
type modeInfoArg struct {
	clock      uint32
	hdisplay   uint16
	hsyncStart uint16
	hsyncEnd   uint16
	htotal     uint16
	hskew      uint16
	vdisplay   uint16
	vsyncStart uint16
	vsyncEnd   uint16
	vtotal     uint16
	vscan      uint16
	vrefresh   uint32
	flags      uint32
	typ        uint32
	name       [32]byte
}

// modeCrtcArg mirrors struct drm_mode_crtc.
type modeCrtcArg struct {
	setConnectorsPtr uint64
	countConnectors  uint32
	crtcID           uint32
	fbID             uint32
	x                uint32
	y                uint32
	gammaSize        uint32
	modeValid        uint32
	mode             modeInfoArg
}

// modeFBArg mirrors struct drm_mode_fb_cmd.
type modeFBArg struct {
	fbID   uint32
	width  uint32
	height uint32
	pitch  uint32
	bpp    uint32
	depth  uint32
	handle uint32
}

// ioctl issues a DRM ioctl, retrying when the call is interrupted. Kernel
// DRM entry points may return EINTR or EAGAIN when signals land mid-call.
func ioctl(fd int, request uintptr, arg unsafe.Pointer) error {
	for {
		_, _, errno := unix.Syscall(unix.SYS_IOCTL, uintptr(fd), request, uintptr(arg))
		switch errno {
		case 0:
			return nil
		case unix.EINTR, unix.EAGAIN:
			continue
		default:
			return errno
		}
	}
}

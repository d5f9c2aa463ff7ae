package capture

import (
	"log/slog"
	"strings"

	"kmsgrab/internal/config"
	"kmsgrab/internal/drm"
)

// Display is the device surface the pipeline drives. *drm.Device implements
// it; tests substitute fakes.
type Display interface {
	Path() string
	EnableCaptureCaps() error
	ActiveCrtc() (*drm.Crtc, error)
	Framebuffer(id uint32) (*drm.Framebuffer, error)
	ExportFramebuffer(fb *drm.Framebuffer) (int, error)
	Close() error
}

// Locator resolves the device a capture reads from.
type Locator interface {
	Locate() (Display, error)
}

// NewDeviceLocator returns the production locator. An explicit device path
// from configuration is opened and probed directly; otherwise the device
// directory is scanned for the first card with dumb buffer support.
func NewDeviceLocator(cfg *config.Config, logger *slog.Logger) Locator {
	return &deviceLocator{cfg: cfg, logger: logger}
}

type deviceLocator struct {
	cfg    *config.Config
	logger *slog.Logger
}

func (l *deviceLocator) Locate() (Display, error) {
	dev, err := OpenDevice(l.cfg, l.logger)
	if err != nil {
		return nil, err
	}
	return dev, nil
}

// OpenDevice opens the DRM device a capture would use: the configured
// explicit device when set, otherwise the first capture-capable card found
// by scanning the device directory. Inspection commands share this so their
// view matches the device a capture selects.
func OpenDevice(cfg *config.Config, logger *slog.Logger) (*drm.Device, error) {
	if path := strings.TrimSpace(cfg.Capture.Device); path != "" {
		return openExplicit(path)
	}

	dev, err := drm.FindDevice(cfg.Capture.DeviceDir, cfg.Capture.MaxCards, logger)
	if err != nil {
		return nil, Wrap(ErrDeviceNotFound, "locate", "scan", "No capture-capable DRM device found", err)
	}
	return dev, nil
}

// openExplicit handles a device node named in configuration or on the
// command line. The capability probe still runs so a bad path fails here
// instead of midway into the capture.
func openExplicit(path string) (*drm.Device, error) {
	dev, err := drm.Open(path)
	if err != nil {
		return nil, Wrap(ErrDeviceNotFound, "locate", "open", "Cannot open configured device", err)
	}

	capable, err := dev.SupportsDumbBuffers()
	if err != nil {
		_ = dev.Close()
		return nil, Wrap(ErrCapabilityUnsupported, "locate", "probe", "Cannot probe configured device", err)
	}
	if !capable {
		_ = dev.Close()
		return nil, Wrap(ErrCapabilityUnsupported, "locate", "probe", "Configured device lacks dumb buffer support", nil)
	}
	return dev, nil
}

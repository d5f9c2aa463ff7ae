package capture

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/gofrs/flock"
	"github.com/google/uuid"

	"kmsgrab/internal/config"
	"kmsgrab/internal/drm"
	"kmsgrab/internal/history"
	"kmsgrab/internal/logging"
	"kmsgrab/internal/pixel"
	"kmsgrab/internal/privdrop"
	"kmsgrab/internal/sink"
)

// Mapping is mapped pixel memory that must be released exactly once.
type Mapping interface {
	Bytes() []byte
	Close() error
}

// BufferMapper turns an exported dma-buf descriptor into readable memory.
// Map takes ownership of fd: on failure the descriptor is closed before
// returning.
type BufferMapper interface {
	Map(fd, size int) (Mapping, error)
}

type drmMapper struct{}

func (drmMapper) Map(fd, size int) (Mapping, error) {
	frame, err := drm.MapExported(fd, size)
	if err != nil {
		return nil, err
	}
	return frame, nil
}

// Recorder persists completed captures.
type Recorder interface {
	Record(ctx context.Context, entry history.Entry) (*history.Entry, error)
	Prune(ctx context.Context, keep int) (int64, error)
}

// Runner drives one capture from device lookup to the finished PNG.
type Runner struct {
	cfg      *config.Config
	logger   *slog.Logger
	locator  Locator
	mapper   BufferMapper
	recorder Recorder

	drop  func() (func() error, error)
	newID func() string
}

// NewRunner constructs a runner over the real DRM stack. A nil recorder
// disables history recording.
func NewRunner(cfg *config.Config, logger *slog.Logger, recorder Recorder) *Runner {
	return NewRunnerWithDependencies(cfg, logger, NewDeviceLocator(cfg, logger), drmMapper{}, recorder)
}

// NewRunnerWithDependencies allows injecting the locator, mapper, and
// recorder (used in tests).
func NewRunnerWithDependencies(cfg *config.Config, logger *slog.Logger, locator Locator, mapper BufferMapper, recorder Recorder) *Runner {
	return &Runner{
		cfg:      cfg,
		logger:   logging.NewComponentLogger(logger, "capture"),
		locator:  locator,
		mapper:   mapper,
		recorder: recorder,
		drop:     privdrop.Drop,
		newID:    uuid.NewString,
	}
}

// Result describes one completed capture.
type Result struct {
	CaptureID     string
	OutputPath    string
	DevicePath    string
	CrtcID        uint32
	FramebufferID uint32
	Width         int
	Height        int
	Pitch         uint32
	BPP           uint32
	PixelFormat   string
	OutputBytes   int64
	Duration      time.Duration
}

// Run performs one capture and writes the PNG to outputPath. The effective
// uid is lowered to the invoking user's real uid for the duration of the
// write, so the file ends up user-owned even when the capture itself needs
// elevated privileges.
func (r *Runner) Run(ctx context.Context, outputPath string) (*Result, error) {
	start := time.Now()

	if strings.TrimSpace(outputPath) == "" {
		return nil, Wrap(ErrValidation, "capture", "validate", "Output path is required", nil)
	}
	if r.cfg == nil {
		return nil, Wrap(ErrConfiguration, "capture", "validate", "Capture configuration is missing", nil)
	}

	captureID := r.newID()
	ctx = logging.WithCaptureID(ctx, captureID)
	logger := logging.WithContext(ctx, r.logger)

	if err := r.cfg.EnsureDirectories(); err != nil {
		return nil, Wrap(ErrConfiguration, "capture", "prepare", "Cannot create state directories", err)
	}

	lock := flock.New(r.cfg.LockPath())
	locked, err := lock.TryLock()
	if err != nil {
		return nil, Wrap(ErrCaptureLocked, "capture", "lock", "Cannot acquire capture lock", err)
	}
	if !locked {
		return nil, Wrap(ErrCaptureLocked, "capture", "lock", "Another capture is already running", nil)
	}
	defer func() { _ = lock.Unlock() }()

	display, err := r.locator.Locate()
	if err != nil {
		return nil, err
	}
	defer func() { _ = display.Close() }()

	devicePath := display.Path()
	logger = logger.With(logging.String(logging.FieldDevice, devicePath))
	logger.Debug("capture device selected")

	if err := display.EnableCaptureCaps(); err != nil {
		return nil, Wrap(ErrCapabilityUnsupported, "discover", "client-caps", "Device rejected capture client capabilities", err)
	}

	crtc, err := display.ActiveCrtc()
	if err != nil {
		if errors.Is(err, drm.ErrNoActiveDisplay) {
			return nil, Wrap(ErrNoActiveOutput, "discover", "scan-crtcs", "No CRTC is driving a framebuffer", err)
		}
		return nil, Wrap(ErrResourceQueryFailed, "discover", "scan-crtcs", "Cannot query display state", err)
	}

	fb, err := display.Framebuffer(crtc.FramebufferID)
	if err != nil {
		return nil, Wrap(ErrFramebufferLookupFailed, "discover", "getfb",
			fmt.Sprintf("Cannot resolve framebuffer %d", crtc.FramebufferID), err)
	}

	logger.Debug("framebuffer resolved",
		logging.Uint32(logging.FieldCrtcID, crtc.ID),
		logging.Uint32(logging.FieldFramebufferID, fb.ID),
		logging.String("geometry", fmt.Sprintf("%dx%d", fb.Width, fb.Height)),
		logging.Uint32("bpp", fb.BPP),
	)

	if expected := fb.ExpectedPitch(); expected != 0 && fb.Pitch != expected {
		logging.WarnWithContext(logger, "framebuffer rows are padded", "pitch_mismatch",
			logging.Uint32("pitch", fb.Pitch),
			logging.Uint32("expected_pitch", expected),
			logging.String(logging.FieldErrorHint, "the conversion assumes tightly packed rows"),
			logging.String(logging.FieldImpact, "the output image may be sheared"),
		)
	}

	size, err := fb.Size()
	if err != nil {
		return nil, Wrap(ErrMappingFailed, "map", "size", "Framebuffer geometry does not describe a mappable buffer", err)
	}

	fd, err := display.ExportFramebuffer(fb)
	if err != nil {
		return nil, Wrap(ErrExportFailed, "export", "prime", "Cannot export framebuffer as dma-buf", err)
	}

	frame, err := r.mapper.Map(fd, size)
	if err != nil {
		return nil, Wrap(ErrMappingFailed, "map", "mmap", "Cannot map exported framebuffer", err)
	}
	defer func() { _ = frame.Close() }()

	format, err := pixel.FormatFromBPP(fb.BPP)
	if err != nil {
		return nil, Wrap(ErrUnsupportedPixelFormat, "convert", "format",
			fmt.Sprintf("No decoder for %d bpp framebuffers", fb.BPP), err)
	}

	img, err := pixel.Convert(pixel.Desc{Width: fb.Width, Height: fb.Height, Format: format}, frame.Bytes())
	if err != nil {
		return nil, Wrap(convertMarker(err), "convert", "decode", "Cannot convert framebuffer pixels", err)
	}

	restore, err := r.drop()
	if err != nil {
		return nil, Wrap(ErrSinkWriteFailed, "sink", "drop-privileges", "Cannot drop privileges for the output write", err)
	}
	writeErr := sink.WritePNG(outputPath, img)
	if err := restore(); err != nil {
		logging.WarnWithContext(logger, "privilege restore failed", "privilege_restore_failed",
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "remaining writes continue with the invoking user's privileges"),
			logging.String(logging.FieldImpact, "state files may end up user-owned"),
		)
	}
	if writeErr != nil {
		return nil, Wrap(ErrSinkWriteFailed, "sink", "write", "Cannot write "+outputPath, writeErr)
	}

	var outputBytes int64
	if info, statErr := os.Stat(outputPath); statErr == nil {
		outputBytes = info.Size()
	}

	result := &Result{
		CaptureID:     captureID,
		OutputPath:    outputPath,
		DevicePath:    devicePath,
		CrtcID:        crtc.ID,
		FramebufferID: fb.ID,
		Width:         img.Width,
		Height:        img.Height,
		Pitch:         fb.Pitch,
		BPP:           fb.BPP,
		PixelFormat:   format.String(),
		OutputBytes:   outputBytes,
		Duration:      time.Since(start),
	}

	logger.Info("capture complete",
		logging.String(logging.FieldOutput, outputPath),
		logging.Uint32(logging.FieldCrtcID, result.CrtcID),
		logging.Uint32(logging.FieldFramebufferID, result.FramebufferID),
		logging.String(logging.FieldPixelFormat, result.PixelFormat),
		logging.String("geometry", fmt.Sprintf("%dx%d", result.Width, result.Height)),
		logging.Duration("duration", result.Duration),
	)

	r.record(ctx, logger, result)
	return result, nil
}

// convertMarker picks the taxonomy marker for a conversion failure. A short
// source buffer means the mapping did not cover the advertised geometry.
func convertMarker(err error) error {
	switch {
	case errors.Is(err, pixel.ErrUnsupportedFormat):
		return ErrUnsupportedPixelFormat
	case errors.Is(err, pixel.ErrFrameSize):
		return ErrAllocationFailed
	default:
		return ErrMappingFailed
	}
}

// record persists the capture in the history store. Failures are logged and
// swallowed: the PNG is already on disk.
func (r *Runner) record(ctx context.Context, logger *slog.Logger, result *Result) {
	if r.recorder == nil {
		return
	}

	entry := history.Entry{
		CaptureID:     result.CaptureID,
		OutputPath:    absolutePath(result.OutputPath),
		DevicePath:    result.DevicePath,
		CrtcID:        result.CrtcID,
		FramebufferID: result.FramebufferID,
		Width:         result.Width,
		Height:        result.Height,
		Pitch:         result.Pitch,
		BitsPerPixel:  result.BPP,
		PixelFormat:   result.PixelFormat,
		OutputBytes:   result.OutputBytes,
		Duration:      result.Duration,
	}
	if _, err := r.recorder.Record(ctx, entry); err != nil {
		logging.WarnWithContext(logger, "capture not recorded in history", "history_record_failed",
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "check permissions on the history database"),
			logging.String(logging.FieldImpact, "kmsgrab history will not show this capture"),
		)
		return
	}

	if keep := r.cfg.History.Keep; keep > 0 {
		if _, err := r.recorder.Prune(ctx, keep); err != nil {
			logging.WarnWithContext(logger, "history prune failed", "history_prune_failed",
				logging.Error(err),
				logging.String(logging.FieldErrorHint, "check permissions on the history database"),
				logging.String(logging.FieldImpact, "history may grow beyond its configured retention"),
			)
		}
	}
}

func absolutePath(path string) string {
	abs, err := filepath.Abs(path)
	if err != nil {
		return path
	}
	return abs
}

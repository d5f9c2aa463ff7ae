package capture

import (
	"bytes"
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"image/color"
	"image/png"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/gofrs/flock"

	"kmsgrab/internal/config"
	"kmsgrab/internal/drm"
	"kmsgrab/internal/history"
	"kmsgrab/internal/logging"
)

type fakeDisplay struct {
	path       string
	crtc       *drm.Crtc
	fb         *drm.Framebuffer
	exportFD   int
	capsErr    error
	crtcErr    error
	fbErr      error
	exportErr  error
	closeCount int
}

func (d *fakeDisplay) Path() string             { return d.path }
func (d *fakeDisplay) EnableCaptureCaps() error { return d.capsErr }

func (d *fakeDisplay) ActiveCrtc() (*drm.Crtc, error) {
	if d.crtcErr != nil {
		return nil, d.crtcErr
	}
	return d.crtc, nil
}

func (d *fakeDisplay) Framebuffer(id uint32) (*drm.Framebuffer, error) {
	if d.fbErr != nil {
		return nil, d.fbErr
	}
	if d.fb == nil || d.fb.ID != id {
		return nil, fmt.Errorf("no framebuffer %d", id)
	}
	return d.fb, nil
}

func (d *fakeDisplay) ExportFramebuffer(fb *drm.Framebuffer) (int, error) {
	if d.exportErr != nil {
		return -1, d.exportErr
	}
	return d.exportFD, nil
}

func (d *fakeDisplay) Close() error {
	d.closeCount++
	return nil
}

type fakeLocator struct {
	display *fakeDisplay
	err     error
}

func (l *fakeLocator) Locate() (Display, error) {
	if l.err != nil {
		return nil, l.err
	}
	return l.display, nil
}

type fakeMapping struct {
	data       []byte
	closeCount int
}

func (m *fakeMapping) Bytes() []byte { return m.data }

func (m *fakeMapping) Close() error {
	m.closeCount++
	return nil
}

type fakeMapper struct {
	mapping *fakeMapping
	err     error
}

func (m *fakeMapper) Map(fd, size int) (Mapping, error) {
	if m.err != nil {
		return nil, m.err
	}
	return m.mapping, nil
}

type fakeRecorder struct {
	entries   []history.Entry
	pruned    []int
	recordErr error
	onRecord  func()
}

func (r *fakeRecorder) Record(ctx context.Context, entry history.Entry) (*history.Entry, error) {
	if r.onRecord != nil {
		r.onRecord()
	}
	if r.recordErr != nil {
		return nil, r.recordErr
	}
	r.entries = append(r.entries, entry)
	stored := entry
	stored.ID = int64(len(r.entries))
	return &stored, nil
}

func (r *fakeRecorder) Prune(ctx context.Context, keep int) (int64, error) {
	r.pruned = append(r.pruned, keep)
	return 0, nil
}

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	t.Setenv("HOME", t.TempDir())
	t.Setenv("KMSGRAB_DEVICE", "")
	cfg, _, _, err := config.Load("")
	if err != nil {
		t.Fatalf("Load config: %v", err)
	}
	return cfg
}

// xrgbFrame packs little-endian XRGB8888 words for a 2x2 screen holding
// blue, green, red, and white pixels.
func xrgbFrame() []byte {
	words := []uint32{0x000000FF, 0x0000FF00, 0x00FF0000, 0x00FFFFFF}
	buf := make([]byte, len(words)*4)
	for i, w := range words {
		binary.LittleEndian.PutUint32(buf[i*4:], w)
	}
	return buf
}

func testDisplay() *fakeDisplay {
	return &fakeDisplay{
		path:     "/dev/dri/card0",
		crtc:     &drm.Crtc{ID: 41, FramebufferID: 97},
		fb:       &drm.Framebuffer{ID: 97, Width: 2, Height: 2, Pitch: 8, BPP: 32, Depth: 24},
		exportFD: 42,
	}
}

func newTestRunner(cfg *config.Config, locator Locator, mapper BufferMapper, recorder Recorder) *Runner {
	r := NewRunnerWithDependencies(cfg, logging.NewNop(), locator, mapper, recorder)
	r.newID = func() string { return "test-capture" }
	return r
}

func TestRunWritesPNGEndToEnd(t *testing.T) {
	display := testDisplay()
	mapping := &fakeMapping{data: xrgbFrame()}
	recorder := &fakeRecorder{}
	r := newTestRunner(testConfig(t), &fakeLocator{display: display}, &fakeMapper{mapping: mapping}, recorder)

	out := filepath.Join(t.TempDir(), "shot.png")
	result, err := r.Run(context.Background(), out)
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	f, err := os.Open(out)
	if err != nil {
		t.Fatalf("open output: %v", err)
	}
	defer f.Close()
	img, err := png.Decode(f)
	if err != nil {
		t.Fatalf("decode output: %v", err)
	}
	want := [][3]uint8{{0, 0, 255}, {0, 255, 0}, {255, 0, 0}, {255, 255, 255}}
	for i, rgb := range want {
		x, y := i%2, i/2
		got := color.NRGBAModel.Convert(img.At(x, y)).(color.NRGBA)
		if got.R != rgb[0] || got.G != rgb[1] || got.B != rgb[2] {
			t.Errorf("pixel (%d,%d) = (%d,%d,%d), want (%d,%d,%d)",
				x, y, got.R, got.G, got.B, rgb[0], rgb[1], rgb[2])
		}
	}

	if result.CaptureID != "test-capture" {
		t.Errorf("CaptureID = %q", result.CaptureID)
	}
	if result.Width != 2 || result.Height != 2 {
		t.Errorf("dimensions = %dx%d, want 2x2", result.Width, result.Height)
	}
	if result.PixelFormat != "xrgb8888" {
		t.Errorf("PixelFormat = %q, want xrgb8888", result.PixelFormat)
	}
	if result.CrtcID != 41 || result.FramebufferID != 97 {
		t.Errorf("ids = (%d, %d), want (41, 97)", result.CrtcID, result.FramebufferID)
	}
	info, err := os.Stat(out)
	if err != nil {
		t.Fatalf("stat output: %v", err)
	}
	if result.OutputBytes != info.Size() {
		t.Errorf("OutputBytes = %d, want %d", result.OutputBytes, info.Size())
	}

	if display.closeCount != 1 {
		t.Errorf("device closed %d times, want 1", display.closeCount)
	}
	if mapping.closeCount != 1 {
		t.Errorf("mapping closed %d times, want 1", mapping.closeCount)
	}

	if len(recorder.entries) != 1 {
		t.Fatalf("expected 1 history entry, got %d", len(recorder.entries))
	}
	entry := recorder.entries[0]
	if entry.CaptureID != "test-capture" || entry.Width != 2 || entry.BitsPerPixel != 32 {
		t.Errorf("unexpected history entry: %#v", entry)
	}
	if !filepath.IsAbs(entry.OutputPath) {
		t.Errorf("history output path %q is not absolute", entry.OutputPath)
	}
	if len(recorder.pruned) != 1 {
		t.Fatalf("expected 1 prune call, got %d", len(recorder.pruned))
	}
}

func TestRunRGB565EndToEnd(t *testing.T) {
	display := testDisplay()
	display.fb = &drm.Framebuffer{ID: 97, Width: 1, Height: 1, Pitch: 2, BPP: 16, Depth: 16}
	data := make([]byte, 2)
	binary.LittleEndian.PutUint16(data, 0xFFFF)
	mapping := &fakeMapping{data: data}
	r := newTestRunner(testConfig(t), &fakeLocator{display: display}, &fakeMapper{mapping: mapping}, nil)

	out := filepath.Join(t.TempDir(), "shot.png")
	result, err := r.Run(context.Background(), out)
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if result.PixelFormat != "rgb565" {
		t.Errorf("PixelFormat = %q, want rgb565", result.PixelFormat)
	}

	f, err := os.Open(out)
	if err != nil {
		t.Fatalf("open output: %v", err)
	}
	defer f.Close()
	img, err := png.Decode(f)
	if err != nil {
		t.Fatalf("decode output: %v", err)
	}
	got := color.NRGBAModel.Convert(img.At(0, 0)).(color.NRGBA)
	if got.R != 248 || got.G != 252 || got.B != 248 {
		t.Errorf("pixel = (%d,%d,%d), want (248,252,248)", got.R, got.G, got.B)
	}
}

func TestRunEmptyOutputPath(t *testing.T) {
	r := newTestRunner(testConfig(t), &fakeLocator{}, &fakeMapper{}, nil)
	if _, err := r.Run(context.Background(), "  "); !errors.Is(err, ErrValidation) {
		t.Fatalf("expected ErrValidation, got %v", err)
	}
}

func TestRunLocateFailurePropagates(t *testing.T) {
	locErr := Wrap(ErrDeviceNotFound, "locate", "scan", "No capture-capable DRM device found", nil)
	r := newTestRunner(testConfig(t), &fakeLocator{err: locErr}, &fakeMapper{}, nil)

	_, err := r.Run(context.Background(), filepath.Join(t.TempDir(), "shot.png"))
	if !errors.Is(err, ErrDeviceNotFound) {
		t.Fatalf("expected ErrDeviceNotFound, got %v", err)
	}
}

func TestRunClientCapsFailure(t *testing.T) {
	display := testDisplay()
	display.capsErr = errors.New("ioctl DRM_IOCTL_SET_CLIENT_CAP: invalid argument")
	r := newTestRunner(testConfig(t), &fakeLocator{display: display}, &fakeMapper{}, nil)

	_, err := r.Run(context.Background(), filepath.Join(t.TempDir(), "shot.png"))
	if !errors.Is(err, ErrCapabilityUnsupported) {
		t.Fatalf("expected ErrCapabilityUnsupported, got %v", err)
	}
	if display.closeCount != 1 {
		t.Errorf("device closed %d times, want 1", display.closeCount)
	}
}

func TestRunNoActiveOutput(t *testing.T) {
	display := testDisplay()
	display.crtcErr = fmt.Errorf("%w on %s", drm.ErrNoActiveDisplay, display.path)
	r := newTestRunner(testConfig(t), &fakeLocator{display: display}, &fakeMapper{}, nil)

	_, err := r.Run(context.Background(), filepath.Join(t.TempDir(), "shot.png"))
	if !errors.Is(err, ErrNoActiveOutput) {
		t.Fatalf("expected ErrNoActiveOutput, got %v", err)
	}
	if display.closeCount != 1 {
		t.Errorf("device closed %d times, want 1", display.closeCount)
	}
}

func TestRunResourceQueryFailure(t *testing.T) {
	display := testDisplay()
	display.crtcErr = errors.New("ioctl DRM_IOCTL_MODE_GETRESOURCES: permission denied")
	r := newTestRunner(testConfig(t), &fakeLocator{display: display}, &fakeMapper{}, nil)

	_, err := r.Run(context.Background(), filepath.Join(t.TempDir(), "shot.png"))
	if !errors.Is(err, ErrResourceQueryFailed) {
		t.Fatalf("expected ErrResourceQueryFailed, got %v", err)
	}
}

func TestRunFramebufferLookupFailure(t *testing.T) {
	display := testDisplay()
	display.fbErr = errors.New("ioctl DRM_IOCTL_MODE_GETFB(97): no such object")
	r := newTestRunner(testConfig(t), &fakeLocator{display: display}, &fakeMapper{}, nil)

	_, err := r.Run(context.Background(), filepath.Join(t.TempDir(), "shot.png"))
	if !errors.Is(err, ErrFramebufferLookupFailed) {
		t.Fatalf("expected ErrFramebufferLookupFailed, got %v", err)
	}
	if display.closeCount != 1 {
		t.Errorf("device closed %d times, want 1", display.closeCount)
	}
}

func TestRunExportFailure(t *testing.T) {
	display := testDisplay()
	display.exportErr = errors.New("ioctl DRM_IOCTL_PRIME_HANDLE_TO_FD: operation not permitted")
	mapper := &fakeMapper{mapping: &fakeMapping{}}
	r := newTestRunner(testConfig(t), &fakeLocator{display: display}, mapper, nil)

	_, err := r.Run(context.Background(), filepath.Join(t.TempDir(), "shot.png"))
	if !errors.Is(err, ErrExportFailed) {
		t.Fatalf("expected ErrExportFailed, got %v", err)
	}
	if display.closeCount != 1 {
		t.Errorf("device closed %d times, want 1", display.closeCount)
	}
	if mapper.mapping.closeCount != 0 {
		t.Errorf("mapping closed %d times before it was created", mapper.mapping.closeCount)
	}
}

func TestRunMapFailure(t *testing.T) {
	display := testDisplay()
	r := newTestRunner(testConfig(t), &fakeLocator{display: display}, &fakeMapper{err: errors.New("mmap: invalid argument")}, nil)

	_, err := r.Run(context.Background(), filepath.Join(t.TempDir(), "shot.png"))
	if !errors.Is(err, ErrMappingFailed) {
		t.Fatalf("expected ErrMappingFailed, got %v", err)
	}
	if display.closeCount != 1 {
		t.Errorf("device closed %d times, want 1", display.closeCount)
	}
}

// A 24 bpp framebuffer is mapped before its depth is rejected, so both the
// mapping and the device must still be released exactly once.
func TestRunUnsupportedDepthReleasesMapping(t *testing.T) {
	display := testDisplay()
	display.fb = &drm.Framebuffer{ID: 97, Width: 2, Height: 2, Pitch: 6, BPP: 24, Depth: 24}
	mapping := &fakeMapping{data: make([]byte, 12)}
	r := newTestRunner(testConfig(t), &fakeLocator{display: display}, &fakeMapper{mapping: mapping}, nil)

	_, err := r.Run(context.Background(), filepath.Join(t.TempDir(), "shot.png"))
	if !errors.Is(err, ErrUnsupportedPixelFormat) {
		t.Fatalf("expected ErrUnsupportedPixelFormat, got %v", err)
	}
	if display.closeCount != 1 {
		t.Errorf("device closed %d times, want 1", display.closeCount)
	}
	if mapping.closeCount != 1 {
		t.Errorf("mapping closed %d times, want 1", mapping.closeCount)
	}
}

func TestRunShortMappingIsMappingFailure(t *testing.T) {
	display := testDisplay()
	mapping := &fakeMapping{data: make([]byte, 8)} // 2x2 at 32 bpp needs 16
	r := newTestRunner(testConfig(t), &fakeLocator{display: display}, &fakeMapper{mapping: mapping}, nil)

	_, err := r.Run(context.Background(), filepath.Join(t.TempDir(), "shot.png"))
	if !errors.Is(err, ErrMappingFailed) {
		t.Fatalf("expected ErrMappingFailed, got %v", err)
	}
	if mapping.closeCount != 1 {
		t.Errorf("mapping closed %d times, want 1", mapping.closeCount)
	}
}

func TestRunSinkFailureReleasesEverything(t *testing.T) {
	display := testDisplay()
	mapping := &fakeMapping{data: xrgbFrame()}
	r := newTestRunner(testConfig(t), &fakeLocator{display: display}, &fakeMapper{mapping: mapping}, nil)

	var drops, restores int
	r.drop = func() (func() error, error) {
		drops++
		return func() error { restores++; return nil }, nil
	}

	out := filepath.Join(t.TempDir(), "missing", "shot.png")
	_, err := r.Run(context.Background(), out)
	if !errors.Is(err, ErrSinkWriteFailed) {
		t.Fatalf("expected ErrSinkWriteFailed, got %v", err)
	}
	if _, statErr := os.Stat(out); !errors.Is(statErr, os.ErrNotExist) {
		t.Errorf("expected no output file, stat returned %v", statErr)
	}
	if display.closeCount != 1 {
		t.Errorf("device closed %d times, want 1", display.closeCount)
	}
	if mapping.closeCount != 1 {
		t.Errorf("mapping closed %d times, want 1", mapping.closeCount)
	}
	if drops != 1 || restores != 1 {
		t.Errorf("drop/restore = %d/%d, want 1/1", drops, restores)
	}
}

func TestRunRestoresPrivilegesBeforeRecording(t *testing.T) {
	display := testDisplay()
	mapping := &fakeMapping{data: xrgbFrame()}

	var events []string
	recorder := &fakeRecorder{onRecord: func() { events = append(events, "record") }}
	r := newTestRunner(testConfig(t), &fakeLocator{display: display}, &fakeMapper{mapping: mapping}, recorder)
	r.drop = func() (func() error, error) {
		events = append(events, "drop")
		return func() error { events = append(events, "restore"); return nil }, nil
	}

	if _, err := r.Run(context.Background(), filepath.Join(t.TempDir(), "shot.png")); err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	want := []string{"drop", "restore", "record"}
	if len(events) != len(want) {
		t.Fatalf("events = %v, want %v", events, want)
	}
	for i := range want {
		if events[i] != want[i] {
			t.Fatalf("events = %v, want %v", events, want)
		}
	}
}

func TestRunHistoryFailureDoesNotFailCapture(t *testing.T) {
	display := testDisplay()
	mapping := &fakeMapping{data: xrgbFrame()}
	recorder := &fakeRecorder{recordErr: errors.New("database is locked")}
	r := newTestRunner(testConfig(t), &fakeLocator{display: display}, &fakeMapper{mapping: mapping}, recorder)

	out := filepath.Join(t.TempDir(), "shot.png")
	if _, err := r.Run(context.Background(), out); err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if _, err := os.Stat(out); err != nil {
		t.Fatalf("output missing: %v", err)
	}
	if len(recorder.pruned) != 0 {
		t.Errorf("prune ran %d times after a failed record", len(recorder.pruned))
	}
}

func TestRunBlockedWhileLockHeld(t *testing.T) {
	cfg := testConfig(t)
	if err := cfg.EnsureDirectories(); err != nil {
		t.Fatalf("EnsureDirectories failed: %v", err)
	}
	lock := flock.New(cfg.LockPath())
	locked, err := lock.TryLock()
	if err != nil || !locked {
		t.Fatalf("pre-acquire lock: locked=%v err=%v", locked, err)
	}
	defer func() { _ = lock.Unlock() }()

	display := testDisplay()
	r := newTestRunner(cfg, &fakeLocator{display: display}, &fakeMapper{mapping: &fakeMapping{data: xrgbFrame()}}, nil)
	if _, err := r.Run(context.Background(), filepath.Join(t.TempDir(), "shot.png")); !errors.Is(err, ErrCaptureLocked) {
		t.Fatalf("expected ErrCaptureLocked, got %v", err)
	}
	if display.closeCount != 0 {
		t.Errorf("device opened despite held lock")
	}
}

func TestRunWarnsOnPaddedPitch(t *testing.T) {
	display := testDisplay()
	display.fb.Pitch = 16 // packed rows would be 8
	mapping := &fakeMapping{data: xrgbFrame()}

	var buf bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&buf, nil))
	r := NewRunnerWithDependencies(testConfig(t), logger, &fakeLocator{display: display}, &fakeMapper{mapping: mapping}, nil)
	r.newID = func() string { return "test-capture" }

	if _, err := r.Run(context.Background(), filepath.Join(t.TempDir(), "shot.png")); err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if !strings.Contains(buf.String(), "pitch_mismatch") {
		t.Fatalf("expected pitch warning in log output, got %q", buf.String())
	}
}

package capture

import (
	"errors"
	"fmt"
	"strings"
)

// Stage failures are tagged with one of these markers. The first block
// mirrors the points where a capture can die, in pipeline order.
var (
	ErrDeviceNotFound          = errors.New("device not found")
	ErrCapabilityUnsupported   = errors.New("capability unsupported")
	ErrResourceQueryFailed     = errors.New("resource query failed")
	ErrNoActiveOutput          = errors.New("no active output")
	ErrFramebufferLookupFailed = errors.New("framebuffer lookup failed")
	ErrExportFailed            = errors.New("export failed")
	ErrUnsupportedPixelFormat  = errors.New("unsupported pixel format")
	ErrMappingFailed           = errors.New("mapping failed")
	ErrAllocationFailed        = errors.New("allocation failed")
	ErrSinkWriteFailed         = errors.New("sink write failed")

	ErrCaptureLocked = errors.New("capture already running")
	ErrValidation    = errors.New("validation error")
	ErrConfiguration = errors.New("configuration error")
)

// Wrap builds an error message that includes stage context while tagging it
// with the provided marker for later classification. The marker should be
// one of the exported sentinel errors above; a nil marker leaves the error
// untagged.
func Wrap(marker error, stage, operation, message string, err error) error {
	detail := buildDetail(stage, operation, message)
	if marker == nil {
		if err != nil {
			return fmt.Errorf("%s: %w", detail, err)
		}
		return errors.New(detail)
	}
	if err != nil {
		return fmt.Errorf("%w: %s: %w", marker, detail, err)
	}
	return fmt.Errorf("%w: %s", marker, detail)
}

func buildDetail(stage, operation, message string) string {
	parts := make([]string, 0, 3)
	if stage = strings.TrimSpace(stage); stage != "" {
		parts = append(parts, stage)
	}
	if operation = strings.TrimSpace(operation); operation != "" {
		parts = append(parts, operation)
	}
	if message = strings.TrimSpace(message); message != "" {
		parts = append(parts, message)
	}
	if len(parts) == 0 {
		return "capture failure"
	}
	return strings.Join(parts, ": ")
}

package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"kmsgrab/internal/capture"
	"kmsgrab/internal/logging"
)

// runCapture backs the bare invocation: grab the active framebuffer and
// write it to the named PNG.
func runCapture(cmd *cobra.Command, ctx *commandContext, args []string) error {
	if len(args) == 0 {
		fmt.Fprint(cmd.ErrOrStderr(), cmd.UsageString())
		return errors.New("output path is required")
	}

	cfg, err := ctx.ensureConfig()
	if err != nil {
		return err
	}
	logger, err := ctx.ensureLogger()
	if err != nil {
		return err
	}

	var recorder capture.Recorder
	store, err := ctx.openHistory()
	switch {
	case err != nil:
		logging.WarnWithContext(logger, "capture history unavailable", "history_open_failed",
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "check history.path in the configuration"),
			logging.String(logging.FieldImpact, "this capture will not be recorded"),
		)
	case store != nil:
		defer store.Close()
		recorder = store
	}

	result, err := capture.NewRunner(cfg, logger, recorder).Run(cmd.Context(), args[0])
	if err != nil {
		return err
	}

	if ctx.JSONMode() {
		return writeJSON(cmd, map[string]any{
			"capture_id":     result.CaptureID,
			"output":         result.OutputPath,
			"device":         result.DevicePath,
			"crtc_id":        result.CrtcID,
			"framebuffer_id": result.FramebufferID,
			"width":          result.Width,
			"height":         result.Height,
			"pixel_format":   result.PixelFormat,
			"output_bytes":   result.OutputBytes,
			"duration_ms":    result.Duration.Milliseconds(),
		})
	}

	fmt.Fprintf(cmd.OutOrStdout(), "Saved %s (%dx%d %s)\n",
		result.OutputPath, result.Width, result.Height, result.PixelFormat)
	return nil
}

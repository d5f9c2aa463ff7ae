package main

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"kmsgrab/internal/capture"
	"kmsgrab/internal/drm"
)

// outputReport is one CRTC merged with the framebuffer it scans out, when
// one is bound.
type outputReport struct {
	CrtcID        uint32 `json:"crtc_id"`
	FramebufferID uint32 `json:"framebuffer_id,omitempty"`
	Width         uint32 `json:"width,omitempty"`
	Height        uint32 `json:"height,omitempty"`
	Pitch         uint32 `json:"pitch,omitempty"`
	BPP           uint32 `json:"bits_per_pixel,omitempty"`
	Mode          string `json:"mode,omitempty"`
	Active        bool   `json:"active"`
	Note          string `json:"note,omitempty"`
}

func newOutputsCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "outputs",
		Short: "List CRTCs on the capture device",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			logger, err := ctx.ensureLogger()
			if err != nil {
				return err
			}

			device, err := capture.OpenDevice(cfg, logger)
			if err != nil {
				return err
			}
			defer device.Close()

			// Same client caps a capture sets, so the listing reflects the
			// state the capture path would see.
			if err := device.EnableCaptureCaps(); err != nil {
				return err
			}

			reports, err := collectOutputs(device)
			if err != nil {
				return err
			}

			if ctx.JSONMode() {
				if reports == nil {
					reports = []outputReport{}
				}
				return writeJSON(cmd, map[string]any{
					"device":  device.Path(),
					"outputs": reports,
				})
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Device: %s\n", device.Path())
			if len(reports) == 0 {
				fmt.Fprintln(out, "No CRTCs reported")
				return nil
			}
			renderRows(out,
				[]string{"CRTC", "FB", "Geometry", "Pitch", "BPP", "Mode", "Active"},
				outputRows(reports),
				[]columnAlignment{alignRight, alignRight, alignLeft, alignRight, alignRight, alignLeft, alignLeft},
			)
			return nil
		},
	}
}

// collectOutputs walks every CRTC the device reports. A framebuffer that
// disappears between the CRTC read and the lookup becomes a note instead of
// failing the whole listing.
func collectOutputs(device *drm.Device) ([]outputReport, error) {
	res, err := device.Resources()
	if err != nil {
		return nil, err
	}

	reports := make([]outputReport, 0, len(res.CrtcIDs))
	for _, id := range res.CrtcIDs {
		crtc, err := device.Crtc(id)
		if err != nil {
			return nil, err
		}

		report := outputReport{
			CrtcID: crtc.ID,
			Active: crtc.FramebufferID != 0,
		}
		if crtc.ModeValid {
			report.Mode = crtc.Mode.Name
		}
		if crtc.FramebufferID != 0 {
			report.FramebufferID = crtc.FramebufferID
			fb, err := device.Framebuffer(crtc.FramebufferID)
			if err != nil {
				report.Note = "framebuffer vanished during listing"
			} else {
				report.Width = fb.Width
				report.Height = fb.Height
				report.Pitch = fb.Pitch
				report.BPP = fb.BPP
			}
		}
		reports = append(reports, report)
	}
	return reports, nil
}

// outputRows renders reports as table cells. Inactive CRTCs show dashes so
// the one a capture would pick stands out.
func outputRows(reports []outputReport) [][]string {
	rows := make([][]string, 0, len(reports))
	for _, report := range reports {
		row := []string{
			strconv.FormatUint(uint64(report.CrtcID), 10),
			"-", "-", "-", "-",
			report.Mode,
			yesNo(report.Active),
		}
		if report.FramebufferID != 0 {
			row[1] = strconv.FormatUint(uint64(report.FramebufferID), 10)
			if report.Width != 0 || report.Height != 0 {
				row[2] = fmt.Sprintf("%dx%d", report.Width, report.Height)
				row[3] = strconv.FormatUint(uint64(report.Pitch), 10)
				row[4] = strconv.FormatUint(uint64(report.BPP), 10)
			}
		}
		if row[5] == "" {
			row[5] = "-"
		}
		rows = append(rows, row)
	}
	return rows
}

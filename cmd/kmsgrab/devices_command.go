package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"kmsgrab/internal/drm"
)

// deviceReport is one discovered card node merged with its capture probe.
type deviceReport struct {
	Path        string `json:"path"`
	SysPath     string `json:"syspath"`
	Driver      string `json:"driver,omitempty"`
	DumbBuffers bool   `json:"dumb_buffers"`
	Error       string `json:"error,omitempty"`
}

func newDevicesCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "devices",
		Short: "List DRM devices and their capture capability",
		RunE: func(cmd *cobra.Command, args []string) error {
			cards, err := drm.EnumerateCards()
			if err != nil {
				return err
			}

			reports := probeCards(cards)

			if ctx.JSONMode() {
				if reports == nil {
					reports = []deviceReport{}
				}
				return writeJSON(cmd, map[string]any{"devices": reports})
			}

			if len(reports) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "No DRM devices found")
				return nil
			}
			renderRows(cmd.OutOrStdout(),
				[]string{"Device", "Driver", "Capture", "Detail"},
				deviceRows(reports),
				[]columnAlignment{alignLeft, alignLeft, alignLeft, alignLeft},
			)
			return nil
		},
	}
}

// probeCards opens each discovered card and asks for the dumb buffer
// capability, the same test the capture scan applies. Nodes that cannot be
// opened stay in the listing with the failure attached.
func probeCards(cards []drm.Card) []deviceReport {
	reports := make([]deviceReport, 0, len(cards))
	for _, card := range cards {
		report := deviceReport{
			Path:    card.Path,
			SysPath: card.SysPath,
			Driver:  card.Driver,
		}

		device, err := drm.Open(card.Path)
		if err != nil {
			report.Error = err.Error()
			reports = append(reports, report)
			continue
		}
		capable, err := device.SupportsDumbBuffers()
		if err != nil {
			report.Error = err.Error()
		} else {
			report.DumbBuffers = capable
		}
		_ = device.Close()

		reports = append(reports, report)
	}
	return reports
}

func deviceRows(reports []deviceReport) [][]string {
	rows := make([][]string, 0, len(reports))
	for _, report := range reports {
		driver := report.Driver
		if driver == "" {
			driver = "-"
		}
		captureCell := yesNo(report.DumbBuffers)
		detail := "-"
		if report.Error != "" {
			captureCell = "?"
			detail = report.Error
		}
		rows = append(rows, []string{report.Path, driver, captureCell, detail})
	}
	return rows
}

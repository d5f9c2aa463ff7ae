package main

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"kmsgrab/internal/history"
)

func newHistoryCommand(ctx *commandContext) *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "history",
		Short: "Show recent captures",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}

			// Listing works even with recording disabled, but never creates
			// the database as a side effect.
			if _, err := os.Stat(cfg.History.Path); errors.Is(err, fs.ErrNotExist) {
				if ctx.JSONMode() {
					return writeJSON(cmd, map[string]any{"captures": []any{}})
				}
				fmt.Fprintln(cmd.OutOrStdout(), "No captures recorded yet")
				return nil
			}

			store, err := history.Open(cfg)
			if err != nil {
				return err
			}
			defer store.Close()

			entries, err := store.List(cmd.Context(), limit)
			if err != nil {
				return err
			}

			if ctx.JSONMode() {
				return writeHistoryJSON(cmd, entries)
			}

			if len(entries) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "No captures recorded yet")
				return nil
			}
			renderRows(cmd.OutOrStdout(),
				[]string{"ID", "Captured", "Output", "Geometry", "Format", "Duration"},
				historyRows(entries),
				[]columnAlignment{alignRight, alignLeft, alignLeft, alignLeft, alignLeft, alignRight},
			)
			return nil
		},
	}

	cmd.Flags().IntVar(&limit, "limit", 20, "Maximum number of captures to show (0 shows everything)")
	return cmd
}

func writeHistoryJSON(cmd *cobra.Command, entries []history.Entry) error {
	type jsonEntry struct {
		ID            int64  `json:"id"`
		CaptureID     string `json:"capture_id"`
		Output        string `json:"output"`
		Device        string `json:"device"`
		CrtcID        uint32 `json:"crtc_id"`
		FramebufferID uint32 `json:"framebuffer_id"`
		Width         int    `json:"width"`
		Height        int    `json:"height"`
		Pitch         uint32 `json:"pitch"`
		BitsPerPixel  uint32 `json:"bits_per_pixel"`
		PixelFormat   string `json:"pixel_format"`
		OutputBytes   int64  `json:"output_bytes"`
		DurationMS    int64  `json:"duration_ms"`
		CreatedAt     string `json:"created_at"`
	}
	items := make([]jsonEntry, 0, len(entries))
	for _, entry := range entries {
		items = append(items, jsonEntry{
			ID:            entry.ID,
			CaptureID:     entry.CaptureID,
			Output:        entry.OutputPath,
			Device:        entry.DevicePath,
			CrtcID:        entry.CrtcID,
			FramebufferID: entry.FramebufferID,
			Width:         entry.Width,
			Height:        entry.Height,
			Pitch:         entry.Pitch,
			BitsPerPixel:  entry.BitsPerPixel,
			PixelFormat:   entry.PixelFormat,
			OutputBytes:   entry.OutputBytes,
			DurationMS:    entry.Duration.Milliseconds(),
			CreatedAt:     entry.CreatedAt.UTC().Format(time.RFC3339Nano),
		})
	}
	return writeJSON(cmd, map[string]any{"captures": items})
}

func historyRows(entries []history.Entry) [][]string {
	rows := make([][]string, 0, len(entries))
	for _, entry := range entries {
		rows = append(rows, []string{
			strconv.FormatInt(entry.ID, 10),
			entry.CreatedAt.Local().Format("2006-01-02 15:04:05"),
			entry.OutputPath,
			fmt.Sprintf("%dx%d", entry.Width, entry.Height),
			entry.PixelFormat,
			entry.Duration.Truncate(time.Millisecond).String(),
		})
	}
	return rows
}

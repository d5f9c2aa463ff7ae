package drm

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"path/filepath"

	"kmsgrab/internal/logging"
)

// FindDevice probes dir/card0, dir/card1, ... up to maxCards and returns
// the first device whose driver reports dumb buffer support. Card minors
// are allocated densely, so the scan stops at the first index that does
// not exist; any other open failure (such as missing permissions) aborts
// the scan immediately. Cards without dumb buffer support are closed and
// skipped.
func FindDevice(dir string, maxCards int, logger *slog.Logger) (*Device, error) {
	log := logging.NewComponentLogger(logger, "drm")

	for card := 0; card < maxCards; card++ {
		path := filepath.Join(dir, fmt.Sprintf("card%d", card))

		dev, err := Open(path)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) && card > 0 {
				break
			}
			return nil, err
		}

		capable, err := dev.SupportsDumbBuffers()
		if err != nil || !capable {
			if err != nil {
				log.Debug("dumb buffer probe failed",
					logging.String(logging.FieldDevice, path),
					logging.Error(err),
				)
			} else {
				log.Debug("device lacks dumb buffer support",
					logging.String(logging.FieldDevice, path),
				)
			}
			if closeErr := dev.Close(); closeErr != nil {
				log.Debug("close probed device", logging.Error(closeErr))
			}
			continue
		}

		log.Debug("selected device",
			logging.String(logging.FieldDevice, path),
			logging.Int(logging.FieldCard, card),
		)
		return dev, nil
	}

	return nil, fmt.Errorf("%w: scanned %s", ErrNoCapableDevice, dir)
}

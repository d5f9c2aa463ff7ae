package config

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"
)

// Validate ensures the configuration is usable.
func (c *Config) Validate() error {
	if err := c.validateCapture(); err != nil {
		return err
	}
	if err := c.validateHistory(); err != nil {
		return err
	}
	return nil
}

func (c *Config) validateCapture() error {
	if strings.TrimSpace(c.Capture.DeviceDir) == "" {
		return errors.New("capture.device_dir must be set")
	}
	if !filepath.IsAbs(c.Capture.DeviceDir) {
		return fmt.Errorf("capture.device_dir must be an absolute path, got %q", c.Capture.DeviceDir)
	}
	if c.Capture.Device != "" && !filepath.IsAbs(c.Capture.Device) {
		return fmt.Errorf("capture.device must be an absolute path, got %q", c.Capture.Device)
	}
	if c.Capture.MaxCards <= 0 {
		return errors.New("capture.max_cards must be positive")
	}
	if c.Capture.MaxCards > 256 {
		return errors.New("capture.max_cards must be at most 256")
	}
	return nil
}

func (c *Config) validateHistory() error {
	if c.History.Enabled && strings.TrimSpace(c.History.Path) == "" {
		return errors.New("history.path must be set when history.enabled is true")
	}
	if c.History.Keep < 0 {
		return errors.New("history.keep must be >= 0")
	}
	return nil
}

package main

import (
	"log/slog"
	"strings"
	"sync"

	"github.com/spf13/cobra"

	"kmsgrab/internal/config"
	"kmsgrab/internal/history"
	"kmsgrab/internal/logging"
)

// commandContext owns the state flags and subcommands share: the resolved
// configuration and the process logger, each built once on first use.
type commandContext struct {
	configFlag    string
	deviceFlag    string
	logLevelFlag  string
	logFormatFlag string
	noHistory     bool
	jsonOutput    bool

	configOnce sync.Once
	config     *config.Config
	configErr  error

	loggerOnce sync.Once
	logger     *slog.Logger
	loggerErr  error
}

func (c *commandContext) ensureConfig() (*config.Config, error) {
	c.configOnce.Do(func() {
		cfg, _, _, err := config.Load(strings.TrimSpace(c.configFlag))
		if err != nil {
			c.configErr = err
			return
		}
		c.applyFlagOverrides(cfg)
		if err := cfg.EnsureDirectories(); err != nil {
			c.configErr = err
			return
		}
		c.config = cfg
	})
	return c.config, c.configErr
}

// applyFlagOverrides layers command-line flags over the file-derived config
// before anything reads it.
func (c *commandContext) applyFlagOverrides(cfg *config.Config) {
	if device := strings.TrimSpace(c.deviceFlag); device != "" {
		cfg.Capture.Device = device
	}
	if level := strings.TrimSpace(c.logLevelFlag); level != "" {
		cfg.Logging.Level = level
	}
	if format := strings.TrimSpace(c.logFormatFlag); format != "" {
		cfg.Logging.Format = format
	}
	if c.noHistory {
		cfg.History.Enabled = false
	}
}

func (c *commandContext) configValue() *config.Config {
	cfg, _ := c.ensureConfig()
	return cfg
}

func (c *commandContext) ensureLogger() (*slog.Logger, error) {
	c.loggerOnce.Do(func() {
		cfg, err := c.ensureConfig()
		if err != nil {
			c.loggerErr = err
			return
		}
		logger, err := logging.NewFromConfig(cfg)
		if err != nil {
			c.loggerErr = err
			return
		}
		c.logger = logger
	})
	return c.logger, c.loggerErr
}

// openHistory opens the capture history store. A nil store with a nil error
// means recording is disabled.
func (c *commandContext) openHistory() (*history.Store, error) {
	cfg, err := c.ensureConfig()
	if err != nil {
		return nil, err
	}
	if !cfg.History.Enabled {
		return nil, nil
	}
	return history.Open(cfg)
}

func (c *commandContext) JSONMode() bool {
	return c.jsonOutput
}

func shouldSkipConfig(cmd *cobra.Command) bool {
	for c := cmd; c != nil; c = c.Parent() {
		if c.Annotations != nil && c.Annotations["skipConfigLoad"] == "true" {
			return true
		}
	}
	return false
}

func yesNo(value bool) string {
	if value {
		return "yes"
	}
	return "no"
}

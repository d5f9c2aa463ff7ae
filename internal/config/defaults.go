package config

const (
	defaultStateDir    = "~/.local/share/kmsgrab"
	defaultDeviceDir   = "/dev/dri"
	defaultMaxCards    = 16
	defaultHistoryKeep = 1000
	defaultLogFormat   = "console"
	defaultLogLevel    = "info"
)

// Default returns a Config populated with repository defaults.
func Default() Config {
	return Config{
		Paths: Paths{
			StateDir: defaultStateDir,
		},
		Capture: Capture{
			DeviceDir: defaultDeviceDir,
			MaxCards:  defaultMaxCards,
		},
		History: History{
			Enabled: true,
			Keep:    defaultHistoryKeep,
		},
		Logging: Logging{
			Format: defaultLogFormat,
			Level:  defaultLogLevel,
		},
	}
}

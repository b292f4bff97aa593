package tool

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/moyoez/partyline-console/types"
)

// ConfigPath is the settings file in use, default ./partyline.yaml.
var ConfigPath = "partyline.yaml"

const (
	DefaultDashboardPort = 8090
	DefaultMetricsMs     = 500
	DefaultPeersMs       = 500
	DefaultMicLevelMs    = 300
)

func DefaultAppConfig() types.AppConfig {
	return types.AppConfig{
		Base:          "", // same-origin
		DashboardPort: DefaultDashboardPort,
		DownloadDir:   ".",
		Log:           "prod",
		Poll: types.PollConfig{
			MetricsMs:  DefaultMetricsMs,
			PeersMs:    DefaultPeersMs,
			MicLevelMs: DefaultMicLevelMs,
		},
		Mirror: types.MirrorConfig{
			ClientID:    "partyline-console",
			TopicPrefix: "partyline",
		},
	}
}

// LoadConfig reads the console settings file, writing defaults when it does not exist.
func LoadConfig(path string) (types.AppConfig, error) {
	if path == "" {
		path = ConfigPath
	}
	ConfigPath = path

	cfg := DefaultAppConfig()

	info, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			if writeErr := writeConfig(path, cfg); writeErr != nil {
				return cfg, fmt.Errorf("config file not found, and failed to generate default config: %v", writeErr)
			}
			DefaultLogger.Infof("Created default console config at %s", path)
			return cfg, nil
		}
		return cfg, fmt.Errorf("failed to read config file: %v", err)
	}
	if info.IsDir() {
		return cfg, fmt.Errorf("config file path is a directory: %s", path)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("failed to read config file: %v", err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("failed to parse config file: %v", err)
	}
	normalizeConfig(&cfg)

	return cfg, nil
}

// normalizeConfig replaces zero or negative values a hand-edited file may carry.
func normalizeConfig(cfg *types.AppConfig) {
	if cfg.DashboardPort <= 0 {
		cfg.DashboardPort = DefaultDashboardPort
	}
	if cfg.Poll.MetricsMs <= 0 {
		cfg.Poll.MetricsMs = DefaultMetricsMs
	}
	if cfg.Poll.PeersMs <= 0 {
		cfg.Poll.PeersMs = DefaultPeersMs
	}
	if cfg.Poll.MicLevelMs <= 0 {
		cfg.Poll.MicLevelMs = DefaultMicLevelMs
	}
	if cfg.DownloadDir == "" {
		cfg.DownloadDir = "."
	}
}

// ApplyOverrides layers CLI flags on top of the file values.
func ApplyOverrides(cfg *types.AppConfig, flags types.Config) {
	if flags.UseBase != "" {
		cfg.Base = flags.UseBase
	}
	if flags.UsePort > 0 {
		cfg.DashboardPort = flags.UsePort
	}
	if flags.UseDownload != "" {
		cfg.DownloadDir = flags.UseDownload
	}
	if flags.Log != "" {
		cfg.Log = flags.Log
	}
}

func writeConfig(path string, cfg types.AppConfig) error {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}

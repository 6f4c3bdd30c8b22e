package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"
	_ "time/tzdata"

	"gopkg.in/yaml.v3"
)

// FileName is the config file looked up in a workspace.
const FileName = "dispatch.yml"

// Config models dispatch.yml.
type Config struct {
	Operator struct {
		ID       string `yaml:"id"`
		Timezone string `yaml:"timezone"`
	} `yaml:"operator"`
	BusinessDay struct {
		RolloverHour int `yaml:"rollover_hour"`
	} `yaml:"business_day"`
	Staleness struct {
		WarnAfter  time.Duration `yaml:"warn_after"`
		AlertAfter time.Duration `yaml:"alert_after"`
	} `yaml:"staleness"`
	Capacity struct {
		SafePerWorkerDay     float64 `yaml:"safe_per_worker_day"`
		StandardPerWorkerDay float64 `yaml:"standard_per_worker_day"`
		MaxPerWorkerDay      float64 `yaml:"max_per_worker_day"`
		WarnRatio            float64 `yaml:"warn_ratio"`
		DangerRatio          float64 `yaml:"danger_ratio"`
	} `yaml:"capacity"`
	Status struct {
		TroubleReasons []string `yaml:"trouble_reasons"`
	} `yaml:"status"`
	MasterData MasterDataConfig `yaml:"masterdata"`
	Log        LogConfig        `yaml:"log"`
}

type MasterDataConfig struct {
	BaseURL       string        `yaml:"base_url"`
	CacheSize     int           `yaml:"cache_size"`
	CacheTTL      time.Duration `yaml:"cache_ttl"`
	LookupTimeout time.Duration `yaml:"lookup_timeout"` // bounds all name lookups made for one response
}

type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// Validate ensures the config meets required structure.
func (c *Config) Validate() error {
	if c.Operator.ID == "" {
		return fmt.Errorf("config.operator.id is required")
	}
	if _, err := c.Location(); err != nil {
		return fmt.Errorf("config.operator.timezone: %w", err)
	}
	if c.BusinessDay.RolloverHour < 0 || c.BusinessDay.RolloverHour > 12 {
		return fmt.Errorf("config.business_day.rollover_hour must be between 0 and 12")
	}
	if c.Staleness.WarnAfter <= 0 || c.Staleness.AlertAfter <= 0 {
		return fmt.Errorf("config.staleness thresholds must be positive")
	}
	if c.Staleness.AlertAfter < c.Staleness.WarnAfter {
		return fmt.Errorf("config.staleness.alert_after must not be shorter than warn_after")
	}
	cp := c.Capacity
	if cp.SafePerWorkerDay <= 0 || cp.StandardPerWorkerDay <= 0 || cp.MaxPerWorkerDay <= 0 {
		return fmt.Errorf("config.capacity per-worker-day multipliers must be positive")
	}
	if cp.SafePerWorkerDay > cp.StandardPerWorkerDay || cp.StandardPerWorkerDay > cp.MaxPerWorkerDay {
		return fmt.Errorf("config.capacity multipliers must satisfy safe <= standard <= max")
	}
	if cp.WarnRatio <= 0 || cp.DangerRatio <= cp.WarnRatio {
		return fmt.Errorf("config.capacity requires 0 < warn_ratio < danger_ratio")
	}
	for _, r := range c.Status.TroubleReasons {
		if r == "" {
			return fmt.Errorf("config.status.trouble_reasons contains an empty code")
		}
	}
	if c.MasterData.CacheSize < 0 {
		return fmt.Errorf("config.masterdata.cache_size must not be negative")
	}
	if c.MasterData.LookupTimeout < 0 {
		return fmt.Errorf("config.masterdata.lookup_timeout must not be negative")
	}
	switch c.Log.Level {
	case "", "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("config.log.level %q is not supported", c.Log.Level)
	}
	return nil
}

// Location returns the operator time zone.
func (c *Config) Location() (*time.Location, error) {
	if c.Operator.Timezone == "" || c.Operator.Timezone == "UTC" {
		return time.UTC, nil
	}
	return time.LoadLocation(c.Operator.Timezone)
}

// Path returns the config file path for a workspace.
func Path(workspace string) string {
	if workspace == "" {
		workspace = "."
	}
	return filepath.Join(workspace, FileName)
}

// GenerateDefault returns default config YAML.
func GenerateDefault(operatorID string) string {
	return fmt.Sprintf(defaultTemplate, operatorID)
}

// Default returns the default Config struct for an operator.
func Default(operatorID string) *Config {
	cfg, err := FromYAML([]byte(GenerateDefault(operatorID)))
	if err != nil {
		panic(fmt.Sprintf("default config is invalid: %v", err))
	}
	return cfg
}

// Load reads and validates config from a workspace.
func Load(workspace string) (*Config, error) {
	path := Path(workspace)
	cfg, err := FromFile(path)
	if os.IsNotExist(err) {
		return nil, fmt.Errorf("config %s not found; create one with dl init", path)
	}
	return cfg, err
}

// LoadOptional returns nil,nil if the config file does not exist.
func LoadOptional(workspace string) (*Config, error) {
	cfg, err := FromFile(Path(workspace))
	if os.IsNotExist(err) {
		return nil, nil
	}
	return cfg, err
}

// FromYAML parses and validates config from raw YAML bytes.
func FromYAML(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("invalid config yaml: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// FromFile reads YAML config from the given path.
func FromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return FromYAML(data)
}

const defaultTemplate = `operator:
  id: %s
  timezone: Asia/Tokyo

business_day:
  # hours before this belong to the previous business date (16:00 -> 04:00 night shift)
  rollover_hour: 4

staleness:
  warn_after: 30m
  alert_after: 60m

capacity:
  safe_per_worker_day: 2.0
  standard_per_worker_day: 2.5
  max_per_worker_day: 3.0
  warn_ratio: 0.7
  danger_ratio: 0.9

status:
  trouble_reasons: [recleaning, shortfall_makeup]

masterdata:
  base_url: ""
  cache_size: 512
  cache_ttl: 10m
  lookup_timeout: 2s

log:
  level: info
  format: console
`

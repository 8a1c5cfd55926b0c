package config

import (
	"errors"
	"fmt"
	"time"
)

// ConfigProvider defines the interface for configuration data sources
type ConfigProvider interface {
	// Load complete configuration
	LoadConfig() (*ConfigData, error)

	// Get specific configuration sections
	GetStorageConfig() (*StorageData, error)
	GetServerConfig() (*ServerData, error)
	GetAnalysisConfig() (*AnalysisData, error)

	IsReadOnly() bool
	Close() error
}

// ConfigData represents the complete configuration structure
type ConfigData struct {
	Storage  StorageData  `json:"storage"`
	Server   ServerData   `json:"server"`
	Analysis AnalysisData `json:"analysis"`
}

// StorageData holds the configuration for the reading store
type StorageData struct {
	TimescaleDB *TimescaleDBData `json:"timescaledb,omitempty"`
}

// TimescaleDBData holds the TimescaleDB (PostgreSQL) connection settings
type TimescaleDBData struct {
	ConnectionString string `json:"connection_string"`
}

// ServerData holds the REST server configuration
type ServerData struct {
	ListenAddr string `json:"listen_addr,omitempty"`
	Port       int    `json:"port,omitempty"`
	Cert       string `json:"cert,omitempty"`
	Key        string `json:"key,omitempty"`
	EnableCORS bool   `json:"enable_cors,omitempty"`
}

// AnalysisData holds the flow analysis tunables. Rates are expressed in
// volume units per RateUnit; durations are in minutes unless noted. The
// margins are pointers so that an explicit 0 (no widening) is kept apart
// from an unset value.
type AnalysisData struct {
	RateUnit              string  `json:"rate_unit,omitempty"`
	ScaleFactor           float64 `json:"scale_factor,omitempty"`
	FlowStartThreshold    float64 `json:"flow_start_threshold"`
	FlowContinueThreshold float64 `json:"flow_continue_threshold"`
	MinDurationMinutes    float64 `json:"min_duration_minutes"`
	MinAverageRate        float64 `json:"min_average_rate"`
	MaxPlausibleRate      float64 `json:"max_plausible_rate"`
	MinTotalVolume        float64 `json:"min_total_volume"`
	RangeMarginMinutes    *int    `json:"range_margin_minutes,omitempty"`
	FrameMarginMinutes    *int    `json:"frame_margin_minutes,omitempty"`
	MaxRangeDays          int     `json:"max_range_days,omitempty"`
	DefaultPageLimit      int     `json:"default_page_limit,omitempty"`
	MaxPageLimit          int     `json:"max_page_limit,omitempty"`
}

const (
	DefaultListenAddr         = "0.0.0.0"
	DefaultPort               = 8080
	DefaultRateUnit           = "per_hour"
	DefaultRangeMarginMinutes = 60
	DefaultFrameMarginMinutes = 15
	DefaultMaxRangeDays       = 31
	DefaultPageLimit          = 200
	DefaultMaxPageLimit       = 1000
)

// ApplyDefaults fills unset fields with their defaults
func (c *ConfigData) ApplyDefaults() {
	if c.Server.ListenAddr == "" {
		c.Server.ListenAddr = DefaultListenAddr
	}
	if c.Server.Port == 0 {
		c.Server.Port = DefaultPort
	}

	a := &c.Analysis
	if a.RateUnit == "" {
		a.RateUnit = DefaultRateUnit
	}
	if a.RangeMarginMinutes == nil {
		a.RangeMarginMinutes = Minutes(DefaultRangeMarginMinutes)
	}
	if a.FrameMarginMinutes == nil {
		a.FrameMarginMinutes = Minutes(DefaultFrameMarginMinutes)
	}
	if a.MaxRangeDays == 0 {
		a.MaxRangeDays = DefaultMaxRangeDays
	}
	if a.DefaultPageLimit == 0 {
		a.DefaultPageLimit = DefaultPageLimit
	}
	if a.MaxPageLimit == 0 {
		a.MaxPageLimit = DefaultMaxPageLimit
	}
}

// Minutes returns a pointer to n for the optional margin fields.
func Minutes(n int) *int {
	return &n
}

// RangeMargin is the widening applied to flow-period queries.
func (a AnalysisData) RangeMargin() time.Duration {
	return marginOrDefault(a.RangeMarginMinutes, DefaultRangeMarginMinutes)
}

// FrameMargin is the widening applied to start/end frame queries.
func (a AnalysisData) FrameMargin() time.Duration {
	return marginOrDefault(a.FrameMarginMinutes, DefaultFrameMarginMinutes)
}

func marginOrDefault(minutes *int, def int) time.Duration {
	if minutes == nil {
		return time.Duration(def) * time.Minute
	}
	return time.Duration(*minutes) * time.Minute
}

// Validate checks the configuration for values the service cannot run with
func (c *ConfigData) Validate() error {
	var errs []error

	if c.Storage.TimescaleDB == nil || c.Storage.TimescaleDB.ConnectionString == "" {
		errs = append(errs, errors.New("storage.timescaledb.connection-string is required"))
	}
	if c.Server.Port < 0 || c.Server.Port > 65535 {
		errs = append(errs, fmt.Errorf("server.port %d is out of range", c.Server.Port))
	}
	if (c.Server.Cert == "") != (c.Server.Key == "") {
		errs = append(errs, errors.New("server.cert and server.key must be set together"))
	}

	a := c.Analysis
	for _, f := range []struct {
		name  string
		value float64
	}{
		{"scale-factor", a.ScaleFactor},
		{"min-duration-minutes", a.MinDurationMinutes},
		{"min-average-rate", a.MinAverageRate},
		{"max-plausible-rate", a.MaxPlausibleRate},
		{"min-total-volume", a.MinTotalVolume},
	} {
		if f.value < 0 {
			errs = append(errs, fmt.Errorf("analysis.%s must not be negative", f.name))
		}
	}
	if a.MaxPlausibleRate > 0 && a.MinAverageRate > a.MaxPlausibleRate {
		errs = append(errs, errors.New("analysis.min-average-rate exceeds analysis.max-plausible-rate"))
	}
	if a.RangeMargin() < 0 || a.FrameMargin() < 0 {
		errs = append(errs, errors.New("analysis margins must not be negative"))
	}
	if a.MaxRangeDays < 0 {
		errs = append(errs, errors.New("analysis.max-range-days must not be negative"))
	}
	if a.DefaultPageLimit < 0 || a.MaxPageLimit < 0 {
		errs = append(errs, errors.New("analysis page limits must not be negative"))
	}
	if a.MaxPageLimit > 0 && a.DefaultPageLimit > a.MaxPageLimit {
		errs = append(errs, errors.New("analysis.default-page-limit exceeds analysis.max-page-limit"))
	}

	return errors.Join(errs...)
}

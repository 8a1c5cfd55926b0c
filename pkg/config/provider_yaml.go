package config

import (
	"os"

	"gopkg.in/yaml.v2"
)

// YAMLProvider implements ConfigProvider for YAML configuration files
type YAMLProvider struct {
	filename string
	config   *ConfigData
}

// NewYAMLProvider creates a new YAML configuration provider
func NewYAMLProvider(filename string) *YAMLProvider {
	return &YAMLProvider{
		filename: filename,
	}
}

// StorageYAML is the YAML form of StorageData
type StorageYAML struct {
	TimescaleDB *struct {
		ConnectionString string `yaml:"connection-string"`
	} `yaml:"timescaledb,omitempty"`
}

// ServerYAML is the YAML form of ServerData
type ServerYAML struct {
	ListenAddr string `yaml:"listen-addr,omitempty"`
	Port       int    `yaml:"port,omitempty"`
	Cert       string `yaml:"cert,omitempty"`
	Key        string `yaml:"key,omitempty"`
	EnableCORS bool   `yaml:"enable-cors,omitempty"`
}

// AnalysisYAML is the YAML form of AnalysisData
type AnalysisYAML struct {
	RateUnit              string  `yaml:"rate-unit,omitempty"`
	ScaleFactor           float64 `yaml:"scale-factor,omitempty"`
	FlowStartThreshold    float64 `yaml:"flow-start-threshold"`
	FlowContinueThreshold float64 `yaml:"flow-continue-threshold"`
	MinDurationMinutes    float64 `yaml:"min-duration-minutes"`
	MinAverageRate        float64 `yaml:"min-average-rate"`
	MaxPlausibleRate      float64 `yaml:"max-plausible-rate"`
	MinTotalVolume        float64 `yaml:"min-total-volume"`
	RangeMarginMinutes    *int    `yaml:"range-margin-minutes,omitempty"`
	FrameMarginMinutes    *int    `yaml:"frame-margin-minutes,omitempty"`
	MaxRangeDays          int     `yaml:"max-range-days,omitempty"`
	DefaultPageLimit      int     `yaml:"default-page-limit,omitempty"`
	MaxPageLimit          int     `yaml:"max-page-limit,omitempty"`
}

// LoadConfig loads the complete configuration from YAML file
func (y *YAMLProvider) LoadConfig() (*ConfigData, error) {
	cfgFile, err := os.ReadFile(y.filename)
	if err != nil {
		return nil, err
	}

	// Load into temporary struct with YAML tags
	var yamlConfig struct {
		Storage  StorageYAML  `yaml:"storage,omitempty"`
		Server   ServerYAML   `yaml:"server,omitempty"`
		Analysis AnalysisYAML `yaml:"analysis,omitempty"`
	}

	err = yaml.Unmarshal(cfgFile, &yamlConfig)
	if err != nil {
		return nil, err
	}

	config := &ConfigData{
		Server: ServerData{
			ListenAddr: yamlConfig.Server.ListenAddr,
			Port:       yamlConfig.Server.Port,
			Cert:       yamlConfig.Server.Cert,
			Key:        yamlConfig.Server.Key,
			EnableCORS: yamlConfig.Server.EnableCORS,
		},
		Analysis: AnalysisData(yamlConfig.Analysis),
	}

	if yamlConfig.Storage.TimescaleDB != nil {
		config.Storage.TimescaleDB = &TimescaleDBData{
			ConnectionString: yamlConfig.Storage.TimescaleDB.ConnectionString,
		}
	}

	y.config = config
	return config, nil
}

func (y *YAMLProvider) loaded() (*ConfigData, error) {
	if y.config == nil {
		return y.LoadConfig()
	}
	return y.config, nil
}

// GetStorageConfig returns storage configuration
func (y *YAMLProvider) GetStorageConfig() (*StorageData, error) {
	c, err := y.loaded()
	if err != nil {
		return nil, err
	}
	return &c.Storage, nil
}

// GetServerConfig returns the REST server configuration
func (y *YAMLProvider) GetServerConfig() (*ServerData, error) {
	c, err := y.loaded()
	if err != nil {
		return nil, err
	}
	return &c.Server, nil
}

// GetAnalysisConfig returns the flow analysis configuration
func (y *YAMLProvider) GetAnalysisConfig() (*AnalysisData, error) {
	c, err := y.loaded()
	if err != nil {
		return nil, err
	}
	return &c.Analysis, nil
}

// IsReadOnly returns true since YAML files are read-only through this interface
func (y *YAMLProvider) IsReadOnly() bool {
	return true
}

// Close is a no-op for YAML provider
func (y *YAMLProvider) Close() error {
	return nil
}

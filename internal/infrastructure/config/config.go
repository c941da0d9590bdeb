package config

import (
	"errors"
	"fmt"
	"io/fs"
	"net/netip"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// EnvPrefix is the prefix shared by every environment override.
const EnvPrefix = "SADPFLEET_"

// Config is the root configuration structure for sadp-fleet.
// All configuration is loaded from YAML and can be overridden by environment variables.
type Config struct {
	Site      SiteConfig      `yaml:"site"`
	Logging   LoggingConfig   `yaml:"logging"`
	Transport TransportConfig `yaml:"transport"`
	Discovery DiscoveryConfig `yaml:"discovery"`
	Provision ProvisionConfig `yaml:"provision"`
	MQTT      MQTTConfig      `yaml:"mqtt"`
	Database  DatabaseConfig  `yaml:"database"`
	InfluxDB  InfluxDBConfig  `yaml:"influxdb"`
	API       APIConfig       `yaml:"api"`
	Metrics   MetricsConfig   `yaml:"metrics"`
}

// SiteConfig identifies the installation the fleet belongs to.
type SiteConfig struct {
	ID   string `yaml:"id"`
	Name string `yaml:"name"`
}

// LoggingConfig contains logging settings.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	Output string `yaml:"output"`
}

// TransportConfig describes how to reach the vendor SDK gateway.
type TransportConfig struct {
	// GatewayID selects the gateway topic namespace.
	GatewayID string `yaml:"gateway_id"`

	// TopicPrefix is the root of every topic used by sadp-fleet.
	TopicPrefix string `yaml:"topic_prefix"`

	// RequestTimeout bounds a single gateway request/response round trip.
	RequestTimeout time.Duration `yaml:"request_timeout"`

	// AutoRequestInterval is the periodic re-broadcast interval in seconds. 0 disables it.
	AutoRequestInterval int `yaml:"auto_request_interval"`

	// EventBuffer is the number of discovery events queued before the gateway
	// client applies backpressure to the MQTT handler.
	EventBuffer int `yaml:"event_buffer"`

	Gateway GatewayProcessConfig `yaml:"gateway"`
}

// GatewayProcessConfig controls the optional supervised gateway process.
type GatewayProcessConfig struct {
	// Managed starts and supervises the gateway binary. When false the gateway
	// is expected to be running externally (for example as a systemd unit).
	Managed bool `yaml:"managed"`

	Binary              string        `yaml:"binary"`
	Args                []string      `yaml:"args"`
	RestartOnFailure    bool          `yaml:"restart_on_failure"`
	RestartDelay        time.Duration `yaml:"restart_delay"`
	MaxRestartAttempts  int           `yaml:"max_restart_attempts"`
	GracefulTimeout     time.Duration `yaml:"graceful_timeout"`
	HealthCheckInterval time.Duration `yaml:"health_check_interval"`
}

// DiscoveryConfig tunes discovery settling.
type DiscoveryConfig struct {
	SettleWindow      time.Duration `yaml:"settle_window"`
	PollInterval      time.Duration `yaml:"poll_interval"`
	ActivationTimeout time.Duration `yaml:"activation_timeout"`
}

// ProvisionConfig describes a bulk address reassignment campaign.
type ProvisionConfig struct {
	// MatchAddress selects devices still on the factory default address.
	MatchAddress string `yaml:"match_address"`

	StartAddress string `yaml:"start_address"`
	Netmask      string `yaml:"netmask"`
	Gateway      string `yaml:"gateway"`

	// Port and HTTPPort override the device service ports when non-zero.
	Port     int `yaml:"port"`
	HTTPPort int `yaml:"http_port"`

	// Activate issues activation for every unactivated device before reassignment.
	Activate bool `yaml:"activate"`

	// DevicePassword is used for activation and reconfiguration.
	// Set it through SADPFLEET_DEVICE_PASSWORD rather than the file.
	DevicePassword string `yaml:"device_password"`
}

// MQTTConfig contains MQTT broker connection settings.
type MQTTConfig struct {
	Broker    MQTTBrokerConfig    `yaml:"broker"`
	Auth      MQTTAuthConfig      `yaml:"auth"`
	QoS       int                 `yaml:"qos"`
	Reconnect MQTTReconnectConfig `yaml:"reconnect"`
}

// MQTTBrokerConfig contains MQTT broker connection details.
type MQTTBrokerConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	TLS      bool   `yaml:"tls"`
	ClientID string `yaml:"client_id"`
}

// MQTTAuthConfig contains MQTT authentication credentials.
type MQTTAuthConfig struct {
	Username string `yaml:"username"`
	Password string `yaml:"password"`
}

// MQTTReconnectConfig contains MQTT reconnection settings in seconds.
type MQTTReconnectConfig struct {
	InitialDelay int `yaml:"initial_delay"`
	MaxDelay     int `yaml:"max_delay"`
}

// DatabaseConfig contains SQLite inventory settings.
type DatabaseConfig struct {
	Enabled          bool          `yaml:"enabled"`
	Path             string        `yaml:"path"`
	WALMode          bool          `yaml:"wal_mode"`
	BusyTimeout      int           `yaml:"busy_timeout"`
	SnapshotInterval time.Duration `yaml:"snapshot_interval"`
}

// InfluxDBConfig contains InfluxDB connection settings.
type InfluxDBConfig struct {
	Enabled       bool   `yaml:"enabled"`
	URL           string `yaml:"url"`
	Token         string `yaml:"token"`
	Org           string `yaml:"org"`
	Bucket        string `yaml:"bucket"`
	BatchSize     int    `yaml:"batch_size"`
	FlushInterval int    `yaml:"flush_interval"`
}

// APIConfig contains the status HTTP server settings.
type APIConfig struct {
	Enabled  bool             `yaml:"enabled"`
	Host     string           `yaml:"host"`
	Port     int              `yaml:"port"`
	Timeouts APITimeoutConfig `yaml:"timeouts"`
	CORS     CORSConfig       `yaml:"cors"`
}

// APITimeoutConfig contains HTTP timeout settings in seconds.
type APITimeoutConfig struct {
	Read  int `yaml:"read"`
	Write int `yaml:"write"`
	Idle  int `yaml:"idle"`
}

// CORSConfig contains Cross-Origin Resource Sharing settings.
type CORSConfig struct {
	AllowedOrigins []string `yaml:"allowed_origins"`
}

// MetricsConfig controls the Prometheus endpoint.
type MetricsConfig struct {
	Enabled   bool   `yaml:"enabled"`
	Namespace string `yaml:"namespace"`

	// PushURL is a Pushgateway that receives provision campaign metrics
	// when the run finishes. Empty disables pushing.
	PushURL string `yaml:"push_url"`
}

// Load reads configuration from a YAML file and applies environment variable overrides.
//
// The configuration loading order is:
//  1. Default values (hardcoded)
//  2. A .env file next to the config file, if present (never overrides the real environment)
//  3. YAML file values
//  4. Environment variables
//
// Environment variables follow the pattern SADPFLEET_SECTION_KEY,
// for example SADPFLEET_MQTT_HOST or SADPFLEET_DEVICE_PASSWORD.
func Load(path string) (*Config, error) {
	cfg := defaultConfig()

	envFile := filepath.Join(filepath.Dir(path), ".env")
	if err := godotenv.Load(envFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("loading %s: %w", envFile, err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	applyEnvOverrides(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return cfg, nil
}

// Default returns the built-in configuration with environment overrides applied.
// Used when no config file exists.
func Default() (*Config, error) {
	cfg := defaultConfig()
	applyEnvOverrides(cfg)
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}
	return cfg, nil
}

func defaultConfig() *Config {
	return &Config{
		Site: SiteConfig{
			ID:   "site-001",
			Name: "SADP Fleet",
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
			Output: "stderr",
		},
		Transport: TransportConfig{
			GatewayID:           "default",
			TopicPrefix:         "sadp",
			RequestTimeout:      15 * time.Second,
			AutoRequestInterval: 10,
			EventBuffer:         256,
			Gateway: GatewayProcessConfig{
				Binary:              "/usr/local/bin/sadp-gateway",
				RestartOnFailure:    true,
				RestartDelay:        5 * time.Second,
				MaxRestartAttempts:  10,
				GracefulTimeout:     10 * time.Second,
				HealthCheckInterval: 30 * time.Second,
			},
		},
		Discovery: DiscoveryConfig{
			SettleWindow:      3 * time.Second,
			PollInterval:      time.Second,
			ActivationTimeout: 2 * time.Minute,
		},
		Provision: ProvisionConfig{
			MatchAddress: "192.168.1.64",
			StartAddress: "192.168.1.100",
			Netmask:      "255.255.255.0",
			Activate:     true,
		},
		MQTT: MQTTConfig{
			Broker: MQTTBrokerConfig{
				Host:     "localhost",
				Port:     1883,
				ClientID: "sadp-fleet",
			},
			QoS: 1,
			Reconnect: MQTTReconnectConfig{
				InitialDelay: 1,
				MaxDelay:     60,
			},
		},
		Database: DatabaseConfig{
			Path:             "./data/sadp-fleet.db",
			WALMode:          true,
			BusyTimeout:      5,
			SnapshotInterval: time.Minute,
		},
		InfluxDB: InfluxDBConfig{
			BatchSize:     100,
			FlushInterval: 10,
		},
		API: APIConfig{
			Host: "127.0.0.1",
			Port: 8090,
			Timeouts: APITimeoutConfig{
				Read:  15,
				Write: 15,
				Idle:  60,
			},
		},
		Metrics: MetricsConfig{
			Enabled:   true,
			Namespace: "sadp",
		},
	}
}

// applyEnvOverrides applies SADPFLEET_* environment variables to cfg.
func applyEnvOverrides(cfg *Config) {
	setString := func(key string, dst *string) {
		if v := os.Getenv(EnvPrefix + key); v != "" {
			*dst = v
		}
	}
	setInt := func(key string, dst *int) {
		if v := os.Getenv(EnvPrefix + key); v != "" {
			if n, err := strconv.Atoi(v); err == nil {
				*dst = n
			}
		}
	}

	setString("LOG_LEVEL", &cfg.Logging.Level)
	setString("TRANSPORT_GATEWAY_ID", &cfg.Transport.GatewayID)
	setString("MQTT_HOST", &cfg.MQTT.Broker.Host)
	setInt("MQTT_PORT", &cfg.MQTT.Broker.Port)
	setString("MQTT_USERNAME", &cfg.MQTT.Auth.Username)
	setString("MQTT_PASSWORD", &cfg.MQTT.Auth.Password)
	setString("DATABASE_PATH", &cfg.Database.Path)
	setString("INFLUXDB_URL", &cfg.InfluxDB.URL)
	setString("INFLUXDB_TOKEN", &cfg.InfluxDB.Token)
	setString("METRICS_PUSH_URL", &cfg.Metrics.PushURL)
	setString("API_HOST", &cfg.API.Host)
	setInt("API_PORT", &cfg.API.Port)
	setString("PROVISION_START_ADDRESS", &cfg.Provision.StartAddress)
	setString("DEVICE_PASSWORD", &cfg.Provision.DevicePassword)
}

// Validate checks the configuration and reports every problem found.
func (c *Config) Validate() error {
	var errs []string

	if c.Site.ID == "" {
		errs = append(errs, "site.id is required")
	}

	if c.Transport.GatewayID == "" {
		errs = append(errs, "transport.gateway_id is required")
	}
	if c.Transport.TopicPrefix == "" || strings.ContainsAny(c.Transport.TopicPrefix, "#+") {
		errs = append(errs, "transport.topic_prefix must be non-empty and contain no wildcards")
	}
	if c.Transport.RequestTimeout <= 0 {
		errs = append(errs, "transport.request_timeout must be positive")
	}
	if c.Transport.AutoRequestInterval < 0 {
		errs = append(errs, "transport.auto_request_interval must not be negative")
	}
	if c.Transport.Gateway.Managed && c.Transport.Gateway.Binary == "" {
		errs = append(errs, "transport.gateway.binary is required when the gateway is managed")
	}

	if c.Discovery.SettleWindow <= 0 {
		errs = append(errs, "discovery.settle_window must be positive")
	}
	if c.Discovery.PollInterval <= 0 {
		errs = append(errs, "discovery.poll_interval must be positive")
	}

	if c.Provision.StartAddress != "" {
		if _, err := netip.ParseAddr(c.Provision.StartAddress); err != nil {
			errs = append(errs, "provision.start_address is not a valid address")
		}
	}
	if c.Provision.MatchAddress != "" {
		if _, err := netip.ParseAddr(c.Provision.MatchAddress); err != nil {
			errs = append(errs, "provision.match_address is not a valid address")
		}
	}
	if c.Provision.Port < 0 || c.Provision.Port > 65535 {
		errs = append(errs, "provision.port must be between 0 and 65535")
	}
	if c.Provision.HTTPPort < 0 || c.Provision.HTTPPort > 65535 {
		errs = append(errs, "provision.http_port must be between 0 and 65535")
	}

	if c.MQTT.QoS < 0 || c.MQTT.QoS > 2 {
		errs = append(errs, "mqtt.qos must be 0, 1, or 2")
	}

	if c.Database.Enabled && c.Database.Path == "" {
		errs = append(errs, "database.path is required when the inventory is enabled")
	}

	if c.InfluxDB.Enabled && (c.InfluxDB.URL == "" || c.InfluxDB.Bucket == "") {
		errs = append(errs, "influxdb.url and influxdb.bucket are required when influxdb is enabled")
	}

	if c.API.Enabled && (c.API.Port < 1 || c.API.Port > 65535) {
		errs = append(errs, "api.port must be between 1 and 65535")
	}

	if len(errs) > 0 {
		return fmt.Errorf("configuration errors: %s", strings.Join(errs, "; "))
	}
	return nil
}

// GetReadTimeout returns the API read timeout as a Duration.
func (c *Config) GetReadTimeout() time.Duration {
	return time.Duration(c.API.Timeouts.Read) * time.Second
}

// GetWriteTimeout returns the API write timeout as a Duration.
func (c *Config) GetWriteTimeout() time.Duration {
	return time.Duration(c.API.Timeouts.Write) * time.Second
}

// GetIdleTimeout returns the API idle timeout as a Duration.
func (c *Config) GetIdleTimeout() time.Duration {
	return time.Duration(c.API.Timeouts.Idle) * time.Second
}

// internal/config/config.go
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config represents the application configuration
type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	Database DatabaseConfig `mapstructure:"database"`
	Logging  LoggingConfig  `mapstructure:"logging"`
	Link     LinkConfig     `mapstructure:"link"`
	Platform PlatformConfig `mapstructure:"platform"`
	App      AppConfig      `mapstructure:"app"`
}

// ServerConfig represents HTTP server configuration
type ServerConfig struct {
	Host         string        `mapstructure:"host" validate:"required"`
	Port         string        `mapstructure:"port" validate:"required"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
	IdleTimeout  time.Duration `mapstructure:"idle_timeout"`

	AllowedOrigins []string `mapstructure:"allowed_origins"`
}

// DatabaseConfig represents the optional operation-history database.
// Link registry state is never persisted; only the audit trail lives here.
type DatabaseConfig struct {
	Enabled      bool          `mapstructure:"enabled"`
	Host         string        `mapstructure:"host"`
	Port         int           `mapstructure:"port"`
	User         string        `mapstructure:"user"`
	Password     string        `mapstructure:"password"`
	DBName       string        `mapstructure:"dbname"`
	SSLMode      string        `mapstructure:"sslmode"`
	MaxOpenConns int           `mapstructure:"max_open_conns"`
	MaxIdleConns int           `mapstructure:"max_idle_conns"`
	MaxLifetime  time.Duration `mapstructure:"max_lifetime"`
	MigrationDir string        `mapstructure:"migration_dir"`
}

// LoggingConfig represents logging configuration
type LoggingConfig struct {
	Level      string `mapstructure:"level" validate:"required"`
	Format     string `mapstructure:"format"`
	Output     string `mapstructure:"output"`
	MaxSize    int    `mapstructure:"max_size"`
	MaxBackups int    `mapstructure:"max_backups"`
	MaxAge     int    `mapstructure:"max_age"`
	Compress   bool   `mapstructure:"compress"`
}

// LinkConfig represents link manager configuration
type LinkConfig struct {
	MaxLinks        int           `mapstructure:"max_links"`
	ConnectTimeout  time.Duration `mapstructure:"connect_timeout"`
	BootTimeout     time.Duration `mapstructure:"boot_timeout"`
	ResetTimeout    time.Duration `mapstructure:"reset_timeout"`
	SkipDeviceReset bool          `mapstructure:"skip_device_reset"`
}

// PlatformConfig represents transport backend configuration
type PlatformConfig struct {
	TCP    TCPPlatformConfig    `mapstructure:"tcp"`
	Serial SerialPlatformConfig `mapstructure:"serial"`
	USB    USBPlatformConfig    `mapstructure:"usb"`
}

// TCPPlatformConfig lists the network-attached devices the TCP transport
// may reach
type TCPPlatformConfig struct {
	Enabled        bool              `mapstructure:"enabled"`
	Devices        []TCPDeviceConfig `mapstructure:"devices"`
	ConnectTimeout time.Duration     `mapstructure:"connect_timeout"`
	KeepAlive      bool              `mapstructure:"keep_alive"`
}

// TCPDeviceConfig describes one network-attached device
type TCPDeviceConfig struct {
	Name    string `mapstructure:"name"`
	Address string `mapstructure:"address"`
	Booted  bool   `mapstructure:"booted"`
}

// SerialPlatformConfig represents serial transport configuration
type SerialPlatformConfig struct {
	Enabled      bool          `mapstructure:"enabled"`
	PortPatterns []string      `mapstructure:"port_patterns"`
	BaudRate     int           `mapstructure:"baud_rate"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
}

// USBPlatformConfig represents USB transport configuration. Unbooted
// devices enumerate under the boot product ID; after a firmware upload
// they re-enumerate under the runtime product ID.
type USBPlatformConfig struct {
	Enabled       bool          `mapstructure:"enabled"`
	VendorID      string        `mapstructure:"vendor_id"`
	ProductID     string        `mapstructure:"product_id"`
	BootProductID string        `mapstructure:"boot_product_id"`
	Interface     int           `mapstructure:"interface"`
	OutEndpoint   int           `mapstructure:"out_endpoint"`
	InEndpoint    int           `mapstructure:"in_endpoint"`
	Timeout       time.Duration `mapstructure:"timeout"`
}

// AppConfig represents application metadata
type AppConfig struct {
	Name        string `mapstructure:"name" validate:"required"`
	Version     string `mapstructure:"version" validate:"required"`
	Environment string `mapstructure:"environment" validate:"required"`
	Debug       bool   `mapstructure:"debug"`
}

// Load loads configuration from file and environment variables
func Load() (*Config, error) {
	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath(".")
	viper.AddConfigPath("./internal/config")

	// Environment variable support
	viper.SetEnvPrefix("LINK_SERVICE")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	// Set defaults
	setDefaults()

	// Read config file; a missing file falls back to defaults + env
	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	var config Config
	if err := viper.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("unable to decode config: %w", err)
	}

	// Validate configuration
	if err := validate(&config); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &config, nil
}

// setDefaults sets default configuration values
func setDefaults() {
	// Server defaults
	viper.SetDefault("server.host", "0.0.0.0")
	viper.SetDefault("server.port", "8086")
	viper.SetDefault("server.read_timeout", "30s")
	viper.SetDefault("server.write_timeout", "30s")
	viper.SetDefault("server.idle_timeout", "120s")

	// Database defaults
	viper.SetDefault("database.enabled", false)
	viper.SetDefault("database.host", "localhost")
	viper.SetDefault("database.port", 5432)
	viper.SetDefault("database.user", "postgres")
	viper.SetDefault("database.password", "postgres")
	viper.SetDefault("database.dbname", "link_service")
	viper.SetDefault("database.sslmode", "disable")
	viper.SetDefault("database.max_open_conns", 25)
	viper.SetDefault("database.max_idle_conns", 5)
	viper.SetDefault("database.max_lifetime", "5m")
	viper.SetDefault("database.migration_dir", "./migrations")

	// Logging defaults
	viper.SetDefault("logging.level", "info")
	viper.SetDefault("logging.format", "json")
	viper.SetDefault("logging.output", "stdout")
	viper.SetDefault("logging.max_size", 100)
	viper.SetDefault("logging.max_backups", 3)
	viper.SetDefault("logging.max_age", 28)
	viper.SetDefault("logging.compress", true)

	// Link manager defaults
	viper.SetDefault("link.max_links", 32)
	viper.SetDefault("link.connect_timeout", "10s")
	viper.SetDefault("link.boot_timeout", "60s")
	viper.SetDefault("link.reset_timeout", "10s")
	viper.SetDefault("link.skip_device_reset", false)

	// Platform defaults
	viper.SetDefault("platform.tcp.enabled", true)
	viper.SetDefault("platform.tcp.connect_timeout", "10s")
	viper.SetDefault("platform.tcp.keep_alive", true)

	viper.SetDefault("platform.serial.enabled", false)
	viper.SetDefault("platform.serial.baud_rate", 115200)
	viper.SetDefault("platform.serial.read_timeout", "5s")
	viper.SetDefault("platform.serial.port_patterns", []string{"ttyUSB", "ttyACM"})

	viper.SetDefault("platform.usb.enabled", false)
	viper.SetDefault("platform.usb.vendor_id", "03e7")
	viper.SetDefault("platform.usb.product_id", "f63b")
	viper.SetDefault("platform.usb.boot_product_id", "2485")
	viper.SetDefault("platform.usb.interface", 0)
	viper.SetDefault("platform.usb.out_endpoint", 1)
	viper.SetDefault("platform.usb.in_endpoint", 1)
	viper.SetDefault("platform.usb.timeout", "5s")

	// App defaults
	viper.SetDefault("app.name", "accel-link-service")
	viper.SetDefault("app.version", "1.0.0")
	viper.SetDefault("app.environment", "development")
	viper.SetDefault("app.debug", false)
}

// validate validates the configuration
func validate(config *Config) error {
	if config.Server.Host == "" {
		return fmt.Errorf("server.host is required")
	}
	if config.Server.Port == "" {
		return fmt.Errorf("server.port is required")
	}
	if config.Link.MaxLinks <= 0 {
		return fmt.Errorf("link.max_links must be positive")
	}
	if config.Link.ConnectTimeout <= 0 {
		return fmt.Errorf("link.connect_timeout must be positive")
	}
	if config.Database.Enabled && config.Database.Host == "" {
		return fmt.Errorf("database.host is required when database is enabled")
	}

	// Validate environment
	validEnvs := []string{"development", "staging", "production", "test"}
	isValidEnv := false
	for _, env := range validEnvs {
		if config.App.Environment == env {
			isValidEnv = true
			break
		}
	}
	if !isValidEnv {
		return fmt.Errorf("app.environment must be one of: %v", validEnvs)
	}

	// Validate logging level
	validLevels := []string{"debug", "info", "warn", "error", "fatal"}
	isValidLevel := false
	for _, level := range validLevels {
		if config.Logging.Level == level {
			isValidLevel = true
			break
		}
	}
	if !isValidLevel {
		return fmt.Errorf("logging.level must be one of: %v", validLevels)
	}

	return nil
}

// GetDatabaseDSN returns the database connection string
func (c *Config) GetDatabaseDSN() string {
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Database.Host, c.Database.Port, c.Database.User,
		c.Database.Password, c.Database.DBName, c.Database.SSLMode)
}

// GetServerAddr returns the server address
func (c *Config) GetServerAddr() string {
	return fmt.Sprintf("%s:%s", c.Server.Host, c.Server.Port)
}

// IsProduction checks if the environment is production
func (c *Config) IsProduction() bool {
	return c.App.Environment == "production"
}

// IsDevelopment checks if the environment is development
func (c *Config) IsDevelopment() bool {
	return c.App.Environment == "development"
}

package config

import (
	"fmt"
	"time"
)

// Config represents the global configuration
type Config struct {
	Server    ServerConfig              `mapstructure:"server"`
	Database  DatabaseConfig            `mapstructure:"database"`
	Redis     RedisConfig               `mapstructure:"redis"`
	Log       LogConfig                 `mapstructure:"log"`
	Metrics   MetricsConfig             `mapstructure:"metrics"`
	Tracing   TracingConfig             `mapstructure:"tracing"`
	Security  SecurityConfig            `mapstructure:"security"`
	Platforms map[string]PlatformConfig `mapstructure:"platforms"`
	Global    GlobalSettings            `mapstructure:"global"`
}

// ServerConfig represents HTTP server configuration
type ServerConfig struct {
	Host         string        `mapstructure:"host"`
	Port         int           `mapstructure:"port"`
	Mode         string        `mapstructure:"mode"` // debug, release, test
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
	IdleTimeout  time.Duration `mapstructure:"idle_timeout"`
	MaxHeaderMB  int           `mapstructure:"max_header_mb"`
}

// DatabaseConfig represents database configuration
type DatabaseConfig struct {
	Driver          string        `mapstructure:"driver"`
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	Username        string        `mapstructure:"username"`
	Password        string        `mapstructure:"password"`
	DBName          string        `mapstructure:"dbname"`
	Charset         string        `mapstructure:"charset"`
	ParseTime       bool          `mapstructure:"parse_time"`
	Loc             string        `mapstructure:"loc"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
	ConnMaxIdleTime time.Duration `mapstructure:"conn_max_idle_time"`
	LogLevel        string        `mapstructure:"log_level"` // silent, error, warn, info
}

// RedisConfig represents Redis configuration
type RedisConfig struct {
	Host         string        `mapstructure:"host"`
	Port         int           `mapstructure:"port"`
	Password     string        `mapstructure:"password"`
	DB           int           `mapstructure:"db"`
	PoolSize     int           `mapstructure:"pool_size"`
	MinIdleConns int           `mapstructure:"min_idle_conns"`
	MaxRetries   int           `mapstructure:"max_retries"`
	DialTimeout  time.Duration `mapstructure:"dial_timeout"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
	PoolTimeout  time.Duration `mapstructure:"pool_timeout"`
}

// LogConfig represents logging configuration
type LogConfig struct {
	Level      string `mapstructure:"level"`
	Format     string `mapstructure:"format"`
	Output     string `mapstructure:"output"`
	Filename   string `mapstructure:"filename"`
	MaxSize    int    `mapstructure:"max_size"`
	MaxAge     int    `mapstructure:"max_age"`
	MaxBackups int    `mapstructure:"max_backups"`
	Compress   bool   `mapstructure:"compress"`
}

// MetricsConfig represents metrics configuration
type MetricsConfig struct {
	Enabled   bool   `mapstructure:"enabled"`
	Path      string `mapstructure:"path"`
	Port      int    `mapstructure:"port"`
	Namespace string `mapstructure:"namespace"`
}

// TracingConfig represents tracing configuration
type TracingConfig struct {
	Enabled     bool    `mapstructure:"enabled"`
	ServiceName string  `mapstructure:"service_name"`
	Endpoint    string  `mapstructure:"endpoint"`
	SampleRate  float64 `mapstructure:"sample_rate"`
}

// SecurityConfig represents security configuration
type SecurityConfig struct {
	// APIClients maps client id to client secret for the token endpoint
	APIClients map[string]string `mapstructure:"api_clients"`

	JWT struct {
		Secret     string        `mapstructure:"secret"`
		Expire     time.Duration `mapstructure:"expire"`
		RefreshTTL time.Duration `mapstructure:"refresh_ttl"`
		Issuer     string        `mapstructure:"issuer"`
	} `mapstructure:"jwt"`
	CORS struct {
		Enabled          bool     `mapstructure:"enabled"`
		AllowOrigins     []string `mapstructure:"allow_origins"`
		AllowMethods     []string `mapstructure:"allow_methods"`
		AllowHeaders     []string `mapstructure:"allow_headers"`
		ExposeHeaders    []string `mapstructure:"expose_headers"`
		AllowCredentials bool     `mapstructure:"allow_credentials"`
		MaxAge           int      `mapstructure:"max_age"`
	} `mapstructure:"cors"`
	APIRateLimit struct {
		Enabled bool          `mapstructure:"enabled"`
		RPS     int           `mapstructure:"rps"`
		Burst   int           `mapstructure:"burst"`
		TTL     time.Duration `mapstructure:"ttl"`
	} `mapstructure:"api_rate_limit"`
}

// PlatformConfig represents the per-marketplace integration settings
type PlatformConfig struct {
	Enabled           bool              `mapstructure:"enabled"`
	RequestsPerMinute int               `mapstructure:"requests_per_minute"`
	BurstLimit        int               `mapstructure:"burst_limit"`
	MaxRetries        int               `mapstructure:"max_retries"`
	BackoffFactor     float64           `mapstructure:"backoff_factor"`
	RetryOnStatus     []int             `mapstructure:"retry_on_status"`
	Timeout           time.Duration     `mapstructure:"timeout"`
	Sandbox           bool              `mapstructure:"sandbox"`
	BaseURL           string            `mapstructure:"base_url"`
	Credentials       map[string]string `mapstructure:"credentials"`
}

// GlobalSettings represents cross-platform business configuration
type GlobalSettings struct {
	DefaultCurrency     string        `mapstructure:"default_currency"`
	MaxPhotosPerListing int           `mapstructure:"max_photos_per_listing"`
	MaxWorkers          int           `mapstructure:"max_workers"`
	OperationTimeout    time.Duration `mapstructure:"operation_timeout"`
	SyncInterval        time.Duration `mapstructure:"sync_interval"`
	BatchSize           int           `mapstructure:"batch_size"`
	ConflictResolution  string        `mapstructure:"conflict_resolution"` // manual, latest_wins, automatic
	PlatformPrecedence  []string      `mapstructure:"platform_precedence"`
	SalesWindowDays     int           `mapstructure:"sales_window_days"`
	NodeID              int64         `mapstructure:"node_id"`
}

// Conflict resolution modes
const (
	ConflictManual     = "manual"
	ConflictLatestWins = "latest_wins"
	ConflictAutomatic  = "automatic"
)

// GetAddr returns the server address
func (s *ServerConfig) GetAddr() string {
	if s.Host == "" {
		s.Host = "0.0.0.0"
	}
	if s.Port == 0 {
		s.Port = 8080
	}
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

// GetDSN returns the database DSN
func (d *DatabaseConfig) GetDSN() string {
	if d.Charset == "" {
		d.Charset = "utf8mb4"
	}
	if d.Loc == "" {
		d.Loc = "Local"
	}
	return fmt.Sprintf("%s:%s@tcp(%s:%d)/%s?charset=%s&parseTime=%t&loc=%s",
		d.Username, d.Password, d.Host, d.Port, d.DBName, d.Charset, d.ParseTime, d.Loc)
}

// GetAddr returns the Redis address
func (r *RedisConfig) GetAddr() string {
	if r.Host == "" {
		r.Host = "localhost"
	}
	if r.Port == 0 {
		r.Port = 6379
	}
	return fmt.Sprintf("%s:%d", r.Host, r.Port)
}

// EnabledPlatforms returns the names of every enabled platform
func (c *Config) EnabledPlatforms() []string {
	names := make([]string, 0, len(c.Platforms))
	for name, p := range c.Platforms {
		if p.Enabled {
			names = append(names, name)
		}
	}
	return names
}

// Credential returns a named credential for the platform, empty when unset
func (p *PlatformConfig) Credential(key string) string {
	return p.Credentials[key]
}

// SetDefaults fills zero values with sensible defaults
func (c *Config) SetDefaults() {
	if c.Server.Mode == "" {
		c.Server.Mode = "release"
	}
	if c.Server.ReadTimeout == 0 {
		c.Server.ReadTimeout = 10 * time.Second
	}
	if c.Server.WriteTimeout == 0 {
		c.Server.WriteTimeout = 10 * time.Second
	}
	if c.Server.IdleTimeout == 0 {
		c.Server.IdleTimeout = 60 * time.Second
	}

	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
	if c.Log.Format == "" {
		c.Log.Format = "json"
	}
	if c.Log.Output == "" {
		c.Log.Output = "stdout"
	}

	if c.Metrics.Path == "" {
		c.Metrics.Path = "/metrics"
	}

	if c.Global.DefaultCurrency == "" {
		c.Global.DefaultCurrency = "USD"
	}
	if c.Global.MaxPhotosPerListing == 0 {
		c.Global.MaxPhotosPerListing = 10
	}
	if c.Global.MaxWorkers == 0 {
		c.Global.MaxWorkers = 3
	}
	if c.Global.OperationTimeout == 0 {
		c.Global.OperationTimeout = 2 * time.Minute
	}
	if c.Global.SyncInterval == 0 {
		c.Global.SyncInterval = time.Hour
	}
	if c.Global.BatchSize == 0 {
		c.Global.BatchSize = 100
	}
	if c.Global.ConflictResolution == "" {
		c.Global.ConflictResolution = ConflictManual
	}
	if c.Global.SalesWindowDays == 0 {
		c.Global.SalesWindowDays = 30
	}

	for name, p := range c.Platforms {
		if p.RequestsPerMinute == 0 {
			p.RequestsPerMinute = defaultPlatformRate(name)
		}
		if p.BurstLimit == 0 {
			p.BurstLimit = defaultPlatformBurst(name)
		}
		if p.MaxRetries == 0 {
			p.MaxRetries = 3
		}
		if p.BackoffFactor == 0 {
			p.BackoffFactor = 2
		}
		if len(p.RetryOnStatus) == 0 {
			p.RetryOnStatus = []int{429, 500, 502, 503, 504}
		}
		if p.Timeout == 0 {
			p.Timeout = 30 * time.Second
		}
		c.Platforms[name] = p
	}
}

func defaultPlatformRate(name string) int {
	switch name {
	case "mercari":
		return 100
	case "vinted":
		return 60
	case "facebook_marketplace":
		return 200
	default:
		return 60
	}
}

func defaultPlatformBurst(name string) int {
	switch name {
	case "mercari":
		return 10
	case "vinted":
		return 5
	case "facebook_marketplace":
		return 20
	default:
		return 5
	}
}

// Validate validates the configuration
func (c *Config) Validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server port: %d", c.Server.Port)
	}

	if c.Database.Host == "" {
		return fmt.Errorf("database host is required")
	}

	if c.Database.Username == "" {
		return fmt.Errorf("database username is required")
	}

	if c.Database.DBName == "" {
		return fmt.Errorf("database name is required")
	}

	if c.Redis.Host == "" {
		return fmt.Errorf("redis host is required")
	}

	if c.Security.JWT.Secret == "" {
		return fmt.Errorf("jwt secret is required")
	}

	switch c.Global.ConflictResolution {
	case ConflictManual, ConflictLatestWins, ConflictAutomatic:
	default:
		return fmt.Errorf("invalid conflict resolution mode: %s", c.Global.ConflictResolution)
	}

	if c.Global.ConflictResolution == ConflictAutomatic && len(c.Global.PlatformPrecedence) == 0 {
		return fmt.Errorf("platform precedence is required for automatic conflict resolution")
	}

	for name, p := range c.Platforms {
		if !p.Enabled {
			continue
		}
		if p.RequestsPerMinute < 0 || p.BurstLimit < 0 {
			return fmt.Errorf("invalid rate limit for platform %s", name)
		}
	}

	return nil
}

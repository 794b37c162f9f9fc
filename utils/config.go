package utils

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Collector CollectorConfig `mapstructure:"collector"`
	Transport TransportConfig `mapstructure:"transport"`
	Browser   BrowserConfig   `mapstructure:"browser"`
	GeoIP     GeoIPConfig     `mapstructure:"geoip"`
	Logger    LoggerConfig    `mapstructure:"logger"`
}

type ServerConfig struct {
	Port            int           `mapstructure:"port"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
	SessionTTL      time.Duration `mapstructure:"session_ttl"`
}

// CollectorConfig drives a collection cycle. OrgHosts is the organization
// allowlist; an empty list disables every notFromOrg check.
type CollectorConfig struct {
	Endpoint          string        `mapstructure:"endpoint"`
	OrgHosts          []string      `mapstructure:"org_hosts"`
	FrameProbeTimeout time.Duration `mapstructure:"frame_probe_timeout"`
	AutoCollect       bool          `mapstructure:"auto_collect"`
}

type TransportConfig struct {
	Timeout time.Duration `mapstructure:"timeout"`
	Proxy   string        `mapstructure:"proxy"`
	// Profile picks the TLS client hello, "auto" follows the page's browser family.
	Profile string `mapstructure:"profile"`
	JA3     string `mapstructure:"ja3"`
}

type BrowserConfig struct {
	ProfilesPath   string        `mapstructure:"profiles_path"`
	DefaultProfile string        `mapstructure:"default_profile"`
	FrameLoadDelay time.Duration `mapstructure:"frame_load_delay"`
	ChromePath     string        `mapstructure:"chrome_path"`
	Headless       bool          `mapstructure:"headless"`
}

type GeoIPConfig struct {
	DatabasePath string `mapstructure:"database_path"`
}

type LoggerConfig struct {
	Level      string `mapstructure:"level"`  // debug, info, warn, error
	Format     string `mapstructure:"format"` // json, console
	File       string `mapstructure:"file"`
	MaxSizeMB  int    `mapstructure:"max_size_mb"`
	MaxBackups int    `mapstructure:"max_backups"`
}

// LoadConfig merges defaults, an optional config.yaml and RISKAGENT_* env vars.
// An empty path searches the working directory and ./configs.
func LoadConfig(path string) (*Config, error) {
	v := viper.New()

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("./configs")
	}

	// RISKAGENT_COLLECTOR_ENDPOINT overrides collector.endpoint
	v.SetEnvPrefix("riskagent")
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unable to decode into struct: %w", err)
	}

	// Env vars arrive as one comma separated string
	cfg.Collector.OrgHosts = splitHosts(cfg.Collector.OrgHosts)

	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 2323)
	v.SetDefault("server.shutdown_timeout", 10*time.Second)
	v.SetDefault("server.session_ttl", 10*time.Minute)

	v.SetDefault("collector.endpoint", "/risk/collect")
	v.SetDefault("collector.org_hosts", []string{"localhost", "127.0.0.1"})
	v.SetDefault("collector.frame_probe_timeout", 500*time.Millisecond)
	v.SetDefault("collector.auto_collect", true)

	v.SetDefault("transport.timeout", 15*time.Second)
	v.SetDefault("transport.profile", "auto")
	v.SetDefault("transport.proxy", "")
	v.SetDefault("transport.ja3", "")

	v.SetDefault("browser.default_profile", "chrome")
	v.SetDefault("browser.headless", true)
	v.SetDefault("browser.profiles_path", "")
	v.SetDefault("browser.chrome_path", "")
	v.SetDefault("browser.frame_load_delay", time.Duration(0))

	v.SetDefault("geoip.database_path", "")

	v.SetDefault("logger.level", "info")
	v.SetDefault("logger.file", "")
	v.SetDefault("logger.format", "console")
	v.SetDefault("logger.max_size_mb", 50)
	v.SetDefault("logger.max_backups", 3)
}

func splitHosts(in []string) []string {
	out := make([]string, 0, len(in))
	for _, entry := range in {
		for _, host := range strings.Split(entry, ",") {
			if host = strings.TrimSpace(host); host != "" {
				out = append(out, host)
			}
		}
	}
	return out
}

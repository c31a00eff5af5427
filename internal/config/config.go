package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

var ErrInvalid = errors.New("invalid config")

type Config struct {
	Mode     string `mapstructure:"mode"`
	Port     int    `mapstructure:"port"`
	LogLevel string `mapstructure:"log_level"`
	Secret   string `mapstructure:"secret"`

	SignalURL        string `mapstructure:"signal_url"`
	Nickname         string `mapstructure:"nickname"`
	ConferenceDomain string `mapstructure:"conference_domain"`
	OutputDir        string `mapstructure:"output_dir"`

	PortMin        uint16        `mapstructure:"port_min"`
	PortMax        uint16        `mapstructure:"port_max"`
	Components     int           `mapstructure:"components"`
	STUNServers    []string      `mapstructure:"stun_servers"`
	GatherTimeout  time.Duration `mapstructure:"gather_timeout"`
	ConnectTimeout time.Duration `mapstructure:"connect_timeout"`

	InboxSize         int           `mapstructure:"inbox_size"`
	CloseOnFailure    bool          `mapstructure:"close_on_failure"`
	StartRateLimit    int           `mapstructure:"start_rate_limit"`
	StartRateInterval time.Duration `mapstructure:"start_rate_interval"`
}

// Load reads config/config.<env>.yaml over the defaults. RECORDER_* variables,
// including ones from a .env file, override both. An empty env falls back
// to CONFIG_ENV, then "dev".
func Load(env string) (*Config, error) {
	// godotenv.Load does not overwrite existing env vars
	_ = godotenv.Load()

	v := viper.New()
	v.SetConfigType("yaml")

	if env == "" {
		env = os.Getenv("CONFIG_ENV")
	}
	if env == "" {
		env = "dev"
	}
	fileName := fmt.Sprintf("config/config.%s.yaml", env)

	v.SetConfigFile(fileName)
	v.AddConfigPath(".")
	v.AddConfigPath("./config")

	setDefaults(v)

	v.SetEnvPrefix("recorder")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		fmt.Printf("⚠️ Config file not found (%s), using defaults\n", fileName)
	} else {
		fmt.Printf("✅ Loaded config: %s\n", fileName)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	fmt.Printf("🧩 Mode: %s | Port: %d | Signal: %s\n", cfg.Mode, cfg.Port, cfg.SignalURL)
	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("mode", "release")
	v.SetDefault("port", 8080)
	v.SetDefault("log_level", "info")
	v.SetDefault("secret", "recorder-secret")
	v.SetDefault("signal_url", "ws://localhost:8081/signal")
	v.SetDefault("nickname", "Recorder")
	v.SetDefault("conference_domain", "conference.localhost")
	v.SetDefault("output_dir", "./recordings")
	v.SetDefault("port_min", 7000)
	v.SetDefault("port_max", 9000)
	v.SetDefault("components", 2)
	v.SetDefault("stun_servers", []string{})
	v.SetDefault("gather_timeout", "5s")
	v.SetDefault("connect_timeout", "30s")
	v.SetDefault("inbox_size", 16)
	v.SetDefault("close_on_failure", true)
	v.SetDefault("start_rate_limit", 3)
	v.SetDefault("start_rate_interval", "1m")
}

func (c *Config) Validate() error {
	switch {
	case c.PortMin == 0 || c.PortMax == 0:
		return fmt.Errorf("%w: port range %d-%d", ErrInvalid, c.PortMin, c.PortMax)
	case c.PortMin > c.PortMax:
		return fmt.Errorf("%w: port_min %d above port_max %d", ErrInvalid, c.PortMin, c.PortMax)
	case c.Components < 1 || c.Components > 2:
		return fmt.Errorf("%w: components %d", ErrInvalid, c.Components)
	case c.Nickname == "":
		return fmt.Errorf("%w: empty nickname", ErrInvalid)
	case c.ConferenceDomain == "":
		return fmt.Errorf("%w: empty conference_domain", ErrInvalid)
	case c.InboxSize < 1:
		return fmt.Errorf("%w: inbox_size %d", ErrInvalid, c.InboxSize)
	}
	return nil
}

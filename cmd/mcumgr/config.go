package main

import (
	"flag"
	"fmt"
	"strings"
	"time"

	"github.com/opd-ai/mcumgr/limits"
	"github.com/spf13/viper"
)

// Config is the CLI configuration.
type Config struct {
	// Addr is the UDP address of the device.
	Addr string `mapstructure:"addr"`

	// Listen is the address the simulated device binds in serve mode.
	Listen string `mapstructure:"listen"`

	// MTU is the initial upload MTU used by the client.
	MTU int `mapstructure:"mtu"`

	// DeviceMTU is the MTU enforced by the simulated device.
	DeviceMTU int `mapstructure:"device_mtu"`

	// ImageSlots is the number of image slots of the simulated device.
	ImageSlots int `mapstructure:"image_slots"`

	// Timeout bounds the wait for each SMP response.
	Timeout time.Duration `mapstructure:"timeout"`

	// Image is the target slot for image uploads.
	Image int `mapstructure:"image"`

	// Simulate runs client commands against an in-process simulated device
	// instead of Addr.
	Simulate bool `mapstructure:"simulate"`

	Log LogConfig `mapstructure:"log"`
}

// LogConfig defines logger settings.
type LogConfig struct {
	// Level: debug, info, warn, error
	Level string `mapstructure:"level"`
	// File routes logs to a rotated file instead of stderr.
	File       string `mapstructure:"file"`
	MaxSizeMB  int    `mapstructure:"max_size_mb"`
	MaxBackups int    `mapstructure:"max_backups"`
	Compress   bool   `mapstructure:"compress"`
}

// Default returns a Config populated with defaults.
func Default() *Config {
	return &Config{
		Addr:       "127.0.0.1:1337",
		Listen:     "127.0.0.1:1337",
		MTU:        limits.DefaultMTU,
		DeviceMTU:  limits.DefaultMTU,
		ImageSlots: 2,
		Timeout:    5 * time.Second,
		Log: LogConfig{
			Level:      "info",
			MaxSizeMB:  10,
			MaxBackups: 3,
		},
	}
}

// flagKeys maps command-line flag names to configuration keys.
var flagKeys = map[string]string{
	"addr":        "addr",
	"listen":      "listen",
	"mtu":         "mtu",
	"device-mtu":  "device_mtu",
	"image-slots": "image_slots",
	"timeout":     "timeout",
	"image":       "image",
	"simulate":    "simulate",
	"log-level":   "log.level",
	"log-file":    "log.file",
}

// registerFlags defines the configuration flags on fs with defaults from cfg.
// Only flags named in keys are registered.
func registerFlags(fs *flag.FlagSet, cfg *Config, keys ...string) *string {
	for _, key := range keys {
		switch key {
		case "addr":
			fs.String(key, cfg.Addr, "Device UDP address")
		case "listen":
			fs.String(key, cfg.Listen, "Address the simulated device listens on")
		case "mtu":
			fs.Int(key, cfg.MTU, "Initial upload MTU")
		case "device-mtu":
			fs.Int(key, cfg.DeviceMTU, "MTU enforced by the simulated device")
		case "image-slots":
			fs.Int(key, cfg.ImageSlots, "Number of image slots of the simulated device")
		case "timeout":
			fs.Duration(key, cfg.Timeout, "Response timeout per request")
		case "image":
			fs.Int(key, cfg.Image, "Target image slot")
		case "simulate":
			fs.Bool(key, cfg.Simulate, "Use an in-process simulated device")
		}
	}
	fs.String("log-level", cfg.Log.Level, "Log level (debug, info, warn, error)")
	fs.String("log-file", cfg.Log.File, "Log file path (default: stderr)")
	return fs.String("config", "", "Path to a YAML configuration file")
}

// Load builds the configuration from defaults, an optional YAML file,
// MCUMGR_* environment variables and the flags explicitly set on fs, in
// increasing order of precedence. Environment keys replace "." with "_",
// e.g. MCUMGR_LOG_LEVEL=debug.
func Load(path string, fs *flag.FlagSet) (*Config, error) {
	cfg := Default()

	v := viper.New()
	v.SetConfigType("yaml")
	v.SetEnvPrefix("MCUMGR")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()

	v.SetDefault("addr", cfg.Addr)
	v.SetDefault("listen", cfg.Listen)
	v.SetDefault("mtu", cfg.MTU)
	v.SetDefault("device_mtu", cfg.DeviceMTU)
	v.SetDefault("image_slots", cfg.ImageSlots)
	v.SetDefault("timeout", cfg.Timeout)
	v.SetDefault("image", cfg.Image)
	v.SetDefault("simulate", cfg.Simulate)
	v.SetDefault("log.level", cfg.Log.Level)
	v.SetDefault("log.file", cfg.Log.File)
	v.SetDefault("log.max_size_mb", cfg.Log.MaxSizeMB)
	v.SetDefault("log.max_backups", cfg.Log.MaxBackups)
	v.SetDefault("log.compress", cfg.Log.Compress)

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
	}

	if fs != nil {
		fs.Visit(func(f *flag.Flag) {
			if key, ok := flagKeys[f.Name]; ok {
				v.Set(key, f.Value.String())
			}
		})
	}

	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	return cfg, cfg.Validate()
}

// Validate checks the configuration.
func (c *Config) Validate() error {
	if err := limits.ValidateMTU(c.MTU); err != nil {
		return fmt.Errorf("mtu: %w", err)
	}
	if c.DeviceMTU <= limits.SMPHeaderSize {
		return fmt.Errorf("device mtu %d leaves no room for a body", c.DeviceMTU)
	}
	if c.Timeout <= 0 {
		return fmt.Errorf("timeout must be positive")
	}
	if c.ImageSlots < 1 {
		return fmt.Errorf("image slots must be at least 1")
	}
	if c.Image < 0 {
		return fmt.Errorf("image slot cannot be negative")
	}
	return nil
}

// Package config loads stockkeeper settings from defaults, an optional yaml file,
// an optional .env file and STOCKKEEPER_* environment variables, in increasing priority.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	dominv "github.com/Zhima-Mochi/stockkeeper/internal/domain/inventory"
)

const (
	envPrefix            = "STOCKKEEPER"
	defaultConfigName    = "stockkeeper"
	defaultConfigDirName = ".stockkeeper"
	defaultEnvFile       = ".env"
	defaultServiceName   = "stockkeeper"
	defaultEnv           = "dev"
	DefaultDataFile      = "inventory.json"
	defaultLogLevel      = "info"
	defaultExportFormat  = "yaml"
	keyServiceName       = "service_name"
	keyEnv               = "env"
	keyDataFile          = "data_file"
	keyLowStockThreshold = "low_stock_threshold"
	keyLogLevel          = "log.level"
	keyLogFile           = "log.file"
	keyExportFormat      = "export_format"
)

// Config holds the application configuration.
type Config struct {
	ServiceName       string `mapstructure:"service_name"`
	Env               string `mapstructure:"env"`
	DataFile          string `mapstructure:"data_file"`
	LowStockThreshold int    `mapstructure:"low_stock_threshold"`
	ExportFormat      string `mapstructure:"export_format"`

	Log struct {
		Level string `mapstructure:"level"` // debug, info, warn, error
		File  string `mapstructure:"file"`  // optional duplicate sink
	} `mapstructure:"log"`
}

// Options points Load at explicit files. Empty fields select the standard locations:
// ./stockkeeper.yaml then ~/.stockkeeper/stockkeeper.yaml, and ./.env.
type Options struct {
	ConfigFile string
	EnvFile    string
}

func Load(opts Options) (*Config, error) {
	if err := loadEnvFile(opts.EnvFile); err != nil {
		return nil, err
	}

	v := viper.New()
	v.SetDefault(keyServiceName, defaultServiceName)
	v.SetDefault(keyEnv, defaultEnv)
	v.SetDefault(keyDataFile, DefaultDataFile)
	v.SetDefault(keyLowStockThreshold, dominv.DefaultLowStockThreshold)
	v.SetDefault(keyLogLevel, defaultLogLevel)
	v.SetDefault(keyLogFile, "")
	v.SetDefault(keyExportFormat, defaultExportFormat)

	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if opts.ConfigFile != "" {
		v.SetConfigFile(opts.ConfigFile)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("config: read %s: %w", opts.ConfigFile, err)
		}
	} else {
		v.SetConfigName(defaultConfigName)
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		if home, err := os.UserHomeDir(); err == nil {
			v.AddConfigPath(filepath.Join(home, defaultConfigDirName))
		}
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) {
				return nil, fmt.Errorf("config: read: %w", err)
			}
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("config: unmarshal: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate rejects settings no command could work with.
func (c *Config) Validate() error {
	if strings.TrimSpace(c.DataFile) == "" {
		return errors.New("config: data_file must not be empty")
	}
	if c.LowStockThreshold < 0 {
		return fmt.Errorf("config: low_stock_threshold: %w", dominv.ErrInvalidThreshold)
	}
	return nil
}

// loadEnvFile populates the process environment from a dotenv file without
// overriding variables that are already set. A missing default file is fine.
func loadEnvFile(path string) error {
	explicit := path != ""
	if !explicit {
		path = defaultEnvFile
	}
	if err := godotenv.Load(path); err != nil {
		if !explicit && errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("config: load env file %s: %w", path, err)
	}
	return nil
}

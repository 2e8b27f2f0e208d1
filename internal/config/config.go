// Package config loads CLI settings from flags, ORCHESTRIQ_* environment
// variables and an optional config file, in that order of precedence.
package config

import (
	"errors"
	"os"
	"path/filepath"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	oqerrors "github.com/nasriyasoftware/Orchestriq-sub001/internal/errors"
)

const (
	envPrefix      = "ORCHESTRIQ"
	configFileName = "orchestriq"
)

// Keys, also used as long flag names with "_" replaced by "-".
const (
	KeyHost       = "host"
	KeyAPIVersion = "api_version"
	KeyVerbose    = "verbose"
	KeyLogLevel   = "log_level"
	KeyLogDir     = "log_dir"
)

type Config struct {
	Host       string `mapstructure:"host"`
	APIVersion string `mapstructure:"api_version" validate:"omitempty,numeric"`
	Verbose    bool   `mapstructure:"verbose"`
	LogLevel   string `mapstructure:"log_level" validate:"oneof=debug info warn error"`
	LogDir     string `mapstructure:"log_dir"`
}

var validate = validator.New()

// Load builds the configuration. configFile may be empty, in which case
// orchestriq.yaml is looked up in the working directory and in
// $HOME/.config/orchestriq; a missing file is not an error then.
func Load(configFile string, flags *pflag.FlagSet) (*Config, error) {
	v := viper.New()
	v.SetDefault(KeyLogLevel, "info")
	v.SetDefault(KeyVerbose, false)

	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()
	for _, key := range []string{KeyHost, KeyAPIVersion, KeyVerbose, KeyLogLevel, KeyLogDir} {
		_ = v.BindEnv(key)
	}

	if flags != nil {
		for _, key := range []string{KeyHost, KeyAPIVersion, KeyVerbose, KeyLogLevel, KeyLogDir} {
			if f := flags.Lookup(FlagName(key)); f != nil {
				if err := v.BindPFlag(key, f); err != nil {
					return nil, oqerrors.NewConfigError("load configuration", "failed to bind flag --"+f.Name, "", err)
				}
			}
		}
	}

	if configFile != "" {
		v.SetConfigFile(configFile)
	} else {
		v.SetConfigName(configFileName)
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		if home, err := os.UserHomeDir(); err == nil {
			v.AddConfigPath(filepath.Join(home, ".config", "orchestriq"))
		}
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		switch {
		case errors.As(err, &notFound):
		case configFile != "" && errors.Is(err, os.ErrNotExist):
			return nil, oqerrors.NewPreconditionError("load configuration", "config file not found: "+configFile,
				"Check the --config path", err)
		default:
			return nil, oqerrors.NewConfigError("load configuration", "failed to read config file",
				"Check the file is valid YAML", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, oqerrors.NewConfigError("load configuration", "failed to decode configuration", "", err)
	}
	cfg.LogLevel = strings.ToLower(cfg.LogLevel)

	if err := validate.Struct(&cfg); err != nil {
		return nil, oqerrors.NewConfigError("load configuration", err.Error(),
			"log_level must be one of debug, info, warn, error", err)
	}
	return &cfg, nil
}

// FlagName is the CLI flag bound to a configuration key.
func FlagName(key string) string {
	return strings.ReplaceAll(key, "_", "-")
}

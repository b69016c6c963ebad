// Package config loads covgate settings from a yaml file, environment
// variables and an optional .env file.
package config

import (
	"errors"
	"fmt"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// configName is the config file name without extension.
const configName = "covgate"

// configType is the config file format.
const configType = "yaml"

// envPrefix is the environment variable prefix for covgate settings.
const envPrefix = "COVGATE"

// GitLabConfig holds the connection settings for the GitLab API.
type GitLabConfig struct {
	BaseURL      string `mapstructure:"base_url"`
	ProjectID    string `mapstructure:"project_id"`
	Token        string `mapstructure:"token"`
	TargetBranch string `mapstructure:"target_branch"`
	Stage        string `mapstructure:"stage"`
	NameFilter   string `mapstructure:"name_filter"`
}

// PolicyConfig holds the gate thresholds. Percentages are 0-100 as on
// the command line.
type PolicyConfig struct {
	Name         string  `mapstructure:"name"`
	Baseline     float64 `mapstructure:"baseline"`
	DiffTarget   float64 `mapstructure:"diff_target"`
	SanityMargin float64 `mapstructure:"sanity_margin"`
	NoRelax      bool    `mapstructure:"no_relax"`
}

// Config is the full covgate configuration.
type Config struct {
	Format         string       `mapstructure:"format"`
	PackageRoots   []string     `mapstructure:"package_roots"`
	IgnorePrefixes []string     `mapstructure:"ignore_prefixes"`
	BaselineFile   string       `mapstructure:"baseline_file"`
	Policy         PolicyConfig `mapstructure:"policy"`
	GitLab         GitLabConfig `mapstructure:"gitlab"`
}

// LoadConfig loads configuration from file, env vars and defaults. If
// configPath is non-empty it is used as the explicit config file path;
// otherwise covgate.yaml is searched in the working directory and in
// configs/. A missing config file is not an error when searching;
// defaults and environment variables still apply.
func LoadConfig(configPath string) (*Config, error) {
	// Read .env first so the GitLab token can stay out of the yaml.
	_ = godotenv.Load()

	v := viper.New()
	applyDefaults(v)

	v.SetConfigType(configType)
	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	bindEnvAliases(v)

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName(configName)
		v.AddConfigPath(".")
		v.AddConfigPath("configs")
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if configPath != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config data: %w", err)
	}
	return cfg, nil
}

func applyDefaults(v *viper.Viper) {
	v.SetDefault("format", "jacoco")
	v.SetDefault("ignore_prefixes", []string{".venv/", "target/"})
	v.SetDefault("policy.name", "exact-then-diff")
	v.SetDefault("policy.sanity_margin", 10.0)
	v.SetDefault("gitlab.target_branch", "main")
}

// bindEnvAliases maps the conventional CI variables onto config keys so
// the gate picks them up without a covgate.yaml entry.
func bindEnvAliases(v *viper.Viper) {
	v.BindEnv("gitlab.token", "COVGATE_GITLAB_TOKEN", "GITLAB_TOKEN")
	v.BindEnv("gitlab.project_id", "COVGATE_GITLAB_PROJECT_ID", "CI_PROJECT_ID")
	v.BindEnv("gitlab.base_url", "COVGATE_GITLAB_BASE_URL")
}

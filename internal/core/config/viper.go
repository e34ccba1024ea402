package config

import (
	"fmt"
	"strings"

	"github.com/spf13/viper"
)

// LoadConfig loads configuration from file using viper.
// CLI flags > environment > config file > defaults precedence; flags are applied by the
// caller on the returned struct.
func LoadConfig(configPath string) (*ServiceConfig, error) {
	v := viper.New()

	d := DefaultServiceConfig()
	v.SetDefault("server.host", d.Host)
	v.SetDefault("server.port", d.Port)
	v.SetDefault("server.request_timeout", d.RequestTimeout.String())
	v.SetDefault("server.metrics_addr", d.MetricsAddr)
	v.SetDefault("database.url", d.DatabaseURL)
	v.SetDefault("rules.file", d.RulesFile)
	v.SetDefault("rules.reload_debounce", d.ReloadDebounce.String())
	v.SetDefault("engine.max_graph_depth", d.MaxGraphDepth)

	// VD_SERVER_PORT, VD_RULES_FILE, ...
	v.SetEnvPrefix("VD")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if configPath != "" {
		v.SetConfigFile(configPath)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	// Secrets are environment-only
	if err := validateNoSecretsInConfig(v); err != nil {
		return nil, err
	}

	cfg := &ServiceConfig{
		Host:           v.GetString("server.host"),
		Port:           v.GetInt("server.port"),
		RequestTimeout: v.GetDuration("server.request_timeout"),
		MetricsAddr:    v.GetString("server.metrics_addr"),
		DatabaseURL:    v.GetString("database.url"),
		RulesFile:      v.GetString("rules.file"),
		ReloadDebounce: v.GetDuration("rules.reload_debounce"),
		MaxGraphDepth:  v.GetInt("engine.max_graph_depth"),
	}

	if err := Validate(cfg); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate checks port range and positive durations and limits. Call again after
// applying flag overrides.
func Validate(cfg *ServiceConfig) error {
	if cfg.Port <= 0 || cfg.Port > 65535 {
		return fmt.Errorf("port must be between 1 and 65535, got %d", cfg.Port)
	}
	if cfg.RequestTimeout <= 0 {
		return fmt.Errorf("request_timeout must be positive, got %v", cfg.RequestTimeout)
	}
	if cfg.ReloadDebounce < 0 {
		return fmt.Errorf("reload_debounce must not be negative, got %v", cfg.ReloadDebounce)
	}
	if cfg.MaxGraphDepth <= 0 {
		return fmt.Errorf("max_graph_depth must be positive, got %d", cfg.MaxGraphDepth)
	}
	return nil
}

// validateNoSecretsInConfig enforces environment-only secrets. InConfig ignores the
// environment, so VD_HMAC_SECRET itself does not trip the check.
func validateNoSecretsInConfig(v *viper.Viper) error {
	if v.InConfig("hmac_secret") || v.InConfig("server.hmac_secret") {
		return fmt.Errorf("HMAC secrets not allowed in config files (use VD_HMAC_SECRET environment variable)")
	}
	return nil
}

// Package config loads application configuration from file, environment, and
// defaults, and initializes the global logger.
package config

import (
	"fmt"
	"math"
	"os"
	"strings"

	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/yaml.v3"
)

// Config holds the full application configuration.
type Config struct {
	Claims     ClaimsConfig     `yaml:"claims" mapstructure:"claims"`
	Analysis   AnalysisConfig   `yaml:"analysis" mapstructure:"analysis"`
	Report     ReportConfig     `yaml:"report" mapstructure:"report"`
	Server     ServerConfig     `yaml:"server" mapstructure:"server"`
	Monitoring MonitoringConfig `yaml:"monitoring" mapstructure:"monitoring"`
	Log        LogConfig        `yaml:"log" mapstructure:"log"`
}

// ClaimsConfig configures the claim-record source backend.
type ClaimsConfig struct {
	Driver      string `yaml:"driver" mapstructure:"driver"` // "postgres" or "sqlite"
	DatabaseURL string `yaml:"database_url" mapstructure:"database_url"`
	Table       string `yaml:"table" mapstructure:"table"`
}

// AnalysisConfig holds the recommendation thresholds and window. These are
// business parameters, not derived significance levels, so every one of them
// is overridable.
type AnalysisConfig struct {
	WindowMonths          int     `yaml:"window_months" mapstructure:"window_months"`
	MinGroupSample        int     `yaml:"min_group_sample" mapstructure:"min_group_sample"`
	HighConfidenceSample  int     `yaml:"high_confidence_sample" mapstructure:"high_confidence_sample"`
	MinDollarImprovement  float64 `yaml:"min_dollar_improvement" mapstructure:"min_dollar_improvement"`
	MinPercentImprovement float64 `yaml:"min_percent_improvement" mapstructure:"min_percent_improvement"`
	TieEpsilon            float64 `yaml:"tie_epsilon" mapstructure:"tie_epsilon"`
}

// ReportConfig configures report generation.
type ReportConfig struct {
	Workers     int `yaml:"workers" mapstructure:"workers"` // 0 = GOMAXPROCS
	TimeoutSecs int `yaml:"timeout_secs" mapstructure:"timeout_secs"`
}

// ServerConfig configures the HTTP surface.
type ServerConfig struct {
	Port              int      `yaml:"port" mapstructure:"port"`
	RefreshCron       string   `yaml:"refresh_cron" mapstructure:"refresh_cron"` // empty = no scheduled refresh
	RebuildsPerMinute float64  `yaml:"rebuilds_per_minute" mapstructure:"rebuilds_per_minute"`
	AllowedOrigins    []string `yaml:"allowed_origins" mapstructure:"allowed_origins"`
}

// MonitoringConfig configures the background health checker run by the
// serve command.
type MonitoringConfig struct {
	CheckIntervalSecs    int     `yaml:"check_interval_secs" mapstructure:"check_interval_secs"`
	StaleAfterHours      int     `yaml:"stale_after_hours" mapstructure:"stale_after_hours"`
	UnreliableShareAlert float64 `yaml:"unreliable_share_alert" mapstructure:"unreliable_share_alert"` // 0..1
	WebhookURL           string  `yaml:"webhook_url" mapstructure:"webhook_url"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

// Load reads configuration from file and environment.
func Load() (*Config, error) {
	v := viper.New()

	// Config file
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	// Environment
	v.SetEnvPrefix("VENUE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("claims.driver", "postgres")
	v.SetDefault("claims.table", "claims.settlement_records")
	v.SetDefault("analysis.window_months", 24)
	v.SetDefault("analysis.min_group_sample", 10)
	v.SetDefault("analysis.high_confidence_sample", 30)
	v.SetDefault("analysis.min_dollar_improvement", 5000)
	v.SetDefault("analysis.min_percent_improvement", 15)
	v.SetDefault("analysis.tie_epsilon", 0.01)
	v.SetDefault("report.workers", 0)
	v.SetDefault("report.timeout_secs", 30)
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.rebuilds_per_minute", 2)
	v.SetDefault("monitoring.check_interval_secs", 300)
	v.SetDefault("monitoring.stale_after_hours", 48)
	v.SetDefault("monitoring.unreliable_share_alert", 0.5)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")

	// Read config file (optional)
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, eris.Wrap(err, "config: read file")
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, eris.Wrap(err, "config: unmarshal")
	}

	return &cfg, nil
}

// ValidateAnalysis checks that an AnalysisConfig is internally consistent.
func ValidateAnalysis(c AnalysisConfig) error {
	var errs []string

	if c.WindowMonths <= 0 {
		errs = append(errs, "window_months must be > 0")
	}
	if c.MinGroupSample < 1 {
		errs = append(errs, "min_group_sample must be >= 1")
	}
	if c.HighConfidenceSample < c.MinGroupSample {
		errs = append(errs, "high_confidence_sample must be >= min_group_sample")
	}
	if c.MinDollarImprovement < 0 || math.IsNaN(c.MinDollarImprovement) {
		errs = append(errs, "min_dollar_improvement must be >= 0")
	}
	if c.MinPercentImprovement < 0 || math.IsNaN(c.MinPercentImprovement) {
		errs = append(errs, "min_percent_improvement must be >= 0")
	}
	if c.TieEpsilon < 0 {
		errs = append(errs, "tie_epsilon must be >= 0")
	}

	if len(errs) > 0 {
		return eris.Errorf("config: analysis validation failed: %s", strings.Join(errs, "; "))
	}
	return nil
}

// LoadAnalysisFile reads threshold overrides from a standalone YAML file.
// Only keys present in the file override the base config.
func LoadAnalysisFile(path string, base AnalysisConfig) (AnalysisConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return base, eris.Wrapf(err, "config: read thresholds %s", path)
	}

	// The YAML has a top-level "analysis" key.
	var wrapper struct {
		Analysis struct {
			WindowMonths          *int     `yaml:"window_months"`
			MinGroupSample        *int     `yaml:"min_group_sample"`
			HighConfidenceSample  *int     `yaml:"high_confidence_sample"`
			MinDollarImprovement  *float64 `yaml:"min_dollar_improvement"`
			MinPercentImprovement *float64 `yaml:"min_percent_improvement"`
			TieEpsilon            *float64 `yaml:"tie_epsilon"`
		} `yaml:"analysis"`
	}
	if err := yaml.Unmarshal(data, &wrapper); err != nil {
		return base, eris.Wrapf(err, "config: parse thresholds %s", path)
	}

	a := wrapper.Analysis
	out := base
	if a.WindowMonths != nil {
		out.WindowMonths = *a.WindowMonths
	}
	if a.MinGroupSample != nil {
		out.MinGroupSample = *a.MinGroupSample
	}
	if a.HighConfidenceSample != nil {
		out.HighConfidenceSample = *a.HighConfidenceSample
	}
	if a.MinDollarImprovement != nil {
		out.MinDollarImprovement = *a.MinDollarImprovement
	}
	if a.MinPercentImprovement != nil {
		out.MinPercentImprovement = *a.MinPercentImprovement
	}
	if a.TieEpsilon != nil {
		out.TieEpsilon = *a.TieEpsilon
	}
	return out, nil
}

// InitLogger initializes the global zap logger.
func InitLogger(cfg LogConfig) error {
	var zapCfg zap.Config
	if cfg.Format == "console" {
		zapCfg = zap.NewDevelopmentConfig()
	} else {
		zapCfg = zap.NewProductionConfig()
	}

	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		return eris.Wrap(err, "config: parse log level")
	}
	zapCfg.Level.SetLevel(level)

	logger, err := zapCfg.Build()
	if err != nil {
		return eris.Wrap(err, "config: build logger")
	}
	zap.ReplaceGlobals(logger)

	return nil
}

// WindowDescription renders an analysis window for operator-facing output.
func WindowDescription(months int) string {
	if months == 1 {
		return "1 month"
	}
	return fmt.Sprintf("%d months", months)
}

package config

import (
	"io"
	"math"
	"os"
	"strconv"
	"strings"
	"time"

	"codeberg.org/mutker/jetpwmon/internal/errors"
	"codeberg.org/mutker/jetpwmon/internal/logger"
	"codeberg.org/mutker/jetpwmon/internal/report"
	"codeberg.org/mutker/jetpwmon/internal/sensor"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

const (
	DefaultFrequency      = 1.0
	DefaultDuration       = 10 * time.Second
	DefaultStatsInterval  = 5 * time.Second
	DefaultLogLevel       = "info"
	DefaultNominalVoltage = 5.0
	DefaultConfigPath     = "/etc/jetpwmon.toml"
	DefaultEnvPrefix      = "JETPWMON"

	// simulated sensors are forced on when this is set, as on a dev host
	testingEnv = "JTOP_TESTING"
)

type Config struct {
	Frequency       float64       `mapstructure:"frequency"`
	Duration        time.Duration `mapstructure:"duration"`
	StatsInterval   time.Duration `mapstructure:"stats_interval"`
	LogLevel        string        `mapstructure:"log_level"`
	Simulate        bool          `mapstructure:"simulate"`
	JSON            bool          `mapstructure:"json"`
	NominalVoltage  float64       `mapstructure:"nominal_voltage"`
	Report          bool          `mapstructure:"report"`
	ReportDB        string        `mapstructure:"report_db"`
	ReportBackupDir string        `mapstructure:"report_backup_dir"`
	MetricsListen   string        `mapstructure:"metrics_listen"`
	Rails           []sensor.Rail `mapstructure:"rail"`
}

// flag name -> config key
var flagKeys = map[string]string{
	"frequency":       "frequency",
	"duration":        "duration",
	"stats-interval":  "stats_interval",
	"log-level":       "log_level",
	"simulate":        "simulate",
	"json":            "json",
	"nominal-voltage": "nominal_voltage",
	"report":          "report",
	"report-db":       "report_db",
	"metrics-listen":  "metrics_listen",
}

func newFlagSet() *pflag.FlagSet {
	fs := pflag.NewFlagSet("jetpwmon", pflag.ContinueOnError)
	fs.SortFlags = false
	fs.SetOutput(io.Discard)

	fs.Float64P("frequency", "f", DefaultFrequency, "Sampling frequency in Hz")
	fs.DurationP("duration", "d", DefaultDuration, "How long to sample; 0 runs until interrupted")
	fs.Duration("stats-interval", DefaultStatsInterval, "How often to print running statistics")
	fs.String("log-level", DefaultLogLevel, "Log level (debug, info, warn, error)")
	fs.Bool("simulate", false, "Use simulated sensors")
	fs.Bool("json", false, "Print statistics as JSON")
	fs.Float64("nominal-voltage", DefaultNominalVoltage, "Voltage reported for the total row")
	fs.Bool("report", false, "Store a session summary in the report database")
	fs.String("report-db", report.DefaultConfig().DBPath, "Path of the report database")
	fs.String("metrics-listen", "", "Serve Prometheus metrics on this address, e.g. :9101")
	fs.String("config", "", "Path to a TOML configuration file")

	return fs
}

// Usage returns the flag help text.
func Usage() string {
	return newFlagSet().FlagUsages()
}

// Load resolves the configuration from defaults, the TOML file, the
// environment and args, in increasing order of precedence, and validates
// the result.
func Load(args []string, opts ...Option) (*Config, error) {
	errFactory := errors.New()

	o := options{envPrefix: DefaultEnvPrefix}
	for _, opt := range opts {
		if err := opt(&o); err != nil {
			return nil, errFactory.Wrap(ErrInvalidConfig, err)
		}
	}

	fs := newFlagSet()
	if err := fs.Parse(args); err != nil {
		return nil, errFactory.Wrap(ErrBindFlags, err)
	}

	v := viper.New()
	setDefaults(v)

	for name, key := range flagKeys {
		if err := v.BindPFlag(key, fs.Lookup(name)); err != nil {
			return nil, errFactory.Wrap(ErrBindFlags, err)
		}
	}

	v.SetEnvPrefix(o.envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	if err := readConfigFile(v, fs, o); err != nil {
		return nil, err
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, errFactory.Wrap(ErrInvalidConfig, err)
	}

	if forced, _ := strconv.ParseBool(os.Getenv(testingEnv)); forced {
		cfg.Simulate = true
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("frequency", DefaultFrequency)
	v.SetDefault("duration", DefaultDuration)
	v.SetDefault("stats_interval", DefaultStatsInterval)
	v.SetDefault("log_level", DefaultLogLevel)
	v.SetDefault("simulate", false)
	v.SetDefault("json", false)
	v.SetDefault("nominal_voltage", DefaultNominalVoltage)
	v.SetDefault("report", false)
	v.SetDefault("report_db", report.DefaultConfig().DBPath)
	v.SetDefault("report_backup_dir", report.DefaultConfig().BackupDir)
	v.SetDefault("metrics_listen", "")
}

// readConfigFile loads the first of --config, the option, <PREFIX>_CONFIG
// and DefaultConfigPath. Only the default path may be absent.
func readConfigFile(v *viper.Viper, fs *pflag.FlagSet, o options) error {
	errFactory := errors.New()

	path, _ := fs.GetString("config")
	if path == "" {
		path = o.configPath
	}
	if path == "" {
		path = os.Getenv(o.envPrefix + "_CONFIG")
	}
	if path == "" {
		if _, err := os.Stat(DefaultConfigPath); err != nil {
			return nil
		}
		path = DefaultConfigPath
	}

	v.SetConfigFile(path)
	v.SetConfigType("toml")
	if err := v.ReadInConfig(); err != nil {
		return errFactory.WithData(ErrReadConfig, struct {
			Path  string
			Error string
		}{
			Path:  path,
			Error: err.Error(),
		})
	}

	logger.Debug().Str("path", path).Msg("Config file loaded")
	return nil
}

func (c *Config) Validate() error {
	errFactory := errors.New()

	if c.Frequency <= 0 || math.IsNaN(c.Frequency) || math.IsInf(c.Frequency, 0) {
		return errFactory.WithData(ErrInvalidFrequency, c.Frequency)
	}
	if c.Duration < 0 {
		return errFactory.WithData(ErrInvalidDuration, c.Duration.String())
	}
	if c.StatsInterval <= 0 {
		return errFactory.WithData(ErrInvalidDuration, c.StatsInterval.String())
	}
	if _, err := logger.ParseLevel(c.LogLevel); err != nil {
		return errFactory.WithData(ErrInvalidLogLevel, c.LogLevel)
	}
	if c.NominalVoltage < 0 || math.IsNaN(c.NominalVoltage) || math.IsInf(c.NominalVoltage, 0) {
		return errFactory.WithData(ErrInvalidConfig, struct {
			Field string
			Value float64
		}{
			Field: "nominal_voltage",
			Value: c.NominalVoltage,
		})
	}
	if err := c.ReportConfig().Validate(); err != nil {
		return errFactory.Wrap(ErrInvalidConfig, err)
	}

	seen := make(map[string]struct{}, len(c.Rails))
	for i, rail := range c.Rails {
		name := strings.TrimSpace(rail.Name)
		if name == "" {
			continue
		}
		if _, dup := seen[name]; dup {
			return errFactory.WithData(ErrInvalidRail, struct {
				Index  int
				Name   string
				Reason string
			}{
				Index:  i,
				Name:   name,
				Reason: "duplicate name",
			})
		}
		seen[name] = struct{}{}
	}

	return nil
}

// ReportConfig derives the session report settings.
func (c *Config) ReportConfig() report.Config {
	return report.Config{
		DBPath:    c.ReportDB,
		BackupDir: c.ReportBackupDir,
		Enabled:   c.Report,
	}
}

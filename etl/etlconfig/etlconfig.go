// Package etlconfig loads optional default RunOptions and logging settings
// from the environment, an optional .env file, or a YAML/JSON config file,
// grounded on kbukum-gokit's use of spf13/viper plus joho/godotenv for the
// same purpose. Programmatic etl.RunOptions / etl.EngineOption values always
// take precedence: this package only supplies defaults for a hosting
// application that wants to tune the engine without recompiling it.
package etlconfig

import (
	"strings"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/spf13/viper"

	"github.com/dshills/etlgraph-go/etl"
)

// Defaults is the subset of engine-tunable knobs this package can populate
// from configuration.
type Defaults struct {
	Workers                     int
	RaiseException              bool
	RaiseExceptionIfInterrupted bool
	MonitorPerformance          bool
	ShowProgress                bool
	LogLevel                    zerolog.Level
}

// Load reads configuration from (in increasing priority) an optional config
// file named configName discovered on configPaths, a .env file at envPath
// (ignored if missing; it never overrides a variable already set in the
// process environment), and environment variables prefixed ETL_. Every key
// has a sane default matching etl.DefaultRunOptions, so Load never fails
// merely because no configuration source is present.
func Load(envPath, configName string, configPaths ...string) (Defaults, error) {
	_ = godotenv.Load(envPath) // optional; absence is not an error

	v := viper.New()
	v.SetEnvPrefix("ETL")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	def := etl.DefaultRunOptions()
	v.SetDefault("workers", def.Workers)
	v.SetDefault("raise_exception", def.RaiseException)
	v.SetDefault("raise_exception_if_interrupted", def.RaiseExceptionIfInterrupted)
	v.SetDefault("monitor_performance", def.MonitorPerformance)
	v.SetDefault("show_progress", def.ShowProgress)
	v.SetDefault("log_level", "info")

	if configName != "" {
		v.SetConfigName(configName)
		for _, p := range configPaths {
			v.AddConfigPath(p)
		}
		if err := v.ReadInConfig(); err != nil {
			if _, notFound := err.(viper.ConfigFileNotFoundError); !notFound {
				return Defaults{}, err
			}
		}
	}

	level, err := zerolog.ParseLevel(v.GetString("log_level"))
	if err != nil {
		level = zerolog.InfoLevel
	}

	return Defaults{
		Workers:                     v.GetInt("workers"),
		RaiseException:              v.GetBool("raise_exception"),
		RaiseExceptionIfInterrupted: v.GetBool("raise_exception_if_interrupted"),
		MonitorPerformance:          v.GetBool("monitor_performance"),
		ShowProgress:                v.GetBool("show_progress"),
		LogLevel:                    level,
	}, nil
}

// RunOptions converts Defaults into an etl.RunOptions value.
func (d Defaults) RunOptions() etl.RunOptions {
	return etl.RunOptions{
		Workers:                     d.Workers,
		RaiseException:              d.RaiseException,
		RaiseExceptionIfInterrupted: d.RaiseExceptionIfInterrupted,
		MonitorPerformance:          d.MonitorPerformance,
		ShowProgress:                d.ShowProgress,
	}
}

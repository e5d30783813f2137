// Package config holds the configuration of the delta-join engine.
package config

import (
	"errors"
	"flag"
	"fmt"
	"math"
	"net"
	"os"

	"go.uber.org/zap/zapcore"
	"sigs.k8s.io/controller-runtime/pkg/log/zap"
	"sigs.k8s.io/yaml"

	"github.com/l7mp/deltajoin/pkg/dataflow"
)

// Config is the configuration of an engine run.
type Config struct {
	// Workers is the number of workers. Defaults to 1.
	Workers int `json:"workers,omitempty"`
	// Partitions is the number of hash partitions keys are distributed over. Must be at least
	// the number of workers; zero means one partition per worker.
	Partitions int `json:"partitions,omitempty"`
	// MetricsBindAddress is the address the Prometheus metrics are served on. "0" or empty
	// disables the metrics endpoint.
	MetricsBindAddress string `json:"metricsBindAddress,omitempty"`
	// Logging configures the logger.
	Logging Logging `json:"logging,omitempty"`
}

// Logging configures the logger.
type Logging struct {
	// Level is the verbosity: 0 prints only errors and lifecycle information, 4 traces every
	// batch and 5 every record.
	Level int `json:"level,omitempty"`
	// Development switches to human-readable console logging. On by default.
	Development bool `json:"development"`
}

// ApplyTo copies the logging settings into the zap options of a binary. Settings whose zap flag
// was given on the command line in fs win over the configuration.
func (l Logging) ApplyTo(o *zap.Options, fs *flag.FlagSet) {
	set := map[string]bool{}
	if fs != nil {
		fs.Visit(func(f *flag.Flag) { set[f.Name] = true })
	}
	if !set["zap-devel"] {
		o.Development = l.Development
	}
	if !set["zap-log-level"] {
		// logr verbosity V(n) is zap level -n
		o.Level = zapcore.Level(-l.Level)
	}
}

// Default returns the default configuration.
func Default() *Config {
	return &Config{
		Workers:            1,
		MetricsBindAddress: "0",
		Logging:            Logging{Development: true},
	}
}

// Load reads a YAML configuration file. Fields missing from the file keep their default
// values.
func Load(file string) (*Config, error) {
	b, err := os.ReadFile(file)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	return Parse(b)
}

// Parse parses a YAML configuration.
func Parse(b []byte) (*Config, error) {
	c := Default()
	if err := yaml.UnmarshalStrict(b, c); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return c, nil
}

// Validate checks the configuration.
func (c *Config) Validate() error {
	var errs []error
	if c.Workers < 1 {
		errs = append(errs, fmt.Errorf("workers must be positive, got %d", c.Workers))
	}
	if c.Partitions != 0 && c.Partitions < c.Workers {
		errs = append(errs, fmt.Errorf("partitions (%d) must not be fewer than workers (%d)",
			c.Partitions, c.Workers))
	}
	if c.Logging.Level < 0 || c.Logging.Level > math.MaxInt8 {
		errs = append(errs, fmt.Errorf("log level must be between 0 and %d, got %d", math.MaxInt8, c.Logging.Level))
	}
	if c.MetricsEnabled() {
		if _, _, err := net.SplitHostPort(c.MetricsBindAddress); err != nil {
			errs = append(errs, fmt.Errorf("invalid metrics bind address %q: %w", c.MetricsBindAddress, err))
		}
	}
	return errors.Join(errs...)
}

// MetricsEnabled reports whether the metrics endpoint should be served.
func (c *Config) MetricsEnabled() bool {
	return c.MetricsBindAddress != "" && c.MetricsBindAddress != "0"
}

// DataflowOptions returns the execution options the configuration describes.
func (c *Config) DataflowOptions() dataflow.Options {
	return dataflow.Options{Workers: c.Workers, Partitions: c.Partitions}
}

// String renders the configuration as YAML.
func (c *Config) String() string {
	b, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Sprintf("%#v", *c)
	}
	return string(b)
}

package localinvoke

import (
	"errors"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config describes the function being emulated and where it is served.
type Config struct {
	Addr            string        `yaml:"addr"`
	FunctionName    string        `yaml:"function_name"`
	FunctionVersion string        `yaml:"function_version"`
	MemoryLimitMB   int           `yaml:"memory_limit_mb"`
	Timeout         time.Duration `yaml:"timeout"`
	MaxEventBytes   int64         `yaml:"max_event_bytes"`
}

func DefaultConfig() Config {
	return Config{
		Addr:            "127.0.0.1:9000",
		FunctionName:    "function",
		FunctionVersion: "$LATEST",
		MemoryLimitMB:   128,
		Timeout:         3 * time.Second,
		MaxEventBytes:   6 << 20,
	}
}

// LoadConfig reads a YAML file on top of DefaultConfig. An empty path skips
// the file. LAMBDA_ADDR and LAMBDA_FUNCTION_NAME override the result.
func LoadConfig(path string) (Config, error) {
	cfg := DefaultConfig()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("reading config %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return Config{}, fmt.Errorf("parsing config %s: %w", path, err)
		}
	}
	if addr := os.Getenv("LAMBDA_ADDR"); addr != "" {
		cfg.Addr = addr
	}
	if name := os.Getenv("LAMBDA_FUNCTION_NAME"); name != "" {
		cfg.FunctionName = name
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) Validate() error {
	var errs []error
	if c.Addr == "" {
		errs = append(errs, errors.New("addr is required"))
	}
	if c.FunctionName == "" {
		errs = append(errs, errors.New("function_name is required"))
	}
	if c.MemoryLimitMB < 0 {
		errs = append(errs, fmt.Errorf("memory_limit_mb must not be negative, got %d", c.MemoryLimitMB))
	}
	if c.Timeout < 0 {
		errs = append(errs, fmt.Errorf("timeout must not be negative, got %s", c.Timeout))
	}
	if c.MaxEventBytes < 0 {
		errs = append(errs, fmt.Errorf("max_event_bytes must not be negative, got %d", c.MaxEventBytes))
	}
	return errors.Join(errs...)
}

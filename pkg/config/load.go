package config

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// ErrUnknownKey is returned when an argument override names no known key.
var ErrUnknownKey = errors.New("unknown configuration key")

// Sources lists the layers Load reads, lowest precedence first after the
// built-in defaults.
type Sources struct {
	// File is an optional YAML configuration file.
	File string

	// Env holds "NAME=value" pairs. Nil reads os.Environ.
	Env []string

	// Properties holds "gateway.key=value" pairs, as given with -D.
	Properties []string

	// Args holds "key=value" pairs from the command line.
	Args []string
}

// Load resolves a configuration snapshot. Each layer overrides the previous:
//
//  1. Default values (defined in defaults.go)
//  2. Values from the YAML file
//  3. GATEWAY_* environment variables
//  4. gateway.* runtime properties
//  5. Command-line key=value arguments
//  6. Validation (fails fast if invalid)
//
// Unknown keys are ignored in the environment and property layers and
// rejected in the argument layer. Malformed values fail in every layer.
func Load(src Sources) (*Config, error) {
	cfg := Default()

	if src.File != "" {
		if err := loadFile(cfg, src.File); err != nil {
			return nil, err
		}
	}

	env := src.Env
	if env == nil {
		env = os.Environ()
	}

	var errs []FieldError
	errs = append(errs, applyEnv(cfg, env)...)
	errs = append(errs, applyProperties(cfg, src.Properties)...)

	argErrs, err := applyArgs(cfg, src.Args)
	if err != nil {
		return nil, err
	}
	errs = append(errs, argErrs...)

	if len(errs) > 0 {
		return nil, fmt.Errorf("configuration overrides invalid: %w", ValidationError{Errors: errs})
	}

	if err := Validate(cfg); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}
	return cfg, nil
}

// LoadConfig loads configuration from a YAML file at the specified path
// over the defaults and validates it. The environment is not consulted; use
// Load for the full layered resolution.
func LoadConfig(path string) (*Config, error) {
	cfg := Default()
	if err := loadFile(cfg, path); err != nil {
		return nil, err
	}
	if err := Validate(cfg); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}
	return cfg, nil
}

// LoadConfigWithEnvOverrides loads configuration from a YAML file and applies
// GATEWAY_* environment variable overrides.
func LoadConfigWithEnvOverrides(path string) (*Config, error) {
	return Load(Sources{File: path})
}

func loadFile(cfg *Config, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read configuration file %q: %w", path, err)
	}
	// Decoding into the defaulted struct keeps every field the file omits.
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("failed to parse configuration file %q: %w", path, err)
	}
	return nil
}

func applyEnv(cfg *Config, env []string) []FieldError {
	var errs []FieldError
	for _, pair := range env {
		name, value, ok := strings.Cut(pair, "=")
		if !ok || !strings.HasPrefix(name, EnvPrefix) {
			continue
		}
		key, known := envIndex[strings.ToUpper(name)]
		if !known {
			continue
		}
		if err := keys[key](cfg, value); err != nil {
			errs = append(errs, FieldError{Field: name, Message: err.Error()})
		}
	}
	return errs
}

func applyProperties(cfg *Config, props []string) []FieldError {
	var errs []FieldError
	for _, pair := range props {
		name, value, ok := splitPair(pair)
		if !ok {
			errs = append(errs, FieldError{Field: pair, Message: "expected key=value"})
			continue
		}
		if !strings.HasPrefix(strings.ToLower(name), PropertyPrefix) {
			continue
		}
		key, set, known := lookupKey(name[len(PropertyPrefix):])
		if !known {
			continue
		}
		if err := set(cfg, value); err != nil {
			errs = append(errs, FieldError{Field: key, Message: err.Error()})
		}
	}
	return errs
}

func applyArgs(cfg *Config, args []string) ([]FieldError, error) {
	var errs []FieldError
	for _, pair := range args {
		name, value, ok := splitPair(strings.TrimPrefix(pair, "--"))
		if !ok {
			errs = append(errs, FieldError{Field: pair, Message: "expected key=value"})
			continue
		}
		err := Set(cfg, name, value)
		if errors.Is(err, ErrUnknownKey) {
			return nil, err
		}
		var fe FieldError
		if errors.As(err, &fe) {
			errs = append(errs, fe)
		}
	}
	return errs, nil
}

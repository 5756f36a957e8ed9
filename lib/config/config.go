// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"slices"

	"gopkg.in/yaml.v3"
)

// EnvironmentVariable names the variable Load reads the config path
// from.
const EnvironmentVariable = "BUILDINFO_CONFIG"

// Environment represents where the tools are running.
type Environment string

const (
	// Development is for local builds.
	Development Environment = "development"
	// CI is for continuous integration workers.
	CI Environment = "ci"
	// Production is for release builds and shared caches.
	Production Environment = "production"
)

// Config is the master configuration.
type Config struct {
	// Environment selects which override section applies.
	Environment Environment `yaml:"environment"`

	// Paths configures directory locations.
	Paths PathsConfig `yaml:"paths"`

	// Store configures metadata persistence.
	Store StoreConfig `yaml:"store"`

	// Validation configures artifact validation.
	Validation ValidationConfig `yaml:"validation"`

	// Fingerprint configures content hashing for recorded paths.
	Fingerprint FingerprintConfig `yaml:"fingerprint"`

	// Recorder configures metadata recording.
	Recorder RecorderConfig `yaml:"recorder"`

	// Bundle configures artifact bundles.
	Bundle BundleConfig `yaml:"bundle"`

	// Per-environment overrides, applied after the base config.
	Development *ConfigOverrides `yaml:"development,omitempty"`
	CI          *ConfigOverrides `yaml:"ci,omitempty"`
	Production  *ConfigOverrides `yaml:"production,omitempty"`
}

// ConfigOverrides contains fields that can be overridden per environment.
type ConfigOverrides struct {
	Paths      *PathsConfig      `yaml:"paths,omitempty"`
	Store      *StoreConfig      `yaml:"store,omitempty"`
	Validation *ValidationConfig `yaml:"validation,omitempty"`
	Bundle     *BundleConfig     `yaml:"bundle,omitempty"`
}

// PathsConfig configures directory locations.
type PathsConfig struct {
	// ProjectRoot is the directory recorded paths are relative to.
	// Default: the current directory.
	ProjectRoot string `yaml:"project_root"`

	// OutputDir is the project-relative build output directory.
	// Default: buck-out
	OutputDir string `yaml:"output_dir"`

	// Store is the metadata database file (sqlite engine) or directory
	// (filesystem engine). Empty derives it from the output directory;
	// see StorePath.
	Store string `yaml:"store"`
}

// StoreConfig configures metadata persistence.
type StoreConfig struct {
	// Engine is "sqlite" or "filesystem".
	// Default: sqlite
	Engine string `yaml:"engine"`

	// PoolSize is the number of SQLite connections.
	// Default: 4
	PoolSize int `yaml:"pool_size"`
}

// ValidationConfig configures artifact validation.
type ValidationConfig struct {
	// Policy is "existence" or "content".
	// Default: existence (content in production)
	Policy string `yaml:"policy"`
}

// FingerprintConfig configures content hashing.
type FingerprintConfig struct {
	// Algorithm is "blake3" or "sha256".
	// Default: blake3
	Algorithm string `yaml:"algorithm"`
}

// RecorderConfig configures metadata recording.
type RecorderConfig struct {
	// ArtifactData is rendered into ADDITIONAL_INFO. Empty renders
	// as null.
	ArtifactData string `yaml:"artifact_data"`

	// ExtraData adds key=value pairs to ADDITIONAL_INFO.
	ExtraData map[string]string `yaml:"extra_data"`
}

// BundleConfig configures artifact bundles.
type BundleConfig struct {
	// Compression is "zstd", "lz4", or "none".
	// Default: zstd
	Compression string `yaml:"compression"`

	// Recipients are age public keys bundles are encrypted to. Empty
	// leaves bundles unencrypted.
	Recipients []string `yaml:"recipients"`

	// IdentityFile holds age secret keys for unpacking encrypted
	// bundles.
	IdentityFile string `yaml:"identity_file"`
}

// Default returns the default configuration, used as the base before
// loading a file and on its own when no file is given.
func Default() *Config {
	return &Config{
		Environment: Development,
		Paths: PathsConfig{
			ProjectRoot: ".",
			OutputDir:   "buck-out",
		},
		Store: StoreConfig{
			Engine:   "sqlite",
			PoolSize: 4,
		},
		Validation: ValidationConfig{
			Policy: "existence",
		},
		Fingerprint: FingerprintConfig{
			Algorithm: "blake3",
		},
		Bundle: BundleConfig{
			Compression: "zstd",
		},
	}
}

// Load loads configuration from the file named by BUILDINFO_CONFIG.
// It fails when the variable is unset.
func Load() (*Config, error) {
	configPath := os.Getenv(EnvironmentVariable)
	if configPath == "" {
		return nil, fmt.Errorf("%s environment variable not set; "+
			"set it to the path of your buildinfo.yaml config file, or use --config flag", EnvironmentVariable)
	}

	return LoadFile(configPath)
}

// LoadFile loads configuration from a specific file path.
func LoadFile(path string) (*Config, error) {
	cfg := Default()

	if err := cfg.loadFile(path); err != nil {
		return nil, err
	}

	cfg.applyEnvironmentOverrides()
	cfg.expandVariables()

	return cfg, nil
}

// loadFile loads a single configuration file, merging into the current config.
func (c *Config) loadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("reading config %s: %w", path, err)
	}

	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("parsing config %s: %w", path, err)
	}
	return nil
}

// applyEnvironmentOverrides applies the environment-specific overrides.
func (c *Config) applyEnvironmentOverrides() {
	var overrides *ConfigOverrides

	switch c.Environment {
	case Development:
		overrides = c.Development
	case CI:
		overrides = c.CI
	case Production:
		overrides = c.Production
		// Production defaults: artifacts leaving a release build are
		// checked byte for byte.
		if overrides == nil {
			overrides = &ConfigOverrides{
				Validation: &ValidationConfig{Policy: "content"},
			}
		}
	}

	if overrides == nil {
		return
	}

	if overrides.Paths != nil {
		if overrides.Paths.ProjectRoot != "" {
			c.Paths.ProjectRoot = overrides.Paths.ProjectRoot
		}
		if overrides.Paths.OutputDir != "" {
			c.Paths.OutputDir = overrides.Paths.OutputDir
		}
		if overrides.Paths.Store != "" {
			c.Paths.Store = overrides.Paths.Store
		}
	}

	if overrides.Store != nil {
		if overrides.Store.Engine != "" {
			c.Store.Engine = overrides.Store.Engine
		}
		if overrides.Store.PoolSize != 0 {
			c.Store.PoolSize = overrides.Store.PoolSize
		}
	}

	if overrides.Validation != nil && overrides.Validation.Policy != "" {
		c.Validation.Policy = overrides.Validation.Policy
	}

	if overrides.Bundle != nil {
		if overrides.Bundle.Compression != "" {
			c.Bundle.Compression = overrides.Bundle.Compression
		}
		if len(overrides.Bundle.Recipients) > 0 {
			c.Bundle.Recipients = overrides.Bundle.Recipients
		}
		if overrides.Bundle.IdentityFile != "" {
			c.Bundle.IdentityFile = overrides.Bundle.IdentityFile
		}
	}
}

// expandVariables expands ${VAR} and ${VAR:-default} patterns in paths.
func (c *Config) expandVariables() {
	vars := map[string]string{
		"HOME": os.Getenv("HOME"),
	}

	c.Paths.ProjectRoot = expandVars(c.Paths.ProjectRoot, vars)
	vars["PROJECT_ROOT"] = c.Paths.ProjectRoot

	c.Paths.OutputDir = expandVars(c.Paths.OutputDir, vars)
	vars["OUTPUT_DIR"] = c.Paths.OutputDir

	c.Paths.Store = expandVars(c.Paths.Store, vars)
	c.Bundle.IdentityFile = expandVars(c.Bundle.IdentityFile, vars)
}

var varPattern = regexp.MustCompile(`\$\{([^}:]+)(?::-([^}]*))?\}`)

// expandVars expands ${VAR} and ${VAR:-default} patterns, preferring
// vars over the process environment.
func expandVars(s string, vars map[string]string) string {
	return varPattern.ReplaceAllStringFunc(s, func(match string) string {
		parts := varPattern.FindStringSubmatch(match)
		if len(parts) < 2 {
			return match
		}

		name := parts[1]
		defaultValue := ""
		if len(parts) >= 3 {
			defaultValue = parts[2]
		}

		if value, ok := vars[name]; ok && value != "" {
			return value
		}
		if value := os.Getenv(name); value != "" {
			return value
		}
		return defaultValue
	})
}

// StorePath returns the store location: Paths.Store when set,
// otherwise <project_root>/<output_dir>/cache/metadata/metadata.db for
// the sqlite engine and <project_root>/<output_dir>/cache/metadata for
// the filesystem engine.
func (c *Config) StorePath() string {
	if c.Paths.Store != "" {
		return c.Paths.Store
	}
	directory := filepath.Join(c.Paths.ProjectRoot, c.Paths.OutputDir, "cache", "metadata")
	if c.Store.Engine == "filesystem" {
		return directory
	}
	return filepath.Join(directory, "metadata.db")
}

// Validate checks the configuration for errors.
func (c *Config) Validate() error {
	var errs []error

	if !slices.Contains([]Environment{Development, CI, Production}, c.Environment) {
		errs = append(errs, fmt.Errorf("invalid environment: %s", c.Environment))
	}

	if c.Paths.ProjectRoot == "" {
		errs = append(errs, fmt.Errorf("paths.project_root is required"))
	}
	if c.Paths.OutputDir == "" {
		errs = append(errs, fmt.Errorf("paths.output_dir is required"))
	}
	if filepath.IsAbs(c.Paths.OutputDir) {
		errs = append(errs, fmt.Errorf("paths.output_dir must be relative to the project root"))
	}

	engines := []string{"sqlite", "filesystem"}
	if !slices.Contains(engines, c.Store.Engine) {
		errs = append(errs, fmt.Errorf("store.engine must be one of: %v", engines))
	}
	if c.Store.PoolSize < 0 {
		errs = append(errs, fmt.Errorf("store.pool_size must not be negative"))
	}

	policies := []string{"existence", "content"}
	if !slices.Contains(policies, c.Validation.Policy) {
		errs = append(errs, fmt.Errorf("validation.policy must be one of: %v", policies))
	}

	algorithms := []string{"blake3", "sha256"}
	if !slices.Contains(algorithms, c.Fingerprint.Algorithm) {
		errs = append(errs, fmt.Errorf("fingerprint.algorithm must be one of: %v", algorithms))
	}

	compressions := []string{"zstd", "lz4", "none"}
	if !slices.Contains(compressions, c.Bundle.Compression) {
		errs = append(errs, fmt.Errorf("bundle.compression must be one of: %v", compressions))
	}

	if len(errs) > 0 {
		return errors.Join(errs...)
	}
	return nil
}

// Package config loads and validates the gateway configuration from a
// JSON or YAML file.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"sigs.k8s.io/yaml"
)

// ReadMode selects the read replication strategy.
type ReadMode string

const (
	ReadPrimaryOnly     ReadMode = "PRIMARY_ONLY"
	ReadPrimaryFallback ReadMode = "PRIMARY_FALLBACK"
	ReadBestEffort      ReadMode = "BEST_EFFORT"
	ReadAllConsistent   ReadMode = "ALL_CONSISTENT"
)

// WriteMode selects the write replication strategy.
type WriteMode string

const (
	WriteAsyncReplication WriteMode = "ASYNC_REPLICATION"
	WriteMultiSync        WriteMode = "MULTI_SYNC"
)

// Backend types.
const (
	BackendS3     = "s3"
	BackendMemory = "memory"
	BackendBolt   = "bolt"
)

// Config is the gateway configuration file.
type Config struct {
	VirtualBucket                 string          `json:"virtualBucket,omitempty"`
	ReadMode                      ReadMode        `json:"readMode"`
	WriteMode                     WriteMode       `json:"writeMode"`
	PrimaryBackendName            string          `json:"primaryBackendName,omitempty"`
	UseLatencyBasedPrimaryBackend bool            `json:"useLatencyBasedPrimaryBackend,omitempty"`
	Backends                      []BackendConfig `json:"backends"`
}

// BackendConfig describes one storage backend. Type selects which
// fields apply: s3 backends use the connection fields, bolt backends
// use Path, memory backends need only a name.
type BackendConfig struct {
	Type string `json:"type"`
	Name string `json:"name"`

	Region          string `json:"region,omitempty"`
	Bucket          string `json:"bucket,omitempty"`
	Endpoint        string `json:"endpoint,omitempty"`
	ForcePathStyle  bool   `json:"force_path_style,omitempty"`
	AccessKeyID     string `json:"access_key_id,omitempty"`
	SecretAccessKey string `json:"secret_access_key,omitempty"`

	Path string `json:"path,omitempty"`
}

// Load reads, parses and validates the configuration at path. The file
// format is chosen by extension: .json, .yaml or .yml.
func Load(path string) (*Config, error) {
	if err := checkExtension(path); err != nil {
		return nil, err
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config %s: %w", path, err)
	}
	return &cfg, nil
}

func checkExtension(path string) error {
	ext := strings.ToLower(filepath.Ext(path))
	switch ext {
	case ".json", ".yaml", ".yml":
		return nil
	case "":
		return fmt.Errorf("config file must have an extension (.json, .yaml, or .yml)")
	default:
		return fmt.Errorf("unsupported config file extension %q, supported: .json, .yaml, .yml", ext)
	}
}

// Validate checks cross-field constraints.
func (c *Config) Validate() error {
	if len(c.Backends) == 0 {
		return fmt.Errorf("at least one backend is required")
	}

	switch c.ReadMode {
	case ReadPrimaryOnly, ReadPrimaryFallback, ReadBestEffort, ReadAllConsistent:
	case "":
		return fmt.Errorf("readMode is required")
	default:
		return fmt.Errorf("unknown readMode %q", c.ReadMode)
	}

	switch c.WriteMode {
	case WriteAsyncReplication, WriteMultiSync:
	case "":
		return fmt.Errorf("writeMode is required")
	default:
		return fmt.Errorf("unknown writeMode %q", c.WriteMode)
	}

	seen := make(map[string]bool, len(c.Backends))
	for i := range c.Backends {
		b := &c.Backends[i]
		if err := b.validate(); err != nil {
			return err
		}
		if seen[b.Name] {
			return fmt.Errorf("duplicate backend name %q", b.Name)
		}
		seen[b.Name] = true
	}

	if c.PrimaryBackendName != "" && c.UseLatencyBasedPrimaryBackend {
		return fmt.Errorf("cannot specify both primaryBackendName and useLatencyBasedPrimaryBackend")
	}
	if c.PrimaryBackendName != "" && !seen[c.PrimaryBackendName] {
		return fmt.Errorf("primary backend %q not found in backends list", c.PrimaryBackendName)
	}

	return nil
}

func (b *BackendConfig) validate() error {
	if b.Name == "" {
		return fmt.Errorf("backend name is required")
	}
	switch b.Type {
	case BackendS3:
		if b.Region == "" {
			return fmt.Errorf("backend %q: region is required for s3 backends", b.Name)
		}
		if b.Bucket == "" {
			return fmt.Errorf("backend %q: bucket is required for s3 backends", b.Name)
		}
	case BackendBolt:
		if b.Path == "" {
			return fmt.Errorf("backend %q: path is required for bolt backends", b.Name)
		}
	case BackendMemory:
	case "":
		return fmt.Errorf("backend %q: type is required", b.Name)
	default:
		return fmt.Errorf("backend %q: unknown type %q", b.Name, b.Type)
	}
	return nil
}

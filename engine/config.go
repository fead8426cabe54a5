// Package engine is the host-facing facade described in spec §5 and
// SPEC_FULL.md §12: it wires the compiler, vm, alloc, and security packages
// behind a small Engine/Script API, and owns the two GlobalStore instances
// (engine-wide and per-script) a vm.Machine resolves names against.
package engine

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/GhostKellz/ghostlang-sub000/security"
)

// Config is an engine's sandbox configuration: memory/instruction/time
// limits plus the capability flags forwarded into a security.Context.
// It is the unit loaded from a host's YAML config file (SPEC_FULL.md
// §10.2), mirroring the teacher's convention of a flat config struct with
// `yaml:` tags read once at startup.
type Config struct {
	MemoryLimitBytes int64         `yaml:"memory_limit_bytes"`
	MaxInstructions  uint64        `yaml:"max_instructions"`
	Timeout          time.Duration `yaml:"timeout"`
	MaxCallDepth     int           `yaml:"max_call_depth"`

	AllowIO       bool     `yaml:"allow_io"`
	AllowSyscalls bool     `yaml:"allow_syscalls"`
	Deterministic bool     `yaml:"deterministic"`
	ReadWhitelist []string `yaml:"read_whitelist"`
	WriteWhitelist []string `yaml:"write_whitelist"`
}

// DefaultConfig mirrors the conservative defaults spec §5 assumes for an
// embedding host that hasn't opted into any capability yet.
func DefaultConfig() Config {
	return Config{
		MemoryLimitBytes: 16 * 1024 * 1024,
		MaxInstructions:  0,
		Timeout:          5 * time.Second,
		MaxCallDepth:     200,
	}
}

// LoadConfig reads a YAML config file into a Config, seeded with
// DefaultConfig so a partial file only overrides what it names.
func LoadConfig(path string) (Config, error) {
	cfg := DefaultConfig()
	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("engine: reading config %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("engine: parsing config %s: %w", path, err)
	}
	return cfg, nil
}

func (c Config) securityContext() *security.Context {
	return security.New(c.AllowIO, c.AllowSyscalls, c.Deterministic, c.ReadWhitelist, c.WriteWhitelist)
}

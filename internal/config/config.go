// Package config loads the recording configuration: the dispatch threshold,
// an optional fixed run id and the list of backends to register.
//
// Files are YAML and are checked against the #Config definition in
// config.cue, which also supplies defaults.
package config

import (
	_ "embed"
	"fmt"
	"os"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	"github.com/google/uuid"
	"gopkg.in/yaml.v3"
)

//go:embed config.cue
var schemaCUE string

// Backend type names.
const (
	BackendCSV    = "csv"
	BackendSQLite = "sqlite"
	BackendArrow  = "arrow"
)

// Config is a validated recording configuration.
type Config struct {
	BufferThreshold int       `json:"buffer_threshold"`
	RunID           string    `json:"run_id,omitempty"`
	Backends        []Backend `json:"backends"`
}

// Backend is one backend to register, in file order.
type Backend struct {
	Type      string `json:"type"`
	Path      string `json:"path"`
	Overwrite bool   `json:"overwrite"`
}

// Default returns the configuration of an empty file.
func Default() *Config {
	return &Config{BufferThreshold: 100, Backends: []Backend{}}
}

// Load reads and validates the YAML file at path.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	cfg, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return cfg, nil
}

// Parse validates YAML config data and fills in defaults.
func Parse(data []byte) (*Config, error) {
	var raw any
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("parse yaml: %w", err)
	}
	if raw == nil {
		raw = map[string]any{}
	}

	ctx := cuecontext.New()
	schema := ctx.CompileString(schemaCUE, cue.Filename("config.cue"))
	if err := schema.Err(); err != nil {
		return nil, fmt.Errorf("compile config schema: %w", err)
	}

	v := schema.LookupPath(cue.ParsePath("#Config")).Unify(ctx.Encode(raw))
	if err := v.Validate(cue.Concrete(true)); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	var cfg Config
	if err := v.Decode(&cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	if cfg.Backends == nil {
		cfg.Backends = []Backend{}
	}
	if _, _, err := cfg.FixedRunID(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// FixedRunID returns the configured run id. ok is false when none is set.
func (c *Config) FixedRunID() (id uuid.UUID, ok bool, err error) {
	if c.RunID == "" {
		return uuid.Nil, false, nil
	}
	id, err = uuid.Parse(c.RunID)
	if err != nil {
		return uuid.Nil, false, fmt.Errorf("invalid config: run_id: %w", err)
	}
	if id == uuid.Nil {
		return uuid.Nil, false, fmt.Errorf("invalid config: run_id must not be the nil uuid")
	}
	return id, true, nil
}

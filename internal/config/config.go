// Package config handles YAML session files.
package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"cyclegen/internal/activity"
	"cyclegen/internal/bindings"
	"cyclegen/internal/collector"
	"cyclegen/internal/funcs"
)

// DefaultContainer names the container used when a session does not set one.
const DefaultContainer = "default"

// Config is the root of a session file.
type Config struct {
	Container  string                `yaml:"container"`
	Timeout    time.Duration         `yaml:"timeout"`
	Activities []ActivityConfig      `yaml:"activities"`
	Thresholds *collector.Thresholds `yaml:"thresholds,omitempty"`
	Results    ResultsConfig         `yaml:"results,omitempty"`
}

// ActivityConfig is one activity: its flat parameters and its bindings in
// file order.
type ActivityConfig struct {
	Params   Params   `yaml:"params"`
	Bindings Bindings `yaml:"bindings,omitempty"`
}

// ResultsConfig selects where stride results are stored.
type ResultsConfig struct {
	SQLite string `yaml:"sqlite"`
}

// Params is a flat parameter map. Scalars of any YAML type are kept as
// their source text so "threads: 4" and "threads: '4'" are the same.
type Params map[string]string

// UnmarshalYAML implements yaml.Unmarshaler.
func (p *Params) UnmarshalYAML(node *yaml.Node) error {
	if node.Kind != yaml.MappingNode {
		return fmt.Errorf("line %d: params must be a mapping", node.Line)
	}
	out := make(Params, len(node.Content)/2)
	for i := 0; i+1 < len(node.Content); i += 2 {
		k, v := node.Content[i], node.Content[i+1]
		if v.Kind != yaml.ScalarNode {
			return fmt.Errorf("line %d: param %q must be a scalar", v.Line, k.Value)
		}
		out[k.Value] = v.Value
	}
	*p = out
	return nil
}

// Bindings keeps bindings in the order they appear in the file. A binding
// is either an expression or a mapping with "expr" and an optional "type".
type Bindings []bindings.Spec

// UnmarshalYAML implements yaml.Unmarshaler.
func (b *Bindings) UnmarshalYAML(node *yaml.Node) error {
	if node.Kind != yaml.MappingNode {
		return fmt.Errorf("line %d: bindings must be a mapping", node.Line)
	}
	out := make(Bindings, 0, len(node.Content)/2)
	for i := 0; i+1 < len(node.Content); i += 2 {
		k, v := node.Content[i], node.Content[i+1]
		spec := bindings.Spec{Name: k.Value}
		switch v.Kind {
		case yaml.ScalarNode:
			spec.Expr = v.Value
		case yaml.MappingNode:
			var full struct {
				Expr string `yaml:"expr"`
				Type string `yaml:"type"`
			}
			if err := v.Decode(&full); err != nil {
				return err
			}
			spec.Expr = full.Expr
			if full.Type != "" {
				t, err := funcs.TypeByName(full.Type)
				if err != nil {
					return fmt.Errorf("line %d: binding %q: %w", v.Line, k.Value, err)
				}
				spec.Type = t
			}
		default:
			return fmt.Errorf("line %d: binding %q must be an expression or a mapping", v.Line, k.Value)
		}
		out = append(out, spec)
	}
	*b = out
	return nil
}

// LoadConfig reads and parses a session file.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}
	return Parse(data)
}

// Parse parses a session document and fills defaults.
func Parse(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}
	if cfg.Container == "" {
		cfg.Container = DefaultContainer
	}
	return &cfg, nil
}

// Defs validates every activity and returns their definitions in file order.
// All problems are reported together.
func (c *Config) Defs() ([]activity.Def, error) {
	if len(c.Activities) == 0 {
		return nil, errors.New("no activities defined")
	}
	var errs []error
	if err := c.Thresholds.Validate(); err != nil {
		errs = append(errs, fmt.Errorf("thresholds: %w", err))
	}
	if c.Timeout < 0 {
		errs = append(errs, fmt.Errorf("timeout must not be negative, got %v", c.Timeout))
	}

	defs := make([]activity.Def, 0, len(c.Activities))
	seen := make(map[string]int)
	for i, ac := range c.Activities {
		def, err := activity.ParseDef(ac.Params)
		if err != nil {
			errs = append(errs, fmt.Errorf("activity %d: %w", i+1, err))
			continue
		}
		if prev, dup := seen[def.Alias]; dup {
			errs = append(errs, fmt.Errorf("activity %d: alias %q already used by activity %d", i+1, def.Alias, prev))
			continue
		}
		seen[def.Alias] = i + 1
		defs = append(defs, def.WithBindings(ac.Bindings...))
	}
	for _, alias := range c.Thresholds.ActivityAliases() {
		if _, ok := seen[alias]; !ok {
			errs = append(errs, fmt.Errorf("thresholds: no activity with alias %q", alias))
		}
	}
	if len(errs) > 0 {
		return nil, errors.Join(errs...)
	}
	return defs, nil
}

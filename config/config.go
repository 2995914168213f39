/*
 * Copyright © 2025 Suparena Software Inc., All rights reserved.
 */

package config

import (
	"fmt"
	"os"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/go-openapi/strfmt"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/suparena/genericstore/errors"
)

const (
	// ProviderKey is the discriminator naming the backend.
	ProviderKey = "provider"
	// NameKey optionally names a provider instance in logs.
	NameKey = "name"
)

// ProviderConfig is the configuration record of one provider.
type ProviderConfig map[string]any

// File is the YAML configuration layout.
type File struct {
	Providers []ProviderConfig `yaml:"providers"`
}

// Provider returns the backend discriminator, lowercased.
func (c ProviderConfig) Provider() string {
	s, _ := c[ProviderKey].(string)
	return strings.ToLower(strings.TrimSpace(s))
}

// Name returns the configured instance name, or the discriminator.
func (c ProviderConfig) Name() string {
	if s, ok := c[NameKey].(string); ok && s != "" {
		return s
	}
	return c.Provider()
}

// WithName returns a copy of c carrying name.
func (c ProviderConfig) WithName(name string) ProviderConfig {
	out := make(ProviderConfig, len(c)+1)
	for k, v := range c {
		out[k] = v
	}
	out[NameKey] = name
	return out
}

// Has reports whether key is set to a non-nil value.
func (c ProviderConfig) Has(key string) bool {
	v, ok := c[key]
	return ok && v != nil
}

// Keys returns the configured keys in sorted order.
func (c ProviderConfig) Keys() []string {
	keys := make([]string, 0, len(c))
	for k := range c {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func (c ProviderConfig) missing(key string) error {
	return errors.Configurationf("config", "%s: %q is required", c.Provider(), key)
}

func (c ProviderConfig) illTyped(key string, v any, want string) error {
	return errors.Configurationf("config", "%s: %q must be %s, got %T", c.Provider(), key, want, v)
}

// String returns a required scalar rendered as a string.
func (c ProviderConfig) String(key string) (string, error) {
	v, ok := c[key]
	if !ok || v == nil {
		return "", c.missing(key)
	}
	switch x := v.(type) {
	case string:
		return x, nil
	case int, int64, float64, bool:
		return fmt.Sprint(x), nil
	}
	return "", c.illTyped(key, v, "a string")
}

// StringDefault returns the value of key, or def when unset or ill-typed.
func (c ProviderConfig) StringDefault(key, def string) string {
	if !c.Has(key) {
		return def
	}
	s, err := c.String(key)
	if err != nil {
		return def
	}
	return s
}

// Int returns a required integer. Numeric strings are accepted.
func (c ProviderConfig) Int(key string) (int, error) {
	v, ok := c[key]
	if !ok || v == nil {
		return 0, c.missing(key)
	}
	switch x := v.(type) {
	case int:
		return x, nil
	case int64:
		return int(x), nil
	case float64:
		if x == float64(int(x)) {
			return int(x), nil
		}
	case string:
		if n, err := strconv.Atoi(strings.TrimSpace(x)); err == nil {
			return n, nil
		}
	}
	return 0, c.illTyped(key, v, "an integer")
}

// IntDefault is Int with a fallback for unset keys. Ill-typed values still fail.
func (c ProviderConfig) IntDefault(key string, def int) (int, error) {
	if !c.Has(key) {
		return def, nil
	}
	return c.Int(key)
}

// Bool returns key as a boolean, or def when unset.
func (c ProviderConfig) Bool(key string, def bool) (bool, error) {
	v, ok := c[key]
	if !ok || v == nil {
		return def, nil
	}
	switch x := v.(type) {
	case bool:
		return x, nil
	case string:
		if b, err := strconv.ParseBool(strings.TrimSpace(x)); err == nil {
			return b, nil
		}
	}
	return false, c.illTyped(key, v, "a boolean")
}

// Duration parses key with strfmt.ParseDuration, so both "500ms" and
// "2 seconds" work. Bare integers are milliseconds.
func (c ProviderConfig) Duration(key string, def time.Duration) (time.Duration, error) {
	v, ok := c[key]
	if !ok || v == nil {
		return def, nil
	}
	switch x := v.(type) {
	case int:
		return time.Duration(x) * time.Millisecond, nil
	case int64:
		return time.Duration(x) * time.Millisecond, nil
	case string:
		d, err := strfmt.ParseDuration(strings.TrimSpace(x))
		if err != nil {
			return 0, errors.Configuration("config", fmt.Errorf("%s: %q: %w", c.Provider(), key, err))
		}
		return d, nil
	}
	return 0, c.illTyped(key, v, "a duration")
}

// StringSlice accepts a YAML sequence or a comma-separated string.
func (c ProviderConfig) StringSlice(key string) ([]string, error) {
	v, ok := c[key]
	if !ok || v == nil {
		return nil, nil
	}
	switch x := v.(type) {
	case []string:
		return x, nil
	case string:
		var out []string
		for _, part := range strings.Split(x, ",") {
			if part = strings.TrimSpace(part); part != "" {
				out = append(out, part)
			}
		}
		return out, nil
	case []any:
		out := make([]string, 0, len(x))
		for _, item := range x {
			s, ok := item.(string)
			if !ok {
				return nil, c.illTyped(key, item, "a list of strings")
			}
			out = append(out, s)
		}
		return out, nil
	}
	return nil, c.illTyped(key, v, "a list of strings")
}

// Parse decodes YAML configuration and expands ${VAR} references in string
// values from the environment.
func Parse(data []byte) (*File, error) {
	var f File
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, errors.Configuration("loadConfig", err)
	}
	for i, pc := range f.Providers {
		if pc == nil {
			return nil, errors.Configurationf("loadConfig", "providers[%d] is empty", i)
		}
		for k, v := range pc {
			pc[k] = expand(v)
		}
		if pc.Provider() == "" {
			return nil, errors.Configurationf("loadConfig", "providers[%d] has no %q", i, ProviderKey)
		}
	}
	return &f, nil
}

// Load reads and parses the YAML file at path.
func Load(path string) (*File, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Configuration("loadConfig", err)
	}
	return Parse(data)
}

// LoadEnv loads .env style files into the process environment without
// overriding variables that are already set. Missing files are skipped.
func LoadEnv(files ...string) error {
	if len(files) == 0 {
		files = []string{".env"}
	}
	for _, f := range files {
		if _, err := os.Stat(f); err != nil {
			continue
		}
		if err := godotenv.Load(f); err != nil {
			return errors.Configuration("loadEnv", fmt.Errorf("%s: %w", f, err))
		}
	}
	return nil
}

func expand(v any) any {
	switch x := v.(type) {
	case string:
		return os.ExpandEnv(x)
	case []any:
		out := make([]any, len(x))
		for i, item := range x {
			out[i] = expand(item)
		}
		return out
	case map[string]any:
		out := make(map[string]any, len(x))
		for k, item := range x {
			out[k] = expand(item)
		}
		return out
	}
	return v
}

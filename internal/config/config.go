// Copyright 2026 Conductor OSS
//
// Licensed under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with
// the License. You may obtain a copy of the License at
//
// http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on
// an "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied. See the License for the
// specific language governing permissions and limitations under the License.

// Package config holds the user settings read once per process from the
// global and project config files. The rest of the program treats a loaded
// Config as read-only.
package config

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the merged configuration.
type Config struct {
	// DefaultFormat is used when no format is requested.
	DefaultFormat string `mapstructure:"default_format" yaml:"default_format"`
	// OutboundDefault replaces the inbound default for bare Markdown input.
	OutboundDefault string `mapstructure:"outbound_default" yaml:"outbound_default"`
	// OutputDir is where results are written; empty means next to the input.
	OutputDir string `mapstructure:"output_dir" yaml:"output_dir"`
	// Force allows overwriting existing outputs.
	Force bool `mapstructure:"force" yaml:"force"`

	// Pandoc lists extra renderer arguments per outbound format.
	Pandoc    map[string][]string `mapstructure:"pandoc" yaml:"pandoc,omitempty"`
	Templates map[string]Template `mapstructure:"templates" yaml:"templates,omitempty"`

	OCR    OCRConfig    `mapstructure:"ocr" yaml:"ocr"`
	Server ServerConfig `mapstructure:"server" yaml:"server"`
	Watch  WatchConfig  `mapstructure:"watch" yaml:"watch"`
}

// Template is a named outbound preset.
type Template struct {
	Format      string   `mapstructure:"format" yaml:"format"`
	PandocArgs  []string `mapstructure:"pandoc_args" yaml:"pandoc_args,omitempty"`
	Description string   `mapstructure:"description" yaml:"description,omitempty"`
}

// OCRConfig controls image text recognition.
type OCRConfig struct {
	Enabled  bool   `mapstructure:"enabled" yaml:"enabled"`
	Binary   string `mapstructure:"binary" yaml:"binary"`
	Language string `mapstructure:"language" yaml:"language"`
}

// ServerConfig configures the HTTP API.
type ServerConfig struct {
	Addr string `mapstructure:"addr" yaml:"addr"`
	// MaxUploadBytes caps multipart uploads.
	MaxUploadBytes int64 `mapstructure:"max_upload_bytes" yaml:"max_upload_bytes"`
}

// WatchConfig configures watch-folder mode.
type WatchConfig struct {
	Include     []string      `mapstructure:"include" yaml:"include"`
	Ignore      []string      `mapstructure:"ignore" yaml:"ignore"`
	Debounce    time.Duration `mapstructure:"debounce" yaml:"debounce"`
	Concurrency int           `mapstructure:"concurrency" yaml:"concurrency"`
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		DefaultFormat:   "md",
		OutboundDefault: "docx",
		Pandoc:          map[string][]string{},
		Templates:       map[string]Template{},
		OCR: OCRConfig{
			Binary:   "tesseract",
			Language: "eng",
		},
		Server: ServerConfig{
			Addr:           "127.0.0.1:8080",
			MaxUploadBytes: 100 << 20,
		},
		Watch: WatchConfig{
			Include:     []string{"**/*"},
			Ignore:      []string{"**/.*", "**/.*/**"},
			Debounce:    500 * time.Millisecond,
			Concurrency: 2,
		},
	}
}

// Validate checks format names against the given inbound and outbound sets.
func (c *Config) Validate(inbound, outbound []string) error {
	known := make(map[string]bool)
	for _, f := range inbound {
		known[f] = true
	}
	out := make(map[string]bool)
	for _, f := range outbound {
		known[f] = true
		out[f] = true
	}

	var errs []error
	if c.DefaultFormat != "" && !known[c.DefaultFormat] {
		errs = append(errs, fmt.Errorf("default_format: unknown format %q", c.DefaultFormat))
	}
	if c.OutboundDefault != "" && !out[c.OutboundDefault] {
		errs = append(errs, fmt.Errorf("outbound_default: %q is not an outbound format (%s)", c.OutboundDefault, strings.Join(outbound, ", ")))
	}
	for _, f := range sortedKeys(c.Pandoc) {
		if !out[f] {
			errs = append(errs, fmt.Errorf("pandoc.%s: not an outbound format", f))
		}
	}
	for _, name := range sortedKeys(c.Templates) {
		t := c.Templates[name]
		if !out[t.Format] {
			errs = append(errs, fmt.Errorf("templates.%s.format: %q is not an outbound format", name, t.Format))
		}
	}
	if c.Watch.Concurrency < 0 {
		errs = append(errs, errors.New("watch.concurrency: must not be negative"))
	}
	return errors.Join(errs...)
}

// TemplateNames returns the configured template names in order.
func (c *Config) TemplateNames() []string {
	return sortedKeys(c.Templates)
}

// YAML renders the configuration for display.
func (c *Config) YAML() (string, error) {
	b, err := yaml.Marshal(c)
	if err != nil {
		return "", fmt.Errorf("marshal config: %w", err)
	}
	return string(b), nil
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

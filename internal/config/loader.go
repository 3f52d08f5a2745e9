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

package config

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/charmbracelet/log"
	"github.com/spf13/viper"
)

const (
	// AppName names the global config directory.
	AppName = "docbridge"
	// GlobalConfigFile is the file name inside the global config directory.
	GlobalConfigFile = "config.yaml"
	// LocalConfigFile is looked up from the working directory upwards.
	LocalConfigFile = ".docbridge.yaml"
	// EnvPrefix prefixes environment overrides, e.g. DOCBRIDGE_OUTPUT_DIR.
	EnvPrefix = "DOCBRIDGE"
)

// LoadOptions controls where configuration is read from.
type LoadOptions struct {
	// File, when set, is the only config file read.
	File string
	// GlobalDir overrides the global config directory.
	GlobalDir string
	// WorkDir is where the local config search starts; defaults to the cwd.
	WorkDir string
	Logger  *log.Logger
}

// Loaded is a configuration plus the files it came from, lowest precedence first.
type Loaded struct {
	*Config
	Sources []string
}

// GlobalDir returns the per-user config directory.
func GlobalDir() (string, error) {
	dir, err := os.UserConfigDir()
	if err != nil {
		return "", fmt.Errorf("locate user config directory: %w", err)
	}
	return filepath.Join(dir, AppName), nil
}

// Load merges defaults, the global file, the nearest local file and
// DOCBRIDGE_* environment variables, in increasing precedence.
func Load(opts LoadOptions) (*Loaded, error) {
	logger := opts.Logger
	if logger == nil {
		logger = log.New(io.Discard)
	}

	v := viper.New()
	v.SetConfigType("yaml")
	setDefaults(v, Default())
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	var files []string
	if opts.File != "" {
		if !fileExists(opts.File) {
			return nil, fmt.Errorf("config file not found: %s", opts.File)
		}
		files = append(files, opts.File)
	} else {
		globalDir := opts.GlobalDir
		if globalDir == "" {
			if d, err := GlobalDir(); err == nil {
				globalDir = d
			} else {
				logger.Warn("no global config directory", "err", err)
			}
		}
		if globalDir != "" {
			if p := filepath.Join(globalDir, GlobalConfigFile); fileExists(p) {
				files = append(files, p)
			}
		}
		if p := findLocal(opts.WorkDir); p != "" {
			files = append(files, p)
		}
	}

	for _, f := range files {
		v.SetConfigFile(f)
		if err := v.MergeInConfig(); err != nil {
			return nil, fmt.Errorf("read config %s: %w", f, err)
		}
		logger.Debug("loaded config", "path", f)
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	if cfg.Pandoc == nil {
		cfg.Pandoc = map[string][]string{}
	}
	if cfg.Templates == nil {
		cfg.Templates = map[string]Template{}
	}
	return &Loaded{Config: cfg, Sources: files}, nil
}

func setDefaults(v *viper.Viper, d *Config) {
	v.SetDefault("default_format", d.DefaultFormat)
	v.SetDefault("outbound_default", d.OutboundDefault)
	v.SetDefault("output_dir", d.OutputDir)
	v.SetDefault("force", d.Force)
	v.SetDefault("pandoc", d.Pandoc)
	v.SetDefault("templates", d.Templates)
	v.SetDefault("ocr.enabled", d.OCR.Enabled)
	v.SetDefault("ocr.binary", d.OCR.Binary)
	v.SetDefault("ocr.language", d.OCR.Language)
	v.SetDefault("server.addr", d.Server.Addr)
	v.SetDefault("server.max_upload_bytes", d.Server.MaxUploadBytes)
	v.SetDefault("watch.include", d.Watch.Include)
	v.SetDefault("watch.ignore", d.Watch.Ignore)
	v.SetDefault("watch.debounce", d.Watch.Debounce)
	v.SetDefault("watch.concurrency", d.Watch.Concurrency)
}

// findLocal walks from dir to the filesystem root looking for LocalConfigFile.
func findLocal(dir string) string {
	if dir == "" {
		wd, err := os.Getwd()
		if err != nil {
			return ""
		}
		dir = wd
	}
	dir, err := filepath.Abs(dir)
	if err != nil {
		return ""
	}
	for {
		p := filepath.Join(dir, LocalConfigFile)
		if fileExists(p) {
			return p
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return ""
		}
		dir = parent
	}
}

func fileExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}

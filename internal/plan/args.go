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

package plan

import (
	"strings"

	"github.com/nicholasgasior/docbridge/internal/config"
	"github.com/nicholasgasior/docbridge/internal/fault"
)

// builtinPandocArgs are always passed for a format unless overridden.
var builtinPandocArgs = map[string][]string{
	"html": {"--standalone"},
}

// BuildPandocArgs composes the renderer arguments for format. Sources in
// increasing precedence: built-in defaults, the config's per-format list (or,
// when template is set, the template's list instead), then cli. When the same
// argument appears more than once the last occurrence wins. "--key=value"
// arguments are identified by "--key"; anything else by its full text.
func BuildPandocArgs(format string, cfg *config.Config, template string, cli []string) ([]string, error) {
	format = strings.ToLower(format)
	if !IsOutbound(format) {
		return nil, fault.New(fault.InvalidDirection, "%q is not an outbound format", format)
	}

	var merged []string
	merged = append(merged, builtinPandocArgs[format]...)

	if template != "" {
		t, err := lookupTemplate(cfg, template)
		if err != nil {
			return nil, err
		}
		if t.Format != "" && !strings.EqualFold(t.Format, format) {
			return nil, fault.New(fault.UnknownTemplate, "template %q renders %s, not %s", template, t.Format, format).
				WithHint("drop the explicit format or pick a template for " + format)
		}
		merged = append(merged, t.PandocArgs...)
	} else if cfg != nil {
		merged = append(merged, cfg.Pandoc[format]...)
	}
	merged = append(merged, cli...)

	return dedupArgs(merged), nil
}

// TemplateFormat returns the format a template renders, for callers that let
// a template choose the format.
func TemplateFormat(cfg *config.Config, template string) (string, error) {
	t, err := lookupTemplate(cfg, template)
	if err != nil {
		return "", err
	}
	return strings.ToLower(t.Format), nil
}

func lookupTemplate(cfg *config.Config, name string) (config.Template, error) {
	if cfg != nil {
		// Config keys are case-insensitive.
		if t, ok := cfg.Templates[strings.ToLower(name)]; ok {
			return t, nil
		}
		if t, ok := cfg.Templates[name]; ok {
			return t, nil
		}
	}
	e := fault.New(fault.UnknownTemplate, "unknown template %q", name)
	if cfg != nil && len(cfg.Templates) > 0 {
		e.WithHint("configured templates: " + strings.Join(cfg.TemplateNames(), ", "))
	} else {
		e.WithHint("no templates are configured")
	}
	return config.Template{}, e
}

// dedupArgs keeps the last occurrence of each argument identity and
// preserves the relative order of the survivors.
func dedupArgs(args []string) []string {
	seen := make(map[string]bool, len(args))
	kept := make([]string, 0, len(args))
	for i := len(args) - 1; i >= 0; i-- {
		id := argIdentity(args[i])
		if seen[id] {
			continue
		}
		seen[id] = true
		kept = append(kept, args[i])
	}
	for i, j := 0, len(kept)-1; i < j; i, j = i+1, j-1 {
		kept[i], kept[j] = kept[j], kept[i]
	}
	return kept
}

func argIdentity(arg string) string {
	if strings.HasPrefix(arg, "--") {
		if key, _, ok := strings.Cut(arg, "="); ok {
			return key
		}
	}
	return arg
}

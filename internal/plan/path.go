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
	"path/filepath"
	"strings"

	"github.com/nicholasgasior/docbridge/internal/fault"
)

// ResolveOutputPath derives the output path for source converted to format:
// the source name without its extension, plus the format's extension, inside
// outputDir (the source's directory when empty). The result keeps the
// relativity of its inputs. It fails with PathEscape if the file would land
// outside the target directory.
func ResolveOutputPath(source, format, outputDir string) (string, error) {
	ext, err := Extension(format)
	if err != nil {
		return "", err
	}
	dir := outputDir
	if dir == "" {
		dir = filepath.Dir(source)
	}
	return containedJoin(dir, stem(source)+ext)
}

// containedJoin joins name onto dir and checks that the absolute result stays
// inside the absolute dir.
func containedJoin(dir, name string) (string, error) {
	target := filepath.Join(dir, name)

	absDir, err := filepath.Abs(dir)
	if err != nil {
		return "", fault.Wrap(fault.PathEscape, err, "resolve output directory %q", dir)
	}
	absTarget, err := filepath.Abs(target)
	if err != nil {
		return "", fault.Wrap(fault.PathEscape, err, "resolve output path %q", target)
	}
	rel, err := filepath.Rel(absDir, absTarget)
	if err != nil || rel == "." || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) || filepath.IsAbs(rel) {
		return "", fault.New(fault.PathEscape, "output path %q escapes the output directory %q", absTarget, absDir).
			WithHint("rename the input file so it has no path separators or '..' segments")
	}
	return target, nil
}

// stem is the base name of path without its extension.
func stem(path string) string {
	base := filepath.Base(path)
	return strings.TrimSuffix(base, filepath.Ext(base))
}

func extOf(path string) string {
	return filepath.Ext(path)
}

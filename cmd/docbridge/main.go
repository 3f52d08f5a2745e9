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

// Command docbridge converts documents to LLM-friendly text and renders
// Markdown back into documents.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/charmbracelet/fang"

	"github.com/nicholasgasior/docbridge/internal/fault"
)

var version = "dev"

// Exit codes.
const (
	exitOK      = 0
	exitFailure = 1
	// exitUsage covers failures the caller can fix by changing the request:
	// bad flags, unknown formats, blocked URLs, existing outputs.
	exitUsage = 2
)

func main() {
	a := newApp(os.Stdin, os.Stdout, os.Stderr)
	if err := fang.Execute(
		context.Background(),
		newRootCmd(a),
		fang.WithVersion(version),
		fang.WithNotifySignal(os.Interrupt),
	); err != nil {
		os.Exit(exitCode(err))
	}
}

// exitError carries a chosen exit code for failures already reported.
type exitError struct {
	code int
	err  error
}

func (e *exitError) Error() string {
	if e.err != nil {
		return e.err.Error()
	}
	return fmt.Sprintf("exit status %d", e.code)
}

func (e *exitError) Unwrap() error {
	return e.err
}

func exitCode(err error) int {
	if err == nil {
		return exitOK
	}
	var ee *exitError
	if errors.As(err, &ee) {
		return ee.code
	}
	switch fault.Classify(fault.KindOf(err)) {
	case fault.ClassPolicy, fault.ClassPlan:
		return exitUsage
	}
	return exitFailure
}

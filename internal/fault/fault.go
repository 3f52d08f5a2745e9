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

// Package fault defines the structured failures shared by the fetch, plan and
// render layers. Every failure carries a Kind and a human-readable message;
// callers match kinds with errors.Is against the Err* sentinels.
package fault

import (
	"errors"
	"fmt"
	"net/http"
)

// Kind identifies a failure category.
type Kind string

const (
	InvalidURL        Kind = "invalid_url"
	BlockedScheme     Kind = "blocked_scheme"
	BlockedHost       Kind = "blocked_host"
	BlockedResolvedIP Kind = "blocked_resolved_ip"

	TooManyRedirects      Kind = "too_many_redirects"
	Timeout               Kind = "timeout"
	MissingLocationHeader Kind = "missing_location_header"
	ResponseTooLarge      Kind = "response_too_large"
	UpstreamStatus        Kind = "upstream_status"

	InvalidDirection Kind = "invalid_direction"
	SelfOverwrite    Kind = "self_overwrite"
	PathEscape       Kind = "path_escape"
	UnknownTemplate  Kind = "unknown_template"
	UnknownFormat    Kind = "unknown_format"
	OutputExists     Kind = "output_exists"
	InvalidRequest   Kind = "invalid_request"

	RendererNotInstalled Kind = "renderer_not_installed"
	RenderFailed         Kind = "render_failed"
	OCRUnavailable       Kind = "ocr_unavailable"

	Unsupported Kind = "unsupported_format"
	Internal    Kind = "internal"
)

// Class groups kinds by who can act on them.
type Class int

const (
	ClassInternal Class = iota
	// ClassPolicy failures are client-correctable request-safety violations.
	ClassPolicy
	// ClassLimit failures come from upstream servers exceeding a resource bound.
	ClassLimit
	// ClassPlan failures are raised before any conversion work begins.
	ClassPlan
	// ClassRender failures come from the external renderer.
	ClassRender
	ClassUnsupported
)

func (c Class) String() string {
	switch c {
	case ClassPolicy:
		return "policy"
	case ClassLimit:
		return "limit"
	case ClassPlan:
		return "plan"
	case ClassRender:
		return "render"
	case ClassUnsupported:
		return "unsupported"
	}
	return "internal"
}

// Classify returns the class a kind belongs to.
func Classify(k Kind) Class {
	switch k {
	case InvalidURL, BlockedScheme, BlockedHost, BlockedResolvedIP:
		return ClassPolicy
	case TooManyRedirects, Timeout, MissingLocationHeader, ResponseTooLarge, UpstreamStatus:
		return ClassLimit
	case InvalidDirection, SelfOverwrite, PathEscape, UnknownTemplate, UnknownFormat, OutputExists, InvalidRequest:
		return ClassPlan
	case RendererNotInstalled, RenderFailed, OCRUnavailable:
		return ClassRender
	case Unsupported:
		return ClassUnsupported
	}
	return ClassInternal
}

// Error is a structured failure.
type Error struct {
	Kind Kind
	Msg  string
	// Hint is an optional next step for the user.
	Hint string
	Err  error
}

// New returns an Error of the given kind.
func New(kind Kind, format string, args ...any) *Error {
	return &Error{Kind: kind, Msg: fmt.Sprintf(format, args...)}
}

// Wrap returns an Error of the given kind wrapping err.
func Wrap(kind Kind, err error, format string, args ...any) *Error {
	return &Error{Kind: kind, Msg: fmt.Sprintf(format, args...), Err: err}
}

// WithHint sets the hint and returns e.
func (e *Error) WithHint(hint string) *Error {
	e.Hint = hint
	return e
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Msg, e.Err)
	}
	return e.Msg
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is matches any *Error of the same kind, so sentinels work with errors.Is.
func (e *Error) Is(target error) bool {
	var t *Error
	if errors.As(target, &t) {
		return t.Kind == e.Kind && t.Msg == ""
	}
	return false
}

// Sentinels for errors.Is.
var (
	ErrInvalidURL        = &Error{Kind: InvalidURL}
	ErrBlockedScheme     = &Error{Kind: BlockedScheme}
	ErrBlockedHost       = &Error{Kind: BlockedHost}
	ErrBlockedResolvedIP = &Error{Kind: BlockedResolvedIP}

	ErrTooManyRedirects      = &Error{Kind: TooManyRedirects}
	ErrTimeout               = &Error{Kind: Timeout}
	ErrMissingLocationHeader = &Error{Kind: MissingLocationHeader}
	ErrResponseTooLarge      = &Error{Kind: ResponseTooLarge}
	ErrUpstreamStatus        = &Error{Kind: UpstreamStatus}

	ErrInvalidDirection = &Error{Kind: InvalidDirection}
	ErrSelfOverwrite    = &Error{Kind: SelfOverwrite}
	ErrPathEscape       = &Error{Kind: PathEscape}
	ErrUnknownTemplate  = &Error{Kind: UnknownTemplate}
	ErrUnknownFormat    = &Error{Kind: UnknownFormat}
	ErrOutputExists     = &Error{Kind: OutputExists}
	ErrInvalidRequest   = &Error{Kind: InvalidRequest}

	ErrRendererNotInstalled = &Error{Kind: RendererNotInstalled}
	ErrRenderFailed         = &Error{Kind: RenderFailed}
	ErrOCRUnavailable       = &Error{Kind: OCRUnavailable}
	ErrUnsupported          = &Error{Kind: Unsupported}
)

// KindOf returns the kind of the first *Error in err's chain, or Internal.
func KindOf(err error) Kind {
	var fe *Error
	if errors.As(err, &fe) {
		return fe.Kind
	}
	return Internal
}

// HintOf returns the first non-empty hint in err's chain.
func HintOf(err error) string {
	for err != nil {
		var fe *Error
		if !errors.As(err, &fe) {
			return ""
		}
		if fe.Hint != "" {
			return fe.Hint
		}
		err = fe.Err
	}
	return ""
}

// HTTPStatus maps err to the status an HTTP front end should answer with.
func HTTPStatus(err error) int {
	kind := KindOf(err)
	switch kind {
	case OutputExists:
		return http.StatusConflict
	case ResponseTooLarge:
		return http.StatusRequestEntityTooLarge
	case Timeout:
		return http.StatusGatewayTimeout
	case RendererNotInstalled, OCRUnavailable:
		return http.StatusNotImplemented
	}
	switch Classify(kind) {
	case ClassPolicy, ClassPlan:
		return http.StatusBadRequest
	case ClassLimit:
		return http.StatusBadGateway
	case ClassUnsupported:
		return http.StatusUnsupportedMediaType
	}
	return http.StatusInternalServerError
}

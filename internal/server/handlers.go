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

package server

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/nicholasgasior/docbridge"
	"github.com/nicholasgasior/docbridge/internal/fault"
	"github.com/nicholasgasior/docbridge/internal/plan"
)

const (
	multipartMemory = 32 << 20
	maxJSONBody     = 1 << 20
)

var contentTypes = map[string]string{
	"md":   "text/markdown; charset=utf-8",
	"text": "text/plain; charset=utf-8",
	"json": "application/json",
	"yaml": "application/yaml",
	"docx": "application/vnd.openxmlformats-officedocument.wordprocessingml.document",
	"pptx": "application/vnd.openxmlformats-officedocument.presentationml.presentation",
	"html": "text/html; charset=utf-8",
}

// allowedRenderArgs are the Pandoc options API clients may pass. Anything
// that reads or writes files is left out.
var allowedRenderArgs = []string{
	"--toc", "--toc-depth=", "--number-sections", "--standalone",
	"--metadata=", "--variable=", "--shift-heading-level-by=",
	"--columns=", "--wrap=", "--highlight-style=", "--slide-level=",
}

type errorDetail struct {
	Kind    string `json:"kind"`
	Message string `json:"message"`
	Hint    string `json:"hint,omitempty"`
}

type errorBody struct {
	Error errorDetail `json:"error"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := fault.HTTPStatus(err)
	if status >= http.StatusInternalServerError {
		s.logger.Error("request failed", "path", r.URL.Path, "request_id", RequestID(r.Context()), "err", err)
	}
	writeJSON(w, status, errorBody{Error: errorDetail{
		Kind:    string(fault.KindOf(err)),
		Message: err.Error(),
		Hint:    fault.HintOf(err),
	}})
}

func (s *Server) countConversion(direction plan.Direction, format string, err error) {
	outcome := "ok"
	if err != nil {
		outcome = string(fault.KindOf(err))
	}
	s.metrics.conversions.WithLabelValues(string(direction), format, outcome).Inc()
}

// inboundFormat resolves the requested extraction format.
func (s *Server) inboundFormat(requested string) (string, error) {
	format := strings.ToLower(strings.TrimSpace(requested))
	if format == "" {
		format = plan.InboundDefault
		if d := s.cfg.DefaultFormat; d != "" && !plan.IsOutbound(d) {
			format = d
		}
	}
	if _, err := plan.Extension(format); err != nil {
		return "", err
	}
	if plan.IsOutbound(format) {
		return "", fault.New(fault.InvalidDirection, "%s is rendered from Markdown, not extracted", format).
			WithHint("POST Markdown to /v1/render instead")
	}
	return format, nil
}

func extractOptions(q url.Values) docbridge.ExtractOptions {
	ocr, _ := strconv.ParseBool(q.Get("ocr"))
	force, _ := strconv.ParseBool(q.Get("force_ocr"))
	return docbridge.ExtractOptions{OCR: ocr, ForceOCR: force}
}

func (s *Server) handleConvert(w http.ResponseWriter, r *http.Request) {
	limit := s.cfg.Server.MaxUploadBytes
	if limit > 0 {
		if r.ContentLength > limit {
			s.writeError(w, r, fault.New(fault.ResponseTooLarge, "upload of %d bytes exceeds the %d byte limit", r.ContentLength, limit))
			return
		}
		r.Body = http.MaxBytesReader(w, r.Body, limit)
	}

	format, err := s.inboundFormat(r.URL.Query().Get("format"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	if err := r.ParseMultipartForm(multipartMemory); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			s.writeError(w, r, fault.New(fault.ResponseTooLarge, "upload exceeds the %d byte limit", tooLarge.Limit))
			return
		}
		s.writeError(w, r, fault.Wrap(fault.InvalidRequest, err, "expected a multipart form"))
		return
	}
	defer r.MultipartForm.RemoveAll()

	file, header, err := r.FormFile("file")
	if err != nil {
		s.writeError(w, r, fault.New(fault.InvalidRequest, "missing form field %q", "file"))
		return
	}
	defer file.Close()
	data, err := io.ReadAll(file)
	if err != nil {
		s.writeError(w, r, fault.Wrap(fault.Internal, err, "read upload"))
		return
	}

	name := filepath.Base(header.Filename)
	info := docbridge.StreamInfo{
		Filename:  name,
		Extension: strings.ToLower(filepath.Ext(name)),
	}
	ex, err := s.engine.ExtractReader(r.Context(), bytes.NewReader(data), info, extractOptions(r.URL.Query()))
	s.countConversion(plan.Inbound, format, err)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeExtraction(w, r, ex, format)
}

type convertURLRequest struct {
	URL      string `json:"url"`
	Format   string `json:"format"`
	OCR      bool   `json:"ocr"`
	ForceOCR bool   `json:"force_ocr"`
}

func (s *Server) handleConvertURL(w http.ResponseWriter, r *http.Request) {
	var req convertURLRequest
	if err := decodeJSON(w, r, &req, maxJSONBody); err != nil {
		s.writeError(w, r, err)
		return
	}
	if req.URL == "" {
		s.writeError(w, r, fault.New(fault.InvalidRequest, "missing field %q", "url"))
		return
	}
	format, err := s.inboundFormat(req.Format)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	ex, err := s.engine.ExtractURL(r.Context(), req.URL, docbridge.ExtractOptions{OCR: req.OCR, ForceOCR: req.ForceOCR})
	s.countConversion(plan.Inbound, format, err)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeExtraction(w, r, ex, format)
}

func (s *Server) writeExtraction(w http.ResponseWriter, r *http.Request, ex *docbridge.Extraction, format string) {
	data, err := docbridge.FormatExtraction(ex, format)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	w.Header().Set("Content-Type", contentTypes[format])
	w.WriteHeader(http.StatusOK)
	w.Write(data)
}

type renderRequest struct {
	Markdown   string   `json:"markdown"`
	Format     string   `json:"format"`
	Template   string   `json:"template"`
	PandocArgs []string `json:"pandoc_args"`
}

func (s *Server) handleRender(w http.ResponseWriter, r *http.Request) {
	if s.renderer == nil {
		s.writeError(w, r, fault.New(fault.RendererNotInstalled, "rendering is disabled on this server"))
		return
	}
	limit := int64(maxJSONBody)
	if s.cfg.Server.MaxUploadBytes > limit {
		limit = s.cfg.Server.MaxUploadBytes
	}
	var req renderRequest
	if err := decodeJSON(w, r, &req, limit); err != nil {
		s.writeError(w, r, err)
		return
	}
	format, err := s.outboundFormat(req)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if err := checkRenderArgs(req.PandocArgs); err != nil {
		s.writeError(w, r, err)
		return
	}
	args, err := plan.BuildPandocArgs(format, s.cfg, req.Template, req.PandocArgs)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	dir, err := os.MkdirTemp("", "docbridge-render-*")
	if err != nil {
		s.writeError(w, r, fault.Wrap(fault.Internal, err, "create work directory"))
		return
	}
	defer os.RemoveAll(dir)

	ext, _ := plan.Extension(format)
	input := filepath.Join(dir, "document.md")
	output := filepath.Join(dir, "document"+ext)
	if err := os.WriteFile(input, []byte(req.Markdown), 0o600); err != nil {
		s.writeError(w, r, fault.Wrap(fault.Internal, err, "write input"))
		return
	}

	err = s.renderer.Render(r.Context(), input, output, format, args)
	s.countConversion(plan.Outbound, format, err)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	data, err := os.ReadFile(output)
	if err != nil {
		s.writeError(w, r, fault.Wrap(fault.RenderFailed, err, "renderer produced no output"))
		return
	}

	w.Header().Set("Content-Type", contentTypes[format])
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", "document"+ext))
	w.WriteHeader(http.StatusOK)
	w.Write(data)
}

// outboundFormat picks the render format: the request's, else the template's,
// else the configured outbound default.
func (s *Server) outboundFormat(req renderRequest) (string, error) {
	format := strings.ToLower(strings.TrimSpace(req.Format))
	if format == "" && req.Template != "" {
		f, err := plan.TemplateFormat(s.cfg, req.Template)
		if err != nil {
			return "", err
		}
		format = f
	}
	if format == "" {
		format = plan.OutboundFallback
		if s.cfg.OutboundDefault != "" {
			format = strings.ToLower(s.cfg.OutboundDefault)
		}
	}
	if _, err := plan.Extension(format); err != nil {
		return "", err
	}
	if !plan.IsOutbound(format) {
		return "", fault.New(fault.InvalidDirection, "%s is extracted from documents, not rendered", format).
			WithHint("render formats: " + strings.Join(plan.FormatNames(plan.Outbound), ", "))
	}
	return format, nil
}

func checkRenderArgs(args []string) error {
	for _, arg := range args {
		ok := false
		for _, allowed := range allowedRenderArgs {
			if arg == allowed || (strings.HasSuffix(allowed, "=") && strings.HasPrefix(arg, allowed)) {
				ok = true
				break
			}
		}
		if !ok {
			return fault.New(fault.InvalidRequest, "pandoc argument %q is not allowed", arg).
				WithHint("allowed: " + strings.Join(allowedRenderArgs, " "))
		}
	}
	return nil
}

func decodeJSON(w http.ResponseWriter, r *http.Request, v any, limit int64) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, limit))
	if err := dec.Decode(v); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return fault.New(fault.ResponseTooLarge, "request body exceeds %d bytes", tooLarge.Limit)
		}
		return fault.Wrap(fault.InvalidRequest, err, "invalid JSON body")
	}
	return nil
}

type formatInfo struct {
	Name        string `json:"name"`
	Extension   string `json:"extension"`
	Direction   string `json:"direction"`
	Description string `json:"description"`
}

type templateInfo struct {
	Name        string `json:"name"`
	Format      string `json:"format"`
	Description string `json:"description,omitempty"`
}

type formatsResponse struct {
	Formats   []formatInfo   `json:"formats"`
	Inputs    []string       `json:"inputs"`
	Templates []templateInfo `json:"templates"`
}

func (s *Server) handleFormats(w http.ResponseWriter, r *http.Request) {
	resp := formatsResponse{
		Inputs:    docbridge.SupportedExtensions(),
		Templates: []templateInfo{},
	}
	for _, f := range plan.Formats() {
		resp.Formats = append(resp.Formats, formatInfo{
			Name:        f.Name,
			Extension:   f.Extension,
			Direction:   string(f.Direction),
			Description: f.Description,
		})
	}
	for _, name := range s.cfg.TemplateNames() {
		t := s.cfg.Templates[name]
		resp.Templates = append(resp.Templates, templateInfo{Name: name, Format: t.Format, Description: t.Description})
	}
	writeJSON(w, http.StatusOK, resp)
}

type availability interface {
	Available() error
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	renderer := "disabled"
	if s.renderer != nil {
		renderer = "available"
		if a, ok := s.renderer.(availability); ok && a.Available() != nil {
			renderer = "unavailable"
		}
	}
	writeJSON(w, http.StatusOK, map[string]string{
		"status":   "ok",
		"renderer": renderer,
	})
}

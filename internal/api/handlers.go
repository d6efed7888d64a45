package api

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"go.uber.org/zap"

	"videograb/internal/acquisition"
	"videograb/internal/delivery"
)

var (
	ErrInvalidJSON    = errors.New("request body must be a JSON object")
	ErrInvalidCookies = errors.New("invalid cookies")
	ErrNoCookiesPath  = errors.New("cookies path is not configured")
)

const (
	maxRequestBody = 64 * 1024
	maxCookiesBody = 1024 * 1024
)

type analyzeRequest struct {
	URL string `json:"url"`
}

type downloadRequest struct {
	URL  string   `json:"url"`
	Itag formatID `json:"itag"`
}

// formatID accepts both "18" and 18
type formatID string

func (f *formatID) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		*f = ""
		return nil
	}

	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		*f = formatID(s)
		return nil
	}

	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return fmt.Errorf("itag must be a string or number: %w", err)
	}
	*f = formatID(n.String())
	return nil
}

type errorResponse struct {
	Error  string `json:"error"`
	Detail string `json:"detail,omitempty"`
}

// handleAnalyze handles POST /analyze
func (s *Server) handleAnalyze(w http.ResponseWriter, r *http.Request) {
	var req analyzeRequest
	if err := decodeJSON(r, &req); err != nil {
		s.writeError(w, r, &acquisition.Error{Kind: acquisition.KindInvalidRequest, Op: "analyze", Err: err})
		return
	}

	result, err := s.orch.Analyze(r.Context(), req.URL)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, result)
}

// handleDownload handles POST /download. Once the status line is written the
// response can only end early on failure.
func (s *Server) handleDownload(w http.ResponseWriter, r *http.Request) {
	var req downloadRequest
	if err := decodeJSON(r, &req); err != nil {
		s.writeError(w, r, &acquisition.Error{Kind: acquisition.KindInvalidRequest, Op: "download", Err: err})
		return
	}

	entry, err := s.orch.Fetch(r.Context(), req.URL, string(req.Itag))
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	tr, err := delivery.Open(s.orch.Area(), *entry, s.log)
	if err != nil {
		s.writeError(w, r, &acquisition.Error{Kind: acquisition.KindInternal, Op: "download", Err: err})
		return
	}
	defer tr.Close()

	tr.WriteHeaders(w)
	w.WriteHeader(http.StatusOK)

	sent, err := tr.Send(r.Context(), w)
	if err != nil {
		s.log.Warn("transfer ended early",
			zap.String("file", entry.DisplayName),
			zap.Int64("sent", sent),
			zap.Int64("size", tr.Size()),
			zap.Error(err))
	}
}

// handleHealth handles health check endpoint
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"status": "ok",
	})
}

// handleStatus handles status endpoint
func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	s.mu.RLock()
	running := s.running
	s.mu.RUnlock()

	area := s.orch.Area()

	response := map[string]interface{}{
		"running":      running,
		"jobs":         s.orch.Stats(),
		"holdingSize":  area.GetSize(),
		"holdingCount": len(area.ListEntries()),
		"version":      s.version,
	}

	writeJSON(w, http.StatusOK, response)
}

// handleCookies handles POST /api/cookies. The body is a Netscape cookie file
// handed to the extraction tool on later requests.
func (s *Server) handleCookies(w http.ResponseWriter, r *http.Request) {
	path := s.config.YtdlCookiesPath
	if path == "" {
		writeJSON(w, http.StatusConflict, errorResponse{Error: ErrNoCookiesPath.Error()})
		return
	}

	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxCookiesBody))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "failed to read body"})
		return
	}

	cookies := string(body)
	if !validateCookies(cookies) {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: ErrInvalidCookies.Error()})
		return
	}

	if err := saveCookies(path, cookies); err != nil {
		s.log.Error("failed to save cookies", zap.String("path", path), zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, errorResponse{Error: "failed to save cookies"})
		return
	}

	s.log.Info("cookies updated", zap.String("path", path))

	writeJSON(w, http.StatusOK, map[string]string{
		"status":  "success",
		"message": "Cookies received",
	})
}

// writeError maps err to its status and a generic message. Raw diagnostics are
// only included when exposing them is enabled.
func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	kind := acquisition.KindOf(err)

	if kind == acquisition.KindCanceled {
		s.log.Info("client disconnected", zap.String("path", r.URL.Path))
		return
	}

	resp := errorResponse{Error: kind.Message()}
	var aerr *acquisition.Error
	if kind == acquisition.KindInvalidRequest && errors.As(err, &aerr) && aerr.Err != nil {
		resp.Error = aerr.Err.Error()
	}
	if s.config.ExposeDiagnostics {
		resp.Detail = err.Error()
	}

	if kind.Status() >= http.StatusInternalServerError {
		s.log.Error("request failed", zap.String("path", r.URL.Path), zap.Stringer("kind", kind), zap.Error(err))
	}

	writeJSON(w, kind.Status(), resp)
}

func decodeJSON(r *http.Request, v interface{}) error {
	dec := json.NewDecoder(io.LimitReader(r.Body, maxRequestBody))
	if err := dec.Decode(v); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidJSON, err)
	}
	return nil
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// validateCookies checks for a Netscape cookie file with at least one entry
func validateCookies(cookies string) bool {
	if strings.TrimSpace(cookies) == "" {
		return false
	}

	for _, line := range strings.Split(cookies, "\n") {
		line = strings.TrimRight(line, "\r")
		if line == "" || (strings.HasPrefix(line, "#") && !strings.HasPrefix(line, "#HttpOnly_")) {
			continue
		}
		if len(strings.Split(line, "\t")) == 7 {
			return true
		}
	}

	return false
}

// saveCookies saves cookies to file
func saveCookies(path string, cookies string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create cookies directory: %w", err)
	}

	// Write cookies to file
	if err := os.WriteFile(path, []byte(cookies), 0600); err != nil {
		return fmt.Errorf("failed to write cookies file: %w", err)
	}

	return nil
}

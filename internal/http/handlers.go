package http

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/roelfdiedericks/chatsweep/internal/browser"
	"github.com/roelfdiedericks/chatsweep/internal/classify"
	"github.com/roelfdiedericks/chatsweep/internal/cron"
	"github.com/roelfdiedericks/chatsweep/internal/llm"
	. "github.com/roelfdiedericks/chatsweep/internal/logging"
	"github.com/roelfdiedericks/chatsweep/internal/sweeper"
)

// Sweeper runs the flows behind the API. *sweeper.Service satisfies it.
type Sweeper interface {
	Scan(ctx context.Context) (*sweeper.ScanReport, error)
	Delete(ctx context.Context, identities []string) (*sweeper.DeleteReport, error)
	Summarize(ctx context.Context, contact string) (*sweeper.ChatSummary, error)
	CheckLogin(ctx context.Context) (sweeper.LoginStatus, error)
	Disconnect()
	Status() sweeper.Status
}

// maxBodyBytes bounds request bodies; a delete batch is a list of names.
const maxBodyBytes = 1 << 20

var errBadRequest = errors.New("bad request")

// handleIndex serves the dashboard page
func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	if err := s.reloadTemplatesIfDev(); err != nil {
		L_error("http: template reload error", "error", err)
		http.Error(w, "Template error", http.StatusInternalServerError)
		return
	}

	data := struct {
		Title     string
		Status    sweeper.Status
		Timestamp time.Time
	}{
		Title:     "chatsweep",
		Status:    s.sweeper.Status(),
		Timestamp: time.Now(),
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := s.templates.ExecuteTemplate(w, "index.html", data); err != nil {
		L_error("http: template error", "error", err)
		http.Error(w, "Template error", http.StatusInternalServerError)
	}
}

// handleReadMessages handles GET /api/readmsg - scan and classify the chat list
func (s *Server) handleReadMessages(w http.ResponseWriter, r *http.Request) {
	report, err := s.sweeper.Scan(r.Context())
	if err != nil {
		writeError(w, "readmsg", err)
		return
	}
	writeJSON(w, http.StatusOK, report)
}

// handleDeleteMessages handles POST /api/deletemsg - delete a batch of chats
func (s *Server) handleDeleteMessages(w http.ResponseWriter, r *http.Request) {
	names, err := parseNames(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		writeError(w, "deletemsg", err)
		return
	}

	report, err := s.sweeper.Delete(r.Context(), names)
	if err != nil {
		writeError(w, "deletemsg", err)
		return
	}
	writeJSON(w, http.StatusOK, report)
}

// handleReadChat handles GET /api/readchat?person=NAME - summarise one chat
func (s *Server) handleReadChat(w http.ResponseWriter, r *http.Request) {
	summary, err := s.sweeper.Summarize(r.Context(), r.URL.Query().Get("person"))
	if err != nil {
		writeError(w, "readchat", err)
		return
	}
	writeJSON(w, http.StatusOK, summary)
}

// handleCheckLogin handles POST /api/chrome/check-login
func (s *Server) handleCheckLogin(w http.ResponseWriter, r *http.Request) {
	status, err := s.sweeper.CheckLogin(r.Context())
	if err != nil {
		writeError(w, "check-login", err)
		return
	}
	resp := map[string]any{"success": true, "isLoggedIn": status.LoggedIn}
	if status.QRCode != "" {
		resp["qrCode"] = status.QRCode
	}
	writeJSON(w, http.StatusOK, resp)
}

// handleDisconnect handles POST /api/chrome/disconnect
func (s *Server) handleDisconnect(w http.ResponseWriter, r *http.Request) {
	s.sweeper.Disconnect()
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "message": "Disconnected from browser"})
}

// handleStatus handles GET /api/status - never connects
func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.sweeper.Status())
}

// ScheduleSource reports the periodic scan state.
type ScheduleSource interface {
	Status() cron.Status
}

func (s *Server) handleSchedule(w http.ResponseWriter, r *http.Request) {
	if s.schedule == nil {
		writeJSON(w, http.StatusOK, cron.Status{})
		return
	}
	writeJSON(w, http.StatusOK, s.schedule.Status())
}

func (s *Server) handleMetrics(w http.ResponseWriter, r *http.Request) {
	if s.metrics == nil {
		http.NotFound(w, r)
		return
	}
	writeJSON(w, http.StatusOK, s.metrics.Snapshot())
}

// parseNames accepts {"name": "..."}, {"names": [...]} or a bare array.
// Blank names are dropped; an empty result is a bad request.
func parseNames(body io.Reader) ([]string, error) {
	raw, err := io.ReadAll(body)
	if err != nil {
		return nil, errors.Join(errBadRequest, err)
	}
	raw = bytes.TrimSpace(raw)

	var candidates []string
	if len(raw) > 0 && raw[0] == '[' {
		if err := json.Unmarshal(raw, &candidates); err != nil {
			return nil, errors.Join(errBadRequest, errors.New("invalid JSON array of names"))
		}
	} else {
		var req struct {
			Name  string   `json:"name"`
			Names []string `json:"names"`
		}
		if err := json.Unmarshal(raw, &req); err != nil {
			return nil, errors.Join(errBadRequest, errors.New("invalid JSON"))
		}
		candidates = req.Names
		if req.Name != "" {
			candidates = append([]string{req.Name}, candidates...)
		}
	}

	names := make([]string, 0, len(candidates))
	for _, n := range candidates {
		if n = strings.TrimSpace(n); n != "" {
			names = append(names, n)
		}
	}
	if len(names) == 0 {
		return nil, errors.Join(errBadRequest, sweeper.ErrNoIdentities)
	}
	return names, nil
}

// statusFor maps flow errors to HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, errBadRequest),
		errors.Is(err, sweeper.ErrNoIdentities),
		errors.Is(err, sweeper.ErrMissingContact):
		return http.StatusBadRequest
	case errors.Is(err, sweeper.ErrAppNotReady):
		return http.StatusConflict
	case errors.Is(err, browser.ErrConnectionExhausted),
		errors.Is(err, classify.ErrClassificationFailed):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func writeError(w http.ResponseWriter, endpoint string, err error) {
	code := statusFor(err)
	if code >= 500 {
		L_error("http: request failed", "endpoint", endpoint, "status", code, "error", err)
	} else {
		L_warn("http: request rejected", "endpoint", endpoint, "status", code, "error", err)
	}
	msg := err.Error()
	var cfErr *classify.ClassificationFailedError
	switch {
	case errors.Is(err, errBadRequest):
		msg = strings.TrimPrefix(msg, errBadRequest.Error()+"\n")
	case errors.As(err, &cfErr):
		msg = llm.FormatErrorForUser(cfErr.Err)
	}
	writeJSON(w, code, map[string]any{"success": false, "error": msg})
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		L_debug("http: failed to write response", "error", err)
	}
}

package http

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roelfdiedericks/chatsweep/internal/actions"
	"github.com/roelfdiedericks/chatsweep/internal/browser"
	"github.com/roelfdiedericks/chatsweep/internal/bus"
	"github.com/roelfdiedericks/chatsweep/internal/cdp"
	"github.com/roelfdiedericks/chatsweep/internal/classify"
	"github.com/roelfdiedericks/chatsweep/internal/cron"
	"github.com/roelfdiedericks/chatsweep/internal/metrics"
	"github.com/roelfdiedericks/chatsweep/internal/scraper"
	"github.com/roelfdiedericks/chatsweep/internal/sweeper"
)

type fakeSweeper struct {
	scanErr     error
	deleteErr   error
	summaryErr  error
	loginErr    error
	loggedIn    bool
	qrCode      string
	deleted     [][]string
	contacts    []string
	disconnects int
}

func (f *fakeSweeper) Scan(ctx context.Context) (*sweeper.ScanReport, error) {
	if f.scanErr != nil {
		return nil, f.scanErr
	}
	return &sweeper.ScanReport{
		RunID:   "run-1",
		Entries: []scraper.ListEntry{{Identity: "Alice", Preview: "hi", Timestamp: "10:00"}},
		Classifications: []classify.Result{
			{Identity: "Alice", Category: "genuine", Preview: "hi", Timestamp: "10:00"},
		},
		Counts: map[string]int{"genuine": 1},
	}, nil
}

func (f *fakeSweeper) Delete(ctx context.Context, names []string) (*sweeper.DeleteReport, error) {
	if f.deleteErr != nil {
		return nil, f.deleteErr
	}
	f.deleted = append(f.deleted, names)
	report := &sweeper.DeleteReport{RunID: "run-2", Message: sweeper.DeleteCompletedMessage}
	for _, n := range names {
		report.Results = append(report.Results, actions.Outcome{Identity: n, Status: actions.StatusSuccess, Message: actions.MsgDeleted})
		report.Succeeded++
	}
	return report, nil
}

func (f *fakeSweeper) Summarize(ctx context.Context, contact string) (*sweeper.ChatSummary, error) {
	if strings.TrimSpace(contact) == "" {
		return nil, sweeper.ErrMissingContact
	}
	if f.summaryErr != nil {
		return nil, f.summaryErr
	}
	f.contacts = append(f.contacts, contact)
	return &sweeper.ChatSummary{Contact: contact, MessageCount: 1, Messages: []string{"yo"}, Summary: "short"}, nil
}

func (f *fakeSweeper) CheckLogin(ctx context.Context) (sweeper.LoginStatus, error) {
	return sweeper.LoginStatus{LoggedIn: f.loggedIn, QRCode: f.qrCode}, f.loginErr
}

func (f *fakeSweeper) Disconnect() { f.disconnects++ }

func (f *fakeSweeper) Status() sweeper.Status {
	return sweeper.Status{Connected: true, SurfaceURL: "https://web.whatsapp.com/"}
}

func newTestServer(t *testing.T, sw Sweeper, b *bus.Bus) *Server {
	t.Helper()
	s, err := NewServer(&ServerConfig{}, sw, b)
	require.NoError(t, err)
	return s
}

func do(t *testing.T, h http.Handler, method, target, body string) (*httptest.ResponseRecorder, map[string]any) {
	t.Helper()
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	var out map[string]any
	if strings.HasPrefix(rec.Header().Get("Content-Type"), "application/json") {
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	}
	return rec, out
}

func TestReadMessages(t *testing.T) {
	h := newTestServer(t, &fakeSweeper{}, nil).Handler()

	rec, out := do(t, h, http.MethodGet, "/api/readmsg", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "run-1", out["runId"])
	assert.Len(t, out["originalData"], 1)
	cls := out["classifications"].([]any)
	require.Len(t, cls, 1)
	assert.Equal(t, map[string]any{"name": "Alice", "category": "genuine", "message": "hi", "time": "10:00"}, cls[0])
}

func TestErrorStatusMapping(t *testing.T) {
	tests := []struct {
		name    string
		err     error
		want    int
		message string // empty = err.Error()
	}{
		{"exhausted", &browser.ConnectionExhaustedError{Attempts: 5, Last: errors.New("refused")}, http.StatusBadGateway, ""},
		{"classification", &classify.ClassificationFailedError{Err: errors.New("500 from provider")}, http.StatusBadGateway, "Language model error: 500 from provider"},
		{"classification rate limited", fmt.Errorf("scan: %w", &classify.ClassificationFailedError{Err: errors.New("status code: 429")}), http.StatusBadGateway, "The language model is rate limiting requests. Wait a moment and try again."},
		{"not logged in", fmt.Errorf("%w: %w", sweeper.ErrAppNotReady, cdp.ErrTimeout), http.StatusConflict, ""},
		{"session not ready", browser.ErrSessionNotReady, http.StatusInternalServerError, ""},
		{"other", errors.New("boom"), http.StatusInternalServerError, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newTestServer(t, &fakeSweeper{scanErr: tt.err}, nil).Handler()
			rec, out := do(t, h, http.MethodGet, "/api/readmsg", "")
			assert.Equal(t, tt.want, rec.Code)
			assert.Equal(t, false, out["success"])
			want := tt.message
			if want == "" {
				want = tt.err.Error()
			}
			assert.Equal(t, want, out["error"])
		})
	}
}

func TestDeleteMessagesBodies(t *testing.T) {
	tests := []struct {
		name string
		body string
		want []string
		code int
	}{
		{"single name", `{"name":"Alice"}`, []string{"Alice"}, http.StatusOK},
		{"names", `{"names":["Alice","Bob"]}`, []string{"Alice", "Bob"}, http.StatusOK},
		{"bare array", `["Alice"," Bob ",""]`, []string{"Alice", "Bob"}, http.StatusOK},
		{"both fields", `{"name":"A","names":["B"]}`, []string{"A", "B"}, http.StatusOK},
		{"empty array", `[]`, nil, http.StatusBadRequest},
		{"empty object", `{}`, nil, http.StatusBadRequest},
		{"blank names", `{"names":["  "]}`, nil, http.StatusBadRequest},
		{"invalid json", `{"names":`, nil, http.StatusBadRequest},
		{"empty body", ``, nil, http.StatusBadRequest},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sw := &fakeSweeper{}
			h := newTestServer(t, sw, nil).Handler()

			rec, out := do(t, h, http.MethodPost, "/api/deletemsg", tt.body)
			require.Equal(t, tt.code, rec.Code, rec.Body.String())
			if tt.code != http.StatusOK {
				assert.Empty(t, sw.deleted)
				assert.NotContains(t, out["error"], "bad request")
				return
			}
			require.Len(t, sw.deleted, 1)
			assert.Equal(t, tt.want, sw.deleted[0])
			assert.Equal(t, sweeper.DeleteCompletedMessage, out["message"])
			assert.Len(t, out["results"], len(tt.want))
		})
	}
}

func TestDeleteMessagesMethod(t *testing.T) {
	h := newTestServer(t, &fakeSweeper{}, nil).Handler()
	rec, _ := do(t, h, http.MethodGet, "/api/deletemsg", "")
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}

func TestReadChat(t *testing.T) {
	sw := &fakeSweeper{}
	h := newTestServer(t, sw, nil).Handler()

	rec, out := do(t, h, http.MethodGet, "/api/readchat?person=Bob%20Smith", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "Bob Smith", out["contact"])
	assert.Equal(t, "short", out["summary"])
	assert.Equal(t, []string{"Bob Smith"}, sw.contacts)

	rec, _ = do(t, h, http.MethodGet, "/api/readchat", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestChromeEndpoints(t *testing.T) {
	sw := &fakeSweeper{loggedIn: true}
	h := newTestServer(t, sw, nil).Handler()

	rec, out := do(t, h, http.MethodPost, "/api/chrome/check-login", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, map[string]any{"success": true, "isLoggedIn": true}, out)

	rec, out = do(t, h, http.MethodPost, "/api/chrome/disconnect", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, true, out["success"])
	assert.Equal(t, 1, sw.disconnects)

	rec, out = do(t, h, http.MethodGet, "/api/status", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, true, out["connected"])
}

func TestCheckLoginLoggedOut(t *testing.T) {
	h := newTestServer(t, &fakeSweeper{qrCode: "2@xyz"}, nil).Handler()
	rec, out := do(t, h, http.MethodPost, "/api/chrome/check-login", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, map[string]any{"success": true, "isLoggedIn": false, "qrCode": "2@xyz"}, out)
}

func TestMetrics(t *testing.T) {
	s := newTestServer(t, &fakeSweeper{}, nil)
	rec, _ := do(t, s.Handler(), http.MethodGet, "/api/metrics", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)

	m := metrics.New()
	m.RecordSuccess(metrics.PathScanResult, "")
	s.SetMetrics(m)

	rec, out := do(t, s.Handler(), http.MethodGet, "/api/metrics", "")
	require.Equal(t, http.StatusOK, rec.Code)
	scan, ok := out[metrics.PathScanResult].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "success_fail", scan["type"])
	assert.Equal(t, float64(1), scan["data"].(map[string]any)["success"])
}

type fakeSchedule struct{ st cron.Status }

func (f fakeSchedule) Status() cron.Status { return f.st }

func TestSchedule(t *testing.T) {
	s := newTestServer(t, &fakeSweeper{}, nil)
	_, out := do(t, s.Handler(), http.MethodGet, "/api/schedule", "")
	assert.Equal(t, false, out["enabled"])

	s.SetScheduler(fakeSchedule{cron.Status{Enabled: true, Expr: "@every 6h", Runs: 2}})
	rec, out := do(t, s.Handler(), http.MethodGet, "/api/schedule", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, true, out["enabled"])
	assert.Equal(t, "@every 6h", out["expr"])
	assert.Equal(t, float64(2), out["runs"])
	assert.NotContains(t, out, "nextRun")
}

func TestIndex(t *testing.T) {
	h := newTestServer(t, &fakeSweeper{}, nil).Handler()
	rec, _ := do(t, h, http.MethodGet, "/", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "<title>chatsweep</title>")
	assert.Contains(t, rec.Body.String(), "connected (https://web.whatsapp.com/)")

	rec, _ = do(t, h, http.MethodGet, "/nope", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestEventStream(t *testing.T) {
	b := bus.New()
	s := newTestServer(t, &fakeSweeper{}, b)
	ts := httptest.NewServer(s.Handler())
	defer ts.Close()

	conn, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(ts.URL, "http")+"/api/events", nil)
	require.NoError(t, err)
	defer conn.Close()

	require.Eventually(t, func() bool { return s.events.ClientCount() == 1 }, 2*time.Second, 10*time.Millisecond)

	b.Publish(bus.TopicScanProgress, "run-9", scraper.Progress{Pass: 2, Total: 7})

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	var got struct {
		Topic string           `json:"topic"`
		RunID string           `json:"runId"`
		Data  scraper.Progress `json:"data"`
	}
	require.NoError(t, conn.ReadJSON(&got))
	assert.Equal(t, bus.TopicScanProgress, got.Topic)
	assert.Equal(t, "run-9", got.RunID)
	assert.Equal(t, 7, got.Data.Total)

	s.events.Close()
	assert.False(t, b.Unsubscribe(s.events.subID), "hub already unsubscribed")
	_, _, err = conn.ReadMessage()
	assert.Error(t, err, "stream ends when the hub closes")
}

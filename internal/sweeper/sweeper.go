// Package sweeper runs the user-facing flows (scan, delete, summarise,
// login check) against the single browser tab, one flow at a time.
package sweeper

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/roelfdiedericks/chatsweep/internal/actions"
	"github.com/roelfdiedericks/chatsweep/internal/browser"
	"github.com/roelfdiedericks/chatsweep/internal/bus"
	"github.com/roelfdiedericks/chatsweep/internal/cdp"
	"github.com/roelfdiedericks/chatsweep/internal/classify"
	. "github.com/roelfdiedericks/chatsweep/internal/logging"
	"github.com/roelfdiedericks/chatsweep/internal/scraper"
	"github.com/roelfdiedericks/chatsweep/internal/tokens"
)

var (
	// ErrNoIdentities is returned when a delete request names no chats.
	ErrNoIdentities = errors.New("no chat names given")

	// ErrMissingContact is returned when a summary request names no contact.
	ErrMissingContact = errors.New("contact name is required")

	// ErrAppNotReady means the chat list never appeared, usually because
	// the app is showing its login screen.
	ErrAppNotReady = errors.New("chat list did not load")
)

// Sessions provides the browser session. *browser.Manager satisfies it.
type Sessions interface {
	EnsureSession(ctx context.Context) (cdp.Connection, cdp.Surface, error)
	GetActive() (cdp.Connection, cdp.Surface)
	Teardown()
	Invalidate(reason error)
	AppURL() string
	AppOrigin() string
}

// Deps are the collaborators of a Service.
type Deps struct {
	Sessions   Sessions
	Scraper    *scraper.Scraper
	Classifier *classify.Classifier
	Deleter    *actions.DeleteExecutor
	Generator  classify.Generator // used for summaries
	Bus        *bus.Bus           // optional
}

// Service runs flows. Every flow that drives the tab holds mu, so flows
// never overlap on the tab.
type Service struct {
	mu     sync.Mutex
	config Config
	deps   Deps
}

// New creates a service.
func New(cfg Config, deps Deps) *Service {
	return &Service{config: cfg, deps: deps}
}

// ScanReport is the result of Scan.
type ScanReport struct {
	RunID           string              `json:"runId"`
	Entries         []scraper.ListEntry `json:"originalData"`
	Classifications []classify.Result   `json:"classifications"`
	Counts          map[string]int      `json:"counts"`
}

// DeleteReport is the result of Delete.
type DeleteReport struct {
	RunID     string            `json:"runId"`
	Message   string            `json:"message"`
	Results   []actions.Outcome `json:"results"`
	Succeeded int               `json:"succeeded"`
	Failed    int               `json:"failed"`
}

// ChatSummary is the result of Summarize.
type ChatSummary struct {
	Contact      string   `json:"contact"`
	MessageCount int      `json:"messageCount"`
	Messages     []string `json:"messages"`
	Summary      string   `json:"summary"`
}

// LoginStatus is the result of CheckLogin.
type LoginStatus struct {
	LoggedIn bool   `json:"isLoggedIn"`
	QRCode   string `json:"qrCode,omitempty"` // pairing payload while logged out
}

// Status describes the current session without connecting.
type Status struct {
	Connected  bool   `json:"connected"`
	SurfaceURL string `json:"surfaceURL,omitempty"`
}

// DeleteCompletedMessage is the summary message of every delete batch.
const DeleteCompletedMessage = "Batch processing completed"

const loginScript = `(sels) => sels.some(s => document.querySelector(s) !== null)`

// qrScript reads the pairing payload the login screen renders as a QR code.
const qrScript = `(sel) => { const el = document.querySelector(sel); return el ? (el.getAttribute('data-ref') || '') : '' }`

// Scan opens the app, reads the whole chat list and classifies it.
func (s *Service) Scan(ctx context.Context) (*ScanReport, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	start := time.Now()
	runID := uuid.NewString()
	s.deps.Bus.Publish(bus.TopicScanStarted, runID, nil)
	L_info("sweeper: scan started", "runId", runID)

	report, err := s.scan(ctx, runID)
	if err != nil {
		s.deps.Bus.Publish(bus.TopicScanFailed, runID, ScanFailed{
			Error:     err.Error(),
			Reason:    FailureReason(err),
			ElapsedMs: time.Since(start).Milliseconds(),
		})
		return nil, s.checkConnection(err)
	}

	s.deps.Bus.Publish(bus.TopicScanCompleted, runID, ScanCompleted{
		Entries:    len(report.Entries),
		Classified: len(report.Classifications),
		Counts:     report.Counts,
		ElapsedMs:  time.Since(start).Milliseconds(),
	})
	L_info("sweeper: scan completed", "runId", runID, "entries", len(report.Entries), "classified", len(report.Classifications))
	return report, nil
}

func (s *Service) scan(ctx context.Context, runID string) (*ScanReport, error) {
	_, surface, err := s.deps.Sessions.EnsureSession(ctx)
	if err != nil {
		return nil, err
	}
	if err := s.openApp(ctx, surface, true); err != nil {
		return nil, err
	}

	entries, err := s.deps.Scraper.ScrapeAll(ctx, surface, func(p scraper.Progress) {
		s.deps.Bus.Publish(bus.TopicScanProgress, runID, p)
	})
	if err != nil {
		return nil, err
	}

	results, err := s.deps.Classifier.Classify(ctx, entries)
	if err != nil {
		return nil, err
	}

	return &ScanReport{
		RunID:           runID,
		Entries:         entries,
		Classifications: results,
		Counts:          classify.Counts(results),
	}, nil
}

// Delete deletes the named chats in order. Per-chat failures are reported
// in the outcomes, not as an error.
func (s *Service) Delete(ctx context.Context, identities []string) (*DeleteReport, error) {
	if len(identities) == 0 {
		return nil, ErrNoIdentities
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	start := time.Now()
	runID := uuid.NewString()
	L_info("sweeper: delete started", "runId", runID, "count", len(identities))

	_, surface, err := s.deps.Sessions.EnsureSession(ctx)
	if err != nil {
		return nil, s.checkConnection(err)
	}
	if err := s.openApp(ctx, surface, false); err != nil {
		return nil, s.checkConnection(err)
	}

	outcomes := s.deps.Deleter.DeleteAll(ctx, surface, identities, func(i int, o actions.Outcome) {
		s.deps.Bus.Publish(bus.TopicDeleteOutcome, runID, DeleteProgress{Index: i, Total: len(identities), Outcome: o})
	})

	report := &DeleteReport{RunID: runID, Message: DeleteCompletedMessage, Results: outcomes}
	for _, o := range outcomes {
		if o.OK() {
			report.Succeeded++
		} else {
			report.Failed++
		}
	}
	s.deps.Bus.Publish(bus.TopicDeleteCompleted, runID, DeleteCompleted{
		Succeeded: report.Succeeded,
		Failed:    report.Failed,
		ElapsedMs: time.Since(start).Milliseconds(),
	})
	L_elapsed(start, "sweeper: delete finished", "runId", runID, "succeeded", report.Succeeded, "failed", report.Failed)
	return report, nil
}

// Summarize opens one chat and asks the model for a summary of its
// visible messages.
func (s *Service) Summarize(ctx context.Context, contact string) (*ChatSummary, error) {
	contact = strings.TrimSpace(contact)
	if contact == "" {
		return nil, ErrMissingContact
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	start := time.Now()
	summary, err := s.summarize(ctx, contact)
	if err != nil {
		return nil, s.checkConnection(err)
	}
	L_elapsed(start, "sweeper: summary ready", "contact", contact, "messages", summary.MessageCount)
	return summary, nil
}

func (s *Service) summarize(ctx context.Context, contact string) (*ChatSummary, error) {
	sel := s.config.Selectors
	timeout := s.config.ResolveSearchTimeout()

	_, surface, err := s.deps.Sessions.EnsureSession(ctx)
	if err != nil {
		return nil, err
	}
	if err := s.openApp(ctx, surface, true); err != nil {
		return nil, err
	}

	search, err := surface.WaitFor(ctx, sel.SearchBox, timeout)
	if err != nil {
		return nil, fmt.Errorf("search box: %w", err)
	}
	if err := search.Click(ctx); err != nil {
		return nil, fmt.Errorf("search box: %w", err)
	}
	if err := search.Input(ctx, contact); err != nil {
		return nil, fmt.Errorf("search box: %w", err)
	}

	row, err := surface.WaitFor(ctx, TitleSelector(contact), timeout)
	if err != nil {
		return nil, fmt.Errorf("contact %q not found: %w", contact, err)
	}
	if err := row.Click(ctx); err != nil {
		return nil, fmt.Errorf("open chat: %w", err)
	}

	bubbles, err := surface.QueryAll(ctx, sel.MessageText)
	if err != nil {
		return nil, fmt.Errorf("read messages: %w", err)
	}
	messages := make([]string, 0, len(bubbles))
	for _, b := range bubbles {
		text, err := b.Text(ctx)
		if err != nil {
			L_debug("sweeper: unreadable message bubble", "error", err)
			continue
		}
		if text = strings.TrimSpace(text); text != "" {
			messages = append(messages, text)
		}
	}

	conversation, cut := tokens.Get().Truncate(strings.Join(messages, "\n"), s.config.MaxSummaryTokens)
	if cut {
		L_warn("sweeper: conversation truncated for summary", "contact", contact, "maxTokens", s.config.MaxSummaryTokens)
	}
	prompt := fmt.Sprintf("Summarize this conversation between me and %s. Focus on key topics, decisions made, and action items:\n\n%s", contact, conversation)

	text, err := s.deps.Generator.SimpleMessage(ctx, prompt, "")
	if err != nil {
		return nil, &classify.ClassificationFailedError{Err: err}
	}
	text = strings.TrimSpace(text)
	if text == "" {
		text = s.config.ResolveNoSummaryFallback()
	}

	return &ChatSummary{
		Contact:      contact,
		MessageCount: len(messages),
		Messages:     messages,
		Summary:      text,
	}, nil
}

// CheckLogin reports whether the app shows a logged-in session.
func (s *Service) CheckLogin(ctx context.Context) (LoginStatus, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, surface, err := s.deps.Sessions.EnsureSession(ctx)
	if err != nil {
		return LoginStatus{}, s.checkConnection(err)
	}
	if err := s.openApp(ctx, surface, false); err != nil {
		return LoginStatus{}, s.checkConnection(err)
	}

	var loggedIn bool
	if err := surface.Evaluate(ctx, loginScript, &loggedIn, s.config.Selectors.LoggedIn); err != nil {
		return LoginStatus{}, s.checkConnection(fmt.Errorf("evaluate login state: %w", err))
	}
	L_info("sweeper: login status", "loggedIn", loggedIn)
	if loggedIn {
		return LoginStatus{LoggedIn: true}, nil
	}

	// The code may not be rendered yet; that is not an error.
	var qr string
	if err := surface.Evaluate(ctx, qrScript, &qr, s.config.Selectors.QRCode); err != nil {
		L_debug("sweeper: login code not readable", "error", err)
	}
	return LoginStatus{QRCode: qr}, nil
}

// Disconnect drops the browser session. It never fails.
func (s *Service) Disconnect() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.deps.Sessions.Teardown()
	s.deps.Bus.Publish(bus.TopicSessionClosed, "", nil)
}

// Status reports the current session without connecting.
func (s *Service) Status() Status {
	conn, surface := s.deps.Sessions.GetActive()
	st := Status{Connected: conn != nil}
	if surface != nil {
		st.SurfaceURL = surface.URL()
	}
	return st
}

// openApp points surface at the app unless it is already there. With wait
// it also waits for the chat list.
func (s *Service) openApp(ctx context.Context, surface cdp.Surface, wait bool) error {
	if !strings.HasPrefix(surface.URL(), s.deps.Sessions.AppOrigin()) {
		L_info("sweeper: opening app", "url", s.deps.Sessions.AppURL())
		if err := surface.Navigate(ctx, s.deps.Sessions.AppURL()); err != nil {
			return err
		}
	}
	if !wait {
		return nil
	}
	if _, err := surface.WaitFor(ctx, s.config.Selectors.ChatList, s.config.ResolveReadyTimeout()); err != nil {
		return fmt.Errorf("%w: %w", ErrAppNotReady, err)
	}
	L_debug("sweeper: app loaded")
	return nil
}

// checkConnection drops the session when err shows the browser is gone.
// A cancelled caller leaves the shared session alone.
func (s *Service) checkConnection(err error) error {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	if err != nil && !errors.Is(err, browser.ErrConnectionExhausted) && browser.IsConnectionLost(err) {
		s.deps.Sessions.Invalidate(err)
	}
	return err
}

// TitleSelector matches the span whose title is exactly name.
func TitleSelector(name string) string {
	r := strings.NewReplacer(`\`, `\\`, `"`, `\"`)
	return `span[title="` + r.Replace(name) + `"]`
}

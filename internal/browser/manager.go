// Package browser manages the connection to the user's running Chrome and
// the tab chatsweep drives.
package browser

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/roelfdiedericks/chatsweep/internal/cdp"
	. "github.com/roelfdiedericks/chatsweep/internal/logging"
	"github.com/roelfdiedericks/chatsweep/internal/session"
)

var (
	// ErrConnectionExhausted matches every ConnectionExhaustedError.
	ErrConnectionExhausted = errors.New("browser connection attempts exhausted")

	// ErrSessionNotReady means a connection exists but no tab is attached.
	ErrSessionNotReady = errors.New("browser or page not initialized")
)

// ConnectionExhaustedError is returned after the last connection attempt failed.
type ConnectionExhaustedError struct {
	Attempts int
	Last     error
}

func (e *ConnectionExhaustedError) Error() string {
	return fmt.Sprintf("failed to connect to browser after %d attempts: %v", e.Attempts, e.Last)
}

func (e *ConnectionExhaustedError) Unwrap() []error {
	return []error{ErrConnectionExhausted, e.Last}
}

// ControlURLSource resolves the websocket control address of the browser.
type ControlURLSource interface {
	ControlURL(ctx context.Context) (string, error)
}

// sleepFunc waits for d or until ctx is done.
type sleepFunc func(ctx context.Context, d time.Duration) error

// Manager establishes or reuses the browser connection and the active tab.
// Concurrent EnsureSession callers share a single in-flight attempt.
type Manager struct {
	config Config
	store  *session.Store
	dialer cdp.Dialer
	source ControlURLSource

	group singleflight.Group
	sleep sleepFunc
}

// NewManager creates a connection manager around store.
func NewManager(cfg Config, store *session.Store, dialer cdp.Dialer, source ControlURLSource) *Manager {
	return &Manager{
		config: cfg,
		store:  store,
		dialer: dialer,
		source: source,
		sleep:  sleepCtx,
	}
}

// AppURL returns the web client address tabs are pointed at.
func (m *Manager) AppURL() string {
	if m.config.AppURL == "" {
		return DefaultAppURL
	}
	return m.config.AppURL
}

// AppOrigin returns the origin used to recognise tabs already on the app.
func (m *Manager) AppOrigin() string {
	return m.config.AppOrigin()
}

// EnsureSession returns the connected session, connecting first if needed.
func (m *Manager) EnsureSession(ctx context.Context) (cdp.Connection, cdp.Surface, error) {
	if sess, ok := m.store.Get(); ok && sess.Ready() {
		L_debug("browser: using existing browser connection")
		return sess.Conn, sess.Surface, nil
	}

	// Callers that arrive while an attempt is in flight wait for it. The
	// shared attempt must not die with whichever caller started it.
	v, err, shared := m.group.Do("connect", func() (any, error) {
		sess, ok := m.store.Get()
		if ok && sess.Ready() {
			return sess, nil
		}
		if ok && sess.Conn != nil {
			L_warn("browser: dropping connection without a tab")
			m.Teardown()
		}
		return m.connect(context.WithoutCancel(ctx))
	})
	if shared {
		L_debug("browser: joined in-flight connection attempt")
	}
	if err != nil {
		return nil, nil, err
	}

	sess := v.(session.Session)
	if !sess.Ready() {
		return nil, nil, ErrSessionNotReady
	}
	return sess.Conn, sess.Surface, nil
}

// GetActive returns the stored handles without connecting. Either may be nil.
func (m *Manager) GetActive() (cdp.Connection, cdp.Surface) {
	sess, ok := m.store.Get()
	if !ok {
		return nil, nil
	}
	return sess.Conn, sess.Surface
}

// Teardown clears the session and disconnects from (never closes) the browser.
// Disconnect failures are logged only.
func (m *Manager) Teardown() {
	prev, had := m.store.Clear()
	if !had || prev.Conn == nil {
		L_debug("browser: teardown with no active session")
		return
	}
	if err := prev.Conn.Disconnect(); err != nil {
		L_warn("browser: error disconnecting browser", "error", err)
	} else {
		L_info("browser: disconnected")
	}
	L_info("browser: session cleared")
}

// Invalidate drops the session after an unrecoverable connection error so
// the next EnsureSession reconnects.
func (m *Manager) Invalidate(reason error) {
	L_warn("browser: invalidating session", "reason", reason)
	m.Teardown()
}

func (m *Manager) connect(ctx context.Context) (session.Session, error) {
	start := time.Now()

	controlURL, err := m.resolveControlURL(ctx)
	if err != nil {
		return session.Session{}, err
	}

	maxAttempts := m.config.ResolveMaxAttempts()
	remaining := maxAttempts
	var lastErr error

	for attempt := 1; remaining > 0; attempt++ {
		L_info("browser: connection attempt", "attempt", attempt, "of", maxAttempts)

		if err := m.sleep(ctx, m.config.ResolveConnectGrace()); err != nil {
			return session.Session{}, err
		}

		sess, err := m.attempt(ctx, controlURL)
		if err == nil {
			L_elapsed(start, "browser: setup complete", "attempts", attempt)
			return sess, nil
		}

		lastErr = err
		remaining--
		L_warn("browser: connection attempt failed", "attempt", attempt, "error", err)

		if remaining > 0 {
			L_info("browser: retrying", "in", m.config.ResolveRetryBackoff(), "attemptsLeft", remaining)
			if err := m.sleep(ctx, m.config.ResolveRetryBackoff()); err != nil {
				return session.Session{}, err
			}
		}
	}

	// A stale cached address would fail the same way next time.
	m.store.SetControlURL("")
	L_error("browser: all connection attempts failed", "error", lastErr)
	return session.Session{}, &ConnectionExhaustedError{Attempts: maxAttempts, Last: lastErr}
}

// attempt runs one connect + tab selection cycle.
func (m *Manager) attempt(ctx context.Context, controlURL string) (session.Session, error) {
	conn, err := m.dialer.Dial(ctx, controlURL)
	if err != nil {
		return session.Session{}, err
	}
	L_info("browser: connected", "controlURL", controlURL)

	// Nothing is stored until a tab is chosen.
	fail := func(err error) (session.Session, error) {
		if derr := conn.Disconnect(); derr != nil {
			L_debug("browser: disconnect after failed attempt", "error", derr)
		}
		return session.Session{}, err
	}

	if err := m.sleep(ctx, m.config.ResolveListDelay()); err != nil {
		return fail(err)
	}

	surfaces, err := conn.Surfaces()
	if err != nil {
		return fail(err)
	}
	L_debug("browser: found pages", "count", len(surfaces))

	surface := SelectSurface(surfaces, m.config.AppOrigin())
	if surface != nil {
		L_info("browser: reusing existing tab", "url", surface.URL())
	} else {
		L_info("browser: creating new tab")
		if surface, err = conn.NewSurface(); err != nil {
			return fail(err)
		}
	}

	if err := surface.BringToFront(); err != nil {
		return fail(fmt.Errorf("failed to bring tab to front: %w", err))
	}

	m.store.Set(conn, surface)
	sess, _ := m.store.Get()
	return sess, nil
}

func (m *Manager) resolveControlURL(ctx context.Context) (string, error) {
	if u := m.store.ControlURL(); u != "" {
		return u, nil
	}
	if u := m.config.ControlURL; u != "" {
		m.store.SetControlURL(cdp.NormalizeLoopback(u))
		return m.store.ControlURL(), nil
	}
	u, err := m.source.ControlURL(ctx)
	if err != nil {
		return "", fmt.Errorf("failed to get fresh websocket url: %w", err)
	}
	if err := ValidateControlEndpoint(u, m.config.AllowRemote); err != nil {
		return "", err
	}
	m.store.SetControlURL(u)
	return u, nil
}

// SelectSurface picks a tab to reuse: one already on appOrigin, otherwise a
// blank tab. Returns nil when neither exists.
func SelectSurface(surfaces []cdp.Surface, appOrigin string) cdp.Surface {
	var blank cdp.Surface
	for _, s := range surfaces {
		u := s.URL()
		if strings.HasPrefix(u, appOrigin) {
			return s
		}
		if blank == nil && isBlank(u) {
			blank = s
		}
	}
	return blank
}

func isBlank(u string) bool {
	return u == "about:blank" || u == "chrome://newtab/" || u == "chrome://new-tab-page/"
}

// IsConnectionLost reports whether err means the control channel is gone.
func IsConnectionLost(err error) bool {
	if err == nil {
		return false
	}
	errStr := err.Error()
	return strings.Contains(errStr, "use of closed network connection") ||
		strings.Contains(errStr, "connection refused") ||
		strings.Contains(errStr, "websocket: close")
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

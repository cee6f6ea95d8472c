package sweeper

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roelfdiedericks/chatsweep/internal/actions"
	"github.com/roelfdiedericks/chatsweep/internal/browser"
	"github.com/roelfdiedericks/chatsweep/internal/bus"
	"github.com/roelfdiedericks/chatsweep/internal/cdp"
	"github.com/roelfdiedericks/chatsweep/internal/cdp/cdptest"
	"github.com/roelfdiedericks/chatsweep/internal/classify"
	"github.com/roelfdiedericks/chatsweep/internal/scraper"
)

const testAppURL = "https://web.whatsapp.com/"

type fakeSessions struct {
	conn    *cdptest.Connection
	surface *cdptest.Surface
	err     error

	teardowns   int
	invalidated []error
}

func (f *fakeSessions) EnsureSession(ctx context.Context) (cdp.Connection, cdp.Surface, error) {
	if f.err != nil {
		return nil, nil, f.err
	}
	return f.conn, f.surface, nil
}

func (f *fakeSessions) GetActive() (cdp.Connection, cdp.Surface) {
	if f.conn == nil {
		return nil, nil
	}
	return f.conn, f.surface
}

func (f *fakeSessions) Teardown()               { f.teardowns++; f.conn = nil; f.surface = nil }
func (f *fakeSessions) Invalidate(reason error) { f.invalidated = append(f.invalidated, reason) }
func (f *fakeSessions) AppURL() string          { return testAppURL }
func (f *fakeSessions) AppOrigin() string       { return "https://web.whatsapp.com" }

type fakeGenerator struct {
	mu      sync.Mutex
	reply   string
	err     error
	prompts []string
}

func (g *fakeGenerator) SimpleMessage(ctx context.Context, user, system string) (string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.prompts = append(g.prompts, user)
	return g.reply, g.err
}

type recorder struct {
	mu     sync.Mutex
	topics []string
	data   []any
}

func (r *recorder) handle(e bus.Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.topics = append(r.topics, e.Topic)
	r.data = append(r.data, e.Data)
}

func (r *recorder) last() any {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.data[len(r.data)-1]
}

type fixture struct {
	svc      *Service
	sessions *fakeSessions
	surface  *cdptest.Surface
	gen      *fakeGenerator
	events   *recorder
}

// newFixture builds a service around a surface that already shows the
// loaded app with rows.
func newFixture(t *testing.T, rows ...string) *fixture {
	t.Helper()

	surface := &cdptest.Surface{Location: "about:blank"}
	surface.Add(DefaultSelectors().ChatList, &cdptest.Element{Label: "Chat list"})

	listed := make([]map[string]string, 0, len(rows))
	for _, r := range rows {
		listed = append(listed, map[string]string{"name": r, "msg": "hello from " + r, "time": "09:30"})
	}
	surface.EvalFunc = func(script string, args []any) (any, error) {
		switch {
		case script == loginScript:
			return true, nil
		case strings.Contains(script, "itemSel"):
			return listed, nil
		default:
			return map[string]any{"present": true, "scrollTop": 0, "scrollHeight": 400, "clientHeight": 400}, nil
		}
	}

	sessions := &fakeSessions{conn: &cdptest.Connection{}, surface: surface}
	gen := &fakeGenerator{}
	b := bus.New()
	events := &recorder{}
	b.Subscribe(bus.AllTopics, events.handle)

	scfg := scraper.DefaultConfig()
	scfg.SettleDelay = "0s"

	svc := New(DefaultConfig(), Deps{
		Sessions:   sessions,
		Scraper:    scraper.New(scfg),
		Classifier: classify.New(gen, classify.DefaultConfig()),
		Deleter:    actions.NewDeleteExecutor(actions.DefaultConfig()),
		Generator:  gen,
		Bus:        b,
	})
	return &fixture{svc: svc, sessions: sessions, surface: surface, gen: gen, events: events}
}

func TestScan(t *testing.T) {
	f := newFixture(t, "Alice", "Promo Mart")
	f.gen.reply = "Alice: genuine, Promo Mart: promotional"

	report, err := f.svc.Scan(context.Background())
	require.NoError(t, err)

	assert.NotEmpty(t, report.RunID)
	assert.Len(t, report.Entries, 2)
	require.Len(t, report.Classifications, 2)
	assert.Equal(t, "Alice", report.Classifications[0].Identity)
	assert.Equal(t, "genuine", report.Classifications[0].Category)
	assert.Equal(t, "hello from Alice", report.Classifications[0].Preview)
	assert.Equal(t, map[string]int{"genuine": 1, "promotional": 1}, report.Counts)

	assert.Equal(t, []string{testAppURL}, f.surface.Navigations)
	assert.Equal(t, bus.TopicScanStarted, f.events.topics[0])
	assert.Contains(t, f.events.topics, bus.TopicScanProgress)
	assert.Equal(t, bus.TopicScanCompleted, f.events.topics[len(f.events.topics)-1])

	done, ok := f.events.last().(ScanCompleted)
	require.True(t, ok)
	assert.Equal(t, 2, done.Entries)
	assert.Equal(t, 2, done.Classified)
	assert.Equal(t, report.Counts, done.Counts)
}

func TestScanSkipsNavigationWhenOnApp(t *testing.T) {
	f := newFixture(t)
	f.surface.Location = testAppURL + "#chat"

	report, err := f.svc.Scan(context.Background())
	require.NoError(t, err)
	assert.Empty(t, f.surface.Navigations)
	assert.Empty(t, report.Classifications)
	assert.Empty(t, f.gen.prompts, "empty list makes no model call")
}

func TestScanFailures(t *testing.T) {
	t.Run("chat list never loads", func(t *testing.T) {
		f := newFixture(t)
		f.surface.Elements = nil

		_, err := f.svc.Scan(context.Background())
		require.Error(t, err)
		assert.ErrorIs(t, err, ErrAppNotReady)
		assert.ErrorIs(t, err, cdp.ErrTimeout)
		assert.Equal(t, bus.TopicScanFailed, f.events.topics[len(f.events.topics)-1])
		failed, ok := f.events.last().(ScanFailed)
		require.True(t, ok)
		assert.Equal(t, ReasonAppNotReady, failed.Reason)
	})

	t.Run("classification fails", func(t *testing.T) {
		f := newFixture(t, "Alice")
		f.gen.err = errors.New("429 rate limit")

		_, err := f.svc.Scan(context.Background())
		assert.ErrorIs(t, err, classify.ErrClassificationFailed)
		assert.Empty(t, f.sessions.invalidated)
	})

	t.Run("lost connection invalidates session", func(t *testing.T) {
		f := newFixture(t)
		f.sessions.err = errors.New("read tcp: use of closed network connection")

		_, err := f.svc.Scan(context.Background())
		require.Error(t, err)
		assert.Len(t, f.sessions.invalidated, 1)
	})

	t.Run("cancelled caller keeps the session", func(t *testing.T) {
		for _, cause := range []error{context.Canceled, context.DeadlineExceeded} {
			f := newFixture(t, "Alice")
			f.surface.EvalFunc = func(script string, args []any) (any, error) {
				if strings.Contains(script, "itemSel") {
					return nil, cause
				}
				return map[string]any{"present": true, "scrollTop": 0, "scrollHeight": 400, "clientHeight": 400}, nil
			}

			_, err := f.svc.Scan(context.Background())
			assert.ErrorIs(t, err, cause)
			assert.Empty(t, f.sessions.invalidated)
			assert.Zero(t, f.sessions.teardowns)
			assert.NotNil(t, f.sessions.conn)
		}
	})

	t.Run("exhausted connection is not invalidated again", func(t *testing.T) {
		f := newFixture(t)
		f.sessions.err = &browser.ConnectionExhaustedError{Attempts: 5, Last: errors.New("dial: connection refused")}

		_, err := f.svc.Scan(context.Background())
		assert.ErrorIs(t, err, browser.ErrConnectionExhausted)
		assert.Empty(t, f.sessions.invalidated)
	})
}

func TestDelete(t *testing.T) {
	f := newFixture(t)

	_, err := f.svc.Delete(context.Background(), nil)
	assert.ErrorIs(t, err, ErrNoIdentities)

	report, err := f.svc.Delete(context.Background(), []string{"Ghost", "Nobody"})
	require.NoError(t, err)
	assert.Equal(t, DeleteCompletedMessage, report.Message)
	assert.Equal(t, 0, report.Succeeded)
	assert.Equal(t, 2, report.Failed)
	require.Len(t, report.Results, 2)
	assert.Equal(t, actions.MsgNotFound, report.Results[0].Message)

	assert.Equal(t, []string{bus.TopicDeleteOutcome, bus.TopicDeleteOutcome, bus.TopicDeleteCompleted}, f.events.topics)
	assert.Equal(t, DeleteProgress{Index: 1, Total: 2, Outcome: report.Results[1]}, f.events.data[1])
	assert.Equal(t, 2, f.events.last().(DeleteCompleted).Failed)
	for _, w := range f.surface.Waits {
		assert.NotEqual(t, DefaultSelectors().ChatList, w, "delete does not wait for the list")
	}
}

func TestSummarize(t *testing.T) {
	f := newFixture(t)
	sel := DefaultSelectors()
	search := &cdptest.Element{Label: "Search"}
	f.surface.Add(sel.SearchBox, search)
	row := &cdptest.Element{Label: `Bob "B"`}
	f.surface.Add(TitleSelector(`Bob "B"`), row)
	f.surface.Add(sel.MessageText,
		&cdptest.Element{Label: "Lunch at 1?"},
		&cdptest.Element{Label: "  "},
		&cdptest.Element{Label: "Sure, see you there"},
	)
	f.gen.reply = "  Agreed to meet for lunch at 1.  "

	got, err := f.svc.Summarize(context.Background(), `  Bob "B" `)
	require.NoError(t, err)

	assert.Equal(t, `Bob "B"`, got.Contact)
	assert.Equal(t, 2, got.MessageCount)
	assert.Equal(t, []string{"Lunch at 1?", "Sure, see you there"}, got.Messages)
	assert.Equal(t, "Agreed to meet for lunch at 1.", got.Summary)
	assert.Equal(t, []string{`Bob "B"`}, search.Inputs)
	assert.Equal(t, 1, row.ClickCount())

	require.Len(t, f.gen.prompts, 1)
	assert.Contains(t, f.gen.prompts[0], `between me and Bob "B"`)
	assert.Contains(t, f.gen.prompts[0], "Lunch at 1?\nSure, see you there")
}

func TestSummarizeEdgeCases(t *testing.T) {
	t.Run("missing contact", func(t *testing.T) {
		f := newFixture(t)
		_, err := f.svc.Summarize(context.Background(), "   ")
		assert.ErrorIs(t, err, ErrMissingContact)
	})

	t.Run("unknown contact", func(t *testing.T) {
		f := newFixture(t)
		f.surface.Add(DefaultSelectors().SearchBox, &cdptest.Element{})
		_, err := f.svc.Summarize(context.Background(), "Carol")
		require.Error(t, err)
		assert.Contains(t, err.Error(), `contact "Carol" not found`)
	})

	t.Run("empty reply uses fallback", func(t *testing.T) {
		f := newFixture(t)
		f.surface.Add(DefaultSelectors().SearchBox, &cdptest.Element{})
		f.surface.Add(TitleSelector("Dan"), &cdptest.Element{Label: "Dan"})

		got, err := f.svc.Summarize(context.Background(), "Dan")
		require.NoError(t, err)
		assert.Equal(t, "No summary available.", got.Summary)
		assert.Zero(t, got.MessageCount)
	})
}

func TestCheckLogin(t *testing.T) {
	f := newFixture(t)
	got, err := f.svc.CheckLogin(context.Background())
	require.NoError(t, err)
	assert.True(t, got.LoggedIn)

	f.surface.EvalFunc = func(script string, args []any) (any, error) {
		require.Len(t, args, 1)
		if script == qrScript {
			assert.Equal(t, DefaultSelectors().QRCode, args[0])
			return "2@abc,def,ghi", nil
		}
		assert.Equal(t, DefaultSelectors().LoggedIn, args[0])
		return false, nil
	}
	got, err = f.svc.CheckLogin(context.Background())
	require.NoError(t, err)
	assert.False(t, got.LoggedIn)
	assert.Equal(t, "2@abc,def,ghi", got.QRCode)

	f.surface.EvalFunc = func(script string, args []any) (any, error) {
		if script == qrScript {
			return nil, errors.New("execution context was destroyed")
		}
		return false, nil
	}
	got, err = f.svc.CheckLogin(context.Background())
	require.NoError(t, err, "unreadable code is not a failure")
	assert.Equal(t, LoginStatus{}, got)
}

func TestDisconnectAndStatus(t *testing.T) {
	f := newFixture(t)
	f.surface.Location = testAppURL

	st := f.svc.Status()
	assert.True(t, st.Connected)
	assert.Equal(t, testAppURL, st.SurfaceURL)

	f.svc.Disconnect()
	assert.Equal(t, 1, f.sessions.teardowns)
	assert.Equal(t, []string{bus.TopicSessionClosed}, f.events.topics)
	assert.Equal(t, Status{}, f.svc.Status())

	// A second disconnect is harmless.
	f.svc.Disconnect()
	assert.Equal(t, 2, f.sessions.teardowns)
}

func TestTitleSelector(t *testing.T) {
	assert.Equal(t, `span[title="Mom"]`, TitleSelector("Mom"))
	assert.Equal(t, `span[title="say \"hi\""]`, TitleSelector(`say "hi"`))
	assert.Equal(t, `span[title="a\\b"]`, TitleSelector(`a\b`))
}

func TestConfigResolve(t *testing.T) {
	cfg := Config{ReadyTimeout: "5s", SearchTimeout: "bogus"}
	assert.Equal(t, "5s", cfg.ResolveReadyTimeout().String())
	assert.Equal(t, "30s", cfg.ResolveSearchTimeout().String())
	assert.Equal(t, "No summary available.", cfg.ResolveNoSummaryFallback())
}

func TestFailureReason(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want string
	}{
		{"cancelled", context.Canceled, ReasonCancelled},
		{"deadline", fmt.Errorf("wait: %w", context.DeadlineExceeded), ReasonCancelled},
		{"app not ready", fmt.Errorf("%w: %w", ErrAppNotReady, cdp.ErrTimeout), ReasonAppNotReady},
		{"classification", &classify.ClassificationFailedError{Err: errors.New("500")}, ReasonClassification},
		{"exhausted", &browser.ConnectionExhaustedError{Attempts: 5, Last: errors.New("refused")}, ReasonConnection},
		{"closed socket", errors.New("websocket: close 1006"), ReasonConnection},
		{"other", errors.New("boom"), ReasonOther},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, FailureReason(tt.err))
		})
	}
}

package cdp

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalizeLoopback(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"localhost with port", "ws://localhost:9222/devtools/browser/abc", "ws://127.0.0.1:9222/devtools/browser/abc"},
		{"localhost no port", "ws://localhost/devtools/browser/abc", "ws://127.0.0.1/devtools/browser/abc"},
		{"uppercase localhost", "ws://LOCALHOST:9222/x", "ws://127.0.0.1:9222/x"},
		{"already loopback", "ws://127.0.0.1:9222/x", "ws://127.0.0.1:9222/x"},
		{"remote host untouched", "ws://10.0.0.5:9222/x", "ws://10.0.0.5:9222/x"},
		{"localhost lookalike untouched", "ws://localhost.example.com:9222/x", "ws://localhost.example.com:9222/x"},
		{"garbage untouched", "::not a url", "::not a url"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, NormalizeLoopback(tt.in))
		})
	}
}

func TestDiscovererControlURL(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/json/version", r.URL.Path)
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{"Browser":"Chrome/130.0","webSocketDebuggerUrl":"ws://localhost:9222/devtools/browser/6b1c"}`)
	}))
	defer srv.Close()

	d := NewDiscoverer(srv.URL+"/json/version", time.Second)
	got, err := d.ControlURL(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "ws://127.0.0.1:9222/devtools/browser/6b1c", got)
}

func TestDiscovererErrors(t *testing.T) {
	t.Run("http error status", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, "nope", http.StatusServiceUnavailable)
		}))
		defer srv.Close()

		_, err := NewDiscoverer(srv.URL, time.Second).ControlURL(context.Background())
		require.Error(t, err)
		assert.Contains(t, err.Error(), "503")
	})

	t.Run("missing debugger url", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Content-Type", "application/json")
			fmt.Fprint(w, `{"Browser":"Chrome/130.0"}`)
		}))
		defer srv.Close()

		_, err := NewDiscoverer(srv.URL, time.Second).ControlURL(context.Background())
		require.Error(t, err)
		assert.Contains(t, err.Error(), "missing")
	})

	t.Run("nothing listening", func(t *testing.T) {
		srv := httptest.NewServer(http.NotFoundHandler())
		url := srv.URL
		srv.Close()

		_, err := NewDiscoverer(url, time.Second).ControlURL(context.Background())
		require.Error(t, err)
	})
}

func TestDefaultEndpoint(t *testing.T) {
	assert.Equal(t, DefaultDiscoveryURL, NewDiscoverer("", 0).Endpoint())
}

func TestMapErr(t *testing.T) {
	assert.NoError(t, mapErr(nil, "x"))

	err := mapErr(fmt.Errorf("wrapped: %w", context.DeadlineExceeded), "#pane-side")
	assert.True(t, errors.Is(err, ErrTimeout))
	assert.Contains(t, err.Error(), "#pane-side")

	plain := errors.New("boom")
	assert.Equal(t, plain, mapErr(plain, "x"))
}

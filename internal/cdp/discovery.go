package cdp

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	. "github.com/roelfdiedericks/chatsweep/internal/logging"
)

// DefaultDiscoveryURL is Chrome's remote debugging version endpoint.
const DefaultDiscoveryURL = "http://127.0.0.1:9222/json/version"

// VersionInfo is the subset of /json/version we care about.
type VersionInfo struct {
	Browser              string `json:"Browser"`
	WebSocketDebuggerURL string `json:"webSocketDebuggerUrl"`
}

// Discoverer fetches the browser control address from the debugging endpoint.
type Discoverer struct {
	endpoint string
	client   *resty.Client
}

// NewDiscoverer creates a discoverer for endpoint (empty = DefaultDiscoveryURL).
func NewDiscoverer(endpoint string, timeout time.Duration) *Discoverer {
	if endpoint == "" {
		endpoint = DefaultDiscoveryURL
	}
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Discoverer{
		endpoint: endpoint,
		client:   resty.New().SetTimeout(timeout),
	}
}

// Endpoint returns the discovery URL in use.
func (d *Discoverer) Endpoint() string {
	return d.endpoint
}

// ControlURL fetches a fresh websocket debugger URL, normalized to loopback.
func (d *Discoverer) ControlURL(ctx context.Context) (string, error) {
	L_debug("cdp: fetching debugger url", "endpoint", d.endpoint)

	var info VersionInfo
	resp, err := d.client.R().
		SetContext(ctx).
		SetResult(&info).
		Get(d.endpoint)
	if err != nil {
		return "", fmt.Errorf("failed to get debugger url: %w", err)
	}
	if resp.IsError() {
		return "", fmt.Errorf("failed to get debugger url: %s", resp.Status())
	}
	if info.WebSocketDebuggerURL == "" {
		return "", fmt.Errorf("debugger url missing from %s", d.endpoint)
	}

	wsURL := NormalizeLoopback(info.WebSocketDebuggerURL)
	L_debug("cdp: got debugger url", "url", wsURL, "browser", info.Browser)
	return wsURL, nil
}

// NormalizeLoopback rewrites a "localhost" host to 127.0.0.1, keeping the port
// and path. Other hosts and unparsable input are returned unchanged.
func NormalizeLoopback(raw string) string {
	u, err := url.Parse(raw)
	if err != nil || !strings.EqualFold(u.Hostname(), "localhost") {
		return raw
	}
	if port := u.Port(); port != "" {
		u.Host = "127.0.0.1:" + port
	} else {
		u.Host = "127.0.0.1"
	}
	return u.String()
}

package browser

import (
	"fmt"
	"net"
	"net/url"
	"strings"

	. "github.com/roelfdiedericks/chatsweep/internal/logging"
)

// EndpointError is returned for a browser or app address that must not be used.
type EndpointError struct {
	URL    string
	Reason string
}

func (e *EndpointError) Error() string {
	return fmt.Sprintf("endpoint %q rejected: %s", e.URL, e.Reason)
}

// lookupIP is swapped in tests.
var lookupIP = net.LookupIP

// Validate checks the configured addresses. The debugging endpoint hands
// out full control of the user's browser, so it must be on loopback unless
// AllowRemote is set.
func (c *Config) Validate() error {
	if c.DiscoveryURL != "" {
		if err := ValidateControlEndpoint(c.DiscoveryURL, c.AllowRemote); err != nil {
			return err
		}
	}
	if c.ControlURL != "" {
		if err := ValidateControlEndpoint(c.ControlURL, c.AllowRemote); err != nil {
			return err
		}
	}
	if c.AppURL != "" {
		if err := ValidateAppURL(c.AppURL); err != nil {
			return err
		}
	}
	return nil
}

// ValidateControlEndpoint checks a discovery (http) or control (ws) address.
func ValidateControlEndpoint(raw string, allowRemote bool) error {
	// url.Parse reads "host:port" as an opaque scheme or fails on it.
	if !strings.Contains(raw, "://") {
		return &EndpointError{URL: raw, Reason: "missing scheme, only http(s) or ws(s) allowed"}
	}
	parsed, err := url.Parse(raw)
	if err != nil {
		return &EndpointError{URL: raw, Reason: fmt.Sprintf("invalid URL: %v", err)}
	}

	switch strings.ToLower(parsed.Scheme) {
	case "http", "https", "ws", "wss":
	default:
		return &EndpointError{URL: raw, Reason: fmt.Sprintf("scheme '%s' not allowed, only http(s) or ws(s)", parsed.Scheme)}
	}

	host := parsed.Hostname()
	if host == "" {
		return &EndpointError{URL: raw, Reason: "empty hostname"}
	}
	if isCloudMetadataHost(host) {
		return &EndpointError{URL: raw, Reason: fmt.Sprintf("cloud metadata hostname blocked: %s", host)}
	}

	ips, err := resolve(host)
	if err != nil {
		return &EndpointError{URL: raw, Reason: fmt.Sprintf("DNS resolution failed: %v", err)}
	}

	for _, ip := range ips {
		if isCloudMetadataIP(ip) {
			return &EndpointError{URL: raw, Reason: fmt.Sprintf("cloud metadata address blocked (%s resolves to %s)", host, ip)}
		}
		if !allowRemote && !ip.IsLoopback() {
			L_debug("browser: non-loopback debugging endpoint", "url", raw, "ip", ip.String())
			return &EndpointError{URL: raw, Reason: fmt.Sprintf("%s resolves to %s, not loopback (set browser.allowRemote to permit)", host, ip)}
		}
	}

	L_trace("browser: endpoint passed validation", "url", raw, "ips", fmt.Sprintf("%v", ips))
	return nil
}

// ValidateAppURL checks the messaging client address.
func ValidateAppURL(raw string) error {
	parsed, err := url.Parse(raw)
	if err != nil {
		return &EndpointError{URL: raw, Reason: fmt.Sprintf("invalid URL: %v", err)}
	}
	if !strings.EqualFold(parsed.Scheme, "https") {
		return &EndpointError{URL: raw, Reason: "app URL must use https"}
	}
	if parsed.Hostname() == "" {
		return &EndpointError{URL: raw, Reason: "empty hostname"}
	}
	return nil
}

// resolve returns the addresses for host. Literal IPs skip DNS.
func resolve(host string) ([]net.IP, error) {
	if ip := net.ParseIP(host); ip != nil {
		return []net.IP{ip}, nil
	}
	return lookupIP(host)
}

func isCloudMetadataIP(ip net.IP) bool {
	return ip.Equal(net.ParseIP("169.254.169.254")) || ip.Equal(net.ParseIP("fd00:ec2::254"))
}

// isCloudMetadataHost checks for known cloud metadata hostnames
func isCloudMetadataHost(host string) bool {
	host = strings.ToLower(host)

	metadataHosts := []string{
		"metadata.google.internal", // GCP
		"metadata.goog",            // GCP alternate
		"kubernetes.default.svc",   // Kubernetes
		"kubernetes.default",       // Kubernetes
		"metadata",                 // Generic
	}

	for _, mh := range metadataHosts {
		if host == mh || strings.HasSuffix(host, "."+mh) {
			return true
		}
	}

	return false
}

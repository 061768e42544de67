package notify

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// validateWebhookURL enforces §4.7's transport rules before a single
// byte is sent: HTTPS only (with a narrow, explicitly-allowlisted
// exception for known-private test hosts) and a non-empty host. It does
// not resolve the host; the check that no destination is a loopback,
// link-local, RFC1918, multicast, or cloud metadata address happens at
// dial time in dialContextPinned.
func validateWebhookURL(raw string, privateHostAllowlist map[string]bool) (*url.URL, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return nil, fmt.Errorf("invalid webhook url: %w", err)
	}
	if u.Scheme != "https" {
		if !privateHostAllowlist[u.Hostname()] {
			return nil, fmt.Errorf("webhook url must use https (host %q is not allowlisted for plain http)", u.Hostname())
		}
	}
	if u.Hostname() == "" {
		return nil, fmt.Errorf("webhook url has no host")
	}
	return u, nil
}

// dialContextPinned resolves host once, rejects any disallowed address,
// and dials the first allowed address directly — preventing a DNS
// rebind between the validation check and the actual connection
// (TOCTOU on hostname resolution).
func dialContextPinned(allowlist map[string]bool) func(ctx context.Context, network, addr string) (net.Conn, error) {
	dialer := &net.Dialer{Timeout: 5 * time.Second}
	return func(ctx context.Context, network, addr string) (net.Conn, error) {
		host, port, err := net.SplitHostPort(addr)
		if err != nil {
			return nil, err
		}
		if allowlist[host] {
			return dialer.DialContext(ctx, network, addr)
		}

		ips, err := net.DefaultResolver.LookupIPAddr(ctx, host)
		if err != nil {
			return nil, fmt.Errorf("resolve %s: %w", host, err)
		}
		var pinned net.IP
		for _, ip := range ips {
			if isBlockedAddr(ip.IP) {
				continue
			}
			pinned = ip.IP
			break
		}
		if pinned == nil {
			return nil, fmt.Errorf("webhook host %s resolves only to disallowed addresses", host)
		}
		return dialer.DialContext(ctx, network, net.JoinHostPort(pinned.String(), port))
	}
}

// isBlockedAddr reports whether ip must never be dialed as a webhook
// destination: loopback, link-local (unicast and multicast), private
// RFC1918/RFC4193 ranges, multicast, unspecified, and the common cloud
// instance-metadata address.
func isBlockedAddr(ip net.IP) bool {
	if ip.IsLoopback() || ip.IsLinkLocalUnicast() || ip.IsLinkLocalMulticast() ||
		ip.IsMulticast() || ip.IsUnspecified() || ip.IsPrivate() {
		return true
	}
	if ip.Equal(net.IPv4(169, 254, 169, 254)) {
		return true
	}
	return false
}

// newHardenedWebhookClient builds an http.Client per destination that
// enforces connect/total timeouts, TLS verification, and the DNS-pinned
// transport above.
func newHardenedWebhookClient(allowlist map[string]bool, connectTimeout, totalTimeout time.Duration) *http.Client {
	transport := &http.Transport{
		DialContext:           dialContextPinned(allowlist),
		TLSHandshakeTimeout:   connectTimeout,
		ResponseHeaderTimeout: totalTimeout,
		ForceAttemptHTTP2:     true,
	}
	return &http.Client{
		Transport: transport,
		Timeout:   totalTimeout,
		CheckRedirect: func(req *http.Request, via []*http.Request) error {
			// Redirects could repoint at a disallowed host; refuse them
			// and let the caller treat the 3xx as a failed delivery.
			return http.ErrUseLastResponse
		},
	}
}

func isTransientHTTPStatus(status int) bool {
	return status == http.StatusTooManyRequests || status >= 500
}

func hostOf(raw string) string {
	u, err := url.Parse(raw)
	if err != nil {
		return raw
	}
	return strings.ToLower(u.Hostname())
}

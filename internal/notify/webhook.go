package notify

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sony/gobreaker"
	"golang.org/x/time/rate"

	"github.com/iiot-platform/core/internal/config"
	"github.com/iiot-platform/core/pkg/types"
)

// WebhookDispatcher delivers NotificationEvents to tenant-configured
// webhook URLs, hardened per §4.7: HTTPS + SSRF-safe dialing, HMAC
// signing, per-URL rate limiting, and a circuit breaker per destination
// host — grounded on the teacher's pilot.Client rate-limited HTTP
// client pattern, with the breaker adopted from the jordigilh-kubernaut
// pack example's gobreaker.Settings usage.
type WebhookDispatcher struct {
	client      *http.Client
	allowlist   map[string]bool
	ratePerSec  float64
	logger      *slog.Logger
	now         func() time.Time

	mu       sync.Mutex
	limiters map[string]*rate.Limiter
	breakers map[string]*gobreaker.CircuitBreaker
}

// NewWebhookDispatcher builds a dispatcher. privateHostAllowlist names
// hosts permitted to receive plain-HTTP webhooks and to bypass the
// public-address DNS check (used for in-cluster test receivers only).
func NewWebhookDispatcher(privateHostAllowlist []string, logger *slog.Logger) *WebhookDispatcher {
	return NewWebhookDispatcherWithRate(privateHostAllowlist, config.DefaultWebhookRatePerS, logger)
}

// NewWebhookDispatcherWithRate is NewWebhookDispatcher with an explicit
// per-URL rate (WEBHOOK_RATE_PER_SECOND, §6).
func NewWebhookDispatcherWithRate(privateHostAllowlist []string, ratePerSecond float64, logger *slog.Logger) *WebhookDispatcher {
	allow := make(map[string]bool, len(privateHostAllowlist))
	for _, h := range privateHostAllowlist {
		allow[h] = true
	}
	if ratePerSecond <= 0 {
		ratePerSecond = config.DefaultWebhookRatePerS
	}
	return &WebhookDispatcher{
		client:     newHardenedWebhookClient(allow, config.WebhookConnectTimeout, config.WebhookTotalTimeout),
		allowlist:  allow,
		ratePerSec: ratePerSecond,
		logger:     logger.With("component", "notify_webhook"),
		now:        time.Now,
		limiters:   make(map[string]*rate.Limiter),
		breakers:   make(map[string]*gobreaker.CircuitBreaker),
	}
}

func (d *WebhookDispatcher) limiterFor(url string) *rate.Limiter {
	d.mu.Lock()
	defer d.mu.Unlock()
	l, ok := d.limiters[url]
	if !ok {
		l = rate.NewLimiter(rate.Limit(d.ratePerSec), config.WebhookRateBurst)
		d.limiters[url] = l
	}
	return l
}

func (d *WebhookDispatcher) breakerFor(host string) *gobreaker.CircuitBreaker {
	d.mu.Lock()
	defer d.mu.Unlock()
	b, ok := d.breakers[host]
	if !ok {
		b = gobreaker.NewCircuitBreaker(gobreaker.Settings{
			Name:        "webhook:" + host,
			MaxRequests: 1,
			Interval:    0,
			Timeout:     30 * time.Second,
			ReadyToTrip: func(counts gobreaker.Counts) bool {
				return counts.ConsecutiveFailures >= 5
			},
			OnStateChange: func(name string, from, to gobreaker.State) {
				d.logger.Warn("webhook circuit breaker state change", "host", name, "from", from, "to", to)
			},
		})
		d.breakers[host] = b
	}
	return b
}

// Send delivers event to webhookURL signed with secret, retrying
// transient failures per config.WebhookBackoff (1/5/25s). It returns
// the final error, if any, after exhausting retries.
func (d *WebhookDispatcher) Send(ctx context.Context, webhookURL, secret string, event types.NotificationEvent) error {
	u, err := validateWebhookURL(webhookURL, d.allowlist)
	if err != nil {
		return fmt.Errorf("webhook validation failed: %w", err)
	}
	host := hostOf(webhookURL)

	body, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}

	var lastErr error
	for attempt := 0; attempt <= config.WebhookMaxRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(config.WebhookBackoff(attempt - 1)):
			}
		}

		if err := d.limiterFor(u.String()).Wait(ctx); err != nil {
			return err
		}

		breaker := d.breakerFor(host)
		_, err := breaker.Execute(func() (any, error) {
			return nil, d.deliverOnce(ctx, u.String(), secret, body)
		})
		if err == nil {
			return nil
		}
		lastErr = err
		if !isRetryable(err) {
			return err
		}
		d.logger.Warn("webhook delivery attempt failed, retrying", "url", u.Redacted(), "attempt", attempt, "error", err)
	}
	return fmt.Errorf("webhook delivery exhausted retries: %w", lastErr)
}

func (d *WebhookDispatcher) deliverOnce(ctx context.Context, target, secret string, body []byte) error {
	deliveryID := uuid.New().String()
	ts := strconv.FormatInt(d.now().Unix(), 10)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, target, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Delivery-Id", deliveryID)
	req.Header.Set("X-Signature-Timestamp", ts)
	if secret != "" {
		req.Header.Set("X-Signature", signatureHeaderPrefix+signPayload(secret, ts, body))
	}

	resp, err := d.client.Do(req)
	if err != nil {
		return transientErr{err}
	}
	defer resp.Body.Close()

	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, config.WebhookMaxBodyBytes))

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return nil
	}
	if isTransientHTTPStatus(resp.StatusCode) {
		return transientErr{fmt.Errorf("webhook endpoint returned %d", resp.StatusCode)}
	}
	return fmt.Errorf("webhook endpoint returned %d", resp.StatusCode)
}

// signatureHeaderPrefix is the literal "sha256=" prefix §6 mandates on
// the X-Signature header, ahead of the hex-encoded HMAC.
const signatureHeaderPrefix = "sha256="

// signPayload computes the HMAC-SHA256 over "timestamp.body", the
// timestamp binding preventing replay beyond config.WebhookSignatureSkew
// once the receiver checks it against its own clock. The returned value
// is the bare hex digest; callers writing the wire header prepend
// signatureHeaderPrefix themselves.
func signPayload(secret, timestamp string, body []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(timestamp))
	mac.Write([]byte("."))
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}

// VerifySignature checks a received signature against secret, allowing
// clock skew up to config.WebhookSignatureSkew. Exposed for receivers
// under test and for any in-repo webhook consumer. signature may carry
// the §6 "sha256=" header prefix or be the bare hex digest; both forms
// are accepted so the round-trip property holds against the wire format.
func VerifySignature(secret, signature, timestamp string, body []byte, now time.Time) bool {
	sec, err := strconv.ParseInt(timestamp, 10, 64)
	if err != nil {
		return false
	}
	skew := now.Unix() - sec
	if skew < 0 {
		skew = -skew
	}
	if time.Duration(skew)*time.Second > config.WebhookSignatureSkew {
		return false
	}
	want := signPayload(secret, timestamp, body)
	got := strings.TrimPrefix(signature, signatureHeaderPrefix)
	return hmac.Equal([]byte(want), []byte(got))
}

type transientErr struct{ err error }

func (t transientErr) Error() string { return t.err.Error() }
func (t transientErr) Unwrap() error { return t.err }

func isRetryable(err error) bool {
	_, ok := err.(transientErr)
	return ok
}

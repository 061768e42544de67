// Package config provides environment-driven configuration for the
// platform, plus the constants that were previously scattered through
// the pipeline.
package config

import "time"

// Rule engine defaults (§4.4).
const (
	DefaultScheduleInterval = 30 * time.Second
	DefaultWorkerPoolSize   = 0 // 0 => runtime.NumCPU()
)

// SLA sweep cadence (§4.5).
const SLASweepInterval = 1 * time.Minute

// Cache TTLs (§4.2).
const (
	CacheTTLDeviceLatest = 60 * time.Second
	CacheTTLRulesEnabled = 10 * time.Minute
	AggregateTTLMin      = 30 * time.Second
	AggregateTTLMax      = 10 * time.Minute
)

// Webhook hardening defaults (§4.7).
const (
	WebhookConnectTimeout  = 5 * time.Second
	WebhookTotalTimeout    = 10 * time.Second
	WebhookMaxBodyBytes    = 1 << 20 // 1 MiB
	WebhookSignatureSkew   = 5 * time.Minute
	WebhookMaxRetries      = 3
	DefaultWebhookRatePerS = 1.0
	WebhookRateBurst       = 5
)

// Email defaults (§4.7).
const (
	EmailMaxRetries = 3
)

// EmailBackoff returns the retry delay for the given attempt (0-indexed),
// matching the spec's 5/25/125s schedule.
func EmailBackoff(attempt int) time.Duration {
	delays := []time.Duration{5 * time.Second, 25 * time.Second, 125 * time.Second}
	if attempt < 0 || attempt >= len(delays) {
		return delays[len(delays)-1]
	}
	return delays[attempt]
}

// WebhookBackoff returns the retry delay for the given attempt (0-indexed),
// matching the spec's 1/5/25s schedule.
func WebhookBackoff(attempt int) time.Duration {
	delays := []time.Duration{1 * time.Second, 5 * time.Second, 25 * time.Second}
	if attempt < 0 || attempt >= len(delays) {
		return delays[len(delays)-1]
	}
	return delays[attempt]
}

// Push stream replay window (§4.7).
const PushReplayWindow = 60 * time.Second

// Ingestion backoff cap for broker reconnects (§4.3).
const IngestionBackoffCap = 60 * time.Second

// Rule auto-disable threshold (§7): consecutive evaluation errors before
// a rule is automatically disabled.
const RuleAutoDisableThreshold = 5

// Default shutdown grace window (§5, §6 SHUTDOWN_GRACE_SECONDS).
const DefaultShutdownGrace = 30 * time.Second

// Default external-call timeouts (§5).
const (
	DefaultDBQueryTimeout     = 5 * time.Second
	DefaultBrokerOpTimeout    = 10 * time.Second
	DefaultSMTPTimeout        = 30 * time.Second
)

package notify

import (
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestValidateWebhookURL_RejectsPlainHTTPWithoutAllowlist(t *testing.T) {
	_, err := validateWebhookURL("http://example.com/hook", map[string]bool{})
	assert.Error(t, err)
}

func TestValidateWebhookURL_AllowsPlainHTTPForAllowlistedHost(t *testing.T) {
	u, err := validateWebhookURL("http://test-receiver.internal/hook", map[string]bool{"test-receiver.internal": true})
	assert.NoError(t, err)
	assert.Equal(t, "test-receiver.internal", u.Hostname())
}

func TestValidateWebhookURL_AcceptsHTTPS(t *testing.T) {
	_, err := validateWebhookURL("https://hooks.example.com/x", nil)
	assert.NoError(t, err)
}

func TestValidateWebhookURL_RejectsMissingHost(t *testing.T) {
	_, err := validateWebhookURL("https:///no-host", nil)
	assert.Error(t, err)
}

func TestIsBlockedAddr_RejectsLoopbackLinkLocalPrivateAndMetadata(t *testing.T) {
	blocked := []string{
		"127.0.0.1",
		"::1",
		"169.254.1.1",
		"169.254.169.254", // cloud metadata
		"10.0.0.5",
		"172.16.0.5",
		"192.168.1.5",
		"224.0.0.1", // multicast
		"0.0.0.0",
	}
	for _, ip := range blocked {
		assert.True(t, isBlockedAddr(net.ParseIP(ip)), "expected %s to be blocked", ip)
	}
}

func TestIsBlockedAddr_AllowsPublicAddress(t *testing.T) {
	assert.False(t, isBlockedAddr(net.ParseIP("8.8.8.8")))
}

func TestSignatureRoundTrip_VerifiesWithinSkew(t *testing.T) {
	secret := "whsec_test"
	body := []byte(`{"alert_id":"abc"}`)
	now := time.Unix(1_700_000_000, 0)
	ts := "1700000000"

	sig := signPayload(secret, ts, body)

	assert.True(t, VerifySignature(secret, sig, ts, body, now))
}

func TestSignatureRoundTrip_RejectsWrongSecret(t *testing.T) {
	body := []byte(`{"alert_id":"abc"}`)
	now := time.Unix(1_700_000_000, 0)
	ts := "1700000000"

	sig := signPayload("correct-secret", ts, body)

	assert.False(t, VerifySignature("wrong-secret", sig, ts, body, now))
}

func TestSignatureRoundTrip_RejectsTamperedBody(t *testing.T) {
	secret := "whsec_test"
	ts := "1700000000"
	now := time.Unix(1_700_000_000, 0)

	sig := signPayload(secret, ts, []byte(`{"alert_id":"abc"}`))

	assert.False(t, VerifySignature(secret, sig, ts, []byte(`{"alert_id":"tampered"}`), now))
}

func TestSignatureRoundTrip_VerifiesAgainstPrefixedWireHeader(t *testing.T) {
	secret := "whsec_test"
	body := []byte(`{"alert_id":"abc"}`)
	now := time.Unix(1_700_000_000, 0)
	ts := "1700000000"

	header := signatureHeaderPrefix + signPayload(secret, ts, body)

	assert.True(t, VerifySignature(secret, header, ts, body, now))
}

func TestSignatureRoundTrip_RejectsStaleTimestamp(t *testing.T) {
	secret := "whsec_test"
	body := []byte(`{"alert_id":"abc"}`)
	ts := "1700000000"
	farFuture := time.Unix(1_700_000_000, 0).Add(1 * time.Hour)

	sig := signPayload(secret, ts, body)

	assert.False(t, VerifySignature(secret, sig, ts, body, farFuture))
}

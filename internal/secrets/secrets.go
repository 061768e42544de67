// Package secrets resolves the HMAC signing secret for a webhook action
// (§4.7 "Signing"). A secret can live directly on the Action row, or be
// looked up from a 1Password vault when one is configured — grounded on
// the teacher's control-plane/internal/secrets package (1Password
// Connect-backed key storage with a local fallback), narrowed here to a
// single read-only lookup instead of full SSH-key lifecycle management.
package secrets

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/1Password/connect-sdk-go/connect"

	"github.com/google/uuid"
)

// Resolver returns the signing secret for a webhook action.
type Resolver interface {
	ResolveSecret(ctx context.Context, tenantID, actionID uuid.UUID, inline string) (string, error)
}

// StaticResolver returns the secret stored inline on the action (the
// default when no vault is configured).
type StaticResolver struct{}

func (StaticResolver) ResolveSecret(_ context.Context, _, _ uuid.UUID, inline string) (string, error) {
	return inline, nil
}

// OnePasswordConfig configures the 1Password Connect-backed resolver.
type OnePasswordConfig struct {
	Host    string // OP_CONNECT_HOST
	Token   string // OP_CONNECT_TOKEN
	VaultID string // OP_VAULT_ID
}

// OnePasswordResolver looks up a per-action secret item in a 1Password
// vault, titled by the action id, falling back to the inline secret
// when the vault holds nothing under that title. Grounded on
// OnePasswordKeyStore.getKeyFromVault's GetItemsByTitle/GetItem shape.
type OnePasswordResolver struct {
	client  connect.Client
	vaultID string
	logger  *slog.Logger

	mu    sync.RWMutex
	cache map[uuid.UUID]cacheEntry
}

type cacheEntry struct {
	secret string
	at     time.Time
}

const cacheTTL = 5 * time.Minute

// NewOnePasswordResolver builds a resolver backed by the Connect API.
func NewOnePasswordResolver(cfg OnePasswordConfig, logger *slog.Logger) (*OnePasswordResolver, error) {
	if cfg.Host == "" || cfg.Token == "" || cfg.VaultID == "" {
		return nil, fmt.Errorf("1Password configuration incomplete: host, token, and vault_id are required")
	}
	client := connect.NewClientWithUserAgent(cfg.Host, cfg.Token, "iiot-platform")
	return &OnePasswordResolver{
		client:  client,
		vaultID: cfg.VaultID,
		logger:  logger.With("component", "secrets_1password"),
		cache:   make(map[uuid.UUID]cacheEntry),
	}, nil
}

// ResolveSecret looks up the action's secret item by title
// "webhook-secret-{actionID}"; on any lookup failure it logs and falls
// back to the inline secret rather than failing the dispatch.
func (r *OnePasswordResolver) ResolveSecret(ctx context.Context, tenantID, actionID uuid.UUID, inline string) (string, error) {
	r.mu.RLock()
	if e, ok := r.cache[actionID]; ok && time.Since(e.at) < cacheTTL {
		r.mu.RUnlock()
		return e.secret, nil
	}
	r.mu.RUnlock()

	title := "webhook-secret-" + actionID.String()
	items, err := r.client.GetItemsByTitle(title, r.vaultID)
	if err != nil || len(items) == 0 {
		if err != nil {
			r.logger.Warn("1Password lookup failed, using inline secret", "action_id", actionID, "error", err)
		}
		return inline, nil
	}

	item, err := r.client.GetItem(items[0].ID, r.vaultID)
	if err != nil {
		r.logger.Warn("1Password item fetch failed, using inline secret", "action_id", actionID, "error", err)
		return inline, nil
	}

	for _, f := range item.Fields {
		if f.Label == "secret" || f.Purpose == "PASSWORD" {
			r.mu.Lock()
			r.cache[actionID] = cacheEntry{secret: f.Value, at: time.Now()}
			r.mu.Unlock()
			return f.Value, nil
		}
	}
	return inline, nil
}

// Package notify implements C7: alert notification dispatch across
// email, webhook, and push channels, plus rule-configured Action
// fan-out and the live push stream.
package notify

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/iiot-platform/core/internal/secrets"
	"github.com/iiot-platform/core/pkg/types"
)

// ContactStore resolves a principal to its configured destinations.
type ContactStore interface {
	GetUserContact(ctx context.Context, tenantID, userID uuid.UUID) (*types.UserContact, error)
	RecordDeliveryAttempt(ctx context.Context, tenantID, alertID uuid.UUID, a types.DeliveryAttempt) error
	GetAlertByID(ctx context.Context, alertID uuid.UUID) (*types.Alert, error)
}

// Hub aggregates the three channel dispatchers and the push stream
// into a single entry point used by both C5 (alertcore.Notifier) and
// C6 (escalation.Dispatcher).
type Hub struct {
	store   ContactStore
	secrets secrets.Resolver
	email   *EmailDispatcher
	webhook *WebhookDispatcher
	push    *PushHub
	logger  *slog.Logger
	now     func() time.Time
}

// NewHub builds the notification hub. secretResolver may be
// secrets.StaticResolver{} when no external vault is configured.
func NewHub(store ContactStore, secretResolver secrets.Resolver, email *EmailDispatcher, webhook *WebhookDispatcher, push *PushHub, logger *slog.Logger) *Hub {
	return &Hub{
		store:   store,
		secrets: secretResolver,
		email:   email,
		webhook: webhook,
		push:    push,
		logger:  logger.With("component", "notify_hub"),
		now:     time.Now,
	}
}

// Dispatch implements escalation.Dispatcher: deliver event to recipient
// over channel, resolving recipient's destination address first.
func (h *Hub) Dispatch(ctx context.Context, tenantID, recipient uuid.UUID, channel types.Channel, event types.NotificationEvent) error {
	contact, err := h.store.GetUserContact(ctx, tenantID, recipient)
	if err != nil {
		return err
	}
	if contact == nil {
		h.logger.Warn("no contact on file for recipient", "tenant_id", tenantID, "recipient", recipient, "channel", channel)
		return nil
	}

	var sendErr error
	var destination string
	switch channel {
	case types.ChannelEmail:
		destination = contact.Email
		if destination == "" {
			h.logger.Warn("recipient has no email on file", "recipient", recipient)
			return nil
		}
		sendErr = h.email.Send(ctx, destination, event)

	case types.ChannelWebhook:
		destination = contact.WebhookURL
		if destination == "" {
			h.logger.Warn("recipient has no webhook url on file", "recipient", recipient)
			return nil
		}
		secret, serr := h.secrets.ResolveSecret(ctx, tenantID, recipient, contact.WebhookSecret)
		if serr != nil {
			secret = contact.WebhookSecret
		}
		sendErr = h.webhook.Send(ctx, destination, secret, event)

	case types.ChannelPush:
		destination = contact.PushChannel
		h.push.Publish(tenantID, recipient, event.Event, event)

	default:
		return nil
	}

	h.recordAttempt(ctx, tenantID, event.AlertID, channel, destination, sendErr)
	return sendErr
}

// DispatchToAction delivers event to a rule-configured Action
// (EMAIL/WEBHOOK/PUSH), the primary notification path distinct from
// escalation/on-call human-recipient dispatch.
func (h *Hub) DispatchToAction(ctx context.Context, action types.Action, event types.NotificationEvent) error {
	var sendErr error
	var destination string
	channel := actionChannel(action.Type)

	switch action.Type {
	case types.ActionEmail:
		destination = action.Address
		sendErr = h.email.Send(ctx, destination, event)
	case types.ActionWebhook:
		destination = action.URL
		secret, serr := h.secrets.ResolveSecret(ctx, action.TenantID, action.ID, action.Secret)
		if serr != nil {
			secret = action.Secret
		}
		sendErr = h.webhook.Send(ctx, destination, secret, event)
	case types.ActionPush:
		destination = action.Channel
		h.push.PublishTenant(action.TenantID, event.Event, event)
	default:
		return nil
	}

	h.recordAttempt(ctx, action.TenantID, event.AlertID, channel, destination, sendErr)
	return sendErr
}

// NotifyAlertEvent implements alertcore.Notifier: every lifecycle event
// is always pushed to the tenant's live stream, independent of the
// escalation/channel fan-out path (decided Open Question #3).
func (h *Hub) NotifyAlertEvent(ctx context.Context, tenantID uuid.UUID, kind types.EventKind, alert *types.Alert) {
	h.push.PublishTenant(tenantID, kind, alert)
}

// OnSLABreach implements alertcore.BreachNotifier: an SLA breach is
// pushed the same way as lifecycle events, per the decided scope of
// the push stream (it carries every state-affecting event, §4.6/§4.7
// Open Question #3).
func (h *Hub) OnSLABreach(ctx context.Context, alertID uuid.UUID) {
	a, err := h.store.GetAlertByID(ctx, alertID)
	if err != nil {
		h.logger.Error("failed to load alert for sla breach push", "alert_id", alertID, "error", err)
		return
	}
	if a == nil {
		return
	}
	h.push.PublishTenant(a.TenantID, types.EventSLABreached, a)
}

func (h *Hub) recordAttempt(ctx context.Context, tenantID, alertID uuid.UUID, channel types.Channel, destination string, sendErr error) {
	status := types.DeliverySent
	errMsg := ""
	if sendErr != nil {
		status = types.DeliveryFailed
		errMsg = sendErr.Error()
	}
	attempt := types.DeliveryAttempt{
		ID:          uuid.New(),
		Channel:     channel,
		Recipient:   destination,
		Status:      status,
		Error:       errMsg,
		AttemptedAt: h.now(),
	}
	if err := h.store.RecordDeliveryAttempt(ctx, tenantID, alertID, attempt); err != nil {
		h.logger.Error("failed to record delivery attempt", "error", err)
	}
}

func actionChannel(t types.ActionType) types.Channel {
	switch t {
	case types.ActionEmail:
		return types.ChannelEmail
	case types.ActionWebhook:
		return types.ChannelWebhook
	case types.ActionPush:
		return types.ChannelPush
	default:
		return ""
	}
}

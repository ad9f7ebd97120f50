package payment

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/workmoa/server/internal/shared/config"
	"github.com/workmoa/server/internal/utils/metrics"
)

// Webhook event types and statuses as the provider sends them.
const (
	EventPaymentStatusChanged = "PAYMENT_STATUS_CHANGED"
	EventDepositCallback      = "DEPOSIT_CALLBACK"

	webhookStatusDone      = "DONE"
	webhookStatusCancelled = "CANCELED"
)

// dedupTTL bounds the redis fast path. The database dedup row is the
// durable record; redis only absorbs tight retry bursts.
const dedupTTL = 24 * time.Hour

// WebhookConfig configures signature verification. The policy is injected
// here once at wiring time; verification never consults the environment.
type WebhookConfig struct {
	Secret string
	Policy config.SecurityPolicy
}

// TransitionService is the slice of the payment service the webhook
// processor drives.
type TransitionService interface {
	MarkDone(ctx context.Context, paymentKey string) error
	ConfirmDeposit(ctx context.Context, tossOrderID string) error
	CancelByProvider(ctx context.Context, p *Payment, raw string) error
}

// WebhookProcessor verifies, deduplicates and dispatches provider webhooks.
// It never returns an error for unknown references or unknown event types:
// the provider must not be driven into an endless retry loop by payloads
// about payments we do not own.
type WebhookProcessor struct {
	cfg     WebhookConfig
	service TransitionService
	repo    Repository
	redis   redis.UniversalClient // nil disables the fast path
	logger  *zap.Logger
	metrics *metrics.Metrics
}

// NewWebhookProcessor creates a webhook processor.
func NewWebhookProcessor(
	cfg WebhookConfig,
	service TransitionService,
	repo Repository,
	redisClient redis.UniversalClient,
	logger *zap.Logger,
	m *metrics.Metrics,
) *WebhookProcessor {
	return &WebhookProcessor{
		cfg:     cfg,
		service: service,
		repo:    repo,
		redis:   redisClient,
		logger:  logger,
		metrics: m,
	}
}

type webhookPayload struct {
	EventType string      `json:"eventType"`
	Data      webhookData `json:"data"`
}

type webhookData struct {
	PaymentKey *string `json:"paymentKey"`
	OrderID    string  `json:"orderId"` // provider-side order id
	Status     string  `json:"status"`
}

// Process handles one webhook delivery. The returned error is one of the
// package sentinels; the handler maps ErrInvalidSignature to 401 and
// ErrMalformedPayload to 400, everything else accepted with 200.
func (w *WebhookProcessor) Process(ctx context.Context, body []byte, signature string) error {
	if err := w.verifySignature(body, signature); err != nil {
		w.count("unknown", "rejected_signature")
		return err
	}

	// The payload must be a JSON object. Unmarshal into a map first so a
	// bare null, which decodes into a struct without error, is still caught.
	var object map[string]json.RawMessage
	if err := json.Unmarshal(body, &object); err != nil || object == nil {
		w.count("unknown", "malformed")
		return ErrMalformedPayload
	}

	var payload webhookPayload
	if err := json.Unmarshal(body, &payload); err != nil {
		w.count("unknown", "malformed")
		return ErrMalformedPayload
	}
	// A missing event type is an unknown event, not a protocol violation.
	// Rejecting it would drive the provider into retries over a payload we
	// will never act on.
	if payload.EventType == "" {
		w.count("unknown", "unknown_event")
		w.logger.Warn("webhook without event type ignored")
		return nil
	}

	if dup := w.deduplicate(ctx, body, &payload); dup {
		w.count(payload.EventType, "duplicate")
		w.logger.Info("duplicate webhook delivery ignored",
			zap.String("event_type", payload.EventType))
		return nil
	}

	switch payload.EventType {
	case EventPaymentStatusChanged:
		return w.handleStatusChanged(ctx, body, &payload)
	case EventDepositCallback:
		return w.handleDepositCallback(ctx, body, &payload)
	default:
		w.count(payload.EventType, "unknown_event")
		w.logger.Warn("unknown webhook event type",
			zap.String("event_type", payload.EventType))
		return nil
	}
}

// verifySignature checks the HMAC-SHA256 of the raw body. The policy only
// decides what happens when no secret is configured: strict fails closed,
// permissive lets the traffic through but logs it so misconfiguration is
// visible. Once a secret exists, a mismatch is rejected under either policy.
func (w *WebhookProcessor) verifySignature(body []byte, signature string) error {
	if w.cfg.Secret == "" {
		if w.cfg.Policy == config.PolicyStrict {
			return ErrWebhookSecretUnset
		}
		w.logger.Warn("webhook accepted without secret configured, permissive policy")
		return nil
	}

	mac := hmac.New(sha256.New, []byte(w.cfg.Secret))
	mac.Write(body)
	expected := mac.Sum(nil)

	provided, err := hex.DecodeString(signature)
	if err != nil || !hmac.Equal(expected, provided) {
		w.logger.Warn("webhook signature verification failed")
		return ErrInvalidSignature
	}
	return nil
}

// deduplicate returns true if this delivery was already processed. Redis
// absorbs immediate retries; the unique event hash row is the durable guard.
func (w *WebhookProcessor) deduplicate(ctx context.Context, body []byte, payload *webhookPayload) bool {
	sum := sha256.Sum256(body)
	hash := hex.EncodeToString(sum[:])

	if w.redis != nil {
		ok, err := w.redis.SetNX(ctx, "webhook:event:"+hash, 1, dedupTTL).Result()
		if err != nil {
			// Limiter outage must not drop webhooks; fall through to the DB guard.
			w.logger.Warn("webhook dedup cache unavailable", zap.Error(err))
		} else if !ok {
			return true
		}
	}

	err := w.repo.RecordWebhookEvent(ctx, &WebhookEvent{
		EventHash:  hash,
		EventType:  payload.EventType,
		Status:     payload.Data.Status,
		ReceivedAt: time.Now(),
	})
	if errors.Is(err, ErrDuplicateDelivery) {
		return true
	}
	if err != nil {
		w.logger.Error("could not record webhook event", zap.Error(err))
	}
	return false
}

func (w *WebhookProcessor) handleStatusChanged(ctx context.Context, body []byte, payload *webhookPayload) error {
	if payload.Data.PaymentKey == nil || *payload.Data.PaymentKey == "" {
		w.count(payload.EventType, "malformed")
		w.logger.Warn("status change webhook without payment key")
		return nil
	}
	key := *payload.Data.PaymentKey

	p, err := w.repo.GetByPaymentKey(ctx, key)
	if err != nil {
		if errors.Is(err, ErrPaymentNotFound) {
			w.count(payload.EventType, "unknown_reference")
			w.logger.Info("webhook for unknown payment key ignored",
				zap.String("payment_key", key))
			return nil
		}
		return err
	}

	switch payload.Data.Status {
	case webhookStatusDone:
		if err := w.service.MarkDone(ctx, key); err != nil {
			return err
		}
	case webhookStatusCancelled:
		if err := w.service.CancelByProvider(ctx, p, string(body)); err != nil {
			return err
		}
	default:
		w.count(payload.EventType, "unknown_status")
		w.logger.Warn("unknown webhook payment status",
			zap.String("status", payload.Data.Status))
		return nil
	}

	w.count(payload.EventType, "processed")
	return nil
}

func (w *WebhookProcessor) handleDepositCallback(ctx context.Context, body []byte, payload *webhookPayload) error {
	if payload.Data.OrderID == "" {
		w.count(payload.EventType, "malformed")
		w.logger.Warn("deposit callback without order id")
		return nil
	}

	p, err := w.repo.GetByTossOrderID(ctx, payload.Data.OrderID)
	if err != nil {
		if errors.Is(err, ErrPaymentNotFound) {
			w.count(payload.EventType, "unknown_reference")
			w.logger.Info("deposit callback for unknown order ignored",
				zap.String("toss_order_id", payload.Data.OrderID))
			return nil
		}
		return err
	}

	switch payload.Data.Status {
	case webhookStatusDone:
		if err := w.service.ConfirmDeposit(ctx, p.TossOrderID); err != nil {
			return err
		}
	case webhookStatusCancelled:
		if err := w.service.CancelByProvider(ctx, p, string(body)); err != nil {
			return err
		}
	default:
		w.count(payload.EventType, "unknown_status")
		w.logger.Warn("unknown deposit callback status",
			zap.String("status", payload.Data.Status))
		return nil
	}

	w.count(payload.EventType, "processed")
	return nil
}

func (w *WebhookProcessor) count(eventType, outcome string) {
	if w.metrics != nil {
		w.metrics.WebhooksTotal.WithLabelValues(eventType, outcome).Inc()
	}
}

package payment

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/workmoa/server/internal/shared/config"
)

type MockTransitionService struct {
	mock.Mock
}

func (m *MockTransitionService) MarkDone(ctx context.Context, paymentKey string) error {
	args := m.Called(ctx, paymentKey)
	return args.Error(0)
}

func (m *MockTransitionService) ConfirmDeposit(ctx context.Context, tossOrderID string) error {
	args := m.Called(ctx, tossOrderID)
	return args.Error(0)
}

func (m *MockTransitionService) CancelByProvider(ctx context.Context, p *Payment, raw string) error {
	args := m.Called(ctx, p, raw)
	return args.Error(0)
}

const testSecret = "whsec_test"

func sign(body []byte) string {
	mac := hmac.New(sha256.New, []byte(testSecret))
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}

func newProcessor(policy config.SecurityPolicy) (*WebhookProcessor, *MockTransitionService, *MockRepository) {
	svc := new(MockTransitionService)
	repo := new(MockRepository)
	proc := NewWebhookProcessor(WebhookConfig{
		Secret: testSecret,
		Policy: policy,
	}, svc, repo, nil, zap.NewNop(), nil)
	return proc, svc, repo
}

func statusChangedBody(paymentKey, status string) []byte {
	return []byte(fmt.Sprintf(
		`{"eventType":"PAYMENT_STATUS_CHANGED","data":{"paymentKey":%q,"orderId":"PAY-1756600000000-deadbeef","status":%q}}`,
		paymentKey, status))
}

func depositBody(tossOrderID, status string) []byte {
	return []byte(fmt.Sprintf(
		`{"eventType":"DEPOSIT_CALLBACK","data":{"paymentKey":null,"orderId":%q,"status":%q}}`,
		tossOrderID, status))
}

func TestWebhookSignature(t *testing.T) {
	ctx := context.Background()
	body := statusChangedBody("pk1", "DONE")

	t.Run("strict rejects a bad signature", func(t *testing.T) {
		proc, svc, repo := newProcessor(config.PolicyStrict)

		err := proc.Process(ctx, body, "deadbeef")
		assert.ErrorIs(t, err, ErrInvalidSignature)
		svc.AssertNotCalled(t, "MarkDone", mock.Anything, mock.Anything)
		repo.AssertNotCalled(t, "RecordWebhookEvent", mock.Anything, mock.Anything)
	})

	t.Run("strict rejects a missing signature", func(t *testing.T) {
		proc, _, _ := newProcessor(config.PolicyStrict)
		assert.ErrorIs(t, proc.Process(ctx, body, ""), ErrInvalidSignature)
	})

	t.Run("strict rejects without a configured secret", func(t *testing.T) {
		svc := new(MockTransitionService)
		repo := new(MockRepository)
		proc := NewWebhookProcessor(WebhookConfig{Policy: config.PolicyStrict}, svc, repo, nil, zap.NewNop(), nil)

		assert.ErrorIs(t, proc.Process(ctx, body, sign(body)), ErrWebhookSecretUnset)
	})

	t.Run("strict accepts a valid signature", func(t *testing.T) {
		proc, svc, repo := newProcessor(config.PolicyStrict)
		p := &Payment{TossOrderID: "PAY-1756600000000-deadbeef", Status: PaymentStatusPending}
		repo.On("RecordWebhookEvent", ctx, mock.AnythingOfType("*payment.WebhookEvent")).Return(nil)
		repo.On("GetByPaymentKey", ctx, "pk1").Return(p, nil)
		svc.On("MarkDone", ctx, "pk1").Return(nil)

		require.NoError(t, proc.Process(ctx, body, sign(body)))
		svc.AssertCalled(t, "MarkDone", ctx, "pk1")
	})

	t.Run("permissive still rejects a forged signature when a secret is set", func(t *testing.T) {
		proc, svc, repo := newProcessor(config.PolicyPermissive)

		err := proc.Process(ctx, body, "0000000000000000")
		assert.ErrorIs(t, err, ErrInvalidSignature)
		svc.AssertNotCalled(t, "MarkDone", mock.Anything, mock.Anything)
		repo.AssertNotCalled(t, "RecordWebhookEvent", mock.Anything, mock.Anything)
	})

	t.Run("permissive rejects a missing signature when a secret is set", func(t *testing.T) {
		proc, _, _ := newProcessor(config.PolicyPermissive)
		assert.ErrorIs(t, proc.Process(ctx, body, ""), ErrInvalidSignature)
	})

	t.Run("permissive accepts only when no secret is configured", func(t *testing.T) {
		svc := new(MockTransitionService)
		repo := new(MockRepository)
		proc := NewWebhookProcessor(WebhookConfig{Policy: config.PolicyPermissive}, svc, repo, nil, zap.NewNop(), nil)
		p := &Payment{TossOrderID: "PAY-1756600000000-deadbeef", Status: PaymentStatusPending}
		repo.On("RecordWebhookEvent", ctx, mock.AnythingOfType("*payment.WebhookEvent")).Return(nil)
		repo.On("GetByPaymentKey", ctx, "pk1").Return(p, nil)
		svc.On("MarkDone", ctx, "pk1").Return(nil)

		require.NoError(t, proc.Process(ctx, body, ""))
		svc.AssertCalled(t, "MarkDone", ctx, "pk1")
	})
}

func TestWebhookPayloadValidation(t *testing.T) {
	ctx := context.Background()

	t.Run("malformed JSON is rejected", func(t *testing.T) {
		proc, _, _ := newProcessor(config.PolicyStrict)
		body := []byte(`{"eventType":`)
		assert.ErrorIs(t, proc.Process(ctx, body, sign(body)), ErrMalformedPayload)
	})

	t.Run("non-object payload is rejected", func(t *testing.T) {
		proc, _, _ := newProcessor(config.PolicyStrict)
		for _, raw := range []string{`[1,2,3]`, `"hello"`, `42`, `null`} {
			body := []byte(raw)
			assert.ErrorIs(t, proc.Process(ctx, body, sign(body)), ErrMalformedPayload, raw)
		}
	})

	t.Run("object without event type is accepted and ignored", func(t *testing.T) {
		proc, svc, repo := newProcessor(config.PolicyStrict)
		body := []byte(`{"data":{}}`)

		require.NoError(t, proc.Process(ctx, body, sign(body)))
		svc.AssertNotCalled(t, "MarkDone", mock.Anything, mock.Anything)
		repo.AssertNotCalled(t, "RecordWebhookEvent", mock.Anything, mock.Anything)
	})
}

func TestWebhookDispatch(t *testing.T) {
	ctx := context.Background()

	t.Run("unknown event type is accepted and ignored", func(t *testing.T) {
		proc, svc, repo := newProcessor(config.PolicyStrict)
		body := []byte(`{"eventType":"SOMETHING_NEW","data":{}}`)
		repo.On("RecordWebhookEvent", ctx, mock.Anything).Return(nil)

		require.NoError(t, proc.Process(ctx, body, sign(body)))
		svc.AssertExpectations(t)
	})

	t.Run("unknown payment key is accepted and ignored", func(t *testing.T) {
		proc, svc, repo := newProcessor(config.PolicyStrict)
		body := statusChangedBody("pk-foreign", "DONE")
		repo.On("RecordWebhookEvent", ctx, mock.Anything).Return(nil)
		repo.On("GetByPaymentKey", ctx, "pk-foreign").Return(nil, ErrPaymentNotFound)

		require.NoError(t, proc.Process(ctx, body, sign(body)))
		svc.AssertNotCalled(t, "MarkDone", mock.Anything, mock.Anything)
	})

	t.Run("duplicate delivery is dropped before dispatch", func(t *testing.T) {
		proc, svc, repo := newProcessor(config.PolicyStrict)
		body := statusChangedBody("pk1", "DONE")
		repo.On("RecordWebhookEvent", ctx, mock.Anything).Return(ErrDuplicateDelivery)

		require.NoError(t, proc.Process(ctx, body, sign(body)))
		svc.AssertNotCalled(t, "MarkDone", mock.Anything, mock.Anything)
	})

	t.Run("status CANCELED dispatches provider cancellation", func(t *testing.T) {
		proc, svc, repo := newProcessor(config.PolicyStrict)
		body := statusChangedBody("pk1", "CANCELED")
		p := &Payment{TossOrderID: "PAY-1756600000000-deadbeef", Status: PaymentStatusDone}
		repo.On("RecordWebhookEvent", ctx, mock.Anything).Return(nil)
		repo.On("GetByPaymentKey", ctx, "pk1").Return(p, nil)
		svc.On("CancelByProvider", ctx, p, string(body)).Return(nil)

		require.NoError(t, proc.Process(ctx, body, sign(body)))
		svc.AssertCalled(t, "CancelByProvider", ctx, p, string(body))
	})

	t.Run("deposit DONE dispatches deposit confirmation", func(t *testing.T) {
		proc, svc, repo := newProcessor(config.PolicyStrict)
		body := depositBody("PAY-1756600000000-cafe0123", "DONE")
		p := &Payment{TossOrderID: "PAY-1756600000000-cafe0123", Status: PaymentStatusReady}
		repo.On("RecordWebhookEvent", ctx, mock.Anything).Return(nil)
		repo.On("GetByTossOrderID", ctx, p.TossOrderID).Return(p, nil)
		svc.On("ConfirmDeposit", ctx, p.TossOrderID).Return(nil)

		require.NoError(t, proc.Process(ctx, body, sign(body)))
		svc.AssertCalled(t, "ConfirmDeposit", ctx, p.TossOrderID)
	})

	t.Run("deposit CANCELED dispatches provider cancellation", func(t *testing.T) {
		proc, svc, repo := newProcessor(config.PolicyStrict)
		body := depositBody("PAY-1756600000000-cafe0123", "CANCELED")
		p := &Payment{TossOrderID: "PAY-1756600000000-cafe0123", Status: PaymentStatusReady}
		repo.On("RecordWebhookEvent", ctx, mock.Anything).Return(nil)
		repo.On("GetByTossOrderID", ctx, p.TossOrderID).Return(p, nil)
		svc.On("CancelByProvider", ctx, p, string(body)).Return(nil)

		require.NoError(t, proc.Process(ctx, body, sign(body)))
	})

	t.Run("deposit callback for an unknown order is ignored", func(t *testing.T) {
		proc, svc, repo := newProcessor(config.PolicyStrict)
		body := depositBody("PAY-0-unknown0", "DONE")
		repo.On("RecordWebhookEvent", ctx, mock.Anything).Return(nil)
		repo.On("GetByTossOrderID", ctx, "PAY-0-unknown0").Return(nil, ErrPaymentNotFound)

		require.NoError(t, proc.Process(ctx, body, sign(body)))
		svc.AssertNotCalled(t, "ConfirmDeposit", mock.Anything, mock.Anything)
	})
}

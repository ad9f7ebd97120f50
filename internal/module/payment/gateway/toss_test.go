package gateway

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) *TossClient {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)
	return NewTossClient(TossConfig{
		BaseURL:   server.URL,
		SecretKey: "test_sk_abc",
	}, zap.NewNop())
}

func TestTossApprove(t *testing.T) {
	ctx := context.Background()

	t.Run("card approval", func(t *testing.T) {
		client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, http.MethodPost, r.Method)
			assert.Equal(t, "/v1/payments/confirm", r.URL.Path)
			expectedAuth := "Basic " + base64.StdEncoding.EncodeToString([]byte("test_sk_abc:"))
			assert.Equal(t, expectedAuth, r.Header.Get("Authorization"))

			var body map[string]any
			require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
			assert.Equal(t, "pk1", body["paymentKey"])
			assert.Equal(t, "PAY-1756600000000-deadbeef", body["orderId"])
			assert.Equal(t, float64(50000), body["amount"])

			w.Header().Set("Content-Type", "application/json")
			w.Write([]byte(`{
				"paymentKey": "pk1",
				"orderId": "PAY-1756600000000-deadbeef",
				"method": "카드",
				"status": "DONE",
				"totalAmount": 50000,
				"approvedAt": "2026-08-31T10:00:00+09:00",
				"receipt": {"url": "https://dashboard.tosspayments.com/receipt/1"}
			}`))
		})

		result, err := client.Approve(ctx, ApproveRequest{
			PaymentKey: "pk1",
			OrderID:    "PAY-1756600000000-deadbeef",
			Amount:     50000,
		})
		require.NoError(t, err)
		assert.Equal(t, MethodCard, result.Method)
		assert.Equal(t, int64(50000), result.TotalAmount)
		assert.Equal(t, "https://dashboard.tosspayments.com/receipt/1", result.ReceiptURL)
		require.NotNil(t, result.ApprovedAt)
		assert.NotEmpty(t, result.Raw)
		assert.Nil(t, result.VirtualAccount)
	})

	t.Run("virtual account approval", func(t *testing.T) {
		client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Content-Type", "application/json")
			w.Write([]byte(`{
				"paymentKey": "pk2",
				"orderId": "PAY-1756600000000-cafe0123",
				"method": "가상계좌",
				"status": "WAITING_FOR_DEPOSIT",
				"totalAmount": 120000,
				"virtualAccount": {
					"bankCode": "088",
					"bank": "신한은행",
					"accountNumber": "56211234567890",
					"customerName": "워크모아",
					"dueDate": "2026-09-03T23:59:59+09:00"
				}
			}`))
		})

		result, err := client.Approve(ctx, ApproveRequest{PaymentKey: "pk2", OrderID: "PAY-1756600000000-cafe0123", Amount: 120000})
		require.NoError(t, err)
		assert.Equal(t, MethodVirtualAccount, result.Method)
		require.NotNil(t, result.VirtualAccount)
		assert.Equal(t, "088", result.VirtualAccount.BankCode)
		assert.Equal(t, "56211234567890", result.VirtualAccount.AccountNumber)
		require.NotNil(t, result.VirtualAccount.DueDate)
	})

	t.Run("provider rejection maps to Error", func(t *testing.T) {
		client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusBadRequest)
			w.Write([]byte(`{"code": "NOT_FOUND_PAYMENT", "message": "존재하지 않는 결제입니다."}`))
		})

		_, err := client.Approve(ctx, ApproveRequest{PaymentKey: "bad", OrderID: "x", Amount: 1})
		var provErr *Error
		require.ErrorAs(t, err, &provErr)
		assert.Equal(t, "NOT_FOUND_PAYMENT", provErr.Code)
		assert.Equal(t, "존재하지 않는 결제입니다.", provErr.Message)
	})

	t.Run("unparseable error body keeps the status code", func(t *testing.T) {
		client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusBadGateway)
			w.Write([]byte(`upstream exploded`))
		})

		_, err := client.Approve(ctx, ApproveRequest{PaymentKey: "pk", OrderID: "x", Amount: 1})
		var provErr *Error
		require.ErrorAs(t, err, &provErr)
		assert.Equal(t, "HTTP_502", provErr.Code)
	})
}

func TestTossCancel(t *testing.T) {
	ctx := context.Background()

	t.Run("success", func(t *testing.T) {
		client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, "/v1/payments/pk1/cancel", r.URL.Path)

			var body map[string]any
			require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
			assert.Equal(t, "buyer request", body["cancelReason"])

			w.Header().Set("Content-Type", "application/json")
			w.Write([]byte(`{"paymentKey": "pk1", "status": "CANCELED"}`))
		})

		result, err := client.Cancel(ctx, CancelRequest{PaymentKey: "pk1", Reason: "buyer request"})
		require.NoError(t, err)
		assert.Equal(t, "CANCELED", result.Status)
		assert.NotEmpty(t, result.Raw)
	})

	t.Run("provider rejection", func(t *testing.T) {
		client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusBadRequest)
			w.Write([]byte(`{"code": "ALREADY_CANCELED_PAYMENT", "message": "이미 취소된 결제입니다."}`))
		})

		_, err := client.Cancel(ctx, CancelRequest{PaymentKey: "pk1", Reason: "r"})
		var provErr *Error
		require.ErrorAs(t, err, &provErr)
		assert.Equal(t, "ALREADY_CANCELED_PAYMENT", provErr.Code)
	})
}

func TestNormalizeMethod(t *testing.T) {
	assert.Equal(t, MethodCard, normalizeMethod("카드"))
	assert.Equal(t, MethodCard, normalizeMethod("CARD"))
	assert.Equal(t, MethodVirtualAccount, normalizeMethod("가상계좌"))
	assert.Equal(t, MethodTransfer, normalizeMethod("계좌이체"))
	assert.Equal(t, MethodMobile, normalizeMethod("휴대폰"))
	assert.Equal(t, "PAYPAL", normalizeMethod("PAYPAL"))
}

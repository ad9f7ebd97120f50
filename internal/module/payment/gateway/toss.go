package gateway

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/sony/gobreaker/v2"
	"go.uber.org/zap"
)

// TossConfig configures the Toss Payments HTTP adapter.
type TossConfig struct {
	BaseURL   string
	SecretKey string
	Timeout   time.Duration
}

// TossClient is the Toss Payments implementation of the Gateway port. All
// calls go through a circuit breaker; transport failures trip it, business
// rejections from the provider do not.
type TossClient struct {
	cfg     TossConfig
	client  *http.Client
	breaker *gobreaker.CircuitBreaker[*tossResponse]
	logger  *zap.Logger
}

type tossResponse struct {
	status int
	body   []byte
}

// NewTossClient creates a Toss Payments gateway client.
func NewTossClient(cfg TossConfig, logger *zap.Logger) *TossClient {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}

	settings := gobreaker.Settings{
		Name:        "toss-payments",
		MaxRequests: 1,
		Interval:    60 * time.Second,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
	}

	return &TossClient{
		cfg:     cfg,
		client:  &http.Client{Timeout: cfg.Timeout},
		breaker: gobreaker.NewCircuitBreaker[*tossResponse](settings),
		logger:  logger,
	}
}

// Approve captures an authorized payment via POST /v1/payments/confirm.
func (c *TossClient) Approve(ctx context.Context, req ApproveRequest) (*ApproveResult, error) {
	payload := map[string]any{
		"paymentKey": req.PaymentKey,
		"orderId":    req.OrderID,
		"amount":     req.Amount,
	}

	raw, err := c.post(ctx, "/v1/payments/confirm", payload, "approve")
	if err != nil {
		return nil, err
	}

	var body tossPayment
	if err := json.Unmarshal(raw, &body); err != nil {
		return nil, fmt.Errorf("decode approve response: %w", err)
	}
	return body.toApproveResult(raw), nil
}

// Cancel cancels a captured payment via POST /v1/payments/{paymentKey}/cancel.
func (c *TossClient) Cancel(ctx context.Context, req CancelRequest) (*CancelResult, error) {
	payload := map[string]any{
		"cancelReason": req.Reason,
	}

	raw, err := c.post(ctx, "/v1/payments/"+req.PaymentKey+"/cancel", payload, "cancel")
	if err != nil {
		return nil, err
	}

	var body tossPayment
	if err := json.Unmarshal(raw, &body); err != nil {
		return nil, fmt.Errorf("decode cancel response: %w", err)
	}
	return &CancelResult{Status: body.Status, Raw: raw}, nil
}

// post performs an authenticated call and maps non-2xx responses to *Error.
func (c *TossClient) post(ctx context.Context, path string, payload any, operation string) (json.RawMessage, error) {
	start := time.Now()
	resp, err := c.breaker.Execute(func() (*tossResponse, error) {
		return c.do(ctx, path, payload)
	})
	if err != nil {
		c.logger.Error("gateway request failed",
			zap.String("operation", operation),
			zap.Duration("elapsed", time.Since(start)),
			zap.Error(err))
		return nil, fmt.Errorf("toss %s: %w", operation, err)
	}

	if resp.status < 200 || resp.status >= 300 {
		var provErr struct {
			Code    string `json:"code"`
			Message string `json:"message"`
		}
		if err := json.Unmarshal(resp.body, &provErr); err != nil || provErr.Code == "" {
			return nil, &Error{
				Code:    fmt.Sprintf("HTTP_%d", resp.status),
				Message: "unexpected provider response",
			}
		}
		c.logger.Warn("gateway rejected request",
			zap.String("operation", operation),
			zap.Int("status", resp.status),
			zap.String("code", provErr.Code))
		return nil, &Error{Code: provErr.Code, Message: provErr.Message}
	}

	return resp.body, nil
}

func (c *TossClient) do(ctx context.Context, path string, payload any) (*tossResponse, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("encode request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.BaseURL+path, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Authorization", "Basic "+basicAuth(c.cfg.SecretKey))
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}
	return &tossResponse{status: resp.StatusCode, body: data}, nil
}

// basicAuth encodes the secret key the way Toss expects: base64("{key}:").
func basicAuth(secretKey string) string {
	return base64.StdEncoding.EncodeToString([]byte(secretKey + ":"))
}

// tossPayment is the subset of the provider's payment object we consume.
type tossPayment struct {
	PaymentKey     string  `json:"paymentKey"`
	OrderID        string  `json:"orderId"`
	Method         string  `json:"method"`
	Status         string  `json:"status"`
	TotalAmount    int64   `json:"totalAmount"`
	ApprovedAt     *string `json:"approvedAt"`
	Receipt        *struct {
		URL string `json:"url"`
	} `json:"receipt"`
	VirtualAccount *struct {
		BankCode      string `json:"bankCode"`
		BankName      string `json:"bank"`
		AccountNumber string `json:"accountNumber"`
		HolderName    string `json:"customerName"`
		DueDate       string `json:"dueDate"`
	} `json:"virtualAccount"`
}

func (p *tossPayment) toApproveResult(raw json.RawMessage) *ApproveResult {
	result := &ApproveResult{
		PaymentKey:  p.PaymentKey,
		OrderID:     p.OrderID,
		Method:      normalizeMethod(p.Method),
		TotalAmount: p.TotalAmount,
		Raw:         raw,
	}
	if p.ApprovedAt != nil {
		if t, err := time.Parse(time.RFC3339, *p.ApprovedAt); err == nil {
			result.ApprovedAt = &t
		}
	}
	if p.Receipt != nil {
		result.ReceiptURL = p.Receipt.URL
	}
	if p.VirtualAccount != nil {
		va := &VirtualAccount{
			BankCode:      p.VirtualAccount.BankCode,
			BankName:      p.VirtualAccount.BankName,
			AccountNumber: p.VirtualAccount.AccountNumber,
			HolderName:    p.VirtualAccount.HolderName,
		}
		if t, err := time.Parse(time.RFC3339, p.VirtualAccount.DueDate); err == nil {
			va.DueDate = &t
		}
		result.VirtualAccount = va
	}
	return result
}

// normalizeMethod maps the provider's localized method labels onto the
// stable method constants.
func normalizeMethod(method string) string {
	switch method {
	case "카드", MethodCard:
		return MethodCard
	case "가상계좌", MethodVirtualAccount:
		return MethodVirtualAccount
	case "계좌이체", MethodTransfer:
		return MethodTransfer
	case "휴대폰", MethodMobile:
		return MethodMobile
	default:
		return method
	}
}

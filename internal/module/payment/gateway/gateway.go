// Package gateway defines the payment provider port. The payment service
// depends only on the Gateway interface; the Toss HTTP adapter lives behind
// it so tests can swap in a mock.
package gateway

import (
	"context"
	"encoding/json"
	"fmt"
	"time"
)

// Payment method strings as the provider reports them.
const (
	MethodCard           = "CARD"
	MethodVirtualAccount = "VIRTUAL_ACCOUNT"
	MethodTransfer       = "TRANSFER"
	MethodMobile         = "MOBILE"
)

// ApproveRequest asks the provider to capture an authorized payment.
type ApproveRequest struct {
	PaymentKey string
	OrderID    string // provider-side order id, not the internal order number
	Amount     int64
}

// VirtualAccount carries the issued deposit account for VIRTUAL_ACCOUNT
// payments.
type VirtualAccount struct {
	BankCode      string
	BankName      string
	AccountNumber string
	HolderName    string
	DueDate       *time.Time
}

// ApproveResult is the provider's view of an approved payment.
type ApproveResult struct {
	PaymentKey     string
	OrderID        string
	Method         string
	TotalAmount    int64
	ApprovedAt     *time.Time
	VirtualAccount *VirtualAccount
	ReceiptURL     string
	Raw            json.RawMessage
}

// CancelRequest asks the provider to cancel a captured payment.
type CancelRequest struct {
	PaymentKey string
	Reason     string
}

// CancelResult is the provider's view of a cancelled payment.
type CancelResult struct {
	Status string
	Raw    json.RawMessage
}

// Error is a business error reported by the provider. The code and message
// are the provider's own, preserved verbatim for support diagnostics.
type Error struct {
	Code    string
	Message string
}

func (e *Error) Error() string {
	return fmt.Sprintf("provider error %s: %s", e.Code, e.Message)
}

// Gateway is the payment provider port.
type Gateway interface {
	Approve(ctx context.Context, req ApproveRequest) (*ApproveResult, error)
	Cancel(ctx context.Context, req CancelRequest) (*CancelResult, error)
}

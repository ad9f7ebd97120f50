package payment

import (
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/workmoa/server/internal/module/order"
	"github.com/workmoa/server/internal/module/payment/gateway"
	"github.com/workmoa/server/internal/utils/random"
)

// PaymentStatus represents the provider-facing status of a payment row.
type PaymentStatus string

const (
	PaymentStatusPending   PaymentStatus = "pending"
	PaymentStatusReady     PaymentStatus = "ready" // virtual account issued, awaiting deposit
	PaymentStatusDone      PaymentStatus = "done"
	PaymentStatusCancelled PaymentStatus = "cancelled"
	PaymentStatusFailed    PaymentStatus = "failed"
)

// IsTerminal returns true if the status is a terminal state.
func (s PaymentStatus) IsTerminal() bool {
	return s == PaymentStatusDone || s == PaymentStatusCancelled || s == PaymentStatusFailed
}

// PaymentMethod is the provider-reported payment method.
type PaymentMethod string

const (
	MethodCard           PaymentMethod = "CARD"
	MethodVirtualAccount PaymentMethod = "VIRTUAL_ACCOUNT"
	MethodTransfer       PaymentMethod = "TRANSFER"
	MethodMobile         PaymentMethod = "MOBILE"
)

// Payment is one attempt to pay an order. An order may accumulate several
// failed rows but at most one done row.
type Payment struct {
	ID          uuid.UUID `json:"id" gorm:"type:uuid;primaryKey;default:gen_random_uuid()"`
	OrderID     uuid.UUID `json:"order_id" gorm:"type:uuid;not null;index"`
	BuyerID     uuid.UUID `json:"buyer_id" gorm:"type:uuid;not null;index"`
	TossOrderID string    `json:"toss_order_id" gorm:"uniqueIndex;not null"`
	PaymentKey  *string   `json:"payment_key,omitempty" gorm:"uniqueIndex"`

	Amount int64         `json:"amount"`
	Method PaymentMethod `json:"method,omitempty"`
	Status PaymentStatus `json:"status" gorm:"not null;default:pending"`

	// Virtual account details, set when the provider issues one.
	BankCode       string     `json:"bank_code,omitempty"`
	BankName       string     `json:"bank_name,omitempty"`
	AccountNumber  string     `json:"account_number,omitempty"`
	AccountHolder  string     `json:"account_holder,omitempty"`
	DepositDueDate *time.Time `json:"deposit_due_date,omitempty"`

	ReceiptURL     string `json:"receipt_url,omitempty"`
	FailureCode    string `json:"failure_code,omitempty"`
	FailureMessage string `json:"failure_message,omitempty"`

	// Last raw provider payload, kept verbatim for support diagnostics.
	RawResponse string `json:"-" gorm:"type:jsonb"`

	ApprovedAt  *time.Time `json:"approved_at,omitempty"`
	CancelledAt *time.Time `json:"cancelled_at,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
}

// TableName returns the database table name.
func (Payment) TableName() string {
	return "payments"
}

// NewPayment creates a pending payment for an order. The provider-side order
// id is assigned by the service, which owns the uniqueness retry loop.
func NewPayment(o *order.Order) (*Payment, error) {
	if o.Amount <= 0 {
		return nil, ErrInvalidAmount
	}
	return &Payment{
		ID:      uuid.New(),
		OrderID: o.ID,
		BuyerID: o.BuyerID,
		Amount:  o.Amount,
		Status:  PaymentStatusPending,
	}, nil
}

// generateTossOrderID produces the provider-side order id of the form
// PAY-{epochMillis}-{hex8}. It is immutable once persisted.
func generateTossOrderID() (string, error) {
	suffix, err := random.Hex(4)
	if err != nil {
		return "", fmt.Errorf("generate toss order id: %w", err)
	}
	return fmt.Sprintf("PAY-%d-%s", time.Now().UnixMilli(), suffix), nil
}

// ApplyApproval records a provider approval. CARD, TRANSFER and MOBILE go
// straight to done; VIRTUAL_ACCOUNT only issues the account and moves to
// ready until the buyer actually deposits. Repeated applications are no-ops.
func (p *Payment) ApplyApproval(result *gateway.ApproveResult) bool {
	target := PaymentStatusDone
	if result.Method == gateway.MethodVirtualAccount {
		target = PaymentStatusReady
	}
	if !canTransition(p.Status, target) {
		return false
	}

	now := time.Now()
	p.Status = target
	p.Method = PaymentMethod(result.Method)
	if p.PaymentKey == nil && result.PaymentKey != "" {
		key := result.PaymentKey
		p.PaymentKey = &key
	}
	p.ReceiptURL = result.ReceiptURL
	if len(result.Raw) > 0 {
		p.RawResponse = string(result.Raw)
	}
	if target == PaymentStatusDone {
		if result.ApprovedAt != nil {
			p.ApprovedAt = result.ApprovedAt
		} else {
			p.ApprovedAt = &now
		}
	}
	if va := result.VirtualAccount; va != nil {
		p.BankCode = va.BankCode
		p.BankName = va.BankName
		p.AccountNumber = va.AccountNumber
		p.AccountHolder = va.HolderName
		p.DepositDueDate = va.DueDate
	}
	p.UpdatedAt = now
	return true
}

// ConfirmDeposit marks a virtual-account payment as fully paid. Only valid
// for a ready virtual-account payment; duplicate deposit callbacks degrade
// to a no-op.
func (p *Payment) ConfirmDeposit() bool {
	if p.Method != MethodVirtualAccount || p.Status != PaymentStatusReady {
		return false
	}
	now := time.Now()
	p.Status = PaymentStatusDone
	p.ApprovedAt = &now
	p.UpdatedAt = now
	return true
}

// MarkFailed records a provider failure. The order is never touched here;
// the buyer can retry with a fresh payment attempt.
func (p *Payment) MarkFailed(code, message string) bool {
	if !canTransition(p.Status, PaymentStatusFailed) {
		return false
	}
	now := time.Now()
	p.Status = PaymentStatusFailed
	p.FailureCode = code
	p.FailureMessage = message
	p.UpdatedAt = now
	return true
}

// MarkCancelled records a provider-confirmed cancellation.
func (p *Payment) MarkCancelled(raw string) bool {
	if !canTransition(p.Status, PaymentStatusCancelled) {
		return false
	}
	now := time.Now()
	p.Status = PaymentStatusCancelled
	p.CancelledAt = &now
	if raw != "" {
		p.RawResponse = raw
	}
	p.UpdatedAt = now
	return true
}

// IsDone returns true if the payment has been captured.
func (p *Payment) IsDone() bool {
	return p.Status == PaymentStatusDone
}

package payment

import (
	"time"

	"github.com/google/uuid"

	"github.com/workmoa/server/internal/module/order"
)

// CheckoutRequest names what the buyer wants to pay for.
type CheckoutRequest struct {
	PostID         *uuid.UUID `json:"post_id"`
	ChatRoomID     *uuid.UUID `json:"chat_room_id"`
	OfferMessageID *uuid.UUID `json:"offer_message_id"`
}

// PaymentContext converts the request into the order factory's context.
func (r CheckoutRequest) PaymentContext() order.PaymentContext {
	return order.PaymentContext{
		PostID:         r.PostID,
		ChatRoomID:     r.ChatRoomID,
		OfferMessageID: r.OfferMessageID,
	}
}

// PaymentResponse is the API representation of a payment.
type PaymentResponse struct {
	ID             uuid.UUID     `json:"id"`
	OrderID        uuid.UUID     `json:"order_id"`
	TossOrderID    string        `json:"toss_order_id"`
	Amount         int64         `json:"amount"`
	Method         PaymentMethod `json:"method,omitempty"`
	Status         PaymentStatus `json:"status"`
	BankName       string        `json:"bank_name,omitempty"`
	AccountNumber  string        `json:"account_number,omitempty"`
	AccountHolder  string        `json:"account_holder,omitempty"`
	DepositDueDate *time.Time    `json:"deposit_due_date,omitempty"`
	ReceiptURL     string        `json:"receipt_url,omitempty"`
	FailureCode    string        `json:"failure_code,omitempty"`
	FailureMessage string        `json:"failure_message,omitempty"`
	ApprovedAt     *time.Time    `json:"approved_at,omitempty"`
	CreatedAt      time.Time     `json:"created_at"`
}

// ToPaymentResponse converts a payment to its API representation.
func ToPaymentResponse(p *Payment) PaymentResponse {
	return PaymentResponse{
		ID:             p.ID,
		OrderID:        p.OrderID,
		TossOrderID:    p.TossOrderID,
		Amount:         p.Amount,
		Method:         p.Method,
		Status:         p.Status,
		BankName:       p.BankName,
		AccountNumber:  p.AccountNumber,
		AccountHolder:  p.AccountHolder,
		DepositDueDate: p.DepositDueDate,
		ReceiptURL:     p.ReceiptURL,
		FailureCode:    p.FailureCode,
		FailureMessage: p.FailureMessage,
		ApprovedAt:     p.ApprovedAt,
		CreatedAt:      p.CreatedAt,
	}
}

// CheckoutResponse pairs the order with its pending payment.
type CheckoutResponse struct {
	Order   order.OrderResponse `json:"order"`
	Payment PaymentResponse     `json:"payment"`
}

// CancelRequest carries the buyer's cancellation reason.
type CancelRequest struct {
	Reason string `json:"reason" binding:"required"`
}

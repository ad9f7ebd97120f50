package order

import (
	"math"
	"time"

	"github.com/google/uuid"
)

// OrderStatus represents the buyer-visible status of an order.
type OrderStatus string

const (
	OrderStatusPending    OrderStatus = "pending"
	OrderStatusPaid       OrderStatus = "paid"
	OrderStatusInProgress OrderStatus = "in_progress"
	OrderStatusCompleted  OrderStatus = "completed"
	OrderStatusCancelled  OrderStatus = "cancelled"
	OrderStatusRefunded   OrderStatus = "refunded"
)

// IsTerminal returns true if the status is a terminal state.
func (s OrderStatus) IsTerminal() bool {
	return s == OrderStatusCompleted || s == OrderStatusCancelled || s == OrderStatusRefunded
}

// OrderType represents the type of order.
type OrderType string

const (
	OrderTypeOutsourcing OrderType = "outsourcing"
	OrderTypePremium     OrderType = "premium"
	OrderTypePromotion   OrderType = "promotion"
)

// Config holds the order business rules. The fee rate and the cancellation
// window are injected at wiring time, never read from globals.
type Config struct {
	FeeRate      float64
	CancelWindow time.Duration
}

// DefaultConfig returns the production business rules.
func DefaultConfig() Config {
	return Config{
		FeeRate:      0.10,
		CancelWindow: 7 * 24 * time.Hour,
	}
}

// maxTitleLen caps the order title; longer source titles are truncated.
const maxTitleLen = 100

// Order represents a buyer's commitment to pay for a post or chat offer.
type Order struct {
	ID          uuid.UUID   `json:"id" gorm:"type:uuid;primaryKey;default:gen_random_uuid()"`
	OrderNumber string      `json:"order_number" gorm:"uniqueIndex;not null"`
	BuyerID     uuid.UUID   `json:"buyer_id" gorm:"type:uuid;not null;index"`
	SellerID    uuid.UUID   `json:"seller_id" gorm:"type:uuid;not null;index"`
	Title       string      `json:"title" gorm:"size:100;not null"`
	Amount      int64       `json:"amount"` // minor currency unit
	Type        OrderType   `json:"type" gorm:"not null"`
	Status      OrderStatus `json:"status" gorm:"not null;default:pending"`

	// Payment context: exactly one of PostID or ChatRoomID+OfferMessageID.
	PostID         *uuid.UUID `json:"post_id,omitempty" gorm:"type:uuid;index"`
	ChatRoomID     *uuid.UUID `json:"chat_room_id,omitempty" gorm:"type:uuid"`
	OfferMessageID *uuid.UUID `json:"offer_message_id,omitempty" gorm:"type:uuid;index"`

	PaidAt      *time.Time `json:"paid_at,omitempty"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
	CancelledAt *time.Time `json:"cancelled_at,omitempty"`
	RefundedAt  *time.Time `json:"refunded_at,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
}

// TableName returns the database table name.
func (Order) TableName() string {
	return "orders"
}

// PaymentContext names what the buyer is paying for. Exactly one of the
// post or the chat-offer pair must be set.
type PaymentContext struct {
	PostID         *uuid.UUID `json:"post_id,omitempty"`
	ChatRoomID     *uuid.UUID `json:"chat_room_id,omitempty"`
	OfferMessageID *uuid.UUID `json:"offer_message_id,omitempty"`
}

// Validate checks that exactly one payment context is present.
func (pc PaymentContext) Validate() error {
	hasPost := pc.PostID != nil
	hasOffer := pc.ChatRoomID != nil && pc.OfferMessageID != nil
	if hasPost == hasOffer {
		return ErrNoPaymentContext
	}
	return nil
}

// NewOrder creates a pending order. The order number is assigned by the
// factory, which owns the uniqueness retry loop.
func NewOrder(buyerID, sellerID uuid.UUID, title string, amount int64, orderType OrderType, pc PaymentContext) (*Order, error) {
	if err := pc.Validate(); err != nil {
		return nil, err
	}
	if amount <= 0 {
		return nil, ErrInvalidAmount
	}
	if buyerID == sellerID {
		return nil, ErrOwnPost
	}
	if runes := []rune(title); len(runes) > maxTitleLen {
		title = string(runes[:maxTitleLen])
	}

	return &Order{
		ID:             uuid.New(),
		BuyerID:        buyerID,
		SellerID:       sellerID,
		Title:          title,
		Amount:         amount,
		Type:           orderType,
		Status:         OrderStatusPending,
		PostID:         pc.PostID,
		ChatRoomID:     pc.ChatRoomID,
		OfferMessageID: pc.OfferMessageID,
	}, nil
}

// PlatformFee returns the platform's cut, rounded down.
func (o *Order) PlatformFee(feeRate float64) int64 {
	return int64(math.Floor(float64(o.Amount) * feeRate))
}

// SettlementAmount returns what the seller receives after the platform fee.
func (o *Order) SettlementAmount(feeRate float64) int64 {
	return o.Amount - o.PlatformFee(feeRate)
}

// IsPending returns true if the order is awaiting payment.
func (o *Order) IsPending() bool {
	return o.Status == OrderStatusPending
}

// IsPaid returns true if the order has been paid.
func (o *Order) IsPaid() bool {
	return o.Status == OrderStatusPaid
}

// CanCancel reports whether the order may be cancelled at the given time.
// Only paid or in-progress orders within the cancellation window qualify.
func (o *Order) CanCancel(now time.Time, window time.Duration) bool {
	if o.Status != OrderStatusPaid && o.Status != OrderStatusInProgress {
		return false
	}
	return now.Sub(o.CreatedAt) <= window
}

// MarkPaid transitions the order to paid. Racing callers are expected, so a
// repeated call is a silent no-op: the timestamp is set exactly once.
func (o *Order) MarkPaid() bool {
	if !canTransition(o.Status, OrderStatusPaid) {
		return false
	}
	now := time.Now()
	o.Status = OrderStatusPaid
	o.PaidAt = &now
	o.UpdatedAt = now
	return true
}

// MarkInProgress transitions the order to in_progress. Ignored from any
// state other than paid.
func (o *Order) MarkInProgress() bool {
	if !canTransition(o.Status, OrderStatusInProgress) {
		return false
	}
	now := time.Now()
	o.Status = OrderStatusInProgress
	o.UpdatedAt = now
	return true
}

// Confirm completes the order. Returns false if the order is not in a
// confirmable state.
func (o *Order) Confirm() bool {
	if !canTransition(o.Status, OrderStatusCompleted) {
		return false
	}
	now := time.Now()
	o.Status = OrderStatusCompleted
	o.CompletedAt = &now
	o.UpdatedAt = now
	return true
}

// MarkCancelled moves the order to the cancelled terminal state. No-op if
// the order is already terminal.
func (o *Order) MarkCancelled() bool {
	if !canTransition(o.Status, OrderStatusCancelled) {
		return false
	}
	now := time.Now()
	o.Status = OrderStatusCancelled
	o.CancelledAt = &now
	o.UpdatedAt = now
	return true
}

// MarkRefunded moves the order to the refunded terminal state. No-op if
// the order is already terminal.
func (o *Order) MarkRefunded() bool {
	if !canTransition(o.Status, OrderStatusRefunded) {
		return false
	}
	now := time.Now()
	o.Status = OrderStatusRefunded
	o.RefundedAt = &now
	o.UpdatedAt = now
	return true
}

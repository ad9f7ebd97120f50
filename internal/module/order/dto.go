package order

import (
	"time"

	"github.com/google/uuid"
)

// OrderResponse is the API representation of an order.
type OrderResponse struct {
	ID               uuid.UUID   `json:"id"`
	OrderNumber      string      `json:"order_number"`
	BuyerID          uuid.UUID   `json:"buyer_id"`
	SellerID         uuid.UUID   `json:"seller_id"`
	Title            string      `json:"title"`
	Amount           int64       `json:"amount"`
	PlatformFee      int64       `json:"platform_fee"`
	SettlementAmount int64       `json:"settlement_amount"`
	Type             OrderType   `json:"type"`
	Status           OrderStatus `json:"status"`
	PostID           *uuid.UUID  `json:"post_id,omitempty"`
	ChatRoomID       *uuid.UUID  `json:"chat_room_id,omitempty"`
	OfferMessageID   *uuid.UUID  `json:"offer_message_id,omitempty"`
	PaidAt           *time.Time  `json:"paid_at,omitempty"`
	CompletedAt      *time.Time  `json:"completed_at,omitempty"`
	CancelledAt      *time.Time  `json:"cancelled_at,omitempty"`
	RefundedAt       *time.Time  `json:"refunded_at,omitempty"`
	CreatedAt        time.Time   `json:"created_at"`
}

// ToResponse converts an order to its API representation.
func ToResponse(o *Order, feeRate float64) OrderResponse {
	return OrderResponse{
		ID:               o.ID,
		OrderNumber:      o.OrderNumber,
		BuyerID:          o.BuyerID,
		SellerID:         o.SellerID,
		Title:            o.Title,
		Amount:           o.Amount,
		PlatformFee:      o.PlatformFee(feeRate),
		SettlementAmount: o.SettlementAmount(feeRate),
		Type:             o.Type,
		Status:           o.Status,
		PostID:           o.PostID,
		ChatRoomID:       o.ChatRoomID,
		OfferMessageID:   o.OfferMessageID,
		PaidAt:           o.PaidAt,
		CompletedAt:      o.CompletedAt,
		CancelledAt:      o.CancelledAt,
		RefundedAt:       o.RefundedAt,
		CreatedAt:        o.CreatedAt,
	}
}

// ListOrdersResponse wraps a page of orders.
type ListOrdersResponse struct {
	Orders []OrderResponse `json:"orders"`
	Total  int64           `json:"total"`
	Limit  int             `json:"limit"`
	Offset int             `json:"offset"`
}

package market

import (
	"time"

	"github.com/google/uuid"
)

// PostCategory classifies a marketplace post.
type PostCategory string

const (
	CategoryOutsourcing PostCategory = "outsourcing"
	CategoryCommunity   PostCategory = "community"
)

// PostStatus represents the sale state of a post.
type PostStatus string

const (
	PostStatusOpen PostStatus = "open"
	PostStatusSold PostStatus = "sold"
)

// Post is the sellable subset of a marketplace post. The full forum post
// (body, comments, likes) lives outside this subsystem.
type Post struct {
	ID        uuid.UUID    `json:"id" gorm:"type:uuid;primaryKey;default:gen_random_uuid()"`
	AuthorID  uuid.UUID    `json:"author_id" gorm:"type:uuid;not null;index"`
	Title     string       `json:"title" gorm:"size:200;not null"`
	Category  PostCategory `json:"category" gorm:"not null"`
	Price     int64        `json:"price"` // minor currency unit
	Status    PostStatus   `json:"status" gorm:"not null;default:open"`
	CreatedAt time.Time    `json:"created_at"`
	UpdatedAt time.Time    `json:"updated_at"`
}

// TableName returns the database table name.
func (Post) TableName() string {
	return "posts"
}

// OfferStatus represents the negotiation state of a chat deal offer.
type OfferStatus string

const (
	OfferStatusOpen     OfferStatus = "open"
	OfferStatusAccepted OfferStatus = "accepted"
	OfferStatusClosed   OfferStatus = "closed"
)

// ChatOffer is a deal offer made inside a chat room. The chat transcript
// itself is outside this subsystem; only the offer terms matter here.
type ChatOffer struct {
	ID         uuid.UUID   `json:"id" gorm:"type:uuid;primaryKey;default:gen_random_uuid()"` // offer message id
	ChatRoomID uuid.UUID   `json:"chat_room_id" gorm:"type:uuid;not null;index"`
	SellerID   uuid.UUID   `json:"seller_id" gorm:"type:uuid;not null"`
	Title      string      `json:"title" gorm:"size:200;not null"`
	Amount     int64       `json:"amount"`
	Status     OfferStatus `json:"status" gorm:"not null;default:open"`
	CreatedAt  time.Time   `json:"created_at"`
	UpdatedAt  time.Time   `json:"updated_at"`
}

// TableName returns the database table name.
func (ChatOffer) TableName() string {
	return "chat_offers"
}

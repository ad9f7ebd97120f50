package market

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Sale describes what the order factory needs to know about a payable
// context: who sells, for how much, and whether it can still be bought.
type Sale struct {
	SellerID    uuid.UUID
	Title       string
	Amount      int64
	Outsourcing bool
	Available   bool
}

// Source resolves payable contexts for the order factory.
type Source interface {
	ResolvePost(ctx context.Context, postID uuid.UUID) (*Sale, error)
	ResolveOffer(ctx context.Context, chatRoomID, offerMessageID uuid.UUID) (*Sale, error)
}

type source struct {
	db *gorm.DB
}

// NewSource creates a database-backed Source.
func NewSource(db *gorm.DB) Source {
	return &source{db: db}
}

func (s *source) ResolvePost(ctx context.Context, postID uuid.UUID) (*Sale, error) {
	var post Post
	err := s.db.WithContext(ctx).First(&post, "id = ?", postID).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrPostNotFound
		}
		return nil, fmt.Errorf("get post: %w", err)
	}

	return &Sale{
		SellerID:    post.AuthorID,
		Title:       post.Title,
		Amount:      post.Price,
		Outsourcing: post.Category == CategoryOutsourcing,
		Available:   post.Status == PostStatusOpen,
	}, nil
}

func (s *source) ResolveOffer(ctx context.Context, chatRoomID, offerMessageID uuid.UUID) (*Sale, error) {
	var offer ChatOffer
	err := s.db.WithContext(ctx).
		First(&offer, "id = ? AND chat_room_id = ?", offerMessageID, chatRoomID).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrOfferNotFound
		}
		return nil, fmt.Errorf("get chat offer: %w", err)
	}

	return &Sale{
		SellerID: offer.SellerID,
		Title:    offer.Title,
		Amount:   offer.Amount,
		// A chat deal is an outsourcing engagement by definition.
		Outsourcing: true,
		Available:   offer.Status != OfferStatusClosed,
	}, nil
}

package order

import (
	"context"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// Service handles order reads and the work-lifecycle transitions that do
// not involve the payment provider.
type Service struct {
	repo   Repository
	logger *zap.Logger

	// runInTx wraps fn in a database transaction. Swappable in tests.
	runInTx func(ctx context.Context, fn func(tx *gorm.DB) error) error
}

// NewService creates an order service.
func NewService(db *gorm.DB, repo Repository, logger *zap.Logger) *Service {
	return &Service{
		repo:   repo,
		logger: logger,
		runInTx: func(ctx context.Context, fn func(tx *gorm.DB) error) error {
			return db.WithContext(ctx).Transaction(fn)
		},
	}
}

// GetOrder returns an order visible to the given user. Only the buyer and
// the seller may see an order.
func (s *Service) GetOrder(ctx context.Context, id, userID uuid.UUID) (*Order, error) {
	order, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if order.BuyerID != userID && order.SellerID != userID {
		return nil, ErrNotOrderParty
	}
	return order, nil
}

// ListOrders returns the user's orders as buyer, newest first.
func (s *Service) ListOrders(ctx context.Context, buyerID uuid.UUID, limit, offset int) ([]Order, int64, error) {
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	if offset < 0 {
		offset = 0
	}
	return s.repo.ListByBuyer(ctx, buyerID, limit, offset)
}

// StartWork moves a paid order to in_progress. Only the seller may start.
func (s *Service) StartWork(ctx context.Context, id, sellerID uuid.UUID) (*Order, error) {
	return s.transition(ctx, id, func(o *Order) error {
		if o.SellerID != sellerID {
			return ErrNotOrderParty
		}
		o.MarkInProgress()
		return nil
	})
}

// ConfirmCompletion completes the order. Only the buyer may confirm; this
// is the signal that releases the settlement to the seller.
func (s *Service) ConfirmCompletion(ctx context.Context, id, buyerID uuid.UUID) (*Order, error) {
	return s.transition(ctx, id, func(o *Order) error {
		if o.BuyerID != buyerID {
			return ErrNotOrderParty
		}
		o.Confirm()
		return nil
	})
}

// transition applies fn to the order under a row lock so concurrent status
// changes serialize on the database.
func (s *Service) transition(ctx context.Context, id uuid.UUID, fn func(*Order) error) (*Order, error) {
	var result *Order
	err := s.runInTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		order, err := repo.GetByIDForUpdate(ctx, id)
		if err != nil {
			return err
		}
		before := order.Status
		if err := fn(order); err != nil {
			return err
		}
		if order.Status != before {
			if err := repo.Update(ctx, order); err != nil {
				return err
			}
			s.logger.Info("order status changed",
				zap.String("order_id", order.ID.String()),
				zap.String("from", string(before)),
				zap.String("to", string(order.Status)))
		}
		result = order
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

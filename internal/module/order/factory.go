package order

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/workmoa/server/internal/module/market"
	"github.com/workmoa/server/internal/utils/random"
)

// numberSuffixLen is the random tail of an order number.
const numberSuffixLen = 6

// maxNumberRetries bounds the collision retry loop when persisting a new
// order. Collisions are rare; repeated ones indicate a broken RNG.
const maxNumberRetries = 5

// Factory creates orders from posts and chat offers, reusing an existing
// pending order for the same buyer and context instead of piling up
// duplicates when the buyer retries checkout.
type Factory struct {
	repo   Repository
	source market.Source
	logger *zap.Logger
}

// NewFactory creates an order factory.
func NewFactory(repo Repository, source market.Source, logger *zap.Logger) *Factory {
	return &Factory{
		repo:   repo,
		source: source,
		logger: logger,
	}
}

// FindOrCreate returns the buyer's pending order for the given context, or
// creates one from the underlying post or chat offer.
func (f *Factory) FindOrCreate(ctx context.Context, buyerID uuid.UUID, pc PaymentContext) (*Order, error) {
	if err := pc.Validate(); err != nil {
		return nil, err
	}

	existing, err := f.findPending(ctx, buyerID, pc)
	if err != nil && !errors.Is(err, ErrOrderNotFound) {
		return nil, err
	}
	if existing != nil {
		f.logger.Debug("reusing pending order",
			zap.String("order_id", existing.ID.String()),
			zap.String("order_number", existing.OrderNumber))
		return existing, nil
	}

	sale, orderType, err := f.resolve(ctx, pc)
	if err != nil {
		return nil, err
	}
	if !sale.Available {
		return nil, ErrSourceUnavailable
	}
	if orderType == OrderTypeOutsourcing && !sale.Outsourcing {
		return nil, ErrNotOutsourcing
	}

	order, err := NewOrder(buyerID, sale.SellerID, sale.Title, sale.Amount, orderType, pc)
	if err != nil {
		return nil, err
	}

	if err := f.persistWithNumber(ctx, order); err != nil {
		return nil, err
	}

	f.logger.Info("order created",
		zap.String("order_id", order.ID.String()),
		zap.String("order_number", order.OrderNumber),
		zap.String("type", string(order.Type)),
		zap.Int64("amount", order.Amount))
	return order, nil
}

func (f *Factory) findPending(ctx context.Context, buyerID uuid.UUID, pc PaymentContext) (*Order, error) {
	if pc.PostID != nil {
		return f.repo.FindPendingByBuyerAndPost(ctx, buyerID, *pc.PostID)
	}
	return f.repo.FindPendingByBuyerAndOffer(ctx, buyerID, *pc.OfferMessageID)
}

func (f *Factory) resolve(ctx context.Context, pc PaymentContext) (*market.Sale, OrderType, error) {
	if pc.PostID != nil {
		sale, err := f.source.ResolvePost(ctx, *pc.PostID)
		if err != nil {
			if errors.Is(err, market.ErrPostNotFound) {
				return nil, "", ErrSourceUnavailable
			}
			return nil, "", err
		}
		return sale, OrderTypeOutsourcing, nil
	}

	sale, err := f.source.ResolveOffer(ctx, *pc.ChatRoomID, *pc.OfferMessageID)
	if err != nil {
		if errors.Is(err, market.ErrOfferNotFound) {
			return nil, "", ErrSourceUnavailable
		}
		return nil, "", err
	}
	return sale, OrderTypeOutsourcing, nil
}

// persistWithNumber assigns order numbers until the unique index accepts
// one, up to maxNumberRetries.
func (f *Factory) persistWithNumber(ctx context.Context, order *Order) error {
	for attempt := 0; attempt < maxNumberRetries; attempt++ {
		number, err := generateOrderNumber()
		if err != nil {
			return err
		}
		order.OrderNumber = number

		err = f.repo.Create(ctx, order)
		if err == nil {
			return nil
		}
		if !errors.Is(err, gorm.ErrDuplicatedKey) {
			return err
		}
		f.logger.Warn("order number collision, retrying",
			zap.String("order_number", number),
			zap.Int("attempt", attempt+1))
	}
	return ErrNumberExhausted
}

// generateOrderNumber produces a human-readable number of the form
// ORD-YYYYMMDD-XXXXXX.
func generateOrderNumber() (string, error) {
	suffix, err := random.UpperAlphaNum(numberSuffixLen)
	if err != nil {
		return "", fmt.Errorf("generate order number: %w", err)
	}
	return fmt.Sprintf("ORD-%s-%s", time.Now().Format("20060102"), suffix), nil
}

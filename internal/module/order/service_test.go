package order

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

func newTestService(repo Repository) *Service {
	svc := NewService(nil, repo, zap.NewNop())
	svc.runInTx = func(ctx context.Context, fn func(tx *gorm.DB) error) error {
		return fn(nil)
	}
	return svc
}

func TestServiceGetOrder(t *testing.T) {
	ctx := context.Background()
	buyer := uuid.New()
	seller := uuid.New()
	stranger := uuid.New()
	o := &Order{ID: uuid.New(), BuyerID: buyer, SellerID: seller}

	t.Run("buyer can see the order", func(t *testing.T) {
		repo := new(MockRepository)
		repo.On("GetByID", ctx, o.ID).Return(o, nil)

		got, err := newTestService(repo).GetOrder(ctx, o.ID, buyer)
		require.NoError(t, err)
		assert.Same(t, o, got)
	})

	t.Run("seller can see the order", func(t *testing.T) {
		repo := new(MockRepository)
		repo.On("GetByID", ctx, o.ID).Return(o, nil)

		_, err := newTestService(repo).GetOrder(ctx, o.ID, seller)
		assert.NoError(t, err)
	})

	t.Run("strangers cannot", func(t *testing.T) {
		repo := new(MockRepository)
		repo.On("GetByID", ctx, o.ID).Return(o, nil)

		_, err := newTestService(repo).GetOrder(ctx, o.ID, stranger)
		assert.ErrorIs(t, err, ErrNotOrderParty)
	})
}

func TestServiceStartWork(t *testing.T) {
	ctx := context.Background()
	buyer := uuid.New()
	seller := uuid.New()

	paidOrder := func() *Order {
		o, err := NewOrder(buyer, seller, "t", 1000, OrderTypeOutsourcing, postContext())
		require.NoError(t, err)
		o.MarkPaid()
		return o
	}

	t.Run("seller starts a paid order", func(t *testing.T) {
		o := paidOrder()
		repo := new(MockRepository)
		repo.On("GetByIDForUpdate", ctx, o.ID).Return(o, nil)
		repo.On("Update", ctx, o).Return(nil)

		got, err := newTestService(repo).StartWork(ctx, o.ID, seller)
		require.NoError(t, err)
		assert.Equal(t, OrderStatusInProgress, got.Status)
	})

	t.Run("buyer cannot start work", func(t *testing.T) {
		o := paidOrder()
		repo := new(MockRepository)
		repo.On("GetByIDForUpdate", ctx, o.ID).Return(o, nil)

		_, err := newTestService(repo).StartWork(ctx, o.ID, buyer)
		assert.ErrorIs(t, err, ErrNotOrderParty)
		repo.AssertNotCalled(t, "Update", mock.Anything, mock.Anything)
	})

	t.Run("starting an unpaid order is a no-op", func(t *testing.T) {
		o, err := NewOrder(buyer, seller, "t", 1000, OrderTypeOutsourcing, postContext())
		require.NoError(t, err)
		repo := new(MockRepository)
		repo.On("GetByIDForUpdate", ctx, o.ID).Return(o, nil)

		got, err := newTestService(repo).StartWork(ctx, o.ID, seller)
		require.NoError(t, err)
		assert.Equal(t, OrderStatusPending, got.Status)
		repo.AssertNotCalled(t, "Update", mock.Anything, mock.Anything)
	})
}

func TestServiceConfirmCompletion(t *testing.T) {
	ctx := context.Background()
	buyer := uuid.New()
	seller := uuid.New()

	t.Run("buyer confirms completion", func(t *testing.T) {
		o, err := NewOrder(buyer, seller, "t", 1000, OrderTypeOutsourcing, postContext())
		require.NoError(t, err)
		o.MarkPaid()
		o.MarkInProgress()

		repo := new(MockRepository)
		repo.On("GetByIDForUpdate", ctx, o.ID).Return(o, nil)
		repo.On("Update", ctx, o).Return(nil)

		got, err := newTestService(repo).ConfirmCompletion(ctx, o.ID, buyer)
		require.NoError(t, err)
		assert.Equal(t, OrderStatusCompleted, got.Status)
		assert.NotNil(t, got.CompletedAt)
	})

	t.Run("seller cannot confirm", func(t *testing.T) {
		o, err := NewOrder(buyer, seller, "t", 1000, OrderTypeOutsourcing, postContext())
		require.NoError(t, err)
		o.MarkPaid()

		repo := new(MockRepository)
		repo.On("GetByIDForUpdate", ctx, o.ID).Return(o, nil)

		_, err = newTestService(repo).ConfirmCompletion(ctx, o.ID, seller)
		assert.ErrorIs(t, err, ErrNotOrderParty)
	})
}

package order

import (
	"context"
	"regexp"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/workmoa/server/internal/module/market"
)

// --- Mock Implementations ---

type MockRepository struct {
	mock.Mock
}

func (m *MockRepository) Create(ctx context.Context, order *Order) error {
	args := m.Called(ctx, order)
	return args.Error(0)
}

func (m *MockRepository) GetByID(ctx context.Context, id uuid.UUID) (*Order, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*Order), args.Error(1)
}

func (m *MockRepository) GetByIDForUpdate(ctx context.Context, id uuid.UUID) (*Order, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*Order), args.Error(1)
}

func (m *MockRepository) GetByOrderNumber(ctx context.Context, orderNumber string) (*Order, error) {
	args := m.Called(ctx, orderNumber)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*Order), args.Error(1)
}

func (m *MockRepository) FindPendingByBuyerAndPost(ctx context.Context, buyerID, postID uuid.UUID) (*Order, error) {
	args := m.Called(ctx, buyerID, postID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*Order), args.Error(1)
}

func (m *MockRepository) FindPendingByBuyerAndOffer(ctx context.Context, buyerID, offerMessageID uuid.UUID) (*Order, error) {
	args := m.Called(ctx, buyerID, offerMessageID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*Order), args.Error(1)
}

func (m *MockRepository) ListByBuyer(ctx context.Context, buyerID uuid.UUID, limit, offset int) ([]Order, int64, error) {
	args := m.Called(ctx, buyerID, limit, offset)
	return args.Get(0).([]Order), args.Get(1).(int64), args.Error(2)
}

func (m *MockRepository) Update(ctx context.Context, order *Order) error {
	args := m.Called(ctx, order)
	return args.Error(0)
}

func (m *MockRepository) WithTx(tx *gorm.DB) Repository {
	return m
}

type MockSource struct {
	mock.Mock
}

func (m *MockSource) ResolvePost(ctx context.Context, postID uuid.UUID) (*market.Sale, error) {
	args := m.Called(ctx, postID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*market.Sale), args.Error(1)
}

func (m *MockSource) ResolveOffer(ctx context.Context, chatRoomID, offerMessageID uuid.UUID) (*market.Sale, error) {
	args := m.Called(ctx, chatRoomID, offerMessageID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*market.Sale), args.Error(1)
}

// --- Tests ---

var orderNumberPattern = regexp.MustCompile(`^ORD-\d{8}-[A-Z0-9]{6}$`)

func newTestFactory(t *testing.T) (*Factory, *MockRepository, *MockSource) {
	t.Helper()
	repo := new(MockRepository)
	source := new(MockSource)
	return NewFactory(repo, source, zap.NewNop()), repo, source
}

func TestFactoryFindOrCreate(t *testing.T) {
	ctx := context.Background()
	buyer := uuid.New()
	seller := uuid.New()
	postID := uuid.New()
	pc := PaymentContext{PostID: &postID}

	t.Run("reuses pending order for the same buyer and post", func(t *testing.T) {
		factory, repo, source := newTestFactory(t)
		existing := &Order{ID: uuid.New(), OrderNumber: "ORD-20260831-AB12CD", Status: OrderStatusPending}
		repo.On("FindPendingByBuyerAndPost", ctx, buyer, postID).Return(existing, nil)

		got, err := factory.FindOrCreate(ctx, buyer, pc)
		require.NoError(t, err)
		assert.Same(t, existing, got)
		source.AssertNotCalled(t, "ResolvePost", mock.Anything, mock.Anything)
		repo.AssertNotCalled(t, "Create", mock.Anything, mock.Anything)
	})

	t.Run("creates an order from a post", func(t *testing.T) {
		factory, repo, source := newTestFactory(t)
		repo.On("FindPendingByBuyerAndPost", ctx, buyer, postID).Return(nil, ErrOrderNotFound)
		source.On("ResolvePost", ctx, postID).Return(&market.Sale{
			SellerID:    seller,
			Title:       "logo design",
			Amount:      50000,
			Outsourcing: true,
			Available:   true,
		}, nil)
		repo.On("Create", ctx, mock.AnythingOfType("*order.Order")).Return(nil)

		got, err := factory.FindOrCreate(ctx, buyer, pc)
		require.NoError(t, err)
		assert.Equal(t, buyer, got.BuyerID)
		assert.Equal(t, seller, got.SellerID)
		assert.Equal(t, int64(50000), got.Amount)
		assert.Equal(t, OrderTypeOutsourcing, got.Type)
		assert.Equal(t, OrderStatusPending, got.Status)
		assert.Regexp(t, orderNumberPattern, got.OrderNumber)
	})

	t.Run("creates an order from a chat offer", func(t *testing.T) {
		factory, repo, source := newTestFactory(t)
		roomID := uuid.New()
		msgID := uuid.New()
		offerPC := PaymentContext{ChatRoomID: &roomID, OfferMessageID: &msgID}

		repo.On("FindPendingByBuyerAndOffer", ctx, buyer, msgID).Return(nil, ErrOrderNotFound)
		source.On("ResolveOffer", ctx, roomID, msgID).Return(&market.Sale{
			SellerID:    seller,
			Title:       "api integration",
			Amount:      120000,
			Outsourcing: true,
			Available:   true,
		}, nil)
		repo.On("Create", ctx, mock.AnythingOfType("*order.Order")).Return(nil)

		got, err := factory.FindOrCreate(ctx, buyer, offerPC)
		require.NoError(t, err)
		assert.Equal(t, &roomID, got.ChatRoomID)
		assert.Equal(t, &msgID, got.OfferMessageID)
		assert.Nil(t, got.PostID)
	})

	t.Run("rejects missing payment context", func(t *testing.T) {
		factory, _, _ := newTestFactory(t)
		_, err := factory.FindOrCreate(ctx, buyer, PaymentContext{})
		assert.ErrorIs(t, err, ErrNoPaymentContext)
	})

	t.Run("rejects own post", func(t *testing.T) {
		factory, repo, source := newTestFactory(t)
		repo.On("FindPendingByBuyerAndPost", ctx, buyer, postID).Return(nil, ErrOrderNotFound)
		source.On("ResolvePost", ctx, postID).Return(&market.Sale{
			SellerID:    buyer, // buyer is the author
			Title:       "t",
			Amount:      1000,
			Outsourcing: true,
			Available:   true,
		}, nil)

		_, err := factory.FindOrCreate(ctx, buyer, pc)
		assert.ErrorIs(t, err, ErrOwnPost)
	})

	t.Run("rejects non-outsourcing post", func(t *testing.T) {
		factory, repo, source := newTestFactory(t)
		repo.On("FindPendingByBuyerAndPost", ctx, buyer, postID).Return(nil, ErrOrderNotFound)
		source.On("ResolvePost", ctx, postID).Return(&market.Sale{
			SellerID:    seller,
			Title:       "t",
			Amount:      1000,
			Outsourcing: false,
			Available:   true,
		}, nil)

		_, err := factory.FindOrCreate(ctx, buyer, pc)
		assert.ErrorIs(t, err, ErrNotOutsourcing)
	})

	t.Run("rejects sold out post", func(t *testing.T) {
		factory, repo, source := newTestFactory(t)
		repo.On("FindPendingByBuyerAndPost", ctx, buyer, postID).Return(nil, ErrOrderNotFound)
		source.On("ResolvePost", ctx, postID).Return(&market.Sale{
			SellerID:    seller,
			Title:       "t",
			Amount:      1000,
			Outsourcing: true,
			Available:   false,
		}, nil)

		_, err := factory.FindOrCreate(ctx, buyer, pc)
		assert.ErrorIs(t, err, ErrSourceUnavailable)
	})

	t.Run("unknown post maps to unavailable", func(t *testing.T) {
		factory, repo, source := newTestFactory(t)
		repo.On("FindPendingByBuyerAndPost", ctx, buyer, postID).Return(nil, ErrOrderNotFound)
		source.On("ResolvePost", ctx, postID).Return(nil, market.ErrPostNotFound)

		_, err := factory.FindOrCreate(ctx, buyer, pc)
		assert.ErrorIs(t, err, ErrSourceUnavailable)
	})
}

func TestFactoryNumberCollisionRetry(t *testing.T) {
	ctx := context.Background()
	buyer := uuid.New()
	seller := uuid.New()
	postID := uuid.New()
	pc := PaymentContext{PostID: &postID}
	sale := &market.Sale{SellerID: seller, Title: "t", Amount: 1000, Outsourcing: true, Available: true}

	t.Run("retries on duplicate order number", func(t *testing.T) {
		factory, repo, source := newTestFactory(t)
		repo.On("FindPendingByBuyerAndPost", ctx, buyer, postID).Return(nil, ErrOrderNotFound)
		source.On("ResolvePost", ctx, postID).Return(sale, nil)
		repo.On("Create", ctx, mock.AnythingOfType("*order.Order")).Return(gorm.ErrDuplicatedKey).Twice()
		repo.On("Create", ctx, mock.AnythingOfType("*order.Order")).Return(nil).Once()

		got, err := factory.FindOrCreate(ctx, buyer, pc)
		require.NoError(t, err)
		assert.Regexp(t, orderNumberPattern, got.OrderNumber)
		repo.AssertNumberOfCalls(t, "Create", 3)
	})

	t.Run("gives up after bounded attempts", func(t *testing.T) {
		factory, repo, source := newTestFactory(t)
		repo.On("FindPendingByBuyerAndPost", ctx, buyer, postID).Return(nil, ErrOrderNotFound)
		source.On("ResolvePost", ctx, postID).Return(sale, nil)
		repo.On("Create", ctx, mock.AnythingOfType("*order.Order")).Return(gorm.ErrDuplicatedKey)

		_, err := factory.FindOrCreate(ctx, buyer, pc)
		assert.ErrorIs(t, err, ErrNumberExhausted)
		repo.AssertNumberOfCalls(t, "Create", maxNumberRetries)
	})

	t.Run("non-duplicate errors are not retried", func(t *testing.T) {
		factory, repo, source := newTestFactory(t)
		repo.On("FindPendingByBuyerAndPost", ctx, buyer, postID).Return(nil, ErrOrderNotFound)
		source.On("ResolvePost", ctx, postID).Return(sale, nil)
		repo.On("Create", ctx, mock.AnythingOfType("*order.Order")).Return(gorm.ErrInvalidData)

		_, err := factory.FindOrCreate(ctx, buyer, pc)
		assert.ErrorIs(t, err, gorm.ErrInvalidData)
		repo.AssertNumberOfCalls(t, "Create", 1)
	})
}

func TestGenerateOrderNumber(t *testing.T) {
	const n = 1000

	var (
		mu      sync.Mutex
		seen    = make(map[string]bool, n)
		wg      sync.WaitGroup
		failure error
	)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			number, err := generateOrderNumber()
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				failure = err
				return
			}
			seen[number] = true
		}()
	}
	wg.Wait()

	require.NoError(t, failure)
	assert.Len(t, seen, n)
	for number := range seen {
		assert.Regexp(t, orderNumberPattern, number)
	}
}

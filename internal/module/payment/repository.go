package payment

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// WebhookEvent is the durable dedup record for one webhook delivery. The
// unique hash makes replayed deliveries observable as constraint conflicts.
type WebhookEvent struct {
	ID         uuid.UUID `gorm:"type:uuid;primaryKey;default:gen_random_uuid()"`
	EventHash  string    `gorm:"uniqueIndex;not null;size:64"`
	EventType  string    `gorm:"not null"`
	Status     string
	ReceivedAt time.Time
}

// TableName returns the database table name.
func (WebhookEvent) TableName() string {
	return "payment_webhook_events"
}

// Repository defines payment persistence operations.
type Repository interface {
	Create(ctx context.Context, payment *Payment) error
	GetByID(ctx context.Context, id uuid.UUID) (*Payment, error)
	GetByTossOrderID(ctx context.Context, tossOrderID string) (*Payment, error)
	GetByTossOrderIDForUpdate(ctx context.Context, tossOrderID string) (*Payment, error)
	GetByPaymentKey(ctx context.Context, paymentKey string) (*Payment, error)
	GetByPaymentKeyForUpdate(ctx context.Context, paymentKey string) (*Payment, error)
	FindPendingByOrder(ctx context.Context, orderID uuid.UUID) (*Payment, error)
	FindDoneByOrder(ctx context.Context, orderID uuid.UUID) (*Payment, error)
	Update(ctx context.Context, payment *Payment) error
	RecordWebhookEvent(ctx context.Context, event *WebhookEvent) error
	WithTx(tx *gorm.DB) Repository
}

type repository struct {
	db *gorm.DB
}

// NewRepository creates a gorm-backed payment repository.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

// WithTx returns a repository bound to the given transaction.
func (r *repository) WithTx(tx *gorm.DB) Repository {
	return &repository{db: tx}
}

func (r *repository) Create(ctx context.Context, payment *Payment) error {
	return r.db.WithContext(ctx).Create(payment).Error
}

func (r *repository) GetByID(ctx context.Context, id uuid.UUID) (*Payment, error) {
	var payment Payment
	err := r.db.WithContext(ctx).First(&payment, "id = ?", id).Error
	if err != nil {
		return nil, mapNotFound(err)
	}
	return &payment, nil
}

func (r *repository) GetByTossOrderID(ctx context.Context, tossOrderID string) (*Payment, error) {
	var payment Payment
	err := r.db.WithContext(ctx).First(&payment, "toss_order_id = ?", tossOrderID).Error
	if err != nil {
		return nil, mapNotFound(err)
	}
	return &payment, nil
}

// GetByTossOrderIDForUpdate loads the payment under a row lock. Must be
// called inside a transaction; the lock serializes the webhook and redirect
// channels racing on the same payment.
func (r *repository) GetByTossOrderIDForUpdate(ctx context.Context, tossOrderID string) (*Payment, error) {
	var payment Payment
	err := r.db.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		First(&payment, "toss_order_id = ?", tossOrderID).Error
	if err != nil {
		return nil, mapNotFound(err)
	}
	return &payment, nil
}

func (r *repository) GetByPaymentKey(ctx context.Context, paymentKey string) (*Payment, error) {
	var payment Payment
	err := r.db.WithContext(ctx).First(&payment, "payment_key = ?", paymentKey).Error
	if err != nil {
		return nil, mapNotFound(err)
	}
	return &payment, nil
}

func (r *repository) GetByPaymentKeyForUpdate(ctx context.Context, paymentKey string) (*Payment, error) {
	var payment Payment
	err := r.db.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		First(&payment, "payment_key = ?", paymentKey).Error
	if err != nil {
		return nil, mapNotFound(err)
	}
	return &payment, nil
}

func (r *repository) FindPendingByOrder(ctx context.Context, orderID uuid.UUID) (*Payment, error) {
	var payment Payment
	err := r.db.WithContext(ctx).
		Where("order_id = ? AND status = ?", orderID, PaymentStatusPending).
		Order("created_at DESC").
		First(&payment).Error
	if err != nil {
		return nil, mapNotFound(err)
	}
	return &payment, nil
}

// FindDoneByOrder returns the order's successful payment. The application
// invariant allows at most one.
func (r *repository) FindDoneByOrder(ctx context.Context, orderID uuid.UUID) (*Payment, error) {
	var payment Payment
	err := r.db.WithContext(ctx).
		Where("order_id = ? AND status = ?", orderID, PaymentStatusDone).
		First(&payment).Error
	if err != nil {
		return nil, mapNotFound(err)
	}
	return &payment, nil
}

func (r *repository) Update(ctx context.Context, payment *Payment) error {
	return r.db.WithContext(ctx).Save(payment).Error
}

// RecordWebhookEvent inserts the dedup row. Returns ErrDuplicateDelivery
// when the event hash was already recorded.
func (r *repository) RecordWebhookEvent(ctx context.Context, event *WebhookEvent) error {
	err := r.db.WithContext(ctx).Create(event).Error
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return ErrDuplicateDelivery
	}
	return err
}

func mapNotFound(err error) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return ErrPaymentNotFound
	}
	return err
}

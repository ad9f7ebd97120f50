package payment

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/workmoa/server/internal/module/order"
	"github.com/workmoa/server/internal/module/payment/gateway"
	"github.com/workmoa/server/internal/utils/metrics"
)

// maxTossOrderIDRetries bounds the collision retry loop for the
// provider-side order id.
const maxTossOrderIDRetries = 5

// Service drives the payment lifecycle. Every status mutation happens under
// a row lock inside a database transaction; the webhook and redirect
// channels racing on the same payment serialize there, and the losing
// channel degrades to a guarded no-op.
type Service struct {
	repo      Repository
	orderRepo order.Repository
	factory   *order.Factory
	gateway   gateway.Gateway
	orderCfg  order.Config
	logger    *zap.Logger
	metrics   *metrics.Metrics

	// runInTx wraps fn in a database transaction. Swappable in tests.
	runInTx func(ctx context.Context, fn func(tx *gorm.DB) error) error
}

// NewService creates a payment service. metrics may be nil in tests.
func NewService(
	db *gorm.DB,
	repo Repository,
	orderRepo order.Repository,
	factory *order.Factory,
	gw gateway.Gateway,
	orderCfg order.Config,
	logger *zap.Logger,
	m *metrics.Metrics,
) *Service {
	return &Service{
		repo:      repo,
		orderRepo: orderRepo,
		factory:   factory,
		gateway:   gw,
		orderCfg:  orderCfg,
		logger:    logger,
		metrics:   m,
		runInTx: func(ctx context.Context, fn func(tx *gorm.DB) error) error {
			return db.WithContext(ctx).Transaction(fn)
		},
	}
}

// Checkout returns the buyer's order and pending payment for the given
// context, creating either as needed. Retrying checkout reuses the pending
// pair instead of piling up rows.
func (s *Service) Checkout(ctx context.Context, buyerID uuid.UUID, pc order.PaymentContext) (*order.Order, *Payment, error) {
	o, err := s.factory.FindOrCreate(ctx, buyerID, pc)
	if err != nil {
		return nil, nil, err
	}

	p, err := s.repo.FindPendingByOrder(ctx, o.ID)
	if err == nil {
		return o, p, nil
	}
	if !errors.Is(err, ErrPaymentNotFound) {
		return nil, nil, err
	}

	p, err = NewPayment(o)
	if err != nil {
		return nil, nil, err
	}
	if err := s.persistWithTossOrderID(ctx, p); err != nil {
		return nil, nil, err
	}

	if s.metrics != nil {
		s.metrics.OrdersCreatedTotal.WithLabelValues(string(o.Type)).Inc()
	}
	s.logger.Info("checkout prepared",
		zap.String("order_id", o.ID.String()),
		zap.String("toss_order_id", p.TossOrderID),
		zap.Int64("amount", p.Amount))
	return o, p, nil
}

func (s *Service) persistWithTossOrderID(ctx context.Context, p *Payment) error {
	for attempt := 0; attempt < maxTossOrderIDRetries; attempt++ {
		id, err := generateTossOrderID()
		if err != nil {
			return err
		}
		p.TossOrderID = id

		err = s.repo.Create(ctx, p)
		if err == nil {
			return nil
		}
		if !errors.Is(err, gorm.ErrDuplicatedKey) {
			return err
		}
		s.logger.Warn("toss order id collision, retrying",
			zap.String("toss_order_id", id),
			zap.Int("attempt", attempt+1))
	}
	return ErrNumberExhausted
}

// GetByTossOrderID returns the payment for a provider-side order id.
func (s *Service) GetByTossOrderID(ctx context.Context, tossOrderID string) (*Payment, error) {
	return s.repo.GetByTossOrderID(ctx, tossOrderID)
}

// Approve is the redirect-side approval path. If a webhook already completed
// the approval, the gateway is not called again and the existing payment is
// returned as-is.
func (s *Service) Approve(ctx context.Context, paymentKey, tossOrderID string, amount int64) (*Payment, error) {
	p, err := s.repo.GetByTossOrderID(ctx, tossOrderID)
	if err != nil {
		return nil, err
	}

	switch p.Status {
	case PaymentStatusDone, PaymentStatusReady:
		// The webhook won the race. Nothing left to do.
		return p, nil
	case PaymentStatusFailed, PaymentStatusCancelled:
		return nil, ErrNotApprovable
	}

	if amount != p.Amount {
		s.logger.Warn("approval amount mismatch",
			zap.String("toss_order_id", tossOrderID),
			zap.Int64("expected", p.Amount),
			zap.Int64("got", amount))
		return nil, ErrAmountMismatch
	}

	result, err := s.callApprove(ctx, gateway.ApproveRequest{
		PaymentKey: paymentKey,
		OrderID:    tossOrderID,
		Amount:     amount,
	})
	if err != nil {
		var provErr *gateway.Error
		if errors.As(err, &provErr) {
			if ferr := s.failPayment(ctx, tossOrderID, provErr.Code, provErr.Message); ferr != nil {
				s.logger.Error("could not record approval failure", zap.Error(ferr))
			}
		}
		return nil, err
	}

	return s.applyApproval(ctx, tossOrderID, result, "redirect")
}

func (s *Service) callApprove(ctx context.Context, req gateway.ApproveRequest) (*gateway.ApproveResult, error) {
	start := time.Now()
	result, err := s.gateway.Approve(ctx, req)
	s.observeGateway("approve", start, err)
	return result, err
}

// applyApproval persists an approval result. The payment row lock is the
// serialization point; a concurrent channel that already moved the payment
// forward turns this call into a no-op.
func (s *Service) applyApproval(ctx context.Context, tossOrderID string, result *gateway.ApproveResult, source string) (*Payment, error) {
	var applied *Payment
	err := s.runInTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		p, err := repo.GetByTossOrderIDForUpdate(ctx, tossOrderID)
		if err != nil {
			return err
		}

		if !p.ApplyApproval(result) {
			applied = p
			return nil
		}
		if err := repo.Update(ctx, p); err != nil {
			return err
		}

		// Money has moved only for a done payment. A ready virtual
		// account leaves the order pending.
		if p.IsDone() {
			if err := s.markOrderPaid(ctx, tx, p.OrderID); err != nil {
				return err
			}
		}

		if s.metrics != nil {
			s.metrics.ApprovalsTotal.WithLabelValues(string(p.Method), source).Inc()
		}
		s.logger.Info("payment approved",
			zap.String("toss_order_id", p.TossOrderID),
			zap.String("method", string(p.Method)),
			zap.String("status", string(p.Status)),
			zap.String("source", source))
		applied = p
		return nil
	})
	if err != nil {
		return nil, err
	}
	return applied, nil
}

// MarkDone is the webhook-side equivalent of an approval for a payment the
// provider already reports as captured.
func (s *Service) MarkDone(ctx context.Context, paymentKey string) error {
	return s.runInTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		p, err := repo.GetByPaymentKeyForUpdate(ctx, paymentKey)
		if err != nil {
			return err
		}
		if p.IsDone() {
			return nil
		}
		if !canTransition(p.Status, PaymentStatusDone) {
			s.logger.Warn("ignoring done signal for terminal payment",
				zap.String("payment_key", paymentKey),
				zap.String("status", string(p.Status)))
			return nil
		}

		now := time.Now()
		p.Status = PaymentStatusDone
		p.ApprovedAt = &now
		p.UpdatedAt = now
		if err := repo.Update(ctx, p); err != nil {
			return err
		}
		if err := s.markOrderPaid(ctx, tx, p.OrderID); err != nil {
			return err
		}

		if s.metrics != nil {
			s.metrics.ApprovalsTotal.WithLabelValues(string(p.Method), "webhook").Inc()
		}
		s.logger.Info("payment marked done by webhook",
			zap.String("payment_key", paymentKey))
		return nil
	})
}

// ConfirmDeposit completes a virtual-account payment once the deposit
// callback arrives. Repeated callbacks are no-ops.
func (s *Service) ConfirmDeposit(ctx context.Context, tossOrderID string) error {
	return s.runInTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		p, err := repo.GetByTossOrderIDForUpdate(ctx, tossOrderID)
		if err != nil {
			return err
		}
		if !p.ConfirmDeposit() {
			return nil
		}
		if err := repo.Update(ctx, p); err != nil {
			return err
		}
		if err := s.markOrderPaid(ctx, tx, p.OrderID); err != nil {
			return err
		}

		if s.metrics != nil {
			s.metrics.ApprovalsTotal.WithLabelValues(string(p.Method), "deposit").Inc()
		}
		s.logger.Info("virtual account deposit confirmed",
			zap.String("toss_order_id", tossOrderID))
		return nil
	})
}

// MarkFailed records a failed payment attempt. The order is left untouched
// so the buyer can retry with a fresh payment row.
func (s *Service) MarkFailed(ctx context.Context, tossOrderID, code, message string) error {
	return s.failPayment(ctx, tossOrderID, code, message)
}

func (s *Service) failPayment(ctx context.Context, tossOrderID, code, message string) error {
	return s.runInTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		p, err := repo.GetByTossOrderIDForUpdate(ctx, tossOrderID)
		if err != nil {
			return err
		}
		if !p.MarkFailed(code, message) {
			return nil
		}
		if err := repo.Update(ctx, p); err != nil {
			return err
		}
		s.logger.Warn("payment failed",
			zap.String("toss_order_id", tossOrderID),
			zap.String("code", code),
			zap.String("message", message))
		return nil
	})
}

// CancelByProvider records a provider-initiated cancellation reported over
// the webhook. The order is cancelled only when the cancelled payment was
// the order's successful one; a cancelled virtual account that was never
// deposited leaves the order pending.
func (s *Service) CancelByProvider(ctx context.Context, p *Payment, raw string) error {
	return s.runInTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		locked, err := repo.GetByTossOrderIDForUpdate(ctx, p.TossOrderID)
		if err != nil {
			return err
		}

		wasDone := locked.IsDone()
		if !locked.MarkCancelled(raw) {
			return nil
		}
		if err := repo.Update(ctx, locked); err != nil {
			return err
		}
		if wasDone {
			if err := s.cancelOrder(ctx, tx, locked.OrderID); err != nil {
				return err
			}
		}

		if s.metrics != nil {
			s.metrics.CancellationsTotal.WithLabelValues("provider").Inc()
		}
		s.logger.Info("payment cancelled by provider",
			zap.String("toss_order_id", locked.TossOrderID),
			zap.Bool("order_cancelled", wasDone))
		return nil
	})
}

// Cancel is the buyer-initiated cancellation path. The gateway call happens
// before any local mutation: if the provider refuses, nothing changes and
// the provider error surfaces to the caller.
func (s *Service) Cancel(ctx context.Context, orderID, buyerID uuid.UUID, reason string) (*order.Order, error) {
	o, err := s.orderRepo.GetByID(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if o.BuyerID != buyerID {
		return nil, order.ErrNotOrderParty
	}
	if !o.CanCancel(time.Now(), s.orderCfg.CancelWindow) {
		return nil, order.ErrOrderNotCancelable
	}

	successful, err := s.repo.FindDoneByOrder(ctx, o.ID)
	if err != nil && !errors.Is(err, ErrPaymentNotFound) {
		return nil, err
	}

	var raw string
	if successful != nil {
		key := ""
		if successful.PaymentKey != nil {
			key = *successful.PaymentKey
		}
		start := time.Now()
		result, err := s.gateway.Cancel(ctx, gateway.CancelRequest{
			PaymentKey: key,
			Reason:     reason,
		})
		s.observeGateway("cancel", start, err)
		if err != nil {
			if s.metrics != nil {
				s.metrics.CancellationsTotal.WithLabelValues("provider_error").Inc()
			}
			return nil, err
		}
		raw = string(result.Raw)
	}

	var cancelled *order.Order
	err = s.runInTx(ctx, func(tx *gorm.DB) error {
		if successful != nil {
			repo := s.repo.WithTx(tx)
			locked, err := repo.GetByTossOrderIDForUpdate(ctx, successful.TossOrderID)
			if err != nil {
				return err
			}
			if locked.MarkCancelled(raw) {
				if err := repo.Update(ctx, locked); err != nil {
					return err
				}
			}
		}

		orderRepo := s.orderRepo.WithTx(tx)
		locked, err := orderRepo.GetByIDForUpdate(ctx, o.ID)
		if err != nil {
			return err
		}
		if !locked.CanCancel(time.Now(), s.orderCfg.CancelWindow) && successful == nil {
			return order.ErrOrderNotCancelable
		}
		if locked.MarkCancelled() {
			if err := orderRepo.Update(ctx, locked); err != nil {
				return err
			}
		}
		cancelled = locked
		return nil
	})
	if err != nil {
		return nil, err
	}

	if s.metrics != nil {
		s.metrics.CancellationsTotal.WithLabelValues("success").Inc()
	}
	s.logger.Info("order cancelled",
		zap.String("order_id", cancelled.ID.String()),
		zap.String("reason", reason))
	return cancelled, nil
}

func (s *Service) markOrderPaid(ctx context.Context, tx *gorm.DB, orderID uuid.UUID) error {
	repo := s.orderRepo.WithTx(tx)
	o, err := repo.GetByIDForUpdate(ctx, orderID)
	if err != nil {
		return err
	}
	if o.MarkPaid() {
		return repo.Update(ctx, o)
	}
	return nil
}

func (s *Service) cancelOrder(ctx context.Context, tx *gorm.DB, orderID uuid.UUID) error {
	repo := s.orderRepo.WithTx(tx)
	o, err := repo.GetByIDForUpdate(ctx, orderID)
	if err != nil {
		return err
	}
	if o.MarkCancelled() {
		return repo.Update(ctx, o)
	}
	return nil
}

func (s *Service) observeGateway(operation string, start time.Time, err error) {
	if s.metrics == nil {
		return
	}
	status := "ok"
	if err != nil {
		status = "error"
	}
	s.metrics.GatewayDuration.WithLabelValues(operation, status).Observe(time.Since(start).Seconds())
}

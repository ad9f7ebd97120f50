package payment

import (
	"errors"
	"io"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/workmoa/server/internal/module/order"
	"github.com/workmoa/server/internal/module/payment/gateway"
	apperrors "github.com/workmoa/server/internal/shared/errors"
	"github.com/workmoa/server/internal/utils/middleware"
)

// SignatureHeader carries the provider's HMAC of the webhook body.
const SignatureHeader = "Provider-Signature"

// maxWebhookBody caps webhook reads; provider payloads are small.
const maxWebhookBody = 1 << 20

// Handler exposes checkout, the provider-facing webhook and redirect
// endpoints, and buyer-initiated cancellation.
type Handler struct {
	service   *Service
	processor *WebhookProcessor
	orderCfg  order.Config
	logger    *zap.Logger
}

// NewHandler creates a payment handler.
func NewHandler(service *Service, processor *WebhookProcessor, orderCfg order.Config, logger *zap.Logger) *Handler {
	return &Handler{
		service:   service,
		processor: processor,
		orderCfg:  orderCfg,
		logger:    logger,
	}
}

// RegisterRoutes mounts the authenticated payment endpoints.
func (h *Handler) RegisterRoutes(r *gin.RouterGroup) {
	r.POST("/checkout", h.checkout)
	r.POST("/orders/:id/cancel", h.cancelOrder)
}

// RegisterProviderRoutes mounts the unauthenticated provider-facing
// endpoints: the webhook and the browser redirects.
func (h *Handler) RegisterProviderRoutes(r *gin.RouterGroup) {
	r.POST("/webhooks/toss", h.webhook)
	r.GET("/payments/toss/success", h.redirectSuccess)
	r.GET("/payments/toss/fail", h.redirectFail)
}

func (h *Handler) checkout(c *gin.Context) {
	userID, ok := middleware.GetUserID(c)
	if !ok {
		h.respondError(c, apperrors.Authenticity("missing user identity"))
		return
	}

	var req CheckoutRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.respondError(c, apperrors.Validation("INVALID_REQUEST", "request body is not valid JSON"))
		return
	}

	o, p, err := h.service.Checkout(c.Request.Context(), userID, req.PaymentContext())
	if err != nil {
		h.respondError(c, err)
		return
	}

	c.JSON(http.StatusCreated, CheckoutResponse{
		Order:   order.ToResponse(o, h.orderCfg.FeeRate),
		Payment: ToPaymentResponse(p),
	})
}

// webhook responds 200 once signature and parse succeed, even for unknown
// references, so the provider stops retrying.
func (h *Handler) webhook(c *gin.Context) {
	body, err := io.ReadAll(io.LimitReader(c.Request.Body, maxWebhookBody))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": gin.H{"code": "INVALID_BODY", "message": "could not read body"}})
		return
	}

	err = h.processor.Process(c.Request.Context(), body, c.GetHeader(SignatureHeader))
	switch {
	case err == nil:
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	case errors.Is(err, ErrInvalidSignature), errors.Is(err, ErrWebhookSecretUnset):
		c.JSON(http.StatusUnauthorized, gin.H{"error": gin.H{"code": "INVALID_SIGNATURE", "message": "signature verification failed"}})
	case errors.Is(err, ErrMalformedPayload):
		c.JSON(http.StatusBadRequest, gin.H{"error": gin.H{"code": "MALFORMED_PAYLOAD", "message": "payload is not a JSON object"}})
	default:
		h.logger.Error("webhook processing failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": gin.H{"code": "INTERNAL_ERROR", "message": "webhook processing failed"}})
	}
}

func (h *Handler) redirectSuccess(c *gin.Context) {
	paymentKey := c.Query("paymentKey")
	tossOrderID := c.Query("orderId")
	amountRaw := c.Query("amount")

	if paymentKey == "" || tossOrderID == "" || amountRaw == "" {
		h.respondError(c, apperrors.Validation("MISSING_PARAMS", "paymentKey, orderId and amount are required"))
		return
	}
	amount, err := strconv.ParseInt(amountRaw, 10, 64)
	if err != nil {
		h.respondError(c, apperrors.Validation("INVALID_AMOUNT", "amount must be an integer"))
		return
	}

	p, err := h.service.Approve(c.Request.Context(), paymentKey, tossOrderID, amount)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, ToPaymentResponse(p))
}

// redirectFail records the provider-reported failure and echoes it back.
// Recording is best effort: the user already saw the provider's error page.
func (h *Handler) redirectFail(c *gin.Context) {
	code := c.Query("code")
	message := c.Query("message")
	tossOrderID := c.Query("orderId")

	if tossOrderID != "" {
		if err := h.service.MarkFailed(c.Request.Context(), tossOrderID, code, message); err != nil &&
			!errors.Is(err, ErrPaymentNotFound) {
			h.logger.Error("could not record payment failure",
				zap.String("toss_order_id", tossOrderID),
				zap.Error(err))
		}
	}

	c.JSON(http.StatusOK, gin.H{
		"status":  "failed",
		"code":    code,
		"message": message,
	})
}

func (h *Handler) cancelOrder(c *gin.Context) {
	userID, ok := middleware.GetUserID(c)
	if !ok {
		h.respondError(c, apperrors.Authenticity("missing user identity"))
		return
	}
	orderID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		h.respondError(c, apperrors.Validation("INVALID_ORDER_ID", "order id must be a UUID"))
		return
	}

	var req CancelRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.respondError(c, apperrors.Validation("INVALID_REQUEST", "reason is required"))
		return
	}

	o, err := h.service.Cancel(c.Request.Context(), orderID, userID, req.Reason)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, order.ToResponse(o, h.orderCfg.FeeRate))
}

func (h *Handler) respondError(c *gin.Context, err error) {
	appErr := h.toAppError(err)
	if appErr.StatusCode >= http.StatusInternalServerError {
		h.logger.Error("payment request failed", zap.Error(err), zap.String("path", c.FullPath()))
	}
	c.JSON(appErr.StatusCode, appErr.ToResponse())
}

func (h *Handler) toAppError(err error) *apperrors.AppError {
	var appErr *apperrors.AppError
	if errors.As(err, &appErr) {
		return appErr
	}

	// Provider errors keep the provider's code and message verbatim.
	var provErr *gateway.Error
	if errors.As(err, &provErr) {
		return apperrors.Provider(provErr.Code, provErr.Message, provErr)
	}

	switch {
	case errors.Is(err, ErrPaymentNotFound):
		return apperrors.Reference("payment")
	case errors.Is(err, order.ErrOrderNotFound):
		return apperrors.Reference("order")
	case errors.Is(err, order.ErrNotOrderParty):
		return apperrors.Reference("order")
	case errors.Is(err, ErrAmountMismatch):
		return apperrors.Validation("AMOUNT_MISMATCH", err.Error())
	case errors.Is(err, ErrInvalidAmount):
		return apperrors.Validation("INVALID_AMOUNT", err.Error())
	case errors.Is(err, ErrNotApprovable):
		return apperrors.Conflict("NOT_APPROVABLE", err.Error())
	case errors.Is(err, order.ErrOrderNotCancelable):
		return apperrors.Conflict("NOT_CANCELABLE", err.Error())
	case errors.Is(err, order.ErrNoPaymentContext):
		return apperrors.Validation("INVALID_PAYMENT_CONTEXT", err.Error())
	case errors.Is(err, order.ErrOwnPost):
		return apperrors.Validation("OWN_POST", err.Error())
	case errors.Is(err, order.ErrNotOutsourcing):
		return apperrors.Validation("NOT_OUTSOURCING", err.Error())
	case errors.Is(err, order.ErrSourceUnavailable):
		return apperrors.Conflict("SOURCE_UNAVAILABLE", err.Error())
	case errors.Is(err, ErrNumberExhausted), errors.Is(err, order.ErrNumberExhausted):
		return apperrors.Internal("could not allocate a unique identifier", err)
	default:
		return apperrors.Internal("unexpected error", err)
	}
}

package order

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	apperrors "github.com/workmoa/server/internal/shared/errors"
	"github.com/workmoa/server/internal/utils/middleware"
)

// Handler exposes order reads and the work-lifecycle endpoints.
type Handler struct {
	service *Service
	cfg     Config
	logger  *zap.Logger
}

// NewHandler creates an order handler.
func NewHandler(service *Service, cfg Config, logger *zap.Logger) *Handler {
	return &Handler{
		service: service,
		cfg:     cfg,
		logger:  logger,
	}
}

// RegisterRoutes mounts the order endpoints on an authenticated group.
func (h *Handler) RegisterRoutes(r *gin.RouterGroup) {
	orders := r.Group("/orders")
	{
		orders.GET("", h.listOrders)
		orders.GET("/:id", h.getOrder)
		orders.POST("/:id/start", h.startWork)
		orders.POST("/:id/confirm", h.confirmCompletion)
	}
}

func (h *Handler) getOrder(c *gin.Context) {
	userID, id, ok := h.parseIdentityAndID(c)
	if !ok {
		return
	}

	order, err := h.service.GetOrder(c.Request.Context(), id, userID)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, ToResponse(order, h.cfg.FeeRate))
}

func (h *Handler) listOrders(c *gin.Context) {
	userID, ok := middleware.GetUserID(c)
	if !ok {
		h.respondError(c, apperrors.Authenticity("missing user identity"))
		return
	}

	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "20"))
	offset, _ := strconv.Atoi(c.DefaultQuery("offset", "0"))

	orders, total, err := h.service.ListOrders(c.Request.Context(), userID, limit, offset)
	if err != nil {
		h.respondError(c, err)
		return
	}

	resp := ListOrdersResponse{
		Orders: make([]OrderResponse, 0, len(orders)),
		Total:  total,
		Limit:  limit,
		Offset: offset,
	}
	for i := range orders {
		resp.Orders = append(resp.Orders, ToResponse(&orders[i], h.cfg.FeeRate))
	}
	c.JSON(http.StatusOK, resp)
}

func (h *Handler) startWork(c *gin.Context) {
	userID, id, ok := h.parseIdentityAndID(c)
	if !ok {
		return
	}

	order, err := h.service.StartWork(c.Request.Context(), id, userID)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, ToResponse(order, h.cfg.FeeRate))
}

func (h *Handler) confirmCompletion(c *gin.Context) {
	userID, id, ok := h.parseIdentityAndID(c)
	if !ok {
		return
	}

	order, err := h.service.ConfirmCompletion(c.Request.Context(), id, userID)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, ToResponse(order, h.cfg.FeeRate))
}

func (h *Handler) parseIdentityAndID(c *gin.Context) (uuid.UUID, uuid.UUID, bool) {
	userID, ok := middleware.GetUserID(c)
	if !ok {
		h.respondError(c, apperrors.Authenticity("missing user identity"))
		return uuid.Nil, uuid.Nil, false
	}
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		h.respondError(c, apperrors.Validation("INVALID_ORDER_ID", "order id must be a UUID"))
		return uuid.Nil, uuid.Nil, false
	}
	return userID, id, true
}

func (h *Handler) respondError(c *gin.Context, err error) {
	appErr := h.toAppError(err)
	if appErr.StatusCode >= http.StatusInternalServerError {
		h.logger.Error("order request failed", zap.Error(err), zap.String("path", c.FullPath()))
	}
	c.JSON(appErr.StatusCode, appErr.ToResponse())
}

func (h *Handler) toAppError(err error) *apperrors.AppError {
	var appErr *apperrors.AppError
	if errors.As(err, &appErr) {
		return appErr
	}

	switch {
	case errors.Is(err, ErrOrderNotFound):
		return apperrors.Reference("order")
	case errors.Is(err, ErrNotOrderParty):
		return apperrors.Reference("order") // hide existence from non-parties
	case errors.Is(err, ErrNoPaymentContext):
		return apperrors.Validation("INVALID_PAYMENT_CONTEXT", err.Error())
	case errors.Is(err, ErrOwnPost):
		return apperrors.Validation("OWN_POST", err.Error())
	case errors.Is(err, ErrInvalidAmount):
		return apperrors.Validation("INVALID_AMOUNT", err.Error())
	case errors.Is(err, ErrNotOutsourcing):
		return apperrors.Validation("NOT_OUTSOURCING", err.Error())
	case errors.Is(err, ErrSourceUnavailable):
		return apperrors.Conflict("SOURCE_UNAVAILABLE", err.Error())
	case errors.Is(err, ErrOrderNotCancelable):
		return apperrors.Conflict("NOT_CANCELABLE", err.Error())
	default:
		return apperrors.Internal("unexpected error", err)
	}
}

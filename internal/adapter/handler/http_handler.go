package handler

import (
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/rl1809/stock-ledger/internal/config"
	"github.com/rl1809/stock-ledger/internal/core/domain"
	"github.com/rl1809/stock-ledger/internal/core/service"
)

const (
	headerRequestID      = "X-Request-ID"
	headerIdempotencyKey = "Idempotency-Key"
	headerUserID         = "X-User-ID"
	headerUserRole       = "X-User-Role"
	headerUserBranches   = "X-User-Branches"

	ctxKeyRequestID = "request_id"
	ctxKeyPrincipal = "principal"
)

type HTTPHandler struct {
	ledger *service.LedgerService
	logger *logrus.Logger
}

func NewHTTPHandler(ledger *service.LedgerService, logger *logrus.Logger) *HTTPHandler {
	return &HTTPHandler{ledger: ledger, logger: logger}
}

// NewRouter builds the gin engine with request ids, access logging and
// panic recovery in front of the ledger routes.
func NewRouter(h *HTTPHandler) *gin.Engine {
	r := gin.New()
	r.Use(requestID(), accessLog(h.logger), gin.Recovery())

	r.GET("/health", h.HealthCheck)

	api := r.Group("/api", authenticate())
	h.Register(api)
	return r
}

func (h *HTTPHandler) Register(r gin.IRouter) {
	inbound := r.Group("/inbound")
	inbound.POST("/orders", h.ReceiveInbound)
	inbound.GET("/orders", h.ListInboundOrders)
	inbound.GET("/orders/:id", h.GetInboundOrder)
	inbound.POST("/shipments", h.ReceiveShipment)

	quality := r.Group("/quality")
	quality.PUT("/stock_lots/:id", h.InspectLot)
	quality.GET("/stock_lots/pending", h.ListPendingLots)

	outbound := r.Group("/outbound")
	outbound.POST("/orders", h.FulfillOutbound)
	outbound.GET("/orders", h.ListOutboundOrders)
	outbound.GET("/orders/:id", h.GetOutboundOrder)

	products := r.Group("/products")
	products.GET("/:id/quantities", h.GetProductQuantities)
	products.GET("/:id/lots", h.ListLots)
}

func requestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := strings.TrimSpace(c.GetHeader(headerRequestID))
		if id == "" {
			id = uuid.NewString()
		}
		c.Set(ctxKeyRequestID, id)
		c.Header(headerRequestID, id)
		c.Next()
	}
}

func accessLog(logger *logrus.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		logger.WithFields(logrus.Fields{
			"method":     c.Request.Method,
			"path":       c.Request.URL.Path,
			"status":     c.Writer.Status(),
			"latency_ms": time.Since(start).Milliseconds(),
			"request_id": c.GetString(ctxKeyRequestID),
			"client_ip":  c.ClientIP(),
		}).Info("http request")
	}
}

func authenticate() gin.HandlerFunc {
	return func(c *gin.Context) {
		p, err := parsePrincipal(c.GetHeader(headerUserID), c.GetHeader(headerUserRole), c.GetHeader(headerUserBranches))
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, ErrorResponse{Error: "unauthenticated", Message: err.Error()})
			return
		}
		c.Set(ctxKeyPrincipal, p)
		c.Next()
	}
}

func principalFrom(c *gin.Context) Principal {
	p, _ := c.MustGet(ctxKeyPrincipal).(Principal)
	return p
}

func (h *HTTPHandler) HealthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (h *HTTPHandler) ReceiveInbound(c *gin.Context) {
	var req ReceiveInboundRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}

	p := principalFrom(c)
	if err := p.requireBranch(req.BranchID); err != nil {
		h.writeError(c, "ReceiveInbound", err)
		return
	}

	receipt, err := h.ledger.ReceiveInbound(c.Request.Context(), service.ReceiveInboundRequest{
		ProductID: req.ProductID,
		BranchID:  req.BranchID,
		Quantity:  req.Quantity,
		UserID:    p.UserID,
	})
	if err != nil {
		h.writeError(c, "ReceiveInbound", err)
		return
	}

	c.JSON(http.StatusCreated, toReceiptResponse(receipt))
}

func (h *HTTPHandler) ReceiveShipment(c *gin.Context) {
	var req ReceiveShipmentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}

	p := principalFrom(c)
	if err := p.requireBranch(req.BranchID); err != nil {
		h.writeError(c, "ReceiveShipment", err)
		return
	}

	items := make([]service.ShipmentItem, 0, len(req.Items))
	for _, item := range req.Items {
		items = append(items, service.ShipmentItem{ProductID: item.ProductID, Quantity: item.Quantity})
	}

	receipts, err := h.ledger.ReceiveShipment(c.Request.Context(), service.ReceiveShipmentRequest{
		BranchID: req.BranchID,
		UserID:   p.UserID,
		Items:    items,
	})
	if err != nil {
		h.writeError(c, "ReceiveShipment", err)
		return
	}

	resp := make([]ReceiptResponse, 0, len(receipts))
	for _, r := range receipts {
		resp = append(resp, toReceiptResponse(r))
	}
	c.JSON(http.StatusCreated, resp)
}

func (h *HTTPHandler) ListInboundOrders(c *gin.Context) {
	offset, limit, ok := pageParams(c)
	if !ok {
		return
	}

	orders, err := h.ledger.ListInboundOrders(c.Request.Context(), domain.OrderQuery{
		BranchIDs: principalFrom(c).BranchScope(),
		Offset:    offset,
		Limit:     limit,
	})
	if err != nil {
		h.writeError(c, "ListInboundOrders", err)
		return
	}

	c.JSON(http.StatusOK, toInboundResponses(orders))
}

func (h *HTTPHandler) GetInboundOrder(c *gin.Context) {
	id, ok := idParam(c)
	if !ok {
		return
	}

	order, err := h.ledger.GetInboundOrder(c.Request.Context(), id)
	if err == nil {
		err = principalFrom(c).requireBranch(order.BranchID)
	}
	if err != nil {
		h.writeError(c, "GetInboundOrder", err)
		return
	}

	c.JSON(http.StatusOK, toInboundResponse(order))
}

func (h *HTTPHandler) InspectLot(c *gin.Context) {
	id, ok := idParam(c)
	if !ok {
		return
	}

	var req InspectLotRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}

	p := principalFrom(c)
	if err := p.requireInspector(); err != nil {
		h.writeError(c, "InspectLot", err)
		return
	}

	lot, err := h.ledger.GetLot(c.Request.Context(), id)
	if err == nil {
		err = p.requireBranch(lot.BranchID)
	}
	if err != nil {
		h.writeError(c, "InspectLot", err)
		return
	}

	inspected, err := h.ledger.InspectLot(c.Request.Context(), service.InspectLotRequest{
		LotID:            id,
		TargetStatus:     domain.LotStatus(strings.ToUpper(req.Status)),
		QuantityOverride: req.Quantity,
		UserID:           p.UserID,
	})
	if err != nil {
		h.writeError(c, "InspectLot", err)
		return
	}

	c.JSON(http.StatusOK, toLotResponse(inspected))
}

func (h *HTTPHandler) ListPendingLots(c *gin.Context) {
	offset, limit, ok := pageParams(c)
	if !ok {
		return
	}

	p := principalFrom(c)
	if err := p.requireInspector(); err != nil {
		h.writeError(c, "ListPendingLots", err)
		return
	}

	lots, err := h.ledger.ListPendingLots(c.Request.Context(), service.LotQuery{
		BranchIDs: p.BranchScope(),
		Offset:    offset,
		Limit:     limit,
	})
	if err != nil {
		h.writeError(c, "ListPendingLots", err)
		return
	}

	c.JSON(http.StatusOK, toLotResponses(lots))
}

func (h *HTTPHandler) FulfillOutbound(c *gin.Context) {
	var req FulfillOutboundRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	if req.RequestID == "" {
		req.RequestID = strings.TrimSpace(c.GetHeader(headerIdempotencyKey))
	}

	p := principalFrom(c)
	if err := p.requireBranch(req.BranchID); err != nil {
		h.writeError(c, "FulfillOutbound", err)
		return
	}

	order, err := h.ledger.FulfillOutbound(c.Request.Context(), service.FulfillOutboundRequest{
		RequestID: req.RequestID,
		ProductID: req.ProductID,
		BranchID:  req.BranchID,
		Quantity:  req.Quantity,
		UserID:    p.UserID,
	})
	if err != nil {
		h.writeError(c, "FulfillOutbound", err)
		return
	}

	c.JSON(http.StatusCreated, toOutboundResponse(order))
}

func (h *HTTPHandler) ListOutboundOrders(c *gin.Context) {
	offset, limit, ok := pageParams(c)
	if !ok {
		return
	}

	orders, err := h.ledger.ListOutboundOrders(c.Request.Context(), domain.OrderQuery{
		BranchIDs: principalFrom(c).BranchScope(),
		Offset:    offset,
		Limit:     limit,
	})
	if err != nil {
		h.writeError(c, "ListOutboundOrders", err)
		return
	}

	c.JSON(http.StatusOK, toOutboundResponses(orders))
}

func (h *HTTPHandler) GetOutboundOrder(c *gin.Context) {
	id, ok := idParam(c)
	if !ok {
		return
	}

	order, err := h.ledger.GetOutboundOrder(c.Request.Context(), id)
	if err == nil {
		err = principalFrom(c).requireBranch(order.BranchID)
	}
	if err != nil {
		h.writeError(c, "GetOutboundOrder", err)
		return
	}

	c.JSON(http.StatusOK, toOutboundResponse(order))
}

func (h *HTTPHandler) GetProductQuantities(c *gin.Context) {
	id, ok := idParam(c)
	if !ok {
		return
	}

	product, err := h.ledger.GetProduct(c.Request.Context(), id)
	if err == nil {
		err = principalFrom(c).requireBranch(product.BranchID)
	}
	if err != nil {
		h.writeError(c, "GetProductQuantities", err)
		return
	}

	quantities, err := h.ledger.GetProductQuantities(c.Request.Context(), id)
	if err != nil {
		h.writeError(c, "GetProductQuantities", err)
		return
	}

	c.JSON(http.StatusOK, toQuantitiesResponse(quantities))
}

func (h *HTTPHandler) ListLots(c *gin.Context) {
	id, ok := idParam(c)
	if !ok {
		return
	}
	offset, limit, ok := pageParams(c)
	if !ok {
		return
	}

	p := principalFrom(c)
	product, err := h.ledger.GetProduct(c.Request.Context(), id)
	if err == nil {
		err = p.requireBranch(product.BranchID)
	}
	if err != nil {
		h.writeError(c, "ListLots", err)
		return
	}

	lots, err := h.ledger.ListLots(c.Request.Context(), id, service.LotQuery{
		BranchIDs: p.BranchScope(),
		Offset:    offset,
		Limit:     limit,
	})
	if err != nil {
		h.writeError(c, "ListLots", err)
		return
	}

	c.JSON(http.StatusOK, toLotResponses(lots))
}

// writeError maps err to a status code. Server-side failures are logged;
// client errors are only reflected in the access log.
func (h *HTTPHandler) writeError(c *gin.Context, funcName string, err error) {
	status, body := httpError(err)
	if status >= http.StatusInternalServerError {
		config.LogError(h.logger, "http_handler", funcName, c.FullPath(), c.GetString(ctxKeyRequestID), err)
	}
	c.AbortWithStatusJSON(status, body)
}

func httpError(err error) (int, ErrorResponse) {
	var insufficient *domain.InsufficientStockError
	switch {
	case errors.As(err, &insufficient):
		return http.StatusConflict, ErrorResponse{
			Error:     "insufficient_stock",
			Message:   err.Error(),
			Available: &insufficient.Available,
			Requested: &insufficient.Requested,
		}
	case errors.Is(err, errUnauthenticated):
		return http.StatusUnauthorized, ErrorResponse{Error: "unauthenticated", Message: err.Error()}
	case errors.Is(err, errForbidden):
		return http.StatusForbidden, ErrorResponse{Error: "forbidden", Message: err.Error()}
	case errors.Is(err, domain.ErrNotFound):
		return http.StatusNotFound, ErrorResponse{Error: "not_found", Message: err.Error()}
	case errors.Is(err, domain.ErrBranchMismatch):
		return http.StatusConflict, ErrorResponse{Error: "branch_mismatch", Message: err.Error()}
	case errors.Is(err, domain.ErrInvalidTransition):
		return http.StatusConflict, ErrorResponse{Error: "invalid_transition", Message: err.Error()}
	case errors.Is(err, domain.ErrInvalidTargetStatus):
		return http.StatusBadRequest, ErrorResponse{Error: "invalid_target_status", Message: err.Error()}
	case errors.Is(err, domain.ErrInvalidQuantity):
		return http.StatusBadRequest, ErrorResponse{Error: "invalid_quantity", Message: err.Error()}
	case errors.Is(err, domain.ErrDuplicateRequest):
		return http.StatusConflict, ErrorResponse{Error: "duplicate_request", Message: err.Error()}
	case errors.Is(err, domain.ErrTransactionConflict):
		return http.StatusServiceUnavailable, ErrorResponse{Error: "conflict", Message: "concurrent update, please retry"}
	default:
		return http.StatusInternalServerError, ErrorResponse{Error: "internal", Message: "internal error"}
	}
}

func badRequest(c *gin.Context, err error) {
	c.AbortWithStatusJSON(http.StatusBadRequest, ErrorResponse{Error: "invalid_argument", Message: err.Error()})
}

func idParam(c *gin.Context) (int64, bool) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || id <= 0 {
		badRequest(c, errors.New("id must be a positive integer"))
		return 0, false
	}
	return id, true
}

// pageParams reads skip and limit. Missing values are left to the service
// defaults.
func pageParams(c *gin.Context) (int, int, bool) {
	offset, err := strconv.Atoi(c.DefaultQuery("skip", "0"))
	if err != nil || offset < 0 {
		badRequest(c, errors.New("skip must be a non-negative integer"))
		return 0, 0, false
	}
	limit, err := strconv.Atoi(c.DefaultQuery("limit", "0"))
	if err != nil || limit < 0 {
		badRequest(c, errors.New("limit must be a non-negative integer"))
		return 0, 0, false
	}
	return offset, limit, true
}

package handler

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"

	"github.com/rl1809/stock-ledger/internal/config"
	"github.com/rl1809/stock-ledger/internal/core/domain"
	"github.com/rl1809/stock-ledger/internal/core/service"
)

const (
	mdUserID       = "x-user-id"
	mdUserRole     = "x-user-role"
	mdUserBranches = "x-user-branches"
	mdRequestID    = "x-request-id"
)

var _ LedgerServer = (*GRPCHandler)(nil)

type GRPCHandler struct {
	ledger   *service.LedgerService
	validate *validator.Validate
}

func NewGRPCHandler(ledger *service.LedgerService) *GRPCHandler {
	return &GRPCHandler{
		ledger:   ledger,
		validate: validator.New(),
	}
}

func (h *GRPCHandler) ReceiveInbound(ctx context.Context, req *ReceiveInboundRequest) (*ReceiptResponse, error) {
	p, err := h.admit(ctx, req)
	if err != nil {
		return nil, err
	}
	if err := p.requireBranch(req.BranchID); err != nil {
		return nil, grpcError(err)
	}

	receipt, err := h.ledger.ReceiveInbound(ctx, service.ReceiveInboundRequest{
		ProductID: req.ProductID,
		BranchID:  req.BranchID,
		Quantity:  req.Quantity,
		UserID:    p.UserID,
	})
	if err != nil {
		return nil, grpcError(err)
	}

	resp := toReceiptResponse(receipt)
	return &resp, nil
}

func (h *GRPCHandler) InspectLot(ctx context.Context, req *InspectLotRequest) (*StockLotResponse, error) {
	p, err := h.admit(ctx, req)
	if err != nil {
		return nil, err
	}
	if err := p.requireInspector(); err != nil {
		return nil, grpcError(err)
	}

	lot, err := h.ledger.GetLot(ctx, req.LotID)
	if err == nil {
		err = p.requireBranch(lot.BranchID)
	}
	if err != nil {
		return nil, grpcError(err)
	}

	inspected, err := h.ledger.InspectLot(ctx, service.InspectLotRequest{
		LotID:            req.LotID,
		TargetStatus:     domain.LotStatus(strings.ToUpper(req.Status)),
		QuantityOverride: req.Quantity,
		UserID:           p.UserID,
	})
	if err != nil {
		return nil, grpcError(err)
	}

	resp := toLotResponse(inspected)
	return &resp, nil
}

func (h *GRPCHandler) FulfillOutbound(ctx context.Context, req *FulfillOutboundRequest) (*OutboundOrderResponse, error) {
	p, err := h.admit(ctx, req)
	if err != nil {
		return nil, err
	}
	if err := p.requireBranch(req.BranchID); err != nil {
		return nil, grpcError(err)
	}

	order, err := h.ledger.FulfillOutbound(ctx, service.FulfillOutboundRequest{
		RequestID: req.RequestID,
		ProductID: req.ProductID,
		BranchID:  req.BranchID,
		Quantity:  req.Quantity,
		UserID:    p.UserID,
	})
	if err != nil {
		return nil, grpcError(err)
	}

	resp := toOutboundResponse(order)
	return &resp, nil
}

func (h *GRPCHandler) GetProductQuantities(ctx context.Context, req *ProductQuantitiesRequest) (*ProductQuantitiesResponse, error) {
	p, err := h.admit(ctx, req)
	if err != nil {
		return nil, err
	}

	product, err := h.ledger.GetProduct(ctx, req.ProductID)
	if err == nil {
		err = p.requireBranch(product.BranchID)
	}
	if err != nil {
		return nil, grpcError(err)
	}

	quantities, err := h.ledger.GetProductQuantities(ctx, req.ProductID)
	if err != nil {
		return nil, grpcError(err)
	}

	resp := toQuantitiesResponse(quantities)
	return &resp, nil
}

// admit resolves the caller from metadata and validates req.
func (h *GRPCHandler) admit(ctx context.Context, req any) (Principal, error) {
	md, _ := metadata.FromIncomingContext(ctx)
	p, err := parsePrincipal(firstValue(md, mdUserID), firstValue(md, mdUserRole), firstValue(md, mdUserBranches))
	if err != nil {
		return Principal{}, grpcError(err)
	}

	if err := h.validate.Struct(req); err != nil {
		return Principal{}, status.Error(codes.InvalidArgument, err.Error())
	}
	return p, nil
}

func firstValue(md metadata.MD, key string) string {
	if values := md.Get(key); len(values) > 0 {
		return values[0]
	}
	return ""
}

func grpcError(err error) error {
	switch {
	case errors.Is(err, errUnauthenticated):
		return status.Error(codes.Unauthenticated, err.Error())
	case errors.Is(err, errForbidden):
		return status.Error(codes.PermissionDenied, err.Error())
	case errors.Is(err, domain.ErrNotFound):
		return status.Error(codes.NotFound, err.Error())
	case errors.Is(err, domain.ErrInsufficientStock),
		errors.Is(err, domain.ErrInvalidTransition),
		errors.Is(err, domain.ErrBranchMismatch),
		errors.Is(err, domain.ErrDuplicateRequest):
		return status.Error(codes.FailedPrecondition, err.Error())
	case errors.Is(err, domain.ErrInvalidTargetStatus),
		errors.Is(err, domain.ErrInvalidQuantity):
		return status.Error(codes.InvalidArgument, err.Error())
	case errors.Is(err, domain.ErrTransactionConflict):
		return status.Error(codes.Aborted, "concurrent update, please retry")
	case errors.Is(err, context.Canceled):
		return status.Error(codes.Canceled, err.Error())
	case errors.Is(err, context.DeadlineExceeded):
		return status.Error(codes.DeadlineExceeded, err.Error())
	default:
		return status.Error(codes.Internal, err.Error())
	}
}

// UnaryServerInterceptor logs every call and records internal failures in
// detail before the client sees a generic message.
func UnaryServerInterceptor(logger *logrus.Logger) grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
		start := time.Now()

		md, _ := metadata.FromIncomingContext(ctx)
		requestID := firstValue(md, mdRequestID)
		if requestID == "" {
			requestID = uuid.NewString()
		}

		resp, err := handler(ctx, req)

		code := status.Code(err)
		if code == codes.Internal {
			config.LogError(logger, "grpc_handler", info.FullMethod, "unary call", requestID, err)
			err = status.Error(codes.Internal, "internal error")
		}

		logger.WithFields(logrus.Fields{
			"method":     info.FullMethod,
			"code":       code.String(),
			"latency_ms": time.Since(start).Milliseconds(),
			"request_id": requestID,
		}).Info("grpc request")

		return resp, err
	}
}

package handler

import (
	"time"

	"github.com/rl1809/stock-ledger/internal/core/domain"
	"github.com/rl1809/stock-ledger/internal/core/service"
)

// Wire messages shared by the HTTP and gRPC boundaries.

type ReceiveInboundRequest struct {
	ProductID int64 `json:"product_id" binding:"required,gt=0" validate:"required,gt=0"`
	BranchID  int64 `json:"branch_id" binding:"required,gt=0" validate:"required,gt=0"`
	Quantity  int   `json:"quantity" binding:"required,gt=0" validate:"required,gt=0"`
}

type ShipmentItemRequest struct {
	ProductID int64 `json:"product_id" binding:"required,gt=0"`
	Quantity  int   `json:"quantity" binding:"required,gt=0"`
}

type ReceiveShipmentRequest struct {
	BranchID int64                 `json:"branch_id" binding:"required,gt=0"`
	Items    []ShipmentItemRequest `json:"items" binding:"required,min=1,dive"`
}

type InspectLotRequest struct {
	// LotID comes from the URL on HTTP and from the body on gRPC.
	LotID    int64  `json:"lot_id,omitempty" validate:"required,gt=0"`
	Status   string `json:"status" binding:"required" validate:"required"`
	Quantity *int   `json:"quantity,omitempty" binding:"omitempty,gte=0" validate:"omitempty,gte=0"`
}

type FulfillOutboundRequest struct {
	RequestID string `json:"request_id,omitempty" binding:"omitempty,max=128" validate:"omitempty,max=128"`
	ProductID int64  `json:"product_id" binding:"required,gt=0" validate:"required,gt=0"`
	BranchID  int64  `json:"branch_id" binding:"required,gt=0" validate:"required,gt=0"`
	Quantity  int    `json:"quantity" binding:"required,gt=0" validate:"required,gt=0"`
}

type ProductQuantitiesRequest struct {
	ProductID int64 `json:"product_id" validate:"required,gt=0"`
}

type StockLotResponse struct {
	ID             int64      `json:"id"`
	ProductID      int64      `json:"product_id"`
	BranchID       int64      `json:"branch_id"`
	InboundOrderID int64      `json:"inbound_order_id"`
	Quantity       int        `json:"quantity"`
	Status         string     `json:"status"`
	CreatedAt      time.Time  `json:"created_at"`
	CreatedBy      int64      `json:"created_by"`
	InspectedAt    *time.Time `json:"inspected_at,omitempty"`
	InspectedBy    *int64     `json:"inspected_by,omitempty"`
}

type InboundOrderResponse struct {
	ID        int64     `json:"id"`
	ProductID int64     `json:"product_id"`
	BranchID  int64     `json:"branch_id"`
	Quantity  int       `json:"quantity"`
	UserID    int64     `json:"user_id"`
	CreatedAt time.Time `json:"created_at"`
}

type ReceiptResponse struct {
	InboundOrder InboundOrderResponse `json:"inbound_order"`
	Lot          StockLotResponse     `json:"stock_lot"`
}

type LotConsumptionResponse struct {
	LotID          int64 `json:"lot_id"`
	InboundOrderID int64 `json:"inbound_order_id"`
	Quantity       int   `json:"quantity"`
}

type OutboundOrderResponse struct {
	ID           int64                    `json:"id"`
	ProductID    int64                    `json:"product_id"`
	BranchID     int64                    `json:"branch_id"`
	Quantity     int                      `json:"quantity"`
	UserID       int64                    `json:"user_id"`
	CreatedAt    time.Time                `json:"created_at"`
	Consumptions []LotConsumptionResponse `json:"consumptions,omitempty"`
}

type ProductQuantitiesResponse struct {
	ProductID   int64 `json:"product_id"`
	Available   int   `json:"available"`
	Pending     int   `json:"pending"`
	Quarantined int   `json:"quarantined"`
	Total       int   `json:"total"`
}

type ErrorResponse struct {
	Error     string `json:"error"`
	Message   string `json:"message"`
	Available *int   `json:"available,omitempty"`
	Requested *int   `json:"requested,omitempty"`
}

func toLotResponse(lot domain.StockLot) StockLotResponse {
	return StockLotResponse{
		ID:             lot.ID,
		ProductID:      lot.ProductID,
		BranchID:       lot.BranchID,
		InboundOrderID: lot.InboundOrderID,
		Quantity:       lot.Quantity,
		Status:         string(lot.Status),
		CreatedAt:      lot.CreatedAt,
		CreatedBy:      lot.CreatedBy,
		InspectedAt:    lot.InspectedAt,
		InspectedBy:    lot.InspectedBy,
	}
}

func toLotResponses(lots []domain.StockLot) []StockLotResponse {
	out := make([]StockLotResponse, 0, len(lots))
	for _, lot := range lots {
		out = append(out, toLotResponse(lot))
	}
	return out
}

func toInboundResponse(o domain.InboundOrder) InboundOrderResponse {
	return InboundOrderResponse{
		ID:        o.ID,
		ProductID: o.ProductID,
		BranchID:  o.BranchID,
		Quantity:  o.Quantity,
		UserID:    o.UserID,
		CreatedAt: o.CreatedAt,
	}
}

func toInboundResponses(orders []domain.InboundOrder) []InboundOrderResponse {
	out := make([]InboundOrderResponse, 0, len(orders))
	for _, o := range orders {
		out = append(out, toInboundResponse(o))
	}
	return out
}

func toReceiptResponse(r service.Receipt) ReceiptResponse {
	return ReceiptResponse{
		InboundOrder: toInboundResponse(r.InboundOrder),
		Lot:          toLotResponse(r.Lot),
	}
}

func toOutboundResponse(o domain.OutboundOrder) OutboundOrderResponse {
	resp := OutboundOrderResponse{
		ID:        o.ID,
		ProductID: o.ProductID,
		BranchID:  o.BranchID,
		Quantity:  o.Quantity,
		UserID:    o.UserID,
		CreatedAt: o.CreatedAt,
	}
	for _, c := range o.Consumptions {
		resp.Consumptions = append(resp.Consumptions, LotConsumptionResponse{
			LotID:          c.LotID,
			InboundOrderID: c.InboundOrderID,
			Quantity:       c.Quantity,
		})
	}
	return resp
}

func toOutboundResponses(orders []domain.OutboundOrder) []OutboundOrderResponse {
	out := make([]OutboundOrderResponse, 0, len(orders))
	for _, o := range orders {
		out = append(out, toOutboundResponse(o))
	}
	return out
}

func toQuantitiesResponse(q domain.ProductQuantities) ProductQuantitiesResponse {
	return ProductQuantitiesResponse{
		ProductID:   q.ProductID,
		Available:   q.Available,
		Pending:     q.Pending,
		Quarantined: q.Quarantined,
		Total:       q.Total(),
	}
}

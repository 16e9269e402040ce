package domain

import "time"

// InboundOrder records one receipt of goods. Immutable once created.
type InboundOrder struct {
	ID        int64
	ProductID int64
	BranchID  int64
	Quantity  int
	UserID    int64
	CreatedAt time.Time
}

// OutboundOrder records one fulfilled demand. Immutable once created.
type OutboundOrder struct {
	ID           int64
	ProductID    int64
	BranchID     int64
	Quantity     int
	UserID       int64
	CreatedAt    time.Time
	Consumptions []LotConsumption
}

// LotConsumption is one step of an allocation plan: Quantity taken from LotID.
// InboundOrderID keeps provenance after the lot itself is exhausted and removed.
type LotConsumption struct {
	LotID          int64
	InboundOrderID int64
	Quantity       int
}

// OrderQuery pages through orders, newest first. Nil BranchIDs means all branches.
type OrderQuery struct {
	BranchIDs []int64
	Offset    int
	Limit     int
}

// Matches reports whether an order in branchID is visible to the query.
func (q OrderQuery) Matches(branchID int64) bool {
	return q.BranchIDs == nil || containsID(q.BranchIDs, branchID)
}

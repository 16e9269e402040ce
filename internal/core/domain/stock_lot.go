package domain

import "time"

type LotStatus string

const (
	LotStatusPending     LotStatus = "PENDING"
	LotStatusAvailable   LotStatus = "AVAILABLE"
	LotStatusQuarantined LotStatus = "QUARANTINED"
)

// Valid reports whether s is one of the known lot statuses.
func (s LotStatus) Valid() bool {
	switch s {
	case LotStatusPending, LotStatusAvailable, LotStatusQuarantined:
		return true
	}
	return false
}

// Inspected reports whether s is a post-inspection status. Lots never leave these.
func (s LotStatus) Inspected() bool {
	return s == LotStatusAvailable || s == LotStatusQuarantined
}

// StockLot is a discrete quantity of one product received by one inbound order.
type StockLot struct {
	ID             int64
	ProductID      int64
	BranchID       int64
	InboundOrderID int64
	Quantity       int
	Status         LotStatus
	CreatedAt      time.Time // FIFO key
	InspectedAt    *time.Time
	InspectedBy    *int64
	CreatedBy      int64
}

// LotUpdate names every field of a lot that may change after creation.
// Nil fields are left untouched.
type LotUpdate struct {
	Status      *LotStatus
	Quantity    *int
	InspectedAt *time.Time
	InspectedBy *int64
}

// Empty reports whether the update changes nothing.
func (u LotUpdate) Empty() bool {
	return u.Status == nil && u.Quantity == nil && u.InspectedAt == nil && u.InspectedBy == nil
}

// Apply returns a copy of lot with the update applied.
func (u LotUpdate) Apply(lot StockLot) StockLot {
	if u.Status != nil {
		lot.Status = *u.Status
	}
	if u.Quantity != nil {
		lot.Quantity = *u.Quantity
	}
	if u.InspectedAt != nil {
		t := *u.InspectedAt
		lot.InspectedAt = &t
	}
	if u.InspectedBy != nil {
		by := *u.InspectedBy
		lot.InspectedBy = &by
	}
	return lot
}

// LotFilter selects lots. Zero values mean "any". Results are always
// ordered by CreatedAt, then ID, ascending.
type LotFilter struct {
	ProductID int64
	BranchIDs []int64
	Status    LotStatus
	ForUpdate bool
	Offset    int
	Limit     int
}

// Matches reports whether lot satisfies the filter's predicates.
func (f LotFilter) Matches(lot StockLot) bool {
	if f.ProductID != 0 && lot.ProductID != f.ProductID {
		return false
	}
	if f.Status != "" && lot.Status != f.Status {
		return false
	}
	if f.BranchIDs != nil && !containsID(f.BranchIDs, lot.BranchID) {
		return false
	}
	return true
}

// LotBefore is the FIFO ordering: older lots first, ties broken by id.
func LotBefore(a, b StockLot) bool {
	if !a.CreatedAt.Equal(b.CreatedAt) {
		return a.CreatedAt.Before(b.CreatedAt)
	}
	return a.ID < b.ID
}

func containsID(ids []int64, id int64) bool {
	for _, v := range ids {
		if v == id {
			return true
		}
	}
	return false
}

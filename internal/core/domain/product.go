package domain

type Branch struct {
	ID       int64
	Name     string
	Location string
}

// Product belongs to exactly one branch. It carries no quantity: stock is
// always derived from its lots.
type Product struct {
	ID          int64
	Name        string
	Description string
	BranchID    int64
}

// ProductQuantities is the per-status total of a product's lots.
type ProductQuantities struct {
	ProductID   int64
	Available   int
	Pending     int
	Quarantined int
}

// Total is the sum over all statuses.
func (q ProductQuantities) Total() int {
	return q.Available + q.Pending + q.Quarantined
}

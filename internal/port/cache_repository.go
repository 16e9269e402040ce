package port

import "context"

type IdempotencyStore interface {
	// ClaimRequest records key, returns false if it was already claimed
	ClaimRequest(ctx context.Context, key string) (bool, error)

	// ReleaseRequest forgets key so the request may be retried
	ReleaseRequest(ctx context.Context, key string) error
}

type AllocationLocker interface {
	// LockAllocation serializes allocations of one (product, branch) pair
	// across processes. The returned release func must be called exactly once.
	LockAllocation(ctx context.Context, productID, branchID int64) (release func(context.Context) error, err error)
}

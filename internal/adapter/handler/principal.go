package handler

import (
	"errors"
	"fmt"
	"slices"
	"strconv"
	"strings"
)

type Role string

const (
	RoleAdmin      Role = "admin"
	RoleSupervisor Role = "supervisor"
	RoleOperator   Role = "operator"
)

var (
	errUnauthenticated = errors.New("caller identity missing or malformed")
	errForbidden       = errors.New("forbidden")
)

// Principal is the caller as asserted by the upstream gateway. Credentials
// are verified before requests reach this service.
type Principal struct {
	UserID    int64
	Role      Role
	BranchIDs []int64
}

// parsePrincipal builds a Principal from the raw identity values carried in
// HTTP headers or gRPC metadata. branches is a comma-separated id list.
func parsePrincipal(userID, role, branches string) (Principal, error) {
	id, err := strconv.ParseInt(strings.TrimSpace(userID), 10, 64)
	if err != nil || id <= 0 {
		return Principal{}, fmt.Errorf("%w: user id %q", errUnauthenticated, userID)
	}

	r := Role(strings.ToLower(strings.TrimSpace(role)))
	switch r {
	case RoleAdmin, RoleSupervisor, RoleOperator:
	default:
		return Principal{}, fmt.Errorf("%w: role %q", errUnauthenticated, role)
	}

	ids := []int64{}
	for _, part := range strings.Split(branches, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		branchID, err := strconv.ParseInt(part, 10, 64)
		if err != nil {
			return Principal{}, fmt.Errorf("%w: branch id %q", errUnauthenticated, part)
		}
		ids = append(ids, branchID)
	}

	return Principal{UserID: id, Role: r, BranchIDs: ids}, nil
}

func (p Principal) CanInspect() bool {
	return p.Role == RoleAdmin || p.Role == RoleSupervisor
}

func (p Principal) CanAccessBranch(branchID int64) bool {
	return p.Role == RoleAdmin || slices.Contains(p.BranchIDs, branchID)
}

// BranchScope is the branch filter for listings: nil (all branches) for
// admins, otherwise the caller's branches, possibly none.
func (p Principal) BranchScope() []int64 {
	if p.Role == RoleAdmin {
		return nil
	}
	if len(p.BranchIDs) == 0 {
		return []int64{}
	}
	return slices.Clone(p.BranchIDs)
}

// requireBranch fails with errForbidden unless the caller may act in branchID.
func (p Principal) requireBranch(branchID int64) error {
	if !p.CanAccessBranch(branchID) {
		return fmt.Errorf("%w: user %d has no access to branch %d", errForbidden, p.UserID, branchID)
	}
	return nil
}

func (p Principal) requireInspector() error {
	if !p.CanInspect() {
		return fmt.Errorf("%w: role %s may not inspect lots", errForbidden, p.Role)
	}
	return nil
}

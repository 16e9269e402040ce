package handler

import (
	"errors"
	"testing"
)

func TestParsePrincipal(t *testing.T) {
	tests := []struct {
		name     string
		userID   string
		role     string
		branches string
		wantErr  bool
		want     Principal
	}{
		{name: "operator", userID: "7", role: "operator", branches: "1, 2", want: Principal{UserID: 7, Role: RoleOperator, BranchIDs: []int64{1, 2}}},
		{name: "role is case insensitive", userID: "7", role: "Admin", want: Principal{UserID: 7, Role: RoleAdmin, BranchIDs: []int64{}}},
		{name: "missing user", role: "admin", wantErr: true},
		{name: "non numeric user", userID: "bob", role: "admin", wantErr: true},
		{name: "unknown role", userID: "1", role: "guest", wantErr: true},
		{name: "bad branch", userID: "1", role: "operator", branches: "1,x", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := parsePrincipal(tt.userID, tt.role, tt.branches)
			if tt.wantErr {
				if !errors.Is(err, errUnauthenticated) {
					t.Fatalf("expected errUnauthenticated, got %v", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got.UserID != tt.want.UserID || got.Role != tt.want.Role || len(got.BranchIDs) != len(tt.want.BranchIDs) {
				t.Errorf("expected %+v, got %+v", tt.want, got)
			}
		})
	}
}

func TestPrincipal_Access(t *testing.T) {
	admin := Principal{UserID: 1, Role: RoleAdmin}
	supervisor := Principal{UserID: 2, Role: RoleSupervisor, BranchIDs: []int64{5}}
	operator := Principal{UserID: 3, Role: RoleOperator}

	if !admin.CanAccessBranch(99) || admin.BranchScope() != nil {
		t.Error("admin should reach every branch")
	}
	if !supervisor.CanAccessBranch(5) || supervisor.CanAccessBranch(6) {
		t.Error("supervisor should reach only branch 5")
	}
	if !supervisor.CanInspect() || operator.CanInspect() {
		t.Error("only admin and supervisor may inspect")
	}

	scope := operator.BranchScope()
	if scope == nil || len(scope) != 0 {
		t.Errorf("operator without branches should get an empty non-nil scope, got %#v", scope)
	}
	if err := operator.requireBranch(1); !errors.Is(err, errForbidden) {
		t.Errorf("expected errForbidden, got %v", err)
	}
}

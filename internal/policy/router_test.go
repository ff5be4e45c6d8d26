package policy

import (
	"errors"
	"os"
	"path/filepath"
	"slices"
	"testing"

	"opsreport/pkg/domain"
)

func TestInitialStatusByRole(t *testing.T) {
	r := NewRouter()
	for _, role := range allRoles {
		want := domain.StatusPending
		if role == domain.RolePlanner {
			want = domain.StatusPendingAdminApproval
		}
		if got := r.InitialStatus(role); got != want {
			t.Fatalf("%s: expected %s, got %s", role, want, got)
		}
	}
}

func TestResolverTable(t *testing.T) {
	r := NewRouter()
	cases := []struct {
		status domain.ApprovalStatus
		role   domain.Role
		want   bool
	}{
		{domain.StatusPending, domain.RoleAdmin, true},
		{domain.StatusPending, domain.RolePlanner, true},
		{domain.StatusPending, domain.RoleInputter, false},
		{domain.StatusPending, domain.RoleViewer, false},
		{domain.StatusPendingAdminApproval, domain.RoleAdmin, true},
		{domain.StatusPendingAdminApproval, domain.RolePlanner, false},
		{domain.StatusApproved, domain.RoleAdmin, false},
		{domain.StatusRejected, domain.RoleAdmin, false},
	}
	for _, tc := range cases {
		p := domain.Principal{ID: 1, Role: tc.role}
		if got := r.CanResolve(p, tc.status); got != tc.want {
			t.Fatalf("%s/%s: expected %v, got %v", tc.status, tc.role, tc.want, got)
		}
		err := r.RequireResolve(p, tc.status)
		if tc.want != (err == nil) {
			t.Fatalf("%s/%s: guard mismatch %v", tc.status, tc.role, err)
		}
		if err != nil && !errors.Is(err, domain.ErrInsufficientPermission) {
			t.Fatalf("expected permission error, got %v", err)
		}
	}
	if roles := r.ResolverRoles(domain.StatusApproved); len(roles) != 0 {
		t.Fatalf("terminal statuses must have no resolvers, got %v", roles)
	}
	roles := r.ResolverRoles(domain.StatusPending)
	roles[0] = domain.RoleViewer
	if !slices.Equal(r.ResolverRoles(domain.StatusPending), []domain.Role{domain.RoleAdmin, domain.RolePlanner}) {
		t.Fatalf("resolver table must not be mutable through the returned slice")
	}
}

func TestRequiresApprovalDefault(t *testing.T) {
	r := NewRouter()
	for _, role := range allRoles {
		if got := r.RequiresApproval(role); got != (role == domain.RoleInputter) {
			t.Fatalf("%s: unexpected %v", role, got)
		}
	}
}

func TestParseFileOverrides(t *testing.T) {
	r, err := ParseFile([]byte(`
resolvers:
  PENDING: [ADMIN]
approval_required: [INPUTTER, PLANNER]
`))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if r.CanResolve(domain.Principal{Role: domain.RolePlanner}, domain.StatusPending) {
		t.Fatalf("expected planner resolution disabled")
	}
	if !r.CanResolve(domain.Principal{Role: domain.RoleAdmin}, domain.StatusPendingAdminApproval) {
		t.Fatalf("statuses absent from the file should keep their default resolvers")
	}
	if got := r.ResolverRoles(domain.StatusPendingAdminApproval); len(got) != 1 || got[0] != domain.RoleAdmin {
		t.Fatalf("unexpected merged resolvers %v", got)
	}
	if !r.RequiresApproval(domain.RolePlanner) || r.RequiresApproval(domain.RoleAdmin) {
		t.Fatalf("unexpected approval set")
	}
}

func TestParseFileEmptyApprovalList(t *testing.T) {
	r, err := ParseFile([]byte("approval_required: []\n"))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if r.RequiresApproval(domain.RoleInputter) {
		t.Fatalf("explicit empty list should disable gating")
	}
	if !r.CanResolve(domain.Principal{Role: domain.RolePlanner}, domain.StatusPending) {
		t.Fatalf("omitted resolvers should keep defaults")
	}
}

func TestParseFileRejectsInvalid(t *testing.T) {
	cases := map[string]string{
		"terminal status": "resolvers:\n  APPROVED: [ADMIN]\n",
		"no resolvers":    "resolvers:\n  PENDING_ADMIN_APPROVAL: []\n",
		"unknown role":    "resolvers:\n  PENDING: [ROOT]\n",
		"unknown gated":   "approval_required: [GUEST]\n",
		"bad yaml":        "resolvers: [",
	}
	for name, doc := range cases {
		t.Run(name, func(t *testing.T) {
			if _, err := ParseFile([]byte(doc)); err == nil {
				t.Fatalf("expected error")
			}
		})
	}
}

func TestLoadFile(t *testing.T) {
	r, err := LoadFile("")
	if err != nil || !r.RequiresApproval(domain.RoleInputter) {
		t.Fatalf("expected default router, got %v", err)
	}
	path := filepath.Join(t.TempDir(), "policy.yaml")
	if err := os.WriteFile(path, []byte("approval_required: [VIEWER]\n"), 0o600); err != nil {
		t.Fatalf("write: %v", err)
	}
	r, err = LoadFile(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if !r.RequiresApproval(domain.RoleViewer) {
		t.Fatalf("expected override applied")
	}
	if _, err := LoadFile(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Fatalf("expected read error")
	}
}

func TestIsResolver(t *testing.T) {
	r := NewRouter()
	want := map[domain.Role]bool{
		domain.RoleAdmin:    true,
		domain.RolePlanner:  true,
		domain.RoleInputter: false,
		domain.RoleViewer:   false,
	}
	for role, expected := range want {
		if got := r.IsResolver(role); got != expected {
			t.Fatalf("%s: expected %v, got %v", role, expected, got)
		}
	}
}

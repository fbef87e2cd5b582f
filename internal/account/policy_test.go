package account

import "testing"

var (
	master     = Actor{AccountID: "sa-1", Role: RoleSuperadmin, IsMaster: true}
	superadmin = Actor{AccountID: "sa-2", Role: RoleSuperadmin}
	admin      = Actor{AccountID: "ad-1", Role: RoleAdmin}
	user       = Actor{AccountID: "us-1", Role: RoleUser}
)

func TestCanCreate(t *testing.T) {
	cases := []struct {
		name    string
		actor   Actor
		role    Role
		count   int
		allowed bool
	}{
		{"superadmin creates user", superadmin, RoleUser, 1, true},
		{"superadmin creates admin", superadmin, RoleAdmin, 1, true},
		{"non-master cannot create superadmin", superadmin, RoleSuperadmin, 1, false},
		{"master creates superadmin under limit", master, RoleSuperadmin, 2, true},
		{"master blocked at limit", master, RoleSuperadmin, SuperadminLimit, false},
		{"admin creates user", admin, RoleUser, 0, true},
		{"admin cannot create admin", admin, RoleAdmin, 0, false},
		{"admin cannot create superadmin", admin, RoleSuperadmin, 0, false},
		{"user cannot create anything", user, RoleUser, 0, false},
		{"unknown role rejected", master, Role("root"), 0, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			d := CanCreate(tc.actor, tc.role, tc.count)
			if d.Allowed != tc.allowed {
				t.Fatalf("allowed=%v, want %v (reason %q)", d.Allowed, tc.allowed, d.Reason)
			}
		})
	}
}

func TestCanEditFieldSelf(t *testing.T) {
	self := Target{AccountID: user.AccountID, Role: RoleUser}

	for _, field := range []string{"email", "phone", "address"} {
		if d := CanEditField(user, self, field, PersonPublic); !d.Allowed {
			t.Fatalf("self edit of %s denied: %s", field, d.Reason)
		}
	}
	for _, field := range []string{"role", "is_active", "grado", "materias"} {
		if d := CanEditField(user, self, field, PersonStudent); d.Allowed {
			t.Fatalf("self edit of %s should be denied", field)
		}
	}
}

func TestCanEditFieldLattice(t *testing.T) {
	userTarget := Target{AccountID: "t1", Role: RoleUser}
	adminTarget := Target{AccountID: "t2", Role: RoleAdmin}
	saTarget := Target{AccountID: "t3", Role: RoleSuperadmin}

	if d := CanEditField(user, userTarget, "email", PersonPublic); d.Allowed {
		t.Fatal("user editing another account should be denied")
	}
	if d := CanEditField(admin, userTarget, "email", PersonPublic); !d.Allowed {
		t.Fatalf("admin editing user denied: %s", d.Reason)
	}
	if d := CanEditField(admin, adminTarget, "email", PersonPublic); d.Allowed {
		t.Fatal("admin editing admin should be denied")
	}
	if d := CanEditField(superadmin, saTarget, "email", PersonPublic); d.Allowed {
		t.Fatal("non-master superadmin editing superadmin should be denied")
	}
	if d := CanEditField(master, saTarget, "email", PersonPublic); !d.Allowed {
		t.Fatalf("master editing superadmin denied: %s", d.Reason)
	}
}

func TestCanEditFieldAcademicGating(t *testing.T) {
	target := Target{AccountID: "t1", Role: RoleUser}

	if d := CanEditField(admin, target, "grado", PersonPublic); d.Allowed {
		t.Fatal("grado on non-student should be denied")
	}
	if d := CanEditField(admin, target, "materias", PersonStudent); d.Allowed {
		t.Fatal("materias on non-teacher should be denied")
	}

	d := CanEditField(admin, target, "grado", PersonStudent)
	if !d.Allowed || !d.RequiresConfirmation {
		t.Fatalf("grado on student: allowed=%v confirm=%v", d.Allowed, d.RequiresConfirmation)
	}
	d = CanEditField(admin, target, "materias", PersonTeacher)
	if !d.Allowed || d.RequiresConfirmation {
		t.Fatalf("materias on teacher: allowed=%v confirm=%v", d.Allowed, d.RequiresConfirmation)
	}
}

func TestCanChangeRole(t *testing.T) {
	target := Target{AccountID: "t1", Role: RoleUser}

	d := CanChangeRole(master, target, RoleAdmin, 1)
	if !d.Allowed || !d.RequiresConfirmation {
		t.Fatalf("role change should be allowed with confirmation: %+v", d)
	}
	if d := CanChangeRole(superadmin, target, RoleSuperadmin, 1); d.Allowed {
		t.Fatal("non-master elevating to superadmin should be denied")
	}
	if d := CanChangeRole(master, target, RoleSuperadmin, SuperadminLimit); d.Allowed {
		t.Fatal("elevation past the superadmin limit should be denied")
	}
	self := Target{AccountID: master.AccountID, Role: RoleSuperadmin}
	if d := CanChangeRole(master, self, RoleUser, 0); d.Allowed {
		t.Fatal("changing own role should be denied")
	}
}

func TestCanDeactivateAndReset(t *testing.T) {
	self := Target{AccountID: admin.AccountID, Role: RoleAdmin}
	if d := CanDeactivate(admin, self); d.Allowed {
		t.Fatal("self deactivation should be denied")
	}
	if d := CanResetPassword(admin, self); d.Allowed {
		t.Fatal("self password reset through the admin path should be denied")
	}

	userTarget := Target{AccountID: "t1", Role: RoleUser}
	if d := CanDeactivate(admin, userTarget); !d.Allowed {
		t.Fatalf("admin deactivating user denied: %s", d.Reason)
	}
	saTarget := Target{AccountID: "t2", Role: RoleSuperadmin}
	if d := CanDeactivate(superadmin, saTarget); d.Allowed {
		t.Fatal("non-master acting on superadmin should be denied")
	}
	if d := CanRestore(master, saTarget); !d.Allowed {
		t.Fatalf("master restoring superadmin denied: %s", d.Reason)
	}
}

func TestCanViewAndSystemAudit(t *testing.T) {
	self := Target{AccountID: user.AccountID, Role: RoleUser}
	if d := CanView(user, self); !d.Allowed {
		t.Fatalf("self view denied: %s", d.Reason)
	}
	other := Target{AccountID: "t1", Role: RoleUser}
	if d := CanView(user, other); d.Allowed {
		t.Fatal("user viewing another account should be denied")
	}
	if d := CanView(admin, other); !d.Allowed {
		t.Fatalf("admin viewing user denied: %s", d.Reason)
	}

	if d := CanViewSystemAudit(superadmin); !d.Allowed {
		t.Fatalf("superadmin system audit denied: %s", d.Reason)
	}
	if d := CanViewSystemAudit(admin); d.Allowed {
		t.Fatal("admin system audit should be denied")
	}
}

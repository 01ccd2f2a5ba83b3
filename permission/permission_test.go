package permission

import "testing"

func TestVocabularyFitsMaskBelowRootBit(t *testing.T) {
	if got := len(All()); got != 44 {
		t.Fatalf("expected 44 permissions, got %d", got)
	}
	if !defaultRegistry.Frozen() {
		t.Fatal("expected vocabulary registry to be frozen")
	}
	if _, err := defaultRegistry.Register("create:widgets"); err == nil {
		t.Fatal("expected frozen registry to reject registration")
	}
	for _, p := range All() {
		bit, ok := defaultRegistry.Bit(string(p))
		if !ok {
			t.Fatalf("permission %q not registered", p)
		}
		if bit >= rootBit64 {
			t.Fatalf("permission %q collides with root bit", p)
		}
	}
}

func TestRegistryRejectsOverflow(t *testing.T) {
	r := NewRegistry(true)
	for i := 0; i < rootBit64; i++ {
		if _, err := r.Register(string(rune('a'+i%26)) + string(rune('a'+i/26))); err != nil {
			t.Fatalf("register %d: %v", i, err)
		}
	}
	if _, err := r.Register("overflow"); err == nil {
		t.Fatal("expected root bit reservation to cap registrations")
	}
}

func TestParseList(t *testing.T) {
	valid, invalid := ParseList([]string{"read:users", " READ:users ", "fly:rockets", "update:opd", ""})
	if len(valid) != 2 || valid[0] != ReadUsers || valid[1] != UpdateOPD {
		t.Fatalf("unexpected valid list: %v", valid)
	}
	if len(invalid) != 2 || invalid[0] != "fly:rockets" || invalid[1] != "" {
		t.Fatalf("unexpected invalid list: %q", invalid)
	}
}

func TestSetOperations(t *testing.T) {
	s := NewSet(ReadUsers, CreatePatients)
	if !s.Has(ReadUsers) || !s.Has(CreatePatients) || s.Has(DeleteUsers) {
		t.Fatalf("unexpected membership: %v", s.Permissions())
	}
	s2 := s.Without(ReadUsers)
	if s2.Has(ReadUsers) || !s.Has(ReadUsers) {
		t.Fatal("Without must not mutate the receiver")
	}
	u := s2.Union(NewSet(DeleteUsers))
	if u.Len() != 2 || !u.Has(DeleteUsers) {
		t.Fatalf("unexpected union: %v", u.Permissions())
	}
	if NewSet(Permission("fly:rockets")).Has(Permission("fly:rockets")) {
		t.Fatal("unknown permissions must never be granted")
	}
	if !(Set{}).Empty() {
		t.Fatal("zero set must be empty")
	}
}

func TestRootSetGrantsEverything(t *testing.T) {
	root := RootSet()
	if !root.IsRoot() {
		t.Fatal("expected root bit")
	}
	for _, p := range All() {
		if !root.Has(p) {
			t.Fatalf("root set missing %q", p)
		}
	}
	if root.Has(Permission("fly:rockets")) {
		t.Fatal("root must not grant values outside the vocabulary")
	}
}

func TestDefaultPermissionsAreNested(t *testing.T) {
	if !DefaultPermissions(SuperAdmin).IsRoot() {
		t.Fatal("superadmin must hold the root set")
	}
	chain := []Role{Staff, Manager, Admin, Owner}
	for i := 0; i+1 < len(chain); i++ {
		lower := DefaultPermissions(chain[i])
		higher := DefaultPermissions(chain[i+1])
		if lower.Len() >= higher.Len() {
			t.Fatalf("%s (%d) should be strictly smaller than %s (%d)", chain[i], lower.Len(), chain[i+1], higher.Len())
		}
		for _, p := range lower.Permissions() {
			if !higher.Has(p) {
				t.Fatalf("%s holds %q but %s does not", chain[i], p, chain[i+1])
			}
		}
	}
	if DefaultPermissions(Owner).Has(CreateClinics) || DefaultPermissions(Owner).Has(DeleteClinics) {
		t.Fatal("clinic creation and deletion are reserved to superadmin")
	}
	if !DefaultPermissions(Role("ghost")).Empty() {
		t.Fatal("unknown role must have no defaults")
	}
}

func TestParseRole(t *testing.T) {
	cases := map[string]Role{
		"SUPER_ADMIN": SuperAdmin,
		"superadmin":  SuperAdmin,
		"Owner":       Owner,
		" staff ":     Staff,
		"MANAGER":     Manager,
	}
	for raw, want := range cases {
		got, ok := ParseRole(raw)
		if !ok || got != want {
			t.Fatalf("ParseRole(%q) = %q, %v; want %q", raw, got, ok, want)
		}
	}
	if _, ok := ParseRole("doctor"); ok {
		t.Fatal("expected unknown role to fail")
	}
}

func TestRoleLevelsAndPlacement(t *testing.T) {
	want := map[Role]int{SuperAdmin: 5, Owner: 4, Admin: 3, Manager: 2, Staff: 1, Role("x"): 0}
	for r, lvl := range want {
		if r.Level() != lvl {
			t.Fatalf("%s level = %d, want %d", r, r.Level(), lvl)
		}
	}
	if SuperAdmin.RequiresClinic() || !Owner.RequiresClinic() {
		t.Fatal("unexpected clinic requirement")
	}
	if Admin.RequiresBranch() || !Manager.RequiresBranch() || !Staff.RequiresBranch() {
		t.Fatal("unexpected branch requirement")
	}
}

func TestRoleManagerFreeze(t *testing.T) {
	rm := NewRoleManager(defaultRegistry)
	if err := rm.RegisterRole(Staff, []Permission{ReadUsers}); err != nil {
		t.Fatalf("register: %v", err)
	}
	if err := rm.RegisterRole(Staff, nil); err == nil {
		t.Fatal("expected duplicate role error")
	}
	if err := rm.RegisterRole(Manager, []Permission{"fly:rockets"}); err == nil {
		t.Fatal("expected unknown permission error")
	}
	rm.Freeze()
	if err := rm.RegisterRole(Admin, nil); err == nil {
		t.Fatal("expected frozen error")
	}
	if set, ok := rm.Get(Staff); !ok || !set.Has(ReadUsers) {
		t.Fatal("expected staff binding to survive freeze")
	}
}

package permission

import (
	"errors"
	"slices"
	"testing"
)

func TestNormalizeSortsAndDedupes(t *testing.T) {
	in := []string{"b", "a", "", "b", "c", "a"}
	got := Normalize(in)
	if !slices.Equal(got, []string{"a", "b", "c"}) {
		t.Fatalf("unexpected normalize result: %v", got)
	}
	if in[0] != "b" {
		t.Fatal("normalize modified its input")
	}
}

func TestDeriveMergesRoleAndGrants(t *testing.T) {
	p, err := NewPolicyFromMap(DefaultRoleCapabilities())
	if err != nil {
		t.Fatalf("policy: %v", err)
	}
	got, err := p.Derive(RolePatient, []string{"messages:send", "groups:join"})
	if err != nil {
		t.Fatalf("derive: %v", err)
	}
	if !slices.IsSorted(got) {
		t.Fatalf("derived set not sorted: %v", got)
	}
	if !slices.Contains(got, "groups:join") || !slices.Contains(got, "records:read_own") {
		t.Fatalf("missing expected capability: %v", got)
	}
	if len(slices.Compact(slices.Clone(got))) != len(got) {
		t.Fatalf("derived set has duplicates: %v", got)
	}
}

func TestDeriveUnknownRole(t *testing.T) {
	p, err := NewPolicyFromMap(DefaultRoleCapabilities())
	if err != nil {
		t.Fatalf("policy: %v", err)
	}
	if _, err := p.Derive("superuser", nil); !errors.Is(err, ErrUnknownRole) {
		t.Fatalf("expected ErrUnknownRole, got %v", err)
	}
	var nilPolicy *Policy
	if _, err := nilPolicy.Derive(RoleAdmin, nil); !errors.Is(err, ErrUnknownRole) {
		t.Fatalf("nil policy: expected ErrUnknownRole, got %v", err)
	}
}

func TestPolicyFrozen(t *testing.T) {
	p, err := NewPolicyFromMap(map[string][]string{"patient": {"a"}})
	if err != nil {
		t.Fatalf("policy: %v", err)
	}
	if err := p.RegisterRole("provider", nil); !errors.Is(err, ErrFrozen) {
		t.Fatalf("expected ErrFrozen, got %v", err)
	}
}

func TestRegisterRoleRequiresKnownCapabilities(t *testing.T) {
	reg := NewRegistry()
	if err := reg.Register("records:read"); err != nil {
		t.Fatalf("register: %v", err)
	}
	p := NewPolicy(reg)
	if err := p.RegisterRole("provider", []string{"records:read", "records:burn"}); !errors.Is(err, ErrUnknownPermission) {
		t.Fatalf("expected ErrUnknownPermission, got %v", err)
	}
	if err := p.RegisterRole("provider", []string{"records:read"}); err != nil {
		t.Fatalf("register role: %v", err)
	}
	if err := p.RegisterRole("provider", nil); err == nil {
		t.Fatal("expected duplicate role to fail")
	}
	if !p.HasRole("provider") || p.HasRole("admin") {
		t.Fatal("HasRole mismatch")
	}
}

func TestCapabilitiesReturnsCopy(t *testing.T) {
	p, err := NewPolicyFromMap(map[string][]string{"support": {"tickets:manage"}})
	if err != nil {
		t.Fatalf("policy: %v", err)
	}
	caps, ok := p.Capabilities("support")
	if !ok {
		t.Fatal("expected support role")
	}
	caps[0] = "mutated"
	again, _ := p.Capabilities("support")
	if again[0] != "tickets:manage" {
		t.Fatal("capabilities leaked internal slice")
	}
}

func TestRegistry(t *testing.T) {
	reg := NewRegistry()
	if err := reg.Register(""); err == nil {
		t.Fatal("expected empty name to fail")
	}
	_ = reg.Register("b")
	_ = reg.Register("a")
	_ = reg.Register("a")
	if reg.Count() != 2 {
		t.Fatalf("expected 2 names, got %d", reg.Count())
	}
	if !slices.Equal(reg.Names(), []string{"a", "b"}) {
		t.Fatalf("unexpected names: %v", reg.Names())
	}
	reg.Freeze()
	if err := reg.Register("c"); !errors.Is(err, ErrFrozen) {
		t.Fatalf("expected ErrFrozen, got %v", err)
	}
}

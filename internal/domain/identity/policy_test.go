package identity

import (
	"errors"
	"strings"
	"testing"
)

func TestValidatePassword(t *testing.T) {
	cases := []struct {
		password string
		ok       bool
	}{
		{"Secret123", true},
		{"short1A", false},
		{"alllowercase1", false},
		{"ALLUPPERCASE1", false},
		{"NoDigitsHere", false},
		{strings.Repeat("Aa1", 24) + "x", false},
	}
	for _, tc := range cases {
		err := ValidatePassword(tc.password)
		if tc.ok && err != nil {
			t.Fatalf("%q: unexpected error %v", tc.password, err)
		}
		if !tc.ok && !errors.Is(err, ErrWeakPassword) {
			t.Fatalf("%q: expected ErrWeakPassword, got %v", tc.password, err)
		}
	}
}

func TestParseRole(t *testing.T) {
	if r, err := ParseRole(" Supervisor "); err != nil || r != RoleSupervisor {
		t.Fatalf("unexpected parse: %v %v", r, err)
	}
	if _, err := ParseRole("manager"); !errors.Is(err, ErrInvalidRole) {
		t.Fatalf("expected ErrInvalidRole, got %v", err)
	}
	if RoleEmployee.CanSupervise() || !RoleAdmin.CanSupervise() {
		t.Fatal("unexpected supervise capability")
	}
}

func TestValidateEmail(t *testing.T) {
	if err := ValidateEmail("Ana@Example.com"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	for _, bad := range []string{"", "not-an-email", "Ana <ana@example.com>"} {
		if err := ValidateEmail(bad); !errors.Is(err, ErrInvalidEmail) {
			t.Fatalf("%q: expected ErrInvalidEmail, got %v", bad, err)
		}
	}
}

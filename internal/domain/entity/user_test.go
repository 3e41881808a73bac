package entity

import (
	"testing"
	"time"
)

func TestUser_DelegationLive(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	delegate := "u-2"
	empty := ""
	later := now.Add(time.Hour)
	earlier := now.Add(-time.Hour)

	tests := []struct {
		name string
		user *User
		want bool
	}{
		{"nil user", nil, false},
		{"no delegation", &User{ID: "u-1"}, false},
		{"delegate without expiry", &User{ID: "u-1", DelegatedTo: &delegate}, false},
		{"empty delegate", &User{ID: "u-1", DelegatedTo: &empty, DelegationExpiresAt: &later}, false},
		{"unexpired", &User{ID: "u-1", DelegatedTo: &delegate, DelegationExpiresAt: &later}, true},
		{"expired", &User{ID: "u-1", DelegatedTo: &delegate, DelegationExpiresAt: &earlier}, false},
		{"expires exactly now", &User{ID: "u-1", DelegatedTo: &delegate, DelegationExpiresAt: &now}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.user.DelegationLive(now); got != tt.want {
				t.Errorf("DelegationLive() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestUser_HasProject(t *testing.T) {
	u := &User{AssignedProjects: []string{"P1", "P2"}}

	if !u.HasProject("P1") {
		t.Error("HasProject(P1) = false, want true")
	}
	if u.HasProject("P3") {
		t.Error("HasProject(P3) = true, want false")
	}
	if u.HasProject("") {
		t.Error("HasProject(\"\") = true, want false")
	}
}

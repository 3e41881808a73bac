package entity

import "time"

// User is an actor in the approval workflow
type User struct {
	ID                  string     `json:"id"`
	Username            string     `json:"username"`
	Email               string     `json:"email"`
	Role                string     `json:"role"`
	AssignedProjects    []string   `json:"assignedProjects"`
	DelegatedTo         *string    `json:"delegatedTo,omitempty"`
	DelegationExpiresAt *time.Time `json:"delegationExpiresAt,omitempty"`
	CreatedAt           time.Time  `json:"createdAt"`
	UpdatedAt           time.Time  `json:"updatedAt"`
}

// DelegationLive reports whether the user's delegation is in force at now.
// Liveness is derived on every call and never stored.
func (u *User) DelegationLive(now time.Time) bool {
	if u == nil || u.DelegatedTo == nil || *u.DelegatedTo == "" || u.DelegationExpiresAt == nil {
		return false
	}
	return now.Before(*u.DelegationExpiresAt)
}

// HasProject reports whether project is among the user's assigned projects
func (u *User) HasProject(project string) bool {
	if u == nil || project == "" {
		return false
	}
	for _, p := range u.AssignedProjects {
		if p == project {
			return true
		}
	}
	return false
}

// UserPatch carries a partial update; nil fields are left untouched.
// ClearDelegation removes both delegation fields and wins over DelegatedTo.
type UserPatch struct {
	Role                *string
	Email               *string
	AssignedProjects    *[]string
	DelegatedTo         *string
	DelegationExpiresAt *time.Time
	ClearDelegation     bool
}

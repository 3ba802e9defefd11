package domain

import "time"

// UserRole is the organizational role used by flow rules.
type UserRole string

const (
	UserRoleUser       UserRole = "user"
	UserRoleOrgAdmin   UserRole = "org_admin"
	UserRoleSuperAdmin UserRole = "super_admin"
	UserRoleSystem     UserRole = "system"
)

// UserStatus represents lifecycle states for a user.
type UserStatus string

const (
	UserStatusActive    UserStatus = "ACTIVE"
	UserStatusSuspended UserStatus = "SUSPENDED"
)

// User is an identity that can apply for or approve tickets.
type User struct {
	ID        string
	Name      string
	Username  string
	Email     string
	Role      UserRole
	OrgID     string
	Status    UserStatus
	CreatedAt time.Time
	UpdatedAt time.Time
}

func (u *User) String() string {
	return u.Name + "(" + u.Username + ")"
}

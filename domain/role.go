package domain

// Role is the privilege tier attached to a user profile.
type Role string

const (
	RoleMember Role = "member"
	RoleAdmin  Role = "admin"
	RoleOwner  Role = "owner"
)

// AdminTier reports whether the role may create polls, delete other users'
// messages, and post into read-only conversations.
func (r Role) AdminTier() bool {
	return r == RoleAdmin || r == RoleOwner
}

package models

// RotationStatus is the lifecycle state of a key rotation
type RotationStatus string

const (
	// RotationPending is the only non-terminal state
	RotationPending RotationStatus = "pending"
	// RotationApproved means the rotation was committed
	RotationApproved RotationStatus = "approved"
	// RotationRejected means a co-administrator voted it down
	RotationRejected RotationStatus = "rejected"
	// RotationCancelled means the initiator withdrew it
	RotationCancelled RotationStatus = "cancelled"
	// RotationExpired means nobody reached quorum before ExpiresAt
	RotationExpired RotationStatus = "expired"
	// RotationStale means protected project state changed after the proposal
	RotationStale RotationStatus = "stale"
)

// IsTerminal reports whether no further transition is possible
func (s RotationStatus) IsTerminal() bool {
	return s != RotationPending
}

// Role is an organization or team membership role
type Role string

const (
	RoleOwner  Role = "owner"
	RoleAdmin  Role = "admin"
	RoleMember Role = "member"
)

// IsAdmin reports whether the role may administer keys
func (r Role) IsAdmin() bool {
	return r == RoleOwner || r == RoleAdmin
}

// Staleness reasons reported to the user verbatim
const (
	StaleConfigItems          = "config items have changed"
	StaleTeams                = "teams with access have changed"
	StaleSecretManagerConfigs = "secret manager configurations have changed"
	StaleConfigValues         = "config item values have changed"
)

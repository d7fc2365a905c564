package models

import "github.com/google/uuid"

// TeamMembership is a caller's membership in a team that has project access
type TeamMembership struct {
	TeamID              uuid.UUID
	Role                Role
	EncryptedTeamKey    string
	EncryptedProjectKey string
}

// OrgMembership is a caller's role in an organization
type OrgMembership struct {
	Role                     Role
	EncryptedOrganizationKey string
}

// ProjectAccess is the resolved permission set of one user on one project
type ProjectAccess struct {
	Project  *Project
	Team     *TeamMembership
	Org      *OrgMembership
	OrgRole  Role
	TeamRole Role
	CanEdit  bool
}

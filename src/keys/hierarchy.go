package keys

import "fmt"

// TeamKeyWrap is one path from a caller's identity to a team key.
//
// A team member holds the team key sealed to their own public key
// (MemberWrap). An organization admin who is not on the team reaches it
// through the organization key instead (OrgAdminWrap).
type TeamKeyWrap interface {
	UnwrapTeamKey(id *Identity) ([]byte, error)
}

// MemberWrap is a team key sealed to a team member's identity.
type MemberWrap struct {
	EncryptedTeamKey []byte
}

// UnwrapTeamKey opens the sealed team key.
func (w MemberWrap) UnwrapTeamKey(id *Identity) ([]byte, error) {
	return OpenSealed(id.PrivateKey, w.EncryptedTeamKey)
}

// OrgAdminWrap reaches a team key via the organization key: the org key is
// sealed to the admin, and the team key is encrypted under the org key.
type OrgAdminWrap struct {
	EncryptedOrganizationKey []byte
	OrgWrappedTeamKey        []byte
}

// UnwrapTeamKey opens the organization key, then decrypts the team key with it.
func (w OrgAdminWrap) UnwrapTeamKey(id *Identity) ([]byte, error) {
	orgKey, err := OpenSealed(id.PrivateKey, w.EncryptedOrganizationKey)
	if err != nil {
		return nil, fmt.Errorf("organization key: %w", err)
	}
	return DecryptSymmetric(orgKey, w.OrgWrappedTeamKey)
}

// ProjectWraps is what a caller needs to reach a project key.
type ProjectWraps struct {
	TeamKey             TeamKeyWrap
	EncryptedProjectKey []byte
}

// ResolveProjectKey walks identity → team key → project key.
//
// Every failure is reported as ErrKeyUnavailable (wrapping the cause).
// There is no fallback to any other key source.
func ResolveProjectKey(id *Identity, wraps ProjectWraps) ([]byte, error) {
	if id == nil || wraps.TeamKey == nil {
		return nil, fmt.Errorf("%w: no wrap path for caller", ErrKeyUnavailable)
	}

	teamKey, err := wraps.TeamKey.UnwrapTeamKey(id)
	if err != nil {
		return nil, fmt.Errorf("%w: team key: %w", ErrKeyUnavailable, err)
	}

	projectKey, err := DecryptSymmetric(teamKey, wraps.EncryptedProjectKey)
	if err != nil {
		return nil, fmt.Errorf("%w: project key: %w", ErrKeyUnavailable, err)
	}
	if len(projectKey) != KeySize {
		return nil, fmt.Errorf("%w: project key has %d bytes", ErrKeyUnavailable, len(projectKey))
	}

	return projectKey, nil
}

// ParseProjectWraps builds ProjectWraps from wire blobs. A non-empty
// encryptedTeamKey selects the member path; otherwise both organization
// blobs must be present.
func ParseProjectWraps(encryptedTeamKey, encryptedOrgKey, orgWrappedTeamKey, encryptedProjectKey string) (ProjectWraps, error) {
	projectKey, err := DecodeBlob(encryptedProjectKey)
	if err != nil {
		return ProjectWraps{}, err
	}

	if encryptedTeamKey != "" {
		teamKey, err := DecodeBlob(encryptedTeamKey)
		if err != nil {
			return ProjectWraps{}, err
		}
		return ProjectWraps{TeamKey: MemberWrap{EncryptedTeamKey: teamKey}, EncryptedProjectKey: projectKey}, nil
	}

	if encryptedOrgKey == "" || orgWrappedTeamKey == "" {
		return ProjectWraps{}, fmt.Errorf("%w: no team or organization wrap", ErrKeyUnavailable)
	}
	orgKey, err := DecodeBlob(encryptedOrgKey)
	if err != nil {
		return ProjectWraps{}, err
	}
	teamKey, err := DecodeBlob(orgWrappedTeamKey)
	if err != nil {
		return ProjectWraps{}, err
	}

	return ProjectWraps{
		TeamKey:             OrgAdminWrap{EncryptedOrganizationKey: orgKey, OrgWrappedTeamKey: teamKey},
		EncryptedProjectKey: projectKey,
	}, nil
}

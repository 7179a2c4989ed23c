package rotation

import (
	"slices"
	"sort"
)

// TagKeys names the tags the rotation bookkeeping lives in. The defaults
// match the tags the provisioning templates put on each secret.
type TagKeys struct {
	// Principal holds the IAM user whose key the secret stores.
	Principal string
	// Identity holds the ID of the key the secret currently stores. Jenkins
	// reads it as the credential's username.
	Identity string
	// Pending holds the ID of the key issued by createSecret until
	// finishSecret promotes it.
	Pending string
}

// DefaultTagKeys returns the tag names used when none are configured.
func DefaultTagKeys() TagKeys {
	return TagKeys{
		Principal: "ciinabox:iam:user",
		Identity:  "jenkins:credentials:username",
		Pending:   "ciinabox:iam:pending_access_key_id",
	}
}

// Record is a secret's rotation state with its tags decoded.
type Record struct {
	ID              string
	RotationEnabled bool
	Versions        map[string][]string
	Tags            map[string]string

	Principal           string
	ActiveCredentialID  string
	PendingCredentialID string
}

// NewRecord decodes metadata using the given tag names.
func NewRecord(meta *SecretMetadata, keys TagKeys) *Record {
	r := &Record{
		ID:              meta.ID,
		RotationEnabled: meta.RotationEnabled,
		Versions:        meta.Versions,
		Tags:            meta.Tags,
	}
	if r.Versions == nil {
		r.Versions = map[string][]string{}
	}
	if r.Tags == nil {
		r.Tags = map[string]string{}
	}
	r.Principal = r.Tags[keys.Principal]
	r.ActiveCredentialID = r.Tags[keys.Identity]
	r.PendingCredentialID = r.Tags[keys.Pending]
	return r
}

// HasStage reports whether token carries stage.
func (r *Record) HasStage(token, stage string) bool {
	return slices.Contains(r.Versions[token], stage)
}

// VersionWithStage returns the token carrying stage, if any.
func (r *Record) VersionWithStage(stage string) (string, bool) {
	// sorted so that a malformed secret with two holders behaves the same on
	// every invocation
	tokens := make([]string, 0, len(r.Versions))
	for token := range r.Versions {
		tokens = append(tokens, token)
	}
	sort.Strings(tokens)

	for _, token := range tokens {
		if r.HasStage(token, stage) {
			return token, true
		}
	}
	return "", false
}

// sortByAge orders credentials oldest first. Ties keep the authority's order.
func sortByAge(creds []Credential) {
	sort.SliceStable(creds, func(i, j int) bool {
		return creds[i].CreatedAt.Before(creds[j].CreatedAt)
	})
}

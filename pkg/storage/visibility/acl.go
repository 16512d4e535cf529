package visibility

import (
	"strings"

	"github.com/marmos91/omnifs/pkg/storage"
)

// Canned ACLs understood by S3 and by the GCS XML API.
const (
	ACLPublicRead = "public-read"
	ACLPrivate    = "private"
)

// Grantees that make an object readable by everyone.
const (
	AllUsersURI           = "http://acs.amazonaws.com/groups/global/AllUsers"
	AuthenticatedUsersURI = "http://acs.amazonaws.com/groups/global/AuthenticatedUsers"
	AllUsersEntity        = "allUsers"
	AllAuthenticatedUsers = "allAuthenticatedUsers"
)

// Grant is a backend-neutral ACL entry. Grantee is either a group URI or an
// entity name; Permission is READ (S3) or READER (GCS) for read access.
type Grant struct {
	Grantee    string
	Permission string
}

// ACLConverter translates visibility to and from ACL grant lists.
type ACLConverter struct {
	DirectoryDefault storage.Visibility
}

// NewACLConverter returns a converter whose directories default to Public.
func NewACLConverter() ACLConverter {
	return ACLConverter{DirectoryDefault: storage.Public}
}

// ToACL returns the canned ACL for v.
func (c ACLConverter) ToACL(v storage.Visibility) string {
	if v == storage.Public {
		return ACLPublicRead
	}
	return ACLPrivate
}

// FromACL maps a canned ACL back to a visibility. Anything that is not a
// public canned ACL is Private.
func (c ACLConverter) FromACL(acl string) storage.Visibility {
	switch strings.ToLower(acl) {
	case ACLPublicRead, "public-read-write", "publicread":
		return storage.Public
	default:
		return storage.Private
	}
}

// FromGrants returns Public iff any grant gives read access to all users or
// all authenticated users. Entries with an empty grantee or permission are
// skipped.
func (c ACLConverter) FromGrants(grants []Grant) storage.Visibility {
	for _, g := range grants {
		if g.Grantee == "" || g.Permission == "" {
			continue
		}
		if isEveryone(g.Grantee) && isRead(g.Permission) {
			return storage.Public
		}
	}
	return storage.Private
}

func (c ACLConverter) DefaultForDirectories() storage.Visibility {
	return c.DirectoryDefault
}

func isEveryone(grantee string) bool {
	switch grantee {
	case AllUsersURI, AuthenticatedUsersURI, AllUsersEntity, AllAuthenticatedUsers:
		return true
	}
	return false
}

func isRead(permission string) bool {
	p := strings.ToUpper(permission)
	return p == "READ" || p == "READER"
}

package visibility

import (
	"os"
	"testing"

	"github.com/marmos91/omnifs/pkg/storage"
	"github.com/stretchr/testify/assert"
)

func TestUnixConverter_Defaults(t *testing.T) {
	c := NewUnixConverter()

	assert.Equal(t, os.FileMode(0o644), c.ForFile(storage.Public))
	assert.Equal(t, os.FileMode(0o600), c.ForFile(storage.Private))
	assert.Equal(t, os.FileMode(0o755), c.ForDirectory(storage.Public))
	assert.Equal(t, os.FileMode(0o700), c.ForDirectory(storage.Private))
	assert.Equal(t, storage.Private, c.DefaultForDirectories())
	assert.Equal(t, os.FileMode(0o700), c.DefaultDirectoryPermissions())
}

func TestUnixConverter_RoundTrip(t *testing.T) {
	c := NewUnixConverter()

	for _, v := range []storage.Visibility{storage.Public, storage.Private} {
		assert.Equal(t, v, c.InverseForFile(c.ForFile(v)))
		assert.Equal(t, v, c.InverseForDirectory(c.ForDirectory(v)))
	}
}

func TestUnixConverter_UnknownDefaultsToPublic(t *testing.T) {
	c := NewUnixConverter()

	assert.Equal(t, storage.Public, c.InverseForFile(0o666))
	assert.Equal(t, storage.Public, c.InverseForDirectory(0o711))
	assert.Equal(t, storage.Private, c.InverseForDirectory(os.ModeDir|0o700), "type bits are ignored")
}

func TestUnixConverter_Custom(t *testing.T) {
	c := UnixConverter{
		FilePublic:       0o664,
		FilePrivate:      0o640,
		DirectoryPublic:  0o775,
		DirectoryPrivate: 0o750,
		DirectoryDefault: storage.Public,
	}

	assert.Equal(t, storage.Private, c.InverseForFile(0o640))
	assert.Equal(t, storage.Public, c.InverseForFile(0o600), "default permissions are not special")
	assert.Equal(t, os.FileMode(0o775), c.DefaultDirectoryPermissions())
}

func TestACLConverter_RoundTrip(t *testing.T) {
	c := NewACLConverter()

	for _, v := range []storage.Visibility{storage.Public, storage.Private} {
		assert.Equal(t, v, c.FromACL(c.ToACL(v)))
	}
	assert.Equal(t, storage.Public, c.DefaultForDirectories())
}

func TestACLConverter_FromGrants(t *testing.T) {
	c := NewACLConverter()

	tests := []struct {
		name   string
		grants []Grant
		want   storage.Visibility
	}{
		{"empty", nil, storage.Private},
		{"owner only", []Grant{{Grantee: "owner-id", Permission: "FULL_CONTROL"}}, storage.Private},
		{"s3 all users read", []Grant{{Grantee: AllUsersURI, Permission: "READ"}}, storage.Public},
		{"s3 all users write", []Grant{{Grantee: AllUsersURI, Permission: "WRITE"}}, storage.Private},
		{"gcs all users reader", []Grant{{Grantee: AllUsersEntity, Permission: "READER"}}, storage.Public},
		{"gcs authenticated reader", []Grant{{Grantee: AllAuthenticatedUsers, Permission: "READER"}}, storage.Public},
		{"gcs owner role", []Grant{{Grantee: AllUsersEntity, Permission: "OWNER"}}, storage.Private},
		{
			"malformed entries skipped",
			[]Grant{{Grantee: "", Permission: "READ"}, {Grantee: AllUsersURI}, {Grantee: AllUsersURI, Permission: "READ"}},
			storage.Public,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, c.FromGrants(tt.grants))
		})
	}
}

package service_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/americansport/gymgate/internal/gate/service"
)

func TestStaticIdentities_Resolve(t *testing.T) {
	ids := testIdentities(t)
	ctx := context.Background()

	demo, err := ids.ResolveIdentity(ctx, "demo", "demo")
	require.NoError(t, err)
	assert.Equal(t, "member_demo_001", demo.MemberID)
	assert.True(t, demo.IsMember())
	assert.False(t, demo.Admin)

	admin, err := ids.ResolveIdentity(ctx, " admin ", "admin")
	require.NoError(t, err)
	assert.True(t, admin.Admin)
	assert.False(t, admin.IsMember())
	assert.Equal(t, "admin", admin.Username)

	_, err = ids.ResolveIdentity(ctx, "demo", "wrong")
	assert.ErrorIs(t, err, service.ErrBadCredentials)

	_, err = ids.ResolveIdentity(ctx, "ghost", "demo")
	assert.ErrorIs(t, err, service.ErrBadCredentials)
}

func TestNewStaticIdentities_PrehashedPassword(t *testing.T) {
	hash, err := bcrypt.GenerateFromPassword([]byte("s3cret"), bcrypt.MinCost)
	require.NoError(t, err)

	ids, err := service.NewStaticIdentities([]service.Account{
		{Username: "luis", PasswordHash: string(hash), MemberID: "m_luis"},
	}, bcrypt.MinCost)
	require.NoError(t, err)

	id, err := ids.ResolveIdentity(context.Background(), "luis", "s3cret")
	require.NoError(t, err)
	assert.Equal(t, "m_luis", id.MemberID)
}

func TestNewStaticIdentities_RejectsBadTables(t *testing.T) {
	tests := []struct {
		name  string
		accts []service.Account
	}{
		{"missing username", []service.Account{{Password: "x"}}},
		{"missing password", []service.Account{{Username: "a"}}},
		{"duplicate", []service.Account{{Username: "a", Password: "x"}, {Username: "a", Password: "y"}}},
		{"bad hash", []service.Account{{Username: "a", PasswordHash: "not-bcrypt"}}},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, err := service.NewStaticIdentities(tc.accts, bcrypt.MinCost)
			assert.Error(t, err)
		})
	}
}

func TestLoadAccountsFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "accounts.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
accounts:
  - username: front-desk
    password: desk
    admin: true
  - username: carla
    password: pw
    member_id: m_carla
`), 0o600))

	accts, err := service.LoadAccountsFile(path)
	require.NoError(t, err)
	require.Len(t, accts, 2)
	assert.True(t, accts[0].Admin)
	assert.Equal(t, "m_carla", accts[1].MemberID)

	ids, err := service.NewStaticIdentities(accts, bcrypt.MinCost)
	require.NoError(t, err)
	id, err := ids.ResolveIdentity(context.Background(), "carla", "pw")
	require.NoError(t, err)
	assert.Equal(t, "m_carla", id.MemberID)
}

func TestLoadAccountsFile_Errors(t *testing.T) {
	_, err := service.LoadAccountsFile(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)

	empty := filepath.Join(t.TempDir(), "empty.yaml")
	require.NoError(t, os.WriteFile(empty, []byte("accounts: []\n"), 0o600))
	_, err = service.LoadAccountsFile(empty)
	assert.Error(t, err)
}

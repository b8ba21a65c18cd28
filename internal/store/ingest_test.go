package store_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/authgate/authgate/internal/auth"
	"github.com/authgate/authgate/internal/store"
)

func usernames(users []auth.User) []string {
	out := make([]string, 0, len(users))
	for _, u := range users {
		out = append(out, u.Username)
	}

	return out
}

func TestIngestUsers(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()

	_, err := s.CreateLocalUser(ctx, "admin", "changeme", "", auth.RoleAdmin)
	require.NoError(t, err)

	first := []auth.DirectoryUser{
		{Username: "tstark", DisplayName: "Tony Stark", Email: "tony@example.org", ExternalID: "uid=tstark"},
		{Username: "pparker", DisplayName: "Peter Parker"},
	}
	require.NoError(t, s.IngestUsers(ctx, auth.SourceLDAP, first, true))

	users, err := s.ListUsers(ctx, auth.SourceLDAP)
	require.NoError(t, err)
	assert.Equal(t, []string{"pparker", "tstark"}, usernames(users))

	tony, err := s.FindUserByUsername(ctx, "tstark", auth.SourceLDAP)
	require.NoError(t, err)
	assert.Equal(t, "Tony Stark", tony.DisplayName)
	assert.Equal(t, auth.RoleUser, tony.Role)

	second := []auth.DirectoryUser{
		{Username: "tstark", DisplayName: "Anthony Stark", Email: "tony@example.org"},
	}
	require.NoError(t, s.IngestUsers(ctx, auth.SourceLDAP, second, true))

	again, err := s.FindUserByUsername(ctx, "tstark", auth.SourceLDAP)
	require.NoError(t, err)
	assert.Equal(t, tony.ID, again.ID, "upsert keeps the id")
	assert.Equal(t, "Anthony Stark", again.DisplayName)

	_, err = s.FindUserByUsername(ctx, "pparker", auth.SourceLDAP)
	require.ErrorIs(t, err, auth.ErrUserAccountDisabled, "vanished users are deactivated")

	_, err = s.FindUserByUsername(ctx, "admin", auth.SourceLocal)
	require.NoError(t, err, "other sources are never touched")

	require.NoError(t, s.IngestUsers(ctx, auth.SourceLDAP, first, false))

	_, err = s.FindUserByUsername(ctx, "pparker", auth.SourceLDAP)
	require.NoError(t, err, "a returning user is active again")
}

func TestIngestUsersKeepsStaleWithoutRemoveStale(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.IngestUsers(ctx, auth.SourceCrowd, []auth.DirectoryUser{{Username: "tstark"}}, false))
	require.NoError(t, s.IngestUsers(ctx, auth.SourceCrowd, []auth.DirectoryUser{}, false))

	_, err := s.FindUserByUsername(ctx, "tstark", auth.SourceCrowd)
	require.NoError(t, err)
}

func TestIngestGroups(t *testing.T) {
	s := setupTestStore(t, store.WithAdminGroups("admins"))
	ctx := context.Background()

	users := []auth.DirectoryUser{{Username: "tstark"}, {Username: "pparker"}, {Username: "bbanner"}}
	require.NoError(t, s.IngestUsers(ctx, auth.SourceLDAP, users, false))

	groups := []auth.DirectoryGroup{
		{Name: "avengers", ExternalID: "cn=avengers", Members: []string{"tstark", "pparker", "unknown"}},
		{Name: "admins", ExternalID: "cn=admins", Members: []string{"tstark"}},
	}
	require.NoError(t, s.IngestGroups(ctx, auth.SourceLDAP, groups))

	tony, err := s.FindUserByUsername(ctx, "tstark", auth.SourceLDAP)
	require.NoError(t, err)
	assert.True(t, tony.IsAdmin())

	names, err := s.Groups(ctx, tony.ID)
	require.NoError(t, err)
	assert.Equal(t, []string{"admins", "avengers"}, names)

	peter, err := s.FindUserByUsername(ctx, "pparker", auth.SourceLDAP)
	require.NoError(t, err)
	assert.False(t, peter.IsAdmin())

	// memberships are replaced, roles follow
	groups = []auth.DirectoryGroup{
		{Name: "avengers", ExternalID: "cn=avengers", Members: []string{"bbanner"}},
		{Name: "admins", ExternalID: "cn=admins", Members: []string{"pparker"}},
	}
	require.NoError(t, s.IngestGroups(ctx, auth.SourceLDAP, groups))

	tony, err = s.FindUserByUsername(ctx, "tstark", auth.SourceLDAP)
	require.NoError(t, err)
	assert.False(t, tony.IsAdmin())

	names, err = s.Groups(ctx, tony.ID)
	require.NoError(t, err)
	assert.Empty(t, names)

	peter, err = s.FindUserByUsername(ctx, "pparker", auth.SourceLDAP)
	require.NoError(t, err)
	assert.True(t, peter.IsAdmin())
}

func TestIngestGroupsWithoutAdminGroupsKeepsRoles(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()

	_, err := s.CreateUser(ctx, auth.UserSummary{Username: "tstark", Source: auth.SourceCrowd, Role: auth.RoleAdmin})
	require.NoError(t, err)

	require.NoError(t, s.IngestGroups(ctx, auth.SourceCrowd, []auth.DirectoryGroup{
		{Name: "avengers", Members: []string{"tstark"}},
	}))

	tony, err := s.FindUserByUsername(ctx, "tstark", auth.SourceCrowd)
	require.NoError(t, err)
	assert.True(t, tony.IsAdmin())

	names, err := s.Groups(ctx, tony.ID)
	require.NoError(t, err)
	assert.Equal(t, []string{"avengers"}, names)
}

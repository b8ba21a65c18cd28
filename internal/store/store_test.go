package store_test

import (
	"context"
	"testing"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/authgate/authgate/internal/auth"
	"github.com/authgate/authgate/internal/store"
	"github.com/authgate/authgate/internal/token"
)

var testKey = []byte("0123456789abcdef0123456789abcdef")

// setupTestStore creates a store on an in-memory SQLite database.
func setupTestStore(t *testing.T, opts ...store.Option) *store.Store {
	t.Helper()

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{Logger: logger.Discard})
	require.NoError(t, err, "failed to create test database")

	sqlDB, err := db.DB()
	require.NoError(t, err)

	// every connection of :memory: is a database of its own
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })

	codec, err := token.NewCodec(testKey, "")
	require.NoError(t, err)

	s := store.New(db, codec, opts...)
	require.NoError(t, s.Migrate(), "failed to migrate test database")

	return s
}

func TestLocalUsers(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()

	created, err := s.CreateLocalUser(ctx, "admin", "changeme", "admin@example.org", auth.RoleAdmin)
	require.NoError(t, err)
	assert.NotEmpty(t, created.ID)
	assert.Equal(t, auth.SourceLocal, created.Source)
	assert.True(t, created.IsAdmin())

	count, err := s.CountUsers(ctx)
	require.NoError(t, err)
	assert.EqualValues(t, 1, count)

	user, err := s.FindUserByBasic(ctx, "admin", "changeme")
	require.NoError(t, err)
	assert.Equal(t, created, user)

	_, err = s.FindUserByBasic(ctx, "admin", "wrong")
	require.ErrorIs(t, err, auth.ErrUserNotFound)

	_, err = s.FindUserByBasic(ctx, "nobody", "changeme")
	require.ErrorIs(t, err, auth.ErrUserNotFound)

	byID, err := s.FindUserByID(ctx, created.ID)
	require.NoError(t, err)
	assert.Equal(t, "admin", byID.Username)

	_, err = s.FindUserByID(ctx, "not-a-number")
	require.ErrorIs(t, err, auth.ErrUserNotFound)

	_, err = s.FindUserByID(ctx, "9999")
	require.ErrorIs(t, err, auth.ErrUserNotFound)
}

func TestUsernameIsUniquePerSource(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()

	_, err := s.CreateUser(ctx, auth.UserSummary{Username: "tstark", Source: auth.SourceLDAP})
	require.NoError(t, err)

	crowdUser, err := s.CreateUser(ctx, auth.UserSummary{Username: "tstark", Source: auth.SourceCrowd, DisplayName: "Tony"})
	require.NoError(t, err)
	assert.Equal(t, auth.RoleUser, crowdUser.Role)

	_, err = s.CreateUser(ctx, auth.UserSummary{Username: "tstark", Source: auth.SourceLDAP})
	require.Error(t, err)

	found, err := s.FindUserByUsername(ctx, "tstark", auth.SourceCrowd)
	require.NoError(t, err)
	assert.Equal(t, crowdUser, found)

	_, err = s.FindUserByUsername(ctx, "tstark", auth.SourceGitHub)
	require.ErrorIs(t, err, auth.ErrUserNotFound)

	_, err = s.FindUserByBasic(ctx, "tstark", "")
	require.ErrorIs(t, err, auth.ErrUserNotFound, "directory users have no local password")
}

func TestSessions(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	clock := func() time.Time { return now }

	s := setupTestStore(t, store.WithTimeFunc(clock))
	ctx := context.Background()

	user, err := s.CreateLocalUser(ctx, "admin", "changeme", "", auth.RoleAdmin)
	require.NoError(t, err)

	pair, err := s.CreateSession(ctx, user)
	require.NoError(t, err)
	assert.Equal(t, auth.SourceLocal, pair.Source)
	assert.Equal(t, now.Add(token.DefaultAge.Request), pair.ExpiresAt)
	assert.NotEqual(t, pair.Request, pair.Refresh)

	owner, err := s.FindActiveSession(ctx, pair.Request)
	require.NoError(t, err)
	assert.Equal(t, user.ID, owner.ID)

	_, err = s.FindActiveSession(ctx, pair.Refresh)
	require.ErrorIs(t, err, auth.ErrSessionNotFound, "a refresh token is no request token")

	owner, err = s.UserForRefresh(ctx, pair.Refresh)
	require.NoError(t, err)
	assert.Equal(t, user.ID, owner.ID)

	other, err := s.CreateSession(ctx, user)
	require.NoError(t, err)

	require.NoError(t, s.DisableSessions(ctx, pair.Refresh))

	_, err = s.FindActiveSession(ctx, pair.Request)
	require.ErrorIs(t, err, auth.ErrSessionNotFound)

	_, err = s.UserForRefresh(ctx, pair.Refresh)
	require.ErrorIs(t, err, auth.ErrSessionNotFound)

	_, err = s.FindActiveSession(ctx, other.Request)
	require.NoError(t, err, "other sessions of the user stay active")

	now = now.Add(2 * time.Hour)

	_, err = s.FindActiveSession(ctx, other.Request)
	require.ErrorIs(t, err, auth.ErrSessionNotFound, "request token expired")

	_, err = s.UserForRefresh(ctx, other.Refresh)
	require.NoError(t, err, "refresh token still valid")

	now = now.Add(8 * time.Hour)

	purged, err := s.PurgeSessions(ctx)
	require.NoError(t, err)
	assert.EqualValues(t, 2, purged)
}

func TestSessionOfDisabledUser(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.IngestUsers(ctx, auth.SourceLDAP, []auth.DirectoryUser{{Username: "tstark"}}, false))

	user, err := s.FindUserByUsername(ctx, "tstark", auth.SourceLDAP)
	require.NoError(t, err)

	pair, err := s.CreateSession(ctx, user)
	require.NoError(t, err)

	require.NoError(t, s.IngestUsers(ctx, auth.SourceLDAP, []auth.DirectoryUser{}, true))

	_, err = s.FindActiveSession(ctx, pair.Request)
	require.ErrorIs(t, err, auth.ErrUserAccountDisabled)

	_, err = s.FindUserByUsername(ctx, "tstark", auth.SourceLDAP)
	require.ErrorIs(t, err, auth.ErrUserAccountDisabled)
}

func TestLocalProviderOnStore(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()

	_, err := s.CreateLocalUser(ctx, "admin", "changeme", "", auth.RoleAdmin)
	require.NoError(t, err)

	codec, err := token.NewCodec(testKey, "")
	require.NoError(t, err)

	p := auth.NewLocalProvider(codec, s, s)

	pair, err := p.IssueToken(ctx, auth.BasicCredential{Username: "admin", Password: "changeme"}, auth.NoFactors{})
	require.NoError(t, err)

	user, _, err := p.ResolveUserByToken(ctx, pair.Request, auth.NoFactors{})
	require.NoError(t, err)
	assert.Equal(t, "admin", user.Username)

	refreshed, err := p.RefreshToken(ctx, pair.Refresh, auth.NoFactors{})
	require.NoError(t, err)
	assert.False(t, p.IsTokenValid(ctx, pair.Request, auth.NoFactors{}), "refresh ends the old session")
	assert.True(t, p.IsTokenValid(ctx, refreshed.Request, auth.NoFactors{}))

	p.RevokeToken(ctx, refreshed.Request)
	assert.False(t, p.IsTokenValid(ctx, refreshed.Request, auth.NoFactors{}))
}

// Package store is the gorm backed user and session store.
//
// It implements auth.UserStore, auth.SessionStore and the syncer.Ingester on
// top of the models in internal/db/models. Raw tokens are never persisted,
// sessions are looked up by token.Fingerprint.
package store

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/authgate/authgate/internal/auth"
	"github.com/authgate/authgate/internal/db/models"
	"github.com/authgate/authgate/internal/token"
)

var (
	_ auth.UserStore    = (*Store)(nil)
	_ auth.SessionStore = (*Store)(nil)
)

// Store provides user, session and sync persistence.
type Store struct {
	db          *gorm.DB
	codec       *token.Codec
	age         token.AgeProfile
	adminGroups map[string]struct{}
	now         func() time.Time
}

// Option configures a Store.
type Option func(*Store)

// WithAge sets the lifetimes of newly opened sessions, token.DefaultAge otherwise.
func WithAge(age token.AgeProfile) Option {
	return func(s *Store) {
		s.age = age
	}
}

// WithAdminGroups names directory groups whose members get auth.RoleAdmin on every sync pass.
func WithAdminGroups(groups ...string) Option {
	return func(s *Store) {
		for _, g := range groups {
			s.adminGroups[g] = struct{}{}
		}
	}
}

// WithTimeFunc replaces time.Now, mainly for tests.
func WithTimeFunc(now func() time.Time) Option {
	return func(s *Store) {
		s.now = now
	}
}

// New creates a Store. codec signs the token pairs of new sessions.
func New(db *gorm.DB, codec *token.Codec, opts ...Option) *Store {
	s := &Store{
		db:          db,
		codec:       codec,
		age:         token.DefaultAge,
		adminGroups: make(map[string]struct{}),
		now:         time.Now,
	}

	for _, opt := range opts {
		opt(s)
	}

	return s
}

// Migrate creates or updates the tables of all models.
func (s *Store) Migrate() error {
	if err := s.db.AutoMigrate(models.All()...); err != nil {
		return fmt.Errorf("failed to migrate database: %w", err)
	}

	return nil
}

// FindUserByUsername implements auth.UserStore.
func (s *Store) FindUserByUsername(ctx context.Context, username, source string) (*auth.User, error) {
	var user models.User

	err := s.db.WithContext(ctx).
		Where("username = ? AND source = ?", username, source).
		First(&user).Error
	if err != nil {
		return nil, notFound(err, auth.ErrUserNotFound)
	}

	return activeUser(&user)
}

// FindUserByID implements auth.UserStore.
func (s *Store) FindUserByID(ctx context.Context, id string) (*auth.User, error) {
	uid, err := strconv.ParseUint(id, 10, 64)
	if err != nil {
		return nil, fmt.Errorf("%w: invalid id %q", auth.ErrUserNotFound, id)
	}

	var user models.User
	if err = s.db.WithContext(ctx).First(&user, uid).Error; err != nil {
		return nil, notFound(err, auth.ErrUserNotFound)
	}

	return activeUser(&user)
}

// CreateUser implements auth.UserStore.
func (s *Store) CreateUser(ctx context.Context, summary auth.UserSummary) (*auth.User, error) {
	role := summary.Role
	if role == "" {
		role = auth.RoleUser
	}

	user := models.User{
		Active:      true,
		Username:    summary.Username,
		Source:      summary.Source,
		Email:       summary.Email,
		DisplayName: summary.DisplayName,
		Role:        string(role),
		ExternalID:  summary.ExternalID,
	}

	if err := s.db.WithContext(ctx).Create(&user).Error; err != nil {
		return nil, fmt.Errorf("failed to create user %s: %w", summary.Username, err)
	}

	return toAuthUser(&user), nil
}

// CreateLocalUser creates a user of the local source with a password.
func (s *Store) CreateLocalUser(ctx context.Context, username, password, email string, role auth.Role) (*auth.User, error) {
	hash, err := models.HashPassword(password)
	if err != nil {
		return nil, err
	}

	user := models.User{
		Active:   true,
		Username: username,
		Source:   auth.SourceLocal,
		Email:    email,
		Password: hash,
		Role:     string(role),
	}

	if err = s.db.WithContext(ctx).Create(&user).Error; err != nil {
		return nil, fmt.Errorf("failed to create local user %s: %w", username, err)
	}

	return toAuthUser(&user), nil
}

// CountUsers returns the number of stored users.
func (s *Store) CountUsers(ctx context.Context) (int64, error) {
	var count int64
	if err := s.db.WithContext(ctx).Model(&models.User{}).Count(&count).Error; err != nil {
		return 0, fmt.Errorf("failed to count users: %w", err)
	}

	return count, nil
}

// FindUserByBasic implements auth.UserStore. Unknown users and wrong passwords
// both report auth.ErrUserNotFound.
func (s *Store) FindUserByBasic(ctx context.Context, username, password string) (*auth.User, error) {
	var user models.User

	err := s.db.WithContext(ctx).
		Where("username = ? AND source = ?", username, auth.SourceLocal).
		First(&user).Error
	if err != nil {
		return nil, notFound(err, auth.ErrUserNotFound)
	}

	if !user.VerifyPassword(password) {
		return nil, fmt.Errorf("%w: wrong password", auth.ErrUserNotFound)
	}

	return activeUser(&user)
}

// CreateSession implements auth.SessionStore.
func (s *Store) CreateSession(ctx context.Context, user *auth.User) (*auth.TokenPair, error) {
	uid, err := strconv.ParseUint(user.ID, 10, 64)
	if err != nil {
		return nil, fmt.Errorf("%w: invalid id %q", auth.ErrUserNotFound, user.ID)
	}

	id := uuid.NewString()

	request, refresh, err := s.codec.IssuePair(token.Identity{
		UserID:       user.ID,
		Username:     user.Username,
		Source:       user.Source,
		SessionToken: id,
		Role:         string(user.Role),
	}, s.age)
	if err != nil {
		return nil, fmt.Errorf("failed to issue tokens: %w", err)
	}

	now := s.now()

	session := models.Session{
		ID:               id,
		UserID:           uid,
		RequestHash:      token.Fingerprint(request),
		RefreshHash:      token.Fingerprint(refresh),
		Active:           true,
		ExpiresAt:        now.Add(s.age.Request),
		RefreshExpiresAt: now.Add(s.age.Refresh),
	}

	if err = s.db.WithContext(ctx).Create(&session).Error; err != nil {
		return nil, fmt.Errorf("failed to create session: %w", err)
	}

	return &auth.TokenPair{
		Request:   request,
		Refresh:   refresh,
		Source:    user.Source,
		ExpiresAt: session.ExpiresAt,
	}, nil
}

// FindActiveSession implements auth.UserStore.
func (s *Store) FindActiveSession(ctx context.Context, requestToken string) (*auth.User, error) {
	session, err := s.activeSession(ctx, "request_hash", requestToken)
	if err != nil {
		return nil, err
	}

	if !s.now().Before(session.ExpiresAt) {
		return nil, fmt.Errorf("%w: expired", auth.ErrSessionNotFound)
	}

	return activeUser(&session.User)
}

// UserForRefresh implements auth.SessionStore.
func (s *Store) UserForRefresh(ctx context.Context, refreshToken string) (*auth.User, error) {
	session, err := s.activeSession(ctx, "refresh_hash", refreshToken)
	if err != nil {
		return nil, err
	}

	if !s.now().Before(session.RefreshExpiresAt) {
		return nil, fmt.Errorf("%w: expired", auth.ErrSessionNotFound)
	}

	return activeUser(&session.User)
}

// DisableSessions implements auth.SessionStore.
func (s *Store) DisableSessions(ctx context.Context, tok string) error {
	fp := token.Fingerprint(tok)

	err := s.db.WithContext(ctx).Model(&models.Session{}).
		Where("request_hash = ? OR refresh_hash = ?", fp, fp).
		Update("active", false).Error
	if err != nil {
		return fmt.Errorf("failed to disable sessions: %w", err)
	}

	return nil
}

// PurgeSessions deletes sessions whose refresh token expired before now.
func (s *Store) PurgeSessions(ctx context.Context) (int64, error) {
	res := s.db.WithContext(ctx).Where("refresh_expires_at < ?", s.now()).Delete(&models.Session{})
	if res.Error != nil {
		return 0, fmt.Errorf("failed to purge sessions: %w", res.Error)
	}

	return res.RowsAffected, nil
}

func (s *Store) activeSession(ctx context.Context, column, tok string) (*models.Session, error) {
	var session models.Session

	err := s.db.WithContext(ctx).Preload("User").
		Where(column+" = ? AND active = ?", token.Fingerprint(tok), true).
		First(&session).Error
	if err != nil {
		return nil, notFound(err, auth.ErrSessionNotFound)
	}

	return &session, nil
}

func notFound(err, sentinel error) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return sentinel
	}

	return fmt.Errorf("store lookup failed: %w", err)
}

func activeUser(user *models.User) (*auth.User, error) {
	if !user.Active {
		return nil, auth.ErrUserAccountDisabled
	}

	return toAuthUser(user), nil
}

func toAuthUser(user *models.User) *auth.User {
	return &auth.User{
		ID:          strconv.FormatUint(user.ID, 10),
		Username:    user.Username,
		DisplayName: user.DisplayName,
		Email:       user.Email,
		Source:      user.Source,
		Role:        auth.Role(user.Role),
	}
}

package auth_test

import (
	"context"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/authgate/authgate/internal/auth"
	"github.com/authgate/authgate/internal/cache"
	"github.com/authgate/authgate/internal/directory"
	"github.com/authgate/authgate/internal/token"
)

var testKey = []byte("0123456789abcdef0123456789abcdef")

type fakeSession struct {
	userID  string
	request string
	refresh string
	active  bool
}

// fakeStore is an in-memory UserStore and SessionStore.
type fakeStore struct {
	mu        sync.Mutex
	codec     *token.Codec
	users     map[string]*auth.User
	passwords map[string]string
	sessions  []*fakeSession
	nextID    int
}

func newFakeStore(codec *token.Codec) *fakeStore {
	return &fakeStore{
		codec:     codec,
		users:     make(map[string]*auth.User),
		passwords: make(map[string]string),
		nextID:    100,
	}
}

func (s *fakeStore) addUser(u auth.User, password string) *auth.User {
	s.mu.Lock()
	defer s.mu.Unlock()

	if u.Role == "" {
		u.Role = auth.RoleUser
	}

	s.users[u.ID] = &u

	if password != "" {
		s.passwords[u.Username] = password
	}

	return &u
}

func (s *fakeStore) FindUserByUsername(_ context.Context, username, source string) (*auth.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, u := range s.users {
		if u.Username == username && u.Source == source {
			return u, nil
		}
	}

	return nil, auth.ErrUserNotFound
}

func (s *fakeStore) FindUserByID(_ context.Context, id string) (*auth.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if u, ok := s.users[id]; ok {
		return u, nil
	}

	return nil, auth.ErrUserNotFound
}

func (s *fakeStore) CreateUser(_ context.Context, summary auth.UserSummary) (*auth.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.nextID++
	u := &auth.User{
		ID:          strconv.Itoa(s.nextID),
		Username:    summary.Username,
		DisplayName: summary.DisplayName,
		Email:       summary.Email,
		Source:      summary.Source,
		Role:        auth.RoleUser,
	}
	s.users[u.ID] = u

	return u, nil
}

func (s *fakeStore) FindActiveSession(_ context.Context, requestToken string) (*auth.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, sess := range s.sessions {
		if sess.active && sess.request == requestToken {
			return s.users[sess.userID], nil
		}
	}

	return nil, auth.ErrSessionNotFound
}

func (s *fakeStore) FindUserByBasic(_ context.Context, username, password string) (*auth.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, u := range s.users {
		if u.Username == username && u.Source == auth.SourceLocal {
			if pw, ok := s.passwords[username]; ok && pw == password {
				return u, nil
			}

			return nil, auth.ErrUserNotFound
		}
	}

	return nil, auth.ErrUserNotFound
}

func (s *fakeStore) CreateSession(_ context.Context, user *auth.User) (*auth.TokenPair, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	request, refresh, err := s.codec.IssuePair(token.Identity{
		UserID:       user.ID,
		Username:     user.Username,
		Source:       user.Source,
		SessionToken: strconv.Itoa(len(s.sessions)),
		Role:         string(user.Role),
	}, token.DefaultAge)
	if err != nil {
		return nil, err
	}

	s.sessions = append(s.sessions, &fakeSession{userID: user.ID, request: request, refresh: refresh, active: true})

	return &auth.TokenPair{Request: request, Refresh: refresh, Source: user.Source}, nil
}

func (s *fakeStore) UserForRefresh(_ context.Context, refreshToken string) (*auth.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, sess := range s.sessions {
		if sess.active && sess.refresh == refreshToken {
			return s.users[sess.userID], nil
		}
	}

	return nil, auth.ErrSessionNotFound
}

func (s *fakeStore) DisableSessions(_ context.Context, tok string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, sess := range s.sessions {
		if sess.request == tok || sess.refresh == tok {
			sess.active = false
		}
	}

	return nil
}

// fakeDirectory accepts tstark/correct-pw.
type fakeDirectory struct {
	connects int
}

var tstark = directory.Account{
	Username:    "tstark",
	DisplayName: "Tony Stark",
	Email:       "tony@example.org",
	DN:          "uid=tstark,ou=people,dc=example,dc=org",
	ObjectClass: "inetOrgPerson",
}

func (d *fakeDirectory) Connect(context.Context) error {
	d.connects++

	return nil
}

func (d *fakeDirectory) CheckUserAuth(_ context.Context, username, password string) (*directory.Account, error) {
	if username == tstark.Username && password == "correct-pw" {
		a := tstark

		return &a, nil
	}

	return nil, directory.ErrInvalidCredentials
}

func (d *fakeDirectory) FindUser(_ context.Context, username string) (*directory.Account, error) {
	if username == tstark.Username {
		a := tstark

		return &a, nil
	}

	return nil, directory.ErrUserNotFound
}

func (d *fakeDirectory) Users(context.Context) ([]directory.Account, error) {
	return []directory.Account{tstark}, nil
}

func (d *fakeDirectory) Groups(context.Context) ([]directory.Group, error) {
	return []directory.Group{{Name: "avengers", DN: "cn=avengers,ou=groups,dc=example,dc=org", Members: []string{"tstark"}}}, nil
}

// mockProvider counts backend calls.
type mockProvider struct {
	mock.Mock
	name string
}

func (m *mockProvider) SourceName() string { return m.name }

func (m *mockProvider) IssueToken(_ context.Context, cred auth.BasicCredential, _ auth.ValidationContext) (*auth.TokenPair, error) {
	args := m.Called(cred)
	pair, _ := args.Get(0).(*auth.TokenPair)

	return pair, args.Error(1)
}

func (m *mockProvider) RefreshToken(_ context.Context, refreshToken string, _ auth.ValidationContext) (*auth.TokenPair, error) {
	args := m.Called(refreshToken)
	pair, _ := args.Get(0).(*auth.TokenPair)

	return pair, args.Error(1)
}

func (m *mockProvider) RevokeToken(_ context.Context, tok string) {
	m.Called(tok)
}

func (m *mockProvider) IsTokenValid(_ context.Context, tok string, _ auth.ValidationContext) bool {
	return m.Called(tok).Bool(0)
}

func (m *mockProvider) ResolveUserByToken(_ context.Context, tok string, _ auth.ValidationContext) (*auth.User, time.Time, error) {
	args := m.Called(tok)
	user, _ := args.Get(0).(*auth.User)
	expiresAt, _ := args.Get(1).(time.Time)

	return user, expiresAt, args.Error(2)
}

func (m *mockProvider) ResolveUserByName(_ context.Context, username string, _ auth.ValidationContext) (*auth.UserSummary, error) {
	args := m.Called(username)
	summary, _ := args.Get(0).(*auth.UserSummary)

	return summary, args.Error(1)
}

// mockCookieProvider is a mockProvider reading an SSO cookie.
type mockCookieProvider struct {
	mockProvider
	cookie string
}

func (m *mockCookieProvider) CookieName() string { return m.cookie }

type fixture struct {
	codec   *token.Codec
	store   *fakeStore
	cache   *cache.Memory
	service *auth.Service
}

func newFixture(t *testing.T, build func(f *fixture) []auth.Provider) *fixture {
	t.Helper()

	codec, err := token.NewCodec(testKey, "authgate-test")
	require.NoError(t, err)

	mem, err := cache.NewMemory(100, nil)
	require.NoError(t, err)

	f := &fixture{codec: codec, store: newFakeStore(codec), cache: mem}

	registry, err := auth.NewRegistry(build(f)...)
	require.NoError(t, err)

	f.service = auth.NewService(registry, codec, mem, f.store, auth.Config{})

	return f
}

func bearer(tok string) auth.Request {
	return auth.Request{Authorization: "Bearer " + tok}
}

// flip changes one character in the middle of the signature.
func flip(tok string) string {
	b := []byte(tok)
	i := len(b) - 20

	if b[i] == 'A' {
		b[i] = 'B'
	} else {
		b[i] = 'A'
	}

	return string(b)
}

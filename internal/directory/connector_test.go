package directory_test

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/go-ldap/ldap/v3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/authgate/authgate/internal/directory"
)

const (
	serviceDN = "cn=admin,dc=example,dc=org"
	servicePW = "admin-pw"
)

// fakeDirectory is an in-memory directory shared by all connections it dials.
type fakeDirectory struct {
	mu        sync.Mutex
	passwords map[string]string
	users     []*ldap.Entry
	groups    []*ldap.Entry
	dials     int
	failDials int
	dropNext  bool
}

func newFakeDirectory() *fakeDirectory {
	return &fakeDirectory{
		passwords: map[string]string{
			serviceDN:                                 servicePW,
			"uid=tstark,ou=people,dc=example,dc=org":  "correct-pw",
			"uid=pparker,ou=people,dc=example,dc=org": "spider",
		},
		users: []*ldap.Entry{
			ldap.NewEntry("uid=tstark,ou=people,dc=example,dc=org", map[string][]string{
				"uid":         {"tstark"},
				"cn":          {"Tony Stark"},
				"mail":        {"tony@example.org"},
				"objectClass": {"inetOrgPerson", "person"},
			}),
			ldap.NewEntry("uid=pparker,ou=people,dc=example,dc=org", map[string][]string{
				"uid":         {"pparker"},
				"objectClass": {"inetOrgPerson"},
			}),
		},
		groups: []*ldap.Entry{
			ldap.NewEntry("cn=avengers,ou=groups,dc=example,dc=org", map[string][]string{
				"cn": {"avengers"},
				"member": {
					"uid=tstark,ou=people,dc=example,dc=org",
					"cn=hulk,ou=people,dc=example,dc=org",
				},
			}),
		},
	}
}

func (d *fakeDirectory) dial(_ context.Context, _ directory.Config) (directory.Conn, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.dials++
	if d.failDials > 0 {
		d.failDials--

		return nil, ldap.NewError(ldap.ErrorNetwork, errors.New("connection refused"))
	}

	return &fakeConn{dir: d}, nil
}

type fakeConn struct {
	dir    *fakeDirectory
	closed bool
}

func (c *fakeConn) Bind(dn, password string) error {
	c.dir.mu.Lock()
	defer c.dir.mu.Unlock()

	if pw, ok := c.dir.passwords[dn]; ok && pw == password && password != "" {
		return nil
	}

	return ldap.NewError(ldap.LDAPResultInvalidCredentials, errors.New("invalid credentials"))
}

func (c *fakeConn) Search(req *ldap.SearchRequest) (*ldap.SearchResult, error) {
	c.dir.mu.Lock()
	defer c.dir.mu.Unlock()

	if c.dir.dropNext {
		c.dir.dropNext = false

		return nil, ldap.NewError(ldap.ErrorNetwork, errors.New("connection reset"))
	}

	res := &ldap.SearchResult{}

	switch {
	case strings.HasPrefix(req.Filter, "(uid="):
		uid := strings.TrimSuffix(strings.TrimPrefix(req.Filter, "(uid="), ")")
		for _, e := range c.dir.users {
			if e.GetAttributeValue("uid") == uid {
				res.Entries = append(res.Entries, e)
			}
		}
	case req.Filter == "(objectClass=inetOrgPerson)":
		res.Entries = append(res.Entries, c.dir.users...)
	case req.Filter == "(objectClass=groupOfNames)":
		res.Entries = append(res.Entries, c.dir.groups...)
	}

	return res, nil
}

func (c *fakeConn) Close() error {
	c.closed = true

	return nil
}

func newConnector(d *fakeDirectory, cfg directory.Config) *directory.Connector {
	if cfg.BindDN == "" {
		cfg.BindDN = serviceDN
		cfg.BindPassword = servicePW
	}

	cfg.BaseDN = "ou=people,dc=example,dc=org"

	return directory.New(cfg,
		directory.WithDialer(d.dial),
		directory.WithBackOff(func() backoff.BackOff { return &backoff.ZeroBackOff{} }),
	)
}

func TestConnectIsIdempotent(t *testing.T) {
	d := newFakeDirectory()
	c := newConnector(d, directory.Config{})

	require.NoError(t, c.Connect(context.Background()))
	require.NoError(t, c.Connect(context.Background()))

	assert.True(t, c.Connected())
	assert.Equal(t, 1, d.dials)

	require.NoError(t, c.Close())
	assert.False(t, c.Connected())
}

func TestConnectRetries(t *testing.T) {
	d := newFakeDirectory()
	d.failDials = 2

	c := newConnector(d, directory.Config{MaxConnectAttempts: 3})

	require.NoError(t, c.Connect(context.Background()))
	assert.Equal(t, 3, d.dials)
}

func TestConnectGivesUp(t *testing.T) {
	d := newFakeDirectory()
	d.failDials = 10

	c := newConnector(d, directory.Config{MaxConnectAttempts: 3})

	err := c.Connect(context.Background())
	require.ErrorIs(t, err, directory.ErrUnavailable)
	assert.Equal(t, 3, d.dials)
	assert.False(t, c.Connected())
}

func TestConnectWrongServicePasswordIsPermanent(t *testing.T) {
	d := newFakeDirectory()

	c := newConnector(d, directory.Config{
		BindDN:             serviceDN,
		BindPassword:       "wrong",
		MaxConnectAttempts: 5,
	})

	err := c.Connect(context.Background())
	require.ErrorIs(t, err, directory.ErrUnavailable)
	assert.Equal(t, 1, d.dials)
}

func TestCheckUserAuth(t *testing.T) {
	d := newFakeDirectory()
	c := newConnector(d, directory.Config{})
	ctx := context.Background()

	account, err := c.CheckUserAuth(ctx, "tstark", "correct-pw")
	require.NoError(t, err)
	assert.Equal(t, "tstark", account.Username)
	assert.Equal(t, "Tony Stark", account.DisplayName)
	assert.Equal(t, "tony@example.org", account.Email)
	assert.Equal(t, "inetOrgPerson", account.ObjectClass)

	// one primary connection plus one per user bind
	assert.Equal(t, 2, d.dials)

	tests := []struct {
		name     string
		username string
		password string
	}{
		{"wrong password", "tstark", "wrong-pw"},
		{"unknown user", "nobody", "correct-pw"},
		{"blank password", "tstark", ""},
		{"whitespace password", "tstark", "   "},
		{"blank username", "", "correct-pw"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := c.CheckUserAuth(ctx, tt.username, tt.password)
			require.ErrorIs(t, err, directory.ErrInvalidCredentials)
		})
	}

	// the service connection keeps its identity
	_, err = c.FindUser(ctx, "pparker")
	require.NoError(t, err)
}

func TestSearchReconnectsOnce(t *testing.T) {
	d := newFakeDirectory()
	c := newConnector(d, directory.Config{})
	ctx := context.Background()

	require.NoError(t, c.Connect(ctx))

	d.dropNext = true

	account, err := c.FindUser(ctx, "tstark")
	require.NoError(t, err)
	assert.Equal(t, "tstark", account.Username)
	assert.Equal(t, 2, d.dials)
}

func TestSearchCancelled(t *testing.T) {
	d := newFakeDirectory()
	c := newConnector(d, directory.Config{})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := c.FindUser(ctx, "tstark")
	require.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 0, d.dials)
}

func TestSearchDoesNotWaitForConnectRetries(t *testing.T) {
	d := newFakeDirectory()
	d.failDials = 1000

	c := directory.New(directory.Config{
		BindDN:             serviceDN,
		BindPassword:       servicePW,
		BaseDN:             "ou=people,dc=example,dc=org",
		MaxConnectAttempts: 50,
	},
		directory.WithDialer(d.dial),
		directory.WithBackOff(func() backoff.BackOff { return backoff.NewConstantBackOff(100 * time.Millisecond) }),
	)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	connectDone := make(chan error, 1)

	go func() { connectDone <- c.Connect(ctx) }()

	require.Eventually(t, func() bool {
		d.mu.Lock()
		defer d.mu.Unlock()

		return d.dials > 0
	}, time.Second, time.Millisecond)

	start := time.Now()

	_, err := c.FindUser(context.Background(), "tstark")
	require.ErrorIs(t, err, directory.ErrUnavailable)
	assert.Less(t, time.Since(start), 500*time.Millisecond, "a search dials once instead of queueing behind Connect")

	cancel()
	require.ErrorIs(t, <-connectDone, directory.ErrUnavailable)

	d.mu.Lock()
	d.failDials = 0
	d.mu.Unlock()

	account, err := c.FindUser(context.Background(), "tstark")
	require.NoError(t, err)
	assert.Equal(t, "tstark", account.Username)
}

func TestUsersAndGroups(t *testing.T) {
	d := newFakeDirectory()
	c := newConnector(d, directory.Config{GroupBaseDN: "ou=groups,dc=example,dc=org"})
	ctx := context.Background()

	users, err := c.Users(ctx)
	require.NoError(t, err)
	require.Len(t, users, 2)
	assert.Equal(t, "pparker", users[1].Username)
	assert.Equal(t, "pparker", users[1].DisplayName, "display name falls back to uid")

	groups, err := c.Groups(ctx)
	require.NoError(t, err)
	require.Len(t, groups, 1)
	assert.Equal(t, "avengers", groups[0].Name)
	assert.Equal(t, []string{"tstark", "cn=hulk,ou=people,dc=example,dc=org"}, groups[0].Members)
}

func TestGroupsDisabledWithoutBase(t *testing.T) {
	d := newFakeDirectory()
	c := newConnector(d, directory.Config{})

	groups, err := c.Groups(context.Background())
	require.NoError(t, err)
	assert.Nil(t, groups)
	assert.Equal(t, 0, d.dials)
}

// Package directory is a small synchronous client over an LDAP directory.
//
// A Connector keeps one service-bound connection for searches and serializes
// access to it. Authenticating a user binds on a separate short lived
// connection so the service connection never changes identity.
package directory

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"net"
	"net/url"
	"strconv"
	"strings"
	"sync"

	"github.com/cenkalti/backoff/v4"
	"github.com/go-ldap/ldap/v3"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/singleflight"
)

var (
	// ErrUnavailable is returned when the directory can not be reached or answers with a server error.
	ErrUnavailable = errors.New("directory unavailable")

	// ErrInvalidCredentials is returned when a user bind fails. Unknown users and wrong
	// passwords are reported the same way.
	ErrInvalidCredentials = errors.New("invalid directory credentials")

	// ErrUserNotFound is returned by FindUser when no entry matches.
	ErrUserNotFound = errors.New("directory user not found")

	// ErrMultipleUsers is returned when the user filter matches more than one entry.
	ErrMultipleUsers = errors.New("multiple directory users found")

	errNotConnected = errors.New("not connected")
)

// Conn is the subset of *ldap.Conn used by the connector.
type Conn interface {
	Bind(username, password string) error
	Search(req *ldap.SearchRequest) (*ldap.SearchResult, error)
	Close() error
}

// Dialer opens a new, unauthenticated connection.
type Dialer func(ctx context.Context, cfg Config) (Conn, error)

// Account is a directory user.
type Account struct {
	Username    string
	DisplayName string
	Email       string
	DN          string
	ObjectClass string
}

// Group is a directory group. Members holds usernames when the member DN
// starts with the uid attribute, the raw DN otherwise.
type Group struct {
	Name    string
	DN      string
	Members []string
}

// Connector owns the service connection.
type Connector struct {
	cfg     Config
	dial    Dialer
	backoff func() backoff.BackOff

	connecting singleflight.Group

	mu   sync.Mutex
	conn Conn
}

// Option configures a Connector.
type Option func(*Connector)

// WithDialer replaces DialURL.
func WithDialer(d Dialer) Option {
	return func(c *Connector) {
		c.dial = d
	}
}

// WithBackOff replaces the exponential retry policy of Connect.
func WithBackOff(b func() backoff.BackOff) Option {
	return func(c *Connector) {
		c.backoff = b
	}
}

// New creates a Connector. It does not connect.
func New(cfg Config, opts ...Option) *Connector {
	c := &Connector{
		cfg:  cfg.withDefaults(),
		dial: DialURL,
		backoff: func() backoff.BackOff {
			return backoff.NewExponentialBackOff()
		},
	}

	for _, opt := range opts {
		opt(c)
	}

	return c
}

// DialURL is the default Dialer.
func DialURL(_ context.Context, cfg Config) (Conn, error) {
	u, err := url.Parse(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("invalid ldap url: %w", err)
	}

	tlsConfig := &tls.Config{
		InsecureSkipVerify: cfg.SkipVerify, //nolint:gosec // configurable for test setups
		ServerName:         u.Hostname(),
	}

	conn, err := ldap.DialURL(cfg.URL,
		ldap.DialWithTLSConfig(tlsConfig),
		ldap.DialWithDialer(&net.Dialer{Timeout: cfg.Timeout}),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to LDAP server: %w", err)
	}

	if cfg.StartTLS && u.Scheme != "ldaps" {
		if errStartTLS := conn.StartTLS(tlsConfig); errStartTLS != nil {
			if errClose := conn.Close(); errClose != nil {
				log.Error().Err(errClose).Msg("failed to close LDAP connection")
			}

			return nil, fmt.Errorf("failed to start TLS: %w", errStartTLS)
		}
	}

	conn.SetTimeout(cfg.Timeout)

	return conn, nil
}

// Connect opens and service-binds the primary connection. It is a no-op when
// already connected and retries with backoff up to MaxConnectAttempts times.
// A rejected service bind is not retried. Searches of other callers are not
// held up while it dials.
func (c *Connector) Connect(ctx context.Context) error {
	return c.connect(ctx, c.cfg.MaxConnectAttempts)
}

// connect establishes the primary connection with at most attempts dials.
// Concurrent callers with the same budget share one dial.
func (c *Connector) connect(ctx context.Context, attempts int) error {
	if c.Connected() {
		return nil
	}

	_, err, _ := c.connecting.Do(strconv.Itoa(attempts), func() (any, error) {
		if c.Connected() {
			return nil, nil //nolint:nilnil
		}

		conn, err := c.dialBound(ctx, attempts)
		if err != nil {
			return nil, err
		}

		c.mu.Lock()
		defer c.mu.Unlock()

		if c.conn != nil {
			closeConn(conn)

			return nil, nil //nolint:nilnil
		}

		c.conn = conn

		log.Info().Str("url", c.cfg.URL).Msg("connected to ldap")

		return nil, nil //nolint:nilnil
	})

	return err //nolint:wrapcheck
}

func (c *Connector) dialBound(ctx context.Context, attempts int) (Conn, error) {
	var (
		bound   Conn
		attempt int
	)

	op := func() error {
		attempt++

		conn, err := c.dial(ctx, c.cfg)
		if err != nil {
			log.Debug().Err(err).Int("attempt", attempt).Str("url", c.cfg.URL).Msg("ldap dial failed")

			return err
		}

		if err = c.serviceBind(conn); err != nil {
			closeConn(conn)

			if ldap.IsErrorWithCode(err, ldap.LDAPResultInvalidCredentials) {
				return backoff.Permanent(fmt.Errorf("failed to bind with service account: %w", err))
			}

			return fmt.Errorf("failed to bind with service account: %w", err)
		}

		bound = conn

		return nil
	}

	policy := backoff.WithContext(
		backoff.WithMaxRetries(c.backoff(), uint64(max(attempts, 1)-1)), //nolint:gosec
		ctx,
	)

	if err := backoff.Retry(op, policy); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrUnavailable, err)
	}

	return bound, nil
}

func (c *Connector) serviceBind(conn Conn) error {
	if c.cfg.BindDN == "" {
		return nil
	}

	return conn.Bind(c.cfg.BindDN, c.cfg.BindPassword) //nolint:wrapcheck
}

// Connected reports whether the primary connection is open.
func (c *Connector) Connected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.conn != nil
}

// Close drops the primary connection.
func (c *Connector) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.conn == nil {
		return nil
	}

	err := c.conn.Close()
	c.conn = nil

	return err //nolint:wrapcheck
}

// Search runs filter below base on the primary connection. A missing
// connection is dialed once, without the retries of Connect. On a network
// error the connection is re-established once and the search retried.
func (c *Connector) Search(ctx context.Context, base, filter string, attrs []string) ([]*ldap.Entry, error) {
	if err := ctx.Err(); err != nil {
		return nil, err //nolint:wrapcheck
	}

	if err := c.connect(ctx, 1); err != nil {
		return nil, err
	}

	req := ldap.NewSearchRequest(
		base,
		ldap.ScopeWholeSubtree,
		ldap.NeverDerefAliases,
		0,
		int(c.cfg.Timeout.Seconds()),
		false,
		filter,
		attrs,
		nil,
	)

	res, err := c.search(req)
	if err != nil && ldap.IsErrorWithCode(err, ldap.ErrorNetwork) {
		log.Warn().Err(err).Msg("ldap connection lost, reconnecting")

		if errConnect := c.connect(ctx, 1); errConnect != nil {
			return nil, errConnect
		}

		res, err = c.search(req)
	}

	if err != nil {
		return nil, fmt.Errorf("%w: search failed: %w", ErrUnavailable, err)
	}

	return res.Entries, nil
}

// search runs req on the primary connection and drops it on a network error.
func (c *Connector) search(req *ldap.SearchRequest) (*ldap.SearchResult, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.conn == nil {
		return nil, ldap.NewError(ldap.ErrorNetwork, errNotConnected)
	}

	res, err := c.conn.Search(req)
	if err != nil && ldap.IsErrorWithCode(err, ldap.ErrorNetwork) {
		closeConn(c.conn)
		c.conn = nil
	}

	return res, err //nolint:wrapcheck
}

func (c *Connector) userAttrs() []string {
	return []string{c.cfg.UIDAttr, c.cfg.DisplayNameAttr, c.cfg.MailAttr, "objectClass"}
}

// FindUser looks up a single user by login name.
func (c *Connector) FindUser(ctx context.Context, username string) (*Account, error) {
	filter := strings.ReplaceAll(c.cfg.UserFilter, "{username}", ldap.EscapeFilter(username))

	entries, err := c.Search(ctx, c.cfg.BaseDN, filter, c.userAttrs())
	if err != nil {
		return nil, err
	}

	switch len(entries) {
	case 0:
		return nil, ErrUserNotFound
	case 1:
		a := c.account(entries[0])

		return &a, nil
	default:
		return nil, ErrMultipleUsers
	}
}

// CheckUserAuth finds the user and binds as that user on a separate connection.
// A blank password always fails, directories treat it as an anonymous bind.
func (c *Connector) CheckUserAuth(ctx context.Context, username, password string) (*Account, error) {
	if strings.TrimSpace(password) == "" || strings.TrimSpace(username) == "" {
		return nil, ErrInvalidCredentials
	}

	account, err := c.FindUser(ctx, username)
	if err != nil {
		if errors.Is(err, ErrUserNotFound) || errors.Is(err, ErrMultipleUsers) {
			log.Debug().Err(err).Str("username", username).Msg("ldap user lookup failed")

			return nil, ErrInvalidCredentials
		}

		return nil, err
	}

	if err = c.BindUser(ctx, account.DN, password); err != nil {
		return nil, err
	}

	return account, nil
}

// BindUser verifies dn and password on a fresh connection.
func (c *Connector) BindUser(ctx context.Context, dn, password string) error {
	if strings.TrimSpace(password) == "" {
		return ErrInvalidCredentials
	}

	conn, err := c.dial(ctx, c.cfg)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrUnavailable, err)
	}

	defer closeConn(conn)

	if err = conn.Bind(dn, password); err != nil {
		if ldap.IsErrorWithCode(err, ldap.LDAPResultInvalidCredentials) {
			return ErrInvalidCredentials
		}

		return fmt.Errorf("%w: bind failed: %w", ErrUnavailable, err)
	}

	return nil
}

// Users returns every entry matching UserListFilter.
func (c *Connector) Users(ctx context.Context) ([]Account, error) {
	entries, err := c.Search(ctx, c.cfg.BaseDN, c.cfg.UserListFilter, c.userAttrs())
	if err != nil {
		return nil, err
	}

	accounts := make([]Account, 0, len(entries))

	for _, e := range entries {
		a := c.account(e)
		if a.Username == "" {
			log.Debug().Str("dn", e.DN).Msg("skipping ldap entry without uid")

			continue
		}

		accounts = append(accounts, a)
	}

	return accounts, nil
}

// Groups returns every entry matching GroupFilter below GroupBaseDN.
// Without a GroupBaseDN no groups are returned.
func (c *Connector) Groups(ctx context.Context) ([]Group, error) {
	if c.cfg.GroupBaseDN == "" {
		return nil, nil
	}

	entries, err := c.Search(ctx, c.cfg.GroupBaseDN, c.cfg.GroupFilter,
		[]string{c.cfg.GroupNameAttr, c.cfg.GroupMemberAttr})
	if err != nil {
		return nil, err
	}

	groups := make([]Group, 0, len(entries))

	for _, e := range entries {
		g := Group{
			Name: e.GetAttributeValue(c.cfg.GroupNameAttr),
			DN:   e.DN,
		}

		for _, member := range e.GetAttributeValues(c.cfg.GroupMemberAttr) {
			g.Members = append(g.Members, c.memberName(member))
		}

		groups = append(groups, g)
	}

	return groups, nil
}

func (c *Connector) account(e *ldap.Entry) Account {
	a := Account{
		Username:    e.GetAttributeValue(c.cfg.UIDAttr),
		DisplayName: e.GetAttributeValue(c.cfg.DisplayNameAttr),
		Email:       e.GetAttributeValue(c.cfg.MailAttr),
		DN:          e.DN,
	}

	if classes := e.GetAttributeValues("objectClass"); len(classes) > 0 {
		a.ObjectClass = classes[0]
	}

	if a.DisplayName == "" {
		a.DisplayName = a.Username
	}

	return a
}

// memberName maps uid=tstark,ou=people,... to tstark.
func (c *Connector) memberName(dn string) string {
	parsed, err := ldap.ParseDN(dn)
	if err != nil || len(parsed.RDNs) == 0 {
		return dn
	}

	for _, attr := range parsed.RDNs[0].Attributes {
		if strings.EqualFold(attr.Type, c.cfg.UIDAttr) {
			return attr.Value
		}
	}

	return dn
}

func closeConn(conn Conn) {
	if conn == nil {
		return
	}

	if err := conn.Close(); err != nil {
		log.Warn().Err(err).Msg("failed to close LDAP connection")
	}
}

// Package crowd is a client for the Atlassian Crowd usermanagement REST API.
//
// The client authenticates as a Crowd application with basic auth and offers
// the session calls used for SSO (create, validate, delete) plus the user and
// group lookups used by directory sync.
package crowd

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"
)

const (
	apiPath = "/rest/usermanagement/1"

	// FactorRemoteAddress is the validation factor carrying the client ip.
	FactorRemoteAddress = "remote_address"

	// DefaultCookieName is used when the cookie config can not be loaded.
	DefaultCookieName = "crowd.token_key"

	defaultTimeout     = 10 * time.Second
	defaultConcurrency = 4
	maxResults         = 10000
)

var (
	// ErrRejected is returned when Crowd answers the request with a client error,
	// e.g. wrong credentials or an unknown or expired session.
	ErrRejected = errors.New("crowd rejected the request")

	// ErrUnavailable is returned on transport errors, timeouts and server errors.
	ErrUnavailable = errors.New("crowd unavailable")
)

// Config holds the application credentials.
type Config struct {
	URL         string
	AppName     string
	AppPassword string
	Timeout     time.Duration
	// Concurrency bounds parallel member lookups in Groups.
	Concurrency int
}

// Factor is a Crowd validation factor.
type Factor struct {
	Name  string `json:"name"`
	Value string `json:"value"`
}

// Session is a Crowd SSO session.
type Session struct {
	Token     string
	Username  string
	CreatedAt time.Time
	ExpiresAt time.Time
}

// User is a Crowd user.
type User struct {
	Name        string `json:"name"`
	DisplayName string `json:"display-name"`
	Email       string `json:"email"`
	Active      bool   `json:"active"`
}

// CookieConfig is the SSO cookie setup of the Crowd server.
type CookieConfig struct {
	Domain string `json:"domain"`
	Secure bool   `json:"secure"`
	Name   string `json:"name"`
}

// Group is a Crowd group with its direct members.
type Group struct {
	Name    string
	Members []string
}

type authenticateRequest struct {
	Username          string   `json:"username"`
	Password          string   `json:"password"`
	ValidationFactors []Factor `json:"validation-factors,omitempty"`
}

type validateRequest struct {
	ValidationFactors []Factor `json:"validationFactors"`
}

type sessionResponse struct {
	Token       string `json:"token"`
	User        User   `json:"user"`
	CreatedDate int64  `json:"created-date"`
	ExpiryDate  int64  `json:"expiry-date"`
}

type namedEntity struct {
	Name string `json:"name"`
}

type userSearch struct {
	Users []namedEntity `json:"users"`
}

type groupSearch struct {
	Groups []namedEntity `json:"groups"`
}

// Client talks to one Crowd server.
type Client struct {
	cfg  Config
	base string
	http *http.Client
}

// New creates a Client. httpClient may be nil.
func New(cfg Config, httpClient *http.Client) *Client {
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultTimeout
	}

	if cfg.Concurrency <= 0 {
		cfg.Concurrency = defaultConcurrency
	}

	if httpClient == nil {
		httpClient = &http.Client{Timeout: cfg.Timeout}
	}

	return &Client{
		cfg:  cfg,
		base: strings.TrimSuffix(cfg.URL, "/") + apiPath,
		http: httpClient,
	}
}

// CreateSession authenticates username and password and opens an SSO session.
func (c *Client) CreateSession(ctx context.Context, username, password string, factors []Factor) (*Session, error) {
	var res sessionResponse

	body := authenticateRequest{Username: username, Password: password, ValidationFactors: factors}
	if err := c.do(ctx, http.MethodPost, "/session", nil, body, &res); err != nil {
		return nil, err
	}

	return res.session(), nil
}

// ValidateSession checks token and returns the session owner and expiry.
func (c *Client) ValidateSession(ctx context.Context, token string, factors []Factor) (*Session, error) {
	var res sessionResponse

	if factors == nil {
		factors = []Factor{}
	}

	body := validateRequest{ValidationFactors: factors}
	if err := c.do(ctx, http.MethodPost, "/session/"+url.PathEscape(token), nil, body, &res); err != nil {
		return nil, err
	}

	s := res.session()
	if s.Token == "" {
		s.Token = token
	}

	return s, nil
}

// DeleteSession invalidates token.
func (c *Client) DeleteSession(ctx context.Context, token string) error {
	return c.do(ctx, http.MethodDelete, "/session/"+url.PathEscape(token), nil, nil, nil)
}

// User looks up a user by name.
func (c *Client) User(ctx context.Context, username string) (*User, error) {
	var u User

	if err := c.do(ctx, http.MethodGet, "/user", url.Values{"username": {username}}, nil, &u); err != nil {
		return nil, err
	}

	return &u, nil
}

// CookieConfig loads the SSO cookie configuration.
func (c *Client) CookieConfig(ctx context.Context) (*CookieConfig, error) {
	var cc CookieConfig

	if err := c.do(ctx, http.MethodGet, "/config/cookie", nil, nil, &cc); err != nil {
		return nil, err
	}

	return &cc, nil
}

// SearchUsers returns the names of all users visible to the application.
func (c *Client) SearchUsers(ctx context.Context) ([]string, error) {
	var res userSearch

	q := url.Values{"entity-type": {"user"}, "max-results": {fmt.Sprint(maxResults)}}
	if err := c.do(ctx, http.MethodGet, "/search", q, nil, &res); err != nil {
		return nil, err
	}

	return names(res.Users), nil
}

// SearchGroups returns the names of all groups visible to the application.
func (c *Client) SearchGroups(ctx context.Context) ([]string, error) {
	var res groupSearch

	q := url.Values{"entity-type": {"group"}, "max-results": {fmt.Sprint(maxResults)}}
	if err := c.do(ctx, http.MethodGet, "/search", q, nil, &res); err != nil {
		return nil, err
	}

	return names(res.Groups), nil
}

// GroupMembers returns the names of the direct members of group.
func (c *Client) GroupMembers(ctx context.Context, group string) ([]string, error) {
	var res userSearch

	q := url.Values{"groupname": {group}, "max-results": {fmt.Sprint(maxResults)}}
	if err := c.do(ctx, http.MethodGet, "/group/user/direct", q, nil, &res); err != nil {
		return nil, err
	}

	return names(res.Users), nil
}

// Groups returns all groups with their direct members. Member lookups run
// in parallel, bounded by Config.Concurrency; the first failure aborts.
func (c *Client) Groups(ctx context.Context) ([]Group, error) {
	groupNames, err := c.SearchGroups(ctx)
	if err != nil {
		return nil, err
	}

	groups := make([]Group, len(groupNames))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(c.cfg.Concurrency)

	for i, name := range groupNames {
		g.Go(func() error {
			members, errMembers := c.GroupMembers(gctx, name)
			if errMembers != nil {
				return fmt.Errorf("members of %s: %w", name, errMembers)
			}

			groups[i] = Group{Name: name, Members: members}

			return nil
		})
	}

	if err = g.Wait(); err != nil {
		return nil, err //nolint:wrapcheck
	}

	return groups, nil
}

func (c *Client) do(ctx context.Context, method, path string, query url.Values, in, out any) error {
	target := c.base + path
	if len(query) > 0 {
		target += "?" + query.Encode()
	}

	var body io.Reader

	if in != nil {
		payload, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("failed to encode crowd request: %w", err)
		}

		body = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, target, body)
	if err != nil {
		return fmt.Errorf("failed to create crowd request: %w", err)
	}

	req.SetBasicAuth(c.cfg.AppName, c.cfg.AppPassword)
	req.Header.Set("Accept", "application/json")

	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %s %s: %w", ErrUnavailable, method, path, err)
	}

	defer func() {
		if errClose := resp.Body.Close(); errClose != nil {
			log.Warn().Err(errClose).Msg("failed to close crowd response body")
		}
	}()

	switch {
	case resp.StatusCode >= http.StatusInternalServerError:
		return fmt.Errorf("%w: %s %s: status %d", ErrUnavailable, method, path, resp.StatusCode)
	case resp.StatusCode >= http.StatusBadRequest:
		return fmt.Errorf("%w: %s %s: status %d", ErrRejected, method, path, resp.StatusCode)
	}

	if out == nil || resp.StatusCode == http.StatusNoContent {
		return nil
	}

	if err = json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("%w: failed to decode %s %s: %w", ErrUnavailable, method, path, err)
	}

	return nil
}

// session converts the response, missing dates stay zero.
func (r sessionResponse) session() *Session {
	return &Session{
		Token:     r.Token,
		Username:  r.User.Name,
		CreatedAt: unixMilli(r.CreatedDate),
		ExpiresAt: unixMilli(r.ExpiryDate),
	}
}

func unixMilli(ms int64) time.Time {
	if ms == 0 {
		return time.Time{}
	}

	return time.UnixMilli(ms)
}

func names(in []namedEntity) []string {
	out := make([]string, 0, len(in))
	for _, e := range in {
		out = append(out, e.Name)
	}

	return out
}

// RemoteAddress builds the factor list for a client ip.
func RemoteAddress(ip string) []Factor {
	if ip == "" {
		return nil
	}

	return []Factor{{Name: FactorRemoteAddress, Value: ip}}
}

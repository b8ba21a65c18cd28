package auth

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	"golang.org/x/oauth2/github"
)

// DefaultGitHubAPI is the public GitHub REST API.
const DefaultGitHubAPI = "https://api.github.com"

// GitHubEndpoint is the OAuth2 endpoint of github.com.
var GitHubEndpoint = github.Endpoint //nolint:gochecknoglobals

// GitHubValidator checks access tokens with the GitHub applications API.
type GitHubValidator struct {
	clientID     string
	clientSecret string
	api          string
	http         *http.Client
}

// NewGitHubValidator creates a validator for the OAuth app clientID.
// api may be empty for github.com, httpClient may be nil.
func NewGitHubValidator(clientID, clientSecret, api string, httpClient *http.Client) *GitHubValidator {
	if api == "" {
		api = DefaultGitHubAPI
	}

	if httpClient == nil {
		httpClient = &http.Client{Timeout: DefaultHTTPTimeout}
	}

	return &GitHubValidator{
		clientID:     clientID,
		clientSecret: clientSecret,
		api:          strings.TrimSuffix(api, "/"),
		http:         httpClient,
	}
}

type githubTokenCheck struct {
	ExpiresAt *time.Time `json:"expires_at"`
}

type githubUser struct {
	ID    int64  `json:"id"`
	Login string `json:"login"`
	Name  string `json:"name"`
	Email string `json:"email"`
}

// Validate implements TokenValidator.
func (v *GitHubValidator) Validate(ctx context.Context, accessToken string) (time.Time, error) {
	var check githubTokenCheck

	if err := v.applicationToken(ctx, http.MethodPost, accessToken, &check); err != nil {
		return time.Time{}, err
	}

	if check.ExpiresAt == nil {
		return time.Time{}, nil
	}

	return *check.ExpiresAt, nil
}

// Revoke implements TokenRevoker.
func (v *GitHubValidator) Revoke(ctx context.Context, accessToken string) error {
	return v.applicationToken(ctx, http.MethodDelete, accessToken, nil)
}

// Profile implements TokenValidator.
func (v *GitHubValidator) Profile(ctx context.Context, accessToken string) (*Profile, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, v.api+"/user", nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create github request: %w", err)
	}

	req.Header.Set("Authorization", "Bearer "+accessToken)

	var u githubUser
	if err = v.do(req, &u); err != nil {
		return nil, err
	}

	return &Profile{
		Username:    u.Login,
		DisplayName: u.Name,
		Email:       u.Email,
		ExternalID:  strconv.FormatInt(u.ID, 10),
	}, nil
}

// applicationToken calls /applications/{client_id}/token, authenticated as the app.
func (v *GitHubValidator) applicationToken(ctx context.Context, method, accessToken string, out any) error {
	body, err := json.Marshal(map[string]string{"access_token": accessToken})
	if err != nil {
		return fmt.Errorf("failed to encode github request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, method,
		v.api+"/applications/"+v.clientID+"/token", bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to create github request: %w", err)
	}

	req.SetBasicAuth(v.clientID, v.clientSecret)
	req.Header.Set("Content-Type", "application/json")

	return v.do(req, out)
}

func (v *GitHubValidator) do(req *http.Request, out any) error {
	req.Header.Set("Accept", "application/vnd.github+json")

	resp, err := v.http.Do(req)
	if err != nil {
		return fmt.Errorf("%w: github: %w", ErrBackendUnavailable, err)
	}

	defer func() {
		if errClose := resp.Body.Close(); errClose != nil {
			log.Warn().Err(errClose).Msg("failed to close github response body")
		}
	}()

	switch {
	case resp.StatusCode >= http.StatusInternalServerError:
		return fmt.Errorf("%w: github status %d", ErrBackendUnavailable, resp.StatusCode)
	case resp.StatusCode >= http.StatusBadRequest:
		return fmt.Errorf("%w: github status %d", ErrCredentialInvalid, resp.StatusCode)
	}

	if out == nil || resp.StatusCode == http.StatusNoContent {
		return nil
	}

	if err = json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("%w: failed to decode github response: %w", ErrBackendUnavailable, err)
	}

	return nil
}

package directus

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// refreshWindow is how close to expiry a token gets refreshed before use.
const refreshWindow = 30 * time.Second

// Tokens is the data of /auth/login and /auth/refresh responses. Expires is
// the access token lifetime in milliseconds.
type Tokens struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	Expires      int64  `json:"expires"`
}

type session struct {
	access  string
	refresh string
	expires time.Time
}

// Login exchanges credentials for tokens and keeps them for later requests.
func (c *Client) Login(ctx context.Context, email, password string) (*Tokens, error) {
	r, err := newRequest(http.MethodPost, "/auth/login", map[string]string{
		"email":    email,
		"password": password,
	}, http.StatusOK)
	if err != nil {
		return nil, err
	}
	r.anonymous = true

	var tokens Tokens
	if err := c.call(ctx, r, &tokens); err != nil {
		return nil, fmt.Errorf("login: %w", err)
	}
	c.setSession(tokens)
	c.logger.Info().Str("email", email).Time("expires", c.expiry()).Msg("logged in to directus")
	return &tokens, nil
}

// Refresh trades the refresh token for a new pair.
func (c *Client) Refresh(ctx context.Context) (*Tokens, error) {
	c.mu.Lock()
	refresh := c.auth.refresh
	c.mu.Unlock()
	if refresh == "" {
		return nil, ErrNotAuthenticated
	}

	r, err := newRequest(http.MethodPost, "/auth/refresh", map[string]string{
		"refresh_token": refresh,
		"mode":          "json",
	}, http.StatusOK)
	if err != nil {
		return nil, err
	}
	r.anonymous = true

	var tokens Tokens
	if err := c.call(ctx, r, &tokens); err != nil {
		return nil, fmt.Errorf("refresh: %w", err)
	}
	if tokens.RefreshToken == "" {
		tokens.RefreshToken = refresh
	}
	c.setSession(tokens)
	c.logger.Debug().Time("expires", c.expiry()).Msg("refreshed directus token")
	return &tokens, nil
}

// Logout revokes the refresh token and forgets the session.
func (c *Client) Logout(ctx context.Context) error {
	c.mu.Lock()
	refresh := c.auth.refresh
	c.mu.Unlock()
	if refresh == "" {
		return ErrNotAuthenticated
	}

	r, err := newRequest(http.MethodPost, "/auth/logout", map[string]string{
		"refresh_token": refresh,
	}, http.StatusOK, http.StatusNoContent)
	if err != nil {
		return err
	}
	r.anonymous = true
	if err := c.call(ctx, r, nil); err != nil {
		return fmt.Errorf("logout: %w", err)
	}

	c.mu.Lock()
	c.auth = session{}
	c.mu.Unlock()
	return nil
}

// Token returns the current access token.
func (c *Client) Token() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.auth.access
}

// SetToken replaces the session with a static access token.
func (c *Client) SetToken(token string) {
	c.mu.Lock()
	c.auth = session{access: token}
	c.mu.Unlock()
}

// Session returns the current token pair. Expires is the remaining lifetime
// in milliseconds, zero when unknown.
func (c *Client) Session() Tokens {
	c.mu.Lock()
	defer c.mu.Unlock()
	t := Tokens{AccessToken: c.auth.access, RefreshToken: c.auth.refresh}
	if !c.auth.expires.IsZero() {
		t.Expires = max(c.auth.expires.Sub(c.now()).Milliseconds(), 0)
	}
	return t
}

// Resume restores a pair returned by Login, Refresh or Session.
func (c *Client) Resume(t Tokens) {
	c.setSession(t)
}

func (c *Client) expiry() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.auth.expires
}

func (c *Client) setSession(t Tokens) {
	s := session{access: t.AccessToken, refresh: t.RefreshToken, expires: tokenExpiry(t, c.now())}
	c.mu.Lock()
	c.auth = s
	c.mu.Unlock()
}

// tokenExpiry reads the exp claim of the access token, falling back to the
// expires lifetime. The signature is not checked: the server does that.
func tokenExpiry(t Tokens, now time.Time) time.Time {
	token, _, err := jwt.NewParser().ParseUnverified(t.AccessToken, jwt.MapClaims{})
	if err == nil {
		if exp, err := token.Claims.GetExpirationTime(); err == nil && exp != nil {
			return exp.Time
		}
	}
	if t.Expires > 0 {
		return now.Add(time.Duration(t.Expires) * time.Millisecond)
	}
	return time.Time{}
}

// ensureFresh refreshes the session when it expires within refreshWindow.
func (c *Client) ensureFresh(ctx context.Context) error {
	if !c.needsRefresh() {
		return nil
	}
	c.refreshMu.Lock()
	defer c.refreshMu.Unlock()
	if !c.needsRefresh() {
		return nil
	}
	_, err := c.Refresh(ctx)
	return err
}

func (c *Client) needsRefresh() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.auth.refresh != "" && !c.auth.expires.IsZero() &&
		c.now().Add(refreshWindow).After(c.auth.expires)
}

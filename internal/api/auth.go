package api

import (
	"context"
	"strings"

	"bunstack/internal/logging"
	"bunstack/internal/session"
)

// User is the account profile.
type User struct {
	Email string `json:"email"`
	Name  string `json:"name"`
}

// authResponse is the envelope of the login and register endpoints.
type authResponse struct {
	envelope
	AccessToken  string `json:"accessToken"`
	RefreshToken string `json:"refreshToken"`
	User         User   `json:"user"`
}

// Login exchanges credentials for a token pair and installs it in the
// session coordinator.
func (c *Client) Login(ctx context.Context, email, password string) (User, error) {
	return c.authenticate(ctx, "/auth/login", map[string]string{
		"email":    email,
		"password": password,
	})
}

// Register creates an account and installs the returned token pair.
func (c *Client) Register(ctx context.Context, email, password, name string) (User, error) {
	return c.authenticate(ctx, "/auth/register", map[string]string{
		"email":    email,
		"password": password,
		"name":     name,
	})
}

func (c *Client) authenticate(ctx context.Context, path string, payload map[string]string) (User, error) {
	c.session.BeginAuth()

	var resp authResponse
	if err := c.send(ctx, "POST", path, payload, &resp, false); err != nil {
		c.session.AbortAuth()
		return User{}, err
	}

	pair := session.TokenPair{
		AccessToken:  strings.TrimPrefix(resp.AccessToken, "Bearer "),
		RefreshToken: resp.RefreshToken,
	}
	if err := c.session.CompleteAuth(pair); err != nil {
		logging.Warn("failed to persist token pair", "error", err)
	}
	return resp.User, nil
}

// Logout revokes the refresh token server-side, then flushes the session:
// both tokens and the persisted builder snapshot.
func (c *Client) Logout(ctx context.Context) error {
	refresh := c.session.RefreshToken()

	var err error
	if refresh != "" {
		err = c.send(ctx, "POST", "/auth/logout", map[string]string{"token": refresh}, nil, false)
	}

	// Local state is flushed even when the server-side revoke failed. The
	// coordinator drops the in-memory pair; the store flush covers tokens
	// and the builder snapshot together.
	c.session.Clear()
	c.store.ClearSession()
	return err
}

// userResponse is the envelope of the user endpoints.
type userResponse struct {
	envelope
	User User `json:"user"`
}

// GetUser fetches the account profile. Requires an authenticated session.
func (c *Client) GetUser(ctx context.Context) (User, error) {
	var resp userResponse
	if err := c.get(ctx, "/auth/user", &resp, true); err != nil {
		return User{}, err
	}
	return resp.User, nil
}

// UserUpdate carries the fields to change on the profile. Empty fields are
// left untouched.
type UserUpdate struct {
	Email    string `json:"email,omitempty"`
	Name     string `json:"name,omitempty"`
	Password string `json:"password,omitempty"`
}

// UpdateUser patches the account profile. Requires an authenticated session.
func (c *Client) UpdateUser(ctx context.Context, update UserUpdate) (User, error) {
	var resp userResponse
	if err := c.send(ctx, "PATCH", "/auth/user", update, &resp, true); err != nil {
		return User{}, err
	}
	return resp.User, nil
}

// ForgotPassword starts the password-reset flow and arms the one-shot flag
// that gates the reset step.
func (c *Client) ForgotPassword(ctx context.Context, email string) error {
	if err := c.send(ctx, "POST", "/password-reset", map[string]string{"email": email}, nil, false); err != nil {
		return err
	}
	if err := c.store.SetResetFlag(); err != nil {
		logging.Warn("failed to persist reset flag", "error", err)
	}
	return nil
}

// ResetPassword completes the password-reset flow. It only proceeds when the
// one-shot flag armed by ForgotPassword is present, and consumes it either
// way.
func (c *Client) ResetPassword(ctx context.Context, password, code string) error {
	if !c.store.ConsumeResetFlag() {
		return ErrResetNotRequested
	}
	return c.send(ctx, "POST", "/password-reset/reset", map[string]string{
		"password": password,
		"token":    code,
	}, nil, false)
}

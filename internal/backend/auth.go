package backend

import (
	"context"
	"fmt"
	"net/http"
)

// AuthError is a recoverable authentication failure (bad credentials,
// duplicate signup). The message is shown inline on the auth form.
type AuthError struct {
	Message string
}

func (e AuthError) Error() string { return e.Message }

func (c *Client) setSession(session *Session) {
	c.mu.Lock()
	c.session = session
	listeners := make([]func(*Session), len(c.onChange))
	copy(listeners, c.onChange)
	c.mu.Unlock()
	for _, listener := range listeners {
		listener(session)
	}
}

// OnAuthChange registers a listener fired on sign-in, sign-out and token
// refresh. The listener receives nil on sign-out.
func (c *Client) OnAuthChange(listener func(*Session)) {
	c.mu.Lock()
	c.onChange = append(c.onChange, listener)
	c.mu.Unlock()
}

// Session returns the current session, nil when signed out.
func (c *Client) Session() *Session {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.session
}

func (c *Client) authRequest(ctx context.Context, path string, body any) (*Session, error) {
	resp, err := c.rest.R().
		SetContext(ctx).
		SetHeader("Authorization", "Bearer "+c.anonKey).
		SetHeader("Content-Type", "application/json").
		SetBody(body).
		SetResult(&Session{}).
		Post(path)
	if err != nil {
		return nil, fmt.Errorf("auth request: %w", err)
	}
	if resp.StatusCode() != http.StatusOK {
		return nil, AuthError{Message: decodeAPIError(resp).Error()}
	}
	session, ok := resp.Result().(*Session)
	if !ok || session.AccessToken == "" {
		return nil, AuthError{Message: "unexpected auth response"}
	}
	return session, nil
}

// SignIn exchanges email/password credentials for a session.
func (c *Client) SignIn(ctx context.Context, email, password string) (*Session, error) {
	session, err := c.authRequest(ctx, "/auth/v1/token?grant_type=password", map[string]string{
		"email":    email,
		"password": password,
	})
	if err != nil {
		return nil, err
	}
	c.setSession(session)
	return session, nil
}

// SignUp registers a new account with attached metadata (the chosen
// university). Depending on backend settings the returned session may be
// empty until the email is confirmed.
func (c *Client) SignUp(ctx context.Context, email, password string, meta map[string]any) (*Session, error) {
	resp, err := c.rest.R().
		SetContext(ctx).
		SetHeader("Authorization", "Bearer "+c.anonKey).
		SetHeader("Content-Type", "application/json").
		SetBody(map[string]any{
			"email":    email,
			"password": password,
			"data":     meta,
		}).
		SetResult(&Session{}).
		Post("/auth/v1/signup")
	if err != nil {
		return nil, fmt.Errorf("sign up: %w", err)
	}
	if resp.StatusCode() != http.StatusOK {
		return nil, AuthError{Message: decodeAPIError(resp).Error()}
	}
	session, _ := resp.Result().(*Session)
	if session != nil && session.AccessToken != "" {
		c.setSession(session)
	}
	return session, nil
}

// RefreshSession bootstraps a session from a persisted refresh token.
func (c *Client) RefreshSession(ctx context.Context, refreshToken string) (*Session, error) {
	session, err := c.authRequest(ctx, "/auth/v1/token?grant_type=refresh_token", map[string]string{
		"refresh_token": refreshToken,
	})
	if err != nil {
		return nil, err
	}
	c.setSession(session)
	return session, nil
}

// SignOut revokes the session server-side and clears it locally. The local
// session is cleared even when revocation fails.
func (c *Client) SignOut(ctx context.Context) error {
	current := c.Session()
	if current == nil {
		return nil
	}
	resp, err := c.request(ctx).Post("/auth/v1/logout")
	c.setSession(nil)
	if err != nil {
		return fmt.Errorf("sign out: %w", err)
	}
	if resp.StatusCode() != http.StatusNoContent && resp.StatusCode() != http.StatusOK {
		return fmt.Errorf("sign out: %w", decodeAPIError(resp))
	}
	return nil
}

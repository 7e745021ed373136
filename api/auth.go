package api

import (
	"context"
	"errors"
	"net/http"

	"github.com/MrEthical07/authclient"
)

var errNoToken = errors.New("api: response carried no access token")

type authResponse struct {
	LoginResult
	AccessToken string `json:"access_token"`
}

// Login exchanges credentials for a session. It is guarded by the login gate
// and sent without a bearer token, so a 401 is a plain *Error.
func (c *Client) Login(ctx context.Context, email, password string) (LoginResult, error) {
	body, ctype, err := jsonBody(map[string]string{"email": email, "password": password})
	if err != nil {
		return LoginResult{}, err
	}

	var out authResponse
	err = c.do(ctx, call{
		method:    http.MethodPost,
		route:     RouteLogin,
		body:      body,
		ctype:     ctype,
		action:    authclient.ActionLogin,
		label:     "login",
		anonymous: true,
	}, &out)
	if err != nil {
		return LoginResult{}, err
	}
	if out.AccessToken == "" {
		return LoginResult{}, errNoToken
	}
	if err := c.auth.Login(ctx, out.AccessToken, nil); err != nil {
		return LoginResult{}, err
	}
	return out.LoginResult, nil
}

// Signup registers an account. When the server returns a token the session
// is started right away.
func (c *Client) Signup(ctx context.Context, in SignupRequest) (LoginResult, error) {
	body, ctype, err := jsonBody(in)
	if err != nil {
		return LoginResult{}, err
	}

	var out authResponse
	err = c.do(ctx, call{
		method:    http.MethodPost,
		route:     RouteSignup,
		body:      body,
		ctype:     ctype,
		action:    authclient.ActionSignup,
		label:     "sign up",
		anonymous: true,
	}, &out)
	if err != nil {
		return LoginResult{}, err
	}
	if out.AccessToken != "" {
		if err := c.auth.Login(ctx, out.AccessToken, nil); err != nil {
			return LoginResult{}, err
		}
	}
	return out.LoginResult, nil
}

// Logout asks the server to revoke the refresh cookie, then clears the local
// session. The local session is cleared even when the server call fails.
func (c *Client) Logout(ctx context.Context) error {
	remote := c.do(ctx, call{method: http.MethodPost, route: RouteLogout, anonymous: true}, nil)
	if err := c.auth.Logout(ctx); err != nil {
		return err
	}
	return remote
}

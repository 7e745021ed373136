package api

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"

	"github.com/MrEthical07/authclient"
)

// FetchProfile returns the signed-in user and records it on the session.
func (c *Client) FetchProfile(ctx context.Context) (User, error) {
	var out struct {
		User json.RawMessage `json:"user"`
	}
	if err := c.do(ctx, call{method: http.MethodGet, route: RouteProfile}, &out); err != nil {
		return User{}, err
	}
	return c.recordUser(out.User)
}

// UpdateProfile sends the changed fields and records the returned user.
func (c *Client) UpdateProfile(ctx context.Context, fields map[string]any) (User, error) {
	body, ctype, err := jsonBody(fields)
	if err != nil {
		return User{}, err
	}

	var out struct {
		User json.RawMessage `json:"user"`
	}
	err = c.do(ctx, call{
		method: http.MethodPut,
		route:  RouteProfile,
		body:   body,
		ctype:  ctype,
		action: authclient.ActionProfile,
		label:  "update profile",
	}, &out)
	if err != nil {
		return User{}, err
	}
	return c.recordUser(out.User)
}

// DeleteAccount deletes the account and ends the session.
func (c *Client) DeleteAccount(ctx context.Context) error {
	err := c.do(ctx, call{
		method: http.MethodDelete,
		route:  RouteProfile,
		action: authclient.ActionProfile,
		label:  "delete account",
	}, nil)
	if err != nil {
		return err
	}
	return c.auth.Logout(ctx)
}

// UpdateProfilePicture uploads r as the profile picture and returns the
// stored name.
func (c *Client) UpdateProfilePicture(ctx context.Context, r io.Reader, name string) (string, error) {
	body, ctype, err := multipartBody(nil, &formFile{field: "profile_picture", name: name, r: r})
	if err != nil {
		return "", err
	}

	var out struct {
		ProfilePicture string `json:"profile_picture"`
	}
	err = c.do(ctx, call{
		method: http.MethodPost,
		route:  RouteProfilePicture,
		body:   body,
		ctype:  ctype,
		action: authclient.ActionProfile,
		label:  "profile picture",
	}, &out)
	return out.ProfilePicture, err
}

// UpgradeMembership opens a checkout session and returns its id.
func (c *Client) UpgradeMembership(ctx context.Context) (string, error) {
	var out struct {
		ID string `json:"id"`
	}
	err := c.do(ctx, call{
		method: http.MethodPost,
		route:  RouteUpgrade,
		action: authclient.ActionMembership,
		label:  "upgrade",
	}, &out)
	if err != nil {
		return "", err
	}
	if out.ID == "" {
		return "", fmt.Errorf("api: %s returned no session id", RouteUpgrade)
	}
	return out.ID, nil
}

// VerifyCheckoutSession returns the server's verification payload for a
// checkout session.
func (c *Client) VerifyCheckoutSession(ctx context.Context, sessionID string) (json.RawMessage, error) {
	var out json.RawMessage
	route := RouteVerifySession + "?" + url.Values{"session_id": {sessionID}}.Encode()
	if err := c.do(ctx, call{method: http.MethodGet, route: route}, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Client) recordUser(raw json.RawMessage) (User, error) {
	var u User
	if len(raw) == 0 {
		return u, nil
	}
	if err := json.Unmarshal(raw, &u); err != nil {
		return User{}, fmt.Errorf("decode user: %w", err)
	}
	c.auth.SetUser(raw)
	return u, nil
}

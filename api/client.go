package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"

	"github.com/MrEthical07/authclient"
)

// Routes, relative to the configured base URL.
const (
	RouteLogin          = "api/login"
	RouteSignup         = "api/signup"
	RouteLogout         = "api/logout"
	RoutePosts          = "api/posts"
	RouteCreatePost     = "api/posts/create"
	RouteEditPost       = "api/posts/edit"
	RouteDeletePost     = "api/posts/delete"
	RouteLikePost       = "api/posts/like"
	RouteComments       = "api/comments"
	RouteCreateComment  = "api/comments/create"
	RouteProfile        = "api/profile"
	RouteProfilePicture = "api/profile/picture"
	RouteUpgrade        = "api/upgrade-membership"
	RouteVerifySession  = "api/verify-session"
)

// Client calls the social API through an authclient.Client.
type Client struct {
	auth *authclient.Client
}

func New(auth *authclient.Client) *Client {
	return &Client{auth: auth}
}

// Auth returns the underlying authclient.Client.
func (c *Client) Auth() *authclient.Client {
	return c.auth
}

type call struct {
	method    string
	route     string
	body      io.Reader
	ctype     string
	action    authclient.Action // empty means unguarded
	label     string
	anonymous bool
}

func (c *Client) send(ctx context.Context, in call) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, in.method, c.auth.ResolveURL(in.route), in.body)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")
	if in.ctype != "" {
		req.Header.Set("Content-Type", in.ctype)
	}

	if in.action == "" {
		if in.anonymous {
			return c.auth.DoAnonymous(ctx, req)
		}
		return c.auth.Do(ctx, req)
	}

	if in.label != "" {
		ctx = authclient.WithActionLabel(ctx, in.label)
	}
	if in.anonymous {
		return c.auth.DoAnonymousGuarded(ctx, in.action, req)
	}
	return c.auth.DoGuarded(ctx, in.action, req)
}

// do sends in and decodes a 2xx JSON body into out (which may be nil).
// Other statuses become *Error.
func (c *Client) do(ctx context.Context, in call, out any) error {
	resp, err := c.send(ctx, in)
	if err != nil {
		return err
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return errorFromResponse(resp)
	}
	defer resp.Body.Close()

	if out == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil && !errors.Is(err, io.EOF) {
		return fmt.Errorf("decode %s response: %w", in.route, err)
	}
	return nil
}

func jsonBody(v any) (io.Reader, string, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, "", err
	}
	return bytes.NewReader(raw), "application/json", nil
}

type formFile struct {
	field string
	name  string
	r     io.Reader
}

// multipartBody encodes fields and an optional file. The body is fully
// buffered so the request can be replayed after a refresh.
func multipartBody(fields map[string]string, file *formFile) (io.Reader, string, error) {
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	for k, v := range fields {
		if err := w.WriteField(k, v); err != nil {
			return nil, "", err
		}
	}
	if file != nil && file.r != nil {
		name := file.name
		if name == "" {
			name = file.field
		}
		part, err := w.CreateFormFile(file.field, name)
		if err != nil {
			return nil, "", err
		}
		if _, err := io.Copy(part, file.r); err != nil {
			return nil, "", err
		}
	}
	if err := w.Close(); err != nil {
		return nil, "", err
	}
	return &buf, w.FormDataContentType(), nil
}

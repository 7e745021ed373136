package middleware

import (
	"net/http"
	"strings"

	"github.com/MrEthical07/authclient"
)

// Route selects how matching requests are sent. Prefix is relative to the
// client's BaseURL path. An empty Method matches any method. An empty Action
// sends the request unguarded.
type Route struct {
	Method    string
	Prefix    string
	Action    authclient.Action
	Label     string
	Anonymous bool
}

func (r Route) matches(method, path string) bool {
	if r.Method != "" && !strings.EqualFold(r.Method, method) {
		return false
	}
	return strings.HasPrefix(path, r.Prefix)
}

// DefaultRoutes maps the social API routes to their gates.
func DefaultRoutes() []Route {
	return []Route{
		{Method: http.MethodPost, Prefix: "/api/login", Action: authclient.ActionLogin, Label: "login", Anonymous: true},
		{Method: http.MethodPost, Prefix: "/api/signup", Action: authclient.ActionSignup, Label: "sign up", Anonymous: true},
		{Method: http.MethodPost, Prefix: "/api/logout", Anonymous: true},
		{Method: http.MethodPost, Prefix: "/api/posts/create", Action: authclient.ActionPost, Label: "create post"},
		{Method: http.MethodPut, Prefix: "/api/posts/edit/", Action: authclient.ActionPost, Label: "edit post"},
		{Method: http.MethodDelete, Prefix: "/api/posts/delete/", Action: authclient.ActionDelete, Label: "delete post"},
		{Method: http.MethodPost, Prefix: "/api/posts/like/", Action: authclient.ActionLike, Label: "like"},
		{Method: http.MethodPost, Prefix: "/api/comments/create/", Action: authclient.ActionComment, Label: "comment"},
		{Method: http.MethodPut, Prefix: "/api/profile", Action: authclient.ActionProfile, Label: "update profile"},
		{Method: http.MethodDelete, Prefix: "/api/profile", Action: authclient.ActionProfile, Label: "delete account"},
		{Method: http.MethodPost, Prefix: "/api/profile/picture", Action: authclient.ActionProfile, Label: "profile picture"},
		{Method: http.MethodPost, Prefix: "/api/upgrade-membership", Action: authclient.ActionMembership, Label: "upgrade"},
	}
}

// Transport sends requests through an authclient.Client. The first matching
// route wins.
type Transport struct {
	client   *authclient.Client
	routes   []Route
	basePath string
}

func NewTransport(client *authclient.Client, routes ...Route) *Transport {
	t := &Transport{client: client, routes: routes}
	if client != nil {
		t.basePath = client.BasePath()
	}
	return t
}

// NewHTTPClient returns an *http.Client backed by a Transport.
func NewHTTPClient(client *authclient.Client, routes ...Route) *http.Client {
	return &http.Client{Transport: NewTransport(client, routes...)}
}

// RoundTrip implements http.RoundTripper. Local and remote rate limiting are
// reported as *authclient.RateLimitError; an unrecoverable session as
// authclient.ErrSessionExpired.
func (t *Transport) RoundTrip(req *http.Request) (*http.Response, error) {
	ctx := req.Context()

	route, ok := t.match(req)
	if !ok {
		return t.client.Do(ctx, req)
	}
	if route.Label != "" {
		ctx = authclient.WithActionLabel(ctx, route.Label)
	}

	switch {
	case route.Action == "" && route.Anonymous:
		return t.client.DoAnonymous(ctx, req)
	case route.Action == "":
		return t.client.Do(ctx, req)
	case route.Anonymous:
		return t.client.DoAnonymousGuarded(ctx, route.Action, req)
	default:
		return t.client.DoGuarded(ctx, route.Action, req)
	}
}

// match strips the BaseURL path before comparing prefixes. Requests outside
// the base path match no route.
func (t *Transport) match(req *http.Request) (Route, bool) {
	path := req.URL.Path
	if t.basePath != "" {
		rest, ok := strings.CutPrefix(path, t.basePath)
		if !ok || (rest != "" && rest[0] != '/') {
			return Route{}, false
		}
		path = rest
	}
	for _, r := range t.routes {
		if r.matches(req.Method, path) {
			return r, true
		}
	}
	return Route{}, false
}

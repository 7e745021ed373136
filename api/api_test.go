package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"testing"

	"github.com/MrEthical07/authclient"
	"github.com/MrEthical07/authclient/internal/testapi"
)

func newTestClient(t *testing.T) (*Client, *testapi.Server) {
	t.Helper()
	srv, err := testapi.New(testapi.Config{})
	if err != nil {
		t.Fatalf("start stub api: %v", err)
	}
	t.Cleanup(srv.Close)

	cfg := authclient.DefaultConfig()
	cfg.BaseURL = srv.URL
	auth, err := authclient.New().WithConfig(cfg).Build()
	if err != nil {
		t.Fatalf("build client: %v", err)
	}
	t.Cleanup(func() { _ = auth.Close() })
	return New(auth), srv
}

func mustLogin(t *testing.T, c *Client) {
	t.Helper()
	res, err := c.Login(context.Background(), "alice@example.com", "Password123!")
	if err != nil {
		t.Fatalf("login: %v", err)
	}
	if res.Message != "Login successful" {
		t.Fatalf("unexpected login message %q", res.Message)
	}
}

func TestLoginRejectsBadCredentialsWithoutRefresh(t *testing.T) {
	c, srv := newTestClient(t)

	_, err := c.Login(context.Background(), "alice@example.com", "wrong-password")
	var apiErr *Error
	if !errors.As(err, &apiErr) {
		t.Fatalf("expected *Error, got %v", err)
	}
	if apiErr.Status != http.StatusUnauthorized || apiErr.Message != "Invalid email or password" {
		t.Fatalf("unexpected error %+v", apiErr)
	}
	if srv.RefreshCalls() != 0 {
		t.Fatal("login failure must not trigger refresh")
	}
	if c.Auth().IsAuthenticated() {
		t.Fatal("expected no session after failed login")
	}
}

func TestLoginAndFetchProfileRecordsUser(t *testing.T) {
	c, _ := newTestClient(t)
	mustLogin(t, c)

	if !c.Auth().IsAuthenticated() {
		t.Fatal("expected authenticated session")
	}
	user, err := c.FetchProfile(context.Background())
	if err != nil {
		t.Fatalf("fetch profile: %v", err)
	}
	if user.Username != "alice" || user.Membership != "free" {
		t.Fatalf("unexpected user %+v", user)
	}

	var snap User
	if err := json.Unmarshal(c.Auth().Session().User, &snap); err != nil {
		t.Fatalf("decode session user: %v", err)
	}
	if snap.Email != "alice@example.com" {
		t.Fatalf("expected session user snapshot, got %+v", snap)
	}
}

func TestPostLifecycle(t *testing.T) {
	c, _ := newTestClient(t)
	mustLogin(t, c)
	ctx := context.Background()

	post, err := c.CreatePost(ctx, NewPost{
		Title:     "hello",
		Content:   "first post",
		Image:     strings.NewReader("png-bytes"),
		ImageName: "cat.png",
	})
	if err != nil {
		t.Fatalf("create post: %v", err)
	}
	if post.ID == 0 || post.Image != "cat.png" || post.Author != "alice" {
		t.Fatalf("unexpected post %+v", post)
	}

	edited, err := c.EditPost(ctx, post.ID, NewPost{Title: "hello again"})
	if err != nil {
		t.Fatalf("edit post: %v", err)
	}
	if edited.Title != "hello again" || edited.Content != "first post" {
		t.Fatalf("unexpected edited post %+v", edited)
	}

	like, err := c.LikePost(ctx, post.ID)
	if err != nil {
		t.Fatalf("like post: %v", err)
	}
	if !like.Liked || like.Likes != 1 {
		t.Fatalf("unexpected like result %+v", like)
	}

	comment, err := c.CreateComment(ctx, post.ID, "nice")
	if err != nil {
		t.Fatalf("create comment: %v", err)
	}
	reply, err := c.ReplyToComment(ctx, post.ID, comment.ID, "thanks")
	if err != nil {
		t.Fatalf("reply: %v", err)
	}
	if reply.ParentID != comment.ID {
		t.Fatalf("expected reply parent %d, got %d", comment.ID, reply.ParentID)
	}

	comments, err := c.FetchComments(ctx, post.ID)
	if err != nil {
		t.Fatalf("fetch comments: %v", err)
	}
	if len(comments) != 2 {
		t.Fatalf("expected 2 comments, got %d", len(comments))
	}

	posts, err := c.FetchPosts(ctx)
	if err != nil {
		t.Fatalf("fetch posts: %v", err)
	}
	if len(posts) != 1 || posts[0].Title != "hello again" {
		t.Fatalf("unexpected posts %+v", posts)
	}

	if err := c.DeletePost(ctx, post.ID); err != nil {
		t.Fatalf("delete post: %v", err)
	}
	_, err = c.FetchComments(ctx, post.ID)
	var apiErr *Error
	if !errors.As(err, &apiErr) || apiErr.Status != http.StatusNotFound {
		t.Fatalf("expected 404 after delete, got %v", err)
	}
}

func TestMultipartBodyReplayedAfterRefresh(t *testing.T) {
	c, srv := newTestClient(t)
	mustLogin(t, c)

	srv.ExpireTokens()
	post, err := c.CreatePost(context.Background(), NewPost{Title: "after expiry", Content: "body survives"})
	if err != nil {
		t.Fatalf("create post: %v", err)
	}
	if post.Title != "after expiry" || post.Content != "body survives" {
		t.Fatalf("unexpected post %+v", post)
	}
	if srv.RefreshCalls() != 1 {
		t.Fatalf("expected one refresh, got %d", srv.RefreshCalls())
	}
	if srv.Hits("/api/posts/create") != 2 {
		t.Fatalf("expected original attempt and replay, got %d", srv.Hits("/api/posts/create"))
	}
}

func TestProfileOperations(t *testing.T) {
	c, _ := newTestClient(t)
	mustLogin(t, c)
	ctx := context.Background()

	user, err := c.UpdateProfile(ctx, map[string]any{"username": "alice2"})
	if err != nil {
		t.Fatalf("update profile: %v", err)
	}
	if user.Username != "alice2" {
		t.Fatalf("unexpected user %+v", user)
	}

	name, err := c.UpdateProfilePicture(ctx, strings.NewReader("jpeg"), "me.jpg")
	if err != nil {
		t.Fatalf("update picture: %v", err)
	}
	if name != "me.jpg" {
		t.Fatalf("unexpected picture name %q", name)
	}

	if _, err := c.UpdateProfile(ctx, map[string]any{}); err == nil {
		t.Fatal("expected empty update to be rejected")
	}

	if err := c.DeleteAccount(ctx); err != nil {
		t.Fatalf("delete account: %v", err)
	}
	if c.Auth().IsAuthenticated() {
		t.Fatal("expected delete account to end the session")
	}
}

func TestMembershipCheckout(t *testing.T) {
	c, _ := newTestClient(t)
	mustLogin(t, c)
	ctx := context.Background()

	id, err := c.UpgradeMembership(ctx)
	if err != nil {
		t.Fatalf("upgrade: %v", err)
	}
	if !strings.HasPrefix(id, "cs_test_") {
		t.Fatalf("unexpected checkout id %q", id)
	}

	raw, err := c.VerifyCheckoutSession(ctx, id)
	if err != nil {
		t.Fatalf("verify: %v", err)
	}
	var payload struct {
		SessionID  string `json:"session_id"`
		Membership string `json:"membership"`
	}
	if err := json.Unmarshal(raw, &payload); err != nil {
		t.Fatalf("decode payload: %v", err)
	}
	if payload.SessionID != id || payload.Membership != "premium" {
		t.Fatalf("unexpected payload %+v", payload)
	}

	_, err = c.VerifyCheckoutSession(ctx, "cs_test_unknown")
	var apiErr *Error
	if !errors.As(err, &apiErr) || apiErr.Status != http.StatusNotFound {
		t.Fatalf("expected 404 for unknown session, got %v", err)
	}
}

func TestRemoteRateLimitUsesActionLabel(t *testing.T) {
	c, srv := newTestClient(t)
	mustLogin(t, c)
	srv.Throttle("/api/posts/delete", true)

	err := c.DeletePost(context.Background(), 1)
	var rl *authclient.RateLimitError
	if !errors.As(err, &rl) {
		t.Fatalf("expected rate limit error, got %v", err)
	}
	want := "Too many delete post attempts. Please wait a few minutes before trying again."
	if rl.Message() != want {
		t.Fatalf("unexpected message %q", rl.Message())
	}
	if !errors.Is(c.DeletePost(context.Background(), 1), authclient.ErrRateLimited) {
		t.Fatal("expected local cooldown after 429")
	}
}

func TestSignupStartsSession(t *testing.T) {
	c, _ := newTestClient(t)
	ctx := context.Background()

	_, err := c.Signup(ctx, SignupRequest{Username: "al", Email: "alice@example.com", Password: "Password123!"})
	var apiErr *Error
	if !errors.As(err, &apiErr) || apiErr.Status != http.StatusBadRequest {
		t.Fatalf("expected duplicate signup to fail, got %v", err)
	}

	res, err := c.Signup(ctx, SignupRequest{Username: "bob", Email: "bob@example.com", Password: "Password456!"})
	if err != nil {
		t.Fatalf("signup: %v", err)
	}
	if !strings.HasPrefix(res.Message, "Sign up successful") {
		t.Fatalf("unexpected message %q", res.Message)
	}
	if !c.Auth().IsAuthenticated() {
		t.Fatal("expected session after signup")
	}
}

func TestLogoutClearsSession(t *testing.T) {
	c, _ := newTestClient(t)
	mustLogin(t, c)

	if err := c.Logout(context.Background()); err != nil {
		t.Fatalf("logout: %v", err)
	}
	if c.Auth().IsAuthenticated() {
		t.Fatal("expected session cleared")
	}
	_, err := c.FetchPosts(context.Background())
	if !errors.Is(err, authclient.ErrSessionExpired) {
		t.Fatalf("expected session expired without a refresh cookie, got %v", err)
	}
}

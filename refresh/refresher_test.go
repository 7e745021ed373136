package refresh

import (
	"context"
	"errors"
	"net/http"
	"net/http/cookiejar"
	"net/http/httptest"
	"net/url"
	"testing"
)

func TestHTTPRefresherSuccessUsesAmbientCookie(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Errorf("expected POST, got %s", r.Method)
		}
		c, err := r.Cookie("refresh_token_cookie")
		if err != nil || c.Value != "long-lived" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"access_token":"T2"}`))
	}))
	defer srv.Close()

	jar, _ := cookiejar.New(nil)
	u, _ := url.Parse(srv.URL)
	jar.SetCookies(u, []*http.Cookie{{Name: "refresh_token_cookie", Value: "long-lived", Path: "/"}})

	r := NewHTTPRefresher(&http.Client{Jar: jar}, srv.URL+"/api/refresh")
	token, err := r.Refresh(context.Background())
	if err != nil {
		t.Fatalf("refresh: %v", err)
	}
	if token != "T2" {
		t.Fatalf("expected T2, got %q", token)
	}
}

func TestHTTPRefresherRejected(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	_, err := NewHTTPRefresher(srv.Client(), srv.URL).Refresh(context.Background())
	if !errors.Is(err, ErrRefreshRejected) {
		t.Fatalf("expected ErrRefreshRejected, got %v", err)
	}
	var se *StatusError
	if !errors.As(err, &se) || se.StatusCode != http.StatusInternalServerError {
		t.Fatalf("expected status 500 in error, got %v", err)
	}
}

func TestHTTPRefresherMalformed(t *testing.T) {
	for name, body := range map[string]string{
		"empty token": `{"access_token":""}`,
		"not json":    `nope`,
		"missing":     `{}`,
	} {
		t.Run(name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
				_, _ = w.Write([]byte(body))
			}))
			defer srv.Close()

			_, err := NewHTTPRefresher(srv.Client(), srv.URL).Refresh(context.Background())
			if !errors.Is(err, ErrRefreshMalformed) {
				t.Fatalf("expected ErrRefreshMalformed, got %v", err)
			}
		})
	}
}

func TestHTTPRefresherUnavailable(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {}))
	addr := srv.URL
	srv.Close()

	_, err := NewHTTPRefresher(nil, addr).Refresh(context.Background())
	if !errors.Is(err, ErrRefreshUnavailable) {
		t.Fatalf("expected ErrRefreshUnavailable, got %v", err)
	}
}

func TestFuncAdapter(t *testing.T) {
	var r Refresher = Func(func(context.Context) (string, error) { return "x", nil })
	if tok, err := r.Refresh(context.Background()); err != nil || tok != "x" {
		t.Fatalf("unexpected %q %v", tok, err)
	}
}

package testapi

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// RefreshCookieName is the cookie carrying the refresh credential.
const RefreshCookieName = "refresh_token_cookie"

// Config seeds the stub server.
type Config struct {
	Email     string
	Password  string
	Username  string
	Secret    []byte
	AccessTTL time.Duration
	// BasePath mounts every route below a path prefix, e.g. "/backend".
	BasePath string
	Logger   *zap.Logger
}

func defaultConfig() Config {
	return Config{
		Email:     "alice@example.com",
		Password:  "Password123!",
		Username:  "alice",
		Secret:    []byte("testapi-secret"),
		AccessTTL: time.Minute,
	}
}

// Server is a running stub API.
type Server struct {
	*httptest.Server

	cfg    Config
	tokens *tokenManager
	logger *zap.Logger
	data   *store

	version      atomic.Uint32
	refreshCalls atomic.Int64
	refreshFail  atomic.Int32

	mu         sync.Mutex
	refreshes  map[string]string // refresh credential -> uid
	hold       chan struct{}
	throttled  map[string]bool
	hits       map[string]int
	authHeader map[string][]string
}

// New starts a stub server. Zero Config fields take defaults.
func New(cfg Config) (*Server, error) {
	def := defaultConfig()
	if cfg.Email == "" {
		cfg.Email = def.Email
	}
	if cfg.Password == "" {
		cfg.Password = def.Password
	}
	if cfg.Username == "" {
		cfg.Username = def.Username
	}
	if len(cfg.Secret) == 0 {
		cfg.Secret = def.Secret
	}
	if cfg.AccessTTL <= 0 {
		cfg.AccessTTL = def.AccessTTL
	}
	if cfg.BasePath != "" {
		cfg.BasePath = "/" + strings.Trim(cfg.BasePath, "/")
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	tm, err := newTokenManager(cfg.Secret, cfg.AccessTTL)
	if err != nil {
		return nil, err
	}

	data, err := newStore(cfg.Email, cfg.Username, cfg.Password)
	if err != nil {
		return nil, err
	}

	s := &Server{
		cfg:        cfg,
		tokens:     tm,
		logger:     logger,
		data:       data,
		refreshes:  make(map[string]string),
		throttled:  make(map[string]bool),
		hits:       make(map[string]int),
		authHeader: make(map[string][]string),
	}
	s.Server = httptest.NewServer(s.routes())
	return s, nil
}

func (s *Server) routes() http.Handler {
	r := chi.NewRouter()
	r.Use(chimiddleware.Recoverer)
	r.Use(s.record)
	r.Use(s.throttle)

	r.Route(s.cfg.BasePath+"/api", func(r chi.Router) {
		r.Post("/login", s.handleLogin)
		r.Post("/signup", s.handleSignup)
		r.Post("/refresh", s.handleRefresh)
		r.Post("/logout", s.handleLogout)

		r.Group(func(r chi.Router) {
			r.Use(s.requireAccess)

			r.Get("/posts", s.handleListPosts)
			r.Post("/posts/create", s.handleCreatePost)
			r.Put("/posts/edit/{id}", s.handleEditPost)
			r.Delete("/posts/delete/{id}", s.handleDeletePost)
			r.Post("/posts/like/{id}", s.handleLikePost)

			r.Get("/comments/{postID}", s.handleListComments)
			r.Post("/comments/create/{postID}", s.handleCreateComment)

			r.Get("/profile", s.handleGetProfile)
			r.Put("/profile", s.handleUpdateProfile)
			r.Delete("/profile", s.handleDeleteProfile)
			r.Post("/profile/picture", s.handleProfilePicture)

			r.Post("/upgrade-membership", s.handleUpgrade)
			r.Get("/verify-session", s.handleVerifySession)
		})
	})
	return r
}

/*
====================================
KNOBS
====================================
*/

// URLFor returns the absolute URL of path below the base path.
func (s *Server) URLFor(path string) string {
	return s.URL + s.cfg.BasePath + "/" + strings.TrimPrefix(path, "/")
}

// BaseURL is the server URL including the base path.
func (s *Server) BaseURL() string {
	return s.URL + s.cfg.BasePath
}

// ExpireTokens invalidates every access token issued so far.
func (s *Server) ExpireTokens() {
	s.version.Add(1)
}

// IssueToken mints a currently valid access token for the seeded user.
func (s *Server) IssueToken() (string, error) {
	return s.tokens.createAccess(s.data.uid, s.version.Load())
}

// IssueRefreshCookie registers a refresh credential for the seeded user and
// returns the cookie a browser would hold after login.
func (s *Server) IssueRefreshCookie() *http.Cookie {
	value := uuid.NewString()
	s.mu.Lock()
	s.refreshes[value] = s.data.uid
	s.mu.Unlock()
	return &http.Cookie{Name: RefreshCookieName, Value: value, Path: "/", HttpOnly: true}
}

// HoldRefresh parks refresh calls until the returned release func runs.
func (s *Server) HoldRefresh() (release func()) {
	ch := make(chan struct{})
	s.mu.Lock()
	s.hold = ch
	s.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			s.mu.Lock()
			if s.hold == ch {
				s.hold = nil
			}
			s.mu.Unlock()
			close(ch)
		})
	}
}

// FailRefresh makes the refresh route answer status. Zero restores success.
func (s *Server) FailRefresh(status int) {
	s.refreshFail.Store(int32(status))
}

// Throttle makes every route starting with prefix answer 429 while on.
func (s *Server) Throttle(prefix string, on bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if on {
		s.throttled[prefix] = true
		return
	}
	delete(s.throttled, prefix)
}

// RefreshCalls returns how many refresh requests reached the server.
func (s *Server) RefreshCalls() int {
	return int(s.refreshCalls.Load())
}

// Hits returns how many requests reached path.
func (s *Server) Hits(path string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.hits[path]
}

// AuthHeaders returns the Authorization headers seen on path, in order.
func (s *Server) AuthHeaders(path string) []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.authHeader[path]...)
}

/*
====================================
MIDDLEWARE
====================================
*/

func (s *Server) record(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		s.mu.Lock()
		s.hits[r.URL.Path]++
		s.authHeader[r.URL.Path] = append(s.authHeader[r.URL.Path], r.Header.Get("Authorization"))
		s.mu.Unlock()
		next.ServeHTTP(w, r)
	})
}

func (s *Server) throttle(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		s.mu.Lock()
		limited := false
		for prefix := range s.throttled {
			if strings.HasPrefix(r.URL.Path, prefix) {
				limited = true
				break
			}
		}
		s.mu.Unlock()

		if limited {
			writeError(w, http.StatusTooManyRequests, "Too many requests")
			return
		}
		next.ServeHTTP(w, r)
	})
}

type uidContextKey struct{}

func (s *Server) requireAccess(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		raw, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
		if !ok || raw == "" {
			writeJSON(w, http.StatusUnauthorized, map[string]string{"msg": "Missing Authorization Header"})
			return
		}
		claims, err := s.tokens.parseAccess(raw, s.version.Load())
		if err != nil {
			s.logger.Debug("testapi: access rejected", zap.Error(err))
			writeJSON(w, http.StatusUnauthorized, map[string]string{"msg": "Token has expired"})
			return
		}
		next.ServeHTTP(w, r.WithContext(withUID(r.Context(), claims.UID)))
	})
}

/*
====================================
AUTH HANDLERS
====================================
*/

type credentials struct {
	Email    string `json:"email"`
	Username string `json:"username"`
	Password string `json:"password"`
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var in credentials
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil || in.Email == "" || in.Password == "" {
		writeError(w, http.StatusBadRequest, "Email and password required")
		return
	}
	if !s.data.checkCredentials(in.Email, in.Password) {
		writeError(w, http.StatusUnauthorized, "Invalid email or password")
		return
	}
	s.issueSession(w, http.StatusOK, "Login successful")
}

func (s *Server) handleSignup(w http.ResponseWriter, r *http.Request) {
	var in credentials
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil || in.Email == "" || in.Password == "" || in.Username == "" {
		writeError(w, http.StatusBadRequest, "All fields are required")
		return
	}
	if !s.data.register(in.Email, in.Username, in.Password) {
		writeError(w, http.StatusBadRequest, "Email already registered")
		return
	}
	s.issueSession(w, http.StatusCreated, "Sign up successful! Logging in…")
}

func (s *Server) issueSession(w http.ResponseWriter, status int, message string) {
	token, err := s.IssueToken()
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Something went wrong. Please try again.")
		return
	}
	http.SetCookie(w, s.IssueRefreshCookie())
	writeJSON(w, status, map[string]any{
		"message":       message,
		"access_token":  token,
		"totp_verified": false,
	})
}

func (s *Server) handleRefresh(w http.ResponseWriter, r *http.Request) {
	s.refreshCalls.Add(1)

	s.mu.Lock()
	hold := s.hold
	s.mu.Unlock()
	if hold != nil {
		select {
		case <-hold:
		case <-r.Context().Done():
			return
		}
	}

	if status := int(s.refreshFail.Load()); status != 0 {
		writeError(w, status, "Failed to refresh token")
		return
	}

	cookie, err := r.Cookie(RefreshCookieName)
	if err != nil {
		writeJSON(w, http.StatusUnauthorized, map[string]string{"msg": "Missing cookie \"" + RefreshCookieName + "\""})
		return
	}
	s.mu.Lock()
	uid, ok := s.refreshes[cookie.Value]
	s.mu.Unlock()
	if !ok {
		writeJSON(w, http.StatusUnauthorized, map[string]string{"msg": "Token has been revoked"})
		return
	}

	token, err := s.tokens.createAccess(uid, s.version.Load())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to refresh token")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"access_token": token})
}

func (s *Server) handleLogout(w http.ResponseWriter, r *http.Request) {
	if cookie, err := r.Cookie(RefreshCookieName); err == nil {
		s.mu.Lock()
		delete(s.refreshes, cookie.Value)
		s.mu.Unlock()
	}
	http.SetCookie(w, &http.Cookie{Name: RefreshCookieName, Value: "", Path: "/", MaxAge: -1})
	writeJSON(w, http.StatusOK, map[string]string{"message": "Logout successful"})
}

/*
====================================
HELPERS
====================================
*/

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}

// formFile returns the name of an uploaded file field, or "" when absent.
func formFile(r *http.Request, field string) (string, error) {
	f, header, err := r.FormFile(field)
	if err != nil {
		if errors.Is(err, http.ErrMissingFile) {
			return "", nil
		}
		return "", err
	}
	defer f.Close()
	if _, err := io.Copy(io.Discard, f); err != nil {
		return "", err
	}
	return header.Filename, nil
}

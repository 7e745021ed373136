package coordinator

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/MrEthical07/authclient/refresh"
	"github.com/MrEthical07/authclient/session"
)

type memTokens struct {
	mu      sync.Mutex
	token   string
	sets    int
	onSet   func(string)
	setErr  error
	cleared bool
	epoch   uint64
}

func (m *memTokens) GetToken(context.Context) (string, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.token, m.token != ""
}

func (m *memTokens) Epoch() uint64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.epoch
}

func (m *memTokens) CommitRefresh(_ context.Context, token string, epoch uint64) error {
	m.mu.Lock()
	if epoch != m.epoch {
		m.mu.Unlock()
		return session.ErrSessionReplaced
	}
	m.token = token
	m.sets++
	hook := m.onSet
	m.mu.Unlock()
	if hook != nil {
		hook(token)
	}
	return m.setErr
}

func (m *memTokens) clear() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.token = ""
	m.cleared = true
	m.epoch++
}

func (m *memTokens) setCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.sets
}

// apiServer accepts only validToken and records what it saw.
type apiServer struct {
	*httptest.Server
	mu         sync.Mutex
	validToken string
	byAuth     map[string]int
	bodies     []string
	requestIDs []string
	replayed   atomic.Int32
}

func newAPIServer(t *testing.T, validToken string) *apiServer {
	t.Helper()
	s := &apiServer{validToken: validToken, byAuth: map[string]int{}}
	s.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		auth := r.Header.Get("Authorization")

		s.mu.Lock()
		s.byAuth[auth]++
		s.bodies = append(s.bodies, string(body))
		s.requestIDs = append(s.requestIDs, r.Header.Get(RequestIDHeader))
		valid := s.validToken
		s.mu.Unlock()

		switch r.URL.Path {
		case "/forbidden":
			w.WriteHeader(http.StatusForbidden)
			return
		case "/throttled":
			w.WriteHeader(http.StatusTooManyRequests)
			return
		case "/broken":
			w.WriteHeader(http.StatusInternalServerError)
			return
		}

		if auth != "Bearer "+valid {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		s.replayed.Add(1)
		_, _ = w.Write([]byte("ok:" + r.URL.Path))
	}))
	t.Cleanup(s.Close)
	return s
}

func (s *apiServer) hits(auth string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.byAuth[auth]
}

type gatedRefresher struct {
	calls   atomic.Int32
	release chan struct{}
	token   string
	err     error
	ctxErr  atomic.Value
}

func (g *gatedRefresher) Refresh(ctx context.Context) (string, error) {
	g.calls.Add(1)
	if g.release != nil {
		<-g.release
	}
	if err := ctx.Err(); err != nil {
		g.ctxErr.Store(err)
	}
	return g.token, g.err
}

type harness struct {
	coord    *Coordinator
	tokens   *memTokens
	refresh  *gatedRefresher
	queued   atomic.Int32
	expired  atomic.Int32
	queuedCh chan struct{}
}

func newHarness(t *testing.T, client *http.Client, r *gatedRefresher, initialToken string) *harness {
	t.Helper()
	h := &harness{
		tokens:   &memTokens{token: initialToken},
		refresh:  r,
		queuedCh: make(chan struct{}, 64),
	}
	coord, err := New(Deps{
		Doer:      client,
		Refresher: r,
		Tokens:    h.tokens,
		OnSessionExpired: func(context.Context, error) {
			h.expired.Add(1)
			h.tokens.clear()
		},
		Observe: func(e Event) {
			if e == EventQueued {
				h.queued.Add(1)
				h.queuedCh <- struct{}{}
			}
		},
	})
	if err != nil {
		t.Fatalf("new coordinator: %v", err)
	}
	h.coord = coord
	return h
}

func (h *harness) waitQueued(t *testing.T, n int) {
	t.Helper()
	deadline := time.After(5 * time.Second)
	for i := 0; i < n; i++ {
		select {
		case <-h.queuedCh:
		case <-deadline:
			t.Fatalf("timed out waiting for %d queued requests (got %d)", n, i)
		}
	}
}

func get(t *testing.T, url string) *http.Request {
	t.Helper()
	req, err := http.NewRequest(http.MethodGet, url, nil)
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	return req
}

func readBody(t *testing.T, resp *http.Response) string {
	t.Helper()
	defer resp.Body.Close()
	b, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("read body: %v", err)
	}
	return string(b)
}

func TestConcurrentExpiryRefreshesOnce(t *testing.T) {
	srv := newAPIServer(t, "T2")
	r := &gatedRefresher{release: make(chan struct{}), token: "T2"}
	h := newHarness(t, srv.Client(), r, "T1")

	const n = 16
	var wg sync.WaitGroup
	wg.Add(n)
	errs := make(chan error, n)
	bodies := make(chan string, n)
	for i := 0; i < n; i++ {
		go func() {
			defer wg.Done()
			resp, err := h.coord.Do(context.Background(), get(t, srv.URL+"/posts"))
			if err != nil {
				errs <- err
				return
			}
			if resp.StatusCode != http.StatusOK {
				errs <- errors.New(resp.Status)
			}
			bodies <- readBody(t, resp)
		}()
	}

	h.waitQueued(t, n-1)
	close(r.release)
	wg.Wait()
	close(errs)
	close(bodies)

	for err := range errs {
		t.Fatalf("unexpected error: %v", err)
	}
	if got := r.calls.Load(); got != 1 {
		t.Fatalf("expected exactly one refresh, got %d", got)
	}
	if got := h.tokens.setCount(); got != 1 {
		t.Fatalf("expected token committed once, got %d", got)
	}
	if got := srv.hits("Bearer T2"); got != n {
		t.Fatalf("expected %d replays with T2, got %d", n, got)
	}
	if got := srv.hits("Bearer T1"); got != n {
		t.Fatalf("expected %d first attempts with T1, got %d", n, got)
	}
	for b := range bodies {
		if b != "ok:/posts" {
			t.Fatalf("unexpected body %q", b)
		}
	}
	if h.coord.Refreshing() {
		t.Fatal("expected idle state after refresh")
	}
	if h.coord.Generation() != 1 {
		t.Fatalf("expected generation 1, got %d", h.coord.Generation())
	}
}

func TestLogoutDuringRefreshDiscardsToken(t *testing.T) {
	srv := newAPIServer(t, "T2")
	r := &gatedRefresher{release: make(chan struct{}), token: "T2"}
	h := newHarness(t, srv.Client(), r, "T1")

	const n = 3
	errs := make(chan error, n)
	for i := 0; i < n; i++ {
		go func() {
			resp, err := h.coord.Do(context.Background(), get(t, srv.URL+"/posts"))
			if resp != nil {
				resp.Body.Close()
			}
			errs <- err
		}()
	}
	h.waitQueued(t, n-1)

	// explicit logout while the refresh call is still out
	h.tokens.clear()
	close(r.release)

	for i := 0; i < n; i++ {
		if err := <-errs; !errors.Is(err, ErrSessionExpired) {
			t.Fatalf("expected ErrSessionExpired, got %v", err)
		}
	}
	if _, ok := h.tokens.GetToken(context.Background()); ok {
		t.Fatal("refresh must not revive a logged out session")
	}
	if got := h.tokens.setCount(); got != 0 {
		t.Fatalf("expected no commit, got %d", got)
	}
	if got := h.expired.Load(); got != 0 {
		t.Fatalf("expected no expiry callback, got %d", got)
	}
	if got := srv.hits("Bearer T2"); got != 0 {
		t.Fatalf("expected no replays, got %d", got)
	}
	if h.coord.Generation() != 0 {
		t.Fatalf("expected generation 0, got %d", h.coord.Generation())
	}
	if h.coord.Refreshing() {
		t.Fatal("expected idle state")
	}
}

func TestTwoRequestsScenarioSharesNewToken(t *testing.T) {
	srv := newAPIServer(t, "T2")
	r := &gatedRefresher{release: make(chan struct{}), token: "T2"}
	h := newHarness(t, srv.Client(), r, "expired")

	type out struct {
		body string
		err  error
	}
	results := make(chan out, 2)
	for _, path := range []string{"/a", "/b"} {
		go func(path string) {
			resp, err := h.coord.Do(context.Background(), get(t, srv.URL+path))
			if err != nil {
				results <- out{err: err}
				return
			}
			results <- out{body: readBody(t, resp)}
		}(path)
	}

	h.waitQueued(t, 1)
	close(r.release)

	seen := map[string]bool{}
	for i := 0; i < 2; i++ {
		o := <-results
		if o.err != nil {
			t.Fatalf("unexpected error: %v", o.err)
		}
		seen[o.body] = true
	}
	if !seen["ok:/a"] || !seen["ok:/b"] {
		t.Fatalf("expected both requests to succeed, got %v", seen)
	}
	if r.calls.Load() != 1 {
		t.Fatalf("expected one refresh call, got %d", r.calls.Load())
	}
	if srv.hits("Bearer T2") != 2 {
		t.Fatalf("expected both retried with T2, got %d", srv.hits("Bearer T2"))
	}
}

func TestRefreshFailureRejectsAllAndExpiresOnce(t *testing.T) {
	srv := newAPIServer(t, "never")
	r := &gatedRefresher{
		release: make(chan struct{}),
		err:     &refresh.StatusError{StatusCode: http.StatusInternalServerError},
	}
	h := newHarness(t, srv.Client(), r, "T1")

	const n = 8
	var wg sync.WaitGroup
	wg.Add(n)
	errs := make(chan error, n)
	for i := 0; i < n; i++ {
		go func() {
			defer wg.Done()
			resp, err := h.coord.Do(context.Background(), get(t, srv.URL+"/posts"))
			if resp != nil {
				resp.Body.Close()
			}
			errs <- err
		}()
	}

	h.waitQueued(t, n-1)
	close(r.release)
	wg.Wait()
	close(errs)

	for err := range errs {
		if !errors.Is(err, ErrSessionExpired) {
			t.Fatalf("expected ErrSessionExpired, got %v", err)
		}
	}
	if got := h.expired.Load(); got != 1 {
		t.Fatalf("expected onSessionExpired once, got %d", got)
	}
	if r.calls.Load() != 1 {
		t.Fatalf("expected one refresh call, got %d", r.calls.Load())
	}
	if h.tokens.setCount() != 0 {
		t.Fatal("failed refresh must not commit a token")
	}
	if srv.replayed.Load() != 0 {
		t.Fatal("no request may be replayed after refresh failure")
	}
}

func TestReplayUnauthorizedIsTerminal(t *testing.T) {
	srv := newAPIServer(t, "server-rejects-everything")
	r := &gatedRefresher{token: "T2"}
	h := newHarness(t, srv.Client(), r, "T1")

	_, err := h.coord.Do(context.Background(), get(t, srv.URL+"/posts"))
	if !errors.Is(err, ErrSessionExpired) {
		t.Fatalf("expected ErrSessionExpired, got %v", err)
	}
	if r.calls.Load() != 1 {
		t.Fatalf("expected a single refresh, got %d", r.calls.Load())
	}
	if srv.hits("Bearer T1") != 1 || srv.hits("Bearer T2") != 1 {
		t.Fatalf("expected exactly one attempt and one replay, got T1=%d T2=%d",
			srv.hits("Bearer T1"), srv.hits("Bearer T2"))
	}
	if h.expired.Load() != 1 {
		t.Fatalf("expected session expiry callback, got %d", h.expired.Load())
	}
}

func TestNonUnauthorizedStatusesPassThrough(t *testing.T) {
	srv := newAPIServer(t, "T1")
	r := &gatedRefresher{token: "T2"}
	h := newHarness(t, srv.Client(), r, "T1")

	for path, want := range map[string]int{
		"/ok":        http.StatusOK,
		"/forbidden": http.StatusForbidden,
		"/throttled": http.StatusTooManyRequests,
		"/broken":    http.StatusInternalServerError,
	} {
		resp, err := h.coord.Do(context.Background(), get(t, srv.URL+path))
		if err != nil {
			t.Fatalf("%s: unexpected error %v", path, err)
		}
		resp.Body.Close()
		if resp.StatusCode != want {
			t.Fatalf("%s: expected %d, got %d", path, want, resp.StatusCode)
		}
	}
	if r.calls.Load() != 0 {
		t.Fatalf("expected no refresh, got %d", r.calls.Load())
	}
}

func TestNoTokenSendsNoAuthorization(t *testing.T) {
	var sawAuth atomic.Bool
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "" {
			sawAuth.Store(true)
		}
	}))
	defer srv.Close()

	h := newHarness(t, srv.Client(), &gatedRefresher{token: "x"}, "")
	req := get(t, srv.URL)
	req.Header.Set("Authorization", "Bearer stale-from-caller")
	resp, err := h.coord.Do(context.Background(), req)
	if err != nil {
		t.Fatalf("do: %v", err)
	}
	resp.Body.Close()
	if sawAuth.Load() {
		t.Fatal("expected Authorization header to be stripped when no token is present")
	}
}

func TestUnbufferedBodyIsReplayed(t *testing.T) {
	srv := newAPIServer(t, "T2")
	h := newHarness(t, srv.Client(), &gatedRefresher{token: "T2"}, "T1")

	body := io.NopCloser(strings.NewReader(`{"content":"hello"}`))
	req, _ := http.NewRequest(http.MethodPost, srv.URL+"/posts/create", body)
	if req.GetBody != nil {
		t.Fatal("test requires a request without GetBody")
	}

	resp, err := h.coord.Do(context.Background(), req)
	if err != nil {
		t.Fatalf("do: %v", err)
	}
	resp.Body.Close()

	srv.mu.Lock()
	defer srv.mu.Unlock()
	if len(srv.bodies) != 2 {
		t.Fatalf("expected 2 sends, got %d", len(srv.bodies))
	}
	for i, b := range srv.bodies {
		if b != `{"content":"hello"}` {
			t.Fatalf("send %d: unexpected body %q", i, b)
		}
	}
}

func TestRequestIDStableAcrossReplay(t *testing.T) {
	srv := newAPIServer(t, "T2")
	h := newHarness(t, srv.Client(), &gatedRefresher{token: "T2"}, "T1")

	resp, err := h.coord.Do(WithRequestID(context.Background(), "req-42"), get(t, srv.URL+"/posts"))
	if err != nil {
		t.Fatalf("do: %v", err)
	}
	resp.Body.Close()

	srv.mu.Lock()
	defer srv.mu.Unlock()
	if len(srv.requestIDs) != 2 || srv.requestIDs[0] != "req-42" || srv.requestIDs[1] != "req-42" {
		t.Fatalf("unexpected request ids %v", srv.requestIDs)
	}
}

func TestGeneratedRequestIDWhenUnset(t *testing.T) {
	srv := newAPIServer(t, "T1")
	h := newHarness(t, srv.Client(), &gatedRefresher{token: "T2"}, "T1")

	resp, err := h.coord.Do(context.Background(), get(t, srv.URL+"/posts"))
	if err != nil {
		t.Fatalf("do: %v", err)
	}
	resp.Body.Close()

	srv.mu.Lock()
	defer srv.mu.Unlock()
	if len(srv.requestIDs) != 1 || len(srv.requestIDs[0]) != 36 {
		t.Fatalf("expected a generated uuid, got %v", srv.requestIDs)
	}
}

// slowDoer holds the first request to /slow until released so its 401 lands
// after another request already completed the refresh.
type slowDoer struct {
	client  *http.Client
	release chan struct{}
	held    atomic.Bool
}

func (d *slowDoer) Do(req *http.Request) (*http.Response, error) {
	resp, err := d.client.Do(req)
	if err == nil && strings.HasSuffix(req.URL.Path, "/slow") && d.held.CompareAndSwap(false, true) {
		<-d.release
	}
	return resp, err
}

func TestStaleUnauthorizedReplaysWithoutSecondRefresh(t *testing.T) {
	srv := newAPIServer(t, "T2")
	doer := &slowDoer{client: srv.Client(), release: make(chan struct{})}
	r := &gatedRefresher{token: "T2"}
	h := newHarness(t, nil, r, "T1")
	h.coord.deps.Doer = doer

	slowDone := make(chan error, 1)
	go func() {
		resp, err := h.coord.Do(context.Background(), get(t, srv.URL+"/slow"))
		if resp != nil {
			resp.Body.Close()
		}
		slowDone <- err
	}()

	for !doer.held.Load() {
		time.Sleep(time.Millisecond)
	}

	resp, err := h.coord.Do(context.Background(), get(t, srv.URL+"/fast"))
	if err != nil {
		t.Fatalf("fast request: %v", err)
	}
	resp.Body.Close()

	close(doer.release)
	if err := <-slowDone; err != nil {
		t.Fatalf("slow request: %v", err)
	}
	if got := r.calls.Load(); got != 1 {
		t.Fatalf("expected stale 401 to reuse the refreshed token, got %d refreshes", got)
	}
}

func TestCancelledWaiterReturnsContextError(t *testing.T) {
	srv := newAPIServer(t, "T2")
	r := &gatedRefresher{release: make(chan struct{}), token: "T2"}
	h := newHarness(t, srv.Client(), r, "T1")

	leaderDone := make(chan error, 1)
	go func() {
		resp, err := h.coord.Do(context.Background(), get(t, srv.URL+"/leader"))
		if resp != nil {
			resp.Body.Close()
		}
		leaderDone <- err
	}()

	for r.calls.Load() == 0 {
		time.Sleep(time.Millisecond)
	}

	ctx, cancel := context.WithCancel(context.Background())
	waiterDone := make(chan error, 1)
	go func() {
		resp, err := h.coord.Do(ctx, get(t, srv.URL+"/waiter"))
		if resp != nil {
			resp.Body.Close()
		}
		waiterDone <- err
	}()
	h.waitQueued(t, 1)
	cancel()

	if err := <-waiterDone; !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}

	close(r.release)
	if err := <-leaderDone; err != nil {
		t.Fatalf("leader: %v", err)
	}
}

func TestLeaderCancellationDoesNotCancelRefresh(t *testing.T) {
	srv := newAPIServer(t, "T2")
	r := &gatedRefresher{release: make(chan struct{}), token: "T2"}
	h := newHarness(t, srv.Client(), r, "T1")

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		resp, _ := h.coord.Do(ctx, get(t, srv.URL+"/posts"))
		if resp != nil {
			resp.Body.Close()
		}
	}()

	for r.calls.Load() == 0 {
		time.Sleep(time.Millisecond)
	}
	cancel()
	close(r.release)
	<-done

	if v := r.ctxErr.Load(); v != nil {
		t.Fatalf("refresh context was cancelled: %v", v)
	}
	if h.tokens.setCount() != 1 {
		t.Fatal("expected refreshed token to be committed despite caller cancellation")
	}
	if h.expired.Load() != 0 {
		t.Fatal("caller cancellation must not expire the session")
	}
}

func TestTokenCommittedBeforeReplay(t *testing.T) {
	srv := newAPIServer(t, "T2")
	r := &gatedRefresher{token: "T2"}
	h := newHarness(t, srv.Client(), r, "T1")

	var replaysAtCommit int32 = -1
	h.tokens.onSet = func(string) {
		replaysAtCommit = srv.replayed.Load()
	}

	resp, err := h.coord.Do(context.Background(), get(t, srv.URL+"/posts"))
	if err != nil {
		t.Fatalf("do: %v", err)
	}
	resp.Body.Close()

	if replaysAtCommit != 0 {
		t.Fatalf("expected token commit before any replay, saw %d replays", replaysAtCommit)
	}
}

func TestNewRequiresDeps(t *testing.T) {
	if _, err := New(Deps{Tokens: &memTokens{}}); err == nil {
		t.Fatal("expected error without refresher")
	}
	if _, err := New(Deps{Refresher: &gatedRefresher{}}); err == nil {
		t.Fatal("expected error without token source")
	}
}

package auth

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync"
	"testing"

	"listeningtrends-go/internal/session"

	"github.com/sirupsen/logrus"
)

// Mock Store
type mockStore struct {
	*session.InMemoryStore

	mu     sync.Mutex
	sets   int
	clears int
	getErr error
	setErr error
}

func newMockStore() *mockStore {
	return &mockStore{InMemoryStore: session.NewInMemoryStore()}
}

func (m *mockStore) Get(ctx context.Context, key string) (string, error) {
	if m.getErr != nil {
		return "", m.getErr
	}
	return m.InMemoryStore.Get(ctx, key)
}

func (m *mockStore) Set(ctx context.Context, key, value string) error {
	m.mu.Lock()
	m.sets++
	m.mu.Unlock()
	if m.setErr != nil {
		return m.setErr
	}
	return m.InMemoryStore.Set(ctx, key, value)
}

func (m *mockStore) Clear(ctx context.Context, key string) error {
	m.mu.Lock()
	m.clears++
	m.mu.Unlock()
	return m.InMemoryStore.Clear(ctx, key)
}

func (m *mockStore) has(key string) bool {
	_, err := m.InMemoryStore.Get(context.Background(), key)
	return err == nil
}

// Mock Spotify
type mockSpotify struct {
	server *httptest.Server

	mu            sync.Mutex
	tokenCalls    int
	profileCalls  int
	lastForm      url.Values
	lastAuthz     string
	tokenStatus   int
	tokenBody     string
	profileStatus int
	profileBody   string
}

func newMockSpotify(t *testing.T) *mockSpotify {
	t.Helper()

	m := &mockSpotify{
		tokenStatus:   http.StatusOK,
		tokenBody:     `{"access_token":"access-123","token_type":"Bearer","scope":"user-read-private user-read-email","expires_in":3600}`,
		profileStatus: http.StatusOK,
		profileBody:   `{"id":"wizzler","display_name":"Wizzler","email":"wizzler@example.com","country":"SE","product":"premium","followers":{"total":42}}`,
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/api/token", func(w http.ResponseWriter, r *http.Request) {
		_ = r.ParseForm()
		m.mu.Lock()
		m.tokenCalls++
		m.lastForm = r.PostForm
		status, body := m.tokenStatus, m.tokenBody
		m.mu.Unlock()

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_, _ = io.WriteString(w, body)
	})
	mux.HandleFunc("/v1/me", func(w http.ResponseWriter, r *http.Request) {
		m.mu.Lock()
		m.profileCalls++
		m.lastAuthz = r.Header.Get("Authorization")
		status, body := m.profileStatus, m.profileBody
		m.mu.Unlock()

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_, _ = io.WriteString(w, body)
	})

	m.server = httptest.NewServer(mux)
	t.Cleanup(m.server.Close)
	return m
}

func (m *mockSpotify) tokenURL() string   { return m.server.URL + "/api/token" }
func (m *mockSpotify) profileURL() string { return m.server.URL + "/v1/me" }

func (m *mockSpotify) calls() (token, profile int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.tokenCalls, m.profileCalls
}

func (m *mockSpotify) respondToken(status int, body string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.tokenStatus, m.tokenBody = status, body
}

func (m *mockSpotify) respondProfile(status int, body string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.profileStatus, m.profileBody = status, body
}

func (m *mockSpotify) form() url.Values {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.lastForm
}

func (m *mockSpotify) authorization() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.lastAuthz
}

func (m *mockSpotify) config() Config {
	cfg := DefaultConfig()
	cfg.ClientID = "test-client-id"
	cfg.TokenURL = m.tokenURL()
	cfg.ProfileURL = m.profileURL()
	return cfg
}

func quietLogger() logrus.FieldLogger {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	return logger
}

func newTestFlow(t *testing.T, cfg Config, store session.Store, opts ...FlowOption) *Flow {
	t.Helper()
	opts = append([]FlowOption{WithLogger(quietLogger())}, opts...)
	flow, err := NewFlow(cfg, store, opts...)
	if err != nil {
		t.Fatalf("NewFlow: %v", err)
	}
	return flow
}

// callbackQuery builds the query the authorization server appends to the
// redirect URI.
func callbackQuery(code, state string) url.Values {
	q := url.Values{}
	if code != "" {
		q.Set("code", code)
	}
	if state != "" {
		q.Set("state", state)
	}
	return q
}

func stateOf(t *testing.T, rawURL string) string {
	t.Helper()
	u, err := url.Parse(rawURL)
	if err != nil {
		t.Fatalf("bad authorization URL %q: %v", rawURL, err)
	}
	return u.Query().Get("state")
}

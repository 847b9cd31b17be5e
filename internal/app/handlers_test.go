package app

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func serve(app *Application, method, target string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, target, nil)
	rr := httptest.NewRecorder()
	app.Router.ServeHTTP(rr, req)
	return rr
}

// login starts an attempt and returns its state token.
func login(t *testing.T, app *Application) string {
	t.Helper()

	rr := serve(app, http.MethodGet, "/login")
	require.Equal(t, http.StatusFound, rr.Code)

	location, err := url.Parse(rr.Header().Get("Location"))
	require.NoError(t, err)
	return location.Query().Get("state")
}

func decodeError(t *testing.T, rr *httptest.ResponseRecorder) errorResponse {
	t.Helper()
	var body errorResponse
	require.NoError(t, json.NewDecoder(rr.Body).Decode(&body))
	return body
}

func TestHandlers_Login(t *testing.T) {
	app := newTestApp(t, testConfig(newFakeSpotify(t)))

	rr := serve(app, http.MethodGet, "/login")

	// Assert: Check for redirect
	assert.Equal(t, http.StatusFound, rr.Code, "handler returned wrong status code")

	location, err := rr.Result().Location()
	require.NoError(t, err, "handler did not return a location header")
	assert.Equal(t, "accounts.spotify.com", location.Host)
	assert.Equal(t, "S256", location.Query().Get("code_challenge_method"))
	assert.NotEmpty(t, location.Query().Get("code_challenge"))
	assert.Equal(t, "abc123", location.Query().Get("client_id"))
	assert.Equal(t, "AWAITING_REDIRECT", app.Phase().String())
}

func TestHandlers_CallbackWithoutCode(t *testing.T) {
	app := newTestApp(t, testConfig(newFakeSpotify(t)))

	for _, path := range []string{"/", "/callback"} {
		t.Run(path, func(t *testing.T) {
			rr := serve(app, http.MethodGet, path)
			assert.Equal(t, http.StatusFound, rr.Code)
			assert.Contains(t, rr.Header().Get("Location"), "https://accounts.spotify.com/authorize?")
		})
	}
}

func TestHandlers_CallbackHappyPath(t *testing.T) {
	app := newTestApp(t, testConfig(newFakeSpotify(t)))
	state := login(t, app)

	rr := serve(app, http.MethodGet, "/callback?code=XYZ&state="+url.QueryEscape(state))
	require.Equal(t, http.StatusOK, rr.Code)
	assert.JSONEq(t, `{"id":"wizzler","display_name":"Wizzler"}`, rr.Body.String())

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	profile, err := app.WaitForResult(ctx)
	require.NoError(t, err)
	assert.Equal(t, "wizzler", profile.ID())

	rr = serve(app, http.MethodGet, "/healthz")
	assert.Contains(t, rr.Body.String(), "RESOURCE_FETCHED")

	rr = serve(app, http.MethodGet, "/me")
	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Body.String(), "wizzler")
}

func TestHandlers_CallbackErrors(t *testing.T) {
	t.Run("no pending attempt", func(t *testing.T) {
		app := newTestApp(t, testConfig(newFakeSpotify(t)))

		rr := serve(app, http.MethodGet, "/callback?code=XYZ&state=abc")
		assert.Equal(t, http.StatusBadRequest, rr.Code)

		body := decodeError(t, rr)
		assert.Equal(t, "precondition_failed", body.Error)
		assert.Equal(t, "/login", body.Retry)

		_, err := app.WaitForResult(context.Background())
		assert.Error(t, err)
	})

	t.Run("state mismatch", func(t *testing.T) {
		app := newTestApp(t, testConfig(newFakeSpotify(t)))
		login(t, app)

		rr := serve(app, http.MethodGet, "/callback?code=XYZ&state=forged")
		assert.Equal(t, http.StatusBadRequest, rr.Code)
		assert.Equal(t, "state_mismatch", decodeError(t, rr).Error)
	})

	t.Run("access denied", func(t *testing.T) {
		app := newTestApp(t, testConfig(newFakeSpotify(t)))
		state := login(t, app)

		rr := serve(app, http.MethodGet, "/callback?error=access_denied&state="+url.QueryEscape(state))
		assert.Equal(t, http.StatusForbidden, rr.Code)
		assert.Equal(t, "access_denied", decodeError(t, rr).Error)
	})

	t.Run("code rejected", func(t *testing.T) {
		spotify := newFakeSpotify(t)
		spotify.tokenStatus.Store(http.StatusBadRequest)
		app := newTestApp(t, testConfig(spotify))
		state := login(t, app)

		rr := serve(app, http.MethodGet, "/callback?code=XYZ&state="+url.QueryEscape(state))
		assert.Equal(t, http.StatusBadGateway, rr.Code)
		assert.Equal(t, "invalid_grant", decodeError(t, rr).Error)
	})

	t.Run("expired token", func(t *testing.T) {
		spotify := newFakeSpotify(t)
		spotify.profileStatus.Store(http.StatusUnauthorized)
		app := newTestApp(t, testConfig(spotify))
		state := login(t, app)

		rr := serve(app, http.MethodGet, "/callback?code=XYZ&state="+url.QueryEscape(state))
		assert.Equal(t, http.StatusSeeOther, rr.Code)
		assert.Equal(t, "/login", rr.Header().Get("Location"))
	})

	t.Run("token endpoint unreachable", func(t *testing.T) {
		cfg := testConfig(newFakeSpotify(t))
		cfg.Auth.TokenURL = "http://127.0.0.1:1/api/token"
		app := newTestApp(t, cfg)
		state := login(t, app)

		rr := serve(app, http.MethodGet, "/callback?code=XYZ&state="+url.QueryEscape(state))
		assert.Equal(t, http.StatusBadGateway, rr.Code)
		assert.Equal(t, "network_error", decodeError(t, rr).Error)
	})
}

func TestHandlers_StaleCallbackKeepsWaiting(t *testing.T) {
	app := newTestApp(t, testConfig(newFakeSpotify(t)))
	stale := login(t, app)

	authURL, err := app.BeginLogin(context.Background())
	require.NoError(t, err)
	location, err := url.Parse(authURL)
	require.NoError(t, err)
	state := location.Query().Get("state")
	require.NotEqual(t, stale, state)

	// A callback from the superseded attempt is refused...
	rr := serve(app, http.MethodGet, "/callback?code=old&state="+url.QueryEscape(stale))
	assert.Equal(t, http.StatusBadRequest, rr.Code)
	assert.Equal(t, "state_mismatch", decodeError(t, rr).Error)
	assert.Equal(t, "AWAITING_REDIRECT", app.Phase().String())

	// ...without ending the wait for the current one.
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	_, err = app.WaitForResult(ctx)
	cancel()
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	rr = serve(app, http.MethodGet, "/callback?code=XYZ&state="+url.QueryEscape(state))
	require.Equal(t, http.StatusOK, rr.Code)

	ctx, cancel = context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	profile, err := app.WaitForResult(ctx)
	require.NoError(t, err)
	assert.Equal(t, "wizzler", profile.ID())
}

func TestHandlers_LoginConflict(t *testing.T) {
	cfg := testConfig(newFakeSpotify(t))
	cfg.Auth.OverlapPolicy = "reject"
	app := newTestApp(t, cfg)
	login(t, app)

	rr := serve(app, http.MethodGet, "/login")
	assert.Equal(t, http.StatusConflict, rr.Code)
	assert.Equal(t, "attempt_pending", decodeError(t, rr).Error)
}

func TestHandlers_Logout(t *testing.T) {
	app := newTestApp(t, testConfig(newFakeSpotify(t)))
	state := login(t, app)
	rr := serve(app, http.MethodGet, "/callback?code=XYZ&state="+url.QueryEscape(state))
	require.Equal(t, http.StatusOK, rr.Code)

	rr = serve(app, http.MethodPost, "/logout")
	assert.Equal(t, http.StatusSeeOther, rr.Code)
	assert.Equal(t, "START", app.Phase().String())

	rr = serve(app, http.MethodGet, "/logout")
	assert.Equal(t, http.StatusMethodNotAllowed, rr.Code)
}

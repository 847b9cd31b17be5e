package app

import (
	"encoding/json"
	"errors"
	"net/http"

	"listeningtrends-go/internal/auth"
)

// errorResponse is the body of every failed request. Retry names the path
// that starts a fresh attempt.
type errorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
	Retry   string `json:"retry,omitempty"`
}

//
// Authentication Handlers
//

// handleCallback is the redirect URI. Without a code it sends the browser to
// the authorization server; with one it completes the flow and returns the
// profile.
func (a *Application) handleCallback(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	terminal := auth.ParseCallback(query).Action() != auth.ActionStart

	a.mu.Lock()
	result, err := a.Flow.HandleCallback(r.Context(), a.session, query)
	a.mu.Unlock()

	if err != nil {
		// A stale or forged callback does not end the pending attempt.
		var mismatch *auth.StateMismatchError
		if terminal && !errors.As(err, &mismatch) {
			a.publish(Result{Err: err})
		}
		a.writeError(w, r, err)
		return
	}

	switch result.Action {
	case auth.ActionStart:
		http.Redirect(w, r, result.Redirect.URL, http.StatusFound)
	default:
		a.publish(Result{Profile: result.Profile})
		writeJSON(w, http.StatusOK, result.Profile)
	}
}

// handleLogin always starts a new attempt.
func (a *Application) handleLogin(w http.ResponseWriter, r *http.Request) {
	authURL, err := a.BeginLogin(r.Context())
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	http.Redirect(w, r, authURL, http.StatusFound)
}

// handleLogout drops the access token and profile held in memory.
func (a *Application) handleLogout(w http.ResponseWriter, r *http.Request) {
	a.mu.Lock()
	a.session.Reset()
	a.mu.Unlock()

	http.Redirect(w, r, "/login", http.StatusSeeOther)
}

//
// Application Handlers
//

// handleProfile fetches the profile again with the held token.
func (a *Application) handleProfile(w http.ResponseWriter, r *http.Request) {
	a.mu.Lock()
	profile, err := a.Flow.FetchProfile(r.Context(), a.session)
	a.mu.Unlock()

	if err != nil {
		a.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, profile)
}

func (a *Application) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"status": "ok",
		"phase":  a.Phase().String(),
	})
}

// writeError maps a flow error to a status code and a body offering the way
// back into the flow. A rejected token sends the browser to /login.
func (a *Application) writeError(w http.ResponseWriter, r *http.Request, err error) {
	var (
		precondition *auth.PreconditionError
		mismatch     *auth.StateMismatchError
		conflict     *auth.AttemptConflictError
		protocol     *auth.ProtocolError
		timeout      *auth.TimeoutError
		network      *auth.NetworkError
		expired      *auth.AuthExpiredError
		crypto       *auth.CryptoError
	)

	logger := a.Logger.WithError(err).WithField("request_id", requestIDFromContext(r.Context()))

	var status int
	var kind string
	switch {
	case errors.As(err, &expired):
		logger.Info("Access token rejected, restarting authorization")
		http.Redirect(w, r, "/login", http.StatusSeeOther)
		return
	case errors.As(err, &precondition):
		status, kind = http.StatusBadRequest, "precondition_failed"
	case errors.As(err, &mismatch):
		status, kind = http.StatusBadRequest, "state_mismatch"
	case errors.As(err, &conflict):
		status, kind = http.StatusConflict, "attempt_pending"
	case errors.As(err, &protocol) && protocol.StatusCode == 0:
		// Error sent back through the redirect, e.g. access_denied.
		status, kind = http.StatusForbidden, protocol.Reason
	case errors.As(err, &protocol):
		status, kind = http.StatusBadGateway, protocol.Reason
	case errors.As(err, &timeout):
		status, kind = http.StatusGatewayTimeout, "timeout"
	case errors.As(err, &network):
		status, kind = http.StatusBadGateway, "network_error"
	case errors.As(err, &crypto):
		status, kind = http.StatusInternalServerError, "crypto_failure"
	default:
		status, kind = http.StatusInternalServerError, "internal_error"
	}

	if status >= http.StatusInternalServerError {
		logger.Error("Request failed")
	} else {
		logger.Warn("Request failed")
	}

	writeJSON(w, status, errorResponse{
		Error:   kind,
		Message: err.Error(),
		Retry:   "/login",
	})
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

package auth

import (
	"context"
	"crypto/subtle"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"listeningtrends-go/internal/metrics"
	"listeningtrends-go/internal/pkce"
	"listeningtrends-go/internal/session"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"golang.org/x/oauth2"
)

// Spotify endpoints and the redirect URI registered for the local client.
const (
	DefaultAuthURL     = "https://accounts.spotify.com/authorize"
	DefaultTokenURL    = "https://accounts.spotify.com/api/token"
	DefaultProfileURL  = "https://api.spotify.com/v1/me"
	DefaultRedirectURL = "http://localhost:4200/callback"

	DefaultVerifierLength = 128
	DefaultStateLength    = 16
	DefaultAttemptTTL     = 10 * time.Minute
)

// DefaultScopes are the permissions requested at authorization.
var DefaultScopes = []string{
	"user-read-private",
	"user-read-email",
	"playlist-read-private",
	"playlist-read-collaborative",
}

// OverlapPolicy decides what Begin does when an earlier attempt is pending.
type OverlapPolicy string

const (
	// OverlapReplace overwrites the pending attempt. Its callback will then
	// fail state validation.
	OverlapReplace OverlapPolicy = "replace"
	// OverlapReject refuses to start while a pending attempt is younger than
	// the attempt TTL.
	OverlapReject OverlapPolicy = "reject"
)

// Config holds the client settings of the flow.
type Config struct {
	ClientID       string
	RedirectURL    string
	Scopes         []string
	AuthURL        string
	TokenURL       string
	ProfileURL     string
	VerifierLength int
	StateLength    int
	Timeout        time.Duration
	AttemptTTL     time.Duration
	OverlapPolicy  OverlapPolicy
}

// DefaultConfig returns the Spotify configuration without a client ID.
func DefaultConfig() Config {
	return Config{
		RedirectURL:    DefaultRedirectURL,
		Scopes:         append([]string(nil), DefaultScopes...),
		AuthURL:        DefaultAuthURL,
		TokenURL:       DefaultTokenURL,
		ProfileURL:     DefaultProfileURL,
		VerifierLength: DefaultVerifierLength,
		StateLength:    DefaultStateLength,
		Timeout:        DefaultTimeout,
		AttemptTTL:     DefaultAttemptTTL,
		OverlapPolicy:  OverlapReplace,
	}
}

// AuthRequest is the outcome of Begin: where to send the browser.
type AuthRequest struct {
	URL       string
	AttemptID string
	State     string
	Challenge string
}

// CallbackResult is the outcome of HandleCallback.
type CallbackResult struct {
	Action   CallbackAction
	Redirect *AuthRequest
	Profile  *Profile
}

// Flow drives the PKCE authorization code flow. The persisted attempt slot is
// the only state shared between the two halves of the flow, and only one
// attempt may be pending at a time.
type Flow struct {
	cfg        Config
	store      session.Store
	gen        *pkce.Generator
	oauth      *oauth2.Config
	tokens     *TokenClient
	profiles   *ProfileClient
	httpClient *http.Client
	log        logrus.FieldLogger
	now        func() time.Time
}

// FlowOption configures a Flow.
type FlowOption func(*Flow)

// WithGenerator replaces the PKCE generator.
func WithGenerator(g *pkce.Generator) FlowOption {
	return func(f *Flow) { f.gen = g }
}

// WithHTTPClient sets the client used for token and resource calls.
func WithHTTPClient(c *http.Client) FlowOption {
	return func(f *Flow) { f.httpClient = c }
}

// WithLogger sets the logger.
func WithLogger(l logrus.FieldLogger) FlowOption {
	return func(f *Flow) { f.log = l }
}

// WithClock sets the time source.
func WithClock(now func() time.Time) FlowOption {
	return func(f *Flow) { f.now = now }
}

// NewFlow creates a Flow. Zero-valued settings in cfg take their defaults.
func NewFlow(cfg Config, store session.Store, opts ...FlowOption) (*Flow, error) {
	if cfg.ClientID == "" {
		return nil, fmt.Errorf("client ID cannot be empty")
	}
	if store == nil {
		return nil, fmt.Errorf("session store cannot be nil")
	}
	cfg = withDefaults(cfg)
	if cfg.VerifierLength < pkce.MinVerifierLength || cfg.VerifierLength > pkce.MaxVerifierLength {
		return nil, fmt.Errorf("verifier length %d outside [%d,%d]",
			cfg.VerifierLength, pkce.MinVerifierLength, pkce.MaxVerifierLength)
	}
	if cfg.OverlapPolicy != OverlapReplace && cfg.OverlapPolicy != OverlapReject {
		return nil, fmt.Errorf("unknown overlap policy %q", cfg.OverlapPolicy)
	}

	f := &Flow{
		cfg:   cfg,
		store: store,
		gen:   pkce.NewGenerator(),
		log:   logrus.StandardLogger(),
		now:   time.Now,
	}
	for _, opt := range opts {
		opt(f)
	}
	f.log = f.log.WithField("component", "auth_flow")

	f.oauth = &oauth2.Config{
		ClientID:    cfg.ClientID,
		RedirectURL: cfg.RedirectURL,
		Scopes:      cfg.Scopes,
		Endpoint: oauth2.Endpoint{
			AuthURL:   cfg.AuthURL,
			TokenURL:  cfg.TokenURL,
			AuthStyle: oauth2.AuthStyleInParams,
		},
	}
	f.tokens = NewTokenClient(f.httpClient, cfg.TokenURL, cfg.Timeout)
	f.tokens.now = f.now
	f.profiles = NewProfileClient(f.httpClient, cfg.ProfileURL, cfg.Timeout)

	return f, nil
}

func withDefaults(cfg Config) Config {
	def := DefaultConfig()
	if cfg.RedirectURL == "" {
		cfg.RedirectURL = def.RedirectURL
	}
	if len(cfg.Scopes) == 0 {
		cfg.Scopes = def.Scopes
	}
	if cfg.AuthURL == "" {
		cfg.AuthURL = def.AuthURL
	}
	if cfg.TokenURL == "" {
		cfg.TokenURL = def.TokenURL
	}
	if cfg.ProfileURL == "" {
		cfg.ProfileURL = def.ProfileURL
	}
	if cfg.VerifierLength == 0 {
		cfg.VerifierLength = def.VerifierLength
	}
	if cfg.StateLength == 0 {
		cfg.StateLength = def.StateLength
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = def.Timeout
	}
	if cfg.AttemptTTL == 0 {
		cfg.AttemptTTL = def.AttemptTTL
	}
	if cfg.OverlapPolicy == "" {
		cfg.OverlapPolicy = def.OverlapPolicy
	}
	return cfg
}

// Begin starts an authorization attempt: it generates and persists the
// verifier and state, and returns the authorization URL the browser must
// navigate to. Nothing is observed from the authorization server here; the
// flow resumes in HandleCallback.
func (f *Flow) Begin(ctx context.Context, sess *Session) (*AuthRequest, error) {
	previous, err := loadAttempt(ctx, f.store)
	if err != nil {
		// An unreadable slot cannot be resumed by anyone; overwrite it.
		metrics.AttemptsSuperseded.Inc()
		f.log.WithError(err).Warn("Superseding unreadable authorization attempt")
	} else if previous != nil {
		age := f.now().Sub(previous.CreatedAt)
		if f.cfg.OverlapPolicy == OverlapReject && age < f.cfg.AttemptTTL {
			return nil, &AttemptConflictError{AttemptID: previous.ID, Age: age}
		}
		metrics.AttemptsSuperseded.Inc()
		f.log.WithField("attempt_id", previous.ID).Warn("Superseding pending authorization attempt")
	}

	verifier, err := f.gen.GenerateVerifier(f.cfg.VerifierLength)
	if err != nil {
		return nil, &CryptoError{Op: "verifier generation", Err: err}
	}

	challenge, err := f.gen.DeriveChallenge(ctx, verifier)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		return nil, &CryptoError{Op: "challenge derivation", Err: err}
	}

	state, err := f.gen.GenerateState(f.cfg.StateLength)
	if err != nil {
		return nil, &CryptoError{Op: "state generation", Err: err}
	}

	attempt := &Attempt{
		ID:        uuid.NewString(),
		Verifier:  verifier,
		State:     state,
		CreatedAt: f.now().UTC(),
	}
	if err := saveAttempt(ctx, f.store, attempt); err != nil {
		return nil, err
	}

	authURL := f.oauth.AuthCodeURL(state,
		oauth2.SetAuthURLParam("code_challenge_method", pkce.MethodS256),
		oauth2.SetAuthURLParam("code_challenge", challenge),
	)

	sess.begin(attempt.ID)
	metrics.AttemptsStarted.Inc()
	f.log.WithField("attempt_id", attempt.ID).Info("Authorization attempt started")

	return &AuthRequest{
		URL:       authURL,
		AttemptID: attempt.ID,
		State:     state,
		Challenge: challenge,
	}, nil
}

// HandleCallback dispatches an authorization response. Without a code it
// starts a new attempt; with a code it validates the state, redeems the code
// and fetches the profile.
func (f *Flow) HandleCallback(ctx context.Context, sess *Session, query url.Values) (*CallbackResult, error) {
	cb := ParseCallback(query)
	action := cb.Action()
	metrics.CallbacksReceived.WithLabelValues(action.String()).Inc()

	switch action {
	case ActionStart:
		req, err := f.Begin(ctx, sess)
		if err != nil {
			return nil, err
		}
		return &CallbackResult{Action: action, Redirect: req}, nil

	case ActionDenied:
		f.discardIfOwned(ctx, cb.State)
		err := &ProtocolError{
			Endpoint:    f.cfg.AuthURL,
			Reason:      cb.Error,
			Description: cb.ErrorDescription,
		}
		sess.fail(err)
		f.log.WithField("reason", cb.Error).Warn("Authorization was not granted")
		return &CallbackResult{Action: action}, err
	}

	code, _ := cb.Code.Value()
	attempt, err := f.pendingAttempt(ctx)
	if err != nil {
		sess.fail(err)
		return nil, err
	}
	// A mismatched callback leaves the session and the attempt untouched so
	// the genuine redirect can still complete.
	if cb.State == "" || subtle.ConstantTimeCompare([]byte(cb.State), []byte(attempt.State)) != 1 {
		f.log.WithField("attempt_id", attempt.ID).Warn("Rejected callback with mismatched state")
		return nil, &StateMismatchError{AttemptID: attempt.ID}
	}
	if err := sess.receiveCallback(attempt.ID); err != nil {
		return nil, err
	}

	if _, err := f.redeem(ctx, sess, attempt, code); err != nil {
		return nil, err
	}

	profile, err := f.FetchProfile(ctx, sess)
	if err != nil {
		return nil, err
	}
	return &CallbackResult{Action: action, Profile: profile}, nil
}

// ExchangeToken redeems code together with the persisted verifier. Without a
// persisted verifier it fails with *PreconditionError before any network call.
func (f *Flow) ExchangeToken(ctx context.Context, sess *Session, code string) (*oauth2.Token, error) {
	attempt, err := f.pendingAttempt(ctx)
	if err != nil {
		sess.fail(err)
		return nil, err
	}
	if sess.Phase() != PhaseCallbackReceived {
		if err := sess.receiveCallback(attempt.ID); err != nil {
			return nil, err
		}
	}
	return f.redeem(ctx, sess, attempt, code)
}

// FetchProfile fetches the profile with the session's access token. A
// rejected token is dropped from the session so the caller must start over.
func (f *Flow) FetchProfile(ctx context.Context, sess *Session) (*Profile, error) {
	if sess.Token() == nil {
		err := &PreconditionError{Reason: "no access token in session"}
		sess.fail(err)
		return nil, err
	}

	profile, err := f.profiles.Fetch(ctx, sess.Token())
	metrics.ProfileFetches.WithLabelValues(outcome(err)).Inc()
	if err != nil {
		var expired *AuthExpiredError
		if errors.As(err, &expired) {
			sess.token = nil
		}
		sess.fail(err)
		f.log.WithError(err).WithField("attempt_id", sess.AttemptID()).Warn("Profile fetch failed")
		return nil, err
	}

	if err := sess.fetched(profile); err != nil {
		return nil, err
	}
	f.log.WithField("attempt_id", sess.AttemptID()).Info("Profile fetched")
	return profile, nil
}

// pendingAttempt loads the persisted attempt or reports a precondition error.
func (f *Flow) pendingAttempt(ctx context.Context) (*Attempt, error) {
	attempt, err := loadAttempt(ctx, f.store)
	if err != nil {
		return nil, err
	}
	if attempt == nil {
		return nil, &PreconditionError{Reason: "no code verifier persisted for this session"}
	}
	return attempt, nil
}

// redeem exchanges the code and invalidates the attempt whatever the outcome:
// the server treats the code as spent after any exchange attempt.
func (f *Flow) redeem(ctx context.Context, sess *Session, attempt *Attempt, code string) (*oauth2.Token, error) {
	defer f.discard(context.WithoutCancel(ctx), attempt.ID)

	token, err := f.tokens.Exchange(ctx, ExchangeRequest{
		ClientID:    f.cfg.ClientID,
		Code:        code,
		RedirectURI: f.cfg.RedirectURL,
		Verifier:    attempt.Verifier,
	})
	metrics.TokenExchanges.WithLabelValues(outcome(err)).Inc()
	if err != nil {
		sess.fail(err)
		f.log.WithError(err).WithField("attempt_id", attempt.ID).Warn("Token exchange failed")
		return nil, err
	}

	if err := sess.acquire(token); err != nil {
		return nil, err
	}
	f.log.WithField("attempt_id", attempt.ID).Info("Access token acquired")
	return token, nil
}

func (f *Flow) discard(ctx context.Context, attemptID string) {
	if err := f.store.Clear(ctx, session.VerifierKey); err != nil {
		f.log.WithError(err).WithField("attempt_id", attemptID).Error("Failed to clear attempt")
	}
}

// discardIfOwned clears the pending attempt only when state belongs to it, so
// a forged error callback cannot cancel someone else's attempt.
func (f *Flow) discardIfOwned(ctx context.Context, state string) {
	attempt, err := loadAttempt(ctx, f.store)
	if err != nil || attempt == nil || state == "" {
		return
	}
	if subtle.ConstantTimeCompare([]byte(state), []byte(attempt.State)) == 1 {
		f.discard(ctx, attempt.ID)
	}
}

package auth

import (
	"fmt"

	"golang.org/x/oauth2"
)

// Phase is a state of the authorization flow.
type Phase int

const (
	// PhaseStart is a session with no attempt.
	PhaseStart Phase = iota
	// PhaseAwaitingRedirect means an attempt is persisted and the browser is
	// at the authorization server.
	PhaseAwaitingRedirect
	// PhaseCallbackReceived means a callback matching the attempt arrived.
	PhaseCallbackReceived
	// PhaseTokenAcquired means the code was redeemed for an access token.
	PhaseTokenAcquired
	// PhaseResourceFetched means the profile was fetched with the token.
	PhaseResourceFetched
	// PhaseFailed means the last step failed; Err holds the cause.
	PhaseFailed
)

var phaseNames = map[Phase]string{
	PhaseStart:            "START",
	PhaseAwaitingRedirect: "AWAITING_REDIRECT",
	PhaseCallbackReceived: "CALLBACK_RECEIVED",
	PhaseTokenAcquired:    "TOKEN_ACQUIRED",
	PhaseResourceFetched:  "RESOURCE_FETCHED",
	PhaseFailed:           "FAILED",
}

// String returns the phase name, such as "AWAITING_REDIRECT".
func (p Phase) String() string {
	if name, ok := phaseNames[p]; ok {
		return name
	}
	return fmt.Sprintf("Phase(%d)", int(p))
}

// allowedFrom lists, per target phase, the phases it may be entered from.
// PhaseAwaitingRedirect and PhaseFailed may be entered from anywhere.
var allowedFrom = map[Phase][]Phase{
	PhaseCallbackReceived: {PhaseStart, PhaseAwaitingRedirect, PhaseFailed, PhaseResourceFetched},
	PhaseTokenAcquired:    {PhaseCallbackReceived},
	PhaseResourceFetched:  {PhaseTokenAcquired, PhaseResourceFetched, PhaseFailed},
}

// Session is the in-memory state of one user's flow. The access token lives
// here only and is never persisted. A Session is not safe for concurrent use.
type Session struct {
	phase     Phase
	attemptID string
	token     *oauth2.Token
	profile   *Profile
	err       error
}

// NewSession creates a Session in PhaseStart.
func NewSession() *Session {
	return &Session{phase: PhaseStart}
}

// Phase returns the current phase.
func (s *Session) Phase() Phase { return s.phase }

// AttemptID returns the ID of the attempt the session is bound to.
func (s *Session) AttemptID() string { return s.attemptID }

// Token returns the access token, or nil before one is acquired.
func (s *Session) Token() *oauth2.Token { return s.token }

// Profile returns the last fetched profile.
func (s *Session) Profile() *Profile { return s.profile }

// Err returns the error that moved the session to PhaseFailed.
func (s *Session) Err() error { return s.err }

func (s *Session) transition(to Phase) error {
	if to == PhaseAwaitingRedirect || to == PhaseFailed {
		s.phase = to
		return nil
	}
	for _, from := range allowedFrom[to] {
		if s.phase == from {
			s.phase = to
			return nil
		}
	}
	return &PreconditionError{Reason: fmt.Sprintf("cannot move from %s to %s", s.phase, to)}
}

// begin resets the session for a new attempt.
func (s *Session) begin(attemptID string) {
	s.attemptID = attemptID
	s.token = nil
	s.profile = nil
	s.err = nil
	s.phase = PhaseAwaitingRedirect
}

func (s *Session) receiveCallback(attemptID string) error {
	if err := s.transition(PhaseCallbackReceived); err != nil {
		return err
	}
	s.attemptID = attemptID
	s.token = nil
	s.profile = nil
	s.err = nil
	return nil
}

func (s *Session) acquire(token *oauth2.Token) error {
	if err := s.transition(PhaseTokenAcquired); err != nil {
		return err
	}
	s.token = token
	return nil
}

func (s *Session) fetched(profile *Profile) error {
	if s.token == nil {
		return &PreconditionError{Reason: "no access token in session"}
	}
	if err := s.transition(PhaseResourceFetched); err != nil {
		return err
	}
	s.profile = profile
	s.err = nil
	return nil
}

func (s *Session) fail(err error) {
	s.err = err
	s.phase = PhaseFailed
}

// Reset drops the token and profile and returns the session to PhaseStart.
func (s *Session) Reset() {
	*s = Session{phase: PhaseStart}
}

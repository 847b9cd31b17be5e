package auth

import "net/url"

// AuthorizationCode is the optional "code" query parameter of a callback.
type AuthorizationCode struct {
	value   string
	present bool
}

// CodeOf wraps a received code. An empty string is treated as absent.
func CodeOf(value string) AuthorizationCode {
	return AuthorizationCode{value: value, present: value != ""}
}

// Value returns the code and whether one was received.
func (c AuthorizationCode) Value() (string, bool) {
	return c.value, c.present
}

// CallbackAction is the flow phase a callback dispatches to.
type CallbackAction int

const (
	// ActionStart begins a new authorization attempt.
	ActionStart CallbackAction = iota
	// ActionResume exchanges the received code and fetches the profile.
	ActionResume
	// ActionDenied reports an error returned by the authorization server.
	ActionDenied
)

func (a CallbackAction) String() string {
	switch a {
	case ActionStart:
		return "start"
	case ActionResume:
		return "resume"
	case ActionDenied:
		return "denied"
	default:
		return "unknown"
	}
}

// Callback is the parsed authorization response.
type Callback struct {
	Code             AuthorizationCode
	State            string
	Error            string
	ErrorDescription string
}

// ParseCallback reads the authorization response from the redirect URI query.
func ParseCallback(query url.Values) Callback {
	return Callback{
		Code:             CodeOf(query.Get("code")),
		State:            query.Get("state"),
		Error:            query.Get("error"),
		ErrorDescription: query.Get("error_description"),
	}
}

// Action decides which phase of the flow the callback resumes.
func (c Callback) Action() CallbackAction {
	if c.Error != "" {
		return ActionDenied
	}
	if _, ok := c.Code.Value(); ok {
		return ActionResume
	}
	return ActionStart
}

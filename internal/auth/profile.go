package auth

import (
	"encoding/json"

	"github.com/tidwall/gjson"
)

// Profile is the user's profile as returned by the resource endpoint. The
// payload is kept as opaque JSON; accessors read well-known fields and return
// zero values when a field is absent.
type Profile struct {
	raw json.RawMessage
}

// NewProfile wraps a JSON document. It reports false if raw is not valid JSON.
func NewProfile(raw []byte) (*Profile, bool) {
	if !gjson.ValidBytes(raw) {
		return nil, false
	}
	cp := make(json.RawMessage, len(raw))
	copy(cp, raw)
	return &Profile{raw: cp}, true
}

// Raw returns the profile document exactly as received.
func (p *Profile) Raw() json.RawMessage { return p.raw }

func (p *Profile) ID() string { return p.get("id").String() }
func (p *Profile) DisplayName() string { return p.get("display_name").String() }
func (p *Profile) Email() string { return p.get("email").String() }
func (p *Profile) Country() string { return p.get("country").String() }
func (p *Profile) Product() string { return p.get("product").String() }
func (p *Profile) Followers() int64 { return p.get("followers.total").Int() }

func (p *Profile) get(path string) gjson.Result {
	return gjson.GetBytes(p.raw, path)
}

// MarshalJSON passes the profile through unchanged.
func (p *Profile) MarshalJSON() ([]byte, error) {
	return p.raw, nil
}

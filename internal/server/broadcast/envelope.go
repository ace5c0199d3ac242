package broadcast

import "encoding/json"

// Envelope is an Event as a subscriber reads it back, payload still raw.
type Envelope struct {
	Type    string          `json:"type"`
	RetroID int64           `json:"retro_id"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

func Decode(data []byte) (Envelope, error) {
	var e Envelope
	err := json.Unmarshal(data, &e)
	return e, err
}

// ChangesAccess reports whether viewers have to be authorized again after
// the event: retro settings changed or credentials were rotated.
func (e Envelope) ChangesAccess() bool {
	return e.Type == EventRetroUpdated || e.Type == EventForceRelogin
}

// Slug returns the slug carried by a retro.updated payload, or "".
func (e Envelope) Slug() string {
	if e.Type != EventRetroUpdated {
		return ""
	}
	var p struct {
		Slug string `json:"slug"`
	}
	_ = json.Unmarshal(e.Payload, &p)
	return p.Slug
}

// Originator returns the session whose change caused a force_relogin, or "".
func (e Envelope) Originator() string {
	if e.Type != EventForceRelogin {
		return ""
	}
	var p struct {
		OriginatorID string `json:"originator_id"`
	}
	_ = json.Unmarshal(e.Payload, &p)
	return p.OriginatorID
}

// ForceRelogin is the payload sent to a viewer right before its feed is
// closed for lack of access.
func ForceRelogin(retroID int64) []byte {
	data, _ := json.Marshal(Event{Type: EventForceRelogin, RetroID: retroID})
	return data
}

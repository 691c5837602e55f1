package config

import "encoding/json"

// SensitiveString holds a secret (OAuth client secret, DB password, queue
// credential) that must never be logged or serialized in the clear.
type SensitiveString string

const redacted = "[REDACTED]"

// String implements fmt.Stringer; it never returns the underlying value.
func (s SensitiveString) String() string {
	if s == "" {
		return ""
	}
	return redacted
}

// Value returns the real underlying secret. Callers must only use this at
// the point the secret is actually needed (e.g. building an Authorization
// header), never for logging or display.
func (s SensitiveString) Value() string {
	return string(s)
}

// MarshalJSON redacts the value so secrets never leak into logged or
// persisted JSON. Empty values marshal as an empty string, not [REDACTED].
func (s SensitiveString) MarshalJSON() ([]byte, error) {
	if s == "" {
		return json.Marshal("")
	}
	return json.Marshal(s.String())
}

// UnmarshalJSON accepts the real value from a config file or environment
// source — redaction only happens on the way out.
func (s *SensitiveString) UnmarshalJSON(data []byte) error {
	var raw string
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	*s = SensitiveString(raw)
	return nil
}

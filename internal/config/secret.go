package config

import "log/slog"

// redacted is what a Secret shows on every logging or serialization path.
const redacted = "[redacted]"

// Secret marks a sensitive configuration field (password, token, access key)
// at the schema level. Its value never reaches logs or serialized output:
// fmt, encoding/json, and slog all see the redaction marker. Code that needs
// the real value must call Reveal explicitly.
type Secret string

// Reveal returns the underlying sensitive value.
func (s Secret) Reveal() string { return string(s) }

// IsSet reports whether a value was configured.
func (s Secret) IsSet() bool { return s != "" }

// String implements fmt.Stringer with redaction.
func (s Secret) String() string {
	if s == "" {
		return ""
	}
	return redacted
}

// MarshalJSON redacts the value on any JSON serialization path.
func (s Secret) MarshalJSON() ([]byte, error) {
	if s == "" {
		return []byte(`""`), nil
	}
	return []byte(`"` + redacted + `"`), nil
}

// UnmarshalJSON accepts a plain string value.
func (s *Secret) UnmarshalJSON(data []byte) error {
	if len(data) >= 2 && data[0] == '"' && data[len(data)-1] == '"' {
		*s = Secret(data[1 : len(data)-1])
		return nil
	}
	*s = Secret(data)
	return nil
}

// LogValue implements slog.LogValuer so structured logging redacts too.
func (s Secret) LogValue() slog.Value {
	return slog.StringValue(s.String())
}

// Package secret provides a wrapper value for credentials that must never
// appear in clear text in logs, error messages, or serialized config dumps.
package secret

import "encoding/json"

// String wraps a sensitive string (API key, private key, signing key). Its
// zero value is safe and redacts to "[REDACTED]" exactly like a populated
// one, so a field left unset never accidentally leaks the empty-string case.
type String string

const redacted = "[REDACTED]"

// String implements fmt.Stringer; this is what printf %v/%s render.
func (s String) String() string { return redacted }

// Redacted marks this type for internal/logger's field sanitizer.
func (s String) Redacted() string { return redacted }

// MarshalJSON ensures encoding/json never serializes the real value.
func (s String) MarshalJSON() ([]byte, error) {
	return json.Marshal(redacted)
}

// Reveal returns the underlying value. Callers must use it only at the
// point of use (signing, auth header construction), never for logging.
func (s String) Reveal() string { return string(s) }

// Empty reports whether no value was set.
func (s String) Empty() bool { return s == "" }

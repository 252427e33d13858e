// Package uuid issues the string identifiers used as primary keys. UUIDv7
// keeps keys time-ordered, which keeps index writes append-mostly.
package uuid

import googleuuid "github.com/google/uuid"

// New returns a fresh UUIDv7 string. Generation only fails when the random
// source is exhausted; a v4 is returned in that case so callers never see
// an empty key.
func New() string {
	id, err := googleuuid.NewV7()
	if err != nil {
		return googleuuid.New().String()
	}
	return id.String()
}

// IsValid reports whether s parses as a UUID of any version.
func IsValid(s string) bool {
	_, err := googleuuid.Parse(s)
	return err == nil
}

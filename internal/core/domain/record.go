package domain

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
)

// RecordKind tags the variant held by a Record
type RecordKind string

const (
	RecordKindUser RecordKind = "user"
)

// UserEmail is one address listed on an upstream user.
type UserEmail struct {
	Email     string `json:"email"`
	IsPrimary bool   `json:"is_primary"`
}

// User is a user record as returned by the unified API.
type User struct {
	ID           string      `json:"id"`
	Name         string      `json:"name"`
	Emails       []UserEmail `json:"emails,omitempty"`
	CreatedAt    string      `json:"created_at,omitempty"`
	UpdatedAt    string      `json:"updated_at,omitempty"`
	ModifiedDate string      `json:"modified_date,omitempty"`
}

// LastModified returns modified_date, falling back to updated_at.
func (u User) LastModified() string {
	if u.ModifiedDate != "" {
		return u.ModifiedDate
	}
	return u.UpdatedAt
}

// PrimaryEmail resolves the primary address, falling back to the first one.
func (u User) PrimaryEmail() string {
	for _, e := range u.Emails {
		if e.IsPrimary && e.Email != "" {
			return e.Email
		}
	}
	if len(u.Emails) > 0 {
		return u.Emails[0].Email
	}
	return ""
}

// Record is a source record validated at the upstream boundary.
// Exactly one variant field is set, matching Kind.
type Record struct {
	Kind RecordKind `json:"kind"`
	User *User      `json:"user,omitempty"`
}

// NewUserRecord wraps a user.
func NewUserRecord(u User) Record {
	return Record{Kind: RecordKindUser, User: &u}
}

// ID returns the upstream identifier of the wrapped variant.
func (r Record) ID() string {
	switch r.Kind {
	case RecordKindUser:
		if r.User != nil {
			return r.User.ID
		}
	}
	return ""
}

// DecodeRecord validates a raw upstream item into the variant for kind.
// Shapes that are not JSON objects, or that miss the identifier, fail with
// ErrMalformedRecord.
func DecodeRecord(kind RecordKind, raw json.RawMessage) (Record, error) {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 || trimmed[0] != '{' {
		return Record{}, fmt.Errorf("%w: %s item is not an object", ErrMalformedRecord, kind)
	}

	switch kind {
	case RecordKindUser:
		var u User
		if err := json.Unmarshal(trimmed, &u); err != nil {
			return Record{}, fmt.Errorf("%w: %v", ErrMalformedRecord, err)
		}
		if strings.TrimSpace(u.ID) == "" {
			return Record{}, fmt.Errorf("%w: user without id", ErrMalformedRecord)
		}
		return NewUserRecord(u), nil
	default:
		return Record{}, fmt.Errorf("%w: unknown record kind %q", ErrMalformedRecord, kind)
	}
}

// NormalizedItem is the destination-facing shape of a record.
type NormalizedItem struct {
	ID           string         `json:"id"`
	CreatedDate  string         `json:"created_date,omitempty"`
	ModifiedDate string         `json:"modified_date,omitempty"`
	Data         map[string]any `json:"data"`
}

package model

import (
	"bytes"
	"encoding/base64"
	"errors"
	"strings"
	"time"
)

// Profile is the one-per-user record of optional personal details.
//
// Nil pointer fields were never supplied. ProfilePic holds the picture as a
// data URI so the bytes and the MIME type travel together through storage.
// Interests is a set; it lives in its own table and is loaded separately.
type Profile struct {
	UserID     string    `json:"userId"               db:"user_id"`
	Bio        *string   `json:"bio"                  db:"bio"`
	ProfilePic *string   `json:"profilePic,omitempty" db:"profile_pic"`
	Age        *int      `json:"age"                  db:"age"`
	Location   *string   `json:"location"             db:"location"`
	Courses    *string   `json:"courses"              db:"courses"`
	School     *string   `json:"school"               db:"school"`
	Interests  []string  `json:"interests"            db:"-"`
	CreatedAt  time.Time `json:"createdAt"            db:"created_at"`
	UpdatedAt  time.Time `json:"updatedAt"            db:"updated_at"`
}

// ProfileSummary is the directory projection of a profile: structured
// facets only, no free text and no picture payload.
type ProfileSummary struct {
	UserID    string   `json:"userId"`
	Location  *string  `json:"location"`
	School    *string  `json:"school"`
	Courses   *string  `json:"courses"`
	Interests []string `json:"interests"`
}

// Summary projects a Profile onto its directory facets.
func (p *Profile) Summary() ProfileSummary {
	return ProfileSummary{
		UserID:    p.UserID,
		Location:  p.Location,
		School:    p.School,
		Courses:   p.Courses,
		Interests: p.Interests,
	}
}

// SearchResult is one row of an interest search: a profile's facets joined
// with its owner's display name.
type SearchResult struct {
	UserID    string   `json:"userId"`
	Username  string   `json:"username"`
	FirstName string   `json:"firstName"`
	LastName  string   `json:"lastName"`
	Location  *string  `json:"location"`
	School    *string  `json:"school"`
	Courses   *string  `json:"courses"`
	Interests []string `json:"interests"`
}

// Picture is an uploaded image: raw bytes plus the declared MIME type.
type Picture struct {
	MIMEType string
	Data     []byte
}

var ErrMalformedDataURI = errors.New("model: malformed data URI")

// DataURI encodes the picture as data:<mime>;base64,<payload>.
func (p Picture) DataURI() string {
	return "data:" + p.MIMEType + ";base64," + base64.StdEncoding.EncodeToString(p.Data)
}

// Equal reports whether two pictures carry the same type and bytes.
func (p Picture) Equal(other Picture) bool {
	return p.MIMEType == other.MIMEType && bytes.Equal(p.Data, other.Data)
}

// ParsePicture decodes a base64 data URI produced by DataURI.
func ParsePicture(uri string) (Picture, error) {
	rest, ok := strings.CutPrefix(uri, "data:")
	if !ok {
		return Picture{}, ErrMalformedDataURI
	}
	meta, payload, ok := strings.Cut(rest, ",")
	if !ok {
		return Picture{}, ErrMalformedDataURI
	}
	mimeType, ok := strings.CutSuffix(meta, ";base64")
	if !ok || mimeType == "" {
		return Picture{}, ErrMalformedDataURI
	}
	data, err := base64.StdEncoding.DecodeString(payload)
	if err != nil {
		return Picture{}, ErrMalformedDataURI
	}
	return Picture{MIMEType: mimeType, Data: data}, nil
}

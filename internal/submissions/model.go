package submissions

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// Field names a searchable submission column.
type Field string

const (
	// FieldName searches the display name.
	FieldName Field = "name"
	// FieldHandle searches the social media handle.
	FieldHandle Field = "social_media_handle"
)

const maxTextLength = 320

var (
	// ErrInvalidField indicates an unknown search field.
	ErrInvalidField = errors.New("submissions: invalid field")
	// ErrMissingName indicates an empty display name.
	ErrMissingName = errors.New("submissions: name is required")
	// ErrMissingHandle indicates an empty social media handle.
	ErrMissingHandle = errors.New("submissions: social media handle is required")
	// ErrTextTooLong indicates a name or handle beyond storage bounds.
	ErrTextTooLong = errors.New("submissions: text exceeds storage bounds")
)

// ParseField validates raw input and returns the matching Field.
func ParseField(raw string) (Field, error) {
	switch Field(strings.TrimSpace(raw)) {
	case FieldName:
		return FieldName, nil
	case FieldHandle:
		return FieldHandle, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrInvalidField, raw)
	}
}

// Label returns the human readable field name.
func (f Field) Label() string {
	if f == FieldName {
		return "Name"
	}
	return "Social Media Handle"
}

// Submission is one admin-reviewable record of a user's name, handle and image set.
type Submission struct {
	ID                string    `gorm:"column:id;primaryKey;size:64;not null" json:"id"`
	Name              string    `gorm:"column:name;size:320;not null" json:"name"`
	SocialMediaHandle string    `gorm:"column:social_media_handle;size:320;not null" json:"social_media_handle"`
	ImageURLs         []string  `gorm:"column:image_urls;type:text;serializer:json;not null" json:"image_urls"`
	CreatedAt         time.Time `gorm:"column:created_at;not null;index:idx_user_submissions_created" json:"created_at"`
	UserID            *string   `gorm:"column:user_id;size:190" json:"-"`
}

// TableName provides the explicit table binding for GORM.
func (Submission) TableName() string {
	return "user_submissions"
}

// Value returns the submission's value for the given search field.
func (s Submission) Value(field Field) string {
	if field == FieldName {
		return s.Name
	}
	return s.SocialMediaHandle
}

// NewSubmission carries the caller-supplied columns of a submission insert.
type NewSubmission struct {
	Name              string
	SocialMediaHandle string
	ImageURLs         []string
	UserID            string
}

// Patch carries the mutable columns of a submission.
type Patch struct {
	Name              string
	SocialMediaHandle string
}

// NewPatch normalizes and validates an admin edit.
func NewPatch(name, handle string) (Patch, error) {
	patch := Patch{
		Name:              strings.TrimSpace(name),
		SocialMediaHandle: NormalizeHandle(handle),
	}
	if err := patch.validate(); err != nil {
		return Patch{}, err
	}
	return patch, nil
}

// Apply returns a copy of s with the patch merged in.
func (p Patch) Apply(s Submission) Submission {
	s.Name = p.Name
	s.SocialMediaHandle = p.SocialMediaHandle
	return s
}

func (p Patch) validate() error {
	if p.Name == "" {
		return ErrMissingName
	}
	if p.SocialMediaHandle == "" {
		return ErrMissingHandle
	}
	if len(p.Name) > maxTextLength || len(p.SocialMediaHandle) > maxTextLength {
		return ErrTextTooLong
	}
	return nil
}

// NormalizeHandle trims whitespace and any leading "@" signs.
func NormalizeHandle(handle string) string {
	return strings.TrimSpace(strings.TrimLeft(strings.TrimSpace(handle), "@"))
}

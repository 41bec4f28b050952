package model

import (
	"strings"
	"time"
)

// Participant is a registered conference attendee as stored in the
// `participants` table.  DisplayID and VerificationToken are generated once
// by the registry and never change afterwards; profile updates go through
// Profile so they cannot touch them.
//
// Fields:
//
//	ID                – primary key identifier.
//	DisplayID         – human-readable id printed on badges, e.g. CONF-7KQ2-M9XA.
//	VerificationToken – secret UUID; only ever shown sealed as a credential payload.
//	Profile           – editable personal fields.
//	PasswordHash      – bcrypt hash for self-service login.
//	IsActive          – soft gate; inactive participants cannot check in.
//	VerifiedAt        – when an administrator verified the participant (nullable).
type Participant struct {
	ID                uint64     `json:"id"`
	DisplayID         string     `json:"display_id"`
	VerificationToken string     `json:"-"`
	Profile                      // name, email, organization...
	PasswordHash      string     `json:"-"`
	IsActive          bool       `json:"is_active"`
	VerifiedAt        *time.Time `json:"verified_at,omitempty"`
	CreatedAt         time.Time  `json:"created_at"`
	UpdatedAt         time.Time  `json:"updated_at"`
}

// Profile groups the participant fields a participant may edit.
type Profile struct {
	Name            string  `json:"name"`
	Email           string  `json:"email"`
	Organization    string  `json:"organization"`
	Phone           *string `json:"phone,omitempty"`
	Country         *string `json:"country,omitempty"`
	ParticipantType *string `json:"participant_type,omitempty"`
}

// Normalize trims every field and lower-cases the email so uniqueness checks
// are case-insensitive.  Blank optional fields become nil.
func (p *Profile) Normalize() {
	p.Name = strings.TrimSpace(p.Name)
	p.Email = strings.ToLower(strings.TrimSpace(p.Email))
	p.Organization = strings.TrimSpace(p.Organization)
	p.Phone = trimOptional(p.Phone)
	p.Country = trimOptional(p.Country)
	p.ParticipantType = trimOptional(p.ParticipantType)
}

// Verified reports whether an administrator has verified the participant.
func (p *Participant) Verified() bool { return p.VerifiedAt != nil }

// TypeName returns the participant type or "" when unclassified.
func (p *Participant) TypeName() string {
	if p.ParticipantType == nil {
		return ""
	}
	return *p.ParticipantType
}

func trimOptional(s *string) *string {
	if s == nil {
		return nil
	}
	v := strings.TrimSpace(*s)
	if v == "" {
		return nil
	}
	return &v
}

// Package handoff turns agent transcripts into trusted intake records.
//
// The flow is Extract (or Infer when the agent emitted no record), then
// Normalize, then Validate. Every step is pure; side effects live in the
// pipeline and dispatch packages.
package handoff

import (
	"fmt"
	"strings"
)

// KindCustomerRequest is the default handoff kind.
const KindCustomerRequest = "customer_request"

// Source names the encoding a candidate was recovered from.
type Source string

const (
	SourceFence       Source = "fence"
	SourceTaggedFence Source = "tagged_fence"
	SourceTag         Source = "tag"
	SourceBase64      Source = "base64"
	SourceInferred    Source = "inferred"
)

// Candidate is a handoff record that has not been normalized or validated.
type Candidate struct {
	Kind    string         `json:"kind"`
	Payload map[string]any `json:"payload"`
	Source  Source         `json:"source"`
}

// MalformedError records one encoding that was found but did not parse.
type MalformedError struct {
	Source Source
	Err    error
}

func (e *MalformedError) Error() string {
	return fmt.Sprintf("malformed %s handoff: %v", e.Source, e.Err)
}

func (e *MalformedError) Unwrap() error { return e.Err }

// Category is the legal area of a request.
type Category string

const (
	CategoryFamily      Category = "family"
	CategoryLabor       Category = "labor"
	CategoryEnforcement Category = "enforcement"
	CategoryLease       Category = "lease"
	CategoryDamages     Category = "damages"
	CategoryCriminal    Category = "criminal"
	CategoryOther       Category = "other"
)

// Label returns the Turkish display label used in notifications.
func (c Category) Label() string {
	switch c {
	case CategoryFamily:
		return "Aile Hukuku"
	case CategoryLabor:
		return "İş Hukuku"
	case CategoryEnforcement:
		return "İcra / Alacak"
	case CategoryLease:
		return "Kira / Tahliye"
	case CategoryDamages:
		return "Tazminat"
	case CategoryCriminal:
		return "Ceza Hukuku"
	default:
		return "Diğer"
	}
}

type Urgency string

const (
	UrgencyUrgent Urgency = "urgent"
	UrgencyNormal Urgency = "normal"
)

// Label returns the Turkish display label used in notifications.
func (u Urgency) Label() string {
	if u == UrgencyUrgent {
		return "Acil"
	}
	return "Normal"
}

// Meeting placeholders written when the customer gave no value.
const (
	PlaceholderDateSoon  = "En kısa sürede (Tespit edilen)"
	PlaceholderDateUnset = "Belirtilmedi"
	PlaceholderTime      = "Müsaitlik durumuna göre"
	PlaceholderMode      = "İletişimde belirlenecek"
)

// Canonical meeting modes.
const (
	ModeOnline   = "Online Görüşme"
	ModeInPerson = "Yüz Yüze Görüşme"
)

const (
	DefaultTitle = "Hukuk Talebi"
	AckSummary   = "Randevu talebi"

	MaxSummary    = 180
	MaxDetails    = 900
	maxInferInput = 4000
	maxInferTitle = 160
)

type Contact struct {
	Name        string `json:"name"`
	Phone       string `json:"phone"`
	PhoneDigits string `json:"phone_digits"`
	Email       string `json:"email,omitempty"`
}

type Matter struct {
	Category Category `json:"category"`
	Urgency  Urgency  `json:"urgency"`
}

// Meeting is the customer's preferred consultation slot. Filled lists the
// fields (mode, date, time) that hold a placeholder instead of customer input.
type Meeting struct {
	Mode   string   `json:"mode"`
	Date   string   `json:"date"`
	Time   string   `json:"time"`
	Filled []string `json:"filled,omitempty"`
}

// Placeholder reports whether field was filled with a placeholder.
func (m Meeting) Placeholder(field string) bool {
	for _, f := range m.Filled {
		if f == field {
			return true
		}
	}
	return false
}

type Request struct {
	Summary string `json:"summary"`
	Details string `json:"details"`
}

type Dates struct {
	Event    string `json:"event,omitempty"`
	Deadline string `json:"deadline,omitempty"`
}

// Record is a normalized handoff ready for the gate.
type Record struct {
	Kind      string   `json:"kind"`
	Contact   Contact  `json:"contact"`
	Matter    Matter   `json:"matter"`
	Meeting   Meeting  `json:"meeting"`
	Request   Request  `json:"request"`
	Dates     Dates    `json:"dates"`
	Documents []string `json:"documents,omitempty"`
}

// Title is the one-line subject for a record.
func (r Record) Title() string {
	if s := strings.TrimSpace(r.Request.Summary); s != "" {
		return s
	}
	return DefaultTitle
}

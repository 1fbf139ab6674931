package handoff

import (
	"strings"
	"unicode/utf8"
)

// Predicate is one admission requirement a record must meet.
type Predicate struct {
	Name  string
	Check func(Record) bool
}

// Predicates are evaluated in order by Validate.
var Predicates = []Predicate{
	{"name", func(r Record) bool { return utf8.RuneCountInString(strings.TrimSpace(r.Contact.Name)) >= 2 }},
	{"phone", func(r Record) bool { return len(r.Contact.PhoneDigits) >= 10 }},
	{"text", func(r Record) bool {
		return utf8.RuneCountInString(strings.TrimSpace(r.Request.Summary)) >= 3 ||
			utf8.RuneCountInString(strings.TrimSpace(r.Request.Details)) >= 3
	}},
	{"mode", func(r Record) bool { return strings.TrimSpace(r.Meeting.Mode) != "" }},
	{"datetime", func(r Record) bool {
		date := strings.TrimSpace(r.Meeting.Date)
		clock := strings.TrimSpace(r.Meeting.Time)
		return (date != "" && clock != "") || strings.Contains(date, " ")
	}},
}

// Validate returns the names of the predicates r fails. An empty result
// means the record may be dispatched.
func Validate(r Record) []string {
	var missing []string
	for _, p := range Predicates {
		if !p.Check(r) {
			missing = append(missing, p.Name)
		}
	}
	return missing
}

// HasMinimumData reports whether r passes every predicate.
func HasMinimumData(r Record) bool {
	return len(Validate(r)) == 0
}

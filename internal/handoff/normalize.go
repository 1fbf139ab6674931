package handoff

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strings"

	"github.com/hurttlocker/intake/internal/fence"
)

// NormalizeOptions carries per-brand context for Normalize.
type NormalizeOptions struct {
	// BrandEmails are the brand's own addresses. A customer email equal to
	// one of them is a model mistake and is cleared.
	BrandEmails []string
}

var (
	ackSummaryRe = regexp.MustCompile(`bilgilerinizi aldim`)

	meetingSoonKeywords = []string{
		"hemen", "acil", "kisa", "en kisa zamanda", "en kisa sürede",
		"müsaitlikte", "uygun zamanda", "dönüş yaparsaniz", "haber bekliyorum",
	}
	onlineModeKeywords   = []string{"online", "çevrim içi", "cevrim ici"}
	inPersonModeKeywords = []string{"yüz yüze", "yuz yuze", "ofis", "in person"}
)

var categoryAliases = map[string]Category{
	"aile":        CategoryFamily,
	"family":      CategoryFamily,
	"is":          CategoryLabor,
	"iş":          CategoryLabor,
	"labor":       CategoryLabor,
	"icra":        CategoryEnforcement,
	"enforcement": CategoryEnforcement,
	"kira":        CategoryLease,
	"lease":       CategoryLease,
	"tazminat":    CategoryDamages,
	"damages":     CategoryDamages,
	"ceza":        CategoryCriminal,
	"criminal":    CategoryCriminal,
	"diger":       CategoryOther,
	"diğer":       CategoryOther,
	"other":       CategoryOther,
}

var urgencyAliases = map[string]Urgency{
	"acil":   UrgencyUrgent,
	"urgent": UrgencyUrgent,
	"high":   UrgencyUrgent,
	"yüksek": UrgencyUrgent,
	"normal": UrgencyNormal,
	"low":    UrgencyNormal,
	"düşük":  UrgencyNormal,
}

// Normalize canonicalizes a candidate into a Record. Meeting date, time
// and mode are never empty afterwards: unparseable input is kept raw and
// missing input becomes a placeholder listed in Meeting.Filled.
func Normalize(c Candidate, opts NormalizeOptions) Record {
	p := c.Payload
	if p == nil {
		p = map[string]any{}
	}

	summaryText := fence.Strip(firstString(p, "request.summary", "summary"))
	detailsText := fence.Strip(firstString(p, "request.details", "details"))
	combined := cleanLines(strings.Join(nonEmpty(summaryText, detailsText), "\n"))

	r := Record{Kind: canonicalKind(c.Kind)}

	phone := clean(firstString(p, "contact.phone", "phone"))
	if phone == "" {
		if v, ok := (Matcher{Name: "phone", Pattern: phoneRe, Group: 1}).Match(combined); ok {
			phone = clean(v)
		}
	}
	r.Contact.Phone = phone
	r.Contact.PhoneDigits = digitsOf(phone)

	name := clean(firstString(p, "contact.name", "contact.full_name", "full_name", "name"))
	if name == "" {
		name, _ = firstMatch(NormalizeNameMatchers, combined)
		name = clean(name)
	}
	if name != "" {
		name = titleName(name)
	}
	r.Contact.Name = name

	r.Contact.Email = clean(firstString(p, "contact.email", "email"))
	if isBrandEmail(r.Contact.Email, opts.BrandEmails) {
		r.Contact.Email = ""
	}

	summary := clean(summaryText)
	if summary == "" {
		summary = clean(detailsText)
	}
	if ackSummaryRe.MatchString(Fold(summary)) {
		summary = AckSummary
	}
	r.Request.Summary = truncate(summary, MaxSummary)

	details := cleanLines(detailsText)
	if details == "" {
		details = cleanLines(summaryText)
	}
	r.Request.Details = truncate(details, MaxDetails)

	text := r.Request.Summary + "\n" + r.Request.Details
	r.Matter.Category = normalizeCategory(firstString(p, "matter.category", "category"), text)
	r.Matter.Urgency = normalizeUrgency(firstString(p, "matter.urgency", "urgency"), text)

	r.Meeting = normalizeMeeting(p, text)

	r.Dates.Event = normalizeLooseDate(firstString(p, "dates.event", "event_date"))
	r.Dates.Deadline = normalizeLooseDate(firstString(p, "dates.deadline", "deadline"))
	r.Documents = stringList(lookup(p, "documents"))

	return r
}

func normalizeMeeting(p map[string]any, text string) Meeting {
	var m Meeting

	mode := clean(firstString(p,
		"preferred_meeting.mode", "meeting.mode", "meeting_mode", "mode"))
	folded := Fold(mode)
	switch {
	case containsAny(folded, onlineModeKeywords):
		mode = ModeOnline
	case containsAny(folded, inPersonModeKeywords):
		mode = ModeInPerson
	}

	rawDate := clean(firstString(p,
		"preferred_meeting.date", "meeting.date", "meeting_date",
		"preferred_meeting.datetime", "meeting.datetime", "meeting_datetime", "date"))
	rawTime := clean(firstString(p,
		"preferred_meeting.time", "meeting.time", "meeting_time", "time"))

	if rawTime == "" {
		if d, t, ok := splitDateTime(rawDate); ok {
			rawDate, rawTime = d, t
		}
	}

	m.Mode = mode
	m.Date = normalizeLooseDate(rawDate)
	m.Time = rawTime
	if t, ok := NormalizeTime(rawTime); ok {
		m.Time = t
	}

	if m.Date == "" {
		m.Date = PlaceholderDateUnset
		if containsAny(Fold(text), meetingSoonKeywords) {
			m.Date = PlaceholderDateSoon
		}
		m.Filled = append(m.Filled, "date")
	}
	if m.Time == "" {
		m.Time = PlaceholderTime
		m.Filled = append(m.Filled, "time")
	}
	if m.Mode == "" {
		m.Mode = PlaceholderMode
		m.Filled = append(m.Filled, "mode")
	}
	return m
}

// normalizeLooseDate returns the canonical date or the raw input when it
// does not parse.
func normalizeLooseDate(raw string) string {
	if d, ok := NormalizeDate(raw); ok {
		return d
	}
	return raw
}

func normalizeCategory(raw, text string) Category {
	if c, ok := categoryAliases[Fold(strings.TrimSpace(raw))]; ok {
		return c
	}
	return Classify(text)
}

func normalizeUrgency(raw, text string) Urgency {
	if u, ok := urgencyAliases[Fold(strings.TrimSpace(raw))]; ok {
		return u
	}
	return DetectUrgency(text)
}

func isBrandEmail(email string, brand []string) bool {
	email = strings.ToLower(strings.TrimSpace(email))
	if email == "" {
		return false
	}
	for _, b := range brand {
		if strings.ToLower(strings.TrimSpace(b)) == email {
			return true
		}
	}
	return false
}

// lookup walks a dotted path through nested maps.
func lookup(p map[string]any, path string) any {
	var cur any = p
	for _, key := range strings.Split(path, ".") {
		m, ok := cur.(map[string]any)
		if !ok {
			return nil
		}
		cur = m[key]
	}
	return cur
}

// firstString returns the first path whose value renders as non-empty text.
func firstString(p map[string]any, paths ...string) string {
	for _, path := range paths {
		if s := asString(lookup(p, path)); strings.TrimSpace(s) != "" {
			return s
		}
	}
	return ""
}

func asString(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	case json.Number:
		return t.String()
	case float64, int, int64, bool:
		return fmt.Sprint(t)
	default:
		return ""
	}
}

func stringList(v any) []string {
	var out []string
	switch t := v.(type) {
	case []any:
		for _, item := range t {
			if s := clean(asString(item)); s != "" {
				out = append(out, s)
			}
		}
	case []string:
		for _, item := range t {
			if s := clean(item); s != "" {
				out = append(out, s)
			}
		}
	case string:
		if s := clean(t); s != "" {
			out = append(out, s)
		}
	}
	return out
}

func nonEmpty(values ...string) []string {
	out := values[:0:0]
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			out = append(out, v)
		}
	}
	return out
}

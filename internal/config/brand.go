package config

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// Brand is one law office served by this deployment. JSON tags match the
// BRANDS_JSON format; YAML uses snake_case.
type Brand struct {
	Key            string   `yaml:"-" json:"-"`
	Label          string   `yaml:"label" json:"label,omitempty"`
	BrandName      string   `yaml:"brand_name" json:"brandName,omitempty"`
	SubjectPrefix  string   `yaml:"subject_prefix" json:"subject_prefix,omitempty"`
	HandoffEmailTo string   `yaml:"handoff_email_to" json:"handoffEmailTo,omitempty"`
	EmailTo        string   `yaml:"email_to" json:"email_to,omitempty"`
	ContactEmail   string   `yaml:"contact_email" json:"contactEmail,omitempty" validate:"omitempty,email"`
	NoreplyEmail   string   `yaml:"noreply_email" json:"noreplyEmail,omitempty" validate:"omitempty,email"`
	PracticeAreas  []string `yaml:"practice_areas" json:"practiceAreas,omitempty"`
	Office         struct {
		City string `yaml:"city" json:"city,omitempty"`
	} `yaml:"office" json:"office"`
	Model string `yaml:"model" json:"model,omitempty"`
}

// DisplayLabel is the name shown in prompts and emails.
func (b Brand) DisplayLabel() string {
	prefix := strings.Trim(strings.TrimSpace(b.SubjectPrefix), "[]")
	return firstNonEmpty(b.Label, b.BrandName, prefix, b.Key)
}

// Subject returns the email subject prefix, "[Label]" when unset.
func (b Brand) Subject() string {
	if p := strings.TrimSpace(b.SubjectPrefix); p != "" {
		return p
	}
	return "[" + b.DisplayLabel() + "]"
}

// Emails lists the brand's own addresses.
func (b Brand) Emails() []string {
	var out []string
	for _, v := range []string{b.ContactEmail, b.HandoffEmailTo, b.EmailTo, b.NoreplyEmail} {
		for _, e := range strings.Split(v, ",") {
			if e = strings.TrimSpace(e); e != "" {
				out = append(out, e)
			}
		}
	}
	return out
}

// ParseBrandsJSON decodes a {"key": {...}} brand map.
func ParseBrandsJSON(raw string) (map[string]Brand, error) {
	var brands map[string]Brand
	if err := json.Unmarshal([]byte(raw), &brands); err != nil {
		return nil, fmt.Errorf("parsing brands: %w", err)
	}
	return keyBrands(brands), nil
}

func keyBrands(in map[string]Brand) map[string]Brand {
	out := make(map[string]Brand, len(in))
	for k, b := range in {
		b.Key = k
		out[k] = b
	}
	return out
}

var trMonths = [...]string{"Ocak", "Şubat", "Mart", "Nisan", "Mayıs", "Haziran",
	"Temmuz", "Ağustos", "Eylül", "Ekim", "Kasım", "Aralık"}

var trWeekdays = [...]string{"Pazar", "Pazartesi", "Salı", "Çarşamba", "Perşembe", "Cuma", "Cumartesi"}

// istanbul is fixed at UTC+3; Turkey has not observed DST since 2016.
var istanbul = time.FixedZone("Europe/Istanbul", 3*60*60)

func formatTR(t time.Time) string {
	t = t.In(istanbul)
	return fmt.Sprintf("%d %s %d %s %02d:%02d",
		t.Day(), trMonths[t.Month()-1], t.Year(), trWeekdays[t.Weekday()], t.Hour(), t.Minute())
}

const defaultPracticeAreas = "Aile, Ceza, İş, İcra/İflas, Gayrimenkul/Kira, Tazminat"

// BuildRunInstructions renders the system prompt for one brand.
func BuildRunInstructions(b Brand, now time.Time) string {
	city := firstNonEmpty(b.Office.City, "Türkiye")
	areas := defaultPracticeAreas
	if len(b.PracticeAreas) > 0 {
		areas = strings.Join(b.PracticeAreas, ", ")
	}

	lines := []string{
		fmt.Sprintf("CURRENT DATE/TIME: %s (Europe/Istanbul)", formatTR(now)),
		"ROLE / KİMLİK",
		fmt.Sprintf("- You are the official digital pre-intake and information assistant for %q (a law office in %s).", b.DisplayLabel(), city),
		"- Your job is to understand the user's legal topic, give general information only, collect minimum pre-intake details and prepare a handoff request for the legal team when needed.",
		"",
		"LANGUAGE & TONE",
		"- Language: Turkish. Professional, calm and clear. No emojis.",
		"- Keep answers concise: 3-10 lines when possible. Use bullet points for clarity.",
		"",
		"SCOPE",
		"- You are NOT a lawyer and you do NOT provide legal advice. General information only.",
		"- Do not promise outcomes. Do not provide tactics or draft petitions.",
		"- Strategy, definitive opinions, exact deadlines or fees require lawyer review: offer to forward the request.",
		"",
		"PRIVACY",
		"- Never ask for T.C. kimlik no, IBAN, card details or medical records in chat. If the user starts sharing them, ask them to stop.",
		"",
		"PRACTICE AREAS",
		"- Classify the case into one primary area: Aile, Ceza, İş, İcra/İflas, Gayrimenkul & Kira, Tazminat, or Diğer.",
		fmt.Sprintf("- Office focus areas: %s.", areas),
		"",
		"APPOINTMENT / HANDOFF FLOW",
		"- For an appointment ask for: Ad Soyad, Telefon, a 1-2 sentence summary, Görüşme tercihi (Online / Yüz Yüze) and a preferred date and time.",
		"- Once name, phone, summary and meeting preferences are given, that is consent. Do not ask for confirmation; send the handoff immediately.",
		`- After sending reply briefly: "Talebinizi ekibe ilettim. Ekibimiz en kısa sürede sizinle iletişime geçecektir."`,
		"",
		"HANDOFF FORMAT (MUST MATCH EXACTLY)",
		"```handoff",
		`{"handoff": "customer_request", "payload": {`,
		`  "contact": {"name": "<Ad Soyad>", "phone": "<+905xx...>", "email": "<optional>"},`,
		`  "preferred_meeting": {"mode": "<online|yüz yüze>", "date": "<YYYY-MM-DD>", "time": "<HH:MM>"},`,
		`  "matter": {"category": "<aile|ceza|is|icra|kira|tazminat|diger>", "urgency": "<acil|normal>"},`,
		`  "request": {"summary": "<one sentence>", "details": "<optional>"}`,
		"}}",
		"```",
		"- date MUST be YYYY-MM-DD; resolve relative dates from CURRENT DATE/TIME.",
		"",
		"FORBIDDEN",
		"- No guarantees. No requesting sensitive data. Never claim an appointment is booked; you only forward a request.",
	}
	return strings.Join(lines, "\n")
}

package handoff

import (
	"regexp"
	"strings"
)

// Matcher is a named, pure text matcher. Group selects the submatch that
// holds the value; zero means the whole match.
type Matcher struct {
	Name    string
	Pattern *regexp.Regexp
	Group   int
}

// Match returns the trimmed value captured by m.
func (m Matcher) Match(text string) (string, bool) {
	sub := m.Pattern.FindStringSubmatch(text)
	if sub == nil || m.Group >= len(sub) {
		return "", false
	}
	v := strings.TrimSpace(sub[m.Group])
	return v, v != ""
}

// firstMatch runs matchers in order and returns the first hit.
func firstMatch(matchers []Matcher, text string) (value, name string) {
	for _, m := range matchers {
		if v, ok := m.Match(text); ok {
			return v, m.Name
		}
	}
	return "", ""
}

const phonePattern = `(\+?\d[\d\s().-]{9,}\d)`

// Go's (?i) does not fold dotted İ or dotless ı, so they are spelled out.
var (
	phoneRe = regexp.MustCompile(phonePattern)
	emailRe = regexp.MustCompile(`[^\s@]+@[^\s@]+\.[^\s@]+`)

	labeledName = Matcher{
		Name:    "labeled",
		Pattern: regexp.MustCompile(`(?i)ad\s*soyad\s*[:\-]\s*([^\n,]+)`),
		Group:   1,
	}
	contactLineName = Matcher{
		Name:    "contact_line",
		Pattern: regexp.MustCompile(`(?i)[iİ]leti[şŞ]im\s*:\s*([^\n,]+)\s*,\s*` + phonePattern),
		Group:   1,
	}
	phrasedName = Matcher{
		Name:    "phrasing",
		Pattern: regexp.MustCompile(`(?i)(?:benim\s+ad[ıiI]m|ad[ıiI]m|[iİ]sim|[iİ]smim)\s*[:\-]?\s*([^\n,]+)`),
		Group:   1,
	}
	plainName = Matcher{
		Name:    "name_before_phone",
		Pattern: regexp.MustCompile(`(?m)^\s*([a-zA-ZığüşöçİĞÜŞÖÇ]{2,}\s+[a-zA-ZığüşöçİĞÜŞÖÇ]{2,}(?:\s+[a-zA-ZığüşöçİĞÜŞÖÇ]{2,})?)\s+` + phonePattern),
		Group:   1,
	}

	// InferNameMatchers is the order used on raw user messages.
	InferNameMatchers = []Matcher{labeledName, contactLineName, phrasedName}

	// NormalizeNameMatchers is the order used when mining a name from a
	// record's summary and details.
	NormalizeNameMatchers = []Matcher{labeledName, phrasedName, contactLineName, plainName}

	summaryLine = Matcher{
		Name:    "olay_ozeti",
		Pattern: regexp.MustCompile(`(?i)olay\s*özeti\s*:\s*([^\n]+)`),
		Group:   1,
	}
)

// KeywordSet is one category with its folded trigger keywords.
type KeywordSet struct {
	Category Category
	Keywords []string
}

// CategoryKeywords is checked in order; the first set with a hit wins.
var CategoryKeywords = []KeywordSet{
	{CategoryFamily, []string{"boşan", "velayet", "nafaka", "mal rejimi"}},
	{CategoryLabor, []string{"işten", "kidem", "ihbar", "fazla mesai", "mobbing", "işe iade"}},
	{CategoryEnforcement, []string{"icra", "haciz", "takip", "tebligat", "ödeme emri"}},
	{CategoryLease, []string{"kira", "tahliye", "kiraci", "ev sahibi", "kontrat"}},
	{CategoryDamages, []string{"tazminat", "trafik kazasi", "maddi", "manevi"}},
	{CategoryCriminal, []string{"ceza", "savcilik", "ifade", "duruşma", "şikayet"}},
}

var urgencyKeywords = []string{"acil", "bugün", "yarin", "son gün", "tebligat", "ifade", "duruşma"}

// Templates the assistant uses when asking for details or confirmation.
// Text matching them is a question, not a submission. Patterns are folded.
var (
	infoAskRes = []*regexp.Regexp{
		regexp.MustCompile(`lütfen.*(?:aşağidaki|bilgileri).*paylaşir misiniz`),
		regexp.MustCompile(`1\.\s*adi\s*soyad`),
		regexp.MustCompile(`2\.\s*telefon`),
		regexp.MustCompile(`3\.\s*e-?posta`),
		regexp.MustCompile(`aşağidaki bilgileri paylaşabilir misiniz`),
	}
	confirmRe = regexp.MustCompile(`onay verirseniz|onayliyor musunuz|iletmemi ister misiniz|iletebilirim`)

	explicitHandoffRe = regexp.MustCompile("(?s)```.*\"handoff\"\\s*:")
	summaryBlacklist  = regexp.MustCompile(`hukuk dali|kritik tarih|belge|şehir|iletişim|görüşme tercihi`)
)

// Classify returns the category of the first keyword set found in text.
func Classify(text string) Category {
	folded := Fold(text)
	for _, set := range CategoryKeywords {
		if containsAny(folded, set.Keywords) {
			return set.Category
		}
	}
	return CategoryOther
}

// DetectUrgency reports urgent when any urgency keyword appears in text.
func DetectUrgency(text string) Urgency {
	if containsAny(Fold(text), urgencyKeywords) {
		return UrgencyUrgent
	}
	return UrgencyNormal
}

// IsQuestionTemplate reports whether text is the assistant asking for
// details or for confirmation.
func IsQuestionTemplate(text string) bool {
	folded := Fold(text)
	for _, re := range infoAskRes {
		if re.MatchString(folded) {
			return true
		}
	}
	return confirmRe.MatchString(folded)
}

// Infer derives a candidate from free text when the agent emitted none.
// It returns nil unless the text carries a phone- or email-like token and
// reads as a submission rather than a question.
func Infer(text string) *Candidate {
	if strings.TrimSpace(text) == "" {
		return nil
	}
	if explicitHandoffRe.MatchString(text) || IsQuestionTemplate(text) {
		return nil
	}

	phone, _ := Matcher{Name: "phone", Pattern: phoneRe, Group: 1}.Match(text)
	email, _ := Matcher{Name: "email", Pattern: emailRe}.Match(text)
	if phone == "" && email == "" {
		return nil
	}

	contact := map[string]any{}
	if name, _ := firstMatch(InferNameMatchers, text); name != "" {
		contact["name"] = name
	}
	if phone != "" {
		contact["phone"] = phone
	}
	if email != "" {
		contact["email"] = email
	}

	return &Candidate{
		Kind:   KindCustomerRequest,
		Source: SourceInferred,
		Payload: map[string]any{
			"contact": contact,
			"matter": map[string]any{
				"category": string(Classify(text)),
				"urgency":  string(DetectUrgency(text)),
			},
			"request": map[string]any{
				"summary": inferSummary(text),
				"details": lastRunes(text, maxInferInput),
			},
		},
	}
}

func inferSummary(text string) string {
	if v, ok := summaryLine.Match(text); ok {
		return v
	}
	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "-") || summaryBlacklist.MatchString(Fold(line)) {
			continue
		}
		return firstRunes(line, maxInferTitle)
	}
	return DefaultTitle
}

package handoff

import "regexp"

var (
	nameHintRe = regexp.MustCompile(`(?i)ad\s*soyad\s*[:\-]|[iİ]leti[şŞ]im\s*:\s*[^\n,]+\s*,|benim\s+ad[ıiI]m|ad[ıiI]m|[iİ]sim|[iİ]smim`)
	sendingRe  = regexp.MustCompile(`iletiyorum|ileteceğim|ekibe iletiyorum|ekibe ileteceğim|talebiniz iletildi|talebinizi ilettim|iletilmiştir|ilettim`)
)

// UserProvidedContactInfo reports whether a user message carries both a
// phone-like token and a name hint. Used to flag turns that should have
// produced a handoff but did not.
func UserProvidedContactInfo(text string) bool {
	return phoneRe.MatchString(text) && nameHintRe.MatchString(text)
}

// AssistantIndicatesSending reports whether the assistant told the user the
// request is being forwarded.
func AssistantIndicatesSending(text string) bool {
	return sendingRe.MatchString(Fold(text))
}

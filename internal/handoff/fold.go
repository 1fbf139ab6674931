package handoff

import (
	"regexp"
	"strings"
	"unicode/utf8"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// Fold lowercases s with Turkish rules and maps dotless ı to i, so that
// "KIDEM", "Kıdem" and "kidem" compare equal. Keywords are stored folded.
// A cases.Caser is stateful, so one is built per call.
func Fold(s string) string {
	return strings.ReplaceAll(cases.Lower(language.Turkish).String(s), "ı", "i")
}

func containsAny(folded string, keywords []string) bool {
	for _, kw := range keywords {
		if strings.Contains(folded, kw) {
			return true
		}
	}
	return false
}

func titleName(s string) string {
	return cases.Title(language.Turkish).String(s)
}

var (
	spaceRe     = regexp.MustCompile(`\s+`)
	hspaceRe    = regexp.MustCompile(`[ \t\f\r\v]+`)
	blankRunsRe = regexp.MustCompile(`\n{3,}`)
)

// clean collapses all whitespace to single spaces.
func clean(s string) string {
	return strings.TrimSpace(spaceRe.ReplaceAllString(s, " "))
}

// cleanLines collapses horizontal whitespace but keeps paragraph breaks.
func cleanLines(s string) string {
	lines := strings.Split(strings.ReplaceAll(s, "\r\n", "\n"), "\n")
	for i, l := range lines {
		lines[i] = strings.TrimSpace(hspaceRe.ReplaceAllString(l, " "))
	}
	return strings.TrimSpace(blankRunsRe.ReplaceAllString(strings.Join(lines, "\n"), "\n\n"))
}

// truncate cuts s to max runes and appends an ellipsis when it had to cut.
func truncate(s string, max int) string {
	if utf8.RuneCountInString(s) <= max {
		return s
	}
	r := []rune(s)
	return strings.TrimSpace(string(r[:max])) + "…"
}

func firstRunes(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}

func lastRunes(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[len(r)-n:])
}

func digitsOf(s string) string {
	var b strings.Builder
	for _, r := range s {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	return b.String()
}

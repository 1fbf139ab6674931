package handoff

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"
)

var (
	numericDateRe = regexp.MustCompile(`^(\d{1,2})[.\-/ ](\d{1,2})[.\-/ ](\d{4})$`)
	namedDateRe   = regexp.MustCompile(`^(\d{1,2})\s+(\p{L}+)\s+(\d{4})$`)
	isoDateRe     = regexp.MustCompile(`^\d{4}-\d{2}-\d{2}$`)
	clockRe       = regexp.MustCompile(`^(\d{1,2})(?::|\s)?(\d{2})?$`)
	meridiemRe    = regexp.MustCompile(`^(\d{1,2})(?::(\d{2}))?\s*(am|pm)$`)
)

// Turkish month names, folded, with their ASCII spellings.
var monthsTR = map[string]time.Month{
	"ocak":    time.January,
	"şubat":   time.February,
	"subat":   time.February,
	"mart":    time.March,
	"nisan":   time.April,
	"mayis":   time.May,
	"haziran": time.June,
	"temmuz":  time.July,
	"ağustos": time.August,
	"agustos": time.August,
	"eylül":   time.September,
	"eylul":   time.September,
	"ekim":    time.October,
	"kasim":   time.November,
	"aralik":  time.December,
}

// NormalizeDate parses dd.mm.yyyy (with . / - or space), "<day> <Turkish
// month> <year>", or ISO yyyy-mm-dd into yyyy-mm-dd. Days that do not exist
// in the given month are rejected.
func NormalizeDate(input string) (string, bool) {
	s := clean(Fold(input))
	if s == "" {
		return "", false
	}

	if m := numericDateRe.FindStringSubmatch(s); m != nil {
		return isoDate(atoi(m[3]), time.Month(atoi(m[2])), atoi(m[1]))
	}
	if m := namedDateRe.FindStringSubmatch(s); m != nil {
		month, ok := monthsTR[m[2]]
		if !ok {
			return "", false
		}
		return isoDate(atoi(m[3]), month, atoi(m[1]))
	}
	if isoDateRe.MatchString(s) {
		if _, err := time.Parse("2006-01-02", s); err != nil {
			return "", false
		}
		return s, true
	}
	return "", false
}

func isoDate(year int, month time.Month, day int) (string, bool) {
	if month < time.January || month > time.December || day < 1 || day > 31 {
		return "", false
	}
	t := time.Date(year, month, day, 0, 0, 0, 0, time.UTC)
	if t.Day() != day {
		return "", false
	}
	return t.Format("2006-01-02"), true
}

// NormalizeTime parses HH:MM, HH.MM, "HH MM", bare HH, and h[:mm] am|pm
// into 24-hour HH:MM.
func NormalizeTime(input string) (string, bool) {
	s := strings.ToLower(strings.TrimSpace(input))
	s = clean(strings.ReplaceAll(s, ".", ":"))
	if s == "" {
		return "", false
	}

	if m := clockRe.FindStringSubmatch(s); m != nil {
		return clock(atoi(m[1]), atoi(m[2]))
	}
	if m := meridiemRe.FindStringSubmatch(s); m != nil {
		hh := atoi(m[1])
		if hh < 1 || hh > 12 {
			return "", false
		}
		switch {
		case m[3] == "pm" && hh < 12:
			hh += 12
		case m[3] == "am" && hh == 12:
			hh = 0
		}
		return clock(hh, atoi(m[2]))
	}
	return "", false
}

func clock(hh, mm int) (string, bool) {
	if hh < 0 || hh > 23 || mm < 0 || mm > 59 {
		return "", false
	}
	return fmt.Sprintf("%02d:%02d", hh, mm), true
}

// splitDateTime separates "2025-01-15 14:00" style values. Both halves must
// parse, otherwise the input is left alone.
func splitDateTime(s string) (date, clockTime string, ok bool) {
	s = clean(s)
	idx := strings.LastIndexAny(s, " T")
	if idx <= 0 {
		return "", "", false
	}
	d, okDate := NormalizeDate(s[:idx])
	t, okTime := NormalizeTime(s[idx+1:])
	if !okDate || !okTime {
		return "", "", false
	}
	return d, t, true
}

// atoi converts a regexp digit group; empty groups are zero.
func atoi(s string) int {
	n, _ := strconv.Atoi(s)
	return n
}

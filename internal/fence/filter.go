// Package fence removes fenced machine payloads from agent output.
//
// Agent replies may embed a triple-backtick block carrying a JSON handoff
// record. Viewers must never see that block, nor any partial delimiter,
// regardless of how the upstream engine splits its output into fragments.
package fence

import (
	"regexp"
	"strings"
)

// Delimiter opens and closes a fenced region.
const Delimiter = "```"

// Mode says whether the scanner is inside a fenced region.
type Mode int

const (
	Outside Mode = iota
	Inside
)

func (m Mode) String() string {
	if m == Inside {
		return "inside"
	}
	return "outside"
}

// State is the complete per-stream scanner state.
//
// Carry holds at most two trailing backticks that may be the start of a
// delimiter completed by the next fragment. They are never emitted until
// the next fragment (or Flush) proves they are plain text.
type State struct {
	Mode  Mode
	Carry string
}

// markerRe matches handoff-key literals that must never reach a viewer.
var markerRe = regexp.MustCompile("(?i)\"handoff\"\\s*:|```handoff")

// Step consumes one fragment and returns the next state and the text that
// is safe to show. Step is pure; the concatenated output of any split of a
// string equals the output of a single Step over the whole string.
func Step(s State, fragment string) (State, string) {
	merged := s.Carry + fragment
	var out strings.Builder
	mode := s.Mode

	for {
		idx := strings.Index(merged, Delimiter)
		if idx < 0 {
			held := trailingBackticks(merged)
			if mode == Outside {
				out.WriteString(merged[:len(merged)-held])
			}
			return State{Mode: mode, Carry: merged[len(merged)-held:]}, out.String()
		}
		if mode == Outside {
			out.WriteString(merged[:idx])
			mode = Inside
		} else {
			mode = Outside
		}
		merged = merged[idx+len(Delimiter):]
	}
}

// Flush releases a held carry at end of stream. Backticks held while
// outside a fence are plain text; anything inside an unterminated fence
// is dropped.
func Flush(s State) string {
	if s.Mode == Outside {
		return s.Carry
	}
	return ""
}

func trailingBackticks(s string) int {
	n := 0
	for n < len(Delimiter)-1 && n < len(s) && s[len(s)-1-n] == '`' {
		n++
	}
	return n
}

// Filter applies Step to a live stream and truncates the visible output at
// the first handoff-key marker. Once tripped, the rest of the turn is
// suppressed. A Filter is not safe for concurrent use; use one per stream.
type Filter struct {
	state   State
	held    string
	tripped bool
}

// NewFilter returns a filter positioned outside any fence.
func NewFilter() *Filter {
	return &Filter{}
}

// State returns the scanner state.
func (f *Filter) State() State {
	return f.state
}

// Tripped reports whether a handoff marker cut the visible output.
func (f *Filter) Tripped() bool {
	return f.tripped
}

// Push feeds one fragment and returns the text safe to emit now.
func (f *Filter) Push(fragment string) string {
	var out string
	f.state, out = Step(f.state, fragment)
	if f.tripped {
		return ""
	}
	return f.release(f.held+out, false)
}

// Flush returns whatever was held back once the stream ends.
func (f *Filter) Flush() string {
	if f.tripped {
		return ""
	}
	rest := f.held + Flush(f.state)
	f.state.Carry = ""
	return f.release(rest, true)
}

func (f *Filter) release(buf string, final bool) string {
	if loc := markerRe.FindStringIndex(buf); loc != nil {
		f.tripped = true
		f.held = ""
		return buf[:loc[0]]
	}
	if final {
		f.held = ""
		return buf
	}
	n := markerPrefixLen(buf)
	f.held = buf[len(buf)-n:]
	return buf[:len(buf)-n]
}

// markerPrefixLen returns the length of the longest suffix of s that a
// later fragment could extend into a `"handoff":` marker.
func markerPrefixLen(s string) int {
	last := strings.LastIndexByte(s, '"')
	if last < 0 {
		return 0
	}
	best := 0
	if prev := strings.LastIndexByte(s[:last], '"'); prev >= 0 && couldBeMarker(s[prev:]) {
		best = len(s) - prev
	}
	if best == 0 && couldBeMarker(s[last:]) {
		best = len(s) - last
	}
	return best
}

// couldBeMarker reports whether s (starting with a quote) is an incomplete
// prefix of `"handoff"<ws>*:`.
func couldBeMarker(s string) bool {
	const key = "handoff"
	body := s[1:]
	if len(body) <= len(key) {
		return strings.EqualFold(body, key[:len(body)])
	}
	if !strings.EqualFold(body[:len(key)], key) || body[len(key)] != '"' {
		return false
	}
	return strings.Trim(body[len(key)+1:], " \t\n\f\r") == ""
}

// Strip removes every complete fenced block, any unterminated fenced tail,
// and everything from the first handoff-key marker on.
func Strip(text string) string {
	f := NewFilter()
	return f.Push(text) + f.Flush()
}

// HasMarker reports whether text carries a handoff-key literal.
func HasMarker(text string) bool {
	return markerRe.MatchString(text)
}

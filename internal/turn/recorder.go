// Package turn records one agent turn: the raw transcript for extraction and
// the sanitized text shown to the viewer.
package turn

import (
	"strings"

	"github.com/hurttlocker/intake/internal/fence"
)

// Transcript is the immutable result of a finished turn.
type Transcript struct {
	Raw       string
	Visible   string
	Fragments int
	// Tripped is true when a handoff-key literal cut the visible text.
	Tripped bool
}

// Recorder tees agent fragments into a fence filter and a raw accumulator.
// One Recorder per turn; not safe for concurrent use.
type Recorder struct {
	filter    *fence.Filter
	raw       strings.Builder
	visible   strings.Builder
	fragments int
	done      *Transcript
}

func NewRecorder() *Recorder {
	return &Recorder{filter: fence.NewFilter()}
}

// Push records a fragment and returns the text that may be shown now.
// Fragments pushed after Finish are ignored.
func (r *Recorder) Push(fragment string) string {
	if r.done != nil || fragment == "" {
		return ""
	}
	r.fragments++
	r.raw.WriteString(fragment)
	out := r.filter.Push(fragment)
	r.visible.WriteString(out)
	return out
}

// Finish flushes the filter and freezes the transcript. The returned tail
// is any held-back text that became safe to show; it is empty on repeat calls.
func (r *Recorder) Finish() (tail string, t Transcript) {
	if r.done != nil {
		return "", *r.done
	}
	tail = r.filter.Flush()
	r.visible.WriteString(tail)
	r.done = &Transcript{
		Raw:       r.raw.String(),
		Visible:   r.visible.String(),
		Fragments: r.fragments,
		Tripped:   r.filter.Tripped(),
	}
	return tail, *r.done
}

// Raw returns the text accumulated so far.
func (r *Recorder) Raw() string {
	return r.raw.String()
}

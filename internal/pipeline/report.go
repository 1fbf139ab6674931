package pipeline

import (
	"github.com/hurttlocker/intake/internal/fence"
	"github.com/hurttlocker/intake/internal/handoff"
)

// Report is a printable form of Evaluate for operator tooling.
type Report struct {
	Stage     Stage           `json:"stage"`
	Kind      string          `json:"kind,omitempty"`
	Source    string          `json:"source,omitempty"`
	Payload   map[string]any  `json:"payload,omitempty"`
	Record    *handoff.Record `json:"record,omitempty"`
	Missing   []string        `json:"missing,omitempty"`
	Malformed []string        `json:"malformed,omitempty"`
	Visible   string          `json:"visible"`
}

// Explain evaluates t without dedup or dispatch and reports every stage.
func Explain(t Turn) Report {
	out := Evaluate(t)
	r := Report{
		Stage:   out.Stage,
		Record:  out.Record,
		Missing: out.Missing,
		Visible: fence.Strip(t.Raw),
	}
	if c := out.Candidate; c != nil {
		r.Kind = c.Kind
		r.Source = string(c.Source)
		r.Payload = c.Payload
	}
	for _, err := range out.Malformed {
		r.Malformed = append(r.Malformed, err.Error())
	}
	return r
}

// Package pipeline runs the handoff flow for one finished agent turn:
// extract or infer, normalize, gate, dedup, dispatch.
package pipeline

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/hurttlocker/intake/internal/config"
	"github.com/hurttlocker/intake/internal/dedup"
	"github.com/hurttlocker/intake/internal/dispatch"
	"github.com/hurttlocker/intake/internal/fence"
	"github.com/hurttlocker/intake/internal/handoff"
	"github.com/hurttlocker/intake/internal/logging"
	"github.com/hurttlocker/intake/internal/metrics"
)

// Stage is how far a turn got through the pipeline.
type Stage string

const (
	StageNone       Stage = "none"       // no candidate
	StageRejected   Stage = "rejected"   // gate failed
	StageAdmitted   Stage = "admitted"   // gate passed (Evaluate only)
	StageDuplicate  Stage = "duplicate"  // suppressed by dedup
	StageDispatched Stage = "dispatched" // sent to channels
)

// Turn is the input for one finished agent turn.
type Turn struct {
	ConversationID string
	VisitorID      string
	SessionID      string
	Source         map[string]any
	Meta           map[string]any
	Brand          config.Brand

	UserMessage string
	Raw         string // unfiltered assistant transcript
}

// Outcome reports what happened to a turn.
type Outcome struct {
	Stage     Stage
	Candidate *handoff.Candidate
	Record    *handoff.Record
	Missing   []string
	Malformed []error
	Hash      string
	Results   []dispatch.Result
}

// Dispatcher is the fan-out used by Process. *dispatch.Dispatcher satisfies it.
type Dispatcher interface {
	Dispatch(ctx context.Context, s dispatch.Submission) []dispatch.Result
}

// Recorder counts outcomes. *metrics.Collector satisfies it.
type Recorder interface {
	RecordHandoff(outcome string)
}

// Pipeline holds the shared deduplicator and dispatcher.
type Pipeline struct {
	dedup      *dedup.Deduper
	dispatcher Dispatcher
	log        *zap.Logger
	rec        Recorder
	now        func() time.Time
}

type Option func(*Pipeline)

func WithLogger(l *zap.Logger) Option { return func(p *Pipeline) { p.log = l } }

func WithRecorder(r Recorder) Option { return func(p *Pipeline) { p.rec = r } }

func WithClock(now func() time.Time) Option { return func(p *Pipeline) { p.now = now } }

// New creates a pipeline. d and disp may be nil for evaluation-only use.
func New(d *dedup.Deduper, disp Dispatcher, opts ...Option) *Pipeline {
	p := &Pipeline{
		dedup:      d,
		dispatcher: disp,
		log:        zap.NewNop(),
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Evaluate runs extraction, normalization and the gate. It has no side
// effects and never touches the deduplicator.
func Evaluate(t Turn) Outcome {
	cand, malformed := handoff.Extract(t.Raw)
	if cand == nil && !fence.HasMarker(t.Raw) {
		cand = handoff.Infer(t.UserMessage)
	}
	out := Outcome{Stage: StageNone, Candidate: cand, Malformed: malformed}
	if cand == nil {
		return out
	}

	rec := handoff.Normalize(*cand, handoff.NormalizeOptions{BrandEmails: t.Brand.Emails()})
	out.Record = &rec
	if out.Missing = handoff.Validate(rec); len(out.Missing) > 0 {
		out.Stage = StageRejected
		return out
	}
	out.Stage = StageAdmitted
	return out
}

// Process evaluates the turn and, when admitted and not a duplicate,
// dispatches it. Call it with a context detached from the request.
func (p *Pipeline) Process(ctx context.Context, t Turn) Outcome {
	log := logging.Conversation(p.log, t.ConversationID, t.Brand.Key)

	out := Evaluate(t)
	for _, err := range out.Malformed {
		log.Warn("malformed handoff candidate", zap.String("stage", "extract"), zap.Error(err))
	}

	if out.Candidate == nil {
		log.Debug("no handoff in turn",
			zap.String("stage", "extract"),
			zap.Bool("user_provided_contact", handoff.UserProvidedContactInfo(t.UserMessage)),
			zap.Bool("assistant_indicates_sending", handoff.AssistantIndicatesSending(fence.Strip(t.Raw))))
		if handoff.UserProvidedContactInfo(t.UserMessage) && handoff.AssistantIndicatesSending(fence.Strip(t.Raw)) {
			log.Warn("assistant claims to forward the request but emitted no handoff", zap.String("stage", "extract"))
		}
		return out
	}

	if out.Candidate.Source == handoff.SourceInferred {
		p.record(metrics.OutcomeInferred)
	} else {
		p.record(metrics.OutcomeExtracted)
	}

	if out.Stage == StageRejected {
		log.Info("handoff rejected by gate",
			zap.String("stage", "gate"),
			zap.String("source", string(out.Candidate.Source)),
			zap.Strings("missing", out.Missing))
		p.record(metrics.OutcomeRejected)
		return out
	}

	if p.dedup != nil {
		admitted, hash, err := p.dedup.Admit(t.ConversationID, out.Candidate.Payload)
		if err != nil {
			log.Error("hashing handoff payload", zap.String("stage", "dedup"), zap.Error(err))
			return out
		}
		out.Hash = hash
		if !admitted {
			out.Stage = StageDuplicate
			log.Info("duplicate handoff suppressed", zap.String("stage", "dedup"), zap.String("hash", hash))
			p.record(metrics.OutcomeDuplicate)
			return out
		}
	}

	if p.dispatcher != nil {
		out.Results = p.dispatcher.Dispatch(ctx, dispatch.Submission{
			ConversationID: t.ConversationID,
			VisitorID:      t.VisitorID,
			SessionID:      t.SessionID,
			Source:         t.Source,
			Meta:           t.Meta,
			Brand:          t.Brand,
			Kind:           out.Record.Kind,
			Origin:         out.Candidate.Source,
			Hash:           out.Hash,
			Record:         *out.Record,
			At:             p.now(),
		})
	}
	out.Stage = StageDispatched
	log.Info("handoff dispatched",
		zap.String("stage", "dispatch"),
		zap.String("source", string(out.Candidate.Source)),
		zap.Strings("placeholders", out.Record.Meeting.Filled))
	p.record(metrics.OutcomeDispatched)
	return out
}

func (p *Pipeline) record(outcome string) {
	if p.rec != nil {
		p.rec.RecordHandoff(outcome)
	}
}

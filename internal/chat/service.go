// Package chat runs conversation turns against the upstream agent, tees the
// reply through the fence filter and feeds finished turns to the handoff
// pipeline.
package chat

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/hurttlocker/intake/internal/config"
	"github.com/hurttlocker/intake/internal/llm"
	"github.com/hurttlocker/intake/internal/logging"
	"github.com/hurttlocker/intake/internal/pipeline"
	"github.com/hurttlocker/intake/internal/store"
	"github.com/hurttlocker/intake/internal/turn"
)

const (
	// DefaultRunTimeout bounds one agent turn.
	DefaultRunTimeout = 180 * time.Second
	// PipelineTimeout bounds the handoff pipeline after the reply is complete.
	PipelineTimeout = 30 * time.Second

	historyLimit  = 20
	emptyReply    = "(Yanıt metni bulunamadı)"
	transportPoll = "message"
	transportSSE  = "stream"
)

var (
	ErrUnknownBrand  = errors.New("unknown brand")
	ErrMissingParams = errors.New("thread id and message are required")
	ErrRunTimeout    = errors.New("agent run timed out")
)

// InitResult identifies a new conversation.
type InitResult struct {
	ThreadID string `json:"threadId"`
	BrandKey string `json:"brandKey,omitempty"`
}

// TurnRequest is one user message.
type TurnRequest struct {
	ThreadID  string
	Message   string
	BrandKey  string
	VisitorID string
	SessionID string
	Source    map[string]any
	Meta      map[string]any
}

// HandoffInfo is the part of a handoff echoed back to the widget.
type HandoffInfo struct {
	Kind string `json:"kind"`
}

// Reply is the result of a finished turn.
type Reply struct {
	ThreadID string
	Message  string
	Handoff  *HandoffInfo
	Outcome  pipeline.Outcome
}

// Recorder counts turns. *metrics.Collector satisfies it.
type Recorder interface {
	RecordTurn(transport string, err error)
}

// Config wires a Service.
type Config struct {
	Provider   llm.Provider
	Pipeline   *pipeline.Pipeline
	Store      store.Store // optional
	Brands     map[string]config.Brand
	Logger     *zap.Logger
	Metrics    Recorder
	RunTimeout time.Duration
	Now        func() time.Time
}

// Service handles conversation lifecycle and turns.
type Service struct {
	provider   llm.Provider
	pipeline   *pipeline.Pipeline
	store      store.Store
	brands     map[string]config.Brand
	log        *zap.Logger
	metrics    Recorder
	runTimeout time.Duration
	now        func() time.Time
}

func NewService(cfg Config) *Service {
	s := &Service{
		provider:   cfg.Provider,
		pipeline:   cfg.Pipeline,
		store:      cfg.Store,
		brands:     cfg.Brands,
		log:        cfg.Logger,
		metrics:    cfg.Metrics,
		runTimeout: cfg.RunTimeout,
		now:        cfg.Now,
	}
	if s.pipeline == nil {
		s.pipeline = pipeline.New(nil, nil)
	}
	if s.log == nil {
		s.log = zap.NewNop()
	}
	if s.runTimeout <= 0 {
		s.runTimeout = DefaultRunTimeout
	}
	if s.now == nil {
		s.now = time.Now
	}
	return s
}

// Brand looks up a whitelisted brand.
func (s *Service) Brand(key string) (config.Brand, bool) {
	b, ok := s.brands[strings.TrimSpace(key)]
	return b, ok
}

// Init creates a conversation. An empty brand key is allowed here; a
// non-empty one must be whitelisted.
func (s *Service) Init(ctx context.Context, brandKey string) (InitResult, error) {
	if brandKey != "" {
		if _, ok := s.Brand(brandKey); !ok {
			return InitResult{}, fmt.Errorf("%w: %q", ErrUnknownBrand, brandKey)
		}
	}
	res := InitResult{ThreadID: "thread_" + uuid.NewString(), BrandKey: brandKey}
	s.log.Info("conversation started", zap.String("conversation_id", res.ThreadID), zap.String("brand", brandKey))
	return res, nil
}

func (s *Service) resolve(req TurnRequest) (config.Brand, error) {
	if strings.TrimSpace(req.ThreadID) == "" || strings.TrimSpace(req.Message) == "" {
		return config.Brand{}, ErrMissingParams
	}
	b, ok := s.Brand(req.BrandKey)
	if !ok {
		return config.Brand{}, fmt.Errorf("%w: %q", ErrUnknownBrand, req.BrandKey)
	}
	return b, nil
}

// Message runs a turn and returns the sanitized reply in one piece.
func (s *Service) Message(ctx context.Context, req TurnRequest) (reply *Reply, err error) {
	defer func() { s.recordTurn(transportPoll, err) }()

	brand, err := s.resolve(req)
	if err != nil {
		return nil, err
	}
	log := logging.Conversation(s.log, req.ThreadID, brand.Key)

	llmReq := s.buildRequest(ctx, log, brand, req)
	s.logMessage(ctx, log, brand, req, llm.RoleUser, req.Message, "", nil)

	runCtx, cancel := context.WithTimeout(ctx, s.runTimeout)
	defer cancel()
	text, err := s.provider.Complete(runCtx, llmReq)
	if err != nil {
		if errors.Is(runCtx.Err(), context.DeadlineExceeded) && ctx.Err() == nil {
			return nil, fmt.Errorf("%w after %s", ErrRunTimeout, s.runTimeout)
		}
		return nil, fmt.Errorf("running turn: %w", err)
	}

	rec := turn.NewRecorder()
	rec.Push(text)
	_, tr := rec.Finish()
	return s.finish(ctx, log, brand, req, tr), nil
}

// Stream runs a turn and hands each sanitized fragment to emit as it becomes
// safe to show. If emit fails or ctx ends the turn is cut short, and the
// partial transcript still goes through the pipeline.
func (s *Service) Stream(ctx context.Context, req TurnRequest, emit func(string) error) (reply *Reply, err error) {
	defer func() { s.recordTurn(transportSSE, err) }()

	brand, err := s.resolve(req)
	if err != nil {
		return nil, err
	}
	log := logging.Conversation(s.log, req.ThreadID, brand.Key)

	llmReq := s.buildRequest(ctx, log, brand, req)
	s.logMessage(ctx, log, brand, req, llm.RoleUser, req.Message, "", nil)

	runCtx, cancel := context.WithTimeout(ctx, s.runTimeout)
	defer cancel()
	events, err := s.provider.Stream(runCtx, llmReq)
	if err != nil {
		return nil, fmt.Errorf("starting stream: %w", err)
	}

	rec := turn.NewRecorder()
	emitting := true
	for ev := range events {
		if ev.Err != nil {
			return nil, fmt.Errorf("streaming turn: %w", ev.Err)
		}
		out := rec.Push(ev.Text)
		if out == "" || !emitting {
			continue
		}
		if err := emit(out); err != nil {
			log.Info("client went away mid-stream", zap.Error(err))
			emitting = false
			cancel()
		}
	}
	if errors.Is(runCtx.Err(), context.DeadlineExceeded) && ctx.Err() == nil {
		return nil, fmt.Errorf("%w after %s", ErrRunTimeout, s.runTimeout)
	}

	tail, tr := rec.Finish()
	if tail != "" && emitting {
		if err := emit(tail); err != nil {
			log.Info("client went away before the tail", zap.Error(err))
		}
	}
	if tr.Tripped {
		log.Debug("handoff marker cut the visible reply", zap.Int("fragments", tr.Fragments))
	}
	return s.finish(ctx, log, brand, req, tr), nil
}

// finish runs the pipeline on a completed transcript and logs the reply.
// The pipeline and the log writes outlive a cancelled request.
func (s *Service) finish(ctx context.Context, log *zap.Logger, brand config.Brand, req TurnRequest, tr turn.Transcript) *Reply {
	detached, cancel := context.WithTimeout(context.WithoutCancel(ctx), PipelineTimeout)
	defer cancel()

	out := s.pipeline.Process(detached, pipeline.Turn{
		ConversationID: req.ThreadID,
		VisitorID:      req.VisitorID,
		SessionID:      req.SessionID,
		Source:         req.Source,
		Meta:           req.Meta,
		Brand:          brand,
		UserMessage:    req.Message,
		Raw:            tr.Raw,
	})

	visible := strings.TrimSpace(tr.Visible)
	reply := &Reply{ThreadID: req.ThreadID, Message: visible, Outcome: out}
	if reply.Message == "" {
		reply.Message = emptyReply
	}

	var ref *store.HandoffRef
	switch out.Stage {
	case pipeline.StageDispatched, pipeline.StageDuplicate:
		reply.Handoff = &HandoffInfo{Kind: out.Record.Kind}
		ref = &store.HandoffRef{
			Kind:        out.Record.Kind,
			Payload:     out.Record,
			MeetingMode: out.Record.Meeting.Mode,
			MeetingDate: out.Record.Meeting.Date,
			MeetingTime: out.Record.Meeting.Time,
		}
	}
	s.logMessage(detached, log, brand, req, llm.RoleAssistant, visible, tr.Raw, ref)
	return reply
}

func (s *Service) buildRequest(ctx context.Context, log *zap.Logger, brand config.Brand, req TurnRequest) llm.Request {
	return llm.Request{
		System:   config.BuildRunInstructions(brand, s.now()),
		Messages: append(s.history(ctx, log, req.ThreadID), llm.Message{Role: llm.RoleUser, Content: req.Message}),
		Model:    brand.Model,
	}
}

// history returns the most recent logged turns of a thread.
func (s *Service) history(ctx context.Context, log *zap.Logger, threadID string) []llm.Message {
	if s.store == nil {
		return nil
	}
	msgs, err := s.store.ListMessages(ctx, threadID, 0)
	if err != nil {
		log.Warn("loading history", zap.Error(err))
		return nil
	}
	if len(msgs) > historyLimit {
		msgs = msgs[len(msgs)-historyLimit:]
	}
	out := make([]llm.Message, 0, len(msgs))
	for _, m := range msgs {
		if m.Text == "" || (m.Role != llm.RoleUser && m.Role != llm.RoleAssistant) {
			continue
		}
		out = append(out, llm.Message{Role: m.Role, Content: m.Text})
	}
	return out
}

func (s *Service) logMessage(ctx context.Context, log *zap.Logger, brand config.Brand, req TurnRequest, role, text, raw string, ref *store.HandoffRef) {
	if s.store == nil {
		return
	}
	_, err := s.store.LogMessage(ctx, &store.MessageLog{
		BrandKey:  brand.Key,
		ThreadID:  req.ThreadID,
		VisitorID: req.VisitorID,
		SessionID: req.SessionID,
		Source:    req.Source,
		Role:      role,
		Text:      text,
		RawText:   raw,
		Meta:      req.Meta,
		Handoff:   ref,
	})
	if err != nil {
		log.Warn("logging message", zap.String("role", role), zap.Error(err))
	}
}

func (s *Service) recordTurn(transport string, err error) {
	if s.metrics != nil {
		s.metrics.RecordTurn(transport, err)
	}
}

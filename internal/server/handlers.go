package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/hurttlocker/intake/internal/chat"
)

type initRequest struct {
	BrandKey string `json:"brandKey"`
}

type turnRequest struct {
	ThreadID  string         `json:"threadId" validate:"required"`
	Message   string         `json:"message" validate:"required"`
	BrandKey  string         `json:"brandKey"`
	VisitorID string         `json:"visitorId"`
	SessionID string         `json:"sessionId"`
	Source    map[string]any `json:"source"`
	Meta      map[string]any `json:"meta"`
}

func (t turnRequest) toChat() chat.TurnRequest {
	return chat.TurnRequest{
		ThreadID:  strings.TrimSpace(t.ThreadID),
		Message:   t.Message,
		BrandKey:  strings.TrimSpace(t.BrandKey),
		VisitorID: t.VisitorID,
		SessionID: t.SessionID,
		Source:    t.Source,
		Meta:      t.Meta,
	}
}

type messageResponse struct {
	Status   string            `json:"status"`
	ThreadID string            `json:"threadId"`
	Message  string            `json:"message"`
	Handoff  *chat.HandoffInfo `json:"handoff"`
}

func (s *Server) handleInit(w http.ResponseWriter, r *http.Request) {
	var req initRequest
	if r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "bad_request", "invalid JSON body")
			return
		}
	}
	if req.BrandKey == "" {
		req.BrandKey = r.URL.Query().Get("brandKey")
	}

	res, err := s.chat.Init(r.Context(), strings.TrimSpace(req.BrandKey))
	if err != nil {
		s.writeChatError(w, err, "init_failed")
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (s *Server) decodeTurn(w http.ResponseWriter, r *http.Request) (chat.TurnRequest, bool) {
	var req turnRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", "invalid JSON body")
		return chat.TurnRequest{}, false
	}
	if err := s.validate.Struct(req); err != nil {
		writeError(w, http.StatusBadRequest, "missing_params", "threadId and message are required")
		return chat.TurnRequest{}, false
	}
	out := req.toChat()
	if _, ok := s.chat.Brand(out.BrandKey); !ok {
		writeError(w, http.StatusForbidden, "unknown_brand", "brandKey not allowed or missing")
		return chat.TurnRequest{}, false
	}
	return out, true
}

func (s *Server) handleMessage(w http.ResponseWriter, r *http.Request) {
	req, ok := s.decodeTurn(w, r)
	if !ok {
		return
	}
	reply, err := s.chat.Message(r.Context(), req)
	if err != nil {
		s.writeChatError(w, err, "message_failed")
		return
	}
	writeJSON(w, http.StatusOK, messageResponse{
		Status:   "ok",
		ThreadID: reply.ThreadID,
		Message:  reply.Message,
		Handoff:  reply.Handoff,
	})
}

// sseWriter serializes event and keep-alive writes on one response.
type sseWriter struct {
	mu      sync.Mutex
	w       http.ResponseWriter
	flusher http.Flusher
}

func (sw *sseWriter) write(frame string) error {
	sw.mu.Lock()
	defer sw.mu.Unlock()
	if _, err := fmt.Fprint(sw.w, frame); err != nil {
		return err
	}
	sw.flusher.Flush()
	return nil
}

func (sw *sseWriter) data(v any) error {
	b, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return sw.write("data: " + string(b) + "\n\n")
}

func (s *Server) handleStream(w http.ResponseWriter, r *http.Request) {
	req, ok := s.decodeTurn(w, r)
	if !ok {
		return
	}
	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, http.StatusInternalServerError, "stream_failed", "streaming unsupported")
		return
	}

	h := w.Header()
	h.Set("Content-Type", "text/event-stream")
	h.Set("Cache-Control", "no-cache, no-transform")
	h.Set("Connection", "keep-alive")
	h.Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	sw := &sseWriter{w: w, flusher: flusher}

	stop := make(chan struct{})
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		ticker := time.NewTicker(s.keepAlive)
		defer ticker.Stop()
		for {
			select {
			case <-stop:
				return
			case <-r.Context().Done():
				return
			case t := <-ticker.C:
				if err := sw.write(fmt.Sprintf(": keep-alive %d\n\n", t.UnixMilli())); err != nil {
					return
				}
			}
		}
	}()

	reply, err := s.chat.Stream(r.Context(), req, func(text string) error {
		return sw.data(map[string]string{"delta": text})
	})
	close(stop)
	wg.Wait()

	if err != nil {
		s.log.Error("stream turn failed",
			zap.String("conversation_id", req.ThreadID),
			zap.String("brand", req.BrandKey),
			zap.Error(err))
		sw.data(map[string]string{"error": "stream_failed"})
	} else if reply.Handoff != nil {
		sw.data(map[string]any{"handoff": reply.Handoff})
	}
	sw.write("data: [DONE]\n\n")
}

func (s *Server) writeChatError(w http.ResponseWriter, err error, fallback string) {
	switch {
	case errors.Is(err, chat.ErrMissingParams):
		writeError(w, http.StatusBadRequest, "missing_params", "threadId and message are required")
	case errors.Is(err, chat.ErrUnknownBrand):
		writeError(w, http.StatusForbidden, "unknown_brand", "brandKey not allowed")
	case errors.Is(err, chat.ErrRunTimeout):
		writeError(w, http.StatusGatewayTimeout, "run_timeout", "agent did not answer in time")
	default:
		s.log.Error("chat request failed", zap.String("error_code", fallback), zap.Error(err))
		writeError(w, http.StatusBadGateway, fallback, "upstream agent failed")
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code, detail string) {
	writeJSON(w, status, map[string]string{"error": code, "detail": detail})
}

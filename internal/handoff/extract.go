package handoff

import (
	"bytes"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"regexp"
	"strings"
)

// maxUnwrapDepth bounds how many {kind, payload} wrappers are peeled off.
const maxUnwrapDepth = 2

var (
	genericFenceRe = regexp.MustCompile("(?s)```(.*?)```")
	langTagRe      = regexp.MustCompile(`^[A-Za-z0-9_-]*\s*`)
	kindKeyRe      = regexp.MustCompile(`(?i)"?(?:handoff|kind|type)"?\s*:`)
	taggedFenceRe  = regexp.MustCompile("(?is)```handoff\\s*(.*?)```")
	xmlTagRe       = regexp.MustCompile(`(?is)<handoff>\s*(.*?)\s*</handoff>`)
	base64BlockRe  = regexp.MustCompile(`(?is)\[\[HANDOFF:\s*base64\]\]\s*(.*?)\s*\[\[/HANDOFF\]\]`)
)

var (
	errNotObject    = errors.New("not a JSON object")
	errTrailingData = errors.New("trailing data after JSON value")
)

// Extract recovers a handoff candidate from a raw agent transcript.
//
// Encodings are tried in order: generic fenced blocks carrying a kind key,
// a fence tagged "handoff", <handoff> tags, then [[HANDOFF: base64]]
// envelopes. The first one that decodes to a JSON object wins. When nothing
// parses the candidate is nil; every encoding that was present but failed
// is reported in the returned slice.
func Extract(text string) (*Candidate, []error) {
	if strings.TrimSpace(text) == "" {
		return nil, nil
	}
	var malformed []error

	for _, m := range genericFenceRe.FindAllStringSubmatch(text, -1) {
		inner := strings.TrimSpace(langTagRe.ReplaceAllString(m[1], ""))
		if inner == "" || !kindKeyRe.MatchString(inner) {
			continue
		}
		obj, err := decodeObject([]byte(inner))
		if err != nil {
			malformed = append(malformed, &MalformedError{Source: SourceFence, Err: err})
			continue
		}
		return candidateFrom(obj, SourceFence), malformed
	}

	if m := taggedFenceRe.FindStringSubmatch(text); m != nil {
		obj, err := decodeObject([]byte(strings.TrimSpace(m[1])))
		if err == nil {
			return candidateFrom(obj, SourceTaggedFence), malformed
		}
		malformed = append(malformed, &MalformedError{Source: SourceTaggedFence, Err: err})
	}

	if m := xmlTagRe.FindStringSubmatch(text); m != nil {
		obj, err := decodeObject([]byte(m[1]))
		if err == nil {
			return candidateFrom(obj, SourceTag), malformed
		}
		malformed = append(malformed, &MalformedError{Source: SourceTag, Err: err})
	}

	if m := base64BlockRe.FindStringSubmatch(text); m != nil {
		raw, err := base64.StdEncoding.DecodeString(spaceRe.ReplaceAllString(m[1], ""))
		if err != nil {
			malformed = append(malformed, &MalformedError{Source: SourceBase64, Err: fmt.Errorf("decoding base64: %w", err)})
			return nil, malformed
		}
		obj, err := decodeObject(raw)
		if err == nil {
			return candidateFrom(obj, SourceBase64), malformed
		}
		malformed = append(malformed, &MalformedError{Source: SourceBase64, Err: err})
	}

	return nil, malformed
}

// decodeObject parses a JSON object keeping numbers as json.Number, so a
// phone written as a bare number keeps all of its digits.
func decodeObject(b []byte) (map[string]any, error) {
	dec := json.NewDecoder(bytes.NewReader(b))
	dec.UseNumber()
	var v any
	if err := dec.Decode(&v); err != nil {
		return nil, fmt.Errorf("parsing JSON: %w", err)
	}
	if _, err := dec.Token(); err != io.EOF {
		return nil, errTrailingData
	}
	obj, ok := v.(map[string]any)
	if !ok {
		return nil, errNotObject
	}
	return obj, nil
}

func candidateFrom(obj map[string]any, src Source) *Candidate {
	kind := kindOf(obj)
	payload := obj
	for depth := 0; depth < maxUnwrapDepth; depth++ {
		inner, ok := payload["payload"].(map[string]any)
		if !ok {
			break
		}
		// Below the top level only explicit wrappers are peeled.
		if depth > 0 && kindOf(payload) == "" {
			break
		}
		payload = inner
		if kind == "" {
			kind = kindOf(payload)
		}
	}
	return &Candidate{Kind: canonicalKind(kind), Payload: payload, Source: src}
}

func kindOf(obj map[string]any) string {
	for _, key := range []string{"handoff", "kind", "type"} {
		if s, ok := obj[key].(string); ok && strings.TrimSpace(s) != "" {
			return strings.TrimSpace(s)
		}
	}
	return ""
}

func canonicalKind(kind string) string {
	switch kind {
	case "", "reservation", "reservation_request":
		return KindCustomerRequest
	}
	return kind
}

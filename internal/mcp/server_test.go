package mcp

import (
	"context"
	"encoding/json"
	"strings"
	"testing"

	"github.com/mark3labs/mcp-go/server"

	"github.com/hurttlocker/intake/internal/config"
	"github.com/hurttlocker/intake/internal/store"
)

const sampleTranscript = "Talebinizi iletiyorum.\n```json\n" +
	`{"handoff":"customer_request","payload":{"contact":{"name":"Ali Veli","phone":"+905551112233","email":"info@demo.com"},` +
	`"request":{"summary":"Boşanma davası"},"preferred_meeting":{"mode":"online","date":"2025-01-15","time":"14:00"}}}` +
	"\n```"

func setupTestStore(t *testing.T) store.Store {
	t.Helper()
	s, err := store.NewStore(store.StoreConfig{DBPath: ":memory:"})
	if err != nil {
		t.Fatalf("creating test store: %v", err)
	}
	t.Cleanup(func() { s.Close() })

	if _, err := s.SaveHandoff(context.Background(), &store.Handoff{
		ThreadID: "thread_1",
		BrandKey: "demo",
		Kind:     "customer_request",
		Hash:     "h1",
		Record:   `{"kind":"customer_request","contact":{"name":"Ali Veli"}}`,
		Source:   "fence",
	}); err != nil {
		t.Fatalf("saving handoff: %v", err)
	}
	return s
}

func newTestServer(t *testing.T) *server.MCPServer {
	t.Helper()
	return NewServer(ServerConfig{
		Store:  setupTestStore(t),
		Brands: map[string]config.Brand{"demo": {Key: "demo", ContactEmail: "info@demo.com"}},
	})
}

type toolResult struct {
	Text    string
	IsError bool
}

// callTool invokes a tool through the JSON-RPC entry point.
func callTool(t *testing.T, srv *server.MCPServer, name string, args map[string]any) toolResult {
	t.Helper()

	raw, err := json.Marshal(map[string]any{
		"jsonrpc": "2.0",
		"id":      1,
		"method":  "tools/call",
		"params":  map[string]any{"name": name, "arguments": args},
	})
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	respBytes, err := json.Marshal(srv.HandleMessage(context.Background(), raw))
	if err != nil {
		t.Fatalf("marshal response: %v", err)
	}

	var resp struct {
		Result struct {
			Content []struct {
				Type string `json:"type"`
				Text string `json:"text"`
			} `json:"content"`
			IsError bool `json:"isError"`
		} `json:"result"`
		Error *struct {
			Code    int    `json:"code"`
			Message string `json:"message"`
		} `json:"error"`
	}
	if err := json.Unmarshal(respBytes, &resp); err != nil {
		t.Fatalf("unmarshal response: %v\nraw: %s", err, respBytes)
	}
	if resp.Error != nil {
		t.Fatalf("JSON-RPC error: %d %s", resp.Error.Code, resp.Error.Message)
	}

	out := toolResult{IsError: resp.Result.IsError}
	for _, c := range resp.Result.Content {
		if c.Type == "text" {
			out.Text += c.Text
		}
	}
	return out
}

func TestExtractTool(t *testing.T) {
	srv := newTestServer(t)

	res := callTool(t, srv, "handoff_extract", map[string]any{"text": sampleTranscript, "brand": "demo"})
	if res.IsError {
		t.Fatalf("unexpected error: %s", res.Text)
	}

	var got struct {
		Stage   string `json:"stage"`
		Kind    string `json:"kind"`
		Source  string `json:"source"`
		Visible string `json:"visible"`
		Record  struct {
			Contact struct {
				Name  string `json:"name"`
				Email string `json:"email"`
			} `json:"contact"`
		} `json:"record"`
	}
	if err := json.Unmarshal([]byte(res.Text), &got); err != nil {
		t.Fatalf("decoding result: %v\n%s", err, res.Text)
	}
	if got.Stage != "admitted" || got.Kind != "customer_request" || got.Source != "fence" {
		t.Fatalf("unexpected result %+v", got)
	}
	if got.Record.Contact.Name != "Ali Veli" || got.Record.Contact.Email != "" {
		t.Fatalf("unexpected contact %+v", got.Record.Contact)
	}
	if strings.Contains(got.Visible, "handoff") {
		t.Fatalf("visible text leaks the handoff: %q", got.Visible)
	}
}

func TestExtractToolUnknownBrand(t *testing.T) {
	res := callTool(t, newTestServer(t), "handoff_extract", map[string]any{"text": "x", "brand": "nope"})
	if !res.IsError {
		t.Fatal("expected tool error for unknown brand")
	}
}

func TestExtractToolInfers(t *testing.T) {
	res := callTool(t, newTestServer(t), "handoff_extract", map[string]any{
		"text":         "Teşekkürler, sizi arayacağız.",
		"user_message": "İletişim: Ali Veli, 0555 111 22 33\nKira artışı için görüşmek istiyorum.",
	})
	if !strings.Contains(res.Text, `"source": "inferred"`) {
		t.Fatalf("expected inferred candidate, got %s", res.Text)
	}
}

func TestStripTool(t *testing.T) {
	res := callTool(t, newTestServer(t), "fence_strip", map[string]any{"text": sampleTranscript})
	if res.IsError {
		t.Fatalf("unexpected error: %s", res.Text)
	}
	if strings.TrimSpace(res.Text) != "Talebinizi iletiyorum." {
		t.Fatalf("got %q", res.Text)
	}
}

func TestRecentAndStatusTools(t *testing.T) {
	srv := newTestServer(t)

	res := callTool(t, srv, "handoff_recent", map[string]any{"limit": 5})
	var list struct {
		Count    int `json:"count"`
		Handoffs []struct {
			ID     int64          `json:"id"`
			Status string         `json:"status"`
			Record map[string]any `json:"record"`
		} `json:"handoffs"`
	}
	if err := json.Unmarshal([]byte(res.Text), &list); err != nil {
		t.Fatalf("decoding: %v\n%s", err, res.Text)
	}
	if list.Count != 1 || list.Handoffs[0].Status != store.StatusNew {
		t.Fatalf("unexpected list %+v", list)
	}
	if list.Handoffs[0].Record["kind"] != "customer_request" {
		t.Fatalf("record not embedded as JSON: %+v", list.Handoffs[0].Record)
	}

	id := list.Handoffs[0].ID
	res = callTool(t, srv, "handoff_set_status", map[string]any{"id": id, "status": "CONTACTED", "notes": "arandı"})
	if res.IsError {
		t.Fatalf("set status: %s", res.Text)
	}
	res = callTool(t, srv, "handoff_recent", map[string]any{})
	if !strings.Contains(res.Text, `"status": "CONTACTED"`) || !strings.Contains(res.Text, "arandı") {
		t.Fatalf("status not updated: %s", res.Text)
	}

	res = callTool(t, srv, "handoff_set_status", map[string]any{"id": 999, "status": "CLOSED"})
	if !res.IsError || !strings.Contains(res.Text, "not found") {
		t.Fatalf("expected not found, got %+v", res)
	}
}

func TestStatsResource(t *testing.T) {
	srv := newTestServer(t)
	raw, _ := json.Marshal(map[string]any{
		"jsonrpc": "2.0",
		"id":      2,
		"method":  "resources/read",
		"params":  map[string]any{"uri": "intake://stats"},
	})
	out, _ := json.Marshal(srv.HandleMessage(context.Background(), raw))
	if !strings.Contains(string(out), `\"handoffs\": 1`) {
		t.Fatalf("unexpected stats response: %s", out)
	}
}

func TestNewServerWithoutStore(t *testing.T) {
	srv := NewServer(ServerConfig{})
	res := callTool(t, srv, "fence_strip", map[string]any{"text": "Merhaba"})
	if res.Text != "Merhaba" {
		t.Fatalf("got %q", res.Text)
	}
}

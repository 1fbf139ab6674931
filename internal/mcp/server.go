// Package mcp provides a Model Context Protocol server for intake operators.
//
// It exposes the side-effect-free parts of the handoff pipeline (extract,
// strip) and the admitted handoff log as MCP tools, and store counts as a
// resource. Served over stdio.
package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/hurttlocker/intake/internal/config"
	"github.com/hurttlocker/intake/internal/fence"
	"github.com/hurttlocker/intake/internal/pipeline"
	"github.com/hurttlocker/intake/internal/store"
)

// ServerConfig holds configuration for the MCP server.
type ServerConfig struct {
	Store   store.Store // optional; handoff tools are skipped without it
	Brands  map[string]config.Brand
	Version string
}

// dbMu serializes tool calls that touch the database. mcp-go runs
// handlers concurrently.
var dbMu sync.Mutex

// NewServer creates a configured MCP server with all intake tools.
func NewServer(cfg ServerConfig) *server.MCPServer {
	ver := cfg.Version
	if ver == "" {
		ver = "dev"
	}

	s := server.NewMCPServer(
		"Intake",
		ver,
		server.WithToolCapabilities(false),
		server.WithResourceCapabilities(true, false),
	)

	registerExtractTool(s, cfg.Brands)
	registerStripTool(s)
	if cfg.Store != nil {
		registerRecentTool(s, cfg.Store)
		registerStatusTool(s, cfg.Store)
		registerStatsResource(s, cfg.Store)
	}
	return s
}

// Serve runs the server on stdin/stdout until the client disconnects.
func Serve(s *server.MCPServer) error {
	return server.ServeStdio(s)
}

func registerExtractTool(s *server.MCPServer, brands map[string]config.Brand) {
	tool := mcp.NewTool("handoff_extract",
		mcp.WithDescription("Run handoff extraction, normalization and the admission gate on an agent transcript. Returns the candidate, the normalized record and the missing predicates. Nothing is dispatched."),
		mcp.WithReadOnlyHintAnnotation(true),
		mcp.WithDestructiveHintAnnotation(false),
		mcp.WithString("text",
			mcp.Required(),
			mcp.Description("Raw assistant transcript"),
		),
		mcp.WithString("user_message",
			mcp.Description("User message of the same turn, used for inference when the transcript has no handoff"),
		),
		mcp.WithString("brand",
			mcp.Description("Brand key; its addresses are scrubbed from the customer email"),
		),
	)

	s.AddTool(tool, func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		text, err := req.RequireString("text")
		if err != nil {
			return mcp.NewToolResultError("text is required"), nil
		}
		userMessage, _ := req.RequireString("user_message")

		var brand config.Brand
		if key, err := req.RequireString("brand"); err == nil && key != "" {
			b, ok := brands[key]
			if !ok {
				return mcp.NewToolResultError(fmt.Sprintf("unknown brand %q", key)), nil
			}
			brand = b
		}

		data, _ := json.MarshalIndent(pipeline.Explain(pipeline.Turn{Brand: brand, Raw: text, UserMessage: userMessage}), "", "  ")
		return mcp.NewToolResultText(string(data)), nil
	})
}

func registerStripTool(s *server.MCPServer) {
	tool := mcp.NewTool("fence_strip",
		mcp.WithDescription("Return the text a visitor would see for a transcript: fenced blocks removed and everything from a handoff key onward cut."),
		mcp.WithReadOnlyHintAnnotation(true),
		mcp.WithDestructiveHintAnnotation(false),
		mcp.WithString("text",
			mcp.Required(),
			mcp.Description("Raw assistant transcript"),
		),
	)

	s.AddTool(tool, func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		text, err := req.RequireString("text")
		if err != nil {
			return mcp.NewToolResultError("text is required"), nil
		}
		return mcp.NewToolResultText(fence.Strip(text)), nil
	})
}

type handoffView struct {
	ID        int64           `json:"id"`
	ThreadID  string          `json:"thread_id"`
	Brand     string          `json:"brand"`
	Kind      string          `json:"kind"`
	Source    string          `json:"source"`
	Status    string          `json:"status"`
	Notes     string          `json:"notes,omitempty"`
	CreatedAt string          `json:"created_at"`
	Record    json.RawMessage `json:"record"`
}

func registerRecentTool(s *server.MCPServer, st store.Store) {
	tool := mcp.NewTool("handoff_recent",
		mcp.WithDescription("List the most recently admitted handoffs, newest first, with their admin status."),
		mcp.WithReadOnlyHintAnnotation(true),
		mcp.WithDestructiveHintAnnotation(false),
		mcp.WithNumber("limit",
			mcp.Description("Maximum number of handoffs (default: 10, max: 100)"),
		),
	)

	s.AddTool(tool, func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		dbMu.Lock()
		defer dbMu.Unlock()

		limit := 10
		if v, err := req.RequireFloat("limit"); err == nil {
			limit = int(v)
			if limit > 100 {
				limit = 100
			}
			if limit <= 0 {
				limit = 10
			}
		}

		rows, err := st.RecentHandoffs(ctx, limit)
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("listing handoffs: %v", err)), nil
		}
		views := make([]handoffView, 0, len(rows))
		for _, h := range rows {
			record := json.RawMessage(h.Record)
			if !json.Valid(record) {
				record = json.RawMessage("null")
			}
			views = append(views, handoffView{
				ID:        h.ID,
				ThreadID:  h.ThreadID,
				Brand:     h.BrandKey,
				Kind:      h.Kind,
				Source:    h.Source,
				Status:    h.AdminStatus,
				Notes:     h.AdminNotes,
				CreatedAt: h.CreatedAt.UTC().Format("2006-01-02T15:04:05Z"),
				Record:    record,
			})
		}
		data, _ := json.MarshalIndent(map[string]any{"handoffs": views, "count": len(views)}, "", "  ")
		return mcp.NewToolResultText(string(data)), nil
	})
}

func registerStatusTool(s *server.MCPServer, st store.Store) {
	tool := mcp.NewTool("handoff_set_status",
		mcp.WithDescription("Set the admin status of a handoff (NEW, CONTACTED, CLOSED) with optional notes."),
		mcp.WithReadOnlyHintAnnotation(false),
		mcp.WithDestructiveHintAnnotation(false),
		mcp.WithNumber("id",
			mcp.Required(),
			mcp.Description("Handoff id from handoff_recent"),
		),
		mcp.WithString("status",
			mcp.Required(),
			mcp.Description("New status"),
			mcp.Enum(store.StatusNew, store.StatusContacted, store.StatusClosed),
		),
		mcp.WithString("notes",
			mcp.Description("Free-form admin notes"),
		),
	)

	s.AddTool(tool, func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		dbMu.Lock()
		defer dbMu.Unlock()

		id, err := req.RequireFloat("id")
		if err != nil {
			return mcp.NewToolResultError("id is required"), nil
		}
		status, err := req.RequireString("status")
		if err != nil {
			return mcp.NewToolResultError("status is required"), nil
		}
		notes, _ := req.RequireString("notes")

		if err := st.SetHandoffStatus(ctx, int64(id), status, notes); err != nil {
			if errors.Is(err, store.ErrNotFound) {
				return mcp.NewToolResultError(fmt.Sprintf("handoff %d not found", int64(id))), nil
			}
			return mcp.NewToolResultError(err.Error()), nil
		}
		return mcp.NewToolResultText(fmt.Sprintf("handoff %d set to %s", int64(id), status)), nil
	})
}

func registerStatsResource(s *server.MCPServer, st store.Store) {
	resource := mcp.NewResource(
		"intake://stats",
		"Intake Stats",
		mcp.WithResourceDescription("Row counts for conversations, messages and handoffs."),
		mcp.WithMIMEType("application/json"),
	)

	s.AddResource(resource, func(ctx context.Context, req mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
		dbMu.Lock()
		defer dbMu.Unlock()

		stats, err := st.Stats(ctx)
		if err != nil {
			return nil, fmt.Errorf("reading stats: %w", err)
		}
		data, _ := json.MarshalIndent(map[string]int64{
			"conversations": stats.Conversations,
			"messages":      stats.Messages,
			"handoffs":      stats.Handoffs,
		}, "", "  ")
		return []mcp.ResourceContents{
			mcp.TextResourceContents{URI: req.Params.URI, MIMEType: "application/json", Text: string(data)},
		}, nil
	})
}

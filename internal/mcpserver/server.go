// Package mcpserver provides an MCP (Model Context Protocol) server
// that exposes Perthro deck tools for LLM integration via stdio transport.
package mcpserver

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/starford/perthro/internal/engine"
	"github.com/starford/perthro/internal/history"
	"github.com/starford/perthro/internal/version"
)

// Server wraps the MCP server with Perthro tools.
type Server struct {
	mcp *server.MCPServer
	eng *engine.Engine
	db  history.RunStore
}

// New creates a new MCP server with all Perthro tools registered.
// db may be nil; validation then runs without recording history.
func New(eng *engine.Engine, db history.RunStore) *Server {
	s := &Server{eng: eng, db: db}

	s.mcp = server.NewMCPServer(
		"Perthro",
		"1.0.0",
		server.WithToolCapabilities(false),
		server.WithResourceCapabilities(false, false),
	)

	s.mcp.AddTool(mcp.NewTool("validate_deck",
		mcp.WithDescription("Run a full conformance pass over a flashcard deck. "+
			"Pass previous_root to diff against an earlier revision and check the "+
			"declared version bump. Decks MUST follow the canonical deck format; "+
			"read the contract first via the get_deck_contract tool or the "+
			"perthro://deck-format resource."),
		mcp.WithString("root", mcp.Required(), mcp.Description("Path to the deck root (folder ending in .deck)")),
		mcp.WithString("previous_root", mcp.Description("Optional path to the previous revision's deck root")),
		mcp.WithString("previous_version", mcp.Description("Declared MAJOR.MINOR of the previous revision, e.g. 1.2")),
		mcp.WithString("current_version", mcp.Description("Declared MAJOR.MINOR of this revision, e.g. 2.0")),
	), s.validateDeck)

	s.mcp.AddTool(mcp.NewTool("get_deck_contract",
		mcp.WithDescription("Returns the canonical Perthro deck format contract. "+
			"Call this before authoring or editing deck content to ensure correct structure."),
	), s.getDeckContract)

	s.mcp.AddTool(mcp.NewTool("list_runs",
		mcp.WithDescription("List recorded validation runs, newest first."),
		mcp.WithNumber("limit", mcp.Description("Maximum number of runs to return (default 20)")),
	), s.listRuns)

	s.mcp.AddTool(mcp.NewTool("get_run",
		mcp.WithDescription("Fetch one recorded validation run with its findings."),
		mcp.WithNumber("id", mcp.Required(), mcp.Description("Run id as returned by validate_deck or list_runs")),
	), s.getRun)

	// Resource: deck format contract.
	s.mcp.AddResource(
		mcp.NewResource("perthro://deck-format", "Deck Format Contract",
			mcp.WithResourceDescription("Canonical flashcard deck layout and card-file grammar."),
			mcp.WithMIMEType("text/markdown"),
		),
		s.readDeckFormatResource,
	)

	return s
}

// ServeStdio starts the MCP server on stdin/stdout.
func (s *Server) ServeStdio() error {
	return server.ServeStdio(s.mcp)
}

// MCPServer returns the underlying server for testing.
func (s *Server) MCPServer() *server.MCPServer {
	return s.mcp
}

func (s *Server) validateDeck(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	root, err := req.RequireString("root")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	p := engine.Params{
		CurrentRoot:  root,
		PreviousRoot: req.GetString("previous_root", ""),
	}
	if raw := req.GetString("previous_version", ""); raw != "" {
		if p.PreviousVersion, err = version.Parse(raw); err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
	}
	if raw := req.GetString("current_version", ""); raw != "" {
		if p.CurrentVersion, err = version.Parse(raw); err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
	}

	res, err := s.eng.Validate(ctx, p)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	if s.db != nil {
		_, _ = s.db.Record(history.FromReport(res.Report, p.PreviousRoot))
	}

	out, _ := json.MarshalIndent(res, "", "  ")
	return mcp.NewToolResultText(string(out)), nil
}

func (s *Server) listRuns(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	if s.db == nil {
		return mcp.NewToolResultError("run history is not configured"), nil
	}
	limit := req.GetInt("limit", 20)
	runs, total, err := s.db.ListRuns(limit, 0)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	out, _ := json.MarshalIndent(map[string]any{"runs": runs, "total": total}, "", "  ")
	return mcp.NewToolResultText(string(out)), nil
}

func (s *Server) getRun(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	if s.db == nil {
		return mcp.NewToolResultError("run history is not configured"), nil
	}
	id, err := req.RequireInt("id")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	run, err := s.db.GetRun(int64(id))
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("run %d: %v", id, err)), nil
	}
	out, _ := json.MarshalIndent(run, "", "  ")
	return mcp.NewToolResultText(string(out)), nil
}

func (s *Server) getDeckContract(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return mcp.NewToolResultText(DeckFormatContract), nil
}

func (s *Server) readDeckFormatResource(ctx context.Context, req mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
	return []mcp.ResourceContents{
		mcp.TextResourceContents{
			URI:      "perthro://deck-format",
			MIMEType: "text/markdown",
			Text:     DeckFormatContract,
		},
	}, nil
}

// Package mcpserver provides an MCP (Model Context Protocol) server
// that exposes mocsync tools for LLM integration via stdio transport.
package mcpserver

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/starford/mocsync/internal/apperr"
	"github.com/starford/mocsync/internal/mocservice"
)

const namingURI = "mocsync://naming"

// Server wraps the MCP server with mocsync tools.
type Server struct {
	mcp *server.MCPServer
	svc *mocservice.Service
}

// New creates a new MCP server with all mocsync tools registered.
func New(svc *mocservice.Service, version string) *Server {
	s := &Server{svc: svc}

	s.mcp = server.NewMCPServer(
		"mocsync",
		version,
		server.WithToolCapabilities(false),
		server.WithResourceCapabilities(false, false),
	)

	s.mcp.AddTool(mcp.NewTool("list_index_files",
		mcp.WithDescription("List every registered index note (MOC) with its prefix."),
	), s.listIndexFiles)

	s.mcp.AddTool(mcp.NewTool("resolve_prefix",
		mcp.WithDescription("Find the index note that owns a prefix."),
		mcp.WithString("prefix", mcp.Required(), mcp.Description("Note prefix, e.g. Projects")),
	), s.resolvePrefix)

	s.mcp.AddTool(mcp.NewTool("classify_name",
		mcp.WithDescription("Report whether a file name is an index note and which prefix it carries. "+
			"See the mocsync://naming resource for the rules."),
		mcp.WithString("name", mcp.Required(), mcp.Description("Note file name, with or without .md")),
	), s.classifyName)

	s.mcp.AddTool(mcp.NewTool("index_links",
		mcp.WithDescription("List the wikilinks held by the index note for a prefix."),
		mcp.WithString("prefix", mcp.Required(), mcp.Description("Note prefix, e.g. Projects")),
	), s.indexLinks)

	s.mcp.AddTool(mcp.NewTool("sync_note",
		mcp.WithDescription("Link an existing note into its index note, or register it if it is an index note."),
		mcp.WithString("path", mcp.Required(), mcp.Description("Path of the note relative to the vault (must end with .md)")),
	), s.syncNote)

	s.mcp.AddTool(mcp.NewTool("recent_activity",
		mcp.WithDescription("Show recent link activity from the journal."),
		mcp.WithNumber("limit", mcp.Description("Max entries (default 20)")),
		mcp.WithString("note", mcp.Description("Only show entries for this note")),
	), s.recentActivity)

	s.mcp.AddTool(mcp.NewTool("get_naming_convention",
		mcp.WithDescription("Returns the naming rules mocsync uses to find index notes and prefixes."),
	), s.getNamingConvention)

	s.mcp.AddResource(
		mcp.NewResource(namingURI, "Naming Convention",
			mcp.WithResourceDescription("How index notes and note prefixes are recognised."),
			mcp.WithMIMEType("text/markdown"),
		),
		s.readNamingResource,
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

func (s *Server) listIndexFiles(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	entries := s.svc.Entries(ctx)
	if len(entries) == 0 {
		return mcp.NewToolResultText("no index notes registered"), nil
	}
	lines := make([]string, 0, len(entries))
	for _, e := range entries {
		lines = append(lines, e.Prefix+"\t"+e.Path)
	}
	return mcp.NewToolResultText(strings.Join(lines, "\n")), nil
}

func (s *Server) resolvePrefix(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	prefix, err := req.RequireString("prefix")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	path, err := s.svc.Resolve(ctx, prefix)
	if err != nil {
		return toolError(err, prefix), nil
	}
	return mcp.NewToolResultText(path), nil
}

func (s *Server) classifyName(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	name, err := req.RequireString("name")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	c, err := s.svc.Classify(ctx, name)
	if err != nil {
		return toolError(err, name), nil
	}
	if !c.Index {
		return mcp.NewToolResultText("not an index note"), nil
	}
	return mcp.NewToolResultText(fmt.Sprintf("index note: prefix=%q rule=%s", c.Prefix, c.Rule)), nil
}

func (s *Server) indexLinks(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	prefix, err := req.RequireString("prefix")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	detail, err := s.svc.Index(ctx, prefix)
	if err != nil {
		return toolError(err, prefix), nil
	}
	return mcp.NewToolResultText(strings.Join(detail.Links, "\n")), nil
}

func (s *Server) syncNote(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	path, err := req.RequireString("path")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	res, err := s.svc.SyncNote(ctx, path)
	if err != nil {
		return toolError(err, path), nil
	}
	return mcp.NewToolResultText(res.Outcome + ": " + res.Path), nil
}

func (s *Server) recentActivity(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	var err error
	var out []byte
	if note := req.GetString("note", ""); note != "" {
		events, herr := s.svc.NoteHistory(ctx, note)
		if herr != nil {
			return toolError(herr, note), nil
		}
		out, err = json.MarshalIndent(events, "", "  ")
	} else {
		events, aerr := s.svc.Activity(ctx, req.GetInt("limit", 20))
		if aerr != nil {
			return toolError(aerr, ""), nil
		}
		out, err = json.MarshalIndent(events, "", "  ")
	}
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return mcp.NewToolResultText(string(out)), nil
}

func (s *Server) getNamingConvention(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return mcp.NewToolResultText(NamingConvention), nil
}

func (s *Server) readNamingResource(ctx context.Context, req mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
	return []mcp.ResourceContents{
		mcp.TextResourceContents{
			URI:      namingURI,
			MIMEType: "text/markdown",
			Text:     NamingConvention,
		},
	}, nil
}

func toolError(err error, subject string) *mcp.CallToolResult {
	if errors.Is(err, apperr.ErrNotFound) {
		return mcp.NewToolResultError(fmt.Sprintf("not found: %s", subject))
	}
	return mcp.NewToolResultError(err.Error())
}

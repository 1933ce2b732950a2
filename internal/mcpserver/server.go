// Package mcpserver provides an MCP (Model Context Protocol) server
// that exposes the storage operations as tools over stdio.
package mcpserver

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/starford/wstore/internal/apperr"
	"github.com/starford/wstore/internal/fileservice"
	"github.com/starford/wstore/internal/models"
)

// Source labels changes made through MCP tools.
const Source = "mcp"

const (
	encodingText   = "text"
	encodingBase64 = "base64"
)

// JournalLister reads recent change journal entries.
type JournalLister interface {
	Recent(ctx context.Context, path string, limit int) ([]models.JournalEntry, error)
}

// Server wraps the MCP server with the storage tools.
type Server struct {
	mcp      *server.MCPServer
	svc      *fileservice.Service
	journal  JournalLister
	maxBytes int
}

// New creates a new MCP server with all tools registered. journal may be
// nil, in which case recent_changes is not offered.
func New(svc *fileservice.Service, journal JournalLister, version string, maxBytes int) *Server {
	s := &Server{svc: svc, journal: journal, maxBytes: maxBytes}

	s.mcp = server.NewMCPServer(
		"wstore",
		version,
		server.WithToolCapabilities(false),
		server.WithResourceCapabilities(false, false),
	)

	s.mcp.AddTool(mcp.NewTool("read_file",
		mcp.WithDescription("Read a stored file. Text is returned as-is; binary content is returned base64-encoded. "+
			"Reading a directory returns its listing."),
		mcp.WithString("path", mcp.Required(), mcp.Description("Relative path under the storage root (e.g. reports/q1.json)")),
	), s.readFile)

	s.mcp.AddTool(mcp.NewTool("list_directory",
		mcp.WithDescription("List a directory. With recursive=true every file below it is returned with size and checksum."),
		mcp.WithString("path", mcp.Description("Directory to list (empty for the storage root)")),
		mcp.WithBoolean("recursive", mcp.Description("Walk the whole subtree")),
	), s.listDirectory)

	s.mcp.AddTool(mcp.NewTool("create_file",
		mcp.WithDescription("Create a new file. Fails if anything already exists at the path."),
		mcp.WithString("path", mcp.Required(), mcp.Description("Relative path for the new file")),
		mcp.WithString("content", mcp.Required(), mcp.Description("File content")),
		mcp.WithString("encoding", mcp.Description("Content encoding: text (default) or base64"), mcp.Enum(encodingText, encodingBase64)),
	), s.createFile)

	s.mcp.AddTool(mcp.NewTool("put_file",
		mcp.WithDescription("Create or replace a file."),
		mcp.WithString("path", mcp.Required(), mcp.Description("Relative path of the file")),
		mcp.WithString("content", mcp.Required(), mcp.Description("File content")),
		mcp.WithString("encoding", mcp.Description("Content encoding: text (default) or base64"), mcp.Enum(encodingText, encodingBase64)),
	), s.putFile)

	s.mcp.AddTool(mcp.NewTool("delete_file",
		mcp.WithDescription("Delete a file. Directories are never removed."),
		mcp.WithString("path", mcp.Required(), mcp.Description("Relative path of the file")),
	), s.deleteFile)

	if journal != nil {
		s.mcp.AddTool(mcp.NewTool("recent_changes",
			mcp.WithDescription("List recent changes from the journal, newest first."),
			mcp.WithString("path", mcp.Description("Only changes to this file")),
			mcp.WithNumber("limit", mcp.Description("Maximum entries (default 20)")),
		), s.recentChanges)
	}

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

func (s *Server) readFile(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	path, err := req.RequireString("path")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	res, err := s.svc.Read(ctx, path)
	if err != nil {
		return toolError(path, err), nil
	}
	if res.Kind == models.KindDirectory {
		return jsonResult(map[string]any{"files": nonNil(res.Children)})
	}
	if utf8.Valid(res.Content) {
		return mcp.NewToolResultText(string(res.Content)), nil
	}
	return jsonResult(map[string]any{
		"encoding":     encodingBase64,
		"content_type": res.ContentType,
		"content":      base64.StdEncoding.EncodeToString(res.Content),
	})
}

func (s *Server) listDirectory(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	path := req.GetString("path", "")

	if req.GetBool("recursive", false) {
		metas, err := s.svc.Walk(ctx, path)
		if err != nil {
			return toolError(path, err), nil
		}
		if metas == nil {
			metas = []models.FileMetadata{}
		}
		return jsonResult(map[string]any{"files": metas})
	}

	res, err := s.svc.Read(ctx, path)
	if err != nil {
		return toolError(path, err), nil
	}
	if res.Kind != models.KindDirectory {
		return mcp.NewToolResultError(fmt.Sprintf("%s: not a directory", path)), nil
	}
	return mcp.NewToolResultText(strings.Join(res.Children, "\n")), nil
}

func (s *Server) createFile(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	path, data, errResult := s.pathAndContent(req)
	if errResult != nil {
		return errResult, nil
	}
	if err := s.svc.Create(ctx, path, data); err != nil {
		return toolError(path, err), nil
	}
	return mcp.NewToolResultText(fmt.Sprintf("created: %s", path)), nil
}

func (s *Server) putFile(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	path, data, errResult := s.pathAndContent(req)
	if errResult != nil {
		return errResult, nil
	}
	if err := s.svc.Upsert(ctx, path, data); err != nil {
		return toolError(path, err), nil
	}
	return mcp.NewToolResultText(fmt.Sprintf("updated: %s", path)), nil
}

func (s *Server) deleteFile(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	path, err := req.RequireString("path")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	if err := s.svc.Delete(ctx, path); err != nil {
		return toolError(path, err), nil
	}
	return mcp.NewToolResultText(fmt.Sprintf("deleted: %s", path)), nil
}

func (s *Server) recentChanges(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	limit := req.GetInt("limit", 20)
	if limit < 1 {
		limit = 20
	}
	entries, err := s.journal.Recent(ctx, req.GetString("path", ""), limit)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	if entries == nil {
		entries = []models.JournalEntry{}
	}
	return jsonResult(entries)
}

// pathAndContent extracts and decodes the arguments shared by the write tools.
func (s *Server) pathAndContent(req mcp.CallToolRequest) (string, []byte, *mcp.CallToolResult) {
	path, err := req.RequireString("path")
	if err != nil {
		return "", nil, mcp.NewToolResultError(err.Error())
	}
	content, err := req.RequireString("content")
	if err != nil {
		return "", nil, mcp.NewToolResultError(err.Error())
	}

	var data []byte
	switch enc := req.GetString("encoding", encodingText); enc {
	case encodingText:
		data = []byte(content)
	case encodingBase64:
		data, err = base64.StdEncoding.DecodeString(content)
		if err != nil {
			return "", nil, mcp.NewToolResultError(fmt.Sprintf("invalid base64 content: %v", err))
		}
	default:
		return "", nil, mcp.NewToolResultError(fmt.Sprintf("unsupported encoding %q", enc))
	}

	if s.maxBytes > 0 && len(data) > s.maxBytes {
		return "", nil, mcp.NewToolResultError(fmt.Sprintf("content too large: %d bytes (max %d)", len(data), s.maxBytes))
	}
	return path, data, nil
}

// toolError reports a storage failure with the same wording as the HTTP surface.
func toolError(path string, err error) *mcp.CallToolResult {
	var msg string
	switch {
	case errors.Is(err, apperr.ErrNotFound):
		msg = "file not found"
	case errors.Is(err, apperr.ErrAlreadyExists):
		msg = "file already exists"
	case errors.Is(err, apperr.ErrInvalidPath):
		msg = "invalid path"
	case errors.Is(err, apperr.ErrPayloadTooLarge):
		msg = "content too large"
	default:
		msg = apperr.Detail(err)
	}
	return mcp.NewToolResultError(fmt.Sprintf("%s: %s", path, msg))
}

func jsonResult(v any) (*mcp.CallToolResult, error) {
	out, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("mcpserver: encode result: %w", err)
	}
	return mcp.NewToolResultText(string(out)), nil
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}

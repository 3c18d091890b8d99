// Package mcpserver exposes the haconf store as MCP tools over stdio, so an
// agent can edit configuration and every edit becomes a snapshot.
package mcpserver

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/4thel00z/haconf/internal"
)

const requester = "mcp"

// Server wraps the MCP server with haconf tools.
type Server struct {
	mcp    *server.MCPServer
	uc     *internal.UseCases
	author string
}

// New creates an MCP server with all tools registered. Mutations without an
// explicit author are recorded under author.
func New(uc *internal.UseCases, version, author string) *Server {
	s := &Server{uc: uc, author: author}

	s.mcp = server.NewMCPServer(
		"haconf",
		version,
		server.WithToolCapabilities(false),
	)

	s.mcp.AddTool(mcp.NewTool("read_file",
		mcp.WithDescription("Read a configuration file from the live tree, or from an earlier version."),
		mcp.WithString("path", mcp.Required(), mcp.Description("Path relative to the configuration root (e.g. packages/lights.yaml)")),
		mcp.WithString("at", mcp.Description("Optional version id or revision such as HEAD~1")),
	), s.readFile)

	s.mcp.AddTool(mcp.NewTool("list_files",
		mcp.WithDescription("List tracked configuration files."),
		mcp.WithString("prefix", mcp.Description("Optional directory to list (empty for all)")),
		mcp.WithString("at", mcp.Description("Optional version id; lists the live tree when empty")),
	), s.listFiles)

	s.mcp.AddTool(mcp.NewTool("write_file",
		mcp.WithDescription("Replace a configuration file and record a snapshot."),
		mcp.WithString("path", mcp.Required(), mcp.Description("Path relative to the configuration root")),
		mcp.WithString("content", mcp.Required(), mcp.Description("New file content")),
		mcp.WithString("message", mcp.Description("Snapshot message")),
		mcp.WithString("author", mcp.Description("Snapshot author")),
		mcp.WithArray("reload", mcp.WithStringItems(), mcp.Description("Components to reload after the write (e.g. automation, core)")),
	), s.writeFile)

	s.mcp.AddTool(mcp.NewTool("append_file",
		mcp.WithDescription("Append to a configuration file, creating it if needed, and record a snapshot."),
		mcp.WithString("path", mcp.Required(), mcp.Description("Path relative to the configuration root")),
		mcp.WithString("content", mcp.Required(), mcp.Description("Content to append")),
		mcp.WithString("message", mcp.Description("Snapshot message")),
		mcp.WithString("author", mcp.Description("Snapshot author")),
		mcp.WithArray("reload", mcp.WithStringItems(), mcp.Description("Components to reload after the append")),
	), s.appendFile)

	s.mcp.AddTool(mcp.NewTool("delete_file",
		mcp.WithDescription("Delete a configuration file and record a snapshot."),
		mcp.WithString("path", mcp.Required(), mcp.Description("Path relative to the configuration root")),
		mcp.WithString("message", mcp.Description("Snapshot message")),
		mcp.WithString("author", mcp.Description("Snapshot author")),
		mcp.WithArray("reload", mcp.WithStringItems(), mcp.Description("Components to reload after the delete")),
	), s.deleteFile)

	s.mcp.AddTool(mcp.NewTool("history",
		mcp.WithDescription("List snapshots, newest first. Pass the returned next id as before to page."),
		mcp.WithNumber("limit", mcp.Description("Page size (default 20)")),
		mcp.WithString("before", mcp.Description("Only list snapshots older than this id")),
	), s.history)

	s.mcp.AddTool(mcp.NewTool("diff",
		mcp.WithDescription("Show which files differ between two versions."),
		mcp.WithString("from", mcp.Required(), mcp.Description("Base version id or revision")),
		mcp.WithString("to", mcp.Description("Target version (default HEAD)")),
		mcp.WithBoolean("patch", mcp.Description("Include line patches")),
	), s.diff)

	s.mcp.AddTool(mcp.NewTool("rollback",
		mcp.WithDescription("Restore the configuration tree of an earlier version as a new snapshot. "+
			"Uncommitted edits are discarded. When validation is enabled the restored tree "+
			"is checked by the platform before it is committed."),
		mcp.WithString("target", mcp.Required(), mcp.Description("Version id or revision to restore")),
		mcp.WithString("author", mcp.Description("Snapshot author")),
		mcp.WithBoolean("skip_validation", mcp.Description("Commit without asking the platform to validate")),
		mcp.WithArray("reload", mcp.WithStringItems(), mcp.Description("Components to reload after the rollback")),
	), s.rollback)

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

func jsonResult(v any) (*mcp.CallToolResult, error) {
	out, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return mcp.NewToolResultText(string(out)), nil
}

func (s *Server) readFile(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	path, err := req.RequireString("path")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	out, err := s.uc.Read.Execute(ctx, internal.ReadInput{Path: path, At: req.GetString("at", "")})
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	content, encoding := internal.EncodeContent(out.Content)
	if encoding == internal.EncodingBase64 {
		return mcp.NewToolResultResource(path+" is binary; contents attached as a base64 blob", mcp.BlobResourceContents{
			URI:      "file:///" + out.Path,
			MIMEType: "application/octet-stream",
			Blob:     content,
		}), nil
	}
	return mcp.NewToolResultText(content), nil
}

func (s *Server) listFiles(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	out, err := s.uc.List.Execute(ctx, internal.ListInput{
		Prefix: req.GetString("prefix", ""),
		At:     req.GetString("at", ""),
	})
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return jsonResult(out)
}

func (s *Server) writeFile(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return s.mutate(ctx, req, internal.MutationWrite)
}

func (s *Server) appendFile(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return s.mutate(ctx, req, internal.MutationAppend)
}

func (s *Server) deleteFile(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return s.mutate(ctx, req, internal.MutationDelete)
}

func (s *Server) mutate(ctx context.Context, req mcp.CallToolRequest, kind internal.MutationKind) (*mcp.CallToolResult, error) {
	path, err := req.RequireString("path")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	var content string
	if kind != internal.MutationDelete {
		if content, err = req.RequireString("content"); err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
	}

	out, err := s.uc.Mutate.Execute(ctx, internal.MutateInput{
		Requests:  []internal.MutationSpec{{Kind: string(kind), Path: path, Content: content}},
		Author:    req.GetString("author", s.author),
		Message:   req.GetString("message", ""),
		Requester: requester,
		Reload:    req.GetStringSlice("reload", nil),
	})
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("%s %s: %v", kind, path, err)), nil
	}
	return jsonResult(out)
}

func (s *Server) history(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	out, err := s.uc.Log.Execute(ctx, internal.LogInput{
		Limit:  req.GetInt("limit", 20),
		Before: req.GetString("before", ""),
	})
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return jsonResult(out)
}

func (s *Server) diff(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	from, err := req.RequireString("from")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	out, err := s.uc.Diff.Execute(ctx, internal.DiffInput{
		From:  from,
		To:    req.GetString("to", ""),
		Patch: req.GetBool("patch", false),
	})
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return jsonResult(out)
}

func (s *Server) rollback(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	target, err := req.RequireString("target")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	out, err := s.uc.Rollback.Execute(ctx, internal.RollbackInput{
		Target:         target,
		Author:         req.GetString("author", s.author),
		SkipValidation: req.GetBool("skip_validation", false),
		Reload:         req.GetStringSlice("reload", nil),
	})
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("rollback %s: %v", target, err)), nil
	}
	return jsonResult(out)
}

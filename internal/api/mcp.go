package api

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/kalambet/enquiro/internal/search"
)

// MCPSearcher abstracts semantic search for the MCP layer.
type MCPSearcher interface {
	Query(ctx context.Context, query string, topK int) ([]search.Result, error)
}

// MCPDeps holds dependencies for the MCP server.
type MCPDeps struct {
	Turns    TurnHandler
	Ingestor Ingestor
	Searcher MCPSearcher
	Profiles ProfileSource
}

// NewMCPServer creates an MCP server exposing the conversational runtime
// to MCP clients.
func NewMCPServer(deps MCPDeps) *server.MCPServer {
	s := server.NewMCPServer(
		"enquiro",
		"1.0.0",
		server.WithToolCapabilities(true),
		server.WithInstructions("enquiro — personalized conversational runtime over your documents and data."),
		server.WithRecovery(),
	)

	s.AddTool(
		mcp.NewTool("ask",
			mcp.WithDescription("Send a message to the assistant on behalf of a user and get the reply."),
			mcp.WithString("user_id", mcp.Description("Stable user identifier"), mcp.Required()),
			mcp.WithString("message", mcp.Description("The user's message"), mcp.Required()),
			mcp.WithString("thread_id", mcp.Description("Thread to continue; omit to start a new one")),
			mcp.WithString("role", mcp.Description("Optional role override for the user profile")),
		),
		mcpAsk(deps),
	)

	s.AddTool(
		mcp.NewTool("search_documents",
			mcp.WithDescription("Semantically search ingested documents and return relevant chunks."),
			mcp.WithString("query", mcp.Description("Search query"), mcp.Required()),
			mcp.WithNumber("limit", mcp.Description("Maximum number of results (default 5)")),
		),
		mcpSearchDocuments(deps),
	)

	s.AddTool(
		mcp.NewTool("add_document",
			mcp.WithDescription("Ingest a text document into the searchable knowledge base."),
			mcp.WithString("content", mcp.Description("The document text"), mcp.Required()),
			mcp.WithString("title", mcp.Description("Document title")),
		),
		mcpAddDocument(deps),
	)

	s.AddTool(
		mcp.NewTool("get_profile",
			mcp.WithDescription("Read a user's personalization profile as JSON."),
			mcp.WithString("user_id", mcp.Description("Stable user identifier"), mcp.Required()),
		),
		mcpGetProfile(deps),
	)

	return s
}

func mcpAsk(deps MCPDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		userID, err := req.RequireString("user_id")
		if err != nil {
			return mcpError("user_id is required"), nil
		}
		message, err := req.RequireString("message")
		if err != nil {
			return mcpError("message is required"), nil
		}
		threadID := req.GetString("thread_id", "")
		role := req.GetString("role", "")

		res, err := deps.Turns.HandleTurn(ctx, userID, threadID, message, role)
		if err != nil {
			return mcpError(fmt.Sprintf("turn failed: %v", err)), nil
		}

		b, err := json.Marshal(map[string]string{
			"thread_id": res.ThreadID,
			"message":   res.Message,
			"file_name": res.FileName,
			"file_path": res.FilePath,
		})
		if err != nil {
			return mcpError(fmt.Sprintf("failed to marshal reply: %v", err)), nil
		}
		return mcpText(string(b)), nil
	}
}

func mcpSearchDocuments(deps MCPDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		query, err := req.RequireString("query")
		if err != nil {
			return mcpError("query is required"), nil
		}
		limit := req.GetInt("limit", 5)
		if limit <= 0 {
			limit = 5
		}
		if limit > 50 {
			limit = 50
		}

		results, err := deps.Searcher.Query(ctx, query, limit)
		if err != nil {
			return mcpError(fmt.Sprintf("search failed: %v", err)), nil
		}
		if len(results) == 0 {
			return mcpText("[]"), nil
		}

		type chunkResult struct {
			ID         string  `json:"id"`
			DocumentID string  `json:"document_id"`
			Text       string  `json:"text"`
			Score      float64 `json:"score"`
		}
		out := make([]chunkResult, len(results))
		for i, r := range results {
			out[i] = chunkResult{
				ID:         r.ID,
				DocumentID: r.DocumentID,
				Text:       r.Content,
				Score:      r.Score,
			}
		}
		b, err := json.Marshal(out)
		if err != nil {
			return mcpError(fmt.Sprintf("failed to marshal results: %v", err)), nil
		}
		return mcpText(string(b)), nil
	}
}

func mcpAddDocument(deps MCPDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		content, err := req.RequireString("content")
		if err != nil {
			return mcpError("content is required"), nil
		}
		title := req.GetString("title", "untitled")

		res, err := deps.Ingestor.IngestText(ctx, title, content, "mcp")
		if err != nil {
			return mcpError(fmt.Sprintf("ingest failed: %v", err)), nil
		}
		return mcpText(fmt.Sprintf("Stored document %s (%d chunks)", res.DocumentID, res.Chunks)), nil
	}
}

func mcpGetProfile(deps MCPDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		userID, err := req.RequireString("user_id")
		if err != nil {
			return mcpError("user_id is required"), nil
		}

		p, err := deps.Profiles.Snapshot(userID)
		if err != nil {
			return mcpError(fmt.Sprintf("failed to load profile: %v", err)), nil
		}
		b, err := json.Marshal(p)
		if err != nil {
			return mcpError(fmt.Sprintf("failed to marshal profile: %v", err)), nil
		}
		return mcpText(string(b)), nil
	}
}

func mcpText(text string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{
			mcp.TextContent{Type: "text", Text: text},
		},
	}
}

func mcpError(msg string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{
			mcp.TextContent{Type: "text", Text: msg},
		},
		IsError: true,
	}
}

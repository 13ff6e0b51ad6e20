package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/pathlight/pathlight/internal/keywords"
	"github.com/pathlight/pathlight/internal/paths"
	"github.com/pathlight/pathlight/internal/pathstate"
	"github.com/pathlight/pathlight/internal/storage"
	"github.com/pathlight/pathlight/internal/websearch"
)

// NewMCPServer creates an MCP server with all pathlight tools and
// resources registered.
func NewMCPServer(deps AppDeps) *server.MCPServer {
	s := server.NewMCPServer(
		"pathlight",
		"1.0.0",
		server.WithToolCapabilities(true),
		server.WithResourceCapabilities(false, true),
		server.WithInstructions("pathlight manages career learning paths: generate and edit paths with audited changes, search the web, and track trending career domains."),
		server.WithRecovery(),
	)

	// Tools
	s.AddTool(
		mcp.NewTool("search_web",
			mcp.WithDescription("Search the web for learning resources. Results are cached, so repeat queries are cheap."),
			mcp.WithString("query", mcp.Description("Search query"), mcp.Required()),
			mcp.WithString("type", mcp.Description("Search type: web, news, or videos (default web)")),
			mcp.WithNumber("limit", mcp.Description("Maximum number of results (default 10)")),
		),
		mcpSearchWeb(deps),
	)

	s.AddTool(
		mcp.NewTool("trending_domains",
			mcp.WithDescription("Report career domains currently growing in demand, with example roles."),
		),
		mcpTrendingDomains(deps),
	)

	s.AddTool(
		mcp.NewTool("career_keywords",
			mcp.WithDescription("Extract skills, roles, and domains from a job posting or resume. Provide either text or a local file path (PDF or plain text)."),
			mcp.WithString("text", mcp.Description("The text to classify")),
			mcp.WithString("file", mcp.Description("Path to a resume file to classify instead of text")),
		),
		mcpCareerKeywords(deps),
	)

	s.AddTool(
		mcp.NewTool("preview_path_update",
			mcp.WithDescription("Show what would change if a path were replaced with the given state, without persisting anything."),
			mcp.WithString("path_id", mcp.Description("ID of the path to compare against"), mcp.Required()),
			mcp.WithString("state", mcp.Description("JSON document of the proposed path state"), mcp.Required()),
		),
		mcpPreviewPathUpdate(deps),
	)

	s.AddTool(
		mcp.NewTool("update_path",
			mcp.WithDescription("Replace a path's state with the given state, recording the diff as an audit revision."),
			mcp.WithString("path_id", mcp.Description("ID of the path to update"), mcp.Required()),
			mcp.WithString("state", mcp.Description("JSON document of the new path state"), mcp.Required()),
		),
		mcpUpdatePath(deps),
	)

	s.AddTool(
		mcp.NewTool("generate_path",
			mcp.WithDescription("Generate a new draft learning path for a career goal and store it."),
			mcp.WithString("goal", mcp.Description("The career goal, e.g. 'become a data engineer'"), mcp.Required()),
		),
		mcpGeneratePath(deps),
	)

	// Resources
	s.AddResource(
		mcp.NewResource(
			"pathlight://paths",
			"Learning Paths",
			mcp.WithResourceDescription("Stored learning paths with per-path progress counts"),
			mcp.WithMIMEType("application/json"),
		),
		mcpResourcePaths(deps),
	)

	return s
}

func mcpSearchWeb(deps AppDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		query, err := req.RequireString("query")
		if err != nil {
			return mcpError("query is required"), nil
		}

		typ := websearch.SearchType(req.GetString("type", string(websearch.TypeWeb)))
		if !typ.Valid() {
			return mcpError(fmt.Sprintf("unknown search type %q", typ)), nil
		}
		limit := req.GetInt("limit", 0)

		resp, err := deps.Search.Search(ctx, query, typ, limit)
		if err != nil {
			return mcpError(fmt.Sprintf("search failed: %v", err)), nil
		}

		b, err := json.Marshal(resp)
		if err != nil {
			return mcpError(fmt.Sprintf("failed to marshal results: %v", err)), nil
		}
		return mcpText(string(b)), nil
	}
}

func mcpTrendingDomains(deps AppDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		rep, err := deps.Trends.Trending(ctx)
		if err != nil {
			return mcpError(fmt.Sprintf("failed to build trends report: %v", err)), nil
		}

		b, err := json.Marshal(rep)
		if err != nil {
			return mcpError(fmt.Sprintf("failed to marshal report: %v", err)), nil
		}
		return mcpText(string(b)), nil
	}
}

func mcpCareerKeywords(deps AppDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		text := req.GetString("text", "")
		file := req.GetString("file", "")

		var cls keywords.Classification
		var err error
		switch {
		case file != "":
			cls, err = deps.Keywords.ExtractResume(ctx, file)
		case text != "":
			cls, err = deps.Keywords.Extract(ctx, text)
		default:
			return mcpError("either text or file is required"), nil
		}
		if err != nil {
			return mcpError(fmt.Sprintf("keyword extraction failed: %v", err)), nil
		}

		b, err := json.Marshal(cls)
		if err != nil {
			return mcpError(fmt.Sprintf("failed to marshal keywords: %v", err)), nil
		}
		return mcpText(string(b)), nil
	}
}

func mcpPreviewPathUpdate(deps AppDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		pathID, err := req.RequireString("path_id")
		if err != nil {
			return mcpError("path_id is required"), nil
		}
		stateJSON, err := req.RequireString("state")
		if err != nil {
			return mcpError("state is required"), nil
		}

		var next pathstate.PathState
		if err := json.Unmarshal([]byte(stateJSON), &next); err != nil {
			return mcpError(fmt.Sprintf("invalid state JSON: %v", err)), nil
		}

		cs, err := deps.Paths.Preview(ctx, pathID, next)
		if errors.Is(err, storage.ErrNotFound) {
			return mcpError(fmt.Sprintf("path %s not found", pathID)), nil
		}
		if err != nil {
			return mcpError(fmt.Sprintf("preview failed: %v", err)), nil
		}

		b, err := json.Marshal(cs)
		if err != nil {
			return mcpError(fmt.Sprintf("failed to marshal change set: %v", err)), nil
		}
		return mcpText(string(b)), nil
	}
}

func mcpUpdatePath(deps AppDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		pathID, err := req.RequireString("path_id")
		if err != nil {
			return mcpError("path_id is required"), nil
		}
		stateJSON, err := req.RequireString("state")
		if err != nil {
			return mcpError("state is required"), nil
		}

		var next pathstate.PathState
		if err := json.Unmarshal([]byte(stateJSON), &next); err != nil {
			return mcpError(fmt.Sprintf("invalid state JSON: %v", err)), nil
		}

		res, err := deps.Paths.Update(ctx, pathID, next)
		if errors.Is(err, storage.ErrNotFound) {
			return mcpError(fmt.Sprintf("path %s not found", pathID)), nil
		}
		if errors.Is(err, paths.ErrInvalidState) {
			return mcpError(err.Error()), nil
		}
		if err != nil {
			return mcpError(fmt.Sprintf("update failed: %v", err)), nil
		}

		b, err := json.Marshal(res)
		if err != nil {
			return mcpError(fmt.Sprintf("failed to marshal result: %v", err)), nil
		}
		return mcpText(string(b)), nil
	}
}

func mcpGeneratePath(deps AppDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		goal, err := req.RequireString("goal")
		if err != nil {
			return mcpError("goal is required"), nil
		}

		rec, err := deps.Paths.Generate(ctx, goal)
		if err != nil {
			return mcpError(fmt.Sprintf("generation failed: %v", err)), nil
		}

		b, err := json.Marshal(rec)
		if err != nil {
			return mcpError(fmt.Sprintf("failed to marshal path: %v", err)), nil
		}
		return mcpText(string(b)), nil
	}
}

func mcpResourcePaths(deps AppDeps) server.ResourceHandlerFunc {
	return func(ctx context.Context, req mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
		recs, err := deps.Paths.List(ctx, 100)
		if err != nil {
			return nil, fmt.Errorf("failed to list paths: %w", err)
		}

		type pathSummary struct {
			ID        string           `json:"id"`
			Title     string           `json:"title"`
			Status    pathstate.Status `json:"status"`
			Nodes     int              `json:"nodes"`
			Completed int              `json:"completed"`
			UpdatedAt string           `json:"updated_at"`
		}

		summaries := make([]pathSummary, len(recs))
		for i, rec := range recs {
			completed := 0
			for _, n := range rec.State.Nodes {
				if n.IsCompleted {
					completed++
				}
			}
			summaries[i] = pathSummary{
				ID:        rec.ID,
				Title:     rec.State.Title,
				Status:    rec.State.Status,
				Nodes:     len(rec.State.Nodes),
				Completed: completed,
				UpdatedAt: rec.UpdatedAt.Format(time.RFC3339),
			}
		}

		b, err := json.Marshal(summaries)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal paths: %w", err)
		}

		return []mcp.ResourceContents{
			mcp.TextResourceContents{
				URI:      req.Params.URI,
				MIMEType: "application/json",
				Text:     string(b),
			},
		}, nil
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

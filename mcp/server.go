// Package mcp exposes the strata tool set over the Model Context Protocol.
// It is a thin adapter: every call is forwarded to the engine's dispatcher,
// which owns routing, timeouts, and failure classification.
package mcp

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/hyperengineering/strata"
	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
)

const adapterID = "mcp"

// Server wraps the MCP stdio server with strata tools.
type Server struct {
	engine    *strata.Engine
	mcpServer *server.MCPServer
}

// ToolInfo represents a registered tool.
type ToolInfo struct {
	Name        string
	Description string
}

// NewServer creates an MCP server exposing the engine's tool set.
func NewServer(engine *strata.Engine) *Server {
	s := &Server{engine: engine}

	s.mcpServer = server.NewMCPServer(
		"strata",
		"1.0.0",
		server.WithToolCapabilities(true),
	)

	s.registerTools()
	engine.Adapters().Register(strata.Adapter{
		ID:    adapterID,
		Kind:  strata.AdapterMCP,
		Hooks: strata.NopHooks{},
	})

	return s
}

// Run starts the MCP server, reading from stdin and writing to stdout.
func (s *Server) Run() error {
	return server.ServeStdio(s.mcpServer)
}

// HandleMessage processes a raw JSON-RPC message and returns a response.
// This is primarily for testing the MCP protocol layer.
func (s *Server) HandleMessage(ctx context.Context, message json.RawMessage) mcp.JSONRPCMessage {
	return s.mcpServer.HandleMessage(ctx, message)
}

// ListTools returns all registered tools.
func (s *Server) ListTools() []ToolInfo {
	specs := s.engine.Dispatcher().Tools()
	infos := make([]ToolInfo, 0, len(specs))
	for _, spec := range specs {
		infos = append(infos, ToolInfo{Name: spec.Name, Description: spec.Description})
	}
	return infos
}

// CallTool executes a tool by name with the given arguments. This is used
// for testing and direct invocation.
func (s *Server) CallTool(ctx context.Context, name string, args map[string]any) *strata.ToolResponse {
	return s.engine.Dispatcher().Dispatch(ctx, strata.ToolRequest{
		Tool:      name,
		Arguments: args,
		AdapterID: adapterID,
	})
}

func (s *Server) registerTools() {
	s.mcpServer.AddTool(mcp.NewTool(strata.ToolMemoryQuery,
		mcp.WithDescription("Query all memory tiers for a project. Returns facts, then episodes, then document chunks, in that order. Facts are authoritative; treat chunks as background."),
		mcp.WithString("project_id",
			mcp.Description("Project the memory belongs to"),
			mcp.Required(),
		),
		mcp.WithString("query",
			mcp.Description("Free-text query used to filter facts/episodes and rank chunks"),
		),
		mcp.WithNumber("top_k",
			mcp.Description("Maximum number of fused results (default: 10)"),
		),
		mcp.WithNumber("min_confidence",
			mcp.Description("Confidence floor applied to facts and episodes"),
		),
		mcp.WithArray("scopes",
			mcp.Description("Restrict facts to these scopes (project, user, global)"),
			mcp.WithStringItems(),
		),
		mcp.WithArray("categories",
			mcp.Description("Restrict facts to these categories"),
			mcp.WithStringItems(),
		),
	), s.mcpHandler(strata.ToolMemoryQuery))

	s.mcpServer.AddTool(mcp.NewTool(strata.ToolFactsList,
		mcp.WithDescription("List stored facts for a project."),
		mcp.WithString("project_id",
			mcp.Description("Project the facts belong to"),
			mcp.Required(),
		),
		mcp.WithArray("scopes",
			mcp.Description("Filter by scope (project, user, global)"),
			mcp.WithStringItems(),
		),
		mcp.WithArray("categories",
			mcp.Description("Filter by category"),
			mcp.WithStringItems(),
		),
		mcp.WithArray("keys",
			mcp.Description("Return only these fact keys"),
			mcp.WithStringItems(),
		),
		mcp.WithNumber("min_confidence",
			mcp.Description("Minimum confidence 0.0-1.0"),
		),
	), s.mcpHandler(strata.ToolFactsList))

	s.mcpServer.AddTool(mcp.NewTool(strata.ToolFactsAdd,
		mcp.WithDescription("Store a fact. A fact with the same key is overwritten; the newest value wins."),
		mcp.WithString("project_id",
			mcp.Description("Project the fact belongs to"),
			mcp.Required(),
		),
		mcp.WithString("key",
			mcp.Description("Stable snake_case identifier, e.g. api_endpoint"),
			mcp.Required(),
		),
		mcp.WithString("value",
			mcp.Description("The fact's value"),
			mcp.Required(),
		),
		mcp.WithString("category",
			mcp.Description("Grouping label (default: general)"),
		),
		mcp.WithString("scope",
			mcp.Description("project, user, or global (default: project)"),
		),
		mcp.WithNumber("confidence",
			mcp.Description("Confidence 0.0-1.0"),
		),
	), s.mcpHandler(strata.ToolFactsAdd))

	s.mcpServer.AddTool(mcp.NewTool(strata.ToolEpisodesList,
		mcp.WithDescription("List experience episodes for a project, newest first."),
		mcp.WithString("project_id",
			mcp.Description("Project the episodes belong to"),
			mcp.Required(),
		),
		mcp.WithArray("lesson_types",
			mcp.Description("Filter by lesson type (workaround, pattern, mistake, decision)"),
			mcp.WithStringItems(),
		),
		mcp.WithNumber("min_quality",
			mcp.Description("Minimum quality 0.0-1.0"),
		),
		mcp.WithNumber("limit",
			mcp.Description("Maximum number of episodes to return"),
		),
	), s.mcpHandler(strata.ToolEpisodesList))

	s.mcpServer.AddTool(mcp.NewTool(strata.ToolEpisodesAdd,
		mcp.WithDescription("Record an experience episode: a workaround, pattern, mistake, or decision worth remembering."),
		mcp.WithString("project_id",
			mcp.Description("Project the episode belongs to"),
			mcp.Required(),
		),
		mcp.WithString("title",
			mcp.Description("Short summary of the lesson"),
			mcp.Required(),
		),
		mcp.WithString("content",
			mcp.Description("The lesson in full"),
			mcp.Required(),
		),
		mcp.WithString("lesson_type",
			mcp.Description("workaround, pattern, mistake, or decision"),
			mcp.Required(),
		),
		mcp.WithNumber("quality",
			mcp.Description("Quality 0.0-1.0"),
		),
	), s.mcpHandler(strata.ToolEpisodesAdd))

	s.mcpServer.AddTool(mcp.NewTool(strata.ToolSemanticSearch,
		mcp.WithDescription("Search ingested documents by semantic similarity. The query is expanded into variants and results are merged across them."),
		mcp.WithString("project_id",
			mcp.Description("Project whose documents to search"),
			mcp.Required(),
		),
		mcp.WithString("query",
			mcp.Description("The search query"),
			mcp.Required(),
		),
		mcp.WithNumber("top_k",
			mcp.Description("Maximum number of chunks to return (default: 10)"),
		),
	), s.mcpHandler(strata.ToolSemanticSearch))

	s.mcpServer.AddTool(mcp.NewTool(strata.ToolIngestDocument,
		mcp.WithDescription("Chunk, embed, and index a document. Re-ingesting the same doc_id replaces the previous version as a unit."),
		mcp.WithString("project_id",
			mcp.Description("Project the document belongs to"),
			mcp.Required(),
		),
		mcp.WithString("doc_id",
			mcp.Description("Stable document identifier"),
			mcp.Required(),
		),
		mcp.WithString("text",
			mcp.Description("The document text"),
			mcp.Required(),
		),
		mcp.WithString("source_path",
			mcp.Description("Original file path, kept as chunk metadata"),
		),
	), s.mcpHandler(strata.ToolIngestDocument))

	s.mcpServer.AddTool(mcp.NewTool(strata.ToolAnalyzeConversation,
		mcp.WithDescription("Extract facts and episodes from a conversation turn. Runs in the background by default; pass wait=true to run inline and get counts."),
		mcp.WithString("project_id",
			mcp.Description("Project the conversation belongs to"),
			mcp.Required(),
		),
		mcp.WithString("user_message",
			mcp.Description("The user's message"),
		),
		mcp.WithString("agent_response",
			mcp.Description("The agent's response"),
		),
		mcp.WithString("context",
			mcp.Description("Additional situational context"),
		),
		mcp.WithBoolean("wait",
			mcp.Description("Run synchronously and report stored counts (default: false)"),
		),
	), s.mcpHandler(strata.ToolAnalyzeConversation))
}

// mcpHandler adapts a dispatcher tool to the mcp-go handler signature.
func (s *Server) mcpHandler(tool string) func(context.Context, mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		resp := s.CallTool(ctx, tool, req.GetArguments())
		return toMCPResult(resp)
	}
}

func toMCPResult(resp *strata.ToolResponse) (*mcp.CallToolResult, error) {
	body, err := json.Marshal(resp)
	if err != nil {
		return nil, fmt.Errorf("encode tool response: %w", err)
	}

	result := &mcp.CallToolResult{
		Content: []mcp.Content{
			mcp.TextContent{
				Type: "text",
				Text: string(body),
			},
		},
	}
	if resp.Status == strata.StatusError {
		result.IsError = true
	}
	return result, nil
}

package strata

import (
	"context"
)

// Tool names form the stable contract external adapters bind to.
const (
	ToolMemoryQuery         = "memory_query"
	ToolFactsList           = "facts_list"
	ToolFactsAdd            = "facts_add"
	ToolEpisodesList        = "episodes_list"
	ToolEpisodesAdd         = "episodes_add"
	ToolSemanticSearch      = "semantic_search"
	ToolIngestDocument      = "ingest_document"
	ToolAnalyzeConversation = "analyze_conversation"
)

func (e *Engine) registerTools() {
	e.dispatch.Register(ToolSpec{
		Name:        ToolMemoryQuery,
		Description: "Query all memory tiers and return a fused, authority-ordered answer set",
		Handler:     e.handleMemoryQuery,
	})
	e.dispatch.Register(ToolSpec{
		Name:        ToolFactsList,
		Description: "List stored facts for a project, optionally filtered by scope and category",
		Handler:     e.handleFactsList,
	})
	e.dispatch.Register(ToolSpec{
		Name:        ToolFactsAdd,
		Description: "Store an authoritative fact, overwriting any existing value for the same key",
		Handler:     e.handleFactsAdd,
	})
	e.dispatch.Register(ToolSpec{
		Name:        ToolEpisodesList,
		Description: "List stored experience episodes for a project",
		Handler:     e.handleEpisodesList,
	})
	e.dispatch.Register(ToolSpec{
		Name:        ToolEpisodesAdd,
		Description: "Append an experience episode",
		Handler:     e.handleEpisodesAdd,
	})
	e.dispatch.Register(ToolSpec{
		Name:        ToolSemanticSearch,
		Description: "Search document chunks by semantic similarity with query expansion",
		Handler:     e.handleSemanticSearch,
	})
	e.dispatch.Register(ToolSpec{
		Name:        ToolIngestDocument,
		Description: "Chunk, embed, and store a document; re-ingesting replaces the previous version",
		Handler:     e.handleIngestDocument,
	})
	e.dispatch.Register(ToolSpec{
		Name:        ToolAnalyzeConversation,
		Description: "Extract facts and episodes from a conversation turn without blocking the agent",
		Handler:     e.handleAnalyzeConversation,
	})
}

func (e *Engine) handleMemoryQuery(ctx context.Context, args map[string]any) (*ToolResponse, error) {
	projectID := argString(args, "project_id")
	if projectID == "" {
		return nil, &ValidationError{Field: "project_id", Message: "required"}
	}

	params := SelectParams{
		ProjectID:      projectID,
		Query:          argString(args, "query"),
		CategoryFilter: argStrings(args, "categories"),
		TopK:           argInt(args, "top_k"),
	}
	for _, s := range argStrings(args, "scopes") {
		params.ScopeFilter = append(params.ScopeFilter, Scope(s))
	}
	if min, ok := argFloat(args, "min_confidence"); ok {
		params.MinConfidence = &min
	}

	result, err := e.selector.Select(ctx, params)
	if err != nil {
		return nil, err
	}

	status := StatusOK
	var msg string
	if result.Partial {
		status = StatusPartial
		msg = "one or more memory tiers were unavailable"
	}
	return &ToolResponse{Status: status, Payload: result, Message: msg}, nil
}

func (e *Engine) handleFactsList(ctx context.Context, args map[string]any) (*ToolResponse, error) {
	projectID := argString(args, "project_id")
	if projectID == "" {
		return nil, &ValidationError{Field: "project_id", Message: "required"}
	}

	filter := FactFilter{
		Categories: argStrings(args, "categories"),
		Keys:       argStrings(args, "keys"),
	}
	for _, s := range argStrings(args, "scopes") {
		filter.Scopes = append(filter.Scopes, Scope(s))
	}
	if min, ok := argFloat(args, "min_confidence"); ok {
		filter.MinConfidence = min
	}

	facts, err := e.facts.Query(ctx, projectID, filter)
	if err != nil {
		return nil, err
	}
	if facts == nil {
		facts = []Fact{}
	}
	return &ToolResponse{Status: StatusOK, Payload: facts}, nil
}

func (e *Engine) handleFactsAdd(ctx context.Context, args map[string]any) (*ToolResponse, error) {
	fact := &Fact{
		ProjectID: argString(args, "project_id"),
		Key:       argString(args, "key"),
		Value:     argString(args, "value"),
		Category:  argString(args, "category"),
		Scope:     Scope(argString(args, "scope")),
	}
	if fact.Category == "" {
		fact.Category = "general"
	}
	if fact.Scope == "" {
		fact.Scope = ScopeProject
	}
	if conf, ok := argFloat(args, "confidence"); ok {
		fact.Confidence = conf
	} else {
		fact.Confidence = e.config.MinFactConfidence
	}

	if err := e.facts.Put(ctx, fact); err != nil {
		return nil, err
	}
	return &ToolResponse{Status: StatusOK, Payload: fact}, nil
}

func (e *Engine) handleEpisodesList(ctx context.Context, args map[string]any) (*ToolResponse, error) {
	projectID := argString(args, "project_id")
	if projectID == "" {
		return nil, &ValidationError{Field: "project_id", Message: "required"}
	}

	filter := EpisodeFilter{Limit: argInt(args, "limit")}
	for _, lt := range argStrings(args, "lesson_types") {
		filter.LessonTypes = append(filter.LessonTypes, LessonType(lt))
	}
	if min, ok := argFloat(args, "min_quality"); ok {
		filter.MinQuality = min
	}

	episodes, err := e.episodes.Query(ctx, projectID, filter)
	if err != nil {
		return nil, err
	}
	if episodes == nil {
		episodes = []Episode{}
	}
	return &ToolResponse{Status: StatusOK, Payload: episodes}, nil
}

func (e *Engine) handleEpisodesAdd(ctx context.Context, args map[string]any) (*ToolResponse, error) {
	ep := Episode{
		ProjectID:  argString(args, "project_id"),
		Title:      argString(args, "title"),
		Content:    argString(args, "content"),
		LessonType: LessonType(argString(args, "lesson_type")),
	}
	if quality, ok := argFloat(args, "quality"); ok {
		ep.Quality = quality
	} else {
		ep.Quality = e.config.MinEpisodeConfidence
	}

	stored, err := e.episodes.Append(ctx, ep)
	if err != nil {
		return nil, err
	}
	return &ToolResponse{Status: StatusOK, Payload: stored}, nil
}

func (e *Engine) handleSemanticSearch(ctx context.Context, args map[string]any) (*ToolResponse, error) {
	projectID := argString(args, "project_id")
	if projectID == "" {
		return nil, &ValidationError{Field: "project_id", Message: "required"}
	}
	query := argString(args, "query")
	if query == "" {
		return nil, &ValidationError{Field: "query", Message: "required"}
	}

	result, err := e.retriever.Retrieve(ctx, projectID, query, argInt(args, "top_k"))
	if err != nil {
		return nil, err
	}

	status := StatusOK
	var msg string
	if result.Partial {
		status = StatusPartial
		msg = "some query variants failed"
	}
	return &ToolResponse{Status: status, Payload: result, Message: msg}, nil
}

func (e *Engine) handleIngestDocument(ctx context.Context, args map[string]any) (*ToolResponse, error) {
	result, err := e.ingester.Ingest(ctx, IngestParams{
		ProjectID:  argString(args, "project_id"),
		DocID:      argString(args, "doc_id"),
		SourcePath: argString(args, "source_path"),
		Text:       argString(args, "text"),
	})
	if err != nil {
		return nil, err
	}
	return &ToolResponse{Status: StatusOK, Payload: result}, nil
}

func (e *Engine) handleAnalyzeConversation(ctx context.Context, args map[string]any) (*ToolResponse, error) {
	params := AnalyzeParams{
		ProjectID:     argString(args, "project_id"),
		UserMessage:   argString(args, "user_message"),
		AgentResponse: argString(args, "agent_response"),
		Context:       argString(args, "context"),
	}
	if params.ProjectID == "" {
		return nil, &ValidationError{Field: "project_id", Message: "required"}
	}

	// Default path is fire-and-forget so the agent's turn never waits on
	// memory writes; wait=true runs inline and returns the counts.
	if argBool(args, "wait") {
		result, err := e.analyzer.Analyze(ctx, params)
		if err != nil {
			return nil, err
		}
		status := StatusOK
		if result.Partial {
			status = StatusPartial
		}
		return &ToolResponse{Status: status, Payload: result, Message: result.Message}, nil
	}

	e.analyzer.AnalyzeAsync(params)
	return &ToolResponse{Status: StatusOK, Payload: map[string]any{"queued": true}}, nil
}

// Argument helpers. MCP and HTTP adapters both deliver JSON-decoded maps, so
// numbers arrive as float64.

func argString(args map[string]any, key string) string {
	v, _ := args[key].(string)
	return v
}

func argFloat(args map[string]any, key string) (float64, bool) {
	v, ok := args[key].(float64)
	return v, ok
}

func argInt(args map[string]any, key string) int {
	if v, ok := args[key].(float64); ok {
		return int(v)
	}
	if v, ok := args[key].(int); ok {
		return v
	}
	return 0
}

func argBool(args map[string]any, key string) bool {
	v, _ := args[key].(bool)
	return v
}

// argStrings converts various array shapes to []string. Handles []any,
// []string, and nil.
func argStrings(args map[string]any, key string) []string {
	switch arr := args[key].(type) {
	case []string:
		return arr
	case []any:
		result := make([]string, 0, len(arr))
		for _, item := range arr {
			if s, ok := item.(string); ok {
				result = append(result, s)
			}
		}
		return result
	default:
		return nil
	}
}

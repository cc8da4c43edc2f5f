package strata

import "time"

// Tier identifies a memory tier. Tiers form a fixed authority hierarchy:
// facts answer with authority, episodes advise, chunks inform.
type Tier string

const (
	TierFact    Tier = "fact"
	TierEpisode Tier = "episode"
	TierChunk   Tier = "chunk"
)

// Authority weights per tier. Ordering between tiers is decided by these
// weights alone; scores only break ties within a tier.
const (
	AuthorityFact    = 1.00
	AuthorityEpisode = 0.85
	AuthorityChunk   = 0.60
)

// Weight returns the authority weight for the tier.
func (t Tier) Weight() float64 {
	switch t {
	case TierFact:
		return AuthorityFact
	case TierEpisode:
		return AuthorityEpisode
	case TierChunk:
		return AuthorityChunk
	}
	return 0
}

// Scope narrows where a fact applies.
type Scope string

const (
	ScopeProject Scope = "project"
	ScopeUser    Scope = "user"
	ScopeGlobal  Scope = "global"
)

// ValidScopes returns all valid fact scopes.
func ValidScopes() []Scope {
	return []Scope{ScopeProject, ScopeUser, ScopeGlobal}
}

// IsValid checks if the scope is a valid fact scope.
func (s Scope) IsValid() bool {
	for _, valid := range ValidScopes() {
		if s == valid {
			return true
		}
	}
	return false
}

// Fact is a single authoritative statement about a project. Facts are unique
// per (project, scope, category, key); writing an existing key overwrites the
// value rather than appending.
type Fact struct {
	Key        string    `json:"key"`
	Value      string    `json:"value"`
	Confidence float64   `json:"confidence"`
	Category   string    `json:"category"`
	Scope      Scope     `json:"scope"`
	ProjectID  string    `json:"project_id"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}

// LessonType classifies the kind of experience an episode captures.
type LessonType string

const (
	LessonPattern    LessonType = "pattern"
	LessonMistake    LessonType = "mistake"
	LessonSuccess    LessonType = "success"
	LessonFailure    LessonType = "failure"
	LessonWorkaround LessonType = "workaround"
	LessonDecision   LessonType = "decision"
)

// ValidLessonTypes returns all valid lesson types.
func ValidLessonTypes() []LessonType {
	return []LessonType{
		LessonPattern,
		LessonMistake,
		LessonSuccess,
		LessonFailure,
		LessonWorkaround,
		LessonDecision,
	}
}

// IsValid checks if the lesson type is valid.
func (l LessonType) IsValid() bool {
	for _, valid := range ValidLessonTypes() {
		if l == valid {
			return true
		}
	}
	return false
}

// Episode is an advisory experience record. Episodes are append-only; they
// are never overwritten, only outranked by facts at read time.
type Episode struct {
	ID         string     `json:"id"`
	Title      string     `json:"title"`
	Content    string     `json:"content"`
	LessonType LessonType `json:"lesson_type"`
	Quality    float64    `json:"quality"`
	ProjectID  string     `json:"project_id"`
	CreatedAt  time.Time  `json:"created_at"`
}

// Chunk is an informational slice of a document with its embedding.
// Chunks are immutable; re-ingesting a document replaces its chunk set
// as a unit.
type Chunk struct {
	ID         string    `json:"id"`
	Text       string    `json:"text"`
	Embedding  []float32 `json:"-"`
	DocID      string    `json:"doc_id"`
	SourcePath string    `json:"source_path,omitempty"`
	ProjectID  string    `json:"project_id"`
}

// ScoredChunk pairs a chunk with retrieval scoring detail.
type ScoredChunk struct {
	Chunk
	Score    float64 `json:"score"`    // max similarity across query variants
	Variants int     `json:"variants"` // number of variants that returned it
}

// RankedChunks is the result of a retrieval call.
type RankedChunks struct {
	Chunks  []ScoredChunk `json:"chunks"`
	Partial bool          `json:"partial"` // true when some variants failed
}

// CandidateType classifies a learning candidate.
type CandidateType string

const (
	CandidateFact    CandidateType = "fact"
	CandidateEpisode CandidateType = "episode"
)

// Candidate is a potential fact or episode extracted from a conversation.
// Candidates are transient; they live only inside the analyzer pipeline
// until accepted or discarded.
type Candidate struct {
	Type        CandidateType `json:"type"`
	IdentityKey string        `json:"identity_key"`
	Fact        *Fact         `json:"fact,omitempty"`
	Episode     *Episode      `json:"episode,omitempty"`
	Confidence  float64       `json:"confidence"`
	ExtractedAt time.Time     `json:"extracted_at"`
	SourceHash  string        `json:"source_turn_hash"`
}

// DedupRecord tracks the most recent acceptance date per candidate identity.
type DedupRecord struct {
	IdentityKey  string    `json:"identity_key"`
	LastAccepted time.Time `json:"last_accepted_date"`
	ProjectID    string    `json:"project_id"`
}

// SelectParams configures a fused memory query.
type SelectParams struct {
	ProjectID      string   `json:"project_id"`
	Query          string   `json:"query"`
	ScopeFilter    []Scope  `json:"scope_filter,omitempty"`
	CategoryFilter []string `json:"category_filter,omitempty"`
	MinConfidence  *float64 `json:"min_confidence,omitempty"`
	TopK           int      `json:"top_k,omitempty"`
}

// FusedItem is one entry in a fused answer set.
type FusedItem struct {
	Tier     Tier         `json:"tier"`
	Fact     *Fact        `json:"fact,omitempty"`
	Episode  *Episode     `json:"episode,omitempty"`
	Chunk    *ScoredChunk `json:"chunk,omitempty"`
	Conflict bool         `json:"conflict,omitempty"` // flagged, not resolved
}

// FusedResult is an authority-ordered answer set across all tiers.
type FusedResult struct {
	Items        []FusedItem `json:"items"`
	Partial      bool        `json:"partial"`
	FailedTiers  []Tier      `json:"failed_tiers,omitempty"`
	ConflictKeys []string    `json:"conflict_keys,omitempty"`
}

// AnalyzeParams carries one conversation turn into the analyzer.
type AnalyzeParams struct {
	ProjectID     string `json:"project_id"`
	UserMessage   string `json:"user_message"`
	AgentResponse string `json:"agent_response"`
	Context       string `json:"context,omitempty"`
}

// AnalyzeResult reports what an analysis call stored.
type AnalyzeResult struct {
	FactsStored    int       `json:"facts_stored"`
	EpisodesStored int       `json:"episodes_stored"`
	Facts          []Fact    `json:"facts"`
	Episodes       []Episode `json:"episodes"`
	Partial        bool      `json:"partial"`
	Message        string    `json:"message,omitempty"`
}

// IngestParams carries a document into the chunk store.
type IngestParams struct {
	ProjectID  string `json:"project_id"`
	DocID      string `json:"doc_id"`
	SourcePath string `json:"source_path,omitempty"`
	Text       string `json:"text"`
}

// IngestResult reports the outcome of a document ingestion.
type IngestResult struct {
	DocID    string `json:"doc_id"`
	Chunks   int    `json:"chunks"`
	Replaced bool   `json:"replaced"`
}

// EngineStats summarizes store contents.
type EngineStats struct {
	Facts    int `json:"facts"`
	Episodes int `json:"episodes"`
	Chunks   int `json:"chunks"`
}

// HealthStatus reports backing store availability.
type HealthStatus struct {
	Healthy  bool   `json:"healthy"`
	StoreOK  bool   `json:"store_ok"`
	VectorOK bool   `json:"vector_ok"`
	Error    string `json:"error,omitempty"`
}

// Confidence bounds and tier defaults.
const (
	ConfidenceMin = 0.0
	ConfidenceMax = 1.0

	DefaultMinFactConfidence    = 0.7
	DefaultMinEpisodeConfidence = 0.6
)

// Content limits.
const (
	MaxFactValueLength      = 2000
	MaxEpisodeContentLength = 4000
	MaxEpisodeTitleLength   = 200
)

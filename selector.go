package strata

import (
	"context"
	"log/slog"
	"strings"
	"sync"
	"time"
)

// Selector fuses the three memory tiers into one authority-ordered answer
// set. Facts always rank above episodes, episodes above chunks; scores only
// order items within a tier. A single store outage degrades the response to
// the remaining tiers instead of failing the call.
type Selector struct {
	facts     *FactStore
	episodes  *EpisodeStore
	retriever *Retriever
	logger    *slog.Logger

	minFactConfidence    float64
	minEpisodeConfidence float64
	storeTimeout         time.Duration
}

// NewSelector creates a selector over the tier stores.
func NewSelector(facts *FactStore, episodes *EpisodeStore, retriever *Retriever, cfg Config) *Selector {
	cfg = cfg.WithDefaults()
	return &Selector{
		facts:                facts,
		episodes:             episodes,
		retriever:            retriever,
		logger:               cfg.Logger,
		minFactConfidence:    cfg.MinFactConfidence,
		minEpisodeConfidence: cfg.MinEpisodeConfidence,
		storeTimeout:         cfg.StoreTimeout,
	}
}

// Select issues the three tier queries concurrently and fuses the results.
func (s *Selector) Select(ctx context.Context, params SelectParams) (*FusedResult, error) {
	if params.ProjectID == "" {
		return nil, &ValidationError{Field: "ProjectID", Message: "required"}
	}
	if params.TopK <= 0 {
		params.TopK = 10
	}

	minFact := s.minFactConfidence
	minEpisode := s.minEpisodeConfidence
	if params.MinConfidence != nil {
		minFact = *params.MinConfidence
		minEpisode = *params.MinConfidence
	}

	var (
		wg         sync.WaitGroup
		facts      []Fact
		factsErr   error
		episodes   []Episode
		episodeErr error
		chunks     *RankedChunks
		chunkErr   error
	)

	wg.Add(3)
	go func() {
		defer wg.Done()
		tctx, cancel := context.WithTimeout(ctx, s.storeTimeout)
		defer cancel()
		facts, factsErr = s.facts.Query(tctx, params.ProjectID, FactFilter{
			Scopes:        params.ScopeFilter,
			Categories:    params.CategoryFilter,
			MinConfidence: minFact,
		})
	}()
	go func() {
		defer wg.Done()
		tctx, cancel := context.WithTimeout(ctx, s.storeTimeout)
		defer cancel()
		episodes, episodeErr = s.episodes.Query(tctx, params.ProjectID, EpisodeFilter{
			MinQuality: minEpisode,
			Limit:      params.TopK,
		})
	}()
	go func() {
		defer wg.Done()
		chunks, chunkErr = s.retriever.Retrieve(ctx, params.ProjectID, params.Query, params.TopK)
	}()
	wg.Wait()

	result := &FusedResult{}

	if factsErr != nil {
		s.logger.Warn("fact tier unavailable", "project", params.ProjectID, "error", factsErr)
		result.Partial = true
		result.FailedTiers = append(result.FailedTiers, TierFact)
		facts = nil
	}
	if episodeErr != nil {
		s.logger.Warn("episode tier unavailable", "project", params.ProjectID, "error", episodeErr)
		result.Partial = true
		result.FailedTiers = append(result.FailedTiers, TierEpisode)
		episodes = nil
	}
	if chunkErr != nil {
		s.logger.Warn("chunk tier unavailable", "project", params.ProjectID, "error", chunkErr)
		result.Partial = true
		result.FailedTiers = append(result.FailedTiers, TierChunk)
		chunks = nil
	}
	if chunks != nil && chunks.Partial {
		result.Partial = true
	}

	// Keep only facts relevant to the query when one was given.
	if params.Query != "" {
		facts = filterFactsByQuery(facts, params.Query)
		episodes = filterEpisodesByQuery(episodes, params.Query)
	}

	conflictKeys := markFactConflicts(facts)
	conflictKeys = append(conflictKeys, markEpisodeConflicts(episodes)...)
	result.ConflictKeys = conflictKeys

	// Fusion: facts first in authority order, then episodes, then chunks by
	// score. A lower tier only loses items to capacity, never its position.
	for i := range facts {
		if len(result.Items) >= params.TopK {
			break
		}
		result.Items = append(result.Items, FusedItem{
			Tier:     TierFact,
			Fact:     &facts[i],
			Conflict: containsKey(conflictKeys, facts[i].Key),
		})
	}
	for i := range episodes {
		if len(result.Items) >= params.TopK {
			break
		}
		result.Items = append(result.Items, FusedItem{
			Tier:     TierEpisode,
			Episode:  &episodes[i],
			Conflict: containsKey(conflictKeys, episodeConflictKey(&episodes[i])),
		})
	}
	if chunks != nil {
		for i := range chunks.Chunks {
			if len(result.Items) >= params.TopK {
				break
			}
			result.Items = append(result.Items, FusedItem{
				Tier:  TierChunk,
				Chunk: &chunks.Chunks[i],
			})
		}
	}

	return result, nil
}

// filterFactsByQuery keeps facts whose key, value, or category shares a token
// with the query. With no token overlap at all, the full fact tier is kept so
// an unanswerable query still surfaces authoritative context.
func filterFactsByQuery(facts []Fact, query string) []Fact {
	tokens := queryTokens(query)
	if len(tokens) == 0 {
		return facts
	}

	matched := make([]Fact, 0, len(facts))
	for _, f := range facts {
		haystack := strings.ToLower(f.Key + " " + f.Value + " " + f.Category)
		for _, tok := range tokens {
			if strings.Contains(haystack, tok) {
				matched = append(matched, f)
				break
			}
		}
	}
	if len(matched) == 0 {
		return facts
	}
	return matched
}

func filterEpisodesByQuery(episodes []Episode, query string) []Episode {
	tokens := queryTokens(query)
	if len(tokens) == 0 {
		return episodes
	}

	matched := make([]Episode, 0, len(episodes))
	for _, ep := range episodes {
		haystack := strings.ToLower(ep.Title + " " + ep.Content)
		for _, tok := range tokens {
			if strings.Contains(haystack, tok) {
				matched = append(matched, ep)
				break
			}
		}
	}
	if len(matched) == 0 {
		return episodes
	}
	return matched
}

func queryTokens(query string) []string {
	fields := strings.Fields(strings.ToLower(query))
	tokens := make([]string, 0, len(fields))
	for _, f := range fields {
		if _, stop := stopwords[f]; stop {
			continue
		}
		if len(f) < 3 {
			continue
		}
		tokens = append(tokens, f)
	}
	return tokens
}

// markFactConflicts finds facts that share a key but disagree in value.
// Within the unique (project, scope, category, key) constraint this can only
// happen across scopes or categories; the conflict is flagged, not resolved.
func markFactConflicts(facts []Fact) []string {
	byKey := make(map[string][]int)
	for i, f := range facts {
		byKey[f.Key] = append(byKey[f.Key], i)
	}

	var keys []string
	for key, idxs := range byKey {
		if len(idxs) < 2 {
			continue
		}
		first := facts[idxs[0]].Value
		for _, i := range idxs[1:] {
			if facts[i].Value != first {
				keys = append(keys, key)
				break
			}
		}
	}
	return keys
}

// markEpisodeConflicts flags episodes of the same lesson type whose titles
// overlap on more than half of the shorter title's tokens but whose content
// differs.
func markEpisodeConflicts(episodes []Episode) []string {
	var keys []string
	for i := range episodes {
		for j := i + 1; j < len(episodes); j++ {
			if episodes[i].LessonType != episodes[j].LessonType {
				continue
			}
			if episodes[i].Content == episodes[j].Content {
				continue
			}
			if titleOverlap(episodes[i].Title, episodes[j].Title) {
				for _, key := range []string{episodeConflictKey(&episodes[i]), episodeConflictKey(&episodes[j])} {
					if !containsKey(keys, key) {
						keys = append(keys, key)
					}
				}
			}
		}
	}
	return keys
}

func episodeConflictKey(ep *Episode) string {
	return string(ep.LessonType) + ":" + strings.ToLower(ep.Title)
}

func titleOverlap(a, b string) bool {
	ta := strings.Fields(strings.ToLower(a))
	tb := strings.Fields(strings.ToLower(b))
	if len(ta) == 0 || len(tb) == 0 {
		return false
	}

	set := make(map[string]struct{}, len(ta))
	for _, t := range ta {
		set[t] = struct{}{}
	}

	shared := 0
	for _, t := range tb {
		if _, ok := set[t]; ok {
			shared++
		}
	}

	shorter := len(ta)
	if len(tb) < shorter {
		shorter = len(tb)
	}
	return shared*2 > shorter
}

func containsKey(keys []string, key string) bool {
	for _, k := range keys {
		if k == key {
			return true
		}
	}
	return false
}

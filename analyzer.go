package strata

import (
	"context"
	"log/slog"
	"strings"
	"sync"
	"time"
)

// Analyzer turns raw conversation turns into stored facts and episodes.
// Each call moves through extraction, confidence scoring, per-day
// deduplication, and parallel persistence; the async entry point detaches
// the whole pipeline onto a bounded worker pool so the agent's own
// request/response cycle never waits on memory writes.
type Analyzer struct {
	facts    *FactStore
	episodes *EpisodeStore
	dedup    *DedupStore
	logger   *slog.Logger

	minFactConfidence    float64
	minEpisodeConfidence float64
	storeTimeout         time.Duration
	budget               *workBudget

	mu     sync.Mutex
	tasks  chan AnalyzeParams
	wg     sync.WaitGroup
	closed bool
}

// NewAnalyzer creates an analyzer and starts its worker pool.
func NewAnalyzer(facts *FactStore, episodes *EpisodeStore, dedup *DedupStore, cfg Config) *Analyzer {
	cfg = cfg.WithDefaults()

	a := &Analyzer{
		facts:                facts,
		episodes:             episodes,
		dedup:                dedup,
		logger:               cfg.Logger,
		minFactConfidence:    cfg.MinFactConfidence,
		minEpisodeConfidence: cfg.MinEpisodeConfidence,
		storeTimeout:         cfg.StoreTimeout,
		budget:               newWorkBudget(cfg.DailyTokenBudget),
		tasks:                make(chan AnalyzeParams, cfg.AnalyzerWorkers*8),
	}

	for i := 0; i < cfg.AnalyzerWorkers; i++ {
		a.wg.Add(1)
		go a.worker()
	}

	return a
}

func (a *Analyzer) worker() {
	defer a.wg.Done()
	for params := range a.tasks {
		ctx, cancel := context.WithTimeout(context.Background(), a.storeTimeout*4)
		result, err := a.Analyze(ctx, params)
		cancel()
		if err != nil {
			a.logger.Warn("async analysis failed", "project", params.ProjectID, "error", err)
			continue
		}
		if result.FactsStored > 0 || result.EpisodesStored > 0 {
			a.logger.Info("async analysis stored learnings",
				"project", params.ProjectID,
				"facts", result.FactsStored,
				"episodes", result.EpisodesStored)
		}
	}
}

// AnalyzeAsync queues a turn for background analysis and returns
// immediately. When the queue is full the turn is dropped with a log line;
// analysis is advisory and must never block or fail the caller.
func (a *Analyzer) AnalyzeAsync(params AnalyzeParams) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.closed {
		return
	}

	select {
	case a.tasks <- params:
	default:
		a.logger.Warn("analysis queue full, dropping turn", "project", params.ProjectID)
	}
}

// Close drains the worker pool. Queued turns are still analyzed.
func (a *Analyzer) Close() {
	a.mu.Lock()
	if a.closed {
		a.mu.Unlock()
		return
	}
	a.closed = true
	close(a.tasks)
	a.mu.Unlock()

	a.wg.Wait()
}

// Analyze runs the extraction pipeline for one conversation turn. Malformed
// or empty input yields an empty result, not an error; extraction failures
// are logged and treated as zero candidates.
func (a *Analyzer) Analyze(ctx context.Context, params AnalyzeParams) (*AnalyzeResult, error) {
	result := &AnalyzeResult{Facts: []Fact{}, Episodes: []Episode{}}

	if params.ProjectID == "" {
		return result, nil
	}
	text := strings.TrimSpace(params.UserMessage + " " + params.AgentResponse)
	if text == "" {
		return result, nil
	}

	if !a.budget.allow(len(strings.Fields(text))) {
		result.Partial = true
		result.Message = "analysis work budget exceeded"
		a.logger.Warn("analysis budget exhausted", "project", params.ProjectID)
		return result, nil
	}

	candidates := a.extract(params)
	if len(candidates) == 0 {
		return result, nil
	}

	var factCandidates []Candidate
	var episodeCandidates []Candidate
	for _, c := range candidates {
		switch c.Type {
		case CandidateFact:
			if c.Confidence < a.minFactConfidence {
				continue
			}
			factCandidates = append(factCandidates, c)
		case CandidateEpisode:
			if c.Confidence < a.minEpisodeConfidence {
				continue
			}
			episodeCandidates = append(episodeCandidates, c)
		}
	}

	factCandidates = a.dedupe(ctx, params.ProjectID, factCandidates)
	episodeCandidates = a.dedupe(ctx, params.ProjectID, episodeCandidates)

	// Facts and episodes persist in parallel; a failure on one side never
	// blocks or rolls back the other.
	var wg sync.WaitGroup
	var factErr, episodeErr error
	var storedFacts []Fact
	var storedEpisodes []Episode

	wg.Add(2)
	go func() {
		defer wg.Done()
		storedFacts, factErr = a.persistFacts(ctx, params.ProjectID, factCandidates)
	}()
	go func() {
		defer wg.Done()
		storedEpisodes, episodeErr = a.persistEpisodes(ctx, params.ProjectID, episodeCandidates)
	}()
	wg.Wait()

	if factErr != nil {
		a.logger.Warn("fact persistence degraded", "project", params.ProjectID, "error", factErr)
		result.Partial = true
	}
	if episodeErr != nil {
		a.logger.Warn("episode persistence degraded", "project", params.ProjectID, "error", episodeErr)
		result.Partial = true
	}

	result.Facts = storedFacts
	result.FactsStored = len(storedFacts)
	result.Episodes = storedEpisodes
	result.EpisodesStored = len(storedEpisodes)
	return result, nil
}

// extract runs the pattern library, converting any panic into zero
// candidates so a bad pattern can never take down a caller.
func (a *Analyzer) extract(params AnalyzeParams) (candidates []Candidate) {
	defer func() {
		if r := recover(); r != nil {
			a.logger.Error("extraction panicked", "project", params.ProjectID, "panic", r)
			candidates = nil
		}
	}()
	return ExtractCandidates(params.ProjectID, params.UserMessage, params.AgentResponse)
}

func (a *Analyzer) dedupe(ctx context.Context, projectID string, candidates []Candidate) []Candidate {
	accepted := candidates[:0]
	for _, c := range candidates {
		outcome, err := a.dedup.Check(ctx, projectID, c.IdentityKey)
		if err != nil {
			a.logger.Warn("dedup check failed, skipping candidate",
				"project", projectID, "identity", c.IdentityKey, "error", err)
			continue
		}
		if outcome == RejectDuplicate {
			continue
		}
		accepted = append(accepted, c)
	}
	return accepted
}

func (a *Analyzer) persistFacts(ctx context.Context, projectID string, candidates []Candidate) ([]Fact, error) {
	var stored []Fact
	var firstErr error
	for _, c := range candidates {
		tctx, cancel := context.WithTimeout(ctx, a.storeTimeout)
		err := a.facts.Put(tctx, c.Fact)
		cancel()
		if err != nil {
			a.releaseSlot(ctx, projectID, c.IdentityKey)
			if firstErr == nil {
				firstErr = err
			}
			continue
		}
		stored = append(stored, *c.Fact)
	}
	return stored, firstErr
}

func (a *Analyzer) persistEpisodes(ctx context.Context, projectID string, candidates []Candidate) ([]Episode, error) {
	var stored []Episode
	var firstErr error
	for _, c := range candidates {
		tctx, cancel := context.WithTimeout(ctx, a.storeTimeout)
		ep, err := a.episodes.Append(tctx, *c.Episode)
		cancel()
		if err != nil {
			a.releaseSlot(ctx, projectID, c.IdentityKey)
			if firstErr == nil {
				firstErr = err
			}
			continue
		}
		stored = append(stored, *ep)
	}
	return stored, firstErr
}

// releaseSlot returns the dedup slot claimed during Check when a candidate's
// write failed, so the same learning can still be stored on a later turn
// today. Runs on a fresh timeout because the write may have failed on ctx.
func (a *Analyzer) releaseSlot(ctx context.Context, projectID, identityKey string) {
	tctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), a.storeTimeout)
	defer cancel()
	if err := a.dedup.Forget(tctx, projectID, identityKey); err != nil {
		a.logger.Warn("dedup release failed",
			"project", projectID, "identity", identityKey, "error", err)
	}
}

// workBudget caps extraction work per calendar day. A zero limit disables
// the gate.
type workBudget struct {
	mu    sync.Mutex
	limit int
	used  int
	day   string
	now   func() time.Time
}

func newWorkBudget(limit int) *workBudget {
	return &workBudget{limit: limit, now: time.Now}
}

// allow reports whether n more tokens of work fit today's budget, consuming
// them when they do.
func (b *workBudget) allow(n int) bool {
	if b.limit <= 0 {
		return true
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	today := b.now().UTC().Format(dateLayout)
	if b.day != today {
		b.day = today
		b.used = 0
	}

	if b.used+n > b.limit {
		return false
	}
	b.used += n
	return true
}

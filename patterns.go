package strata

import (
	"crypto/sha256"
	"fmt"
	"regexp"
	"strings"
	"time"
)

// factRule recognizes one authoritative phrasing. Each rule carries a fixed
// confidence for its pattern family; scores are constants, not corpus
// statistics, so extraction stays deterministic and cheap.
type factRule struct {
	re         *regexp.Regexp
	confidence float64
}

// episodeRule recognizes one experiential phrasing.
type episodeRule struct {
	re         *regexp.Regexp
	lessonType LessonType
	confidence float64
}

// Fact patterns: capture group 1 is the subject, group 2 the value.
var factRules = []factRule{
	{regexp.MustCompile(`(?i)\bour\s+([a-z][a-z0-9 _-]{1,40}?)\s+is\s+(\S+)`), 0.85},
	{regexp.MustCompile(`(?i)\b([a-z][a-z0-9 _.-]{1,40}?)\s+is configured (?:as|to)\s+(\S+)`), 0.80},
	{regexp.MustCompile(`(?i)\bthe\s+([a-z][a-z0-9 _-]{1,40}?)\s+is set to\s+(\S+)`), 0.80},
	{regexp.MustCompile(`(?i)\bset\s+([A-Z][A-Z0-9_]+)\s*(?:=|to)\s*(\S+)`), 0.75},
	{regexp.MustCompile(`(?i)\b([a-z][a-z0-9 _-]{1,40}?)\s+defaults to\s+(\S+)`), 0.70},
}

// Episode patterns: capture group 1 is the lesson text.
var episodeRules = []episodeRule{
	{regexp.MustCompile(`(?i)\b(?:i|we) found a workaround (?:for|to)\s+(.{4,200})`), LessonWorkaround, 0.75},
	{regexp.MustCompile(`(?i)\bworkaround:\s*(.{4,200})`), LessonWorkaround, 0.75},
	{regexp.MustCompile(`(?i)\bthe lesson (?:is|was|here is)\s+(.{4,200})`), LessonPattern, 0.70},
	{regexp.MustCompile(`(?i)\bgotcha:\s*(.{4,200})`), LessonMistake, 0.70},
	{regexp.MustCompile(`(?i)\b(?:i|we) made a mistake (?:by|with|in)\s+(.{4,200})`), LessonMistake, 0.65},
	{regexp.MustCompile(`(?i)\bdecision:\s*(.{4,200})`), LessonDecision, 0.70},
	{regexp.MustCompile(`(?i)\b(?:i|we) decided to\s+(.{4,200})`), LessonDecision, 0.70},
	{regexp.MustCompile(`(?i)\bit worked (?:when|after|once)\s+(.{4,200})`), LessonSuccess, 0.60},
	{regexp.MustCompile(`(?i)\b(?:it|this|the build) (?:failed|broke) (?:when|after|because)\s+(.{4,200})`), LessonFailure, 0.60},
}

// factValueVerbs are captures that mean the sentence continues with a
// different phrasing, not a value.
var factValueVerbs = map[string]struct{}{
	"configured": {},
	"set":        {},
	"now":        {},
	"not":        {},
}

// ExtractCandidates runs the fixed pattern library over one conversation
// turn. Matching is case-insensitive and independent per pattern; a single
// message may yield zero, one, or several candidates.
func ExtractCandidates(projectID, userMessage, agentResponse string) []Candidate {
	text := strings.TrimSpace(userMessage + "\n" + agentResponse)
	if text == "" {
		return nil
	}

	now := time.Now().UTC()
	sourceHash := hashText(text)
	var candidates []Candidate

	for _, rule := range factRules {
		for _, m := range rule.re.FindAllStringSubmatch(text, -1) {
			key := factKey(m[1])
			value := strings.TrimRight(m[2], ".,;:!?")
			if key == "" || value == "" {
				continue
			}
			// RE2 has no lookahead; drop captures that are really the verb
			// of a longer phrasing handled by another rule.
			if _, verb := factValueVerbs[strings.ToLower(value)]; verb {
				continue
			}
			candidates = append(candidates, Candidate{
				Type:        CandidateFact,
				IdentityKey: "fact:" + key + ":" + hashText(value),
				Confidence:  rule.confidence,
				ExtractedAt: now,
				SourceHash:  sourceHash,
				Fact: &Fact{
					Key:        key,
					Value:      value,
					Confidence: rule.confidence,
					Category:   "extracted",
					Scope:      ScopeProject,
					ProjectID:  projectID,
				},
			})
		}
	}

	for _, rule := range episodeRules {
		for _, m := range rule.re.FindAllStringSubmatch(text, -1) {
			lesson := strings.TrimSpace(strings.TrimRight(m[1], "."))
			if lesson == "" {
				continue
			}
			title := episodeTitle(lesson)
			candidates = append(candidates, Candidate{
				Type:        CandidateEpisode,
				IdentityKey: "episode:" + string(rule.lessonType) + ":" + hashText(strings.ToLower(title)),
				Confidence:  rule.confidence,
				ExtractedAt: now,
				SourceHash:  sourceHash,
				Episode: &Episode{
					Title:      title,
					Content:    lesson,
					LessonType: rule.lessonType,
					Quality:    rule.confidence,
					ProjectID:  projectID,
				},
			})
		}
	}

	return candidates
}

// factKey normalizes a matched subject into a snake_case fact key.
func factKey(subject string) string {
	fields := strings.Fields(strings.ToLower(strings.TrimSpace(subject)))
	if len(fields) == 0 {
		return ""
	}
	return strings.Join(fields, "_")
}

// episodeTitle derives a short title from the start of the lesson text.
func episodeTitle(lesson string) string {
	fields := strings.Fields(lesson)
	if len(fields) > 8 {
		fields = fields[:8]
	}
	title := strings.Join(fields, " ")
	if len(title) > MaxEpisodeTitleLength {
		title = title[:MaxEpisodeTitleLength]
	}
	return title
}

func hashText(text string) string {
	sum := sha256.Sum256([]byte(text))
	return fmt.Sprintf("%x", sum[:8])
}

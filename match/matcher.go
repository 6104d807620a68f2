// Package match ranks registered agents against a free-text query or an
// exact capability identifier, blending relevance with context fit.
package match

import (
	"context"
	"log"
	"math"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/agentnet/discovery/domain"
	"github.com/agentnet/discovery/store"
)

// DefaultMinScore is the combined-score threshold applied when a query
// does not supply one.
const DefaultMinScore = 0.65

// semanticThreshold is the minimum cosine similarity for a semantic match.
const semanticThreshold = 0.6

// Embedder generates embedding vectors from text. A nil embedder disables
// the semantic tier.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float64, error)
}

// Query is a relevance-matching request.
type Query struct {
	Query     string              `json:"query"`
	SkillHint string              `json:"skill_hint,omitempty"`
	Context   domain.QueryContext `json:"context"`
	MinScore  float64             `json:"min_score,omitempty"`
}

type skillVector struct {
	skillID string
	vec     []float64
}

// Matcher ranks candidates with a three-tier strategy: exact skill match,
// semantic similarity over cached skill embeddings, then substring
// fallback. The first tier yielding at least one candidate wins.
type Matcher struct {
	registry *store.Registry
	embedder Embedder
	timeout  time.Duration

	mu      sync.RWMutex
	vectors map[string][]skillVector // agent_id -> cached skill embeddings
}

// NewMatcher creates a matcher. embedder may be nil.
func NewMatcher(registry *store.Registry, embedder Embedder, embedTimeout time.Duration) *Matcher {
	return &Matcher{
		registry: registry,
		embedder: embedder,
		timeout:  embedTimeout,
		vectors:  make(map[string][]skillVector),
	}
}

// IndexAgent computes and caches one embedding per skill from
// "skill_id + description" text. Called at registration time and again on
// re-registration; embedding failures are absorbed, leaving the agent
// without semantic candidates. The cache lock is never held across
// embedding calls.
func (m *Matcher) IndexAgent(ctx context.Context, rec *domain.PointerRecord) {
	if m.embedder == nil {
		return
	}

	var vectors []skillVector
	for _, skill := range rec.Skills {
		text := skill
		if desc := rec.SkillDescriptions[skill]; desc != "" {
			text = skill + " " + desc
		}
		embedCtx, cancel := context.WithTimeout(ctx, m.timeout)
		vec, err := m.embedder.Embed(embedCtx, text)
		cancel()
		if err != nil {
			log.Printf("WARN: skill embedding failed for %s/%s: %v", rec.AgentID, skill, err)
			continue
		}
		vectors = append(vectors, skillVector{skillID: skill, vec: vec})
	}

	m.mu.Lock()
	if len(vectors) == 0 {
		delete(m.vectors, rec.AgentID)
	} else {
		m.vectors[rec.AgentID] = vectors
	}
	m.mu.Unlock()
}

// RemoveAgent drops the cached embeddings for an agent.
func (m *Matcher) RemoveAgent(agentID string) {
	m.mu.Lock()
	delete(m.vectors, agentID)
	m.mu.Unlock()
}

// Match runs the tiered matching strategy and returns candidates sorted by
// descending combined score. Candidates below the min-score threshold are
// dropped. Embedding-backend errors are swallowed: they empty the semantic
// tier, never fail the request.
func (m *Matcher) Match(ctx context.Context, q Query) []domain.ResolvedCandidate {
	minScore := q.MinScore
	if minScore <= 0 {
		minScore = DefaultMinScore
	}

	records := m.registry.List()

	candidates := m.matchExact(records, q.SkillHint)
	if len(candidates) == 0 {
		candidates = m.matchSemantic(ctx, records, q.Query)
	}
	if len(candidates) == 0 {
		candidates = matchSubstring(records, q.Query)
	}

	results := make([]domain.ResolvedCandidate, 0, len(candidates))
	for _, c := range candidates {
		c.ContextScore = contextScore(c.record, q.Context)
		combined := 0.6*c.RelevanceScore + 0.4*c.ContextScore
		c.CombinedScore = clamp01(combined)
		if c.CombinedScore < minScore {
			continue
		}
		results = append(results, c.ResolvedCandidate)
	}

	sort.SliceStable(results, func(i, j int) bool {
		return results[i].CombinedScore > results[j].CombinedScore
	})
	return results
}

// scored pairs a candidate with the record it came from, so context scoring
// can run after the relevance tier picked the winners.
type scored struct {
	domain.ResolvedCandidate
	record *domain.PointerRecord
}

func newScored(rec *domain.PointerRecord, relevance float64, matched string, reason domain.MatchReason) scored {
	return scored{
		ResolvedCandidate: domain.ResolvedCandidate{
			AgentID:        rec.AgentID,
			AgentName:      rec.AgentName,
			FactsURL:       rec.FactsURL,
			Skills:         rec.Skills,
			Region:         rec.Region,
			RelevanceScore: relevance,
			MatchedSkill:   matched,
			MatchReason:    reason,
		},
		record: rec,
	}
}

func (m *Matcher) matchExact(records []domain.PointerRecord, hint string) []scored {
	if hint == "" {
		return nil
	}
	var out []scored
	for i := range records {
		rec := &records[i]
		for _, skill := range rec.Skills {
			if skill == hint {
				out = append(out, newScored(rec, 1.0, skill, domain.MatchExact))
				break
			}
		}
	}
	return out
}

func (m *Matcher) matchSemantic(ctx context.Context, records []domain.PointerRecord, query string) []scored {
	if m.embedder == nil || query == "" {
		return nil
	}

	embedCtx, cancel := context.WithTimeout(ctx, m.timeout)
	queryVec, err := m.embedder.Embed(embedCtx, query)
	cancel()
	if err != nil {
		log.Printf("WARN: query embedding failed, skipping semantic tier: %v", err)
		return nil
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []scored
	for i := range records {
		rec := &records[i]
		best := 0.0
		bestSkill := ""
		for _, sv := range m.vectors[rec.AgentID] {
			if sim := Cosine(queryVec, sv.vec); sim >= semanticThreshold && sim > best {
				best = sim
				bestSkill = sv.skillID
			}
		}
		if bestSkill != "" {
			out = append(out, newScored(rec, best, bestSkill, domain.MatchSemantic))
		}
	}
	return out
}

func matchSubstring(records []domain.PointerRecord, query string) []scored {
	tokens := tokenize(query)
	if len(tokens) == 0 {
		return nil
	}

	var out []scored
	for i := range records {
		rec := &records[i]
		for _, skill := range rec.Skills {
			text := strings.ToLower(skill + " " + rec.SkillDescriptions[skill])
			found := 0
			for _, tok := range tokens {
				if strings.Contains(text, tok) {
					found++
				}
			}
			if found == 0 {
				continue
			}
			relevance := math.Min(float64(found)/float64(len(tokens)), 1.0)
			out = append(out, newScored(rec, relevance, skill, domain.MatchSubstring))
			break // one match per agent, first hit
		}
	}
	return out
}

// contextScore is additive and capped at 1.0. Compliance overlap and
// lead-time fit carry placeholder credit until capability documents expose
// the data to score them against.
func contextScore(rec *domain.PointerRecord, ctx domain.QueryContext) float64 {
	score := 0.0
	if ctx.Region != "" {
		if strings.EqualFold(ctx.Region, rec.Region) {
			score += 0.3
		}
	} else {
		score += 0.15
	}
	score += 0.15 // compliance overlap placeholder
	score += 0.1  // lead-time fit placeholder
	if rec.RegisteredAt.IsZero() {
		score += 0.1
	} else if rec.Live(time.Now()) {
		score += 0.2
	}
	return clamp01(score)
}

func tokenize(query string) []string {
	var tokens []string
	for _, word := range strings.Fields(strings.ToLower(query)) {
		word = strings.Trim(word, ".,;:!?()[]\"'")
		if len(word) > 2 {
			tokens = append(tokens, word)
		}
	}
	return tokens
}

// Cosine returns the cosine similarity dot/(‖a‖·‖b‖), defined as 0 when
// either norm is 0 or the dimensions disagree.
func Cosine(a, b []float64) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	var dot, normA, normB float64
	for i := range a {
		dot += a[i] * b[i]
		normA += a[i] * a[i]
		normB += b[i] * b[i]
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

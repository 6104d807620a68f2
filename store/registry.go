// Package store holds the lean registry: one TTL-bounded pointer record per
// agent, with an optional durable mirror for restart recovery.
package store

import (
	"context"
	"log"
	"strings"
	"sync"
	"time"

	"github.com/agentnet/discovery/crypto"
	"github.com/agentnet/discovery/domain"
)

// DefaultTTL is applied when a registration omits a TTL.
const DefaultTTL = 3600

// Stats summarizes the live registry content.
type Stats struct {
	TotalAgents    int            `json:"total_agents"`
	AgentsByRegion map[string]int `json:"agents_by_region"`
	UniqueSkills   int            `json:"unique_skills"`
	Durable        bool           `json:"durable"`
}

// SearchFilter is the coarse substring filter for GET /search.
type SearchFilter struct {
	SkillKeywords []string // at least one keyword must appear in some skill id
	Region        string   // exact, case-insensitive
	Query         string   // substring over agent_id and agent_name
}

// DiscoverFilter is the AND-combined discovery filter.
type DiscoverFilter struct {
	Role         string
	Capability   string
	Jurisdiction string
	Query        string // substring over agent_id, agent_name, facts_url
}

// Registry is the in-memory lean index. A single RWMutex gives per-key
// linearizable register/remove and snapshot reads; records are copied in
// and out so readers never observe a half-written record. At the expected
// scale (tens to low hundreds of agents) the global lock is uncontended.
type Registry struct {
	mu      sync.RWMutex
	entries map[string]*domain.PointerRecord // agent_id -> record
	names   map[string]string                // agent_name -> agent_id

	signer  *crypto.Signer
	durable Durable // nil in memory-only operation
	now     func() time.Time
}

// NewRegistry creates a registry. durable may be nil.
func NewRegistry(signer *crypto.Signer, durable Durable) *Registry {
	return &Registry{
		entries: make(map[string]*domain.PointerRecord),
		names:   make(map[string]string),
		signer:  signer,
		durable: durable,
		now:     time.Now,
	}
}

// Restore hydrates the registry from the durable mirror on startup.
// Expired records are skipped. Without a durable store this is a no-op.
func (r *Registry) Restore(ctx context.Context) error {
	if r.durable == nil {
		return nil
	}
	records, err := r.durable.LoadPointers(ctx)
	if err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	now := r.now()
	loaded := 0
	for i := range records {
		rec := records[i]
		if !rec.Live(now) {
			continue
		}
		r.entries[rec.AgentID] = &rec
		r.names[rec.AgentName] = rec.AgentID
		loaded++
	}
	log.Printf("Restored %d agents from durable store", loaded)
	return nil
}

// Register validates, stamps, signs, and upserts a pointer record by
// agent_id. A later registration with the same id replaces the prior
// record. Returns a copy of the stored record.
func (r *Registry) Register(ctx context.Context, rec *domain.PointerRecord) (*domain.PointerRecord, error) {
	if rec.AgentID == "" || rec.AgentName == "" || rec.FactsURL == "" {
		return nil, domain.ErrMalformedRecord
	}

	stored := cloneRecord(rec)
	if stored.TTL <= 0 {
		stored.TTL = DefaultTTL
	}
	stored.RegisteredAt = r.now().UTC()
	stored.Signature = ""
	sig, err := r.signer.Sign(stored)
	if err != nil {
		return nil, err
	}
	stored.Signature = sig

	r.mu.Lock()
	if prev, ok := r.entries[stored.AgentID]; ok && prev.AgentName != stored.AgentName {
		delete(r.names, prev.AgentName)
	}
	r.entries[stored.AgentID] = stored
	r.names[stored.AgentName] = stored.AgentID
	r.mu.Unlock()

	if r.durable != nil {
		if err := r.durable.SavePointer(ctx, stored); err != nil {
			log.Printf("WARN: durable upsert failed for %s: %v", stored.AgentID, err)
		}
	}

	return cloneRecord(stored), nil
}

// ResolveByID returns the live record for agent_id, or ErrNotFound if the
// id is unknown or the record's TTL has elapsed.
func (r *Registry) ResolveByID(agentID string) (*domain.PointerRecord, error) {
	r.mu.RLock()
	rec, ok := r.entries[agentID]
	r.mu.RUnlock()
	if !ok || !rec.Live(r.now()) {
		return nil, domain.ErrNotFound
	}
	return cloneRecord(rec), nil
}

// ResolveByName resolves via the secondary name index.
func (r *Registry) ResolveByName(agentName string) (*domain.PointerRecord, error) {
	r.mu.RLock()
	id, ok := r.names[agentName]
	r.mu.RUnlock()
	if !ok {
		return nil, domain.ErrNotFound
	}
	return r.ResolveByID(id)
}

// Discover returns all live records matching every supplied filter.
// Role and capability match against agent_id and agent_name, jurisdiction
// against agent_name; the free-text query also covers facts_url.
func (r *Registry) Discover(f DiscoverFilter) []domain.PointerRecord {
	role := strings.ToLower(f.Role)
	capability := strings.ToLower(f.Capability)
	jurisdiction := strings.ToLower(f.Jurisdiction)
	query := strings.ToLower(f.Query)

	var results []domain.PointerRecord
	r.forEachLive(func(rec *domain.PointerRecord) {
		id := strings.ToLower(rec.AgentID)
		name := strings.ToLower(rec.AgentName)

		if role != "" && !strings.Contains(id, role) && !strings.Contains(name, role) {
			return
		}
		if capability != "" && !strings.Contains(id, capability) && !strings.Contains(name, capability) {
			return
		}
		if jurisdiction != "" && !strings.Contains(name, jurisdiction) {
			return
		}
		if query != "" && !strings.Contains(id, query) && !strings.Contains(name, query) &&
			!strings.Contains(strings.ToLower(rec.FactsURL), query) {
			return
		}
		results = append(results, *cloneRecord(rec))
	})
	return results
}

// Search applies the coarse substring filter used by GET /search.
func (r *Registry) Search(f SearchFilter) []domain.PointerRecord {
	keywords := make([]string, 0, len(f.SkillKeywords))
	for _, kw := range f.SkillKeywords {
		kw = strings.ToLower(strings.TrimSpace(kw))
		if kw != "" {
			keywords = append(keywords, kw)
		}
	}
	region := strings.ToLower(strings.TrimSpace(f.Region))
	query := strings.ToLower(strings.TrimSpace(f.Query))

	var results []domain.PointerRecord
	r.forEachLive(func(rec *domain.PointerRecord) {
		if len(keywords) > 0 && !skillsMatchAny(rec.Skills, keywords) {
			return
		}
		if region != "" && strings.ToLower(rec.Region) != region {
			return
		}
		if query != "" {
			id := strings.ToLower(rec.AgentID)
			name := strings.ToLower(rec.AgentName)
			if !strings.Contains(id, query) && !strings.Contains(name, query) {
				return
			}
		}
		results = append(results, *cloneRecord(rec))
	})
	return results
}

// List returns all live records.
func (r *Registry) List() []domain.PointerRecord {
	var results []domain.PointerRecord
	r.forEachLive(func(rec *domain.PointerRecord) {
		results = append(results, *cloneRecord(rec))
	})
	return results
}

// Remove deletes by id and cleans the name index. It is idempotent:
// removing an absent id reports false without error.
func (r *Registry) Remove(ctx context.Context, agentID string) bool {
	r.mu.Lock()
	rec, ok := r.entries[agentID]
	if ok {
		delete(r.entries, agentID)
		if r.names[rec.AgentName] == agentID {
			delete(r.names, rec.AgentName)
		}
	}
	r.mu.Unlock()

	if ok && r.durable != nil {
		if err := r.durable.DeletePointer(ctx, agentID); err != nil {
			log.Printf("WARN: durable delete failed for %s: %v", agentID, err)
		}
	}
	return ok
}

// Count returns the number of live records.
func (r *Registry) Count() int {
	n := 0
	r.forEachLive(func(*domain.PointerRecord) { n++ })
	return n
}

// Stats aggregates live records by region and unique skill ids.
func (r *Registry) Stats() Stats {
	byRegion := make(map[string]int)
	skills := make(map[string]struct{})
	total := 0
	r.forEachLive(func(rec *domain.PointerRecord) {
		total++
		region := rec.Region
		if region == "" {
			region = "unknown"
		}
		byRegion[region]++
		for _, s := range rec.Skills {
			skills[s] = struct{}{}
		}
	})
	return Stats{
		TotalAgents:    total,
		AgentsByRegion: byRegion,
		UniqueSkills:   len(skills),
		Durable:        r.durable != nil,
	}
}

// forEachLive calls fn for every live record under the read lock. Expired
// entries are skipped (lazy expiry); callers must not retain the pointer.
func (r *Registry) forEachLive(fn func(*domain.PointerRecord)) {
	now := r.now()
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, rec := range r.entries {
		if rec.Live(now) {
			fn(rec)
		}
	}
}

func skillsMatchAny(skills, keywords []string) bool {
	for _, skill := range skills {
		s := strings.ToLower(skill)
		for _, kw := range keywords {
			if strings.Contains(s, kw) {
				return true
			}
		}
	}
	return false
}

func cloneRecord(rec *domain.PointerRecord) *domain.PointerRecord {
	out := *rec
	if rec.Skills != nil {
		out.Skills = append([]string(nil), rec.Skills...)
	}
	if rec.SkillDescriptions != nil {
		out.SkillDescriptions = make(map[string]string, len(rec.SkillDescriptions))
		for k, v := range rec.SkillDescriptions {
			out.SkillDescriptions[k] = v
		}
	}
	return &out
}

package store

import (
	"context"
	"log"
	"sync"

	"github.com/agentnet/discovery/domain"
)

// Deployments holds one deployment record per agent. Records are created
// and refreshed by the agent itself; resolution logic only reads them,
// except for the load field which agents update frequently.
type Deployments struct {
	mu      sync.RWMutex
	records map[string]*domain.DeploymentRecord
	durable Durable // nil in memory-only operation
}

// NewDeployments creates a deployment table. durable may be nil.
func NewDeployments(durable Durable) *Deployments {
	return &Deployments{
		records: make(map[string]*domain.DeploymentRecord),
		durable: durable,
	}
}

// Restore hydrates the table from the durable mirror on startup.
func (d *Deployments) Restore(ctx context.Context) error {
	if d.durable == nil {
		return nil
	}
	records, err := d.durable.LoadDeployments(ctx)
	if err != nil {
		return err
	}
	d.mu.Lock()
	for i := range records {
		rec := records[i]
		d.records[rec.AgentID] = &rec
	}
	d.mu.Unlock()
	return nil
}

// Put creates or replaces the deployment record for an agent.
func (d *Deployments) Put(ctx context.Context, rec *domain.DeploymentRecord) error {
	if rec.AgentID == "" {
		return domain.ErrMalformedRecord
	}
	stored := cloneDeployment(rec)
	stored.CurrentLoad = clampLoad(stored.CurrentLoad)

	d.mu.Lock()
	d.records[stored.AgentID] = stored
	d.mu.Unlock()

	if d.durable != nil {
		if err := d.durable.SaveDeployment(ctx, stored); err != nil {
			log.Printf("WARN: durable deployment upsert failed for %s: %v", stored.AgentID, err)
		}
	}
	return nil
}

// Get returns a copy of the deployment record, or ErrNotFound.
func (d *Deployments) Get(agentID string) (*domain.DeploymentRecord, error) {
	d.mu.RLock()
	rec, ok := d.records[agentID]
	d.mu.RUnlock()
	if !ok {
		return nil, domain.ErrNotFound
	}
	return cloneDeployment(rec), nil
}

// UpdateLoad sets the agent's current load, clamped to [0, 1]. Updating an
// unknown agent is a no-op, matching heartbeat semantics.
func (d *Deployments) UpdateLoad(ctx context.Context, agentID string, load float64) {
	load = clampLoad(load)

	d.mu.Lock()
	rec, ok := d.records[agentID]
	if ok {
		rec.CurrentLoad = load
	}
	var snapshot *domain.DeploymentRecord
	if ok && d.durable != nil {
		snapshot = cloneDeployment(rec)
	}
	d.mu.Unlock()

	if snapshot != nil {
		if err := d.durable.SaveDeployment(ctx, snapshot); err != nil {
			log.Printf("WARN: durable load update failed for %s: %v", agentID, err)
		}
	}
}

// Count returns the number of deployment records.
func (d *Deployments) Count() int {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return len(d.records)
}

func clampLoad(load float64) float64 {
	if load < 0 {
		return 0
	}
	if load > 1 {
		return 1
	}
	return load
}

func cloneDeployment(rec *domain.DeploymentRecord) *domain.DeploymentRecord {
	out := *rec
	if rec.Resources != nil {
		out.Resources = make([]domain.DeploymentResource, len(rec.Resources))
		for i, res := range rec.Resources {
			cp := res
			if res.GeoLat != nil {
				lat := *res.GeoLat
				cp.GeoLat = &lat
			}
			if res.GeoLon != nil {
				lon := *res.GeoLon
				cp.GeoLon = &lon
			}
			if res.Hardware != nil {
				cp.Hardware = append([]string(nil), res.Hardware...)
			}
			out.Resources[i] = cp
		}
	}
	return &out
}

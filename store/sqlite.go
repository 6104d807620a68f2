package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/agentnet/discovery/domain"
)

// SQLiteStore implements Durable using SQLite.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore opens (or creates) the mirror database and runs migrations.
func NewSQLiteStore(dsn string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	s := &SQLiteStore{db: db}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}
	return s, nil
}

func (s *SQLiteStore) migrate() error {
	migrations := []string{
		`CREATE TABLE IF NOT EXISTS pointers (
			agent_id TEXT PRIMARY KEY,
			agent_name TEXT NOT NULL,
			facts_url TEXT NOT NULL,
			private_facts_url TEXT,
			adaptive_resolver_url TEXT,
			skills TEXT,
			skill_descriptions TEXT,
			region TEXT,
			ttl INTEGER NOT NULL,
			registered_at DATETIME NOT NULL,
			signature TEXT,
			zone TEXT,
			authoritative_ns TEXT
		)`,
		`CREATE INDEX IF NOT EXISTS idx_pointers_name ON pointers(agent_name)`,
		`CREATE INDEX IF NOT EXISTS idx_pointers_region ON pointers(region)`,
		`CREATE TABLE IF NOT EXISTS deployments (
			agent_id TEXT PRIMARY KEY,
			resources TEXT,
			deployment_mode TEXT,
			mobility INTEGER NOT NULL DEFAULT 0,
			max_concurrent_sessions INTEGER NOT NULL DEFAULT 0,
			current_load REAL NOT NULL DEFAULT 0
		)`,
	}

	for _, m := range migrations {
		if _, err := s.db.Exec(m); err != nil {
			return fmt.Errorf("migration failed: %w\n%s", err, m)
		}
	}
	return nil
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// SavePointer upserts a pointer record.
func (s *SQLiteStore) SavePointer(ctx context.Context, rec *domain.PointerRecord) error {
	skills, _ := json.Marshal(rec.Skills)
	descs, _ := json.Marshal(rec.SkillDescriptions)
	_, err := s.db.ExecContext(ctx,
		`INSERT OR REPLACE INTO pointers
		 (agent_id, agent_name, facts_url, private_facts_url, adaptive_resolver_url,
		  skills, skill_descriptions, region, ttl, registered_at, signature, zone, authoritative_ns)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.AgentID, rec.AgentName, rec.FactsURL, rec.PrivateFactsURL, rec.AdaptiveResolverURL,
		string(skills), string(descs), rec.Region, rec.TTL, rec.RegisteredAt.UTC(), rec.Signature,
		rec.Zone, rec.AuthoritativeNS)
	return err
}

// DeletePointer removes a pointer record by agent id.
func (s *SQLiteStore) DeletePointer(ctx context.Context, agentID string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM pointers WHERE agent_id = ?`, agentID)
	return err
}

// LoadPointers returns every stored pointer record. The caller decides which
// ones are still live.
func (s *SQLiteStore) LoadPointers(ctx context.Context) ([]domain.PointerRecord, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT agent_id, agent_name, facts_url, private_facts_url, adaptive_resolver_url,
		        skills, skill_descriptions, region, ttl, registered_at, signature, zone, authoritative_ns
		 FROM pointers`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var records []domain.PointerRecord
	for rows.Next() {
		var rec domain.PointerRecord
		var privateURL, resolverURL, skills, descs, region, signature, zone, ns sql.NullString
		var registeredAt time.Time
		if err := rows.Scan(&rec.AgentID, &rec.AgentName, &rec.FactsURL, &privateURL, &resolverURL,
			&skills, &descs, &region, &rec.TTL, &registeredAt, &signature, &zone, &ns); err != nil {
			return nil, err
		}
		rec.PrivateFactsURL = privateURL.String
		rec.AdaptiveResolverURL = resolverURL.String
		rec.Region = region.String
		rec.Signature = signature.String
		rec.Zone = zone.String
		rec.AuthoritativeNS = ns.String
		rec.RegisteredAt = registeredAt
		if skills.Valid && skills.String != "" {
			if err := json.Unmarshal([]byte(skills.String), &rec.Skills); err != nil {
				return nil, fmt.Errorf("corrupt skills for %s: %w", rec.AgentID, err)
			}
		}
		if descs.Valid && descs.String != "" && descs.String != "null" {
			if err := json.Unmarshal([]byte(descs.String), &rec.SkillDescriptions); err != nil {
				return nil, fmt.Errorf("corrupt skill descriptions for %s: %w", rec.AgentID, err)
			}
		}
		records = append(records, rec)
	}
	return records, rows.Err()
}

// SaveDeployment upserts a deployment record.
func (s *SQLiteStore) SaveDeployment(ctx context.Context, rec *domain.DeploymentRecord) error {
	resources, _ := json.Marshal(rec.Resources)
	mobility := 0
	if rec.Mobility {
		mobility = 1
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT OR REPLACE INTO deployments
		 (agent_id, resources, deployment_mode, mobility, max_concurrent_sessions, current_load)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		rec.AgentID, string(resources), rec.DeploymentMode, mobility,
		rec.MaxConcurrentSessions, rec.CurrentLoad)
	return err
}

// LoadDeployments returns every stored deployment record.
func (s *SQLiteStore) LoadDeployments(ctx context.Context) ([]domain.DeploymentRecord, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT agent_id, resources, deployment_mode, mobility, max_concurrent_sessions, current_load
		 FROM deployments`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var records []domain.DeploymentRecord
	for rows.Next() {
		var rec domain.DeploymentRecord
		var resources, mode sql.NullString
		var mobility int
		if err := rows.Scan(&rec.AgentID, &resources, &mode, &mobility,
			&rec.MaxConcurrentSessions, &rec.CurrentLoad); err != nil {
			return nil, err
		}
		rec.DeploymentMode = mode.String
		rec.Mobility = mobility != 0
		if resources.Valid && resources.String != "" && resources.String != "null" {
			if err := json.Unmarshal([]byte(resources.String), &rec.Resources); err != nil {
				return nil, fmt.Errorf("corrupt resources for %s: %w", rec.AgentID, err)
			}
		}
		records = append(records, rec)
	}
	return records, rows.Err()
}

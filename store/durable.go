package store

import (
	"context"

	"github.com/agentnet/discovery/domain"
)

// Durable mirrors registry state to persistent storage for crash recovery.
// The registry remains authoritative: mirror failures are logged and
// absorbed, and resolution behavior is identical without one.
type Durable interface {
	SavePointer(ctx context.Context, rec *domain.PointerRecord) error
	DeletePointer(ctx context.Context, agentID string) error
	LoadPointers(ctx context.Context) ([]domain.PointerRecord, error)

	SaveDeployment(ctx context.Context, rec *domain.DeploymentRecord) error
	LoadDeployments(ctx context.Context) ([]domain.DeploymentRecord, error)

	Close() error
}

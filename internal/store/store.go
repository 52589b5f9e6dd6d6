package store

import (
	"context"

	"github.com/adpilot/adpilot/internal/optimizer"
)

// Store defines the interface for persistence operations
type Store interface {
	// A/B test operations
	CreateTest(ctx context.Context, name, campaignID, adsetID, metric string, autoApply bool, variants []TestVariant) (*ABTest, error)
	GetTest(ctx context.Context, id string) (*ABTest, error)
	ListTests(ctx context.Context) ([]*ABTest, error)
	SaveEvaluation(ctx context.Context, test *ABTest) error
	DeleteTest(ctx context.Context, id string) error

	// Optimization audit log
	RecordOptimization(ctx context.Context, rec optimizer.RunRecord) error
	ListRuns(ctx context.Context, limit int) ([]*Run, error)

	// Lifecycle
	Close() error
}

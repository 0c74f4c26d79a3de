package domain

import (
	"context"
	"time"
)

// Repository defines the interface for data persistence.
// All methods require tenantID for strict multi-tenancy isolation.
type Repository interface {
	// Claim operations
	SaveClaim(ctx context.Context, tenantID string, claim *Claim) error
	GetClaim(ctx context.Context, tenantID string, claimID string) (*Claim, error)
	ListClaimsByStatus(ctx context.Context, tenantID string, status ClaimStatus) ([]*Claim, error)

	// Policy operations
	SavePolicy(ctx context.Context, tenantID string, policy *Policy) error
	GetPolicy(ctx context.Context, tenantID string, policyID string) (*Policy, error)
	GetPolicyByNumber(ctx context.Context, tenantID string, policyNumber string) (*Policy, error)

	// Review item audit trail
	SaveReviewItem(ctx context.Context, tenantID string, item *ReviewItem) error
	GetReviewItemByClaim(ctx context.Context, tenantID string, claimID string) (*ReviewItem, error)

	// Feedback history
	SaveFeedback(ctx context.Context, tenantID string, record *FeedbackRecord) error
	ListFeedback(ctx context.Context, tenantID string) ([]*FeedbackRecord, error)

	// Custom fraud check configuration
	SaveFraudCheck(ctx context.Context, tenantID string, check *FraudCheckConfig) error
	ListFraudChecks(ctx context.Context, tenantID string) ([]*FraudCheckConfig, error)

	// Health check
	Ping(ctx context.Context) error

	// Lifecycle
	Close() error
}

// FraudCheckConfig is an operator-defined fraud check evaluated alongside
// the builtin rule set. The expression is a CEL program over summary
// variables; a truthy result triggers the check.
type FraudCheckConfig struct {
	ID         string  `json:"id"`
	TenantID   string  `json:"tenantId"`
	Name       string  `json:"name"`
	Expression string  `json:"expression"`
	Weight     float64 `json:"weight"`
	// Factor is the human-readable risk factor emitted when triggered.
	Factor  string `json:"factor"`
	Enabled bool   `json:"enabled"`
}

// RepositoryConfig holds configuration for repository initialization.
type RepositoryConfig struct {
	// Driver is the database driver: "memory", "sqlite" or "postgres"
	Driver string

	// SQLite specific
	SQLitePath string

	// PostgreSQL specific
	PostgresHost     string
	PostgresPort     int
	PostgresUser     string
	PostgresPassword string
	PostgresDB       string
	PostgresSSLMode  string

	// Connection pool settings
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}

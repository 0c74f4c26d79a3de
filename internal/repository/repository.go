// Package repository provides data persistence implementations.
package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/opensource-finance/harrier/internal/domain"
	"github.com/shopspring/decimal"
)

var (
	ErrNotFound     = errors.New("record not found")
	ErrInvalidInput = errors.New("invalid input")
)

// SQLRepository implements domain.Repository using database/sql.
// Works with both SQLite and PostgreSQL drivers.
type SQLRepository struct {
	db     *sql.DB
	driver string
}

// New creates a new repository based on configuration.
func New(cfg domain.RepositoryConfig) (domain.Repository, error) {
	if cfg.Driver == "memory" {
		return NewMemoryRepository(), nil
	}

	var db *sql.DB
	var err error

	switch cfg.Driver {
	case "sqlite":
		db, err = openSQLite(cfg)
	case "postgres":
		db, err = openPostgres(cfg)
	default:
		return nil, fmt.Errorf("unsupported driver: %s", cfg.Driver)
	}

	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if cfg.MaxOpenConns > 0 {
		db.SetMaxOpenConns(cfg.MaxOpenConns)
	}
	if cfg.MaxIdleConns > 0 {
		db.SetMaxIdleConns(cfg.MaxIdleConns)
	}
	if cfg.ConnMaxLifetime > 0 {
		db.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	}

	repo := &SQLRepository{
		db:     db,
		driver: cfg.Driver,
	}

	if err := repo.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	return repo, nil
}

func (r *SQLRepository) migrate() error {
	for _, schema := range AllSchemas() {
		if _, err := r.db.Exec(schema); err != nil {
			return err
		}
	}
	return nil
}

// SaveClaim upserts a claim with tenant isolation. The pipeline re-persists
// the claim after every completed stage.
func (r *SQLRepository) SaveClaim(ctx context.Context, tenantID string, claim *domain.Claim) error {
	if tenantID == "" {
		return fmt.Errorf("%w: tenantID is required", ErrInvalidInput)
	}

	summary := marshalOrNull(claim.Summary)
	fraud := marshalOrNull(claim.Fraud)
	lastError := marshalOrNull(claim.LastError)

	query := `
		INSERT INTO claims (
			id, tenant_id, raw_input, source, status,
			summary, summary_version, fraud, last_error,
			created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			status = excluded.status,
			summary = excluded.summary,
			summary_version = excluded.summary_version,
			fraud = excluded.fraud,
			last_error = excluded.last_error,
			updated_at = excluded.updated_at
	`

	_, err := r.db.ExecContext(ctx, r.rebind(query),
		claim.ID, tenantID, claim.RawInput, claim.Source, string(claim.Status),
		summary, claim.SummaryVersion, fraud, lastError,
		claim.CreatedAt, claim.UpdatedAt,
	)
	return err
}

// GetClaim retrieves a claim by ID with tenant isolation.
func (r *SQLRepository) GetClaim(ctx context.Context, tenantID string, claimID string) (*domain.Claim, error) {
	if tenantID == "" {
		return nil, fmt.Errorf("%w: tenantID is required", ErrInvalidInput)
	}

	query := `
		SELECT id, tenant_id, raw_input, source, status,
			   summary, summary_version, fraud, last_error,
			   created_at, updated_at
		FROM claims
		WHERE tenant_id = ? AND id = ?
	`

	row := r.db.QueryRowContext(ctx, r.rebind(query), tenantID, claimID)
	claim, err := scanClaim(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	return claim, err
}

// ListClaimsByStatus retrieves claims in a given status, newest first.
func (r *SQLRepository) ListClaimsByStatus(ctx context.Context, tenantID string, status domain.ClaimStatus) ([]*domain.Claim, error) {
	if tenantID == "" {
		return nil, fmt.Errorf("%w: tenantID is required", ErrInvalidInput)
	}

	query := `
		SELECT id, tenant_id, raw_input, source, status,
			   summary, summary_version, fraud, last_error,
			   created_at, updated_at
		FROM claims
		WHERE tenant_id = ? AND status = ?
		ORDER BY updated_at DESC
	`

	rows, err := r.db.QueryContext(ctx, r.rebind(query), tenantID, string(status))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var claims []*domain.Claim
	for rows.Next() {
		claim, err := scanClaim(rows)
		if err != nil {
			return nil, err
		}
		claims = append(claims, claim)
	}

	return claims, rows.Err()
}

// scanner abstracts *sql.Row and *sql.Rows for claim scanning.
type scanner interface {
	Scan(dest ...any) error
}

func scanClaim(s scanner) (*domain.Claim, error) {
	var claim domain.Claim
	var status string
	var summary, fraud, lastError sql.NullString

	err := s.Scan(
		&claim.ID, &claim.TenantID, &claim.RawInput, &claim.Source, &status,
		&summary, &claim.SummaryVersion, &fraud, &lastError,
		&claim.CreatedAt, &claim.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	claim.Status = domain.ClaimStatus(status)
	if summary.Valid && summary.String != "" {
		if err := json.Unmarshal([]byte(summary.String), &claim.Summary); err != nil {
			return nil, fmt.Errorf("failed to parse claim summary: %w", err)
		}
	}
	if fraud.Valid && fraud.String != "" {
		if err := json.Unmarshal([]byte(fraud.String), &claim.Fraud); err != nil {
			return nil, fmt.Errorf("failed to parse fraud assessment: %w", err)
		}
	}
	if lastError.Valid && lastError.String != "" {
		if err := json.Unmarshal([]byte(lastError.String), &claim.LastError); err != nil {
			return nil, fmt.Errorf("failed to parse last error: %w", err)
		}
	}

	return &claim, nil
}

// SavePolicy upserts a policy with tenant isolation. Max coverage is stored
// as its exact decimal string.
func (r *SQLRepository) SavePolicy(ctx context.Context, tenantID string, policy *domain.Policy) error {
	if tenantID == "" {
		return fmt.Errorf("%w: tenantID is required", ErrInvalidInput)
	}

	active := 0
	if policy.Active {
		active = 1
	}

	query := `
		INSERT INTO policies (
			id, tenant_id, policy_number, holder_name, coverage_type,
			max_coverage, effective_at, expires_at, active
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			policy_number = excluded.policy_number,
			holder_name = excluded.holder_name,
			coverage_type = excluded.coverage_type,
			max_coverage = excluded.max_coverage,
			effective_at = excluded.effective_at,
			expires_at = excluded.expires_at,
			active = excluded.active
	`

	_, err := r.db.ExecContext(ctx, r.rebind(query),
		policy.ID, tenantID, policy.PolicyNumber, policy.HolderName, policy.CoverageType,
		policy.MaxCoverage.String(), policy.EffectiveAt, policy.ExpiresAt, active,
	)
	return err
}

// GetPolicy retrieves a policy by ID with tenant isolation.
func (r *SQLRepository) GetPolicy(ctx context.Context, tenantID string, policyID string) (*domain.Policy, error) {
	return r.getPolicyBy(ctx, tenantID, "id", policyID)
}

// GetPolicyByNumber retrieves a policy by its policy number.
func (r *SQLRepository) GetPolicyByNumber(ctx context.Context, tenantID string, policyNumber string) (*domain.Policy, error) {
	return r.getPolicyBy(ctx, tenantID, "policy_number", policyNumber)
}

func (r *SQLRepository) getPolicyBy(ctx context.Context, tenantID, column, value string) (*domain.Policy, error) {
	if tenantID == "" {
		return nil, fmt.Errorf("%w: tenantID is required", ErrInvalidInput)
	}

	query := fmt.Sprintf(`
		SELECT id, tenant_id, policy_number, holder_name, coverage_type,
			   max_coverage, effective_at, expires_at, active
		FROM policies
		WHERE tenant_id = ? AND %s = ?
	`, column)

	var p domain.Policy
	var maxCoverage string
	var effectiveAt, expiresAt sql.NullTime
	var active int

	err := r.db.QueryRowContext(ctx, r.rebind(query), tenantID, value).Scan(
		&p.ID, &p.TenantID, &p.PolicyNumber, &p.HolderName, &p.CoverageType,
		&maxCoverage, &effectiveAt, &expiresAt, &active,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	p.MaxCoverage, err = decimal.NewFromString(maxCoverage)
	if err != nil {
		return nil, fmt.Errorf("failed to parse max coverage: %w", err)
	}
	p.EffectiveAt = effectiveAt.Time
	p.ExpiresAt = expiresAt.Time
	p.Active = active == 1

	return &p, nil
}

// SaveReviewItem upserts a review item for audit retention.
func (r *SQLRepository) SaveReviewItem(ctx context.Context, tenantID string, item *domain.ReviewItem) error {
	if tenantID == "" {
		return fmt.Errorf("%w: tenantID is required", ErrInvalidInput)
	}

	var decidedAt sql.NullTime
	if item.DecidedAt != nil {
		decidedAt = sql.NullTime{Time: *item.DecidedAt, Valid: true}
	}

	query := `
		INSERT INTO review_items (
			id, tenant_id, claim_id, reason, automated_decision,
			priority, status, feedback, created_at, decided_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			status = excluded.status,
			feedback = excluded.feedback,
			decided_at = excluded.decided_at
	`

	_, err := r.db.ExecContext(ctx, r.rebind(query),
		item.ID, tenantID, item.ClaimID, item.Reason, item.AutomatedDecision,
		int(item.Priority), string(item.Status), item.Feedback, item.CreatedAt, decidedAt,
	)
	return err
}

// GetReviewItemByClaim retrieves the review item for a claim, pending or
// decided.
func (r *SQLRepository) GetReviewItemByClaim(ctx context.Context, tenantID string, claimID string) (*domain.ReviewItem, error) {
	if tenantID == "" {
		return nil, fmt.Errorf("%w: tenantID is required", ErrInvalidInput)
	}

	query := `
		SELECT id, tenant_id, claim_id, reason, automated_decision,
			   priority, status, feedback, created_at, decided_at
		FROM review_items
		WHERE tenant_id = ? AND claim_id = ?
		ORDER BY created_at DESC
		LIMIT 1
	`

	var item domain.ReviewItem
	var priority int
	var status string
	var decidedAt sql.NullTime

	err := r.db.QueryRowContext(ctx, r.rebind(query), tenantID, claimID).Scan(
		&item.ID, &item.TenantID, &item.ClaimID, &item.Reason, &item.AutomatedDecision,
		&priority, &status, &item.Feedback, &item.CreatedAt, &decidedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	item.Priority = domain.ReviewPriority(priority)
	item.Status = domain.ReviewStatus(status)
	if decidedAt.Valid {
		t := decidedAt.Time
		item.DecidedAt = &t
	}

	return &item, nil
}

// SaveFeedback appends a feedback record. Records are never updated.
func (r *SQLRepository) SaveFeedback(ctx context.Context, tenantID string, record *domain.FeedbackRecord) error {
	if tenantID == "" {
		return fmt.Errorf("%w: tenantID is required", ErrInvalidInput)
	}

	query := `
		INSERT INTO feedback_records (
			id, tenant_id, claim_id, decision, feedback, recorded_at
		) VALUES (?, ?, ?, ?, ?, ?)
	`

	_, err := r.db.ExecContext(ctx, r.rebind(query),
		record.ID, tenantID, record.ClaimID, string(record.Decision), record.Feedback, record.RecordedAt,
	)
	return err
}

// ListFeedback retrieves the full feedback history in record order.
func (r *SQLRepository) ListFeedback(ctx context.Context, tenantID string) ([]*domain.FeedbackRecord, error) {
	if tenantID == "" {
		return nil, fmt.Errorf("%w: tenantID is required", ErrInvalidInput)
	}

	query := `
		SELECT id, tenant_id, claim_id, decision, feedback, recorded_at
		FROM feedback_records
		WHERE tenant_id = ?
		ORDER BY recorded_at ASC
	`

	rows, err := r.db.QueryContext(ctx, r.rebind(query), tenantID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var records []*domain.FeedbackRecord
	for rows.Next() {
		var rec domain.FeedbackRecord
		var decision string
		if err := rows.Scan(&rec.ID, &rec.TenantID, &rec.ClaimID, &decision, &rec.Feedback, &rec.RecordedAt); err != nil {
			return nil, err
		}
		rec.Decision = domain.Decision(decision)
		records = append(records, &rec)
	}

	return records, rows.Err()
}

// SaveFraudCheck upserts a custom fraud check configuration.
func (r *SQLRepository) SaveFraudCheck(ctx context.Context, tenantID string, check *domain.FraudCheckConfig) error {
	if tenantID == "" {
		return fmt.Errorf("%w: tenantID is required", ErrInvalidInput)
	}

	enabled := 0
	if check.Enabled {
		enabled = 1
	}

	query := `
		INSERT INTO fraud_checks (
			id, tenant_id, name, expression, weight, factor, enabled
		) VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id, tenant_id) DO UPDATE SET
			name = excluded.name,
			expression = excluded.expression,
			weight = excluded.weight,
			factor = excluded.factor,
			enabled = excluded.enabled
	`

	_, err := r.db.ExecContext(ctx, r.rebind(query),
		check.ID, tenantID, check.Name, check.Expression, check.Weight, check.Factor, enabled,
	)
	return err
}

// ListFraudChecks retrieves all enabled custom fraud checks for a tenant.
func (r *SQLRepository) ListFraudChecks(ctx context.Context, tenantID string) ([]*domain.FraudCheckConfig, error) {
	if tenantID == "" {
		return nil, fmt.Errorf("%w: tenantID is required", ErrInvalidInput)
	}

	query := `
		SELECT id, tenant_id, name, expression, weight, factor, enabled
		FROM fraud_checks
		WHERE tenant_id = ? AND enabled = 1
		ORDER BY name
	`

	rows, err := r.db.QueryContext(ctx, r.rebind(query), tenantID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var checks []*domain.FraudCheckConfig
	for rows.Next() {
		var c domain.FraudCheckConfig
		var enabled int
		if err := rows.Scan(&c.ID, &c.TenantID, &c.Name, &c.Expression, &c.Weight, &c.Factor, &enabled); err != nil {
			return nil, err
		}
		c.Enabled = enabled == 1
		checks = append(checks, &c)
	}

	return checks, rows.Err()
}

// Ping checks database connectivity.
func (r *SQLRepository) Ping(ctx context.Context) error {
	return r.db.PingContext(ctx)
}

// Close closes the database connection.
func (r *SQLRepository) Close() error {
	return r.db.Close()
}

func marshalOrNull(v any) any {
	if v == nil {
		return nil
	}
	data, err := json.Marshal(v)
	if err != nil {
		return nil
	}
	return string(data)
}

// rebind converts ? placeholders to $1, $2, etc. for PostgreSQL.
func (r *SQLRepository) rebind(query string) string {
	if r.driver != "postgres" {
		return query
	}

	var result []byte
	n := 1
	for i := 0; i < len(query); i++ {
		if query[i] == '?' {
			result = append(result, '$')
			result = append(result, fmt.Sprintf("%d", n)...)
			n++
		} else {
			result = append(result, query[i])
		}
	}
	return string(result)
}

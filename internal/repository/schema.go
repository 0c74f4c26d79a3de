package repository

// Schema definitions for the Harrier database.
// Compatible with both SQLite and PostgreSQL.

const schemaClaims = `
CREATE TABLE IF NOT EXISTS claims (
    id TEXT PRIMARY KEY,
    tenant_id TEXT NOT NULL,
    raw_input TEXT NOT NULL,
    source TEXT NOT NULL,
    status TEXT NOT NULL,
    summary TEXT,
    summary_version INTEGER NOT NULL DEFAULT 0,
    fraud TEXT,
    last_error TEXT,
    created_at TIMESTAMP NOT NULL,
    updated_at TIMESTAMP NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_claims_tenant ON claims(tenant_id);
CREATE INDEX IF NOT EXISTS idx_claims_status ON claims(tenant_id, status);
CREATE INDEX IF NOT EXISTS idx_claims_updated ON claims(tenant_id, updated_at);
`

const schemaPolicies = `
CREATE TABLE IF NOT EXISTS policies (
    id TEXT PRIMARY KEY,
    tenant_id TEXT NOT NULL,
    policy_number TEXT NOT NULL,
    holder_name TEXT NOT NULL,
    coverage_type TEXT NOT NULL,
    max_coverage TEXT NOT NULL,
    effective_at TIMESTAMP,
    expires_at TIMESTAMP,
    active INTEGER NOT NULL DEFAULT 1
);

CREATE INDEX IF NOT EXISTS idx_policies_tenant ON policies(tenant_id);
CREATE INDEX IF NOT EXISTS idx_policies_number ON policies(tenant_id, policy_number);
`

const schemaReviewItems = `
CREATE TABLE IF NOT EXISTS review_items (
    id TEXT PRIMARY KEY,
    tenant_id TEXT NOT NULL,
    claim_id TEXT NOT NULL,
    reason TEXT NOT NULL,
    automated_decision TEXT,
    priority INTEGER NOT NULL,
    status TEXT NOT NULL,
    feedback TEXT,
    created_at TIMESTAMP NOT NULL,
    decided_at TIMESTAMP
);

CREATE INDEX IF NOT EXISTS idx_review_items_tenant ON review_items(tenant_id);
CREATE INDEX IF NOT EXISTS idx_review_items_claim ON review_items(tenant_id, claim_id);
CREATE INDEX IF NOT EXISTS idx_review_items_status ON review_items(tenant_id, status);
`

const schemaFeedback = `
CREATE TABLE IF NOT EXISTS feedback_records (
    id TEXT PRIMARY KEY,
    tenant_id TEXT NOT NULL,
    claim_id TEXT NOT NULL,
    decision TEXT NOT NULL,
    feedback TEXT,
    recorded_at TIMESTAMP NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_feedback_tenant ON feedback_records(tenant_id);
CREATE INDEX IF NOT EXISTS idx_feedback_claim ON feedback_records(tenant_id, claim_id);
`

const schemaFraudChecks = `
CREATE TABLE IF NOT EXISTS fraud_checks (
    id TEXT NOT NULL,
    tenant_id TEXT NOT NULL,
    name TEXT NOT NULL,
    expression TEXT NOT NULL,
    weight REAL NOT NULL DEFAULT 0.1,
    factor TEXT NOT NULL,
    enabled INTEGER NOT NULL DEFAULT 1,
    PRIMARY KEY (id, tenant_id)
);

CREATE INDEX IF NOT EXISTS idx_fraud_checks_tenant ON fraud_checks(tenant_id);
CREATE INDEX IF NOT EXISTS idx_fraud_checks_enabled ON fraud_checks(tenant_id, enabled);
`

// AllSchemas returns all schema statements in order.
func AllSchemas() []string {
	return []string{
		schemaClaims,
		schemaPolicies,
		schemaReviewItems,
		schemaFeedback,
		schemaFraudChecks,
	}
}

package storage

import (
	"context"
	"database/sql"
	"embed"
	"fmt"
	"time"

	"github.com/google/uuid"
	_ "github.com/lib/pq"

	"github.com/greenops/greenops-advisor/pkg/models"
)

//go:embed migrations/*.sql
var postgresFS embed.FS

// PostgresStore implements Store interface using PostgreSQL
type PostgresStore struct {
	db  *sql.DB
	dsn string
}

// NewPostgresStore creates a new PostgreSQL store
func NewPostgresStore(dsn string) (*PostgresStore, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Configure connection pool
	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	// Test connection
	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	store := &PostgresStore{
		db:  db,
		dsn: dsn,
	}

	// Run migrations
	if err := store.migrate(); err != nil {
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	return store, nil
}

// migrate runs database migrations
func (s *PostgresStore) migrate() error {
	schema, err := postgresFS.ReadFile("migrations/001_schema.sql")
	if err != nil {
		return fmt.Errorf("failed to read schema: %w", err)
	}

	if _, err := s.db.Exec(string(schema)); err != nil {
		return fmt.Errorf("failed to execute schema: %w", err)
	}

	return nil
}

// GetOrCreateWorkload resolves a workload to its stored row. The
// identity is (cluster, namespace, kind, name); replicas are refreshed
// on every call.
func (s *PostgresStore) GetOrCreateWorkload(ctx context.Context, w *models.Workload) (*models.Workload, error) {
	query := `
		INSERT INTO workloads (id, cluster_id, namespace, kind, name, replicas)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (cluster_id, namespace, kind, name) DO UPDATE SET
			replicas = EXCLUDED.replicas
		RETURNING id
	`

	stored := *w
	err := s.db.QueryRowContext(ctx, query,
		uuid.New().String(), w.ClusterID, w.Namespace, w.Kind, w.Name, w.Replicas,
	).Scan(&stored.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to upsert workload %s/%s: %w", w.Namespace, w.Name, err)
	}

	return &stored, nil
}

// GetWorkload retrieves a workload by ID
func (s *PostgresStore) GetWorkload(ctx context.Context, id string) (*models.Workload, error) {
	query := `
		SELECT id, cluster_id, namespace, kind, name, replicas
		FROM workloads
		WHERE id = $1
	`

	var w models.Workload
	err := s.db.QueryRowContext(ctx, query, id).Scan(
		&w.ID, &w.ClusterID, &w.Namespace, &w.Kind, &w.Name, &w.Replicas,
	)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("workload %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, err
	}

	return &w, nil
}

// SaveOpportunity saves an opportunity. The (workload, type, window)
// key makes re-analysis idempotent: the existing row is refreshed and
// keeps its ID and status.
func (s *PostgresStore) SaveOpportunity(ctx context.Context, opp *models.Opportunity) error {
	if opp.ID == "" {
		opp.ID = uuid.New().String()
	}
	if opp.CreatedAt.IsZero() {
		opp.CreatedAt = time.Now()
	}
	if opp.Status == "" {
		opp.Status = models.StatusPending
	}

	query := `
		INSERT INTO opportunities (
			id, workload_id, type, status, window_start, window_end,
			current_cost_usd, projected_cost_usd, savings_usd,
			current_carbon_g, projected_carbon_g, carbon_reduction_g,
			recommended_cpu_cores, recommended_memory_bytes,
			confidence, risk, explanation, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $18)
		ON CONFLICT (workload_id, type, window_start, window_end) DO UPDATE SET
			current_cost_usd = EXCLUDED.current_cost_usd,
			projected_cost_usd = EXCLUDED.projected_cost_usd,
			savings_usd = EXCLUDED.savings_usd,
			current_carbon_g = EXCLUDED.current_carbon_g,
			projected_carbon_g = EXCLUDED.projected_carbon_g,
			carbon_reduction_g = EXCLUDED.carbon_reduction_g,
			recommended_cpu_cores = EXCLUDED.recommended_cpu_cores,
			recommended_memory_bytes = EXCLUDED.recommended_memory_bytes,
			confidence = EXCLUDED.confidence,
			risk = EXCLUDED.risk,
			explanation = EXCLUDED.explanation,
			updated_at = NOW()
		RETURNING id, status, created_at
	`

	err := s.db.QueryRowContext(ctx, query,
		opp.ID, opp.WorkloadID, opp.Type, opp.Status,
		opp.WindowStart, opp.WindowEnd,
		opp.CurrentCostUSD, opp.ProjectedCostUSD, opp.SavingsUSD,
		opp.CurrentCarbonG, opp.ProjectedCarbonG, opp.CarbonReductionG,
		opp.RecommendedCPU, opp.RecommendedMem,
		opp.Confidence, opp.Risk, opp.Explanation, opp.CreatedAt,
	).Scan(&opp.ID, &opp.Status, &opp.CreatedAt)

	return err
}

const opportunityColumns = `
	id, workload_id, type, status, window_start, window_end,
	current_cost_usd, projected_cost_usd, savings_usd,
	current_carbon_g, projected_carbon_g, carbon_reduction_g,
	recommended_cpu_cores, recommended_memory_bytes,
	confidence, risk, explanation, created_at
`

func scanOpportunity(row interface{ Scan(...interface{}) error }) (*models.Opportunity, error) {
	var opp models.Opportunity
	err := row.Scan(
		&opp.ID, &opp.WorkloadID, &opp.Type, &opp.Status,
		&opp.WindowStart, &opp.WindowEnd,
		&opp.CurrentCostUSD, &opp.ProjectedCostUSD, &opp.SavingsUSD,
		&opp.CurrentCarbonG, &opp.ProjectedCarbonG, &opp.CarbonReductionG,
		&opp.RecommendedCPU, &opp.RecommendedMem,
		&opp.Confidence, &opp.Risk, &opp.Explanation, &opp.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &opp, nil
}

// GetOpportunity retrieves an opportunity by ID
func (s *PostgresStore) GetOpportunity(ctx context.Context, id string) (*models.Opportunity, error) {
	query := `SELECT ` + opportunityColumns + ` FROM opportunities WHERE id = $1`

	opp, err := scanOpportunity(s.db.QueryRowContext(ctx, query, id))
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("opportunity %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, err
	}

	return opp, nil
}

// ListOpportunities retrieves opportunities matching the filter,
// newest first.
func (s *PostgresStore) ListOpportunities(ctx context.Context, filter ListFilter) ([]*models.Opportunity, error) {
	query := `SELECT ` + opportunityColumns + ` FROM opportunities WHERE 1=1`
	args := []interface{}{}

	if filter.Status != "" {
		args = append(args, filter.Status)
		query += fmt.Sprintf(" AND status = $%d", len(args))
	}
	if filter.Type != "" {
		args = append(args, filter.Type)
		query += fmt.Sprintf(" AND type = $%d", len(args))
	}

	query += " ORDER BY created_at DESC"

	if filter.Limit > 0 {
		args = append(args, filter.Limit)
		query += fmt.Sprintf(" LIMIT $%d", len(args))
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var opportunities []*models.Opportunity
	for rows.Next() {
		opp, err := scanOpportunity(rows)
		if err != nil {
			return nil, err
		}
		opportunities = append(opportunities, opp)
	}

	return opportunities, rows.Err()
}

// TransitionOpportunity moves a pending opportunity to approved,
// applied, or rejected. The status check happens in the UPDATE itself
// so concurrent transitions cannot both win.
func (s *PostgresStore) TransitionOpportunity(ctx context.Context, id string, to models.OpportunityStatus) (*models.Opportunity, error) {
	switch to {
	case models.StatusApproved, models.StatusApplied, models.StatusRejected:
	default:
		return nil, fmt.Errorf("invalid target status %q", to)
	}

	query := `
		UPDATE opportunities
		SET status = $1, updated_at = NOW()
		WHERE id = $2 AND status = 'pending'
		RETURNING ` + opportunityColumns

	opp, err := scanOpportunity(s.db.QueryRowContext(ctx, query, to, id))
	if err == sql.ErrNoRows {
		// Either the row doesn't exist or it already left pending.
		current, getErr := s.GetOpportunity(ctx, id)
		if getErr != nil {
			return nil, getErr
		}
		return nil, fmt.Errorf("opportunity %s is %s, cannot transition to %s", id, current.Status, to)
	}
	if err != nil {
		return nil, err
	}

	return opp, nil
}

// SaveSummary records an aggregated utilization window
func (s *PostgresStore) SaveSummary(ctx context.Context, summary *models.UtilizationSummary) error {
	query := `
		INSERT INTO utilization_summaries (
			id, workload_id, window_start, window_end, sample_count,
			avg_cpu_requested, avg_cpu_used, peak_cpu_used,
			avg_mem_requested, avg_mem_used, peak_mem_used,
			avg_cost_usd, avg_energy_joules
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
	`

	_, err := s.db.ExecContext(ctx, query,
		uuid.New().String(), summary.WorkloadID,
		summary.WindowStart, summary.WindowEnd, summary.SampleCount,
		summary.AvgCPURequested, summary.AvgCPUUsed, summary.PeakCPUUsed,
		summary.AvgMemRequested, summary.AvgMemUsed, summary.PeakMemUsed,
		summary.AvgCostUSD, summary.AvgEnergyJoules,
	)

	return err
}

// SaveRun appends an analysis run to the audit trail
func (s *PostgresStore) SaveRun(ctx context.Context, run *RunRecord) error {
	if run.ID == "" {
		run.ID = uuid.New().String()
	}

	query := `
		INSERT INTO analysis_runs (
			id, cluster_id, started_at, finished_at,
			analyzed, skipped, failed, opportunities
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`

	_, err := s.db.ExecContext(ctx, query,
		run.ID, run.ClusterID, run.StartedAt, run.FinishedAt,
		run.Analyzed, run.Skipped, run.Failed, run.Opportunity,
	)

	return err
}

// ListRuns retrieves recent analysis runs, newest first
func (s *PostgresStore) ListRuns(ctx context.Context, limit int) ([]*RunRecord, error) {
	query := `
		SELECT id, cluster_id, started_at, finished_at,
			analyzed, skipped, failed, opportunities
		FROM analysis_runs
		ORDER BY started_at DESC
		LIMIT $1
	`

	rows, err := s.db.QueryContext(ctx, query, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var runs []*RunRecord
	for rows.Next() {
		var run RunRecord
		err := rows.Scan(
			&run.ID, &run.ClusterID, &run.StartedAt, &run.FinishedAt,
			&run.Analyzed, &run.Skipped, &run.Failed, &run.Opportunity,
		)
		if err != nil {
			return nil, err
		}
		runs = append(runs, &run)
	}

	return runs, rows.Err()
}

// Ping checks database connectivity
func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Close closes the database connection
func (s *PostgresStore) Close() error {
	return s.db.Close()
}

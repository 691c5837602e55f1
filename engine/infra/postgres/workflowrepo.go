package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/Masterminds/squirrel"
	"github.com/georgysavva/scany/v2/pgxscan"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/workflowd/workflowd/engine/core"
	"github.com/workflowd/workflowd/engine/workflow"
)

// workflowRow mirrors the workflows table for scany scanning; Steps is
// decoded from JSONB separately since scany doesn't know the step union.
type workflowRow struct {
	ID                     core.ID    `db:"id"`
	UserID                 core.ID    `db:"user_id"`
	Name                   string     `db:"name"`
	Description            string     `db:"description"`
	IsActive               bool       `db:"is_active"`
	PollingIntervalSeconds int        `db:"polling_interval_seconds"`
	StartStepID            string     `db:"start_step_id"`
	Steps                  []byte     `db:"steps"`
	LastRunAt              *time.Time `db:"last_run_at"`
	CreatedAt              time.Time  `db:"created_at"`
	UpdatedAt              time.Time  `db:"updated_at"`
}

func (row *workflowRow) toDomain() (*workflow.Workflow, error) {
	wf := &workflow.Workflow{
		ID:                     row.ID,
		UserID:                 row.UserID,
		Name:                   row.Name,
		Description:            row.Description,
		IsActive:               row.IsActive,
		PollingIntervalSeconds: row.PollingIntervalSeconds,
		StartStepID:            row.StartStepID,
		LastRunAt:              row.LastRunAt,
		CreatedAt:              row.CreatedAt,
		UpdatedAt:              row.UpdatedAt,
	}
	if len(row.Steps) > 0 {
		if err := json.Unmarshal(row.Steps, &wf.Steps); err != nil {
			return nil, fmt.Errorf("decoding steps: %w", err)
		}
	}
	return wf, nil
}

// WorkflowRepo implements workflow.Repository using pgxpool, squirrel for
// the dynamic due-workflow scan, and scany for row decoding.
type WorkflowRepo struct {
	db *pgxpool.Pool
}

func NewWorkflowRepo(db *pgxpool.Pool) *WorkflowRepo {
	return &WorkflowRepo{db: db}
}

func (r *WorkflowRepo) CreateWorkflow(ctx context.Context, wf *workflow.Workflow) error {
	stepsJSON, err := ToJSONB(wf.Steps)
	if err != nil {
		return fmt.Errorf("encoding steps: %w", err)
	}
	now := time.Now().UTC()
	wf.CreatedAt, wf.UpdatedAt = now, now
	if wf.StartStepID == "" {
		wf.StartStepID = workflow.DefaultStartStepID
	}
	const q = `INSERT INTO workflows
		(id, user_id, name, description, is_active, polling_interval_seconds,
		 start_step_id, steps, created_at, updated_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)`
	_, err = r.db.Exec(ctx, q,
		wf.ID, wf.UserID, wf.Name, wf.Description, wf.IsActive,
		wf.PollingIntervalSeconds, wf.StartStepID, stepsJSON, wf.CreatedAt, wf.UpdatedAt,
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return workflow.ErrDuplicateName
		}
		return fmt.Errorf("creating workflow: %w", err)
	}
	return nil
}

func (r *WorkflowRepo) GetWorkflow(ctx context.Context, id core.ID) (*workflow.Workflow, error) {
	const q = `SELECT id, user_id, name, description, is_active, polling_interval_seconds,
		start_step_id, steps, last_run_at, created_at, updated_at
		FROM workflows WHERE id = $1`
	var row workflowRow
	if err := pgxscan.Get(ctx, r.db, &row, q, id); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, workflow.ErrNotFound
		}
		return nil, fmt.Errorf("getting workflow: %w", err)
	}
	return row.toDomain()
}

// ListActiveWorkflowsDue returns active workflows whose last poll (or
// creation, if never polled) is at least PollingIntervalSeconds in the
// past, ordered oldest- or newest-due first per the scheduler's pick
// policy (see SPEC_FULL.md §4.6a).
func (r *WorkflowRepo) ListActiveWorkflowsDue(
	ctx context.Context,
	now time.Time,
	oldestFirst bool,
) ([]*workflow.Workflow, error) {
	order := "COALESCE(last_run_at, created_at) ASC"
	if !oldestFirst {
		order = "COALESCE(last_run_at, created_at) DESC"
	}
	sb := squirrel.Select(
		"id", "user_id", "name", "description", "is_active",
		"polling_interval_seconds", "start_step_id", "steps",
		"last_run_at", "created_at", "updated_at",
	).From("workflows").
		Where(squirrel.Eq{"is_active": true}).
		Where(squirrel.Expr(
			"COALESCE(last_run_at, created_at) <= $1 - (polling_interval_seconds * interval '1 second')",
			now.UTC(),
		)).
		OrderBy(order).
		PlaceholderFormat(squirrel.Dollar)
	sqlStr, args, err := sb.ToSql()
	if err != nil {
		return nil, fmt.Errorf("building due-workflows query: %w", err)
	}
	var rows []workflowRow
	if err := pgxscan.Select(ctx, r.db, &rows, sqlStr, args...); err != nil {
		return nil, fmt.Errorf("listing due workflows: %w", err)
	}
	out := make([]*workflow.Workflow, 0, len(rows))
	for i := range rows {
		wf, err := rows[i].toDomain()
		if err != nil {
			return nil, err
		}
		out = append(out, wf)
	}
	return out, nil
}

func (r *WorkflowRepo) UpdateWorkflow(ctx context.Context, wf *workflow.Workflow) error {
	stepsJSON, err := ToJSONB(wf.Steps)
	if err != nil {
		return fmt.Errorf("encoding steps: %w", err)
	}
	wf.UpdatedAt = time.Now().UTC()
	const q = `UPDATE workflows SET name=$2, description=$3, is_active=$4,
		polling_interval_seconds=$5, start_step_id=$6, steps=$7, updated_at=$8
		WHERE id=$1`
	tag, err := r.db.Exec(ctx, q,
		wf.ID, wf.Name, wf.Description, wf.IsActive,
		wf.PollingIntervalSeconds, wf.StartStepID, stepsJSON, wf.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("updating workflow: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return workflow.ErrNotFound
	}
	return nil
}

func (r *WorkflowRepo) TouchLastRunAt(ctx context.Context, id core.ID) error {
	const q = `UPDATE workflows SET last_run_at = now() WHERE id = $1`
	tag, err := r.db.Exec(ctx, q, id)
	if err != nil {
		return fmt.Errorf("touching last_run_at: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return workflow.ErrNotFound
	}
	return nil
}

func (r *WorkflowRepo) DeleteWorkflow(ctx context.Context, id core.ID) error {
	tag, err := r.db.Exec(ctx, `DELETE FROM workflows WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("deleting workflow: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return workflow.ErrNotFound
	}
	return nil
}

func (r *WorkflowRepo) MarkProcessed(ctx context.Context, p *workflow.ProcessedTrigger) error {
	metaJSON, err := ToJSONB(p.Metadata)
	if err != nil {
		return fmt.Errorf("encoding metadata: %w", err)
	}
	p.ProcessedAt = time.Now().UTC()
	const q = `INSERT INTO processed_triggers (workflow_id, trigger_type, external_id, metadata, processed_at)
		VALUES ($1,$2,$3,$4,$5) RETURNING id`
	if err := r.db.QueryRow(ctx, q,
		p.WorkflowID, p.TriggerType, p.ExternalID, metaJSON, p.ProcessedAt,
	).Scan(&p.ID); err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return workflow.ErrAlreadyProcessed
		}
		return fmt.Errorf("marking trigger processed: %w", err)
	}
	return nil
}

func (r *WorkflowRepo) IsProcessed(
	ctx context.Context,
	workflowID core.ID,
	triggerType, externalID string,
) (bool, error) {
	const q = `SELECT EXISTS(
		SELECT 1 FROM processed_triggers
		WHERE workflow_id = $1 AND trigger_type = $2 AND external_id = $3)`
	var exists bool
	if err := r.db.QueryRow(ctx, q, workflowID, triggerType, externalID).Scan(&exists); err != nil {
		return false, fmt.Errorf("checking processed trigger: %w", err)
	}
	return exists, nil
}

func (r *WorkflowRepo) DeleteProcessedBefore(ctx context.Context, retentionDays int) (int64, error) {
	const q = `DELETE FROM processed_triggers WHERE processed_at < now() - ($1 || ' days')::interval`
	tag, err := r.db.Exec(ctx, q, retentionDays)
	if err != nil {
		return 0, fmt.Errorf("reaping processed triggers: %w", err)
	}
	return tag.RowsAffected(), nil
}

func (r *WorkflowRepo) CreateRun(ctx context.Context, run *workflow.Run) error {
	triggerJSON, err := ToJSONB(run.TriggerData)
	if err != nil {
		return fmt.Errorf("encoding trigger data: %w", err)
	}
	logJSON, err := ToJSONB(run.ExecutionLog)
	if err != nil {
		return fmt.Errorf("encoding execution log: %w", err)
	}
	run.StartedAt = time.Now().UTC()
	run.Status = workflow.RunStatusRunning
	const q = `INSERT INTO workflow_runs
		(id, workflow_id, status, trigger_data, execution_log, retry_count, started_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7)`
	_, err = r.db.Exec(ctx, q,
		run.ID, run.WorkflowID, run.Status, triggerJSON, logJSON, run.RetryCount, run.StartedAt,
	)
	if err != nil {
		return fmt.Errorf("creating run: %w", err)
	}
	return nil
}

func (r *WorkflowRepo) UpdateRun(ctx context.Context, run *workflow.Run) error {
	logJSON, err := ToJSONB(run.ExecutionLog)
	if err != nil {
		return fmt.Errorf("encoding execution log: %w", err)
	}
	const q = `UPDATE workflow_runs SET status=$2, execution_log=$3, retry_count=$4,
		error=$5, finished_at=$6 WHERE id=$1`
	tag, err := r.db.Exec(ctx, q, run.ID, run.Status, logJSON, run.RetryCount, run.Error, run.FinishedAt)
	if err != nil {
		return fmt.Errorf("updating run: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return workflow.ErrNotFound
	}
	return nil
}

func (r *WorkflowRepo) GetRun(ctx context.Context, id core.ID) (*workflow.Run, error) {
	const q = `SELECT id, workflow_id, status, trigger_data, execution_log, retry_count,
		error, started_at, finished_at FROM workflow_runs WHERE id = $1`
	run, err := scanRun(ctx, r.db, q, id)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, workflow.ErrNotFound
		}
		return nil, err
	}
	return run, nil
}

func (r *WorkflowRepo) ListRunsByWorkflow(
	ctx context.Context,
	workflowID core.ID,
	limit int,
) ([]*workflow.Run, error) {
	const q = `SELECT id, workflow_id, status, trigger_data, execution_log, retry_count,
		error, started_at, finished_at FROM workflow_runs
		WHERE workflow_id = $1 ORDER BY started_at DESC LIMIT $2`
	var rows []runRow
	if err := pgxscan.Select(ctx, r.db, &rows, q, workflowID, limit); err != nil {
		return nil, fmt.Errorf("listing runs: %w", err)
	}
	out := make([]*workflow.Run, 0, len(rows))
	for i := range rows {
		run, err := rows[i].toDomain()
		if err != nil {
			return nil, err
		}
		out = append(out, run)
	}
	return out, nil
}

func (r *WorkflowRepo) CreateDeadLetter(ctx context.Context, job *workflow.DeadLetterJob) error {
	payloadJSON, err := ToJSONB(job.Payload)
	if err != nil {
		return fmt.Errorf("encoding dead letter payload: %w", err)
	}
	job.CreatedAt = time.Now().UTC()
	const q = `INSERT INTO dead_letter_jobs
		(id, workflow_id, trigger_type, external_id, payload, last_error, attempts, created_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8)`
	_, err = r.db.Exec(ctx, q,
		job.ID, job.WorkflowID, job.TriggerType, job.ExternalID,
		payloadJSON, job.LastError, job.Attempts, job.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("creating dead letter job: %w", err)
	}
	return nil
}

func (r *WorkflowRepo) ListDeadLetters(ctx context.Context, workflowID core.ID) ([]*workflow.DeadLetterJob, error) {
	const q = `SELECT id, workflow_id, trigger_type, external_id, payload, last_error, attempts, created_at
		FROM dead_letter_jobs WHERE workflow_id = $1 ORDER BY created_at DESC`
	var rows []deadLetterRow
	if err := pgxscan.Select(ctx, r.db, &rows, q, workflowID); err != nil {
		return nil, fmt.Errorf("listing dead letters: %w", err)
	}
	out := make([]*workflow.DeadLetterJob, 0, len(rows))
	for i := range rows {
		job, err := rows[i].toDomain()
		if err != nil {
			return nil, err
		}
		out = append(out, job)
	}
	return out, nil
}

type runRow struct {
	ID           core.ID    `db:"id"`
	WorkflowID   core.ID    `db:"workflow_id"`
	Status       string     `db:"status"`
	TriggerData  []byte     `db:"trigger_data"`
	ExecutionLog []byte     `db:"execution_log"`
	RetryCount   int        `db:"retry_count"`
	Error        *string    `db:"error"`
	StartedAt    time.Time  `db:"started_at"`
	FinishedAt   *time.Time `db:"finished_at"`
}

func (row *runRow) toDomain() (*workflow.Run, error) {
	run := &workflow.Run{
		ID:         row.ID,
		WorkflowID: row.WorkflowID,
		Status:     workflow.RunStatus(row.Status),
		RetryCount: row.RetryCount,
		Error:      row.Error,
		StartedAt:  row.StartedAt,
		FinishedAt: row.FinishedAt,
	}
	if len(row.TriggerData) > 0 {
		if err := json.Unmarshal(row.TriggerData, &run.TriggerData); err != nil {
			return nil, fmt.Errorf("decoding trigger data: %w", err)
		}
	}
	if len(row.ExecutionLog) > 0 {
		if err := json.Unmarshal(row.ExecutionLog, &run.ExecutionLog); err != nil {
			return nil, fmt.Errorf("decoding execution log: %w", err)
		}
	}
	return run, nil
}

func scanRun(ctx context.Context, q pgxscan.Querier, sql string, args ...any) (*workflow.Run, error) {
	var row runRow
	if err := pgxscan.Get(ctx, q, &row, sql, args...); err != nil {
		return nil, err
	}
	return row.toDomain()
}

type deadLetterRow struct {
	ID          core.ID   `db:"id"`
	WorkflowID  core.ID   `db:"workflow_id"`
	TriggerType string    `db:"trigger_type"`
	ExternalID  string    `db:"external_id"`
	Payload     []byte    `db:"payload"`
	LastError   string    `db:"last_error"`
	Attempts    int       `db:"attempts"`
	CreatedAt   time.Time `db:"created_at"`
}

func (row *deadLetterRow) toDomain() (*workflow.DeadLetterJob, error) {
	job := &workflow.DeadLetterJob{
		ID:          row.ID,
		WorkflowID:  row.WorkflowID,
		TriggerType: row.TriggerType,
		ExternalID:  row.ExternalID,
		LastError:   row.LastError,
		Attempts:    row.Attempts,
		CreatedAt:   row.CreatedAt,
	}
	if len(row.Payload) > 0 {
		if err := json.Unmarshal(row.Payload, &job.Payload); err != nil {
			return nil, fmt.Errorf("decoding dead letter payload: %w", err)
		}
	}
	return job, nil
}

var _ workflow.Repository = (*WorkflowRepo)(nil)

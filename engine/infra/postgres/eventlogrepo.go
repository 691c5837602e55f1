package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/Masterminds/squirrel"
	"github.com/georgysavva/scany/v2/pgxscan"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/workflowd/workflowd/engine/core"
	"github.com/workflowd/workflowd/engine/eventlog"
)

// EventLogRepo implements eventlog.Store over the append-only log_entries
// table. id is BIGSERIAL in storage; Entry.ID is exposed as text so the
// domain type doesn't leak a Postgres-specific integer.
type EventLogRepo struct {
	db *pgxpool.Pool
}

func NewEventLogRepo(db *pgxpool.Pool) *EventLogRepo {
	return &EventLogRepo{db: db}
}

type logEntryRow struct {
	ID         string     `db:"id"`
	EventType  string     `db:"event_type"`
	Details    []byte     `db:"details"`
	UserID     *core.ID   `db:"user_id"`
	WorkflowID *core.ID   `db:"workflow_id"`
	RunID      *core.ID   `db:"run_id"`
	CreatedAt  time.Time  `db:"created_at"`
}

func (row *logEntryRow) toDomain() (eventlog.Entry, error) {
	e := eventlog.Entry{
		ID:         row.ID,
		EventType:  eventlog.EventType(row.EventType),
		UserID:     row.UserID,
		WorkflowID: row.WorkflowID,
		RunID:      row.RunID,
		CreatedAt:  row.CreatedAt,
	}
	if len(row.Details) > 0 {
		if err := json.Unmarshal(row.Details, &e.Details); err != nil {
			return eventlog.Entry{}, fmt.Errorf("decoding event details: %w", err)
		}
	}
	return e, nil
}

func (r *EventLogRepo) Record(ctx context.Context, e eventlog.Entry) error {
	detailsJSON, err := ToJSONB(e.Details)
	if err != nil {
		return fmt.Errorf("encoding event details: %w", err)
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = time.Now().UTC()
	}
	const q = `INSERT INTO log_entries (event_type, details, user_id, workflow_id, run_id, created_at)
		VALUES ($1,$2,$3,$4,$5,$6)`
	_, err = r.db.Exec(ctx, q, string(e.EventType), detailsJSON, e.UserID, e.WorkflowID, e.RunID, e.CreatedAt)
	if err != nil {
		return fmt.Errorf("recording event: %w", err)
	}
	return nil
}

func (r *EventLogRepo) ListByWorkflow(
	ctx context.Context,
	workflowID core.ID,
	eventType *eventlog.EventType,
	limit int,
) ([]eventlog.Entry, error) {
	sb := squirrel.Select("id::text", "event_type", "details", "user_id", "workflow_id", "run_id", "created_at").
		From("log_entries").
		Where(squirrel.Eq{"workflow_id": workflowID}).
		OrderBy("created_at DESC").
		Limit(uint64(eventlog.ClampLimit(limit))).
		PlaceholderFormat(squirrel.Dollar)
	if eventType != nil {
		sb = sb.Where(squirrel.Eq{"event_type": string(*eventType)})
	}
	return r.listBySQL(ctx, sb)
}

func (r *EventLogRepo) ListByRun(
	ctx context.Context,
	runID core.ID,
	eventType *eventlog.EventType,
	limit int,
) ([]eventlog.Entry, error) {
	sb := squirrel.Select("id::text", "event_type", "details", "user_id", "workflow_id", "run_id", "created_at").
		From("log_entries").
		Where(squirrel.Eq{"run_id": runID}).
		OrderBy("created_at DESC").
		Limit(uint64(eventlog.ClampLimit(limit))).
		PlaceholderFormat(squirrel.Dollar)
	if eventType != nil {
		sb = sb.Where(squirrel.Eq{"event_type": string(*eventType)})
	}
	return r.listBySQL(ctx, sb)
}

func (r *EventLogRepo) listBySQL(ctx context.Context, sb squirrel.SelectBuilder) ([]eventlog.Entry, error) {
	sqlStr, args, err := sb.ToSql()
	if err != nil {
		return nil, fmt.Errorf("building event log query: %w", err)
	}
	var rows []logEntryRow
	if err := pgxscan.Select(ctx, r.db, &rows, sqlStr, args...); err != nil {
		return nil, fmt.Errorf("listing events: %w", err)
	}
	out := make([]eventlog.Entry, 0, len(rows))
	for i := range rows {
		e, err := rows[i].toDomain()
		if err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, nil
}

func (r *EventLogRepo) DeleteBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	const q = `DELETE FROM log_entries WHERE created_at < $1`
	tag, err := r.db.Exec(ctx, q, cutoff.UTC())
	if err != nil {
		return 0, fmt.Errorf("reaping log entries: %w", err)
	}
	return tag.RowsAffected(), nil
}

var _ eventlog.Store = (*EventLogRepo)(nil)

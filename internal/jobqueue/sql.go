package jobqueue

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
)

// SQLStrategy persists jobs in PostgreSQL. Claims rely on
// FOR UPDATE SKIP LOCKED so multiple worker processes can share one table
// without double-claiming. This strategy is poll-only.
type SQLStrategy struct {
	db *sqlx.DB
}

var _ Strategy = (*SQLStrategy)(nil)

// NewSQLStrategy wraps an open database handle. The jobs table is created by
// the storage migrations.
func NewSQLStrategy(db *sqlx.DB) *SQLStrategy {
	return &SQLStrategy{db: db}
}

type jobRow struct {
	ID         string       `db:"id"`
	Queue      string       `db:"queue"`
	Payload    []byte       `db:"payload"`
	State      string       `db:"state"`
	Progress   int          `db:"progress"`
	Attempts   int          `db:"attempts"`
	MaxRetries int          `db:"max_retries"`
	Result     []byte       `db:"result"`
	Error      string       `db:"error"`
	CreatedAt  time.Time    `db:"created_at"`
	RunAt      time.Time    `db:"run_at"`
	StartedAt  sql.NullTime `db:"started_at"`
	SettledAt  sql.NullTime `db:"settled_at"`
}

func (r jobRow) toJob() Job {
	job := Job{
		ID:         r.ID,
		Queue:      r.Queue,
		Payload:    json.RawMessage(r.Payload),
		State:      State(r.State),
		Progress:   r.Progress,
		Attempts:   r.Attempts,
		MaxRetries: r.MaxRetries,
		Result:     json.RawMessage(r.Result),
		Error:      r.Error,
		CreatedAt:  r.CreatedAt.UTC(),
		RunAt:      r.RunAt.UTC(),
	}
	if r.StartedAt.Valid {
		job.StartedAt = r.StartedAt.Time.UTC()
	}
	if r.SettledAt.Valid {
		job.SettledAt = r.SettledAt.Time.UTC()
	}
	return job
}

const jobColumns = `id, queue, payload, state, progress, attempts, max_retries, result, error, created_at, run_at, started_at, settled_at`

func (s *SQLStrategy) Add(ctx context.Context, job Job) (Job, error) {
	if job.ID == "" {
		job.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	job.State = StatePending
	job.CreatedAt = now
	if job.RunAt.IsZero() {
		job.RunAt = now
	}
	if len(job.Payload) == 0 {
		job.Payload = json.RawMessage("{}")
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO jobs (id, queue, payload, state, progress, attempts, max_retries, error, created_at, run_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, '', $8, $9)
	`, job.ID, job.Queue, []byte(job.Payload), job.State, job.Progress, job.Attempts, job.MaxRetries, job.CreatedAt, job.RunAt)
	if err != nil {
		return Job{}, fmt.Errorf("insert job: %w", err)
	}
	return job, nil
}

func (s *SQLStrategy) Next(ctx context.Context, queue string) (Job, bool, error) {
	var row jobRow
	err := s.db.GetContext(ctx, &row, `
		UPDATE jobs
		SET state = 'running', attempts = attempts + 1, started_at = now()
		WHERE id = (
			SELECT id FROM jobs
			WHERE queue = $1 AND state = 'pending' AND run_at <= now()
			ORDER BY created_at
			LIMIT 1
			FOR UPDATE SKIP LOCKED
		)
		RETURNING `+jobColumns, queue)
	if errors.Is(err, sql.ErrNoRows) {
		return Job{}, false, nil
	}
	if err != nil {
		return Job{}, false, fmt.Errorf("claim job: %w", err)
	}
	return row.toJob(), true, nil
}

func (s *SQLStrategy) Update(ctx context.Context, job Job) error {
	settledAt := sql.NullTime{}
	if job.IsSettled() {
		if job.SettledAt.IsZero() {
			job.SettledAt = time.Now().UTC()
		}
		settledAt = sql.NullTime{Time: job.SettledAt, Valid: true}
	}

	result, err := s.db.ExecContext(ctx, `
		UPDATE jobs
		SET state = $2, progress = $3, attempts = $4, max_retries = $5,
		    result = $6, error = $7, run_at = $8, settled_at = $9
		WHERE id = $1 AND state IN ('pending', 'running')
	`, job.ID, job.State, job.Progress, job.Attempts, job.MaxRetries,
		[]byte(job.Result), job.Error, job.RunAt, settledAt)
	if err != nil {
		return fmt.Errorf("update job: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		if _, err := s.FindByID(ctx, job.ID); err != nil {
			return err
		}
		return ErrAlreadySettled
	}
	return nil
}

func (s *SQLStrategy) FindByID(ctx context.Context, id string) (Job, error) {
	var row jobRow
	err := s.db.GetContext(ctx, &row, `SELECT `+jobColumns+` FROM jobs WHERE id = $1`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return Job{}, ErrNotFound
	}
	if err != nil {
		return Job{}, fmt.Errorf("find job: %w", err)
	}
	return row.toJob(), nil
}

func (s *SQLStrategy) FindMany(ctx context.Context, opts ListOptions) ([]Job, int, error) {
	where := "TRUE"
	args := []interface{}{}
	if opts.Queue != "" {
		args = append(args, opts.Queue)
		where += fmt.Sprintf(" AND queue = $%d", len(args))
	}
	if len(opts.States) > 0 {
		placeholders := ""
		for _, st := range opts.States {
			args = append(args, string(st))
			if placeholders != "" {
				placeholders += ", "
			}
			placeholders += fmt.Sprintf("$%d", len(args))
		}
		where += " AND state IN (" + placeholders + ")"
	}

	var total int
	if err := s.db.GetContext(ctx, &total, `SELECT count(*) FROM jobs WHERE `+where, args...); err != nil {
		return nil, 0, fmt.Errorf("count jobs: %w", err)
	}

	query := `SELECT ` + jobColumns + ` FROM jobs WHERE ` + where + ` ORDER BY created_at`
	if opts.Limit > 0 {
		query += fmt.Sprintf(" LIMIT %d", opts.Limit)
	}
	if opts.Offset > 0 {
		query += fmt.Sprintf(" OFFSET %d", opts.Offset)
	}

	var rows []jobRow
	if err := s.db.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, 0, fmt.Errorf("list jobs: %w", err)
	}
	jobs := make([]Job, len(rows))
	for i, row := range rows {
		jobs[i] = row.toJob()
	}
	return jobs, total, nil
}

func (s *SQLStrategy) Cancel(ctx context.Context, id string) (Job, error) {
	var row jobRow
	err := s.db.GetContext(ctx, &row, `
		UPDATE jobs
		SET state = 'cancelled', settled_at = now()
		WHERE id = $1 AND state IN ('pending', 'running')
		RETURNING `+jobColumns, id)
	if errors.Is(err, sql.ErrNoRows) {
		if _, findErr := s.FindByID(ctx, id); findErr != nil {
			return Job{}, findErr
		}
		return Job{}, ErrAlreadySettled
	}
	if err != nil {
		return Job{}, fmt.Errorf("cancel job: %w", err)
	}
	return row.toJob(), nil
}

func (s *SQLStrategy) Requeue(ctx context.Context, id string, extraRetries int) (Job, error) {
	if extraRetries < 0 {
		extraRetries = 0
	}
	var row jobRow
	err := s.db.GetContext(ctx, &row, `
		UPDATE jobs
		SET state = 'pending', error = '', progress = 0, settled_at = NULL,
		    run_at = now(), max_retries = max_retries + $2
		WHERE id = $1 AND state IN ('failed', 'cancelled')
		RETURNING `+jobColumns, id, extraRetries)
	if errors.Is(err, sql.ErrNoRows) {
		if _, findErr := s.FindByID(ctx, id); findErr != nil {
			return Job{}, findErr
		}
		return Job{}, ErrAlreadySettled
	}
	if err != nil {
		return Job{}, fmt.Errorf("requeue job: %w", err)
	}
	return row.toJob(), nil
}

func (s *SQLStrategy) RemoveSettled(ctx context.Context, queue string, olderThan time.Time) (int, error) {
	result, err := s.db.ExecContext(ctx, `
		DELETE FROM jobs
		WHERE state IN ('completed', 'failed', 'cancelled')
		  AND settled_at <= $1
		  AND ($2 = '' OR queue = $2)
	`, olderThan.UTC(), queue)
	if err != nil {
		return 0, fmt.Errorf("remove settled jobs: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return 0, err
	}
	return int(rows), nil
}

func (s *SQLStrategy) Stats(ctx context.Context) ([]QueueStats, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT queue, state, count(*) FROM jobs GROUP BY queue, state ORDER BY queue
	`)
	if err != nil {
		return nil, fmt.Errorf("queue stats: %w", err)
	}
	defer rows.Close()

	byQueue := make(map[string]*QueueStats)
	var order []string
	for rows.Next() {
		var (
			queue string
			state string
			count int
		)
		if err := rows.Scan(&queue, &state, &count); err != nil {
			return nil, err
		}
		stats, ok := byQueue[queue]
		if !ok {
			stats = &QueueStats{Name: queue}
			byQueue[queue] = stats
			order = append(order, queue)
		}
		switch State(state) {
		case StatePending:
			stats.Pending = count
		case StateRunning:
			stats.Running = count
		case StateCompleted:
			stats.Completed = count
		case StateFailed:
			stats.Failed = count
		case StateCancelled:
			stats.Cancelled = count
		}
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	out := make([]QueueStats, 0, len(order))
	for _, name := range order {
		out = append(out, *byQueue[name])
	}
	return out, nil
}

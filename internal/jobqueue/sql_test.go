package jobqueue

import (
	"context"
	"database/sql"
	"encoding/json"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
)

func newMockStrategy(t *testing.T) (*SQLStrategy, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	if err != nil {
		t.Fatalf("sqlmock: %v", err)
	}
	t.Cleanup(func() {
		if err := mock.ExpectationsWereMet(); err != nil {
			t.Errorf("unmet expectations: %v", err)
		}
		db.Close()
	})
	return NewSQLStrategy(sqlx.NewDb(db, "postgres")), mock
}

func mockJobRow(job Job) *sqlmock.Rows {
	rows := sqlmock.NewRows([]string{
		"id", "queue", "payload", "state", "progress", "attempts", "max_retries",
		"result", "error", "created_at", "run_at", "started_at", "settled_at",
	})
	var started, settled sql.NullTime
	if !job.StartedAt.IsZero() {
		started = sql.NullTime{Time: job.StartedAt, Valid: true}
	}
	if !job.SettledAt.IsZero() {
		settled = sql.NullTime{Time: job.SettledAt, Valid: true}
	}
	rows.AddRow(job.ID, job.Queue, []byte(job.Payload), string(job.State), job.Progress,
		job.Attempts, job.MaxRetries, []byte(job.Result), job.Error,
		job.CreatedAt, job.RunAt, started, settled)
	return rows
}

func TestSQLStrategy_AddInsertsPendingJob(t *testing.T) {
	s, mock := newMockStrategy(t)

	mock.ExpectExec(`INSERT INTO jobs`).
		WithArgs(sqlmock.AnyArg(), "emails", []byte(`{"to":"a@b.c"}`), "pending",
			0, 0, 3, sqlmock.AnyArg(), sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))

	job, err := s.Add(context.Background(), Job{
		Queue:      "emails",
		Payload:    json.RawMessage(`{"to":"a@b.c"}`),
		MaxRetries: 3,
	})
	if err != nil {
		t.Fatalf("add: %v", err)
	}
	if job.ID == "" || job.State != StatePending {
		t.Fatalf("returned job: %+v", job)
	}
	if job.RunAt.IsZero() || job.CreatedAt.IsZero() {
		t.Fatalf("timestamps not set: %+v", job)
	}
}

func TestSQLStrategy_NextClaimsOldestEligible(t *testing.T) {
	s, mock := newMockStrategy(t)
	now := time.Now().UTC()

	mock.ExpectQuery(`UPDATE jobs\s+SET state = 'running'`).
		WithArgs("emails").
		WillReturnRows(mockJobRow(Job{
			ID:        "j1",
			Queue:     "emails",
			Payload:   json.RawMessage(`{}`),
			State:     StateRunning,
			Attempts:  1,
			CreatedAt: now,
			RunAt:     now,
			StartedAt: now,
		}))

	job, ok, err := s.Next(context.Background(), "emails")
	if err != nil || !ok {
		t.Fatalf("next: ok=%v err=%v", ok, err)
	}
	if job.ID != "j1" || job.State != StateRunning || job.Attempts != 1 {
		t.Fatalf("claimed job: %+v", job)
	}
}

func TestSQLStrategy_NextEmptyQueue(t *testing.T) {
	s, mock := newMockStrategy(t)

	mock.ExpectQuery(`UPDATE jobs\s+SET state = 'running'`).
		WithArgs("emails").
		WillReturnError(sql.ErrNoRows)

	_, ok, err := s.Next(context.Background(), "emails")
	if err != nil {
		t.Fatalf("next: %v", err)
	}
	if ok {
		t.Fatal("claim from empty queue")
	}
}

func TestSQLStrategy_UpdateSettledMapsToSentinel(t *testing.T) {
	s, mock := newMockStrategy(t)
	now := time.Now().UTC()

	// The guarded UPDATE touches no rows, so the strategy re-reads the job
	// to distinguish "gone" from "already settled".
	mock.ExpectExec(`UPDATE jobs`).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery(`SELECT .+ FROM jobs WHERE id =`).
		WithArgs("j1").
		WillReturnRows(mockJobRow(Job{
			ID:        "j1",
			Queue:     "emails",
			State:     StateCancelled,
			CreatedAt: now,
			RunAt:     now,
			SettledAt: now,
		}))

	err := s.Update(context.Background(), Job{ID: "j1", Queue: "emails", State: StateRunning, RunAt: now})
	if err != ErrAlreadySettled {
		t.Fatalf("update = %v, want ErrAlreadySettled", err)
	}
}

func TestSQLStrategy_UpdateMissingJob(t *testing.T) {
	s, mock := newMockStrategy(t)

	mock.ExpectExec(`UPDATE jobs`).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery(`SELECT .+ FROM jobs WHERE id =`).
		WithArgs("missing").
		WillReturnError(sql.ErrNoRows)

	err := s.Update(context.Background(), Job{ID: "missing", State: StateRunning, RunAt: time.Now()})
	if err != ErrNotFound {
		t.Fatalf("update = %v, want ErrNotFound", err)
	}
}

func TestSQLStrategy_CancelRunningJob(t *testing.T) {
	s, mock := newMockStrategy(t)
	now := time.Now().UTC()

	mock.ExpectQuery(`UPDATE jobs\s+SET state = 'cancelled'`).
		WithArgs("j1").
		WillReturnRows(mockJobRow(Job{
			ID:        "j1",
			Queue:     "emails",
			State:     StateCancelled,
			CreatedAt: now,
			RunAt:     now,
			SettledAt: now,
		}))

	job, err := s.Cancel(context.Background(), "j1")
	if err != nil {
		t.Fatalf("cancel: %v", err)
	}
	if job.State != StateCancelled || job.SettledAt.IsZero() {
		t.Fatalf("cancelled job: %+v", job)
	}
}

func TestSQLStrategy_RequeueAddsRetryBudget(t *testing.T) {
	s, mock := newMockStrategy(t)
	now := time.Now().UTC()

	mock.ExpectQuery(`UPDATE jobs\s+SET state = 'pending'`).
		WithArgs("j1", 2).
		WillReturnRows(mockJobRow(Job{
			ID:         "j1",
			Queue:      "emails",
			State:      StatePending,
			Attempts:   2,
			MaxRetries: 3,
			CreatedAt:  now,
			RunAt:      now,
		}))

	job, err := s.Requeue(context.Background(), "j1", 2)
	if err != nil {
		t.Fatalf("requeue: %v", err)
	}
	if job.State != StatePending || job.MaxRetries != 3 {
		t.Fatalf("requeued job: %+v", job)
	}
}

func TestSQLStrategy_FindManyFilters(t *testing.T) {
	s, mock := newMockStrategy(t)
	now := time.Now().UTC()

	mock.ExpectQuery(`SELECT count\(\*\) FROM jobs`).
		WithArgs("emails", "pending", "running").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(7))
	mock.ExpectQuery(`SELECT .+ FROM jobs WHERE .+ ORDER BY created_at LIMIT 2`).
		WithArgs("emails", "pending", "running").
		WillReturnRows(mockJobRow(Job{
			ID:        "j1",
			Queue:     "emails",
			State:     StatePending,
			CreatedAt: now,
			RunAt:     now,
		}))

	jobs, total, err := s.FindMany(context.Background(), ListOptions{
		Queue:  "emails",
		States: []State{StatePending, StateRunning},
		Limit:  2,
	})
	if err != nil {
		t.Fatalf("find many: %v", err)
	}
	if total != 7 || len(jobs) != 1 {
		t.Fatalf("total=%d jobs=%d", total, len(jobs))
	}
}

func TestSQLStrategy_RemoveSettled(t *testing.T) {
	s, mock := newMockStrategy(t)
	cutoff := time.Now().UTC()

	mock.ExpectExec(`DELETE FROM jobs`).
		WithArgs(cutoff, "emails").
		WillReturnResult(sqlmock.NewResult(0, 5))

	removed, err := s.RemoveSettled(context.Background(), "emails", cutoff)
	if err != nil {
		t.Fatalf("remove settled: %v", err)
	}
	if removed != 5 {
		t.Fatalf("removed = %d, want 5", removed)
	}
}

func TestSQLStrategy_Stats(t *testing.T) {
	s, mock := newMockStrategy(t)

	mock.ExpectQuery(`SELECT queue, state, count\(\*\) FROM jobs GROUP BY`).
		WillReturnRows(sqlmock.NewRows([]string{"queue", "state", "count"}).
			AddRow("collections", "pending", 2).
			AddRow("emails", "completed", 4).
			AddRow("emails", "failed", 1))

	stats, err := s.Stats(context.Background())
	if err != nil {
		t.Fatalf("stats: %v", err)
	}
	if len(stats) != 2 {
		t.Fatalf("queues = %d, want 2", len(stats))
	}
	if stats[0].Name != "collections" || stats[0].Pending != 2 {
		t.Fatalf("collections: %+v", stats[0])
	}
	if stats[1].Completed != 4 || stats[1].Failed != 1 {
		t.Fatalf("emails: %+v", stats[1])
	}
}

package report

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/mahaj/counseling-smoke/pkg/db"
	"github.com/mahaj/counseling-smoke/pkg/snowflake"
)

const Table = "smoke_runs"

// Store persists reports in Scylla, partitioned by target base URL so that
// the history of one environment reads newest first.
type Store struct {
	db *db.Session
}

func NewStore(session *db.Session) *Store {
	return &Store{db: session}
}

func (s *Store) EnsureSchema(ctx context.Context) error {
	err := s.db.Query(`CREATE TABLE IF NOT EXISTS ` + Table + ` (
		base_url text,
		run_id bigint,
		identifier text,
		started_at timestamp,
		finished_at timestamp,
		failed int,
		report text,
		PRIMARY KEY (base_url, run_id)
	) WITH CLUSTERING ORDER BY (run_id DESC)`).WithContext(ctx).Exec()
	if err != nil {
		return fmt.Errorf("creating %s table: %w", Table, err)
	}
	return nil
}

func (s *Store) Save(ctx context.Context, r *Report) error {
	const op = "Store.Save"
	payload, err := json.Marshal(r)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	query := `INSERT INTO ` + Table + ` (base_url, run_id, identifier, started_at, finished_at, failed, report) VALUES (?, ?, ?, ?, ?, ?, ?)`
	err = s.db.Query(query, r.BaseURL, int64(r.RunID), r.Identifier, r.StartedAt, r.FinishedAt, r.Failed(), string(payload)).WithContext(ctx).Exec()
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}

// Summary is a stored run without its step detail.
type Summary struct {
	RunID      snowflake.ID
	Identifier string
	StartedAt  time.Time
	FinishedAt time.Time
	Failed     int
}

func (s *Store) Recent(ctx context.Context, baseURL string, limit int) ([]Summary, error) {
	const op = "Store.Recent"
	iter := s.db.Query(`SELECT run_id, identifier, started_at, finished_at, failed FROM `+Table+` WHERE base_url = ? LIMIT ?`, baseURL, limit).WithContext(ctx).Iter()

	var (
		summaries []Summary
		runID     int64
		sum       Summary
	)
	for iter.Scan(&runID, &sum.Identifier, &sum.StartedAt, &sum.FinishedAt, &sum.Failed) {
		sum.RunID = snowflake.ID(runID)
		summaries = append(summaries, sum)
	}
	if err := iter.Close(); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return summaries, nil
}

package report

import (
	"context"
	"errors"
	"time"

	"github.com/mahaj/counseling-smoke/pkg/snowflake"
)

// Step is one HTTP exchange inside a check.
type Step struct {
	Name       string        `json:"name"`
	StatusCode int           `json:"status_code,omitempty"`
	Duration   time.Duration `json:"duration"`
	Body       string        `json:"body,omitempty"`
}

type Result struct {
	Check   string `json:"check"`
	Passed  bool   `json:"passed"`
	Skipped bool   `json:"skipped,omitempty"`
	Error   string `json:"error,omitempty"`
	Steps   []Step `json:"steps"`
}

// Report is the outcome of one smoke run.
type Report struct {
	RunID      snowflake.ID `json:"run_id,string"`
	BaseURL    string       `json:"base_url"`
	Identifier string       `json:"identifier"`
	StartedAt  time.Time    `json:"started_at"`
	FinishedAt time.Time    `json:"finished_at"`
	Results    []Result     `json:"results"`
}

func (r *Report) Failed() int {
	n := 0
	for _, res := range r.Results {
		if !res.Passed && !res.Skipped {
			n++
		}
	}
	return n
}

func (r *Report) Duration() time.Duration {
	return r.FinishedAt.Sub(r.StartedAt)
}

// Sink receives finished reports.
type Sink interface {
	Publish(ctx context.Context, r *Report) error
	Close() error
}

// Multi publishes to every sink and joins their errors.
type Multi []Sink

func (m Multi) Publish(ctx context.Context, r *Report) error {
	var errs []error
	for _, s := range m {
		if err := s.Publish(ctx, r); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (m Multi) Close() error {
	var errs []error
	for _, s := range m {
		if err := s.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

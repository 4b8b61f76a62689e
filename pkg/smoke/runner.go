// Package smoke runs login-then-call checks against the counseling API and
// prints a human readable transcript of every exchange.
package smoke

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"go.uber.org/zap"

	"github.com/mahaj/counseling-smoke/pkg/client"
	"github.com/mahaj/counseling-smoke/pkg/model"
	"github.com/mahaj/counseling-smoke/pkg/report"
	"github.com/mahaj/counseling-smoke/pkg/snowflake"
)

type Options struct {
	Credentials  model.LoginRequest
	Message      model.MessageRequest
	TokenPreview int
	WebSocketURL string
}

type Runner struct {
	client *client.Client
	opts   Options
	out    io.Writer
	logger *zap.Logger
	ids    *snowflake.Node
	now    func() time.Time
}

func NewRunner(c *client.Client, opts Options, out io.Writer, logger *zap.Logger, ids *snowflake.Node) *Runner {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Runner{
		client: c,
		opts:   opts,
		out:    out,
		logger: logger,
		ids:    ids,
		now:    time.Now,
	}
}

// Run executes the named checks one after another, or the default set when
// names is empty. A failing check never stops the ones after it. The error
// is non-nil only for unknown check names or a cancelled context.
func (r *Runner) Run(ctx context.Context, names ...string) (*report.Report, error) {
	if len(names) == 0 {
		names = DefaultNames()
	}

	checks := make([]Check, 0, len(names))
	for _, name := range names {
		c, ok := Lookup(name)
		if !ok {
			return nil, fmt.Errorf("unknown check %q", name)
		}
		checks = append(checks, c)
	}

	rep := &report.Report{
		RunID:      r.ids.Generate(),
		BaseURL:    r.client.BaseURL(),
		Identifier: r.opts.Credentials.Identifier,
		StartedAt:  r.now().UTC(),
	}

	var runErr error
	for i, c := range checks {
		if err := ctx.Err(); err != nil {
			runErr = err
			break
		}
		if i > 0 {
			fmt.Fprintln(r.out)
		}
		rep.Results = append(rep.Results, r.runCheck(ctx, c))
	}

	rep.FinishedAt = r.now().UTC()
	r.logger.Info("smoke run finished",
		zap.Stringer("run_id", rep.RunID),
		zap.Int("checks", len(rep.Results)),
		zap.Int("failed", rep.Failed()),
		zap.Duration("duration", rep.Duration()))
	return rep, runErr
}

func (r *Runner) runCheck(ctx context.Context, c Check) report.Result {
	env := &Env{
		Client:       r.client,
		Credentials:  r.opts.Credentials,
		Message:      r.opts.Message,
		TokenPreview: r.opts.TokenPreview,
		WebSocketURL: r.opts.WebSocketURL,
		Logger:       r.logger.With(zap.String("check", c.Name)),
		out:          r.out,
	}

	start := time.Now()
	err := c.Run(ctx, env)
	res := report.Result{Check: c.Name, Passed: err == nil, Steps: env.steps}

	var failure *Failure
	switch {
	case err == nil:
	case errors.Is(err, ErrSkipped):
		res.Skipped = true
	case errors.As(err, &failure):
		res.Error = failure.Reason
	default:
		// Anything the check did not explain itself is printed like an
		// uncaught exception.
		env.Printf("Error: %s\n", err)
		res.Error = err.Error()
	}

	env.Logger.Info("check finished",
		zap.Bool("passed", res.Passed),
		zap.Bool("skipped", res.Skipped),
		zap.Duration("duration", time.Since(start)),
		zap.String("error", res.Error))
	return res
}

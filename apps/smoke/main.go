package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"text/tabwriter"
	"time"

	"github.com/alecthomas/kong"
	"go.uber.org/zap"

	"github.com/mahaj/counseling-smoke/pkg/auth"
	"github.com/mahaj/counseling-smoke/pkg/client"
	"github.com/mahaj/counseling-smoke/pkg/config"
	"github.com/mahaj/counseling-smoke/pkg/db"
	"github.com/mahaj/counseling-smoke/pkg/logging"
	"github.com/mahaj/counseling-smoke/pkg/model"
	"github.com/mahaj/counseling-smoke/pkg/report"
	"github.com/mahaj/counseling-smoke/pkg/smoke"
	"github.com/mahaj/counseling-smoke/pkg/snowflake"
)

type CLI struct {
	Run     RunCmd     `cmd:"" default:"1" help:"Run smoke checks against the counseling API (default)."`
	List    ListCmd    `cmd:"" help:"List available checks."`
	Token   TokenCmd   `cmd:"" help:"Decode a bearer token without verifying it."`
	History HistoryCmd `cmd:"" help:"Show recent runs from Redis or Scylla."`
}

type deps struct {
	cfg    config.Config
	logger *zap.Logger
	out    io.Writer
}

type RunCmd struct {
	Check   []string `help:"Check to run, repeatable. Defaults to send-message and unread-count." short:"c"`
	All     bool     `help:"Run every known check."`
	BaseURL string   `help:"Override SMOKE_BASE_URL." name:"base-url"`
	Strict  bool     `help:"Exit non-zero when any check fails."`
}

func (c *RunCmd) Run(ctx context.Context, d *deps) error {
	cfg := d.cfg.Smoke
	if c.BaseURL != "" {
		cfg.BaseURL = c.BaseURL
	}

	ids, err := snowflake.NewNode(d.cfg.NodeID)
	if err != nil {
		return err
	}

	names := c.checkNames()

	runner := smoke.NewRunner(
		client.New(cfg.BaseURL, cfg.Timeout, client.WithLogger(d.logger)),
		smoke.Options{
			Credentials: model.LoginRequest{Identifier: cfg.Identifier, Password: cfg.Password},
			Message: model.MessageRequest{
				RecipientID: cfg.RecipientID,
				Subject:     cfg.Subject,
				Content:     cfg.Content,
			},
			TokenPreview: cfg.TokenPreview,
			WebSocketURL: cfg.WebSocketURL,
		},
		d.out,
		d.logger,
		ids,
	)

	rep, err := runner.Run(ctx, names...)
	if rep != nil {
		publish(d, sinksFor(d.cfg), rep)
	}
	if err != nil {
		return err
	}

	if c.Strict && rep.Failed() > 0 {
		return fmt.Errorf("%d of %d checks failed", rep.Failed(), len(rep.Results))
	}
	return nil
}

// checkNames returns nil for the default set.
func (c *RunCmd) checkNames() []string {
	if !c.All {
		return c.Check
	}
	var names []string
	for _, check := range smoke.Checks() {
		names = append(names, check.Name)
	}
	return names
}

// sinksFor builds a sink for every backend cfg enables. Constructing a sink
// does not dial.
func sinksFor(cfg config.Config) report.Multi {
	var sinks report.Multi
	if cfg.Redis.Addr != "" {
		sinks = append(sinks, report.NewRedisSink(cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.Key, cfg.Redis.Keep))
	}
	if len(cfg.Kafka.Brokers) > 0 {
		sinks = append(sinks, report.NewKafkaSink(cfg.Kafka.Brokers, cfg.Kafka.Topic))
	}
	return sinks
}

func publish(d *deps, sinks report.Multi, rep *report.Report) {
	if len(sinks) == 0 {
		return
	}
	defer func() {
		if err := sinks.Close(); err != nil {
			d.logger.Warn("closing report sinks", zap.Error(err))
		}
	}()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := sinks.Publish(ctx, rep); err != nil {
		d.logger.Warn("publishing report", zap.Stringer("run_id", rep.RunID), zap.Error(err))
		return
	}
	d.logger.Info("report published", zap.Stringer("run_id", rep.RunID), zap.Int("sinks", len(sinks)))
}

type ListCmd struct{}

func (c *ListCmd) Run(d *deps) error {
	w := tabwriter.NewWriter(d.out, 0, 4, 2, ' ', 0)
	for _, check := range smoke.Checks() {
		marker := ""
		if check.Default {
			marker = "default"
		}
		fmt.Fprintf(w, "%s\t%s\t%s\n", check.Name, marker, check.Description)
	}
	return w.Flush()
}

type TokenCmd struct {
	Token string `arg:"" help:"Token, with or without the Bearer prefix."`
}

func (c *TokenCmd) Run(d *deps) error {
	token := c.Token
	if t, ok := auth.BearerToken(token); ok {
		token = t
	}

	claims, err := auth.Inspect(token)
	if err != nil {
		return fmt.Errorf("decoding token: %w", err)
	}

	fmt.Fprintf(d.out, "subject:  %s\n", claims.Subject)
	fmt.Fprintf(d.out, "user id:  %d\n", claims.UserID)
	if claims.Role != "" {
		fmt.Fprintf(d.out, "role:     %s\n", claims.Role)
	}
	if claims.IssuedAt != nil {
		fmt.Fprintf(d.out, "issued:   %s\n", claims.IssuedAt.Time.Format(time.RFC3339))
	}
	if claims.ExpiresAt != nil {
		state := "valid"
		if claims.ExpiresAt.Before(time.Now()) {
			state = "expired"
		}
		fmt.Fprintf(d.out, "expires:  %s (%s)\n", claims.ExpiresAt.Time.Format(time.RFC3339), state)
	}
	return nil
}

type HistoryCmd struct {
	Source  string `default:"redis" enum:"redis,scylla" help:"Where to read runs from."`
	Limit   int    `default:"10" short:"n" help:"Number of runs to show."`
	BaseURL string `help:"Scylla only: target to list runs for. Defaults to SMOKE_BASE_URL." name:"base-url"`
}

func (c *HistoryCmd) Run(ctx context.Context, d *deps) error {
	w := tabwriter.NewWriter(d.out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "RUN\tSTARTED\tDURATION\tFAILED\tTARGET")

	switch c.Source {
	case "scylla":
		baseURL := c.BaseURL
		if baseURL == "" {
			baseURL = d.cfg.Smoke.BaseURL
		}
		session, err := db.NewSession(d.cfg.Scylla.Hosts, d.cfg.Scylla.Keyspace)
		if err != nil {
			return err
		}
		defer session.Close()

		runs, err := report.NewStore(session).Recent(ctx, baseURL, c.Limit)
		if err != nil {
			return err
		}
		for _, run := range runs {
			fmt.Fprintf(w, "%s\t%s\t%s\t%d\t%s\n", run.RunID, run.StartedAt.Format(time.RFC3339),
				run.FinishedAt.Sub(run.StartedAt).Round(time.Millisecond), run.Failed, baseURL)
		}
	default:
		if d.cfg.Redis.Addr == "" {
			return errors.New("REDIS_ADDR is not set")
		}
		sink := report.NewRedisSink(d.cfg.Redis.Addr, d.cfg.Redis.Password, d.cfg.Redis.Key, d.cfg.Redis.Keep)
		defer sink.Close()

		runs, err := sink.Recent(ctx, int64(c.Limit))
		if err != nil {
			return err
		}
		for _, run := range runs {
			fmt.Fprintf(w, "%s\t%s\t%s\t%d\t%s\n", run.RunID, run.StartedAt.Format(time.RFC3339),
				run.Duration().Round(time.Millisecond), run.Failed(), run.BaseURL)
		}
	}
	return w.Flush()
}

// run parses args, executes the selected command and returns the process
// exit code. Check transcripts go to stdout; errors and logs go to stderr.
func run(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	cli := &CLI{}
	parser, err := kong.New(cli,
		kong.Name("smoke"),
		kong.Description("Smoke tests for the counseling messaging API."),
		kong.Writers(stdout, stderr),
		kong.BindTo(ctx, (*context.Context)(nil)),
	)
	if err != nil {
		fmt.Fprintf(stderr, "smoke: %s\n", err)
		return 2
	}

	kctx, err := parser.Parse(args)
	if err != nil {
		fmt.Fprintf(stderr, "smoke: error: %s\n", err)
		return 2
	}

	cfg, err := config.Load(ctx)
	if err != nil {
		fmt.Fprintf(stderr, "smoke: error: loading config: %s\n", err)
		return 1
	}

	logger, err := logging.New(cfg.LogLevel, cfg.IsDevelopment())
	if err != nil {
		fmt.Fprintf(stderr, "smoke: error: %s\n", err)
		return 1
	}
	defer logger.Sync()

	err = kctx.Run(&deps{cfg: cfg, logger: logger, out: stdout})
	if errors.Is(err, context.Canceled) {
		logger.Warn("interrupted")
	}
	if err != nil {
		fmt.Fprintf(stderr, "smoke: error: %s\n", err)
		return 1
	}
	return 0
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	code := run(ctx, os.Args[1:], os.Stdout, os.Stderr)
	stop()
	os.Exit(code)
}

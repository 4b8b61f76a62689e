package smoke

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/mahaj/counseling-smoke/pkg/auth"
	"github.com/mahaj/counseling-smoke/pkg/client"
	"github.com/mahaj/counseling-smoke/pkg/model"
	"github.com/mahaj/counseling-smoke/pkg/report"
)

// ErrSkipped is returned by a check that could not run in this environment.
var ErrSkipped = errors.New("check skipped")

// Failure is a check outcome that has already been explained on the console.
type Failure struct {
	Reason string
}

func (f *Failure) Error() string {
	return f.Reason
}

func failf(format string, args ...any) error {
	return &Failure{Reason: fmt.Sprintf(format, args...)}
}

// Env is everything a check may touch. Each check gets a fresh Env, so
// nothing (tokens included) is shared between checks.
type Env struct {
	Client       *client.Client
	Credentials  model.LoginRequest
	Message      model.MessageRequest
	TokenPreview int
	WebSocketURL string
	Logger       *zap.Logger

	out   io.Writer
	steps []report.Step
}

func (e *Env) Printf(format string, args ...any) {
	fmt.Fprintf(e.out, format, args...)
}

func (e *Env) Println(args ...any) {
	fmt.Fprintln(e.out, args...)
}

func (e *Env) record(name string, status int, d time.Duration, body []byte) {
	e.steps = append(e.steps, report.Step{
		Name:       name,
		StatusCode: status,
		Duration:   d,
		Body:       string(body),
	})
}

// login performs the login step every check starts with. On a non-200 it
// prints the raw body and returns a *Failure.
func (e *Env) login(ctx context.Context, printStatus bool) (string, error) {
	resp, err := e.Client.Login(ctx, e.Credentials)
	if resp != nil && printStatus {
		e.Printf("Login status: %d\n", resp.StatusCode)
	}

	var statusErr *client.StatusError
	if errors.As(err, &statusErr) {
		e.record("login", resp.StatusCode, resp.Duration, resp.Body)
		e.Printf("Login failed. Response: %s\n", text(statusErr.Body))
		return "", failf("login returned status %d", statusErr.StatusCode)
	}
	if resp != nil {
		e.record("login", resp.StatusCode, resp.Duration, nil)
	}
	if err != nil {
		return "", err
	}

	token := resp.Value.Token
	if claims, err := auth.Inspect(token); err == nil {
		fields := []zap.Field{zap.String("subject", claims.Subject), zap.Int64("user_id", claims.UserID)}
		if claims.ExpiresAt != nil {
			fields = append(fields, zap.Time("expires_at", claims.ExpiresAt.Time))
		}
		e.Logger.Debug("login token", fields...)
	} else {
		e.Logger.Debug("login token is not a JWT", zap.Error(err))
	}
	return token, nil
}

// loginAllowingMissingToken is login for checks that carry on with an empty
// bearer token when the server omits one.
func (e *Env) loginAllowingMissingToken(ctx context.Context) (string, error) {
	token, err := e.login(ctx, false)
	if errors.Is(err, client.ErrMissingToken) {
		e.Logger.Warn("login response has no token, continuing without one")
		return "", nil
	}
	return token, err
}

// text strips the trailing newline most servers append to error bodies.
func text(body string) string {
	return strings.TrimRight(body, "\r\n")
}

// compact renders a JSON body on one line.
func compact(raw []byte) string {
	var buf bytes.Buffer
	if err := json.Compact(&buf, raw); err != nil {
		return string(bytes.TrimSpace(raw))
	}
	return buf.String()
}

package smoke

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/mahaj/counseling-smoke/pkg/auth"
	"github.com/mahaj/counseling-smoke/pkg/client"
	"github.com/mahaj/counseling-smoke/pkg/model"
)

type Check struct {
	Name        string
	Description string
	// Default checks run when no names are given.
	Default bool
	Run     func(ctx context.Context, e *Env) error
}

var registry = []Check{
	{
		Name:        "send-message",
		Description: "log in and send a message to the configured recipient",
		Default:     true,
		Run:         checkSendMessage,
	},
	{
		Name:        "unread-count",
		Description: "log in and fetch the unread message count",
		Default:     true,
		Run:         checkUnreadCount,
	},
	{
		Name:        "health",
		Description: "fetch the service health endpoint",
		Run:         checkHealth,
	},
	{
		Name:        "validate-token",
		Description: "log in and ask the server to validate the issued token",
		Run:         checkValidateToken,
	},
	{
		Name:        "conversations",
		Description: "log in and list conversations with unread counts",
		Run:         checkConversations,
	},
	{
		Name:        "mark-all-read",
		Description: "log in, mark all messages read and expect an unread count of zero",
		Run:         checkMarkAllRead,
	},
	{
		Name:        "websocket",
		Description: "log in and open an authenticated websocket connection",
		Run:         checkWebSocket,
	},
}

// Checks returns every known check in run order.
func Checks() []Check {
	out := make([]Check, len(registry))
	copy(out, registry)
	return out
}

func Lookup(name string) (Check, bool) {
	for _, c := range registry {
		if c.Name == name {
			return c, true
		}
	}
	return Check{}, false
}

func DefaultNames() []string {
	var names []string
	for _, c := range registry {
		if c.Default {
			names = append(names, c.Name)
		}
	}
	return names
}

func statusFailure(err error) (*client.StatusError, bool) {
	var statusErr *client.StatusError
	ok := errors.As(err, &statusErr)
	return statusErr, ok
}

func checkSendMessage(ctx context.Context, e *Env) error {
	e.Println("Testing login and sending message...")

	token, err := e.login(ctx, true)
	if err != nil {
		return err
	}
	e.Printf("Login successful, token received: %s\n", auth.Preview(token, e.TokenPreview))

	resp, err := e.Client.SendMessage(ctx, token, e.Message)
	if resp == nil {
		return err
	}
	e.Printf("Send message status: %d\n", resp.StatusCode)

	if statusErr, ok := statusFailure(err); ok {
		e.record("send-message", resp.StatusCode, resp.Duration, resp.Body)
		e.Printf("Failed to send message. Response: %s\n", text(statusErr.Body))
		return failf("send message returned status %d", statusErr.StatusCode)
	}
	e.record("send-message", resp.StatusCode, resp.Duration, nil)

	// Success is announced on the status alone; a bad body fails afterwards.
	e.Println("Message sent successfully!")
	if err != nil {
		return err
	}
	e.Printf("Response: %s\n", compact(resp.Value))
	return nil
}

func checkUnreadCount(ctx context.Context, e *Env) error {
	e.Println("Testing unread count...")

	token, err := e.loginAllowingMissingToken(ctx)
	if err != nil {
		return err
	}

	resp, err := e.Client.UnreadCount(ctx, token)
	if resp == nil {
		return err
	}
	e.Printf("Unread count status: %d\n", resp.StatusCode)

	if statusErr, ok := statusFailure(err); ok {
		e.record("unread-count", resp.StatusCode, resp.Duration, resp.Body)
		e.Printf("Failed to get unread count. Response: %s\n", text(statusErr.Body))
		return failf("unread count returned status %d", statusErr.StatusCode)
	}
	e.record("unread-count", resp.StatusCode, resp.Duration, nil)
	if err != nil {
		return err
	}

	e.Printf("Unread count: %s\n", compact(resp.Value))
	return nil
}

func checkHealth(ctx context.Context, e *Env) error {
	e.Println("Testing health endpoint...")

	resp, err := e.Client.Health(ctx)
	if resp == nil {
		return err
	}
	e.Printf("Health status: %d\n", resp.StatusCode)

	if statusErr, ok := statusFailure(err); ok {
		e.record("health", resp.StatusCode, resp.Duration, resp.Body)
		e.Printf("Health check failed. Response: %s\n", text(statusErr.Body))
		return failf("health returned status %d", statusErr.StatusCode)
	}
	e.record("health", resp.StatusCode, resp.Duration, nil)
	if err != nil {
		return err
	}

	e.Printf("Health: %s\n", compact(resp.Value))
	return nil
}

func checkValidateToken(ctx context.Context, e *Env) error {
	e.Println("Testing token validation...")

	token, err := e.login(ctx, false)
	if err != nil {
		return err
	}

	resp, err := e.Client.ValidateToken(ctx, token)
	if resp == nil {
		return err
	}
	e.Printf("Validate token status: %d\n", resp.StatusCode)

	if statusErr, ok := statusFailure(err); ok {
		e.record("validate-token", resp.StatusCode, resp.Duration, resp.Body)
		e.Printf("Failed to validate token. Response: %s\n", text(statusErr.Body))
		return failf("validate token returned status %d", statusErr.StatusCode)
	}
	e.record("validate-token", resp.StatusCode, resp.Duration, nil)
	if err != nil {
		return err
	}

	if !resp.Value.Valid {
		e.Println("Token rejected by server.")
		return failf("server reported the login token as invalid")
	}
	e.Println("Token accepted by server.")
	return nil
}

func checkConversations(ctx context.Context, e *Env) error {
	e.Println("Testing conversations...")

	token, err := e.login(ctx, false)
	if err != nil {
		return err
	}

	resp, err := e.Client.Conversations(ctx, token)
	if resp == nil {
		return err
	}
	e.Printf("Conversations status: %d\n", resp.StatusCode)

	if statusErr, ok := statusFailure(err); ok {
		e.record("conversations", resp.StatusCode, resp.Duration, resp.Body)
		e.Printf("Failed to list conversations. Response: %s\n", text(statusErr.Body))
		return failf("conversations returned status %d", statusErr.StatusCode)
	}
	e.record("conversations", resp.StatusCode, resp.Duration, nil)
	if err != nil {
		return err
	}

	e.Printf("Conversations: %d\n", len(resp.Value))
	for _, c := range resp.Value {
		e.Printf("  partner %d (%s): %d unread\n", c.PartnerID, c.PartnerEmail, c.UnreadCount)
	}
	return nil
}

func checkMarkAllRead(ctx context.Context, e *Env) error {
	e.Println("Testing mark all read...")

	token, err := e.login(ctx, false)
	if err != nil {
		return err
	}

	readResp, err := e.Client.MarkAllRead(ctx, token)
	if readResp == nil {
		return err
	}
	e.Printf("Mark all read status: %d\n", readResp.StatusCode)
	if statusErr, ok := statusFailure(err); ok {
		e.record("mark-all-read", readResp.StatusCode, readResp.Duration, readResp.Body)
		e.Printf("Failed to mark messages read. Response: %s\n", text(statusErr.Body))
		return failf("mark all read returned status %d", statusErr.StatusCode)
	}
	e.record("mark-all-read", readResp.StatusCode, readResp.Duration, nil)
	if err != nil {
		return err
	}

	countResp, err := e.Client.UnreadCount(ctx, token)
	if countResp == nil {
		return err
	}
	if statusErr, ok := statusFailure(err); ok {
		e.record("unread-count", countResp.StatusCode, countResp.Duration, countResp.Body)
		e.Printf("Failed to get unread count. Response: %s\n", text(statusErr.Body))
		return failf("unread count returned status %d", statusErr.StatusCode)
	}
	e.record("unread-count", countResp.StatusCode, countResp.Duration, nil)
	if err != nil {
		return err
	}

	var count model.UnreadCount
	if err := json.Unmarshal(countResp.Value, &count); err != nil {
		return err
	}
	e.Printf("Unread count after read-all: %d\n", count.Count)
	if count.Count != 0 {
		return failf("unread count is %d after marking all read", count.Count)
	}
	return nil
}

func checkWebSocket(ctx context.Context, e *Env) error {
	e.Println("Testing websocket...")

	if e.WebSocketURL == "" {
		e.Println("Skipping websocket check: no websocket URL configured.")
		return ErrSkipped
	}

	token, err := e.login(ctx, false)
	if err != nil {
		return err
	}

	header := http.Header{}
	header.Set("Authorization", auth.BearerHeader(token))

	start := time.Now()
	conn, resp, err := websocket.DefaultDialer.DialContext(ctx, e.WebSocketURL, header)
	if err != nil {
		if resp != nil {
			e.record("websocket", resp.StatusCode, time.Since(start), nil)
			e.Printf("WebSocket handshake failed. Status: %d\n", resp.StatusCode)
			return failf("websocket handshake returned status %d", resp.StatusCode)
		}
		return err
	}
	defer conn.Close()
	e.record("websocket", resp.StatusCode, time.Since(start), nil)
	e.Printf("WebSocket status: %d\n", resp.StatusCode)

	conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	_, frame, err := conn.ReadMessage()
	if err != nil {
		return err
	}
	e.Printf("First frame: %s\n", compact(frame))

	err = conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
	if err != nil {
		e.Logger.Warn("websocket close failed", zap.Error(err))
	}
	return nil
}

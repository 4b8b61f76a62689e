package stub

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mahaj/counseling-smoke/pkg/auth"
	"github.com/mahaj/counseling-smoke/pkg/model"
)

func newTestServer(t *testing.T) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(NewServer(NewStore(), auth.NewIssuer("test_key", time.Hour), nil).Routes())
	t.Cleanup(srv.Close)
	return srv
}

func do(t *testing.T, method, url, token string, body any) (*http.Response, []byte) {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req, err := http.NewRequest(method, url, &buf)
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	var out bytes.Buffer
	_, err = out.ReadFrom(resp.Body)
	require.NoError(t, err)
	return resp, out.Bytes()
}

func login(t *testing.T, base, identifier, password string) string {
	t.Helper()
	resp, body := do(t, http.MethodPost, base+"/auth/login", "", model.LoginRequest{Identifier: identifier, Password: password})
	require.Equal(t, http.StatusOK, resp.StatusCode, string(body))
	var lr model.LoginResponse
	require.NoError(t, json.Unmarshal(body, &lr))
	return lr.Token
}

func TestLogin(t *testing.T) {
	assert := assert.New(t)
	srv := newTestServer(t)
	base := srv.URL + APIPrefix

	t.Run("Success", func(t *testing.T) {
		resp, body := do(t, http.MethodPost, base+"/auth/login", "", model.LoginRequest{Identifier: "counselor1@unza.zm", Password: "11111111"})
		assert.Equal(http.StatusOK, resp.StatusCode)

		var lr model.LoginResponse
		require.NoError(t, json.Unmarshal(body, &lr))
		assert.NotEmpty(lr.Token)
		assert.NotEmpty(lr.RefreshToken)
		assert.Equal(3600, lr.ExpiresIn)
		require.NotNil(t, lr.User)
		assert.Equal(int64(1), lr.User.ID)

		claims, err := auth.Inspect(lr.Token)
		require.NoError(t, err)
		assert.Equal("counselor1@unza.zm", claims.Subject)
	})

	t.Run("Bad Credentials", func(t *testing.T) {
		resp, body := do(t, http.MethodPost, base+"/auth/login", "", model.LoginRequest{Identifier: "counselor1@unza.zm", Password: "00000000"})
		assert.Equal(http.StatusUnauthorized, resp.StatusCode)
		assert.JSONEq(`{"error":"Invalid email or password"}`, string(body))
	})

	t.Run("Short Password", func(t *testing.T) {
		resp, body := do(t, http.MethodPost, base+"/auth/login", "", model.LoginRequest{Identifier: "counselor1@unza.zm", Password: "123"})
		assert.Equal(http.StatusBadRequest, resp.StatusCode)
		assert.Contains(string(body), "Password must be at least 6 characters")
	})

	t.Run("Malformed Body", func(t *testing.T) {
		resp, err := http.Post(base+"/auth/login", "application/json", strings.NewReader("{"))
		require.NoError(t, err)
		resp.Body.Close()
		assert.Equal(http.StatusBadRequest, resp.StatusCode)
	})
}

func TestMessageRoutes(t *testing.T) {
	assert := assert.New(t)
	srv := newTestServer(t)
	base := srv.URL + APIPrefix

	counselor := login(t, base, "counselor1@unza.zm", "11111111")
	client := login(t, base, "client1@unza.zm", "22222222")

	t.Run("Requires Token", func(t *testing.T) {
		resp, _ := do(t, http.MethodGet, base+"/messages/unread-count", "", nil)
		assert.Equal(http.StatusUnauthorized, resp.StatusCode)

		resp, _ = do(t, http.MethodGet, base+"/messages/unread-count", "garbage", nil)
		assert.Equal(http.StatusUnauthorized, resp.StatusCode)
	})

	t.Run("Unknown User", func(t *testing.T) {
		ghost, err := auth.NewIssuer("test_key", time.Hour).GenerateToken(99, "ghost@unza.zm", string(model.RoleClient))
		require.NoError(t, err)

		resp, body := do(t, http.MethodGet, base+"/messages/unread-count", ghost, nil)
		assert.Equal(http.StatusUnauthorized, resp.StatusCode)
		assert.JSONEq(`{"error":"User not found or inactive"}`, string(body))
	})

	t.Run("Send", func(t *testing.T) {
		resp, body := do(t, http.MethodPost, base+"/messages", counselor, model.MessageRequest{RecipientID: 2, Subject: "Test Message", Content: "hello"})
		require.Equal(t, http.StatusOK, resp.StatusCode, string(body))

		var msg model.Message
		require.NoError(t, json.Unmarshal(body, &msg))
		assert.Equal(int64(1), msg.SenderID)
		assert.Equal(int64(2), msg.RecipientID)
		assert.Equal("hello", msg.Content)
	})

	t.Run("Send Unknown Recipient", func(t *testing.T) {
		resp, _ := do(t, http.MethodPost, base+"/messages", counselor, model.MessageRequest{RecipientID: 42, Content: "hello"})
		assert.Equal(http.StatusNotFound, resp.StatusCode)
	})

	t.Run("Send Invalid", func(t *testing.T) {
		resp, _ := do(t, http.MethodPost, base+"/messages", counselor, model.MessageRequest{RecipientID: 2})
		assert.Equal(http.StatusBadRequest, resp.StatusCode)
	})

	t.Run("Unread Count", func(t *testing.T) {
		resp, body := do(t, http.MethodGet, base+"/messages/unread-count", client, nil)
		assert.Equal(http.StatusOK, resp.StatusCode)
		assert.JSONEq(`{"count":1}`, string(body))

		resp, body = do(t, http.MethodGet, base+"/messages/unread-count", counselor, nil)
		assert.Equal(http.StatusOK, resp.StatusCode)
		assert.JSONEq(`{"count":0}`, string(body))
	})

	t.Run("Conversations", func(t *testing.T) {
		resp, body := do(t, http.MethodGet, base+"/conversations", client, nil)
		assert.Equal(http.StatusOK, resp.StatusCode)

		var convs []model.Conversation
		require.NoError(t, json.Unmarshal(body, &convs))
		require.Len(t, convs, 1)
		assert.Equal(1, convs[0].UnreadCount)
	})

	t.Run("Mark All Read", func(t *testing.T) {
		resp, _ := do(t, http.MethodPut, base+"/messages/read-all", client, nil)
		assert.Equal(http.StatusOK, resp.StatusCode)

		_, body := do(t, http.MethodGet, base+"/messages/unread-count", client, nil)
		assert.JSONEq(`{"count":0}`, string(body))
	})

	t.Run("Validate Token", func(t *testing.T) {
		_, body := do(t, http.MethodGet, base+"/auth/validate-token", client, nil)
		assert.JSONEq(`{"valid":true}`, string(body))

		_, body = do(t, http.MethodGet, base+"/auth/validate-token", "garbage", nil)
		assert.JSONEq(`{"valid":false}`, string(body))

		resp, _ := do(t, http.MethodGet, base+"/auth/validate-token", "", nil)
		assert.Equal(http.StatusBadRequest, resp.StatusCode)
	})

	t.Run("Health", func(t *testing.T) {
		resp, body := do(t, http.MethodGet, base+"/v1/health", "", nil)
		assert.Equal(http.StatusOK, resp.StatusCode)
		var h model.Health
		require.NoError(t, json.Unmarshal(body, &h))
		assert.Equal("UP", h.Status)
	})
}

func TestWebSocket(t *testing.T) {
	assert := assert.New(t)
	srv := newTestServer(t)
	base := srv.URL + APIPrefix
	wsURL := "ws" + strings.TrimPrefix(base, "http") + "/ws"

	t.Run("Rejects Anonymous", func(t *testing.T) {
		_, resp, err := websocket.DefaultDialer.Dial(wsURL, nil)
		assert.Error(err)
		require.NotNil(t, resp)
		assert.Equal(http.StatusUnauthorized, resp.StatusCode)
	})

	t.Run("Pushes Unread Count", func(t *testing.T) {
		token := login(t, base, "client1@unza.zm", "22222222")
		header := http.Header{}
		header.Set("Authorization", "Bearer "+token)

		conn, _, err := websocket.DefaultDialer.Dial(wsURL, header)
		require.NoError(t, err)
		defer conn.Close()

		var ev Event
		require.NoError(t, conn.ReadJSON(&ev))
		assert.Equal(EventUnread, ev.Type)
		assert.Equal(int64(2), ev.UserID)
		assert.Equal(int64(0), ev.Count)

		err = conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
		assert.NoError(err)
	})

	t.Run("Pushes Updates", func(t *testing.T) {
		clientToken := login(t, base, "client1@unza.zm", "22222222")
		counselorToken := login(t, base, "counselor1@unza.zm", "11111111")

		conn, _, err := websocket.DefaultDialer.Dial(wsURL+"?token="+clientToken, nil)
		require.NoError(t, err)
		defer conn.Close()

		conn.SetReadDeadline(time.Now().Add(5 * time.Second))
		var ev Event
		require.NoError(t, conn.ReadJSON(&ev))
		initial := ev.Count

		resp, body := do(t, http.MethodPost, base+"/messages", counselorToken, model.MessageRequest{RecipientID: 2, Subject: "Hi", Content: "ping"})
		require.Equal(t, http.StatusOK, resp.StatusCode, string(body))

		require.NoError(t, conn.ReadJSON(&ev))
		assert.Equal(EventUnread, ev.Type)
		assert.Equal(initial+1, ev.Count)

		resp, _ = do(t, http.MethodPut, base+"/messages/read-all", clientToken, nil)
		require.Equal(t, http.StatusOK, resp.StatusCode)

		require.NoError(t, conn.ReadJSON(&ev))
		assert.Equal(int64(0), ev.Count)
	})

	t.Run("Token Query Param", func(t *testing.T) {
		token := login(t, base, "counselor1@unza.zm", "11111111")
		conn, _, err := websocket.DefaultDialer.Dial(wsURL+"?token="+token, nil)
		require.NoError(t, err)
		conn.Close()
	})
}

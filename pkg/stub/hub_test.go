package stub

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHub(t *testing.T) {
	assert := assert.New(t)
	hub := NewHub(nil)

	a := &wsClient{userID: 2, send: make(chan []byte, 1)}
	b := &wsClient{userID: 2, send: make(chan []byte, 1)}
	other := &wsClient{userID: 3, send: make(chan []byte, 1)}
	hub.register(a)
	hub.register(b)
	hub.register(other)
	assert.Equal(2, hub.Connections(2))

	hub.Notify(Event{Type: EventUnread, UserID: 2, Count: 4})

	for _, c := range []*wsClient{a, b} {
		var ev Event
		require.NoError(t, json.Unmarshal(<-c.send, &ev))
		assert.Equal(int64(4), ev.Count)
	}
	assert.Empty(other.send)

	t.Run("Drops Slow Client", func(t *testing.T) {
		a.send <- []byte("backlog")
		hub.Notify(Event{Type: EventUnread, UserID: 2, Count: 5})

		assert.Equal(1, hub.Connections(2))
		<-a.send
		_, open := <-a.send
		assert.False(open)
		assert.Len(b.send, 1)
	})

	t.Run("Unregister Is Idempotent", func(t *testing.T) {
		hub.unregister(a)
		hub.unregister(b)
		hub.unregister(b)
		assert.Equal(0, hub.Connections(2))
		assert.Equal(1, hub.Connections(3))
	})
}

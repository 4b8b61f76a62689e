package report

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"testing"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mahaj/counseling-smoke/pkg/snowflake"
)

func sample() *Report {
	start := time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC)
	return &Report{
		RunID:      123456789012345,
		BaseURL:    "http://localhost:8080/api",
		Identifier: "counselor1@unza.zm",
		StartedAt:  start,
		FinishedAt: start.Add(2 * time.Second),
		Results: []Result{
			{Check: "send-message", Passed: true},
			{Check: "unread-count", Passed: false, Error: "boom"},
			{Check: "websocket", Skipped: true},
		},
	}
}

func TestReport(t *testing.T) {
	assert := assert.New(t)
	r := sample()

	assert.Equal(1, r.Failed())
	assert.Equal(2*time.Second, r.Duration())

	payload, err := json.Marshal(r)
	require.NoError(t, err)
	assert.Contains(string(payload), `"run_id":"123456789012345"`)

	decoded, err := Decode(payload)
	require.NoError(t, err)
	assert.Equal(r.RunID, decoded.RunID)
	assert.Len(decoded.Results, 3)

	_, err = Decode([]byte("nope"))
	assert.Error(err)
}

type fakeSink struct {
	got    []*Report
	err    error
	closed bool
}

func (f *fakeSink) Publish(_ context.Context, r *Report) error {
	f.got = append(f.got, r)
	return f.err
}

func (f *fakeSink) Close() error {
	f.closed = true
	return nil
}

func TestMulti(t *testing.T) {
	assert := assert.New(t)
	ok := &fakeSink{}
	failing := &fakeSink{err: errors.New("unreachable")}
	sinks := Multi{failing, ok}

	err := sinks.Publish(context.Background(), sample())
	assert.ErrorIs(err, failing.err)
	assert.Len(ok.got, 1, "a failing sink must not stop the others")

	assert.NoError(sinks.Close())
	assert.True(ok.closed)
	assert.True(failing.closed)

	assert.NoError(Multi(nil).Publish(context.Background(), sample()))
}

type fakeWriter struct {
	msgs []kafka.Message
}

func (f *fakeWriter) WriteMessages(_ context.Context, msgs ...kafka.Message) error {
	f.msgs = append(f.msgs, msgs...)
	return nil
}

func (f *fakeWriter) Close() error { return nil }

func TestKafkaSink(t *testing.T) {
	assert := assert.New(t)
	w := &fakeWriter{}
	sink := &KafkaSink{writer: w}

	require.NoError(t, sink.Publish(context.Background(), sample()))
	require.Len(t, w.msgs, 1)
	assert.Equal("123456789012345", string(w.msgs[0].Key))

	r, err := Decode(w.msgs[0].Value)
	require.NoError(t, err)
	assert.Equal("counselor1@unza.zm", r.Identifier)
}

func TestRedisSink(t *testing.T) {
	addr := os.Getenv("REDIS_ADDR")
	if addr == "" {
		t.Skip("REDIS_ADDR not set")
	}
	assert := assert.New(t)
	ctx := context.Background()

	sink := NewRedisSink(addr, os.Getenv("REDIS_PASS"), "smoke:test:"+time.Now().Format("150405.000"), 2)
	defer sink.Close()
	defer sink.rdb.Del(ctx, sink.key)

	for i := 0; i < 3; i++ {
		r := sample()
		r.RunID += snowflake.ID(i + 1)
		require.NoError(t, sink.Publish(ctx, r))
	}

	reports, err := sink.Recent(ctx, 10)
	require.NoError(t, err)
	assert.Len(reports, 2)
	assert.Greater(int64(reports[0].RunID), int64(reports[1].RunID))
}

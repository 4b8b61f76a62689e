package report

import (
	"context"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mahaj/counseling-smoke/pkg/db"
	"github.com/mahaj/counseling-smoke/pkg/snowflake"
)

func TestStore(t *testing.T) {
	hosts := os.Getenv("SCYLLA_HOSTS")
	if hosts == "" {
		t.Skip("SCYLLA_HOSTS not set")
	}
	assert := assert.New(t)
	ctx := context.Background()

	const keyspace = "smoke_test"
	hostList := strings.Split(hosts, ",")
	require.NoError(t, db.EnsureKeyspace(hostList, keyspace))

	session, err := db.NewSession(hostList, keyspace)
	require.NoError(t, err)
	defer session.Close()

	store := NewStore(session)
	require.NoError(t, store.EnsureSchema(ctx))

	// One partition per run keeps reruns independent.
	baseURL := "http://store-test/" + time.Now().Format("150405.000000")
	defer session.Query(`DELETE FROM `+Table+` WHERE base_url = ?`, baseURL).Exec()

	for i := 0; i < 3; i++ {
		r := sample()
		r.BaseURL = baseURL
		r.RunID += snowflake.ID(i + 1)
		require.NoError(t, store.Save(ctx, r))
	}

	runs, err := store.Recent(ctx, baseURL, 2)
	require.NoError(t, err)
	require.Len(t, runs, 2)

	want := sample()
	assert.Equal(want.RunID+3, runs[0].RunID)
	assert.Equal(want.RunID+2, runs[1].RunID)
	assert.Equal(want.Identifier, runs[0].Identifier)
	assert.Equal(1, runs[0].Failed)
	assert.True(want.StartedAt.Equal(runs[0].StartedAt))
	assert.Equal(2*time.Second, runs[0].FinishedAt.Sub(runs[0].StartedAt))

	runs, err = store.Recent(ctx, "http://store-test/none", 5)
	require.NoError(t, err)
	assert.Empty(runs)
}

package influxexport

import (
	"errors"
	"testing"
	"time"

	influx "github.com/influxdata/influxdb/client/v2"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bcaldwell/plaidsync/pkg/aggregate"
	"github.com/bcaldwell/plaidsync/pkg/finance"
	"github.com/bcaldwell/plaidsync/pkg/syncengine"
)

type fakeClient struct {
	batches []influx.BatchPoints
	queries []string
	err     error
}

func (f *fakeClient) Write(bp influx.BatchPoints) error {
	f.batches = append(f.batches, bp)
	return f.err
}

func (f *fakeClient) Query(q influx.Query) (*influx.Response, error) {
	f.queries = append(f.queries, q.Command)
	return &influx.Response{}, f.err
}

var at = time.Date(2024, 3, 31, 0, 0, 0, 0, time.UTC)

func TestWriteSummary(t *testing.T) {
	c := &fakeClient{}
	e := NewExporter(c, "finance", "")

	summary := aggregate.Summarize([]finance.Transaction{
		{Amount: decimal.RequireFromString("5000"), Category: []string{"Income"}},
		{Amount: decimal.RequireFromString("-75"), Category: []string{"Food"}},
	})
	require.NoError(t, e.WriteSummary("u1", summary, at))

	require.Len(t, c.batches, 1)
	assert.Equal(t, "finance", c.batches[0].Database())

	points := c.batches[0].Points()
	require.Len(t, points, 2)

	food := points[1]
	assert.Equal(t, DefaultSpendingMeasurement, food.Name())
	assert.Equal(t, map[string]string{"user_id": "u1", "category": "Food"}, food.Tags())

	fields, err := food.Fields()
	require.NoError(t, err)
	assert.Equal(t, -75.0, fields["amount"])
	assert.Equal(t, 100.0, fields["percentage"])
	assert.Equal(t, at, food.Time())
}

func TestWriteSyncResult(t *testing.T) {
	c := &fakeClient{}
	e := NewExporter(c, "finance", "spending")

	result := syncengine.UserSyncResult{
		UserID: "u1",
		RunID:  "run-1",
		Accounts: []syncengine.IncrementalSyncResult{
			{AccountID: "a1", Mode: syncengine.ModeDelta, Added: 3, Removed: 1},
		},
		Failures: []*finance.SyncError{{AccountID: "a2", Err: errors.New("timeout")}},
	}
	require.NoError(t, e.WriteSyncResult(result, at))

	points := c.batches[0].Points()
	require.Len(t, points, 2)

	assert.Equal(t, "sync", points[0].Name())
	assert.Equal(t, "ok", points[0].Tags()["status"])
	fields, err := points[0].Fields()
	require.NoError(t, err)
	assert.EqualValues(t, 3, fields["added"])
	assert.EqualValues(t, 1, fields["removed"])

	assert.Equal(t, "failed", points[1].Tags()["status"])
	assert.Equal(t, "a2", points[1].Tags()["account_id"])
}

func TestEnsureDatabase(t *testing.T) {
	c := &fakeClient{}
	require.NoError(t, NewExporter(c, "finance extra", "").EnsureDatabase())
	assert.Equal(t, []string{"CREATE DATABASE finance"}, c.queries)

	c.err = errors.New("connection refused")
	assert.Error(t, NewExporter(c, "finance", "").EnsureDatabase())
}

// Package influxexport writes spending summaries and sync counts to InfluxDB.
package influxexport

import (
	"fmt"
	"strings"
	"time"

	influx "github.com/influxdata/influxdb/client/v2"
	"k8s.io/klog"

	"github.com/bcaldwell/plaidsync/pkg/aggregate"
	"github.com/bcaldwell/plaidsync/pkg/config"
	"github.com/bcaldwell/plaidsync/pkg/syncengine"
)

const (
	DefaultSpendingMeasurement = "spending"
	syncMeasurement            = "sync"
)

// Client is the part of influx.Client the exporter uses.
type Client interface {
	Write(bp influx.BatchPoints) error
	Query(q influx.Query) (*influx.Response, error)
}

func CreateInfluxClient(secrets config.InfluxSecrets) (influx.Client, error) {
	return influx.NewHTTPClient(influx.HTTPConfig{
		Addr:     secrets.InfluxEndpoint,
		Username: secrets.InfluxUsername,
		Password: secrets.InfluxPassword,
	})
}

type Exporter struct {
	client      Client
	database    string
	measurement string
}

func NewExporter(c Client, database, measurement string) *Exporter {
	if measurement == "" {
		measurement = DefaultSpendingMeasurement
	}
	return &Exporter{client: c, database: database, measurement: measurement}
}

// EnsureDatabase creates the target database if it doesn't exist.
func (e *Exporter) EnsureDatabase() error {
	name := strings.Split(e.database, " ")[0]

	q := influx.NewQuery(fmt.Sprintf("CREATE DATABASE %s", name), "", "")
	response, err := e.client.Query(q)
	if err != nil {
		return fmt.Errorf("failed to create influx database %s: %w", name, err)
	}
	if response != nil && response.Error() != nil {
		return fmt.Errorf("failed to create influx database %s: %w", name, response.Error())
	}
	return nil
}

// WriteSummary writes one point per category of the summary.
func (e *Exporter) WriteSummary(userID string, summary aggregate.Summary, at time.Time) error {
	bp, err := e.newBatch()
	if err != nil {
		return err
	}

	for _, c := range summary.Categories {
		tags := map[string]string{
			"user_id":  userID,
			"category": c.Category,
		}
		fields := map[string]interface{}{
			"amount":     c.Amount.InexactFloat64(),
			"percentage": c.Percentage.InexactFloat64(),
		}

		pt, err := influx.NewPoint(e.measurement, tags, fields, at)
		if err != nil {
			return fmt.Errorf("failed to build point for %s: %w", c.Category, err)
		}
		bp.AddPoint(pt)
	}

	if err := e.client.Write(bp); err != nil {
		return fmt.Errorf("failed to write summary to influx: %w", err)
	}

	klog.Infof("Wrote %d categories to influx for user %s\n", len(summary.Categories), userID)

	return nil
}

// WriteSyncResult writes one point per synced or failed account.
func (e *Exporter) WriteSyncResult(result syncengine.UserSyncResult, at time.Time) error {
	bp, err := e.newBatch()
	if err != nil {
		return err
	}

	for _, a := range result.Accounts {
		tags := map[string]string{
			"user_id":    result.UserID,
			"account_id": a.AccountID,
			"mode":       string(a.Mode),
			"status":     "ok",
		}
		fields := map[string]interface{}{
			"added":      a.Added,
			"modified":   a.Modified,
			"removed":    a.Removed,
			"duplicates": a.Duplicates,
			"skipped":    a.Skipped,
			"errors":     a.Errors,
			"run_id":     result.RunID,
		}

		pt, err := influx.NewPoint(syncMeasurement, tags, fields, at)
		if err != nil {
			return fmt.Errorf("failed to build point for %s: %w", a.AccountID, err)
		}
		bp.AddPoint(pt)
	}

	for _, f := range result.Failures {
		tags := map[string]string{
			"user_id":    result.UserID,
			"account_id": f.AccountID,
			"status":     "failed",
		}
		fields := map[string]interface{}{
			"error":  f.Error(),
			"run_id": result.RunID,
		}

		pt, err := influx.NewPoint(syncMeasurement, tags, fields, at)
		if err != nil {
			return fmt.Errorf("failed to build point for %s: %w", f.AccountID, err)
		}
		bp.AddPoint(pt)
	}

	if err := e.client.Write(bp); err != nil {
		return fmt.Errorf("failed to write sync result to influx: %w", err)
	}

	return nil
}

func (e *Exporter) newBatch() (influx.BatchPoints, error) {
	bp, err := influx.NewBatchPoints(influx.BatchPointsConfig{
		Database:  e.database,
		Precision: "s",
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create influx batch: %w", err)
	}
	return bp, nil
}

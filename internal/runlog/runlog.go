// Package runlog audits sync runs: one row per run with its outcome counts.
package runlog

import (
	"context"
	"fmt"
	"time"

	"cloud.google.com/go/bigquery"
	"github.com/dvloznov/receipt-sync/internal/logger"
	"github.com/google/uuid"
	"google.golang.org/api/iterator"
)

const syncRunsTable = "receipt_sync_runs"

// BigQueryRecorder writes run rows to <project>.<dataset>.receipt_sync_runs.
type BigQueryRecorder struct {
	client    *bigquery.Client
	projectID string
	datasetID string
}

// NewBigQueryRecorder opens a BigQuery client for projectID.
func NewBigQueryRecorder(ctx context.Context, projectID, datasetID string) (*BigQueryRecorder, error) {
	client, err := bigquery.NewClient(ctx, projectID)
	if err != nil {
		return nil, fmt.Errorf("NewBigQueryRecorder: bigquery client: %w", err)
	}
	return &BigQueryRecorder{client: client, projectID: projectID, datasetID: datasetID}, nil
}

// Close closes the BigQuery client connection.
func (r *BigQueryRecorder) Close() error {
	if r.client != nil {
		return r.client.Close()
	}
	return nil
}

func (r *BigQueryRecorder) table() string {
	return fmt.Sprintf("`%s.%s.%s`", r.projectID, r.datasetID, syncRunsTable)
}

// EnsureTable creates receipt_sync_runs if it does not exist yet.
func (r *BigQueryRecorder) EnsureTable(ctx context.Context) error {
	q := r.client.Query(fmt.Sprintf(`
		CREATE TABLE IF NOT EXISTS %s (
			run_id            STRING NOT NULL,
			budget_id         STRING NOT NULL,
			started_ts        TIMESTAMP NOT NULL,
			finished_ts       TIMESTAMP,
			trigger           STRING,
			dry_run           BOOL,
			status            STRING,
			error_message     STRING,
			receipts          INT64,
			updated           INT64,
			unmatched         INT64,
			already_itemized  INT64,
			already_annotated INT64,
			degenerate        INT64
		)
	`, r.table()))

	if err := runQuery(ctx, q); err != nil {
		return fmt.Errorf("EnsureTable: %w", err)
	}
	return nil
}

// StartRun inserts a RUNNING row and returns the generated run_id.
func (r *BigQueryRecorder) StartRun(ctx context.Context, budgetID, trigger string, dryRun bool) (string, error) {
	runID := uuid.NewString()

	q := r.client.Query(fmt.Sprintf(`
		INSERT %s (
			run_id,
			budget_id,
			started_ts,
			trigger,
			dry_run,
			status
		)
		VALUES (
			@run_id,
			@budget_id,
			@started_ts,
			@trigger,
			@dry_run,
			@status
		)
	`, r.table()))

	q.Parameters = []bigquery.QueryParameter{
		{Name: "run_id", Value: runID},
		{Name: "budget_id", Value: budgetID},
		{Name: "started_ts", Value: time.Now()},
		{Name: "trigger", Value: trigger},
		{Name: "dry_run", Value: dryRun},
		{Name: "status", Value: StatusRunning},
	}

	if err := runQuery(ctx, q); err != nil {
		return "", fmt.Errorf("StartRun: %w", err)
	}
	return runID, nil
}

// MarkRunSucceeded sets status=SUCCESS, finished_ts and the outcome counts.
func (r *BigQueryRecorder) MarkRunSucceeded(ctx context.Context, runID string, stats Stats) error {
	q := r.client.Query(fmt.Sprintf(`
		UPDATE %s
		SET status = @status,
		    finished_ts = @finished_ts,
		    error_message = "",
		    receipts = @receipts,
		    updated = @updated,
		    unmatched = @unmatched,
		    already_itemized = @already_itemized,
		    already_annotated = @already_annotated,
		    degenerate = @degenerate
		WHERE run_id = @run_id
	`, r.table()))

	q.Parameters = []bigquery.QueryParameter{
		{Name: "status", Value: StatusSuccess},
		{Name: "finished_ts", Value: time.Now()},
		{Name: "receipts", Value: stats.Receipts},
		{Name: "updated", Value: stats.Updated},
		{Name: "unmatched", Value: stats.Unmatched},
		{Name: "already_itemized", Value: stats.AlreadyItemized},
		{Name: "already_annotated", Value: stats.AlreadyAnnotated},
		{Name: "degenerate", Value: stats.Degenerate},
		{Name: "run_id", Value: runID},
	}

	if err := runQuery(ctx, q); err != nil {
		return fmt.Errorf("MarkRunSucceeded: %w", err)
	}
	return nil
}

// MarkRunFailed sets status=FAILED, finished_ts and error_message. Audit
// failures are logged rather than returned so they never mask runErr.
func (r *BigQueryRecorder) MarkRunFailed(ctx context.Context, runID string, runErr error) {
	log := logger.FromContext(ctx)

	q := r.client.Query(fmt.Sprintf(`
		UPDATE %s
		SET status = @status,
		    finished_ts = @finished_ts,
		    error_message = @error_message
		WHERE run_id = @run_id
	`, r.table()))

	q.Parameters = []bigquery.QueryParameter{
		{Name: "status", Value: StatusFailed},
		{Name: "finished_ts", Value: time.Now()},
		{Name: "error_message", Value: truncateError(runErr)},
		{Name: "run_id", Value: runID},
	}

	if err := runQuery(ctx, q); err != nil {
		log.Error().
			Err(err).
			Str("run_id", runID).
			Msg("MarkRunFailed: updating run row")
	}
}

// ListRecentRuns returns up to limit runs, newest first.
func (r *BigQueryRecorder) ListRecentRuns(ctx context.Context, limit int) ([]*Run, error) {
	q := r.client.Query(fmt.Sprintf(`
		SELECT
			run_id,
			budget_id,
			started_ts,
			finished_ts,
			trigger,
			dry_run,
			status,
			error_message,
			receipts,
			updated,
			unmatched,
			already_itemized,
			already_annotated,
			degenerate
		FROM %s
		ORDER BY started_ts DESC
		LIMIT @limit
	`, r.table()))
	q.Parameters = []bigquery.QueryParameter{{Name: "limit", Value: limit}}

	it, err := q.Read(ctx)
	if err != nil {
		return nil, fmt.Errorf("ListRecentRuns: reading query: %w", err)
	}

	var runs []*Run
	for {
		var row SyncRunRow
		err := it.Next(&row)
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("ListRecentRuns: iterating: %w", err)
		}
		runs = append(runs, row.toRun())
	}
	return runs, nil
}

func runQuery(ctx context.Context, q *bigquery.Query) error {
	job, err := q.Run(ctx)
	if err != nil {
		return fmt.Errorf("running query: %w", err)
	}

	status, err := job.Wait(ctx)
	if err != nil {
		return fmt.Errorf("waiting for job: %w", err)
	}
	if err := status.Err(); err != nil {
		return fmt.Errorf("job error: %w", err)
	}
	return nil
}

var _ Recorder = (*BigQueryRecorder)(nil)

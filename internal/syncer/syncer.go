// Package syncer runs one end-to-end pass: fetch receipts, read the ledger,
// reconcile, and commit the resulting updates in a single write.
package syncer

import (
	"context"
	"fmt"
	"time"

	"github.com/dvloznov/receipt-sync/internal/archive"
	"github.com/dvloznov/receipt-sync/internal/ledger"
	"github.com/dvloznov/receipt-sync/internal/logger"
	"github.com/dvloznov/receipt-sync/internal/loyalty"
	"github.com/dvloznov/receipt-sync/internal/reconcile"
	"github.com/dvloznov/receipt-sync/internal/runlog"
)

// Options for a single run.
type Options struct {
	BudgetID string
	Match    reconcile.Options
	DryRun   bool
	Trigger  string // who started the run: "cli", "schedule", "api"
}

// Report is the record of one run.
type Report struct {
	RunID      string              `json:"run_id"`
	BudgetID   string              `json:"budget_id"`
	DryRun     bool                `json:"dry_run"`
	StartedAt  time.Time           `json:"started_at"`
	FinishedAt time.Time           `json:"finished_at"`
	Stats      runlog.Stats        `json:"stats"`
	Outcomes   []reconcile.Outcome `json:"outcomes"`
	Updates    []ledger.Update     `json:"updates"`
}

// Syncer wires the loyalty source and the ledger together.
type Syncer struct {
	source   loyalty.Source
	store    ledger.Store
	recorder runlog.Recorder
	archiver archive.Archiver
	now      func() time.Time
}

// New creates a Syncer. A nil recorder keeps runs in memory; a nil archiver
// discards archive writes.
func New(source loyalty.Source, store ledger.Store, recorder runlog.Recorder, archiver archive.Archiver) *Syncer {
	if recorder == nil {
		recorder = runlog.NewMemoryRecorder()
	}
	if archiver == nil {
		archiver = archive.Discard
	}
	return &Syncer{
		source:   source,
		store:    store,
		recorder: recorder,
		archiver: archiver,
		now:      time.Now,
	}
}

// Recorder returns the run recorder in use.
func (s *Syncer) Recorder() runlog.Recorder {
	return s.recorder
}

// SyncReceipts performs one run. Acquisition and write failures end the run
// with an error; unmatched, ineligible and degenerate receipts do not.
func (s *Syncer) SyncReceipts(ctx context.Context, opts Options) (*Report, error) {
	if opts.BudgetID == "" {
		return nil, fmt.Errorf("SyncReceipts: budget id is required")
	}

	runID, err := s.recorder.StartRun(ctx, opts.BudgetID, opts.Trigger, opts.DryRun)
	if err != nil {
		return nil, fmt.Errorf("SyncReceipts: starting run: %w", err)
	}

	log := logger.FromContext(ctx).With().
		Str("run_id", runID).
		Str("budget_id", opts.BudgetID).
		Logger()
	ctx = logger.WithContext(ctx, log)

	report := &Report{
		RunID:     runID,
		BudgetID:  opts.BudgetID,
		DryRun:    opts.DryRun,
		StartedAt: s.now(),
	}

	log.Info().
		Bool("dry_run", opts.DryRun).
		Str("trigger", opts.Trigger).
		Msg("Starting receipt sync")

	if err := s.run(ctx, opts, report); err != nil {
		s.recorder.MarkRunFailed(ctx, runID, err)
		return nil, fmt.Errorf("SyncReceipts: %w", err)
	}

	report.FinishedAt = s.now()
	if err := s.recorder.MarkRunSucceeded(ctx, runID, report.Stats); err != nil {
		log.Warn().Err(err).Msg("Failed to mark run succeeded")
	}

	log.Info().
		Int("receipts", report.Stats.Receipts).
		Int("updated", report.Stats.Updated).
		Int("unmatched", report.Stats.Unmatched).
		Int("already_itemized", report.Stats.AlreadyItemized).
		Int("already_annotated", report.Stats.AlreadyAnnotated).
		Int("degenerate", report.Stats.Degenerate).
		Bool("dry_run", opts.DryRun).
		Msg("Receipt sync completed")

	return report, nil
}

func (s *Syncer) run(ctx context.Context, opts Options, report *Report) error {
	log := logger.FromContext(ctx)

	receipts, baskets, err := loyalty.FetchReceipts(ctx, s.source, opts.Match.Location)
	if err != nil {
		return fmt.Errorf("fetching receipts: %w", err)
	}
	log.Info().Int("receipt_count", len(receipts)).Msg("Retrieved receipts from loyalty portal")

	txs, err := s.store.ListTransactions(ctx, opts.BudgetID)
	if err != nil {
		return fmt.Errorf("listing transactions: %w", err)
	}
	log.Info().Int("transaction_count", len(txs)).Msg("Retrieved ledger transactions")

	plan := reconcile.Reconcile(receipts, txs, opts.Match)
	report.Outcomes = plan.Outcomes
	report.Updates = plan.Updates
	report.Stats = statsOf(plan)

	for _, o := range plan.Outcomes {
		logOutcome(ctx, o, opts.DryRun)
	}

	if err := archive.SaveRun(ctx, s.archiver, report.RunID, baskets, report); err != nil {
		log.Warn().Err(err).Msg("Failed to archive run")
	}

	if opts.DryRun {
		log.Info().Int("updates", len(plan.Updates)).Msg("[DRY RUN] Skipping ledger write")
		return nil
	}
	if len(plan.Updates) == 0 {
		log.Info().Msg("Nothing to write")
		return nil
	}

	if err := s.store.UpdateTransactions(ctx, opts.BudgetID, plan.Updates); err != nil {
		return fmt.Errorf("writing updates: %w", err)
	}
	log.Info().Int("updates", len(plan.Updates)).Msg("Wrote ledger updates")
	return nil
}

func logOutcome(ctx context.Context, o reconcile.Outcome, dryRun bool) {
	log := logger.FromContext(ctx)

	switch o.Status {
	case reconcile.StatusDegenerate:
		log.Warn().
			Str("receipt_id", o.ReceiptID).
			Str("transaction_id", o.TransactionID).
			Msg("Receipt has a zero total; leaving transaction unchanged")
	case reconcile.StatusUpdated:
		msg := "Itemizing transaction"
		if dryRun {
			msg = "[DRY RUN] Would itemize transaction"
		}
		log.Info().
			Str("receipt_id", o.ReceiptID).
			Str("transaction_id", o.TransactionID).
			Int("items", len(o.Allocations)).
			Msg(msg)
	default:
		log.Debug().
			Str("receipt_id", o.ReceiptID).
			Str("transaction_id", o.TransactionID).
			Str("status", string(o.Status)).
			Msg("Skipping receipt")
	}
}

func statsOf(plan *reconcile.Plan) runlog.Stats {
	return runlog.Stats{
		Receipts:         len(plan.Outcomes),
		Updated:          plan.Count(reconcile.StatusUpdated),
		Unmatched:        plan.Count(reconcile.StatusUnmatched),
		AlreadyItemized:  plan.Count(reconcile.StatusAlreadyItemized),
		AlreadyAnnotated: plan.Count(reconcile.StatusAlreadyAnnotated),
		Degenerate:       plan.Count(reconcile.StatusDegenerate),
	}
}

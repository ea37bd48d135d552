package syncer

import (
	"context"
	"fmt"

	"github.com/dvloznov/receipt-sync/internal/archive"
	"github.com/dvloznov/receipt-sync/internal/config"
	"github.com/dvloznov/receipt-sync/internal/logger"
	"github.com/dvloznov/receipt-sync/internal/loyalty"
	"github.com/dvloznov/receipt-sync/internal/reconcile"
	"github.com/dvloznov/receipt-sync/internal/runlog"
	"github.com/dvloznov/receipt-sync/internal/ynab"
)

// NewFromConfig builds a Syncer with the HTTP clients and, when configured,
// the BigQuery recorder and GCS archiver. The returned func releases them.
func NewFromConfig(ctx context.Context, cfg *config.Config) (*Syncer, func(), error) {
	log := logger.FromContext(ctx)

	source, err := loyalty.NewClient(loyalty.Config{
		BaseURL:     cfg.LoyaltyBaseURL,
		Token:       cfg.LoyaltyToken,
		APIKey:      cfg.LoyaltyAPIKey,
		Concurrency: cfg.FetchConcurrency,
		RatePerSec:  cfg.FetchRatePerSec,
	})
	if err != nil {
		return nil, nil, fmt.Errorf("NewFromConfig: %w", err)
	}
	store := ynab.NewClient(cfg.YNABToken, cfg.YNABBaseURL)

	var closers []func() error
	cleanup := func() {
		for _, c := range closers {
			if err := c(); err != nil {
				log.Warn().Err(err).Msg("Failed to close client")
			}
		}
	}

	var recorder runlog.Recorder
	if cfg.BigQueryProject != "" {
		bq, err := runlog.NewBigQueryRecorder(ctx, cfg.BigQueryProject, cfg.BigQueryDataset)
		if err != nil {
			return nil, nil, fmt.Errorf("NewFromConfig: %w", err)
		}
		closers = append(closers, bq.Close)
		if err := bq.EnsureTable(ctx); err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("NewFromConfig: %w", err)
		}
		recorder = bq
	} else {
		log.Debug().Msg("No BigQuery project configured - runs are kept in memory")
	}

	var archiver archive.Archiver
	if cfg.ArchiveBucket != "" {
		gcs, err := archive.NewGCSArchiver(ctx, cfg.ArchiveBucket)
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("NewFromConfig: %w", err)
		}
		closers = append(closers, gcs.Close)
		archiver = gcs
	} else {
		log.Debug().Msg("No archive bucket configured - run archiving disabled")
	}

	return New(source, store, recorder, archiver), cleanup, nil
}

// OptionsFromConfig derives run options from cfg.
func OptionsFromConfig(cfg *config.Config, trigger string) Options {
	return Options{
		BudgetID: cfg.BudgetID,
		Match: reconcile.Options{
			PayeeName:  cfg.PayeeName,
			WindowDays: cfg.MatchWindowDays,
			Location:   cfg.Location,
		},
		DryRun:  cfg.DryRun,
		Trigger: trigger,
	}
}

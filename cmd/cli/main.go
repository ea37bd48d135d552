package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/dvloznov/receipt-sync/internal/archive"
	"github.com/dvloznov/receipt-sync/internal/config"
	"github.com/dvloznov/receipt-sync/internal/logger"
	"github.com/dvloznov/receipt-sync/internal/money"
	"github.com/dvloznov/receipt-sync/internal/receipt"
	"github.com/dvloznov/receipt-sync/internal/syncer"
	"github.com/rs/zerolog"
)

func main() {
	log := logger.New()

	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	switch os.Args[1] {
	case "sync":
		runSync(log)
	case "parse":
		runParse(log)
	case "runs":
		runRuns(log)
	case "help", "-h", "--help":
		printUsage()
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n\n", os.Args[1])
		printUsage()
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Println("Receipt Sync CLI")
	fmt.Println("\nUsage:")
	fmt.Println("  cli <command> [options]")
	fmt.Println("\nCommands:")
	fmt.Println("  sync      Itemize ledger transactions from loyalty receipts")
	fmt.Println("  parse     Print the line items of a saved basket view")
	fmt.Println("  runs      List recent sync runs")
	fmt.Println("  help      Show this help message")
	fmt.Println("\nRun 'cli <command> -h' for more information on a command.")
}

// configFlags registers the config file flags shared by commands that load
// configuration.
func configFlags(fs *flag.FlagSet) *config.Sources {
	src := &config.Sources{}
	fs.StringVar(&src.EnvFile, "env-file", config.DefaultEnvFile, "dotenv file with secrets")
	fs.StringVar(&src.TomlFile, "config", config.DefaultTomlFile, "TOML file with a [vars] table")
	return src
}

func loadConfig(log zerolog.Logger, src *config.Sources) (*config.Config, zerolog.Logger) {
	cfg, err := config.Load(*src)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load configuration")
	}
	return cfg, logger.NewWithOptions(logger.Options{Level: cfg.LogLevel, JSON: cfg.LogJSON})
}

func runSync(log zerolog.Logger) {
	fs := flag.NewFlagSet("sync", flag.ExitOnError)
	src := configFlags(fs)
	dryRun := fs.Bool("dry-run", false, "Plan updates without writing them (overrides DRY_RUN)")
	reportPath := fs.String("report", "", "Write the JSON run report to this file")
	fs.Parse(os.Args[2:])

	cfg, log := loadConfig(log, src)
	if *dryRun {
		cfg.DryRun = true
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()
	ctx = logger.WithContext(ctx, log)

	s, cleanup, err := syncer.NewFromConfig(ctx, cfg)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to set up sync")
	}
	defer cleanup()

	report, err := s.SyncReceipts(ctx, syncer.OptionsFromConfig(cfg, "cli"))
	if err != nil {
		log.Fatal().Err(err).Msg("Sync failed")
	}

	if *reportPath != "" {
		data, err := json.MarshalIndent(report, "", "  ")
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to encode report")
		}
		if err := os.WriteFile(*reportPath, data, 0o644); err != nil {
			log.Fatal().Err(err).Msg("Failed to write report")
		}
	}

	fmt.Printf("Sync completed: %d receipts, %d updated, %d unmatched.\n",
		report.Stats.Receipts, report.Stats.Updated, report.Stats.Unmatched)
}

func runParse(log zerolog.Logger) {
	fs := flag.NewFlagSet("parse", flag.ExitOnError)
	file := fs.String("file", "", "Basket view HTML: a local path or a gs:// URI of an archived view")
	fs.Parse(os.Args[2:])

	if *file == "" {
		log.Fatal().Msg("Error: -file is required")
	}

	ctx := logger.WithContext(context.Background(), log)

	var view []byte
	var err error
	if strings.HasPrefix(*file, "gs://") {
		view, err = archive.FetchFromGCS(ctx, *file)
	} else {
		view, err = os.ReadFile(*file)
	}
	if err != nil {
		log.Fatal().Err(err).Str("file", *file).Msg("Failed to read basket view")
	}

	items, err := receipt.ParseItems(string(view))
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to parse basket view")
	}

	fmt.Printf("\n=== Line Items (%d) ===\n", len(items))
	var total money.Milliunits
	for _, item := range items {
		fmt.Printf("%-40s %8s\n", receipt.Describe(item), item.LineTotal())
		total += item.LineTotal()
	}
	fmt.Printf("%-40s %8s\n", "Total", total)
}

func runRuns(log zerolog.Logger) {
	fs := flag.NewFlagSet("runs", flag.ExitOnError)
	src := configFlags(fs)
	limit := fs.Int("limit", 10, "Number of runs to show")
	fs.Parse(os.Args[2:])

	cfg, log := loadConfig(log, src)
	if cfg.BigQueryProject == "" {
		log.Fatal().Msg("Error: BIGQUERY_PROJECT is not configured; runs are only audited in BigQuery")
	}

	ctx := logger.WithContext(context.Background(), log)

	s, cleanup, err := syncer.NewFromConfig(ctx, cfg)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to set up run audit")
	}
	defer cleanup()

	runs, err := s.Recorder().ListRecentRuns(ctx, *limit)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to list runs")
	}

	fmt.Printf("\n=== Recent Runs (%d) ===\n", len(runs))
	for _, run := range runs {
		line := fmt.Sprintf("%s  %s  %-8s  trigger=%s dry_run=%t", run.StartedAt.Format(time.RFC3339), run.RunID, run.Status, run.Trigger, run.DryRun)
		if run.Stats != nil {
			line += fmt.Sprintf("  receipts=%d updated=%d unmatched=%d", run.Stats.Receipts, run.Stats.Updated, run.Stats.Unmatched)
		}
		if run.ErrorMessage != "" {
			line += "  error=" + run.ErrorMessage
		}
		fmt.Println(line)
	}
}

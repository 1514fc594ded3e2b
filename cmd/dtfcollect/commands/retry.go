package commands

import (
	"errors"
	"fmt"
	"log/slog"
	"time"

	"dtfcollect/lib/ledger"
	"dtfcollect/lib/lockfile"
	"dtfcollect/services/collector"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
)

var retryFlags struct {
	input       *string
	output      *string
	inplace     *bool
	maxAttempts *int
	batchSize   *int
	sleepRetry  *time.Duration
	sleepUnits  *time.Duration
	sleepPages  *time.Duration
}

func init() {
	f := retryCmd.Flags()
	retryFlags.input = f.String("input", "", "Ledger to repair. Defaults to the config output.")
	retryFlags.output = f.String("output", "", "Where to write the patched ledger.")
	retryFlags.inplace = f.Bool("inplace", false, "Replace the input after making a timestamped backup.")
	retryFlags.maxAttempts = f.Int("max-attempts", 3, "Attempts per failed unit.")
	retryFlags.batchSize = f.Int("batch-size", collector.DefaultBatchSize, "Failed units per fresh session.")
	retryFlags.sleepRetry = f.Duration("sleep-retry", time.Second*15, "Base backoff between attempts.")
	retryFlags.sleepUnits = f.Duration("sleep-units", time.Second*4, "Pause between units.")
	retryFlags.sleepPages = f.Duration("sleep-pages", time.Second*2, "Pause between page hops.")
	rootCmd.AddCommand(retryCmd)
}

var retryCmd = &cobra.Command{
	Use:   "retry [--inplace | --output <patched.jsonl>]",
	Short: "Re-collects failed units and patches their records in the ledger.",
	// RunE so the deferred lock release runs on every failure path
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		cfg := loadConfig()

		input := *retryFlags.input
		if input == "" {
			input = cfg.Output
		}
		if input == "" {
			input = "publications.jsonl"
		}
		if !*retryFlags.inplace && *retryFlags.output == "" {
			return errors.New("no destination given: pass --output or --inplace")
		}

		provider := newProvider(cfg)

		lock, err := lockfile.Acquire(input)
		if err != nil {
			return fmt.Errorf("failed to lock ledger: %w", err)
		}
		defer lock.Release()

		failed, err := collector.FindFailed(input)
		if err != nil {
			return fmt.Errorf("failed to scan ledger: %w", err)
		}
		if len(failed) == 0 {
			slog.Info("no failed units to retry", "ledger", input)
			return nil
		}
		slog.Info("retrying failed units", "count", len(failed))

		replacements, runErr := collector.RetryFailed(ctx, provider, failed, collector.RetryOptions{
			MaxAttempts: *retryFlags.maxAttempts,
			BatchSize:   *retryFlags.batchSize,
			SleepRetry:  *retryFlags.sleepRetry,
			SleepUnits:  *retryFlags.sleepUnits,
			SleepPages:  *retryFlags.sleepPages,
		})

		repaired := 0
		for _, rec := range replacements {
			if rec.Status == ledger.StatusOK {
				repaired++
			}
		}
		if len(replacements) > 0 {
			backupPath, err := collector.Patch(input, *retryFlags.output, *retryFlags.inplace, replacements)
			if err != nil {
				return fmt.Errorf("failed to patch ledger: %w", err)
			}
			if backupPath != "" {
				slog.Info("backed up original ledger", "path", backupPath)
			}
		}

		t := newTable()
		t.AppendHeader(table.Row{"failed", "retried", "repaired", "still failing"})
		t.AppendRow(table.Row{len(failed), len(replacements), repaired, len(replacements) - repaired})
		t.Render()

		if runErr != nil {
			return fmt.Errorf("retry stopped early: %w", runErr)
		}
		return nil
	},
}

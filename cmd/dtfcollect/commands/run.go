package commands

import (
	"fmt"
	"log/slog"
	"time"

	"dtfcollect/lib/ledger"
	"dtfcollect/lib/lockfile"
	"dtfcollect/lib/notify"
	"dtfcollect/lib/telemetry"
	"dtfcollect/services/collector"

	"github.com/jedib0t/go-pretty/v6/progress"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
)

var runFlags struct {
	output       *string
	universeFrom *string
	batchSize    *int
	maxBatches   *int
	maxRuntime   *time.Duration
	shardIndex   *int
	shardTotal   *int
	roles        *[]string
	idsFile      *string
	sleepBatches *time.Duration
	sleepUnits   *time.Duration
	sleepPages   *time.Duration
}

func init() {
	f := runCmd.Flags()
	runFlags.output = f.String("output", "", "Ledger file to append to. Defaults to the config output.")
	runFlags.universeFrom = f.String("universe", "", "Catalog DSN or snapshot file. Defaults to the config universe.")
	runFlags.batchSize = f.Int("batch-size", collector.DefaultBatchSize, "Units collected per session.")
	runFlags.maxBatches = f.Int("max-batches", 0, "Stop after this many batches. 0 runs to exhaustion.")
	runFlags.maxRuntime = f.Duration("max-runtime", 0, "Stop starting batches after this much wall clock. 0 disables.")
	runFlags.shardIndex = f.Int("shard-index", 0, "This process's shard.")
	runFlags.shardTotal = f.Int("shard-total", 1, "Total number of shards.")
	runFlags.roles = f.StringSlice("roles", nil, "Only collect units with these roles.")
	runFlags.idsFile = f.String("ids-file", "", "Newline-delimited allow-list of unit ids.")
	runFlags.sleepBatches = f.Duration("sleep-batches", time.Second*60, "Pause between batches.")
	runFlags.sleepUnits = f.Duration("sleep-units", time.Second*4, "Pause between units.")
	runFlags.sleepPages = f.Duration("sleep-pages", time.Second*2, "Pause between page hops.")
	rootCmd.AddCommand(runCmd)
}

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Collects publications for every unit in the shard, resuming from the ledger.",
	// RunE so the deferred lock release runs on every failure path
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		cfg := loadConfig()

		output := *runFlags.output
		if output == "" {
			output = cfg.Output
		}
		if output == "" {
			output = "publications.jsonl"
		}
		universeFrom := *runFlags.universeFrom
		if universeFrom == "" {
			universeFrom = cfg.Universe
		}

		units := loadUniverse(ctx, universeFrom)
		units = selectUnits(units, *runFlags.roles, *runFlags.idsFile, *runFlags.shardIndex, *runFlags.shardTotal)
		slog.Info("selected work units",
			"count", len(units),
			"shard_index", *runFlags.shardIndex,
			"shard_total", *runFlags.shardTotal)

		provider := newProvider(cfg)

		lock, err := lockfile.Acquire(output)
		if err != nil {
			return fmt.Errorf("failed to lock ledger: %w", err)
		}
		defer lock.Release()

		telemetry.InstrumentPerfStats(ctx)

		pw := progress.NewWriter()
		pw.SetTrackerLength(40)
		tracker := &progress.Tracker{Message: "collecting", Total: int64(len(units))}
		pw.AppendTracker(tracker)
		go pw.Render()

		summary, runErr := collector.Run(ctx, provider, units, collector.RunOptions{
			LedgerPath:   output,
			BatchSize:    *runFlags.batchSize,
			MaxBatches:   *runFlags.maxBatches,
			MaxRuntime:   *runFlags.maxRuntime,
			SleepBatches: *runFlags.sleepBatches,
			SleepUnits:   *runFlags.sleepUnits,
			SleepPages:   *runFlags.sleepPages,
			OnProgress: func(p collector.Progress) {
				tracker.SetValue(int64(p.Done))
			},
			OnRecord: func(rec ledger.Record) {
				tracker.Increment(1)
			},
		})
		pw.Stop()
		for pw.IsRenderInProgress() {
			time.Sleep(time.Millisecond * 10)
		}

		t := newTable()
		t.AppendHeader(table.Row{"universe", "done", "batches", "written", "ok", "error"})
		t.AppendRow(table.Row{
			summary.Universe, summary.Done, summary.Batches,
			summary.Written, summary.Succeeded, summary.Failed,
		})
		t.Render()
		if summary.TimedOut {
			slog.Info("run stopped by the time box")
		}

		if cfg.Smtp.Enabled() {
			body := fmt.Sprintf(
				"ledger: %s\nuniverse: %d\ndone: %d\nbatches: %d\nwritten: %d\nok: %d\nerror: %d\n",
				output, summary.Universe, summary.Done, summary.Batches,
				summary.Written, summary.Succeeded, summary.Failed)
			if runErr != nil {
				body += fmt.Sprintf("stopped with error: %s\n", runErr)
			}
			if err := notify.SendRunSummary(cfg.Smtp, "dtfcollect run finished", body); err != nil {
				slog.Warn("failed to send run summary email", "err", err)
			}
		}

		if runErr != nil {
			return fmt.Errorf("run stopped: %w", runErr)
		}
		return nil
	},
}

package commands

import (
	"dtfcollect/lib/serviceutil"
	"dtfcollect/lib/shard"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
)

var planFlags struct {
	universeFrom *string
	shardTotal   *int
	roles        *[]string
}

func init() {
	f := planCmd.Flags()
	planFlags.universeFrom = f.String("universe", "", "Catalog DSN or snapshot file. Defaults to the config universe.")
	planFlags.shardTotal = f.Int("shard-total", 1, "Number of shards to partition into.")
	planFlags.roles = f.StringSlice("roles", nil, "Only count units with these roles.")
	rootCmd.AddCommand(planCmd)
}

var planCmd = &cobra.Command{
	Use:   "plan",
	Short: "Shows the deterministic shard partition without fetching anything.",
	Run: func(cmd *cobra.Command, args []string) {
		ctx := cmd.Context()
		cfg := loadConfig()

		universeFrom := *planFlags.universeFrom
		if universeFrom == "" {
			universeFrom = cfg.Universe
		}
		total := *planFlags.shardTotal
		if err := shard.Validate(0, total); err != nil {
			serviceutil.Fatal("invalid shard total", err)
		}

		units := loadUniverse(ctx, universeFrom)
		units = selectUnits(units, *planFlags.roles, "", 0, 1)

		counts := make([]int, total)
		for _, u := range units {
			counts[shard.Of(u.ID, total)]++
		}

		t := newTable()
		t.AppendHeader(table.Row{"shard", "units"})
		for i, n := range counts {
			t.AppendRow(table.Row{i, n})
		}
		t.AppendFooter(table.Row{"total", len(units)})
		t.Render()
	},
}

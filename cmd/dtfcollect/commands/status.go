package commands

import (
	"dtfcollect/lib/ledger"
	"dtfcollect/lib/serviceutil"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
)

var statusFlags struct {
	input        *string
	universeFrom *string
}

func init() {
	f := statusCmd.Flags()
	statusFlags.input = f.String("input", "", "Ledger to inspect. Defaults to the config output.")
	statusFlags.universeFrom = f.String("universe", "", "Catalog DSN or snapshot file for a per-role breakdown.")
	rootCmd.AddCommand(statusCmd)
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Shows the ledger's progress statistics.",
	Run: func(cmd *cobra.Command, args []string) {
		ctx := cmd.Context()
		cfg := loadConfig()

		input := *statusFlags.input
		if input == "" {
			input = cfg.Output
		}
		if input == "" {
			input = "publications.jsonl"
		}

		stats, err := ledger.Stats(input)
		if err != nil {
			serviceutil.Fatal("failed to scan ledger", err)
		}

		t := newTable()
		t.AppendHeader(table.Row{"metric", "value"})
		t.AppendRows([]table.Row{
			{"lines", stats.Lines},
			{"parsed", stats.Parsed},
			{"unique ids", stats.UniqueIDs},
			{"ok", stats.OKCount},
			{"error", stats.ErrCount},
			{"retried", stats.Retried},
			{"items", stats.Items},
		})
		t.Render()

		universeFrom := *statusFlags.universeFrom
		if universeFrom == "" {
			return
		}
		units := loadUniverse(ctx, universeFrom)
		done, err := ledger.ScanDone(input)
		if err != nil {
			serviceutil.Fatal("failed to scan ledger", err)
		}

		type roleCount struct{ done, total int }
		byRole := map[string]*roleCount{}
		var roles []string
		for _, u := range units {
			rc := byRole[u.Role]
			if rc == nil {
				rc = &roleCount{}
				byRole[u.Role] = rc
				roles = append(roles, u.Role)
			}
			rc.total++
			if done[u.ID] {
				rc.done++
			}
		}

		rt := newTable()
		rt.AppendHeader(table.Row{"role", "done", "total"})
		for _, role := range roles {
			rc := byRole[role]
			rt.AppendRow(table.Row{role, rc.done, rc.total})
		}
		rt.Render()
	},
}

package commands

import (
	"context"
	"errors"
	"os"
	"strings"
	"time"

	"dtfcollect/lib/configutil"
	"dtfcollect/lib/notify"
	"dtfcollect/lib/restyutil"
	"dtfcollect/lib/scrapers/dtf"
	"dtfcollect/lib/serviceutil"
	"dtfcollect/lib/universe"
)

const configFile = "dtfcollect.json5"

type Config struct {
	BaseUrl           string `json:"base_url"`
	SettleWaitSeconds int    `json:"settle_wait_seconds"`
	// Universe is a catalog DSN or a snapshot file path.
	Universe string `json:"universe"`
	Output   string `json:"output"`
	// DebugDumpDir enables full request/response dumps when set.
	DebugDumpDir string            `json:"debug_dump_dir"`
	Smtp         notify.SmtpConfig `json:"smtp"`
}

func loadConfig() Config {
	if _, err := os.Stat(configFile); errors.Is(err, os.ErrNotExist) {
		return Config{}
	}
	cfg, err := configutil.ReadConfig[Config](configFile)
	if err != nil {
		serviceutil.Fatal("failed to read config", err)
	}
	return cfg
}

func newProvider(cfg Config) *dtf.Provider {
	settleWait := time.Duration(cfg.SettleWaitSeconds) * time.Second
	if settleWait <= 0 {
		settleWait = time.Second * 10
	}
	provider, err := dtf.NewProvider(dtf.ProviderOptions{
		BaseUrl:    cfg.BaseUrl,
		SettleWait: settleWait,
	})
	if err != nil {
		serviceutil.Fatal("failed to initialize client", err)
	}
	if cfg.DebugDumpDir != "" {
		dtf.SetRestyInstrumentOutput(restyutil.NewFilesystemOutput(cfg.DebugDumpDir))
	}
	return provider
}

func isCatalogDsn(s string) bool {
	for _, prefix := range []string{"libsql://", "wss://", "https://", "file:"} {
		if strings.HasPrefix(s, prefix) {
			return true
		}
	}
	return strings.HasSuffix(s, ".db") || strings.HasSuffix(s, ".sqlite")
}

func loadUniverse(ctx context.Context, from string) []universe.WorkUnit {
	if from == "" {
		serviceutil.Fatal("no universe given", errors.New("pass --universe or set the universe config key"))
	}
	if isCatalogDsn(from) {
		store, err := universe.Open(from)
		if err != nil {
			serviceutil.Fatal("failed to open catalog", err)
		}
		defer store.Close()

		units, err := store.List(ctx)
		if err != nil {
			serviceutil.Fatal("failed to list catalog", err)
		}
		return units
	}
	units, err := universe.LoadSnapshot(from)
	if err != nil {
		serviceutil.Fatal("failed to load universe snapshot", err)
	}
	return units
}

// selectUnits narrows the universe to this process's work: role filter, then
// allow-list, then the deterministic shard.
func selectUnits(units []universe.WorkUnit, roles []string, idsFile string, shardIndex, shardTotal int) []universe.WorkUnit {
	units = universe.FilterRoles(units, roles)
	if idsFile != "" {
		allow, err := universe.ReadAllowList(idsFile)
		if err != nil {
			serviceutil.Fatal("failed to read ids file", err)
		}
		units = universe.Intersect(units, allow)
	}
	selected, err := universe.SelectShard(units, shardIndex, shardTotal)
	if err != nil {
		serviceutil.Fatal("invalid shard", err)
	}
	return selected
}

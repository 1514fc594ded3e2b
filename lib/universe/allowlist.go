package universe

import (
	"bufio"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"dtfcollect/lib/shard"

	"github.com/antzucaro/matchr"
)

// ReadAllowList reads a newline-delimited list of unit ids used to restrict
// a run to a hand-picked subset without changing shard assignments.
func ReadAllowList(path string) (map[string]bool, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open allow-list %s: %w", path, err)
	}
	defer f.Close()

	ids := map[string]bool{}
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		id := strings.TrimSpace(scanner.Text())
		if id == "" || strings.HasPrefix(id, "#") {
			continue
		}
		ids[id] = true
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read allow-list %s: %w", path, err)
	}
	return ids, nil
}

// Intersect restricts units to the allow-list. Allow-list entries that match
// nothing are reported with a nearest-id suggestion, since they are usually
// typos from a hand-edited file.
func Intersect(units []WorkUnit, allow map[string]bool) []WorkUnit {
	if len(allow) == 0 {
		return units
	}

	known := map[string]bool{}
	var out []WorkUnit
	for _, u := range units {
		known[u.ID] = true
		if allow[u.ID] {
			out = append(out, u)
		}
	}

	for id := range allow {
		if !known[id] {
			if nearest := nearestID(id, units); nearest != "" {
				slog.Warn("allow-list id not in universe", "id", id, "nearest", nearest)
			} else {
				slog.Warn("allow-list id not in universe", "id", id)
			}
		}
	}
	return out
}

func nearestID(id string, units []WorkUnit) string {
	best := ""
	bestSim := 0.0
	for _, u := range units {
		sim := matchr.JaroWinkler(id, u.ID, false)
		if sim > bestSim {
			best, bestSim = u.ID, sim
		}
	}
	// a barely-similar suggestion is just noise
	if bestSim < 0.8 {
		return ""
	}
	return best
}

// SelectShard filters units to one deterministic shard of the universe.
func SelectShard(units []WorkUnit, index, total int) ([]WorkUnit, error) {
	if err := shard.Validate(index, total); err != nil {
		return nil, err
	}
	if total == 1 {
		return units, nil
	}
	var out []WorkUnit
	for _, u := range units {
		if shard.Of(u.ID, total) == index {
			out = append(out, u)
		}
	}
	return out, nil
}

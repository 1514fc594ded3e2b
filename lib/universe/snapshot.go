package universe

import (
	"encoding/json"
	"fmt"
	"os"
)

// snapshot files come from the catalog extraction: a single JSON object
// with an "entities" array. unique_ID is numeric in older extracts and a
// string in newer ones, so it is decoded as a json.Number-aware any.
type snapshotFile struct {
	Entities []snapshotEntity `json:"entities"`
}

type snapshotEntity struct {
	UniqueID any    `json:"unique_ID"`
	Name     string `json:"name"`
	Role     string `json:"role"`
}

func (e snapshotEntity) id() string {
	switch v := e.UniqueID.(type) {
	case nil:
		return ""
	case string:
		return v
	case json.Number:
		return v.String()
	default:
		return fmt.Sprint(v)
	}
}

// LoadSnapshot reads a catalog snapshot JSON file into work units. Entities
// without a usable id are dropped.
func LoadSnapshot(path string) ([]WorkUnit, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open snapshot %s: %w", path, err)
	}
	defer f.Close()

	dec := json.NewDecoder(f)
	dec.UseNumber()

	var snap snapshotFile
	if err := dec.Decode(&snap); err != nil {
		return nil, fmt.Errorf("decode snapshot %s: %w", path, err)
	}

	var units []WorkUnit
	for _, e := range snap.Entities {
		id := e.id()
		if id == "" {
			continue
		}
		units = append(units, WorkUnit{ID: id, Name: e.Name, Role: e.Role})
	}
	return units, nil
}

// Package universe models the fixed set of work units a collection run
// operates on. The universe is loaded once per run from a snapshot or a
// catalog database and treated as read-only from then on.
package universe

// WorkUnit is the smallest independently collectable item. Immutable once
// listed.
type WorkUnit struct {
	ID   string
	Name string
	Role string
}

// Filter to the given roles. An empty role set keeps everything.
func FilterRoles(units []WorkUnit, roles []string) []WorkUnit {
	if len(roles) == 0 {
		return units
	}
	keep := map[string]bool{}
	for _, r := range roles {
		if r != "" {
			keep[r] = true
		}
	}
	if len(keep) == 0 {
		return units
	}
	var out []WorkUnit
	for _, u := range units {
		if keep[u.Role] {
			out = append(out, u)
		}
	}
	return out
}

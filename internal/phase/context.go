package phase

import (
	"time"

	"tideline/internal/dotpath"
)

// Context is the read-only bundle threaded through validation, execution and
// data migration. The fixed fields are typed; feature-specific data
// (checklist items, catch records, weather snapshots, location history,
// reviews) travels in the opaque Data bag and is read by dot-path keys.
type Context struct {
	TripID   string
	TripDate time.Time
	Role     Role
	Data     map[string]any
}

// Value resolves a dot-path key inside the data bag.
func (c *Context) Value(path string) (any, bool) {
	if c == nil || c.Data == nil {
		return nil, false
	}
	return dotpath.Get(c.Data, path)
}

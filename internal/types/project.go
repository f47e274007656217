package types

import "time"

// ProjectRegistryEntry is a single catalog entry in the ConfigStore: a
// friendly project name mapped to the remote script it tracks.
type ProjectRegistryEntry struct {
	ProjectName  string
	ScriptID     ScriptID
	LastSync     *time.Time
	Description  string
	Environments []string
}

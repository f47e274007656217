package types

import (
	"regexp"
	"time"
)

// ContainerType is the kind of Drive entity a GAS project may be bound to.
type ContainerType string

const (
	ContainerStandalone ContainerType = "STANDALONE"
	ContainerSheets     ContainerType = "SHEETS"
	ContainerDocs       ContainerType = "DOCS"
	ContainerForms      ContainerType = "FORMS"
	ContainerSlides     ContainerType = "SLIDES"
)

// WorktreeState is the lifecycle state of a WorktreeEntry.
type WorktreeState string

const (
	WorktreeReady     WorktreeState = "READY"
	WorktreeClaimed   WorktreeState = "CLAIMED"
	WorktreeAbandoned WorktreeState = "ABANDONED"
)

// FeatureBranchPattern is the naming convention every worktree branch must
// match: the "wt/" prefix followed by a sanitized slug, optionally suffixed
// with a short hex disambiguator.
var FeatureBranchPattern = regexp.MustCompile(`^wt/[a-z0-9][a-z0-9._-]*$`)

// WorktreeEntry records one parallel-development worktree: a distinct
// remote GAS project paired with a git worktree on a feature branch of the
// parent project's local repository.
type WorktreeEntry struct {
	ScriptID            ScriptID
	ParentScriptID      ScriptID
	ContainerID         string
	ParentContainerID   string
	ContainerType       ContainerType
	Branch              string
	LocalPath           string
	State               WorktreeState
	ClaimedBy           string
	ClaimedAt           *time.Time
	CreatedAt           time.Time
	BaseHashes          map[string]ContentHash
	BaseHashesUpdatedAt time.Time
}

// Valid reports the WorktreeEntry integrity invariant from the testable
// properties: the worktree's project must differ from its parent, and its
// branch name must be well-formed.
func (w WorktreeEntry) Valid() bool {
	if w.ScriptID == "" || w.ParentScriptID == "" || w.ScriptID == w.ParentScriptID {
		return false
	}
	return FeatureBranchPattern.MatchString(w.Branch)
}

// ClaimExpired reports whether a CLAIMED entry's claim has outlived ttl and
// should be lazily reclaimed back to READY - the crash-recovery analog of
// the config lock's heartbeat/expiry scheme, for claimers that died without
// releasing.
func (w WorktreeEntry) ClaimExpired(ttl time.Duration, now time.Time) bool {
	if w.State != WorktreeClaimed || w.ClaimedAt == nil {
		return false
	}
	return now.Sub(*w.ClaimedAt) > ttl
}

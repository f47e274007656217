// Package syncguard refuses writes that would silently clobber a remote
// file's unseen changes. ConflictDetector guards a single write's hash
// expectation against the actual remote content; SyncGate
// guards the local mirror's freshness before that write is even attempted.
// Neither ever mutates remote or local state - the decision is
// advisory to the caller, which is the pipeline.
package syncguard

import (
	"fmt"

	"github.com/pmezard/go-difflib/difflib"

	"github.com/gasdevtools/gas-sync/internal/errs"
	"github.com/gasdevtools/gas-sync/internal/hashutil"
	"github.com/gasdevtools/gas-sync/internal/types"
)

// maxDiffChars bounds the textual diff embedded in a ConflictReport.
const maxDiffChars = 20000

// DetectInput is everything ConflictDetector.Check needs to decide.
type DetectInput struct {
	ScriptID             types.ScriptID
	Filename             string
	Operation            string
	CurrentRemoteContent string
	ExpectedHash         types.ContentHash
	HashSource           types.HashSource
	Force                bool
}

// ConflictDetector decides whether a write may proceed given the baseline
// hash the caller last saw versus the file's actual current remote
// content.
type ConflictDetector struct{}

// NewConflictDetector constructs a ConflictDetector.
func NewConflictDetector() *ConflictDetector { return &ConflictDetector{} }

// Check returns nil when the write may proceed, or a *errs.Error of kind
// ConflictError carrying a *types.ConflictReport when it may not. It never
// mutates remote or local state.
func (d *ConflictDetector) Check(in DetectInput) error {
	if in.Force {
		return nil
	}

	currentHash := hashutil.ComputeString(in.CurrentRemoteContent)

	if in.ExpectedHash.Empty() {
		return nil // first-write semantics: no baseline to compare against
	}
	if in.ExpectedHash.Equal(currentHash) {
		return nil
	}

	diff := buildUnifiedDiff(in.Filename, in.ExpectedHash, in.CurrentRemoteContent)
	report := &types.ConflictReport{
		ScriptID:     in.ScriptID,
		Filename:     in.Filename,
		Operation:    in.Operation,
		ExpectedHash: in.ExpectedHash,
		CurrentHash:  currentHash,
		HashSource:   in.HashSource,
		Diff:         diff,
	}
	return errs.New(errs.KindConflict,
		fmt.Sprintf("remote content for %q has changed since the expected baseline was captured", in.Filename),
		map[string]string{"filename": in.Filename}).WithDetail(report)
}

// buildUnifiedDiff renders a Myers-style unified diff between the baseline
// (identified only by its hash - the caller never holds the old bytes) and
// the current remote content, truncating at maxDiffChars.
func buildUnifiedDiff(filename string, expectedHash types.ContentHash, current string) types.UnifiedDiff {
	baselineLabel := fmt.Sprintf("baseline (%s)", expectedHash)
	ud := difflib.UnifiedDiff{
		A:        difflib.SplitLines(fmt.Sprintf("# content unavailable - baseline known only by hash %s\n", expectedHash)),
		B:        difflib.SplitLines(current),
		FromFile: baselineLabel,
		ToFile:   filename,
		Context:  3,
	}
	text, err := difflib.GetUnifiedDiffString(ud)
	if err != nil {
		text = fmt.Sprintf("(diff generation failed: %v)", err)
	}

	added, removed := countDiffLines(text)

	truncated := false
	truncatedMsg := ""
	if len(text) > maxDiffChars {
		original := len(text)
		text = text[:maxDiffChars]
		truncated = true
		truncatedMsg = fmt.Sprintf("diff truncated at %d of %d characters", maxDiffChars, original)
	}

	return types.UnifiedDiff{
		Format:           "unified",
		Content:          text,
		LinesAdded:       added,
		LinesRemoved:     removed,
		Truncated:        truncated,
		TruncatedMessage: truncatedMsg,
	}
}

func countDiffLines(udiff string) (added, removed int) {
	lines := difflib.SplitLines(udiff)
	for _, line := range lines {
		switch {
		case len(line) > 0 && line[0] == '+' && !hasPrefix(line, "+++"):
			added++
		case len(line) > 0 && line[0] == '-' && !hasPrefix(line, "---"):
			removed++
		}
	}
	return added, removed
}

func hasPrefix(s, prefix string) bool {
	return len(s) >= len(prefix) && s[:len(prefix)] == prefix
}

package gitbridge

import (
	"context"
	"os"
	"path/filepath"

	"github.com/gasdevtools/gas-sync/internal/errs"
)

// HookOutcome is what HookValidator.Write returns on success.
type HookOutcome struct {
	ContentAfterHooks string
	HookModified      bool
	CommitHash        string
}

// HookValidator runs the "write then commit-through-hooks" sequence:
// repository hooks may reformat or reject the candidate content
// before it is allowed to reach the remote. Every exit path leaves the
// local file and the git index consistent with each other.
type HookValidator struct {
	Bridge *Bridge
}

// NewHookValidator builds a HookValidator over bridge.
func NewHookValidator(bridge *Bridge) *HookValidator {
	return &HookValidator{Bridge: bridge}
}

// Write writes candidate to the file at relPath (relative to repoPath) and
// commits it. On hook rejection or a no-op commit, it restores the file to
// its previous state (or deletes it, if it was new) and returns a
// HookRejected error carrying the hook's output.
func (h *HookValidator) Write(ctx context.Context, repoPath, relPath string, candidate []byte, commitMessage string) (HookOutcome, error) {
	fullPath := joinRepoPath(repoPath, relPath)

	previousContent, existed, err := readIfExists(fullPath)
	if err != nil {
		return HookOutcome{}, errs.Wrap(errs.KindAPI, "failed to read previous content before hook-validated write", err, nil)
	}

	if err := os.WriteFile(fullPath, candidate, 0o644); err != nil {
		return HookOutcome{}, errs.Wrap(errs.KindAPI, "failed to write candidate content", err, nil)
	}

	result, commitErr := h.Bridge.Commit(ctx, repoPath, []string{relPath}, commitMessage)
	if commitErr != nil {
		if restoreErr := restore(fullPath, previousContent, existed); restoreErr != nil {
			return HookOutcome{}, errs.Wrap(errs.KindCriticalRecover,
				"hook rejected the write and restoring the previous content also failed", restoreErr, nil)
		}
		// The rejected candidate may still be staged; reset the index so
		// it agrees with the restored working tree.
		if unstageErr := h.Bridge.Unstage(ctx, repoPath, []string{relPath}); unstageErr != nil {
			return HookOutcome{}, errs.Wrap(errs.KindCriticalRecover,
				"hook rejected the write and unstaging the candidate also failed", unstageErr, nil)
		}
		kind, hints := errs.KindHookRejected, map[string]string{}
		if e, ok := commitErr.(*errs.Error); ok {
			hints = e.Hints
		}
		return HookOutcome{}, errs.Wrap(kind, "commit hook rejected the write", commitErr, hints)
	}

	afterHooks, err := os.ReadFile(fullPath)
	if err != nil {
		return HookOutcome{}, errs.Wrap(errs.KindAPI, "failed to read content after hooks ran", err, nil)
	}

	return HookOutcome{
		ContentAfterHooks: string(afterHooks),
		HookModified:      result.HookModified,
		CommitHash:        result.Hash,
	}, nil
}

func readIfExists(path string) (content []byte, existed bool, err error) {
	b, err := os.ReadFile(path)
	if err == nil {
		return b, true, nil
	}
	if os.IsNotExist(err) {
		return nil, false, nil
	}
	return nil, false, err
}

func restore(path string, previousContent []byte, existed bool) error {
	if !existed {
		if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
			return err
		}
		return nil
	}
	return os.WriteFile(path, previousContent, 0o644)
}

func joinRepoPath(repoPath, relPath string) string {
	if repoPath == "" {
		return relPath
	}
	return filepath.Join(repoPath, relPath)
}

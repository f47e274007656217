// Package pipeline implements the single end-to-end contract for writing
// a file to a GAS project: resolve path, gate on local/remote
// sync, check for a baseline conflict, write through git hooks when a
// repository exists, push to the remote, mirror metadata locally, and
// roll back the local commit if the remote push fails.
package pipeline

import (
	"context"
	"os"
	"path/filepath"
	"time"

	"github.com/go-logr/logr"

	"github.com/gasdevtools/gas-sync/internal/errs"
	"github.com/gasdevtools/gas-sync/internal/gitbridge"
	"github.com/gasdevtools/gas-sync/internal/hashutil"
	"github.com/gasdevtools/gas-sync/internal/obs"
	"github.com/gasdevtools/gas-sync/internal/pathresolve"
	"github.com/gasdevtools/gas-sync/internal/remote"
	"github.com/gasdevtools/gas-sync/internal/syncguard"
	"github.com/gasdevtools/gas-sync/internal/types"
	"github.com/gasdevtools/gas-sync/internal/xattrmeta"
)

// MainlineBranch is the conventional name ensureFeatureBranch treats as
// the project's canonical branch, matching what EnsureRepo initializes.
const MainlineBranch = gitbridge.DefaultBranch

// GitContext is the git-specific slice of a Result: which branch the
// write landed on, the resulting commit (if any), and whether a hook
// altered the content beyond what was written.
type GitContext struct {
	Branch            string
	CommitHash        string
	HookModified      bool
	BranchAutoCreated bool
}

// Input is everything AtomicWritePipeline.Write needs for a single write.
type Input struct {
	ScriptID      types.ScriptID
	RawPath       string // "<scriptId>/<path>" or bare "<path>"
	Kind          types.FileKind
	NewContent    string
	ExpectedHash  types.ContentHash
	Force         bool
	AllowNewLocal bool
	SkipSyncCheck bool
	ProjectRoot   string // local directory backing ScriptID
	Token         string
	Operation     string
}

// Result is AtomicWritePipeline.Write's return value on success.
type Result struct {
	NewHash    types.ContentHash
	Position   int
	TotalFiles int
	Git        GitContext
	NextAction string
}

// AtomicWritePipeline orchestrates a single write end to end.
type AtomicWritePipeline struct {
	Script        remote.ScriptClient
	Cache         *xattrmeta.Cache
	Gate          *syncguard.SyncGate
	Conflicts     *syncguard.ConflictDetector
	Bridge        *gitbridge.Bridge
	HookValidator *gitbridge.HookValidator
	Logger        logr.Logger
	Metrics       *obs.Metrics // optional; nil disables instrumentation
}

// New wires an AtomicWritePipeline from its collaborators.
func New(script remote.ScriptClient, cache *xattrmeta.Cache, bridge *gitbridge.Bridge, logger logr.Logger) *AtomicWritePipeline {
	return &AtomicWritePipeline{
		Script:        script,
		Cache:         cache,
		Gate:          syncguard.NewSyncGate(cache),
		Conflicts:     syncguard.NewConflictDetector(),
		Bridge:        bridge,
		HookValidator: gitbridge.NewHookValidator(bridge),
		Logger:        logger,
	}
}

// Write runs the full step sequence and returns the structured result, or
// a *errs.Error from whichever step refused the write.
func (p *AtomicWritePipeline) Write(ctx context.Context, in Input) (Result, error) {
	resolved := pathresolve.Resolve(in.RawPath, in.ScriptID)
	localFilename := pathresolve.LocalFilename(resolved.Path, in.Kind)
	localPath := filepath.Join(in.ProjectRoot, localFilename)

	content, err := p.Script.GetProjectContent(ctx, in.Token, resolved.ScriptID)
	if err != nil {
		return Result{}, errs.Wrap(errs.KindAPI, "failed to fetch current remote content", err, nil)
	}
	existingFile, remoteExists := findRemoteFile(content, resolved.Path)

	if !in.SkipSyncCheck && !in.Force {
		if err := p.Gate.Check(syncguard.GateInput{
			LocalPath:        localPath,
			RemoteExists:     remoteExists,
			RemoteContent:    existingFile.Source,
			AllowAbsentLocal: in.AllowNewLocal,
		}); err != nil {
			if p.Metrics != nil {
				obs.IncCounter(ctx, p.Metrics.SyncGateDenials)
			}
			return Result{}, err
		}
	}

	hashSource := types.HashSourceNone
	expectedHash := in.ExpectedHash
	if expectedHash != "" {
		hashSource = types.HashSourceParam
	} else if meta, ok := p.Cache.Get(localPath); ok {
		expectedHash = meta.ContentHash
		hashSource = types.HashSourceXattr
	}

	if err := p.Conflicts.Check(syncguard.DetectInput{
		ScriptID:             resolved.ScriptID,
		Filename:             resolved.Path,
		Operation:            in.Operation,
		CurrentRemoteContent: existingFile.Source,
		ExpectedHash:         expectedHash,
		HashSource:           hashSource,
		Force:                in.Force,
	}); err != nil {
		if p.Metrics != nil {
			obs.IncCounter(ctx, p.Metrics.ConflictsDetected)
		}
		return Result{}, err
	}

	gitCtx, contentAfterWrite, err := p.writeThroughGitIfPresent(ctx, in.ProjectRoot, localFilename, in.NewContent)
	if err != nil {
		return Result{}, err
	}

	pushed, pushErr := p.Script.UpdateFile(ctx, in.Token, resolved.ScriptID, types.RemoteFile{
		Name:   resolved.Path,
		Kind:   in.Kind,
		Source: contentAfterWrite,
	})
	if pushErr != nil {
		if ctx.Err() != nil {
			// Canceled mid-push: the remote may or may not have applied
			// the write. Leave the local commit in place and the cache
			// untouched so the next sync check re-derives the truth.
			return Result{}, errs.Wrap(errs.KindAPI,
				"write canceled while pushing; remote outcome unknown, local cache left untouched",
				pushErr, map[string]string{"hint": "run cat to download the latest remote version and compare"})
		}
		if gitCtx.CommitHash != "" {
			if revertErr := p.Bridge.RevertCommit(ctx, in.ProjectRoot, gitCtx.CommitHash); revertErr != nil {
				return Result{}, errs.Wrap(errs.KindCriticalRecover,
					"remote push failed and the local commit could not be reverted; manual recovery required",
					revertErr, map[string]string{"commitHash": gitCtx.CommitHash})
			}
		}
		return Result{}, errs.Wrap(errs.KindRemotePush, "failed to push updated content to the remote", pushErr, nil)
	}

	newHash := hashutil.ComputeString(contentAfterWrite)
	p.mirrorMetadata(localPath, newHash, pushed.UpdateTime)

	position, total := findPosition(content, resolved.Path)

	return Result{
		NewHash:    newHash,
		Position:   position,
		TotalFiles: total,
		Git:        gitCtx,
		NextAction: nextActionHint(gitCtx),
	}, nil
}

// writeThroughGitIfPresent discovers whether projectRoot is backed by a git
// repository; if so it commits through HookValidator, otherwise it writes
// directly to disk.
func (p *AtomicWritePipeline) writeThroughGitIfPresent(ctx context.Context, projectRoot, localFilename, newContent string) (GitContext, string, error) {
	if !hasGitRepo(projectRoot) {
		if err := os.WriteFile(filepath.Join(projectRoot, localFilename), []byte(newContent), 0o644); err != nil {
			return GitContext{}, "", errs.Wrap(errs.KindAPI, "failed to write file directly to disk", err, nil)
		}
		return GitContext{}, newContent, nil
	}

	branchBefore, _, err := p.Bridge.CurrentBranch(ctx, projectRoot)
	if err != nil {
		return GitContext{}, "", err
	}

	featureBranch := branchBefore
	autoCreated := false
	if branchBefore == MainlineBranch {
		featureBranch = "wt/" + localFilename + "-" + time.Now().UTC().Format("20060102")
		if err := p.Bridge.EnsureFeatureBranch(ctx, projectRoot, MainlineBranch, featureBranch); err != nil {
			return GitContext{}, "", err
		}
		autoCreated = true
	}

	outcome, err := p.HookValidator.Write(ctx, projectRoot, localFilename, []byte(newContent), "update "+localFilename)
	if err != nil {
		if p.Metrics != nil {
			if kind, ok := errs.KindOf(err); ok && kind == errs.KindHookRejected {
				obs.IncCounter(ctx, p.Metrics.HookRejections)
			}
		}
		return GitContext{}, "", err
	}
	if p.Metrics != nil {
		obs.IncCounter(ctx, p.Metrics.GitCommits)
	}

	return GitContext{
		Branch:            featureBranch,
		CommitHash:        outcome.CommitHash,
		HookModified:      outcome.HookModified,
		BranchAutoCreated: autoCreated,
	}, outcome.ContentAfterHooks, nil
}

func (p *AtomicWritePipeline) mirrorMetadata(localPath string, hash types.ContentHash, remoteUpdateTime *time.Time) {
	meta := types.LocalFileMeta{ContentHash: hash}
	if remoteUpdateTime != nil {
		meta.RemoteUpdateTime = *remoteUpdateTime
		_ = os.Chtimes(localPath, *remoteUpdateTime, *remoteUpdateTime)
	}
	p.Cache.Put(localPath, meta)
}

func hasGitRepo(projectRoot string) bool {
	dir := projectRoot
	for {
		if _, err := os.Stat(filepath.Join(dir, ".git")); err == nil {
			return true
		}
		if _, err := os.Stat(filepath.Join(dir, ".gas-sync-root")); err == nil {
			return true
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return false
		}
		dir = parent
	}
}

func findRemoteFile(files []types.RemoteFile, name string) (types.RemoteFile, bool) {
	for _, f := range files {
		if pathresolve.FileNameMatches(f.Name, name) {
			return f, true
		}
	}
	return types.RemoteFile{}, false
}

func findPosition(files []types.RemoteFile, name string) (position, total int) {
	total = len(files)
	for i, f := range files {
		if pathresolve.FileNameMatches(f.Name, name) {
			return i + 1, total
		}
	}
	return total + 1, total + 1
}

func nextActionHint(g GitContext) string {
	if g.CommitHash == "" {
		return "written directly to disk; no git repository was present"
	}
	if g.HookModified {
		return "repository hooks modified the content; review the committed diff before further edits"
	}
	if g.BranchAutoCreated {
		return "changes committed to a freshly created feature branch: " + g.Branch
	}
	return "changes committed and pushed"
}

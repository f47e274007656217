// Package gitbridge wraps a git binary invoked as a child process with
// argument arrays, never shell strings. go-git was deliberately
// not used here: HookValidator depends on real repository hooks
// (formatters, linters, tests) running and potentially rewriting commit
// content, and go-git cannot execute .git/hooks/* - see DESIGN.md.
package gitbridge

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/go-logr/logr"

	"github.com/gasdevtools/gas-sync/internal/errs"
)

// DefaultTimeout bounds normal subprocess invocations this package makes.
const DefaultTimeout = 30 * time.Second

// CloneTimeout bounds clone/init-class invocations, which get a larger
// budget than normal ops.
const CloneTimeout = 60 * time.Second

// DefaultBranch is the mainline branch name EnsureRepo initializes new
// repositories with, independent of the host's init.defaultBranch config.
const DefaultBranch = "main"

const defaultGitignore = "node_modules/\n*.log\n.DS_Store\n"

// CommitResult is what commit() returns on success.
type CommitResult struct {
	Hash         string
	HookModified bool
}

// Bridge invokes git as a subprocess on behalf of a single local project
// directory tree. It is safe for concurrent use across distinct repoPaths.
// It holds no lock of its own, so concurrent operations against the same
// repoPath are not serialized by Bridge (nor by the pipeline, which takes
// no lock either).
type Bridge struct {
	Timeout time.Duration
	Logger  logr.Logger
}

// New builds a Bridge with the package default timeout.
func New(logger logr.Logger) *Bridge {
	return &Bridge{Timeout: DefaultTimeout, Logger: logger}
}

// run executes git with args inside dir under the normal-op timeout,
// returning trimmed stdout. On non-zero exit it returns an error carrying
// stderr content verbatim.
func (b *Bridge) run(ctx context.Context, dir string, args ...string) (string, error) {
	timeout := b.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return b.runWith(ctx, timeout, dir, args...)
}

// runWith is run with an explicit timeout, for clone/init-class calls.
func (b *Bridge) runWith(ctx context.Context, timeout time.Duration, dir string, args ...string) (string, error) {
	runCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	cmd := exec.CommandContext(runCtx, "git", args...)
	cmd.Dir = dir

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	b.Logger.V(1).Info("running git", "dir", dir, "args", args)

	err := cmd.Run()
	out := strings.TrimSpace(stdout.String())
	if err != nil {
		if errors.Is(runCtx.Err(), context.DeadlineExceeded) {
			return out, errs.Wrap(errs.KindAPI, fmt.Sprintf("git %s timed out after %s", strings.Join(args, " "), timeout), err, nil)
		}
		return out, errs.Wrap(errs.KindAPI, fmt.Sprintf("git %s failed: %s", strings.Join(args, " "), strings.TrimSpace(stderr.String())), err, map[string]string{
			"stderr": strings.TrimSpace(stderr.String()),
		})
	}
	return out, nil
}

// breadcrumbLocalPathRe extracts the `localPath = ...` line from a
// remote-stored `.git/config` breadcrumb naming the local git directory.
var breadcrumbLocalPathRe = regexp.MustCompile(`(?m)^\s*localPath\s*=\s*(.+?)\s*$`)

// ensureRepoOptions is built up by EnsureRepoOption values.
type ensureRepoOptions struct {
	breadcrumb string
	localRoot  string
}

// EnsureRepoOption configures an EnsureRepo call.
type EnsureRepoOption func(*ensureRepoOptions)

// WithBreadcrumb supplies the project's remote-stored breadcrumb content
// together with the localRoot it must resolve under. When the breadcrumb
// names a path outside localRoot, EnsureRepo hard-errors
// (errorCode ErrBreadcrumbMismatch) instead of proceeding.
func WithBreadcrumb(content, localRoot string) EnsureRepoOption {
	return func(o *ensureRepoOptions) {
		o.breadcrumb = content
		o.localRoot = localRoot
	}
}

func verifyBreadcrumb(content, localRoot string) error {
	match := breadcrumbLocalPathRe.FindStringSubmatch(content)
	if match == nil {
		return nil
	}
	named := strings.TrimSpace(match[1])
	rel, err := filepath.Rel(localRoot, named)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return errs.New(errs.KindValidation,
			fmt.Sprintf("breadcrumb names local path %q outside local root %q", named, localRoot),
			map[string]string{"errorCode": "ErrBreadcrumbMismatch"})
	}
	return nil
}

// EnsureRepo creates path if needed, initializes a git repository, seeds a
// default identity when one isn't already configured, materializes a
// .gitignore, and - when the repository has no commits yet - records an
// initial commit of whatever files are already present (the caller is
// expected to have populated path from the remote beforehand). When
// WithBreadcrumb is supplied, a mismatched breadcrumb aborts before any
// of that happens.
func (b *Bridge) EnsureRepo(ctx context.Context, path string, opts ...EnsureRepoOption) error {
	var cfg ensureRepoOptions
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.breadcrumb != "" {
		if err := verifyBreadcrumb(cfg.breadcrumb, cfg.localRoot); err != nil {
			return err
		}
	}

	if err := os.MkdirAll(path, 0o750); err != nil {
		return errs.Wrap(errs.KindAPI, "failed to create repository directory", err, nil)
	}

	gitDir := filepath.Join(path, ".git")
	if _, statErr := os.Stat(gitDir); statErr != nil {
		if _, err := b.runWith(ctx, CloneTimeout, path, "init", "-b", DefaultBranch); err != nil {
			return err
		}
	}

	if err := b.ensureIdentity(ctx, path); err != nil {
		return err
	}
	if err := b.ensureGitignore(path); err != nil {
		return err
	}

	if _, _, err := b.currentBranch(ctx, path); err != nil {
		return err
	}

	if !b.hasCommits(ctx, path) {
		if _, err := b.runWith(ctx, CloneTimeout, path, "add", "-A"); err != nil {
			return err
		}
		if _, err := b.runWith(ctx, CloneTimeout, path, "commit", "--allow-empty", "-m", "initial import from remote"); err != nil {
			return err
		}
	}

	return nil
}

func (b *Bridge) ensureIdentity(ctx context.Context, path string) error {
	if _, err := b.run(ctx, path, "config", "user.name"); err != nil {
		if _, err := b.run(ctx, path, "config", "user.name", "gas-sync"); err != nil {
			return err
		}
	}
	if _, err := b.run(ctx, path, "config", "user.email"); err != nil {
		if _, err := b.run(ctx, path, "config", "user.email", "gas-sync@localhost"); err != nil {
			return err
		}
	}
	return nil
}

func (b *Bridge) ensureGitignore(path string) error {
	target := filepath.Join(path, ".gitignore")
	if _, err := os.Stat(target); err == nil {
		return nil
	}
	if err := os.WriteFile(target, []byte(defaultGitignore), 0o644); err != nil {
		return errs.Wrap(errs.KindAPI, "failed to write .gitignore", err, nil)
	}
	return nil
}

func (b *Bridge) hasCommits(ctx context.Context, path string) bool {
	_, err := b.run(ctx, path, "rev-parse", "--verify", "HEAD")
	return err == nil
}

func (b *Bridge) currentBranch(ctx context.Context, path string) (branch string, unborn bool, err error) {
	out, runErr := b.run(ctx, path, "symbolic-ref", "--short", "HEAD")
	if runErr != nil {
		return "", false, runErr
	}
	return out, !b.hasCommits(ctx, path), nil
}

// CurrentBranch reports the branch path is currently on, and whether it is
// unborn (no commits yet).
func (b *Bridge) CurrentBranch(ctx context.Context, path string) (branch string, unborn bool, err error) {
	return b.currentBranch(ctx, path)
}

// EnsureFeatureBranch switches to (or creates) a feature branch when the
// repository is currently on its mainline branch. If the current branch is
// already a feature branch (any branch other than mainline), it is retained.
func (b *Bridge) EnsureFeatureBranch(ctx context.Context, path, mainline, featureBranch string) error {
	branch, _, err := b.currentBranch(ctx, path)
	if err != nil {
		return err
	}
	if branch != "" && branch != mainline {
		return nil
	}

	if b.branchExists(ctx, path, featureBranch) {
		_, err := b.run(ctx, path, "checkout", featureBranch)
		return err
	}
	_, err = b.run(ctx, path, "checkout", "-b", featureBranch)
	return err
}

func (b *Bridge) branchExists(ctx context.Context, path, branch string) bool {
	_, err := b.run(ctx, path, "show-ref", "--verify", "--quiet", "refs/heads/"+branch)
	return err == nil
}

// Commit stages exactly the given files (relative to path) and commits
// them. It reports the resulting commit hash and whether any hook modified
// staged content beyond what was originally written (hookModified).
func (b *Bridge) Commit(ctx context.Context, path string, files []string, message string) (CommitResult, error) {
	if len(files) == 0 {
		return CommitResult{}, errs.New(errs.KindValidation, "commit requires at least one file", nil)
	}

	preHashes := make(map[string]string, len(files))
	for _, f := range files {
		h, _ := b.run(ctx, path, "hash-object", f)
		preHashes[f] = h
	}

	args := append([]string{"add", "--"}, files...)
	if _, err := b.run(ctx, path, args...); err != nil {
		return CommitResult{}, err
	}

	if _, err := b.run(ctx, path, "commit", "-m", message); err != nil {
		return CommitResult{}, errs.Wrap(errs.KindHookRejected, "commit rejected or produced nothing to commit", err, map[string]string{
			"hint": "a pre-commit hook likely rejected the change, or the content was unchanged",
		})
	}

	hash, err := b.run(ctx, path, "rev-parse", "HEAD")
	if err != nil {
		return CommitResult{}, err
	}

	hookModified := false
	for _, f := range files {
		post, _ := b.run(ctx, path, "hash-object", f)
		if post != preHashes[f] {
			hookModified = true
			break
		}
	}

	return CommitResult{Hash: hash, HookModified: hookModified}, nil
}

// Unstage resets the index entries for files back to HEAD, leaving the
// working tree untouched. Used after a rejected commit so the index does
// not keep holding the staged candidate content.
func (b *Bridge) Unstage(ctx context.Context, path string, files []string) error {
	args := append([]string{"reset", "-q", "HEAD", "--"}, files...)
	_, err := b.run(ctx, path, args...)
	return err
}

// RevertCommit reverts hash with no editor prompt. On failure it returns an
// error whose message instructs the operator to resolve manually - a
// revert conflict is not something this package can resolve automatically.
func (b *Bridge) RevertCommit(ctx context.Context, path, hash string) error {
	if _, err := b.run(ctx, path, "revert", "--no-edit", hash); err != nil {
		return errs.Wrap(errs.KindCriticalRecover,
			fmt.Sprintf("failed to revert commit %s; manual recovery required: inspect %s, resolve the revert conflict, and commit", hash, path),
			err, map[string]string{"commitHash": hash, "repoPath": path})
	}
	return nil
}

// WorktreeAdd creates a sibling worktree at worktreePath on a fresh branch.
// If branch already exists and does not currently back a worktree, it is
// force-deleted first so the new worktree starts from a clean branch tip.
func (b *Bridge) WorktreeAdd(ctx context.Context, repoPath, worktreePath, branch string) error {
	if b.branchExists(ctx, repoPath, branch) {
		if b.branchBacksWorktree(ctx, repoPath, branch) {
			return errs.New(errs.KindValidation, fmt.Sprintf("branch %q already backs a worktree", branch), nil)
		}
		if _, err := b.run(ctx, repoPath, "branch", "-D", branch); err != nil {
			return err
		}
	}

	if _, err := b.run(ctx, repoPath, "worktree", "add", "-b", branch, worktreePath); err != nil {
		return err
	}
	return nil
}

func (b *Bridge) branchBacksWorktree(ctx context.Context, repoPath, branch string) bool {
	out, err := b.run(ctx, repoPath, "worktree", "list", "--porcelain")
	if err != nil {
		return false
	}
	target := "refs/heads/" + branch
	for _, line := range strings.Split(out, "\n") {
		if strings.TrimSpace(strings.TrimPrefix(line, "branch")) == target {
			return true
		}
	}
	return false
}

// WorktreeRemove removes the worktree at worktreePath and deletes branch.
func (b *Bridge) WorktreeRemove(ctx context.Context, repoPath, worktreePath, branch string) error {
	if _, err := b.run(ctx, repoPath, "worktree", "remove", "--force", worktreePath); err != nil {
		return err
	}
	if _, err := b.run(ctx, repoPath, "branch", "-D", branch); err != nil {
		return err
	}
	return nil
}

// Package worktree implements the full
// lifecycle of a parallel-development worktree - a distinct remote GAS
// project (cloned or freshly created) paired with a git worktree on a new
// branch of the parent project's local repository, registered in the
// shared config document under the global ConfigLock.
package worktree

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/cespare/xxhash/v2"
	"github.com/go-logr/logr"
	"github.com/google/uuid"

	"github.com/gasdevtools/gas-sync/internal/config"
	"github.com/gasdevtools/gas-sync/internal/errs"
	"github.com/gasdevtools/gas-sync/internal/gitbridge"
	"github.com/gasdevtools/gas-sync/internal/hashutil"
	"github.com/gasdevtools/gas-sync/internal/obs"
	"github.com/gasdevtools/gas-sync/internal/pathresolve"
	"github.com/gasdevtools/gas-sync/internal/remote"
	"github.com/gasdevtools/gas-sync/internal/types"
)

// BranchPrefix is the fixed namespace every worktree branch is created
// under.
const BranchPrefix = "wt/"

// DefaultClaimTTL bounds how long a CLAIMED worktree is trusted before a
// later List call lazily reclaims it back to READY - crash recovery for
// claimers that died without releasing, the worktree analog of the config
// lock's heartbeat/expiry.
const DefaultClaimTTL = 30 * time.Minute

// Manager implements WorktreeManager end to end.
type Manager struct {
	Script    remote.ScriptClient
	Drive     remote.DriveClient
	Container *remote.ContainerTypeCache
	Bridge    *gitbridge.Bridge
	Config    *config.Store
	Lock      *config.Lock
	LocalRoot string
	ClaimTTL  time.Duration
	Logger    logr.Logger
	Metrics   *obs.Metrics // optional; nil disables instrumentation
}

// New wires a Manager from its collaborators.
func New(script remote.ScriptClient, drive remote.DriveClient, bridge *gitbridge.Bridge, cfgStore *config.Store, cfgLock *config.Lock, localRoot string, logger logr.Logger) *Manager {
	return &Manager{
		Script:    script,
		Drive:     drive,
		Container: remote.NewContainerTypeCache(drive),
		Bridge:    bridge,
		Config:    cfgStore,
		Lock:      cfgLock,
		LocalRoot: localRoot,
		ClaimTTL:  DefaultClaimTTL,
		Logger:    logger,
	}
}

// AddInput is everything Add needs to create one worktree.
type AddInput struct {
	ParentScriptID types.ScriptID
	Token          string
	ClaimedBy      string // when non-empty, the new entry is created CLAIMED
}

// cleanupStep is one undo action recorded during Add, run in reverse
// order on failure - a best-effort cascade.
type cleanupStep struct {
	name string
	run  func(ctx context.Context)
}

// Add creates a new GAS project (cloned or freshly created, depending on
// the parent's container type) paired with a git worktree on a fresh
// branch of the parent's local repository, and records the result as a
// WorktreeEntry in the shared config document.
func (m *Manager) Add(ctx context.Context, in AddInput) (types.WorktreeEntry, error) {
	var result types.WorktreeEntry
	err := m.Lock.WithLock(ctx, "worktree_add", 0, func() error {
		entry, addErr := m.add(ctx, in)
		if addErr != nil {
			return addErr
		}
		result = entry
		return nil
	})
	if err == nil && m.Metrics != nil {
		obs.IncCounter(ctx, m.Metrics.WorktreeAdds)
	}
	return result, err
}

func (m *Manager) add(ctx context.Context, in AddInput) (types.WorktreeEntry, error) {
	parentMeta, err := m.Script.GetProject(ctx, in.Token, in.ParentScriptID)
	if err != nil {
		return types.WorktreeEntry{}, errs.Wrap(errs.KindValidation, "parent project does not exist", err, map[string]string{"scriptId": string(in.ParentScriptID)})
	}

	branch := generateBranchName(parentMeta.Title)
	containerType, err := m.Container.ResolveContainerType(ctx, in.Token, parentMeta.ParentID)
	if err != nil {
		return types.WorktreeEntry{}, errs.Wrap(errs.KindAPI, "failed to resolve parent container type", err, nil)
	}

	var cleanup []cleanupStep
	defer func() {
		for i := len(cleanup) - 1; i >= 0; i-- {
			step := cleanup[i]
			m.Logger.Info("rolling back worktree add", "step", step.name)
			step.run(ctx)
		}
	}()

	newScriptID, containerID, err := m.createRemoteProject(ctx, in.Token, parentMeta, containerType, branch, &cleanup)
	if err != nil {
		return types.WorktreeEntry{}, err
	}

	parentRepoPath := pathresolve.ProjectDir(m.LocalRoot, in.ParentScriptID)
	if err := m.ensureParentRepo(ctx, in.Token, in.ParentScriptID, parentRepoPath); err != nil {
		return types.WorktreeEntry{}, err
	}

	worktreePath := pathresolve.ProjectDir(m.LocalRoot, newScriptID)
	if err := m.Bridge.WorktreeAdd(ctx, parentRepoPath, worktreePath, branch); err != nil {
		return types.WorktreeEntry{}, err
	}
	cleanup = append(cleanup, cleanupStep{
		name: "remove git worktree",
		run: func(ctx context.Context) {
			if rmErr := m.Bridge.WorktreeRemove(ctx, parentRepoPath, worktreePath, branch); rmErr != nil {
				m.Logger.Info("failed to remove git worktree during rollback", "error", rmErr)
			}
		},
	})

	files, err := readWorktreeFiles(worktreePath)
	if err != nil {
		return types.WorktreeEntry{}, errs.Wrap(errs.KindAPI, "failed to read worktree files to push", err, nil)
	}
	if err := m.Script.UpdateProjectContent(ctx, in.Token, newScriptID, files); err != nil {
		return types.WorktreeEntry{}, errs.Wrap(errs.KindAPI, "failed to push worktree content to new project", err, nil)
	}

	baseHashes := make(map[string]types.ContentHash, len(files))
	for _, f := range files {
		baseHashes[f.Name] = hashutil.ComputeString(f.Source)
	}

	now := time.Now().UTC()
	entry := types.WorktreeEntry{
		ScriptID:            newScriptID,
		ParentScriptID:      in.ParentScriptID,
		ContainerID:         containerID,
		ParentContainerID:   parentMeta.ParentID,
		ContainerType:       containerType,
		Branch:              branch,
		LocalPath:           worktreePath,
		State:               types.WorktreeReady,
		CreatedAt:           now,
		BaseHashes:          baseHashes,
		BaseHashesUpdatedAt: now,
	}
	if in.ClaimedBy != "" {
		entry.State = types.WorktreeClaimed
		entry.ClaimedBy = in.ClaimedBy
		entry.ClaimedAt = &now
	}
	if !entry.Valid() {
		return types.WorktreeEntry{}, errs.New(errs.KindValidation, "generated worktree entry failed its own integrity invariant", nil)
	}

	if err := m.persistEntry(entry); err != nil {
		return types.WorktreeEntry{}, err
	}

	cleanup = nil // everything committed; no rollback needed
	return entry, nil
}

// createRemoteProject creates the new GAS project backing the worktree:
// a bare new project for STANDALONE parents, or a Drive container copy
// (which clones its bound script) for container-bound parents.
func (m *Manager) createRemoteProject(ctx context.Context, token string, parentMeta remote.ProjectMetadata, containerType types.ContainerType, branch string, cleanup *[]cleanupStep) (types.ScriptID, string, error) {
	title := fmt.Sprintf("%s (%s)", parentMeta.Title, branch)

	if containerType == types.ContainerStandalone {
		created, err := m.Script.CreateProject(ctx, token, title, "")
		if err != nil {
			return "", "", errs.Wrap(errs.KindAPI, "failed to create standalone worktree project", err, nil)
		}
		*cleanup = append(*cleanup, cleanupStep{
			name: "trash new standalone project",
			run: func(ctx context.Context) {
				if err := m.Drive.Trash(ctx, token, string(created.ScriptID)); err != nil {
					m.Logger.Info("failed to trash worktree project during rollback", "error", err)
				}
			},
		})
		return created.ScriptID, "", nil
	}

	copied, err := m.Drive.CopyFile(ctx, token, parentMeta.ParentID, title)
	if err != nil {
		return "", "", errs.Wrap(errs.KindAPI, "failed to copy parent container", err, nil)
	}
	*cleanup = append(*cleanup, cleanupStep{
		name: "trash copied container",
		run: func(ctx context.Context) {
			if err := m.Drive.Trash(ctx, token, copied.ID); err != nil {
				m.Logger.Info("failed to trash copied container during rollback", "error", err)
			}
		},
	})

	boundScriptID, err := m.Drive.FindBoundScript(ctx, token, copied.ID)
	if err != nil {
		return "", "", errs.Wrap(errs.KindAPI, "CONTAINER_COPY_FAILED: no bound script found in copied container", err,
			map[string]string{"errorCode": "CONTAINER_COPY_FAILED", "containerId": copied.ID})
	}
	return boundScriptID, copied.ID, nil
}

// ensureParentRepo guarantees a git repository exists at parentRepoPath,
// seeding it from the remote project's current content on first use.
func (m *Manager) ensureParentRepo(ctx context.Context, token string, parentScriptID types.ScriptID, parentRepoPath string) error {
	if _, err := os.Stat(filepath.Join(parentRepoPath, ".git")); err == nil {
		return nil
	}

	content, err := m.Script.GetProjectContent(ctx, token, parentScriptID)
	if err != nil {
		return errs.Wrap(errs.KindAPI, "failed to fetch parent content to seed local repository", err, nil)
	}
	if err := os.MkdirAll(parentRepoPath, 0o750); err != nil {
		return errs.Wrap(errs.KindAPI, "failed to create parent project directory", err, nil)
	}
	for _, f := range content {
		path := filepath.Join(parentRepoPath, pathresolve.LocalFilename(f.Name, f.Kind))
		if err := os.WriteFile(path, []byte(f.Source), 0o644); err != nil {
			return errs.Wrap(errs.KindAPI, "failed to seed local mirror file", err, nil)
		}
	}

	return m.Bridge.EnsureRepo(ctx, parentRepoPath)
}

// persistEntry records entry in the config document's worktree registry,
// keyed by the worktree project's scriptId.
func (m *Manager) persistEntry(entry types.WorktreeEntry) error {
	doc, err := m.Config.Load()
	if err != nil {
		return err
	}
	doc.Worktrees[string(entry.ScriptID)] = entry
	return m.Config.Save(doc)
}

// Claim transitions a READY worktree to CLAIMED by claimedBy. This is the
// only legal transition into CLAIMED; claiming an already
// claimed or abandoned entry fails.
func (m *Manager) Claim(ctx context.Context, scriptID types.ScriptID, claimedBy string) error {
	return m.Lock.WithLock(ctx, "worktree_claim", 0, func() error {
		doc, err := m.Config.Load()
		if err != nil {
			return err
		}
		entry, ok := doc.Worktrees[string(scriptID)]
		if !ok {
			return errs.New(errs.KindValidation, "no worktree registered for script id", map[string]string{"scriptId": string(scriptID)})
		}
		if entry.State != types.WorktreeReady {
			return errs.New(errs.KindValidation, fmt.Sprintf("worktree is %s, not READY", entry.State), nil)
		}
		now := time.Now().UTC()
		entry.State = types.WorktreeClaimed
		entry.ClaimedBy = claimedBy
		entry.ClaimedAt = &now
		doc.Worktrees[string(scriptID)] = entry
		return m.Config.Save(doc)
	})
}

// Release transitions a CLAIMED worktree back to READY.
func (m *Manager) Release(ctx context.Context, scriptID types.ScriptID) error {
	return m.Lock.WithLock(ctx, "worktree_release", 0, func() error {
		doc, err := m.Config.Load()
		if err != nil {
			return err
		}
		entry, ok := doc.Worktrees[string(scriptID)]
		if !ok {
			return errs.New(errs.KindValidation, "no worktree registered for script id", map[string]string{"scriptId": string(scriptID)})
		}
		if entry.State != types.WorktreeClaimed {
			return errs.New(errs.KindValidation, fmt.Sprintf("worktree is %s, not CLAIMED", entry.State), nil)
		}
		entry.State = types.WorktreeReady
		entry.ClaimedBy = ""
		entry.ClaimedAt = nil
		doc.Worktrees[string(scriptID)] = entry
		return m.Config.Save(doc)
	})
}

// List returns every registered worktree, lazily reclaiming any CLAIMED
// entry whose claim has outlived m.ClaimTTL back to READY first.
func (m *Manager) List(ctx context.Context) ([]types.WorktreeEntry, error) {
	var result []types.WorktreeEntry
	err := m.Lock.WithLock(ctx, "worktree_list", 0, func() error {
		doc, err := m.Config.Load()
		if err != nil {
			return err
		}
		now := time.Now().UTC()
		reclaimed := false
		for key, entry := range doc.Worktrees {
			if entry.ClaimExpired(m.ClaimTTL, now) {
				m.Logger.Info("reclaiming expired worktree claim", "scriptId", entry.ScriptID, "claimedBy", entry.ClaimedBy)
				entry.State = types.WorktreeReady
				entry.ClaimedBy = ""
				entry.ClaimedAt = nil
				doc.Worktrees[key] = entry
				reclaimed = true
			}
		}
		if reclaimed {
			if err := m.Config.Save(doc); err != nil {
				return err
			}
		}
		result = make([]types.WorktreeEntry, 0, len(doc.Worktrees))
		for _, entry := range doc.Worktrees {
			result = append(result, entry)
		}
		sort.Slice(result, func(i, j int) bool { return result[i].ScriptID < result[j].ScriptID })
		return nil
	})
	return result, err
}

// Remove cascades: it tears down the git worktree and its branch, trashes the worktree's GAS project and (if the
// worktree was container-bound) its copied container, then deletes the
// registry entry. Every teardown step is best-effort - a failure is
// logged and the next step still runs.
func (m *Manager) Remove(ctx context.Context, token string, scriptID types.ScriptID) error {
	err := m.Lock.WithLock(ctx, "worktree_remove", 0, func() error {
		doc, err := m.Config.Load()
		if err != nil {
			return err
		}
		entry, ok := doc.Worktrees[string(scriptID)]
		if !ok {
			return errs.New(errs.KindValidation, "no worktree registered for script id", map[string]string{"scriptId": string(scriptID)})
		}

		parentRepoPath := pathresolve.ProjectDir(m.LocalRoot, entry.ParentScriptID)
		if err := m.Bridge.WorktreeRemove(ctx, parentRepoPath, entry.LocalPath, entry.Branch); err != nil {
			m.Logger.Info("failed to remove git worktree", "error", err)
		}
		if err := m.Drive.Trash(ctx, token, string(entry.ScriptID)); err != nil {
			m.Logger.Info("failed to trash worktree project", "error", err)
		}
		if entry.ContainerID != "" {
			if err := m.Drive.Trash(ctx, token, entry.ContainerID); err != nil {
				m.Logger.Info("failed to trash worktree container", "error", err)
			}
		}

		delete(doc.Worktrees, string(scriptID))
		return m.Config.Save(doc)
	})
	if err == nil && m.Metrics != nil {
		obs.IncCounter(ctx, m.Metrics.WorktreeRemovals)
	}
	return err
}

// Abandon marks an entry ABANDONED in place, without tearing down its git
// worktree or remote project - for callers that want the registry to stop
// offering the worktree for claiming while leaving cleanup for a later
// explicit Remove.
func (m *Manager) Abandon(ctx context.Context, scriptID types.ScriptID) error {
	return m.Lock.WithLock(ctx, "worktree_abandon", 0, func() error {
		doc, err := m.Config.Load()
		if err != nil {
			return err
		}
		entry, ok := doc.Worktrees[string(scriptID)]
		if !ok {
			return errs.New(errs.KindValidation, "no worktree registered for script id", map[string]string{"scriptId": string(scriptID)})
		}
		entry.State = types.WorktreeAbandoned
		doc.Worktrees[string(scriptID)] = entry
		return m.Config.Save(doc)
	})
}

// generateBranchName sanitizes title into a "wt/"-prefixed slug and
// appends a short xxhash digest of a fresh UUID as a disambiguator, so
// concurrent adds for the same parent never collide on branch name.
func generateBranchName(title string) string {
	slug := sanitizeSlug(title)
	if slug == "" {
		slug = "worktree"
	}
	suffix := fmt.Sprintf("%x", xxhash.Sum64String(uuid.NewString()))[:8]
	return BranchPrefix + slug + "-" + suffix
}

func sanitizeSlug(s string) string {
	s = strings.ToLower(strings.TrimSpace(s))
	var b strings.Builder
	for _, r := range s {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			b.WriteRune(r)
		case r == '.' || r == '_' || r == '-' || r == ' ':
			b.WriteByte('-')
		}
	}
	slug := strings.Trim(b.String(), "-")
	for strings.Contains(slug, "--") {
		slug = strings.ReplaceAll(slug, "--", "-")
	}
	return slug
}

// readWorktreeFiles reads every mirrored file directly under dir and
// converts it back into the extension-less RemoteFile form GAS stores,
// skipping the repository metadata directory and the gitignore file.
func readWorktreeFiles(dir string) ([]types.RemoteFile, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].Name() < entries[j].Name() })

	var files []types.RemoteFile
	for _, de := range entries {
		if de.IsDir() || de.Name() == ".gitignore" {
			continue
		}
		kind, ok := kindForExtension(filepath.Ext(de.Name()))
		if !ok {
			continue
		}
		data, err := os.ReadFile(filepath.Join(dir, de.Name()))
		if err != nil {
			return nil, err
		}
		files = append(files, types.RemoteFile{
			Name:   pathresolve.RemoteName(de.Name(), kind),
			Kind:   kind,
			Source: string(data),
		})
	}
	return files, nil
}

func kindForExtension(ext string) (types.FileKind, bool) {
	switch ext {
	case ".gs":
		return types.FileKindServerJS, true
	case ".html":
		return types.FileKindHTML, true
	case ".json":
		return types.FileKindJSON, true
	default:
		return "", false
	}
}

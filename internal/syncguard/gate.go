package syncguard

import (
	"os"

	"github.com/gasdevtools/gas-sync/internal/errs"
	"github.com/gasdevtools/gas-sync/internal/hashutil"
	"github.com/gasdevtools/gas-sync/internal/types"
	"github.com/gasdevtools/gas-sync/internal/xattrmeta"
)

// GateInput is everything SyncGate.Check needs to decide whether an
// overwrite of an existing remote file may proceed.
type GateInput struct {
	LocalPath        string
	RemoteExists     bool
	RemoteContent    string
	AllowAbsentLocal bool // caller opted in to "writing to a file absent locally"
}

// SyncGate verifies that a project's local mirror is consistent with the
// remote before an overwrite is attempted - a cheaper, earlier check than
// ConflictDetector's per-write hash comparison, and the only place the
// MetadataCache fast path is consulted.
type SyncGate struct {
	cache *xattrmeta.Cache
}

// NewSyncGate builds a SyncGate backed by cache.
func NewSyncGate(cache *xattrmeta.Cache) *SyncGate {
	return &SyncGate{cache: cache}
}

// Check returns nil when the write may proceed, or a *errs.Error of kind
// SyncError carrying a *types.SyncDiagnostic when the local mirror is
// stale relative to the remote. It never touches remote or local state.
func (g *SyncGate) Check(in GateInput) error {
	if !in.RemoteExists {
		return nil // creating a brand-new remote file
	}

	_, statErr := os.Stat(in.LocalPath)
	localMissing := statErr != nil

	if localMissing {
		if in.AllowAbsentLocal {
			return nil
		}
		return g.deny(in, "", "", false, "", types.SyncMethodNoLocalFile,
			"local file is absent; download the current remote content first")
	}

	remoteHash := hashutil.ComputeString(in.RemoteContent)

	meta, cached := g.cache.Get(in.LocalPath)
	if cached && meta.ContentHash.Equal(remoteHash) {
		return nil
	}

	// A cache miss and a cache mismatch land here alike: the cache is an
	// optimization, never ground truth, so the decision always falls
	// through to the file's actual bytes.
	content, err := os.ReadFile(in.LocalPath)
	if err != nil {
		return g.deny(in, "", remoteHash, cached, meta.ContentHash, types.SyncMethodNoLocalFile,
			"local file could not be read; download latest first")
	}
	localHash := hashutil.Compute(content)
	if localHash.Equal(remoteHash) {
		return nil
	}
	return g.deny(in, localHash, remoteHash, cached, meta.ContentHash, types.SyncMethodHashMismatch,
		"download latest first")
}

func (g *SyncGate) deny(in GateInput, localHash, remoteHash types.ContentHash, xattrPresent bool, xattrHash types.ContentHash, method, hint string) error {
	diag := &types.SyncDiagnostic{
		LocalPath:       in.LocalPath,
		LocalHash:       localHash,
		RemoteHash:      remoteHash,
		XattrPresent:    xattrPresent,
		XattrHash:       xattrHash,
		Method:          method,
		RemediationHint: hint,
	}
	return errs.New(errs.KindSync, "local mirror is out of sync with remote",
		map[string]string{"localPath": in.LocalPath, "hint": hint}).WithDetail(diag)
}

package pipeline

import (
	"context"
	"os"
	"os/exec"
	"path/filepath"
	"testing"

	"github.com/go-logr/logr"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gasdevtools/gas-sync/internal/errs"
	"github.com/gasdevtools/gas-sync/internal/gitbridge"
	"github.com/gasdevtools/gas-sync/internal/hashutil"
	"github.com/gasdevtools/gas-sync/internal/remote"
	"github.com/gasdevtools/gas-sync/internal/types"
	"github.com/gasdevtools/gas-sync/internal/xattrmeta"
)

func requireGit(t *testing.T) {
	t.Helper()
	if _, err := exec.LookPath("git"); err != nil {
		t.Skip("git binary not available on PATH")
	}
}

const testScriptID = types.ScriptID("1abcdefghijklmnopqrstuvwxyz0123456789ABCD")

func newTestPipeline(t *testing.T) (*AtomicWritePipeline, *remote.Fake, string) {
	t.Helper()
	root := t.TempDir()
	fake := remote.NewFake()
	fake.Projects[testScriptID] = remote.ProjectMetadata{ScriptID: testScriptID}

	bridge := gitbridge.New(logr.Discard())
	p := New(fake, xattrmeta.NewCache(), bridge, logr.Discard())
	return p, fake, root
}

func TestAtomicWritePipeline_FirstWriteToEmptyProjectNoGit(t *testing.T) {
	p, fake, root := newTestPipeline(t)
	ctx := context.Background()

	result, err := p.Write(ctx, Input{
		ScriptID:    testScriptID,
		RawPath:     "Code",
		Kind:        types.FileKindServerJS,
		NewContent:  "function main(){}",
		ProjectRoot: root,
		Token:       "tok",
		Operation:   "write",
	})
	require.NoError(t, err)
	assert.Equal(t, hashutil.ComputeString("function main(){}"), result.NewHash)
	assert.Empty(t, result.Git.CommitHash)

	content, err := fake.GetProjectContent(ctx, "tok", testScriptID)
	require.NoError(t, err)
	require.Len(t, content, 1)
	assert.Equal(t, "function main(){}", content[0].Source)

	diskContent, err := os.ReadFile(filepath.Join(root, "Code.gs"))
	require.NoError(t, err)
	assert.Equal(t, "function main(){}", string(diskContent))
}

func TestAtomicWritePipeline_ConflictingBaselineIsRefused(t *testing.T) {
	p, fake, root := newTestPipeline(t)
	ctx := context.Background()

	require.NoError(t, fake.UpdateProjectContent(ctx, "tok", testScriptID, []types.RemoteFile{
		{Name: "Code", Kind: types.FileKindServerJS, Source: "function main(){ return 1; }"},
	}))

	_, err := p.Write(ctx, Input{
		ScriptID:     testScriptID,
		RawPath:      "Code",
		Kind:         types.FileKindServerJS,
		NewContent:   "function main(){ return 2; }",
		ExpectedHash: "0000000000000000000000000000000000000000",
		ProjectRoot:  root,
		Token:        "tok",
		Operation:    "write",
		AllowNewLocal: true,
	})
	require.Error(t, err)
	kind, ok := errs.KindOf(err)
	require.True(t, ok)
	assert.Equal(t, errs.KindConflict, kind)
}

func TestAtomicWritePipeline_ForceBypassesConflictAndSyncGate(t *testing.T) {
	p, fake, root := newTestPipeline(t)
	ctx := context.Background()

	require.NoError(t, fake.UpdateProjectContent(ctx, "tok", testScriptID, []types.RemoteFile{
		{Name: "Code", Kind: types.FileKindServerJS, Source: "function main(){ return 1; }"},
	}))

	result, err := p.Write(ctx, Input{
		ScriptID:     testScriptID,
		RawPath:      "Code",
		Kind:         types.FileKindServerJS,
		NewContent:   "function main(){ return 2; }",
		ExpectedHash: "0000000000000000000000000000000000000000",
		Force:        true,
		ProjectRoot:  root,
		Token:        "tok",
		Operation:    "write",
	})
	require.NoError(t, err)
	assert.NotEmpty(t, result.NewHash)
}

func TestAtomicWritePipeline_GitAwareWriteCommitsThroughHooks(t *testing.T) {
	requireGit(t)
	p, _, root := newTestPipeline(t)
	ctx := context.Background()

	require.NoError(t, p.Bridge.EnsureRepo(ctx, root))

	result, err := p.Write(ctx, Input{
		ScriptID:    testScriptID,
		RawPath:     "Code",
		Kind:        types.FileKindServerJS,
		NewContent:  "function main(){}",
		ProjectRoot: root,
		Token:       "tok",
		Operation:   "write",
	})
	require.NoError(t, err)
	assert.NotEmpty(t, result.Git.CommitHash)
	assert.True(t, result.Git.BranchAutoCreated)
	assert.Contains(t, result.Git.Branch, "wt/")
}

// failingUpdateClient wraps a *remote.Fake but always fails UpdateFile, to
// exercise the pipeline's rollback-on-remote-failure step.
type failingUpdateClient struct {
	*remote.Fake
}

func (f *failingUpdateClient) UpdateFile(ctx context.Context, token string, scriptID types.ScriptID, file types.RemoteFile) (types.RemoteFile, error) {
	return types.RemoteFile{}, errs.New(errs.KindAPI, "simulated remote outage", nil)
}

func TestAtomicWritePipeline_RollsBackCommitOnRemotePushFailure(t *testing.T) {
	requireGit(t)
	p, fake, root := newTestPipeline(t)
	ctx := context.Background()

	require.NoError(t, p.Bridge.EnsureRepo(ctx, root))
	p.Script = &failingUpdateClient{Fake: fake}

	_, err := p.Write(ctx, Input{
		ScriptID:    testScriptID,
		RawPath:     "Code",
		Kind:        types.FileKindServerJS,
		NewContent:  "function main(){}",
		ProjectRoot: root,
		Token:       "tok",
		Operation:   "write",
	})
	require.Error(t, err)
	kind, ok := errs.KindOf(err)
	require.True(t, ok)
	assert.Equal(t, errs.KindRemotePush, kind)

	// the revert should have restored Code.gs to its pre-write absence
	_, statErr := os.Stat(filepath.Join(root, "Code.gs"))
	assert.True(t, os.IsNotExist(statErr))
}

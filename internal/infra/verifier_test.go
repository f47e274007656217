package infra

import (
	"context"
	"testing"

	"github.com/go-logr/logr"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gasdevtools/gas-sync/internal/errs"
	"github.com/gasdevtools/gas-sync/internal/remote"
	"github.com/gasdevtools/gas-sync/internal/types"
)

const testScriptID = types.ScriptID("1abcdefghijklmnopqrstuvwxyz0123456789ABCD")

func newFakeWithCanonicalHelpers(t *testing.T) *remote.Fake {
	t.Helper()
	fake := remote.NewFake()
	fake.Projects[testScriptID] = remote.ProjectMetadata{ScriptID: testScriptID}
	files := make([]types.RemoteFile, 0, len(Helpers))
	for _, h := range Helpers {
		files = append(files, types.RemoteFile{Name: h.Name, Kind: h.Kind, Source: h.Content})
	}
	require.NoError(t, fake.UpdateProjectContent(context.Background(), "tok", testScriptID, files))
	return fake
}

func TestVerifier_StrictPassesWhenCanonical(t *testing.T) {
	fake := newFakeWithCanonicalHelpers(t)
	v := New(fake, logr.Discard())
	require.NoError(t, v.Strict(context.Background(), "tok", testScriptID))
}

func TestVerifier_StrictFailsOnMismatch(t *testing.T) {
	fake := newFakeWithCanonicalHelpers(t)
	require.NoError(t, fake.UpdateProjectContent(context.Background(), "tok", testScriptID, []types.RemoteFile{
		{Name: "CommonJS", Kind: types.FileKindServerJS, Source: "// tampered"},
		{Name: "__mcp_exec", Kind: types.FileKindServerJS, Source: Helpers[1].Content},
	}))

	v := New(fake, logr.Discard())
	err := v.Strict(context.Background(), "tok", testScriptID)
	require.Error(t, err)
	kind, ok := errs.KindOf(err)
	require.True(t, ok)
	assert.Equal(t, errs.KindValidation, kind)
}

func TestVerifier_WarnReportsWithoutModifying(t *testing.T) {
	fake := remote.NewFake()
	fake.Projects[testScriptID] = remote.ProjectMetadata{ScriptID: testScriptID}
	require.NoError(t, fake.UpdateProjectContent(context.Background(), "tok", testScriptID, []types.RemoteFile{
		{Name: "CommonJS", Kind: types.FileKindServerJS, Source: "// tampered"},
	}))

	v := New(fake, logr.Discard())
	warnings, err := v.Warn(context.Background(), "tok", testScriptID)
	require.NoError(t, err)
	require.Len(t, warnings, 2)

	content, err := fake.GetProjectContent(context.Background(), "tok", testScriptID)
	require.NoError(t, err)
	file, _ := findRemoteFile(content, "CommonJS")
	assert.Equal(t, "// tampered", file.Source)
}

func TestVerifier_RepairReinstallsCanonicalContent(t *testing.T) {
	fake := remote.NewFake()
	fake.Projects[testScriptID] = remote.ProjectMetadata{ScriptID: testScriptID}
	require.NoError(t, fake.UpdateProjectContent(context.Background(), "tok", testScriptID, []types.RemoteFile{
		{Name: "CommonJS", Kind: types.FileKindServerJS, Source: "// tampered"},
	}))

	v := New(fake, logr.Discard())
	warnings, err := v.Repair(context.Background(), "tok", testScriptID)
	require.NoError(t, err)
	require.Len(t, warnings, 2)

	content, err := fake.GetProjectContent(context.Background(), "tok", testScriptID)
	require.NoError(t, err)

	commonJS, ok := findRemoteFile(content, "CommonJS")
	require.True(t, ok)
	assert.Equal(t, Helpers[0].Content, commonJS.Source)

	shim, ok := findRemoteFile(content, "__mcp_exec")
	require.True(t, ok)
	assert.Equal(t, Helpers[1].Content, shim.Source)
}

func findRemoteFile(files []types.RemoteFile, name string) (types.RemoteFile, bool) {
	for _, f := range files {
		if f.Name == name {
			return f, true
		}
	}
	return types.RemoteFile{}, false
}

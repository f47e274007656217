package remote

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gasdevtools/gas-sync/internal/types"
)

func TestFake_UpdateFileReplacesExistingByName(t *testing.T) {
	f := NewFake()
	ctx := context.Background()
	scriptID := types.ScriptID("1abcdefghijklmnopqrstuvwxyz0123456789ABCD")

	require.NoError(t, f.UpdateProjectContent(ctx, "tok", scriptID, []types.RemoteFile{
		{Name: "Code", Kind: types.FileKindServerJS, Source: "v1"},
	}))

	updated, err := f.UpdateFile(ctx, "tok", scriptID, types.RemoteFile{Name: "Code", Kind: types.FileKindServerJS, Source: "v2"})
	require.NoError(t, err)
	assert.Equal(t, "v2", updated.Source)

	content, err := f.GetProjectContent(ctx, "tok", scriptID)
	require.NoError(t, err)
	require.Len(t, content, 1)
	assert.Equal(t, "v2", content[0].Source)
}

func TestFake_DeploymentLifecycle(t *testing.T) {
	f := NewFake()
	ctx := context.Background()
	scriptID := types.ScriptID("1abcdefghijklmnopqrstuvwxyz0123456789ABCD")

	d, err := f.CreateDeployment(ctx, "tok", scriptID, nil, "[DEV] initial")
	require.NoError(t, err)
	assert.NotEmpty(t, d.DeploymentID)
	assert.NotEmpty(t, d.WebAppURL)

	v := 3
	updated, err := f.UpdateDeployment(ctx, "tok", scriptID, d.DeploymentID, &v, "")
	require.NoError(t, err)
	require.NotNil(t, updated.VersionNumber)
	assert.Equal(t, 3, *updated.VersionNumber)

	require.NoError(t, f.DeleteDeployment(ctx, "tok", scriptID, d.DeploymentID))
	list, err := f.ListDeployments(ctx, "tok", scriptID)
	require.NoError(t, err)
	assert.Empty(t, list)
}

func TestFake_CopyFileAndFindBoundScript(t *testing.T) {
	f := NewFake()
	ctx := context.Background()
	f.DriveFiles["sheet-1"] = DriveFile{ID: "sheet-1", Name: "Budget", Kind: DriveEntitySpreadsheet}

	copied, err := f.CopyFile(ctx, "tok", "sheet-1", "Budget (copy)")
	require.NoError(t, err)
	assert.Equal(t, DriveEntitySpreadsheet, copied.Kind)
	assert.Equal(t, types.ContainerSheets, copied.Kind.ContainerType())

	bound := types.ScriptID("1abcdefghijklmnopqrstuvwxyz0123456789ABCD")
	f.Projects[bound] = ProjectMetadata{ScriptID: bound, ParentID: copied.ID}

	found, err := f.FindBoundScript(ctx, "tok", copied.ID)
	require.NoError(t, err)
	assert.Equal(t, bound, found)
}

func TestHTTPScriptClient_ConstructsWithoutError(t *testing.T) {
	c := NewHTTPScriptClient()
	assert.NotNil(t, c)
	d := NewHTTPDriveClient()
	assert.NotNil(t, d)
}

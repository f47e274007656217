package pathresolve

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/gasdevtools/gas-sync/internal/errs"
	"github.com/gasdevtools/gas-sync/internal/types"
)

const defaultID = types.ScriptID("1abcdefghijklmnopqrstuvwxyz0123456789ABCD")
const embeddedID = types.ScriptID("1ZZZZZghijklmnopqrstuvwxyz0123456789ABCDE")

func TestResolve_BarePath(t *testing.T) {
	got := Resolve("Code.gs", defaultID)
	assert.Equal(t, defaultID, got.ScriptID)
	assert.Equal(t, "Code.gs", got.Path)
}

func TestResolve_EmbeddedScriptID(t *testing.T) {
	raw := string(embeddedID) + "/src/Utils.gs"
	got := Resolve(raw, defaultID)
	assert.Equal(t, embeddedID, got.ScriptID)
	assert.Equal(t, "src/Utils.gs", got.Path)
}

func TestResolve_FirstSegmentNotAScriptID(t *testing.T) {
	got := Resolve("src/Utils.gs", defaultID)
	assert.Equal(t, defaultID, got.ScriptID)
	assert.Equal(t, "src/Utils.gs", got.Path)
}

func TestLocalFilename_RemoteName_RoundTrip(t *testing.T) {
	local := LocalFilename("Code", types.FileKindServerJS)
	assert.Equal(t, "Code.gs", local)
	assert.Equal(t, "Code", RemoteName(local, types.FileKindServerJS))
}

func TestFileNameMatches(t *testing.T) {
	assert.True(t, FileNameMatches("Code", "Code.gs"))
	assert.True(t, FileNameMatches("Code", "Code"))
	assert.False(t, FileNameMatches("Code", "Other.gs"))
	assert.True(t, FileNameMatches("appsscript", "Appsscript.json"))
	assert.True(t, FileNameMatches("appsscript", "APPSSCRIPT"))
}

func TestValidateManifestLocation(t *testing.T) {
	assert.NoError(t, ValidateManifestLocation("appsscript", "appsscript.json"))
	assert.NoError(t, ValidateManifestLocation("Code", "sub/Code.gs"))

	err := ValidateManifestLocation("appsscript", "sub/appsscript.json")
	require := assert.New(t)
	require.Error(err)
	kind, ok := errs.KindOf(err)
	require.True(ok)
	require.Equal(errs.KindValidation, kind)
}

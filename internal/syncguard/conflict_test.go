package syncguard

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gasdevtools/gas-sync/internal/errs"
	"github.com/gasdevtools/gas-sync/internal/hashutil"
	"github.com/gasdevtools/gas-sync/internal/types"
)

func TestConflictDetector_ForceAlwaysAllows(t *testing.T) {
	d := NewConflictDetector()
	err := d.Check(DetectInput{
		Force:                true,
		ExpectedHash:         "deadbeef",
		CurrentRemoteContent: "completely different",
	})
	assert.NoError(t, err)
}

func TestConflictDetector_NoExpectedHashAllowsFirstWrite(t *testing.T) {
	d := NewConflictDetector()
	err := d.Check(DetectInput{CurrentRemoteContent: "anything"})
	assert.NoError(t, err)
}

func TestConflictDetector_MatchingHashAllows(t *testing.T) {
	content := "function f() { return 1; }"
	d := NewConflictDetector()
	err := d.Check(DetectInput{
		ExpectedHash:         hashutil.ComputeString(content),
		CurrentRemoteContent: content,
	})
	assert.NoError(t, err)
}

func TestConflictDetector_MismatchRaisesConflictError(t *testing.T) {
	d := NewConflictDetector()
	err := d.Check(DetectInput{
		ScriptID:             "1abcdefghijklmnopqrstuvwxyz0123456789ABCD",
		Filename:             "Code",
		Operation:            "write",
		ExpectedHash:         "0000000000000000000000000000000000000000",
		CurrentRemoteContent: "function f() { return 2; }",
	})
	require.Error(t, err)

	kind, ok := errs.KindOf(err)
	require.True(t, ok)
	assert.Equal(t, errs.KindConflict, kind)

	var e *errs.Error
	require.ErrorAs(t, err, &e)
	report, ok := e.Detail.(*types.ConflictReport)
	require.True(t, ok)
	assert.Equal(t, "Code", report.Filename)
	assert.NotEmpty(t, report.Diff.Content)
}

func TestConflictDetector_DiffTruncation(t *testing.T) {
	d := NewConflictDetector()
	huge := strings.Repeat("line of content\n", 5000)
	err := d.Check(DetectInput{
		Filename:             "Big",
		ExpectedHash:         "0000000000000000000000000000000000000000",
		CurrentRemoteContent: huge,
	})
	require.Error(t, err)

	var e *errs.Error
	require.ErrorAs(t, err, &e)
	report := e.Detail.(*types.ConflictReport)
	assert.True(t, report.Diff.Truncated)
	assert.LessOrEqual(t, len(report.Diff.Content), maxDiffChars)
	assert.Contains(t, report.Diff.TruncatedMessage, "truncated")
}

func TestConflictDetector_NeverMutatesInput(t *testing.T) {
	d := NewConflictDetector()
	in := DetectInput{
		ExpectedHash:         "0000000000000000000000000000000000000000",
		CurrentRemoteContent: "original",
	}
	_ = d.Check(in)
	assert.Equal(t, "original", in.CurrentRemoteContent)
}

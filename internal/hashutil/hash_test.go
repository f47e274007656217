package hashutil

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/gasdevtools/gas-sync/internal/types"
)

func TestCompute_Stable(t *testing.T) {
	content := []byte("function doGet() {\n  return 1;\n}\n")
	a := Compute(content)
	b := Compute(content)
	assert.Equal(t, a, b)
	assert.Len(t, string(a), 40)
}

func TestCompute_MatchesGitHashObject(t *testing.T) {
	// Known value: `git hash-object` of a file containing "hello\n".
	got := Compute([]byte("hello\n"))
	assert.Equal(t, types.ContentHash("ce013625030ba8dba906f756967f9e9ca394464a"), got)
}

func TestCompute_EmptyContent(t *testing.T) {
	got := Compute(nil)
	assert.Equal(t, types.ContentHash("e69de29bb2d1d6434b8b29ae775ad8c2e48c5391"), got)
}

func TestCompute_DiffersOnContentChange(t *testing.T) {
	a := Compute([]byte("version 1"))
	b := Compute([]byte("version 2"))
	assert.False(t, a.Equal(b))
}

func TestEqual_CaseInsensitive(t *testing.T) {
	a := types.ContentHash("ABCDEF0123456789abcdef0123456789abcdef01")
	b := types.ContentHash("abcdef0123456789abcdef0123456789abcdef01")
	assert.True(t, Equal(a, b))
}

func TestComputeString_MatchesCompute(t *testing.T) {
	s := "some source text"
	assert.Equal(t, Compute([]byte(s)), ComputeString(s))
}

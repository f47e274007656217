package module

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gasdevtools/gas-sync/internal/types"
)

func TestShouldWrap(t *testing.T) {
	assert.True(t, ShouldWrap(types.FileKindServerJS, "Code"))
	assert.False(t, ShouldWrap(types.FileKindServerJS, "appsscript"))
	assert.False(t, ShouldWrap(types.FileKindServerJS, "Appsscript"))
	assert.False(t, ShouldWrap(types.FileKindHTML, "Index"))
	assert.False(t, ShouldWrap(types.FileKindJSON, "appsscript"))
}

func TestUnwrap_NoWrapperReturnsOriginal(t *testing.T) {
	got := Unwrap("function doGet() { return 1; }\n")
	assert.False(t, got.WasWrapped)
	assert.Equal(t, "function doGet() { return 1; }\n", got.Inner)
}

func TestWrapUnwrap_RoundTrip(t *testing.T) {
	cases := []struct {
		name  string
		inner string
		opts  ModuleOptions
	}{
		{"no options", "function f() {}", ModuleOptions{}},
		{"trailing newline preserved", "function f() {}\n", ModuleOptions{}},
		{"body ending in closing brace", "function g() {\n  return 2;\n}", ModuleOptions{}},
		{"loadNow true", "exports.f = function() {};", ModuleOptions{LoadNowSet: true, LoadNow: true}},
		{"loadNow false", "var x = 1;", ModuleOptions{LoadNowSet: true, LoadNow: false}},
		{"trailing newline with loadNow", "var y = 2;\n", ModuleOptions{LoadNowSet: true, LoadNow: true}},
		{
			"hoisted functions",
			"function inner() {}",
			ModuleOptions{HoistedFunctions: "function hoisted() {\n  return 2;\n}"},
		},
		{
			"events",
			"function inner() {}",
			ModuleOptions{Events: `{"onOpen":"menuHandler"}`},
		},
		{
			"all options combined",
			"module.exports = { run: run };\nfunction run() {}",
			ModuleOptions{
				LoadNowSet:       true,
				LoadNow:          true,
				HoistedFunctions: "function hoisted() {}",
				Events:           `{"onEdit":"handler"}`,
			},
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			wrapped := Wrap(tc.inner, "Code", tc.opts)
			got := Unwrap(wrapped)
			require.True(t, got.WasWrapped)
			assert.Equal(t, tc.inner, got.Inner)
			assert.Equal(t, tc.opts, got.ModuleOptions)
		})
	}
}

func TestWrap_PreservesWrapperShape(t *testing.T) {
	wrapped := Wrap("return 1;", "Code", ModuleOptions{LoadNowSet: true, LoadNow: true})
	assert.Contains(t, wrapped, "__defineModule__(function _main(module, exports, require) {\n")
	assert.Contains(t, wrapped, "}, true);\n")
}

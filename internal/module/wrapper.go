// Package module implements the CommonJS envelope this system injects
// around every editable SERVER_JS file. Agents only ever see and edit the
// unwrapped inner body; the
// wrapper itself, the hoisted-function block, and the serialized event
// bindings are plumbing that must round-trip untouched through every
// edit.
package module

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/gasdevtools/gas-sync/internal/types"
)

const (
	wrapperOpen = "__defineModule__(function _main(module, exports, require) {\n"

	hoistedStartMarker = "// HOISTED CUSTOM FUNCTIONS START\n"
	hoistedEndMarker   = "// HOISTED CUSTOM FUNCTIONS END\n"
	eventsStartMarker  = "// __events__\n"
	eventsEndMarker    = "// __events__ END\n"

	appsscriptManifestName = "appsscript"
)

// wrapperPattern matches the fixed `__defineModule__` call and captures the
// inner body, the optional `loadNow` literal, and everything appended after
// the call (the hoisted-function and event blocks).
var wrapperPattern = regexp.MustCompile(`(?s)^__defineModule__\(function _main\(module, exports, require\) \{\n(.*?)\n\}(?:, (true|false))?\);\n(.*)$`)

// ModuleOptions is everything about a wrap that must survive an
// unwrap/edit/rewrap round trip besides the inner body itself.
type ModuleOptions struct {
	LoadNowSet       bool // whether the trailing loadNow argument was present at all
	LoadNow          bool
	HoistedFunctions string // verbatim contents of the HOISTED CUSTOM FUNCTIONS block, "" if absent
	Events           string // verbatim contents of the __events__ block, "" if absent
}

// Unwrapped is the result of peeling the wrapper off a stored file.
type Unwrapped struct {
	Inner         string
	ModuleOptions ModuleOptions
	WasWrapped    bool
}

// ShouldWrap reports whether a file of the given kind and stored name is
// eligible for the CommonJS wrapper: only SERVER_JS files, and never the
// appsscript manifest.
func ShouldWrap(kind types.FileKind, filename string) bool {
	if kind != types.FileKindServerJS {
		return false
	}
	return !strings.EqualFold(filename, appsscriptManifestName)
}

// Unwrap recovers the user-editable body and module options from stored
// content. If content does not carry the exact wrapper shape, it is
// returned unchanged as Inner with WasWrapped=false.
func Unwrap(content string) Unwrapped {
	m := wrapperPattern.FindStringSubmatch(content)
	if m == nil {
		return Unwrapped{Inner: content, WasWrapped: false}
	}

	inner, loadNowLiteral, tail := m[1], m[2], m[3]

	opts := ModuleOptions{}
	if loadNowLiteral != "" {
		opts.LoadNowSet = true
		opts.LoadNow = loadNowLiteral == "true"
	}
	opts.HoistedFunctions = extractBlock(tail, hoistedStartMarker, hoistedEndMarker)
	opts.Events = extractBlock(tail, eventsStartMarker, eventsEndMarker)

	return Unwrapped{Inner: inner, ModuleOptions: opts, WasWrapped: true}
}

// extractBlock returns the verbatim content between a pair of markers in s,
// or "" if the markers are not both present. writeBlock always appends
// exactly one newline after the content before the end marker, regardless
// of whether the content already ended in one, so extractBlock always
// strips exactly one trailing newline to invert it precisely.
func extractBlock(s, start, end string) string {
	i := strings.Index(s, start)
	if i < 0 {
		return ""
	}
	rest := s[i+len(start):]
	j := strings.Index(rest, end)
	if j < 0 {
		return ""
	}
	return strings.TrimSuffix(rest[:j], "\n")
}

// Wrap applies the CommonJS envelope to inner, preserving opts' loadNow
// flag, hoisted-function block, and event block exactly as given. filename
// does not affect the wrapper shape: the injected module id is derived
// entirely from the file's position in the project, which is outside this
// package's concern.
//
// Exactly one separator newline is always appended between inner and the
// closing brace, whether or not inner already ends in one. That separator
// is the `\n}` wrapperPattern anchors on, so Unwrap gives back inner
// byte-for-byte - including any trailing newline of its own.
func Wrap(inner string, filename string, opts ModuleOptions) string {
	var b strings.Builder
	b.WriteString(wrapperOpen)
	b.WriteString(inner)
	b.WriteByte('\n')
	b.WriteByte('}')
	if opts.LoadNowSet {
		fmt.Fprintf(&b, ", %t", opts.LoadNow)
	}
	b.WriteString(");\n")

	if opts.HoistedFunctions != "" {
		writeBlock(&b, hoistedStartMarker, hoistedEndMarker, opts.HoistedFunctions)
	}
	if opts.Events != "" {
		writeBlock(&b, eventsStartMarker, eventsEndMarker, opts.Events)
	}
	return b.String()
}

// writeBlock always appends exactly one newline after content, regardless
// of whether content already ends in one - see extractBlock.
func writeBlock(b *strings.Builder, start, end, content string) {
	b.WriteString(start)
	b.WriteString(content)
	b.WriteByte('\n')
	b.WriteString(end)
}

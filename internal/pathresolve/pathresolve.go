// Package pathresolve parses the hybrid path shape every tool-facing
// operation accepts: either "<scriptId>/<path>" or a bare "<path>" that
// falls back to a caller-supplied default script id.
package pathresolve

import (
	"path"
	"path/filepath"
	"strings"

	"github.com/gasdevtools/gas-sync/internal/errs"
	"github.com/gasdevtools/gas-sync/internal/types"
)

const manifestStem = "appsscript"

// ProjectDir builds the local mirror directory for scriptID under
// localRoot: "<localRoot>/project-<scriptId>".
func ProjectDir(localRoot string, scriptID types.ScriptID) string {
	return filepath.Join(localRoot, "project-"+string(scriptID))
}

// Resolved is the outcome of parsing a hybrid path.
type Resolved struct {
	ScriptID types.ScriptID
	Path     string
}

// Resolve parses raw against defaultScriptID. If raw's first path segment
// is a syntactically valid ScriptID, it overrides defaultScriptID;
// otherwise the whole of raw is treated as the path and defaultScriptID is
// used unchanged.
func Resolve(raw string, defaultScriptID types.ScriptID) Resolved {
	raw = strings.TrimPrefix(raw, "/")
	first, rest, hasSlash := strings.Cut(raw, "/")

	if hasSlash {
		if candidate, err := types.ParseScriptID(first); err == nil {
			return Resolved{ScriptID: candidate, Path: rest}
		}
	}
	return Resolved{ScriptID: defaultScriptID, Path: raw}
}

// ExtensionFor returns the on-disk extension (including the leading dot)
// conventionally appended to a file of the given kind.
func ExtensionFor(kind types.FileKind) string {
	return kind.Extension()
}

// LocalFilename builds the on-disk filename for a remote file: its stored
// name with kind's extension appended.
func LocalFilename(storedName string, kind types.FileKind) string {
	return storedName + kind.Extension()
}

// RemoteName strips a known kind extension off a local filename to recover
// the name under which GAS stores the file remotely (which never carries an
// extension).
func RemoteName(localFilename string, kind types.FileKind) string {
	return strings.TrimSuffix(localFilename, kind.Extension())
}

// FileNameMatches reports whether stored (the remote, extension-less name)
// and requested (an on-disk or user-typed name, which may carry an
// extension) refer to the same file. The comparison is extension-agnostic
// and, for the appsscript manifest specifically, case-insensitive - GAS
// treats the manifest name itself as case-insensitive but all other files
// as case-sensitive.
func FileNameMatches(stored, requested string) bool {
	base := strings.TrimSuffix(path.Base(requested), path.Ext(requested))
	if strings.EqualFold(stored, manifestStem) && strings.EqualFold(base, manifestStem) {
		return true
	}
	return stored == base
}

// ValidateManifestLocation enforces the manifest placement rule: a file
// named "appsscript" (case-insensitive) must live at the project root. rel
// is the file's path relative to the project root, using "/" separators.
func ValidateManifestLocation(stored string, rel string) error {
	if !strings.EqualFold(stored, manifestStem) {
		return nil
	}
	if strings.Contains(rel, "/") {
		return errs.New(errs.KindValidation,
			"the appsscript manifest must live at the project root",
			map[string]string{"path": rel})
	}
	return nil
}

// Package types holds the plain data model shared across the control plane:
// script identifiers, remote/local file records, content hashes, deployment
// and worktree records, and the structured conflict report. None of these
// types carry behavior beyond validation and equality - they are the nouns
// the rest of the packages operate on.
package types

import (
	"fmt"
	"regexp"
)

// scriptIDPattern matches the opaque identifiers Drive issues for Apps
// Script projects: 25 to 60 characters of letters, digits, underscore and
// hyphen.
var scriptIDPattern = regexp.MustCompile(`^[A-Za-z0-9_-]{25,60}$`)

// ScriptID is an opaque, immutable identifier for a remote GAS project.
type ScriptID string

// Valid reports whether s has the shape Drive issues for script IDs.
func (s ScriptID) Valid() bool {
	return scriptIDPattern.MatchString(string(s))
}

// ParseScriptID validates and returns s as a ScriptID.
func ParseScriptID(s string) (ScriptID, error) {
	id := ScriptID(s)
	if !id.Valid() {
		return "", fmt.Errorf("invalid script id %q: must match %s", s, scriptIDPattern.String())
	}
	return id, nil
}

func (s ScriptID) String() string { return string(s) }

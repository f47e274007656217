package types

import "time"

// FileKind enumerates the remote file kinds a GAS project can hold.
type FileKind string

const (
	FileKindServerJS FileKind = "SERVER_JS"
	FileKindHTML     FileKind = "HTML"
	FileKindJSON     FileKind = "JSON"
)

// Extension returns the local-disk extension for k, or "" if k is unknown.
func (k FileKind) Extension() string {
	switch k {
	case FileKindServerJS:
		return ".gs"
	case FileKindHTML:
		return ".html"
	case FileKindJSON:
		return ".json"
	default:
		return ""
	}
}

// RemoteFile is the remote representation of a single file in a GAS
// project. The pair (ScriptID, Name) is its key; Source is always the
// exact bytes stored remotely (wrapped form, for SERVER_JS files that
// carry a CommonJS envelope).
type RemoteFile struct {
	ScriptID   ScriptID
	Name       string
	Kind       FileKind
	Source     string
	UpdateTime *time.Time
}

// LocalFileMeta is the extended-attribute payload MetadataCache attaches to
// a mirrored local file.
type LocalFileMeta struct {
	RemoteUpdateTime time.Time
	FileKind         FileKind
	ContentHash      ContentHash
}

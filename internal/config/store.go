// Package config implements the single on-disk JSON document this tool
// keeps between invocations - OAuth credentials, the project catalog, the
// current-project pointer, the local mirror root, server metadata, and the
// worktree registry - plus the cross-process exclusive lock that
// serializes writes to it.
package config

import (
	"encoding/json"
	"errors"
	"os"
	"path/filepath"

	"github.com/gasdevtools/gas-sync/internal/errs"
	"github.com/gasdevtools/gas-sync/internal/types"
)

const backupSuffix = ".bak"

// Store reads and writes the config document at a fixed path using a
// tmp-file-then-rename pattern, preserving the prior version as a sibling
// ".bak" snapshot before every write.
type Store struct {
	path string
}

// NewStore builds a Store for the document at path.
func NewStore(path string) *Store {
	return &Store{path: path}
}

// Path returns the config document's location.
func (s *Store) Path() string { return s.path }

// Load reads the config document. A missing file is not an error - it
// returns a fresh empty Document, the state before first use. A corrupt
// primary transparently falls back to the ".bak" snapshot.
func (s *Store) Load() (*Document, error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return NewDocument(), nil
		}
		return nil, errs.Wrap(errs.KindSync, "failed to read config store", err, nil)
	}

	var doc Document
	if err := json.Unmarshal(data, &doc); err != nil {
		recovered, bakErr := s.loadBackup()
		if bakErr != nil {
			return nil, errs.Wrap(errs.KindCriticalRecover,
				"config store primary is corrupt and no usable backup exists", err, nil)
		}
		return recovered, nil
	}
	normalize(&doc)
	return &doc, nil
}

func normalize(doc *Document) {
	if doc.Projects == nil {
		doc.Projects = make(map[string]types.ProjectRegistryEntry)
	}
	if doc.ServerMetadata == nil {
		doc.ServerMetadata = make(map[string]string)
	}
	if doc.Worktrees == nil {
		doc.Worktrees = make(map[string]types.WorktreeEntry)
	}
}

func (s *Store) loadBackup() (*Document, error) {
	data, err := os.ReadFile(s.path + backupSuffix)
	if err != nil {
		return nil, err
	}
	var doc Document
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, err
	}
	normalize(&doc)
	return &doc, nil
}

// Save writes doc to the config document's path. The prior primary
// contents (if any) are snapshotted to ".bak" before the new content is
// written via a temp-file-then-rename so a crash mid-write never leaves a
// half-written primary.
func (s *Store) Save(doc *Document) error {
	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return errs.Wrap(errs.KindSync, "failed to marshal config document", err, nil)
	}

	if prior, err := os.ReadFile(s.path); err == nil {
		if err := os.WriteFile(s.path+backupSuffix, prior, 0o600); err != nil {
			return errs.Wrap(errs.KindSync, "failed to snapshot prior config to .bak", err, nil)
		}
	} else if !errors.Is(err, os.ErrNotExist) {
		return errs.Wrap(errs.KindSync, "failed to read prior config for snapshot", err, nil)
	}

	dir := filepath.Dir(s.path)
	tmp, err := os.CreateTemp(dir, ".gas-sync-config-*.tmp")
	if err != nil {
		return errs.Wrap(errs.KindSync, "failed to create temp config file", err, nil)
	}
	tmpPath := tmp.Name()
	defer os.Remove(tmpPath) // no-op once renamed away

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return errs.Wrap(errs.KindSync, "failed to write temp config file", err, nil)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return errs.Wrap(errs.KindSync, "failed to fsync temp config file", err, nil)
	}
	if err := tmp.Close(); err != nil {
		return errs.Wrap(errs.KindSync, "failed to close temp config file", err, nil)
	}

	if err := os.Rename(tmpPath, s.path); err != nil {
		return errs.Wrap(errs.KindSync, "failed to install new config file", err, nil)
	}
	return nil
}

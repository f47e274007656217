// Package infra verifies the injected infrastructure files: every
// project is expected to carry two injected helper files - a CommonJS
// module loader and an __mcp_exec execution shim - whose canonical
// content is embedded in this binary. Three call-site tiers apply: strict
// (fail project creation on mismatch), warn (report but never touch
// existing content), and repair (reinstall the canonical bytes).
package infra

import (
	"context"
	"embed"
	"strconv"

	"github.com/go-logr/logr"

	"github.com/gasdevtools/gas-sync/internal/errs"
	"github.com/gasdevtools/gas-sync/internal/hashutil"
	"github.com/gasdevtools/gas-sync/internal/remote"
	"github.com/gasdevtools/gas-sync/internal/types"
)

//go:embed canonical/CommonJS.gs canonical/__mcp_exec.gs
var canonicalFS embed.FS

// HelperFile names one of the injected helpers and the canonical content
// it must carry.
type HelperFile struct {
	Name    string
	Kind    types.FileKind
	Content string
	Hash    types.ContentHash
}

// Helpers is the fixed set of injected infrastructure files, loaded once
// from the embedded canonical sources.
var Helpers = mustLoadHelpers()

func mustLoadHelpers() []HelperFile {
	specs := []struct {
		name string
		file string
	}{
		{name: "CommonJS", file: "canonical/CommonJS.gs"},
		{name: "__mcp_exec", file: "canonical/__mcp_exec.gs"},
	}

	helpers := make([]HelperFile, 0, len(specs))
	for _, s := range specs {
		raw, err := canonicalFS.ReadFile(s.file)
		if err != nil {
			panic("infra: embedded canonical helper missing: " + s.file)
		}
		content := string(raw)
		helpers = append(helpers, HelperFile{
			Name:    s.name,
			Kind:    types.FileKindServerJS,
			Content: content,
			Hash:    hashutil.ComputeString(content),
		})
	}
	return helpers
}

// VerificationWarning reports a single helper's drift from its canonical
// content, surfaced by the warn and repair tiers.
type VerificationWarning struct {
	File     string
	Expected types.ContentHash
	Actual   types.ContentHash
	Missing  bool
}

// Verifier implements the three-tier infrastructure verification policy.
type Verifier struct {
	Script remote.ScriptClient
	Logger logr.Logger
}

// New builds a Verifier over script.
func New(script remote.ScriptClient, logger logr.Logger) *Verifier {
	return &Verifier{Script: script, Logger: logger}
}

// Strict re-fetches scriptID's content after it has supposedly already
// been written with the canonical helpers, and fails with KindValidation
// if any helper's hash does not match. Called on project creation, where
// any drift indicates the creation itself is broken.
func (v *Verifier) Strict(ctx context.Context, token string, scriptID types.ScriptID) error {
	content, err := v.Script.GetProjectContent(ctx, token, scriptID)
	if err != nil {
		return errs.Wrap(errs.KindAPI, "failed to fetch project content for strict infrastructure verification", err, nil)
	}

	warnings := diff(content, Helpers)
	if len(warnings) == 0 {
		return nil
	}
	return errs.New(errs.KindValidation,
		"injected infrastructure did not match its canonical content after project creation",
		map[string]string{"warningCount": strconv.Itoa(len(warnings))})
}

// Warn reports drift without modifying anything. Called on project-init
// without force.
func (v *Verifier) Warn(ctx context.Context, token string, scriptID types.ScriptID) ([]VerificationWarning, error) {
	content, err := v.Script.GetProjectContent(ctx, token, scriptID)
	if err != nil {
		return nil, errs.Wrap(errs.KindAPI, "failed to fetch project content for infrastructure verification", err, nil)
	}
	return diff(content, Helpers), nil
}

// Repair reports drift and reinstalls the canonical content for every
// helper that is missing or mismatched. Called on project-init with
// force.
func (v *Verifier) Repair(ctx context.Context, token string, scriptID types.ScriptID) ([]VerificationWarning, error) {
	content, err := v.Script.GetProjectContent(ctx, token, scriptID)
	if err != nil {
		return nil, errs.Wrap(errs.KindAPI, "failed to fetch project content for infrastructure repair", err, nil)
	}

	warnings := diff(content, Helpers)
	for _, w := range warnings {
		helper, ok := findHelper(w.File)
		if !ok {
			continue
		}
		if _, err := v.Script.UpdateFile(ctx, token, scriptID, types.RemoteFile{
			Name:   helper.Name,
			Kind:   helper.Kind,
			Source: helper.Content,
		}); err != nil {
			return warnings, errs.Wrap(errs.KindAPI, "failed to reinstall canonical infrastructure file "+helper.Name, err, nil)
		}
		v.Logger.Info("repaired infrastructure file", "scriptId", scriptID, "file", helper.Name)
	}
	return warnings, nil
}

func findHelper(name string) (HelperFile, bool) {
	for _, h := range Helpers {
		if h.Name == name {
			return h, true
		}
	}
	return HelperFile{}, false
}

func diff(content []types.RemoteFile, helpers []HelperFile) []VerificationWarning {
	byName := make(map[string]types.RemoteFile, len(content))
	for _, f := range content {
		byName[f.Name] = f
	}

	var warnings []VerificationWarning
	for _, h := range helpers {
		f, ok := byName[h.Name]
		if !ok {
			warnings = append(warnings, VerificationWarning{File: h.Name, Expected: h.Hash, Missing: true})
			continue
		}
		actual := hashutil.ComputeString(f.Source)
		if !actual.Equal(h.Hash) {
			warnings = append(warnings, VerificationWarning{File: h.Name, Expected: h.Hash, Actual: actual})
		}
	}
	return warnings
}

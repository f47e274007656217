// Package deploy manages the three canonical per-project
// deployments (dev/staging/prod, identified by a
// bracketed marker in their description) and the status/reset/promote/
// rollback operations over them. reset is the only operation serialized
// per scriptId; the others may run concurrently.
package deploy

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/go-logr/logr"

	"github.com/gasdevtools/gas-sync/internal/config"
	"github.com/gasdevtools/gas-sync/internal/errs"
	"github.com/gasdevtools/gas-sync/internal/keyedlock"
	"github.com/gasdevtools/gas-sync/internal/obs"
	"github.com/gasdevtools/gas-sync/internal/remote"
	"github.com/gasdevtools/gas-sync/internal/types"
)

// Provider caps on deployment/version counts and the warn/critical
// thresholds Status reports against them.
const (
	ProviderDeploymentCap    = 200
	WarnVersionThreshold     = 150
	CriticalVersionThreshold = 190
)

// canonicalEnvironments is the fixed creation order reset uses.
var canonicalEnvironments = []types.Environment{types.EnvDev, types.EnvStaging, types.EnvProd}

// EnvStatus is one environment slot's canonical deployment, as reported
// by Status.
type EnvStatus struct {
	Environment   types.Environment
	DeploymentID  string
	VersionNumber *int
	WebAppURL     string
}

// StatusResult is Manager.Status's return value.
type StatusResult struct {
	Environments     []EnvStatus
	TotalVersions    int
	HighestVersion   int
	ProdVersionCount int
	Warnings         []string
}

// Reset outcome statuses: "partial" means the three canonical deployments
// exist but at least one superseded deployment could not be deleted.
const (
	ResetStatusSuccess = "success"
	ResetStatusPartial = "partial"
)

// ResetResult is Manager.Reset's return value: the three freshly created
// canonical deployments, warnings naming any superseded deployment whose
// deletion failed, and a non-fatal warning if mirroring the result into
// the local config document failed.
type ResetResult struct {
	Status        string
	Environments  []types.Deployment
	Warnings      []string
	ConfigWarning string
}

// Manager implements DeploymentManager. Config is optional: when nil,
// Reset skips the config-mirroring step entirely rather than reporting a
// spurious configWarning.
type Manager struct {
	Script  remote.ScriptClient
	Locks   *keyedlock.Manager
	Config  *config.Store
	Logger  logr.Logger
	Metrics *obs.Metrics // optional; nil disables instrumentation
}

// New wires a Manager from its collaborators.
func New(script remote.ScriptClient, locks *keyedlock.Manager, cfgStore *config.Store, logger logr.Logger) *Manager {
	return &Manager{Script: script, Locks: locks, Config: cfgStore, Logger: logger}
}

// Status lists the three canonical deployments and version-count warnings.
func (m *Manager) Status(ctx context.Context, token string, scriptID types.ScriptID) (StatusResult, error) {
	deployments, err := m.Script.ListDeployments(ctx, token, scriptID)
	if err != nil {
		return StatusResult{}, errs.Wrap(errs.KindAPI, "failed to list deployments", err, nil)
	}
	versions, err := m.Script.ListVersions(ctx, token, scriptID)
	if err != nil {
		return StatusResult{}, errs.Wrap(errs.KindAPI, "failed to list versions", err, nil)
	}

	var envs []EnvStatus
	for _, env := range canonicalEnvironments {
		if d, ok := findCanonical(deployments, env); ok {
			envs = append(envs, EnvStatus{
				Environment:   env,
				DeploymentID:  d.DeploymentID,
				VersionNumber: d.VersionNumber,
				WebAppURL:     d.WebAppURL,
			})
		}
	}

	highest := 0
	for _, v := range versions {
		if v.VersionNumber > highest {
			highest = v.VersionNumber
		}
	}

	prodCount := 0
	for _, d := range deployments {
		if d.Environment() == types.EnvProd {
			prodCount++
		}
	}

	var warnings []string
	switch {
	case highest >= CriticalVersionThreshold:
		warnings = append(warnings, fmt.Sprintf(
			"version count %d is within %d of the provider's %d-version cap", highest, ProviderDeploymentCap-highest, ProviderDeploymentCap))
	case highest >= WarnVersionThreshold:
		warnings = append(warnings, fmt.Sprintf(
			"version count %d is approaching the provider's %d-version cap", highest, ProviderDeploymentCap))
	}

	return StatusResult{
		Environments:     envs,
		TotalVersions:    len(versions),
		HighestVersion:   highest,
		ProdVersionCount: prodCount,
		Warnings:         warnings,
	}, nil
}

// Reset transactionally replaces all three canonical deployments: it
// creates three new WEB_APP deployments before deleting the old ones, so
// the project is never left without deployments. If any creation fails,
// the deployments already created in this call are deleted and the
// originals are left untouched.
func (m *Manager) Reset(ctx context.Context, token string, scriptID types.ScriptID, projectName string) (ResetResult, error) {
	var result ResetResult
	err := m.Locks.WithLock(ctx, string(scriptID), func(ctx context.Context) error {
		existing, err := m.Script.ListDeployments(ctx, token, scriptID)
		if err != nil {
			return errs.Wrap(errs.KindAPI, "failed to list current deployments", err, nil)
		}

		created := make([]types.Deployment, 0, len(canonicalEnvironments))
		for _, env := range canonicalEnvironments {
			d, createErr := m.Script.CreateDeployment(ctx, token, scriptID, nil, types.MarkerFor(env)+" managed by gas-sync")
			if createErr != nil {
				m.rollbackCreated(ctx, token, scriptID, created)
				return errs.Wrap(errs.KindAPI, "failed to create replacement "+string(env)+" deployment", createErr, nil)
			}
			withURL, urlErr := m.waitForWebAppURL(ctx, token, scriptID, d)
			if urlErr != nil {
				m.Logger.Info("web app URL not available after retries", "environment", env, "deploymentId", d.DeploymentID)
				withURL = d
			}
			created = append(created, withURL)
		}

		result.Status = ResetStatusSuccess
		for _, old := range existing {
			if delErr := m.Script.DeleteDeployment(ctx, token, scriptID, old.DeploymentID); delErr != nil {
				m.Logger.Info("failed to delete superseded deployment", "deploymentId", old.DeploymentID, "error", delErr)
				result.Status = ResetStatusPartial
				result.Warnings = append(result.Warnings,
					fmt.Sprintf("failed to delete superseded deployment %s: %v", old.DeploymentID, delErr))
			}
		}

		result.Environments = created
		if m.Config != nil && projectName != "" {
			if cfgErr := m.persistEnvironments(projectName, created); cfgErr != nil {
				result.ConfigWarning = cfgErr.Error()
			}
		}
		return nil
	})
	if err == nil && m.Metrics != nil {
		obs.IncCounter(ctx, m.Metrics.DeploymentResets)
	}
	return result, err
}

func (m *Manager) rollbackCreated(ctx context.Context, token string, scriptID types.ScriptID, created []types.Deployment) {
	for _, d := range created {
		if err := m.Script.DeleteDeployment(ctx, token, scriptID, d.DeploymentID); err != nil {
			m.Logger.Info("failed to roll back partially created deployment", "deploymentId", d.DeploymentID, "error", err)
		}
	}
}

func (m *Manager) persistEnvironments(projectName string, created []types.Deployment) error {
	doc, err := m.Config.Load()
	if err != nil {
		return err
	}
	entry := doc.Projects[projectName]
	entry.ProjectName = projectName
	envs := make([]string, 0, len(created))
	for _, d := range created {
		envs = append(envs, string(d.Environment()))
	}
	entry.Environments = envs
	doc.Projects[projectName] = entry
	return m.Config.Save(doc)
}

// waitForWebAppURL polls a just-created deployment until its web app URL
// is populated, since the provider does not guarantee it is available
// synchronously at creation time.
func (m *Manager) waitForWebAppURL(ctx context.Context, token string, scriptID types.ScriptID, d types.Deployment) (types.Deployment, error) {
	if d.WebAppURL != "" {
		return d, nil
	}

	exp := backoff.NewExponentialBackOff()
	exp.InitialInterval = time.Second
	exp.Multiplier = 2
	exp.RandomizationFactor = 0

	return backoff.Retry(ctx, func() (types.Deployment, error) {
		fresh, err := m.Script.GetDeployment(ctx, token, scriptID, d.DeploymentID)
		if err != nil {
			return types.Deployment{}, err
		}
		if fresh.WebAppURL == "" {
			return types.Deployment{}, errs.New(errs.KindAPI, "web app URL not yet available", nil)
		}
		return fresh, nil
	}, backoff.WithBackOff(exp), backoff.WithMaxTries(4))
}

// Promote moves a version forward: dev→staging creates a new versioned
// snapshot tagged for staging, staging→prod points prod at staging's
// current version. target must be EnvStaging or EnvProd.
func (m *Manager) Promote(ctx context.Context, token string, scriptID types.ScriptID, target types.Environment, description string) (types.Deployment, error) {
	deployments, err := m.Script.ListDeployments(ctx, token, scriptID)
	if err != nil {
		return types.Deployment{}, errs.Wrap(errs.KindAPI, "failed to list deployments", err, nil)
	}

	switch target {
	case types.EnvStaging:
		return m.promoteToStaging(ctx, token, scriptID, deployments, description)
	case types.EnvProd:
		return m.promoteToProd(ctx, token, scriptID, deployments)
	default:
		return types.Deployment{}, errs.New(errs.KindValidation, "promote target must be staging or prod", nil)
	}
}

func (m *Manager) promoteToStaging(ctx context.Context, token string, scriptID types.ScriptID, deployments []types.Deployment, description string) (types.Deployment, error) {
	if strings.TrimSpace(description) == "" {
		return types.Deployment{}, errs.New(errs.KindValidation, "promoting to staging requires a non-empty description", nil)
	}
	staging, ok := findCanonical(deployments, types.EnvStaging)
	if !ok {
		return types.Deployment{}, errs.New(errs.KindValidation, "project has no canonical staging deployment", nil)
	}

	version, err := m.Script.CreateVersion(ctx, token, scriptID, types.MarkerFor(types.EnvStaging)+" "+description)
	if err != nil {
		return types.Deployment{}, errs.Wrap(errs.KindAPI, "failed to create version for staging promotion", err, nil)
	}

	updated, err := m.Script.UpdateDeployment(ctx, token, scriptID, staging.DeploymentID, &version.VersionNumber, "")
	if err != nil {
		return types.Deployment{}, errs.Wrap(errs.KindAPI, "failed to point staging at new version", err, nil)
	}
	return updated, nil
}

func (m *Manager) promoteToProd(ctx context.Context, token string, scriptID types.ScriptID, deployments []types.Deployment) (types.Deployment, error) {
	staging, ok := findCanonical(deployments, types.EnvStaging)
	if !ok {
		return types.Deployment{}, errs.New(errs.KindValidation, "project has no canonical staging deployment", nil)
	}
	if staging.VersionNumber == nil {
		return types.Deployment{}, errs.New(errs.KindValidation, "staging deployment has no pinned version to promote", nil)
	}
	prod, ok := findCanonical(deployments, types.EnvProd)
	if !ok {
		return types.Deployment{}, errs.New(errs.KindValidation, "project has no canonical prod deployment", nil)
	}

	updated, err := m.Script.UpdateDeployment(ctx, token, scriptID, prod.DeploymentID, staging.VersionNumber, "")
	if err != nil {
		return types.Deployment{}, errs.Wrap(errs.KindAPI, "failed to point prod at staging's version", err, nil)
	}
	return updated, nil
}

// Rollback moves the canonical prod deployment to toVersion, or - when
// toVersion is nil - to the version immediately preceding its current
// version.
func (m *Manager) Rollback(ctx context.Context, token string, scriptID types.ScriptID, toVersion *int) (types.Deployment, error) {
	deployments, err := m.Script.ListDeployments(ctx, token, scriptID)
	if err != nil {
		return types.Deployment{}, errs.Wrap(errs.KindAPI, "failed to list deployments", err, nil)
	}
	prod, ok := findCanonical(deployments, types.EnvProd)
	if !ok {
		return types.Deployment{}, errs.New(errs.KindValidation, "project has no canonical prod deployment", nil)
	}

	target := toVersion
	if target == nil {
		resolved, err := m.priorProdVersion(ctx, token, scriptID, prod)
		if err != nil {
			return types.Deployment{}, err
		}
		target = &resolved
	}

	updated, err := m.Script.UpdateDeployment(ctx, token, scriptID, prod.DeploymentID, target, "")
	if err != nil {
		return types.Deployment{}, errs.Wrap(errs.KindAPI, "failed to roll prod back", err, nil)
	}
	return updated, nil
}

func (m *Manager) priorProdVersion(ctx context.Context, token string, scriptID types.ScriptID, prod types.Deployment) (int, error) {
	versions, err := m.Script.ListVersions(ctx, token, scriptID)
	if err != nil {
		return 0, errs.Wrap(errs.KindAPI, "failed to list version history", err, nil)
	}

	numbers := make([]int, 0, len(versions))
	for _, v := range versions {
		numbers = append(numbers, v.VersionNumber)
	}
	sort.Sort(sort.Reverse(sort.IntSlice(numbers)))

	current := 0
	if prod.VersionNumber != nil {
		current = *prod.VersionNumber
	}
	for _, v := range numbers {
		if v < current {
			return v, nil
		}
	}
	return 0, errs.New(errs.KindValidation, "no prior prod version exists to roll back to", nil)
}

func findCanonical(deployments []types.Deployment, env types.Environment) (types.Deployment, bool) {
	for _, d := range deployments {
		if d.Environment() == env {
			return d, true
		}
	}
	return types.Deployment{}, false
}

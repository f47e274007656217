package deploy

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/go-logr/logr"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gasdevtools/gas-sync/internal/config"
	"github.com/gasdevtools/gas-sync/internal/errs"
	"github.com/gasdevtools/gas-sync/internal/keyedlock"
	"github.com/gasdevtools/gas-sync/internal/remote"
	"github.com/gasdevtools/gas-sync/internal/types"
)

const testScriptID = types.ScriptID("1abcdefghijklmnopqrstuvwxyz0123456789ABCD")

func newTestManager(t *testing.T) (*Manager, *remote.Fake) {
	t.Helper()
	fake := remote.NewFake()
	fake.Projects[testScriptID] = remote.ProjectMetadata{ScriptID: testScriptID}
	cfgStore := config.NewStore(filepath.Join(t.TempDir(), "config.json"))
	m := New(fake, keyedlock.New(), cfgStore, logr.Discard())
	return m, fake
}

func TestManager_ResetCreatesThreeCanonicalDeploymentsAndDeletesOld(t *testing.T) {
	m, fake := newTestManager(t)
	ctx := context.Background()

	_, err := fake.CreateDeployment(ctx, "tok", testScriptID, nil, "[DEV] old")
	require.NoError(t, err)

	result, err := m.Reset(ctx, "tok", testScriptID, "myproject")
	require.NoError(t, err)
	assert.Equal(t, ResetStatusSuccess, result.Status)
	require.Len(t, result.Environments, 3)
	assert.Empty(t, result.Warnings)
	assert.Empty(t, result.ConfigWarning)

	deployments, err := fake.ListDeployments(ctx, "tok", testScriptID)
	require.NoError(t, err)
	require.Len(t, deployments, 3)

	seen := map[types.Environment]bool{}
	for _, d := range deployments {
		seen[d.Environment()] = true
		assert.NotEmpty(t, d.WebAppURL)
	}
	assert.True(t, seen[types.EnvDev])
	assert.True(t, seen[types.EnvStaging])
	assert.True(t, seen[types.EnvProd])
}

func TestManager_ResetPartialWhenSupersededDeleteFails(t *testing.T) {
	m, fake := newTestManager(t)
	ctx := context.Background()

	old, err := fake.CreateDeployment(ctx, "tok", testScriptID, nil, "[DEV] old")
	require.NoError(t, err)
	fake.FailDeleteDeployment = func(deploymentID string) error {
		if deploymentID == old.DeploymentID {
			return errs.New(errs.KindAPI, "delete refused", nil)
		}
		return nil
	}

	result, err := m.Reset(ctx, "tok", testScriptID, "")
	require.NoError(t, err)
	assert.Equal(t, ResetStatusPartial, result.Status)
	require.Len(t, result.Warnings, 1)
	assert.Contains(t, result.Warnings[0], old.DeploymentID)
}

func TestManager_ResetRollsBackCreatedOnCreateFailure(t *testing.T) {
	m, fake := newTestManager(t)
	ctx := context.Background()

	old, err := fake.CreateDeployment(ctx, "tok", testScriptID, nil, "[DEV] old")
	require.NoError(t, err)
	fake.FailCreateDeployment = func(description string) error {
		if types.ParseEnvironment(description) == types.EnvProd {
			return errs.New(errs.KindAPI, "quota exceeded", nil)
		}
		return nil
	}

	_, err = m.Reset(ctx, "tok", testScriptID, "")
	require.Error(t, err)

	// The partially created dev/staging deployments are rolled back and
	// the original deployment is still in place.
	deployments, err := fake.ListDeployments(ctx, "tok", testScriptID)
	require.NoError(t, err)
	require.Len(t, deployments, 1)
	assert.Equal(t, old.DeploymentID, deployments[0].DeploymentID)
}

func TestManager_ResetMirrorsEnvironmentsIntoConfig(t *testing.T) {
	m, _ := newTestManager(t)
	ctx := context.Background()

	_, err := m.Reset(ctx, "tok", testScriptID, "myproject")
	require.NoError(t, err)

	doc, err := m.Config.Load()
	require.NoError(t, err)
	entry := doc.Projects["myproject"]
	assert.ElementsMatch(t, []string{"DEV", "STAGING", "PROD"}, entry.Environments)
}

func TestManager_StatusReportsVersionWarningNearCap(t *testing.T) {
	m, fake := newTestManager(t)
	ctx := context.Background()
	require.NoError(t, m.ensureCanonicalDeployments(ctx, fake))

	for i := 0; i < 191; i++ {
		_, err := fake.CreateVersion(ctx, "tok", testScriptID, "v")
		require.NoError(t, err)
	}

	status, err := m.Status(ctx, "tok", testScriptID)
	require.NoError(t, err)
	assert.Equal(t, 191, status.HighestVersion)
	require.Len(t, status.Warnings, 1)
	assert.Contains(t, status.Warnings[0], "cap")
}

func TestManager_PromoteToStagingRequiresDescription(t *testing.T) {
	m, fake := newTestManager(t)
	ctx := context.Background()
	require.NoError(t, m.ensureCanonicalDeployments(ctx, fake))

	_, err := m.Promote(ctx, "tok", testScriptID, types.EnvStaging, "")
	require.Error(t, err)
	kind, ok := errs.KindOf(err)
	require.True(t, ok)
	assert.Equal(t, errs.KindValidation, kind)
}

func TestManager_PromoteDevToStagingThenStagingToProd(t *testing.T) {
	m, fake := newTestManager(t)
	ctx := context.Background()
	require.NoError(t, m.ensureCanonicalDeployments(ctx, fake))

	staged, err := m.Promote(ctx, "tok", testScriptID, types.EnvStaging, "ship feature x")
	require.NoError(t, err)
	require.NotNil(t, staged.VersionNumber)

	prod, err := m.Promote(ctx, "tok", testScriptID, types.EnvProd, "")
	require.NoError(t, err)
	require.NotNil(t, prod.VersionNumber)
	assert.Equal(t, *staged.VersionNumber, *prod.VersionNumber)
}

func TestManager_RollbackProdToImmediatelyPriorVersion(t *testing.T) {
	m, fake := newTestManager(t)
	ctx := context.Background()
	require.NoError(t, m.ensureCanonicalDeployments(ctx, fake))

	for i := 0; i < 3; i++ {
		_, err := fake.CreateVersion(ctx, "tok", testScriptID, "v")
		require.NoError(t, err)
	}
	deployments, err := fake.ListDeployments(ctx, "tok", testScriptID)
	require.NoError(t, err)
	prod, ok := findCanonical(deployments, types.EnvProd)
	require.True(t, ok)
	three := 3
	_, err = fake.UpdateDeployment(ctx, "tok", testScriptID, prod.DeploymentID, &three, "")
	require.NoError(t, err)

	rolled, err := m.Rollback(ctx, "tok", testScriptID, nil)
	require.NoError(t, err)
	require.NotNil(t, rolled.VersionNumber)
	assert.Equal(t, 2, *rolled.VersionNumber)
}

func TestManager_RollbackFailsWithNoPriorVersion(t *testing.T) {
	m, fake := newTestManager(t)
	ctx := context.Background()
	require.NoError(t, m.ensureCanonicalDeployments(ctx, fake))

	_, err := m.Rollback(ctx, "tok", testScriptID, nil)
	require.Error(t, err)
	kind, ok := errs.KindOf(err)
	require.True(t, ok)
	assert.Equal(t, errs.KindValidation, kind)
}

// ensureCanonicalDeployments is a test helper seeding the three canonical
// deployments directly (bypassing Reset's lock+backoff dance) so
// Promote/Rollback/Status tests don't pay for that machinery.
func (m *Manager) ensureCanonicalDeployments(ctx context.Context, fake *remote.Fake) error {
	for _, env := range canonicalEnvironments {
		if _, err := fake.CreateDeployment(ctx, "tok", testScriptID, nil, types.MarkerFor(env)+" managed by gas-sync"); err != nil {
			return err
		}
	}
	return nil
}

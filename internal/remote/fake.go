package remote

import (
	"context"
	"fmt"
	"sync"

	"github.com/gasdevtools/gas-sync/internal/errs"
	"github.com/gasdevtools/gas-sync/internal/types"
)

// Fake is a hand-written, in-memory ScriptClient + DriveClient used by
// tests across the control plane - no network, no mocking framework,
// just a small stateful struct mirroring what the real API would do.
type Fake struct {
	mu           sync.Mutex
	Projects     map[types.ScriptID]ProjectMetadata
	Content      map[types.ScriptID][]types.RemoteFile
	Deployments  map[types.ScriptID][]types.Deployment
	Versions     map[types.ScriptID][]Version
	DriveFiles   map[string]DriveFile
	nextDeployID int

	// Optional failure hooks so tests can exercise rollback paths.
	FailCreateDeployment func(description string) error
	FailDeleteDeployment func(deploymentID string) error

	// SkipBoundScriptClone suppresses CopyFile's cloning of bound script
	// projects, simulating a container copy whose script never appears.
	SkipBoundScriptClone bool
}

// NewFake builds an empty Fake ready for test setup via its exported maps.
func NewFake() *Fake {
	return &Fake{
		Projects:    map[types.ScriptID]ProjectMetadata{},
		Content:     map[types.ScriptID][]types.RemoteFile{},
		Deployments: map[types.ScriptID][]types.Deployment{},
		Versions:    map[types.ScriptID][]Version{},
		DriveFiles:  map[string]DriveFile{},
	}
}

func (f *Fake) GetProject(_ context.Context, _ string, scriptID types.ScriptID) (ProjectMetadata, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	p, ok := f.Projects[scriptID]
	if !ok {
		return ProjectMetadata{}, errs.New(errs.KindAPI, "project not found", nil)
	}
	return p, nil
}

func (f *Fake) ListProjects(_ context.Context, _ string, parentID string) ([]ProjectMetadata, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []ProjectMetadata
	for _, p := range f.Projects {
		if p.ParentID == parentID {
			out = append(out, p)
		}
	}
	return out, nil
}

func (f *Fake) GetProjectContent(_ context.Context, _ string, scriptID types.ScriptID) ([]types.RemoteFile, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]types.RemoteFile(nil), f.Content[scriptID]...), nil
}

func (f *Fake) UpdateProjectContent(_ context.Context, _ string, scriptID types.ScriptID, files []types.RemoteFile) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Content[scriptID] = append([]types.RemoteFile(nil), files...)
	return nil
}

func (f *Fake) UpdateFile(_ context.Context, _ string, scriptID types.ScriptID, file types.RemoteFile) (types.RemoteFile, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Content[scriptID] = replaceOrAppendFile(f.Content[scriptID], file)
	return file, nil
}

func (f *Fake) CreateProject(_ context.Context, _ string, title string, parentID string) (ProjectMetadata, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	id := types.ScriptID(fmt.Sprintf("fake-script-id-%020d", len(f.Projects)+1))
	p := ProjectMetadata{ScriptID: id, Title: title, ParentID: parentID}
	f.Projects[id] = p
	return p, nil
}

func (f *Fake) CreateVersion(_ context.Context, _ string, scriptID types.ScriptID, description string) (Version, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	v := Version{VersionNumber: len(f.Versions[scriptID]) + 1, Description: description}
	f.Versions[scriptID] = append(f.Versions[scriptID], v)
	return v, nil
}

func (f *Fake) ListVersions(_ context.Context, _ string, scriptID types.ScriptID) ([]Version, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]Version(nil), f.Versions[scriptID]...), nil
}

func (f *Fake) GetVersion(_ context.Context, _ string, scriptID types.ScriptID, versionNumber int) (Version, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, v := range f.Versions[scriptID] {
		if v.VersionNumber == versionNumber {
			return v, nil
		}
	}
	return Version{}, errs.New(errs.KindAPI, "version not found", nil)
}

func (f *Fake) CreateDeployment(_ context.Context, _ string, scriptID types.ScriptID, versionNumber *int, description string) (types.Deployment, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.FailCreateDeployment != nil {
		if err := f.FailCreateDeployment(description); err != nil {
			return types.Deployment{}, err
		}
	}
	f.nextDeployID++
	d := types.Deployment{
		DeploymentID:  fmt.Sprintf("deploy-%d", f.nextDeployID),
		Description:   description,
		VersionNumber: versionNumber,
		WebAppURL:     fmt.Sprintf("https://script.google.com/macros/s/fake-%d/exec", f.nextDeployID),
	}
	f.Deployments[scriptID] = append(f.Deployments[scriptID], d)
	return d, nil
}

func (f *Fake) UpdateDeployment(_ context.Context, _ string, scriptID types.ScriptID, deploymentID string, versionNumber *int, description string) (types.Deployment, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for i, d := range f.Deployments[scriptID] {
		if d.DeploymentID == deploymentID {
			if versionNumber != nil {
				f.Deployments[scriptID][i].VersionNumber = versionNumber
			}
			if description != "" {
				f.Deployments[scriptID][i].Description = description
			}
			return f.Deployments[scriptID][i], nil
		}
	}
	return types.Deployment{}, errs.New(errs.KindAPI, "deployment not found", nil)
}

func (f *Fake) DeleteDeployment(_ context.Context, _ string, scriptID types.ScriptID, deploymentID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.FailDeleteDeployment != nil {
		if err := f.FailDeleteDeployment(deploymentID); err != nil {
			return err
		}
	}
	out := f.Deployments[scriptID][:0]
	for _, d := range f.Deployments[scriptID] {
		if d.DeploymentID != deploymentID {
			out = append(out, d)
		}
	}
	f.Deployments[scriptID] = out
	return nil
}

func (f *Fake) ListDeployments(_ context.Context, _ string, scriptID types.ScriptID) ([]types.Deployment, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]types.Deployment(nil), f.Deployments[scriptID]...), nil
}

func (f *Fake) GetDeployment(_ context.Context, _ string, scriptID types.ScriptID, deploymentID string) (types.Deployment, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, d := range f.Deployments[scriptID] {
		if d.DeploymentID == deploymentID {
			return d, nil
		}
	}
	return types.Deployment{}, errs.New(errs.KindAPI, "deployment not found", nil)
}

func (f *Fake) ListProcesses(_ context.Context, _ string) ([]Process, error) {
	return nil, nil
}

func (f *Fake) ListScriptProcesses(_ context.Context, _ string, _ types.ScriptID) ([]Process, error) {
	return nil, nil
}

func (f *Fake) GetProjectMetadata(ctx context.Context, token string, scriptID types.ScriptID) (ProjectMetadata, error) {
	return f.GetProject(ctx, token, scriptID)
}

func (f *Fake) GetFile(_ context.Context, _ string, fileID string) (DriveFile, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	df, ok := f.DriveFiles[fileID]
	if !ok {
		return DriveFile{}, errs.New(errs.KindAPI, "drive file not found", nil)
	}
	return df, nil
}

func (f *Fake) CopyFile(_ context.Context, _ string, fileID string, newTitle string) (DriveFile, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	src, ok := f.DriveFiles[fileID]
	if !ok {
		return DriveFile{}, errs.New(errs.KindAPI, "drive file not found", nil)
	}
	copied := DriveFile{ID: fmt.Sprintf("%s-copy-%d", fileID, len(f.DriveFiles)+1), Name: newTitle, ParentID: src.ParentID, Kind: src.Kind}
	f.DriveFiles[copied.ID] = copied

	// Copying a container clones its bound script too, as Drive does.
	if !f.SkipBoundScriptClone {
		for id, p := range f.Projects {
			if p.ParentID == fileID {
				cloneID := types.ScriptID(fmt.Sprintf("fake-script-id-%020d", len(f.Projects)+1))
				f.Projects[cloneID] = ProjectMetadata{ScriptID: cloneID, Title: p.Title, ParentID: copied.ID}
				f.Content[cloneID] = append([]types.RemoteFile(nil), f.Content[id]...)
				break
			}
		}
	}
	return copied, nil
}

func (f *Fake) Trash(_ context.Context, _ string, fileID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.DriveFiles, fileID)
	return nil
}

func (f *Fake) FindBoundScript(_ context.Context, _ string, containerID string) (types.ScriptID, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for id, p := range f.Projects {
		if p.ParentID == containerID {
			return id, nil
		}
	}
	return "", errs.New(errs.KindAPI, "no bound script found for container", map[string]string{"containerId": containerID})
}

var (
	_ ScriptClient = (*Fake)(nil)
	_ DriveClient  = (*Fake)(nil)
)

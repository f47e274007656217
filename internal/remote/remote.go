// Package remote defines the boundary between the control plane and the
// two external services it depends on: the Apps Script REST API and the
// Drive REST API. Every other package compiles and tests against the
// ScriptClient/DriveClient interfaces below rather than a concrete HTTP
// client. httpclient.go supplies a minimal default implementation so
// cmd/gas-sync links end to end; tests inject a hand-written fake (see
// fake.go) instead of hitting the network.
package remote

import (
	"context"
	"time"

	"github.com/gasdevtools/gas-sync/internal/types"
)

// ProjectMetadata is the subset of getProjectMetadata/getProject this
// control plane actually consumes.
type ProjectMetadata struct {
	ScriptID   types.ScriptID
	Title      string
	ParentID   string
	CreateTime time.Time
	UpdateTime time.Time
}

// Version mirrors a single immutable Apps Script version snapshot.
type Version struct {
	VersionNumber int
	Description   string
	CreateTime    time.Time
}

// Process is one entry of listProcesses/listScriptProcesses.
type Process struct {
	ProcessID string
	Status    string
	StartTime time.Time
}

// ScriptClient is a typed, auth-token-bearing client over the Apps Script
// REST API. Every method takes the bearer token explicitly
// rather than holding it as client state, since a single process serves
// many projects/accounts concurrently.
type ScriptClient interface {
	GetProject(ctx context.Context, token string, scriptID types.ScriptID) (ProjectMetadata, error)
	ListProjects(ctx context.Context, token string, parentID string) ([]ProjectMetadata, error)
	GetProjectContent(ctx context.Context, token string, scriptID types.ScriptID) ([]types.RemoteFile, error)
	UpdateProjectContent(ctx context.Context, token string, scriptID types.ScriptID, files []types.RemoteFile) error
	UpdateFile(ctx context.Context, token string, scriptID types.ScriptID, file types.RemoteFile) (types.RemoteFile, error)
	CreateProject(ctx context.Context, token string, title string, parentID string) (ProjectMetadata, error)
	CreateVersion(ctx context.Context, token string, scriptID types.ScriptID, description string) (Version, error)
	ListVersions(ctx context.Context, token string, scriptID types.ScriptID) ([]Version, error)
	GetVersion(ctx context.Context, token string, scriptID types.ScriptID, versionNumber int) (Version, error)
	CreateDeployment(ctx context.Context, token string, scriptID types.ScriptID, versionNumber *int, description string) (types.Deployment, error)
	UpdateDeployment(ctx context.Context, token string, scriptID types.ScriptID, deploymentID string, versionNumber *int, description string) (types.Deployment, error)
	DeleteDeployment(ctx context.Context, token string, scriptID types.ScriptID, deploymentID string) error
	ListDeployments(ctx context.Context, token string, scriptID types.ScriptID) ([]types.Deployment, error)
	GetDeployment(ctx context.Context, token string, scriptID types.ScriptID, deploymentID string) (types.Deployment, error)
	ListProcesses(ctx context.Context, token string) ([]Process, error)
	ListScriptProcesses(ctx context.Context, token string, scriptID types.ScriptID) ([]Process, error)
	GetProjectMetadata(ctx context.Context, token string, scriptID types.ScriptID) (ProjectMetadata, error)
}

// DriveEntityKind is the kind of Drive file a script project's parent may
// be, used to derive types.ContainerType.
type DriveEntityKind string

const (
	DriveEntityNone         DriveEntityKind = ""
	DriveEntitySpreadsheet  DriveEntityKind = "spreadsheet"
	DriveEntityDocument     DriveEntityKind = "document"
	DriveEntityForm         DriveEntityKind = "form"
	DriveEntityPresentation DriveEntityKind = "presentation"
)

// ContainerType maps a Drive entity kind to the project's container type.
func (k DriveEntityKind) ContainerType() types.ContainerType {
	switch k {
	case DriveEntitySpreadsheet:
		return types.ContainerSheets
	case DriveEntityDocument:
		return types.ContainerDocs
	case DriveEntityForm:
		return types.ContainerForms
	case DriveEntityPresentation:
		return types.ContainerSlides
	default:
		return types.ContainerStandalone
	}
}

// DriveFile is the subset of a Drive file resource the control plane
// needs: id, a query-friendly name, its parent's id, and its own entity kind.
type DriveFile struct {
	ID       string
	Name     string
	ParentID string
	Kind     DriveEntityKind
}

// DriveClient is a typed client over the Drive REST API, used by
// WorktreeManager for container copy/trash and by the container-type
// detector.
type DriveClient interface {
	GetFile(ctx context.Context, token string, fileID string) (DriveFile, error)
	CopyFile(ctx context.Context, token string, fileID string, newTitle string) (DriveFile, error)
	Trash(ctx context.Context, token string, fileID string) error
	FindBoundScript(ctx context.Context, token string, containerID string) (types.ScriptID, error)
}

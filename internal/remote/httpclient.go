package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/gasdevtools/gas-sync/internal/errs"
	"github.com/gasdevtools/gas-sync/internal/types"
)

// scriptAPIBase and driveAPIBase are the well-known Google API endpoints.
const (
	scriptAPIBase = "https://script.googleapis.com/v1"
	driveAPIBase  = "https://www.googleapis.com/drive/v3"
)

// httpClient is the unexported default ScriptClient/DriveClient
// implementation: a thin net/http+encoding/json wrapper. It is untested
// beyond a smoke test - real coverage belongs to whichever typed client
// this control plane is wired against in production, not to this control
// plane's own test suite.
type httpClient struct {
	base string
	hc   *http.Client
}

// NewHTTPScriptClient builds the default ScriptClient so cmd/gas-sync can
// link and run end to end without a hand-rolled REST client of its own.
func NewHTTPScriptClient() ScriptClient {
	return &httpClient{base: scriptAPIBase, hc: &http.Client{Timeout: 30 * time.Second}}
}

// NewHTTPDriveClient builds the default DriveClient.
func NewHTTPDriveClient() DriveClient {
	return &httpClient{base: driveAPIBase, hc: &http.Client{Timeout: 30 * time.Second}}
}

func (c *httpClient) do(ctx context.Context, method, path, token string, body any, out any) error {
	var reqBody io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return errs.Wrap(errs.KindAPI, "failed to encode request body", err, nil)
		}
		reqBody = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.base+path, reqBody)
	if err != nil {
		return errs.Wrap(errs.KindAPI, "failed to build request", err, nil)
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.hc.Do(req)
	if err != nil {
		return errs.Wrap(errs.KindAPI, fmt.Sprintf("request to %s failed", path), err, nil)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		payload, _ := io.ReadAll(resp.Body)
		return errs.New(errs.KindAPI, fmt.Sprintf("%s %s returned %d: %s", method, path, resp.StatusCode, string(payload)), nil)
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return errs.Wrap(errs.KindAPI, "failed to decode response body", err, nil)
	}
	return nil
}

func (c *httpClient) GetProject(ctx context.Context, token string, scriptID types.ScriptID) (ProjectMetadata, error) {
	var out ProjectMetadata
	err := c.do(ctx, http.MethodGet, "/projects/"+string(scriptID), token, nil, &out)
	return out, err
}

func (c *httpClient) ListProjects(ctx context.Context, token string, parentID string) ([]ProjectMetadata, error) {
	var out []ProjectMetadata
	err := c.do(ctx, http.MethodGet, "/projects?parentId="+parentID, token, nil, &out)
	return out, err
}

func (c *httpClient) GetProjectContent(ctx context.Context, token string, scriptID types.ScriptID) ([]types.RemoteFile, error) {
	var out struct {
		Files []types.RemoteFile `json:"files"`
	}
	err := c.do(ctx, http.MethodGet, "/projects/"+string(scriptID)+"/content", token, nil, &out)
	return out.Files, err
}

func (c *httpClient) UpdateProjectContent(ctx context.Context, token string, scriptID types.ScriptID, files []types.RemoteFile) error {
	body := struct {
		Files []types.RemoteFile `json:"files"`
	}{Files: files}
	return c.do(ctx, http.MethodPut, "/projects/"+string(scriptID)+"/content", token, body, nil)
}

func (c *httpClient) UpdateFile(ctx context.Context, token string, scriptID types.ScriptID, file types.RemoteFile) (types.RemoteFile, error) {
	content, err := c.GetProjectContent(ctx, token, scriptID)
	if err != nil {
		return types.RemoteFile{}, err
	}
	updated := replaceOrAppendFile(content, file)
	if err := c.UpdateProjectContent(ctx, token, scriptID, updated); err != nil {
		return types.RemoteFile{}, err
	}
	return file, nil
}

func replaceOrAppendFile(files []types.RemoteFile, target types.RemoteFile) []types.RemoteFile {
	for i, f := range files {
		if f.Name == target.Name {
			files[i] = target
			return files
		}
	}
	return append(files, target)
}

func (c *httpClient) CreateProject(ctx context.Context, token string, title string, parentID string) (ProjectMetadata, error) {
	body := struct {
		Title    string `json:"title"`
		ParentID string `json:"parentId,omitempty"`
	}{Title: title, ParentID: parentID}
	var out ProjectMetadata
	err := c.do(ctx, http.MethodPost, "/projects", token, body, &out)
	return out, err
}

func (c *httpClient) CreateVersion(ctx context.Context, token string, scriptID types.ScriptID, description string) (Version, error) {
	body := struct {
		Description string `json:"description"`
	}{Description: description}
	var out Version
	err := c.do(ctx, http.MethodPost, "/projects/"+string(scriptID)+"/versions", token, body, &out)
	return out, err
}

func (c *httpClient) ListVersions(ctx context.Context, token string, scriptID types.ScriptID) ([]Version, error) {
	var out struct {
		Versions []Version `json:"versions"`
	}
	err := c.do(ctx, http.MethodGet, "/projects/"+string(scriptID)+"/versions", token, nil, &out)
	return out.Versions, err
}

func (c *httpClient) GetVersion(ctx context.Context, token string, scriptID types.ScriptID, versionNumber int) (Version, error) {
	var out Version
	err := c.do(ctx, http.MethodGet, fmt.Sprintf("/projects/%s/versions/%d", scriptID, versionNumber), token, nil, &out)
	return out, err
}

func (c *httpClient) CreateDeployment(ctx context.Context, token string, scriptID types.ScriptID, versionNumber *int, description string) (types.Deployment, error) {
	body := struct {
		VersionNumber *int   `json:"versionNumber,omitempty"`
		Description   string `json:"description"`
	}{VersionNumber: versionNumber, Description: description}
	var out types.Deployment
	err := c.do(ctx, http.MethodPost, "/projects/"+string(scriptID)+"/deployments", token, body, &out)
	return out, err
}

func (c *httpClient) UpdateDeployment(ctx context.Context, token string, scriptID types.ScriptID, deploymentID string, versionNumber *int, description string) (types.Deployment, error) {
	body := struct {
		VersionNumber *int   `json:"versionNumber,omitempty"`
		Description   string `json:"description"`
	}{VersionNumber: versionNumber, Description: description}
	var out types.Deployment
	err := c.do(ctx, http.MethodPut, "/projects/"+string(scriptID)+"/deployments/"+deploymentID, token, body, &out)
	return out, err
}

func (c *httpClient) DeleteDeployment(ctx context.Context, token string, scriptID types.ScriptID, deploymentID string) error {
	return c.do(ctx, http.MethodDelete, "/projects/"+string(scriptID)+"/deployments/"+deploymentID, token, nil, nil)
}

func (c *httpClient) ListDeployments(ctx context.Context, token string, scriptID types.ScriptID) ([]types.Deployment, error) {
	var out struct {
		Deployments []types.Deployment `json:"deployments"`
	}
	err := c.do(ctx, http.MethodGet, "/projects/"+string(scriptID)+"/deployments", token, nil, &out)
	return out.Deployments, err
}

func (c *httpClient) GetDeployment(ctx context.Context, token string, scriptID types.ScriptID, deploymentID string) (types.Deployment, error) {
	var out types.Deployment
	err := c.do(ctx, http.MethodGet, "/projects/"+string(scriptID)+"/deployments/"+deploymentID, token, nil, &out)
	return out, err
}

func (c *httpClient) ListProcesses(ctx context.Context, token string) ([]Process, error) {
	var out struct {
		Processes []Process `json:"processes"`
	}
	err := c.do(ctx, http.MethodGet, "/processes", token, nil, &out)
	return out.Processes, err
}

func (c *httpClient) ListScriptProcesses(ctx context.Context, token string, scriptID types.ScriptID) ([]Process, error) {
	var out struct {
		Processes []Process `json:"processes"`
	}
	err := c.do(ctx, http.MethodGet, "/projects/"+string(scriptID)+"/processes", token, nil, &out)
	return out.Processes, err
}

func (c *httpClient) GetProjectMetadata(ctx context.Context, token string, scriptID types.ScriptID) (ProjectMetadata, error) {
	return c.GetProject(ctx, token, scriptID)
}

func (c *httpClient) GetFile(ctx context.Context, token string, fileID string) (DriveFile, error) {
	var out DriveFile
	err := c.do(ctx, http.MethodGet, "/files/"+fileID+"?fields=id,name,parents,mimeType", token, nil, &out)
	return out, err
}

func (c *httpClient) CopyFile(ctx context.Context, token string, fileID string, newTitle string) (DriveFile, error) {
	body := struct {
		Name string `json:"name"`
	}{Name: newTitle}
	var out DriveFile
	err := c.do(ctx, http.MethodPost, "/files/"+fileID+"/copy", token, body, &out)
	return out, err
}

func (c *httpClient) Trash(ctx context.Context, token string, fileID string) error {
	body := struct {
		Trashed bool `json:"trashed"`
	}{Trashed: true}
	return c.do(ctx, http.MethodPatch, "/files/"+fileID, token, body, nil)
}

func (c *httpClient) FindBoundScript(ctx context.Context, token string, containerID string) (types.ScriptID, error) {
	var out struct {
		Files []DriveFile `json:"files"`
	}
	q := "q=" + "'" + containerID + "'+in+parents+and+mimeType='application/vnd.google-apps.script'"
	if err := c.do(ctx, http.MethodGet, "/files?"+q, token, nil, &out); err != nil {
		return "", err
	}
	if len(out.Files) == 0 {
		return "", errs.New(errs.KindAPI, "no bound script found for container", map[string]string{"containerId": containerID})
	}
	return types.ScriptID(out.Files[0].ID), nil
}

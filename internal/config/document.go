package config

import "github.com/gasdevtools/gas-sync/internal/types"

// OAuthConfig is the client credential set ConfigStore persists for the
// remote API's OAuth flow.
type OAuthConfig struct {
	ClientID     string   `json:"clientId"`
	ClientSecret string   `json:"clientSecret"`
	RedirectURIs []string `json:"redirectUris"`
	Scopes       []string `json:"scopes"`
}

// Document is the single JSON document ConfigStore manages: everything the
// tool needs to remember between invocations.
type Document struct {
	OAuth          OAuthConfig                            `json:"oauth"`
	Projects       map[string]types.ProjectRegistryEntry `json:"projects"`
	CurrentProject string                                 `json:"currentProject"`
	LocalRoot      string                                 `json:"localRoot"`
	ServerMetadata map[string]string                      `json:"serverMetadata"`
	Worktrees      map[string]types.WorktreeEntry         `json:"worktrees,omitempty"`
}

// NewDocument returns an empty Document with its maps initialized, the
// shape Load returns when no config file exists yet.
func NewDocument() *Document {
	return &Document{
		Projects:       make(map[string]types.ProjectRegistryEntry),
		ServerMetadata: make(map[string]string),
		Worktrees:      make(map[string]types.WorktreeEntry),
	}
}

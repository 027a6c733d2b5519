// Package powerbi is a thin client for the Power BI REST API: app-only
// authentication against Azure AD, workspace and report discovery, and
// embed token generation with optional effective identities.
package powerbi

import "time"

// Workspace is a Power BI group as returned by the API.
type Workspace struct {
	ID                    string `json:"id"`
	Name                  string `json:"name"`
	IsOnDedicatedCapacity bool   `json:"isOnDedicatedCapacity,omitempty"`
}

// ReportInfo is a report's upstream metadata. EmbedURL and DatasetID are
// fetched fresh on every embed to survive dataset rebinds.
type ReportInfo struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	WebURL    string `json:"webUrl,omitempty"`
	EmbedURL  string `json:"embedUrl"`
	DatasetID string `json:"datasetId"`
}

// EmbedIdentity is the effective identity attached to an embed token
// request. Roles is fixed per deployment; Username carries the row-level
// filter value the dataset's DAX rules consume.
type EmbedIdentity struct {
	Username string   `json:"username"`
	Roles    []string `json:"roles"`
	Datasets []string `json:"datasets"`
}

// EmbedToken is the upstream response to an embed token request.
type EmbedToken struct {
	Token      string    `json:"token"`
	TokenID    string    `json:"tokenId"`
	Expiration time.Time `json:"expiration"`
}

// RLSRole is the dataset role every effective identity assumes. The
// datasets implement their filtering in a single shared role.
const RLSRole = "rls_unidades"

type listResponse[T any] struct {
	Value []T `json:"value"`
}

type tokenResponse struct {
	AccessToken string `json:"access_token"`
	ExpiresIn   int64  `json:"expires_in"`
}

type generateTokenRequest struct {
	Reports          []tokenReportRef    `json:"reports"`
	TargetWorkspaces []tokenWorkspaceRef `json:"targetWorkspaces"`
	Datasets         []tokenDatasetRef   `json:"datasets,omitempty"`
	Identities       []EmbedIdentity     `json:"identities,omitempty"`
}

type tokenReportRef struct {
	ID        string `json:"id"`
	AllowEdit bool   `json:"allowEdit"`
}

type tokenWorkspaceRef struct {
	ID string `json:"id"`
}

type tokenDatasetRef struct {
	ID string `json:"id"`
}

package powerbi

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/singleflight"

	"github.com/reportgate/reportgate/pkg/config"
	"github.com/reportgate/reportgate/pkg/errs"
)

// renewMargin is how long before expiry the cached app token is considered
// stale.
const renewMargin = 5 * time.Minute

// UpstreamObserver receives the outcome of every upstream call.
// *observability.Metrics satisfies it.
type UpstreamObserver interface {
	ObserveUpstream(operation string, err error)
}

// Client talks to the Power BI REST API with an app-only token that is
// cached for the process and renewed through a singleflight group, so
// concurrent embeds never stampede the Azure AD token endpoint.
type Client struct {
	cfg        config.PowerBIConfig
	httpClient *http.Client
	logger     *logrus.Logger
	observer   UpstreamObserver

	mu          sync.Mutex
	token       string
	tokenExpiry time.Time
	renew       singleflight.Group
}

// NewClient creates a Client from configuration. observer may be nil.
func NewClient(cfg config.PowerBIConfig, logger *logrus.Logger, observer UpstreamObserver) *Client {
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 30 * time.Second
	}
	return &Client{
		cfg:        cfg,
		httpClient: &http.Client{Timeout: timeout},
		logger:     logger,
		observer:   observer,
	}
}

func (c *Client) observe(operation string, err error) {
	if c.observer != nil {
		c.observer.ObserveUpstream(operation, err)
	}
}

// AppToken returns the cached application token, renewing it when less than
// renewMargin remains.
func (c *Client) AppToken(ctx context.Context) (string, error) {
	c.mu.Lock()
	if c.token != "" && time.Until(c.tokenExpiry) > renewMargin {
		token := c.token
		c.mu.Unlock()
		return token, nil
	}
	c.mu.Unlock()

	result, err, _ := c.renew.Do("app-token", func() (any, error) {
		return c.fetchAppToken(ctx)
	})
	if err != nil {
		return "", err
	}
	return result.(string), nil
}

func (c *Client) fetchAppToken(ctx context.Context) (token string, err error) {
	defer func() { c.observe("app_token", err) }()

	form := url.Values{
		"grant_type":    {"client_credentials"},
		"client_id":     {c.cfg.ClientID},
		"client_secret": {c.cfg.ClientSecret},
		"scope":         {c.cfg.Scope},
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		c.cfg.TokenEndpoint(), strings.NewReader(form.Encode()))
	if err != nil {
		return "", fmt.Errorf("failed to build token request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", errs.Wrap(err, errs.KindUpstream, "azure ad token request failed")
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", upstreamError(resp, "azure ad token request")
	}

	var tr tokenResponse
	if err := json.NewDecoder(resp.Body).Decode(&tr); err != nil {
		return "", errs.Wrap(err, errs.KindUpstream, "failed to decode token response")
	}
	if tr.AccessToken == "" {
		return "", errs.Upstream(resp.StatusCode, "azure ad returned an empty access token")
	}

	c.mu.Lock()
	c.token = tr.AccessToken
	c.tokenExpiry = time.Now().Add(time.Duration(tr.ExpiresIn) * time.Second)
	c.mu.Unlock()

	c.logger.WithField("expires_in", tr.ExpiresIn).Debug("renewed power bi app token")
	return tr.AccessToken, nil
}

// Workspaces lists the groups visible to the service principal.
func (c *Client) Workspaces(ctx context.Context) ([]Workspace, error) {
	var out listResponse[Workspace]
	if err := c.get(ctx, "list_workspaces", "/groups", &out); err != nil {
		return nil, err
	}
	return out.Value, nil
}

// Reports lists the reports in a workspace.
func (c *Client) Reports(ctx context.Context, workspaceID string) ([]ReportInfo, error) {
	var out listResponse[ReportInfo]
	if err := c.get(ctx, "list_reports", fmt.Sprintf("/groups/%s/reports", workspaceID), &out); err != nil {
		return nil, err
	}
	return out.Value, nil
}

// Report fetches one report's current metadata.
func (c *Client) Report(ctx context.Context, workspaceID, reportID string) (*ReportInfo, error) {
	var out ReportInfo
	if err := c.get(ctx, "get_report", fmt.Sprintf("/groups/%s/reports/%s", workspaceID, reportID), &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// GenerateToken requests an embed token for a single report. identity may
// be nil for unfiltered access.
func (c *Client) GenerateToken(ctx context.Context, workspaceID string, report *ReportInfo, identity *EmbedIdentity) (*EmbedToken, error) {
	body := generateTokenRequest{
		Reports:          []tokenReportRef{{ID: report.ID, AllowEdit: false}},
		TargetWorkspaces: []tokenWorkspaceRef{{ID: workspaceID}},
	}
	if report.DatasetID != "" {
		body.Datasets = []tokenDatasetRef{{ID: report.DatasetID}}
	}
	if identity != nil {
		body.Identities = []EmbedIdentity{*identity}
	}

	var out EmbedToken
	if err := c.post(ctx, "generate_token", "/GenerateToken", body, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) get(ctx context.Context, op, path string, out any) error {
	return c.call(ctx, op, http.MethodGet, path, nil, out)
}

func (c *Client) post(ctx context.Context, op, path string, body, out any) error {
	return c.call(ctx, op, http.MethodPost, path, body, out)
}

func (c *Client) call(ctx context.Context, op, method, path string, body, out any) (err error) {
	defer func() { c.observe(op, err) }()

	token, err := c.AppToken(ctx)
	if err != nil {
		return err
	}

	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to encode request body: %w", err)
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.cfg.APIBase+path, reader)
	if err != nil {
		return fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+token)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return errs.Wrap(err, errs.KindUpstream, "power bi request failed: %s %s", method, path)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return upstreamError(resp, fmt.Sprintf("%s %s", method, path))
	}
	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return errs.Wrap(err, errs.KindUpstream, "failed to decode response for %s %s", method, path)
		}
	}
	return nil
}

// upstreamError reads a bounded slice of the body for the log message and
// folds the status into the error.
func upstreamError(resp *http.Response, op string) error {
	snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
	return errs.Upstream(resp.StatusCode, "%s returned %d: %s", op, resp.StatusCode, strings.TrimSpace(string(snippet)))
}

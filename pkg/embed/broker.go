// Package embed produces the embed configuration a frontend needs to
// render a report: authorization decision, fresh upstream metadata, and an
// embed token carrying the caller's row-level identity.
package embed

import (
	"context"
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/reportgate/reportgate/pkg/audit"
	"github.com/reportgate/reportgate/pkg/entitlement"
	"github.com/reportgate/reportgate/pkg/identity"
	"github.com/reportgate/reportgate/pkg/powerbi"
	"github.com/reportgate/reportgate/pkg/reports"
)

// Config is the payload the frontend embed SDK consumes.
type Config struct {
	ReportID        string `json:"report_id"`
	ReportName      string `json:"report_name"`
	EmbedURL        string `json:"embed_url"`
	AccessToken     string `json:"access_token"`
	TokenID         string `json:"token_id,omitempty"`
	TokenExpiration string `json:"token_expiration,omitempty"`
	DatasetID       string `json:"dataset_id,omitempty"`
	UnitID          int64  `json:"unit_id,omitempty"`
}

// Request identifies which report to embed and, optionally, through which
// unit. UnitID 0 lets the resolver pick.
type Request struct {
	ReportID  int64
	UnitID    int64
	IP        string
	UserAgent string
}

// Upstream is the slice of the Power BI client the broker needs.
type Upstream interface {
	Report(ctx context.Context, workspaceID, reportID string) (*powerbi.ReportInfo, error)
	GenerateToken(ctx context.Context, workspaceID string, report *powerbi.ReportInfo, identity *powerbi.EmbedIdentity) (*powerbi.EmbedToken, error)
}

// ReportGetter loads catalog rows by internal ID.
type ReportGetter interface {
	GetReport(id int64) (*reports.Report, error)
}

// Broker authorizes and assembles embed configurations.
type Broker struct {
	resolver *entitlement.Resolver
	catalog  ReportGetter
	upstream Upstream
	logs     audit.Store
	logger   *logrus.Logger
}

// NewBroker creates a Broker.
func NewBroker(resolver *entitlement.Resolver, catalog ReportGetter, upstream Upstream, logs audit.Store, logger *logrus.Logger) *Broker {
	return &Broker{
		resolver: resolver,
		catalog:  catalog,
		upstream: upstream,
		logs:     logs,
		logger:   logger,
	}
}

// EmbedConfig authorizes the principal for the report, refreshes the
// report's upstream metadata and mints an embed token. The access log
// append is best effort.
func (b *Broker) EmbedConfig(ctx context.Context, principal identity.Principal, req Request) (*Config, error) {
	report, err := b.catalog.GetReport(req.ReportID)
	if err != nil {
		return nil, err
	}

	decision, err := b.resolver.Authorize(principal, report.ID, req.UnitID)
	if err != nil {
		return nil, err
	}

	// Fresh fetch so a rebound dataset or moved report is never served
	// from stale catalog rows.
	info, err := b.upstream.Report(ctx, report.WorkspaceID, report.ReportID)
	if err != nil {
		return nil, fmt.Errorf("failed to refresh report metadata: %w", err)
	}

	var embedIdentity *powerbi.EmbedIdentity
	if decision.HasRLSIdentity {
		datasets := []string{}
		if info.DatasetID != "" {
			datasets = append(datasets, info.DatasetID)
		}
		embedIdentity = &powerbi.EmbedIdentity{
			Username: decision.RLSFilterParam,
			Roles:    []string{powerbi.RLSRole},
			Datasets: datasets,
		}
	}

	token, err := b.upstream.GenerateToken(ctx, report.WorkspaceID, info, embedIdentity)
	if err != nil {
		return nil, err
	}

	b.record(principal, report.ID, audit.ActionEmbed, req.IP, req.UserAgent)

	cfg := &Config{
		ReportID:    report.ReportID,
		ReportName:  report.Name,
		EmbedURL:    info.EmbedURL,
		AccessToken: token.Token,
		TokenID:     token.TokenID,
		DatasetID:   info.DatasetID,
		UnitID:      decision.UnitID,
	}
	if !token.Expiration.IsZero() {
		cfg.TokenExpiration = token.Expiration.Format("2006-01-02T15:04:05Z07:00")
	}
	return cfg, nil
}

// RecordView appends a best-effort view entry for a report the caller
// has already been authorized to see.
func (b *Broker) RecordView(principal identity.Principal, reportID int64, ip, userAgent string) {
	b.record(principal, reportID, audit.ActionView, ip, userAgent)
}

func (b *Broker) record(principal identity.Principal, reportID int64, action audit.Action, ip, userAgent string) {
	entry := &audit.Entry{
		UserID:    principal.UserID,
		ReportID:  reportID,
		Action:    action,
		IP:        ip,
		UserAgent: userAgent,
	}
	if err := b.logs.Append(entry); err != nil {
		b.logger.WithError(err).WithFields(logrus.Fields{
			"user_id":   principal.UserID,
			"report_id": reportID,
			"action":    action,
		}).Warn("failed to append access log")
	}
}

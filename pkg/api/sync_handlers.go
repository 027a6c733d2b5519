package api

import (
	"net/http"

	"github.com/gorilla/mux"
	"github.com/sirupsen/logrus"

	"github.com/reportgate/reportgate/pkg/httputil"
	"github.com/reportgate/reportgate/pkg/reports"
)

// syncHandlers lets admins browse upstream workspaces and mirror a
// workspace's reports into the catalog.
type syncHandlers struct {
	reports  reports.Service
	upstream WorkspaceBrowser
	logger   *logrus.Logger
}

func newSyncHandlers(reportService reports.Service, upstream WorkspaceBrowser, logger *logrus.Logger) *syncHandlers {
	return &syncHandlers{reports: reportService, upstream: upstream, logger: logger}
}

func (h *syncHandlers) registerRoutes(router *mux.Router) {
	router.HandleFunc("/workspaces", h.ListWorkspaces).Methods("GET")
	router.HandleFunc("/reports/workspace/{id}/list", h.ListWorkspaceReports).Methods("GET")
	router.HandleFunc("/reports/sync/{id}", h.SyncWorkspace).Methods("POST")
}

func (h *syncHandlers) ListWorkspaces(w http.ResponseWriter, r *http.Request) {
	workspaces, err := h.upstream.Workspaces(r.Context())
	if err != nil {
		httputil.WriteDomainError(w, h.logger, err)
		return
	}
	httputil.WriteSuccess(w, workspaces)
}

func (h *syncHandlers) ListWorkspaceReports(w http.ResponseWriter, r *http.Request) {
	id, ok := httputil.ParsePathStringOrError(w, r, "id")
	if !ok {
		return
	}
	upstreamReports, err := h.upstream.Reports(r.Context(), id)
	if err != nil {
		httputil.WriteDomainError(w, h.logger, err)
		return
	}
	httputil.WriteSuccess(w, upstreamReports)
}

type syncRequest struct {
	UnitIDs []int64 `json:"unit_ids"`
}

// SyncWorkspace mirrors the workspace's report listing into the catalog:
// unknown reports are registered against the given units, known ones get
// their metadata refreshed.
func (h *syncHandlers) SyncWorkspace(w http.ResponseWriter, r *http.Request) {
	id, ok := httputil.ParsePathStringOrError(w, r, "id")
	if !ok {
		return
	}
	var req syncRequest
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}
	if len(req.UnitIDs) == 0 {
		httputil.WriteBadRequest(w, "unit_ids is required")
		return
	}

	upstreamReports, err := h.upstream.Reports(r.Context(), id)
	if err != nil {
		httputil.WriteDomainError(w, h.logger, err)
		return
	}

	items := make([]reports.SyncItem, 0, len(upstreamReports))
	for _, ur := range upstreamReports {
		items = append(items, reports.SyncItem{
			ReportID:    ur.ID,
			WorkspaceID: id,
			DatasetID:   ur.DatasetID,
			Name:        ur.Name,
			EmbedURL:    ur.EmbedURL,
		})
	}

	result, err := h.reports.Sync(id, items, req.UnitIDs)
	if err != nil {
		httputil.WriteDomainError(w, h.logger, err)
		return
	}
	httputil.WriteSuccess(w, result)
}

package api

import (
	"net/http"

	"github.com/gorilla/mux"
	"github.com/sirupsen/logrus"

	"github.com/reportgate/reportgate/pkg/embed"
	"github.com/reportgate/reportgate/pkg/entitlement"
	"github.com/reportgate/reportgate/pkg/errs"
	"github.com/reportgate/reportgate/pkg/httputil"
	"github.com/reportgate/reportgate/pkg/observability"
	"github.com/reportgate/reportgate/pkg/reports"
)

// reportHandlers serves the member-facing report surface plus the admin
// catalog and step management.
type reportHandlers struct {
	reports  reports.Service
	resolver *entitlement.Resolver
	broker   *embed.Broker
	metrics  *observability.Metrics
	logger   *logrus.Logger
}

func newReportHandlers(reportService reports.Service, resolver *entitlement.Resolver, broker *embed.Broker, metrics *observability.Metrics, logger *logrus.Logger) *reportHandlers {
	return &reportHandlers{
		reports:  reportService,
		resolver: resolver,
		broker:   broker,
		metrics:  metrics,
		logger:   logger,
	}
}

func (h *reportHandlers) registerRoutes(router *mux.Router) {
	router.HandleFunc("/reports", h.ListReports).Methods("GET")
	router.HandleFunc("/reports/{id}", h.GetReport).Methods("GET")
	router.HandleFunc("/reports/{id}/embed-config", h.EmbedConfig).Methods("GET")
	router.HandleFunc("/steps", h.ListSteps).Methods("GET")
	router.HandleFunc("/steps/{number}", h.GetStep).Methods("GET")
	router.HandleFunc("/steps/{number}/units/{unit_id}/reports", h.StepUnitReports).Methods("GET")

	admin := router.NewRoute().Subrouter()
	admin.Use(RequireAdmin)
	admin.HandleFunc("/reports", h.CreateReport).Methods("POST")
	admin.HandleFunc("/reports/{id}", h.UpdateReport).Methods("PUT")
	admin.HandleFunc("/reports/{id}", h.DeleteReport).Methods("DELETE")
	admin.HandleFunc("/reports/{id}/units", h.AttachUnits).Methods("POST")
	admin.HandleFunc("/steps", h.CreateStep).Methods("POST")
	admin.HandleFunc("/steps/{id}", h.UpdateStep).Methods("PUT")
	admin.HandleFunc("/steps/{id}", h.DeleteStep).Methods("DELETE")
}

// ListReports returns the caller's visible reports, deduplicated across
// units.
func (h *reportHandlers) ListReports(w http.ResponseWriter, r *http.Request) {
	principal, ok := PrincipalFrom(r.Context())
	if !ok {
		httputil.WriteUnauthorized(w, "authentication required")
		return
	}

	visible, err := h.resolver.VisibleReports(principal)
	if err != nil {
		httputil.WriteDomainError(w, h.logger, err)
		return
	}
	if visible == nil {
		visible = []*reports.Report{}
	}
	httputil.WriteSuccess(w, visible)
}

// GetReport returns catalog metadata for one report the caller may see.
func (h *reportHandlers) GetReport(w http.ResponseWriter, r *http.Request) {
	id, ok := httputil.ParsePathInt64OrError(w, r, "id")
	if !ok {
		return
	}
	principal, _ := PrincipalFrom(r.Context())

	if _, err := h.resolver.Authorize(principal, id, 0); err != nil {
		httputil.WriteDomainError(w, h.logger, err)
		return
	}

	report, err := h.reports.GetReport(id)
	if err != nil {
		httputil.WriteDomainError(w, h.logger, err)
		return
	}
	h.broker.RecordView(principal, report.ID, httputil.ClientIP(r), r.UserAgent())
	httputil.WriteSuccess(w, report)
}

// EmbedConfig returns everything the frontend needs to embed the report,
// including a token carrying the caller's row-level identity. ?unit_id=
// pins the identity to one of the caller's units.
func (h *reportHandlers) EmbedConfig(w http.ResponseWriter, r *http.Request) {
	id, ok := httputil.ParsePathInt64OrError(w, r, "id")
	if !ok {
		return
	}
	principal, _ := PrincipalFrom(r.Context())

	unitID, err := httputil.ParseQueryInt64(r, "unit_id", 0)
	if err != nil {
		httputil.WriteBadRequest(w, "invalid unit_id")
		return
	}

	cfg, err := h.broker.EmbedConfig(r.Context(), principal, embed.Request{
		ReportID:  id,
		UnitID:    unitID,
		IP:        httputil.ClientIP(r),
		UserAgent: r.UserAgent(),
	})
	if err != nil {
		h.observeEmbed(err)
		httputil.WriteDomainError(w, h.logger, err)
		return
	}
	h.observeEmbed(nil)
	httputil.WriteSuccess(w, cfg)
}

func (h *reportHandlers) observeEmbed(err error) {
	if h.metrics == nil {
		return
	}
	switch {
	case err == nil:
		h.metrics.ObserveEmbed("granted")
	case errs.Is(err, errs.KindAccessDenied):
		h.metrics.ObserveEmbed("denied")
	default:
		h.metrics.ObserveEmbed("error")
	}
}

func (h *reportHandlers) CreateReport(w http.ResponseWriter, r *http.Request) {
	var req reports.CreateReportRequest
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}

	report, err := h.reports.CreateReport(&req)
	if err != nil {
		httputil.WriteDomainError(w, h.logger, err)
		return
	}
	httputil.WriteCreated(w, report)
}

func (h *reportHandlers) UpdateReport(w http.ResponseWriter, r *http.Request) {
	id, ok := httputil.ParsePathInt64OrError(w, r, "id")
	if !ok {
		return
	}
	var req reports.UpdateReportRequest
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}

	report, err := h.reports.UpdateReport(id, &req)
	if err != nil {
		httputil.WriteDomainError(w, h.logger, err)
		return
	}
	httputil.WriteSuccess(w, report)
}

func (h *reportHandlers) DeleteReport(w http.ResponseWriter, r *http.Request) {
	id, ok := httputil.ParsePathInt64OrError(w, r, "id")
	if !ok {
		return
	}
	if err := h.reports.DeleteReport(id); err != nil {
		httputil.WriteDomainError(w, h.logger, err)
		return
	}
	httputil.WriteNoContent(w)
}

type attachUnitsRequest struct {
	UnitIDs []int64 `json:"unit_ids"`
}

// AttachUnits publishes an existing report to more units.
func (h *reportHandlers) AttachUnits(w http.ResponseWriter, r *http.Request) {
	id, ok := httputil.ParsePathInt64OrError(w, r, "id")
	if !ok {
		return
	}
	var req attachUnitsRequest
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}
	if len(req.UnitIDs) == 0 {
		httputil.WriteBadRequest(w, "unit_ids is required")
		return
	}

	if err := h.reports.AttachUnits(id, req.UnitIDs); err != nil {
		httputil.WriteDomainError(w, h.logger, err)
		return
	}
	httputil.WriteSuccess(w, map[string]string{"status": "attached"})
}

// GetStep looks a step up by its number, which is what clients navigate by.
func (h *reportHandlers) GetStep(w http.ResponseWriter, r *http.Request) {
	number, ok := httputil.ParsePathInt64OrError(w, r, "number")
	if !ok {
		return
	}
	step, err := h.reports.GetStepByNumber(int(number))
	if err != nil {
		httputil.WriteDomainError(w, h.logger, err)
		return
	}
	httputil.WriteSuccess(w, step)
}

// StepUnitReports lists a unit's reports carrying a step label. The caller
// must have access to the unit.
func (h *reportHandlers) StepUnitReports(w http.ResponseWriter, r *http.Request) {
	number, ok := httputil.ParsePathInt64OrError(w, r, "number")
	if !ok {
		return
	}
	unitID, ok := httputil.ParsePathInt64OrError(w, r, "unit_id")
	if !ok {
		return
	}
	principal, _ := PrincipalFrom(r.Context())
	allowed, err := h.resolver.CanAccessUnit(principal, unitID)
	if err != nil {
		httputil.WriteDomainError(w, h.logger, err)
		return
	}
	if !allowed {
		httputil.WriteForbidden(w, "no access to this unit")
		return
	}

	step, err := h.reports.GetStepByNumber(int(number))
	if err != nil {
		httputil.WriteDomainError(w, h.logger, err)
		return
	}
	stepReports, err := h.reports.ReportsByStepAndUnit(step.ID, unitID)
	if err != nil {
		httputil.WriteDomainError(w, h.logger, err)
		return
	}
	httputil.WriteSuccess(w, stepReports)
}

func (h *reportHandlers) ListSteps(w http.ResponseWriter, r *http.Request) {
	steps, err := h.reports.ListSteps()
	if err != nil {
		httputil.WriteDomainError(w, h.logger, err)
		return
	}
	httputil.WriteSuccess(w, steps)
}

func (h *reportHandlers) CreateStep(w http.ResponseWriter, r *http.Request) {
	var req reports.CreateStepRequest
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}

	step, err := h.reports.CreateStep(&req)
	if err != nil {
		httputil.WriteDomainError(w, h.logger, err)
		return
	}
	httputil.WriteCreated(w, step)
}

func (h *reportHandlers) UpdateStep(w http.ResponseWriter, r *http.Request) {
	id, ok := httputil.ParsePathInt64OrError(w, r, "id")
	if !ok {
		return
	}
	var req reports.UpdateStepRequest
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}

	step, err := h.reports.UpdateStep(id, &req)
	if err != nil {
		httputil.WriteDomainError(w, h.logger, err)
		return
	}
	httputil.WriteSuccess(w, step)
}

func (h *reportHandlers) DeleteStep(w http.ResponseWriter, r *http.Request) {
	id, ok := httputil.ParsePathInt64OrError(w, r, "id")
	if !ok {
		return
	}
	if err := h.reports.DeleteStep(id); err != nil {
		httputil.WriteDomainError(w, h.logger, err)
		return
	}
	httputil.WriteNoContent(w)
}

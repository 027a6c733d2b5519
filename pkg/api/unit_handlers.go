package api

import (
	"net/http"

	"github.com/gorilla/mux"
	"github.com/sirupsen/logrus"

	"github.com/reportgate/reportgate/pkg/entitlement"
	"github.com/reportgate/reportgate/pkg/httputil"
	"github.com/reportgate/reportgate/pkg/identity"
	"github.com/reportgate/reportgate/pkg/links"
	"github.com/reportgate/reportgate/pkg/reports"
	"github.com/reportgate/reportgate/pkg/units"
)

// unitHandlers serves unit browsing for members and unit management,
// grants and links for admins.
type unitHandlers struct {
	units    units.Service
	links    links.Service
	reports  reports.Service
	resolver *entitlement.Resolver
	logger   *logrus.Logger
}

func newUnitHandlers(unitService units.Service, linkService links.Service, reportService reports.Service, resolver *entitlement.Resolver, logger *logrus.Logger) *unitHandlers {
	return &unitHandlers{
		units:    unitService,
		links:    linkService,
		reports:  reportService,
		resolver: resolver,
		logger:   logger,
	}
}

func (h *unitHandlers) registerRoutes(router *mux.Router) {
	// Member-visible surface.
	router.HandleFunc("/units", h.ListUnits).Methods("GET")
	router.HandleFunc("/units/{id}", h.GetUnit).Methods("GET")
	router.HandleFunc("/units/{id}/reports", h.ListUnitReports).Methods("GET")
	router.HandleFunc("/units/{id}/links", h.ListUnitLinks).Methods("GET")
	router.HandleFunc("/links/{id}", h.GetLink).Methods("GET")

	// Admin-only management.
	admin := router.NewRoute().Subrouter()
	admin.Use(RequireAdmin)
	admin.HandleFunc("/units", h.CreateUnit).Methods("POST")
	admin.HandleFunc("/units/{id}", h.UpdateUnit).Methods("PUT")
	admin.HandleFunc("/units/{id}", h.DeleteUnit).Methods("DELETE")
	admin.HandleFunc("/units/{id}/users", h.ListMembers).Methods("GET")
	admin.HandleFunc("/units/{id}/users", h.Grant).Methods("POST")
	admin.HandleFunc("/units/{id}/users/{user_id}", h.UpdateGrant).Methods("PUT")
	admin.HandleFunc("/units/{id}/users/{user_id}", h.Revoke).Methods("DELETE")
	admin.HandleFunc("/units/{id}/links", h.CreateLink).Methods("POST")
	admin.HandleFunc("/links/{id}", h.UpdateLink).Methods("PUT")
	admin.HandleFunc("/links/{id}", h.DeleteLink).Methods("DELETE")
}

// ListUnits returns every unit for admins and the caller's memberships
// for members.
func (h *unitHandlers) ListUnits(w http.ResponseWriter, r *http.Request) {
	principal, _ := PrincipalFrom(r.Context())

	if principal.Role == identity.RoleAdmin {
		all, err := h.units.ListUnits()
		if err != nil {
			httputil.WriteDomainError(w, h.logger, err)
			return
		}
		httputil.WriteSuccess(w, all)
		return
	}

	memberships, err := h.units.UnitsOfUser(principal.UserID)
	if err != nil {
		httputil.WriteDomainError(w, h.logger, err)
		return
	}
	visible := make([]*units.Unit, 0, len(memberships))
	for _, m := range memberships {
		unit := m.Unit
		visible = append(visible, &unit)
	}
	httputil.WriteSuccess(w, visible)
}

func (h *unitHandlers) GetUnit(w http.ResponseWriter, r *http.Request) {
	id, ok := httputil.ParsePathInt64OrError(w, r, "id")
	if !ok {
		return
	}
	if !h.authorizeUnit(w, r, id) {
		return
	}

	unit, err := h.units.GetUnit(id)
	if err != nil {
		httputil.WriteDomainError(w, h.logger, err)
		return
	}
	httputil.WriteSuccess(w, unit)
}

// ListUnitReports lists the reports published to a unit, optionally
// narrowed to a step label via ?step_id=.
func (h *unitHandlers) ListUnitReports(w http.ResponseWriter, r *http.Request) {
	id, ok := httputil.ParsePathInt64OrError(w, r, "id")
	if !ok {
		return
	}
	if !h.authorizeUnit(w, r, id) {
		return
	}

	stepID, err := httputil.ParseQueryInt64(r, "step_id", 0)
	if err != nil {
		httputil.WriteBadRequest(w, "invalid step_id")
		return
	}

	var unitReports []*reports.Report
	if stepID != 0 {
		unitReports, err = h.reports.ReportsByStepAndUnit(stepID, id)
	} else {
		unitReports, err = h.reports.ReportsForUnit(id)
	}
	if err != nil {
		httputil.WriteDomainError(w, h.logger, err)
		return
	}
	httputil.WriteSuccess(w, unitReports)
}

func (h *unitHandlers) ListUnitLinks(w http.ResponseWriter, r *http.Request) {
	id, ok := httputil.ParsePathInt64OrError(w, r, "id")
	if !ok {
		return
	}
	if !h.authorizeUnit(w, r, id) {
		return
	}

	unitLinks, err := h.links.ListForUnit(id)
	if err != nil {
		httputil.WriteDomainError(w, h.logger, err)
		return
	}
	httputil.WriteSuccess(w, unitLinks)
}

// GetLink returns one link; the caller must have access to its unit.
func (h *unitHandlers) GetLink(w http.ResponseWriter, r *http.Request) {
	id, ok := httputil.ParsePathInt64OrError(w, r, "id")
	if !ok {
		return
	}
	link, err := h.links.Get(id)
	if err != nil {
		httputil.WriteDomainError(w, h.logger, err)
		return
	}
	if !h.authorizeUnit(w, r, link.UnitID) {
		return
	}
	httputil.WriteSuccess(w, link)
}

func (h *unitHandlers) CreateUnit(w http.ResponseWriter, r *http.Request) {
	var req units.CreateUnitRequest
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}

	unit, err := h.units.CreateUnit(&req)
	if err != nil {
		httputil.WriteDomainError(w, h.logger, err)
		return
	}
	httputil.WriteCreated(w, unit)
}

func (h *unitHandlers) UpdateUnit(w http.ResponseWriter, r *http.Request) {
	id, ok := httputil.ParsePathInt64OrError(w, r, "id")
	if !ok {
		return
	}
	var req units.UpdateUnitRequest
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}

	unit, err := h.units.UpdateUnit(id, &req)
	if err != nil {
		httputil.WriteDomainError(w, h.logger, err)
		return
	}
	httputil.WriteSuccess(w, unit)
}

// DeleteUnit removes a unit. Memberships, report visibility rows and
// links go with it; reports themselves survive.
func (h *unitHandlers) DeleteUnit(w http.ResponseWriter, r *http.Request) {
	id, ok := httputil.ParsePathInt64OrError(w, r, "id")
	if !ok {
		return
	}
	if err := h.units.DeleteUnit(id); err != nil {
		httputil.WriteDomainError(w, h.logger, err)
		return
	}
	httputil.WriteNoContent(w)
}

func (h *unitHandlers) ListMembers(w http.ResponseWriter, r *http.Request) {
	id, ok := httputil.ParsePathInt64OrError(w, r, "id")
	if !ok {
		return
	}
	members, err := h.units.MembersOfUnit(id)
	if err != nil {
		httputil.WriteDomainError(w, h.logger, err)
		return
	}
	httputil.WriteSuccess(w, members)
}

// Grant adds a user to a unit with a row-level filter value.
func (h *unitHandlers) Grant(w http.ResponseWriter, r *http.Request) {
	id, ok := httputil.ParsePathInt64OrError(w, r, "id")
	if !ok {
		return
	}
	var req units.GrantRequest
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}

	if err := h.units.Grant(req.UserID, id, req.RLSFilterParam); err != nil {
		httputil.WriteDomainError(w, h.logger, err)
		return
	}
	httputil.WriteJSON(w, http.StatusCreated, map[string]string{"status": "granted"})
}

func (h *unitHandlers) UpdateGrant(w http.ResponseWriter, r *http.Request) {
	unitID, ok := httputil.ParsePathInt64OrError(w, r, "id")
	if !ok {
		return
	}
	userID, ok := httputil.ParsePathInt64OrError(w, r, "user_id")
	if !ok {
		return
	}
	var req units.GrantRequest
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}

	if err := h.units.UpdateGrant(userID, unitID, req.RLSFilterParam); err != nil {
		httputil.WriteDomainError(w, h.logger, err)
		return
	}
	httputil.WriteSuccess(w, map[string]string{"status": "updated"})
}

func (h *unitHandlers) Revoke(w http.ResponseWriter, r *http.Request) {
	unitID, ok := httputil.ParsePathInt64OrError(w, r, "id")
	if !ok {
		return
	}
	userID, ok := httputil.ParsePathInt64OrError(w, r, "user_id")
	if !ok {
		return
	}

	if err := h.units.Revoke(userID, unitID); err != nil {
		httputil.WriteDomainError(w, h.logger, err)
		return
	}
	httputil.WriteNoContent(w)
}

func (h *unitHandlers) CreateLink(w http.ResponseWriter, r *http.Request) {
	id, ok := httputil.ParsePathInt64OrError(w, r, "id")
	if !ok {
		return
	}
	var req links.CreateLinkRequest
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}

	link, err := h.links.Create(id, &req)
	if err != nil {
		httputil.WriteDomainError(w, h.logger, err)
		return
	}
	httputil.WriteCreated(w, link)
}

func (h *unitHandlers) UpdateLink(w http.ResponseWriter, r *http.Request) {
	id, ok := httputil.ParsePathInt64OrError(w, r, "id")
	if !ok {
		return
	}
	var req links.UpdateLinkRequest
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}

	link, err := h.links.Update(id, &req)
	if err != nil {
		httputil.WriteDomainError(w, h.logger, err)
		return
	}
	httputil.WriteSuccess(w, link)
}

func (h *unitHandlers) DeleteLink(w http.ResponseWriter, r *http.Request) {
	id, ok := httputil.ParsePathInt64OrError(w, r, "id")
	if !ok {
		return
	}
	if err := h.links.Delete(id); err != nil {
		httputil.WriteDomainError(w, h.logger, err)
		return
	}
	httputil.WriteNoContent(w)
}

// authorizeUnit enforces unit visibility for the caller and writes the
// error response on denial.
func (h *unitHandlers) authorizeUnit(w http.ResponseWriter, r *http.Request, unitID int64) bool {
	principal, ok := PrincipalFrom(r.Context())
	if !ok {
		httputil.WriteUnauthorized(w, "authentication required")
		return false
	}
	allowed, err := h.resolver.CanAccessUnit(principal, unitID)
	if err != nil {
		httputil.WriteDomainError(w, h.logger, err)
		return false
	}
	if !allowed {
		httputil.WriteForbidden(w, "no access to this unit")
		return false
	}
	return true
}

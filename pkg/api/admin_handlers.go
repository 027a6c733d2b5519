package api

import (
	"net/http"

	"github.com/gorilla/mux"
	"github.com/sirupsen/logrus"

	"github.com/reportgate/reportgate/pkg/audit"
	"github.com/reportgate/reportgate/pkg/httputil"
	"github.com/reportgate/reportgate/pkg/identity"
	"github.com/reportgate/reportgate/pkg/reports"
	"github.com/reportgate/reportgate/pkg/units"
)

// adminHandlers serves user management, access logs and summary stats.
// All routes are mounted behind RequireAdmin.
type adminHandlers struct {
	users   identity.Service
	units   units.Service
	reports reports.Service
	logs    audit.Store
	logger  *logrus.Logger
}

func newAdminHandlers(users identity.Service, unitService units.Service, reportService reports.Service, logs audit.Store, logger *logrus.Logger) *adminHandlers {
	return &adminHandlers{
		users:   users,
		units:   unitService,
		reports: reportService,
		logs:    logs,
		logger:  logger,
	}
}

func (h *adminHandlers) registerRoutes(router *mux.Router) {
	router.HandleFunc("/admin/users", h.CreateUser).Methods("POST")
	router.HandleFunc("/admin/users", h.ListUsers).Methods("GET")
	router.HandleFunc("/admin/users/{id}", h.GetUser).Methods("GET")
	router.HandleFunc("/admin/users/{id}", h.UpdateUser).Methods("PUT")
	router.HandleFunc("/admin/users/{id}", h.DeleteUser).Methods("DELETE")
	router.HandleFunc("/admin/users/{id}/units", h.UserUnits).Methods("GET")

	router.HandleFunc("/admin/access-logs", h.AccessLogs).Methods("GET")
	router.HandleFunc("/admin/stats", h.Stats).Methods("GET")
}

func (h *adminHandlers) CreateUser(w http.ResponseWriter, r *http.Request) {
	var req identity.CreateUserRequest
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}

	user, err := h.users.CreateUser(&req)
	if err != nil {
		httputil.WriteDomainError(w, h.logger, err)
		return
	}
	httputil.WriteCreated(w, user)
}

func (h *adminHandlers) ListUsers(w http.ResponseWriter, r *http.Request) {
	users, err := h.users.ListUsers()
	if err != nil {
		httputil.WriteDomainError(w, h.logger, err)
		return
	}
	httputil.WriteSuccess(w, users)
}

func (h *adminHandlers) GetUser(w http.ResponseWriter, r *http.Request) {
	id, ok := httputil.ParsePathInt64OrError(w, r, "id")
	if !ok {
		return
	}
	user, err := h.users.GetUser(id)
	if err != nil {
		httputil.WriteDomainError(w, h.logger, err)
		return
	}
	httputil.WriteSuccess(w, user)
}

func (h *adminHandlers) UpdateUser(w http.ResponseWriter, r *http.Request) {
	id, ok := httputil.ParsePathInt64OrError(w, r, "id")
	if !ok {
		return
	}
	var req identity.UpdateUserRequest
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}

	user, err := h.users.UpdateUser(id, &req)
	if err != nil {
		httputil.WriteDomainError(w, h.logger, err)
		return
	}
	httputil.WriteSuccess(w, user)
}

// DeleteUser removes a user along with their memberships and access logs.
func (h *adminHandlers) DeleteUser(w http.ResponseWriter, r *http.Request) {
	id, ok := httputil.ParsePathInt64OrError(w, r, "id")
	if !ok {
		return
	}
	if err := h.users.DeleteUser(id); err != nil {
		httputil.WriteDomainError(w, h.logger, err)
		return
	}
	httputil.WriteNoContent(w)
}

// UserUnits lists a user's memberships with their filter values.
func (h *adminHandlers) UserUnits(w http.ResponseWriter, r *http.Request) {
	id, ok := httputil.ParsePathInt64OrError(w, r, "id")
	if !ok {
		return
	}
	memberships, err := h.units.UnitsOfUser(id)
	if err != nil {
		httputil.WriteDomainError(w, h.logger, err)
		return
	}
	httputil.WriteSuccess(w, memberships)
}

// AccessLogs lists report access events, newest first. Supports
// ?user_id=, ?report_id=, ?limit= and ?offset=.
func (h *adminHandlers) AccessLogs(w http.ResponseWriter, r *http.Request) {
	filter := audit.Filter{}
	var err error
	if filter.UserID, err = httputil.ParseQueryInt64(r, "user_id", 0); err != nil {
		httputil.WriteBadRequest(w, "invalid user_id")
		return
	}
	if filter.ReportID, err = httputil.ParseQueryInt64(r, "report_id", 0); err != nil {
		httputil.WriteBadRequest(w, "invalid report_id")
		return
	}
	limit, err := httputil.ParseQueryInt64(r, "limit", 0)
	if err != nil {
		httputil.WriteBadRequest(w, "invalid limit")
		return
	}
	offset, err := httputil.ParseQueryInt64(r, "offset", 0)
	if err != nil {
		httputil.WriteBadRequest(w, "invalid offset")
		return
	}
	filter.Limit = int(limit)
	filter.Offset = int(offset)

	entries, err := h.logs.List(filter)
	if err != nil {
		httputil.WriteDomainError(w, h.logger, err)
		return
	}
	if entries == nil {
		entries = []*audit.Entry{}
	}
	httputil.WriteSuccess(w, entries)
}

type statsResponse struct {
	Users   int `json:"users"`
	Units   int `json:"units"`
	Reports int `json:"reports"`
	Steps   int `json:"steps"`
}

// Stats returns entity counts for the admin dashboard.
func (h *adminHandlers) Stats(w http.ResponseWriter, r *http.Request) {
	users, err := h.users.ListUsers()
	if err != nil {
		httputil.WriteDomainError(w, h.logger, err)
		return
	}
	allUnits, err := h.units.ListUnits()
	if err != nil {
		httputil.WriteDomainError(w, h.logger, err)
		return
	}
	allReports, err := h.reports.ListReports()
	if err != nil {
		httputil.WriteDomainError(w, h.logger, err)
		return
	}
	steps, err := h.reports.ListSteps()
	if err != nil {
		httputil.WriteDomainError(w, h.logger, err)
		return
	}

	httputil.WriteSuccess(w, statsResponse{
		Users:   len(users),
		Units:   len(allUnits),
		Reports: len(allReports),
		Steps:   len(steps),
	})
}

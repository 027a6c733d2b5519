// Package httputil provides HTTP helpers for standardized request and
// response handling.
//
// Response helpers write JSON bodies with consistent shapes:
//
//	httputil.WriteJSON(w, http.StatusOK, data)
//	httputil.WriteDomainError(w, logger, err) // maps errs.Kind to status
//
// Request helpers parse JSON bodies, path and query parameters:
//
//	var req CreateUnitRequest
//	if !httputil.ParseJSONOrError(w, r, &req) {
//		return // error response already written
//	}
//	id, ok := httputil.ParsePathInt64OrError(w, r, "id")
//
// Generic middleware (request ID, logging, recovery) also lives here;
// authentication middleware is in pkg/api.
package httputil

package httputil

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/sirupsen/logrus"

	"github.com/reportgate/reportgate/pkg/errs"
)

// WriteJSON writes a JSON response with the given status code
func WriteJSON(w http.ResponseWriter, status int, data interface{}) error {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	return json.NewEncoder(w).Encode(data)
}

// WriteErrorMessage writes a JSON error response with a custom message
func WriteErrorMessage(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]string{
		"error": message,
	})
}

// WriteCreated writes a successful creation response (201 Created)
func WriteCreated(w http.ResponseWriter, data interface{}) error {
	return WriteJSON(w, http.StatusCreated, data)
}

// WriteSuccess writes a successful response (200 OK)
func WriteSuccess(w http.ResponseWriter, data interface{}) error {
	return WriteJSON(w, http.StatusOK, data)
}

// WriteNoContent writes a successful response with no content (204)
func WriteNoContent(w http.ResponseWriter) {
	w.WriteHeader(http.StatusNoContent)
}

// WriteBadRequest writes a bad request error (400)
func WriteBadRequest(w http.ResponseWriter, message string) {
	WriteErrorMessage(w, http.StatusBadRequest, message)
}

// WriteUnauthorized writes an unauthorized error (401)
func WriteUnauthorized(w http.ResponseWriter, message string) {
	WriteErrorMessage(w, http.StatusUnauthorized, message)
}

// WriteForbidden writes a forbidden error (403)
func WriteForbidden(w http.ResponseWriter, message string) {
	WriteErrorMessage(w, http.StatusForbidden, message)
}

// WriteNotFound writes a not found error (404)
func WriteNotFound(w http.ResponseWriter, message string) {
	WriteErrorMessage(w, http.StatusNotFound, message)
}

// WriteConflict writes a conflict error (409)
func WriteConflict(w http.ResponseWriter, message string) {
	WriteErrorMessage(w, http.StatusConflict, message)
}

// upstreamErrorResponse carries the provider status alongside the message
// so operators can distinguish provider faults from local ones.
type upstreamErrorResponse struct {
	Error          string `json:"error"`
	UpstreamStatus int    `json:"upstream_status,omitempty"`
}

// WriteDomainError maps a classified error to its HTTP representation.
// Configuration errors are logged at error level and rendered opaquely;
// everything else surfaces its message to the client.
func WriteDomainError(w http.ResponseWriter, logger *logrus.Logger, err error) {
	kind := errs.KindOf(err)
	switch kind {
	case errs.KindNotFound:
		WriteNotFound(w, err.Error())
	case errs.KindAccessDenied:
		WriteForbidden(w, err.Error())
	case errs.KindUnauthorized:
		WriteUnauthorized(w, err.Error())
	case errs.KindValidation:
		WriteBadRequest(w, err.Error())
	case errs.KindConflict:
		WriteConflict(w, err.Error())
	case errs.KindUpstream:
		var de *errs.Error
		status := 0
		if errors.As(err, &de) {
			status = de.UpstreamStatus
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusBadGateway)
		json.NewEncoder(w).Encode(upstreamErrorResponse{
			Error:          err.Error(),
			UpstreamStatus: status,
		})
	default:
		// Data-integrity bugs and unclassified faults: log loudly,
		// leak nothing.
		if logger != nil {
			logger.WithError(err).Error("internal error")
		}
		WriteErrorMessage(w, http.StatusInternalServerError, "internal server error")
	}
}

package httpserver

import (
	"encoding/json"
	"errors"
	"net/http"

	"schoolhub/internal/store"
	"schoolhub/internal/tenant"
)

type apiError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Schema  string `json:"schema,omitempty"`
}

type errorEnvelope struct {
	Error apiError `json:"error"`
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, errorEnvelope{Error: apiError{Code: code, Message: message}})
}

// writeTenantError maps tenant and registry sentinels to client errors.
// It reports false for anything else so the caller can log and answer 500.
func writeTenantError(w http.ResponseWriter, schema string, err error) bool {
	e := apiError{Message: err.Error(), Schema: schema}
	status := http.StatusBadRequest
	switch {
	case errors.Is(err, tenant.ErrInvalidSchemaName):
		e.Code = "invalid_schema"
	case errors.Is(err, store.ErrTenantNameEmpty):
		e.Code = "invalid_name"
	case errors.Is(err, store.ErrTenantExists):
		e.Code, status = "tenant_exists", http.StatusConflict
	case errors.Is(err, store.ErrTenantNotFound):
		e.Code, status = "tenant_not_found", http.StatusNotFound
	default:
		return false
	}
	writeJSON(w, status, errorEnvelope{Error: e})
	return true
}

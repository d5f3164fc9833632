package httpserver

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"

	"schoolhub/internal/auth"
	"schoolhub/internal/db"
	"schoolhub/internal/introspect"
	"schoolhub/internal/store"
	"schoolhub/internal/tenant"
)

type tenantRegistry interface {
	ListTenants(ctx context.Context) ([]store.Tenant, error)
}

type tenantCreator interface {
	Create(ctx context.Context, in tenant.CreateInput) (*store.Tenant, error)
}

type schemaInspector interface {
	InspectSchema(ctx context.Context, schema string) (introspect.SchemaInfo, error)
	SchemaExists(ctx context.Context, schema string) bool
	TableCount(ctx context.Context, schema string) int
}

type tenantQuerier interface {
	WithTenant(ctx context.Context, schema string, fn func(ctx context.Context, q db.DBTX) error) error
}

type TenantHandler struct {
	registry  tenantRegistry
	creator   tenantCreator
	inspector schemaInspector
	scope     tenantQuerier
	logger    appLogger
}

func NewTenantHandler(registry tenantRegistry, creator tenantCreator, inspector schemaInspector, scope tenantQuerier, logger appLogger) *TenantHandler {
	return &TenantHandler{
		registry:  registry,
		creator:   creator,
		inspector: inspector,
		scope:     scope,
		logger:    logger,
	}
}

func (h *TenantHandler) List(w http.ResponseWriter, r *http.Request) {
	tenants, err := h.registry.ListTenants(r.Context())
	if err != nil {
		h.logger.Error("list tenants failed", "error", err)
		writeError(w, http.StatusInternalServerError, "list_failed", "failed to list tenants")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"tenants": tenants})
}

type createTenantRequest struct {
	DisplayName string `json:"display_name"`
	SchemaName  string `json:"schema_name"`
}

func (h *TenantHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req createTenantRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_json", "invalid request body")
		return
	}
	in := tenant.CreateInput{DisplayName: req.DisplayName, SchemaName: req.SchemaName}
	if p, ok := auth.PrincipalFromContext(r.Context()); ok {
		in.Actor = p.Name
	}

	created, err := h.creator.Create(r.Context(), in)
	if err != nil {
		if writeTenantError(w, req.SchemaName, err) {
			return
		}
		h.logger.Error("create tenant failed", "schema", req.SchemaName, "error", err)
		writeError(w, http.StatusInternalServerError, "create_failed", "failed to create tenant")
		return
	}
	writeJSON(w, http.StatusCreated, created)
}

func (h *TenantHandler) Schema(w http.ResponseWriter, r *http.Request) {
	schema := chi.URLParam(r, "schema")
	info, err := h.inspector.InspectSchema(r.Context(), schema)
	if err != nil {
		if writeTenantError(w, schema, err) {
			return
		}
		h.logger.Error("inspect schema failed", "error", err)
		writeError(w, http.StatusInternalServerError, "inspect_failed", "failed to inspect schema")
		return
	}
	writeJSON(w, http.StatusOK, info)
}

func (h *TenantHandler) Exists(w http.ResponseWriter, r *http.Request) {
	schema := chi.URLParam(r, "schema")
	if err := tenant.AssertValidSchemaName(schema); err != nil {
		writeTenantError(w, schema, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"schema_name": schema,
		"exists":      h.inspector.SchemaExists(r.Context(), schema),
		"table_count": h.inspector.TableCount(r.Context(), schema),
	})
}

type statsResponse struct {
	SchemaName string         `json:"schema_name"`
	RowCounts  map[string]int `json:"row_counts"`
	Missing    []string       `json:"missing_tables"`
}

// Stats counts rows of every present baseline table through a connection
// scoped to the tenant, so table names resolve inside its schema.
func (h *TenantHandler) Stats(w http.ResponseWriter, r *http.Request) {
	schema, err := tenant.SchemaFromContext(r.Context())
	if err != nil {
		writeError(w, http.StatusBadRequest, "missing_tenant", err.Error())
		return
	}
	info, err := h.inspector.InspectSchema(r.Context(), schema)
	if err != nil {
		h.logger.Error("inspect schema failed", "schema", schema, "error", err)
		writeError(w, http.StatusInternalServerError, "inspect_failed", "failed to inspect schema")
		return
	}

	present := make(map[string]struct{}, len(info.Tables))
	for _, t := range info.Tables {
		present[t] = struct{}{}
	}
	resp := statsResponse{SchemaName: schema, RowCounts: map[string]int{}, Missing: info.MissingTables}
	err = h.scope.WithTenant(r.Context(), schema, func(ctx context.Context, q db.DBTX) error {
		for _, table := range info.ExpectedTables {
			if _, ok := present[table]; !ok {
				continue
			}
			var n int
			if err := q.QueryRow(ctx, "SELECT count(*) FROM "+db.QuoteIdent(table)).Scan(&n); err != nil {
				return err
			}
			resp.RowCounts[table] = n
		}
		return nil
	})
	if err != nil {
		h.logger.Error("tenant stats failed", "schema", schema, "error", err)
		writeError(w, http.StatusInternalServerError, "stats_failed", "failed to collect tenant stats")
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

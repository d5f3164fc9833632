package httpserver

import (
	"context"
	"net/http"

	"schoolhub/internal/migrate"
)

type migrationLedger interface {
	ListMigrationRecords(ctx context.Context) ([]migrate.Record, error)
}

type pendingLister interface {
	Pending(ctx context.Context) ([]string, error)
}

type MigrationHandler struct {
	ledger  migrationLedger
	pending pendingLister
	logger  appLogger
}

func NewMigrationHandler(ledger migrationLedger, pending pendingLister, logger appLogger) *MigrationHandler {
	return &MigrationHandler{ledger: ledger, pending: pending, logger: logger}
}

type migrationStatusResponse struct {
	Migrations []migrate.Record `json:"migrations"`
	Pending    []string         `json:"pending"`
	Failed     int              `json:"failed"`
}

func (h *MigrationHandler) List(w http.ResponseWriter, r *http.Request) {
	records, err := h.ledger.ListMigrationRecords(r.Context())
	if err != nil {
		h.logger.Error("list migrations failed", "error", err)
		writeError(w, http.StatusInternalServerError, "list_failed", "failed to list migrations")
		return
	}
	pending, err := h.pending.Pending(r.Context())
	if err != nil {
		h.logger.Error("list pending migrations failed", "error", err)
		writeError(w, http.StatusInternalServerError, "list_failed", "failed to list pending migrations")
		return
	}

	resp := migrationStatusResponse{Migrations: records, Pending: pending}
	if resp.Migrations == nil {
		resp.Migrations = []migrate.Record{}
	}
	if resp.Pending == nil {
		resp.Pending = []string{}
	}
	for _, rec := range records {
		if !rec.Succeeded() {
			resp.Failed++
		}
	}
	writeJSON(w, http.StatusOK, resp)
}

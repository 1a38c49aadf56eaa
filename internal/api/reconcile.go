package api

import (
	"net/http"

	"github.com/UnknownOlympus/custodian/internal/reconcile"
	"github.com/go-chi/chi/v5"
)

// ReconcileResult is the summary of a manual pass.
type ReconcileResult struct {
	Kind          string `json:"kind"`
	AffectedCount int    `json:"affected_count"`
	SkippedCount  int    `json:"skipped_count"`
}

// HandleReconcile runs the pass named in the path synchronously.
func (h *Handler) HandleReconcile(w http.ResponseWriter, r *http.Request) {
	actor, _ := ActorFromContext(r.Context())

	kind, err := reconcile.ParseKind(chi.URLParam(r, "kind"))
	if err != nil {
		writeError(h.log, w, r, err)
		return
	}

	h.log.InfoContext(r.Context(), "Manual reconcile requested", "kind", kind, "actor_id", actor.ID)
	result, err := h.reconciler.Run(r.Context(), kind, h.now())
	if err != nil {
		writeError(h.log, w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, ReconcileResult{
		Kind:          string(result.Kind),
		AffectedCount: result.Affected,
		SkippedCount:  result.Skipped,
	})
}

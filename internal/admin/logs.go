package admin

import (
	"context"
	"net/http"

	"github.com/ftauth/identity/internal/activity"
	"github.com/ftauth/identity/internal/database"
	fthttp "github.com/ftauth/identity/pkg/http"
)

type logHandler struct {
	recorder *activity.Recorder
}

func (h logHandler) ListLogs(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), database.DefaultTimeout)
	defer cancel()

	entries, err := h.recorder.ListAll(ctx)
	if err != nil {
		fthttp.WriteError(w, r, err)
		return
	}

	fthttp.WriteJSON(w, http.StatusOK, entries)
}

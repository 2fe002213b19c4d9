package http

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/secmon-lab/bulkdm/pkg/utils/errutil"
	"github.com/secmon-lab/bulkdm/pkg/utils/logging"
)

type errorResponse struct {
	OK      bool   `json:"ok"`
	Error   string `json:"error"`
	LogPath string `json:"logPath,omitempty"`
}

func writeJSON(ctx context.Context, w http.ResponseWriter, status int, v any) {
	data, err := json.Marshal(v)
	if err != nil {
		errutil.HandleHTTP(ctx, w, err, http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if _, err := w.Write(data); err != nil {
		logging.From(ctx).Warn("failed to write response", "error", err.Error())
	}
}

// writeError replies with a JSON failure. Server-side failures are logged
// with their goerr values before the operator-facing message is sent.
func writeError(ctx context.Context, w http.ResponseWriter, status int, err error, msg string, logPath string) {
	if status >= http.StatusInternalServerError {
		_ = errutil.Handle(ctx, err, msg)
	} else {
		logging.From(ctx).Warn(msg, "status", status, "error", err.Error())
	}
	writeJSON(ctx, w, status, errorResponse{Error: msg, LogPath: logPath})
}

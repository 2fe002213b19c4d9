package http

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/m-mizutani/goerr/v2"
	"github.com/secmon-lab/bulkdm/pkg/domain/model"
	"github.com/secmon-lab/bulkdm/pkg/usecase"
)

type rosterResponse struct {
	OK           bool                `json:"ok"`
	Users        []model.RosterEntry `json:"users"`
	CSVPath      string              `json:"csvPath"`
	LastSyncedAt *time.Time          `json:"lastSyncedAt"`
}

func (s *Server) getRoster(w http.ResponseWriter, r *http.Request) {
	resp := rosterResponse{
		OK:      true,
		Users:   s.roster.Cached(),
		CSVPath: s.roster.CSVPath(),
	}
	if resp.Users == nil {
		resp.Users = []model.RosterEntry{}
	}
	if at := s.roster.LastSyncedAt(); !at.IsZero() {
		resp.LastSyncedAt = &at
	}
	writeJSON(r.Context(), w, http.StatusOK, resp)
}

type syncResponse struct {
	*model.SyncResult
	Users   []model.RosterEntry `json:"users,omitempty"`
	CSVPath string              `json:"csvPath,omitempty"`
}

// syncRoster always answers with the sync result body. The status code
// separates served rosters (200) from rate limited (429) and other (502)
// hard failures.
func (s *Server) syncRoster(w http.ResponseWriter, r *http.Request) {
	force := false
	if v := r.URL.Query().Get("force"); v != "" {
		parsed, err := strconv.ParseBool(v)
		if err != nil {
			writeError(r.Context(), w, http.StatusBadRequest,
				goerr.Wrap(err, "invalid force parameter", goerr.V("force", v)),
				"force must be a boolean", "")
			return
		}
		force = parsed
	}

	result := s.roster.Sync(r.Context(), force)
	resp := syncResponse{SyncResult: result}
	if result.Roster != nil {
		resp.Users = result.Roster.Entries
		resp.CSVPath = result.Roster.CSVPath
	}

	status := http.StatusOK
	switch {
	case result.Roster != nil:
	case result.RateLimited:
		status = http.StatusTooManyRequests
		if result.RetryAfter != nil {
			w.Header().Set("Retry-After", strconv.Itoa(*result.RetryAfter))
		}
	default:
		status = http.StatusBadGateway
	}
	writeJSON(r.Context(), w, status, resp)
}

func (s *Server) reloadRoster(w http.ResponseWriter, r *http.Request) {
	roster, err := s.roster.ReloadFromCSV(r.Context())
	if err != nil {
		if errors.Is(err, usecase.ErrRosterFileNotFound) {
			writeError(r.Context(), w, http.StatusNotFound, err,
				"CSV not found. Sync from Slack first.", s.roster.LogPath())
			return
		}
		writeError(r.Context(), w, http.StatusInternalServerError, err,
			"Failed to reload CSV.", s.roster.LogPath())
		return
	}

	writeJSON(r.Context(), w, http.StatusOK, syncResponse{
		SyncResult: &model.SyncResult{OK: true, LogPath: s.roster.LogPath()},
		Users:      roster.Entries,
		CSVPath:    roster.CSVPath,
	})
}

func (s *Server) openRoster(w http.ResponseWriter, r *http.Request) {
	if err := s.roster.OpenRosterFile(r.Context()); err != nil {
		if errors.Is(err, usecase.ErrRosterFileNotFound) {
			writeError(r.Context(), w, http.StatusNotFound, err,
				"CSV not found. Sync from Slack first.", s.roster.LogPath())
			return
		}
		writeError(r.Context(), w, http.StatusInternalServerError, err,
			"Failed to open CSV.", s.roster.LogPath())
		return
	}

	writeJSON(r.Context(), w, http.StatusOK, map[string]any{
		"ok":      true,
		"csvPath": s.roster.CSVPath(),
	})
}

func (s *Server) getLogPath(w http.ResponseWriter, r *http.Request) {
	writeJSON(r.Context(), w, http.StatusOK, map[string]any{
		"logPath": s.roster.LogPath(),
	})
}

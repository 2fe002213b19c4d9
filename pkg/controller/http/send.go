package http

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/m-mizutani/goerr/v2"
	"github.com/secmon-lab/bulkdm/pkg/domain/model"
	"github.com/secmon-lab/bulkdm/pkg/usecase"
)

// maxRequestBody bounds JSON request bodies
const maxRequestBody = 1 << 20

func (s *Server) send(w http.ResponseWriter, r *http.Request) {
	var req model.SendRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxRequestBody)).Decode(&req); err != nil {
		writeError(r.Context(), w, http.StatusBadRequest,
			goerr.Wrap(err, "failed to decode send request"), "Invalid request body.", "")
		return
	}

	if err := usecase.ValidateSendRequest(req); err != nil {
		msg := "Invalid send request."
		switch {
		case errors.Is(err, usecase.ErrNoRecipients):
			msg = "Select at least one user."
		case errors.Is(err, usecase.ErrEmptyMessage):
			msg = "Message text is required."
		}
		writeError(r.Context(), w, http.StatusBadRequest, err, msg, "")
		return
	}

	report := s.dispatch.SendTo(r.Context(), req)
	if report.Failures == nil {
		report.Failures = []model.SendOutcome{}
	}
	writeJSON(r.Context(), w, http.StatusOK, report)
}

type attachmentsDirRequest struct {
	Path string `json:"path"`
}

func (s *Server) chooseAttachmentsDir(w http.ResponseWriter, r *http.Request) {
	var req attachmentsDirRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxRequestBody)).Decode(&req); err != nil {
		writeError(r.Context(), w, http.StatusBadRequest,
			goerr.Wrap(err, "failed to decode attachments dir request"), "Invalid request body.", "")
		return
	}
	if req.Path == "" {
		writeError(r.Context(), w, http.StatusBadRequest,
			goerr.New("empty attachments dir"), "Directory path is required.", "")
		return
	}

	dir, err := s.dispatch.ChooseAttachmentsDir(r.Context(), req.Path)
	if err != nil {
		if errors.Is(err, usecase.ErrAttachmentsDirInvalid) {
			writeError(r.Context(), w, http.StatusBadRequest, err, "Not a directory: "+req.Path, "")
			return
		}
		writeError(r.Context(), w, http.StatusInternalServerError, err, "Failed to read directory.", "")
		return
	}

	writeJSON(r.Context(), w, http.StatusOK, map[string]any{
		"ok":       true,
		"path":     dir.Path,
		"pdfCount": dir.PDFCount,
	})
}

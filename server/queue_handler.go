package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"queuesync/logger"
	"queuesync/model"
	"queuesync/repository"
)

// queueUpdateRequest is the PUT /api/queue body.
type queueUpdateRequest struct {
	State model.PlaybackState `json:"state"`
}

// GetQueueHandler serves the user's queue view with an ETag carrying the
// revision. Users without a queue get the empty default state at revision 0
// rather than an error.
func (h *APIHandler) GetQueueHandler(w http.ResponseWriter, r *http.Request) {
	did, err := GetDIDFromContext(r.Context())
	if err != nil {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	view, err := h.queueService.GetQueue(r.Context(), did)
	if err != nil {
		logger.Error("failed to get queue",
			logger.String("did", did),
			logger.ErrorField(err))
		writeError(w, http.StatusInternalServerError, "failed to get queue")
		return
	}

	if view == nil {
		autoAdvance, err := h.prefRepo.GetAutoAdvance(r.Context(), did)
		if err != nil {
			logger.Warn("auto_advance lookup failed, using default",
				logger.String("did", did),
				logger.ErrorField(err))
		}
		view = &model.QueueView{
			State: model.MergedState{
				PlaybackState: model.EmptyPlaybackState(),
				AutoAdvance:   autoAdvance,
			},
			Revision: 0,
			Tracks:   []*model.Track{},
		}
	}

	w.Header().Set("ETag", etagForRevision(view.Revision))
	writeJSON(w, http.StatusOK, view)
}

// UpdateQueueHandler overwrites the user's queue with optimistic locking via
// the If-Match header. A missing header is an unconditional write; a stale
// revision yields 409 and the caller is expected to re-fetch and retry.
func (h *APIHandler) UpdateQueueHandler(w http.ResponseWriter, r *http.Request) {
	did, err := GetDIDFromContext(r.Context())
	if err != nil {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	var req queueUpdateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	expectedRevision, err := parseIfMatch(r.Header.Get("If-Match"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid If-Match header format (expected quoted integer)")
		return
	}

	view, err := h.queueService.UpdateQueue(r.Context(), did, req.State, expectedRevision)
	if err != nil {
		if errors.Is(err, repository.ErrRevisionConflict) {
			writeError(w, http.StatusConflict,
				"queue state conflict: state has been modified by another client. please fetch the latest state and retry.")
			return
		}
		logger.Error("failed to update queue",
			logger.String("did", did),
			logger.ErrorField(err))
		writeError(w, http.StatusInternalServerError, "failed to update queue")
		return
	}

	w.Header().Set("ETag", etagForRevision(view.Revision))
	writeJSON(w, http.StatusOK, view)
}

// parseIfMatch extracts the expected revision from an If-Match header value.
// The wire format is the quoted revision integer, e.g. `"3"`. An absent
// header means an unconditional write and returns (nil, nil).
func parseIfMatch(value string) (*int64, error) {
	if value == "" {
		return nil, nil
	}
	revision, err := strconv.ParseInt(strings.Trim(value, `"`), 10, 64)
	if err != nil {
		return nil, fmt.Errorf("invalid If-Match value %q: %w", value, err)
	}
	return &revision, nil
}

func etagForRevision(revision int64) string {
	return fmt.Sprintf(`"%d"`, revision)
}

package api

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"
	"github.com/nasermirzaei89/marginalia/karma"
	"github.com/nasermirzaei89/marginalia/moderation"
)

type voteRequest struct {
	Score int `json:"score"`
}

func (h *Handler) handleVote(w http.ResponseWriter, r *http.Request) {
	sub, ok := h.requireSubject(w, r)
	if !ok {
		return
	}

	var req voteRequest
	if !h.decodeJSON(w, r, &req) {
		return
	}

	commentID := mux.Vars(r)["commentID"]

	// Voting on a comment that does not exist is a 404, not a silent
	// orphan row.
	if _, err := h.commentsSvc.Find(r.Context(), commentID); err != nil {
		h.writeError(w, r, err)

		return
	}

	err := h.karmaSvc.Vote(r.Context(), sub, commentID, req.Score)
	if err != nil {
		h.writeError(w, r, err)

		return
	}

	w.WriteHeader(http.StatusNoContent)
}

type karmaResponse struct {
	Good      int  `json:"good"`
	Bad       int  `json:"bad"`
	Displayed bool `json:"displayed"`
	Score     int  `json:"score"`
}

func (h *Handler) handleKarma(w http.ResponseWriter, r *http.Request) {
	commentID := mux.Vars(r)["commentID"]

	good, bad, displayed, err := h.karmaSvc.Total(r.Context(), commentID)
	if err != nil {
		h.writeError(w, r, err)

		return
	}

	var avg *float64

	if total := good + bad; total > 0 {
		v := float64(good-bad) / float64(total)
		avg = &v
	}

	h.writeJSON(w, r, karmaResponse{
		Good:      good,
		Bad:       bad,
		Displayed: displayed,
		Score:     karma.PrettyScore(avg),
	}, http.StatusOK)
}

func (h *Handler) handleFlag(w http.ResponseWriter, r *http.Request) {
	sub, ok := h.requireSubject(w, r)
	if !ok {
		return
	}

	result, err := h.flagsSvc.Flag(r.Context(), sub, mux.Vars(r)["commentID"])
	if err != nil {
		h.writeError(w, r, err)

		return
	}

	h.writeJSON(w, r, map[string]string{"result": result.String()}, http.StatusOK)
}

type deletionResponse struct {
	ID          string    `json:"id"`
	ModeratorID string    `json:"moderator_id"`
	CommentID   string    `json:"comment_id"`
	DeletedAt   time.Time `json:"deleted_at"`
}

func (h *Handler) handleListDeletions(w http.ResponseWriter, r *http.Request) {
	if _, ok := h.requireModerator(w, r); !ok {
		return
	}

	q := r.URL.Query()

	params := moderation.ListDeletionsParams{
		ModeratorID: q.Get("moderator_id"),
		CommentID:   q.Get("comment_id"),
	}

	if offset := q.Get("offset"); offset != "" {
		v, err := strconv.ParseUint(offset, 10, 64)
		if err != nil {
			h.writeJSON(w, r, errorResponse{Error: "invalid offset"}, http.StatusBadRequest)

			return
		}

		params.Offset = v
	}

	if limit := q.Get("limit"); limit != "" {
		v, err := strconv.ParseUint(limit, 10, 64)
		if err != nil {
			h.writeJSON(w, r, errorResponse{Error: "invalid limit"}, http.StatusBadRequest)

			return
		}

		params.Limit = v
	}

	deletions, err := h.deletionRepo.List(r.Context(), params)
	if err != nil {
		h.writeError(w, r, err)

		return
	}

	resp := make([]deletionResponse, 0, len(deletions))
	for _, deletion := range deletions {
		resp = append(resp, deletionResponse{
			ID:          deletion.ID,
			ModeratorID: deletion.ModeratorID,
			CommentID:   deletion.CommentID,
			DeletedAt:   deletion.DeletedAt,
		})
	}

	h.writeJSON(w, r, resp, http.StatusOK)
}

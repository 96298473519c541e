package api

import (
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"
	"github.com/nasermirzaei89/marginalia/comments"
)

type commentResponse struct {
	ID          string                        `json:"id"`
	UserID      string                        `json:"user_id"`
	Target      string                        `json:"target"`
	Site        string                        `json:"site"`
	Headline    string                        `json:"headline,omitempty"`
	Body        string                        `json:"body"`
	Ratings     [comments.NumRatingSlots]*int `json:"ratings"`
	ValidRating bool                          `json:"valid_rating"`
	SubmittedAt time.Time                     `json:"submitted_at"`
	IsPublic    bool                          `json:"is_public"`
	IsRemoved   bool                          `json:"is_removed"`
}

func toCommentResponse(comment *comments.Comment) commentResponse {
	return commentResponse{
		ID:          comment.ID,
		UserID:      comment.UserID,
		Target:      comment.Target.String(),
		Site:        comment.Site,
		Headline:    comment.Headline,
		Body:        comment.Body,
		Ratings:     comment.Ratings,
		ValidRating: comment.ValidRating,
		SubmittedAt: comment.SubmittedAt,
		IsPublic:    comment.IsPublic,
		IsRemoved:   comment.IsRemoved,
	}
}

type freeCommentResponse struct {
	ID          string    `json:"id"`
	PersonName  string    `json:"person_name"`
	Target      string    `json:"target"`
	Site        string    `json:"site"`
	Body        string    `json:"body"`
	SubmittedAt time.Time `json:"submitted_at"`
	IsPublic    bool      `json:"is_public"`
	Approved    bool      `json:"approved"`
}

func toFreeCommentResponse(comment *comments.FreeComment) freeCommentResponse {
	return freeCommentResponse{
		ID:          comment.ID,
		PersonName:  comment.PersonName,
		Target:      comment.Target.String(),
		Site:        comment.Site,
		Body:        comment.Body,
		SubmittedAt: comment.SubmittedAt,
		IsPublic:    comment.IsPublic,
		Approved:    comment.Approved,
	}
}

type signCommentFormRequest struct {
	Target        string `json:"target"`
	Options       string `json:"options"`
	PhotoOptions  string `json:"photo_options"`
	RatingOptions string `json:"rating_options"`
}

// handleSignCommentForm issues the digest a client must echo back with
// its submission, binding the hidden form fields to this deployment's
// secret. It serves the trusted rendering frontend and stays open to
// anonymous callers so free-comment forms can be signed too; the digest
// proves the fields were not altered between render and submit, not
// that the caller was entitled to the options. Everything an option
// enables is validated again on submission.
func (h *Handler) handleSignCommentForm(w http.ResponseWriter, r *http.Request) {
	var req signCommentFormRequest
	if !h.decodeJSON(w, r, &req) {
		return
	}

	if _, err := comments.ParseContentReference(req.Target); err != nil {
		h.writeError(w, r, err)

		return
	}

	digest := h.hasher.Compute(req.Options, req.PhotoOptions, req.RatingOptions, req.Target)

	h.writeJSON(w, r, map[string]string{"security_hash": digest}, http.StatusOK)
}

type submitCommentRequest struct {
	Site          string `json:"site"`
	Headline      string `json:"headline"`
	Body          string `json:"body"`
	Ratings       []*int `json:"ratings"`
	Target        string `json:"target"`
	Options       string `json:"options"`
	PhotoOptions  string `json:"photo_options"`
	RatingOptions string `json:"rating_options"`
	SecurityHash  string `json:"security_hash"`
}

func (h *Handler) handleSubmitComment(w http.ResponseWriter, r *http.Request) {
	sub, ok := h.requireSubject(w, r)
	if !ok {
		return
	}

	var req submitCommentRequest
	if !h.decodeJSON(w, r, &req) {
		return
	}

	if len(req.Ratings) > comments.NumRatingSlots {
		h.writeError(w, r, comments.ValidationError{
			Field:  "ratings",
			Reason: "too many rating slots",
		})

		return
	}

	var ratings [comments.NumRatingSlots]*int

	copy(ratings[:], req.Ratings)

	comment, err := h.commentsSvc.SubmitComment(r.Context(), comments.SubmitCommentRequest{
		UserID:        sub,
		Site:          req.Site,
		Headline:      req.Headline,
		Body:          req.Body,
		Ratings:       ratings,
		Target:        req.Target,
		Options:       req.Options,
		PhotoOptions:  req.PhotoOptions,
		RatingOptions: req.RatingOptions,
		Digest:        req.SecurityHash,
		IPAddress:     remoteAddr(r),
	})
	if err != nil {
		h.writeError(w, r, err)

		return
	}

	h.writeJSON(w, r, toCommentResponse(comment), http.StatusCreated)
}

type submitFreeCommentRequest struct {
	PersonName   string `json:"person_name"`
	Site         string `json:"site"`
	Body         string `json:"body"`
	Target       string `json:"target"`
	Options      string `json:"options"`
	PhotoOptions string `json:"photo_options"`
	SecurityHash string `json:"security_hash"`
}

func (h *Handler) handleSubmitFreeComment(w http.ResponseWriter, r *http.Request) {
	var req submitFreeCommentRequest
	if !h.decodeJSON(w, r, &req) {
		return
	}

	comment, err := h.commentsSvc.SubmitFreeComment(r.Context(), comments.SubmitFreeCommentRequest{
		PersonName:   req.PersonName,
		Site:         req.Site,
		Body:         req.Body,
		Target:       req.Target,
		Options:      req.Options,
		PhotoOptions: req.PhotoOptions,
		Digest:       req.SecurityHash,
		IPAddress:    remoteAddr(r),
	})
	if err != nil {
		h.writeError(w, r, err)

		return
	}

	h.writeJSON(w, r, toFreeCommentResponse(comment), http.StatusCreated)
}

func (h *Handler) handleFindComment(w http.ResponseWriter, r *http.Request) {
	comment, err := h.commentsSvc.Find(r.Context(), mux.Vars(r)["commentID"])
	if err != nil {
		h.writeError(w, r, err)

		return
	}

	h.writeJSON(w, r, toCommentResponse(comment), http.StatusOK)
}

func (h *Handler) handleListComments(w http.ResponseWriter, r *http.Request) {
	params, err := listParamsFromQuery(r)
	if err != nil {
		h.writeError(w, r, err)

		return
	}

	list, err := h.commentsSvc.List(r.Context(), params)
	if err != nil {
		h.writeError(w, r, err)

		return
	}

	resp := make([]commentResponse, 0, len(list))
	for _, comment := range list {
		resp = append(resp, toCommentResponse(comment))
	}

	h.writeJSON(w, r, resp, http.StatusOK)
}

func (h *Handler) handleListFreeComments(w http.ResponseWriter, r *http.Request) {
	params, err := listParamsFromQuery(r)
	if err != nil {
		h.writeError(w, r, err)

		return
	}

	list, err := h.commentsSvc.ListFree(r.Context(), params)
	if err != nil {
		h.writeError(w, r, err)

		return
	}

	resp := make([]freeCommentResponse, 0, len(list))
	for _, comment := range list {
		resp = append(resp, toFreeCommentResponse(comment))
	}

	h.writeJSON(w, r, resp, http.StatusOK)
}

func (h *Handler) handleTally(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)

	target := comments.ContentReference{Type: vars["targetType"], ID: vars["targetID"]}

	aggregate, err := h.commentsSvc.Tally(r.Context(), target)
	if err != nil {
		h.writeError(w, r, err)

		return
	}

	h.writeJSON(w, r, map[string]any{
		"target":     aggregate.Target.String(),
		"comment_id": aggregate.CommentID,
		"ratings":    aggregate.Ratings,
		"average":    aggregate.Average,
	}, http.StatusOK)
}

type setFlagRequest struct {
	Visible  *bool `json:"visible,omitempty"`
	Removed  *bool `json:"removed,omitempty"`
	Approved *bool `json:"approved,omitempty"`
}

func (h *Handler) handleSetCommentVisibility(w http.ResponseWriter, r *http.Request) {
	if _, ok := h.requireModerator(w, r); !ok {
		return
	}

	var req setFlagRequest
	if !h.decodeJSON(w, r, &req) {
		return
	}

	if req.Visible == nil {
		h.writeJSON(w, r, errorResponse{Error: "missing field: visible"}, http.StatusBadRequest)

		return
	}

	err := h.commentsSvc.SetVisibility(r.Context(), mux.Vars(r)["commentID"], *req.Visible)
	if err != nil {
		h.writeError(w, r, err)

		return
	}

	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) handleSetCommentRemoved(w http.ResponseWriter, r *http.Request) {
	sub, ok := h.requireSubject(w, r)
	if !ok {
		return
	}

	var req setFlagRequest
	if !h.decodeJSON(w, r, &req) {
		return
	}

	if req.Removed == nil {
		h.writeJSON(w, r, errorResponse{Error: "missing field: removed"}, http.StatusBadRequest)

		return
	}

	err := h.commentsSvc.SetRemoved(r.Context(), mux.Vars(r)["commentID"], *req.Removed, sub)
	if err != nil {
		h.writeError(w, r, err)

		return
	}

	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) handleRemoveComment(w http.ResponseWriter, r *http.Request) {
	sub, ok := h.requireSubject(w, r)
	if !ok {
		return
	}

	err := h.commentsSvc.Remove(r.Context(), mux.Vars(r)["commentID"], sub)
	if err != nil {
		h.writeError(w, r, err)

		return
	}

	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) handleSetFreeCommentVisibility(w http.ResponseWriter, r *http.Request) {
	if _, ok := h.requireModerator(w, r); !ok {
		return
	}

	var req setFlagRequest
	if !h.decodeJSON(w, r, &req) {
		return
	}

	if req.Visible == nil {
		h.writeJSON(w, r, errorResponse{Error: "missing field: visible"}, http.StatusBadRequest)

		return
	}

	err := h.commentsSvc.SetFreeCommentVisibility(r.Context(), mux.Vars(r)["commentID"], *req.Visible)
	if err != nil {
		h.writeError(w, r, err)

		return
	}

	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) handleApproveFreeComment(w http.ResponseWriter, r *http.Request) {
	if _, ok := h.requireModerator(w, r); !ok {
		return
	}

	var req setFlagRequest
	if !h.decodeJSON(w, r, &req) {
		return
	}

	if req.Approved == nil {
		h.writeJSON(w, r, errorResponse{Error: "missing field: approved"}, http.StatusBadRequest)

		return
	}

	err := h.commentsSvc.ApproveFreeComment(r.Context(), mux.Vars(r)["commentID"], *req.Approved)
	if err != nil {
		h.writeError(w, r, err)

		return
	}

	w.WriteHeader(http.StatusNoContent)
}

func listParamsFromQuery(r *http.Request) (comments.ListParams, error) {
	q := r.URL.Query()

	params := comments.ListParams{
		Site:       q.Get("site"),
		OnlyPublic: q.Get("public") == "true",
		OrderBy:    q.Get("order_by"),
		Asc:        q.Get("asc") == "true",
	}

	if target := q.Get("target"); target != "" {
		ref, err := comments.ParseContentReference(target)
		if err != nil {
			return comments.ListParams{}, err
		}

		params.Target = &ref
	}

	if offset := q.Get("offset"); offset != "" {
		v, err := strconv.ParseUint(offset, 10, 64)
		if err != nil {
			return comments.ListParams{}, comments.ValidationError{Field: "offset", Reason: "must be a non-negative integer"}
		}

		params.Offset = v
	}

	if limit := q.Get("limit"); limit != "" {
		v, err := strconv.ParseUint(limit, 10, 64)
		if err != nil {
			return comments.ListParams{}, comments.ValidationError{Field: "limit", Reason: "must be a non-negative integer"}
		}

		params.Limit = v
	}

	return params, nil
}

func remoteAddr(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}

	return host
}

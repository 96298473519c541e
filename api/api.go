// Package api exposes the comment, karma, flag, and moderation
// operations as a JSON REST API.
package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/nasermirzaei89/marginalia/authorization"
	"github.com/nasermirzaei89/marginalia/comments"
	"github.com/nasermirzaei89/marginalia/flags"
	"github.com/nasermirzaei89/marginalia/karma"
	"github.com/nasermirzaei89/marginalia/moderation"
	"github.com/nasermirzaei89/marginalia/security"
)

// SubjectHeader carries the acting user id, set by the authenticating
// proxy in front of this service. Requests without it act as
// authorization.Anonymous.
const SubjectHeader = "X-Subject"

type Handler struct {
	router       *mux.Router
	commentsSvc  *comments.Service
	karmaSvc     *karma.Service
	flagsSvc     *flags.Service
	deletionRepo moderation.DeletionRepository
	moderators   *moderation.Authorizer
	hasher       *security.Hasher
}

var _ http.Handler = (*Handler)(nil)

func NewHandler(
	commentsSvc *comments.Service,
	karmaSvc *karma.Service,
	flagsSvc *flags.Service,
	deletionRepo moderation.DeletionRepository,
	moderators *moderation.Authorizer,
	hasher *security.Hasher,
) *Handler {
	h := &Handler{
		router:       mux.NewRouter(),
		commentsSvc:  commentsSvc,
		karmaSvc:     karmaSvc,
		flagsSvc:     flagsSvc,
		deletionRepo: deletionRepo,
		moderators:   moderators,
		hasher:       hasher,
	}

	h.registerRoutes()

	return h
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.router.ServeHTTP(w, r)
}

func (h *Handler) registerRoutes() {
	h.router.Use(h.subjectMiddleware, h.logMiddleware, h.jsonMiddleware)

	h.router.HandleFunc("/api/comment-forms", h.handleSignCommentForm).Methods(http.MethodPost)

	h.router.HandleFunc("/api/comments", h.handleSubmitComment).Methods(http.MethodPost)
	h.router.HandleFunc("/api/comments", h.handleListComments).Methods(http.MethodGet)
	h.router.HandleFunc("/api/comments/{commentID}", h.handleFindComment).Methods(http.MethodGet)
	h.router.HandleFunc("/api/comments/{commentID}", h.handleRemoveComment).Methods(http.MethodDelete)
	h.router.HandleFunc("/api/comments/{commentID}/visibility", h.handleSetCommentVisibility).Methods(http.MethodPut)
	h.router.HandleFunc("/api/comments/{commentID}/removed", h.handleSetCommentRemoved).Methods(http.MethodPut)

	h.router.HandleFunc("/api/free-comments", h.handleSubmitFreeComment).Methods(http.MethodPost)
	h.router.HandleFunc("/api/free-comments", h.handleListFreeComments).Methods(http.MethodGet)
	h.router.HandleFunc("/api/free-comments/{commentID}/visibility", h.handleSetFreeCommentVisibility).Methods(http.MethodPut)
	h.router.HandleFunc("/api/free-comments/{commentID}/approved", h.handleApproveFreeComment).Methods(http.MethodPut)

	h.router.HandleFunc("/api/targets/{targetType}/{targetID}/tally", h.handleTally).Methods(http.MethodGet)

	h.router.HandleFunc("/api/comments/{commentID}/karma", h.handleVote).Methods(http.MethodPost)
	h.router.HandleFunc("/api/comments/{commentID}/karma", h.handleKarma).Methods(http.MethodGet)

	h.router.HandleFunc("/api/comments/{commentID}/flags", h.handleFlag).Methods(http.MethodPost)

	h.router.HandleFunc("/api/moderation/deletions", h.handleListDeletions).Methods(http.MethodGet)
}

func (h *Handler) subjectMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		sub := r.Header.Get(SubjectHeader)
		if sub == "" {
			sub = authorization.Anonymous
		}

		next.ServeHTTP(w, r.WithContext(authorization.WithSubject(r.Context(), sub)))
	})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (rec *statusRecorder) WriteHeader(status int) {
	rec.ResponseWriter.WriteHeader(status)
	rec.status = status
}

func (h *Handler) logMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		startedAt := time.Now()

		next.ServeHTTP(rec, r)

		slog.InfoContext(r.Context(), "request handled",
			"method", r.Method,
			"path", r.URL.Path,
			"status", rec.status,
			"duration", time.Since(startedAt),
			"subject", authorization.SubjectFromContext(r.Context()),
		)
	})
}

func (h *Handler) jsonMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json; charset=utf-8")
		next.ServeHTTP(w, r)
	})
}

func (h *Handler) writeJSON(w http.ResponseWriter, r *http.Request, data any, status int) {
	w.WriteHeader(status)

	err := json.NewEncoder(w).Encode(data)
	if err != nil {
		slog.ErrorContext(r.Context(), "failed to encode response", "error", err)
	}
}

type errorResponse struct {
	Error string `json:"error"`
}

// writeError maps domain errors onto HTTP statuses. Unknown errors are
// logged and reported as an opaque 500.
func (h *Handler) writeError(w http.ResponseWriter, r *http.Request, err error) {
	validationErr := comments.ValidationError{}
	invalidScoreErr := karma.InvalidScoreError{}
	deniedErr := comments.PermissionDeniedError{}
	accessDeniedErr := &authorization.AccessDeniedError{}
	entityNotFoundErr := comments.EntityNotFoundError{}
	commentNotFoundErr := comments.CommentNotFoundError{}
	freeCmtNotFoundErr := comments.FreeCommentNotFoundError{}

	switch {
	case errors.As(err, &validationErr):
		h.writeJSON(w, r, errorResponse{Error: validationErr.Error()}, http.StatusUnprocessableEntity)
	case errors.As(err, &invalidScoreErr):
		h.writeJSON(w, r, errorResponse{Error: invalidScoreErr.Error()}, http.StatusUnprocessableEntity)
	case errors.As(err, &deniedErr), errors.As(err, &accessDeniedErr):
		h.writeJSON(w, r, errorResponse{Error: "permission denied"}, http.StatusForbidden)
	case errors.As(err, &entityNotFoundErr),
		errors.As(err, &commentNotFoundErr),
		errors.As(err, &freeCmtNotFoundErr):
		h.writeJSON(w, r, errorResponse{Error: "not found"}, http.StatusNotFound)
	default:
		slog.ErrorContext(r.Context(), "request failed", "method", r.Method, "path", r.URL.Path, "error", err)
		h.writeJSON(w, r, errorResponse{Error: "internal server error"}, http.StatusInternalServerError)
	}
}

func (h *Handler) decodeJSON(w http.ResponseWriter, r *http.Request, dst any) bool {
	err := json.NewDecoder(r.Body).Decode(dst)
	if err != nil {
		h.writeJSON(w, r, errorResponse{Error: "invalid request body"}, http.StatusBadRequest)

		return false
	}

	return true
}

// requireSubject rejects anonymous requests. It returns the acting
// subject and whether the request may proceed.
func (h *Handler) requireSubject(w http.ResponseWriter, r *http.Request) (string, bool) {
	sub := authorization.SubjectFromContext(r.Context())
	if sub == authorization.Anonymous {
		h.writeJSON(w, r, errorResponse{Error: "authentication required"}, http.StatusUnauthorized)

		return "", false
	}

	return sub, true
}

// requireModerator rejects requests whose subject lacks moderation
// privileges.
func (h *Handler) requireModerator(w http.ResponseWriter, r *http.Request) (string, bool) {
	sub, ok := h.requireSubject(w, r)
	if !ok {
		return "", false
	}

	err := h.moderators.Authorize(r.Context())
	if err != nil {
		h.writeError(w, r, err)

		return "", false
	}

	return sub, true
}

package api

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/phrazzld/resource-api/internal/api/shared"
	"github.com/phrazzld/resource-api/internal/domain"
	"github.com/phrazzld/resource-api/internal/platform/logger"
	"github.com/phrazzld/resource-api/internal/query"
	"github.com/phrazzld/resource-api/internal/repository"
	"github.com/phrazzld/resource-api/internal/service/auth"
)

// KindParam and IDParam are the chi URL parameters used by resource routes.
const (
	KindParam = "kind"
	IDParam   = "id"
)

// ResourceHandler serves CRUD and search for every registered kind. Each
// request performs at most one repository mutation.
type ResourceHandler struct {
	repos  map[string]*repository.Repository
	gate   *auth.Gate
	logger *slog.Logger
}

// NewResourceHandler creates a ResourceHandler over one repository per kind.
func NewResourceHandler(repos []*repository.Repository, gate *auth.Gate, log *slog.Logger) *ResourceHandler {
	if gate == nil {
		// ALLOW-PANIC: Constructor enforcing required dependency
		panic("gate cannot be nil for ResourceHandler")
	}
	if log == nil {
		// ALLOW-PANIC: Constructor enforcing required dependency
		panic("logger cannot be nil for ResourceHandler")
	}
	byKind := make(map[string]*repository.Repository, len(repos))
	for _, repo := range repos {
		byKind[repo.Kind().Name] = repo
	}
	return &ResourceHandler{
		repos:  byKind,
		gate:   gate,
		logger: log.With(slog.String("component", "resource_handler")),
	}
}

// List handles GET /api/{kind}: every record the caller may read, in
// insertion order.
func (h *ResourceHandler) List(w http.ResponseWriter, r *http.Request) {
	repo, ok := h.repository(w, r)
	if !ok {
		return
	}
	scope, err := h.readScope(r, repo.Kind())
	if err != nil {
		HandleAPIError(w, r, err)
		return
	}

	records, err := repo.Records(r.Context(), scope)
	if err != nil {
		HandleAPIError(w, r, err)
		return
	}
	shared.RespondWithJSON(w, r, http.StatusOK, records)
}

// Search handles GET /api/{kind}/search with match, range and pagination
// parameters.
func (h *ResourceHandler) Search(w http.ResponseWriter, r *http.Request) {
	repo, ok := h.repository(w, r)
	if !ok {
		return
	}
	scope, err := h.readScope(r, repo.Kind())
	if err != nil {
		HandleAPIError(w, r, err)
		return
	}
	criteria, err := query.ParseCriteria(r.URL.Query(), repo.Kind())
	if err != nil {
		HandleAPIError(w, r, err)
		return
	}

	page, err := repo.List(r.Context(), scope, criteria)
	if err != nil {
		HandleAPIError(w, r, err)
		return
	}
	shared.RespondWithJSON(w, r, http.StatusOK, SearchResponse{
		Count:      page.Count,
		Pagination: page.Pagination,
		Results:    page.Collect(),
	})
}

// Get handles GET /api/{kind}/{id}. Owner-visibility records are only
// returned to their owner or an admin; anyone else gets a 404.
func (h *ResourceHandler) Get(w http.ResponseWriter, r *http.Request) {
	repo, ok := h.repository(w, r)
	if !ok {
		return
	}
	id, err := getPathID(r, IDParam)
	if err != nil {
		HandleAPIError(w, r, err)
		return
	}

	scope, err := h.readScope(r, repo.Kind())
	if err != nil {
		HandleAPIError(w, r, err)
		return
	}

	rec, err := repo.GetScoped(r.Context(), scope, id)
	if err != nil {
		HandleAPIError(w, r, err)
		return
	}

	setETag(w, rec)
	shared.RespondWithJSON(w, r, http.StatusOK, rec)
}

// Create handles POST /api/{kind}.
func (h *ResourceHandler) Create(w http.ResponseWriter, r *http.Request) {
	log := logger.FromContextOrDefault(r.Context(), h.logger)

	repo, ok := h.repository(w, r)
	if !ok {
		return
	}
	identity := shared.IdentityFrom(r.Context())
	if d := h.gate.Authorize(r.Context(), identity, auth.PolicyCreate, nil); !d.Allowed() {
		HandleAPIError(w, r, d.Err)
		return
	}

	var body map[string]any
	if err := shared.DecodeJSON(r, &body); err != nil {
		HandleAPIError(w, r, err)
		return
	}

	rec, err := repo.Create(r.Context(), body, identity.ID)
	if err != nil {
		HandleAPIError(w, r, err)
		return
	}

	log.Debug("record created via API",
		slog.String("kind", repo.Kind().Name),
		slog.String("id", rec.ID()),
		slog.String("identity_id", identity.ID))
	setETag(w, rec)
	w.Header().Set("Location", r.URL.Path+"/"+rec.ID())
	shared.RespondWithJSON(w, r, http.StatusCreated, rec)
}

// Replace handles PUT /api/{kind}/{id}.
func (h *ResourceHandler) Replace(w http.ResponseWriter, r *http.Request) {
	h.write(w, r, (*repository.Repository).Update)
}

// Patch handles PATCH /api/{kind}/{id}.
func (h *ResourceHandler) Patch(w http.ResponseWriter, r *http.Request) {
	h.write(w, r, (*repository.Repository).Patch)
}

type writeFunc func(
	repo *repository.Repository,
	ctx context.Context,
	id string,
	fields map[string]any,
	m repository.Mutation,
) (domain.Record, error)

func (h *ResourceHandler) write(w http.ResponseWriter, r *http.Request, apply writeFunc) {
	repo, ok := h.repository(w, r)
	if !ok {
		return
	}
	id, err := getPathID(r, IDParam)
	if err != nil {
		HandleAPIError(w, r, err)
		return
	}

	var body map[string]any
	if err := shared.DecodeJSON(r, &body); err != nil {
		HandleAPIError(w, r, err)
		return
	}
	expected, err := expectedVersion(r, body)
	if err != nil {
		HandleAPIError(w, r, err)
		return
	}

	rec, err := apply(repo, r.Context(), id, body, h.mutation(r, expected))
	if err != nil {
		HandleAPIError(w, r, err)
		return
	}
	setETag(w, rec)
	shared.RespondWithJSON(w, r, http.StatusOK, rec)
}

// Delete handles DELETE /api/{kind}/{id}. Deleting an absent record is 404.
func (h *ResourceHandler) Delete(w http.ResponseWriter, r *http.Request) {
	repo, ok := h.repository(w, r)
	if !ok {
		return
	}
	id, err := getPathID(r, IDParam)
	if err != nil {
		HandleAPIError(w, r, err)
		return
	}
	expected, err := expectedVersion(r, nil)
	if err != nil {
		HandleAPIError(w, r, err)
		return
	}

	removed, err := repo.Remove(r.Context(), id, h.mutation(r, expected))
	if err != nil {
		HandleAPIError(w, r, err)
		return
	}
	shared.RespondWithJSON(w, r, http.StatusOK, DeleteResponse{
		Message: "Record deleted",
		Deleted: removed,
	})
}

// repository resolves the {kind} path parameter. Unknown kinds are 404.
func (h *ResourceHandler) repository(w http.ResponseWriter, r *http.Request) (*repository.Repository, bool) {
	kind := chi.URLParam(r, KindParam)
	repo, ok := h.repos[kind]
	if !ok {
		shared.RespondWithError(w, r, http.StatusNotFound, "Unknown resource kind", shared.WithKind(shared.KindNotFound))
		return nil, false
	}
	return repo, true
}

// readScope decides which records a read may see. Public kinds are open to
// everyone; owner kinds need a caller and are narrowed to their records
// unless the caller is an admin.
func (h *ResourceHandler) readScope(r *http.Request, kind domain.Kind) (repository.Scope, error) {
	if !kind.Owned() {
		return repository.Scope{}, nil
	}
	identity := shared.IdentityFrom(r.Context())
	if identity == nil {
		return repository.Scope{}, auth.ErrMissingCredential
	}
	if identity.IsAdmin() {
		return repository.Scope{}, nil
	}
	return repository.Scope{OwnerID: identity.ID}, nil
}

func (h *ResourceHandler) mutation(r *http.Request, expected int64) repository.Mutation {
	return repository.Mutation{
		ExpectedVersion: expected,
		Authorize:       h.gate.Check(r.Context(), shared.IdentityFrom(r.Context()), auth.PolicyOwnerOrAdmin),
	}
}

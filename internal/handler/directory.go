package handler

import (
	"context"
	"log/slog"
	"net/http"
	"net/url"

	"github.com/go-chi/chi/v5"

	"github.com/sakif/friendship-plus/internal/apperror"
	"github.com/sakif/friendship-plus/internal/model"
)

// DirectoryService is the slice of service.DirectoryService the HTTP layer uses.
type DirectoryService interface {
	ListProfiles(ctx context.Context) ([]model.ProfileSummary, error)
	Search(ctx context.Context, interest string) ([]model.SearchResult, error)
}

// DirectoryHandler serves the directory-wide profile queries.
type DirectoryHandler struct {
	directory DirectoryService
	logger    *slog.Logger
}

func NewDirectoryHandler(directory DirectoryService, logger *slog.Logger) *DirectoryHandler {
	return &DirectoryHandler{directory: directory, logger: logger}
}

type profilesResponse struct {
	Success  bool                   `json:"success"`
	Profiles []model.ProfileSummary `json:"profiles"`
}

type searchResponse struct {
	Success bool                 `json:"success"`
	Count   int                  `json:"count"`
	Results []model.SearchResult `json:"results"`
}

// HandleList returns the facets of every profile.
//
// HTTP: GET /profile
func (h *DirectoryHandler) HandleList(w http.ResponseWriter, r *http.Request) {
	profiles, err := h.directory.ListProfiles(r.Context())
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, profilesResponse{Success: true, Profiles: profiles})
}

// HandleSearch finds profiles by interest. No match is a 200 with an
// empty list.
//
// HTTP: GET /profile/search/{interest}
//
// chi matches on the raw path when the client escaped characters such as
// "+" or "/" ("c%2B%2B"), and the parameter is then still escaped.
func (h *DirectoryHandler) HandleSearch(w http.ResponseWriter, r *http.Request) {
	interest := chi.URLParam(r, "interest")
	if r.URL.RawPath != "" {
		unescaped, err := url.PathUnescape(interest)
		if err != nil {
			writeError(w, h.logger, apperror.ValidationFailed("interest", "interest is not a valid path segment"))
			return
		}
		interest = unescaped
	}

	results, err := h.directory.Search(r.Context(), interest)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, searchResponse{Success: true, Count: len(results), Results: results})
}

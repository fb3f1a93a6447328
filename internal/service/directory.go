package service

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/sakif/friendship-plus/internal/apperror"
	"github.com/sakif/friendship-plus/internal/model"
	"github.com/sakif/friendship-plus/internal/repository"
)

// DirectoryService answers directory-wide queries over profiles. It needs
// an authenticated caller but is not owner-scoped.
type DirectoryService struct {
	store  repository.Store
	logger *slog.Logger
}

func NewDirectoryService(store repository.Store, logger *slog.Logger) *DirectoryService {
	return &DirectoryService{store: store, logger: logger}
}

// ListProfiles returns the facets of every profile, oldest first. An empty
// directory is reported as NotFound.
func (s *DirectoryService) ListProfiles(ctx context.Context) ([]model.ProfileSummary, error) {
	profiles, err := s.store.Repos().Profiles.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("service/directory: listing profiles: %w", err)
	}
	if len(profiles) == 0 {
		return nil, &apperror.AppError{Err: apperror.ErrNotFound, Message: "No profiles found"}
	}

	summaries := make([]model.ProfileSummary, len(profiles))
	for i := range profiles {
		summaries[i] = profiles[i].Summary()
	}
	return summaries, nil
}

// Search returns every profile whose interest set contains interest, joined
// with its owner's name. The join is one profile query plus one batch user
// lookup, matched in memory by user ID. Profiles whose owner is missing are
// skipped. No match is an empty slice, not an error.
func (s *DirectoryService) Search(ctx context.Context, interest string) ([]model.SearchResult, error) {
	interest = strings.TrimSpace(interest)
	if interest == "" {
		return nil, apperror.ValidationFailed("interest", "interest is required")
	}

	repos := s.store.Repos()

	profiles, err := repos.Profiles.FindByInterest(ctx, interest)
	if err != nil {
		return nil, fmt.Errorf("service/directory: searching %q: %w", interest, err)
	}
	results := make([]model.SearchResult, 0, len(profiles))
	if len(profiles) == 0 {
		return results, nil
	}

	ids := make([]string, len(profiles))
	for i := range profiles {
		ids[i] = profiles[i].UserID
	}
	users, err := repos.Users.GetByIDs(ctx, ids)
	if err != nil {
		return nil, fmt.Errorf("service/directory: loading profile owners: %w", err)
	}

	byID := make(map[string]*model.User, len(users))
	for i := range users {
		byID[users[i].ID] = &users[i]
	}

	for i := range profiles {
		p := &profiles[i]
		owner, ok := byID[p.UserID]
		if !ok {
			s.logger.Warn("profile without owner skipped", slog.String("userID", p.UserID))
			continue
		}
		results = append(results, model.SearchResult{
			UserID:    p.UserID,
			Username:  owner.Username,
			FirstName: owner.FirstName,
			LastName:  owner.LastName,
			Location:  p.Location,
			School:    p.School,
			Courses:   p.Courses,
			Interests: p.Interests,
		})
	}
	return results, nil
}

package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/sakif/friendship-plus/internal/apperror"
	"github.com/sakif/friendship-plus/internal/model"
	"github.com/sakif/friendship-plus/internal/repository"
)

// ProfileInput is a partial profile write. Nil fields are "not supplied"
// and keep their stored value. Interests takes any encoding accepted by
// NormalizeInterests.
type ProfileInput struct {
	Bio       *string `json:"bio"       validate:"omitnil,max=2000"`
	Age       *int    `json:"age"       validate:"omitnil,min=13,max=120"`
	Location  *string `json:"location"  validate:"omitnil,max=200"`
	Interests any     `json:"interests"`
	Courses   *string `json:"courses"   validate:"omitnil,max=500"`
	School    *string `json:"school"    validate:"omitnil,max=200"`
}

// ProfileService owns the profile upsert and merge rules.
type ProfileService struct {
	store  repository.Store
	logger *slog.Logger
}

func NewProfileService(store repository.Store, logger *slog.Logger) *ProfileService {
	return &ProfileService{store: store, logger: logger}
}

// Upsert creates the target's profile on first write and merges into it
// afterwards. Only the owner may write.
//
// Merge rules: supplied fields overwrite, absent fields keep the stored
// value, the picture changes only when pic is non-nil, and a supplied
// interest list replaces the whole set (an empty list clears it).
func (s *ProfileService) Upsert(ctx context.Context, actorID, targetID string, in ProfileInput, pic *model.Picture) (*model.Profile, error) {
	if actorID != targetID {
		return nil, apperror.Forbidden("Unauthorized to modify this profile")
	}

	if err := validateInput(in); err != nil {
		return nil, err
	}
	interests, err := NormalizeInterests(in.Interests)
	if err != nil {
		return nil, err
	}
	if pic != nil && (pic.MIMEType == "" || len(pic.Data) == 0) {
		return nil, apperror.ValidationFailed("profilePic", "profile picture is empty")
	}

	var profile *model.Profile
	var created bool
	err = s.store.WithTx(ctx, func(ctx context.Context, repos repository.Repositories) error {
		// A profile cannot outlive or precede its user.
		if _, err := repos.Users.GetByID(ctx, targetID); err != nil {
			if errors.Is(err, apperror.ErrNotFound) {
				return userNotFound()
			}
			return err
		}

		existing, err := repos.Profiles.Get(ctx, targetID)
		switch {
		case errors.Is(err, apperror.ErrNotFound):
			fresh := &model.Profile{UserID: targetID}
			mergeProfile(fresh, in, interests, pic)
			if fresh.Interests == nil {
				fresh.Interests = []string{}
			}
			if created, err = repos.Profiles.Insert(ctx, fresh); err != nil {
				return err
			}
			if created {
				break
			}
			// A concurrent first write got there first; merge over its row.
			if existing, err = repos.Profiles.Get(ctx, targetID); err != nil {
				return err
			}
			fallthrough
		case err == nil:
			mergeProfile(existing, in, interests, pic)
			if err := repos.Profiles.Update(ctx, existing); err != nil {
				return err
			}
		default:
			return err
		}

		profile, err = repos.Profiles.Get(ctx, targetID)
		return err
	})
	if err != nil {
		var appErr *apperror.AppError
		if errors.As(err, &appErr) {
			return nil, err
		}
		s.logger.Error("profile upsert failed",
			slog.String("userID", targetID),
			slog.String("error", err.Error()),
		)
		return nil, fmt.Errorf("service/profile: upserting profile %s: %w", targetID, err)
	}

	s.logger.Info("profile saved",
		slog.String("userID", targetID),
		slog.Bool("created", created),
		slog.Bool("picture", pic != nil),
	)
	return profile, nil
}

// mergeProfile lays the supplied fields of in over p.
func mergeProfile(p *model.Profile, in ProfileInput, interests []string, pic *model.Picture) {
	if in.Bio != nil {
		p.Bio = in.Bio
	}
	if in.Age != nil {
		p.Age = in.Age
	}
	if in.Location != nil {
		p.Location = in.Location
	}
	if in.Courses != nil {
		p.Courses = in.Courses
	}
	if in.School != nil {
		p.School = in.School
	}
	if interests != nil {
		p.Interests = interests
	}
	if pic != nil {
		uri := pic.DataURI()
		p.ProfilePic = &uri
	}
}

// Get returns the profile of userID. Any authenticated caller may read it.
func (s *ProfileService) Get(ctx context.Context, userID string) (*model.Profile, error) {
	profile, err := s.store.Repos().Profiles.Get(ctx, userID)
	if err != nil {
		if errors.Is(err, apperror.ErrNotFound) {
			return nil, &apperror.AppError{Err: apperror.ErrNotFound, Message: "Profile not found"}
		}
		return nil, fmt.Errorf("service/profile: getting profile %s: %w", userID, err)
	}
	return profile, nil
}

package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/sakif/friendship-plus/internal/apperror"
	"github.com/sakif/friendship-plus/internal/dbx"
	"github.com/sakif/friendship-plus/internal/model"
	"github.com/sakif/friendship-plus/internal/repository"
)

// compile-time check that *ProfileStore implements repository.ProfileRepository
var _ repository.ProfileRepository = (*ProfileStore)(nil)

const (
	profileColumns = `user_id, bio, profile_pic, age, location, courses, school, created_at, updated_at`
	// facetColumns leaves out bio and the picture payload.
	facetColumns = `user_id, location, courses, school, created_at, updated_at`
)

// ProfileStore persists profile rows and their interest sets.
type ProfileStore struct {
	db dbx.DBTX
}

// NewProfileStore binds a ProfileStore to a pool or transaction.
func NewProfileStore(db dbx.DBTX) *ProfileStore {
	return &ProfileStore{db: db}
}

func (s *ProfileStore) Get(ctx context.Context, userID string) (*model.Profile, error) {
	var p model.Profile
	err := sqlx.GetContext(ctx, s.db, &p, s.db.Rebind(
		`SELECT `+profileColumns+` FROM profile WHERE user_id = ?`), userID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperror.NotFound("profile", userID)
		}
		return nil, fmt.Errorf("sqlstore: getting profile %s: %w", userID, err)
	}

	profiles := []model.Profile{p}
	if err := s.attachInterests(ctx, profiles); err != nil {
		return nil, err
	}
	return &profiles[0], nil
}

// Insert writes a new profile row, stamping CreatedAt and UpdatedAt.
func (s *ProfileStore) Insert(ctx context.Context, p *model.Profile) (bool, error) {
	now := dbTime(time.Now())
	p.CreatedAt = now
	p.UpdatedAt = now

	res, err := s.db.ExecContext(ctx, s.db.Rebind(
		`INSERT INTO profile (user_id, bio, profile_pic, age, location, courses, school, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT (user_id) DO NOTHING`),
		p.UserID, p.Bio, p.ProfilePic, p.Age, p.Location, p.Courses, p.School, p.CreatedAt, p.UpdatedAt,
	)
	if err != nil {
		return false, fmt.Errorf("sqlstore: inserting profile %s: %w", p.UserID, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("sqlstore: inserting profile %s: %w", p.UserID, err)
	}
	if n == 0 {
		return false, nil
	}
	return true, s.insertInterests(ctx, p.UserID, p.Interests)
}

// Update overwrites every column of an existing row and replaces its
// interest set with p.Interests.
func (s *ProfileStore) Update(ctx context.Context, p *model.Profile) error {
	p.UpdatedAt = dbTime(time.Now())

	res, err := s.db.ExecContext(ctx, s.db.Rebind(
		`UPDATE profile
		 SET bio = ?, profile_pic = ?, age = ?, location = ?, courses = ?, school = ?, updated_at = ?
		 WHERE user_id = ?`),
		p.Bio, p.ProfilePic, p.Age, p.Location, p.Courses, p.School, p.UpdatedAt, p.UserID,
	)
	if err != nil {
		return fmt.Errorf("sqlstore: updating profile %s: %w", p.UserID, err)
	}
	if err := expectOne(res, "profile", p.UserID); err != nil {
		return err
	}

	if _, err := s.db.ExecContext(ctx, s.db.Rebind(
		`DELETE FROM profile_interests WHERE user_id = ?`), p.UserID); err != nil {
		return fmt.Errorf("sqlstore: clearing interests for %s: %w", p.UserID, err)
	}
	return s.insertInterests(ctx, p.UserID, p.Interests)
}

// Delete removes a profile and its interests. A missing profile is not an
// error; account deletion calls this for users who never wrote one.
func (s *ProfileStore) Delete(ctx context.Context, userID string) error {
	if _, err := s.db.ExecContext(ctx, s.db.Rebind(
		`DELETE FROM profile_interests WHERE user_id = ?`), userID); err != nil {
		return fmt.Errorf("sqlstore: deleting interests for %s: %w", userID, err)
	}
	if _, err := s.db.ExecContext(ctx, s.db.Rebind(
		`DELETE FROM profile WHERE user_id = ?`), userID); err != nil {
		return fmt.Errorf("sqlstore: deleting profile %s: %w", userID, err)
	}
	return nil
}

func (s *ProfileStore) List(ctx context.Context) ([]model.Profile, error) {
	var profiles []model.Profile
	if err := sqlx.SelectContext(ctx, s.db, &profiles,
		`SELECT `+facetColumns+` FROM profile ORDER BY created_at, user_id`,
	); err != nil {
		return nil, fmt.Errorf("sqlstore: listing profiles: %w", err)
	}
	if err := s.attachInterests(ctx, profiles); err != nil {
		return nil, err
	}
	return profiles, nil
}

func (s *ProfileStore) FindByInterest(ctx context.Context, interest string) ([]model.Profile, error) {
	var profiles []model.Profile
	if err := sqlx.SelectContext(ctx, s.db, &profiles, s.db.Rebind(
		`SELECT `+facetColumns+` FROM profile p
		 WHERE EXISTS (
		     SELECT 1 FROM profile_interests i
		     WHERE i.user_id = p.user_id AND i.interest = ?
		 )
		 ORDER BY p.created_at, p.user_id`), interest,
	); err != nil {
		return nil, fmt.Errorf("sqlstore: searching profiles by interest: %w", err)
	}
	if err := s.attachInterests(ctx, profiles); err != nil {
		return nil, err
	}
	return profiles, nil
}

func (s *ProfileStore) insertInterests(ctx context.Context, userID string, interests []string) error {
	for _, interest := range interests {
		if _, err := s.db.ExecContext(ctx, s.db.Rebind(
			`INSERT INTO profile_interests (user_id, interest) VALUES (?, ?)`), userID, interest); err != nil {
			return fmt.Errorf("sqlstore: inserting interest for %s: %w", userID, err)
		}
	}
	return nil
}

// attachInterests loads the interest sets of every profile in one query and
// normalizes timestamps. Each profile gets a non-nil slice, sorted.
func (s *ProfileStore) attachInterests(ctx context.Context, profiles []model.Profile) error {
	if len(profiles) == 0 {
		return nil
	}

	ids := make([]string, len(profiles))
	for i := range profiles {
		ids[i] = profiles[i].UserID
		profiles[i].Interests = []string{}
		profiles[i].CreatedAt = profiles[i].CreatedAt.UTC()
		profiles[i].UpdatedAt = profiles[i].UpdatedAt.UTC()
	}

	query, args, err := sqlx.In(
		`SELECT user_id, interest FROM profile_interests WHERE user_id IN (?) ORDER BY user_id, interest`, ids)
	if err != nil {
		return fmt.Errorf("sqlstore: building interest query: %w", err)
	}

	var rows []struct {
		UserID   string `db:"user_id"`
		Interest string `db:"interest"`
	}
	if err := sqlx.SelectContext(ctx, s.db, &rows, s.db.Rebind(query), args...); err != nil {
		return fmt.Errorf("sqlstore: loading interests: %w", err)
	}

	byUser := make(map[string][]string, len(profiles))
	for _, r := range rows {
		byUser[r.UserID] = append(byUser[r.UserID], r.Interest)
	}
	for i := range profiles {
		if set, ok := byUser[profiles[i].UserID]; ok {
			profiles[i].Interests = set
		}
	}
	return nil
}

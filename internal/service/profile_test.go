package service

import (
	"context"
	"errors"
	"reflect"
	"testing"

	"github.com/sakif/friendship-plus/internal/apperror"
	"github.com/sakif/friendship-plus/internal/model"
	"github.com/sakif/friendship-plus/internal/repository"
)

var testPNG = &model.Picture{
	MIMEType: "image/png",
	Data:     []byte{0x89, 'P', 'N', 'G', 0x0d, 0x0a, 0x1a, 0x0a, 0x01, 0x02},
}

func fullProfileInput() ProfileInput {
	return ProfileInput{
		Bio:       strPtr("I like board games"),
		Age:       intPtr(21),
		Location:  strPtr("Lisbon"),
		Interests: []string{"chess", "go"},
		Courses:   strPtr("CS101"),
		School:    strPtr("IST"),
	}
}

func TestUpsert_CreatesOnFirstWrite(t *testing.T) {
	env := newTestEnv(t)
	alice := env.signup(t, "alice")

	got, err := env.profiles.Upsert(context.Background(), alice.ID, alice.ID, fullProfileInput(), testPNG)
	if err != nil {
		t.Fatalf("Upsert() error = %v", err)
	}

	if got.UserID != alice.ID || *got.Bio != "I like board games" || *got.Age != 21 || *got.School != "IST" {
		t.Errorf("Upsert() = %+v", got)
	}
	if !reflect.DeepEqual(got.Interests, []string{"chess", "go"}) {
		t.Errorf("Interests = %v", got.Interests)
	}
	if got.ProfilePic == nil {
		t.Fatal("ProfilePic not stored")
	}
	pic, err := model.ParsePicture(*got.ProfilePic)
	if err != nil || !pic.Equal(*testPNG) {
		t.Errorf("stored picture = %+v, %v; want exact round trip", pic, err)
	}
}

func TestUpsert_BioOnlyLeavesEverythingElse(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	alice := env.signup(t, "alice")
	before, err := env.profiles.Upsert(ctx, alice.ID, alice.ID, fullProfileInput(), testPNG)
	if err != nil {
		t.Fatalf("Upsert() error = %v", err)
	}

	after, err := env.profiles.Upsert(ctx, alice.ID, alice.ID, ProfileInput{Bio: strPtr("new bio")}, nil)
	if err != nil {
		t.Fatalf("Upsert() error = %v", err)
	}

	if *after.Bio != "new bio" {
		t.Errorf("Bio = %q, want new bio", *after.Bio)
	}
	if *after.Age != *before.Age || *after.Location != *before.Location ||
		*after.Courses != *before.Courses || *after.School != *before.School {
		t.Errorf("absent scalar fields changed: before %+v after %+v", before, after)
	}
	if !reflect.DeepEqual(after.Interests, before.Interests) {
		t.Errorf("Interests changed: %v -> %v", before.Interests, after.Interests)
	}
	if *after.ProfilePic != *before.ProfilePic {
		t.Error("ProfilePic changed on a bio-only update")
	}
	if !after.CreatedAt.Equal(before.CreatedAt) {
		t.Errorf("CreatedAt changed: %v -> %v", before.CreatedAt, after.CreatedAt)
	}
}

func TestUpsert_PictureOnlyChangesPicture(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	alice := env.signup(t, "alice")
	before, err := env.profiles.Upsert(ctx, alice.ID, alice.ID, fullProfileInput(), testPNG)
	if err != nil {
		t.Fatalf("Upsert() error = %v", err)
	}

	jpeg := &model.Picture{MIMEType: "image/jpeg", Data: []byte{0xff, 0xd8, 0xff, 0xe0, 0x00}}
	after, err := env.profiles.Upsert(ctx, alice.ID, alice.ID, ProfileInput{}, jpeg)
	if err != nil {
		t.Fatalf("Upsert() error = %v", err)
	}

	pic, err := model.ParsePicture(*after.ProfilePic)
	if err != nil || !pic.Equal(*jpeg) {
		t.Errorf("picture = %+v, %v; want the new jpeg", pic, err)
	}
	if *after.Bio != *before.Bio || *after.Age != *before.Age || !reflect.DeepEqual(after.Interests, before.Interests) {
		t.Errorf("picture-only update changed other fields: %+v", after)
	}
}

func TestUpsert_InterestEncodingsStoreSameSet(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	want := []string{"a", "b", "c"}

	for i, raw := range []any{"a, b, b, c", []string{"a", "b", "c"}, `["a","b","c"]`} {
		user := env.signup(t, "user"+string(rune('0'+i)))

		got, err := env.profiles.Upsert(ctx, user.ID, user.ID, ProfileInput{Interests: raw}, nil)
		if err != nil {
			t.Fatalf("Upsert(%#v) error = %v", raw, err)
		}
		if !reflect.DeepEqual(got.Interests, want) {
			t.Errorf("Upsert(%#v) interests = %v, want %v", raw, got.Interests, want)
		}
	}
}

func TestUpsert_EmptyInterestsClearTheSet(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	alice := env.signup(t, "alice")
	if _, err := env.profiles.Upsert(ctx, alice.ID, alice.ID, fullProfileInput(), nil); err != nil {
		t.Fatalf("Upsert() error = %v", err)
	}

	got, err := env.profiles.Upsert(ctx, alice.ID, alice.ID, ProfileInput{Interests: ""}, nil)
	if err != nil {
		t.Fatalf("Upsert() error = %v", err)
	}
	if got.Interests == nil || len(got.Interests) != 0 {
		t.Errorf("Interests = %#v, want empty", got.Interests)
	}
}

func TestUpsert_AgeBounds(t *testing.T) {
	env := newTestEnv(t)
	alice := env.signup(t, "alice")

	for _, age := range []int{12, 121, -1} {
		_, err := env.profiles.Upsert(context.Background(), alice.ID, alice.ID, ProfileInput{Age: intPtr(age)}, nil)

		var appErr *apperror.AppError
		if !errors.As(err, &appErr) || !errors.Is(err, apperror.ErrValidation) || appErr.Message != "Invalid age" {
			t.Errorf("Upsert(age=%d) error = %v, want Invalid age", age, err)
		}
	}

	// Rejected before storage: no profile row exists.
	if _, err := env.profiles.Get(context.Background(), alice.ID); !errors.Is(err, apperror.ErrNotFound) {
		t.Errorf("Get() error = %v, want not found", err)
	}

	for _, age := range []int{13, 120} {
		if _, err := env.profiles.Upsert(context.Background(), alice.ID, alice.ID, ProfileInput{Age: intPtr(age)}, nil); err != nil {
			t.Errorf("Upsert(age=%d) error = %v", age, err)
		}
	}
}

func TestUpsert_OwnerOnly(t *testing.T) {
	env := newTestEnv(t)
	alice := env.signup(t, "alice")
	bob := env.signup(t, "bob")

	_, err := env.profiles.Upsert(context.Background(), bob.ID, alice.ID, fullProfileInput(), nil)
	if !errors.Is(err, apperror.ErrForbidden) {
		t.Errorf("Upsert() as other user error = %v, want forbidden", err)
	}
}

func TestUpsert_UnknownUser(t *testing.T) {
	env := newTestEnv(t)

	_, err := env.profiles.Upsert(context.Background(), "ghost", "ghost", fullProfileInput(), nil)
	if !errors.Is(err, apperror.ErrNotFound) {
		t.Errorf("Upsert() for missing user error = %v, want not found", err)
	}
}

func TestUpsert_EmptyPicture(t *testing.T) {
	env := newTestEnv(t)
	alice := env.signup(t, "alice")

	_, err := env.profiles.Upsert(context.Background(), alice.ID, alice.ID, ProfileInput{}, &model.Picture{MIMEType: "image/png"})
	if !errors.Is(err, apperror.ErrValidation) {
		t.Errorf("Upsert() with empty picture error = %v, want validation error", err)
	}
}

func TestProfileGet_NotFound(t *testing.T) {
	env := newTestEnv(t)

	_, err := env.profiles.Get(context.Background(), "nobody")
	if !errors.Is(err, apperror.ErrNotFound) || err.Error() != "Profile not found" {
		t.Errorf("Get() error = %v, want Profile not found", err)
	}
}

// lateProfileStore hides an existing profile from the first Get of a
// transaction, as when another first write commits between the lookup and
// the insert.
type lateProfileStore struct {
	repository.Store
}

func (s lateProfileStore) WithTx(ctx context.Context, fn func(context.Context, repository.Repositories) error) error {
	return s.Store.WithTx(ctx, func(ctx context.Context, repos repository.Repositories) error {
		repos.Profiles = &lateProfiles{ProfileRepository: repos.Profiles}
		return fn(ctx, repos)
	})
}

type lateProfiles struct {
	repository.ProfileRepository
	seen bool
}

func (p *lateProfiles) Get(ctx context.Context, userID string) (*model.Profile, error) {
	if !p.seen {
		p.seen = true
		return nil, apperror.NotFound("profile", userID)
	}
	return p.ProfileRepository.Get(ctx, userID)
}

func TestUpsert_ConcurrentFirstWriteMerges(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	alice := env.signup(t, "alice")
	if _, err := env.profiles.Upsert(ctx, alice.ID, alice.ID, fullProfileInput(), nil); err != nil {
		t.Fatalf("Upsert() error = %v", err)
	}

	late := NewProfileService(lateProfileStore{env.db}, discardLogger())
	got, err := late.Upsert(ctx, alice.ID, alice.ID, ProfileInput{Bio: strPtr("second writer")}, nil)
	if err != nil {
		t.Fatalf("Upsert() after a lost insert race error = %v", err)
	}

	if *got.Bio != "second writer" {
		t.Errorf("Bio = %q, want the second write applied", *got.Bio)
	}
	if got.Age == nil || *got.Age != 21 || *got.School != "IST" {
		t.Errorf("Upsert() = %+v, want the first write's fields kept", got)
	}
	if !reflect.DeepEqual(got.Interests, []string{"chess", "go"}) {
		t.Errorf("Interests = %v, want the first write's set kept", got.Interests)
	}
}

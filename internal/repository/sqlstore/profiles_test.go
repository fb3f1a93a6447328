package sqlstore

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sakif/friendship-plus/internal/apperror"
	"github.com/sakif/friendship-plus/internal/model"
	"github.com/sakif/friendship-plus/internal/repository"
)

func strPtr(s string) *string { return &s }
func intPtr(i int) *int       { return &i }

func insertProfile(t *testing.T, db *DB, userID string, interests ...string) *model.Profile {
	t.Helper()
	p := &model.Profile{
		UserID:    userID,
		Bio:       strPtr("hello"),
		Age:       intPtr(21),
		Location:  strPtr("Lisbon"),
		Interests: interests,
	}
	inserted, err := db.Repos().Profiles.Insert(context.Background(), p)
	require.NoError(t, err)
	require.True(t, inserted)
	return p
}

func TestProfileInsertGet(t *testing.T) {
	db := newTestDB(t)
	user := createTestUser(t, db, "alice")
	pic := model.Picture{MIMEType: "image/png", Data: []byte{0x89, 0x50, 0x4e, 0x47, 0x00}}.DataURI()

	p := &model.Profile{
		UserID:     user.ID,
		Bio:        strPtr("likes board games"),
		ProfilePic: &pic,
		Age:        intPtr(30),
		Interests:  []string{"go", "chess"},
	}
	inserted, err := db.Repos().Profiles.Insert(context.Background(), p)
	require.NoError(t, err)
	require.True(t, inserted)

	got, err := db.Repos().Profiles.Get(context.Background(), user.ID)
	require.NoError(t, err)
	assert.Equal(t, "likes board games", *got.Bio)
	assert.Equal(t, 30, *got.Age)
	assert.Nil(t, got.Location, "unsupplied fields stay null")
	assert.Nil(t, got.School)
	assert.Equal(t, []string{"chess", "go"}, got.Interests)
	require.NotNil(t, got.ProfilePic)
	assert.Equal(t, pic, *got.ProfilePic, "picture must round-trip exactly")
	assert.False(t, got.CreatedAt.IsZero())
}

func TestProfileInsert_SecondInsertIsNoop(t *testing.T) {
	db := newTestDB(t)
	user := createTestUser(t, db, "alice")
	insertProfile(t, db, user.ID, "chess")

	inserted, err := db.Repos().Profiles.Insert(context.Background(), &model.Profile{
		UserID:    user.ID,
		Bio:       strPtr("overwritten?"),
		Interests: []string{"go"},
	})
	require.NoError(t, err)
	assert.False(t, inserted)

	got, err := db.Repos().Profiles.Get(context.Background(), user.ID)
	require.NoError(t, err)
	assert.Equal(t, "hello", *got.Bio)
	assert.Equal(t, []string{"chess"}, got.Interests)
}

func TestProfileGet_NotFound(t *testing.T) {
	db := newTestDB(t)

	_, err := db.Repos().Profiles.Get(context.Background(), "nobody")
	assert.True(t, errors.Is(err, apperror.ErrNotFound))
}

func TestProfileUpdate_ReplacesInterests(t *testing.T) {
	db := newTestDB(t)
	user := createTestUser(t, db, "alice")
	p := insertProfile(t, db, user.ID, "chess", "go")
	ctx := context.Background()

	p.Bio = strPtr("new bio")
	p.Interests = []string{"hiking"}
	require.NoError(t, db.Repos().Profiles.Update(ctx, p))

	got, err := db.Repos().Profiles.Get(ctx, user.ID)
	require.NoError(t, err)
	assert.Equal(t, "new bio", *got.Bio)
	assert.Equal(t, []string{"hiking"}, got.Interests)
	assert.True(t, got.CreatedAt.Equal(p.CreatedAt), "update keeps created_at")
}

func TestProfileUpdate_Missing(t *testing.T) {
	db := newTestDB(t)

	err := db.Repos().Profiles.Update(context.Background(), &model.Profile{UserID: "nobody"})
	assert.True(t, errors.Is(err, apperror.ErrNotFound))
}

func TestProfileFindByInterest(t *testing.T) {
	db := newTestDB(t)
	alice := createTestUser(t, db, "alice")
	bob := createTestUser(t, db, "bob")
	carol := createTestUser(t, db, "carol")
	insertProfile(t, db, alice.ID, "chess", "go")
	time.Sleep(2 * time.Millisecond)
	insertProfile(t, db, bob.ID, "hiking")
	time.Sleep(2 * time.Millisecond)
	insertProfile(t, db, carol.ID, "chess")

	got, err := db.Repos().Profiles.FindByInterest(context.Background(), "chess")
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, alice.ID, got[0].UserID)
	assert.Equal(t, carol.ID, got[1].UserID)
	assert.Equal(t, []string{"chess", "go"}, got[0].Interests, "the full set comes back, not just the match")
	assert.Nil(t, got[0].Bio, "search projection skips bio")

	none, err := db.Repos().Profiles.FindByInterest(context.Background(), "knitting")
	require.NoError(t, err)
	assert.Empty(t, none)
}

func TestProfileListAndDelete(t *testing.T) {
	db := newTestDB(t)
	alice := createTestUser(t, db, "alice")
	bob := createTestUser(t, db, "bob")
	insertProfile(t, db, alice.ID, "chess")
	insertProfile(t, db, bob.ID)
	ctx := context.Background()

	all, err := db.Repos().Profiles.List(ctx)
	require.NoError(t, err)
	require.Len(t, all, 2)
	for _, p := range all {
		assert.NotNil(t, p.Interests, "interests is never nil")
		assert.Nil(t, p.ProfilePic)
	}

	require.NoError(t, db.Repos().Profiles.Delete(ctx, alice.ID))
	require.NoError(t, db.Repos().Profiles.Delete(ctx, alice.ID), "deleting twice is fine")

	all, err = db.Repos().Profiles.List(ctx)
	require.NoError(t, err)
	assert.Len(t, all, 1)
}

func TestWithTx_RollsBackAcrossStores(t *testing.T) {
	db := newTestDB(t)
	alice := createTestUser(t, db, "alice")
	insertProfile(t, db, alice.ID, "chess")
	ctx := context.Background()
	failure := errors.New("abort")

	err := db.WithTx(ctx, func(ctx context.Context, repos repository.Repositories) error {
		require.NoError(t, repos.Profiles.Delete(ctx, alice.ID))
		require.NoError(t, repos.Users.Delete(ctx, alice.ID))
		return failure
	})
	require.ErrorIs(t, err, failure)

	_, err = db.Repos().Users.GetByID(ctx, alice.ID)
	assert.NoError(t, err, "user delete rolled back")
	p, err := db.Repos().Profiles.Get(ctx, alice.ID)
	require.NoError(t, err, "profile delete rolled back")
	assert.Equal(t, []string{"chess"}, p.Interests)
}

func TestSQLiteDSN(t *testing.T) {
	assert.Equal(t,
		":memory:?_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)&_txlock=immediate&_time_format=sqlite",
		sqliteDSN(":memory:"))
	assert.Contains(t, sqliteDSN("data/app.db?cache=shared"), "data/app.db?cache=shared&_pragma=foreign_keys(1)")
	assert.Contains(t, sqliteDSN("data/app.db"), "journal_mode(WAL)")
}

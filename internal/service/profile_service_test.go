package service

import (
	"context"
	"database/sql"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/still-there/attendance-api/internal/dto"
	"github.com/still-there/attendance-api/internal/models"
	appErrors "github.com/still-there/attendance-api/pkg/errors"
)

type fakeProfileRepo struct {
	user      *models.User
	avatarURL string
}

func (f *fakeProfileRepo) FindByID(_ context.Context, id string) (*models.User, error) {
	if f.user == nil || f.user.ID != id {
		return nil, sql.ErrNoRows
	}
	return f.user, nil
}

func (f *fakeProfileRepo) UpdateProfile(_ context.Context, id, fullName string, schoolID *string, _ time.Time) (*models.User, error) {
	if f.user == nil || f.user.ID != id {
		return nil, sql.ErrNoRows
	}
	f.user.FullName = fullName
	f.user.SchoolID = schoolID
	return f.user, nil
}

func (f *fakeProfileRepo) UpdateAvatar(_ context.Context, _, avatarURL string, _ time.Time) error {
	f.avatarURL = avatarURL
	return nil
}

type fakeAvatarStore struct {
	saved   string
	deleted []string
}

func (f *fakeAvatarStore) Save(scope, originalName string, _ io.Reader) (string, error) {
	f.saved = "https://still.example.com/media/" + scope + "/" + originalName
	return f.saved, nil
}

func (f *fakeAvatarStore) DeleteByURL(url string) error {
	f.deleted = append(f.deleted, url)
	return nil
}

func TestProfileUpdateTrimsAndValidates(t *testing.T) {
	repo := &fakeProfileRepo{user: &models.User{ID: "user-1", FullName: "Dr. Ada"}}
	svc := NewProfileService(repo, &fakeAvatarStore{}, nil, nil)

	school := "  SCH-9  "
	user, err := svc.Update(context.Background(), "user-1", dto.UpdateProfileRequest{
		FullName: "  Dr. Ada Lovelace  ",
		SchoolID: &school,
	})
	require.NoError(t, err)
	assert.Equal(t, "Dr. Ada Lovelace", user.FullName)
	require.NotNil(t, user.SchoolID)
	assert.Equal(t, "SCH-9", *user.SchoolID)

	_, err = svc.Update(context.Background(), "user-1", dto.UpdateProfileRequest{FullName: "   "})
	assert.True(t, appErrors.Is(err, appErrors.ErrValidation))
}

func TestProfileUpdateAvatarRemovesReplacedFile(t *testing.T) {
	oldURL := "https://still.example.com/media/avatars/old.png"
	repo := &fakeProfileRepo{user: &models.User{ID: "user-1", AvatarURL: &oldURL}}
	store := &fakeAvatarStore{}
	svc := NewProfileService(repo, store, nil, nil)

	url, err := svc.UpdateAvatar(context.Background(), "user-1", "new.png", strings.NewReader("pixels"))
	require.NoError(t, err)
	assert.Equal(t, store.saved, url)
	assert.Equal(t, url, repo.avatarURL)
	assert.Equal(t, []string{oldURL}, store.deleted)
}

func TestProfileUpdateAvatarFirstUploadDeletesNothing(t *testing.T) {
	repo := &fakeProfileRepo{user: &models.User{ID: "user-1"}}
	store := &fakeAvatarStore{}
	svc := NewProfileService(repo, store, nil, nil)

	_, err := svc.UpdateAvatar(context.Background(), "user-1", "face.png", strings.NewReader("pixels"))
	require.NoError(t, err)
	assert.Empty(t, store.deleted)
}

func TestProfileUpdateAvatarUnknownUser(t *testing.T) {
	svc := NewProfileService(&fakeProfileRepo{}, &fakeAvatarStore{}, nil, nil)

	_, err := svc.UpdateAvatar(context.Background(), "ghost", "face.png", strings.NewReader("pixels"))
	assert.True(t, appErrors.Is(err, appErrors.ErrNotFound))
}

package service

import (
	"context"
	"database/sql"
	"errors"
	"io"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/still-there/attendance-api/internal/dto"
	"github.com/still-there/attendance-api/internal/models"
	appErrors "github.com/still-there/attendance-api/pkg/errors"
)

type profileUserRepository interface {
	FindByID(ctx context.Context, id string) (*models.User, error)
	UpdateProfile(ctx context.Context, id, fullName string, schoolID *string, updatedAt time.Time) (*models.User, error)
	UpdateAvatar(ctx context.Context, id, avatarURL string, updatedAt time.Time) error
}

type avatarStore interface {
	Save(scope, originalName string, r io.Reader) (string, error)
	DeleteByURL(url string) error
}

// ProfileService manages the instructor's display profile and avatar.
type ProfileService struct {
	repo      profileUserRepository
	media     avatarStore
	validator *validator.Validate
	logger    *zap.Logger
}

// NewProfileService constructs the profile service.
func NewProfileService(repo profileUserRepository, media avatarStore, validate *validator.Validate, logger *zap.Logger) *ProfileService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ProfileService{repo: repo, media: media, validator: validate, logger: logger}
}

// Get returns the user's profile.
func (s *ProfileService) Get(ctx context.Context, userID string) (*models.User, error) {
	user, err := s.repo.FindByID(ctx, userID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "user not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load profile")
	}
	return user, nil
}

// Update edits the display fields and returns the updated profile.
func (s *ProfileService) Update(ctx context.Context, userID string, req dto.UpdateProfileRequest) (*models.User, error) {
	req.FullName = strings.TrimSpace(req.FullName)
	if req.SchoolID != nil {
		trimmed := strings.TrimSpace(*req.SchoolID)
		if trimmed == "" {
			req.SchoolID = nil
		} else {
			req.SchoolID = &trimmed
		}
	}
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Clone(appErrors.ErrValidation, "full name is required")
	}

	user, err := s.repo.UpdateProfile(ctx, userID, req.FullName, req.SchoolID, time.Now().UTC())
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "user not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update profile")
	}
	return user, nil
}

// UpdateAvatar stores the uploaded image, points the profile at it and
// removes the replaced file.
func (s *ProfileService) UpdateAvatar(ctx context.Context, userID, fileName string, file io.Reader) (string, error) {
	user, err := s.Get(ctx, userID)
	if err != nil {
		return "", err
	}
	url, err := s.media.Save("avatars", fileName, file)
	if err != nil {
		return "", appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to store avatar")
	}
	if err := s.repo.UpdateAvatar(ctx, userID, url, time.Now().UTC()); err != nil {
		return "", appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update avatar")
	}
	if user.AvatarURL != nil && *user.AvatarURL != url {
		if err := s.media.DeleteByURL(*user.AvatarURL); err != nil {
			s.logger.Warn("failed to remove replaced avatar", zap.String("user_id", userID), zap.Error(err))
		}
	}
	s.logger.Info("avatar updated", zap.String("user_id", userID))
	return url, nil
}

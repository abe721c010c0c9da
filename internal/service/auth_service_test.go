package service

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/still-there/attendance-api/internal/models"
	appErrors "github.com/still-there/attendance-api/pkg/errors"
)

type fakeUserRepo struct {
	users         map[string]*models.User
	refreshTokens map[string]*models.RefreshToken
	created       *models.User
	revokedAllFor string
}

func newFakeUserRepo() *fakeUserRepo {
	return &fakeUserRepo{
		users:         map[string]*models.User{},
		refreshTokens: map[string]*models.RefreshToken{},
	}
}

func (f *fakeUserRepo) Create(_ context.Context, user *models.User) (*models.User, error) {
	user.ID = "user-1"
	f.users[user.Email] = user
	f.created = user
	return user, nil
}

func (f *fakeUserRepo) FindByEmail(_ context.Context, email string) (*models.User, error) {
	user, ok := f.users[email]
	if !ok {
		return nil, sql.ErrNoRows
	}
	return user, nil
}

func (f *fakeUserRepo) FindByID(_ context.Context, id string) (*models.User, error) {
	for _, user := range f.users {
		if user.ID == id {
			return user, nil
		}
	}
	return nil, sql.ErrNoRows
}

func (f *fakeUserRepo) UpdateLastLogin(context.Context, string, time.Time) error { return nil }

func (f *fakeUserRepo) CreateRefreshToken(_ context.Context, token *models.RefreshToken) error {
	f.refreshTokens[token.Token] = token
	return nil
}

func (f *fakeUserRepo) FindRefreshToken(_ context.Context, token string) (*models.RefreshToken, error) {
	stored, ok := f.refreshTokens[token]
	if !ok {
		return nil, sql.ErrNoRows
	}
	return stored, nil
}

func (f *fakeUserRepo) RevokeRefreshToken(_ context.Context, id string, revokedAt time.Time) error {
	for _, token := range f.refreshTokens {
		if token.ID == id {
			token.Revoked = true
			token.RevokedAt = &revokedAt
		}
	}
	return nil
}

func (f *fakeUserRepo) RevokeUserRefreshTokens(_ context.Context, userID string) error {
	f.revokedAllFor = userID
	now := time.Now().UTC()
	for _, token := range f.refreshTokens {
		if token.UserID == userID && !token.Revoked {
			token.Revoked = true
			token.RevokedAt = &now
		}
	}
	return nil
}

func testAuthConfig() AuthConfig {
	return AuthConfig{
		AccessTokenSecret:  "test-secret",
		AccessTokenExpiry:  time.Hour,
		RefreshTokenExpiry: 24 * time.Hour,
		Issuer:             "still-there",
	}
}

func TestAuthSignupAndValidateToken(t *testing.T) {
	repo := newFakeUserRepo()
	svc := NewAuthService(repo, nil, nil, testAuthConfig())

	res, err := svc.Signup(context.Background(), models.SignupRequest{
		Email:    "Ada@Example.com",
		Password: "secret1",
		FullName: "Dr. Ada",
	})
	require.NoError(t, err)
	assert.Equal(t, "ada@example.com", repo.created.Email)
	assert.NotEqual(t, "secret1", repo.created.PasswordHash)

	claims, err := svc.ValidateToken(res.AccessToken)
	require.NoError(t, err)
	assert.Equal(t, "user-1", claims.UserID)
	assert.Equal(t, "Dr. Ada", claims.FullName)
}

func TestAuthSignupDuplicateEmail(t *testing.T) {
	repo := newFakeUserRepo()
	repo.users["ada@example.com"] = &models.User{ID: "user-1", Email: "ada@example.com", Active: true}
	svc := NewAuthService(repo, nil, nil, testAuthConfig())

	_, err := svc.Signup(context.Background(), models.SignupRequest{
		Email:    "ada@example.com",
		Password: "secret1",
		FullName: "Dr. Ada",
	})
	assert.True(t, appErrors.Is(err, appErrors.ErrConflict))
}

func TestAuthLoginWrongPassword(t *testing.T) {
	hash, err := bcrypt.GenerateFromPassword([]byte("right"), bcrypt.MinCost)
	require.NoError(t, err)
	repo := newFakeUserRepo()
	repo.users["ada@example.com"] = &models.User{
		ID: "user-1", Email: "ada@example.com", PasswordHash: string(hash), Active: true,
	}
	svc := NewAuthService(repo, nil, nil, testAuthConfig())

	_, err = svc.Login(context.Background(), models.LoginRequest{Email: "ada@example.com", Password: "wrong"})
	assert.True(t, appErrors.Is(err, appErrors.ErrInvalidCredentials))
}

func TestAuthRefreshRotatesAndRevokes(t *testing.T) {
	repo := newFakeUserRepo()
	repo.users["ada@example.com"] = &models.User{ID: "user-1", Email: "ada@example.com", Active: true}
	repo.refreshTokens["old-token"] = &models.RefreshToken{
		ID: "rt-1", UserID: "user-1", Token: "old-token",
		ExpiresAt: time.Now().Add(time.Hour),
	}
	svc := NewAuthService(repo, nil, nil, testAuthConfig())

	res, err := svc.RefreshToken(context.Background(), models.RefreshTokenRequest{RefreshToken: "old-token"})
	require.NoError(t, err)
	assert.NotEqual(t, "old-token", res.RefreshToken)
	assert.True(t, repo.refreshTokens["old-token"].Revoked)

	// Reuse of the rotated token must fail and cut off every outstanding
	// token for the account, including the one just issued.
	_, err = svc.RefreshToken(context.Background(), models.RefreshTokenRequest{RefreshToken: "old-token"})
	assert.True(t, appErrors.Is(err, appErrors.ErrUnauthorized))
	assert.Equal(t, "user-1", repo.revokedAllFor)
	assert.True(t, repo.refreshTokens[res.RefreshToken].Revoked)

	_, err = svc.RefreshToken(context.Background(), models.RefreshTokenRequest{RefreshToken: res.RefreshToken})
	assert.True(t, appErrors.Is(err, appErrors.ErrUnauthorized))
}

func TestAuthValidateTokenRejectsGarbage(t *testing.T) {
	svc := NewAuthService(newFakeUserRepo(), nil, nil, testAuthConfig())

	_, err := svc.ValidateToken("not-a-token")
	assert.True(t, appErrors.Is(err, appErrors.ErrUnauthorized))
}
